package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from tab, which carries the chromedp
// target, that is also done when op is done. The deadline of op is copied
// so timeouts still surface as context.DeadlineExceeded.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tab)
	cancelDeadline := context.CancelFunc(func() {})
	if d, ok := op.Deadline(); ok {
		combined, cancelDeadline = context.WithDeadline(combined, d)
	}
	stop := context.AfterFunc(op, cancel)
	return combined, func() {
		stop()
		cancelDeadline()
		cancel()
	}
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                    { return nil }
func (valueOnlyContext) Err() error                               { return nil }

// Detach keeps the values of ctx, including the chromedp target, but drops
// its cancellation and deadline. Cleanup that must outlive a request uses it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
