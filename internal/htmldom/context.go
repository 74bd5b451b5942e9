package htmldom

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/xkilldash9x/formpilot/internal/dom"
	"github.com/xkilldash9x/formpilot/internal/pool"
)

// ContextFactory creates browser-free execution contexts whose pages load
// through a Loader. It lets the whole submission pipeline run against static
// HTML.
type ContextFactory struct {
	loader Loader
	opts   []Option
	seq    atomic.Int64
}

var _ pool.Factory = (*ContextFactory)(nil)

// NewContextFactory returns a factory whose pages navigate with loader.
func NewContextFactory(loader Loader, opts ...Option) *ContextFactory {
	return &ContextFactory{loader: loader, opts: opts}
}

func (f *ContextFactory) Create(ctx context.Context) (pool.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &staticContext{id: "static-" + strconv.FormatInt(f.seq.Add(1), 10), f: f}, nil
}

type staticContext struct {
	id string
	f  *ContextFactory
}

func (c *staticContext) ID() string { return c.id }

func (c *staticContext) NewPage(ctx context.Context) (dom.Page, error) {
	opts := append([]Option{WithLoader(c.f.loader)}, c.f.opts...)
	return Parse("", opts...)
}

// Reset is a no-op; static pages share no cookies or storage.
func (c *staticContext) Reset(context.Context) error { return nil }

func (c *staticContext) Close(context.Context) error { return nil }
