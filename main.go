package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/xkilldash9x/formpilot/cmd"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

const panicLogFile = "panic.log"

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

// handlePanic records an unrecovered panic with its stack before exiting.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	stack := debug.Stack()
	report := fmt.Sprintf("time: %s\npanic: %v\n\n%s", time.Now().Format(time.RFC3339), r, stack)
	if err := os.WriteFile(panicLogFile, []byte(report), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", panicLogFile, err)
	}
	observability.GetLogger().Error("Unrecovered panic; details written to " + panicLogFile)
	observability.Sync()
	fmt.Fprintf(os.Stderr, "panic: %v\n", r)
	os.Exit(2)
}
