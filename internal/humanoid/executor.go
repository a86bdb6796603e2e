// Filename: internal/humanoid/executor.go
package humanoid

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// Executor defines the contract for external browser interactions,
// allowing for mocking during tests. This interface is the cornerstone
// of the module's testability strategy.
type Executor interface {
	// Sleep pauses execution for a given duration (context-aware).
	Sleep(ctx context.Context, d time.Duration) error

	// DispatchMouseEvent sends a low-level mouse event.
	DispatchMouseEvent(ctx context.Context, data MouseEventData) error
}

// CDPExecutor is the production implementation of the Executor interface.
// It dispatches against the browser tab held by the target context; the
// per-call context is consulted for cancellation only.
type CDPExecutor struct {
	target context.Context
}

// NewCDPExecutor creates an executor bound to a chromedp context.
func NewCDPExecutor(target context.Context) *CDPExecutor {
	return &CDPExecutor{target: target}
}

func (e *CDPExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return chromedp.Sleep(d).Do(ctx)
}

func (e *CDPExecutor) DispatchMouseEvent(ctx context.Context, data MouseEventData) error {
	runCtx, cancel := context.WithCancel(e.target)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y)
	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return p.Do(ctx)
	}))
}
