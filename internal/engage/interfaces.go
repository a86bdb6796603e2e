// internal/engage/interfaces.go
package engage

import (
	"context"
	"time"
)

// Driver is the page-level surface the engagement loop runs against. The
// production implementation wraps chromedp (internal/browser); tests use a
// scripted fake, so no test ever needs a real browser.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Submit(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Location(ctx context.Context) (string, error)
	PostLinks(ctx context.Context, limit int) ([]string, error)
	ClickButtonByText(ctx context.Context, labels ...string) (bool, error)
}

// Pacer supplies the humanized timing and randomness for the loop.
type Pacer interface {
	Throttle(ctx context.Context) error
	Dwell(ctx context.Context, min, max time.Duration) error
	CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error
	Pick(pool []string) string
	Chance(prob float64) bool
}

// History remembers which posts were liked in earlier runs. A nil History
// disables the check.
type History interface {
	Seen(ctx context.Context, url string) (bool, error)
	Record(ctx context.Context, url, username string) error
}
