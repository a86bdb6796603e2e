// internal/browser/driver.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/igpilot/internal/config"
)

// Driver exposes the page-level primitives the engagement loop needs,
// executed against the session's tab. Every element lookup is bounded by
// the configured element-wait ceiling, so a missing element surfaces as
// context.DeadlineExceeded rather than hanging the run.
type Driver struct {
	session     *Session
	logger      *zap.Logger
	elementWait time.Duration
	navTimeout  time.Duration
}

// NewDriver wraps a session in the interaction primitives.
func NewDriver(s *Session, cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	return &Driver{
		session:     s,
		logger:      logger.Named("driver"),
		elementWait: cfg.ElementWait,
		navTimeout:  cfg.NavigationTimeout,
	}
}

// run executes chromedp actions on the session tab under a deadline. The
// caller's context is only consulted for cancellation; the chromedp context
// owns the actual browser connection.
func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(d.session.Context(), timeout)
	defer cancel()

	// Propagate caller cancellation into the bounded run.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the given URL and waits for the page to settle.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.logger.Debug("Navigating", zap.String("url", url))
	return d.run(ctx, d.navTimeout, chromedp.Navigate(url))
}

// WaitVisible blocks until the selector is visible or the element-wait
// ceiling elapses.
func (d *Driver) WaitVisible(ctx context.Context, selector string) error {
	return d.run(ctx, d.elementWait, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Click waits for the selector and clicks its first match.
func (d *Driver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, d.elementWait,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// Type focuses the selector and sends the text as keystrokes.
func (d *Driver) Type(ctx context.Context, selector, text string) error {
	return d.run(ctx, d.elementWait,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// Submit sends Enter to the selector, submitting whatever form owns it.
func (d *Driver) Submit(ctx context.Context, selector string) error {
	return d.run(ctx, d.elementWait,
		chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery),
	)
}

// Exists reports whether the selector matches anything right now, without
// waiting for it to appear.
func (d *Driver) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	script := fmt.Sprintf("!!document.querySelector(%q)", selector)
	if err := d.run(ctx, d.elementWait, chromedp.Evaluate(script, &found)); err != nil {
		return false, err
	}
	return found, nil
}

// Location returns the current page URL.
func (d *Driver) Location(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, d.elementWait, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// PostLinks collects up to limit distinct post hrefs from the profile grid.
// Hrefs are returned as site-relative paths ("/p/...").
func (d *Driver) PostLinks(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	// Wait for the grid to render before scraping anchors.
	if err := d.WaitVisible(ctx, "article a"); err != nil {
		return nil, err
	}

	script := fmt.Sprintf(`(() => {
		const seen = new Set();
		for (const a of document.querySelectorAll('article a')) {
			const href = a.getAttribute('href');
			if (href && (href.startsWith('/p/') || href.startsWith('/reel/'))) {
				seen.add(href);
			}
			if (seen.size >= %d) break;
		}
		return Array.from(seen);
	})()`, limit)

	var links []string
	if err := d.run(ctx, d.elementWait, chromedp.Evaluate(script, &links)); err != nil {
		return nil, err
	}
	return links, nil
}

// ClickButtonByText clicks the first button whose trimmed innerText matches
// one of the given labels. Returns false if no such button exists. Instagram
// renders its interstitial dialogs ("Not Now" etc.) without stable selectors,
// so text matching is the only reliable handle.
func (d *Driver) ClickButtonByText(ctx context.Context, labels ...string) (bool, error) {
	if len(labels) == 0 {
		return false, nil
	}
	quoted := make([]byte, 0, 64)
	for i, l := range labels {
		if i > 0 {
			quoted = append(quoted, ',')
		}
		quoted = append(quoted, fmt.Sprintf("%q", l)...)
	}

	script := fmt.Sprintf(`(() => {
		const labels = new Set([%s]);
		const btn = Array.from(document.querySelectorAll('button, div[role="button"]'))
			.find(b => labels.has(b.innerText.trim()));
		if (btn) { btn.click(); return true; }
		return false;
	})()`, quoted)

	var clicked bool
	if err := d.run(ctx, d.elementWait, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}
