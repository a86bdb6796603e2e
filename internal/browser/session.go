// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/igpilot/internal/browser/stealth"
	"github.com/xkilldash9x/igpilot/internal/config"
)

// Session owns one Chrome process and one tab for the duration of a run.
// It is created once at startup and closed exactly once at shutdown,
// regardless of how the run ends.
type Session struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu       sync.Mutex
	isClosed bool
}

// NewSession launches the browser and connects a fresh tab. The returned
// session must be closed by the caller.
func NewSession(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	sessionLogger := logger.Named("browser").With(zap.String("session_id", sessionID))

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, execOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			sessionLogger.Error(fmt.Sprintf(format, args...))
		}),
	}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(func(format string, args ...interface{}) {
			sessionLogger.Debug(fmt.Sprintf(format, args...))
		}))
	}

	ctx, cancel := chromedp.NewContext(allocCtx, ctxOpts...)

	s := &Session{
		id:          sessionID,
		cfg:         cfg,
		logger:      sessionLogger,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}

	// Starting the browser eagerly surfaces launch failures here instead of
	// at the first navigation.
	if err := chromedp.Run(ctx, stealth.Apply(stealth.DefaultPersona, sessionLogger)); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	sessionLogger.Info("Browser session started",
		zap.Bool("headless", cfg.Headless),
	)
	return s, nil
}

// execOptions builds the Chrome launch flags. The notification and popup
// suppression flags mirror what a human-tended profile would have disabled;
// the rest are stability flags for containerized runs.
func execOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		key, value, found := strings.Cut(arg, "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// ID returns the unique identifier of this session.
func (s *Session) ID() string {
	return s.id
}

// Context returns the chromedp context for the session's tab.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close shuts the tab and the browser process down. It is safe to call
// multiple times; only the first call does any work.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil
	}
	s.isClosed = true

	// Give Chrome a moment to exit cleanly before the allocator tears it down.
	if err := chromedp.Cancel(s.ctx); err != nil {
		s.logger.Debug("Graceful browser cancel failed", zap.Error(err))
	}
	s.cancel()
	s.allocCancel()

	s.logger.Info("Browser session closed")
	return nil
}

// runCDP executes actions on the session's chromedp context. The caller's
// context is only consulted for cancellation, the same contract as
// Driver.run; callers hold plain contexts and must still reach the tab.
func (s *Session) runCDP(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// cookieFile is the serialized form of a saved cookie jar.
type cookieFile struct {
	SavedAt time.Time         `json:"saved_at"`
	Cookies []*network.Cookie `json:"cookies"`
}

// SaveCookies writes the current cookie jar to the configured cookie file so
// the next run can reuse the login session.
func (s *Session) SaveCookies(ctx context.Context) error {
	if s.cfg.CookieFile == "" {
		return nil
	}

	var cookies []*network.Cookie
	err := s.runCDP(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}

	data, err := json.MarshalIndent(cookieFile{SavedAt: time.Now(), Cookies: cookies}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}
	// Cookies are session credentials. Owner-only permissions.
	if err := os.WriteFile(s.cfg.CookieFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}

	s.logger.Debug("Saved session cookies", zap.Int("count", len(cookies)))
	return nil
}

// LoadCookies restores a previously saved cookie jar, if one exists. A
// missing file is not an error; the caller just logs in from scratch.
func (s *Session) LoadCookies(ctx context.Context) (bool, error) {
	if s.cfg.CookieFile == "" {
		return false, nil
	}
	data, err := os.ReadFile(s.cfg.CookieFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read cookie file: %w", err)
	}

	var jar cookieFile
	if err := json.Unmarshal(data, &jar); err != nil {
		return false, fmt.Errorf("cookie file is corrupt: %w", err)
	}
	if len(jar.Cookies) == 0 {
		return false, nil
	}

	params := toCookieParams(jar.Cookies)

	err = s.runCDP(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return false, fmt.Errorf("failed to restore cookies: %w", err)
	}

	s.logger.Info("Restored session cookies",
		zap.Int("count", len(params)),
		zap.Time("saved_at", jar.SavedAt),
	)
	return true, nil
}

// toCookieParams converts read cookies into the settable parameter form,
// carrying the expiry across when one is set.
func toCookieParams(cookies []*network.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &expires
		}
		params = append(params, p)
	}
	return params
}
