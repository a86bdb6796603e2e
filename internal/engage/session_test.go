// internal/engage/session_test.go
package engage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/igpilot/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Fakes --

// fakeDriver is a scripted stand-in for the chromedp driver. Selectors and
// URLs listed in the fail maps return their error; everything else succeeds.
type fakeDriver struct {
	failNavigate map[string]error
	failWait     map[string]error
	failClick    map[string]error
	exists       map[string]bool
	location     string
	postLinks    []string

	navigations []string
	clicks      []string
	typed       map[string]string
	submits     []string
	linkLimits  []int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		failNavigate: map[string]error{},
		failWait:     map[string]error{},
		failClick:    map[string]error{},
		exists:       map[string]bool{},
		typed:        map[string]string{},
	}
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.navigations = append(d.navigations, url)
	return d.failNavigate[url]
}

func (d *fakeDriver) WaitVisible(ctx context.Context, selector string) error {
	return d.failWait[selector]
}

func (d *fakeDriver) Click(ctx context.Context, selector string) error {
	if err := d.failClick[selector]; err != nil {
		return err
	}
	d.clicks = append(d.clicks, selector)
	return nil
}

func (d *fakeDriver) Type(ctx context.Context, selector, text string) error {
	d.typed[selector] = text
	return nil
}

func (d *fakeDriver) Submit(ctx context.Context, selector string) error {
	d.submits = append(d.submits, selector)
	return nil
}

func (d *fakeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	return d.exists[selector], nil
}

func (d *fakeDriver) Location(ctx context.Context) (string, error) {
	return d.location, nil
}

func (d *fakeDriver) PostLinks(ctx context.Context, limit int) ([]string, error) {
	d.linkLimits = append(d.linkLimits, limit)
	if limit < len(d.postLinks) {
		return d.postLinks[:limit], nil
	}
	return d.postLinks, nil
}

func (d *fakeDriver) ClickButtonByText(ctx context.Context, labels ...string) (bool, error) {
	return false, nil
}

// countClicks returns how many recorded clicks hit the given selector.
func (d *fakeDriver) countClicks(selector string) int {
	n := 0
	for _, c := range d.clicks {
		if c == selector {
			n++
		}
	}
	return n
}

// fakePacer removes all timing from the tests.
type fakePacer struct {
	chance bool
}

func (p *fakePacer) Throttle(ctx context.Context) error { return ctx.Err() }
func (p *fakePacer) Dwell(ctx context.Context, min, max time.Duration) error {
	return ctx.Err()
}
func (p *fakePacer) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	return ctx.Err()
}
func (p *fakePacer) Pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[0]
}
func (p *fakePacer) Chance(prob float64) bool { return p.chance }

// fakeHistory is an in-memory History.
type fakeHistory struct {
	seen    map[string]bool
	records []string
	seenErr error
}

func (h *fakeHistory) Seen(ctx context.Context, url string) (bool, error) {
	if h.seenErr != nil {
		return false, h.seenErr
	}
	return h.seen[url], nil
}

func (h *fakeHistory) Record(ctx context.Context, url, username string) error {
	h.records = append(h.records, url)
	return nil
}

// -- Helpers --

type testRig struct {
	drv        *fakeDriver
	pacer      *fakePacer
	cfg        *config.Config
	session    *Session
	closeCalls *int
}

func newTestRig(t *testing.T, mutate func(*config.Config, *fakeDriver)) *testRig {
	t.Helper()
	cfg := config.NewDefaultConfig()
	drv := newFakeDriver()
	drv.postLinks = []string{"/p/one/", "/p/two/", "/p/three/"}

	if mutate != nil {
		mutate(cfg, drv)
	}

	pacer := &fakePacer{}
	closeCalls := 0
	sess := NewSession(cfg, drv, pacer, nil, func() error {
		closeCalls++
		return nil
	}, zap.NewNop())

	return &testRig{drv: drv, pacer: pacer, cfg: cfg, session: sess, closeCalls: &closeCalls}
}

// -- Tests --

func TestRunHappyPath(t *testing.T) {
	rig := newTestRig(t, nil)

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice", "bob"})
	require.NoError(t, err)

	// Both profiles visited, all three posts per profile liked.
	assert.Contains(t, rig.drv.navigations, "https://www.instagram.com/alice/")
	assert.Contains(t, rig.drv.navigations, "https://www.instagram.com/bob/")
	assert.Equal(t, 2, rep.Totals.Profiles)
	assert.Equal(t, 6, rep.Totals.PostsOpened)
	assert.Equal(t, 6, rep.Totals.Likes)
	assert.Equal(t, 6, rig.drv.countClicks(selLikeButton))
	assert.Equal(t, 1, *rig.closeCalls, "cleanup must run exactly once")
}

func TestPostsPerProfileNeverExceedsLimit(t *testing.T) {
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		cfg.Engagement.PostsPerUser = 2
		drv.postLinks = []string{"/p/1/", "/p/2/", "/p/3/", "/p/4/", "/p/5/"}
	})

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.NoError(t, err)

	assert.Equal(t, []int{2}, rig.drv.linkLimits, "driver must be asked for at most posts_per_user links")
	assert.Equal(t, 2, rep.Totals.PostsOpened)
}

func TestElementMissingOnOnePostDoesNotAbort(t *testing.T) {
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		// The second post's anchor never becomes clickable.
		drv.failClick[postAnchor("/p/two/")] = context.DeadlineExceeded
	})

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice", "bob"})
	require.NoError(t, err)

	// Both profiles lose that one post but keep the other two, and the
	// second profile is still processed at all.
	require.Len(t, rep.Profiles, 2)
	for _, pr := range rep.Profiles {
		assert.Equal(t, 2, pr.PostsOpened)
		require.Len(t, pr.Errors, 1)
		assert.Contains(t, pr.Errors[0], "element_missing")
	}
	assert.Equal(t, 1, *rig.closeCalls)
}

func TestLikeButtonMissingStillClosesAndContinues(t *testing.T) {
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		drv.failClick[selLikeButton] = context.DeadlineExceeded
	})

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Totals.PostsOpened)
	assert.Equal(t, 0, rep.Totals.Likes)
	assert.Len(t, rep.Profiles[0].Errors, 3)
	// The dialog is still closed on the error path so the next post can open.
	assert.Equal(t, 3, rig.drv.countClicks(selCloseButton))
}

func TestLoginFailureVisitsNoProfiles(t *testing.T) {
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		drv.failWait[selUsernameInput] = context.DeadlineExceeded
	})

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice", "bob"})
	require.ErrorIs(t, err, ErrLoginFailed)

	// Only the login page was ever visited.
	assert.Equal(t, []string{loginURL}, rig.drv.navigations)
	assert.Empty(t, rep.Profiles)
	assert.NotEmpty(t, rep.Aborted)
	assert.Equal(t, 1, *rig.closeCalls, "cleanup must still run after a login failure")
}

func TestLoginDetectsChallenge(t *testing.T) {
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		drv.failWait[selMainFeed] = context.DeadlineExceeded
		drv.location = "https://www.instagram.com/challenge/action/"
	})

	_, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.ErrorIs(t, err, ErrLoginFailed)
	assert.Contains(t, err.Error(), "challenge")
}

func TestExistingCookieSessionSkipsLoginForm(t *testing.T) {
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		// Login form never renders because we are already logged in.
		drv.failWait[selUsernameInput] = context.DeadlineExceeded
		drv.exists[selMainFeed] = true
	})

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Totals.Profiles)
	assert.Empty(t, rig.drv.typed, "no credentials should be typed into a live session")
}

func TestFaultAbortsRun(t *testing.T) {
	bobURL := "https://www.instagram.com/bob/"
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		drv.failNavigate[bobURL] = errors.New("websocket: close 1006")
	})

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice", "bob", "carol"})
	require.Error(t, err)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindFault, se.Kind)

	// alice completed, bob aborted the run, carol was never reached.
	assert.Len(t, rep.Profiles, 2)
	assert.NotContains(t, rig.drv.navigations, "https://www.instagram.com/carol/")
	assert.Equal(t, 1, *rig.closeCalls)
}

func TestNavigationErrorOnProfileIsSkipped(t *testing.T) {
	bobURL := "https://www.instagram.com/bob/"
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		drv.failNavigate[bobURL] = errors.New("page load error net::ERR_NAME_NOT_RESOLVED")
	})

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"bob", "carol"})
	require.NoError(t, err)

	require.Len(t, rep.Profiles, 2)
	assert.Equal(t, 0, rep.Profiles[0].PostsOpened)
	assert.Len(t, rep.Profiles[0].Errors, 1)
	assert.Equal(t, 3, rep.Profiles[1].PostsOpened, "a dead profile must not stop the next one")
}

func TestLikeCapIsEnforced(t *testing.T) {
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		cfg.Engagement.MaxLikesPerSession = 2
	})

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Totals.Likes)
	assert.Equal(t, 1, rep.Totals.Skipped)
	assert.Equal(t, 3, rep.Totals.PostsOpened, "capped posts are still visited")
	assert.Equal(t, 2, rig.drv.countClicks(selLikeButton))
}

func TestCommentProbabilityEdges(t *testing.T) {
	t.Run("never comments at probability zero", func(t *testing.T) {
		rig := newTestRig(t, nil)
		rig.pacer.chance = false

		rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
		require.NoError(t, err)
		assert.Equal(t, 0, rep.Totals.Comments)
		assert.Empty(t, rig.drv.typed[selCommentBox])
	})

	t.Run("always comments at probability one", func(t *testing.T) {
		rig := newTestRig(t, nil)
		rig.pacer.chance = true

		rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
		require.NoError(t, err)
		assert.Equal(t, 3, rep.Totals.Comments)
		// fakePacer.Pick returns the first pool entry.
		assert.Equal(t, rig.cfg.Engagement.Comments[0], rig.drv.typed[selCommentBox])
		assert.Contains(t, rig.drv.submits, selCommentBox)
	})
}

func TestAlreadyLikedOnPageIsSkipped(t *testing.T) {
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		drv.exists[selUnlikeButton] = true
	})
	hist := &fakeHistory{seen: map[string]bool{}}
	rig.session.history = hist

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.NoError(t, err)

	assert.Equal(t, 0, rep.Totals.Likes)
	assert.Equal(t, 3, rep.Totals.Skipped)
	assert.Zero(t, rig.drv.countClicks(selLikeButton))
	// Page state is still mirrored into the history store.
	assert.Len(t, hist.records, 3)
}

func TestHistorySeenSkipsLike(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.session.history = &fakeHistory{seen: map[string]bool{
		postURL("/p/one/"): true,
	}}

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Totals.Likes)
	assert.Equal(t, 1, rep.Totals.Skipped)
}

func TestHistoryErrorsAreNotFatal(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.session.history = &fakeHistory{seenErr: errors.New("database is locked")}

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Totals.Likes, "a broken history store must not stop engagement")
}

func TestDryRunTouchesNothing(t *testing.T) {
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		cfg.Run.DryRun = true
	})
	rig.pacer.chance = true

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.NoError(t, err)

	assert.True(t, rep.DryRun)
	assert.Equal(t, 3, rep.Totals.Likes, "dry run still reports what it would do")
	assert.Equal(t, 3, rep.Totals.Comments)
	assert.Zero(t, rig.drv.countClicks(selLikeButton))
	assert.Empty(t, rig.drv.typed[selCommentBox])
}

func TestDryRunRehearsesLikeCap(t *testing.T) {
	rig := newTestRig(t, func(cfg *config.Config, drv *fakeDriver) {
		cfg.Run.DryRun = true
		cfg.Engagement.MaxLikesPerSession = 2
	})

	rep, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.NoError(t, err)

	// A dry run previews the same cap behavior as a live one.
	assert.Equal(t, 2, rep.Totals.Likes)
	assert.Equal(t, 1, rep.Totals.Skipped)
	assert.Equal(t, 3, rep.Totals.PostsOpened)
	assert.Zero(t, rig.drv.countClicks(selLikeButton), "dry run must not click anything")
}

func TestCloseIsIdempotent(t *testing.T) {
	rig := newTestRig(t, nil)

	_, err := rig.session.Run(context.Background(), "tester", "pw", []string{"alice"})
	require.NoError(t, err)
	require.NoError(t, rig.session.Close())
	require.NoError(t, rig.session.Close())

	assert.Equal(t, 1, *rig.closeCalls, "Close must only release the session once")
}

func TestCancelledContextAborts(t *testing.T) {
	rig := newTestRig(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rig.session.Run(ctx, "tester", "pw", []string{"alice"})
	require.ErrorIs(t, err, ErrLoginFailed)
	assert.Equal(t, 1, *rig.closeCalls)
}

// -- Error taxonomy --

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline is element missing", context.DeadlineExceeded, KindElementMissing},
		{"cancellation is a fault", context.Canceled, KindFault},
		{"chromium net error is navigation", errors.New("page load error net::ERR_CONNECTION_RESET"), KindNavigation},
		{"anything else is a fault", errors.New("websocket: close 1006"), KindFault},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			se := classify("step", tc.err)
			assert.Equal(t, tc.want, se.Kind)
			assert.ErrorIs(t, se, tc.err, "StepError must unwrap to the cause")
		})
	}
}

func TestRecoverable(t *testing.T) {
	assert.True(t, recoverable(classify("x", context.DeadlineExceeded)))
	assert.False(t, recoverable(classify("x", context.Canceled)))
	assert.False(t, recoverable(errors.New("bare error")))
}
