// internal/engage/session.go
package engage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/igpilot/internal/config"
	"github.com/xkilldash9x/igpilot/internal/report"
)

// Session drives one engagement run: login, the per-profile loop, and
// guaranteed teardown. All state it owns is the counters and the live
// browser handle behind the Driver; nothing is shared across goroutines.
type Session struct {
	cfg     *config.Config
	drv     Driver
	pacer   Pacer
	history History
	logger  *zap.Logger

	closer    func() error
	closeOnce sync.Once
	closeErr  error

	likesGiven   int
	commentsLeft int
}

// NewSession assembles a run. closer releases the browser session and is
// invoked exactly once, on every exit path of Run. history may be nil.
func NewSession(cfg *config.Config, drv Driver, pacer Pacer, history History, closer func() error, logger *zap.Logger) *Session {
	if closer == nil {
		closer = func() error { return nil }
	}
	return &Session{
		cfg:     cfg,
		drv:     drv,
		pacer:   pacer,
		history: history,
		closer:  closer,
		logger:  logger.Named("engage"),
	}
}

// Close releases the browser session. Safe to call more than once; only the
// first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.closer()
	})
	return s.closeErr
}

// Run executes the whole session for the given target profiles. It always
// returns a report, even when it aborts early.
func (s *Session) Run(ctx context.Context, username, password string, targets []string) (*report.Report, error) {
	rep := report.New(s.cfg.Run.DryRun)
	defer s.Close()

	if err := s.login(ctx, username, password); err != nil {
		s.logger.Error("Login failed; aborting run", zap.Error(err))
		rep.Finish(err.Error())
		return rep, err
	}

	var runErr error
	for i, target := range targets {
		pr, err := s.engageProfile(ctx, target)
		rep.Add(pr)
		if err != nil {
			s.logger.Error("Aborting run", zap.String("target", target), zap.Error(err))
			runErr = err
			break
		}

		// Longer pause between profiles than between posts.
		if i < len(targets)-1 {
			if err := s.pacer.Dwell(ctx, s.cfg.Engagement.ProfilePause.Min, s.cfg.Engagement.ProfilePause.Max); err != nil {
				runErr = classify("profile pause", err)
				break
			}
		}
	}

	abortReason := ""
	if runErr != nil {
		abortReason = runErr.Error()
	}
	rep.Finish(abortReason)

	s.logger.Info("Run finished",
		zap.Int("profiles", rep.Totals.Profiles),
		zap.Int("likes", s.likesGiven),
		zap.Int("comments", s.commentsLeft),
	)
	return rep, runErr
}

// login authenticates against the login form, or detects that restored
// cookies already hold a live session.
func (s *Session) login(ctx context.Context, username, password string) error {
	s.logger.Info("Attempting to log in", zap.String("username", username))

	if err := s.pacer.Throttle(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if err := s.drv.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	if err := s.drv.WaitVisible(ctx, selUsernameInput); err != nil {
		// A live cookie session redirects straight to the feed.
		if ok, feedErr := s.drv.Exists(ctx, selMainFeed); feedErr == nil && ok {
			s.logger.Info("Existing session detected; skipping login form")
			return s.afterLogin(ctx)
		}
		return fmt.Errorf("%w: login form never appeared: %v", ErrLoginFailed, err)
	}

	if err := s.drv.Type(ctx, selUsernameInput, username); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if err := s.pacer.CognitivePause(ctx, 400, 150); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if err := s.drv.Type(ctx, selPasswordInput, password); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if err := s.drv.Submit(ctx, selPasswordInput); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	// Wait for the feed to confirm the login went through.
	if err := s.drv.WaitVisible(ctx, selMainFeed); err != nil {
		if reason := s.challengeReason(ctx); reason != "" {
			return fmt.Errorf("%w: %s", ErrLoginFailed, reason)
		}
		return fmt.Errorf("%w: timeout while waiting for elements", ErrLoginFailed)
	}

	s.logger.Info("Successfully logged in")
	return s.afterLogin(ctx)
}

// challengeReason inspects the current URL for Instagram's verification
// interstitials, which a headless run cannot solve.
func (s *Session) challengeReason(ctx context.Context) string {
	url, err := s.drv.Location(ctx)
	if err != nil {
		return ""
	}
	switch {
	case strings.Contains(url, "challenge"):
		return "account challenge required"
	case strings.Contains(url, "two_factor"):
		return "two-factor verification required"
	}
	return ""
}

// afterLogin clears the post-login interstitials ("save login info",
// notification prompts). Best effort; a missing dialog is the good case.
func (s *Session) afterLogin(ctx context.Context) error {
	for i := 0; i < 2; i++ {
		clicked, err := s.drv.ClickButtonByText(ctx, dismissLabels...)
		if err != nil || !clicked {
			break
		}
		s.logger.Debug("Dismissed post-login dialog")
		if err := s.pacer.Dwell(ctx, s.cfg.Engagement.WaitTime.Min, s.cfg.Engagement.WaitTime.Max); err != nil {
			return err
		}
	}
	return nil
}

// engageProfile visits one profile and works through up to posts_per_user
// of its posts. Recoverable failures are recorded in the result and the
// loop moves on; only a fault aborts the run.
func (s *Session) engageProfile(ctx context.Context, username string) (report.ProfileResult, error) {
	pr := report.ProfileResult{Username: username}
	log := s.logger.With(zap.String("target", username))
	log.Info("Navigating to profile")

	if err := s.pacer.Throttle(ctx); err != nil {
		return pr, classify("visit profile", err)
	}
	if err := s.drv.Navigate(ctx, profileURL(username)); err != nil {
		se := classify("visit profile", err)
		if recoverable(se) {
			log.Error("Error accessing profile", zap.Error(err))
			pr.Errors = append(pr.Errors, se.Error())
			return pr, nil
		}
		return pr, se
	}
	if err := s.pacer.Dwell(ctx, s.cfg.Engagement.WaitTime.Min, s.cfg.Engagement.WaitTime.Max); err != nil {
		return pr, classify("visit profile", err)
	}

	links, err := s.drv.PostLinks(ctx, s.cfg.Engagement.PostsPerUser)
	if err != nil {
		se := classify("collect posts", err)
		if recoverable(se) {
			log.Error("No posts found on profile", zap.Error(err))
			pr.Errors = append(pr.Errors, se.Error())
			return pr, nil
		}
		return pr, se
	}

	for i, href := range links {
		if err := s.engagePost(ctx, username, href, &pr); err != nil {
			if !recoverable(err) {
				return pr, err
			}
			// Element missing or a broken page on one post must not stop
			// the rest of the profile.
			log.Error("Error interacting with post",
				zap.Int("post", i+1),
				zap.String("href", href),
				zap.Error(err),
			)
			pr.Errors = append(pr.Errors, err.Error())
		}
		if err := s.pacer.Dwell(ctx, s.cfg.Engagement.WaitTime.Min, s.cfg.Engagement.WaitTime.Max); err != nil {
			return pr, classify("post pause", err)
		}
	}
	return pr, nil
}

// engagePost opens a single post, likes it, sometimes comments, and closes
// it again.
func (s *Session) engagePost(ctx context.Context, username, href string, pr *report.ProfileResult) error {
	if err := s.pacer.Throttle(ctx); err != nil {
		return classify("open post", err)
	}
	if err := s.drv.Click(ctx, postAnchor(href)); err != nil {
		return classify("open post", err)
	}
	pr.PostsOpened++

	if err := s.pacer.Dwell(ctx, s.cfg.Engagement.WaitTime.Min, s.cfg.Engagement.WaitTime.Max); err != nil {
		return classify("open post", err)
	}

	if err := s.likePost(ctx, username, href, pr); err != nil {
		s.closeBestEffort(ctx)
		return err
	}

	if s.pacer.Chance(s.cfg.Engagement.CommentProbability) {
		if err := s.leaveComment(ctx, pr); err != nil {
			s.closeBestEffort(ctx)
			return err
		}
	}

	if err := s.drv.Click(ctx, selCloseButton); err != nil {
		return classify("close post", err)
	}
	return nil
}

// likePost likes the currently open post unless the session like cap is
// reached, the post was liked in an earlier run, or it is already in the
// "Unlike" state on the page.
func (s *Session) likePost(ctx context.Context, username, href string, pr *report.ProfileResult) error {
	log := s.logger.With(zap.String("target", username), zap.String("href", href))

	if s.cfg.Engagement.MaxLikesPerSession > 0 && s.likesGiven >= s.cfg.Engagement.MaxLikesPerSession {
		log.Info("Session like cap reached; skipping like")
		pr.Skipped++
		return nil
	}

	if s.history != nil {
		seen, err := s.history.Seen(ctx, postURL(href))
		if err != nil {
			// The history store is best effort.
			log.Warn("History lookup failed", zap.Error(err))
		} else if seen {
			log.Debug("Post already liked in a previous run; skipping")
			pr.Skipped++
			return nil
		}
	}

	// An "Unlike" button means the post is already liked on the account.
	if liked, err := s.drv.Exists(ctx, selUnlikeButton); err == nil && liked {
		log.Debug("Post already liked on page; skipping")
		pr.Skipped++
		s.recordLiked(ctx, username, href, log)
		return nil
	}

	if s.cfg.Run.DryRun {
		log.Info("Dry run: would like post")
		// Count against the session cap so a dry run rehearses the same
		// skip behavior as a live one.
		s.likesGiven++
		pr.Likes++
		return nil
	}

	if err := s.drv.Click(ctx, selLikeButton); err != nil {
		return classify("like post", err)
	}
	s.likesGiven++
	pr.Likes++
	log.Info("Liked post", zap.Int("session_likes", s.likesGiven))

	s.recordLiked(ctx, username, href, log)
	return nil
}

func (s *Session) recordLiked(ctx context.Context, username, href string, log *zap.Logger) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, postURL(href), username); err != nil {
		log.Warn("Failed to record like in history", zap.Error(err))
	}
}

// leaveComment types a randomly chosen canned comment into the open post.
func (s *Session) leaveComment(ctx context.Context, pr *report.ProfileResult) error {
	comment := s.pacer.Pick(s.cfg.Engagement.Comments)
	if comment == "" {
		return nil
	}

	if s.cfg.Run.DryRun {
		s.logger.Info("Dry run: would leave comment", zap.String("comment", comment))
		s.commentsLeft++
		pr.Comments++
		return nil
	}

	if err := s.drv.Click(ctx, selCommentBox); err != nil {
		return classify("leave comment", err)
	}
	if err := s.pacer.CognitivePause(ctx, 600, 200); err != nil {
		return classify("leave comment", err)
	}
	if err := s.drv.Type(ctx, selCommentBox, comment); err != nil {
		return classify("leave comment", err)
	}
	if err := s.drv.Submit(ctx, selCommentBox); err != nil {
		return classify("leave comment", err)
	}

	s.commentsLeft++
	pr.Comments++
	s.logger.Info("Left comment", zap.String("comment", comment))
	return nil
}

// closeBestEffort tries to shut the post dialog so the next post starts
// from the profile grid. Errors are deliberately dropped; the caller is
// already on an error path.
func (s *Session) closeBestEffort(ctx context.Context) {
	_ = s.drv.Click(ctx, selCloseButton)
}
