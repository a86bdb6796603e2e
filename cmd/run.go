// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/igpilot/internal/browser"
	"github.com/xkilldash9x/igpilot/internal/config"
	"github.com/xkilldash9x/igpilot/internal/creds"
	"github.com/xkilldash9x/igpilot/internal/engage"
	"github.com/xkilldash9x/igpilot/internal/humanoid"
	"github.com/xkilldash9x/igpilot/internal/observability"
	"github.com/xkilldash9x/igpilot/internal/store"
)

// newRunCmd builds the `run` command, which executes one engagement session
// against the given target profiles.
func newRunCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run [targets...]",
		Short: "Run one engagement session against the given target profiles",
		Long: `Logs into Instagram as the configured account, visits each target
profile in order, and likes (and occasionally comments on) a bounded
number of recent posts per profile. Pacing is randomized throughout.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Flags override the config file and environment for this run only.
			flagBindings := map[string]string{
				"username": "account.username",
				"posts":    "engagement.posts_per_user",
				"like-cap": "engagement.max_likes_per_session",
				"headless": "browser.headless",
				"report":   "report.output",
			}
			for flag, key := range flagBindings {
				if cmd.Flags().Changed(flag) {
					if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
						return fmt.Errorf("failed to bind flag %q: %w", flag, err)
					}
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			cfg.Run.Targets = args
			cfg.Run.DryRun = dryRun
			return runEngagement(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringP("username", "u", "", "Instagram account username")
	cmd.Flags().Int("posts", 0, "maximum posts to open per profile")
	cmd.Flags().Int("like-cap", 0, "maximum likes for the whole session (0 = unlimited)")
	cmd.Flags().Bool("headless", true, "run the browser headless")
	cmd.Flags().String("report", "", "write a JSON run report to this file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "walk the profiles without liking or commenting")

	return cmd
}

// runEngagement wires the full stack together for one session: credentials,
// browser, pacing, history, and the engagement loop itself.
func runEngagement(ctx context.Context, cfg *config.Config) error {
	logger := observability.GetLogger()

	password, err := creds.ResolvePassword(cfg.Account.Username, logger)
	if err != nil {
		return err
	}

	session, err := browser.NewSession(ctx, cfg.Browser, logger)
	if err != nil {
		return err
	}
	if _, err := session.LoadCookies(ctx); err != nil {
		logger.Warn("Could not restore session cookies", zap.Error(err))
	}

	var history engage.History
	var historyStore *store.History
	if cfg.History.Enabled {
		historyStore, err = store.Open(ctx, cfg.History.Path, logger)
		if err != nil {
			session.Close()
			return err
		}
		history = historyStore
	}

	pacer := humanoid.New(
		humanoid.Config{ActionsPerMinute: cfg.Engagement.MaxActionsPerMinute},
		humanoid.NewCDPExecutor(session.Context()),
		logger,
	)
	driver := browser.NewDriver(session, cfg.Browser, logger)

	// closer runs exactly once per session, on every exit path. Cookies are
	// saved on a fresh context because the run context may already be dead.
	closer := func() error {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := session.SaveCookies(saveCtx); err != nil {
			logger.Warn("Could not save session cookies", zap.Error(err))
		}
		err := session.Close()
		if historyStore != nil {
			if herr := historyStore.Close(); herr != nil {
				logger.Warn("Could not close history store", zap.Error(herr))
			}
		}
		return err
	}

	eng := engage.NewSession(cfg, driver, pacer, history, closer, logger)
	rep, runErr := eng.Run(ctx, cfg.Account.Username, password, cfg.Run.Targets)

	if cfg.Report.Output != "" {
		if err := rep.Write(cfg.Report.Output); err != nil {
			logger.Error("Failed to write run report", zap.Error(err))
		} else {
			logger.Info("Wrote run report", zap.String("path", cfg.Report.Output))
		}
	}

	logger.Info("Session summary",
		zap.Int("profiles", rep.Totals.Profiles),
		zap.Int("posts_opened", rep.Totals.PostsOpened),
		zap.Int("likes", rep.Totals.Likes),
		zap.Int("comments", rep.Totals.Comments),
		zap.Int("skipped", rep.Totals.Skipped),
		zap.Bool("dry_run", rep.DryRun),
	)
	return runErr
}
