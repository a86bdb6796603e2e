// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Engagement EngagementConfig `mapstructure:"engagement" yaml:"engagement"`
	Account    AccountConfig    `mapstructure:"account" yaml:"account"`
	History    HistoryConfig    `mapstructure:"history" yaml:"history"`
	Report     ReportConfig     `mapstructure:"report" yaml:"report"`
	// Run gets its marching orders from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless bool     `mapstructure:"headless" yaml:"headless"`
	Debug    bool     `mapstructure:"debug" yaml:"debug"`
	Args     []string `mapstructure:"args" yaml:"args"`
	// UserDataDir, when set, persists the Chrome profile between runs so
	// Instagram sessions survive restarts.
	UserDataDir string `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	// CookieFile stores session cookies outside the profile so a headless run
	// can reuse a previous login.
	CookieFile        string        `mapstructure:"cookie_file" yaml:"cookie_file"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// ElementWait is the ceiling for waiting on any single element to appear.
	ElementWait time.Duration `mapstructure:"element_wait" yaml:"element_wait"`
}

// DelayRange bounds a uniform-random pause.
type DelayRange struct {
	Min time.Duration `mapstructure:"min" yaml:"min"`
	Max time.Duration `mapstructure:"max" yaml:"max"`
}

// EngagementConfig tunes how the bot interacts with target profiles.
type EngagementConfig struct {
	// WaitTime bounds the pause between individual interaction steps.
	WaitTime DelayRange `mapstructure:"wait_time" yaml:"wait_time"`
	// ProfilePause bounds the longer pause between target profiles.
	ProfilePause DelayRange `mapstructure:"profile_pause" yaml:"profile_pause"`
	// PostsPerUser caps how many posts are opened on each profile.
	PostsPerUser int `mapstructure:"posts_per_user" yaml:"posts_per_user"`
	// MaxLikesPerSession caps the total likes given in a single run.
	// Once reached, posts are still visited but no longer liked.
	MaxLikesPerSession int `mapstructure:"max_likes_per_session" yaml:"max_likes_per_session"`
	// Comments is the pool of canned comments to pick from.
	Comments []string `mapstructure:"comments" yaml:"comments"`
	// CommentProbability is the chance (0..1) of commenting on a liked post.
	CommentProbability float64 `mapstructure:"comment_probability" yaml:"comment_probability"`
	// MaxActionsPerMinute is a hard rate cap on browser interactions,
	// independent of the randomized pacing.
	MaxActionsPerMinute float64 `mapstructure:"max_actions_per_minute" yaml:"max_actions_per_minute"`
}

// AccountConfig identifies the account the bot runs as. The password is never
// stored in the config file; see internal/creds.
type AccountConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
}

// HistoryConfig configures the on-disk record of already-liked posts.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ReportConfig controls the JSON run summary.
type ReportConfig struct {
	// Output is the file path for the run report. Empty disables it.
	Output string `mapstructure:"output" yaml:"output"`
}

// RunConfig holds settings populated from CLI flags for a specific run.
type RunConfig struct {
	Targets []string
	DryRun  bool
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "igpilot")
	v.SetDefault("logger.log_file", "igpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.cookie_file", "")
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.element_wait", "10s")

	// -- Engagement --
	v.SetDefault("engagement.wait_time.min", "2s")
	v.SetDefault("engagement.wait_time.max", "4s")
	v.SetDefault("engagement.profile_pause.min", "4s")
	v.SetDefault("engagement.profile_pause.max", "7s")
	v.SetDefault("engagement.posts_per_user", 3)
	v.SetDefault("engagement.max_likes_per_session", 50)
	v.SetDefault("engagement.comments", []string{
		"Great post! 👍",
		"Amazing! 🔥",
		"Love this! ❤️",
		"Awesome content! ✨",
	})
	v.SetDefault("engagement.comment_probability", 0.2)
	v.SetDefault("engagement.max_actions_per_minute", 20.0)

	// -- History --
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "igpilot.db")

	// -- Report --
	v.SetDefault("report.output", "")
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Engagement.Validate(); err != nil {
		return fmt.Errorf("engagement configuration invalid: %w", err)
	}
	if c.Browser.ElementWait <= 0 {
		return fmt.Errorf("browser.element_wait must be a positive duration")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the engagement settings.
func (e *EngagementConfig) Validate() error {
	if err := e.WaitTime.Validate("wait_time"); err != nil {
		return err
	}
	if err := e.ProfilePause.Validate("profile_pause"); err != nil {
		return err
	}
	if e.PostsPerUser < 0 {
		return fmt.Errorf("posts_per_user must not be negative")
	}
	if e.MaxLikesPerSession < 0 {
		return fmt.Errorf("max_likes_per_session must not be negative")
	}
	if e.CommentProbability < 0.0 || e.CommentProbability > 1.0 {
		return fmt.Errorf("comment_probability must be between 0.0 and 1.0")
	}
	if e.CommentProbability > 0.0 && len(e.Comments) == 0 {
		return fmt.Errorf("comments must not be empty when comment_probability is positive")
	}
	if e.MaxActionsPerMinute <= 0 {
		return fmt.Errorf("max_actions_per_minute must be positive")
	}
	return nil
}

// Validate checks that the range is well formed.
func (r *DelayRange) Validate(name string) error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("%s bounds must not be negative", name)
	}
	if r.Min > r.Max {
		return fmt.Errorf("%s.min must not exceed %s.max", name, name)
	}
	return nil
}
