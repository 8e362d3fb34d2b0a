// Package config holds the run configuration and a few global settings
// shared across packages.
package config

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Debug indicates whether the application is run in debug mode.
var Debug = false

type ctxKey string

// LoggerCtxKey is the key that is used to pass a logger through a context.Context.
const LoggerCtxKey ctxKey = "logger"

func GetLogLevel() slog.Level {
	if Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Config defines the overall run configuration. Values are taken from a
// config yml file or environment variables or both.
type Config struct {
	TargetURL       string `yaml:"target_url" env:"FEEDSNAP_TARGET_URL"`
	MaxPosts        int    `yaml:"max_posts" env:"FEEDSNAP_MAX_POSTS" env-default:"20"`
	IntervalMinutes int    `yaml:"interval_minutes" env:"FEEDSNAP_INTERVAL_MINUTES" env-default:"30"`
	FastMode        bool   `yaml:"fast_mode" env:"FEEDSNAP_FAST_MODE"`
	Headless        bool   `yaml:"headless" env:"FEEDSNAP_HEADLESS" env-default:"true"`
	ScreenshotDir   string `yaml:"screenshot_dir" env:"FEEDSNAP_SCREENSHOT_DIR" env-default:"screenshots"`
	DBPath          string `yaml:"db_path" env:"FEEDSNAP_DB_PATH" env-default:"feedsnap.db"`
	ExportPath      string `yaml:"export_path" env:"FEEDSNAP_EXPORT_PATH"`
	UserAgent       string `yaml:"user_agent" env:"FEEDSNAP_USER_AGENT"`
}

// NewConfig reads the configuration from the given file, falling back to
// environment variables only if the file does not exist.
func NewConfig(configPath string) (*Config, error) {
	var config Config
	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &config); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}
	return &config, nil
}

// Validate checks the parts of the configuration that have no usable default.
func (c *Config) Validate() error {
	if c.TargetURL == "" {
		return fmt.Errorf("target_url must be set")
	}
	if !strings.HasPrefix(c.TargetURL, "http://") && !strings.HasPrefix(c.TargetURL, "https://") {
		return fmt.Errorf("target_url must be an absolute http(s) url, got %q", c.TargetURL)
	}
	if c.MaxPosts <= 0 {
		c.MaxPosts = 20
	}
	return nil
}

// Profile bundles the timing parameters of a run. Fast mode shrinks all
// waits at the cost of a higher detection risk.
type Profile struct {
	PageLoadWait  time.Duration
	ScrollPause   time.Duration
	SettleWait    time.Duration
	ClickDelay    time.Duration
	StartupWait   time.Duration
	ActionsPerSec float64
}

func DefaultProfile() Profile {
	return Profile{
		PageLoadWait:  3 * time.Second,
		ScrollPause:   1500 * time.Millisecond,
		SettleWait:    1500 * time.Millisecond,
		ClickDelay:    500 * time.Millisecond,
		StartupWait:   15 * time.Second,
		ActionsPerSec: 2,
	}
}

func FastProfile() Profile {
	return Profile{
		PageLoadWait:  1 * time.Second,
		ScrollPause:   300 * time.Millisecond,
		SettleWait:    300 * time.Millisecond,
		ClickDelay:    100 * time.Millisecond,
		StartupWait:   5 * time.Second,
		ActionsPerSec: 10,
	}
}

// ProfileFor returns the timing profile matching the config.
func (c *Config) ProfileFor() Profile {
	if c.FastMode {
		return FastProfile()
	}
	return DefaultProfile()
}

// Jitter returns d scaled by a uniform random factor in [0.75, 1.25) so that
// repeated waits don't form a regular pattern.
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	f := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * f)
}
