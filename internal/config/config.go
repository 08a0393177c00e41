// Package config loads the server and CLI configuration.
//
// LAYERS (later wins):
//  1. Defaults()          sensible values for `go run ./cmd/server`
//  2. a TOML file          livecanvas.toml, or $LIVECANVAS_CONFIG, or --config
//  3. a .env file          loaded into the process environment if present
//  4. environment vars     PORT, DB_PATH, JWT_SECRET, GITHUB_*, LOG_*
//
// Secrets (JWT_SECRET, GITHUB_CLIENT_SECRET) normally only come from the
// environment so the TOML file can be committed.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/executor"
	"github.com/sakif/livecanvas/internal/input"
)

// Duration is a time.Duration written as "150ms" in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Engine    EngineConfig    `toml:"engine"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Port            int      `toml:"port"`
	TemplateDir     string   `toml:"template_dir"` // empty: the embedded copy
	StaticDir       string   `toml:"static_dir"`
	DBPath          string   `toml:"db_path"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret          string   `toml:"jwt_secret"`
	TokenTTL           Duration `toml:"token_ttl"`
	GitHubClientID     string   `toml:"github_client_id"`
	GitHubClientSecret string   `toml:"github_client_secret"`
	GitHubCallbackURL  string   `toml:"github_callback_url"`
}

// Enabled reports whether JWT auth is configured at all.
func (a AuthConfig) Enabled() bool { return a.JWTSecret != "" }

// GitHubEnabled reports whether the GitHub login flow can be offered.
func (a AuthConfig) GitHubEnabled() bool {
	return a.Enabled() && a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

type EngineConfig struct {
	Filename            string   `toml:"filename"`
	EntryPoint          string   `toml:"entry_point"`
	CanvasWidth         float64  `toml:"canvas_width"`
	CanvasHeight        float64  `toml:"canvas_height"`
	ClickPulse          Duration `toml:"click_pulse"`
	KeyPulse            Duration `toml:"key_pulse"`
	DoubleClickWindow   Duration `toml:"double_click_window"`
	DoubleClickDistance float64  `toml:"double_click_distance"`
	ConsoleScrollback   int      `toml:"console_scrollback"`
}

// Input converts the pulse settings for the input store.
func (e EngineConfig) Input() input.Config {
	return input.Config{
		ClickPulse:          e.ClickPulse.Std(),
		KeyPulse:            e.KeyPulse.Std(),
		DoubleClickWindow:   e.DoubleClickWindow.Std(),
		DoubleClickDistance: e.DoubleClickDistance,
	}
}

// Executor converts the compile/run settings for the execution service.
func (e EngineConfig) Executor() executor.Config {
	return executor.Config{Filename: e.Filename, EntryPoint: e.EntryPoint}
}

type RateLimitConfig struct {
	RunsPerSecond float64 `toml:"runs_per_second"`
	Burst         int     `toml:"burst"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json, tint
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	in := input.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:            8080,
			TemplateDir:     "",
			StaticDir:       "",
			DBPath:          "data/livecanvas.db",
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Auth: AuthConfig{
			TokenTTL: Duration(7 * 24 * time.Hour),
		},
		Engine: EngineConfig{
			Filename:            "main.star",
			EntryPoint:          "main",
			CanvasWidth:         640,
			CanvasHeight:        480,
			ClickPulse:          Duration(in.ClickPulse),
			KeyPulse:            Duration(in.KeyPulse),
			DoubleClickWindow:   Duration(in.DoubleClickWindow),
			DoubleClickDistance: in.DoubleClickDistance,
			ConsoleScrollback:   64 << 10,
		},
		RateLimit: RateLimitConfig{
			RunsPerSecond: 2,
			Burst:         5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultFile is read when no path is given and it exists.
const DefaultFile = "livecanvas.toml"

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		if p := os.Getenv("LIVECANVAS_CONFIG"); p != "" {
			path, explicit = p, true
		} else {
			path = DefaultFile
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// no config file is fine
	default:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if cfg.Auth.GitHubCallbackURL == "" {
		cfg.Auth.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return apperror.ValidationFailed("PORT", fmt.Sprintf("invalid PORT value %q", v))
		}
		cfg.Server.Port = port
	}
	setString(&cfg.Server.DBPath, "DB_PATH")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.GitHubClientID, "GITHUB_CLIENT_ID")
	setString(&cfg.Auth.GitHubClientSecret, "GITHUB_CLIENT_SECRET")
	setString(&cfg.Auth.GitHubCallbackURL, "GITHUB_CALLBACK_URL")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return apperror.ValidationFailed("server.port", fmt.Sprintf("port %d out of range", c.Server.Port))
	case c.Server.DBPath == "":
		return apperror.ValidationFailed("server.db_path", "db_path is required")
	case c.Engine.CanvasWidth <= 0 || c.Engine.CanvasHeight <= 0:
		return apperror.ValidationFailed("engine.canvas_width", "canvas size must be positive")
	case c.Engine.ClickPulse <= 0 || c.Engine.KeyPulse <= 0:
		return apperror.ValidationFailed("engine.click_pulse", "pulse durations must be positive")
	case c.Engine.DoubleClickWindow < 0 || c.Engine.DoubleClickDistance < 0:
		return apperror.ValidationFailed("engine.double_click_window", "double-click settings must not be negative")
	case c.RateLimit.RunsPerSecond <= 0 || c.RateLimit.Burst <= 0:
		return apperror.ValidationFailed("ratelimit", "rate limit must be positive")
	}
	switch c.Log.Format {
	case "text", "json", "tint":
	default:
		return apperror.ValidationFailed("log.format", fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	return nil
}
