package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile      = "config.yaml"
	DefaultSourcePath      = "posts.csv"
	DefaultStatePath       = "state.json"
	DefaultDBPath          = ".autoposter/autoposter.db"
	DefaultBackend         = BackendFile
	DefaultRetainDays      = 365
	DefaultHost            = "https://bsky.social"
	DefaultHandleEnv       = "BLUESKY_HANDLE"
	DefaultAppPasswordEnv  = "BLUESKY_APP_PASSWORD"
	DefaultTimeout         = 30 * time.Second
	DefaultMinInterval     = time.Second
	DefaultMaxLength       = 300
	DefaultSeparator       = "\n\n"
	DefaultMarker          = "…"
	DefaultGitRemote       = "origin"
	DefaultGitUsernameEnv  = "GITHUB_ACTOR"
	DefaultGitTokenEnv     = "GITHUB_TOKEN"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	maxPostLengthSupported = 3000
)

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Source  SourceConfig  `yaml:"source"`
	State   StateConfig   `yaml:"state"`
	Bluesky BlueskyConfig `yaml:"bluesky"`
	Format  FormatConfig  `yaml:"format"`
	Privacy PrivacyConfig `yaml:"privacy"`
	Log     LogConfig     `yaml:"log"`

	// Dir is the directory the config was loaded from; relative paths are
	// resolved against it.
	Dir string `yaml:"-"`
}

type SourceConfig struct {
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet"` // xlsx only
}

type StateConfig struct {
	Backend    string    `yaml:"backend"`
	Path       string    `yaml:"path"`
	RetainDays int       `yaml:"retain_days"` // sqlite history retention, 0 keeps forever
	Git        GitConfig `yaml:"git"`
}

type GitConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Push        bool   `yaml:"push"`
	Remote      string `yaml:"remote"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	UsernameEnv string `yaml:"username_env"`
	TokenEnv    string `yaml:"token_env"`

	// Resolved from env vars at load time.
	Username string `yaml:"-"`
	Token    string `yaml:"-"`
}

type BlueskyConfig struct {
	Host           string   `yaml:"host"`
	HandleEnv      string   `yaml:"handle_env"`
	AppPasswordEnv string   `yaml:"app_password_env"`
	Timeout        Duration `yaml:"timeout"`
	MinInterval    Duration `yaml:"min_interval"`
	Langs          []string `yaml:"langs"`

	// Resolved from env vars at load time.
	Handle      string `yaml:"-"`
	AppPassword string `yaml:"-"`
}

type FormatConfig struct {
	MaxLength        int    `yaml:"max_length"`
	Separator        string `yaml:"separator"`
	TruncationMarker string `yaml:"truncation_marker"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Patterns []string `yaml:"patterns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and
// validates. A missing config.yaml is not an error: the scheduled run needs
// nothing but the two credential env vars.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	// Preset so that an explicit retain_days: 0 survives decoding and
	// means keep history forever.
	cfg := Config{State: StateConfig{RetainDays: DefaultRetainDays}}
	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.Dir = dir

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Exists reports whether dir holds a config file.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, DefaultConfigFile))
	return err == nil
}

// Resolve makes a configured path absolute-or-relative to the config dir.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir == "" || c.Dir == "." {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// SourcePath is the resolved post list location.
func (c *Config) SourcePath() string {
	return c.Resolve(c.Source.Path)
}

// StatePath is the resolved state file or database location.
func (c *Config) StatePath() string {
	return c.Resolve(c.State.Path)
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Path == "" {
		cfg.Source.Path = DefaultSourcePath
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = DefaultBackend
	}
	if cfg.State.Path == "" {
		cfg.State.Path = DefaultStatePath
		if cfg.State.Backend == BackendSQLite {
			cfg.State.Path = DefaultDBPath
		}
	}
	if cfg.State.Git.Remote == "" {
		cfg.State.Git.Remote = DefaultGitRemote
	}
	if cfg.State.Git.UsernameEnv == "" {
		cfg.State.Git.UsernameEnv = DefaultGitUsernameEnv
	}
	if cfg.State.Git.TokenEnv == "" {
		cfg.State.Git.TokenEnv = DefaultGitTokenEnv
	}
	if cfg.Bluesky.Host == "" {
		cfg.Bluesky.Host = DefaultHost
	}
	if cfg.Bluesky.HandleEnv == "" {
		cfg.Bluesky.HandleEnv = DefaultHandleEnv
	}
	if cfg.Bluesky.AppPasswordEnv == "" {
		cfg.Bluesky.AppPasswordEnv = DefaultAppPasswordEnv
	}
	if cfg.Bluesky.Timeout.Duration == 0 {
		cfg.Bluesky.Timeout.Duration = DefaultTimeout
	}
	if cfg.Bluesky.MinInterval.Duration == 0 {
		cfg.Bluesky.MinInterval.Duration = DefaultMinInterval
	}
	if cfg.Format.MaxLength == 0 {
		cfg.Format.MaxLength = DefaultMaxLength
	}
	if cfg.Format.Separator == "" {
		cfg.Format.Separator = DefaultSeparator
	}
	if cfg.Format.TruncationMarker == "" {
		cfg.Format.TruncationMarker = DefaultMarker
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) {
	cfg.Bluesky.Handle = strings.TrimSpace(os.Getenv(cfg.Bluesky.HandleEnv))
	cfg.Bluesky.AppPassword = os.Getenv(cfg.Bluesky.AppPasswordEnv)
	cfg.State.Git.Username = os.Getenv(cfg.State.Git.UsernameEnv)
	cfg.State.Git.Token = os.Getenv(cfg.State.Git.TokenEnv)
	if cfg.State.Git.AuthorName == "" {
		cfg.State.Git.AuthorName = cfg.State.Git.Username
	}
}

// validate checks static settings only. Credentials are checked where they
// are needed so that previews and doctor work without them.
func validate(cfg *Config) error {
	switch cfg.State.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("state.backend: unknown backend %q (want file or sqlite)", cfg.State.Backend)
	}
	if cfg.State.Git.Enabled && cfg.State.Backend != BackendFile {
		return errors.New("state.git: git sync requires the file backend")
	}
	if cfg.State.RetainDays < 0 {
		return fmt.Errorf("state.retain_days: must not be negative, got %d", cfg.State.RetainDays)
	}

	u, err := url.Parse(cfg.Bluesky.Host)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("bluesky.host: invalid url %q", cfg.Bluesky.Host)
	}
	if cfg.Bluesky.Timeout.Duration < 0 {
		return errors.New("bluesky.timeout: must be positive")
	}
	if cfg.Bluesky.MinInterval.Duration < 0 {
		return errors.New("bluesky.min_interval: must not be negative")
	}

	if cfg.Format.MaxLength < 0 || cfg.Format.MaxLength > maxPostLengthSupported {
		return fmt.Errorf("format.max_length: %d out of range (1-%d)", cfg.Format.MaxLength, maxPostLengthSupported)
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Log.Format)
	}

	return nil
}

// CheckCredentials reports which credential env vars are unset.
func (c *Config) CheckCredentials() error {
	var missing []string
	if c.Bluesky.Handle == "" {
		missing = append(missing, c.Bluesky.HandleEnv)
	}
	if c.Bluesky.AppPassword == "" {
		missing = append(missing, c.Bluesky.AppPasswordEnv)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: set %s", strings.Join(missing, " and "))
	}
	return nil
}

// ParseLevel maps a log level name (debug, info, warn, error) onto slog.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q (want debug, info, warn or error)", s)
	}
	return level, nil
}
