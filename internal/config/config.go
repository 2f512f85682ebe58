// Package config loads agent settings from defaults, an optional TOML file
// and HUDDLE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as "30s" or "5m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	ListenAddr   string             `toml:"listen_addr"`
	DBPath       string             `toml:"db_path"`
	Log          LogConfig          `toml:"log"`
	Remote       RemoteConfig       `toml:"remote"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Assets       AssetsConfig       `toml:"assets"`
	Calendar     CalendarConfig     `toml:"calendar"`
	Mirror       MirrorConfig       `toml:"mirror"`
	WebSocket    WebSocketConfig    `toml:"websocket"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type RemoteConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
	// Token is a fallback ID token for requests that carry none.
	Token string `toml:"token"`
	// FetchLimit caps concurrent fan-out fetches; 0 means no cap.
	FetchLimit int `toml:"fetch_limit"`
}

type ConnectivityConfig struct {
	ProbeURL string   `toml:"probe_url"`
	Interval Duration `toml:"interval"`
}

type AssetsConfig struct {
	Timeout Duration `toml:"timeout"`
	S3      S3Config `toml:"s3"`
}

type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

type CalendarConfig struct {
	Dir      string   `toml:"dir"`
	Reminder Duration `toml:"reminder"`
}

type MirrorConfig struct {
	ReadLimit int `toml:"read_limit"`
}

type WebSocketConfig struct {
	// OriginPatterns lists the cross-origin hosts, such as a UI dev
	// server, allowed to open /ws. Same-origin is always allowed.
	OriginPatterns []string `toml:"origin_patterns"`
}

func Default() Config {
	return Config{
		ListenAddr: "127.0.0.1:8420",
		DBPath:     "huddle.db",
		Log:        LogConfig{Level: "info", Format: "auto"},
		Remote: RemoteConfig{
			BaseURL:    "http://localhost:9000",
			Timeout:    Duration{10 * time.Second},
			FetchLimit: 16,
		},
		Connectivity: ConnectivityConfig{Interval: Duration{30 * time.Second}},
		Assets:       AssetsConfig{Timeout: Duration{30 * time.Second}, S3: S3Config{Region: "us-east-1"}},
		Calendar:     CalendarConfig{Dir: "calendar", Reminder: Duration{30 * time.Minute}},
		Mirror:       MirrorConfig{ReadLimit: 500},
	}
}

// Load builds the configuration. A path that is set but unreadable or
// invalid fails the load; unknown keys are only warned about.
func Load(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("unknown config keys ignored", "path", path, "keys", keys)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if cfg.Connectivity.ProbeURL == "" && cfg.Remote.BaseURL != "" {
		cfg.Connectivity.ProbeURL = strings.TrimRight(cfg.Remote.BaseURL, "/") + "/health"
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		if v, ok := lookup(key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
		return nil
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}

	str("HUDDLE_LISTEN_ADDR", &cfg.ListenAddr)
	str("HUDDLE_DB_PATH", &cfg.DBPath)
	str("HUDDLE_LOG_LEVEL", &cfg.Log.Level)
	str("HUDDLE_LOG_FORMAT", &cfg.Log.Format)
	str("HUDDLE_REMOTE_URL", &cfg.Remote.BaseURL)
	str("HUDDLE_REMOTE_TOKEN", &cfg.Remote.Token)
	str("HUDDLE_PROBE_URL", &cfg.Connectivity.ProbeURL)
	str("HUDDLE_S3_ENDPOINT", &cfg.Assets.S3.Endpoint)
	str("HUDDLE_S3_BUCKET", &cfg.Assets.S3.Bucket)
	str("HUDDLE_S3_REGION", &cfg.Assets.S3.Region)
	str("HUDDLE_S3_ACCESS_KEY", &cfg.Assets.S3.AccessKey)
	str("HUDDLE_S3_SECRET_KEY", &cfg.Assets.S3.SecretKey)
	str("HUDDLE_CALENDAR_DIR", &cfg.Calendar.Dir)
	if v, ok := lookup("HUDDLE_WS_ORIGINS"); ok {
		cfg.WebSocket.OriginPatterns = splitList(v)
	}

	return errors.Join(
		dur("HUDDLE_REMOTE_TIMEOUT", &cfg.Remote.Timeout),
		dur("HUDDLE_PROBE_INTERVAL", &cfg.Connectivity.Interval),
		dur("HUDDLE_CALENDAR_REMINDER", &cfg.Calendar.Reminder),
		num("HUDDLE_FETCH_LIMIT", &cfg.Remote.FetchLimit),
		num("HUDDLE_MIRROR_READ_LIMIT", &cfg.Mirror.ReadLimit),
	)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the fields the agent cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if u, err := url.Parse(c.Remote.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("remote.base_url %q must be an http(s) URL", c.Remote.BaseURL))
	}
	if c.Remote.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("remote.timeout must be positive"))
	}
	if c.Connectivity.Interval.Duration <= 0 {
		errs = append(errs, errors.New("connectivity.interval must be positive"))
	}
	if c.Remote.FetchLimit < 0 {
		errs = append(errs, errors.New("remote.fetch_limit must not be negative"))
	}
	if r := c.Calendar.Reminder.Duration; r < 0 {
		errs = append(errs, errors.New("calendar.reminder must not be negative"))
	} else if r > 0 && r < time.Minute {
		errs = append(errs, fmt.Errorf("calendar.reminder %s must be zero or at least 1m", r))
	}
	for _, p := range c.WebSocket.OriginPatterns {
		if _, err := path.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("websocket.origin_patterns %q: %w", p, err))
		}
	}
	s3 := c.Assets.S3
	if (s3.AccessKey == "") != (s3.SecretKey == "") {
		errs = append(errs, errors.New("assets.s3.access_key and secret_key must be set together"))
	}
	return errors.Join(errs...)
}
