package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"eventmap/internal/civiltime"
	"eventmap/internal/model"
)

// EnvPrefix is prepended to every environment override (EVENTMAP_LISTEN, ...).
const EnvPrefix = "EVENTMAP_"

// FeedsConfig locates the three input feeds. Each value is an http(s) URL or
// a local file path.
type FeedsConfig struct {
	Events    string `yaml:"events" json:"events"`
	Locations string `yaml:"locations" json:"locations"`
	Tags      string `yaml:"tags" json:"tags"`
	// CacheDir holds ETag/Last-Modified metadata and bodies for URL feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// WindowConfig is the application-wide date bound. Events with no
// occurrence inside it are dropped at ingestion.
type WindowConfig struct {
	Start civiltime.Date `yaml:"start" json:"start"`
	End   civiltime.Date `yaml:"end" json:"end"`
}

// MapConfig tunes the projection and the embedded map page.
type MapConfig struct {
	// MaxMarkers caps markers per render pass; extra locations are dropped
	// with a warning.
	MaxMarkers int `yaml:"max_markers" json:"max_markers"`
	// MaxTags caps the ranked tag list shown in the filter panel.
	MaxTags int `yaml:"max_tags" json:"max_tags"`
	// DefaultSpanDays is the length of the initial date range.
	DefaultSpanDays    int           `yaml:"default_span_days" json:"default_span_days"`
	DefaultMarkerColor model.Color   `yaml:"default_marker_color" json:"default_marker_color"`
	Palette            []model.Color `yaml:"palette" json:"palette"`
	Center             [2]float64    `yaml:"center" json:"center"`
	Zoom               int           `yaml:"zoom" json:"zoom"`
	TileURL            string        `yaml:"tile_url" json:"tile_url"`
}

// RateLimitConfig bounds /api requests with a token bucket. RPS <= 0
// disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" json:"rps"`
	Burst int     `yaml:"burst" json:"burst"`
}

// CaptureConfig controls headless-browser snapshots of the map page.
type CaptureConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Output  string `yaml:"output" json:"output"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone selects the civil-time policy. Empty (default) uses the
	// built-in US Eastern DST rule; any other IANA name uses the tz database.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule string (e.g. "0 * * * *") used to
	// reload the feeds. Empty disables periodic reloads.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Feeds     FeedsConfig     `yaml:"feeds" json:"feeds"`
	Window    WindowConfig    `yaml:"window" json:"window"`
	Map       MapConfig       `yaml:"map" json:"map"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Capture   CaptureConfig   `yaml:"capture" json:"capture"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultPalette is cycled over tags that have no configured color.
var DefaultPalette = []model.Color{
	model.Solid("#FF6B6B"), model.Solid("#4ECDC4"), model.Solid("#45B7D1"), model.Solid("#FED766"),
	model.Solid("#2AB7CA"), model.Solid("#F0B67F"), model.Solid("#8A6FBF"), model.Solid("#F9A828"),
	model.Solid("#C1E1A6"), model.Solid("#FF8C94"), model.Solid("#A1C3D1"), model.Solid("#B39BC8"),
	model.Solid("#F3EAC2"), model.Solid("#F7A6B4"), model.Solid("#5D5C61"), model.Solid("#FFD166"),
	model.Solid("#06D6A0"), model.Solid("#118AB2"), model.Solid("#EF476F"), model.Solid("#073B4C"),
}

const (
	defaultListen     = "127.0.0.1:8080"
	defaultRefresh    = "0 * * * *"
	defaultMaxMarkers = 500
	defaultMaxTags    = 100
	defaultSpanDays   = 14
	defaultWindowDays = 183
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Listen:      defaultListen,
		LogLevel:    "info",
		RefreshCron: defaultRefresh,
		Feeds: FeedsConfig{
			Events:    "./data/events.json",
			Locations: "./data/locations.json",
			Tags:      "./data/tags.json",
			CacheDir:  "./var/feed-cache",
		},
		Map: MapConfig{
			MaxMarkers:         defaultMaxMarkers,
			MaxTags:            defaultMaxTags,
			DefaultSpanDays:    defaultSpanDays,
			DefaultMarkerColor: model.Solid("#757575"),
			Palette:            append([]model.Color(nil), DefaultPalette...),
			Center:             [2]float64{40.6782, -73.9442},
			Zoom:               12,
			TileURL:            "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png",
		},
		RateLimit: RateLimitConfig{RPS: 20, Burst: 40},
		Capture: CaptureConfig{
			Output: "./var/preview.png",
			Width:  1280,
			Height: 800,
		},
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Feeds.CacheDir == "" {
		c.Feeds.CacheDir = "./var/feed-cache"
	}
	if c.Window.Start.IsZero() {
		today := civiltime.DateOf(time.Now(), civiltime.Eastern)
		c.Window.Start = civiltime.Date{Year: today.Year, Month: today.Month, Day: 1}
	}
	if c.Window.End.IsZero() {
		c.Window.End = c.Window.Start.AddDays(defaultWindowDays)
	}
	if c.Map.MaxMarkers <= 0 {
		c.Map.MaxMarkers = defaultMaxMarkers
	}
	if c.Map.MaxTags <= 0 {
		c.Map.MaxTags = defaultMaxTags
	}
	if c.Map.DefaultSpanDays <= 0 {
		c.Map.DefaultSpanDays = defaultSpanDays
	}
	if c.Map.DefaultMarkerColor.IsZero() {
		c.Map.DefaultMarkerColor = model.Solid("#757575")
	}
	if len(c.Map.Palette) == 0 {
		c.Map.Palette = append([]model.Color(nil), DefaultPalette...)
	}
	if c.Map.Zoom <= 0 {
		c.Map.Zoom = 12
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RPS) + 1
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = 1280
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 800
	}
	if c.Capture.Output == "" {
		c.Capture.Output = "./var/preview.png"
	}
}

// Validate reports configuration that cannot work at all.
func (c *Config) Validate() error {
	var errs []error
	if c.Feeds.Events == "" || c.Feeds.Locations == "" || c.Feeds.Tags == "" {
		errs = append(errs, errors.New("feeds: events, locations and tags are all required"))
	}
	if c.Window.End.Before(c.Window.Start) {
		errs = append(errs, fmt.Errorf("window: end %s is before start %s", c.Window.End, c.Window.Start))
	}
	if _, err := civiltime.ResolveZone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Zone resolves the configured civil-time policy.
func (c *Config) Zone() (civiltime.Zone, error) {
	return civiltime.ResolveZone(c.Timezone)
}

// Load loads configuration from the given YAML path and applies EVENTMAP_*
// environment overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config (plus env overrides)
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - apply env overrides, then normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			if err := applyEnv(cfg); err != nil {
				return nil, err
			}
			cfg.Normalize()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// envOverlay lists the settings that may come from the environment. Only
// variables that are present override the YAML values.
type envOverlay struct {
	Listen        string         `env:"LISTEN"`
	Timezone      string         `env:"TIMEZONE"`
	LogLevel      string         `env:"LOG_LEVEL"`
	RefreshCron   string         `env:"REFRESH"`
	EventsFeed    string         `env:"EVENTS_FEED"`
	LocationsFeed string         `env:"LOCATIONS_FEED"`
	TagsFeed      string         `env:"TAGS_FEED"`
	CacheDir      string         `env:"FEED_CACHE_DIR"`
	WindowStart   civiltime.Date `env:"WINDOW_START"`
	WindowEnd     civiltime.Date `env:"WINDOW_END"`
	MaxMarkers    int            `env:"MAX_MARKERS"`
	BasicAuthUser string         `env:"BASIC_AUTH_USERNAME"`
	BasicAuthPass string         `env:"BASIC_AUTH_PASSWORD"`
}

func applyEnv(cfg *Config) error {
	var ov envOverlay
	if err := env.ParseWithOptions(&ov, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	setString(&cfg.Listen, ov.Listen)
	setString(&cfg.Timezone, ov.Timezone)
	setString(&cfg.LogLevel, ov.LogLevel)
	setString(&cfg.RefreshCron, ov.RefreshCron)
	setString(&cfg.Feeds.Events, ov.EventsFeed)
	setString(&cfg.Feeds.Locations, ov.LocationsFeed)
	setString(&cfg.Feeds.Tags, ov.TagsFeed)
	setString(&cfg.Feeds.CacheDir, ov.CacheDir)
	if !ov.WindowStart.IsZero() {
		cfg.Window.Start = ov.WindowStart
	}
	if !ov.WindowEnd.IsZero() {
		cfg.Window.End = ov.WindowEnd
	}
	if ov.MaxMarkers > 0 {
		cfg.Map.MaxMarkers = ov.MaxMarkers
	}
	if ov.BasicAuthUser != "" || ov.BasicAuthPass != "" {
		cfg.BasicAuth = &BasicAuthConfig{Username: ov.BasicAuthUser, Password: ov.BasicAuthPass}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventmap-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
