package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zer0complexity/killicker/pkg/track"
)

// Config holds the application configuration.
type Config struct {
	Influx InfluxConfig `yaml:"influx"`
	Track  TrackConfig  `yaml:"track"`
	Export ExportConfig `yaml:"export"`
	Cache  CacheConfig  `yaml:"cache"`
	Git    GitConfig    `yaml:"git"`
	Live   LiveConfig   `yaml:"live"`
	Log    LogConfig    `yaml:"log"`
}

// InfluxConfig holds settings for the upstream time-series store.
type InfluxConfig struct {
	URL       string `yaml:"url"`
	Org       string `yaml:"org"`
	Bucket    string `yaml:"bucket"`
	TokenFile string `yaml:"token_file"`
	// Token is never written to the config file; it comes from token_file or
	// the KILLICK_INFLUX_TOKEN environment variable.
	Token             string   `yaml:"-"`
	RetrievalInterval Duration `yaml:"retrieval_interval"`
}

// TrackConfig holds the reduction tunables.
type TrackConfig struct {
	// GridMinutes is the full-retention cadence: a record whose timestamp
	// lands on this grid is always kept with all fields. It is configured
	// explicitly and independent of the retrieval interval.
	GridMinutes int `yaml:"grid_minutes"`
	// HeadingThreshold is the course change (radians) beyond which an
	// off-grid record is kept as a heading-change point.
	HeadingThreshold float64 `yaml:"heading_threshold_rad"`
}

// ExportConfig holds settings for the JSON track output.
type ExportConfig struct {
	DataDir string `yaml:"data_dir"`
	GeoJSON bool   `yaml:"geojson"`
}

// CacheConfig holds settings for the local query cache.
type CacheConfig struct {
	Enabled bool     `yaml:"enabled"`
	Path    string   `yaml:"path"`
	TTL     Duration `yaml:"ttl"`
}

// GitConfig holds settings for committing exported data.
type GitConfig struct {
	Enabled     bool   `yaml:"enabled"`
	RepoPath    string `yaml:"repo_path"`
	Remote      string `yaml:"remote"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// LiveConfig holds settings for the live track WebSocket feed.
type LiveConfig struct {
	Address string `yaml:"address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Influx: InfluxConfig{
			URL:               "http://navi.local:8086",
			Org:               "navi",
			Bucket:            "killick",
			TokenFile:         ".influx-token",
			RetrievalInterval: Duration(10 * time.Second),
		},
		Track: TrackConfig{
			GridMinutes:      track.DefaultGridMinutes,
			HeadingThreshold: track.DefaultHeadingThreshold,
		},
		Export: ExportConfig{
			DataDir: "killicker-data",
			GeoJSON: false,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "./data/killicker.db",
			TTL:     Duration(4 * Week),
		},
		Git: GitConfig{
			Enabled:     false,
			RepoPath:    ".",
			Remote:      "origin",
			AuthorName:  "killicker",
			AuthorEmail: "killicker@localhost",
		},
		Live: LiveConfig{
			Address: "localhost:1938",
		},
		Log: LogConfig{
			Path:  "./logs/killicker.log",
			Level: "INFO",
		},
	}
}

// Load loads the configuration from the given path. If the file does not
// exist, it is created with default values. If it exists, defaults are
// merged with the file's values but nothing is saved back to disk (to
// preserve user formatting and comments). Invalid configuration is rejected
// here, never mid-run.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the whole-run structural constraints.
func (c *Config) Validate() error {
	if c.Track.GridMinutes <= 0 || 60%c.Track.GridMinutes != 0 {
		return fmt.Errorf("track.grid_minutes must be a positive divisor of 60, got %d", c.Track.GridMinutes)
	}
	if c.Track.HeadingThreshold <= 0 {
		return fmt.Errorf("track.heading_threshold_rad must be positive, got %v", c.Track.HeadingThreshold)
	}
	if c.Influx.URL == "" {
		return fmt.Errorf("influx.url must not be empty")
	}
	return nil
}

// ResolveToken returns the InfluxDB token: the environment variable
// KILLICK_INFLUX_TOKEN wins, then the configured token file.
func (c *Config) ResolveToken() (string, error) {
	if tok := os.Getenv("KILLICK_INFLUX_TOKEN"); tok != "" {
		return tok, nil
	}
	if c.Influx.TokenFile == "" {
		return "", fmt.Errorf("no influx token: set KILLICK_INFLUX_TOKEN or influx.token_file")
	}
	data, err := os.ReadFile(c.Influx.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file %s: %w", c.Influx.TokenFile, err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("token file %s is empty", c.Influx.TokenFile)
	}
	return tok, nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Killicker Configuration
# -----------------------
# Durations accept: ns, us, ms, s, m, h, d (day), w (week)
# track.grid_minutes must evenly divide 60.
# track.heading_threshold_rad is in radians; the default 0.2617 sits just
# under 15 degrees so a full 15-degree turn is always retained.

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
