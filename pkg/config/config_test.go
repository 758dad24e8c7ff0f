package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zer0complexity/killicker/pkg/track"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "killicker.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, track.DefaultGridMinutes, cfg.Track.GridMinutes)
	assert.Equal(t, track.DefaultHeadingThreshold, cfg.Track.HeadingThreshold)
	assert.Equal(t, "killick", cfg.Influx.Bucket)

	// File was written for next time
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "killicker.yaml")
	content := []byte("track:\n  grid_minutes: 5\ninflux:\n  retrieval_interval: 30s\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Track.GridMinutes)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Influx.RetrievalInterval))
	// Untouched values keep their defaults
	assert.Equal(t, track.DefaultHeadingThreshold, cfg.Track.HeadingThreshold)
}

func TestValidateRejectsBadGrid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "Grid Not Dividing 60",
			mutate:  func(c *Config) { c.Track.GridMinutes = 7 },
			wantErr: "grid_minutes",
		},
		{
			name:    "Zero Grid",
			mutate:  func(c *Config) { c.Track.GridMinutes = 0 },
			wantErr: "grid_minutes",
		},
		{
			name:    "Negative Threshold",
			mutate:  func(c *Config) { c.Track.HeadingThreshold = -0.1 },
			wantErr: "heading_threshold",
		},
		{
			name:    "Zero Threshold",
			mutate:  func(c *Config) { c.Track.HeadingThreshold = 0 },
			wantErr: "heading_threshold",
		},
		{
			name:    "Empty URL",
			mutate:  func(c *Config) { c.Influx.URL = "" },
			wantErr: "influx.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveTokenEnvWins(t *testing.T) {
	t.Setenv("KILLICK_INFLUX_TOKEN", "env-token")

	cfg := DefaultConfig()
	tok, err := cfg.ResolveToken()
	require.NoError(t, err)
	assert.Equal(t, "env-token", tok)
}

func TestResolveTokenFromFile(t *testing.T) {
	t.Setenv("KILLICK_INFLUX_TOKEN", "")

	path := filepath.Join(t.TempDir(), ".influx-token")
	require.NoError(t, os.WriteFile(path, []byte("file-token\n"), 0o600))

	cfg := DefaultConfig()
	cfg.Influx.TokenFile = path

	tok, err := cfg.ResolveToken()
	require.NoError(t, err)
	assert.Equal(t, "file-token", tok)
}

func TestResolveTokenMissing(t *testing.T) {
	t.Setenv("KILLICK_INFLUX_TOKEN", "")

	cfg := DefaultConfig()
	cfg.Influx.TokenFile = filepath.Join(t.TempDir(), "nonexistent")

	_, err := cfg.ResolveToken()
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"10s", 10 * time.Second},
		{"10m", 10 * time.Minute},
		{"1d", Day},
		{"2w", 2 * Week},
		{"1d12h", Day + 12*time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDuration("1x")
	assert.Error(t, err)
}
