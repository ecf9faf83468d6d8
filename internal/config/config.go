package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.feira/config.toml.
//
// The reconcile windows are heuristics, not load-bearing constants; they
// are exposed here so deployments can tune them without a rebuild.
type Config struct {
	APIEndpoint  string `toml:"api_endpoint"`
	PushEndpoint string `toml:"push_endpoint"`
	LogPath      string `toml:"log_path"`

	UserID   string `toml:"user_id"`
	UserName string `toml:"user_name"`
	Token    string `toml:"token"`

	RoomPageSize    int `toml:"room_page_size"`
	MessagePageSize int `toml:"message_page_size"`
	ReconcileTail   int `toml:"reconcile_tail"`

	TextMatchWindow  duration `toml:"text_match_window"`
	ImageMatchWindow duration `toml:"image_match_window"`
	DuplicateWindow  duration `toml:"duplicate_window"`

	TopThresholdRows    int `toml:"top_threshold_rows"`
	BottomThresholdRows int `toml:"bottom_threshold_rows"`

	MaxImageBytes int64 `toml:"max_image_bytes"`
}

// duration lets TOML carry values like "10s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		APIEndpoint:         "https://api.feira.app/graphql",
		PushEndpoint:        "wss://push.feira.app/ws",
		LogPath:             filepath.Join(os.TempDir(), "feira", "feira.log"),
		RoomPageSize:        20,
		MessagePageSize:     20,
		ReconcileTail:       20,
		TextMatchWindow:     duration{10 * time.Second},
		ImageMatchWindow:    duration{15 * time.Second},
		DuplicateWindow:     duration{time.Second},
		TopThresholdRows:    100,
		BottomThresholdRows: 10,
		MaxImageBytes:       10 << 20,
	}
}

// Load reads config from the given path, filling unset fields with defaults.
// Returns defaults and the error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return Default(), err
	}
	cfg.fillZero()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) fillZero() {
	d := Default()
	if c.RoomPageSize <= 0 {
		c.RoomPageSize = d.RoomPageSize
	}
	if c.MessagePageSize <= 0 {
		c.MessagePageSize = d.MessagePageSize
	}
	if c.ReconcileTail <= 0 {
		c.ReconcileTail = d.ReconcileTail
	}
	if c.TextMatchWindow.Duration <= 0 {
		c.TextMatchWindow = d.TextMatchWindow
	}
	if c.ImageMatchWindow.Duration <= 0 {
		c.ImageMatchWindow = d.ImageMatchWindow
	}
	if c.DuplicateWindow.Duration <= 0 {
		c.DuplicateWindow = d.DuplicateWindow
	}
	if c.TopThresholdRows <= 0 {
		c.TopThresholdRows = d.TopThresholdRows
	}
	if c.BottomThresholdRows <= 0 {
		c.BottomThresholdRows = d.BottomThresholdRows
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = d.MaxImageBytes
	}
}

// Windows returns the reconcile match windows as plain durations.
func (c *Config) Windows() (text, image, dup time.Duration) {
	return c.TextMatchWindow.Duration, c.ImageMatchWindow.Duration, c.DuplicateWindow.Duration
}
