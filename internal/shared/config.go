package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig holds the runtime settings of one visualizer client.
type ClientConfig struct {
	// PageURL is the page the client is hosted under. The duplex channel
	// endpoint is derived from it.
	PageURL string `json:"pageUrl"`

	// Store is the persistent state store DSN (memory:, file:, sqlite:,
	// postgres://, mysql:).
	Store string `json:"store"`

	// CanvasWidth and CanvasHeight are the rendering surface size in pixels.
	CanvasWidth  int `json:"canvasWidth"`
	CanvasHeight int `json:"canvasHeight"`

	// RefreshRate is the render loop frequency in frames per second.
	RefreshRate int `json:"refreshRate"`

	// ReconnectDelay is the fixed wait between a close and the next dial.
	ReconnectDelay time.Duration `json:"reconnectDelay"`

	// EraseRadius is the erase tool radius in pixels.
	EraseRadius float64 `json:"eraseRadius"`

	// Listen is the HTTP adapter address. Empty disables it.
	Listen string `json:"listen"`

	// LogLevel is the hclog level name.
	LogLevel string `json:"logLevel"`

	// ExportDir and ExportEvery configure scheduled canvas export. An empty
	// directory disables it.
	ExportDir   string        `json:"exportDir"`
	ExportEvery time.Duration `json:"exportEvery"`
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PageURL:        "http://localhost:8888/",
		Store:          "sqlite:.nnvisu/state.db",
		CanvasWidth:    800,
		CanvasHeight:   800,
		RefreshRate:    60,
		ReconnectDelay: 2000 * time.Millisecond,
		EraseRadius:    20,
		Listen:         ":8080",
		LogLevel:       "INFO",
		ExportEvery:    10 * time.Second,
	}
}

// Normalize replaces zero or invalid values with defaults.
func (c ClientConfig) Normalize() ClientConfig {
	defaults := DefaultClientConfig()
	if c.PageURL == "" {
		c.PageURL = defaults.PageURL
	}
	if c.Store == "" {
		c.Store = defaults.Store
	}
	if c.CanvasWidth <= 0 {
		c.CanvasWidth = defaults.CanvasWidth
	}
	if c.CanvasHeight <= 0 {
		c.CanvasHeight = defaults.CanvasHeight
	}
	if c.RefreshRate <= 0 {
		c.RefreshRate = defaults.RefreshRate
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaults.ReconnectDelay
	}
	if c.EraseRadius <= 0 {
		c.EraseRadius = defaults.EraseRadius
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.ExportEvery <= 0 {
		c.ExportEvery = defaults.ExportEvery
	}
	return c
}

// LoadClientConfig starts from the defaults, loads envFile (if present) into
// the process environment and applies NNVISU_* overrides.
func LoadClientConfig(envFile string) (ClientConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ClientConfig{}, err
		}
	}

	config := DefaultClientConfig()
	if v := os.Getenv("NNVISU_PAGE_URL"); v != "" {
		config.PageURL = v
	}
	if v := os.Getenv("NNVISU_STORE"); v != "" {
		config.Store = v
	}
	if v, ok := os.LookupEnv("NNVISU_LISTEN"); ok {
		config.Listen = v
	}
	if v := os.Getenv("NNVISU_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("NNVISU_EXPORT_DIR"); v != "" {
		config.ExportDir = v
	}
	if v := os.Getenv("NNVISU_EXPORT_EVERY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ClientConfig{}, NewValidationError("invalid NNVISU_EXPORT_EVERY", map[string]interface{}{"value": v})
		}
		config.ExportEvery = d
	}
	if v := os.Getenv("NNVISU_REFRESH_RATE"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return ClientConfig{}, NewValidationError("invalid NNVISU_REFRESH_RATE", map[string]interface{}{"value": v})
		}
		config.RefreshRate = rate
	}

	return config.Normalize(), nil
}
