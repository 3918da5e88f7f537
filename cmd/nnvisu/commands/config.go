package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/nnvisu/nnvisu-go/pkg/nnvisu"
)

// Global flags
var (
	flagEnvFile     string
	flagPageURL     string
	flagStore       string
	flagListen      string
	flagLogLevel    string
	flagExportDir   string
	flagExportEvery time.Duration
	flagCanvas      int
	flagRefreshRate int

	loaded nnvisu.Config
)

// RegisterConfigFlags adds the configuration flags to root.
func RegisterConfigFlags(root *cobra.Command) {
	defaults := nnvisu.DefaultConfig()

	flags := root.PersistentFlags()
	flags.StringVar(&flagEnvFile, "env-file", ".env", "Environment file with NNVISU_* settings")
	flags.StringVarP(&flagPageURL, "page-url", "u", defaults.PageURL, "Page URL the trainer channel is derived from")
	flags.StringVarP(&flagStore, "store", "s", defaults.Store, "State store DSN (memory:, file:, sqlite:, postgres://, mysql:)")
	flags.StringVarP(&flagListen, "listen", "l", defaults.Listen, "HTTP adapter address, empty to disable")
	flags.StringVar(&flagLogLevel, "log-level", defaults.LogLevel, "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&flagExportDir, "export-dir", "", "Directory for scheduled canvas export, empty to disable")
	flags.DurationVar(&flagExportEvery, "export-every", defaults.ExportEvery, "Canvas export interval")
	flags.IntVar(&flagCanvas, "canvas", defaults.CanvasWidth, "Canvas size in pixels (square)")
	flags.IntVar(&flagRefreshRate, "fps", defaults.RefreshRate, "Render loop frequency")
}

// LoadConfig resolves the configuration: defaults, then the environment
// file and NNVISU_* variables, then explicitly set flags.
func LoadConfig(cmd *cobra.Command) error {
	config, err := nnvisu.LoadConfig(flagEnvFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("page-url") {
		config.PageURL = flagPageURL
	}
	if flags.Changed("store") {
		config.Store = flagStore
	}
	if flags.Changed("listen") {
		config.Listen = flagListen
	}
	if flags.Changed("log-level") {
		config.LogLevel = flagLogLevel
	}
	if flags.Changed("export-dir") {
		config.ExportDir = flagExportDir
	}
	if flags.Changed("export-every") {
		config.ExportEvery = flagExportEvery
	}
	if flags.Changed("canvas") {
		config.CanvasWidth = flagCanvas
		config.CanvasHeight = flagCanvas
	}
	if flags.Changed("fps") {
		config.RefreshRate = flagRefreshRate
	}

	loaded = config.Normalize()
	return nil
}

// Config returns the configuration resolved by LoadConfig.
func Config() nnvisu.Config {
	return loaded
}
