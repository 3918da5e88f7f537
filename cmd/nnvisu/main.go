// Package main provides the CLI entry point for nnvisu-go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nnvisu/nnvisu-go/cmd/nnvisu/commands"
	"github.com/nnvisu/nnvisu-go/pkg/nnvisu"
)

var (
	version = "0.4.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, commands.Styles.Error.Render(err.Error()))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nnvisu",
	Short: "nnvisu - live neural-net training visualizer client",
	Long: `nnvisu connects to a neural-net trainer, lets you place labeled points,
drives the training loop step by step and renders the decision boundary.

It provides:
  - A reconnecting duplex channel to the trainer
  - Persistent session state (sqlite, postgres, mysql, file or memory)
  - A rendered canvas with history scrubbing
  - An HTTP adapter for headless control
  - Scheduled PNG export of the canvas`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return commands.LoadConfig(cmd)
	},
}

// ============================================================================
// Run Command
// ============================================================================

var (
	runJSONLogs bool
	runStart    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the trainer and serve the session",
	Long: `Connect to the trainer derived from the page URL, restore the persisted
session and serve the HTTP adapter until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config := commands.Config()

		client, err := nnvisu.New(config, nnvisu.WithJSONLogs(runJSONLogs))
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := client.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize client: %w", err)
		}
		defer client.Shutdown()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		go commands.PrintStatusChanges(ctx, client)

		fmt.Println(commands.Styles.Title.Render("nnvisu " + version))
		fmt.Println(commands.KeyValue("trainer page", config.PageURL))
		fmt.Println(commands.KeyValue("store", config.Store))
		if config.Listen != "" {
			fmt.Println(commands.KeyValue("http", config.Listen))
		}
		if config.ExportDir != "" {
			fmt.Println(commands.KeyValue("export", fmt.Sprintf("%s every %s", config.ExportDir, config.ExportEvery)))
		}
		fmt.Println(commands.Styles.Dim.Render("Press Ctrl+C to stop"))

		if runStart {
			// Queued until the event loop runs; steps follow once connected.
			go client.Controller().StartTraining()
		}

		err = client.Run(ctx)
		fmt.Println("\nShutting down...")
		return err
	},
}

func init() {
	commands.RegisterConfigFlags(rootCmd)

	runCmd.Flags().BoolVar(&runJSONLogs, "json-logs", false, "Write logs as JSON lines")
	runCmd.Flags().BoolVar(&runStart, "train", false, "Start training once the session is up")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(commands.StateCmd)
	rootCmd.AddCommand(commands.DecodeCmd)
}
