package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/nnvisu/nnvisu-go/internal/infrastructure/state"
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// State command flags
var (
	stateShowJSON bool
	stateClearYes bool
)

// StateCmd is the parent command for persisted session state.
var StateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or clear the persisted session",
	Long: `Commands for the persistent state store.

The store keeps three slices:
  - the model and training configuration
  - the trained weights
  - the drawn point set`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		snap := store.Load(cmd.Context())

		if stateShowJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		cfg := snap.Config
		fmt.Println(Styles.Title.Render("Session state"))
		fmt.Println(KeyValue("store", Config().Store))
		fmt.Println(KeyValue("architecture", shared.FormatArchitecture(cfg.Architecture)))
		fmt.Println(KeyValue("activation", string(cfg.Activation)))
		fmt.Println(KeyValue("optimizer", string(cfg.Optimizer)))
		fmt.Println(KeyValue("learning rate", strconv.FormatFloat(cfg.LearningRate, 'g', -1, 64)))
		fmt.Println(KeyValue("regularization", strconv.FormatFloat(cfg.Regularization, 'g', -1, 64)))
		fmt.Println(KeyValue("batch size", strconv.Itoa(cfg.BatchSize)))
		fmt.Println(KeyValue("dropout", strconv.FormatFloat(cfg.Dropout, 'g', -1, 64)))

		if shared.IsNullWeights(snap.Weights) {
			fmt.Println(KeyValue("model", Styles.Dim.Render("none")))
		} else {
			fmt.Println(KeyValue("model", fmt.Sprintf("%d bytes", len(snap.Weights))))
		}

		fmt.Println(KeyValue("points", strconv.Itoa(len(snap.Points))))
		for _, line := range classCounts(snap.Points) {
			fmt.Println(KeyValue("", line))
		}
		return nil
	},
}

var stateClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !stateClearYes {
			return fmt.Errorf("refusing to clear %s without --yes", Config().Store)
		}

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(Styles.OK.Render("Session state cleared"))
		return nil
	},
}

func openStore(ctx context.Context) (*state.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "store",
		Level:  hclog.LevelFromString(Config().LogLevel),
		Output: os.Stderr,
	})

	backend, err := state.Open(ctx, Config().Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return state.NewStore(backend, state.WithLogger(logger)), nil
}

func classCounts(points []shared.Point) []string {
	counts := map[int]int{}
	for _, p := range points {
		counts[p.Label]++
	}

	labels := make([]int, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	lines := make([]string, 0, len(labels))
	for _, label := range labels {
		lines = append(lines, fmt.Sprintf("class %d: %d", label, counts[label]))
	}
	return lines
}

func init() {
	stateShowCmd.Flags().BoolVar(&stateShowJSON, "json", false, "Print as JSON")
	stateClearCmd.Flags().BoolVarP(&stateClearYes, "yes", "y", false, "Confirm deletion")

	StateCmd.AddCommand(stateShowCmd)
	StateCmd.AddCommand(stateClearCmd)
}
