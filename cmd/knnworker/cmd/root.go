package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/freyja-knn/pkg/di"
	"github.com/ssargent/freyja-knn/pkg/distance"
	"github.com/ssargent/freyja-knn/pkg/engine"
	"github.com/ssargent/freyja-knn/pkg/statusapi"
)

var container *di.Container

// SetContainer injects the dependency container built in main. Tests can
// call it directly with a container wired to fakes.
func SetContainer(c *di.Container) {
	container = c
}

var rootCmd = &cobra.Command{
	Use:   "knnworker",
	Short: "Processes one k-nearest-neighbor package end to end",
	Long: `knnworker loads a package descriptor, computes the k-nearest-neighbor
distance list for every point in every unprocessed partition pairing, and
persists the results into per-pairing on-disk trees referenced from the
descriptor.`,
	PersistentPreRunE: validateFlags,
	RunE:              runPackage,
}

var (
	flagInput          string
	flagMaxK           int
	flagDistFuncName   string
	flagMultithreading bool
	flagMetricsAddr    string
	flagLedgerPath     string

	resolvedDistFunc distance.Func
)

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagInput == "" {
		return fmt.Errorf("-app.in is required")
	}
	if flagMaxK < 1 {
		return fmt.Errorf("-maxk must be >= 1, got %d", flagMaxK)
	}

	fn, err := container.LookupDistance(flagDistFuncName)
	if err != nil {
		return fmt.Errorf("-knn.reachdistfunction: %w (known: %v)", err, distance.Names())
	}
	resolvedDistFunc = fn
	return nil
}

func runPackage(cmd *cobra.Command, args []string) error {
	cfg := engine.Config{
		InputPath:      flagInput,
		K:              flagMaxK,
		DistFunc:       resolvedDistFunc,
		Multithreading: flagMultithreading,
		Metrics:        container.Metrics(),
	}

	if flagLedgerPath != "" {
		l, err := container.OpenLedger(flagLedgerPath)
		if err != nil {
			return fmt.Errorf("open run ledger: %w", err)
		}
		defer l.Close()
		cfg.Ledger = l
	}

	var status *statusapi.Server
	if flagMetricsAddr != "" {
		status = statusapi.NewServer(flagMetricsAddr, container.Metrics())
		errCh := status.Start()
		defer status.Shutdown(cmd.Context())
		go func() {
			if err := <-errCh; err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}()
	}

	runner, err := engine.NewRunner(cfg)
	if err != nil {
		return fmt.Errorf("load package: %w", err)
	}
	if status != nil {
		status.MarkReady()
	}

	return runner.Run()
}

// Execute runs the root command. Called once by main.main.
func Execute() {
	// Accept the single-dash long forms (-app.in, -maxk, ...) as well as
	// pflag's native double-dash forms; everything after "--" is untouched.
	args := make([]string, 0, len(os.Args))
	for i, a := range os.Args[1:] {
		if a == "--" {
			args = append(args, os.Args[1+i:]...)
			break
		}
		if len(a) > 2 && a[0] == '-' && a[1] != '-' {
			a = "-" + a
		}
		args = append(args, a)
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagInput, "app.in", "", "path to the package descriptor (YAML)")
	rootCmd.PersistentFlags().IntVar(&flagMaxK, "maxk", 10, "neighbor list capacity k (>= 1)")
	rootCmd.PersistentFlags().StringVar(&flagDistFuncName, "knn.reachdistfunction", "euclidean", "distance function name")
	rootCmd.PersistentFlags().BoolVar(&flagMultithreading, "multithreading", false, "size the worker pool to the number of available cores")
	rootCmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "optional host:port to expose /healthz and /metrics on while the run is in flight")
	rootCmd.PersistentFlags().StringVar(&flagLedgerPath, "history", "", "optional path to the run ledger database")
}
