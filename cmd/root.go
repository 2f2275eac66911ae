package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/risk-sim/risk-sim/risk"
	"github.com/risk-sim/risk-sim/risk/store"
)

var (
	// CLI flags
	cfgFile     string // optional engine config file (viper)
	logLevel    string // log verbosity level
	treeFile    string // YAML risk tree definition
	nodeID      string // node to aggregate; empty = root
	nTrials     int    // Monte Carlo trials for this run
	parallelism int    // concurrent trials within the run
	seed        int64  // master seed
	seedSet     bool
	dbPath      string // optional SQLite path; empty = in-memory store
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "risksim",
	Short: "Monte Carlo loss-exceedance simulator for risk trees",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd simulates one tree file and prints quantiles plus the LEC.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation over a risk tree definition",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			logrus.Fatalf("unable to load config: %v", err)
		}
		if treeFile == "" {
			logrus.Fatalf("risk tree definition not provided (--tree). Exiting.")
		}
		tree, err := LoadTreeFile(treeFile, cfg.MaxTreeDepth)
		if err != nil {
			logrus.Fatalf("unable to read tree definition: %v", err)
		}

		trees, cleanup, err := openTreeStore(cfg)
		if err != nil {
			logrus.Fatalf("unable to open tree store: %v", err)
		}
		defer cleanup()
		if _, err := trees.Save(context.Background(), tree); err != nil {
			logrus.Fatalf("unable to persist tree: %v", err)
		}

		svc, err := risk.NewService(cfg, trees, risk.NewMemoryCacheStore())
		if err != nil {
			logrus.Fatalf("unable to build service: %v", err)
		}

		opts := risk.AggregateOptions{NTrials: nTrials, Parallelism: parallelism}
		if seedSet {
			opts.Seed = &seed
		}
		logrus.Infof("Starting simulation: tree=%q trials=%d parallelism=%d", tree.Name, nTrials, parallelism)

		startTime := time.Now()
		res, err := svc.GetAggregate(context.Background(), tree.ID, risk.NodeID(nodeID), opts)
		if err != nil {
			logrus.Fatalf("simulation failed (%s): %v", risk.Classify(err), err)
		}
		printResult(res, time.Since(startTime))
		logrus.Info("Simulation complete.")
	},
}

// openTreeStore picks the SQLite store when --db is given, the in-memory
// store otherwise.
func openTreeStore(cfg risk.Config) (risk.TreeStore, func(), error) {
	if dbPath == "" {
		return store.NewMemoryStore(), func() {}, nil
	}
	s, err := store.NewSQLiteStore(dbPath, cfg.MaxTreeDepth)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

// printResult displays the aggregate: quantiles first, then the curve.
func printResult(res *risk.AggregateResult, elapsed time.Duration) {
	fmt.Println("=== Aggregate Result ===")
	fmt.Printf("Tree/Node/Version : %s / %s / v%d\n", res.TreeID, res.NodeID, res.Version)
	fmt.Printf("Trials            : %d (%.2fs wall)\n", res.NTrials, elapsed.Seconds())
	labels := make([]string, 0, len(res.Quantiles))
	for l := range res.Quantiles {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Printf("Loss %-12s : %.2f\n", l, res.Quantiles[l])
	}
	fmt.Println("=== Loss Exceedance Curve ===")
	for _, pt := range res.Exceedance {
		fmt.Printf("P(loss >= %12.2f) = %.4f\n", pt.Loss, pt.Probability)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Engine config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	runCmd.Flags().StringVar(&treeFile, "tree", "", "Risk tree definition file (YAML)")
	runCmd.Flags().StringVar(&nodeID, "node", "", "Node to aggregate (default: root)")
	runCmd.Flags().IntVar(&nTrials, "trials", 0, "Number of Monte Carlo trials (default from config)")
	runCmd.Flags().IntVar(&parallelism, "parallelism", 0, "Concurrent trials within the run (default from config)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Master seed for reproducible runs")
	runCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default: in-memory)")
	runCmd.PreRun = func(cmd *cobra.Command, args []string) {
		seedSet = cmd.Flags().Changed("seed")
	}

	rootCmd.AddCommand(runCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
