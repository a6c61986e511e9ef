package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/loykin/rollout"
	"github.com/spf13/cobra"
)

func main() {
	// Best-effort: a missing .env just means the OS environment rules.
	_ = godotenv.Load()

	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "rollout",
		Short:         "Train balancing-robot control policies against simulated spines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(createTrainCommand())
	return root
}

func createTrainCommand() *cobra.Command {
	flags := &TrainFlags{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a new policy and save it under the training directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.ConfigPath, "config", "", "path to a TOML run configuration")
	cmd.Flags().StringVar(&flags.Name, "name", "", "name of the new policy to train (empty = random word)")
	cmd.Flags().IntVar(&flags.NbEnvs, "nb-envs", 1, "number of parallel simulation processes to run")
	cmd.Flags().BoolVar(&flags.Show, "show", false, "show simulator during trajectory rollouts")
	cmd.Flags().Int64Var(&flags.Seed, "seed", -1, "fixed run seed (negative = draw one)")
	cmd.Flags().StringVar(&flags.MetricsListen, "metrics-listen", "", "address serving /metrics (empty = disabled)")
	cmd.Flags().BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	return cmd
}

func runTrain(ctx context.Context, flags *TrainFlags) error {
	cfg, err := rollout.LoadConfig(flags.ConfigPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if flags.Verbose {
		level = slog.LevelDebug
	}
	var log *slog.Logger
	if w := rollout.LogWriter(cfg, "rollout"); w != nil {
		defer func() { _ = w.Close() }()
		log = rollout.NewLogger(level, w)
	} else {
		log = rollout.NewLogger(level, nil)
	}

	if err := rollout.RegisterMetricsDefault(); err != nil {
		return err
	}
	if flags.MetricsListen != "" {
		go func() {
			if err := rollout.ServeMetrics(flags.MetricsListen); err != nil {
				log.Warn("metrics server", "err", err)
			}
		}()
	}

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = filepath.Join(rollout.TrainingRoot(), "rollout_runs.db")
	}
	sink, err := rollout.NewSQLiteStore(ctx, storePath)
	if err != nil {
		return fmt.Errorf("open run-tracking store: %w", err)
	}
	defer func() { _ = sink.Close() }()

	log.Info("logging training data", "root", rollout.TrainingRoot())
	savePath, err := rollout.Train(ctx, rollout.TrainOptions{
		Name:   flags.Name,
		NbEnvs: flags.NbEnvs,
		Show:   flags.Show,
		Config: cfg,
		Sink:   sink,
		Seed:   flags.Seed,
		Log:    log,
	})
	if err != nil {
		return err
	}
	log.Info("run complete", "path", savePath)
	return nil
}
