// Command ingest is the cricket data ingestion CLI.
//
// Usage:
//
//	cricket-ingest migrate
//	cricket-ingest discover
//	cricket-ingest scorecards [--match 87654 --match 87655]
//	cricket-ingest awards
//	cricket-ingest squads
//	cricket-ingest run [--every 1h]
//	cricket-ingest stages status
//	cricket-ingest stages reset --stage awards [--match 87654]
//	cricket-ingest players audit --threshold 0.92
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/cricket-data/internal/app"
	"github.com/albapepper/cricket-data/internal/config"
	"github.com/albapepper/cricket-data/internal/maintenance"
	"github.com/albapepper/cricket-data/internal/pipeline"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "cricket-ingest",
		Short:         "Cricbuzz international cricket ingestion CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(discoverCmd())
	root.AddCommand(stageCmd("scorecards", "Ingest batting and bowling scorecards", (*pipeline.Runner).Scorecards))
	root.AddCommand(stageCmd("awards", "Ingest match awards", (*pipeline.Runner).Awards))
	root.AddCommand(stageCmd("squads", "Ingest squads and player biographies", (*pipeline.Runner).Squads))
	root.AddCommand(runCmd())
	root.AddCommand(stagesCmd())
	root.AddCommand(playersCmd())

	if err := root.Execute(); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate / discover
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(func(ctx context.Context, cfg *config.Config, in *app.Ingest) error {
				// OpenStore already applied the schema; applying it again is harmless.
				if err := in.Store.Migrate(ctx); err != nil {
					return err
				}
				logger.Info("Schema up to date", "driver", cfg.DBDriver)
				return nil
			})
		},
	}
}

func discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Register international matches from the recent-matches listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(func(ctx context.Context, cfg *config.Config, in *app.Ingest) error {
				return discover(ctx, in)
			})
		},
	}
}

func discover(ctx context.Context, in *app.Ingest) error {
	start := time.Now()
	matches, err := in.Registry.Discover(ctx)
	if err != nil {
		return err
	}
	logger.Info("Discovery finished",
		"registered", len(matches), "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// --------------------------------------------------------------------------
// detail stages
// --------------------------------------------------------------------------

type stageFunc func(*pipeline.Runner, context.Context, pipeline.Options) (pipeline.Result, error)

func stageCmd(use, short string, run stageFunc) *cobra.Command {
	var matchIDs []string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(func(ctx context.Context, cfg *config.Config, in *app.Ingest) error {
				res, err := run(in.Runner, ctx, pipeline.Options{MatchIDs: matchIDs})
				logResult(res)
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&matchIDs, "match", nil, "Process these match ids instead of the pending ones")
	return cmd
}

func runCmd() *cobra.Command {
	var (
		every    time.Duration
		matchIDs []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover, then run every detail stage in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(func(ctx context.Context, cfg *config.Config, in *app.Ingest) error {
				if !cmd.Flags().Changed("every") {
					every = cfg.RunInterval
				}
				return maintenance.Every(ctx, every, "ingest", func(ctx context.Context) error {
					if len(matchIDs) == 0 {
						if err := discover(ctx, in); err != nil {
							return err
						}
					}
					results, err := in.Runner.RunAll(ctx, pipeline.Options{MatchIDs: matchIDs})
					for _, res := range results {
						logResult(res)
					}
					return err
				}, logger)
			})
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "Repeat the run at this interval until interrupted (0 runs once)")
	cmd.Flags().StringSliceVar(&matchIDs, "match", nil, "Skip discovery and process these match ids")
	return cmd
}

func logResult(res pipeline.Result) {
	logger.Info("Stage run finished", "summary", res.Summary())
	for _, e := range res.Errors {
		logger.Warn("stage error", "stage", res.Stage, "error", e)
	}
}

// --------------------------------------------------------------------------
// stages command
// --------------------------------------------------------------------------

func stagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Inspect and reset per-match stage progress",
	}
	cmd.AddCommand(stagesStatusCmd())
	cmd.AddCommand(stagesResetCmd())
	return cmd
}

func stagesStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show completed, failing and pending counts per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(func(ctx context.Context, cfg *config.Config, in *app.Ingest) error {
				status, err := in.Store.StageStatus(ctx, cfg.StageMaxFailures)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STAGE\tREGISTERED\tCOMPLETED\tFAILING\tEXHAUSTED\tPENDING")
				for _, s := range status {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
						s.Stage, s.Registered, s.Completed, s.Failing, s.Exhausted, s.Pending)
				}
				return tw.Flush()
			})
		},
	}
}

func stagesResetCmd() *cobra.Command {
	var (
		stage    string
		matchIDs []string
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget stage completion so the stage runs again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stage == "" {
				return errors.New("--stage is required")
			}
			return runWithStore(func(ctx context.Context, cfg *config.Config, in *app.Ingest) error {
				_, err := maintenance.ResetStage(ctx, in.Store, stage, matchIDs, logger)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Stage to reset (scorecard, awards, squad)")
	cmd.Flags().StringSliceVar(&matchIDs, "match", nil, "Reset only these match ids")
	return cmd
}

// --------------------------------------------------------------------------
// players command
// --------------------------------------------------------------------------

func playersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "Player maintenance",
	}
	cmd.AddCommand(playersAuditCmd())
	return cmd
}

func playersAuditCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report distinct players with near-identical names",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(func(ctx context.Context, cfg *config.Config, in *app.Ingest) error {
				players, err := in.Store.ListPlayers(ctx)
				if err != nil {
					return err
				}
				pairs := maintenance.DuplicateCandidates(players, threshold)
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SCORE\tPLAYER A\tPLAYER B")
				for _, p := range pairs {
					fmt.Fprintf(tw, "%.3f\t%d %s (%s)\t%d %s (%s)\n", p.Score,
						p.A.ID, p.A.Name, p.A.ProfileRef, p.B.ID, p.B.Name, p.B.ProfileRef)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				logger.Info("Audit finished", "players", len(players), "candidates", len(pairs))
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", maintenance.DefaultAuditThreshold, "Jaro-Winkler similarity threshold")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runWithStore handles config loading, store setup and signal cancellation.
func runWithStore(fn func(ctx context.Context, cfg *config.Config, in *app.Ingest) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	st, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer st.Close()

	err = fn(ctx, cfg, app.NewIngest(st, app.NewFetcher(cfg, logger), cfg, logger))
	if errors.Is(err, context.Canceled) {
		logger.Warn("Interrupted, unfinished matches stay pending")
	}
	return err
}
