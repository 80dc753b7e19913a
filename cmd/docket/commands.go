package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/newsdocket/docket/pkg/answers"
	"github.com/newsdocket/docket/pkg/api"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/enrich"
	"github.com/newsdocket/docket/pkg/extract"
	"github.com/newsdocket/docket/pkg/lifecycle"
	"github.com/newsdocket/docket/pkg/maintenance"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/roundup"
	"github.com/newsdocket/docket/pkg/version"
)

// runStage wires the shared runtime and runs one pipeline pass.
func runStage(opts *rootOptions, run func(ctx context.Context, a *app) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, cleanup, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()
	return run(ctx, a)
}

func newEnrichCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Enrich ingested articles with markdown, summary, takeaways and questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				pool, stop := a.startPool(ctx)
				defer stop()
				return enrich.New(a.store, a.llm, pool, a.cfg, a.logger).Run(ctx)
			})
		},
	}
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Extract trackable claims from enriched articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				pool, stop := a.startPool(ctx)
				defer stop()
				return extract.New(a.store, a.llm, pool, a.cfg, a.logger).Run(ctx)
			})
		},
	}
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Run claim check-ins, fact checks and follow-up scheduling",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				pool, stop := a.startPool(ctx)
				defer stop()
				return lifecycle.New(a.store, a.llm, pool, a.cfg, a.logger).Run(ctx)
			})
		},
	}
}

func newRoundupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roundup",
		Short: "Generate missing daily, weekly, monthly and yearly roundups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				return roundup.New(a.store, a.llm, a.cfg, a.logger).Run(ctx)
			})
		},
	}
}

func newAnswerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "answer",
		Short: "Answer follow-up questions on enriched articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				pool, stop := a.startPool(ctx)
				defer stop()
				return answers.New(a.store, a.llm, pool, a.cfg, a.logger).Run(ctx)
			})
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var stopOnError bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full daily pipeline: enrich, extract, verify, roundup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				pool, stop := a.startPool(ctx)
				defer stop()

				stages := []struct {
					name string
					run  func(context.Context) error
				}{
					{"enrich", enrich.New(a.store, a.llm, pool, a.cfg, a.logger).Run},
					{"extract", extract.New(a.store, a.llm, pool, a.cfg, a.logger).Run},
					{"verify", lifecycle.New(a.store, a.llm, pool, a.cfg, a.logger).Run},
					{"roundup", roundup.New(a.store, a.llm, a.cfg, a.logger).Run},
				}
				for _, stage := range stages {
					a.logger.Info("pipeline stage starting", "stage", stage.name)
					if err := stage.run(ctx); err != nil {
						if stopOnError {
							return fmt.Errorf("stage %s: %w", stage.name, err)
						}
						a.logger.Error("pipeline stage failed, continuing", "stage", stage.name, "error", err)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "abort the run on the first failing stage")
	return cmd
}

func newDedupeCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Deduplicate scheduled follow-ups by (claim, date)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				res, err := maintenance.New(a.store, a.logger).DedupeFollowUps(ctx, dryRun)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "groups=%d deleted=%d dry_run=%v\n",
					res.Groups, res.Deleted, res.DryRun)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log the deletion plan without deleting")
	return cmd
}

func newPruneCmd(opts *rootOptions) *cobra.Command {
	var keepDays int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete model call logs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				keep := time.Duration(keepDays) * 24 * time.Hour
				deleted, err := maintenance.New(a.store, a.logger).PruneLMLogs(ctx, keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted=%d\n", deleted)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keepDays, "keep-days", 90, "retention window in days")
	return cmd
}

func newUsageCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Print the day's aggregated model usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				day := dates.PipelineToday()
				if date != "" {
					parsed, err := dates.ParseDate(date)
					if err != nil {
						return fmt.Errorf("invalid --date: %w", err)
					}
					day = parsed
				}
				report, err := maintenance.New(a.store, a.logger).UsageReport(ctx, day)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "report date (YYYY-MM-DD), defaults to the pipeline date")
	return cmd
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Insert articles from a JSON file, skipping links already stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read ingest file: %w", err)
				}
				var articles []*models.Article
				if err := json.Unmarshal(data, &articles); err != nil {
					return fmt.Errorf("parse ingest file: %w", err)
				}

				inserted, skipped := 0, 0
				for _, art := range articles {
					if art.Link == "" {
						a.logger.Warn("skipping article without link", "title", art.Title)
						skipped++
						continue
					}
					if _, err := a.store.Articles.GetByLink(ctx, art.Link); err == nil {
						skipped++
						continue
					}
					if err := a.store.Articles.Insert(ctx, art); err != nil {
						return fmt.Errorf("insert article %s: %w", art.Link, err)
					}
					inserted++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "inserted=%d skipped=%d\n", inserted, skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON array of articles")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, func(ctx context.Context, a *app) error {
				if port == 0 {
					if v, err := strconv.Atoi(getEnv("HTTP_PORT", "")); err == nil && v > 0 {
						port = v
					}
				}
				if port > 0 {
					a.cfg.API.Port = port
				}
				return api.NewServer(a.store, a.cfg.API, a.logger).Run(ctx)
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port, overrides the configured value (env HTTP_PORT)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the docket version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}
