package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"recipe-ingest/internal/core/ai/cache"
	"recipe-ingest/internal/core/ai/generator"
	"recipe-ingest/internal/core/ai/queue"
	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := common.InitLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	input, err := pipeline.LoadInputFile(args[0], cfg.Pipeline.MaxBatchSize)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	respCache, err := cache.New(&cfg.Cache)
	if err != nil {
		return err
	}
	if respCache != nil {
		defer respCache.Close()
	}

	gen, err := generator.NewFromConfig(ctx, cfg, respCache, queue.NewManager(cfg.Queue))
	if err != nil {
		return err
	}
	defer gen.Close()

	report, err := pipeline.NewOrchestrator(s, gen, cfg.Pipeline).Run(ctx, input, pipeline.Options{
		DryRun:  dryRun,
		Workers: workers,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printReport(out, report, showStats)
	if outputPath != "" {
		if err := report.WriteFile(outputPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "report written to %s\n", outputPath)
	}

	common.LogInfo("匯入結束", zap.String("batch", report.BatchName), zap.String("stats", report.StatsLine()))
	if report.HasErrors() {
		return errItemsFailed
	}
	return nil
}

// printReport 輸出人類可讀的摘要
func printReport(w io.Writer, r *pipeline.Report, stats bool) {
	mode := ""
	if r.DryRun {
		mode = " (dry-run)"
	}
	fmt.Fprintf(w, "batch %s%s\n", r.BatchName, mode)
	fmt.Fprintln(w, r.StatsLine())

	for _, c := range r.Created {
		fmt.Fprintf(w, "  + %s [%s]\n", c.Name, c.ID)
	}
	for _, v := range r.Validated {
		fmt.Fprintf(w, "  ~ %s\n", v.Name)
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "  = %s: %s\n", s.Name, s.Reason)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  ! %s [%s/%s]: %s\n", e.Description, e.Stage, e.Code, e.Error)
	}

	if !stats || r.Audit == nil {
		return
	}
	fmt.Fprintln(w, "audit:")
	kinds := make([]string, 0, len(r.Audit.Counts))
	for k := range r.Audit.Counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		actions := make([]string, 0, len(r.Audit.Counts[k]))
		for a := range r.Audit.Counts[k] {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		for _, a := range actions {
			fmt.Fprintf(w, "  %s.%s=%d\n", k, a, r.Audit.Counts[k][a])
		}
	}
	if r.Audit.WriteFailures > 0 {
		fmt.Fprintf(w, "  audit write failures=%d\n", r.Audit.WriteFailures)
	}
}
