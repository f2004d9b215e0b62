package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
	"go-customer-intel/internal/pipeline"
	"go-customer-intel/internal/store"
)

var (
	runData string
	runOut  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every pipeline stage once and write the outputs",
	Long: `Run executes the twelve stages in order on one dataset. A failed stage is
reported and the run continues; Ctrl-C stops after the current stage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := cfg.ToRunParams()
		if runData != "" {
			params.DataPath = runData
		}
		if runOut != "" {
			params.OutputDir = runOut
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.ErrOrStderr()
		opts := []pipeline.Option{pipeline.WithObserver(progressPrinter(out))}
		if cfg.Store.Enabled {
			wh, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer wh.Close()
			opts = append(opts, pipeline.WithStore(wh))
		}

		result := pipeline.NewOrchestrator(params, opts...).Run(ctx)

		printSummary(cmd.OutOrStdout(), result.Status)
		switch {
		case result.Status.Status == model.RunCancelled:
			return errors.New("pipeline cancelled")
		case len(result.Status.StagesFailed) > 0:
			return errors.Newf("%d stage(s) failed: %v", len(result.Status.StagesFailed), result.Status.StagesFailed)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runData, "data", "d", "", "dataset to analyse (overrides data.path)")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "output directory (overrides output.dir)")
}

func progressPrinter(w io.Writer) model.ProgressObserver {
	return func(ev model.ProgressEvent) {
		switch ev.Status {
		case model.StatusRunning:
			return
		case model.StatusFailed:
			fmt.Fprintf(w, "[%5.1f%%] FAILED %s\n", ev.Progress, ev.Message)
		default:
			fmt.Fprintf(w, "[%5.1f%%] %s\n", ev.Progress, ev.Message)
		}
	}
}

func printSummary(w io.Writer, run model.PipelineRun) {
	fmt.Fprintf(w, "\nRun %s %s in %.2fs\n", run.RunID, run.Status, run.ExecutionTimeSeconds)
	fmt.Fprintf(w, "Outputs: %s\n\n", run.OutputDir)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tDURATION")
	for _, t := range run.Timings {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Stage, t.Status, t.Duration.Round(time.Millisecond))
	}
	for _, s := range run.StagesSkipped {
		fmt.Fprintf(tw, "%s\t%s\t-\n", s, model.StatusSkipped)
	}
	tw.Flush()

	for _, e := range run.Errors {
		fmt.Fprintf(w, "\n%s [%s]: %s\n", e.Stage, e.Kind, e.Error)
	}
}
