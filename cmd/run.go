package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-scraper/internal/model"
	"github.com/sells-group/contact-scraper/internal/pipeline"
	"github.com/sells-group/contact-scraper/internal/sheet"
	"github.com/sells-group/contact-scraper/internal/store"
)

var (
	runInput       string
	runOutput      string
	runFormat      string
	runColumn      string
	runHeader      bool
	runConcurrency int
	runLimit       int
	runDryRun      bool
	runWithErrors  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape contacts for every company in a spreadsheet",
	Long:  "Reads an .xlsx or .csv company list, resolves and scrapes each company, and writes Company, Website, Emails, Phones and Status to the output file. SIGINT/SIGTERM stop the run after in-flight companies finish; the partial table is still written.",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := sheet.LoadFile(runInput, sheet.LoadOptions{Column: runColumn, Header: runHeader})
		if err != nil {
			return err
		}
		if runLimit > 0 && runLimit < len(records) {
			records = records[:runLimit]
		}

		format, output, err := resolveOutput(runOutput, runFormat, cfg.Run.Output, cfg.Run.Format)
		if err != nil {
			return err
		}

		concurrency := runConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Run.Concurrency
		}

		env, err := initScraper(cmd.Context(), !runDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		if runDryRun {
			printQueries(os.Stdout, env.Resolver, records)
			return nil
		}

		report, err := runBatch(cmd.Context(), env, runInput, records, concurrency)
		if err != nil {
			return err
		}

		if err := sheet.ExportFile(output, report.Results, sheet.ExportOptions{
			Format:     format,
			ListSep:    cfg.Run.ListSep,
			WithErrors: runWithErrors,
		}); err != nil {
			return eris.Wrap(err, "export results")
		}

		zap.L().Info("results written",
			zap.String("output", output),
			zap.String("format", string(format)),
			zap.Int("rows", len(report.Results)),
		)
		formatReport(os.Stdout, report, output)
		return nil
	},
}

// runBatch executes records under signal handling. The first signal asks
// the run to stop cooperatively; a second one kills the process.
func runBatch(parent context.Context, env *scraperEnv, source string, records []model.CompanyRecord, concurrency int) (*pipeline.RunReport, error) {
	id := uuid.New().String()
	var checkpoint pipeline.Checkpointer
	if env.Store != nil {
		run, err := env.Store.CreateRun(parent, filepath.Base(source), len(records))
		if err != nil {
			return nil, eris.Wrap(err, "create run")
		}
		id = run.ID
		checkpoint = env.Store
	}
	rc := pipeline.NewRunContext(id, len(records))

	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCtx.Done():
			if parent.Err() == nil {
				zap.L().Warn("stop requested, finishing in-flight companies", zap.String("run_id", id))
				rc.Stop()
			}
			stop()
		case <-done:
		}
	}()

	report, err := env.Runner.Run(parent, records, pipeline.RunOptions{
		Concurrency: concurrency,
		RunContext:  rc,
		Checkpoint:  checkpoint,
		Progress:    logProgress,
	})
	if err != nil {
		return nil, eris.Wrap(err, "run")
	}

	if env.Store != nil {
		finishCtx := context.WithoutCancel(parent)
		if err := env.Store.FinishRun(finishCtx, id, store.Finish{State: report.State, Counts: report.Counts}); err != nil {
			zap.L().Warn("finish run failed", zap.String("run_id", id), zap.Error(err))
		}
	}
	return report, nil
}

func logProgress(p pipeline.Progress) {
	if p.Result == nil {
		zap.L().Debug("company progress",
			zap.Int("index", p.Index),
			zap.String("company", p.Company),
			zap.String("state", string(p.State)),
		)
		return
	}
	zap.L().Info("company done",
		zap.String("progress", fmt.Sprintf("%d/%d", p.Done, p.Total)),
		zap.String("company", p.Company),
		zap.String("status", string(p.Result.Status)),
		zap.String("website", p.Result.Website),
		zap.Int("emails", len(p.Result.Emails)),
		zap.Int("phones", len(p.Result.Phones)),
	)
}

// resolveOutput picks the output format and path. An explicit format wins;
// otherwise the path's extension decides. A path without an extension gets
// one.
func resolveOutput(flagOutput, flagFormat, cfgOutput, cfgFormat string) (sheet.Format, string, error) {
	output := flagOutput
	if output == "" {
		output = cfgOutput
	}
	if output == "" {
		output = "results"
	}

	var format sheet.Format
	switch {
	case flagFormat != "":
		f, err := sheet.ParseFormat(flagFormat)
		if err != nil {
			return "", "", err
		}
		format = f
	case filepath.Ext(output) != "":
		format = sheet.FormatFromPath(output)
	default:
		f, err := sheet.ParseFormat(cfgFormat)
		if err != nil {
			return "", "", err
		}
		format = f
	}

	if filepath.Ext(output) == "" {
		output += format.Ext()
	}
	return format, output, nil
}

// queryBuilder is the slice of the resolver the dry run needs.
type queryBuilder interface {
	BuildQuery(rec model.CompanyRecord) string
}

func printQueries(w io.Writer, qb queryBuilder, records []model.CompanyRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tCOMPANY\tQUERY")
	for _, rec := range records {
		q := qb.BuildQuery(rec)
		if rec.Query() == "" {
			q = "(skipped)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", rec.Row, rec.Name, q)
	}
	_ = tw.Flush()
}

func formatReport(w io.Writer, report *pipeline.RunReport, output string) {
	fmt.Fprintf(w, "Run %s: %s (%d/%d companies in %s)\n",
		report.ID, report.State, report.Processed, report.Total, report.Duration.Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range model.AllStatuses {
		if n := report.Counts[s]; n > 0 {
			fmt.Fprintf(tw, "  %s\t%d\n", s, n)
		}
	}
	_ = tw.Flush()
	if output != "" {
		fmt.Fprintf(w, "Results: %s\n", output)
	}
	if report.State == model.RunStoppedByUser {
		fmt.Fprintln(w, "Stopped early; the file holds the companies finished so far.")
	}
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "input .xlsx or .csv file (required)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output file (default from config)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "", "output format: xlsx, csv or json")
	runCmd.Flags().StringVar(&runColumn, "column", "", "company column header (default \"Company\", else first column)")
	runCmd.Flags().BoolVar(&runHeader, "header", false, "treat the first row as a header")
	runCmd.Flags().IntVarP(&runConcurrency, "concurrency", "c", 0, "companies processed in parallel (default from config)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "process at most N companies (0 = all)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the search queries without fetching anything")
	runCmd.Flags().BoolVar(&runWithErrors, "with-errors", false, "add an Error column to the output")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
