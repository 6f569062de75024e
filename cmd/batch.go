package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spirits-cli/internal/batch"
	"github.com/sells-group/spirits-cli/internal/fetcher"
	"github.com/sells-group/spirits-cli/internal/itemsource"
	"github.com/sells-group/spirits-cli/internal/model"
)

var (
	batchSeed        bool
	batchEnrich      bool
	batchLimit       int
	batchConcurrency int
	batchJSON        bool
	batchNoProgress  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [items-file-or-url]",
	Short: "Extract, deduplicate and store spirits from a CSV, XLSX, JSON or YAML file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if !batchEnrich && len(args) == 0 {
			return eris.New("an items file is required unless --enrich is set")
		}

		env, err := initEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		bc, err := brandConfig(cfg.Brands)
		if err != nil {
			return err
		}
		opts := batchOptions(cfg.Batch, bc)
		if batchConcurrency > 0 {
			opts.Concurrency = batchConcurrency
		}

		res, err := runBatch(ctx, env.Processor, args, opts)
		if err != nil {
			return err
		}
		return printBatchResult(res)
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchSeed, "seed", false, "process items in chunks with a pause between chunks")
	batchCmd.Flags().BoolVar(&batchEnrich, "enrich", false, "re-extract stored spirits with missing fields")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of items to process")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "worker pool size (default from config)")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print the full batch result as JSON")
	batchCmd.Flags().BoolVar(&batchNoProgress, "no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(batchCmd)
}

// runBatch picks the processing mode from the flags.
func runBatch(ctx context.Context, p *batch.Processor, args []string, opts batch.Options) (*model.BatchResult, error) {
	if p == nil {
		return nil, eris.New("batch processor is not configured (search.key and search.engine_id)")
	}

	if batchEnrich {
		var stop func()
		opts.OnProgress, stop = progressReporter(batchLimit)
		defer stop()
		return p.ProcessEnrichment(ctx, batchLimit, opts)
	}

	items, err := readItems(ctx, args[0])
	if err != nil {
		return nil, err
	}
	items = limitItems(items, batchLimit)
	if batchSeed {
		items = markSeeded(items)
	}
	if len(items) == 0 {
		pterm.Info.Println("No items to process")
		return &model.BatchResult{}, nil
	}

	var stop func()
	opts.OnProgress, stop = progressReporter(len(items))
	defer stop()
	if batchSeed {
		return p.ProcessChunked(ctx, items, cfg.Batch.ChunkSize,
			time.Duration(cfg.Batch.ChunkDelayMs)*time.Millisecond, opts)
	}
	return p.ProcessBatch(ctx, items, opts)
}

// readItems loads a local file or downloads an http(s) or ftp URL.
func readItems(ctx context.Context, src string) ([]model.WorkItem, error) {
	if itemsource.IsURL(src) {
		f := fetcher.NewSchemeFetcher(
			fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Retry: retryConfig()}),
			fetcher.NewFTPFetcher(fetcher.FTPOptions{Retry: retryConfig()}),
		)
		return itemsource.ReadURL(ctx, f, src)
	}
	return itemsource.Read(ctx, src)
}

func limitItems(items []model.WorkItem, limit int) []model.WorkItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func markSeeded(items []model.WorkItem) []model.WorkItem {
	out := make([]model.WorkItem, len(items))
	for i, it := range items {
		md := make(model.Metadata, len(it.Metadata)+1)
		for k, v := range it.Metadata {
			md[k] = v
		}
		md[model.MetaSeeded] = "true"
		it.Metadata = md
		out[i] = it
	}
	return out
}

// progressReporter returns a progress callback that drives a terminal bar
// and a func that stops the bar. Both are no-ops when output is not a
// terminal progress view.
func progressReporter(total int) (func(model.BatchProgress), func()) {
	if batchNoProgress || batchJSON || total <= 0 {
		return nil, func() {}
	}
	bar, err := pterm.DefaultProgressbar.WithTotal(total).WithTitle("Processing spirits").Start()
	if err != nil {
		return nil, func() {}
	}
	var once sync.Once
	stop := func() { once.Do(func() { _, _ = bar.Stop() }) }

	return func(p model.BatchProgress) {
		bar.UpdateTitle(fmt.Sprintf("Processing %s", p.CurrentItem))
		bar.Increment()
		if p.Completed >= total {
			stop()
		}
	}, stop
}

func printBatchResult(res *model.BatchResult) error {
	if batchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	rate := 0.0
	if res.TotalProcessed > 0 {
		rate = float64(len(res.Successful)) / float64(res.TotalProcessed) * 100
	}
	pterm.Success.Printfln("Processed %d items in %s", res.TotalProcessed, res.Duration.Round(time.Millisecond))
	_ = pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Outcome", "Count"},
		{"successful", fmt.Sprintf("%d", len(res.Successful))},
		{"duplicates", fmt.Sprintf("%d", len(res.Duplicates))},
		{"failed", fmt.Sprintf("%d", len(res.Failed))},
		{"success rate", fmt.Sprintf("%.1f%%", rate)},
	}).Render()

	for _, f := range res.Failed {
		pterm.Warning.Printfln("%s: %s", f.Query, f.Error)
	}
	return nil
}
