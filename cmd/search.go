package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bidwatch/bidcard/internal/model"
	"github.com/bidwatch/bidcard/internal/pipeline"
	"github.com/bidwatch/bidcard/internal/resilience"
	"github.com/bidwatch/bidcard/internal/search"
	"github.com/bidwatch/bidcard/internal/store"
	"github.com/bidwatch/bidcard/pkg/render"
)

var (
	searchKeywords   []string
	searchKwFile     string
	searchPresetFile string
	searchPresetName string
	searchType       string
	searchCategory   string
	searchPinMu      string
	searchBidType    string
	searchTime       string
	searchStartDate  string
	searchEndDate    string
	searchMaxPages   int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Crawl announcement search results and merge contacts into cards",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if searchPresetFile != "" {
			return runPresets(ctx, st, searchPresetFile, searchPresetName)
		}

		keywords, err := search.LoadKeywords(searchKeywords, searchKwFile)
		if err != nil {
			return err
		}
		if len(keywords) == 0 {
			return eris.New("no keywords: pass --kw, --kw-file, or --preset-file")
		}

		params := search.Params{
			SearchType: searchType,
			BidSort:    searchCategory,
			PinMu:      searchPinMu,
			BidType:    searchBidType,
			TimeType:   searchTime,
			StartDate:  searchStartDate,
			EndDate:    searchEndDate,
		}

		p := buildPipeline(st, searchMaxPages)
		run, err := p.Run(ctx, keywords, params)
		if run != nil {
			logRun(run)
		}
		if err != nil {
			return eris.Wrap(err, "search run")
		}
		return nil
	},
}

// runPresets executes every enabled preset from the file, or just the
// named one. Each preset is its own crawl run with its own ledger row.
func runPresets(ctx context.Context, st store.Store, file, name string) error {
	presets, err := search.LoadPresets(file)
	if err != nil {
		return err
	}

	matched := false
	for _, preset := range presets {
		if name != "" && preset.Name != name {
			continue
		}
		matched = true

		zap.L().Info("running preset", zap.String("preset", preset.Name))
		p := buildPipeline(st, preset.MaxPages)
		run, err := p.Run(ctx, preset.Keywords, preset.Params)
		if run != nil {
			logRun(run)
		}
		if err != nil {
			return eris.Wrapf(err, "preset %s", preset.Name)
		}
	}
	if !matched {
		if name != "" {
			return eris.Errorf("preset %s not found or not enabled in %s", name, file)
		}
		return eris.Errorf("no enabled presets in %s", file)
	}
	return nil
}

func buildPipeline(st store.Store, maxPages int) *pipeline.Pipeline {
	retry := resilience.DefaultRetryConfig()
	if cfg.Render.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Render.MaxRetries + 1
	}

	fetcher := render.NewClient(cfg.Render.BaseURL,
		render.WithTimeout(time.Duration(cfg.Render.TimeoutSecs)*time.Second),
		render.WithRetry(retry),
	)

	if maxPages <= 0 {
		maxPages = cfg.Search.MaxPages
	}

	return pipeline.New(st, fetcher, cfg.Search.BaseURL, cfg.Search.PortalBaseURL, cfg.Extract.LookbackWindow, pipeline.Options{
		PageCap:  maxPages,
		DelayMin: time.Duration(cfg.Search.DelayMinMS) * time.Millisecond,
		DelayMax: time.Duration(cfg.Search.DelayMaxMS) * time.Millisecond,
		Retry:    retry,
	})
}

func logRun(run *model.CrawlRun) {
	fields := []zap.Field{
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
	}
	if s := run.Summary; s != nil {
		fields = append(fields,
			zap.Int("stubs_seen", s.StubsSeen),
			zap.Int("new_announcements", s.NewAnnouncements),
			zap.Int("skipped_duplicates", s.SkippedDuplicates),
			zap.Int("failed_items", s.FailedItems),
			zap.Int("card_writes", s.CardWrites),
		)
		for kw, status := range s.Keywords {
			fields = append(fields, zap.String("keyword_"+kw, string(status)))
		}
	}
	zap.L().Info("crawl run finished", fields...)
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchKeywords, "kw", nil, "keywords (repeatable, comma-separated)")
	searchCmd.Flags().StringVar(&searchKwFile, "kw-file", "", "keyword file, one keyword or comma list per line")
	searchCmd.Flags().StringVar(&searchPresetFile, "preset-file", "", "YAML preset file of named filter sets")
	searchCmd.Flags().StringVar(&searchPresetName, "preset", "", "run only the named preset")
	searchCmd.Flags().StringVar(&searchType, "search-type", "fulltext", "search mode: title|fulltext")
	searchCmd.Flags().StringVar(&searchCategory, "category", "all", "procurement level: all|central|local")
	searchCmd.Flags().StringVar(&searchPinMu, "pinmu", "all", "purchase category: all|goods|engineering|services")
	searchCmd.Flags().StringVar(&searchBidType, "bid-type", "all", "announcement type facet")
	searchCmd.Flags().StringVar(&searchTime, "time", "1week", "time window: today|3days|1week|1month|3months|halfyear|custom")
	searchCmd.Flags().StringVar(&searchStartDate, "start-date", "", "custom window start (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchEndDate, "end-date", "", "custom window end (YYYY-MM-DD)")
	searchCmd.Flags().IntVar(&searchMaxPages, "max-pages", 0, "page cap per keyword (default from config)")
	rootCmd.AddCommand(searchCmd)
}
