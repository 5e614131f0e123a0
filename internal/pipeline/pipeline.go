// Package pipeline orchestrates one crawl run: paginate search results
// per keyword, gate out already-ingested URLs, fetch and parse detail
// pages, and merge extracted contacts into business cards. Work is
// sequential with one fetch in flight; pacing keeps the portal from
// throttling the run early.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bidwatch/bidcard/internal/card"
	"github.com/bidwatch/bidcard/internal/extract"
	"github.com/bidwatch/bidcard/internal/model"
	"github.com/bidwatch/bidcard/internal/resilience"
	"github.com/bidwatch/bidcard/internal/search"
	"github.com/bidwatch/bidcard/internal/store"
	"github.com/bidwatch/bidcard/pkg/render"
)

// Options tune one crawl run. Zero values fall back to conservative
// defaults matched to the portal's throttling behavior.
type Options struct {
	// PageCap bounds pagination per keyword. Default 5.
	PageCap int

	// DelayMin/DelayMax bound the random jitter added before each fetch
	// after the first. Defaults 1s..3s.
	DelayMin time.Duration
	DelayMax time.Duration

	// Retry is the fetch retry policy. Zero value uses the defaults.
	Retry resilience.RetryConfig
}

func (o Options) withDefaults() Options {
	if o.PageCap <= 0 {
		o.PageCap = 5
	}
	if o.DelayMin <= 0 {
		o.DelayMin = time.Second
	}
	if o.DelayMax < o.DelayMin {
		o.DelayMax = 3 * time.Second
		if o.DelayMax < o.DelayMin {
			o.DelayMax = o.DelayMin
		}
	}
	return o
}

// Pipeline wires the crawl stages over a store and a rendering client.
type Pipeline struct {
	store     store.Store
	fetcher   render.Client
	searcher  *search.Searcher
	extractor *extract.Extractor
	merger    *card.Merger
	gate      *DedupGate
	limiter   *rate.Limiter
	opts      Options
}

// New builds a pipeline. searchBaseURL is the bxsearch endpoint,
// portalBase resolves relative detail links, lookbackRunes configures
// the contact extractor's role-anchor window.
func New(st store.Store, fetcher render.Client, searchBaseURL, portalBase string, lookbackRunes int, opts Options) *Pipeline {
	opts = opts.withDefaults()

	// One fetch at a time at most; the limiter sets the floor while the
	// jitter spreads requests inside the window.
	limiter := rate.NewLimiter(rate.Every(opts.DelayMin), 1)

	p := &Pipeline{
		store:     st,
		fetcher:   fetcher,
		extractor: extract.NewExtractor(lookbackRunes),
		merger:    card.NewMerger(st),
		gate:      NewDedupGate(st),
		limiter:   limiter,
		opts:      opts,
	}
	p.searcher = search.NewSearcher(fetcher, searchBaseURL, portalBase, p.pace)
	return p
}

// pace blocks until the next fetch is allowed: limiter floor plus a
// random jitter within the configured window.
func (p *Pipeline) pace(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	window := p.opts.DelayMax - p.opts.DelayMin
	if window <= 0 {
		return nil
	}
	timer := time.NewTimer(rand.N(window))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run crawls every keyword with the shared facet params and returns the
// persisted run ledger row. Per-item failures are counted and skipped;
// store write failures abort the run with status failed.
func (p *Pipeline) Run(ctx context.Context, keywords []string, params search.Params) (*model.CrawlRun, error) {
	run, err := p.store.CreateRun(ctx, marshalParams(keywords, params))
	if err != nil {
		return nil, err
	}

	summary := &model.RunSummary{Keywords: make(map[string]model.KeywordStatus, len(keywords))}
	runErr := p.crawl(ctx, keywords, params, summary)

	status := model.RunStatusComplete
	switch {
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = model.RunStatusCanceled
	case runErr != nil:
		status = model.RunStatusFailed
	}

	// Finish the ledger row even when the run context is gone.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.FinishRun(finishCtx, run.ID, status, summary); err != nil {
		zap.L().Error("pipeline: finish run", zap.String("run_id", run.ID), zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	run.Status = status
	run.Summary = summary

	zap.L().Info("pipeline: run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("stubs_seen", summary.StubsSeen),
		zap.Int("new_announcements", summary.NewAnnouncements),
		zap.Int("skipped_duplicates", summary.SkippedDuplicates),
		zap.Int("failed_items", summary.FailedItems),
		zap.Int("card_writes", summary.CardWrites),
	)
	return run, runErr
}

func (p *Pipeline) crawl(ctx context.Context, keywords []string, params search.Params, summary *model.RunSummary) error {
	for _, kw := range keywords {
		if err := ctx.Err(); err != nil {
			return err
		}

		kwParams := params
		kwParams.Keyword = kw

		status, err := p.searcher.Run(ctx, kwParams, p.opts.PageCap, func(stub model.Stub) error {
			return p.ingest(ctx, stub, summary)
		})
		if err != nil {
			summary.Keywords[kw] = model.KeywordStatus("aborted")
			return err
		}
		summary.Keywords[kw] = status

		zap.L().Info("pipeline: keyword done",
			zap.String("keyword", kw),
			zap.String("status", string(status)),
		)
	}
	return nil
}

// ingest processes one search-result stub end to end. Fetch and parse
// failures mark the item failed and return nil so the keyword continues;
// store errors propagate and abort the run.
func (p *Pipeline) ingest(ctx context.Context, stub model.Stub, summary *model.RunSummary) error {
	summary.StubsSeen++

	url := extract.CleanURL(stub.URL)
	if _, ok, err := p.gate.AlreadyIngested(ctx, url); err != nil {
		return err
	} else if ok {
		summary.SkippedDuplicates++
		zap.L().Debug("pipeline: url already ingested", zap.String("url", url))
		return nil
	}

	if err := p.pace(ctx); err != nil {
		return err
	}

	retry := p.opts.Retry
	retry.OnRetry = resilience.RetryLogger("fetch detail", url)
	html, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		return p.fetcher.Fetch(ctx, url)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary.FailedItems++
		zap.L().Warn("pipeline: detail fetch failed, skipping item",
			zap.String("url", url), zap.Error(err))
		return nil
	}

	page, err := extract.Parse(html)
	if err != nil {
		summary.FailedItems++
		zap.L().Warn("pipeline: detail parse failed, skipping item",
			zap.String("url", url), zap.Error(err))
		return nil
	}

	ann := announcementFrom(stub, url, &page.Detail)
	annID, created, err := p.store.InsertAnnouncement(ctx, ann)
	if err != nil {
		return err
	}
	if !created {
		// Another keyword in this run won the race for the same URL.
		summary.SkippedDuplicates++
		return nil
	}
	summary.NewAnnouncements++

	mentions := p.extractor.Mentions(page)
	writes, err := p.merger.Merge(ctx, annID, &page.Detail, mentions)
	if err != nil {
		return err
	}
	summary.CardWrites += writes

	zap.L().Debug("pipeline: announcement ingested",
		zap.Int64("announcement_id", annID),
		zap.String("url", url),
		zap.Int("mentions", len(mentions)),
		zap.Int("card_writes", writes),
	)
	return nil
}

// announcementFrom combines the result-row stub with parsed detail
// fields; the detail page wins where both carry a value.
func announcementFrom(stub model.Stub, url string, d *model.Detail) *model.Announcement {
	ann := &model.Announcement{
		Title:       firstNonEmpty(d.Title, extract.CleanTitle(stub.Title)),
		URL:         url,
		Content:     d.Content,
		PublishDate: firstNonEmpty(d.PublishDate, extract.CleanDate(stub.PublishDate)),
		Source:      stub.Source,
		BuyerName:   firstNonEmpty(d.BuyerName, stub.BuyerName),
		AgentName:   firstNonEmpty(d.AgentName, stub.AgentName),
		ScrapedAt:   time.Now().UTC(),
	}
	return ann
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func marshalParams(keywords []string, params search.Params) string {
	payload := struct {
		Keywords []string      `json:"keywords"`
		Params   search.Params `json:"params"`
	}{Keywords: keywords, Params: params}
	b, _ := json.Marshal(payload) // plain string fields, cannot fail
	return string(b)
}
