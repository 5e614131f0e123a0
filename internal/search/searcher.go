package search

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bidwatch/bidcard/internal/model"
	"github.com/bidwatch/bidcard/pkg/render"
)

// Searcher paginates the portal's bxsearch result lists for one keyword
// at a time. It is stateless beyond its configuration; stubs are yielded
// to the caller, which owns dedup and detail fetching.
type Searcher struct {
	fetcher    render.Client
	baseURL    string
	portalBase string
	// pace is called before every page fetch after the first. It is a
	// policy hook (randomized delay), not a correctness requirement.
	pace func(ctx context.Context) error
}

// NewSearcher creates a search controller over the rendering client.
func NewSearcher(fetcher render.Client, baseURL, portalBase string, pace func(ctx context.Context) error) *Searcher {
	if pace == nil {
		pace = func(context.Context) error { return nil }
	}
	return &Searcher{
		fetcher:    fetcher,
		baseURL:    baseURL,
		portalBase: portalBase,
		pace:       pace,
	}
}

// YieldFunc receives each parsed stub. Returning an error aborts the
// keyword (used for store-write failures that must stop the run).
type YieldFunc func(stub model.Stub) error

// Run paginates one keyword to its terminal state, yielding every stub.
// Throttling and natural exhaustion both end pagination cleanly; only
// fetch/parse infrastructure failures and yield errors are returned as
// errors. Stubs that precede a throttle marker on the same page are
// still yielded.
func (s *Searcher) Run(ctx context.Context, params Params, pageCap int, fn YieldFunc) (model.KeywordStatus, error) {
	if pageCap <= 0 {
		pageCap = 1
	}

	for page := 1; page <= pageCap; page++ {
		if err := ctx.Err(); err != nil {
			return "", eris.Wrap(err, "search: canceled")
		}
		if page > 1 {
			if err := s.pace(ctx); err != nil {
				return "", eris.Wrap(err, "search: canceled during page delay")
			}
		}

		pageURL, err := BuildURL(s.baseURL, params, page)
		if err != nil {
			return "", err
		}

		html, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return "", eris.Wrapf(err, "search: fetch page %d for %q", page, params.Keyword)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return "", eris.Wrapf(err, "search: parse page %d for %q", page, params.Keyword)
		}

		throttled := IsThrottled(doc)

		stubs, err := parseResultList(doc, s.portalBase)
		if err != nil {
			return "", err
		}
		for _, stub := range stubs {
			if err := fn(stub); err != nil {
				return "", err
			}
		}

		if throttled {
			zap.L().Warn("search: throttle marker detected, stopping keyword",
				zap.String("keyword", params.Keyword),
				zap.Int("page", page),
			)
			return model.KeywordThrottled, nil
		}

		if len(stubs) == 0 {
			zap.L().Debug("search: no result rows, keyword exhausted",
				zap.String("keyword", params.Keyword),
				zap.Int("page", page),
			)
			return model.KeywordExhausted, nil
		}

		zap.L().Debug("search: page parsed",
			zap.String("keyword", params.Keyword),
			zap.Int("page", page),
			zap.Int("stubs", len(stubs)),
		)
	}

	return model.KeywordPageCap, nil
}
