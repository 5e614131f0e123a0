package search

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwatch/bidcard/internal/model"
)

// pageFetcher serves canned HTML keyed by page_index.
type pageFetcher struct {
	pages map[int]string
	calls []string
}

func (f *pageFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.calls = append(f.calls, url)
	for page, html := range f.pages {
		if containsParam(url, fmt.Sprintf("page_index=%d", page)) {
			return html, nil
		}
	}
	return "", eris.Errorf("no fixture for %s", url)
}

func containsParam(url, param string) bool {
	return strings.Contains(url, "?"+param) || strings.Contains(url, "&"+param)
}

func resultPage(rows ...string) string {
	body := ""
	for _, r := range rows {
		body += r
	}
	return `<html><body><ul class="vT-srch-result-list-bid">` + body + `</ul></body></html>`
}

func row(title, href, info string) string {
	return fmt.Sprintf(`<li><a href="%s">%s</a><span>%s</span></li>`, href, title, info)
}

const emptyPage = `<html><body><ul class="vT-srch-result-list-bid"></ul></body></html>`

func collect(t *testing.T, s *Searcher, params Params, cap int) ([]model.Stub, model.KeywordStatus) {
	t.Helper()
	var stubs []model.Stub
	status, err := s.Run(context.Background(), params, cap, func(stub model.Stub) error {
		stubs = append(stubs, stub)
		return nil
	})
	require.NoError(t, err)
	return stubs, status
}

func TestRun_PaginatesUntilExhausted(t *testing.T) {
	f := &pageFetcher{pages: map[int]string{
		1: resultPage(
			row("机房改造中标公告", "https://www.ccgp.gov.cn/zb/1.htm", "2026.08.20 10:00:00 | 采购人：浙江警察学院 | 代理机构：某代理公司"),
			row("数据中心项目", "/zb/2.htm", "2026.08.19"),
		),
		2: emptyPage,
	}}
	s := NewSearcher(f, testBase, "https://www.ccgp.gov.cn/", nil)

	stubs, status := collect(t, s, DefaultParams().WithKeyword("机房"), 5)

	assert.Equal(t, model.KeywordExhausted, status)
	require.Len(t, stubs, 2)
	assert.Equal(t, "机房改造中标公告", stubs[0].Title)
	assert.Equal(t, "浙江警察学院", stubs[0].BuyerName)
	assert.Equal(t, "某代理公司", stubs[0].AgentName)
	assert.Equal(t, "2026.08.20 10:00:00", stubs[0].PublishDate)
	// Relative link resolved against the portal base.
	assert.Equal(t, "https://www.ccgp.gov.cn/zb/2.htm", stubs[1].URL)
	assert.Equal(t, "ccgp-bxsearch", stubs[1].Source)
}

func TestRun_StopsAtPageCap(t *testing.T) {
	full := resultPage(row("t", "https://www.ccgp.gov.cn/a.htm", "2026.08.20"))
	f := &pageFetcher{pages: map[int]string{1: full, 2: full, 3: full}}
	s := NewSearcher(f, testBase, "https://www.ccgp.gov.cn/", nil)

	stubs, status := collect(t, s, DefaultParams().WithKeyword("kw"), 2)

	assert.Equal(t, model.KeywordPageCap, status)
	assert.Len(t, stubs, 2)
	assert.Len(t, f.calls, 2)
}

// Scenario: a page body carries the throttle marker. Stubs on that page
// are still yielded, the keyword ends THROTTLED, no error is raised.
func TestRun_ThrottleMarkerIsCleanStop(t *testing.T) {
	throttledPage := `<html><body><ul class="vT-srch-result-list-bid">` +
		row("先到的结果", "https://www.ccgp.gov.cn/z.htm", "2026.08.18") +
		`</ul><div>访问过于频繁，请稍后再试</div></body></html>`
	f := &pageFetcher{pages: map[int]string{1: throttledPage}}
	s := NewSearcher(f, testBase, "https://www.ccgp.gov.cn/", nil)

	stubs, status := collect(t, s, DefaultParams().WithKeyword("kw"), 5)

	assert.Equal(t, model.KeywordThrottled, status)
	require.Len(t, stubs, 1)
	assert.Equal(t, "先到的结果", stubs[0].Title)
	assert.Len(t, f.calls, 1, "no further pages fetched after throttle")
}

func TestRun_YieldErrorAborts(t *testing.T) {
	f := &pageFetcher{pages: map[int]string{
		1: resultPage(row("t", "https://www.ccgp.gov.cn/a.htm", "2026.08.20")),
	}}
	s := NewSearcher(f, testBase, "https://www.ccgp.gov.cn/", nil)

	_, err := s.Run(context.Background(), DefaultParams().WithKeyword("kw"), 5, func(model.Stub) error {
		return eris.New("store write failed")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store write failed")
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSearcher(&pageFetcher{}, testBase, "https://www.ccgp.gov.cn/", nil)
	_, err := s.Run(ctx, DefaultParams().WithKeyword("kw"), 5, func(model.Stub) error { return nil })
	require.Error(t, err)
}

func TestRun_SkipsRowsWithoutLink(t *testing.T) {
	page := `<html><body><ul class="vT-srch-result-list-bid">` +
		`<li><span>no link here</span></li>` +
		row("valid", "https://www.ccgp.gov.cn/v.htm", "2026.08.20") +
		`</ul></body></html>`
	f := &pageFetcher{pages: map[int]string{1: page, 2: emptyPage}}
	s := NewSearcher(f, testBase, "https://www.ccgp.gov.cn/", nil)

	stubs, _ := collect(t, s, DefaultParams().WithKeyword("kw"), 5)
	require.Len(t, stubs, 1)
	assert.Equal(t, "valid", stubs[0].Title)
}
