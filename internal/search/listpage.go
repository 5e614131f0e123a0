package search

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/bidwatch/bidcard/internal/model"
)

const (
	resultItemSelector = "ul.vT-srch-result-list-bid > li"

	buyerPrefix = "采购人："
	agentPrefix = "代理机构："
)

// throttleMarkers are the portal's rate-limit phrases. Their presence in a
// page body means pagination must stop for the current keyword.
var throttleMarkers = []string{"访问过于频繁", "稍后再试"}

// IsThrottled reports whether a rendered page body carries a rate-limit
// marker.
func IsThrottled(doc *goquery.Document) bool {
	body := doc.Find("body").Text()
	for _, marker := range throttleMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// parseResultList extracts announcement stubs from one rendered result
// page. Relative detail links are resolved against portalBase. Rows
// without a link or title are skipped.
func parseResultList(doc *goquery.Document, portalBase string) ([]model.Stub, error) {
	base, err := url.Parse(portalBase)
	if err != nil {
		return nil, eris.Wrapf(err, "search: parse portal base %s", portalBase)
	}

	var stubs []model.Stub
	doc.Find(resultItemSelector).Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a[href]").First()
		href, ok := a.Attr("href")
		title := strings.Join(strings.Fields(a.Text()), " ")
		href = strings.TrimSpace(href)
		if !ok || title == "" || href == "" {
			return
		}

		if !strings.HasPrefix(href, "http") {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}

		stub := model.Stub{
			Title:  title,
			URL:    href,
			Source: "ccgp-bxsearch",
		}

		// The info line packs "date | 采购人：... | 代理机构：...".
		info := strings.Join(strings.Fields(li.Find("span").First().Text()), " ")
		if info != "" {
			parts := strings.Split(info, "|")
			for i, part := range parts {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				switch {
				case i == 0:
					stub.PublishDate = part
				case strings.HasPrefix(part, buyerPrefix):
					stub.BuyerName = strings.TrimSpace(strings.TrimPrefix(part, buyerPrefix))
				case strings.HasPrefix(part, agentPrefix):
					stub.AgentName = strings.TrimSpace(strings.TrimPrefix(part, agentPrefix))
				}
			}
		}

		stubs = append(stubs, stub)
	})

	return stubs, nil
}
