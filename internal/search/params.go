package search

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Facet value maps mirror the portal's bxsearch query contract. Keys are
// the accepted CLI/API names; values are the integer codes the portal
// expects. Numeric strings pass through unchanged.
var (
	searchTypeMap = map[string]int{
		"title":    1,
		"fulltext": 2,
	}

	bidSortMap = map[string]int{
		"all":     0,
		"central": 1,
		"local":   2,
	}

	pinMuMap = map[string]int{
		"all":         0,
		"goods":       1,
		"engineering": 2,
		"services":    3,
	}

	// bidType 0=所有类型 .. 12=终止公告; both "all" and the portal's
	// Chinese labels are accepted.
	bidTypeMap = map[string]int{
		"all":   0,
		"所有类型":  0,
		"公开招标":  1,
		"询价公告":  2,
		"竞争性谈判": 3,
		"单一来源":  4,
		"资格预审":  5,
		"邀请公告":  6,
		"中标公告":  7,
		"更正公告":  8,
		"其他公告":  9,
		"竞争性磋商": 10,
		"成交公告":  11,
		"终止公告":  12,
	}

	timeTypeMap = map[string]int{
		"today":    0,
		"3days":    1,
		"1week":    2,
		"1month":   3,
		"3months":  4,
		"halfyear": 5,
		"custom":   6,
	}
)

const timeTypeCustom = 6

// Params describes one keyword query against the portal search.
type Params struct {
	Keyword    string `json:"keyword" yaml:"keyword"`
	SearchType string `json:"search_type" yaml:"search_type"`
	BidSort    string `json:"bid_sort" yaml:"bid_sort"`
	PinMu      string `json:"pin_mu" yaml:"pin_mu"`
	BidType    string `json:"bid_type" yaml:"bid_type"`
	TimeType   string `json:"time_type" yaml:"time_type"`
	StartDate  string `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty" yaml:"end_date,omitempty"`
}

// DefaultParams returns the facet defaults used when flags are omitted.
func DefaultParams() Params {
	return Params{
		SearchType: "fulltext",
		BidSort:    "all",
		PinMu:      "all",
		BidType:    "all",
		TimeType:   "1week",
	}
}

// WithKeyword returns a copy of p bound to one keyword.
func (p Params) WithKeyword(kw string) Params {
	p.Keyword = kw
	return p
}

func facetCode(value string, mapping map[string]int, name string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, eris.Errorf("search: %s is required", name)
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n, nil
	}
	if code, ok := mapping[value]; ok {
		return code, nil
	}
	return 0, eris.Errorf("search: unsupported %s: %s", name, value)
}

// dateToColon converts YYYY-MM-DD into the YYYY:MM:DD form the portal
// expects; values already using colons pass through.
func dateToColon(date string) string {
	s := strings.TrimSpace(date)
	if s == "" || strings.Contains(s, ":") {
		return s
	}
	return strings.ReplaceAll(s, "-", ":")
}

// BuildURL constructs the bxsearch list URL for a page index (1-based).
func BuildURL(baseURL string, p Params, pageIndex int) (string, error) {
	searchType, err := facetCode(p.SearchType, searchTypeMap, "search_type")
	if err != nil {
		return "", err
	}
	bidSort, err := facetCode(p.BidSort, bidSortMap, "bid_sort")
	if err != nil {
		return "", err
	}
	pinMu, err := facetCode(p.PinMu, pinMuMap, "pin_mu")
	if err != nil {
		return "", err
	}
	bidType, err := facetCode(p.BidType, bidTypeMap, "bid_type")
	if err != nil {
		return "", err
	}
	timeType, err := facetCode(p.TimeType, timeTypeMap, "time_type")
	if err != nil {
		return "", err
	}

	startTime := dateToColon(p.StartDate)
	endTime := dateToColon(p.EndDate)
	if timeType == timeTypeCustom && (startTime == "" || endTime == "") {
		return "", eris.New("search: custom time_type requires start_date and end_date")
	}

	q := url.Values{}
	q.Set("searchtype", strconv.Itoa(searchType))
	q.Set("page_index", strconv.Itoa(pageIndex))
	q.Set("start_time", startTime)
	q.Set("end_time", endTime)
	q.Set("timeType", strconv.Itoa(timeType))
	q.Set("searchparam", "")
	q.Set("searchchannel", "0")
	q.Set("dbselect", "bidx")
	q.Set("kw", p.Keyword)
	q.Set("bidSort", strconv.Itoa(bidSort))
	q.Set("pinMu", strconv.Itoa(pinMu))
	q.Set("bidType", strconv.Itoa(bidType))
	q.Set("buyerName", "")
	q.Set("projectId", "")
	q.Set("displayZone", "")
	q.Set("zoneId", "")
	q.Set("agentName", "")
	q.Set("pppStatus", "0")

	return baseURL + "?" + q.Encode(), nil
}
