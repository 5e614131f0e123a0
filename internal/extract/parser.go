package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/bidwatch/bidcard/internal/model"
)

// Page is one parsed announcement detail page: the structured fields
// plus the per-role contact lines found in the summary table, which
// carry a known role and bypass the anchor scan.
type Page struct {
	Detail       model.Detail
	ContactLines []ContactLine
}

// ContactLine is a raw contact fragment whose role is already known from
// its table row key.
type ContactLine struct {
	Role model.Role
	Text string
}

// Parse extracts the structured fields of a ccgp announcement page.
// Title and publish date come from the meta tags with on-page fallbacks;
// the summary table and the detail-content sections fill the rest. Pages
// with neither a title nor body content are rejected (interstitial and
// error pages).
func Parse(html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse detail html")
	}

	page := &Page{}
	d := &page.Detail

	d.Title = CleanTitle(metaContent(doc, "ArticleTitle"))
	if d.Title == "" {
		d.Title = CleanTitle(doc.Find("h2.tc").First().Text())
	}
	d.PublishDate = CleanDate(metaContent(doc, "PubDate"))
	if d.PublishDate == "" {
		d.PublishDate = CleanDate(doc.Find("span#pubTime").First().Text())
	}

	parseSummaryTable(doc, page)
	parseContentSections(doc, d)

	content := doc.Find("div.vF_detail_content").First()
	d.Content = CleanContent(Fold(divText(content)), 0)

	if d.Title == "" && d.Content == "" {
		return nil, eris.New("extract: page has no announcement content")
	}
	return page, nil
}

func metaContent(doc *goquery.Document, name string) string {
	v, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return v
}

// divText joins the div's paragraphs with newlines so line-oriented
// heuristics see the original layout; divs without <p> children fall
// back to their flat text.
func divText(sel *goquery.Selection) string {
	var lines []string
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.TrimSpace(p.Text()); t != "" {
			lines = append(lines, t)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(sel.Text())
	}
	return strings.Join(lines, "\n")
}

// parseSummaryTable walks the key/value rows of the summary table
// (div.table). Company and address fields land on the Detail; contact
// rows become ContactLines with the row's role.
func parseSummaryTable(doc *goquery.Document, page *Page) {
	d := &page.Detail
	doc.Find("div.table table tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		key := foldKey(cells.Eq(0).Text())
		value := strings.TrimSpace(Fold(cells.Eq(1).Text()))
		if key == "" || value == "" {
			return
		}

		switch {
		case strings.Contains(key, "采购单位地址"):
			d.BuyerAddress = value
		case strings.Contains(key, "采购单位联系方式"), strings.Contains(key, "采购单位联系人"):
			page.ContactLines = append(page.ContactLines, ContactLine{Role: model.RoleBuyer, Text: value})
		case strings.Contains(key, "采购单位"), strings.Contains(key, "采购人名称"):
			d.BuyerName = value
		case strings.Contains(key, "代理机构地址"):
			d.AgentAddress = value
		case strings.Contains(key, "代理机构联系方式"), strings.Contains(key, "代理机构联系人"):
			page.ContactLines = append(page.ContactLines, ContactLine{Role: model.RoleAgent, Text: value})
		case strings.Contains(key, "代理机构名称"):
			d.AgentName = value
		case strings.Contains(key, "项目联系人"), strings.Contains(key, "项目联系电话"):
			page.ContactLines = append(page.ContactLines, ContactLine{Role: model.RoleContact, Text: value})
		case strings.Contains(key, "项目编号"):
			d.ProjectNo = value
		case strings.Contains(key, "项目名称"):
			d.ProjectName = value
		case strings.Contains(key, "中标金额"), strings.Contains(key, "成交金额"):
			d.BidAmount = value
		case strings.Contains(key, "供应商地址"), strings.Contains(key, "中标人地址"):
			d.SupplierAddress = value
		case strings.Contains(key, "供应商名称"), strings.Contains(key, "中标人名称"), strings.Contains(key, "成交供应商"):
			d.SupplierName = value
		}
	})
}

// foldKey normalizes a table key: width folding plus removal of the
// padding spaces the portal inserts inside labels (电 话, 名 称).
func foldKey(key string) string {
	return strings.ReplaceAll(strings.Join(strings.Fields(Fold(key)), ""), "　", "")
}

// Section markers of the standard award-announcement body layout.
type contentSection int

const (
	sectionNone contentSection = iota
	sectionBid
	sectionExperts
	sectionOther
)

// parseContentSections walks the body paragraphs and fills the fields
// the summary table missed: project number and name, award info
// (supplier, amount), and the review-expert list.
func parseContentSections(doc *goquery.Document, d *model.Detail) {
	content := doc.Find("div.vF_detail_content").First()
	if content.Length() == 0 {
		return
	}

	section := sectionNone
	content.Find("p, strong").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(Fold(p.Text()))
		if text == "" {
			return
		}

		switch {
		case strings.Contains(text, "项目编号") && !strings.Contains(text, "项目名称"):
			if d.ProjectNo == "" {
				d.ProjectNo = afterColon(text)
			}
		case strings.Contains(text, "项目名称"):
			if d.ProjectName == "" {
				d.ProjectName = afterColon(text)
			}
		case strings.Contains(text, "中标（成交）信息"), strings.Contains(text, "中标(成交)信息"):
			section = sectionBid
		case strings.Contains(text, "评审专家"), strings.Contains(text, "单一来源采购人员"):
			section = sectionExperts
		case strings.Contains(text, "主要标的信息"), strings.Contains(text, "代理服务费"),
			strings.Contains(text, "公告期限"), strings.Contains(text, "补充事宜"),
			strings.Contains(text, "凡对本次公告"):
			section = sectionOther
		default:
			switch section {
			case sectionBid:
				switch {
				case strings.Contains(text, "供应商名称"):
					if d.SupplierName == "" {
						d.SupplierName = afterColon(text)
					}
				case strings.Contains(text, "供应商地址"):
					if d.SupplierAddress == "" {
						d.SupplierAddress = afterColon(text)
					}
				case strings.Contains(text, "中标金额"), strings.Contains(text, "成交金额"):
					if d.BidAmount == "" {
						d.BidAmount = afterColon(text)
					}
				}
			case sectionExperts:
				for _, name := range partSplitRe.Split(text, -1) {
					name = strings.TrimSpace(name)
					if name != "" && !strings.Contains(name, "：") && !strings.Contains(name, ":") {
						d.Experts = append(d.Experts, name)
					}
				}
			}
		}
	})
}

// afterColon returns the value part of a "标签：值" line.
func afterColon(text string) string {
	if i := strings.LastIndexAny(text, "：:"); i >= 0 {
		_, size := utf8.DecodeRuneInString(text[i:])
		return strings.TrimSpace(text[i+size:])
	}
	return strings.TrimSpace(text)
}
