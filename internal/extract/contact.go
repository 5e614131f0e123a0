package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bidwatch/bidcard/internal/model"
)

// DefaultLookbackRunes bounds how far back (in runes) a contact fact
// looks for its role anchor.
const DefaultLookbackRunes = 120

// anchorClass separates role-bearing anchors (采购人, 代理机构, ...) from
// contact anchors (联系人, ...), which name a person but inherit their
// role from the nearest preceding role anchor in range.
type anchorClass int

const (
	roleAnchor anchorClass = iota
	contactAnchor
)

type anchorDef struct {
	keyword string
	role    model.Role
	class   anchorClass
}

// Longer keywords are listed before their substrings so overlap
// resolution prefers the specific form (成交供应商 over 供应商).
var anchorDefs = []anchorDef{
	{"成交供应商", model.RoleSupplier, roleAnchor},
	{"中标人", model.RoleSupplier, roleAnchor},
	{"供应商", model.RoleSupplier, roleAnchor},
	{"采购单位", model.RoleBuyer, roleAnchor},
	{"采购人", model.RoleBuyer, roleAnchor},
	{"代理机构", model.RoleAgent, roleAnchor},
	{"项目联系", model.RoleContact, contactAnchor},
	{"联系方式", model.RoleContact, contactAnchor},
	{"联系人", model.RoleContact, contactAnchor},
}

// nameToken matches a person-name candidate: Han or Latin characters,
// middle dot allowed for transliterated names.
var nameToken = regexp.MustCompile(`^[\p{Han}A-Za-z·]{2,10}`)

var partSplitRe = regexp.MustCompile(`[、，,;；]`)

// Extractor turns a parsed announcement page into contact mentions.
type Extractor struct {
	lookback int
}

// NewExtractor creates an extractor with the given lookback window in
// runes; non-positive values fall back to DefaultLookbackRunes.
func NewExtractor(lookbackRunes int) *Extractor {
	if lookbackRunes <= 0 {
		lookbackRunes = DefaultLookbackRunes
	}
	return &Extractor{lookback: lookbackRunes}
}

// Mentions extracts every contact mention from a page: the summary
// table's per-role contact lines first, then an anchor scan of the body
// text. Expert names are filtered, identical mentions collapse, and
// mentions carrying no fact at all are dropped.
func (e *Extractor) Mentions(page *Page) []model.ContactMention {
	var mentions []model.ContactMention
	for _, line := range page.ContactLines {
		mentions = append(mentions, lineMentions(line)...)
	}
	mentions = append(mentions, e.scan(page.Detail.Content)...)

	mentions = filterExperts(mentions, page.Detail.Experts)

	var out []model.ContactMention
	seen := map[string]struct{}{}
	for _, m := range mentions {
		if m.Empty() {
			continue
		}
		key := m.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

// lineMentions parses one summary-table contact line, whose role is
// already known from the row key. Lines listing several people
// ("黄丹彤16620120513、崔世杰15800204406") yield one mention per person.
func lineMentions(line ContactLine) []model.ContactMention {
	var mentions []model.ContactMention
	for _, part := range partSplitRe.Split(line.Text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := model.ContactMention{
			Role:   line.Role,
			Name:   nameFromRemainder(part),
			Phones: ExtractPhones(part),
			Emails: ExtractEmails(part),
			Span:   part,
		}
		if !m.Empty() {
			mentions = append(mentions, m)
		}
	}
	return mentions
}

// nameFromRemainder strips phones, emails and punctuation from a contact
// fragment and returns what is left if it looks like a person name.
func nameFromRemainder(s string) string {
	for _, run := range digitRuns(s) {
		if classifyPhone(run.text) {
			s = strings.Replace(s, run.text, " ", 1)
		}
	}
	s = emailRe.ReplaceAllString(s, " ")
	var b strings.Builder
	for _, r := range s {
		if isNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	for _, field := range strings.Fields(b.String()) {
		if isContactLabel(field) {
			continue
		}
		if n := utf8.RuneCountInString(field); n >= 2 && n <= 10 {
			return field
		}
	}
	return ""
}

// isContactLabel reports whether a token is a field label rather than a
// person name.
func isContactLabel(s string) bool {
	for _, label := range []string{"电话", "手机", "邮箱", "传真", "电子邮", "联系人", "联系方式", "联系电话", "项目联系"} {
		if strings.HasPrefix(s, label) {
			return true
		}
	}
	return false
}

func isNameRune(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		(r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') ||
		r == '·'
}

// anchorSite is one anchor occurrence in the body text.
type anchorSite struct {
	def      anchorDef
	bytePos  int
	byteEnd  int
	runePos  int
	role     model.Role // resolved role (contact anchors inherit)
	name     string
	phones   []string
	emails   []string
	span     string
	hasFacts bool
}

// scan runs the anchor heuristic over free text. Every phone/email fact
// attributes to the nearest preceding anchor within the lookback window;
// facts with no anchor in range become unspecified-contact mentions
// rather than being dropped.
func (e *Extractor) scan(content string) []model.ContactMention {
	if content == "" {
		return nil
	}

	sites := findAnchors(content)
	resolveRoles(sites, e.lookback)

	var loose []model.ContactMention

	attribute := func(factPos, factRunePos int, attach func(*anchorSite), fallback model.ContactMention) {
		idx := sort.Search(len(sites), func(i int) bool { return sites[i].bytePos > factPos })
		if idx > 0 {
			site := sites[idx-1]
			if factRunePos-site.runePos <= e.lookback {
				attach(site)
				site.hasFacts = true
				return
			}
		}
		loose = append(loose, fallback)
	}

	for _, run := range digitRuns(content) {
		if !classifyPhone(run.text) {
			continue
		}
		runePos := utf8.RuneCountInString(content[:run.start])
		phone := run.text
		attribute(run.start, runePos,
			func(s *anchorSite) { s.phones = appendUnique(s.phones, phone) },
			model.ContactMention{Role: model.RoleContact, Phones: []string{phone}, Span: spanAround(content, run.start)},
		)
	}

	for _, loc := range emailRe.FindAllStringIndex(content, -1) {
		addr := strings.ToLower(content[loc[0]:loc[1]])
		if !validEmail(addr) {
			continue
		}
		runePos := utf8.RuneCountInString(content[:loc[0]])
		attribute(loc[0], runePos,
			func(s *anchorSite) { s.emails = appendUnique(s.emails, addr) },
			model.ContactMention{Role: model.RoleContact, Emails: []string{addr}, Span: spanAround(content, loc[0])},
		)
	}

	var mentions []model.ContactMention
	for _, site := range sites {
		if !site.hasFacts && site.name == "" {
			continue
		}
		mentions = append(mentions, model.ContactMention{
			Role:   site.role,
			Name:   site.name,
			Phones: site.phones,
			Emails: site.emails,
			Span:   site.span,
		})
	}
	return append(mentions, loose...)
}

// findAnchors locates every anchor keyword occurrence, resolving
// overlaps in favor of the longer keyword, and captures the name token
// following contact anchors.
func findAnchors(content string) []*anchorSite {
	var sites []*anchorSite
	for _, def := range anchorDefs {
		from := 0
		for {
			rel := strings.Index(content[from:], def.keyword)
			if rel < 0 {
				break
			}
			pos := from + rel
			sites = append(sites, &anchorSite{
				def:     def,
				bytePos: pos,
				byteEnd: pos + len(def.keyword),
				role:    def.role,
			})
			from = pos + len(def.keyword)
		}
	}

	sort.Slice(sites, func(i, j int) bool {
		if sites[i].bytePos != sites[j].bytePos {
			return sites[i].bytePos < sites[j].bytePos
		}
		return len(sites[i].def.keyword) > len(sites[j].def.keyword)
	})

	var kept []*anchorSite
	lastEnd := -1
	for _, s := range sites {
		if s.bytePos < lastEnd {
			continue
		}
		s.runePos = utf8.RuneCountInString(content[:s.bytePos])
		s.span = spanAround(content, s.bytePos)
		if s.def.class == contactAnchor {
			s.name = nameAfterAnchor(content[s.byteEnd:])
		}
		kept = append(kept, s)
		lastEnd = s.byteEnd
	}
	return kept
}

// resolveRoles gives each contact anchor the role of the nearest
// preceding role anchor within the window.
func resolveRoles(sites []*anchorSite, lookback int) {
	for i, s := range sites {
		if s.def.class != contactAnchor {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			prev := sites[j]
			if prev.def.class != roleAnchor {
				continue
			}
			if s.runePos-prev.runePos > lookback {
				break
			}
			s.role = prev.def.role
			break
		}
	}
}

// nameAfterAnchor captures the person name immediately after a contact
// anchor's colon, when one is present.
func nameAfterAnchor(rest string) string {
	rest = strings.TrimLeft(rest, " \t：:、，,")
	m := nameToken.FindString(rest)
	if m == "" || isContactLabel(m) {
		return ""
	}
	return m
}

func filterExperts(mentions []model.ContactMention, experts []string) []model.ContactMention {
	if len(experts) == 0 {
		return mentions
	}
	expertSet := make(map[string]struct{}, len(experts))
	for _, e := range experts {
		expertSet[e] = struct{}{}
	}
	out := mentions[:0]
	for _, m := range mentions {
		if _, ok := expertSet[m.Name]; ok {
			m.Name = ""
		}
		out = append(out, m)
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

// spanAround returns a short text window starting at a byte offset, for
// audit logging.
func spanAround(content string, pos int) string {
	r := []rune(content[pos:])
	if len(r) > 40 {
		r = r[:40]
	}
	return strings.TrimSpace(string(r))
}
