package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/bidwatch/bidcard/internal/model"
)

// MentionInput is one extracted contact fact bound to its announcement,
// ready to be merged into the card aggregate.
type MentionInput struct {
	AnnouncementID int64      `json:"announcement_id"`
	Company        string     `json:"company"`
	ContactName    string     `json:"contact_name"`
	Role           model.Role `json:"role"`
	Phones         []string   `json:"phones"`
	Emails         []string   `json:"emails"`
}

// AnnouncementFilter narrows announcement listings.
type AnnouncementFilter struct {
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// CardQuery selects business cards by company name, exact by default or
// substring when Like is set. An empty company lists everything.
type CardQuery struct {
	Company string `json:"company,omitempty"`
	Like    bool   `json:"like,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// CompanyCount is one row of the top-companies breakdown.
type CompanyCount struct {
	Company string `json:"company"`
	Cards   int64  `json:"cards"`
}

// Stats summarizes the corpus.
type Stats struct {
	Announcements int64            `json:"announcements"`
	Cards         int64            `json:"cards"`
	Mentions      int64            `json:"mentions"`
	BySource      map[string]int64 `json:"by_source"`
	TopCompanies  []CompanyCount   `json:"top_companies"`
}

// Store defines the persistence interface shared by the sqlite and
// postgres backends.
type Store interface {
	// Announcements. Rows are keyed by URL and written at most once:
	// InsertAnnouncement reports created=false when the URL already
	// exists, returning the existing row's id either way.
	InsertAnnouncement(ctx context.Context, a *model.Announcement) (id int64, created bool, err error)
	GetAnnouncementIDByURL(ctx context.Context, url string) (int64, bool, error)
	ListAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]model.Announcement, error)

	// Cards. MergeMention is one atomic unit: find-or-create the card on
	// (company, contact_name), union in the mention's phones and emails,
	// and record the (card, announcement, role) provenance edge.
	MergeMention(ctx context.Context, in MentionInput) (cardID int64, created bool, err error)
	QueryCards(ctx context.Context, q CardQuery) ([]model.CardAggregate, error)
	ListCardMentions(ctx context.Context, cardID int64) ([]model.CardMention, error)

	// Crawl-run ledger.
	CreateRun(ctx context.Context, params string) (*model.CrawlRun, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error

	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// validateMention rejects mentions that cannot form a card identity.
func validateMention(in MentionInput) error {
	if in.AnnouncementID <= 0 {
		return eris.New("store: mention requires an announcement id")
	}
	if strings.TrimSpace(in.Company) == "" && strings.TrimSpace(in.ContactName) == "" {
		return eris.New("store: mention requires a company or contact name")
	}
	return nil
}

// unionSet merges additions into an existing set: trimmed, deduped,
// sorted, optionally lowercased. The result only ever grows.
func unionSet(existing, add []string, lower bool) []string {
	seen := make(map[string]struct{}, len(existing)+len(add))
	for _, src := range [][]string{existing, add} {
		for _, v := range src {
			v = strings.TrimSpace(v)
			if lower {
				v = strings.ToLower(v)
			}
			if v == "" {
				continue
			}
			seen[v] = struct{}{}
		}
	}
	merged := make([]string, 0, len(seen))
	for v := range seen {
		merged = append(merged, v)
	}
	sort.Strings(merged)
	return merged
}

func marshalSet(set []string) (string, error) {
	if set == nil {
		set = []string{}
	}
	data, err := json.Marshal(set)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal set")
	}
	return string(data), nil
}

func unmarshalSet(data string) ([]string, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var set []string
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal set")
	}
	return set, nil
}
