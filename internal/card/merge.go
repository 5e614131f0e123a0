// Package card implements the identity-resolution merge: extracted
// contact mentions become durable business cards keyed by
// (company, contact person), with provenance back to the announcements
// they were seen in.
package card

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/bidwatch/bidcard/internal/model"
	"github.com/bidwatch/bidcard/internal/store"
)

// Merger folds contact mentions into the business-card aggregate.
type Merger struct {
	store store.Store
}

// NewMerger creates a merger over the given store.
func NewMerger(st store.Store) *Merger {
	return &Merger{store: st}
}

// Merge writes every mention of one announcement into the card
// aggregate and returns the number of card writes. Mentions that cannot
// form an identity (no company and no name) are skipped, not errors;
// store failures abort immediately.
func (m *Merger) Merge(ctx context.Context, announcementID int64, detail *model.Detail, mentions []model.ContactMention) (int, error) {
	writes := 0
	for _, mention := range mentions {
		if err := ctx.Err(); err != nil {
			return writes, err
		}

		company := resolveCompany(detail, mention.Role)
		name := strings.TrimSpace(mention.Name)
		if company == "" && name == "" {
			zap.L().Debug("card: mention has no identity, skipping",
				zap.Int64("announcement_id", announcementID),
				zap.String("role", string(mention.Role)),
				zap.String("span", mention.Span),
			)
			continue
		}

		cardID, created, err := m.store.MergeMention(ctx, store.MentionInput{
			AnnouncementID: announcementID,
			Company:        company,
			ContactName:    name,
			Role:           mention.Role,
			Phones:         mention.Phones,
			Emails:         mention.Emails,
		})
		if err != nil {
			return writes, err
		}
		writes++

		zap.L().Debug("card: mention merged",
			zap.Int64("card_id", cardID),
			zap.Bool("created", created),
			zap.String("company", company),
			zap.String("contact", name),
			zap.String("role", string(mention.Role)),
		)
	}
	return writes, nil
}

// resolveCompany maps a mention role to the announcement-level company
// name. Generic contacts inherited a party role during extraction when
// one was in range; a mention still tagged contact here has no company.
func resolveCompany(detail *model.Detail, role model.Role) string {
	if detail == nil {
		return ""
	}
	return strings.TrimSpace(detail.CompanyForRole(role))
}
