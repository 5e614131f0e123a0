package model

import "time"

// BusinessCard is the canonical aggregate identity for a
// (company, contact person) pair. ContactName may be empty, standing for
// "unnamed contact at this company". Phone and email sets only grow.
type BusinessCard struct {
	ID          int64     `json:"id"`
	Company     string    `json:"company"`
	ContactName string    `json:"contact_name"`
	Phones      []string  `json:"phones"`
	Emails      []string  `json:"emails"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CardAggregate is a card plus its distinct supporting-announcement count,
// as returned by company lookups.
type CardAggregate struct {
	BusinessCard
	Announcements int `json:"announcements"`
}

// CardMention is the provenance edge linking a card to the announcement
// and role it was observed in. The (card, announcement, role) triple is
// unique and immutable.
type CardMention struct {
	CardID         int64  `json:"card_id"`
	AnnouncementID int64  `json:"announcement_id"`
	Role           Role   `json:"role"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	PublishDate    string `json:"publish_date"`
}
