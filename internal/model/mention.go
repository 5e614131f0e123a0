package model

import "strings"

// Role tags a contact mention with the party it belongs to.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleAgent    Role = "agent"
	RoleSupplier Role = "supplier"
	// RoleContact marks a contact fact with no company-bearing anchor in
	// range ("unspecified contact").
	RoleContact Role = "contact"
)

// ValidRole reports whether r is one of the closed role set.
func ValidRole(r Role) bool {
	switch r {
	case RoleBuyer, RoleAgent, RoleSupplier, RoleContact:
		return true
	}
	return false
}

// ContactMention is a single extraction result scoped to one announcement.
// It is handed to the merge stage and never persisted on its own.
type ContactMention struct {
	Role   Role     `json:"role"`
	Name   string   `json:"name,omitempty"`
	Phones []string `json:"phones,omitempty"`
	Emails []string `json:"emails,omitempty"`
	// Span is the originating text fragment, kept for audit logging.
	Span string `json:"span,omitempty"`
}

// Empty reports whether the mention carries no identifying fact at all.
// Empty mentions are discarded before merge.
func (m ContactMention) Empty() bool {
	return m.Name == "" && len(m.Phones) == 0 && len(m.Emails) == 0
}

// DedupKey collapses identical mentions within a single page.
func (m ContactMention) DedupKey() string {
	var b strings.Builder
	b.WriteString(string(m.Role))
	b.WriteByte('|')
	b.WriteString(m.Name)
	b.WriteByte('|')
	b.WriteString(strings.Join(m.Phones, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(m.Emails, ","))
	return b.String()
}
