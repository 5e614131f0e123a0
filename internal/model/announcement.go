package model

import "time"

// Stub is a lightweight search-result row before the detail page is fetched.
// Buyer and agent names come from the result list's info line when present.
type Stub struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishDate string `json:"publish_date"`
	BuyerName   string `json:"buyer_name"`
	AgentName   string `json:"agent_name"`
	Source      string `json:"source"`
}

// Announcement is a fetched and parsed detail page. The URL is the sole
// identity key; rows are written once and never mutated afterward.
type Announcement struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	PublishDate string    `json:"publish_date"`
	Source      string    `json:"source"`
	BuyerName   string    `json:"buyer_name"`
	AgentName   string    `json:"agent_name"`
	ScrapedAt   time.Time `json:"scraped_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Detail holds the structured fields parsed out of an announcement page.
type Detail struct {
	Title       string `json:"title"`
	PublishDate string `json:"publish_date"`

	ProjectNo   string `json:"project_no"`
	ProjectName string `json:"project_name"`
	BidAmount   string `json:"bid_amount"`

	BuyerName    string `json:"buyer_name"`
	BuyerAddress string `json:"buyer_address"`

	AgentName    string `json:"agent_name"`
	AgentAddress string `json:"agent_address"`

	SupplierName    string `json:"supplier_name"`
	SupplierAddress string `json:"supplier_address"`

	// Experts lists review-panel member names; used to filter names that
	// would otherwise be misread as contacts.
	Experts []string `json:"experts,omitempty"`

	Content string `json:"content"`
}

// CompanyForRole returns the announcement-level company name associated
// with a role, or "" when the role carries no company field.
func (d *Detail) CompanyForRole(role Role) string {
	switch role {
	case RoleBuyer:
		return d.BuyerName
	case RoleAgent:
		return d.AgentName
	case RoleSupplier:
		return d.SupplierName
	default:
		return ""
	}
}
