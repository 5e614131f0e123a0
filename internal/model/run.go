package model

import "time"

// RunStatus tracks the lifecycle of a crawl run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
)

// KeywordStatus is the terminal state of pagination for one keyword.
// Throttled and exhausted are normal stops, not faults.
type KeywordStatus string

const (
	KeywordExhausted KeywordStatus = "exhausted"
	KeywordThrottled KeywordStatus = "throttled"
	KeywordPageCap   KeywordStatus = "page_cap"
)

// RunSummary accumulates counters over one crawl run.
type RunSummary struct {
	StubsSeen         int                      `json:"stubs_seen"`
	NewAnnouncements  int                      `json:"new_announcements"`
	SkippedDuplicates int                      `json:"skipped_duplicates"`
	FailedItems       int                      `json:"failed_items"`
	CardWrites        int                      `json:"card_writes"`
	Keywords          map[string]KeywordStatus `json:"keywords"`
}

// CrawlRun is the persisted ledger row for one search invocation.
type CrawlRun struct {
	ID         string      `json:"id"`
	Params     string      `json:"params"`
	Status     RunStatus   `json:"status"`
	Summary    *RunSummary `json:"summary,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}
