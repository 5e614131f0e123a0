package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bidwatch/bidcard/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. Use ":memory:" for ephemeral stores.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS announcements (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	title        TEXT NOT NULL,
	url          TEXT NOT NULL UNIQUE,
	content      TEXT,
	publish_date TEXT,
	source       TEXT,
	buyer_name   TEXT,
	agent_name   TEXT,
	scraped_at   DATETIME,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS business_cards (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	company      TEXT NOT NULL,
	contact_name TEXT NOT NULL,
	phones_json  TEXT NOT NULL DEFAULT '[]',
	emails_json  TEXT NOT NULL DEFAULT '[]',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(company, contact_name)
);

CREATE TABLE IF NOT EXISTS card_mentions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	card_id         INTEGER NOT NULL REFERENCES business_cards(id),
	announcement_id INTEGER NOT NULL REFERENCES announcements(id),
	role            TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(card_id, announcement_id, role)
);

CREATE TABLE IF NOT EXISTS crawl_runs (
	id          TEXT PRIMARY KEY,
	params      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	summary     TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_announcements_source ON announcements(source);
CREATE INDEX IF NOT EXISTS idx_business_cards_company ON business_cards(company);
CREATE INDEX IF NOT EXISTS idx_card_mentions_card_id ON card_mentions(card_id);
CREATE INDEX IF NOT EXISTS idx_card_mentions_announcement_id ON card_mentions(announcement_id);
CREATE INDEX IF NOT EXISTS idx_crawl_runs_status ON crawl_runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertAnnouncement writes an announcement if its URL is unseen and
// reports whether a row was created. Existing rows are never touched.
func (s *SQLiteStore) InsertAnnouncement(ctx context.Context, a *model.Announcement) (int64, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO announcements
		 (title, url, content, publish_date, source, buyer_name, agent_name, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Title, a.URL, a.Content, a.PublishDate, a.Source, a.BuyerName, a.AgentName, a.ScrapedAt.UTC(),
	)
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: insert announcement %s", a.URL)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, eris.Wrap(err, "sqlite: last insert id")
		}
		return id, true, nil
	}

	id, ok, err := s.GetAnnouncementIDByURL(ctx, a.URL)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, eris.Errorf("sqlite: announcement vanished after conflict: %s", a.URL)
	}
	return id, false, nil
}

func (s *SQLiteStore) GetAnnouncementIDByURL(ctx context.Context, url string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM announcements WHERE url = ? LIMIT 1`, url,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: announcement id by url %s", url)
	}
	return id, true, nil
}

func (s *SQLiteStore) ListAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]model.Announcement, error) {
	query := `SELECT id, title, url, content, publish_date, source, buyer_name, agent_name, scraped_at, created_at
		FROM announcements WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY id DESC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list announcements")
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		var a model.Announcement
		var content, publishDate, source, buyer, agent sql.NullString
		var scrapedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &content, &publishDate, &source,
			&buyer, &agent, &scrapedAt, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan announcement")
		}
		a.Content = content.String
		a.PublishDate = publishDate.String
		a.Source = source.String
		a.BuyerName = buyer.String
		a.AgentName = agent.String
		a.ScrapedAt = scrapedAt.Time
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list announcements iterate")
}

// MergeMention runs the card merge as a single transaction: find or
// create the card on (company, contact_name), grow its phone/email sets,
// and record the provenance edge. Re-merging the same mention is a
// no-op.
func (s *SQLiteStore) MergeMention(ctx context.Context, in MentionInput) (int64, bool, error) {
	if err := validateMention(in); err != nil {
		return 0, false, err
	}
	company := strings.TrimSpace(in.Company)
	contactName := strings.TrimSpace(in.ContactName)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback()

	var (
		cardID     int64
		created    bool
		phonesJSON string
		emailsJSON string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, phones_json, emails_json FROM business_cards
		 WHERE company = ? AND contact_name = ? LIMIT 1`,
		company, contactName,
	).Scan(&cardID, &phonesJSON, &emailsJSON)

	switch {
	case err == sql.ErrNoRows:
		phones, mErr := marshalSet(unionSet(nil, in.Phones, false))
		if mErr != nil {
			return 0, false, mErr
		}
		emails, mErr := marshalSet(unionSet(nil, in.Emails, true))
		if mErr != nil {
			return 0, false, mErr
		}
		res, iErr := tx.ExecContext(ctx,
			`INSERT INTO business_cards (company, contact_name, phones_json, emails_json)
			 VALUES (?, ?, ?, ?)`,
			company, contactName, phones, emails,
		)
		if iErr != nil {
			return 0, false, eris.Wrapf(iErr, "sqlite: insert card %s/%s", company, contactName)
		}
		cardID, err = res.LastInsertId()
		if err != nil {
			return 0, false, eris.Wrap(err, "sqlite: card last insert id")
		}
		created = true

	case err != nil:
		return 0, false, eris.Wrapf(err, "sqlite: lookup card %s/%s", company, contactName)

	default:
		existingPhones, uErr := unmarshalSet(phonesJSON)
		if uErr != nil {
			return 0, false, uErr
		}
		existingEmails, uErr := unmarshalSet(emailsJSON)
		if uErr != nil {
			return 0, false, uErr
		}
		phones, mErr := marshalSet(unionSet(existingPhones, in.Phones, false))
		if mErr != nil {
			return 0, false, mErr
		}
		emails, mErr := marshalSet(unionSet(existingEmails, in.Emails, true))
		if mErr != nil {
			return 0, false, mErr
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE business_cards
			 SET phones_json = ?, emails_json = ?, updated_at = datetime('now')
			 WHERE id = ?`,
			phones, emails, cardID,
		); err != nil {
			return 0, false, eris.Wrapf(err, "sqlite: update card %d", cardID)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO card_mentions (card_id, announcement_id, role)
		 VALUES (?, ?, ?)`,
		cardID, in.AnnouncementID, string(in.Role),
	); err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: insert mention card=%d ann=%d", cardID, in.AnnouncementID)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, eris.Wrap(err, "sqlite: commit merge")
	}
	return cardID, created, nil
}

func (s *SQLiteStore) QueryCards(ctx context.Context, q CardQuery) ([]model.CardAggregate, error) {
	query := `SELECT bc.id, bc.company, bc.contact_name, bc.phones_json, bc.emails_json,
			COUNT(DISTINCT cm.announcement_id) AS announcements,
			bc.created_at, bc.updated_at
		FROM business_cards bc
		LEFT JOIN card_mentions cm ON cm.card_id = bc.id`
	var args []any

	company := strings.TrimSpace(q.Company)
	switch {
	case company != "" && q.Like:
		query += ` WHERE bc.company LIKE ?`
		args = append(args, "%"+company+"%")
	case company != "":
		query += ` WHERE bc.company = ?`
		args = append(args, company)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` GROUP BY bc.id ORDER BY announcements DESC, bc.updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query cards")
	}
	defer rows.Close()

	var cards []model.CardAggregate
	for rows.Next() {
		var c model.CardAggregate
		var phonesJSON, emailsJSON string
		if err := rows.Scan(&c.ID, &c.Company, &c.ContactName, &phonesJSON, &emailsJSON,
			&c.Announcements, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan card")
		}
		if c.Phones, err = unmarshalSet(phonesJSON); err != nil {
			return nil, err
		}
		if c.Emails, err = unmarshalSet(emailsJSON); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, eris.Wrap(rows.Err(), "sqlite: query cards iterate")
}

func (s *SQLiteStore) ListCardMentions(ctx context.Context, cardID int64) ([]model.CardMention, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cm.card_id, cm.announcement_id, cm.role, a.title, a.url, a.publish_date
		 FROM card_mentions cm
		 JOIN announcements a ON a.id = cm.announcement_id
		 WHERE cm.card_id = ?
		 ORDER BY a.publish_date DESC, cm.id DESC`,
		cardID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list mentions for card %d", cardID)
	}
	defer rows.Close()

	var mentions []model.CardMention
	for rows.Next() {
		var m model.CardMention
		var role, publishDate sql.NullString
		if err := rows.Scan(&m.CardID, &m.AnnouncementID, &role, &m.Title, &m.URL, &publishDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mention")
		}
		m.Role = model.Role(role.String)
		m.PublishDate = publishDate.String
		mentions = append(mentions, m)
	}
	return mentions, eris.Wrap(rows.Err(), "sqlite: list mentions iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, params string) (*model.CrawlRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crawl_runs (id, params, status, started_at) VALUES (?, ?, ?, ?)`,
		id, params, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.CrawlRun{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE crawl_runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		string(status), string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{BySource: map[string]int64{}}

	counts := map[string]*int64{
		`SELECT COUNT(*) FROM announcements`:  &stats.Announcements,
		`SELECT COUNT(*) FROM business_cards`: &stats.Cards,
		`SELECT COUNT(*) FROM card_mentions`:  &stats.Mentions,
	}
	for query, dst := range counts {
		if err := s.db.QueryRowContext(ctx, query).Scan(dst); err != nil {
			return nil, eris.Wrapf(err, "sqlite: stats %s", query)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(source, ''), COUNT(*) FROM announcements GROUP BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by source")
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source count")
		}
		stats.BySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by source iterate")
	}

	companyRows, err := s.db.QueryContext(ctx,
		`SELECT company, COUNT(*) AS cards FROM business_cards
		 WHERE company != ''
		 GROUP BY company ORDER BY cards DESC LIMIT 20`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats top companies")
	}
	defer companyRows.Close()
	for companyRows.Next() {
		var cc CompanyCount
		if err := companyRows.Scan(&cc.Company, &cc.Cards); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company count")
		}
		stats.TopCompanies = append(stats.TopCompanies, cc)
	}
	return stats, eris.Wrap(companyRows.Err(), "sqlite: stats top companies iterate")
}
