package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bidwatch/bidcard/internal/db"
	"github.com/bidwatch/bidcard/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"insert_announcement": `INSERT INTO announcements (title, url, content, publish_date, source, buyer_name, agent_name, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (url) DO NOTHING RETURNING id`,
	"get_announcement_id": `SELECT id FROM announcements WHERE url = $1 LIMIT 1`,
	"get_card":            `SELECT id, phones_json, emails_json FROM business_cards WHERE company = $1 AND contact_name = $2 LIMIT 1 FOR UPDATE`,
	"insert_card":         `INSERT INTO business_cards (company, contact_name, phones_json, emails_json) VALUES ($1, $2, $3, $4) RETURNING id`,
	"update_card":         `UPDATE business_cards SET phones_json = $1, emails_json = $2, updated_at = now() WHERE id = $3`,
	"insert_mention":      `INSERT INTO card_mentions (card_id, announcement_id, role) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS announcements (
	id           BIGSERIAL PRIMARY KEY,
	title        TEXT NOT NULL,
	url          TEXT NOT NULL UNIQUE,
	content      TEXT,
	publish_date TEXT,
	source       TEXT,
	buyer_name   TEXT,
	agent_name   TEXT,
	scraped_at   TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS business_cards (
	id           BIGSERIAL PRIMARY KEY,
	company      TEXT NOT NULL,
	contact_name TEXT NOT NULL,
	phones_json  JSONB NOT NULL DEFAULT '[]',
	emails_json  JSONB NOT NULL DEFAULT '[]',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(company, contact_name)
);

CREATE TABLE IF NOT EXISTS card_mentions (
	id              BIGSERIAL PRIMARY KEY,
	card_id         BIGINT NOT NULL REFERENCES business_cards(id),
	announcement_id BIGINT NOT NULL REFERENCES announcements(id),
	role            TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(card_id, announcement_id, role)
);

CREATE TABLE IF NOT EXISTS crawl_runs (
	id          TEXT PRIMARY KEY,
	params      JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	summary     JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_announcements_source ON announcements(source);
CREATE INDEX IF NOT EXISTS idx_business_cards_company ON business_cards(company);
CREATE INDEX IF NOT EXISTS idx_card_mentions_card_id ON card_mentions(card_id);
CREATE INDEX IF NOT EXISTS idx_card_mentions_announcement_id ON card_mentions(announcement_id);
CREATE INDEX IF NOT EXISTS idx_crawl_runs_status ON crawl_runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) InsertAnnouncement(ctx context.Context, a *model.Announcement) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO announcements (title, url, content, publish_date, source, buyer_name, agent_name, scraped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (url) DO NOTHING RETURNING id`,
		a.Title, a.URL, a.Content, a.PublishDate, a.Source, a.BuyerName, a.AgentName, a.ScrapedAt.UTC(),
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, eris.Wrapf(err, "postgres: insert announcement %s", a.URL)
	}

	id, ok, err := s.GetAnnouncementIDByURL(ctx, a.URL)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, eris.Errorf("postgres: announcement vanished after conflict: %s", a.URL)
	}
	return id, false, nil
}

func (s *PostgresStore) GetAnnouncementIDByURL(ctx context.Context, url string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM announcements WHERE url = $1 LIMIT 1`, url,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: announcement id by url %s", url)
	}
	return id, true, nil
}

func (s *PostgresStore) ListAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]model.Announcement, error) {
	query := `SELECT id, title, url, COALESCE(content, ''), COALESCE(publish_date, ''), COALESCE(source, ''),
			COALESCE(buyer_name, ''), COALESCE(agent_name, ''), scraped_at, created_at
		FROM announcements`
	var args []any

	if filter.Source != "" {
		query += ` WHERE source = $1`
		args = append(args, filter.Source)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list announcements")
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		var a model.Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Content, &a.PublishDate, &a.Source,
			&a.BuyerName, &a.AgentName, &a.ScrapedAt, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan announcement")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list announcements iterate")
}

func (s *PostgresStore) MergeMention(ctx context.Context, in MentionInput) (int64, bool, error) {
	if err := validateMention(in); err != nil {
		return 0, false, err
	}
	company := strings.TrimSpace(in.Company)
	contactName := strings.TrimSpace(in.ContactName)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: begin merge")
	}
	defer tx.Rollback(ctx)

	var (
		cardID     int64
		created    bool
		phonesJSON string
		emailsJSON string
	)
	err = tx.QueryRow(ctx,
		`SELECT id, phones_json, emails_json FROM business_cards
		 WHERE company = $1 AND contact_name = $2 LIMIT 1 FOR UPDATE`,
		company, contactName,
	).Scan(&cardID, &phonesJSON, &emailsJSON)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		phones, mErr := marshalSet(unionSet(nil, in.Phones, false))
		if mErr != nil {
			return 0, false, mErr
		}
		emails, mErr := marshalSet(unionSet(nil, in.Emails, true))
		if mErr != nil {
			return 0, false, mErr
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO business_cards (company, contact_name, phones_json, emails_json)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			company, contactName, phones, emails,
		).Scan(&cardID); err != nil {
			return 0, false, eris.Wrapf(err, "postgres: insert card %s/%s", company, contactName)
		}
		created = true

	case err != nil:
		return 0, false, eris.Wrapf(err, "postgres: lookup card %s/%s", company, contactName)

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
		if _, err := tx.Exec(ctx,
			`UPDATE business_cards SET phones_json = $1, emails_json = $2, updated_at = now() WHERE id = $3`,
			phones, emails, cardID,
		); err != nil {
			return 0, false, eris.Wrapf(err, "postgres: update card %d", cardID)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO card_mentions (card_id, announcement_id, role) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		cardID, in.AnnouncementID, string(in.Role),
	); err != nil {
		return 0, false, eris.Wrapf(err, "postgres: insert mention card=%d ann=%d", cardID, in.AnnouncementID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, eris.Wrap(err, "postgres: commit merge")
	}
	return cardID, created, nil
}

func (s *PostgresStore) QueryCards(ctx context.Context, q CardQuery) ([]model.CardAggregate, error) {
	query := `SELECT bc.id, bc.company, bc.contact_name, bc.phones_json::text, bc.emails_json::text,
			COUNT(DISTINCT cm.announcement_id) AS announcements,
			bc.created_at, bc.updated_at
		FROM business_cards bc
		LEFT JOIN card_mentions cm ON cm.card_id = bc.id`
	var args []any

	company := strings.TrimSpace(q.Company)
	switch {
	case company != "" && q.Like:
		query += ` WHERE bc.company LIKE $1`
		args = append(args, "%"+company+"%")
	case company != "":
		query += ` WHERE bc.company = $1`
		args = append(args, company)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` GROUP BY bc.id ORDER BY announcements DESC, bc.updated_at DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query cards")
	}
	defer rows.Close()

	var cards []model.CardAggregate
	for rows.Next() {
		var c model.CardAggregate
		var phonesJSON, emailsJSON string
		if err := rows.Scan(&c.ID, &c.Company, &c.ContactName, &phonesJSON, &emailsJSON,
			&c.Announcements, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan card")
		}
		if c.Phones, err = unmarshalSet(phonesJSON); err != nil {
			return nil, err
		}
		if c.Emails, err = unmarshalSet(emailsJSON); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, eris.Wrap(rows.Err(), "postgres: query cards iterate")
}

func (s *PostgresStore) ListCardMentions(ctx context.Context, cardID int64) ([]model.CardMention, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cm.card_id, cm.announcement_id, cm.role, a.title, a.url, COALESCE(a.publish_date, '')
		 FROM card_mentions cm
		 JOIN announcements a ON a.id = cm.announcement_id
		 WHERE cm.card_id = $1
		 ORDER BY a.publish_date DESC, cm.id DESC`,
		cardID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list mentions for card %d", cardID)
	}
	defer rows.Close()

	var mentions []model.CardMention
	for rows.Next() {
		var m model.CardMention
		var role string
		if err := rows.Scan(&m.CardID, &m.AnnouncementID, &role, &m.Title, &m.URL, &m.PublishDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mention")
		}
		m.Role = model.Role(role)
		mentions = append(mentions, m)
	}
	return mentions, eris.Wrap(rows.Err(), "postgres: list mentions iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, params string) (*model.CrawlRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO crawl_runs (id, params, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, params, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.CrawlRun{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_runs SET status = $1, summary = $2, finished_at = $3 WHERE id = $4`,
		string(status), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{BySource: map[string]int64{}}

	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM announcements),
			(SELECT COUNT(*) FROM business_cards),
			(SELECT COUNT(*) FROM card_mentions)`,
	).Scan(&stats.Announcements, &stats.Cards, &stats.Mentions)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats counts")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(source, ''), COUNT(*) FROM announcements GROUP BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by source")
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source count")
		}
		stats.BySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats by source iterate")
	}

	companyRows, err := s.pool.Query(ctx,
		`SELECT company, COUNT(*) AS cards FROM business_cards
		 WHERE company <> ''
		 GROUP BY company ORDER BY cards DESC LIMIT 20`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats top companies")
	}
	defer companyRows.Close()
	for companyRows.Next() {
		var cc CompanyCount
		if err := companyRows.Scan(&cc.Company, &cc.Cards); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company count")
		}
		stats.TopCompanies = append(stats.TopCompanies, cc)
	}
	return stats, eris.Wrap(companyRows.Err(), "postgres: stats top companies iterate")
}
