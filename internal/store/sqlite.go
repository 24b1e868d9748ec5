package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/danhatton/bridgematch/internal/panel"
)

// Store persists the lender panel, chat transcripts and broker feedback in
// SQLite. Lender sub-structures are kept as JSON TEXT columns; the funnel
// only ever sees the decoded typed panel, never raw rows.
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
	mu  sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS lenders (
	name                TEXT PRIMARY KEY,
	position            INTEGER NOT NULL,
	size                TEXT NOT NULL DEFAULT '{}',
	ltv                 TEXT NOT NULL DEFAULT '{}',
	caps                TEXT NOT NULL DEFAULT '{}',
	refurb              TEXT NOT NULL DEFAULT '{}',
	land                TEXT NOT NULL DEFAULT '{}',
	appetite            TEXT NOT NULL DEFAULT '{}',
	geo_exclusions      TEXT NOT NULL DEFAULT '[]',
	min_months_interest INTEGER NOT NULL DEFAULT 0,
	rate_band           TEXT NOT NULL DEFAULT '',
	proc_fee            TEXT NOT NULL DEFAULT '',
	funding_model       TEXT NOT NULL DEFAULT '',
	notes               TEXT NOT NULL DEFAULT '',
	contact             TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS chat_messages (
	session_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (session_id, position)
);

CREATE TABLE IF NOT EXISTS feedback (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	lender_name TEXT NOT NULL,
	deal_type   TEXT NOT NULL DEFAULT '',
	rating      INTEGER NOT NULL,
	comments    TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
`

// Open opens or creates the database at path and ensures the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is still reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// LoadPanel reads the whole lender table in import order. A row that fails to
// decode becomes an unevaluable Lender carrying the decode error, so one bad
// record degrades one lender, not the panel.
func (s *Store) LoadPanel() (*panel.Panel, error) {
	rows, err := s.db.Query(`SELECT name, size, ltv, caps, refurb, land, appetite, geo_exclusions,
		min_months_interest, rate_band, proc_fee, funding_model, notes, contact
		FROM lenders ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load lenders: %w", err)
	}
	defer rows.Close()

	p := &panel.Panel{}
	for rows.Next() {
		var name, sizeJSON, ltvJSON, capsJSON, refurbJSON, landJSON, appetiteJSON, geoJSON, contactJSON string
		l := &panel.Lender{}
		if err := rows.Scan(&name, &sizeJSON, &ltvJSON, &capsJSON, &refurbJSON, &landJSON, &appetiteJSON, &geoJSON,
			&l.MinMonthsInterest, &l.RateBand, &l.ProcFee, &l.FundingModel, &l.Notes, &contactJSON); err != nil {
			return nil, fmt.Errorf("scan lender: %w", err)
		}
		l.Name = name
		if err := decodeLender(l, sizeJSON, ltvJSON, capsJSON, refurbJSON, landJSON, appetiteJSON, geoJSON, contactJSON); err != nil {
			s.log.Warn("lender record unevaluable", zap.String("lender", name), zap.Error(err))
			p.Lenders = append(p.Lenders, &panel.Lender{Name: name, Invalid: err.Error()})
			continue
		}
		p.Lenders = append(p.Lenders, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load lenders: %w", err)
	}
	return p, nil
}

func decodeLender(l *panel.Lender, sizeJSON, ltvJSON, capsJSON, refurbJSON, landJSON, appetiteJSON, geoJSON, contactJSON string) error {
	for _, col := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"size", sizeJSON, &l.Size},
		{"ltv", ltvJSON, &l.LTV},
		{"caps", capsJSON, &l.Caps},
		{"refurb", refurbJSON, &l.Refurb},
		{"land", landJSON, &l.Land},
		{"appetite", appetiteJSON, &l.Appetite},
		{"geo_exclusions", geoJSON, &l.GeoExclusions},
		{"contact", contactJSON, &l.Contact},
	} {
		if col.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return fmt.Errorf("%s: %w", col.name, err)
		}
	}
	return nil
}

// SaveLenders replaces the whole lender table with the given panel, keeping
// slice order as the position column. Used by the importer.
func (s *Store) SaveLenders(lenders []*panel.Lender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM lenders`); err != nil {
		return err
	}
	for i, l := range lenders {
		if _, err := tx.Exec(`INSERT INTO lenders (name, position, size, ltv, caps, refurb, land, appetite, geo_exclusions,
			min_months_interest, rate_band, proc_fee, funding_model, notes, contact)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.Name, i,
			marshalJSON(l.Size),
			marshalJSON(l.LTV),
			marshalJSON(l.Caps),
			marshalJSON(l.Refurb),
			marshalJSON(l.Land),
			marshalJSON(l.Appetite),
			marshalJSON(l.GeoExclusions),
			l.MinMonthsInterest, l.RateBand, l.ProcFee, l.FundingModel, l.Notes,
			marshalJSON(l.Contact),
		); err != nil {
			return fmt.Errorf("save lender %q: %w", l.Name, err)
		}
	}
	return tx.Commit()
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ChatMessage is one turn of a broker conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendMessage appends one turn to a session transcript.
func (s *Store) AppendMessage(sessionID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next int
	if err := s.db.Get(&next, `SELECT COALESCE(MAX(position)+1, 0) FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO chat_messages (session_id, position, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, next, role, content, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// History returns a session's transcript in order. A session with no
// messages yields an empty, non-nil slice.
func (s *Store) History(sessionID string) ([]ChatMessage, error) {
	rows, err := s.db.Query(`SELECT role, content, created_at FROM chat_messages WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		var createdAt string
		if err := rows.Scan(&m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Feedback is one broker rating of how a lender actually performed on a deal.
type Feedback struct {
	ID         int64     `json:"id"`
	LenderName string    `json:"lender_name"`
	DealType   string    `json:"deal_type,omitempty"`
	Rating     int       `json:"rating"`
	Comments   string    `json:"comments,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveFeedback records a rating.
func (s *Store) SaveFeedback(f Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO feedback (lender_name, deal_type, rating, comments, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.LenderName, f.DealType, f.Rating, f.Comments, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// ListFeedback returns feedback, newest first, optionally filtered by lender.
func (s *Store) ListFeedback(lender string) ([]Feedback, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if lender != "" {
		rows, err = s.db.Query(`SELECT id, lender_name, deal_type, rating, comments, created_at FROM feedback WHERE lender_name = ? ORDER BY id DESC`, lender)
	} else {
		rows, err = s.db.Query(`SELECT id, lender_name, deal_type, rating, comments, created_at FROM feedback ORDER BY id DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Feedback{}
	for rows.Next() {
		var f Feedback
		var createdAt string
		if err := rows.Scan(&f.ID, &f.LenderName, &f.DealType, &f.Rating, &f.Comments, &createdAt); err != nil {
			return nil, err
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}
