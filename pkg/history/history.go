// Package history records analysis results per project in a local SQLite
// database, keyed by the hash of the analyzed file.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/OpenTraceLab/designguard/pkg/ai"
	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/issue"
)

// DefaultPath is the database location under the user's config directory
const DefaultPath = "designguard/history.db"

const schema = `
CREATE TABLE IF NOT EXISTS analysis_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_path TEXT NOT NULL,
	schematic_hash TEXT NOT NULL,
	issues_json TEXT NOT NULL,
	ai_analysis_json TEXT,
	analyzed_at TEXT NOT NULL,
	UNIQUE(project_path, schematic_hash)
);
CREATE INDEX IF NOT EXISTS idx_analysis_history_project ON analysis_history(project_path);
CREATE INDEX IF NOT EXISTS idx_analysis_history_hash ON analysis_history(schematic_hash);
`

// timeLayout sorts lexically in UTC
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one stored analysis
type Record struct {
	ID            int64         `json:"id"`
	ProjectPath   string        `json:"project_path"`
	SchematicHash string        `json:"schematic_hash"`
	Issues        []issue.Issue `json:"issues"`
	AI            *ai.Analysis  `json:"ai_analysis,omitempty"`
	AnalyzedAt    time.Time     `json:"analyzed_at"`
}

// Hash returns the hex SHA-256 of file content
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Store is the history database
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// DefaultLocation returns DefaultPath under os.UserConfigDir
func DefaultLocation() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errs.IO("locate config dir", "", err)
	}
	return filepath.Join(dir, DefaultPath), nil
}

// Open opens or creates the database at path; ":memory:" is accepted
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errs.IO("create history dir", path, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Provider("open history", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Provider("create history schema", err)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

// Save stores an analysis, replacing an earlier one of the same project
// and hash, and returns its row id
func (s *Store) Save(ctx context.Context, project, hash string, issues []issue.Issue, analysis *ai.Analysis) (int64, error) {
	if issues == nil {
		issues = []issue.Issue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return 0, fmt.Errorf("encode issues: %w", err)
	}
	var aiJSON sql.NullString
	if analysis != nil {
		b, err := json.Marshal(analysis)
		if err != nil {
			return 0, fmt.Errorf("encode analysis: %w", err)
		}
		aiJSON = sql.NullString{String: string(b), Valid: true}
	}

	at := s.now().UTC().Format(timeLayout)
	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO analysis_history
		(project_path, schematic_hash, issues_json, ai_analysis_json, analyzed_at)
		VALUES (?, ?, ?, ?, ?)`, project, hash, string(issuesJSON), aiJSON, at); err != nil {
		return 0, errs.Provider("save history", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM analysis_history WHERE project_path = ? AND schematic_hash = ?`, project, hash).Scan(&id)
	if err != nil {
		return 0, errs.Provider("save history", err)
	}
	return id, nil
}

const selectRecord = `SELECT id, project_path, schematic_hash, issues_json, ai_analysis_json, analyzed_at
	FROM analysis_history`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r          Record
		issuesJSON string
		aiJSON     sql.NullString
		at         string
	)
	if err := row.Scan(&r.ID, &r.ProjectPath, &r.SchematicHash, &issuesJSON, &aiJSON, &at); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(issuesJSON), &r.Issues); err != nil {
		return nil, fmt.Errorf("record %d: decode issues: %w", r.ID, err)
	}
	if aiJSON.Valid {
		r.AI = &ai.Analysis{}
		if err := json.Unmarshal([]byte(aiJSON.String), r.AI); err != nil {
			return nil, fmt.Errorf("record %d: decode analysis: %w", r.ID, err)
		}
	}
	t, err := time.Parse(timeLayout, at)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", r.ID, err)
	}
	r.AnalyzedAt = t
	return &r, nil
}

// Get returns the analysis of one file version; ok is false when none is
// stored
func (s *Store) Get(ctx context.Context, project, hash string) (*Record, bool, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx,
		selectRecord+` WHERE project_path = ? AND schematic_hash = ?`, project, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Provider("read history", err)
	}
	return r, true, nil
}

// Latest returns the most recent analysis of a project
func (s *Store) Latest(ctx context.Context, project string) (*Record, bool, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx,
		selectRecord+` WHERE project_path = ? ORDER BY analyzed_at DESC, id DESC LIMIT 1`, project))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Provider("read history", err)
	}
	return r, true, nil
}

// List returns up to limit analyses of a project, newest first. A limit of
// zero or less returns all of them.
func (s *Store) List(ctx context.Context, project string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		selectRecord+` WHERE project_path = ? ORDER BY analyzed_at DESC, id DESC LIMIT ?`, project, limit)
	if err != nil {
		return nil, errs.Provider("list history", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errs.Provider("list history", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Provider("list history", err)
	}
	return out, nil
}

// Delete removes every analysis of a project and returns how many rows
// were removed
func (s *Store) Delete(ctx context.Context, project string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_history WHERE project_path = ?`, project)
	if err != nil {
		return 0, errs.Provider("delete history", err)
	}
	return res.RowsAffected()
}
