package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/watchy-xyz/watchy/pkg/report"
)

// ErrReportNotFound is returned when no archived report matches.
var ErrReportNotFound = errors.New("store: archived report not found")

// Archive is the durable report storage port. Unlike jobs, archived
// reports never expire; they are the audit trail.
type Archive interface {
	// SaveReport persists a completed report under its job id.
	SaveReport(ctx context.Context, jobID string, rep *report.Report) error
	// LatestReport returns the most recent report for an agent on a chain.
	LatestReport(ctx context.Context, agentID, chainID uint64) (*report.Report, error)
	// History returns up to limit report summaries, newest first.
	History(ctx context.Context, agentID, chainID uint64, limit int) ([]ReportSummary, error)
}

// ReportSummary is one row of an agent's audit history.
type ReportSummary struct {
	JobID     string `json:"jobId"`
	Overall   int    `json:"overall"`
	CreatedAt int64  `json:"createdAt"`
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS audit_reports (
	id         TEXT PRIMARY KEY,
	agent_id   BIGINT NOT NULL,
	chain_id   BIGINT NOT NULL,
	overall    INTEGER NOT NULL,
	report     TEXT NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_reports_agent
	ON audit_reports (agent_id, chain_id, created_at);
`

// SQLArchive implements Archive on database/sql. The same statements serve
// SQLite and PostgreSQL; only the placeholder style differs.
type SQLArchive struct {
	db     *sql.DB
	rebind func(string) string
	now    func() time.Time
}

// NewSQLiteArchive wraps a modernc.org/sqlite database handle.
func NewSQLiteArchive(db *sql.DB) *SQLArchive {
	return &SQLArchive{db: db, rebind: func(q string) string { return q }, now: time.Now}
}

// NewPostgresArchive wraps a lib/pq database handle.
func NewPostgresArchive(db *sql.DB) *SQLArchive {
	return &SQLArchive{db: db, rebind: rebindDollar, now: time.Now}
}

// Migrate creates the archive schema if it does not exist.
func (a *SQLArchive) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, archiveSchema); err != nil {
		return fmt.Errorf("store: migrate archive: %w", err)
	}
	return nil
}

func (a *SQLArchive) SaveReport(ctx context.Context, jobID string, rep *report.Report) error {
	raw, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("store: serialize report: %w", err)
	}
	query := a.rebind(`INSERT INTO audit_reports (id, agent_id, chain_id, overall, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := a.db.ExecContext(ctx, query,
		jobID, rep.AgentID, chainIDFromRegistry(rep.AgentRegistry), rep.Scores.Overall,
		string(raw), a.now().Unix()); err != nil {
		return fmt.Errorf("store: save report %s: %w", jobID, err)
	}
	return nil
}

func (a *SQLArchive) LatestReport(ctx context.Context, agentID, chainID uint64) (*report.Report, error) {
	query := a.rebind(`SELECT report FROM audit_reports
		WHERE agent_id = ? AND chain_id = ?
		ORDER BY created_at DESC LIMIT 1`)

	var raw string
	err := a.db.QueryRowContext(ctx, query, agentID, chainID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load latest report: %w", err)
	}

	var rep report.Report
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return nil, fmt.Errorf("store: decode archived report: %w", err)
	}
	return &rep, nil
}

func (a *SQLArchive) History(ctx context.Context, agentID, chainID uint64, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := a.rebind(`SELECT id, overall, created_at FROM audit_reports
		WHERE agent_id = ? AND chain_id = ?
		ORDER BY created_at DESC LIMIT ?`)

	rows, err := a.db.QueryContext(ctx, query, agentID, chainID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: load history: %w", err)
	}
	defer rows.Close()

	var out []ReportSummary
	for rows.Next() {
		var s ReportSummary
		if err := rows.Scan(&s.JobID, &s.Overall, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan history row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// rebindDollar converts ? placeholders to $1..$n for PostgreSQL.
func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// chainIDFromRegistry extracts the chain id from a CAIP-10 pointer; zero
// when the pointer is malformed.
func chainIDFromRegistry(registry string) uint64 {
	parts := strings.Split(registry, ":")
	if len(parts) != 3 {
		return 0
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
