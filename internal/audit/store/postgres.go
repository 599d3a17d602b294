package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"verifier/internal/audit"
	"verifier/internal/rules"
	"verifier/pkg/platform/tx"
)

// Postgres stores entries in the audit_log table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ audit.Store = (*Postgres)(nil)

// Append is idempotent via ON CONFLICT DO NOTHING.
func (s *Postgres) Append(ctx context.Context, e audit.Entry) error {
	result, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("marshal audit result: %w", err)
	}
	details, err := json.Marshal(orEmpty(e.Details))
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log (
			log_id, ts, actor_id, action_type, domain,
			affected_object_type, affected_object_id, status, result,
			details, audit_pending
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (log_id) DO NOTHING
	`
	_, err = tx.Executor(ctx, s.db).ExecContext(ctx, query,
		e.LogID,
		e.Timestamp,
		e.ActorID,
		e.ActionType,
		e.Domain,
		e.AffectedObjectType,
		e.AffectedObjectID,
		string(e.Result.Status),
		result,
		details,
		e.AuditPending,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Query returns one page ordered by logId ascending.
func (s *Postgres) Query(ctx context.Context, f audit.Filter) (audit.Page, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.After != "" {
		add("log_id > $%d", f.After)
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.ActionType != "" {
		add("action_type = $%d", f.ActionType)
	}
	if f.Domain != "" {
		add("domain = $%d", f.Domain)
	}
	if f.AffectedObjectID != "" {
		add("affected_object_id = $%d", f.AffectedObjectID)
	}
	if !f.From.IsZero() {
		add("ts >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("ts <= $%d", f.To)
	}

	limit := f.PageSize()
	query := `
		SELECT log_id, ts, actor_id, action_type, domain,
		       affected_object_type, affected_object_id, result,
		       details, audit_pending
		FROM audit_log`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit+1)
	query += fmt.Sprintf("\n\t\tORDER BY log_id ASC\n\t\tLIMIT $%d", len(args))

	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return audit.Page{}, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return audit.Page{}, err
	}
	page := audit.Page{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		page.NextCursor = entries[limit-1].LogID
	}
	return page, nil
}

func (s *Postgres) Stats(ctx context.Context, domain string) (audit.Stats, error) {
	query := `
		SELECT status, count(*), count(*) FILTER (WHERE audit_pending), max(ts)
		FROM audit_log
		WHERE $1 = '' OR domain = $1
		GROUP BY status
	`
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, query, domain)
	if err != nil {
		return audit.Stats{}, fmt.Errorf("query audit stats: %w", err)
	}
	defer rows.Close()

	stats := audit.NewStats()
	for rows.Next() {
		var (
			status         string
			total, retried int
			lastAt         sql.NullTime
		)
		if err := rows.Scan(&status, &total, &retried, &lastAt); err != nil {
			return audit.Stats{}, fmt.Errorf("scan audit stats: %w", err)
		}
		stats.ByStatus[rules.Status(status)] = total
		stats.Total += total
		stats.Retried += retried
		if lastAt.Valid && lastAt.Time.After(stats.LastAt) {
			stats.LastAt = lastAt.Time
		}
	}
	if err := rows.Err(); err != nil {
		return audit.Stats{}, fmt.Errorf("iterate audit stats: %w", err)
	}
	return stats, nil
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e       audit.Entry
			result  []byte
			details []byte
		)
		err := rows.Scan(
			&e.LogID,
			&e.Timestamp,
			&e.ActorID,
			&e.ActionType,
			&e.Domain,
			&e.AffectedObjectType,
			&e.AffectedObjectID,
			&result,
			&details,
			&e.AuditPending,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(result, &e.Result); err != nil {
			return nil, fmt.Errorf("decode audit result %s: %w", e.LogID, err)
		}
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("decode audit details %s: %w", e.LogID, err)
		}
		if len(e.Details) == 0 {
			e.Details = nil
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
