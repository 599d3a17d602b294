package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"verifier/internal/rules"
	"verifier/pkg/platform/sentinel"
	"verifier/pkg/platform/tx"
)

// Postgres persists rules to the rules and rule_snapshots tables.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type ruleRef struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

const ruleColumns = `id, version, description, trigger_actions, kind, check_name, handler, parameters, action_on_fail, priority`

func (p *Postgres) RuleVersion(ctx context.Context, id string, version int) (*rules.Rule, error) {
	row := tx.Executor(ctx, p.db).QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE id = $1 AND version = $2`, id, version)
	return scanRule(row)
}

func (p *Postgres) LatestVersion(ctx context.Context, id string) (*rules.Rule, error) {
	row := tx.Executor(ctx, p.db).QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE id = $1 ORDER BY version DESC LIMIT 1`, id)
	return scanRule(row)
}

// SaveSnapshot inserts unseen rule versions and the snapshot row in one transaction.
func (p *Postgres) SaveSnapshot(ctx context.Context, snap *rules.Snapshot) error {
	return tx.Run(ctx, p.db, func(ctx context.Context) error {
		exec := tx.Executor(ctx, p.db)
		rs := snap.Rules()
		refs := make([]ruleRef, 0, len(rs))
		for _, r := range rs {
			params, err := json.Marshal(orEmpty(r.Parameters))
			if err != nil {
				return fmt.Errorf("marshal parameters for %s: %w", r.ID, err)
			}
			_, err = exec.ExecContext(ctx, `
				INSERT INTO rules (`+ruleColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (id, version) DO NOTHING`,
				r.ID, r.Version, r.Description, pq.Array(r.TriggerActions), string(r.Kind),
				r.Check, r.Handler, params, string(r.ActionOnFail), r.Priority,
			)
			if err != nil {
				return fmt.Errorf("insert rule %s v%d: %w", r.ID, r.Version, err)
			}
			refs = append(refs, ruleRef{ID: r.ID, Version: r.Version})
		}

		refsJSON, err := json.Marshal(refs)
		if err != nil {
			return fmt.Errorf("marshal snapshot refs: %w", err)
		}
		_, err = exec.ExecContext(ctx,
			`INSERT INTO rule_snapshots (version, published_at, rule_refs) VALUES ($1, $2, $3)`,
			snap.Version(), snap.PublishedAt(), refsJSON,
		)
		if err != nil {
			return fmt.Errorf("insert snapshot %d: %w", snap.Version(), err)
		}
		return nil
	})
}

func (p *Postgres) LatestSnapshot(ctx context.Context) (*rules.Snapshot, error) {
	exec := tx.Executor(ctx, p.db)
	var (
		version     int64
		publishedAt time.Time
		refsJSON    []byte
	)
	err := exec.QueryRowContext(ctx,
		`SELECT version, published_at, rule_refs FROM rule_snapshots ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &publishedAt, &refsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	var refs []ruleRef
	if err := json.Unmarshal(refsJSON, &refs); err != nil {
		return nil, fmt.Errorf("decode snapshot refs: %w", err)
	}
	rs := make([]rules.Rule, 0, len(refs))
	for _, ref := range refs {
		r, err := p.RuleVersion(ctx, ref.ID, ref.Version)
		if err != nil {
			return nil, fmt.Errorf("load rule %s v%d for snapshot %d: %w", ref.ID, ref.Version, version, err)
		}
		rs = append(rs, *r)
	}
	return rules.NewSnapshot(version, publishedAt, rs), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*rules.Rule, error) {
	var (
		r      rules.Rule
		kind   string
		action string
		params []byte
	)
	err := row.Scan(&r.ID, &r.Version, &r.Description, pq.Array(&r.TriggerActions), &kind,
		&r.Check, &r.Handler, &params, &action, &r.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	r.Kind = rules.Kind(kind)
	r.ActionOnFail = rules.FailAction(action)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters for %s: %w", r.ID, err)
		}
		if len(r.Parameters) == 0 {
			r.Parameters = nil
		}
	}
	return &r, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
