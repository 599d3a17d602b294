package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"verifier/internal/verification"
	"verifier/pkg/platform/sentinel"
	"verifier/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Postgres stores algorithms and their append-only history.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ verification.Store = (*Postgres)(nil)

func (p *Postgres) Create(ctx context.Context, s verification.AlgorithmStatus) error {
	return tx.Run(ctx, p.db, func(ctx context.Context) error {
		exec := tx.Executor(ctx, p.db)
		_, err := exec.ExecContext(ctx, `
			INSERT INTO algorithms (algorithm_id, mode, status, last_verification_date, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, s.AlgorithmID, s.Mode, string(s.Status), s.LastVerificationDate, s.UpdatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert algorithm: %w", err)
		}
		for i, t := range s.History {
			t.Seq = i + 1
			if err := insertTransition(ctx, exec, s.AlgorithmID, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) Get(ctx context.Context, algorithmID string) (*verification.AlgorithmStatus, error) {
	exec := tx.Executor(ctx, p.db)
	s, err := scanAlgorithm(exec.QueryRowContext(ctx, `
		SELECT algorithm_id, mode, status, last_verification_date, updated_at
		FROM algorithms
		WHERE algorithm_id = $1
	`, algorithmID))
	if err != nil {
		return nil, err
	}
	history, err := loadHistory(ctx, exec, algorithmID)
	if err != nil {
		return nil, err
	}
	s.History = history
	return s, nil
}

// Apply locks the algorithm row so concurrent transitions serialize.
func (p *Postgres) Apply(ctx context.Context, algorithmID string, t verification.Transition, lastVerified *time.Time) (*verification.AlgorithmStatus, error) {
	var out *verification.AlgorithmStatus
	err := tx.Run(ctx, p.db, func(ctx context.Context) error {
		exec := tx.Executor(ctx, p.db)
		var current string
		err := exec.QueryRowContext(ctx,
			`SELECT status FROM algorithms WHERE algorithm_id = $1 FOR UPDATE`, algorithmID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock algorithm: %w", err)
		}
		if verification.Status(current) != t.From {
			return sentinel.ErrInvalidState
		}

		if err := exec.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM algorithm_status_history WHERE algorithm_id = $1`, algorithmID,
		).Scan(&t.Seq); err != nil {
			return fmt.Errorf("next history seq: %w", err)
		}
		if err := insertTransition(ctx, exec, algorithmID, t); err != nil {
			return err
		}
		if _, err := exec.ExecContext(ctx, `
			UPDATE algorithms
			SET status = $2,
			    updated_at = $3,
			    last_verification_date = COALESCE($4, last_verification_date)
			WHERE algorithm_id = $1
		`, algorithmID, string(t.To), t.At, lastVerified); err != nil {
			return fmt.Errorf("update algorithm: %w", err)
		}

		out, err = p.Get(ctx, algorithmID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) List(ctx context.Context, mode string) ([]verification.AlgorithmStatus, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT algorithm_id, mode, status, last_verification_date, updated_at
		FROM algorithms
		WHERE $1 = '' OR mode = $1
		ORDER BY algorithm_id
	`, mode)
	if err != nil {
		return nil, fmt.Errorf("list algorithms: %w", err)
	}
	defer rows.Close()

	out := []verification.AlgorithmStatus{}
	for rows.Next() {
		s, err := scanAlgorithm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate algorithms: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlgorithm(row rowScanner) (*verification.AlgorithmStatus, error) {
	var (
		s        verification.AlgorithmStatus
		status   string
		verified sql.NullTime
	)
	err := row.Scan(&s.AlgorithmID, &s.Mode, &status, &verified, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan algorithm: %w", err)
	}
	s.Status = verification.Status(status)
	s.UpdatedAt = s.UpdatedAt.UTC()
	if verified.Valid {
		v := verified.Time.UTC()
		s.LastVerificationDate = &v
	}
	s.History = []verification.Transition{}
	return &s, nil
}

func insertTransition(ctx context.Context, exec tx.DBTX, algorithmID string, t verification.Transition) error {
	checks, err := json.Marshal(t.Checks)
	if err != nil {
		return fmt.Errorf("marshal checks: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO algorithm_status_history (algorithm_id, seq, from_status, to_status, reason, checks, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, algorithmID, t.Seq, string(t.From), string(t.To), t.Reason, checks, t.At)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func loadHistory(ctx context.Context, exec tx.DBTX, algorithmID string) ([]verification.Transition, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT seq, from_status, to_status, reason, checks, at
		FROM algorithm_status_history
		WHERE algorithm_id = $1
		ORDER BY seq
	`, algorithmID)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	history := []verification.Transition{}
	for rows.Next() {
		var (
			t        verification.Transition
			from, to string
			checks   []byte
		)
		if err := rows.Scan(&t.Seq, &from, &to, &t.Reason, &checks, &t.At); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		t.From = verification.Status(from)
		t.To = verification.Status(to)
		t.At = t.At.UTC()
		if err := json.Unmarshal(checks, &t.Checks); err != nil {
			return nil, fmt.Errorf("decode checks: %w", err)
		}
		history = append(history, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return history, nil
}
