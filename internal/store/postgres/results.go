package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"evalform/internal/domain"
)

// tablePattern restricts configurable table names to plain identifiers, so
// the name can be interpolated into statements safely.
var tablePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// normalizedParticipant folds case and collapses whitespace, mirroring
// domain.NormalizeParticipant on the SQL side.
const normalizedParticipant = `regexp_replace(lower(btrim(participant)), '\s+', ' ', 'g')`

// ResultStore implements domain.ResultStore on a shared Postgres table, one
// table per study. Rows are inserted append-only; concurrent sessions for
// different participants never touch each other's rows.
type ResultStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewResultStore creates a result store over the given table, creating the
// table with the canonical column order if it does not exist yet. Existing
// tables are left untouched: columns are addressed by name, never rewritten.
func NewResultStore(ctx context.Context, pool *pgxpool.Pool, table string) (*ResultStore, error) {
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid results table name %q", table)
	}
	s := &ResultStore{pool: pool, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ResultStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			participant TEXT NOT NULL,
			base_id TEXT NOT NULL,
			variant_id TEXT NOT NULL,
			question_text TEXT NOT NULL,
			variant_label TEXT NOT NULL DEFAULT '',
			accuracy INT NOT NULL,
			completeness INT NOT NULL,
			usefulness INT NOT NULL,
			style_tone INT NOT NULL,
			comment TEXT NOT NULL DEFAULT ''
		)
	`, s.table))
	if err != nil {
		return fmt.Errorf("failed to ensure results table %s: %w", s.table, err)
	}
	return nil
}

// Append inserts all events in a single transaction, so a fresh read sees
// either the whole block or none of it.
func (s *ResultStore) Append(ctx context.Context, events []domain.RatingEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO %s (ts, participant, base_id, variant_id, question_text,
			variant_label, accuracy, completeness, usefulness, style_tone, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.table)

	for _, ev := range events {
		_, err := tx.Exec(ctx, query,
			ev.Timestamp,
			ev.Participant,
			ev.BaseID,
			ev.VariantID,
			ev.QuestionText,
			ev.VariantLabel,
			ev.Scores.Accuracy,
			ev.Scores.Completeness,
			ev.Scores.Usefulness,
			ev.Scores.StyleTone,
			ev.Comment,
		)
		if err != nil {
			return fmt.Errorf("failed to insert rating event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rating events: %w", err)
	}
	return nil
}

// AnsweredBaseIDs returns the distinct base IDs saved by the participant,
// matched case- and whitespace-insensitively.
func (s *ResultStore) AnsweredBaseIDs(ctx context.Context, participant string) (map[string]struct{}, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT base_id
		FROM %s
		WHERE %s = $1
	`, s.table, normalizedParticipant)

	rows, err := s.pool.Query(ctx, query, domain.NormalizeParticipant(participant))
	if err != nil {
		return nil, fmt.Errorf("failed to query answered blocks: %w", err)
	}
	defer rows.Close()

	answered := make(map[string]struct{})
	for rows.Next() {
		var baseID string
		if err := rows.Scan(&baseID); err != nil {
			return nil, fmt.Errorf("failed to scan base_id: %w", err)
		}
		answered[baseID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answered blocks: %w", err)
	}
	return answered, nil
}

// ParticipantEvents returns every row saved by the participant in insertion
// order.
func (s *ResultStore) ParticipantEvents(ctx context.Context, participant string) ([]domain.RatingEvent, error) {
	query := fmt.Sprintf(`
		SELECT ts, participant, base_id, variant_id, question_text,
			variant_label, accuracy, completeness, usefulness, style_tone, comment
		FROM %s
		WHERE %s = $1
		ORDER BY id
	`, s.table, normalizedParticipant)

	rows, err := s.pool.Query(ctx, query, domain.NormalizeParticipant(participant))
	if err != nil {
		return nil, fmt.Errorf("failed to query participant events: %w", err)
	}
	defer rows.Close()

	var events []domain.RatingEvent
	for rows.Next() {
		var ev domain.RatingEvent
		if err := rows.Scan(
			&ev.Timestamp,
			&ev.Participant,
			&ev.BaseID,
			&ev.VariantID,
			&ev.QuestionText,
			&ev.VariantLabel,
			&ev.Scores.Accuracy,
			&ev.Scores.Completeness,
			&ev.Scores.Usefulness,
			&ev.Scores.StyleTone,
			&ev.Comment,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rating event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rating events: %w", err)
	}
	return events, nil
}

// IsTransient reports whether err looks like a temporary backend condition
// worth retrying: connection trouble, resource exhaustion, the server
// shutting down or a serialization conflict. Constraint violations and
// other programming errors are permanent.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exceptions
			return true
		case strings.HasPrefix(pgErr.Code, "53"): // insufficient resources
			return true
		case pgErr.Code == "57P03": // cannot_connect_now
			return true
		case pgErr.Code == "40001" || pgErr.Code == "40P01": // serialization, deadlock
			return true
		}
		return false
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
