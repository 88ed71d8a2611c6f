package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Scores holds the four per-criterion ratings, each in 1..5.
type Scores struct {
	Accuracy     int `json:"accuracy"`
	Completeness int `json:"completeness"`
	Usefulness   int `json:"usefulness"`
	StyleTone    int `json:"style_tone"`
}

// RatingEvent is one persisted rating row: a participant's scores for a
// single answer variant. Events are append-only and never updated.
type RatingEvent struct {
	Timestamp    time.Time `json:"ts"`
	Participant  string    `json:"participant"`
	BaseID       string    `json:"base_id"`
	VariantID    string    `json:"variant_id"`
	QuestionText string    `json:"question_text"`
	VariantLabel string    `json:"variant_label"`
	Scores       Scores    `json:"scores"`
	Comment      string    `json:"comment"`
}

// ResultStore defines the interface for rating persistence. A store is
// append-only: rows are added, never rewritten.
type ResultStore interface {
	// Append persists all events or none of them. Implementations must not
	// leave a partial block visible to a subsequent read.
	Append(ctx context.Context, events []RatingEvent) error

	// AnsweredBaseIDs returns the distinct base IDs the participant has
	// saved rows for, matching the participant case- and
	// whitespace-insensitively. A block counts as answered as soon as any
	// of its rows is persisted; Append writes whole blocks atomically, so
	// a partially answered block is never observable.
	AnsweredBaseIDs(ctx context.Context, participant string) (map[string]struct{}, error)

	// ParticipantEvents returns every persisted event for the participant
	// in insertion order.
	ParticipantEvents(ctx context.Context, participant string) ([]RatingEvent, error)
}

// AnsweredCache is a short-lived cache of AnsweredBaseIDs results, keyed by
// normalized participant. Callers must invalidate it right after a
// successful Append so the next resume computation sees the new rows.
type AnsweredCache interface {
	Get(ctx context.Context, participant string) (map[string]struct{}, bool, error)
	Set(ctx context.Context, participant string, baseIDs map[string]struct{}) error
	Invalidate(ctx context.Context, participant string) error
}

// NormalizeParticipant folds case and collapses whitespace so a returning
// participant is matched regardless of how they typed their name.
func NormalizeParticipant(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ValidationError reports criteria left unset or out of range at save time.
// It is recoverable: the participant corrects the form and retries.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("unscored criteria: %s", strings.Join(e.Missing, ", "))
}

// StoreError wraps a persistence failure that survived retrying, or a
// permanent store misconfiguration. The save step that hit it is aborted
// without advancing the session.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("result store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
