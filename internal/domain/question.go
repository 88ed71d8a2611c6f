package domain

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrDataUnavailable = errors.New("question source is missing or empty")
	ErrSessionNotFound = errors.New("session not found")
)

// QuestionItem is one candidate answer to a question, identified by its
// variant ID (e.g. "Q1a" is variant "a" of question "Q1").
type QuestionItem struct {
	VariantID    string `json:"variant_id"`
	QuestionText string `json:"question_text"`
	AnswerText   string `json:"answer_text"`
}

// Block holds all answer variants of one underlying question. Every item in
// a block shares the same base ID; items keep their source order.
type Block struct {
	BaseID string         `json:"base_id"`
	Items  []QuestionItem `json:"items"`
}

// QuestionSource defines the interface for loading the fixed list of
// evaluation items
type QuestionSource interface {
	// Load returns all items in source order. It fails with
	// ErrDataUnavailable when the source is missing or has no rows.
	Load(ctx context.Context) ([]QuestionItem, error)
}
