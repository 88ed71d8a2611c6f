package question

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"evalform/internal/domain"
)

// requiredColumns maps each logical column to the header names it may
// appear under. The first alias set matches the canonical schema, the rest
// cover older question files.
var requiredColumns = map[string][]string{
	"variant_id":    {"variant_id", "qid"},
	"question_text": {"question_text", "question"},
	"answer_text":   {"answer_text", "model_answer"},
}

// CSVSource implements domain.QuestionSource over a CSV file with columns
// variant_id, question_text and answer_text. Columns are resolved by header
// name, not position.
type CSVSource struct {
	path string
}

// NewCSVSource creates a question source reading from the given file path
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Load reads every question row from the file
func (s *CSVSource) Load(ctx context.Context) ([]domain.QuestionItem, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header of %s: %v", domain.ErrDataUnavailable, s.path, err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDataUnavailable, s.path, err)
	}

	var items []domain.QuestionItem
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read question row: %w", err)
		}
		item := domain.QuestionItem{
			VariantID:    strings.TrimSpace(field(record, cols["variant_id"])),
			QuestionText: field(record, cols["question_text"]),
			AnswerText:   field(record, cols["answer_text"]),
		}
		if item.VariantID == "" {
			continue
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s has no question rows", domain.ErrDataUnavailable, s.path)
	}
	return items, nil
}

// resolveColumns maps logical column names to their positions in the header.
func resolveColumns(header []string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, col := range header {
		byName[strings.ToLower(strings.TrimSpace(col))] = i
	}

	cols := make(map[string]int, len(requiredColumns))
	for logical, aliases := range requiredColumns {
		found := false
		for _, alias := range aliases {
			if i, ok := byName[alias]; ok {
				cols[logical] = i
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("missing column %q", logical)
		}
	}
	return cols, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}
