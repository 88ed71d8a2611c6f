package file

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"evalform/internal/domain"
)

// header is the canonical column order written to new files. The
// participant column is implicit: one file per participant, named after
// the normalized participant.
var header = []string{
	"ts", "base_id", "variant_id", "question_text", "variant_label",
	"accuracy", "completeness", "usefulness", "style_tone", "comment",
}

// ResultStore implements domain.ResultStore on local per-participant CSV
// files. Each Append lands as one buffered write to a file opened with
// O_APPEND, so readers see whole blocks. The header policy is tolerant:
// reads resolve columns by name, and only newly created files get the
// canonical order.
type ResultStore struct {
	dir string
}

// NewResultStore creates a file-backed result store rooted at dir.
func NewResultStore(dir string) (*ResultStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", dir, err)
	}
	return &ResultStore{dir: dir}, nil
}

// path returns the participant's results file. The filename is derived from
// the normalized participant, so "Alex" and " alex " share one file.
func (s *ResultStore) path(participant string) string {
	slug := domain.NormalizeParticipant(participant)
	var b strings.Builder
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		b.WriteString("anonymous")
	}
	return filepath.Join(s.dir, "results_"+b.String()+".csv")
}

// Append writes all events as a single buffered write. A brand-new file
// gets the header first, inside the same write.
func (s *ResultStore) Append(ctx context.Context, events []domain.RatingEvent) error {
	if len(events) == 0 {
		return nil
	}

	path := s.path(events[0].Participant)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open results file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat results file %s: %w", path, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to encode header: %w", err)
		}
	}
	for _, ev := range events {
		record := []string{
			ev.Timestamp.UTC().Format(time.RFC3339),
			ev.BaseID,
			ev.VariantID,
			ev.QuestionText,
			ev.VariantLabel,
			strconv.Itoa(ev.Scores.Accuracy),
			strconv.Itoa(ev.Scores.Completeness),
			strconv.Itoa(ev.Scores.Usefulness),
			strconv.Itoa(ev.Scores.StyleTone),
			ev.Comment,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to encode rating event: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode rating events: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append to results file %s: %w", path, err)
	}
	return nil
}

// AnsweredBaseIDs reads the participant's file and returns the distinct
// base IDs in it. A missing file means nothing has been answered yet.
func (s *ResultStore) AnsweredBaseIDs(ctx context.Context, participant string) (map[string]struct{}, error) {
	events, err := s.ParticipantEvents(ctx, participant)
	if err != nil {
		return nil, err
	}
	answered := make(map[string]struct{}, len(events))
	for _, ev := range events {
		answered[ev.BaseID] = struct{}{}
	}
	return answered, nil
}

// ParticipantEvents reads every row from the participant's file, resolving
// columns by header name.
func (s *ResultStore) ParticipantEvents(ctx context.Context, participant string) ([]domain.RatingEvent, error) {
	path := s.path(participant)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open results file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	head, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	cols := make(map[string]int, len(head))
	for i, col := range head {
		cols[strings.ToLower(strings.TrimSpace(col))] = i
	}

	var events []domain.RatingEvent
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		ev := domain.RatingEvent{
			Participant:  strings.TrimSpace(participant),
			BaseID:       column(record, cols, "base_id"),
			VariantID:    column(record, cols, "variant_id"),
			QuestionText: column(record, cols, "question_text"),
			VariantLabel: column(record, cols, "variant_label"),
			Comment:      column(record, cols, "comment"),
		}
		if ts, err := time.Parse(time.RFC3339, column(record, cols, "ts")); err == nil {
			ev.Timestamp = ts
		}
		ev.Scores.Accuracy = score(record, cols, "accuracy")
		ev.Scores.Completeness = score(record, cols, "completeness")
		ev.Scores.Usefulness = score(record, cols, "usefulness")
		ev.Scores.StyleTone = score(record, cols, "style_tone")
		if ev.BaseID == "" {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func column(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func score(record []string, cols map[string]int, name string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(column(record, cols, name)))
	return n
}
