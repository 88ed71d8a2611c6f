package file

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalform/internal/domain"
)

func event(participant, variantID string) domain.RatingEvent {
	return domain.RatingEvent{
		Timestamp:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Participant:  participant,
		BaseID:       domain.BaseID(variantID),
		VariantID:    variantID,
		QuestionText: "What is Go?",
		VariantLabel: domain.VariantLabel(variantID),
		Scores:       domain.Scores{Accuracy: 5, Completeness: 4, Usefulness: 3, StyleTone: 2},
		Comment:      "fine",
	}
}

func TestAppendAndReadBack(t *testing.T) {
	s, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, []domain.RatingEvent{event("Alex", "Q1a"), event("Alex", "Q1b")}))
	require.NoError(t, s.Append(ctx, []domain.RatingEvent{event("Alex", "Q2a")}))

	events, err := s.ParticipantEvents(ctx, "Alex")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Q1a", events[0].VariantID)
	assert.Equal(t, "A", events[0].VariantLabel)
	assert.Equal(t, domain.Scores{Accuracy: 5, Completeness: 4, Usefulness: 3, StyleTone: 2}, events[0].Scores)
	assert.Equal(t, "Q2", events[2].BaseID)

	answered, err := s.AnsweredBaseIDs(ctx, "Alex")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"Q1": {}, "Q2": {}}, answered)
}

func TestParticipantMatchIsCaseAndWhitespaceInsensitive(t *testing.T) {
	s, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, []domain.RatingEvent{event("Alex", "Q1a")}))

	answered, err := s.AnsweredBaseIDs(ctx, "  aLeX ")
	require.NoError(t, err)
	assert.Contains(t, answered, "Q1")
}

func TestMissingFileMeansNothingAnswered(t *testing.T) {
	s, err := NewResultStore(t.TempDir())
	require.NoError(t, err)

	answered, err := s.AnsweredBaseIDs(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, answered)
}

func TestHeaderWrittenOnceInCanonicalOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := NewResultStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, []domain.RatingEvent{event("Alex", "Q1a")}))
	require.NoError(t, s.Append(ctx, []domain.RatingEvent{event("Alex", "Q2a")}))

	data, err := os.ReadFile(s.path("alex"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(header, ","), lines[0])
}

func TestTolerantReadOfReorderedHeader(t *testing.T) {
	dir := t.TempDir()
	s, err := NewResultStore(dir)
	require.NoError(t, err)

	// A file written by an older run with a different column order.
	csv := "base_id,ts,comment,variant_id,question_text,variant_label,accuracy,completeness,usefulness,style_tone\n" +
		"Q1,2026-08-01T12:00:00Z,ok,Q1a,what,A,1,2,3,4\n"
	require.NoError(t, os.WriteFile(s.path("alex"), []byte(csv), 0o644))

	events, err := s.ParticipantEvents(context.Background(), "Alex")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Q1", events[0].BaseID)
	assert.Equal(t, "ok", events[0].Comment)
	assert.Equal(t, 4, events[0].Scores.StyleTone)
}

func TestConcurrentParticipantsDoNotInterfere(t *testing.T) {
	s, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, name := range []string{"Alex", "Blake"} {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, v := range []string{"Q1a", "Q1b", "Q2a"} {
				assert.NoError(t, s.Append(ctx, []domain.RatingEvent{event(name, v)}))
			}
		}()
	}
	wg.Wait()

	for _, name := range []string{"Alex", "Blake"} {
		events, err := s.ParticipantEvents(ctx, name)
		require.NoError(t, err)
		assert.Len(t, events, 3)
		for _, ev := range events {
			assert.Equal(t, name, ev.Participant)
		}
	}
}
