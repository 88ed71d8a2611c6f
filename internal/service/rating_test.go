package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalform/internal/domain"
)

// memStore is an in-memory domain.ResultStore.
type memStore struct {
	events    []domain.RatingEvent
	appendErr error
}

func (m *memStore) Append(ctx context.Context, events []domain.RatingEvent) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) AnsweredBaseIDs(ctx context.Context, participant string) (map[string]struct{}, error) {
	normalized := domain.NormalizeParticipant(participant)
	answered := make(map[string]struct{})
	for _, ev := range m.events {
		if domain.NormalizeParticipant(ev.Participant) == normalized {
			answered[ev.BaseID] = struct{}{}
		}
	}
	return answered, nil
}

func (m *memStore) ParticipantEvents(ctx context.Context, participant string) ([]domain.RatingEvent, error) {
	normalized := domain.NormalizeParticipant(participant)
	var events []domain.RatingEvent
	for _, ev := range m.events {
		if domain.NormalizeParticipant(ev.Participant) == normalized {
			events = append(events, ev)
		}
	}
	return events, nil
}

// memCache is an in-memory domain.AnsweredCache recording invalidations.
type memCache struct {
	entries     map[string]map[string]struct{}
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]map[string]struct{})}
}

func (c *memCache) Get(ctx context.Context, participant string) (map[string]struct{}, bool, error) {
	set, ok := c.entries[participant]
	return set, ok, nil
}

func (c *memCache) Set(ctx context.Context, participant string, baseIDs map[string]struct{}) error {
	c.entries[participant] = baseIDs
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, participant string) error {
	delete(c.entries, participant)
	c.invalidated = append(c.invalidated, participant)
	return nil
}

// memSessions is an in-memory domain.SessionStore keyed by normalized
// participant.
type memSessions struct {
	states map[string]*domain.SessionState
}

func newMemSessions() *memSessions {
	return &memSessions{states: make(map[string]*domain.SessionState)}
}

func (m *memSessions) Begin(ctx context.Context, participant string, index, total int) (*domain.SessionState, error) {
	state := &domain.SessionState{
		ID:          "test-session",
		Participant: participant,
		Index:       index,
		Total:       total,
	}
	m.states[domain.NormalizeParticipant(participant)] = state
	return state, nil
}

func (m *memSessions) Get(ctx context.Context, participant string) (*domain.SessionState, error) {
	state, ok := m.states[domain.NormalizeParticipant(participant)]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	copied := *state
	return &copied, nil
}

func (m *memSessions) Advance(ctx context.Context, participant string) (*domain.SessionState, error) {
	state, ok := m.states[domain.NormalizeParticipant(participant)]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if !state.Complete() {
		state.Index++
	}
	copied := *state
	return &copied, nil
}

type progressRecorder struct {
	updates []int
}

func (p *progressRecorder) NotifyProgress(participant string, completed, total int) {
	p.updates = append(p.updates, completed)
}

func testItems() []domain.QuestionItem {
	return []domain.QuestionItem{
		{VariantID: "Q1a", QuestionText: "What is Go?", AnswerText: "A language"},
		{VariantID: "Q1b", QuestionText: "What is Go?", AnswerText: "A board game"},
		{VariantID: "Q2a", QuestionText: "What is Rust?", AnswerText: "Oxidation"},
	}
}

func score(n int) *int { return &n }

func fullRating(variantID string) VariantRating {
	return VariantRating{
		VariantID:    variantID,
		Accuracy:     score(5),
		Completeness: score(4),
		Usefulness:   score(3),
		StyleTone:    score(2),
		Comment:      " looks good ",
	}
}

func newTestService(store domain.ResultStore, notifier ProgressNotifier) *RatingService {
	return NewRatingService(testItems(), store, newMemCache(), newMemSessions(), notifier)
}

func TestBeginRequiresName(t *testing.T) {
	svc := newTestService(&memStore{}, nil)

	_, err := svc.Begin(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestBeginStartsAtFirstBlock(t *testing.T) {
	svc := newTestService(&memStore{}, nil)

	state, err := svc.Begin(context.Background(), "Alex")

	require.NoError(t, err)
	assert.Equal(t, 0, state.Index)
	assert.Equal(t, 2, state.Total)
	assert.False(t, state.Complete())
}

func TestSubmitAdvancesAndPersistsWholeBlock(t *testing.T) {
	store := &memStore{}
	progress := &progressRecorder{}
	svc := newTestService(store, progress)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "Alex")
	require.NoError(t, err)

	state, err := svc.Submit(ctx, "Alex", []VariantRating{fullRating("Q1a"), fullRating("Q1b")})

	require.NoError(t, err)
	assert.Equal(t, 1, state.Index)
	require.Len(t, store.events, 2)
	first, second := store.events[0], store.events[1]
	assert.Equal(t, "Q1", first.BaseID)
	assert.Equal(t, "Alex", first.Participant)
	assert.Equal(t, "looks good", first.Comment)
	assert.Equal(t, first.Timestamp, second.Timestamp, "one commit moment per block")
	assert.Equal(t, []int{1}, progress.updates)
}

func TestSubmitRejectsIncompleteRatings(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "Alex")
	require.NoError(t, err)

	partial := fullRating("Q1b")
	partial.Usefulness = nil
	_, err = svc.Submit(ctx, "Alex", []VariantRating{fullRating("Q1a"), partial})

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Missing, "Q1b/usefulness")
	assert.Empty(t, store.events, "nothing persisted on validation failure")

	state, _, err := svc.Current(ctx, "Alex")
	require.NoError(t, err)
	assert.Equal(t, 0, state.Index, "index not advanced on validation failure")
}

func TestSubmitRejectsMissingVariant(t *testing.T) {
	svc := newTestService(&memStore{}, nil)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "Alex")
	require.NoError(t, err)

	// Q1b never rated at all.
	_, err = svc.Submit(ctx, "Alex", []VariantRating{fullRating("Q1a")})

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Missing, "Q1b/accuracy")
}

func TestSubmitRejectsOutOfRangeScores(t *testing.T) {
	svc := newTestService(&memStore{}, nil)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "Alex")
	require.NoError(t, err)

	bad := fullRating("Q1a")
	bad.Accuracy = score(6)
	_, err = svc.Submit(ctx, "Alex", []VariantRating{bad, fullRating("Q1b")})

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Missing, "Q1a/accuracy")
}

func TestSubmitRejectsForeignVariant(t *testing.T) {
	svc := newTestService(&memStore{}, nil)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "Alex")
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "Alex", []VariantRating{fullRating("Q1a"), fullRating("Q2a")})

	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestSubmitSurfacesStoreErrorWithoutAdvancing(t *testing.T) {
	store := &memStore{appendErr: errors.New("backend down")}
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "Alex")
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "Alex", []VariantRating{fullRating("Q1a"), fullRating("Q1b")})

	var storeErr *domain.StoreError
	require.ErrorAs(t, err, &storeErr)

	state, _, err := svc.Current(ctx, "Alex")
	require.NoError(t, err)
	assert.Equal(t, 0, state.Index)
}

func TestSubmitAfterCompletion(t *testing.T) {
	svc := newTestService(&memStore{}, nil)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "Alex")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "Alex", []VariantRating{fullRating("Q1a"), fullRating("Q1b")})
	require.NoError(t, err)
	state, err := svc.Submit(ctx, "Alex", []VariantRating{fullRating("Q2a")})
	require.NoError(t, err)
	require.True(t, state.Complete())

	_, err = svc.Submit(ctx, "Alex", []VariantRating{fullRating("Q2a")})
	assert.ErrorIs(t, err, ErrSessionComplete)
}

func TestResumeRecognizesParticipantAcrossCasing(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "Alex")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "Alex", []VariantRating{fullRating("Q1a"), fullRating("Q1b")})
	require.NoError(t, err)

	// A fresh session under a differently typed name resumes at Q2.
	state, err := svc.Begin(ctx, "  alex ")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Index)

	_, block, err := svc.Current(ctx, "alex")
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, "Q2", block.BaseID)
}

func TestSubmitInvalidatesAnsweredCache(t *testing.T) {
	store := &memStore{}
	cache := newMemCache()
	svc := NewRatingService(testItems(), store, cache, newMemSessions(), nil)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "Alex")
	require.NoError(t, err)
	// Begin populated the cache with an empty answered set.
	_, ok, _ := cache.Get(ctx, "alex")
	require.True(t, ok)

	_, err = svc.Submit(ctx, "Alex", []VariantRating{fullRating("Q1a"), fullRating("Q1b")})
	require.NoError(t, err)

	assert.Contains(t, cache.invalidated, "alex")
	answered, err := svc.answeredBaseIDs(ctx, "Alex")
	require.NoError(t, err)
	assert.Contains(t, answered, "Q1", "post-invalidation read sees the saved block")
}

func TestResultsReturnsParticipantRowsOnly(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, nil)
	ctx := context.Background()

	for _, name := range []string{"Alex", "Blake"} {
		_, err := svc.Begin(ctx, name)
		require.NoError(t, err)
		_, err = svc.Submit(ctx, name, []VariantRating{fullRating("Q1a"), fullRating("Q1b")})
		require.NoError(t, err)
	}

	events, err := svc.Results(ctx, "alex")
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "Alex", ev.Participant)
	}
}
