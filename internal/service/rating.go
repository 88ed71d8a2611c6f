package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"evalform/internal/domain"
	"evalform/internal/session"
)

// ProgressNotifier receives a progress update after each durable save.
type ProgressNotifier interface {
	NotifyProgress(participant string, completed, total int)
}

// VariantRating is the caller's rating of one answer variant. Nil scores
// are criteria the participant has not set yet.
type VariantRating struct {
	VariantID    string
	Accuracy     *int
	Completeness *int
	Usefulness   *int
	StyleTone    *int
	Comment      string
}

// RatingService drives resumable rating sessions: it owns the grouped block
// order loaded at startup and coordinates the session store, the result
// store and the answered cache.
type RatingService struct {
	order    []string
	blocks   map[string]*domain.Block
	store    domain.ResultStore
	cache    domain.AnsweredCache
	sessions domain.SessionStore
	notifier ProgressNotifier
}

// NewRatingService groups the loaded items into blocks and wires the
// collaborators. notifier may be nil.
func NewRatingService(
	items []domain.QuestionItem,
	store domain.ResultStore,
	cache domain.AnsweredCache,
	sessions domain.SessionStore,
	notifier ProgressNotifier,
) *RatingService {
	order, blocks := domain.GroupItems(items)
	return &RatingService{
		order:    order,
		blocks:   blocks,
		store:    store,
		cache:    cache,
		sessions: sessions,
		notifier: notifier,
	}
}

// TotalBlocks returns the number of question blocks in the study.
func (s *RatingService) TotalBlocks() int {
	return len(s.order)
}

// Begin starts a session for the named participant, resumed at their first
// unanswered block.
func (s *RatingService) Begin(ctx context.Context, name string) (*domain.SessionState, error) {
	participant := strings.TrimSpace(name)
	if participant == "" {
		return nil, ErrNameRequired
	}

	answered, err := s.answeredBaseIDs(ctx, participant)
	if err != nil {
		return nil, err
	}
	index := session.ResumeIndex(s.order, answered)
	return s.sessions.Begin(ctx, participant, index, len(s.order))
}

// Current returns the participant's session and the block to rate next.
// The block is nil when the session is complete.
func (s *RatingService) Current(ctx context.Context, name string) (*domain.SessionState, *domain.Block, error) {
	state, err := s.sessions.Get(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	// A session saved against an older question set may point past the
	// current block order; treat it as complete rather than panic.
	if state.Complete() || state.Index >= len(s.order) {
		return state, nil, nil
	}
	return state, s.blocks[s.order[state.Index]], nil
}

// Submit validates and persists the current block's ratings, then advances
// the session. Incomplete ratings fail with *domain.ValidationError and
// persist nothing; store failures fail with *domain.StoreError and leave
// the session index untouched.
func (s *RatingService) Submit(ctx context.Context, name string, ratings []VariantRating) (*domain.SessionState, error) {
	state, block, err := s.Current(ctx, name)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return state, ErrSessionComplete
	}

	byVariant := make(map[string]VariantRating, len(ratings))
	for _, r := range ratings {
		if _, ok := blockVariant(block, r.VariantID); !ok {
			return nil, ErrUnknownVariant
		}
		byVariant[r.VariantID] = r
	}

	now := time.Now().UTC()
	var missing []string
	events := make([]domain.RatingEvent, 0, len(block.Items))
	for _, item := range block.Items {
		r := byVariant[item.VariantID]
		scores, miss := collectScores(item.VariantID, r)
		if len(miss) > 0 {
			missing = append(missing, miss...)
			continue
		}
		events = append(events, domain.RatingEvent{
			Timestamp:    now,
			Participant:  state.Participant,
			BaseID:       block.BaseID,
			VariantID:    item.VariantID,
			QuestionText: item.QuestionText,
			VariantLabel: domain.VariantLabel(item.VariantID),
			Scores:       scores,
			Comment:      strings.TrimSpace(r.Comment),
		})
	}
	if len(missing) > 0 {
		return nil, &domain.ValidationError{Missing: missing}
	}

	if err := s.store.Append(ctx, events); err != nil {
		var storeErr *domain.StoreError
		if errors.As(err, &storeErr) {
			return nil, err
		}
		return nil, &domain.StoreError{Op: "append", Err: err}
	}

	// The next resume computation must see the rows just saved. A failed
	// invalidation only leaves the cache stale until its TTL, the save
	// itself already happened.
	_ = s.cache.Invalidate(ctx, domain.NormalizeParticipant(state.Participant))

	state, err = s.sessions.Advance(ctx, name)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.NotifyProgress(state.Participant, state.Index, state.Total)
	}
	return state, nil
}

// Results returns every rating the participant has saved, for download.
func (s *RatingService) Results(ctx context.Context, name string) ([]domain.RatingEvent, error) {
	events, err := s.store.ParticipantEvents(ctx, name)
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Err: err}
	}
	return events, nil
}

// answeredBaseIDs is the read-through path: cache first, store on a miss.
// Cache errors degrade to a direct store read.
func (s *RatingService) answeredBaseIDs(ctx context.Context, participant string) (map[string]struct{}, error) {
	normalized := domain.NormalizeParticipant(participant)
	if set, ok, err := s.cache.Get(ctx, normalized); err == nil && ok {
		return set, nil
	}

	set, err := s.store.AnsweredBaseIDs(ctx, participant)
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Err: err}
	}
	_ = s.cache.Set(ctx, normalized, set)
	return set, nil
}

func blockVariant(block *domain.Block, variantID string) (domain.QuestionItem, bool) {
	for _, item := range block.Items {
		if item.VariantID == variantID {
			return item, true
		}
	}
	return domain.QuestionItem{}, false
}

// collectScores turns a VariantRating into Scores, reporting each unset or
// out-of-range criterion as variantID/criterion.
func collectScores(variantID string, r VariantRating) (domain.Scores, []string) {
	var scores domain.Scores
	var missing []string

	take := func(criterion string, v *int, dst *int) {
		if v == nil || *v < 1 || *v > 5 {
			missing = append(missing, variantID+"/"+criterion)
			return
		}
		*dst = *v
	}
	take("accuracy", r.Accuracy, &scores.Accuracy)
	take("completeness", r.Completeness, &scores.Completeness)
	take("usefulness", r.Usefulness, &scores.Usefulness)
	take("style_tone", r.StyleTone, &scores.StyleTone)

	return scores, missing
}
