// Package matcher pairs a user with the opposite-gender unmatched user who shares the most
// questionnaire answers, and persists the pairing as a mutual match.
package matcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/models"
	"github.com/promnight/prom-match/internal/store"
)

// ErrStore wraps persistence failures.
var ErrStore = errors.New("store error")

// Store is the User Store the matcher reads candidates from and writes matches to.
type Store interface {
	GetUser(ctx context.Context, id int) (*models.User, error)
	GetUserWithAnswers(ctx context.Context, id int) (*models.User, error)
	ListUnmatchedUsersByGender(ctx context.Context, gender models.Gender) ([]models.User, error)
	// SetMutualMatch atomically pairs a and b, failing with store.ErrConflict when either
	// is already matched.
	SetMutualMatch(ctx context.Context, a, b int) error
}

// Notifier is told about every newly persisted match.
type Notifier interface {
	MatchFound(ctx context.Context, requester, match models.User, score int)
}

// Result of FindBestMatch. Match is the counterpart, never the requester, and is nil for
// OutcomeNoMatch.
type Result struct {
	Outcome  Outcome      `json:"outcome"`
	Match    *models.User `json:"match,omitempty"`
	Score    int          `json:"score"`
	Attempts int          `json:"attempts"`
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMaxAttempts bounds the candidate rescans after a lost race. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(m *Matcher) {
		if n >= 1 {
			m.maxAttempts = n
		}
	}
}

// WithZeroScore lets a candidate sharing no answers be selected.
func WithZeroScore(allow bool) Option {
	return func(m *Matcher) { m.allowZero = allow }
}

// WithNotifier registers n to hear about every new match after it is committed.
func WithNotifier(n Notifier) Option {
	return func(m *Matcher) { m.notifier = n }
}

// Matcher runs FindBestMatch against a Store. It keeps no state between calls, so one
// Matcher serves concurrent requests.
type Matcher struct {
	store       Store
	logger      *zap.Logger
	maxAttempts int
	allowZero   bool
	notifier    Notifier
}

// New returns a Matcher with three attempts and zero-score candidates excluded.
func New(s Store, logger *zap.Logger, opts ...Option) *Matcher {
	m := &Matcher{
		store:       s,
		logger:      logger.Named("matcher"),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindBestMatch returns the user's existing match, or computes and persists a new one.
// An already matched user gets the same counterpart on every call and nothing is written.
func (m *Matcher) FindBestMatch(ctx context.Context, userID int) (Result, error) {
	log := m.logger.With(zap.Int("user_id", userID))

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt - 1}, err
		}

		user, err := m.store.GetUserWithAnswers(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		if err != nil {
			return Result{}, fmt.Errorf("%w: loading user %d: %w", ErrStore, userID, err)
		}

		if user.IsMatched() {
			res, err := m.existingMatch(ctx, user)
			res.Attempts = attempt
			return res, err
		}

		candidates, err := m.store.ListUnmatchedUsersByGender(ctx, user.Gender.Opposite())
		if err != nil {
			return Result{}, fmt.Errorf("%w: listing candidates: %w", ErrStore, err)
		}

		idx, score := pickBest(answerIndex(user.Answers), candidates, m.allowZero)
		if idx == -1 {
			log.Info("no match available", zap.Int("candidates", len(candidates)))
			return Result{Outcome: OutcomeNoMatch, Attempts: attempt}, nil
		}
		best := candidates[idx]

		err = m.store.SetMutualMatch(ctx, user.ID, best.ID)
		switch {
		case err == nil:
			// The match is committed; a caller going away must not cut the follow-up short.
			committed := context.WithoutCancel(ctx)
			match := m.counterpart(committed, best, user.ID)
			log.Info("match found",
				zap.Int("match_id", match.ID), zap.Int("score", score), zap.Int("attempt", attempt))
			if m.notifier != nil {
				m.notifier.MatchFound(committed, *user, match, score)
			}
			return Result{Outcome: OutcomeMatched, Match: &match, Score: score, Attempts: attempt}, nil

		case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrNotFound):
			// Someone else took the candidate or the requester in the meantime; rescan.
			log.Warn("match assignment lost a race",
				zap.Int("candidate_id", best.ID), zap.Int("attempt", attempt), zap.Error(err))
			continue

		default:
			return Result{}, fmt.Errorf("%w: assigning match %d-%d: %w", ErrStore, user.ID, best.ID, err)
		}
	}

	return Result{Attempts: m.maxAttempts},
		fmt.Errorf("user %d: %w after %d attempts", userID, ErrConflict, m.maxAttempts)
}

func (m *Matcher) existingMatch(ctx context.Context, user *models.User) (Result, error) {
	match, err := m.store.GetUser(ctx, *user.MatchedWithID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: loading match %d of user %d: %w",
			ErrStore, *user.MatchedWithID, user.ID, err)
	}
	return Result{Outcome: OutcomeAlreadyMatched, Match: match}, nil
}

// counterpart re-reads the candidate so the result carries what the store wrote.
// If the read fails the candidate is patched locally, without a match time.
func (m *Matcher) counterpart(ctx context.Context, c models.User, requesterID int) models.User {
	stored, err := m.store.GetUser(ctx, c.ID)
	if err == nil {
		return *stored
	}
	m.logger.Warn("reloading matched user", zap.Int("match_id", c.ID), zap.Error(err))

	id := requesterID
	c.Matched = true
	c.MatchedWithID = &id
	c.MatchedAt = nil
	c.Answers = nil
	return c
}
