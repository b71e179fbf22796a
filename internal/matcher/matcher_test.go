package matcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/models"
	"github.com/promnight/prom-match/internal/store"
)

// countingStore wraps the in-memory store and records how often each operation runs.
type countingStore struct {
	*store.Memory
	lists  atomic.Int32
	writes atomic.Int32

	// conflicts makes the next n SetMutualMatch calls fail with ErrConflict.
	conflicts atomic.Int32
	listErr   error

	getUserErr error
	afterMatch func()
}

func (s *countingStore) GetUser(ctx context.Context, id int) (*models.User, error) {
	if s.getUserErr != nil {
		return nil, s.getUserErr
	}
	return s.Memory.GetUser(ctx, id)
}

func (s *countingStore) ListUnmatchedUsersByGender(ctx context.Context, g models.Gender) ([]models.User, error) {
	s.lists.Add(1)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Memory.ListUnmatchedUsersByGender(ctx, g)
}

func (s *countingStore) SetMutualMatch(ctx context.Context, a, b int) error {
	if s.conflicts.Load() > 0 {
		s.conflicts.Add(-1)
		return store.ErrConflict
	}
	s.writes.Add(1)
	err := s.Memory.SetMutualMatch(ctx, a, b)
	if err == nil && s.afterMatch != nil {
		s.afterMatch()
	}
	return err
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *countingStore
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, ctx: context.Background(), store: &countingStore{Memory: store.NewMemory()}}
}

func (f *fixture) user(name string, g models.Gender, values map[int]string) int {
	f.t.Helper()
	id, err := f.store.CreateAccount(f.ctx, fmt.Sprintf("%s@example.com", name), "hash")
	require.NoError(f.t, err)
	require.NoError(f.t, f.store.CreateProfile(f.ctx, models.User{ID: id, Name: name, Gender: g}))
	for q, v := range values {
		require.NoError(f.t, f.store.SaveAnswer(f.ctx, models.Answer{UserID: id, QuestionNumber: q, Value: v}))
	}
	return id
}

func (f *fixture) matcher(opts ...Option) *Matcher {
	return New(f.store, zap.NewNop(), opts...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events [][2]int
}

func (n *recordingNotifier) MatchFound(_ context.Context, requester, match models.User, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, [2]int{requester.ID, match.ID})
}

func TestFindBestMatchPicksHighestScore(t *testing.T) {
	f := newFixture(t)
	u := f.user("u", models.Female, map[int]string{1: "Yes", 2: "Pizza", 3: "Rock"})
	c1 := f.user("c1", models.Male, map[int]string{1: "Yes", 2: "Tacos", 3: "Jazz"})
	c2 := f.user("c2", models.Male, map[int]string{1: "Yes", 2: "Pizza", 3: "Jazz"})
	f.user("same-gender", models.Female, map[int]string{1: "Yes", 2: "Pizza", 3: "Rock"})

	notifier := &recordingNotifier{}
	res, err := f.matcher(WithNotifier(notifier)).FindBestMatch(f.ctx, u)
	require.NoError(t, err)

	assert.Equal(t, OutcomeMatched, res.Outcome)
	require.NotNil(t, res.Match)
	assert.Equal(t, c2, res.Match.ID)
	assert.Equal(t, 2, res.Score)
	assert.EqualValues(t, 1, f.store.writes.Load())
	assert.Equal(t, [][2]int{{u, c2}}, notifier.events)

	// Both rows flipped, pointing at each other.
	requester, err := f.store.GetUser(f.ctx, u)
	require.NoError(t, err)
	match, err := f.store.GetUser(f.ctx, c2)
	require.NoError(t, err)
	require.NotNil(t, requester.MatchedWithID)
	require.NotNil(t, match.MatchedWithID)
	assert.Equal(t, c2, *requester.MatchedWithID)
	assert.Equal(t, u, *match.MatchedWithID)
	assert.True(t, requester.Matched)
	assert.True(t, match.Matched)

	loser, err := f.store.GetUser(f.ctx, c1)
	require.NoError(t, err)
	assert.False(t, loser.IsMatched())
}

func TestFindBestMatchAlreadyMatched(t *testing.T) {
	f := newFixture(t)
	u := f.user("u", models.Male, map[int]string{1: "Yes"})
	c := f.user("c", models.Female, map[int]string{1: "Yes"})
	m := f.matcher()

	first, err := m.FindBestMatch(f.ctx, u)
	require.NoError(t, err)
	require.Equal(t, OutcomeMatched, first.Outcome)
	lists, writes := f.store.lists.Load(), f.store.writes.Load()

	// A better candidate showing up later changes nothing.
	f.user("better", models.Female, map[int]string{1: "Yes", 2: "Pizza"})

	second, err := m.FindBestMatch(f.ctx, u)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyMatched, second.Outcome)
	require.NotNil(t, second.Match)
	assert.Equal(t, c, second.Match.ID)
	assert.Equal(t, lists, f.store.lists.Load(), "no rescan for a matched user")
	assert.Equal(t, writes, f.store.writes.Load(), "no writes for a matched user")
}

func TestFindBestMatchSymmetry(t *testing.T) {
	f := newFixture(t)
	u := f.user("u", models.Male, map[int]string{1: "Yes"})
	c := f.user("c", models.Female, map[int]string{1: "Yes"})
	m := f.matcher()

	_, err := m.FindBestMatch(f.ctx, u)
	require.NoError(t, err)

	res, err := m.FindBestMatch(f.ctx, c)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyMatched, res.Outcome)
	assert.Equal(t, u, res.Match.ID)
}

func TestFindBestMatchNoMatch(t *testing.T) {
	t.Run("empty pool", func(t *testing.T) {
		f := newFixture(t)
		u := f.user("u", models.Female, map[int]string{1: "Yes"})
		f.user("other", models.Female, map[int]string{1: "Yes"})

		res, err := f.matcher().FindBestMatch(f.ctx, u)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoMatch, res.Outcome)
		assert.Nil(t, res.Match)
		assert.Zero(t, f.store.writes.Load())
	})

	t.Run("only zero scores", func(t *testing.T) {
		f := newFixture(t)
		u := f.user("u", models.Female, map[int]string{1: "Yes"})
		f.user("c", models.Male, map[int]string{1: "No", 2: "Pizza"})

		res, err := f.matcher().FindBestMatch(f.ctx, u)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoMatch, res.Outcome)
		assert.Zero(t, f.store.writes.Load())
	})

	t.Run("requester answered nothing", func(t *testing.T) {
		f := newFixture(t)
		u := f.user("u", models.Female, nil)
		f.user("c", models.Male, map[int]string{1: "Yes"})

		res, err := f.matcher().FindBestMatch(f.ctx, u)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoMatch, res.Outcome)
	})
}

func TestFindBestMatchAllowZeroScore(t *testing.T) {
	f := newFixture(t)
	u := f.user("u", models.Female, map[int]string{1: "Yes"})
	c1 := f.user("c1", models.Male, map[int]string{1: "No"})
	f.user("c2", models.Male, nil)

	res, err := f.matcher(WithZeroScore(true)).FindBestMatch(f.ctx, u)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Equal(t, c1, res.Match.ID)
	assert.Zero(t, res.Score)
}

func TestFindBestMatchTieKeepsLowestID(t *testing.T) {
	f := newFixture(t)
	u := f.user("u", models.Male, map[int]string{1: "Yes", 2: "Pizza"})
	c1 := f.user("c1", models.Female, map[int]string{1: "Yes"})
	f.user("c2", models.Female, map[int]string{2: "Pizza"})

	res, err := f.matcher().FindBestMatch(f.ctx, u)
	require.NoError(t, err)
	assert.Equal(t, c1, res.Match.ID)
}

func TestFindBestMatchUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.matcher().FindBestMatch(f.ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindBestMatchStoreError(t *testing.T) {
	f := newFixture(t)
	u := f.user("u", models.Male, map[int]string{1: "Yes"})
	boom := errors.New("connection reset")
	f.store.listErr = boom

	_, err := f.matcher().FindBestMatch(f.ctx, u)
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, boom)
}

func TestFindBestMatchRetriesConflicts(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		f := newFixture(t)
		u := f.user("u", models.Male, map[int]string{1: "Yes"})
		c := f.user("c", models.Female, map[int]string{1: "Yes"})
		f.store.conflicts.Store(2)

		res, err := f.matcher(WithMaxAttempts(3)).FindBestMatch(f.ctx, u)
		require.NoError(t, err)
		assert.Equal(t, OutcomeMatched, res.Outcome)
		assert.Equal(t, c, res.Match.ID)
		assert.Equal(t, 3, res.Attempts)
	})

	t.Run("exhausted", func(t *testing.T) {
		f := newFixture(t)
		u := f.user("u", models.Male, map[int]string{1: "Yes"})
		f.user("c", models.Female, map[int]string{1: "Yes"})
		f.store.conflicts.Store(5)

		_, err := f.matcher(WithMaxAttempts(2)).FindBestMatch(f.ctx, u)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Zero(t, f.store.writes.Load())
	})
}

func TestFindBestMatchConcurrentRequesters(t *testing.T) {
	f := newFixture(t)
	a := f.user("a", models.Male, map[int]string{1: "Yes"})
	b := f.user("b", models.Male, map[int]string{1: "Yes"})
	c := f.user("c", models.Female, map[int]string{1: "Yes"})
	m := f.matcher()

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i, id := range []int{a, b} {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = m.FindBestMatch(f.ctx, id)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	matched := 0
	for _, r := range results {
		if r.Outcome == OutcomeMatched {
			matched++
			assert.Equal(t, c, r.Match.ID)
		} else {
			assert.Equal(t, OutcomeNoMatch, r.Outcome)
		}
	}
	assert.Equal(t, 1, matched, "exactly one requester gets the candidate")

	cand, err := f.store.GetUser(f.ctx, c)
	require.NoError(t, err)
	require.NotNil(t, cand.MatchedWithID)
	assert.Contains(t, []int{a, b}, *cand.MatchedWithID)
}

func TestFindBestMatchReturnsStoredCounterpart(t *testing.T) {
	f := newFixture(t)
	u := f.user("u", models.Female, map[int]string{1: "Yes"})
	c := f.user("c", models.Male, map[int]string{1: "Yes"})

	res, err := f.matcher().FindBestMatch(f.ctx, u)
	require.NoError(t, err)

	stored, err := f.store.GetUser(f.ctx, c)
	require.NoError(t, err)
	require.NotNil(t, res.Match.MatchedAt)
	assert.Equal(t, stored.MatchedAt, res.Match.MatchedAt, "match time comes from the store")
	assert.Equal(t, u, *res.Match.MatchedWithID)
	assert.Empty(t, res.Match.Answers)
}

func TestFindBestMatchReloadFails(t *testing.T) {
	f := newFixture(t)
	u := f.user("u", models.Female, map[int]string{1: "Yes"})
	c := f.user("c", models.Male, map[int]string{1: "Yes"})
	f.store.afterMatch = func() { f.store.getUserErr = errors.New("read replica down") }

	res, err := f.matcher().FindBestMatch(f.ctx, u)
	require.NoError(t, err, "the match is committed, a failed reload is not an error")
	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Equal(t, c, res.Match.ID)
	require.NotNil(t, res.Match.MatchedWithID)
	assert.Equal(t, u, *res.Match.MatchedWithID)
	assert.True(t, res.Match.Matched)
	assert.Nil(t, res.Match.MatchedAt)
}

type ctxNotifier struct{ errs []error }

func (n *ctxNotifier) MatchFound(ctx context.Context, _, _ models.User, _ int) {
	n.errs = append(n.errs, ctx.Err())
}

func TestFindBestMatchNotifiesAfterCallerCancels(t *testing.T) {
	f := newFixture(t)
	u := f.user("u", models.Female, map[int]string{1: "Yes"})
	f.user("c", models.Male, map[int]string{1: "Yes"})

	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()
	f.store.afterMatch = cancel

	notifier := &ctxNotifier{}
	res, err := f.matcher(WithNotifier(notifier)).FindBestMatch(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Equal(t, []error{nil}, notifier.errs, "notifiers run on a context detached from the caller")
}
