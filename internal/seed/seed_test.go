package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/models"
	"github.com/promnight/prom-match/internal/questionnaire"
	"github.com/promnight/prom-match/internal/store"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	res, err := Run(ctx, mem, Options{Count: 10, Seed: 42, Password: "test1234", AnswerRate: 0.5}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, res.UserIDs, 10)
	assert.GreaterOrEqual(t, res.Answered, 2)

	acct, err := mem.GetAccountByEmail(ctx, "user1@test.local")
	require.NoError(t, err)
	assert.Equal(t, res.UserIDs[0], acct.ID)

	genders := map[models.Gender]int{}
	for _, id := range res.UserIDs {
		u, err := mem.GetUser(ctx, id)
		require.NoError(t, err)
		genders[u.Gender]++
		if u.QuestionsAnswered {
			assert.Equal(t, len(questionnaire.Catalog), mem.AnswerCount(id))
		}
	}
	assert.Equal(t, 5, genders[models.Female])
	assert.Equal(t, 5, genders[models.Male])
}

func TestRunDeterministic(t *testing.T) {
	ctx := context.Background()
	opts := Options{Count: 6, Seed: 7, Password: "pw", AnswerRate: 1}

	names := func() []string {
		mem := store.NewMemory()
		res, err := Run(ctx, mem, opts, zap.NewNop())
		require.NoError(t, err)
		var out []string
		for _, id := range res.UserIDs {
			u, err := mem.GetUserWithAnswers(ctx, id)
			require.NoError(t, err)
			out = append(out, u.Name, u.Answers[0].Value)
		}
		return out
	}
	assert.Equal(t, names(), names())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"zero count", Options{Count: 0, Password: "pw"}},
		{"rate above one", Options{Count: 1, Password: "pw", AnswerRate: 1.5}},
		{"no password", Options{Count: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.opts.Validate())
		})
	}
}
