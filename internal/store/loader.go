package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/promnight/prom-match/internal/models"
)

// answerBatchSize bounds the id list sent in a single ANY($1) query.
const answerBatchSize = 500

// answerFetcher returns the answers of the given users keyed by user id.
type answerFetcher func(ctx context.Context, userIDs []int) (map[int][]models.Answer, error)

// dbAnswerFetcher reads answers with one ANY($1) query per batch.
func dbAnswerFetcher(db *sql.DB) answerFetcher {
	return func(ctx context.Context, userIDs []int) (map[int][]models.Answer, error) {
		return queryAnswers(ctx, db, userIDs)
	}
}

// newAnswerLoader batches answer lookups for many users into queries of at most
// answerBatchSize ids. A loader caches results, so it lives for a single store call.
func newAnswerLoader(fetch answerFetcher) *dataloader.Loader[int, []models.Answer] {
	return dataloader.NewBatchedLoader(
		answerBatchFn(fetch),
		dataloader.WithBatchCapacity[int, []models.Answer](answerBatchSize),
		dataloader.WithWait[int, []models.Answer](2*time.Millisecond),
	)
}

func answerBatchFn(fetch answerFetcher) dataloader.BatchFunc[int, []models.Answer] {
	return func(ctx context.Context, keys []int) []*dataloader.Result[[]models.Answer] {
		results := make([]*dataloader.Result[[]models.Answer], len(keys))

		byUser, err := fetch(ctx, keys)
		for i, key := range keys {
			if err != nil {
				results[i] = &dataloader.Result[[]models.Answer]{Error: err}
				continue
			}
			results[i] = &dataloader.Result[[]models.Answer]{Data: byUser[key]}
		}
		return results
	}
}

// loadAnswers fills Answers on every user in place.
func loadAnswers(ctx context.Context, fetch answerFetcher, users []models.User) error {
	ids := make([]int, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}

	answers, errs := newAnswerLoader(fetch).LoadMany(ctx, ids)()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("loading answers: %w", err)
	}
	for i := range users {
		users[i].Answers = answers[i]
	}
	return nil
}
