// Package events delivers match notifications: a websocket hub for connected users and a
// RabbitMQ fanout exchange for other services.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/matcher"
	"github.com/promnight/prom-match/internal/models"
)

const TypeMatchFound = "match.found"

// MatchEvent is published once per persisted match.
type MatchEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     int       `json:"user_id"`
	MatchID    int       `json:"match_id"`
	Score      int       `json:"score"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewMatchEvent(requester, match models.User, score int) MatchEvent {
	return MatchEvent{
		ID:         uuid.NewString(),
		Type:       TypeMatchFound,
		UserID:     requester.ID,
		MatchID:    match.ID,
		Score:      score,
		OccurredAt: time.Now().UTC(),
	}
}

// Multi forwards a match to several notifiers in order.
type Multi []matcher.Notifier

func (m Multi) MatchFound(ctx context.Context, requester, match models.User, score int) {
	for _, n := range m {
		if n != nil {
			n.MatchFound(ctx, requester, match, score)
		}
	}
}

// LogNotifier only logs matches. It stands in for the broker when AMQP is not configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) MatchFound(_ context.Context, requester, match models.User, score int) {
	n.Logger.Info("match event",
		zap.Int("user_id", requester.ID), zap.Int("match_id", match.ID), zap.Int("score", score))
}
