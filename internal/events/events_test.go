package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/models"
)

type fakeChannel struct {
	exchange  string
	published []amqp.Publishing
	err       error
	ctxErr    error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisherMatchFound(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "prom.matches", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	p.MatchFound(ctx, models.User{ID: 1}, models.User{ID: 2}, 7)
	cancel() // the request ending must not abort the publish

	require.NoError(t, p.Close(), "Close waits for background publishes")
	assert.True(t, ch.closed)
	assert.NoError(t, ch.ctxErr)

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "prom.matches", ch.exchange)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, TypeMatchFound, msg.Type)

	var evt MatchEvent
	require.NoError(t, json.Unmarshal(msg.Body, &evt))
	assert.Equal(t, msg.MessageId, evt.ID)
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, 1, evt.UserID)
	assert.Equal(t, 2, evt.MatchID)
	assert.Equal(t, 7, evt.Score)
}

func TestPublisherError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisher(ch, "prom.matches", zap.NewNop())

	err := p.Publish(context.Background(), NewMatchEvent(models.User{ID: 1}, models.User{ID: 2}, 0))
	assert.ErrorContains(t, err, "channel closed")

	// Notifier path swallows the error.
	p.MatchFound(context.Background(), models.User{ID: 1}, models.User{ID: 2}, 0)
	assert.NoError(t, p.Close())
}

type countingNotifier struct{ calls int }

func (c *countingNotifier) MatchFound(context.Context, models.User, models.User, int) { c.calls++ }

func TestMulti(t *testing.T) {
	a, b := &countingNotifier{}, &countingNotifier{}
	Multi{a, nil, b}.MatchFound(context.Background(), models.User{ID: 1}, models.User{ID: 2}, 1)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func dialHub(t *testing.T, srv *httptest.Server, userID int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + strconv.Itoa(userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt map[string]any
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func TestHubDeliversToBothSides(t *testing.T) {
	hub := NewHub(zap.NewNop(), func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.URL.Query().Get("user"))
		hub.Serve(w, r, id)
	}))
	defer srv.Close()

	alice := dialHub(t, srv, 1)
	bob := dialHub(t, srv, 2)
	assert.Equal(t, "info", readEvent(t, alice)["type"])
	assert.Equal(t, "info", readEvent(t, bob)["type"])
	require.Eventually(t, func() bool {
		return hub.Connected(1) == 1 && hub.Connected(2) == 1
	}, time.Second, 10*time.Millisecond)

	hub.MatchFound(context.Background(),
		models.User{ID: 1, Name: "Alice"}, models.User{ID: 2, Name: "Bob"}, 5)

	evt := readEvent(t, alice)
	assert.Equal(t, "match.found", evt["type"])
	data := evt["data"].(map[string]any)
	assert.EqualValues(t, 2, data["match_id"])
	assert.Equal(t, "Bob", data["match_name"])

	evt = readEvent(t, bob)
	data = evt["data"].(map[string]any)
	assert.EqualValues(t, 1, data["match_id"])
	assert.Equal(t, "Alice", data["match_name"])
	assert.EqualValues(t, 5, data["score"])

	alice.Close()
	assert.Eventually(t, func() bool { return hub.Connected(1) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubSendToAbsentUser(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	hub.SendToUser(99, ServerEvent{Type: "info"})
	assert.Zero(t, hub.Connected(99))
}
