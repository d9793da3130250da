package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_relay/internal/models"
)

func testOrder() *models.OrderInstruction {
	return &models.OrderInstruction{
		APIKey:      "k",
		APISecret:   "s",
		Exchange:    "BYBI",
		Action:      "open",
		Symbol:      "BYBI_USDT_BTC",
		Side:        models.SideLong,
		OrderType:   "limit",
		SignalPrice: 100,
		Leverage:    10,
		TakeProfits: []models.TakeProfitLeg{{PricePercentage: 5, PositionPercentage: 100, Slot: 1}},
		StopLoss:    models.StopLossLeg{OrderType: "STOP_LOSS_MARKET", StopPercentage: 3, ProtectionType: "FOLLOW_TAKE_PROFIT"},
		DCAOrders:   []models.DCAOrder{},
	}
}

type scripted struct {
	statuses []int
	calls    int32
	header   http.Header
}

func (s *scripted) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&s.calls, 1)) - 1
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, _ := io.ReadAll(r.Body)
		var got map[string]any
		assert.NoError(t, sonic.Unmarshal(raw, &got))
		assert.Equal(t, "open", got["action"])
		assert.Equal(t, "BYBI_USDT_BTC", got["symbol"])

		for k, v := range s.header {
			w.Header()[k] = v
		}
		status := s.statuses[len(s.statuses)-1]
		if n < len(s.statuses) {
			status = s.statuses[n]
		}
		w.WriteHeader(status)
	}
}

func newServer(t *testing.T, s *scripted) string {
	srv := httptest.NewServer(s.handler(t))
	t.Cleanup(srv.Close)
	return srv.URL + "/hook/abcdef123456"
}

func newClient(urls ...string) *Client {
	return NewClient(Options{WebhookURLs: urls, Retries: 3, Backoff: time.Millisecond, Timeout: time.Second}, nil)
}

func TestDeliver_Success(t *testing.T) {
	s := &scripted{statuses: []int{http.StatusNoContent}}
	res := newClient(newServer(t, s)).Deliver(context.Background(), testOrder())

	require.Len(t, res, 1)
	assert.True(t, res[0].OK())
	assert.Equal(t, http.StatusNoContent, res[0].Status)
	assert.Equal(t, 1, res[0].Attempts)
	assert.NotContains(t, res[0].Endpoint, "abcdef12")
}

func TestDeliver_RetriesTransient(t *testing.T) {
	s := &scripted{statuses: []int{http.StatusBadGateway, http.StatusTooManyRequests, http.StatusOK}}
	res := newClient(newServer(t, s)).Deliver(context.Background(), testOrder())

	require.Len(t, res, 1)
	assert.True(t, res[0].OK())
	assert.Equal(t, 3, res[0].Attempts)
	assert.EqualValues(t, 3, atomic.LoadInt32(&s.calls))
}

func TestDeliver_GivesUpAfterRetries(t *testing.T) {
	s := &scripted{statuses: []int{http.StatusServiceUnavailable}}
	res := newClient(newServer(t, s)).Deliver(context.Background(), testOrder())

	require.Len(t, res, 1)
	assert.False(t, res[0].OK())
	assert.Equal(t, 3, res[0].Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, res[0].Status)
	assert.Error(t, res[0].Err)
}

func TestDeliver_PermanentNotRetried(t *testing.T) {
	s := &scripted{statuses: []int{http.StatusBadRequest}}
	res := newClient(newServer(t, s)).Deliver(context.Background(), testOrder())

	require.Len(t, res, 1)
	assert.False(t, res[0].OK())
	assert.Equal(t, 1, res[0].Attempts)
	assert.EqualValues(t, 1, atomic.LoadInt32(&s.calls))
}

func TestDeliver_RetryAfterHonored(t *testing.T) {
	s := &scripted{statuses: []int{http.StatusTooManyRequests, http.StatusOK}, header: http.Header{"Retry-After": {"0"}}}
	c := NewClient(Options{WebhookURLs: []string{newServer(t, s)}, Retries: 2, Backoff: time.Hour}, nil)

	start := time.Now()
	res := c.Deliver(context.Background(), testOrder())
	require.Len(t, res, 1)
	assert.True(t, res[0].OK())
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestDeliver_FanOutPartial(t *testing.T) {
	bad := &scripted{statuses: []int{http.StatusForbidden}}
	good := &scripted{statuses: []int{http.StatusOK}}
	res := newClient(newServer(t, bad), newServer(t, good)).Deliver(context.Background(), testOrder())

	require.Len(t, res, 2)
	assert.False(t, res[0].OK())
	assert.True(t, res[1].OK())
	assert.True(t, models.AnyDelivered(res))
}

func TestDeliver_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()

	res := newClient(u).Deliver(context.Background(), testOrder())
	require.Len(t, res, 1)
	assert.False(t, res[0].OK())
	assert.Equal(t, 3, res[0].Attempts)
	assert.Zero(t, res[0].Status)
}

func TestDeliver_ContextCancelledDuringBackoff(t *testing.T) {
	s := &scripted{statuses: []int{http.StatusInternalServerError}}
	c := NewClient(Options{WebhookURLs: []string{newServer(t, s)}, Retries: 3, Backoff: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := c.Deliver(ctx, testOrder())
	require.Len(t, res, 1)
	assert.False(t, res[0].OK())
	assert.Equal(t, 1, res[0].Attempts)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "https://api.altrady.com/****1234", Label("https://api.altrady.com/v2/signal_bot/abcd1234"))
	assert.Equal(t, "https://example.com", Label("https://example.com/"))
	assert.Equal(t, "****", Label("bad"))
}
