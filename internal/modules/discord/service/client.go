package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"signal_relay/internal/helper"
	"signal_relay/internal/models"
)

const (
	userAgent    = "SignalRelay/1.0"
	maxPageLimit = 100
	maxPages     = 50
)

var ErrRateLimited = errors.New("discord: rate limited")

type Options struct {
	Token      string
	ChannelID  string
	APIBase    string
	FetchLimit int
	Timeout    time.Duration
	// MaxRateLimitWaits bounds how many 429 answers one request tolerates.
	MaxRateLimitWaits int
}

// Client reads a single channel over the Discord REST API.
type Client struct {
	http      *http.Client
	base      string
	token     string
	channelID string
	limit     int
	maxWaits  int
	ratePad   time.Duration
	log       *zap.Logger
}

func NewClient(opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	limit := opts.FetchLimit
	if limit <= 0 {
		limit = 50
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	waits := opts.MaxRateLimitWaits
	if waits <= 0 {
		waits = 5
	}
	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = "https://discord.com/api/v10"
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		base:      base,
		token:     opts.Token,
		channelID: opts.ChannelID,
		limit:     limit,
		maxWaits:  waits,
		ratePad:   500 * time.Millisecond,
		log:       log.Named("discord"),
	}
}

// Fetch returns every message newer than afterID, following pages while
// they come back full. Order is whatever Discord returns; callers sort.
func (c *Client) Fetch(ctx context.Context, afterID string) ([]models.Message, error) {
	var all []models.Message
	after := afterID
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(c.limit))
		if after != "" {
			q.Set("after", after)
		}
		msgs, err := c.get(ctx, q)
		if err != nil {
			return all, err
		}
		all = append(all, msgs...)
		if len(msgs) < c.limit {
			return all, nil
		}
		next := after
		for _, m := range msgs {
			next = helper.MaxID(next, m.ID)
		}
		if next == after {
			return all, nil
		}
		after = next
	}
	c.log.Warn("page limit reached, remaining messages left for the next cycle",
		zap.Int("pages", maxPages), zap.String("after", after))
	return all, nil
}

// Latest returns the id of the newest message, "" when the channel is empty.
func (c *Client) Latest(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("limit", "1")
	msgs, err := c.get(ctx, q)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", nil
	}
	return msgs[0].ID, nil
}

func (c *Client) get(ctx context.Context, q url.Values) ([]models.Message, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/messages?%s", c.base, url.PathEscape(c.channelID), q.Encode())

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, errors.Wrap(err, "discord new request")
		}
		req.Header.Set("Authorization", c.token)
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "discord do")
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "discord read body")
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt >= c.maxWaits {
				return nil, errors.Wrapf(ErrRateLimited, "gave up after %d waits", attempt)
			}
			wait := retryAfter(resp.Header, body) + c.ratePad
			c.log.Warn("rate limited", zap.Duration("wait", wait), zap.Int("attempt", attempt+1))
			if !helper.SleepCtx(ctx, wait) {
				return nil, ctx.Err()
			}
			continue
		}
		if resp.StatusCode/100 != 2 {
			return nil, errors.Errorf("discord http %d: %s", resp.StatusCode, snippet(body))
		}

		var msgs []models.Message
		if err := sonic.Unmarshal(body, &msgs); err != nil {
			return nil, errors.Wrap(err, "discord decode")
		}
		return msgs, nil
	}
}

// retryAfter prefers the JSON retry_after (seconds, fractional) and falls
// back to the Retry-After header, then to one second.
func retryAfter(h http.Header, body []byte) time.Duration {
	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := sonic.Unmarshal(body, &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	if v, err := strconv.ParseFloat(h.Get("Retry-After"), 64); err == nil && v > 0 {
		return time.Duration(v * float64(time.Second))
	}
	return time.Second
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
