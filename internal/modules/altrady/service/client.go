package service

import (
	"bytes"
	"context"
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

type Options struct {
	WebhookURLs []string
	Retries     int
	Backoff     time.Duration
	Timeout     time.Duration
}

// Client posts compiled orders to one or more Altrady signal webhooks.
type Client struct {
	http    *http.Client
	urls    []string
	retries int
	backoff time.Duration
	log     *zap.Logger
}

func NewClient(opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		urls:    opts.WebhookURLs,
		retries: opts.Retries,
		backoff: opts.Backoff,
		log:     log.Named("altrady"),
	}
}

// Deliver sends o to every configured endpoint in order. One endpoint
// failing never stops the others; each gets its own result.
func (c *Client) Deliver(ctx context.Context, o *models.OrderInstruction) []models.DeliveryResult {
	results := make([]models.DeliveryResult, 0, len(c.urls))

	body, err := sonic.Marshal(o)
	if err != nil {
		for _, u := range c.urls {
			results = append(results, models.DeliveryResult{Endpoint: Label(u), Err: errors.Wrap(err, "encode order")})
		}
		return results
	}

	for _, u := range c.urls {
		res := c.deliverOne(ctx, u, body)
		c.log.Debug("delivery finished", zap.String("endpoint", res.Endpoint),
			zap.Int("status", res.Status), zap.Int("attempts", res.Attempts), zap.Error(res.Err))
		results = append(results, res)
	}
	return results
}

func (c *Client) deliverOne(ctx context.Context, endpoint string, body []byte) models.DeliveryResult {
	res := models.DeliveryResult{Endpoint: Label(endpoint)}

	for attempt := 1; attempt <= c.retries; attempt++ {
		res.Attempts = attempt
		status, hdr, respBody, err := c.post(ctx, endpoint, body)
		res.Status = status

		var wait time.Duration
		switch {
		case err != nil:
			res.Err = errors.Wrap(err, "post")
			wait = c.backoff
		case status/100 == 2:
			res.Err = nil
			return res
		case status == http.StatusTooManyRequests:
			res.Err = errors.Errorf("http 429: %s", snippet(respBody))
			wait = retryAfter(hdr, c.backoff)
		case status >= 500:
			res.Err = errors.Errorf("http %d: %s", status, snippet(respBody))
			wait = c.backoff
		default:
			// остальные 4xx не лечатся повтором
			res.Err = errors.Errorf("http %d: %s", status, snippet(respBody))
			return res
		}

		if attempt == c.retries {
			break
		}
		c.log.Debug("retrying delivery", zap.String("endpoint", res.Endpoint),
			zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(res.Err))
		if !helper.SleepCtx(ctx, wait) {
			res.Err = errors.Wrap(ctx.Err(), "delivery interrupted")
			return res
		}
	}
	return res
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, resp.Header, data, nil
}

func retryAfter(h http.Header, def time.Duration) time.Duration {
	if v, err := strconv.ParseFloat(strings.TrimSpace(h.Get("Retry-After")), 64); err == nil && v >= 0 {
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// Label is a loggable form of a webhook URL: the host plus a masked tail,
// since the path usually carries the signal key.
func Label(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return helper.MaskSecret(raw)
	}
	p := strings.Trim(u.Path, "/")
	if p == "" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/" + helper.MaskSecret(p)
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
