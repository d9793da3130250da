package helper

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PercentPlaces = 6
	PricePlaces   = 10
)

// Round rounds v half away from zero to the given number of fractional digits.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func RoundPct(v float64) float64   { return Round(v, PercentPlaces) }
func RoundPrice(v float64) float64 { return Round(v, PricePlaces) }

// ParseID parses a numeric message id (a Discord snowflake). Empty is 0.
func ParseID(id string) (uint64, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IDAfter reports whether id is strictly greater than cursor.
// Non-numeric ids are never after anything.
func IDAfter(id, cursor string) bool {
	a, ok := ParseID(id)
	if !ok || strings.TrimSpace(id) == "" {
		return false
	}
	b, ok := ParseID(cursor)
	if !ok {
		return false
	}
	return a > b
}

// MaxID returns the numerically larger of two ids.
func MaxID(a, b string) string {
	if IDAfter(b, a) {
		return b
	}
	return a
}

// MaskSecret keeps the last four characters of a secret.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// SleepCtx waits for d or until ctx is done. It reports false when ctx ended first.
func SleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
