package signal

import (
	"regexp"
	"sort"
	"strings"

	"signal_relay/internal/models"
)

// Header is the direction and pair block of a trade call.
type Header struct {
	Side  models.Side
	Base  string
	Quote string // empty when the vendor omitted it
}

// HeaderStrategy recognizes one vendor convention for announcing a trade.
// Strategies are tried in priority order and the first match wins; fields
// of two conventions are never merged.
type HeaderStrategy interface {
	Name() string
	Match(text string) (Header, bool)
}

// KnownQuotes are quote assets recognized when a pair is written without a
// separator ("PARTIUSDT").
var KnownQuotes = []string{"USDT", "USDC", "FDUSD", "BUSD", "TUSD", "USD", "BTC", "ETH", "EUR"}

// words that look like tickers in front of "LONG SIGNAL" but are not
var headerStopwords = map[string]struct{}{
	"NEW": {}, "TRADE": {}, "FREE": {}, "VIP": {}, "PREMIUM": {},
	"SIGNAL": {}, "SPOT": {}, "FUTURES": {}, "THE": {},
	"ZONE": {}, "AT": {}, "NOW": {}, "PRICE": {},
}

type regexHeader struct {
	name      string
	re        *regexp.Regexp
	sideGroup int
	pairGroup int
	// quoteGroup is 0 when the quote is embedded in the pair token
	quoteGroup int
	quotes     []string
	// requireQuote rejects a pair token that has neither "/" nor a known
	// quote suffix ("SELL ZONE: 3050" is not a pair)
	requireQuote bool
}

func (h *regexHeader) Name() string { return h.name }

func (h *regexHeader) Match(text string) (Header, bool) {
	m := h.re.FindStringSubmatch(text)
	if m == nil {
		return Header{}, false
	}
	side := models.SideFromWord(strings.ToUpper(m[h.sideGroup]))
	if !side.Valid() {
		return Header{}, false
	}

	var base, quote string
	if h.quoteGroup > 0 {
		base, quote = strings.ToUpper(m[h.pairGroup]), strings.ToUpper(m[h.quoteGroup])
	} else {
		base, quote = SplitPair(m[h.pairGroup], h.quotes)
		if h.requireQuote && quote == "" {
			return Header{}, false
		}
	}
	if base == "" {
		return Header{}, false
	}
	if _, stop := headerStopwords[base]; stop {
		return Header{}, false
	}
	return Header{Side: side, Base: base, Quote: quote}, true
}

// SplitPair splits "BASE/QUOTE" or "BASEQUOTE" using the given quote list.
// An unknown suffix yields the whole token as base and an empty quote.
func SplitPair(token string, quotes []string) (string, string) {
	token = strings.ToUpper(strings.TrimSpace(token))
	token = strings.TrimPrefix(token, "#")
	if b, q, ok := strings.Cut(token, "/"); ok {
		return strings.TrimSpace(b), strings.TrimSpace(q)
	}
	for _, q := range quotes {
		if len(token) > len(q) && strings.HasSuffix(token, q) {
			return token[:len(token)-len(q)], q
		}
	}
	return token, ""
}

// quoteOrder puts the configured quote first and the rest longest-first,
// so "USDT" is tried before "USD".
func quoteOrder(preferred string) []string {
	rest := make([]string, 0, len(KnownQuotes))
	for _, q := range KnownQuotes {
		if q != preferred {
			rest = append(rest, q)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return len(rest[i]) > len(rest[j]) })
	if preferred == "" {
		return rest
	}
	return append([]string{preferred}, rest...)
}

// DefaultHeaderStrategies returns the supported conventions in priority order:
//
//	"SHORT SIGNAL - BEAT/USDT"
//	"BUY PARTIUSDT"
//	"Coin: #SOL/USDT ... Direction: LONG"
//	"BTC LONG Signal"
func DefaultHeaderStrategies(quote string) []HeaderStrategy {
	quotes := quoteOrder(strings.ToUpper(quote))
	return []HeaderStrategy{
		&regexHeader{
			name:       "side_signal_pair",
			re:         regexp.MustCompile(`(?i)\b(LONG|SHORT)\s+SIGNAL\s*[-–—:|]\s*#?([A-Z0-9]+)\s*/\s*([A-Z0-9]+)`),
			sideGroup:  1,
			pairGroup:  2,
			quoteGroup: 3,
		},
		&regexHeader{
			name:         "buy_sell_pair",
			re:           regexp.MustCompile(`(?m)^\s*(?i:(BUY|SELL))\s+#?([A-Z0-9]{2,}(?:\s*/\s*[A-Z0-9]{2,})?)\b`),
			sideGroup:    1,
			pairGroup:    2,
			quotes:       quotes,
			requireQuote: true,
		},
		&regexHeader{
			name:      "coin_direction",
			re:        regexp.MustCompile(`(?is)\bCoin\s*[:：]\s*#?([A-Z0-9]+(?:\s*/\s*[A-Z0-9]+)?).*?\bDirection\s*[:：]\s*(LONG|SHORT|BUY|SELL)\b`),
			sideGroup: 2,
			pairGroup: 1,
			quotes:    quotes,
		},
		&regexHeader{
			name:      "legacy_line",
			re:        regexp.MustCompile(`(?m)^\s*#?([A-Z0-9]{2,}(?:/[A-Z0-9]{2,})?)\s+(?i:(LONG|SHORT))\s+(?i:SIGNAL)\b`),
			sideGroup: 2,
			pairGroup: 1,
			quotes:    quotes,
		},
	}
}
