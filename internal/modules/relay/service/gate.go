package service

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"signal_relay/internal/models"
)

// SignalHash fingerprints the core fields of a signal: base, side, entry,
// stop-loss and the take-profit list. Provider and averaging are not part
// of it, so a repost of the same call by another channel member still
// counts as a duplicate.
func SignalHash(sig *models.TradeSignal) string {
	var b strings.Builder
	b.WriteString(sig.Base)
	b.WriteByte('|')
	b.WriteString(string(sig.Side))
	b.WriteByte('|')
	b.WriteString(formatPrice(sig.Entry))
	b.WriteByte('|')
	if sig.HasStopLoss() {
		b.WriteString(formatPrice(sig.StopLoss))
	} else {
		b.WriteString("none")
	}
	for _, tp := range sig.TakeProfits {
		if tp > 0 {
			b.WriteByte('|')
			b.WriteString(formatPrice(tp))
		}
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func formatPrice(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

type Verdict int

const (
	Pass Verdict = iota
	Duplicate
	CoolingDown
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Duplicate:
		return "duplicate"
	case CoolingDown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Gate suppresses repeated signals and enforces the minimum interval between
// two dispatched orders. It keeps no state of its own; everything lives in
// the ProcessingState it is handed.
type Gate struct {
	cooldown time.Duration
	limit    int
	now      func() time.Time
}

func NewGate(cooldown time.Duration, limit int, now func() time.Time) *Gate {
	if limit <= 0 {
		limit = 500
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{cooldown: cooldown, limit: limit, now: now}
}

// Check classifies hash against st. Duplicates win over cooldown.
func (g *Gate) Check(st *models.ProcessingState, hash string) Verdict {
	for _, h := range st.SeenSignalHashes {
		if h == hash {
			return Duplicate
		}
	}
	if g.cooldown > 0 && !st.LastTradeTimestamp.IsZero() && g.now().Sub(st.LastTradeTimestamp) < g.cooldown {
		return CoolingDown
	}
	return Pass
}

// Commit records a dispatched signal: the hash joins the most recent window
// and the cooldown restarts.
func (g *Gate) Commit(st *models.ProcessingState, hash string) {
	seen := make([]string, 0, len(st.SeenSignalHashes)+1)
	for _, h := range st.SeenSignalHashes {
		if h != hash {
			seen = append(seen, h)
		}
	}
	seen = append(seen, hash)
	if len(seen) > g.limit {
		seen = seen[len(seen)-g.limit:]
	}
	st.SeenSignalHashes = seen
	st.LastTradeTimestamp = g.now().UTC()
}
