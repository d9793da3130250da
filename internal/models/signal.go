package models

const (
	MaxTakeProfits = 5
	MaxAveraging   = 3
)

// TradeSignal is the canonical trade intent extracted from a chat message.
// Price slots use zero for "absent": every real price is strictly positive.
type TradeSignal struct {
	Provider string
	Base     string
	Quote    string
	Side     Side
	Entry    float64

	TakeProfits [MaxTakeProfits]float64 // TP1..TP5
	Averaging   [MaxAveraging]float64   // DCA1..DCA3
	StopLoss    float64

	// Convention names the header format the signal was recognized by.
	Convention string
}

// TakeProfitCount returns how many TP slots are filled.
func (s *TradeSignal) TakeProfitCount() int {
	n := 0
	for _, tp := range s.TakeProfits {
		if tp > 0 {
			n++
		}
	}
	return n
}

// LastTakeProfit returns the highest-numbered filled TP slot (1-based) and its price.
func (s *TradeSignal) LastTakeProfit() (int, float64, bool) {
	for i := len(s.TakeProfits) - 1; i >= 0; i-- {
		if s.TakeProfits[i] > 0 {
			return i + 1, s.TakeProfits[i], true
		}
	}
	return 0, 0, false
}

func (s *TradeSignal) HasStopLoss() bool { return s.StopLoss > 0 }
