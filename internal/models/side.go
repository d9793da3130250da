package models

// Side is the trade direction of a parsed signal: "long" or "short".
type Side string

const (
	SideNone  Side = ""
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign returns +1 for long, -1 for short and 0 otherwise.
func (s Side) Sign() float64 {
	switch s {
	case SideLong:
		return 1
	case SideShort:
		return -1
	default:
		return 0
	}
}

func (s Side) Valid() bool { return s == SideLong || s == SideShort }

// SideFromWord maps vendor direction words (LONG/BUY, SHORT/SELL) to a Side.
func SideFromWord(w string) Side {
	switch w {
	case "LONG", "long", "Long", "BUY", "buy", "Buy":
		return SideLong
	case "SHORT", "short", "Short", "SELL", "sell", "Sell":
		return SideShort
	default:
		return SideNone
	}
}
