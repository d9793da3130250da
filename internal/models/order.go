package models

// StopSource tells which policy produced the stop-loss of an order.
type StopSource string

const (
	StopFromSignal StopSource = "signal"
	StopFromDCA    StopSource = "dca"
	StopFromFixed  StopSource = "fixed"
)

// OrderInstruction is the exchange-agnostic open order sent to the webhook.
// Field names follow the Altrady signal bot payload.
type OrderInstruction struct {
	APIKey      string  `json:"api_key,omitempty"`
	APISecret   string  `json:"api_secret,omitempty"`
	Exchange    string  `json:"exchange"`
	Action      string  `json:"action"`
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	OrderType   string  `json:"order_type"`
	SignalPrice float64 `json:"signal_price"`
	Leverage    int     `json:"leverage,omitempty"`

	EntryCondition  EntryCondition  `json:"entry_condition"`
	TakeProfits     []TakeProfitLeg `json:"take_profit"`
	StopLoss        StopLossLeg     `json:"stop_loss"`
	DCAOrders       []DCAOrder      `json:"dca_orders"`
	EntryExpiration EntryExpiration `json:"entry_expiration"`

	Test bool `json:"test,omitempty"`
}

// EntryCondition triggers the pending entry at Price, or after Time minutes when Operator is "OR".
type EntryCondition struct {
	Price    float64 `json:"price"`
	Time     int     `json:"time,omitempty"`
	Operator string  `json:"operator,omitempty"`
}

type TakeProfitLeg struct {
	PricePercentage    float64 `json:"price_percentage"`
	PositionPercentage float64 `json:"position_percentage"`
	TrailingDistance   float64 `json:"trailing_distance,omitempty"`

	// Slot is the 1-based TP slot, 0 for the runner leg.
	Slot int `json:"-"`
}

func (l TakeProfitLeg) IsRunner() bool { return l.Slot == 0 }

type StopLossLeg struct {
	OrderType      string  `json:"order_type"`
	StopPercentage float64 `json:"stop_percentage"`
	ProtectionType string  `json:"protection_type"`

	// Offset is the signed percentage offset from entry.
	Offset float64    `json:"-"`
	Source StopSource `json:"-"`
}

type DCAOrder struct {
	Price              float64 `json:"price"`
	QuantityPercentage float64 `json:"quantity_percentage"`

	Slot       int  `json:"-"`
	Backfilled bool `json:"-"`
}

type EntryExpiration struct {
	Time  int     `json:"time"`
	Price float64 `json:"price,omitempty"`
}
