package order

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"signal_relay/internal/helper"
	"signal_relay/internal/models"
)

type StopPolicy string

const (
	StopPolicySignal StopPolicy = "signal"
	StopPolicyDCA    StopPolicy = "dca"
	StopPolicyFixed  StopPolicy = "fixed"
)

func (p StopPolicy) Valid() bool {
	return p == StopPolicySignal || p == StopPolicyDCA || p == StopPolicyFixed
}

var (
	ErrNoTakeProfit = errors.New("no take-profit leg")
	ErrNoStop       = errors.New("no stop-loss could be derived")
)

type StopSettings struct {
	Policy StopPolicy
	// PreferSignal uses the signal's own stop whenever it has one,
	// whatever the policy.
	PreferSignal   bool
	FixedPct       float64
	DCABufferPct   float64
	OrderType      string
	ProtectionType string
}

type EntrySettings struct {
	BufferPct          float64
	ExpirationMin      int
	ExpirationPricePct float64
	WaitMin            int
}

type RunnerSettings struct {
	Enabled     bool
	SizePct     float64
	Multiplier  float64
	TrailingPct float64
}

// Settings is everything the compiler needs besides the signal.
type Settings struct {
	Exchange  string
	Quote     string
	APIKey    string
	APISecret string
	Leverage  int

	TakeProfitSplits      [models.MaxTakeProfits]float64
	DCAQuantities         [models.MaxAveraging]float64
	DCAFallbacks          [models.MaxAveraging]float64
	SkipDCAWithSignalStop bool

	Stop   StopSettings
	Entry  EntrySettings
	Runner RunnerSettings

	TestMode bool
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.Exchange) == "" {
		return errors.New("exchange is empty")
	}
	if strings.TrimSpace(s.Quote) == "" {
		return errors.New("quote is empty")
	}
	for i, v := range s.TakeProfitSplits {
		if v < 0 {
			return errors.Errorf("TP%d split %g is negative", i+1, v)
		}
	}
	for i, v := range s.DCAQuantities {
		if v < 0 {
			return errors.Errorf("DCA%d quantity %g is negative", i+1, v)
		}
	}
	for i, v := range s.DCAFallbacks {
		if v < 0 {
			return errors.Errorf("DCA%d fallback %g is negative", i+1, v)
		}
	}
	if !s.Stop.Policy.Valid() {
		return errors.Errorf("unknown stop policy %q", s.Stop.Policy)
	}
	if s.Stop.FixedPct < 0 || s.Stop.DCABufferPct < 0 {
		return errors.New("stop percentages must not be negative")
	}
	if s.Entry.BufferPct < 0 || s.Entry.ExpirationPricePct < 0 || s.Entry.ExpirationMin < 0 || s.Entry.WaitMin < 0 {
		return errors.New("entry settings must not be negative")
	}
	if s.Runner.Enabled {
		if s.Runner.SizePct <= 0 {
			return errors.New("runner size must be positive")
		}
		if s.Runner.Multiplier <= 1 {
			return errors.Errorf("runner multiplier %g must be greater than 1", s.Runner.Multiplier)
		}
		if s.Runner.TrailingPct <= 0 {
			return errors.New("runner trailing distance must be positive")
		}
	}
	return nil
}

// Compiler turns validated signals into OrderInstructions.
type Compiler struct {
	s Settings
}

func NewCompiler(s Settings) (*Compiler, error) {
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "order settings")
	}
	s.Exchange = strings.ToUpper(strings.TrimSpace(s.Exchange))
	s.Quote = strings.ToUpper(strings.TrimSpace(s.Quote))
	return &Compiler{s: s}, nil
}

func (c *Compiler) Settings() Settings { return c.s }

// Compile builds the open order for sig. sig must have passed signal.Validate.
func (c *Compiler) Compile(sig *models.TradeSignal) (*models.OrderInstruction, error) {
	sign := sig.Side.Sign()
	if sign == 0 || sig.Entry <= 0 {
		return nil, errors.Errorf("cannot compile %s signal with entry %g", sig.Side, sig.Entry)
	}
	quote := sig.Quote
	if quote == "" {
		quote = c.s.Quote
	}

	legs, err := c.takeProfits(sig)
	if err != nil {
		return nil, err
	}
	dcaPrices := c.dcaPrices(sig, sign)
	stop, err := c.stopLoss(sig, sign, dcaPrices)
	if err != nil {
		return nil, err
	}

	out := &models.OrderInstruction{
		APIKey:      c.s.APIKey,
		APISecret:   c.s.APISecret,
		Exchange:    c.s.Exchange,
		Action:      "open",
		Symbol:      fmt.Sprintf("%s_%s_%s", c.s.Exchange, quote, sig.Base),
		Side:        sig.Side,
		OrderType:   "limit",
		SignalPrice: sig.Entry,
		Leverage:    c.s.Leverage,
		EntryCondition: models.EntryCondition{
			// pushed away from entry on the unfavorable side
			Price: helper.RoundPrice(PriceAtPercent(sig.Entry, -sign*c.s.Entry.BufferPct)),
		},
		TakeProfits:     legs,
		StopLoss:        stop,
		DCAOrders:       c.dcaOrders(dcaPrices, stop.Source),
		EntryExpiration: models.EntryExpiration{Time: c.s.Entry.ExpirationMin},
		Test:            c.s.TestMode,
	}
	if c.s.Entry.WaitMin > 0 {
		out.EntryCondition.Time = c.s.Entry.WaitMin
		out.EntryCondition.Operator = "OR"
	}
	if c.s.Entry.ExpirationPricePct > 0 {
		out.EntryExpiration.Price = helper.RoundPrice(PriceAtPercent(sig.Entry, sign*c.s.Entry.ExpirationPricePct))
	}
	return out, nil
}

// takeProfits maps TP slots to ladder legs by slot index, so an absent slot
// never shifts the configured splits of the others.
func (c *Compiler) takeProfits(sig *models.TradeSignal) ([]models.TakeProfitLeg, error) {
	legs := make([]models.TakeProfitLeg, 0, models.MaxTakeProfits+1)
	for i, tp := range sig.TakeProfits {
		split := c.s.TakeProfitSplits[i]
		if tp <= 0 || split <= 0 {
			continue
		}
		legs = append(legs, models.TakeProfitLeg{
			PricePercentage:    helper.RoundPct(PercentFromEntry(sig.Entry, tp)),
			PositionPercentage: split,
			Slot:               i + 1,
		})
	}

	if r := c.s.Runner; r.Enabled {
		if _, last, ok := sig.LastTakeProfit(); ok {
			legs = append(legs, models.TakeProfitLeg{
				PricePercentage:    helper.RoundPct(PercentFromEntry(sig.Entry, last) * r.Multiplier),
				PositionPercentage: r.SizePct,
				TrailingDistance:   r.TrailingPct,
			})
		}
	}

	if len(legs) == 0 {
		return nil, errors.Wrapf(ErrNoTakeProfit, "%d TP(s) present, none with a positive split", sig.TakeProfitCount())
	}
	return legs, nil
}

type dcaPrice struct {
	price      float64
	backfilled bool
}

// dcaPrices returns the stated averaging prices, filling absent slots from
// the configured fallback distance.
func (c *Compiler) dcaPrices(sig *models.TradeSignal, sign float64) [models.MaxAveraging]dcaPrice {
	var out [models.MaxAveraging]dcaPrice
	for i, p := range sig.Averaging {
		switch {
		case p > 0:
			out[i] = dcaPrice{price: p}
		case c.s.DCAFallbacks[i] > 0:
			out[i] = dcaPrice{price: PriceAtPercent(sig.Entry, -sign*c.s.DCAFallbacks[i]), backfilled: true}
		}
	}
	return out
}

func (c *Compiler) dcaOrders(prices [models.MaxAveraging]dcaPrice, stopSource models.StopSource) []models.DCAOrder {
	orders := make([]models.DCAOrder, 0, models.MaxAveraging)
	if c.s.SkipDCAWithSignalStop && stopSource == models.StopFromSignal {
		return orders
	}
	for i, p := range prices {
		qty := c.s.DCAQuantities[i]
		if p.price <= 0 || qty <= 0 {
			continue
		}
		orders = append(orders, models.DCAOrder{
			Price:              helper.RoundPrice(p.price),
			QuantityPercentage: qty,
			Slot:               i + 1,
			Backfilled:         p.backfilled,
		})
	}
	return orders
}

func (c *Compiler) stopLoss(sig *models.TradeSignal, sign float64, dca [models.MaxAveraging]dcaPrice) (models.StopLossLeg, error) {
	st := c.s.Stop
	var (
		offset float64
		source models.StopSource
	)

	switch {
	case sig.HasStopLoss() && (st.Policy == StopPolicySignal || st.PreferSignal):
		offset, source = PercentFromEntry(sig.Entry, sig.StopLoss), models.StopFromSignal
	case st.Policy == StopPolicyDCA && dca[0].price > 0:
		offset, source = PercentFromEntry(sig.Entry, dca[0].price)-sign*st.DCABufferPct, models.StopFromDCA
	default:
		offset, source = -sign*st.FixedPct, models.StopFromFixed
	}

	offset = helper.RoundPct(offset)
	if offset == 0 {
		return models.StopLossLeg{}, errors.Wrapf(ErrNoStop, "policy %s, source %s", st.Policy, source)
	}
	return models.StopLossLeg{
		OrderType:      st.OrderType,
		StopPercentage: math.Abs(offset),
		ProtectionType: st.ProtectionType,
		Offset:         offset,
		Source:         source,
	}, nil
}
