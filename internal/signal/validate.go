package signal

import (
	"fmt"

	"github.com/pkg/errors"

	"signal_relay/internal/models"
)

// ErrImplausible means a take-profit sits on the wrong side of entry. The
// whole signal is discarded.
var ErrImplausible = errors.New("implausible signal")

// Drop records an optional field removed by Validate.
type Drop struct {
	Field  string // "DCA2", "SL"
	Value  float64
	Reason string
}

func (d Drop) String() string {
	return fmt.Sprintf("%s=%g dropped: %s", d.Field, d.Value, d.Reason)
}

type ValidationOptions struct {
	// AllowInvertedStop keeps a stop-loss that sits on the take-profit side of entry.
	AllowInvertedStop bool
}

// Validate enforces the directional invariants on sig in place.
//
// For a long every take-profit must be above entry and every averaging price
// below it; for a short the inequalities invert. The stop-loss belongs on the
// side opposite the take-profits. A bad take-profit voids the signal with
// ErrImplausible; a bad averaging price or stop-loss is zeroed and reported
// as a Drop.
func Validate(sig *models.TradeSignal, opts ValidationOptions) ([]Drop, error) {
	if sig == nil {
		return nil, errors.Wrap(ErrImplausible, "nil signal")
	}
	sign := sig.Side.Sign()
	if sign == 0 {
		return nil, errors.Wrapf(ErrImplausible, "unknown side %q", sig.Side)
	}
	if sig.Entry <= 0 {
		return nil, errors.Wrapf(ErrImplausible, "entry %g", sig.Entry)
	}

	// favorable reports whether p lies strictly in the profit direction from entry
	favorable := func(p float64) bool { return sign*(p-sig.Entry) > 0 }

	for i, tp := range sig.TakeProfits {
		if tp > 0 && !favorable(tp) {
			return nil, errors.Wrapf(ErrImplausible, "%s TP%d %g vs entry %g", sig.Side, i+1, tp, sig.Entry)
		}
	}

	var drops []Drop
	for i, p := range sig.Averaging {
		if p > 0 && (favorable(p) || p == sig.Entry) {
			drops = append(drops, Drop{
				Field:  fmt.Sprintf("DCA%d", i+1),
				Value:  p,
				Reason: fmt.Sprintf("must be %s entry %g for %s", adverseWord(sign), sig.Entry, sig.Side),
			})
			sig.Averaging[i] = 0
		}
	}

	if sig.StopLoss > 0 && (favorable(sig.StopLoss) || sig.StopLoss == sig.Entry) && !opts.AllowInvertedStop {
		drops = append(drops, Drop{
			Field:  "SL",
			Value:  sig.StopLoss,
			Reason: fmt.Sprintf("must be %s entry %g for %s", adverseWord(sign), sig.Entry, sig.Side),
		})
		sig.StopLoss = 0
	}
	return drops, nil
}

func adverseWord(sign float64) string {
	if sign > 0 {
		return "below"
	}
	return "above"
}
