package order

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_relay/internal/models"
)

func baseSettings() Settings {
	return Settings{
		Exchange:         "BYBI",
		Quote:            "USDT",
		APIKey:           "key",
		APISecret:        "secret",
		Leverage:         10,
		TakeProfitSplits: [5]float64{20, 20, 20, 20, 20},
		DCAQuantities:    [3]float64{150},
		Stop: StopSettings{
			Policy:         StopPolicySignal,
			PreferSignal:   true,
			FixedPct:       3,
			DCABufferPct:   1,
			OrderType:      "STOP_LOSS_MARKET",
			ProtectionType: "FOLLOW_TAKE_PROFIT",
		},
		Entry: EntrySettings{ExpirationMin: 180},
	}
}

func mustCompiler(t *testing.T, s Settings) *Compiler {
	t.Helper()
	c, err := NewCompiler(s)
	require.NoError(t, err)
	return c
}

func beatShort() *models.TradeSignal {
	return &models.TradeSignal{
		Base: "BEAT", Quote: "USDT", Side: models.SideShort, Entry: 0.87071,
		TakeProfits: [5]float64{0.86374, 0.85678},
		StopLoss:    0.87671,
	}
}

func TestPercentFromEntry(t *testing.T) {
	assert.InDelta(t, 10.0, PercentFromEntry(100, 110), 1e-12)
	assert.InDelta(t, -10.0, PercentFromEntry(100, 90), 1e-12)

	// round trip within 1e-6 relative
	for _, tc := range [][2]float64{{0.87071, 0.86374}, {60000, 61500}, {8.431, 9.1}, {0.00001234, 0.00001111}} {
		e, tgt := tc[0], tc[1]
		back := PriceAtPercent(e, PercentFromEntry(e, tgt))
		assert.InEpsilon(t, tgt, back, 1e-6)
	}
}

func TestCompile_ShortWithSignalStop(t *testing.T) {
	out, err := mustCompiler(t, baseSettings()).Compile(beatShort())
	require.NoError(t, err)

	assert.Equal(t, "BYBI_USDT_BEAT", out.Symbol)
	assert.Equal(t, models.SideShort, out.Side)
	assert.Equal(t, "open", out.Action)
	assert.Equal(t, "limit", out.OrderType)
	assert.Equal(t, 0.87071, out.SignalPrice)
	assert.Equal(t, 0.87071, out.EntryCondition.Price)

	require.Len(t, out.TakeProfits, 2)
	assert.Equal(t, -0.800496, out.TakeProfits[0].PricePercentage)
	assert.Equal(t, -1.599844, out.TakeProfits[1].PricePercentage)
	assert.Equal(t, 20.0, out.TakeProfits[0].PositionPercentage)

	assert.Equal(t, 0.689093, out.StopLoss.StopPercentage)
	assert.Equal(t, 0.689093, out.StopLoss.Offset)
	assert.Equal(t, models.StopFromSignal, out.StopLoss.Source)
	assert.Equal(t, "STOP_LOSS_MARKET", out.StopLoss.OrderType)

	assert.NotNil(t, out.DCAOrders)
	assert.Empty(t, out.DCAOrders)
	assert.Equal(t, 180, out.EntryExpiration.Time)
}

func TestCompile_TakeProfitSigns(t *testing.T) {
	c := mustCompiler(t, baseSettings())

	long := &models.TradeSignal{Base: "X", Side: models.SideLong, Entry: 100, TakeProfits: [5]float64{101, 102, 105, 110, 120}, StopLoss: 95}
	out, err := c.Compile(long)
	require.NoError(t, err)
	for _, leg := range out.TakeProfits {
		assert.Greater(t, leg.PricePercentage, 0.0)
	}
	assert.Less(t, out.StopLoss.Offset, 0.0)

	short := &models.TradeSignal{Base: "X", Side: models.SideShort, Entry: 100, TakeProfits: [5]float64{99, 98, 95, 90, 80}, StopLoss: 105}
	out, err = c.Compile(short)
	require.NoError(t, err)
	for _, leg := range out.TakeProfits {
		assert.Less(t, leg.PricePercentage, 0.0)
	}
	assert.Greater(t, out.StopLoss.Offset, 0.0)
}

func TestCompile_SlotsDoNotShift(t *testing.T) {
	s := baseSettings()
	s.TakeProfitSplits = [5]float64{10, 20, 30, 0, 40}
	sig := &models.TradeSignal{Base: "X", Side: models.SideLong, Entry: 100, TakeProfits: [5]float64{110, 0, 130, 140, 150}, StopLoss: 90}

	out, err := mustCompiler(t, s).Compile(sig)
	require.NoError(t, err)

	// TP2 absent, TP4 has a zero split
	require.Len(t, out.TakeProfits, 3)
	assert.Equal(t, []int{1, 3, 5}, []int{out.TakeProfits[0].Slot, out.TakeProfits[1].Slot, out.TakeProfits[2].Slot})
	assert.Equal(t, []float64{10, 30, 40}, []float64{
		out.TakeProfits[0].PositionPercentage,
		out.TakeProfits[1].PositionPercentage,
		out.TakeProfits[2].PositionPercentage,
	})
}

func TestCompile_NoUsableTakeProfit(t *testing.T) {
	s := baseSettings()
	s.TakeProfitSplits = [5]float64{0, 0, 0, 0, 50}
	sig := &models.TradeSignal{Base: "X", Side: models.SideLong, Entry: 100, TakeProfits: [5]float64{110}, StopLoss: 90}

	_, err := mustCompiler(t, s).Compile(sig)
	assert.True(t, errors.Is(err, ErrNoTakeProfit))
}

func TestCompile_Runner(t *testing.T) {
	s := baseSettings()
	s.Runner = RunnerSettings{Enabled: true, SizePct: 10, Multiplier: 1.5, TrailingPct: 1.2}
	sig := &models.TradeSignal{Base: "X", Side: models.SideLong, Entry: 100, TakeProfits: [5]float64{110, 120}, StopLoss: 90}

	out, err := mustCompiler(t, s).Compile(sig)
	require.NoError(t, err)
	require.Len(t, out.TakeProfits, 3)

	runner := out.TakeProfits[2]
	assert.True(t, runner.IsRunner())
	assert.Equal(t, 30.0, runner.PricePercentage)
	assert.Equal(t, 10.0, runner.PositionPercentage)
	assert.Equal(t, 1.2, runner.TrailingDistance)
}

func TestCompile_Averaging(t *testing.T) {
	long := func() *models.TradeSignal {
		return &models.TradeSignal{Base: "X", Side: models.SideLong, Entry: 100, TakeProfits: [5]float64{110}}
	}

	t.Run("dropped averaging and no fallback", func(t *testing.T) {
		out, err := mustCompiler(t, baseSettings()).Compile(long())
		require.NoError(t, err)
		assert.Empty(t, out.DCAOrders)
	})

	t.Run("fallback distance backfills", func(t *testing.T) {
		s := baseSettings()
		s.DCAFallbacks = [3]float64{3}
		out, err := mustCompiler(t, s).Compile(long())
		require.NoError(t, err)
		require.Len(t, out.DCAOrders, 1)
		assert.Equal(t, 97.0, out.DCAOrders[0].Price)
		assert.Equal(t, 150.0, out.DCAOrders[0].QuantityPercentage)
		assert.True(t, out.DCAOrders[0].Backfilled)
	})

	t.Run("zero quantity skips slot", func(t *testing.T) {
		sig := long()
		sig.Averaging = [3]float64{95, 90}
		out, err := mustCompiler(t, baseSettings()).Compile(sig)
		require.NoError(t, err)
		require.Len(t, out.DCAOrders, 1)
		assert.Equal(t, 1, out.DCAOrders[0].Slot)
	})

	t.Run("suppressed by trusted signal stop", func(t *testing.T) {
		s := baseSettings()
		s.SkipDCAWithSignalStop = true
		sig := long()
		sig.Averaging[0] = 95
		sig.StopLoss = 90
		out, err := mustCompiler(t, s).Compile(sig)
		require.NoError(t, err)
		assert.Empty(t, out.DCAOrders)

		// without a signal stop the averaging order stays
		sig.StopLoss = 0
		out, err = mustCompiler(t, s).Compile(sig)
		require.NoError(t, err)
		assert.Len(t, out.DCAOrders, 1)
	})
}

func TestCompile_StopPolicies(t *testing.T) {
	sig := func(stop, dca float64) *models.TradeSignal {
		return &models.TradeSignal{
			Base: "X", Side: models.SideLong, Entry: 100,
			TakeProfits: [5]float64{110}, StopLoss: stop, Averaging: [3]float64{dca},
		}
	}
	tests := []struct {
		name       string
		policy     StopPolicy
		prefer     bool
		sig        *models.TradeSignal
		wantOffset float64
		wantSource models.StopSource
	}{
		{"signal stop", StopPolicySignal, false, sig(95, 0), -5, models.StopFromSignal},
		{"signal policy without stop falls back to fixed", StopPolicySignal, false, sig(0, 0), -3, models.StopFromFixed},
		{"dca anchored", StopPolicyDCA, false, sig(95, 97), -4, models.StopFromDCA},
		{"dca preferring signal", StopPolicyDCA, true, sig(95, 97), -5, models.StopFromSignal},
		{"dca without averaging falls back to fixed", StopPolicyDCA, false, sig(0, 0), -3, models.StopFromFixed},
		{"fixed ignores signal", StopPolicyFixed, false, sig(95, 97), -3, models.StopFromFixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSettings()
			s.Stop.Policy = tt.policy
			s.Stop.PreferSignal = tt.prefer
			out, err := mustCompiler(t, s).Compile(tt.sig)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOffset, out.StopLoss.Offset)
			assert.Equal(t, -tt.wantOffset, out.StopLoss.StopPercentage)
			assert.Equal(t, tt.wantSource, out.StopLoss.Source)
		})
	}

	t.Run("no stop at all", func(t *testing.T) {
		s := baseSettings()
		s.Stop.Policy = StopPolicyFixed
		s.Stop.FixedPct = 0
		_, err := mustCompiler(t, s).Compile(sig(0, 0))
		assert.True(t, errors.Is(err, ErrNoStop))
	})
}

func TestCompile_EntryConditions(t *testing.T) {
	s := baseSettings()
	s.Entry = EntrySettings{BufferPct: 0.5, ExpirationMin: 60, ExpirationPricePct: 2, WaitMin: 15}
	c := mustCompiler(t, s)

	out, err := c.Compile(&models.TradeSignal{Base: "X", Side: models.SideLong, Entry: 100, TakeProfits: [5]float64{110}, StopLoss: 90})
	require.NoError(t, err)
	assert.Equal(t, 99.5, out.EntryCondition.Price)
	assert.Equal(t, 15, out.EntryCondition.Time)
	assert.Equal(t, "OR", out.EntryCondition.Operator)
	assert.Equal(t, 60, out.EntryExpiration.Time)
	assert.Equal(t, 102.0, out.EntryExpiration.Price)

	out, err = c.Compile(&models.TradeSignal{Base: "X", Side: models.SideShort, Entry: 100, TakeProfits: [5]float64{90}, StopLoss: 110})
	require.NoError(t, err)
	assert.Equal(t, 100.5, out.EntryCondition.Price)
	assert.Equal(t, 98.0, out.EntryExpiration.Price)
}

func TestCompile_PayloadShape(t *testing.T) {
	s := baseSettings()
	s.TestMode = true
	out, err := mustCompiler(t, s).Compile(beatShort())
	require.NoError(t, err)

	raw, err := sonic.Marshal(out)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &m))
	assert.Equal(t, "BYBI_USDT_BEAT", m["symbol"])
	assert.Equal(t, "short", m["side"])
	assert.Equal(t, true, m["test"])
	assert.Equal(t, []any{}, m["dca_orders"])
	assert.NotContains(t, m["entry_condition"], "operator")

	tp := m["take_profit"].([]any)[0].(map[string]any)
	assert.NotContains(t, tp, "trailing_distance")
	assert.NotContains(t, tp, "Slot")

	sl := m["stop_loss"].(map[string]any)
	assert.Equal(t, 0.689093, sl["stop_percentage"])
	assert.Equal(t, "FOLLOW_TAKE_PROFIT", sl["protection_type"])
}

func TestSettingsValidate(t *testing.T) {
	s := baseSettings()
	require.NoError(t, s.Validate())

	bad := baseSettings()
	bad.TakeProfitSplits[2] = -1
	assert.Error(t, bad.Validate())

	bad = baseSettings()
	bad.Stop.Policy = "atr"
	assert.Error(t, bad.Validate())

	bad = baseSettings()
	bad.Runner = RunnerSettings{Enabled: true, SizePct: 10, Multiplier: 1, TrailingPct: 1}
	assert.Error(t, bad.Validate())

	_, err := NewCompiler(bad)
	assert.Error(t, err)
}
