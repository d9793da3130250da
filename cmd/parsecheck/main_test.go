package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_relay/internal/models"
	"signal_relay/internal/modules/config"
)

const longSignal = `LONG SIGNAL - SOL/USDT
Entry: 100
TP1: 102
TP2: 104
TP3: 106
Stop Loss: 97`

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("ALTRADY_API_KEY", "key-1234")
	t.Setenv("ALTRADY_API_SECRET", "secret-5678")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestCheck_PlainText(t *testing.T) {
	rep, err := check(loadConfig(t), []byte(longSignal), false)
	require.NoError(t, err)

	assert.Empty(t, rep.Error)
	require.NotNil(t, rep.Signal)
	assert.Equal(t, "SOL", rep.Signal.Base)
	assert.Equal(t, models.SideLong, rep.Signal.Side)
	assert.Len(t, rep.Hash, 32)

	require.NotNil(t, rep.Order)
	assert.Equal(t, "BYBI_USDT_SOL", rep.Order.Symbol)
	assert.Empty(t, rep.Order.APIKey)
	assert.Empty(t, rep.Order.APISecret)
	require.Len(t, rep.Order.TakeProfits, 3)
	assert.InDelta(t, 2.0, rep.Order.TakeProfits[0].PricePercentage, 1e-9)
	assert.InDelta(t, 3.0, rep.Order.StopLoss.StopPercentage, 1e-9)
}

func TestCheck_MessageJSON(t *testing.T) {
	raw := []byte(`{"id":"1","content":"","embeds":[{"description":"LONG SIGNAL - SOL/USDT\nEntry: 100\nTP1: 102\nTP2: 104\nTP3: 106\nStop Loss: 97"}]}`)
	rep, err := check(loadConfig(t), raw, true)
	require.NoError(t, err)
	assert.Empty(t, rep.Error)
	require.NotNil(t, rep.Order)
}

func TestCheck_Rejections(t *testing.T) {
	cfg := loadConfig(t)

	rep, err := check(cfg, []byte("gm everyone"), false)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Error)
	assert.Nil(t, rep.Signal)

	// TP on the wrong side of entry voids the signal
	bad := `LONG SIGNAL - SOL/USDT
Entry: 100
TP1: 98
TP2: 104
TP3: 106`
	rep, err = check(cfg, []byte(bad), false)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Error)
	assert.NotNil(t, rep.Signal)
	assert.Nil(t, rep.Order)

	_, err = check(cfg, []byte("{broken"), true)
	assert.Error(t, err)
}
