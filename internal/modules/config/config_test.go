package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_relay/internal/order"
)

func withConfigFile(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	if body != "" {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	t.Setenv(configFilePathENV, path)
}

func TestLoad_Defaults(t *testing.T) {
	withConfigFile(t, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "BYBI", cfg.Altrady.Exchange)
	assert.Equal(t, "USDT", cfg.Trading.Quote)
	assert.Equal(t, 10, cfg.Trading.Leverage)
	assert.Equal(t, []float64{20, 20, 20, 20, 20}, cfg.Trading.TPPcts)
	assert.Equal(t, []float64{150, 0, 0}, cfg.Trading.DCAQtyPcts)
	assert.Equal(t, 3, cfg.Trading.MinTakeProfits)
	assert.Equal(t, "signal", cfg.Trading.Stop.Policy)
	assert.Equal(t, "STOP_LOSS_MARKET", cfg.Trading.Stop.OrderType)
	assert.Equal(t, "FOLLOW_TAKE_PROFIT", cfg.Trading.Stop.ProtectionType)
	assert.Equal(t, 180, cfg.Trading.Entry.ExpirationMin)
	assert.Equal(t, "state.json", cfg.Relay.StateFile)
	assert.Equal(t, 30*time.Second, cfg.Relay.Cooldown)
	assert.Equal(t, 500, cfg.Relay.SeenHashLimit)
	assert.Equal(t, time.Minute, cfg.Relay.PollBase)
	assert.Equal(t, 3*time.Second, cfg.Relay.PollOffset)
	assert.Equal(t, 7*time.Second, cfg.Relay.PollJitter)
	assert.Equal(t, 50, cfg.Discord.FetchLimit)
	assert.Equal(t, 3, cfg.Delivery.Retries)
	assert.Empty(t, cfg.Providers.Allowed)
	assert.Equal(t, ":8080", cfg.Service.HealthAddr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	withConfigFile(t, `
discord:
  channel_id: "123"
altrady:
  exchange: binf
  webhook_urls: ["https://a.example/hook", " ", "https://b.example/hook"]
trading:
  quote: usdt
  leverage: 5
  tp_pcts: [50, 30, 20]
  stop:
    policy: FIXED
    fixed_pct: 2.5
providers:
  allowed: [alice, bob]
  required: true
relay:
  cooldown: 45s
`)
	t.Setenv("SIGNAL_RELAY_TRADING_LEVERAGE", "7")
	t.Setenv("TP2_PCT", "25")
	t.Setenv("COOLDOWN_SECONDS", "12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "123", cfg.Discord.ChannelID)
	assert.Equal(t, "BINF", cfg.Altrady.Exchange)
	assert.Equal(t, []string{"https://a.example/hook", "https://b.example/hook"}, cfg.Altrady.WebhookURLs)
	assert.Equal(t, "USDT", cfg.Trading.Quote)
	assert.Equal(t, 7, cfg.Trading.Leverage)
	assert.Equal(t, []float64{50, 25, 20, 0, 0}, cfg.Trading.TPPcts)
	assert.Equal(t, "fixed", cfg.Trading.Stop.Policy)
	assert.Equal(t, 2.5, cfg.Trading.Stop.FixedPct)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Providers.Allowed)
	assert.True(t, cfg.Providers.Required)
	assert.Equal(t, 12*time.Second, cfg.Relay.Cooldown)
}

func TestLoad_LegacyEnv(t *testing.T) {
	withConfigFile(t, "")
	t.Setenv("DISCORD_TOKEN", "tok-abcdef")
	t.Setenv("CHANNEL_ID", "999")
	t.Setenv("ALTRADY_WEBHOOK_URL", "https://hook.example/1,https://hook.example/2")
	t.Setenv("ALTRADY_API_KEY", "key")
	t.Setenv("ALTRADY_API_SECRET", "secret")
	t.Setenv("ALLOWED_PROVIDERS", "haseeb1111, other")
	t.Setenv("TEST_MODE", "true")
	t.Setenv("DCA1_QTY_PCT", "100")
	t.Setenv("POLL_BASE_SECONDS", "120")
	t.Setenv("TELEGRAM_CHAT_ID", "-100200")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "tok-abcdef", cfg.Discord.Token)
	assert.Equal(t, "999", cfg.Discord.ChannelID)
	assert.Len(t, cfg.Altrady.WebhookURLs, 2)
	assert.Equal(t, []string{"haseeb1111", "other"}, cfg.Providers.Allowed)
	assert.True(t, cfg.Altrady.TestMode)
	assert.Equal(t, 100.0, cfg.Trading.DCAQtyPcts[0])
	assert.Equal(t, 2*time.Minute, cfg.Relay.PollBase)
	assert.Equal(t, int64(-100200), cfg.Telegram.ChatID)
}

func TestNewConfig_RequiresCredentials(t *testing.T) {
	withConfigFile(t, "")
	t.Setenv("DISCORD_TOKEN", "tok")

	_, err := NewConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord.channel_id")
	assert.Contains(t, err.Error(), "altrady.api_secret")
	assert.NotContains(t, err.Error(), "discord.token")
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"too many tps":     "trading:\n  tp_pcts: [10, 10, 10, 10, 10, 10]\n",
		"min tps range":    "trading:\n  min_take_profits: 6\n",
		"required tp zero": "trading:\n  tp_pcts: [50, 0, 50]\n",
		"bad policy":       "trading:\n  stop:\n    policy: trailing\n",
		"zero retries":     "delivery:\n  retries: 0\n",
		"fixed pct zero":   "trading:\n  stop:\n    fixed_pct: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			withConfigFile(t, body)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_BrokenFile(t *testing.T) {
	withConfigFile(t, "trading: [unclosed\n")
	_, err := Load()
	assert.Error(t, err)
}

func TestConverters(t *testing.T) {
	withConfigFile(t, `
trading:
  min_take_profits: 2
  dca_fallback_pcts: [4]
  stop:
    required: true
    allow_inverted: true
markers:
  required: ["#signal"]
`)
	cfg, err := Load()
	require.NoError(t, err)

	opts := cfg.ExtractOptions()
	assert.Equal(t, "USDT", opts.Quote)
	assert.Equal(t, 2, opts.MinTakeProfits)
	assert.True(t, opts.RequireStopLoss)
	assert.Equal(t, []string{"#signal"}, opts.RequiredMarkers)

	assert.True(t, cfg.ValidationOptions().AllowInvertedStop)

	s := cfg.CompilerSettings()
	assert.Equal(t, order.StopPolicySignal, s.Stop.Policy)
	assert.Equal(t, [5]float64{20, 20, 20, 20, 20}, s.TakeProfitSplits)
	assert.Equal(t, [3]float64{150, 0, 0}, s.DCAQuantities)
	assert.Equal(t, [3]float64{4, 0, 0}, s.DCAFallbacks)
	assert.NoError(t, s.Validate())
}

func TestRedacted(t *testing.T) {
	withConfigFile(t, "")
	t.Setenv("DISCORD_TOKEN", "discord-secret-1234")
	t.Setenv("ALTRADY_API_SECRET", "altrady-secret-5678")
	t.Setenv("DATABASE_DSN", "postgres://u:p@host/db")

	cfg, err := Load()
	require.NoError(t, err)

	out, err := cfg.Redacted()
	require.NoError(t, err)
	assert.NotContains(t, out, "discord-secret")
	assert.NotContains(t, out, "altrady-secret")
	assert.NotContains(t, out, "u:p@host")
	assert.Contains(t, out, "****1234")
	assert.Contains(t, out, "exchange: BYBI")
}
