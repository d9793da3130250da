package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"signal_relay/internal/helper"
	"signal_relay/internal/models"
	"signal_relay/internal/order"
	"signal_relay/internal/signal"
)

const (
	configFilePathENV = "CONFIG_FILE"
	defaultConfigFile = "configs/values_local.yaml"
	envPrefix         = "SIGNAL_RELAY"
)

type Config struct {
	Discord   DiscordConfig   `mapstructure:"discord" yaml:"discord"`
	Altrady   AltradyConfig   `mapstructure:"altrady" yaml:"altrady"`
	Trading   TradingConfig   `mapstructure:"trading" yaml:"trading"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Markers   MarkersConfig   `mapstructure:"markers" yaml:"markers"`
	Relay     RelayConfig     `mapstructure:"relay" yaml:"relay"`
	Delivery  DeliveryConfig  `mapstructure:"delivery" yaml:"delivery"`
	Telegram  TelegramConfig  `mapstructure:"telegram" yaml:"telegram"`
	Postgres  PostgresConfig  `mapstructure:"postgres" yaml:"postgres"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Service   ServiceConfig   `mapstructure:"service" yaml:"service"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type DiscordConfig struct {
	Token      string        `mapstructure:"token" yaml:"token"`
	ChannelID  string        `mapstructure:"channel_id" yaml:"channel_id"`
	APIBase    string        `mapstructure:"api_base" yaml:"api_base"`
	FetchLimit int           `mapstructure:"fetch_limit" yaml:"fetch_limit"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type AltradyConfig struct {
	WebhookURLs []string `mapstructure:"webhook_urls" yaml:"webhook_urls"`
	APIKey      string   `mapstructure:"api_key" yaml:"api_key"`
	APISecret   string   `mapstructure:"api_secret" yaml:"api_secret"`
	Exchange    string   `mapstructure:"exchange" yaml:"exchange"`
	TestMode    bool     `mapstructure:"test_mode" yaml:"test_mode"`
}

type TradingConfig struct {
	Quote                 string        `mapstructure:"quote" yaml:"quote"`
	Leverage              int           `mapstructure:"leverage" yaml:"leverage"`
	TPPcts                []float64     `mapstructure:"tp_pcts" yaml:"tp_pcts"`
	MinTakeProfits        int           `mapstructure:"min_take_profits" yaml:"min_take_profits"`
	DCAQtyPcts            []float64     `mapstructure:"dca_qty_pcts" yaml:"dca_qty_pcts"`
	DCAFallbackPcts       []float64     `mapstructure:"dca_fallback_pcts" yaml:"dca_fallback_pcts"`
	SkipDCAWithSignalStop bool          `mapstructure:"skip_dca_with_signal_stop" yaml:"skip_dca_with_signal_stop"`
	Stop                  StopConfig    `mapstructure:"stop" yaml:"stop"`
	Entry                 EntryConfig   `mapstructure:"entry" yaml:"entry"`
	Runner                RunnerConfig  `mapstructure:"runner" yaml:"runner"`
}

type StopConfig struct {
	Policy         string  `mapstructure:"policy" yaml:"policy"` // signal | dca | fixed
	PreferSignal   bool    `mapstructure:"prefer_signal" yaml:"prefer_signal"`
	FixedPct       float64 `mapstructure:"fixed_pct" yaml:"fixed_pct"`
	DCABufferPct   float64 `mapstructure:"dca_buffer_pct" yaml:"dca_buffer_pct"`
	AllowInverted  bool    `mapstructure:"allow_inverted" yaml:"allow_inverted"`
	Required       bool    `mapstructure:"required" yaml:"required"`
	OrderType      string  `mapstructure:"order_type" yaml:"order_type"`
	ProtectionType string  `mapstructure:"protection_type" yaml:"protection_type"`
}

type EntryConfig struct {
	BufferPct          float64 `mapstructure:"buffer_pct" yaml:"buffer_pct"`
	ExpirationMin      int     `mapstructure:"expiration_min" yaml:"expiration_min"`
	ExpirationPricePct float64 `mapstructure:"expiration_price_pct" yaml:"expiration_price_pct"`
	WaitMin            int     `mapstructure:"wait_min" yaml:"wait_min"`
}

type RunnerConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	SizePct     float64 `mapstructure:"size_pct" yaml:"size_pct"`
	Multiplier  float64 `mapstructure:"multiplier" yaml:"multiplier"`
	TrailingPct float64 `mapstructure:"trailing_pct" yaml:"trailing_pct"`
}

type ProvidersConfig struct {
	Allowed  []string `mapstructure:"allowed" yaml:"allowed"`
	Required bool     `mapstructure:"required" yaml:"required"`
}

type MarkersConfig struct {
	Required []string `mapstructure:"required" yaml:"required"`
}

type RelayConfig struct {
	StateFile     string        `mapstructure:"state_file" yaml:"state_file"`
	Cooldown      time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	SeenHashLimit int           `mapstructure:"seen_hash_limit" yaml:"seen_hash_limit"`
	PollBase      time.Duration `mapstructure:"poll_base" yaml:"poll_base"`
	PollOffset    time.Duration `mapstructure:"poll_offset" yaml:"poll_offset"`
	PollJitter    time.Duration `mapstructure:"poll_jitter" yaml:"poll_jitter"`
	FaultPause    time.Duration `mapstructure:"fault_pause" yaml:"fault_pause"`
}

type DeliveryConfig struct {
	Retries int           `mapstructure:"retries" yaml:"retries"`
	Backoff time.Duration `mapstructure:"backoff" yaml:"backoff"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token" yaml:"token"`
	ChatID int64  `mapstructure:"chat_id" yaml:"chat_id"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

type ServiceConfig struct {
	Name       string `mapstructure:"name" yaml:"name"`
	HealthAddr string `mapstructure:"health_addr" yaml:"health_addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.channel_id", "")
	v.SetDefault("discord.api_base", "https://discord.com/api/v10")
	v.SetDefault("discord.fetch_limit", 50)
	v.SetDefault("discord.timeout", "15s")

	v.SetDefault("altrady.webhook_urls", []string{})
	v.SetDefault("altrady.api_key", "")
	v.SetDefault("altrady.api_secret", "")
	v.SetDefault("altrady.exchange", "BYBI")
	v.SetDefault("altrady.test_mode", false)

	v.SetDefault("trading.quote", "USDT")
	v.SetDefault("trading.leverage", 10)
	v.SetDefault("trading.tp_pcts", []float64{20, 20, 20, 20, 20})
	v.SetDefault("trading.min_take_profits", 3)
	v.SetDefault("trading.dca_qty_pcts", []float64{150, 0, 0})
	v.SetDefault("trading.dca_fallback_pcts", []float64{0, 0, 0})
	v.SetDefault("trading.skip_dca_with_signal_stop", false)
	v.SetDefault("trading.stop.policy", string(order.StopPolicySignal))
	v.SetDefault("trading.stop.prefer_signal", true)
	v.SetDefault("trading.stop.fixed_pct", 3.0)
	v.SetDefault("trading.stop.dca_buffer_pct", 1.0)
	v.SetDefault("trading.stop.allow_inverted", false)
	v.SetDefault("trading.stop.required", false)
	v.SetDefault("trading.stop.order_type", "STOP_LOSS_MARKET")
	v.SetDefault("trading.stop.protection_type", "FOLLOW_TAKE_PROFIT")
	v.SetDefault("trading.entry.buffer_pct", 0.0)
	v.SetDefault("trading.entry.expiration_min", 180)
	v.SetDefault("trading.entry.expiration_price_pct", 0.0)
	v.SetDefault("trading.entry.wait_min", 0)
	v.SetDefault("trading.runner.enabled", false)
	v.SetDefault("trading.runner.size_pct", 0.0)
	v.SetDefault("trading.runner.multiplier", 1.5)
	v.SetDefault("trading.runner.trailing_pct", 1.0)

	v.SetDefault("providers.allowed", []string{})
	v.SetDefault("providers.required", false)
	v.SetDefault("markers.required", []string{})

	v.SetDefault("relay.state_file", "state.json")
	v.SetDefault("relay.cooldown", "30s")
	v.SetDefault("relay.seen_hash_limit", 500)
	v.SetDefault("relay.poll_base", "60s")
	v.SetDefault("relay.poll_offset", "3s")
	v.SetDefault("relay.poll_jitter", "7s")
	v.SetDefault("relay.fault_pause", "10s")

	v.SetDefault("delivery.retries", 3)
	v.SetDefault("delivery.backoff", "2s")
	v.SetDefault("delivery.timeout", "20s")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
	v.SetDefault("service.name", "signal-relay")
	v.SetDefault("service.health_addr", ":8080")
	v.SetDefault("log.level", "info")
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (a missing file is fine), then SIGNAL_RELAY_* variables, then
// the flat variable names of older deployments (DISCORD_TOKEN, TP1_PCT, ...).
// A .env file in the working directory is loaded first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := getenvDefault(configFilePathENV, defaultConfigFile)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	applyLegacyEnv(&cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

// NewConfig loads the configuration for the long-running relay, which also
// needs its credentials.
func NewConfig() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateRuntime(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || os.IsNotExist(errors.Cause(err))
}

func applyLegacyEnv(c *Config) {
	c.Discord.Token = getenvDefault("DISCORD_TOKEN", c.Discord.Token)
	c.Discord.ChannelID = getenvDefault("CHANNEL_ID", c.Discord.ChannelID)
	c.Discord.FetchLimit = intFromEnv("DISCORD_FETCH_LIMIT", c.Discord.FetchLimit)

	if v := os.Getenv("ALTRADY_WEBHOOK_URL"); v != "" {
		c.Altrady.WebhookURLs = splitList(v)
	}
	c.Altrady.APIKey = getenvDefault("ALTRADY_API_KEY", c.Altrady.APIKey)
	c.Altrady.APISecret = getenvDefault("ALTRADY_API_SECRET", c.Altrady.APISecret)
	c.Altrady.Exchange = getenvDefault("ALTRADY_EXCHANGE", c.Altrady.Exchange)
	c.Altrady.TestMode = boolFromEnv("TEST_MODE", c.Altrady.TestMode)

	c.Trading.Quote = getenvDefault("QUOTE", c.Trading.Quote)
	c.Trading.Leverage = intFromEnv("LEVERAGE", c.Trading.Leverage)
	c.Trading.TPPcts = padFloats(c.Trading.TPPcts, models.MaxTakeProfits)
	for i := range c.Trading.TPPcts {
		c.Trading.TPPcts[i] = floatFromEnv(fmt.Sprintf("TP%d_PCT", i+1), c.Trading.TPPcts[i])
	}
	c.Trading.MinTakeProfits = intFromEnv("MIN_TAKE_PROFITS", c.Trading.MinTakeProfits)
	c.Trading.DCAQtyPcts = padFloats(c.Trading.DCAQtyPcts, models.MaxAveraging)
	c.Trading.DCAFallbackPcts = padFloats(c.Trading.DCAFallbackPcts, models.MaxAveraging)
	for i := range c.Trading.DCAQtyPcts {
		c.Trading.DCAQtyPcts[i] = floatFromEnv(fmt.Sprintf("DCA%d_QTY_PCT", i+1), c.Trading.DCAQtyPcts[i])
		c.Trading.DCAFallbackPcts[i] = floatFromEnv(fmt.Sprintf("DCA%d_FALLBACK_PCT", i+1), c.Trading.DCAFallbackPcts[i])
	}
	c.Trading.Stop.OrderType = getenvDefault("STOP_LOSS_ORDER_TYPE", c.Trading.Stop.OrderType)
	c.Trading.Stop.ProtectionType = getenvDefault("STOP_PROTECTION_TYPE", c.Trading.Stop.ProtectionType)
	c.Trading.Stop.Policy = getenvDefault("STOP_POLICY", c.Trading.Stop.Policy)
	c.Trading.Stop.FixedPct = floatFromEnv("STOP_FIXED_PCT", c.Trading.Stop.FixedPct)
	c.Trading.Stop.AllowInverted = boolFromEnv("ALLOW_INVERTED_SL", c.Trading.Stop.AllowInverted)
	c.Trading.Entry.ExpirationMin = intFromEnv("ENTRY_EXPIRATION_MIN", c.Trading.Entry.ExpirationMin)
	c.Trading.Entry.WaitMin = intFromEnv("ENTRY_WAIT_MINUTES", c.Trading.Entry.WaitMin)
	c.Trading.Entry.BufferPct = floatFromEnv("ENTRY_TRIGGER_BUFFER_PCT", c.Trading.Entry.BufferPct)
	c.Trading.Entry.ExpirationPricePct = floatFromEnv("ENTRY_EXPIRATION_PRICE_PCT", c.Trading.Entry.ExpirationPricePct)

	if v := os.Getenv("ALLOWED_PROVIDERS"); v != "" {
		c.Providers.Allowed = splitList(v)
	}

	c.Relay.StateFile = getenvDefault("STATE_FILE", c.Relay.StateFile)
	c.Relay.Cooldown = secondsFromEnv("COOLDOWN_SECONDS", c.Relay.Cooldown)
	c.Relay.PollBase = secondsFromEnv("POLL_BASE_SECONDS", c.Relay.PollBase)
	c.Relay.PollOffset = secondsFromEnv("POLL_OFFSET_SECONDS", c.Relay.PollOffset)
	c.Relay.PollJitter = secondsFromEnv("POLL_JITTER_MAX", c.Relay.PollJitter)

	c.Telegram.Token = getenvDefault("TELEGRAM_TOKEN", c.Telegram.Token)
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	c.Postgres.DSN = getenvDefault("DATABASE_DSN", c.Postgres.DSN)
}

func (c *Config) normalize() {
	c.Discord.Token = strings.TrimSpace(c.Discord.Token)
	c.Discord.ChannelID = strings.TrimSpace(c.Discord.ChannelID)
	c.Altrady.Exchange = strings.ToUpper(strings.TrimSpace(c.Altrady.Exchange))
	c.Altrady.WebhookURLs = compact(c.Altrady.WebhookURLs)
	c.Trading.Quote = strings.ToUpper(strings.TrimSpace(c.Trading.Quote))
	c.Trading.Stop.Policy = strings.ToLower(strings.TrimSpace(c.Trading.Stop.Policy))
	c.Trading.Stop.OrderType = strings.ToUpper(strings.TrimSpace(c.Trading.Stop.OrderType))
	c.Trading.Stop.ProtectionType = strings.ToUpper(strings.TrimSpace(c.Trading.Stop.ProtectionType))
	c.Providers.Allowed = compact(c.Providers.Allowed)
	c.Markers.Required = compact(c.Markers.Required)
	if c.Discord.FetchLimit > 100 {
		c.Discord.FetchLimit = 100
	}
}

// Validate checks the trading surface. It does not require credentials.
func (c *Config) Validate() error {
	if len(c.Trading.TPPcts) > models.MaxTakeProfits {
		return errors.Errorf("trading.tp_pcts: at most %d slots", models.MaxTakeProfits)
	}
	if len(c.Trading.DCAQtyPcts) > models.MaxAveraging || len(c.Trading.DCAFallbackPcts) > models.MaxAveraging {
		return errors.Errorf("trading.dca_*: at most %d slots", models.MaxAveraging)
	}
	if c.Trading.MinTakeProfits < 1 || c.Trading.MinTakeProfits > models.MaxTakeProfits {
		return errors.Errorf("trading.min_take_profits %d not in [1,%d]", c.Trading.MinTakeProfits, models.MaxTakeProfits)
	}
	for i := 0; i < c.Trading.MinTakeProfits && i < len(c.Trading.TPPcts); i++ {
		if c.Trading.TPPcts[i] <= 0 {
			return errors.Errorf("trading.tp_pcts: TP%d is required by min_take_profits but has split %g", i+1, c.Trading.TPPcts[i])
		}
	}
	if c.Trading.Leverage < 0 {
		return errors.New("trading.leverage must not be negative")
	}
	if c.Relay.Cooldown < 0 || c.Relay.SeenHashLimit <= 0 {
		return errors.New("relay.cooldown must be >= 0 and relay.seen_hash_limit > 0")
	}
	if c.Relay.PollBase <= 0 {
		return errors.New("relay.poll_base must be positive")
	}
	if c.Trading.Stop.FixedPct <= 0 {
		// fixed: последний запасной вариант для любой политики
		return errors.New("trading.stop.fixed_pct must be positive")
	}
	if c.Delivery.Retries < 1 {
		return errors.New("delivery.retries must be at least 1")
	}
	if c.Discord.FetchLimit < 1 {
		return errors.New("discord.fetch_limit must be positive")
	}
	return c.CompilerSettings().Validate()
}

// ValidateRuntime additionally requires what the relay needs to talk to
// Discord and Altrady.
func (c *Config) ValidateRuntime() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "discord.token")
	}
	if c.Discord.ChannelID == "" {
		missing = append(missing, "discord.channel_id")
	}
	if len(c.Altrady.WebhookURLs) == 0 {
		missing = append(missing, "altrady.webhook_urls")
	}
	if c.Altrady.APIKey == "" {
		missing = append(missing, "altrady.api_key")
	}
	if c.Altrady.APISecret == "" {
		missing = append(missing, "altrady.api_secret")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) ExtractOptions() signal.Options {
	return signal.Options{
		Quote:            c.Trading.Quote,
		MinTakeProfits:   c.Trading.MinTakeProfits,
		AllowedProviders: c.Providers.Allowed,
		RequireProvider:  c.Providers.Required,
		RequiredMarkers:  c.Markers.Required,
		RequireStopLoss:  c.Trading.Stop.Required,
	}
}

func (c *Config) ValidationOptions() signal.ValidationOptions {
	return signal.ValidationOptions{AllowInvertedStop: c.Trading.Stop.AllowInverted}
}

func (c *Config) CompilerSettings() order.Settings {
	s := order.Settings{
		Exchange:              c.Altrady.Exchange,
		Quote:                 c.Trading.Quote,
		APIKey:                c.Altrady.APIKey,
		APISecret:             c.Altrady.APISecret,
		Leverage:              c.Trading.Leverage,
		SkipDCAWithSignalStop: c.Trading.SkipDCAWithSignalStop,
		Stop: order.StopSettings{
			Policy:         order.StopPolicy(c.Trading.Stop.Policy),
			PreferSignal:   c.Trading.Stop.PreferSignal,
			FixedPct:       c.Trading.Stop.FixedPct,
			DCABufferPct:   c.Trading.Stop.DCABufferPct,
			OrderType:      c.Trading.Stop.OrderType,
			ProtectionType: c.Trading.Stop.ProtectionType,
		},
		Entry: order.EntrySettings{
			BufferPct:          c.Trading.Entry.BufferPct,
			ExpirationMin:      c.Trading.Entry.ExpirationMin,
			ExpirationPricePct: c.Trading.Entry.ExpirationPricePct,
			WaitMin:            c.Trading.Entry.WaitMin,
		},
		Runner: order.RunnerSettings{
			Enabled:     c.Trading.Runner.Enabled,
			SizePct:     c.Trading.Runner.SizePct,
			Multiplier:  c.Trading.Runner.Multiplier,
			TrailingPct: c.Trading.Runner.TrailingPct,
		},
		TestMode: c.Altrady.TestMode,
	}
	copy(s.TakeProfitSplits[:], c.Trading.TPPcts)
	copy(s.DCAQuantities[:], c.Trading.DCAQtyPcts)
	copy(s.DCAFallbacks[:], c.Trading.DCAFallbackPcts)
	return s
}

// Redacted renders the effective configuration as YAML with secrets masked.
func (c *Config) Redacted() (string, error) {
	cp := *c
	cp.Discord.Token = helper.MaskSecret(c.Discord.Token)
	cp.Altrady.APIKey = helper.MaskSecret(c.Altrady.APIKey)
	cp.Altrady.APISecret = helper.MaskSecret(c.Altrady.APISecret)
	cp.Telegram.Token = helper.MaskSecret(c.Telegram.Token)
	if c.Postgres.DSN != "" {
		cp.Postgres.DSN = "****"
	}
	b, err := yaml.Marshal(&cp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func splitList(v string) []string {
	return compact(strings.Split(v, ","))
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func padFloats(in []float64, n int) []float64 {
	if len(in) >= n {
		return in
	}
	out := make([]float64, n)
	copy(out, in)
	return out
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// secondsFromEnv reads a whole number of seconds, as older deployments did.
func secondsFromEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
