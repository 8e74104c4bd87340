package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"signal-engine/internal/indicator"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Feed
	Symbols         []string
	KlineInterval   string
	BinanceWSURL    string
	EvaluateForming bool
	HistoryDir      string // optional dir of <SYMBOL>.json kline tuple files used to warm windows

	// Sinks. REDIS_ADDR or SQLITE_PATH set to "" disables that sink.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	WebhookURL    string
	SinkBuffer    int

	// Service
	HTTPAddr         string
	LogLevel         string
	LivenessInterval time.Duration

	Indicators indicator.Params
}

// LoadEnvFiles loads the given dotenv files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed value is reported, not just the first.
func Load() (*Config, error) {
	var errs error
	intEnv := func(key string, fallback int) int {
		v := getEnv(key, "")
		if v == "" {
			return fallback
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return fallback
		}
		return n
	}
	floatEnv := func(key string, fallback float64) float64 {
		v := getEnv(key, "")
		if v == "" {
			return fallback
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %q is not a number", key, v))
			return fallback
		}
		return f
	}
	boolEnv := func(key string, fallback bool) bool {
		v := getEnv(key, "")
		if v == "" {
			return fallback
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %q is not a boolean", key, v))
			return fallback
		}
		return b
	}

	def := indicator.DefaultParams()
	cfg := &Config{
		Symbols:         ParseSymbols(getEnv("SYMBOLS", "BTCUSDT")),
		KlineInterval:   getEnv("KLINE_INTERVAL", "1m"),
		BinanceWSURL:    getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443/ws"),
		EvaluateForming: boolEnv("EVALUATE_FORMING", false),
		HistoryDir:      getEnv("HISTORY_DIR", ""),

		RedisAddr:     lookupEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       intEnv("REDIS_DB", 0),
		SQLitePath:    lookupEnv("SQLITE_PATH", "data/signals.db"),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		SinkBuffer:    intEnv("SINK_BUFFER", 256),

		HTTPAddr:         getEnv("HTTP_ADDR", ":9096"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LivenessInterval: time.Duration(intEnv("LIVENESS_INTERVAL_SEC", 15)) * time.Second,

		Indicators: indicator.Params{
			MACDFast:   intEnv("MACD_FAST", def.MACDFast),
			MACDSlow:   intEnv("MACD_SLOW", def.MACDSlow),
			MACDSignal: intEnv("MACD_SIGNAL", def.MACDSignal),
			RSIPeriod:  intEnv("RSI_PERIOD", def.RSIPeriod),
			StochK:     intEnv("STOCH_K", def.StochK),
			StochD:     intEnv("STOCH_D", def.StochD),
			BollPeriod: intEnv("BB_PERIOD", def.BollPeriod),
			BollMult:   floatEnv("BB_MULT", def.BollMult),
		},
	}

	if err := multierr.Append(errs, cfg.Validate()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports all problems at once.
func (c *Config) Validate() error {
	var errs error
	if len(c.Symbols) == 0 {
		errs = multierr.Append(errs, errors.New("SYMBOLS: at least one symbol is required"))
	}
	if c.KlineInterval == "" {
		errs = multierr.Append(errs, errors.New("KLINE_INTERVAL: must not be empty"))
	}
	if c.SinkBuffer < 1 {
		errs = multierr.Append(errs, fmt.Errorf("SINK_BUFFER: must be >= 1, got %d", c.SinkBuffer))
	}
	if c.LivenessInterval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("LIVENESS_INTERVAL_SEC: must be > 0, got %v", c.LivenessInterval))
	}
	if err := c.Indicators.Validate(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// ParseSymbols splits a comma-separated symbol list, upper-casing and
// dropping blanks and duplicates.
func ParseSymbols(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// lookupEnv is getEnv except that a variable set to "" is kept.
func lookupEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
