package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Indicator modes.
const (
	ModeSimple  = "simple"
	ModeClassic = "classic"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheFile   = "file"
	CacheRedis  = "redis"
)

// Config holds all application configuration. Values come from built-in
// defaults, then an optional YAML file (CONFIG_FILE), then environment
// variables (a .env file in the working directory is loaded first).
type Config struct {
	// Solana
	SolanaAPIURL  string `yaml:"solana_api_url"`
	SolanaWSURL   string `yaml:"solana_ws_url"`
	SolanaNetwork string `yaml:"solana_network"`
	// SolanaMint, when set, filters token accounts by mint instead of
	// by the SPL token program.
	SolanaMint string  `yaml:"solana_mint"`
	SolanaRPS  float64 `yaml:"solana_rps"`

	// Historical price API
	HistoricalAPIURL string `yaml:"historical_api_url"`

	// Alerts
	TelegramBotToken string  `yaml:"telegram_bot_token"`
	TelegramChatID   string  `yaml:"telegram_chat_id"`
	SendAlerts       bool    `yaml:"send_alerts"`
	WebhookURL       string  `yaml:"webhook_url"`
	AlertThreshold   float64 `yaml:"alert_threshold"`

	// Cache
	CacheEnabled bool          `yaml:"cache_enabled"`
	CacheBackend string        `yaml:"cache_backend"`
	CacheDir     string        `yaml:"cache_dir"`
	CacheTimeout time.Duration `yaml:"cache_timeout"`
	CacheSize    int           `yaml:"cache_size"`

	// Infrastructure
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	SQLitePath    string `yaml:"sqlite_path"`
	MetricsAddr   string `yaml:"metrics_addr"`
	APIAddr       string `yaml:"api_addr"`

	// Monitoring
	Contracts       []string      `yaml:"contracts"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	ContractDelay   time.Duration `yaml:"contract_delay"`
	WatchInterval   time.Duration `yaml:"watch_interval"`
	Concurrency     int           `yaml:"concurrency"`

	LogLevel  string `yaml:"log_level"`
	DebugMode bool   `yaml:"debug_mode"`

	Strategy StrategyConfig `yaml:"strategy"`
}

// StrategyConfig holds indicator windows and backtest parameters.
type StrategyConfig struct {
	InitialBalance          float64 `yaml:"initial_balance"`
	SMAWindow               int     `yaml:"sma_window"`
	RSIWindow               int     `yaml:"rsi_window"`
	RSIOversold             float64 `yaml:"rsi_oversold"`
	MACDFast                int     `yaml:"macd_fast"`
	MACDSlow                int     `yaml:"macd_slow"`
	MACDSignal              int     `yaml:"macd_signal"`
	SupportResistanceOffset float64 `yaml:"support_resistance_offset"`
	IndicatorMode           string  `yaml:"indicator_mode"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		SolanaAPIURL:     "https://api.mainnet-beta.solana.com",
		SolanaWSURL:      "wss://api.mainnet-beta.solana.com",
		SolanaNetwork:    "mainnet-beta",
		SolanaRPS:        5,
		HistoricalAPIURL: "https://api.example.com",

		AlertThreshold: 0.05,

		CacheEnabled: true,
		CacheBackend: CacheMemory,
		CacheDir:     "cache",
		CacheTimeout: 300 * time.Second,
		CacheSize:    1024,

		RedisAddr:   "localhost:6379",
		SQLitePath:  "data/tokenwatch.db",
		MetricsAddr: ":9090",
		APIAddr:     ":8080",

		MonitorInterval: 300 * time.Second,
		ContractDelay:   5 * time.Second,
		WatchInterval:   10 * time.Second,
		Concurrency:     4,

		LogLevel: "info",

		Strategy: DefaultStrategy(),
	}
}

// DefaultStrategy returns the stock indicator windows (SMA 14, RSI 14,
// MACD 12/26/9) with a 1000 unit starting balance.
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		InitialBalance:          1000,
		SMAWindow:               14,
		RSIWindow:               14,
		RSIOversold:             30,
		MACDFast:                12,
		MACDSlow:                26,
		MACDSignal:              9,
		SupportResistanceOffset: 0.05,
		IndicatorMode:           ModeSimple,
	}
}

// Load reads configuration from .env, CONFIG_FILE and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays values from a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.SolanaAPIURL = getEnv("SOLANA_API_URL", c.SolanaAPIURL)
	c.SolanaWSURL = getEnv("SOLANA_WS_URL", c.SolanaWSURL)
	c.SolanaNetwork = getEnv("SOLANA_NETWORK", c.SolanaNetwork)
	c.SolanaMint = getEnv("SOLANA_MINT", c.SolanaMint)
	c.SolanaRPS = floatEnv("SOLANA_RPS", c.SolanaRPS)
	c.HistoricalAPIURL = getEnv("HISTORICAL_API_URL", c.HistoricalAPIURL)

	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.TelegramChatID)
	c.SendAlerts = boolEnv("SEND_ALERTS", c.SendAlerts)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.AlertThreshold = floatEnv("ALERT_THRESHOLD", c.AlertThreshold)

	c.CacheEnabled = boolEnv("CACHE_ENABLED", c.CacheEnabled)
	c.CacheBackend = strings.ToLower(getEnv("CACHE_BACKEND", c.CacheBackend))
	c.CacheDir = getEnv("CACHE_DIR", c.CacheDir)
	c.CacheTimeout = durationEnv("CACHE_TIMEOUT", c.CacheTimeout)
	c.CacheSize = intEnv("CACHE_SIZE", c.CacheSize)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.APIAddr = getEnv("API_ADDR", c.APIAddr)

	if v := os.Getenv("CONTRACTS"); v != "" {
		c.Contracts = ParseList(v)
	}
	c.MonitorInterval = durationEnv("MONITOR_INTERVAL", c.MonitorInterval)
	c.ContractDelay = durationEnv("CONTRACT_DELAY", c.ContractDelay)
	c.WatchInterval = durationEnv("WATCH_INTERVAL", c.WatchInterval)
	c.Concurrency = intEnv("MONITOR_CONCURRENCY", c.Concurrency)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DebugMode = boolEnv("DEBUG_MODE", c.DebugMode)

	s := &c.Strategy
	s.InitialBalance = floatEnv("INITIAL_BALANCE", s.InitialBalance)
	s.SMAWindow = intEnv("SMA_WINDOW", s.SMAWindow)
	s.RSIWindow = intEnv("RSI_WINDOW", s.RSIWindow)
	s.RSIOversold = floatEnv("RSI_OVERSOLD", s.RSIOversold)
	s.MACDFast = intEnv("MACD_FAST", s.MACDFast)
	s.MACDSlow = intEnv("MACD_SLOW", s.MACDSlow)
	s.MACDSignal = intEnv("MACD_SIGNAL", s.MACDSignal)
	s.SupportResistanceOffset = floatEnv("SUPPORT_RESISTANCE_OFFSET", s.SupportResistanceOffset)
	s.IndicatorMode = strings.ToLower(getEnv("INDICATOR_MODE", s.IndicatorMode))
}

// Validate rejects configurations the analysis core cannot run with.
func (c *Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.AlertThreshold < 0 || c.AlertThreshold >= 1 {
		return fmt.Errorf("config: alert threshold %v outside [0,1)", c.AlertThreshold)
	}
	switch c.CacheBackend {
	case CacheMemory, CacheFile, CacheRedis:
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.CacheBackend)
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return nil
}

// Validate checks indicator windows and offsets.
func (s StrategyConfig) Validate() error {
	for name, w := range map[string]int{
		"sma_window":  s.SMAWindow,
		"rsi_window":  s.RSIWindow,
		"macd_fast":   s.MACDFast,
		"macd_slow":   s.MACDSlow,
		"macd_signal": s.MACDSignal,
	} {
		if w <= 0 {
			return fmt.Errorf("config: %s must be positive, got %d", name, w)
		}
	}
	if s.MACDFast >= s.MACDSlow {
		return fmt.Errorf("config: macd_fast (%d) must be below macd_slow (%d)", s.MACDFast, s.MACDSlow)
	}
	if s.SupportResistanceOffset < 0 || s.SupportResistanceOffset >= 1 {
		return fmt.Errorf("config: support/resistance offset %v outside [0,1)", s.SupportResistanceOffset)
	}
	if s.InitialBalance < 0 {
		return fmt.Errorf("config: initial balance must not be negative")
	}
	switch s.IndicatorMode {
	case ModeSimple, ModeClassic:
	default:
		return fmt.Errorf("config: unknown indicator mode %q", s.IndicatorMode)
	}
	return nil
}

// AlertsEnabled reports whether Telegram delivery is configured and switched on.
func (c *Config) AlertsEnabled() bool {
	return c.SendAlerts && c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// ParseList splits a comma-separated list, dropping blanks.
func ParseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
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

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid int for %s: %q", key, v)
		return fallback
	}
	return n
}

func floatEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q", key, v)
		return fallback
	}
	return f
}

func boolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q", key, v)
		return fallback
	}
	return b
}

// durationEnv accepts Go durations ("5m") or bare seconds ("300").
func durationEnv(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q", key, v)
		return fallback
	}
	return d
}
