package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Trading   TradingConfig   `yaml:"trading" json:"trading"`
	Safety    SafetyConfig    `yaml:"safety" json:"safety"`
	Intervals IntervalsConfig `yaml:"intervals" json:"intervals"`
	Exchange  ExchangeConfig  `yaml:"exchange" json:"exchange"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Telegram  TelegramConfig  `yaml:"telegram" json:"telegram"`
	Web       WebConfig       `yaml:"web" json:"web"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

type TradingConfig struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	Mode            string   `yaml:"mode" json:"mode"` // "paper" or "real"
	MaxPositions    int      `yaml:"max_positions" json:"max_positions"`
	MaxDailyTrades  int      `yaml:"max_daily_trades" json:"max_daily_trades"`
	PositionSize    float64  `yaml:"position_size" json:"position_size"`   // quote currency per snipe
	MinConfidence   float64  `yaml:"min_confidence" json:"min_confidence"`  // 0 < x <= 100
	AllowedPatterns []string `yaml:"allowed_patterns" json:"allowed_patterns"`
	StopLossPct     float64  `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct   float64  `yaml:"take_profit_pct" json:"take_profit_pct"`
	MaxDrawdownPct  float64  `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
}

type SafetyConfig struct {
	CircuitThreshold  int    `yaml:"circuit_threshold" json:"circuit_threshold"`
	CircuitResetDelay string `yaml:"circuit_reset_delay" json:"circuit_reset_delay"` // duration, e.g. "60s"
	CallTimeout       string `yaml:"call_timeout" json:"call_timeout"`        // per exchange call
	StaleAfter        string `yaml:"stale_after" json:"stale_after"`         // untouched positions migrate to history
	AlertBufferSize   int    `yaml:"alert_buffer_size" json:"alert_buffer_size"`
	HistorySize       int    `yaml:"history_size" json:"history_size"`
}

type IntervalsConfig struct {
	Scan    string `yaml:"scan" json:"scan"`
	Monitor string `yaml:"monitor" json:"monitor"`
	Cleanup string `yaml:"cleanup" json:"cleanup"`
}

type ExchangeConfig struct {
	APIKey       string `yaml:"api_key" json:"api_key"`
	APISecret    string `yaml:"api_secret" json:"api_secret"`
	RESTEndpoint string `yaml:"rest_endpoint" json:"rest_endpoint"`
	WSEndpoint   string `yaml:"ws_endpoint" json:"ws_endpoint"`
}

type StorageConfig struct {
	Path string `yaml:"path" json:"path"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	BotToken string `yaml:"bot_token" json:"bot_token"`
	ChatID   int64  `yaml:"chat_id" json:"chat_id"`
}

type WebConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)
	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MEXC_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("MEXC_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
}

func SetDefaults(cfg *Config) {
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "paper"
	}
	if cfg.Trading.MaxPositions == 0 {
		cfg.Trading.MaxPositions = 5
	}
	if cfg.Trading.MaxDailyTrades == 0 {
		cfg.Trading.MaxDailyTrades = 10
	}
	if cfg.Trading.PositionSize == 0 {
		cfg.Trading.PositionSize = 100
	}
	if cfg.Trading.MinConfidence == 0 {
		cfg.Trading.MinConfidence = 75
	}
	if cfg.Trading.StopLossPct == 0 {
		cfg.Trading.StopLossPct = 10
	}
	if cfg.Trading.TakeProfitPct == 0 {
		cfg.Trading.TakeProfitPct = 20
	}
	if cfg.Trading.MaxDrawdownPct == 0 {
		cfg.Trading.MaxDrawdownPct = 20
	}
	if cfg.Safety.CircuitThreshold == 0 {
		cfg.Safety.CircuitThreshold = 5
	}
	if cfg.Safety.CircuitResetDelay == "" {
		cfg.Safety.CircuitResetDelay = "60s"
	}
	if cfg.Safety.CallTimeout == "" {
		cfg.Safety.CallTimeout = "10s"
	}
	if cfg.Safety.StaleAfter == "" {
		cfg.Safety.StaleAfter = "24h"
	}
	if cfg.Safety.AlertBufferSize == 0 {
		cfg.Safety.AlertBufferSize = 100
	}
	if cfg.Safety.HistorySize == 0 {
		cfg.Safety.HistorySize = 500
	}
	if cfg.Intervals.Scan == "" {
		cfg.Intervals.Scan = "5s"
	}
	if cfg.Intervals.Monitor == "" {
		cfg.Intervals.Monitor = "10s"
	}
	if cfg.Intervals.Cleanup == "" {
		cfg.Intervals.Cleanup = "5m"
	}
	if cfg.Exchange.RESTEndpoint == "" {
		cfg.Exchange.RESTEndpoint = "https://api.mexc.com"
	}
	if cfg.Exchange.WSEndpoint == "" {
		cfg.Exchange.WSEndpoint = "wss://wbs.mexc.com/ws"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "sniper.db"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8085
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate rejects out-of-range values. Callers must treat a failed
// validation as rejecting the whole config, never a partial apply.
func (c *Config) Validate() error {
	if c.Trading.Mode != "paper" && c.Trading.Mode != "real" {
		return fmt.Errorf("trading.mode must be \"paper\" or \"real\", got %q", c.Trading.Mode)
	}
	if c.Trading.MaxPositions < 1 {
		return fmt.Errorf("trading.max_positions must be >= 1, got %d", c.Trading.MaxPositions)
	}
	if c.Trading.MinConfidence <= 0 || c.Trading.MinConfidence > 100 {
		return fmt.Errorf("trading.min_confidence must be in (0, 100], got %v", c.Trading.MinConfidence)
	}
	if c.Trading.MaxDailyTrades < 1 {
		return fmt.Errorf("trading.max_daily_trades must be >= 1, got %d", c.Trading.MaxDailyTrades)
	}
	if c.Trading.PositionSize <= 0 {
		return fmt.Errorf("trading.position_size must be positive, got %v", c.Trading.PositionSize)
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 100 {
		return fmt.Errorf("trading.stop_loss_pct must be in (0, 100), got %v", c.Trading.StopLossPct)
	}
	if c.Trading.TakeProfitPct <= 0 {
		return fmt.Errorf("trading.take_profit_pct must be positive, got %v", c.Trading.TakeProfitPct)
	}
	if c.Safety.CircuitThreshold < 1 {
		return fmt.Errorf("safety.circuit_threshold must be >= 1, got %d", c.Safety.CircuitThreshold)
	}
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port must be in [1, 65535], got %d", c.Web.Port)
	}
	for name, val := range map[string]string{
		"safety.circuit_reset_delay": c.Safety.CircuitResetDelay,
		"safety.call_timeout":        c.Safety.CallTimeout,
		"safety.stale_after":         c.Safety.StaleAfter,
		"intervals.scan":             c.Intervals.Scan,
		"intervals.monitor":          c.Intervals.Monitor,
		"intervals.cleanup":          c.Intervals.Cleanup,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, val, err)
		}
	}
	return nil
}

func (c *Config) IsPaper() bool { return c.Trading.Mode == "paper" }

func (c *Config) CircuitResetDelay() time.Duration { return mustDuration(c.Safety.CircuitResetDelay) }
func (c *Config) CallTimeout() time.Duration       { return mustDuration(c.Safety.CallTimeout) }
func (c *Config) StaleAfter() time.Duration        { return mustDuration(c.Safety.StaleAfter) }
func (c *Config) ScanInterval() time.Duration      { return mustDuration(c.Intervals.Scan) }
func (c *Config) MonitorInterval() time.Duration   { return mustDuration(c.Intervals.Monitor) }
func (c *Config) CleanupInterval() time.Duration   { return mustDuration(c.Intervals.Cleanup) }

func (c *Config) PatternAllowed(pattern string) bool {
	if len(c.Trading.AllowedPatterns) == 0 {
		return true
	}
	for _, p := range c.Trading.AllowedPatterns {
		if p == pattern {
			return true
		}
	}
	return false
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
