// Package config handles application configuration.
//
// Configuration is read once at startup from a YAML file plus environment
// overrides for credentials, and is treated as immutable for the life of the
// process. Validation failures are fatal: a misconfigured risk parameter must
// never be silently defaulted.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines the structure for all application configuration.
type Config struct {
	Symbols   []string `yaml:"symbols"`
	Timeframe string   `yaml:"timeframe"`
	LogLevel  string   `yaml:"-"` // Loaded from env, defaults to "info"
	Silent    bool     `yaml:"silent"`

	Risk     RiskConf     `yaml:"risk"`
	Label    LabelConf    `yaml:"label"`
	Feed     FeedConf     `yaml:"feed"`
	Retry    RetryConf    `yaml:"retry"`
	Exchange ExchangeConf `yaml:"exchange"`
	Database DatabaseConf `yaml:"database"`
}

// RiskConf holds the stop parameters shared by the live controller and the
// offline simulator. The ATR multipliers and holding horizons are keyed by
// timeframe and are global across symbols.
type RiskConf struct {
	FixedStopATRMult    map[string]float64 `yaml:"fixed_stop_atr_mult"`
	TrailingATRMult     map[string]float64 `yaml:"trailing_atr_mult"`
	MaxBars             map[string]int     `yaml:"max_bars"`
	ActivationTrigger   float64            `yaml:"activation_trigger"`
	UpdateIntervalSecs  int                `yaml:"update_interval_seconds"`
	SuppressionFraction float64            `yaml:"suppression_fraction"`
	SyncIntervalSecs    int                `yaml:"sync_interval_seconds"`
	EWMALambda          float64            `yaml:"ewma_lambda"`
}

// LabelConf holds the offline label-generation constants.
type LabelConf struct {
	ATRPeriod  int     `yaml:"atr_period"`
	HoldLambda float64 `yaml:"hold_lambda"`
	Cost       float64 `yaml:"cost"`
	OutputCSV  string  `yaml:"output_csv"`
	CandleDir  string  `yaml:"candle_dir"`
}

// FeedConf configures the mark-price websocket feed.
type FeedConf struct {
	URL string `yaml:"url"`
}

// RetryConf is the explicit retry policy for exchange calls.
type RetryConf struct {
	MaxAttempts  int `yaml:"max_attempts"`
	BaseDelayMs  int `yaml:"base_delay_ms"`
	MaxDelayMs   int `yaml:"max_delay_ms"`
	CallTimeoutS int `yaml:"call_timeout_seconds"`
}

// ExchangeConf holds exchange connectivity settings. Credentials come from the
// environment, never from the YAML file.
type ExchangeConf struct {
	APIKey    string             `yaml:"-"`
	APISecret string             `yaml:"-"`
	Testnet   bool               `yaml:"testnet"`
	TickSize  map[string]float64 `yaml:"tick_size"`
}

// DatabaseConf holds TimescaleDB settings for label persistence.
type DatabaseConf struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`

	BatchSize            int `yaml:"batch_size"`
	WriteIntervalSeconds int `yaml:"write_interval_seconds"`
}

// DSN builds a lib/pq style connection string.
func (d DatabaseConf) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// UpdateInterval returns the controller tick interval.
func (r RiskConf) UpdateInterval() time.Duration {
	return time.Duration(r.UpdateIntervalSecs) * time.Second
}

// SyncInterval returns the synchronizer tick interval.
func (r RiskConf) SyncInterval() time.Duration {
	return time.Duration(r.SyncIntervalSecs) * time.Second
}

// LoadConfig loads configuration from the specified YAML file path and
// environment variables, then validates it.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Sensitive data and overrides come from the environment.
	if apiKey := os.Getenv("BINANCE_API_KEY"); apiKey != "" {
		cfg.Exchange.APIKey = apiKey
	}
	if apiSecret := os.Getenv("BINANCE_API_SECRET"); apiSecret != "" {
		cfg.Exchange.APISecret = apiSecret
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every risk-relevant parameter. A zero or negative value here
// would either disable protection or make the ratchet math meaningless, so all
// of these are startup-fatal.
func (c *Config) Validate() error {
	if c.Timeframe == "" {
		return fmt.Errorf("config: timeframe must be set")
	}
	if _, ok := c.Risk.FixedStopATRMult[c.Timeframe]; !ok {
		return fmt.Errorf("config: risk.fixed_stop_atr_mult has no entry for timeframe %q", c.Timeframe)
	}
	if _, ok := c.Risk.TrailingATRMult[c.Timeframe]; !ok {
		return fmt.Errorf("config: risk.trailing_atr_mult has no entry for timeframe %q", c.Timeframe)
	}
	if _, ok := c.Risk.MaxBars[c.Timeframe]; !ok {
		return fmt.Errorf("config: risk.max_bars has no entry for timeframe %q", c.Timeframe)
	}
	for tf, v := range c.Risk.FixedStopATRMult {
		if v <= 0 {
			return fmt.Errorf("config: risk.fixed_stop_atr_mult[%s] must be positive, got %v", tf, v)
		}
	}
	for tf, v := range c.Risk.TrailingATRMult {
		if v <= 0 {
			return fmt.Errorf("config: risk.trailing_atr_mult[%s] must be positive, got %v", tf, v)
		}
	}
	for tf, v := range c.Risk.MaxBars {
		if v <= 0 {
			return fmt.Errorf("config: risk.max_bars[%s] must be positive, got %v", tf, v)
		}
	}
	if c.Risk.ActivationTrigger <= 0 {
		return fmt.Errorf("config: risk.activation_trigger must be positive, got %v", c.Risk.ActivationTrigger)
	}
	if c.Risk.UpdateIntervalSecs <= 0 {
		return fmt.Errorf("config: risk.update_interval_seconds must be positive, got %v", c.Risk.UpdateIntervalSecs)
	}
	if c.Risk.SuppressionFraction < 0 {
		return fmt.Errorf("config: risk.suppression_fraction must not be negative, got %v", c.Risk.SuppressionFraction)
	}
	if c.Risk.SyncIntervalSecs <= 0 {
		return fmt.Errorf("config: risk.sync_interval_seconds must be positive, got %v", c.Risk.SyncIntervalSecs)
	}
	if c.Risk.EWMALambda <= 0 || c.Risk.EWMALambda >= 1 {
		return fmt.Errorf("config: risk.ewma_lambda must be in (0,1), got %v", c.Risk.EWMALambda)
	}
	if c.Label.ATRPeriod <= 0 {
		return fmt.Errorf("config: label.atr_period must be positive, got %v", c.Label.ATRPeriod)
	}
	if c.Label.HoldLambda < 0 {
		return fmt.Errorf("config: label.hold_lambda must not be negative, got %v", c.Label.HoldLambda)
	}
	if c.Label.Cost < 0 {
		return fmt.Errorf("config: label.cost must not be negative, got %v", c.Label.Cost)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("config: retry.max_attempts must be positive, got %v", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelayMs <= 0 {
		return fmt.Errorf("config: retry.base_delay_ms must be positive, got %v", c.Retry.BaseDelayMs)
	}
	if c.Retry.CallTimeoutS <= 0 {
		return fmt.Errorf("config: retry.call_timeout_seconds must be positive, got %v", c.Retry.CallTimeoutS)
	}
	return nil
}
