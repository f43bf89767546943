package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradeagent/agent"
	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/logger"
	"github.com/rustyeddy/tradeagent/scheduler"
)

// Config represents the complete agent configuration
type Config struct {
	Signal   SignalConfig   `json:"signal" yaml:"signal"`
	Broker   BrokerConfig   `json:"broker" yaml:"broker"`
	Contract ContractConfig `json:"contract" yaml:"contract"`
	Agent    AgentConfig    `json:"agent" yaml:"agent"`
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`
	State    StateConfig    `json:"state" yaml:"state"`
	Inbox    InboxConfig    `json:"inbox" yaml:"inbox"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Log      LogConfig      `json:"log" yaml:"log"`
	HTTP     HTTPConfig     `json:"http" yaml:"http"`
	Paper    PaperConfig    `json:"paper" yaml:"paper"`
}

// SignalConfig points at the prediction service
type SignalConfig struct {
	URL      string `json:"url" yaml:"url"`
	Timeout  string `json:"timeout" yaml:"timeout"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	Backoff  string `json:"backoff" yaml:"backoff"`
}

// BrokerConfig selects the gateway and its call timeouts
type BrokerConfig struct {
	Type             string `json:"type" yaml:"type"` // "paper" or "bridge"
	URL              string `json:"url,omitempty" yaml:"url,omitempty"`
	ClientID         int    `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	HandshakeTimeout string `json:"handshake_timeout,omitempty" yaml:"handshake_timeout,omitempty"`
	Currency         string `json:"currency" yaml:"currency"`

	PositionsTimeout string `json:"positions_timeout" yaml:"positions_timeout"`
	AccountTimeout   string `json:"account_timeout" yaml:"account_timeout"`
	HistoryTimeout   string `json:"history_timeout" yaml:"history_timeout"`
	OrderTimeout     string `json:"order_timeout" yaml:"order_timeout"`
}

// ContractConfig is the default instrument
type ContractConfig struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	SecType  string `json:"sec_type" yaml:"sec_type"`
	Exchange string `json:"exchange" yaml:"exchange"`
	Currency string `json:"currency" yaml:"currency"`
}

// AgentConfig holds the decision logic settings
type AgentConfig struct {
	Mode            string       `json:"mode" yaml:"mode"` // "production" or "test"
	HistoryWindow   string       `json:"history_window" yaml:"history_window"`
	BarSize         string       `json:"bar_size" yaml:"bar_size"`
	MinBars         int          `json:"min_bars" yaml:"min_bars"`
	PricePrecision  int32        `json:"price_precision" yaml:"price_precision"`
	TestQuantity    float64      `json:"test_quantity" yaml:"test_quantity"`
	TestPriceFactor float64      `json:"test_price_factor" yaml:"test_price_factor"`
	Window          WindowConfig `json:"window" yaml:"window"`
}

// WindowConfig is the daily span in which test mode acts on an intent
type WindowConfig struct {
	Start    string `json:"start" yaml:"start"` // HH:MM
	Length   string `json:"length" yaml:"length"`
	Timezone string `json:"timezone" yaml:"timezone"`
}

// ScheduleConfig is the daily trigger
type ScheduleConfig struct {
	At          string `json:"at" yaml:"at"` // HH:MM
	Timezone    string `json:"timezone" yaml:"timezone"`
	RunOnStart  bool   `json:"run_on_start" yaml:"run_on_start"`
	WeekendsOff bool   `json:"weekends_off" yaml:"weekends_off"`
}

// StateConfig locates the trade state store
type StateConfig struct {
	Type string `json:"type" yaml:"type"` // "sqlite" or "memory"
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`
}

type InboxConfig struct {
	Path string `json:"path" yaml:"path"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "sqlite", "csv" or "none"
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	OrdersFile string `json:"orders_file,omitempty" yaml:"orders_file,omitempty"`
	FillsFile  string `json:"fills_file,omitempty" yaml:"fills_file,omitempty"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// PaperConfig seeds the in-process gateway
type PaperConfig struct {
	Balance  float64 `json:"balance" yaml:"balance"`
	BarsFile string  `json:"bars_file,omitempty" yaml:"bars_file,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML first, JSON fallback).
// Missing fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Signal.URL == "" {
		return fmt.Errorf("signal.url is required")
	}
	if c.Signal.Attempts < 1 {
		return fmt.Errorf("signal.attempts must be at least 1")
	}

	switch c.Broker.Type {
	case "paper":
		if c.Paper.Balance <= 0 {
			return fmt.Errorf("paper.balance must be positive")
		}
	case "bridge":
		if c.Broker.URL == "" {
			return fmt.Errorf("broker.url required for bridge type")
		}
	default:
		return fmt.Errorf("broker.type must be 'paper' or 'bridge'")
	}
	if c.Broker.Currency == "" {
		return fmt.Errorf("broker.currency is required")
	}

	if c.Contract.Symbol == "" {
		return fmt.Errorf("contract.symbol is required")
	}

	switch agent.Mode(c.Agent.Mode) {
	case agent.ModeProduction, agent.ModeTest:
	default:
		return fmt.Errorf("agent.mode must be 'production' or 'test'")
	}
	if c.Agent.MinBars < 1 {
		return fmt.Errorf("agent.min_bars must be at least 1")
	}
	if c.Agent.PricePrecision < 0 {
		return fmt.Errorf("agent.price_precision must not be negative")
	}
	if c.Agent.Mode == string(agent.ModeTest) {
		if c.Agent.TestQuantity <= 0 {
			return fmt.Errorf("agent.test_quantity must be positive")
		}
		if c.Agent.TestPriceFactor <= 0 {
			return fmt.Errorf("agent.test_price_factor must be positive")
		}
	}
	if _, err := c.Agent.Window.Market(); err != nil {
		return err
	}

	if _, err := c.Schedule.Daily(); err != nil {
		return err
	}

	switch c.State.Type {
	case "memory":
	case "sqlite":
		if c.State.Path == "" {
			return fmt.Errorf("state.path required for sqlite type")
		}
	default:
		return fmt.Errorf("state.type must be 'sqlite' or 'memory'")
	}

	if c.Inbox.Path == "" {
		return fmt.Errorf("inbox.path is required")
	}

	switch c.Journal.Type {
	case "none":
	case "csv":
		if c.Journal.OrdersFile == "" || c.Journal.FillsFile == "" {
			return fmt.Errorf("journal orders_file and fills_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'csv' or 'none'")
	}

	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr required when http is enabled")
	}

	for name, s := range map[string]string{
		"signal.timeout":           c.Signal.Timeout,
		"signal.backoff":           c.Signal.Backoff,
		"broker.handshake_timeout": c.Broker.HandshakeTimeout,
		"broker.positions_timeout": c.Broker.PositionsTimeout,
		"broker.account_timeout":   c.Broker.AccountTimeout,
		"broker.history_timeout":   c.Broker.HistoryTimeout,
		"broker.order_timeout":     c.Broker.OrderTimeout,
	} {
		if _, err := parseDuration(s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Signal: SignalConfig{
			URL:      "http://localhost:5000",
			Timeout:  "30s",
			Attempts: 3,
			Backoff:  "1s",
		},
		Broker: BrokerConfig{
			Type:             "paper",
			URL:              "ws://127.0.0.1:4001/ws",
			ClientID:         101,
			HandshakeTimeout: "10s",
			Currency:         "USD",
			PositionsTimeout: "5s",
			AccountTimeout:   "5s",
			HistoryTimeout:   "10s",
			OrderTimeout:     "5s",
		},
		Contract: ContractConfig{
			Symbol:   "SPY",
			SecType:  "STK",
			Exchange: "SMART",
			Currency: "USD",
		},
		Agent: AgentConfig{
			Mode:            string(agent.ModeProduction),
			HistoryWindow:   "90 D",
			BarSize:         "1 day",
			MinBars:         50,
			PricePrecision:  2,
			TestQuantity:    1,
			TestPriceFactor: 0.95,
			Window:          WindowConfig{Start: "15:30", Length: "1m", Timezone: "UTC"},
		},
		Schedule: ScheduleConfig{
			At:          "21:30",
			Timezone:    "UTC",
			RunOnStart:  true,
			WeekendsOff: true,
		},
		State: StateConfig{
			Type: "sqlite",
			Path: "./agent/state.db",
		},
		Inbox: InboxConfig{
			Path: "./agent/command.json",
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./agent/journal.db",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "./agent/trading_log.json",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    ":5001",
		},
		Paper: PaperConfig{
			Balance: 100000,
		},
	}
}

// ContractSpec converts the contract section
func (c ContractConfig) ContractSpec() broker.Contract {
	return broker.Contract{Symbol: c.Symbol, SecType: c.SecType, Exchange: c.Exchange, Currency: c.Currency}
}

// Market converts the window section
func (w WindowConfig) Market() (agent.MarketWindow, error) {
	out := agent.DefaultWindow()
	if w.Start != "" {
		h, m, err := scheduler.ParseClock(w.Start)
		if err != nil {
			return out, fmt.Errorf("agent.window.start: %w", err)
		}
		out.Hour, out.Minute = h, m
	}
	d, err := parseDuration(w.Length)
	if err != nil {
		return out, fmt.Errorf("agent.window.length: %w", err)
	}
	if d > 0 {
		out.Length = d
	}
	if w.Timezone != "" {
		loc, err := time.LoadLocation(w.Timezone)
		if err != nil {
			return out, fmt.Errorf("agent.window.timezone: %w", err)
		}
		out.Location = loc
	}
	return out, nil
}

// Daily builds the scheduler for the schedule section
func (s ScheduleConfig) Daily() (*scheduler.Daily, error) {
	d, err := scheduler.NewDaily(s.At, s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	d.RunImmediately = s.RunOnStart
	if !s.WeekendsOff {
		d.Weekdays = nil
	}
	return d, nil
}

// AgentOptions assembles the agent options from every section that feeds
// them. Call after Validate.
func (c *Config) AgentOptions() (agent.Options, error) {
	opts := agent.DefaultOptions()
	opts.Mode = agent.Mode(c.Agent.Mode)
	opts.Contract = c.Contract.ContractSpec()
	opts.HistoryWindow = c.Agent.HistoryWindow
	opts.BarSize = c.Agent.BarSize
	opts.MinBars = c.Agent.MinBars
	opts.Currency = c.Broker.Currency
	opts.PricePrecision = c.Agent.PricePrecision
	opts.TestQuantity = c.Agent.TestQuantity
	opts.TestPriceFactor = c.Agent.TestPriceFactor
	opts.SignalAttempts = c.Signal.Attempts

	w, err := c.Agent.Window.Market()
	if err != nil {
		return opts, err
	}
	opts.Window = w

	for _, f := range []struct {
		s   string
		dst *time.Duration
	}{
		{c.Broker.PositionsTimeout, &opts.PositionsTimeout},
		{c.Broker.AccountTimeout, &opts.AccountTimeout},
		{c.Broker.HistoryTimeout, &opts.HistoryTimeout},
		{c.Broker.OrderTimeout, &opts.OrderTimeout},
		{c.Signal.Timeout, &opts.SignalTimeout},
		{c.Signal.Backoff, &opts.SignalBackoff},
	} {
		d, err := parseDuration(f.s)
		if err != nil {
			return opts, err
		}
		if d > 0 {
			*f.dst = d
		}
	}
	return opts, nil
}

// LoggerOptions converts the log section
func (l LogConfig) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      l.Level,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

// Duration parses a duration field; empty means zero.
func Duration(s string) (time.Duration, error) { return parseDuration(s) }

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
