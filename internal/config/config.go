// Package config loads and validates the per-process YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError names the offending field alongside the reason.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LogConfig is shared by every process.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

func (c *LogConfig) validate() error {
	validLevels := []string{"DEBUG", "INFO", "WARNING", "ERROR"}
	if c.Level == "" {
		c.Level = "INFO"
	}
	if !contains(validLevels, strings.ToUpper(c.Level)) {
		return ValidationError{
			Field:   "log.level",
			Value:   c.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	if c.Dir == "" {
		c.Dir = "logs"
	}
	return nil
}

// BrokerConfig points the live gateway at its venue client.
type BrokerConfig struct {
	Kind           string `yaml:"kind"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	UnlockPassword Secret `yaml:"unlock_password"`
}

// StrategyConfig describes one policy instance to run.
type StrategyConfig struct {
	Name     string  `yaml:"name"`
	Symbol   string  `yaml:"symbol"`
	Exchange string  `yaml:"exchange"`
	Interval string  `yaml:"interval"`
	Volume   float64 `yaml:"volume"`
	Fast     int     `yaml:"fast"`
	Slow     int     `yaml:"slow"`
	Signal   int     `yaml:"signal"`
}

func (c *StrategyConfig) validate(field string) error {
	if c.Name == "" {
		return ValidationError{Field: field + ".name", Message: "strategy name is required"}
	}
	if c.Symbol == "" {
		return ValidationError{Field: field + ".symbol", Message: "symbol is required"}
	}
	if c.Volume <= 0 {
		return ValidationError{Field: field + ".volume", Value: c.Volume, Message: "volume must be positive"}
	}
	if c.Interval == "" {
		c.Interval = "1m"
	}
	return nil
}

// ContractConfig carries the per-contract parameters the accountant and
// matcher need.
type ContractConfig struct {
	Symbol         string  `yaml:"symbol"`
	Exchange       string  `yaml:"exchange"`
	Size           float64 `yaml:"size"`
	CommissionRate float64 `yaml:"commission_rate"`
	MarginRate     float64 `yaml:"margin_rate"`
}

func (c *ContractConfig) validate(field string) error {
	if c.Symbol == "" {
		return ValidationError{Field: field + ".symbol", Message: "symbol is required"}
	}
	if c.Size <= 0 {
		return ValidationError{Field: field + ".size", Value: c.Size, Message: "contract size must be positive"}
	}
	if c.CommissionRate < 0 {
		return ValidationError{Field: field + ".commission_rate", Value: c.CommissionRate, Message: "commission rate cannot be negative"}
	}
	if c.MarginRate < 0 || c.MarginRate > 1 {
		return ValidationError{Field: field + ".margin_rate", Value: c.MarginRate, Message: "margin rate must be within [0, 1]"}
	}
	return nil
}

// ZmqConfig holds the adapter's socket addresses.
type ZmqConfig struct {
	PubAddr string `yaml:"pub_addr"`
	CmdAddr string `yaml:"cmd_addr"`
}

// EngineConfig configures one live engine process.
type EngineConfig struct {
	Name       string           `yaml:"name"`
	Log        LogConfig        `yaml:"log"`
	Broker     BrokerConfig     `yaml:"broker"`
	Zmq        ZmqConfig        `yaml:"zmq"`
	Contracts  []ContractConfig `yaml:"contracts"`
	Symbols    []string         `yaml:"symbols"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// Validate checks the engine configuration and fills defaults.
func (c *EngineConfig) Validate() error {
	if c.Name == "" {
		return ValidationError{Field: "name", Message: "engine name is required"}
	}
	if err := c.Log.validate(); err != nil {
		return err
	}
	if c.Broker.Host == "" {
		return ValidationError{Field: "broker.host", Message: "broker host is required"}
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return ValidationError{Field: "broker.port", Value: c.Broker.Port, Message: "broker port must be within (0, 65535]"}
	}
	if c.Zmq.PubAddr == "" {
		return ValidationError{Field: "zmq.pub_addr", Message: "publish address is required"}
	}
	if c.Zmq.CmdAddr == "" {
		return ValidationError{Field: "zmq.cmd_addr", Message: "command address is required"}
	}
	if len(c.Symbols) == 0 {
		return ValidationError{Field: "symbols", Message: "at least one symbol is required"}
	}
	for i := range c.Contracts {
		if err := c.Contracts[i].validate(fmt.Sprintf("contracts[%d]", i)); err != nil {
			return err
		}
	}
	for i := range c.Strategies {
		if err := c.Strategies[i].validate(fmt.Sprintf("strategies[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// HubConfig configures the hub process.
type HubConfig struct {
	ListenAddr  string    `yaml:"listen_addr"`
	Log         LogConfig `yaml:"log"`
	JwtSecret   Secret    `yaml:"jwt_secret"`
	UsersDB     string    `yaml:"users_db"`
	EngineFeeds []string  `yaml:"engine_feeds"`
	CmdBindAddr string    `yaml:"cmd_bind_addr"`
}

// Validate checks the hub configuration and fills defaults.
func (c *HubConfig) Validate() error {
	if err := c.Log.validate(); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.JwtSecret == "" {
		return ValidationError{Field: "jwt_secret", Message: "JWT secret is required"}
	}
	if c.UsersDB == "" {
		return ValidationError{Field: "users_db", Message: "users database path is required"}
	}
	if len(c.EngineFeeds) == 0 {
		return ValidationError{Field: "engine_feeds", Message: "at least one engine feed address is required"}
	}
	if c.CmdBindAddr == "" {
		return ValidationError{Field: "cmd_bind_addr", Message: "command bind address is required"}
	}
	return nil
}

// BacktestConfig configures a backtest run.
type BacktestConfig struct {
	Log          LogConfig        `yaml:"log"`
	DataFile     string           `yaml:"data_file"`
	Exchange     string           `yaml:"exchange"`
	StartingCash float64          `yaml:"starting_cash"`
	AnnualDays   int              `yaml:"annual_days"`
	RiskFreeRate float64          `yaml:"risk_free_rate"`
	Contracts    []ContractConfig `yaml:"contracts"`
	Strategies   []StrategyConfig `yaml:"strategies"`
}

// Validate checks the backtest configuration and fills defaults.
func (c *BacktestConfig) Validate() error {
	if err := c.Log.validate(); err != nil {
		return err
	}
	if c.DataFile == "" {
		return ValidationError{Field: "data_file", Message: "data file is required"}
	}
	if c.StartingCash <= 0 {
		return ValidationError{Field: "starting_cash", Value: c.StartingCash, Message: "starting cash must be positive"}
	}
	if c.AnnualDays <= 0 {
		c.AnnualDays = 240
	}
	if len(c.Contracts) == 0 {
		return ValidationError{Field: "contracts", Message: "at least one contract is required"}
	}
	for i := range c.Contracts {
		if err := c.Contracts[i].validate(fmt.Sprintf("contracts[%d]", i)); err != nil {
			return err
		}
	}
	for i := range c.Strategies {
		if err := c.Strategies[i].validate(fmt.Sprintf("strategies[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// LoadEngineConfig reads, expands and validates an engine config file.
func LoadEngineConfig(filename string) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := load(filename, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadHubConfig reads, expands and validates a hub config file.
func LoadHubConfig(filename string) (*HubConfig, error) {
	var cfg HubConfig
	if err := load(filename, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadBacktestConfig reads, expands and validates a backtest config file.
func LoadBacktestConfig(filename string) (*BacktestConfig, error) {
	var cfg BacktestConfig
	if err := load(filename, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// load reads a YAML file with environment variable expansion.
func load(filename string, out any) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), os.Getenv)
	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
