package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const engineYAML = `
name: mhi_a
log:
  level: INFO
broker:
  host: 127.0.0.1
  port: 11111
  unlock_password: ${TEST_UNLOCK_PW}
zmq:
  pub_addr: tcp://127.0.0.1:5555
  cmd_addr: tcp://127.0.0.1:5556
symbols:
  - MHI2507.HKFE
contracts:
  - symbol: MHI2507
    exchange: HKFE
    size: 10
    commission_rate: 0.0001
    margin_rate: 0.1
`

func TestLoadEngineConfig(t *testing.T) {
	t.Setenv("TEST_UNLOCK_PW", "s3cret")
	path := writeConfig(t, engineYAML)

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mhi_a", cfg.Name)
	assert.Equal(t, 11111, cfg.Broker.Port)
	// env var expanded into the secret
	assert.Equal(t, Secret("s3cret"), cfg.Broker.UnlockPassword)
	// defaults filled
	assert.Equal(t, "logs", cfg.Log.Dir)
	require.Len(t, cfg.Contracts, 1)
	assert.Equal(t, 10.0, cfg.Contracts[0].Size)
}

func TestEngineConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
		field  string
	}{
		{"missing name", func(c *EngineConfig) { c.Name = "" }, "name"},
		{"missing broker host", func(c *EngineConfig) { c.Broker.Host = "" }, "broker.host"},
		{"bad broker port", func(c *EngineConfig) { c.Broker.Port = 0 }, "broker.port"},
		{"missing pub addr", func(c *EngineConfig) { c.Zmq.PubAddr = "" }, "zmq.pub_addr"},
		{"missing cmd addr", func(c *EngineConfig) { c.Zmq.CmdAddr = "" }, "zmq.cmd_addr"},
		{"no symbols", func(c *EngineConfig) { c.Symbols = nil }, "symbols"},
		{"bad contract size", func(c *EngineConfig) { c.Contracts[0].Size = 0 }, "contracts[0].size"},
		{"bad margin rate", func(c *EngineConfig) { c.Contracts[0].MarginRate = 1.5 }, "contracts[0].margin_rate"},
		{"bad strategy volume", func(c *EngineConfig) { c.Strategies[0].Volume = 0 }, "strategies[0].volume"},
		{"missing strategy symbol", func(c *EngineConfig) { c.Strategies[0].Symbol = "" }, "strategies[0].symbol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &EngineConfig{
				Name:    "mhi_a",
				Broker:  BrokerConfig{Host: "127.0.0.1", Port: 11111},
				Zmq:     ZmqConfig{PubAddr: "tcp://127.0.0.1:5555", CmdAddr: "tcp://127.0.0.1:5556"},
				Symbols: []string{"MHI2507.HKFE"},
				Contracts: []ContractConfig{
					{Symbol: "MHI2507", Exchange: "HKFE", Size: 10, CommissionRate: 0.0001, MarginRate: 0.1},
				},
				Strategies: []StrategyConfig{
					{Name: "macd", Symbol: "MHI2507", Exchange: "HKFE", Interval: "1m", Volume: 1},
				},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLoadHubConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
jwt_secret: topsecret
users_db: users.db
engine_feeds:
  - tcp://127.0.0.1:5555
cmd_bind_addr: tcp://127.0.0.1:5560
`)

	cfg, err := LoadHubConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "INFO", cfg.Log.Level)
}

func TestHubConfigRequiresSecret(t *testing.T) {
	cfg := &HubConfig{
		UsersDB:     "users.db",
		EngineFeeds: []string{"tcp://127.0.0.1:5555"},
		CmdBindAddr: "tcp://127.0.0.1:5560",
	}
	err := cfg.Validate()
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "jwt_secret", verr.Field)
}

func TestLoadBacktestConfig(t *testing.T) {
	path := writeConfig(t, `
data_file: bars.csv
exchange: HKFE
starting_cash: 1000000
contracts:
  - symbol: MHI2507
    exchange: HKFE
    size: 10
    commission_rate: 0.0001
    margin_rate: 0.1
strategies:
  - name: macd
    symbol: MHI2507
    exchange: HKFE
    volume: 1
`)

	cfg, err := LoadBacktestConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 240, cfg.AnnualDays)
	assert.Equal(t, 1000000.0, cfg.StartingCash)
	assert.Equal(t, "HKFE", cfg.Exchange)
	require.Len(t, cfg.Strategies, 1)
	// interval defaulted during validation
	assert.Equal(t, "1m", cfg.Strategies[0].Interval)
}

func TestBacktestConfigRejectsBadStrategy(t *testing.T) {
	cfg := &BacktestConfig{
		DataFile:     "bars.csv",
		StartingCash: 1000000,
		Contracts: []ContractConfig{
			{Symbol: "MHI2507", Size: 10},
		},
		Strategies: []StrategyConfig{
			{Name: "macd", Symbol: "MHI2507", Volume: 0},
		},
	}
	err := cfg.Validate()
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "strategies[0].volume", verr.Field)
}

func TestBacktestConfigRejectsBadLogLevel(t *testing.T) {
	cfg := &BacktestConfig{
		Log:          LogConfig{Level: "VERBOSE"},
		DataFile:     "bars.csv",
		StartingCash: 1000000,
		Contracts: []ContractConfig{
			{Symbol: "MHI2507", Size: 10},
		},
	}
	err := cfg.Validate()
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "log.level", verr.Field)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadEngineConfig("/does/not/exist.yaml")
	assert.Error(t, err)
}
