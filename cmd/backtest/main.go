package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"cta_runtime/internal/backtest"
	"cta_runtime/internal/config"
	"cta_runtime/internal/core"
	"cta_runtime/internal/engine"
	"cta_runtime/internal/oms"
	"cta_runtime/internal/strategy"
	"cta_runtime/pkg/logging"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/backtest.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("backtest version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadBacktestConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	bt := backtest.NewEngine(backtest.Config{
		StartingCash: decimal.NewFromFloat(cfg.StartingCash),
		AnnualDays:   cfg.AnnualDays,
		RiskFreeRate: cfg.RiskFreeRate,
	}, logger)

	for _, cc := range cfg.Contracts {
		bt.Accountant().SetContract(cc.Symbol, backtest.ContractParams{
			Size:       decimal.NewFromFloat(cc.Size),
			LongRate:   decimal.NewFromFloat(cc.CommissionRate),
			ShortRate:  decimal.NewFromFloat(cc.CommissionRate),
			MarginRate: decimal.NewFromFloat(cc.MarginRate),
		})
	}

	// the matcher publishes per-fill position deltas, so the book nets them
	store := oms.New(bt.Bus(), oms.PolicyNetting, logger)
	engine.New("backtest", bt.Bus(), bt.Gateway(), logger)

	for _, sc := range cfg.Strategies {
		interval, err := core.ParseInterval(sc.Interval)
		if err != nil {
			logger.Error("bad strategy interval", "strategy", sc.Name, "interval", sc.Interval)
			os.Exit(1)
		}
		policy := strategy.NewMacdCross(sc.Name, sc.Symbol, core.Exchange(sc.Exchange), interval, decimal.NewFromFloat(sc.Volume))
		if sc.Fast > 0 && sc.Slow > 0 && sc.Signal > 0 {
			policy.SetWindows(sc.Fast, sc.Slow, sc.Signal)
		}
		strategy.NewRunner(policy, bt.Bus(), store, logger)
	}

	series, err := backtest.LoadCSV(cfg.DataFile, core.Exchange(cfg.Exchange))
	if err != nil {
		logger.Error("data load failed", "file", cfg.DataFile, "error", err.Error())
		os.Exit(1)
	}
	logger.Info("data loaded", "file", cfg.DataFile, "series", len(series))

	result := bt.Run(series)

	stats := result.Statistics
	fmt.Printf("windows:        %d\n", len(result.Snapshots))
	fmt.Printf("total return:   %.4f\n", stats.TotalReturn)
	fmt.Printf("annual return:  %.4f\n", stats.AnnualReturn)
	fmt.Printf("sharpe:         %.4f\n", stats.Sharpe)
	fmt.Printf("max drawdown:   %.4f\n", stats.MaxDrawdown)
}
