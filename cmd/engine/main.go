package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"cta_runtime/internal/adapter"
	"cta_runtime/internal/config"
	"cta_runtime/internal/core"
	"cta_runtime/internal/engine"
	"cta_runtime/internal/event"
	"cta_runtime/internal/gateway/live"
	"cta_runtime/internal/oms"
	"cta_runtime/internal/rollover"
	"cta_runtime/internal/strategy"
	"cta_runtime/pkg/logging"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/engine.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("engine version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadEngineConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFileLogger(cfg.Log.Level, cfg.Log.Dir, cfg.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting engine", "name", cfg.Name, "version", version, "symbols", cfg.Symbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// one worker drains the bus; everything downstream registers on it
	bus := event.NewAsyncBus(logger, event.WithTimer(time.Second))
	// the gateway reports fills as position deltas, so the book nets them
	store := oms.New(bus, oms.PolicyNetting, logger)

	broker, err := newBroker(cfg)
	if err != nil {
		logger.Error("broker setup failed", "error", err.Error())
		os.Exit(1)
	}
	gateway := live.New(cfg.Name, bus, broker, logger)
	engine.New(cfg.Name, bus, gateway, logger)
	rollover.New(bus, store, logger)

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
		strategy.NewRunner(policy, bus, store, logger)
		logger.Info("strategy registered", "name", sc.Name, "symbol", sc.Symbol)
	}

	pub, err := adapter.NewZmqPublisher(ctx, cfg.Zmq.PubAddr)
	if err != nil {
		logger.Error("publisher setup failed", "error", err.Error())
		os.Exit(1)
	}
	defer pub.Close()

	a := adapter.New(cfg.Name, bus, store, pub, logger, adapter.WithLogDir(cfg.Log.Dir))

	recv, err := adapter.NewZmqReceiver(ctx, cfg.Zmq.CmdAddr, a.CommandTopics(), logger)
	if err != nil {
		logger.Error("command socket setup failed", "error", err.Error())
		os.Exit(1)
	}
	defer recv.Close()

	bus.Start()
	a.Start()
	go a.RunCommandLoop(recv)

	if err := gateway.Connect(ctx); err != nil {
		logger.Error("broker connect failed", "error", err.Error())
		os.Exit(1)
	}
	if err := gateway.Subscribe(cfg.Symbols); err != nil {
		logger.Error("subscribe failed", "error", err.Error())
		os.Exit(1)
	}

	logger.Info("engine is running", "pub_addr", cfg.Zmq.PubAddr, "cmd_addr", cfg.Zmq.CmdAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	logger.Info("received shutdown signal")

	cancel()
	a.Stop()
	bus.Stop()
	broker.Close()
	logger.Info("engine stopped")
}

// newBroker builds the venue client. Only the built-in paper broker ships
// with this binary; venue connectors implement live.BrokerClient.
func newBroker(cfg *config.EngineConfig) (live.BrokerClient, error) {
	switch cfg.Broker.Kind {
	case "", "mock":
		return live.NewSimBroker(), nil
	default:
		return nil, fmt.Errorf("unsupported broker kind: %s", cfg.Broker.Kind)
	}
}
