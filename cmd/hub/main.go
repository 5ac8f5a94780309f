package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"cta_runtime/internal/config"
	"cta_runtime/internal/hub"
	"cta_runtime/pkg/logging"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/hub.yaml", "Path to configuration file")
	addUser := flag.String("add-user", "", "Add a user (username:password) and exit")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hub version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadHubConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFileLogger(cfg.Log.Level, cfg.Log.Dir, "hub")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	users, err := hub.OpenUserStore(cfg.UsersDB)
	if err != nil {
		logger.Error("user store setup failed", "error", err.Error())
		os.Exit(1)
	}
	defer users.Close()

	if *addUser != "" {
		if err := addUserAndExit(users, *addUser); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to add user: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("user added")
		return
	}

	logger.Info("starting hub", "version", version, "listen_addr", cfg.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.NewHub(logger)
	h.Start()
	defer h.Stop()

	feed, err := hub.NewZmqEngineFeed(ctx, cfg.EngineFeeds, logger)
	if err != nil {
		logger.Error("engine feed setup failed", "error", err.Error())
		os.Exit(1)
	}
	defer feed.Close()

	commands, err := hub.NewZmqCommandPublisher(ctx, cfg.CmdBindAddr)
	if err != nil {
		logger.Error("command publisher setup failed", "error", err.Error())
		os.Exit(1)
	}
	defer commands.Close()

	server := hub.NewServer(h, users, hub.NewTokenIssuer(string(cfg.JwtSecret)), commands, logger)
	bridge := hub.NewBridge(h, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, cfg.ListenAddr)
	})
	g.Go(func() error {
		bridge.Run(feed)
		return nil
	})
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("hub exited with error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("hub stopped")
}

func addUserAndExit(users *hub.UserStore, spec string) error {
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			return users.AddUser(spec[:i], spec[i+1:])
		}
	}
	return fmt.Errorf("expected username:password, got %q", spec)
}
