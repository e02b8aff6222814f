// orbitd is the ORBIT ambient agent daemon: it watches desktop context,
// proposes assistance through the local Ollama server (or a scripted
// fallback), gates proposals through cooldowns and spam limits, and serves
// the widget UI over a local websocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"orbit/internal/behavior"
	"orbit/internal/config"
	"orbit/internal/contexthub"
	"orbit/internal/decision"
	"orbit/internal/intent"
	"orbit/internal/ipc"
	"orbit/internal/monitor"
	"orbit/internal/orchestrator"
	"orbit/internal/store"
)

const version = "0.2.0"

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "orbitd",
	Short: "ORBIT - ambient desktop assistant daemon",
	Long: `ORBIT watches your desktop context (active window, idle time, file
activity), decides when a gentle offer of help is worth your attention,
and talks to the Luna widget over a local websocket.

It never interrupts without passing the decision gate: confidence
threshold, cooldowns, and a popups-per-hour budget.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runDaemon,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the orbitd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("orbitd %s\n", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default orbit.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "orbit.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(versionCmd, initCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Info("starting orbitd",
		zap.String("version", version),
		zap.String("ai_mode", cfg.AIMode),
		zap.String("watch_path", cfg.WatchPath),
		zap.String("ipc_addr", cfg.IPC.Addr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Monitors. Window and idle lookups are platform adapters; until the
	// native hooks land, the static fakes keep the pipeline running.
	watcher, err := monitor.NewFileWatcher(cfg.WatchPath, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Start(true); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer watcher.Stop()

	windows := &monitor.StaticWindowMonitor{}
	idle := &monitor.StaticIdleDetector{}
	hub := contexthub.New(windows, idle, watcher, logger)

	// Intent proposer.
	mode := intent.ParseMode(cfg.AIMode)
	var ollama *intent.OllamaClient
	if mode != intent.ModeDummy {
		ollama = intent.NewOllamaClient(cfg.OllamaURL, cfg.AIModel, 5*time.Second, logger)
		if !ollama.CheckHealth(ctx) {
			logger.Warn("ollama not reachable at startup, will retry")
		}
	}
	pool := intent.NewVarietyPool(cfg.Decision.MinMessageIntervalDuration())
	brain := intent.NewBrain(mode, ollama, pool, logger)

	// Decision gate.
	engine := decision.NewEngine(decision.Config{
		ConfidenceMinimum: cfg.Decision.ConfidenceMinimum,
		PerKindCooldown:   cfg.Decision.PerKindCooldownDuration(),
		GlobalCooldown:    cfg.Decision.GlobalCooldownDuration(),
		DismissCooldown:   cfg.Decision.DismissCooldownDuration(),
		MaxPopupsPerHour:  cfg.Decision.MaxPopupsPerHour,
		SameKindWindow:    cfg.Decision.SameKindWindowDuration(),
	}, logger)

	controller := behavior.NewController(behavior.New(logger), logger)

	// Event log.
	eventLog, err := store.NewEventStore(cfg.Store.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer eventLog.Close()

	// UI bridge.
	wsHub := ipc.NewHub(logger)
	server := ipc.NewServer(cfg.IPC.Addr, wsHub, logger)

	orch := orchestrator.New(cfg.Tick(), orchestrator.Deps{
		Context:    hub,
		Brain:      brain,
		Engine:     engine,
		Controller: controller,
		Store:      eventLog,
		Broadcast:  wsHub,
		Actions:    wsHub.Actions(),
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		err := orch.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		eventLog.RunRetention(gctx, time.Hour, cfg.Store.RetentionDays)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("orbitd stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
