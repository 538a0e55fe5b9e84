package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/huddle/external/audio"
	conferenceimpl "github.com/foxseedlab/huddle/external/conference"
	configloader "github.com/foxseedlab/huddle/external/config"
	repositoryimpl "github.com/foxseedlab/huddle/external/repository"
	transcriberimpl "github.com/foxseedlab/huddle/external/transcriber"
	webhookimpl "github.com/foxseedlab/huddle/external/webhook"
	"github.com/foxseedlab/huddle/internal/conference"
	"github.com/foxseedlab/huddle/internal/config"
	"github.com/foxseedlab/huddle/internal/console"
	"github.com/foxseedlab/huddle/internal/session"
	"github.com/samber/do/v2"
)

const (
	joinTimeout        = 20 * time.Second
	leaveTimeout       = 10 * time.Second
	archiveWaitTimeout = 30 * time.Second
)

var _ console.Controller = (*session.Coordinator)(nil)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: joining session", "session_name", cfg.SessionName)
	run(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	conferenceimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) {
	client, err := do.Invoke[conference.Client](injector)
	if err != nil {
		slog.Error("failed to resolve conference client", "error", err)
		os.Exit(1)
	}
	coordinator, err := do.Invoke[*session.Coordinator](injector)
	if err != nil {
		slog.Error("failed to resolve session coordinator", "error", err)
		os.Exit(1)
	}
	archiver, err := do.Invoke[*session.Archiver](injector)
	if err != nil {
		slog.Error("failed to resolve session archiver", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Error("conference close failed", "error", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), archiveWaitTimeout)
		defer cancel()
		if err := archiver.Wait(ctx); err != nil {
			slog.Warn("archive did not finish before exit", "error", err)
		}
	}()

	ended := watchSessionEnd(coordinator)
	coordinator.Subscribe(console.NewNotifier(slog.Default()).OnState)
	client.RegisterEventHandler(coordinator.HandleEvent)
	if err := coordinator.Configure(session.SettingsFromConfig(cfg)); err != nil {
		slog.Error("failed to configure session", "error", err)
		os.Exit(1)
	}

	joinCtx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	err = coordinator.Join(joinCtx)
	cancel()
	if err != nil {
		slog.Error("join failed", "error", err)
		return
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() {
		if err := console.New(coordinator).Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("console stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-ended:
		slog.Info("session ended")
		return
	}

	leaveCtx, cancelLeave := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancelLeave()
	coordinator.Leave(leaveCtx, false)
	select {
	case <-ended:
	case <-leaveCtx.Done():
		slog.Warn("timed out waiting for session to end")
	}
}

// watchSessionEnd returns a channel closed once a joined session is left.
func watchSessionEnd(coordinator *session.Coordinator) <-chan struct{} {
	ended := make(chan struct{})
	var once sync.Once
	var wasJoined bool
	var mu sync.Mutex
	coordinator.Subscribe(func(s session.State) {
		mu.Lock()
		defer mu.Unlock()
		if s.Joined {
			wasJoined = true
			return
		}
		if wasJoined {
			once.Do(func() { close(ended) })
		}
	})
	return ended
}
