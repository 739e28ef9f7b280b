package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/fairweather/internal/scheduler"
	"github.com/user/fairweather/internal/telegram"
	"github.com/user/fairweather/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot, webhook server and briefing scheduler",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "fairweather.pid")
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	pid, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pid)

	a.gateway.Start(ctx)
	defer a.gateway.Stop()

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, a.gateway)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		a.delivery.Register(telegram.Source, adapter.Deliver)
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	sched := scheduler.New(a.briefings,
		scheduler.AskAndDeliver(a.gateway, a.delivery, a.briefingTimeout()),
		scheduler.WithLocation(cfg.Location()),
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()
	slog.Info("scheduler started", "briefings", sched.Entries())

	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		srv := webhook.NewServer(a.gateway, a.briefings,
			webhook.WithTranscript(a.transcript),
			webhook.WithDelivery(a.delivery),
		)
		httpServer = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("webhook server error", "error", err)
				cancel()
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return shutdown(httpServer)
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				if err := sched.Reload(); err != nil {
					slog.Error("reload briefings failed", "error", err)
				} else {
					slog.Info("briefings reloaded", "briefings", sched.Entries())
				}
				continue
			}
			slog.Info("shutting down", "signal", sig)
			return shutdown(httpServer)
		}
	}
}

func shutdown(srv *http.Server) error {
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
