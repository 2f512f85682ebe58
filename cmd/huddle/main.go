package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/huddle/internal/assets"
	"github.com/dukerupert/huddle/internal/auth"
	"github.com/dukerupert/huddle/internal/calendar"
	"github.com/dukerupert/huddle/internal/config"
	"github.com/dukerupert/huddle/internal/connectivity"
	"github.com/dukerupert/huddle/internal/controller"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/loader"
	"github.com/dukerupert/huddle/internal/logging"
	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/proposal"
	"github.com/dukerupert/huddle/internal/remote"
	"github.com/dukerupert/huddle/internal/remotesync"
	"github.com/dukerupert/huddle/internal/server"
	"github.com/dukerupert/huddle/internal/store"
	"github.com/dukerupert/huddle/internal/websocket"
)

func main() {
	configPath := flag.String("config", os.Getenv("HUDDLE_CONFIG"), "path to a TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "huddle: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Config warnings go to a bootstrap logger until the configured one exists.
	cfg, err := config.Load(configPath, slog.Default())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	mirror := store.NewMirror(db)

	fallbackToken := cfg.Remote.Token
	rs := remote.NewHTTPStore(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.Remote.Timeout.Duration,
		Token: func(ctx context.Context) string {
			if tok := auth.Token(ctx); tok != "" {
				return tok
			}
			return fallbackToken
		},
	})

	httpFetcher := assets.NewHTTPFetcher(cfg.Assets.Timeout.Duration)
	fetchers := assets.Router{"http": httpFetcher, "https": httpFetcher}
	s3cfg := assets.S3Config{
		Endpoint:  cfg.Assets.S3.Endpoint,
		Bucket:    cfg.Assets.S3.Bucket,
		Region:    cfg.Assets.S3.Region,
		AccessKey: cfg.Assets.S3.AccessKey,
		SecretKey: cfg.Assets.S3.SecretKey,
	}
	if s3cfg.Enabled() {
		fetchers["s3"] = assets.NewS3Fetcher(s3cfg)
		logger.Info("s3 image source enabled", "endpoint", s3cfg.Endpoint, "bucket", s3cfg.Bucket)
	}
	images := assets.NewCache(mirror, fetchers, m, logger.With("component", "assets"))
	defer images.Close()

	syncer := remotesync.New(remotesync.Config{
		Store:      rs,
		Mirror:     mirror,
		Images:     images,
		Metrics:    m,
		Logger:     logger.With("component", "sync"),
		FetchLimit: cfg.Remote.FetchLimit,
	})

	monitor := connectivity.NewMonitor(connectivity.Config{
		ProbeURL: cfg.Connectivity.ProbeURL,
		Interval: cfg.Connectivity.Interval.Duration,
		Initial:  true,
	}, m, logger.With("component", "connectivity"))
	monitor.Start(ctx)
	defer monitor.Stop()

	l := loader.New(loader.Config{
		Connectivity: monitor,
		Syncer:       syncer,
		Mirror:       mirror,
		Metrics:      m,
		Logger:       logger.With("component", "loader"),
		ReadLimit:    cfg.Mirror.ReadLimit,
	})

	hub := websocket.NewHub(logger.With("component", "websocket"))
	defer hub.Close()
	sessions := controller.NewSessions(l, syncer, hub, logger.With("component", "controller"))
	defer sessions.Close()

	exporter := &calendar.ICSExporter{Dir: cfg.Calendar.Dir, Reminder: cfg.Calendar.Reminder.Duration}
	svc := proposal.NewService(rs, syncer, exporter, logger.With("component", "proposal"))

	srv := server.New(server.Deps{
		Monitor:        monitor,
		Loader:         l,
		Mirror:         mirror,
		Sessions:       sessions,
		Service:        svc,
		Hub:            hub,
		Metrics:        m,
		FallbackToken:  fallbackToken,
		OriginPatterns: cfg.WebSocket.OriginPatterns,
	}, logger)
	go srv.ActionLimiter().Run(ctx)

	httpServer := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     srv.Router(),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("huddle agent listening", "addr", cfg.ListenAddr, "remote", cfg.Remote.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
