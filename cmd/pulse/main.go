package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/api"
	"github.com/MikeSquared-Agency/pulse/internal/config"
	"github.com/MikeSquared-Agency/pulse/internal/engine"
	"github.com/MikeSquared-Agency/pulse/internal/gateway"
	"github.com/MikeSquared-Agency/pulse/internal/ingester"
	"github.com/MikeSquared-Agency/pulse/internal/leaderboard"
	"github.com/MikeSquared-Agency/pulse/internal/monitor"
	"github.com/MikeSquared-Agency/pulse/internal/notify"
	"github.com/MikeSquared-Agency/pulse/internal/reconcile"
	"github.com/MikeSquared-Agency/pulse/internal/store"
	"github.com/MikeSquared-Agency/pulse/internal/tracker"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("pulse starting",
		"port", cfg.Port,
		"nats_url", cfg.NatsURL,
		"gateway_timeout", cfg.GatewayTimeout,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Connect to database.
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// Step 2: Build trackers and the routing engine.
	presence := tracker.New(store.MetricPresence, db)
	voice := tracker.New(store.MetricVoice, db)
	eng := engine.New(presence, voice, tracker.NewMessageCounter(db))

	// Step 3: Connect to NATS. Consuming starts later; the connection is
	// needed now for the gateway state client.
	ing, err := ingester.New(cfg.NatsURL, eng)
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer ing.Close()

	// Step 4: Reconcile sessions left open by the previous process. Must
	// finish before live events flow so adopted starts are not clobbered.
	live := gateway.NewClient(ing.NATSConn(), cfg.GatewayTimeout)
	if err := reconcile.New(db, presence, voice, live).Run(ctx); err != nil {
		slog.Error("reconciliation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("open sessions reconciled",
		"presence", presence.Count(), "voice", voice.Count())

	// Step 5: Narrative layer. Without a bot token, lines go to the log.
	var notifier monitor.Notifier
	if cfg.DiscordBotToken != "" {
		notifier = notify.NewDiscord(cfg.DiscordBotToken)
		slog.Info("Discord narrative delivery enabled")
	}
	eng.SetNarrator(monitor.New(db, notifier))

	// Step 6: Announce session lifecycle on NATS for downstream watchers.
	presence.SetOpenedHook(announceOpened(ing))
	presence.SetClosedHook(announceClosed(ing))
	voice.SetOpenedHook(announceOpened(ing))
	voice.SetClosedHook(announceClosed(ing))

	if err := ing.Start(); err != nil {
		slog.Error("failed to start ingester", "error", err)
		os.Exit(1)
	}
	slog.Info("NATS ingester started")

	// Step 7: HTTP API.
	srv := api.NewServer(db, leaderboard.New(db), presence, voice, cfg.Port)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("pulse ready", "port", cfg.Port)

	// Wait for shutdown signal. Open sessions stay in the durable store
	// and are reconciled by the next process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slog.Info("shutting down", "signal", sig)
	cancel()
	slog.Info("pulse stopped")
}

func announceOpened(ing *ingester.Ingester) tracker.OpenedHook {
	return func(_ context.Context, sess store.OpenSession) {
		payload, _ := json.Marshal(map[string]any{
			"kind":       sess.Kind,
			"guild_id":   sess.GuildID,
			"user_id":    sess.UserID,
			"dimension":  sess.Dimension,
			"started_at": sess.StartedAt.Format(time.RFC3339),
		})
		if err := ing.Publish("pulse.session.opened", payload); err != nil {
			slog.Warn("failed to publish session open", "error", err)
		}
	}
}

func announceClosed(ing *ingester.Ingester) tracker.ClosedHook {
	return func(_ context.Context, sess store.OpenSession, dimension string, end time.Time, elapsed time.Duration) {
		payload, _ := json.Marshal(map[string]any{
			"kind":       sess.Kind,
			"guild_id":   sess.GuildID,
			"user_id":    sess.UserID,
			"dimension":  dimension,
			"started_at": sess.StartedAt.Format(time.RFC3339),
			"ended_at":   end.Format(time.RFC3339),
			"elapsed_ms": elapsed.Milliseconds(),
		})
		if err := ing.Publish("pulse.session.closed", payload); err != nil {
			slog.Warn("failed to publish session close", "error", err)
		}
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
