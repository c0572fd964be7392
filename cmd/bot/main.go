package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"voicetime/internal/clock"
	"voicetime/internal/config"
	"voicetime/internal/database"
	"voicetime/internal/discord"
	"voicetime/internal/logging"
	"voicetime/internal/session"
	"voicetime/internal/stats"
	"voicetime/internal/voice"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseDSN); err != nil {
			logger.Fatalw("failed to migrate database", "error", err)
		}
	}

	// Initialize database
	db, err := database.New(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalw("failed to initialize database", "error", err)
	}
	defer db.Close()

	repository := database.NewRepository(db)
	tracker := session.NewTracker()
	clk := clock.System{}

	reducer := voice.NewReducer(cfg.GuildID, tracker, repository, logger.Named("reducer"))
	reducer.SetCommitTimeout(cfg.CommitTimeout)
	worker := voice.NewWorker(reducer, cfg.EventQueueSize, logger.Named("worker"))
	query := stats.NewQuery(repository, tracker)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	workerDone := make(chan struct{})
	go func() {
		worker.Run(workerCtx)
		close(workerDone)
	}()

	bot, err := discord.New(discord.Options{
		Token:         cfg.DiscordToken,
		GuildID:       cfg.GuildID,
		StatsCooldown: cfg.StatsCooldown,
	}, worker, query, clk, logger.Named("discord"))
	if err != nil {
		logger.Fatalw("failed to create Discord bot", "error", err)
	}

	if err := bot.Start(); err != nil {
		logger.Fatalw("failed to start bot", "error", err)
	}

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down bot")
	if err := bot.Stop(); err != nil {
		logger.Warnw("failed to close gateway", "error", err)
	}
	// open sessions are not committed; queued events are, within the drain timeout
	worker.Close()
	select {
	case <-workerDone:
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warnw("worker drain timed out, cancelling", "timeout", cfg.ShutdownTimeout)
		cancelWorker()
		<-workerDone
	}
	logger.Infow("open sessions dropped", "count", tracker.Len())
}
