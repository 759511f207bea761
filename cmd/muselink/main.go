package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/muselink/muselink/internal/ai"
	"github.com/muselink/muselink/internal/config"
	"github.com/muselink/muselink/internal/database"
	"github.com/muselink/muselink/internal/events"
	"github.com/muselink/muselink/internal/jobs"
	"github.com/muselink/muselink/internal/logger"
	"github.com/muselink/muselink/internal/scanner"
	"github.com/muselink/muselink/internal/server"
	"github.com/muselink/muselink/internal/smb"
	"github.com/muselink/muselink/internal/transcode"
)

func main() {
	configPath := flag.String("config", os.Getenv("MUSELINK_CONFIG"), "path to config file")
	flag.Parse()

	if err := config.Load(*configPath); err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := config.Get()
	logger.Init(cfg.Logging.Level, cfg.Logging.JSON)

	db, err := database.Initialize(&cfg.Database)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	sources, err := database.SyncSources(db, cfg.Shares)
	if err != nil {
		logger.Error("Failed to sync share sources", "error", err)
		os.Exit(1)
	}
	logger.Info("Share sources ready", "count", len(sources))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus(0)
	if err := eventBus.Start(ctx); err != nil {
		logger.Error("Failed to start event bus", "error", err)
		os.Exit(1)
	}
	defer eventBus.Stop(context.Background())

	repo := database.NewTrackRepository(db)
	dialer := smb.NewDialer()

	indexer := scanner.NewIndexer(dialer, repo, eventBus, cfg.Scanner)
	scans := scanner.NewService(indexer, sources, cfg.Shares)

	queue := jobs.NewQueue()
	statuses := jobs.NewStatusTable()
	jobsMgr := jobs.NewManager(queue, statuses)
	worker := jobs.NewWorker(queue, statuses, repo,
		scans, ai.NewTagger(cfg.AI), ai.NewTranscriber(cfg.AI), eventBus, cfg.AI)
	go worker.Run(ctx)
	defer queue.Close()

	pipeline := transcode.NewPipeline(cfg.Transcode)
	srv := server.New(cfg, repo, dialer, scans, jobsMgr, pipeline, eventBus)

	// Reloaded share endpoints flow into the catalog, the scan service
	// and the stream resolver without a restart.
	config.AddWatcher(func(_, newCfg *config.Config) {
		synced, err := database.SyncSources(db, newCfg.Shares)
		if err != nil {
			logger.Error("Failed to sync reloaded share sources", "error", err)
			return
		}
		scans.UpdateSources(synced, newCfg.Shares)
		srv.UpdateShares(newCfg.Shares)
		logger.Info("Share endpoints updated", "count", len(newCfg.Shares))
	})
	go func() {
		if err := config.GetManager().WatchFile(ctx); err != nil {
			logger.Warn("Config file watching disabled", "error", err)
		}
	}()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}
