package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"adforge/internal/config"
	"adforge/internal/daemon"
	"adforge/internal/logging"
	"adforge/internal/metrics"
	"adforge/internal/progress"
	"adforge/internal/store"
)

func main() {
	configFlag := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A missing .env is fine; secrets can come from config.toml or the
	// process environment.
	_ = godotenv.Load()

	cfg, _, _, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.ApplyEnv()
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "adforged.log")},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	jobStore, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open job store: %v", err)
	}

	collector := metrics.New()
	bus := progress.NewBus(cfg.Workflow.ProgressBufferEntries)
	manager := buildManager(cfg, jobStore, logger, bus, collector)

	d, err := daemon.New(daemon.Deps{
		Config:  cfg,
		Store:   jobStore,
		Manager: manager,
		Bus:     bus,
		Metrics: collector,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("adforged shutting down")
	d.Stop()
}
