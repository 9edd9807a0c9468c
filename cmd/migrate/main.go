package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/pkg/config"
	"github.com/noah-isme/academic-records/pkg/database"
	"github.com/noah-isme/academic-records/pkg/logger"
)

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "maximum time allowed for applying migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db)
	if err != nil {
		logr.Fatal("migration failed", zap.Error(err))
	}

	if len(applied) == 0 {
		logr.Info("schema is up to date")
		return
	}
	logr.Info("migrations applied", zap.Ints("versions", applied), zap.String("database", cfg.Database.Name))
}
