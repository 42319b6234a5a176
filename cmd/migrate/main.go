package main

import (
	"context"
	"fmt"
	"os"

	"autobook/migrations"
	"autobook/pkg/config"
	"autobook/pkg/logger"
	"autobook/pkg/postgres"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Usage: migrate [up|down|status|version]
func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	pool, err := postgres.NewPool(context.Background(), &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		appLogger.Fatal("Failed to set goose dialect", zap.Error(err))
	}

	switch command {
	case "up":
		err = goose.Up(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	default:
		appLogger.Fatal("Unknown command", zap.String("command", command))
	}
	if err != nil {
		appLogger.Fatal("Migration failed", zap.String("command", command), zap.Error(err))
	}
	appLogger.Info("Migration finished", zap.String("command", command))
}
