package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/unclebandit/storecast-backend/internal/config"
	"github.com/unclebandit/storecast-backend/internal/db"
	"github.com/unclebandit/storecast-backend/internal/logger"
)

type dbExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func main() {
	migrationsDir := flag.String("migrations", "migrations", "directory of schema files")
	seedDir := flag.String("seed", "seed", "directory of seed files; empty to skip")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLogger.Sync()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		appLogger.Fatal("database unavailable", zap.Error(err))
	}
	defer conn.Close()

	dirs := []string{*migrationsDir}
	if *seedDir != "" {
		dirs = append(dirs, *seedDir)
	}
	for _, dir := range dirs {
		files, err := sqlFiles(dir)
		if err != nil {
			appLogger.Fatal("failed to list sql files", zap.String("dir", dir), zap.Error(err))
		}
		for _, file := range files {
			if err := applyFile(ctx, conn, file); err != nil {
				appLogger.Fatal("failed to apply sql file", zap.String("file", file), zap.Error(err))
			}
			appLogger.Info("applied", zap.String("file", file))
		}
	}

	appLogger.Info("database setup completed")
}

// sqlFiles lists dir/*.sql in lexical order.
func sqlFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.sql"))
}

func applyFile(ctx context.Context, conn dbExecer, file string) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	if _, err := conn.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("execute %s: %w", file, err)
	}
	return nil
}
