package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"assetrelay/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, create")
		name    = flag.String("name", "", "Name for 'create' command")
	)
	flag.Parse()

	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := run(cfg, *command, *name); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Config, command, name string) error {
	if command == "create" {
		if name == "" {
			return fmt.Errorf("name is required for 'create' command")
		}
		if err := goose.Create(nil, cfg.MigrationsDir, name, "sql"); err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		log.Printf("migration created: %s", name)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	switch command {
	case "up":
		if err := goose.Up(db, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		log.Println("migrations applied")
	case "down":
		if err := goose.Down(db, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("roll back migration: %w", err)
		}
		log.Println("last migration rolled back")
	case "status":
		if err := goose.Status(db, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
	default:
		return fmt.Errorf("unknown command %q, use: up, down, status, create", command)
	}
	return nil
}
