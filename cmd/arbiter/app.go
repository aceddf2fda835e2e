package main

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/uam-labs/arbiter/pkg/audit"
	"github.com/uam-labs/arbiter/pkg/config"
	"github.com/uam-labs/arbiter/pkg/criteria"
	"github.com/uam-labs/arbiter/pkg/engine"
	"github.com/uam-labs/arbiter/pkg/ticket"
	"github.com/uam-labs/arbiter/pkg/tracker"
	"github.com/uam-labs/arbiter/pkg/training"
	"github.com/uam-labs/arbiter/pkg/usercontext"
)

// app wires the engine and its collaborators from configuration.
type app struct {
	cfg     *config.Config
	engine  *engine.Engine
	catalog *tracker.Catalog
	trainer *training.Manager
	audit   *audit.Log
	users   usercontext.Provider
	logger  *slog.Logger

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// loadConfig reads env configuration and applies an optional profile.
func loadConfig(profileDir, profile string) (*config.Config, error) {
	cfg := config.Load()
	if profile != "" {
		p, err := config.LoadProfile(profileDir, profile)
		if err != nil {
			return nil, err
		}
		p.Apply(cfg)
	}
	return cfg, nil
}

// buildApp constructs the full engine. setup may be nil; the engine then
// refuses to evaluate while untrained.
func buildApp(cfg *config.Config, setup training.Setup, stderr io.Writer) (*app, error) {
	level := slog.LevelInfo
	if strings.EqualFold(cfg.LogLevel, "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	a := &app{cfg: cfg, logger: logger}

	users, err := a.buildUsers(cfg)
	if err != nil {
		return nil, err
	}
	a.users = users

	trainStore, err := a.buildTrainingStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	guards, err := criteria.NewEvaluator()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.catalog = tracker.NewCatalog()
	a.trainer = training.NewManager(trainStore, setup, guards, logger)
	a.audit = audit.NewLog()

	var sink ticket.Sink
	if cfg.TicketEndpoint != "" {
		sink = ticket.NewHTTPSink(ticket.HTTPConfig{
			Endpoint:   cfg.TicketEndpoint,
			Username:   cfg.TicketUser,
			Password:   cfg.TicketPassword,
			RatePerSec: cfg.TicketRate,
			BurstLimit: cfg.TicketBurst,
		})
	} else {
		sink = ticket.NewMemorySink()
	}

	eng, err := engine.New(engine.Deps{
		Catalog: a.catalog,
		Users:   users,
		Trainer: a.trainer,
		Guards:  guards,
		Tickets: sink,
		Audit:   a.audit,
		Logger:  logger,
		DryRun:  cfg.DryRun,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = eng
	return a, nil
}

func (a *app) buildUsers(cfg *config.Config) (usercontext.Provider, error) {
	switch cfg.StoreBackend {
	case "memory":
		return usercontext.NewMemoryProvider(), nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		a.closers = append(a.closers, db.Close)
		return usercontext.NewSQLiteProvider(db)
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return usercontext.NewPostgresProvider(db)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func (a *app) buildTrainingStore(cfg *config.Config) (training.Store, error) {
	switch cfg.TrainingBackend {
	case "memory":
		return training.NewMemoryStore(), nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		a.closers = append(a.closers, db.Close)
		return training.NewSQLiteStore(db)
	case "redis":
		store := training.NewRedisStore(cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown training backend %q", cfg.TrainingBackend)
	}
}
