package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/starfield/server/internal/api"
	"github.com/starfield/server/internal/auth"
	"github.com/starfield/server/internal/config"
	"github.com/starfield/server/internal/database"
	"github.com/starfield/server/internal/logging"
	"github.com/starfield/server/internal/performance"
	"github.com/starfield/server/internal/session"
	"github.com/starfield/server/internal/streaming"
)

const shutdownTimeout = 10 * time.Second

func main() {
	hashOnly := flag.Bool("hash-password", false, "read an operator password from stdin, print its bcrypt hash for OPERATOR_PASSWORD_HASH and exit")
	cost := flag.Int("bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost used with -hash-password")
	flag.Parse()

	if *hashOnly {
		if err := hashPassword(os.Stdin, os.Stdout, *cost); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	slog.Info("starfield server starting",
		"address", cfg.Server.Address(),
		"environment", cfg.Server.Environment,
		"seed", cfg.Universe.ActiveSeed(),
		"view_radius", cfg.Universe.ViewRadius,
		"chunk_size", cfg.Universe.ChunkSize,
	)

	profiler := performance.NewProfiler(cfg.Universe.Profiling)
	manager, err := streaming.NewManager(
		streaming.SettingsFromConfig(cfg.Universe),
		streaming.SeedsFromConfig(cfg.Universe),
		streaming.WithProfiler(profiler),
		streaming.WithLogger(logger.With("component", "engine")),
	)
	if err != nil {
		return fmt.Errorf("creating streaming manager: %w", err)
	}

	store, db, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	bridge := session.NewBridge(store, manager, logger.With("component", "sessions"))

	srv := api.NewServer(api.Dependencies{
		Config:   cfg,
		Manager:  manager,
		Bridge:   bridge,
		Profiler: profiler,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		srv.WebSocket.GetHub().Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("http server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		profiler.LogReport(logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// openSessionStore returns the Postgres store when the database is enabled
// and the in-memory store otherwise.
func openSessionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, *sql.DB, error) {
	if !cfg.Database.Enabled {
		slog.Info("database disabled, sessions are kept in memory")
		return session.NewMemoryStore(), nil, nil
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	slog.Info("database connected", "host", cfg.Database.Host, "name", cfg.Database.Database)

	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	return database.NewSessionStorage(db, logger.With("component", "session_store")), db, nil
}

// hashPassword reads one line from in and writes its bcrypt hash to out.
func hashPassword(in io.Reader, out io.Writer, cost int) error {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		return errors.New("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r")

	passwords := auth.NewPasswordService(&config.Config{Auth: config.AuthConfig{BCryptCost: cost}})
	hash, err := passwords.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
