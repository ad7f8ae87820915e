package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/OldStager01/resilience-plane/api"
	"github.com/OldStager01/resilience-plane/internal/auth"
	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/orchestrator"
	"github.com/OldStager01/resilience-plane/pkg/config"
	"github.com/OldStager01/resilience-plane/pkg/database"
	"github.com/OldStager01/resilience-plane/pkg/validation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("controlplane", pflag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	migrate := fs.Bool("migrate", false, "run database migrations and exit")
	hashPassword := fs.String("hash-password", "", "print the bcrypt hash for api.operator_password_hash and exit")
	config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *hashPassword != "" {
		if err := validation.ValidatePassword(*hashPassword); err != nil {
			return err
		}
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	var db *database.DB
	if cfg.Storage.Enabled() {
		db, err = openStorage(cfg.Storage)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	if *migrate {
		if db == nil {
			return errors.New("--migrate requires storage.driver to be set")
		}
		logger.Info("Migrations completed successfully")
		return nil
	}

	orch, err := orchestrator.New(cfg, db, orchestrator.Options{})
	if err != nil {
		return fmt.Errorf("failed to build control plane: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	server := api.NewServer(cfg.API, cfg.WebSocket, cfg.App.Mode, apiDependencies(cfg, orch, db))

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var runErr error
	select {
	case err := <-errChan:
		runErr = fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	cancel()
	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown error: %w", err))
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("Control plane stopped gracefully")
	return nil
}

// openStorage connects and always applies pending migrations, which are
// idempotent.
func openStorage(cfg config.StorageConfig) (*database.DB, error) {
	db, err := database.New(cfg.ToDBConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.WithField("driver", db.Driver()).Info("Database connection established")

	timeout := cfg.MigrationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := database.NewMigrator(db).Run(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	if version, err := db.Version(ctx); err == nil {
		logger.WithField("version", version).Info("Database schema up to date")
	}
	return db, nil
}

func apiDependencies(cfg *config.Config, orch *orchestrator.Orchestrator, db *database.DB) api.Dependencies {
	authService := auth.NewService(cfg.API.JWTSecret, cfg.API.JWTDuration, auth.Operator{
		Username:     cfg.API.OperatorUser,
		PasswordHash: cfg.API.OperatorPasswordHash,
	})

	deps := api.Dependencies{
		Scaling:         orch.Autoscaler(),
		Circuits:        orch.Registry(),
		Cache:           orch.Cache(),
		Throttle:        orch.Throttle(),
		History:         orch.History(),
		Bus:             orch.Bus(),
		Auth:            authService,
		MetricsHandler:  orch.Sink().Handler(),
		RequestRecorder: orch.Requests(),
		Sink:            orch.Sink(),
		SampleInterval:  orch.SampleInterval(),
		SecureCookie:    cfg.App.Mode == "production",
	}

	// typed nils must not leak into the interface fields
	if db != nil {
		deps.DB = db
		archives := orch.Archives()
		deps.DecisionArchive = archives.Decisions
		deps.SampleArchive = archives.Samples
		deps.EventArchive = archives.Events
	}
	return deps
}
