package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowforge/pipeline/internal/appconfig"
	"github.com/flowforge/pipeline/internal/examplesteps"
	"github.com/flowforge/pipeline/internal/executor"
	"github.com/flowforge/pipeline/internal/loader"
	"github.com/flowforge/pipeline/internal/logger"
	"github.com/flowforge/pipeline/internal/recovery"
	"github.com/flowforge/pipeline/internal/registry"
	"github.com/flowforge/pipeline/internal/runexec"
	"github.com/flowforge/pipeline/internal/storage"
	"github.com/flowforge/pipeline/internal/storage/memstore"
	"github.com/flowforge/pipeline/internal/storage/postgres"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

func main() {
	appLogger, err := logger.New(logger.Options{Level: "info", HumanReadable: true, Component: "cli"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := appconfig.LoadFromEnv()
	if err != nil {
		appLogger.Error(err, "invalid configuration")
		os.Exit(1)
	}

	ctx := context.Background()
	stores, err := storesForDSN(ctx, cfg.StoreDSN)
	if err != nil {
		appLogger.Error(err, "failed to initialize storage backend")
		os.Exit(1)
	}

	reg := registry.New()
	defs, err := loader.LoadDir(cfg.PipelineDir, loader.HandlerRegistry(examplesteps.Registry))
	if err != nil {
		appLogger.Warn("pipeline directory could not be loaded, starting with an empty registry", "error", err.Error())
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			appLogger.Warn("skipping invalid pipeline definition", "pipeline", def.Name, "error", err.Error())
		}
	}

	stepExec := executor.New(stores.Steps, appLogger.WithFields(map[string]any{"component": "executor"}), cfg.RetryDelayMultiplier)
	runExec := runexec.New(stores, stepExec, appLogger.WithFields(map[string]any{"component": "run-executor"}))
	recoveryOrch := recovery.New(stores, reg, runExec, appLogger.WithFields(map[string]any{"component": "recovery"}), cfg.StuckRunThreshold)

	app := &AppContext{
		Config:      cfg,
		Logger:      appLogger,
		Stores:      stores,
		Registry:    reg,
		RunExecutor: runExec,
		Recovery:    recoveryOrch,
	}

	flags := &rootFlags{}
	rootCmd := newRootCmd(app, flags)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// memoryDSN is the sentinel STORE_DSN value that opts into the in-memory
// store, for local runs and demos. Anything else is treated as a Postgres
// connection string and dialed through pgxpool.
const memoryDSN = "memory"

// storesForDSN wires the persistent store for dsn. A literal "memory" (or
// "memory://" prefixed) DSN opts into the in-process store; any other value
// is dialed as a Postgres connection string.
func storesForDSN(ctx context.Context, dsn string) (storage.Stores, error) {
	if dsn == memoryDSN || strings.HasPrefix(dsn, memoryDSN+"://") {
		return memstore.New().Stores(), nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return storage.Stores{}, pipeerrors.NewStorageError("connect to postgres", err)
	}
	return postgres.New(pool).Stores(), nil
}
