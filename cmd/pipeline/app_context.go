package main

import (
	"github.com/flowforge/pipeline/internal/appconfig"
	"github.com/flowforge/pipeline/internal/logger"
	"github.com/flowforge/pipeline/internal/recovery"
	"github.com/flowforge/pipeline/internal/registry"
	"github.com/flowforge/pipeline/internal/runexec"
	"github.com/flowforge/pipeline/internal/storage"
)

// AppContext bundles the wired core components the CLI subcommands share.
type AppContext struct {
	Config      *appconfig.Config
	Logger      *logger.Logger
	Stores      storage.Stores
	Registry    *registry.Registry
	RunExecutor *runexec.Executor
	Recovery    *recovery.Orchestrator
}

type rootFlags struct {
	autoRecover bool
}
