package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ruteri/contract-registry/api/clients"
	"github.com/ruteri/contract-registry/audit"
	"github.com/ruteri/contract-registry/cmd/flags"
	"github.com/ruteri/contract-registry/common"
	"github.com/ruteri/contract-registry/config"
	"github.com/ruteri/contract-registry/httpserver"
	"github.com/ruteri/contract-registry/interfaces"
	"github.com/ruteri/contract-registry/metrics"
	"github.com/ruteri/contract-registry/registry"
	"github.com/ruteri/contract-registry/storage"
	"github.com/urfave/cli/v2"
)

var (
	flagConfigFile = &cli.StringFlag{
		Name:    "config",
		Usage:   "optional YAML config file; flags and environment take precedence",
		EnvVars: []string{"REGISTRY_CONFIG"},
	}
	flagOwner = &cli.StringFlag{
		Name:    "owner",
		Usage:   "owner address (0x-prefixed); required unless the state file provides it",
		EnvVars: []string{"REGISTRY_OWNER"},
	}
	flagPolicy = &cli.StringFlag{
		Name:    "policy",
		Usage:   "transition policy: strict or permissive",
		Value:   registry.DefaultPolicy.String(),
		EnvVars: []string{"REGISTRY_POLICY"},
	}
	flagListenAddr = &cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:8080",
		Usage:   "address to listen on for API",
		EnvVars: []string{"LISTEN_ADDR"},
	}
	flagStateFile = &cli.StringFlag{
		Name:    "state-file",
		Usage:   "JSON snapshot loaded on start and rewritten after every change",
		EnvVars: []string{"REGISTRY_STATE_FILE"},
	}
	flagStorage = &cli.StringSliceFlag{
		Name:    "storage",
		Usage:   "artifact storage location URI (file://, s3://, vault://, ipfs://), repeatable",
		EnvVars: []string{"REGISTRY_STORAGE"},
	}
	flagIdentityOracle = &cli.StringFlag{
		Name:    "identity-oracle-url",
		Usage:   "base URL of a registry whose approved identity hashes vouch for submitters",
		EnvVars: []string{"REGISTRY_IDENTITY_ORACLE_URL"},
	}
	flagRequireIdentity = &cli.BoolFlag{
		Name:    "require-submitter-identity",
		Usage:   "reject submissions from callers the identity oracle does not vouch for",
		EnvVars: []string{"REGISTRY_REQUIRE_SUBMITTER_IDENTITY"},
	}
	flagAuditCapacity = &cli.IntFlag{
		Name:    "audit-capacity",
		Value:   audit.DefaultCapacity,
		Usage:   "number of registry events kept for /api/v1/events",
		EnvVars: []string{"REGISTRY_AUDIT_CAPACITY"},
	}
	flagMaxClockSkew = &cli.DurationFlag{
		Name:    "max-clock-skew",
		Value:   5 * time.Minute,
		Usage:   "maximum age of a signed request",
		EnvVars: []string{"REGISTRY_MAX_CLOCK_SKEW"},
	}
	flagMaxArtifactSize = &cli.Int64Flag{
		Name:    "max-artifact-size",
		Value:   httpserver.DefaultMaxArtifactSize,
		Usage:   "maximum artifact upload size in bytes",
		EnvVars: []string{"REGISTRY_MAX_ARTIFACT_SIZE"},
	}
)

func main() {
	// Variables from .env only fill what the environment does not already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	app := &cli.App{
		Name:  "registry-server",
		Usage: "Serve the contract hash registry API",
		Flags: append([]cli.Flag{
			flagConfigFile,
			flagOwner,
			flagPolicy,
			flagListenAddr,
			flagStateFile,
			flagStorage,
			flagIdentityOracle,
			flagRequireIdentity,
			flagAuditCapacity,
			flagMaxClockSkew,
			flagMaxArtifactSize,
		}, flags.CommonFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	settings, err := loadSettings(cCtx)
	if err != nil {
		return err
	}

	logger := flags.SetupLogger(cCtx)
	logger.Info("Starting registry server", "version", common.Version, "policy", settings.policy.String())

	var metricsSrv *metrics.MetricsServer
	var m *metrics.Metrics
	if cCtx.String(flags.MetricsAddrFlag.Name) != "" {
		metricsSrv = metrics.NewServer(cCtx.String(flags.MetricsAddrFlag.Name))
		m = metrics.New(metricsSrv.Registry(), "contract_registry")
	}

	auditLog := audit.New(settings.auditCapacity, logger.With("component", "audit"))

	opts := []registry.Option{
		registry.WithPolicy(settings.policy),
		registry.WithLogger(logger.With("component", "registry")),
		registry.WithObserver(auditLog.Observer()),
	}
	if m != nil {
		opts = append(opts, registry.WithObserver(m.Observer()))
	}
	if settings.oracleURL != "" {
		logger.Info("Delegating identity checks", "oracle", settings.oracleURL)
		opts = append(opts, registry.WithIdentityOracle(clients.NewRegistryClient(settings.oracleURL, nil, 10*time.Second)))
	}

	reg, err := openRegistry(settings, opts, logger)
	if err != nil {
		logger.Error("Failed to open registry", "err", err)
		return err
	}
	if m != nil {
		m.SetEntries(reg.Snapshot())
	}

	handlerOpts := []httpserver.HandlerOption{
		httpserver.WithAuditLog(auditLog),
		httpserver.WithSubmitterIdentity(settings.requireIdentity),
		httpserver.WithMaxClockSkew(settings.maxClockSkew),
		httpserver.WithMaxArtifactSize(cCtx.Int64(flagMaxArtifactSize.Name)),
	}
	if m != nil {
		handlerOpts = append(handlerOpts, httpserver.WithMetrics(m))
	}

	if len(settings.storage) > 0 {
		locations, err := storage.ParseLocations(settings.storage)
		if err != nil {
			return err
		}
		backend, err := storage.NewStorageBackendFactory(logger.With("component", "storage")).CreateMultiBackend(locations)
		if err != nil {
			logger.Error("Failed to set up artifact storage", "err", err)
			return err
		}
		logger.Info("Artifact storage configured", "location", backend.LocationURI())
		handlerOpts = append(handlerOpts, httpserver.WithStorage(backend))
	}

	var saver *stateSaver
	if settings.stateFile != "" {
		saver = newStateSaver(settings.stateFile, reg)
		// Write once so a restart sees the configured owner even before the first change.
		if err := saver.Save(cCtx.Context); err != nil {
			logger.Error("Failed to write state file", "err", err)
			return err
		}
		handlerOpts = append(handlerOpts, httpserver.WithStateSaver(saver))
	}

	handler := httpserver.NewHandler(reg, logger, handlerOpts...)
	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, settings.listenAddr), handler, metricsSrv)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()

	if saver != nil {
		if err := saver.Save(context.Background()); err != nil {
			logger.Error("Failed to write state file", "err", err)
			return err
		}
		logger.Info("State saved", "path", settings.stateFile)
	}

	logger.Info("Server shutdown complete")
	return nil
}

// openRegistry restores the registry from the state file when one exists.
// The owner is fixed for the registry's lifetime, so a configured owner that
// differs from the persisted one is an error.
func openRegistry(s *settings, opts []registry.Option, logger *slog.Logger) (*registry.Registry, error) {
	state, found, err := loadState(s.stateFile)
	if err != nil {
		return nil, err
	}

	if found {
		if s.hasOwner && state.Owner != s.owner {
			return nil, fmt.Errorf("state file owner %s does not match configured owner %s", state.Owner, s.owner)
		}
		logger.Info("Restoring registry from state file",
			"path", s.stateFile,
			"entries", len(state.Entries),
			"killed", state.Killed)
		return registry.Restore(state, opts...)
	}

	if !s.hasOwner {
		return nil, fmt.Errorf("%w: --%s is required", interfaces.ErrInvalidPrincipal, flagOwner.Name)
	}
	return registry.New(s.owner, opts...)
}

type settings struct {
	owner           interfaces.Principal
	hasOwner        bool
	policy          registry.TransitionPolicy
	listenAddr      string
	stateFile       string
	storage         []string
	oracleURL       string
	requireIdentity bool
	auditCapacity   int
	maxClockSkew    time.Duration
}

// loadSettings merges the optional config file with flags. A flag or
// environment variable that is set always wins over the file.
func loadSettings(cCtx *cli.Context) (*settings, error) {
	file := &config.File{}
	if path := cCtx.String(flagConfigFile.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	pick := func(flag cli.Flag, fileValue string) string {
		name := flag.Names()[0]
		if !cCtx.IsSet(name) && fileValue != "" {
			return fileValue
		}
		return cCtx.String(name)
	}

	s := &settings{
		listenAddr:      pick(flagListenAddr, file.ListenAddr),
		stateFile:       pick(flagStateFile, file.StateFile),
		oracleURL:       pick(flagIdentityOracle, file.Identity.OracleURL),
		requireIdentity: cCtx.Bool(flagRequireIdentity.Name) || (!cCtx.IsSet(flagRequireIdentity.Name) && file.Identity.RequireForSubmit),
		auditCapacity:   cCtx.Int(flagAuditCapacity.Name),
		maxClockSkew:    cCtx.Duration(flagMaxClockSkew.Name),
	}

	if !cCtx.IsSet(flagAuditCapacity.Name) && file.AuditCapacity > 0 {
		s.auditCapacity = file.AuditCapacity
	}
	if !cCtx.IsSet(flagMaxClockSkew.Name) && file.MaxClockSkew > 0 {
		s.maxClockSkew = file.MaxClockSkew
	}

	s.storage = cCtx.StringSlice(flagStorage.Name)
	if !cCtx.IsSet(flagStorage.Name) {
		s.storage = file.Storage
	}

	policy, err := registry.ParseTransitionPolicy(pick(flagPolicy, file.Policy))
	if err != nil {
		return nil, err
	}
	s.policy = policy

	if owner := pick(flagOwner, file.Owner); owner != "" {
		s.owner, err = interfaces.NewPrincipalFromHex(owner)
		if err != nil {
			return nil, fmt.Errorf("invalid owner: %w", err)
		}
		s.hasOwner = true
	}

	if s.requireIdentity && s.oracleURL == "" {
		return nil, fmt.Errorf("--%s needs --%s", flagRequireIdentity.Name, flagIdentityOracle.Name)
	}

	if !cCtx.IsSet(flags.LogJsonFlag.Name) && file.Log.JSON {
		_ = cCtx.Set(flags.LogJsonFlag.Name, "true")
	}
	if !cCtx.IsSet(flags.LogDebugFlag.Name) && file.Log.Debug {
		_ = cCtx.Set(flags.LogDebugFlag.Name, "true")
	}
	if !cCtx.IsSet(flags.LogServiceFlag.Name) && file.Log.Service != "" {
		_ = cCtx.Set(flags.LogServiceFlag.Name, file.Log.Service)
	}
	return s, nil
}
