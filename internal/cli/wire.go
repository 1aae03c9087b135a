package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/NomadCrew/release-gate/config"
	"github.com/NomadCrew/release-gate/internal/controlplane"
	"github.com/NomadCrew/release-gate/internal/probe"
	"github.com/NomadCrew/release-gate/internal/registry"
	"github.com/NomadCrew/release-gate/internal/rollback"
	"github.com/NomadCrew/release-gate/internal/store"
	"github.com/NomadCrew/release-gate/internal/store/memory"
	"github.com/NomadCrew/release-gate/internal/store/postgres"
	"github.com/NomadCrew/release-gate/logger"
)

// buildProbeClient creates the probe client for the target environment.
// The transport carries no timeout of its own; every call runs under a
// check-scoped context deadline, so manifest-tuned checks can exceed any
// fixed cap.
func buildProbeClient(cfg *config.Config) *probe.Client {
	opts := []probe.ClientOption{
		probe.WithHTTPClient(&http.Client{}),
	}
	if cfg.Target.BearerToken != "" {
		opts = append(opts, probe.WithBearerToken(cfg.Target.BearerToken))
	}
	return probe.NewClient(cfg.Target.BaseURL, opts...)
}

// buildControlPlane returns the deploy-ops client, or nil when none is
// configured. Callers that only read state tolerate nil; rollback does not.
func buildControlPlane(cfg *config.Config) controlplane.ControlPlane {
	if cfg.ControlPlane.APIUrl == "" {
		return nil
	}
	var opts []controlplane.ClientOption
	if cfg.ControlPlane.TimeoutSeconds > 0 {
		opts = append(opts, controlplane.WithTimeout(
			time.Duration(cfg.ControlPlane.TimeoutSeconds)*time.Second))
	}
	return controlplane.NewClient(cfg.ControlPlane.APIUrl, cfg.ControlPlane.APIKey, opts...)
}

// buildRegistry assembles the check registry from config, feature flags,
// and the optional manifest overlay.
func buildRegistry(cfg *config.Config, client *probe.Client, cp controlplane.ControlPlane) (*registry.Registry, error) {
	flags := config.GetFeatureFlags()
	return registry.New(registry.Deps{
		Client:                  client,
		ControlPlane:            cp,
		WSURL:                   cfg.Target.WSURL,
		JWKSURL:                 cfg.Target.JWKSURL,
		BearerToken:             cfg.Target.BearerToken,
		Services:                cfg.Target.Services,
		EnableWebSocketChecks:   flags.EnableWebSocketChecks,
		EnablePerformanceChecks: flags.EnablePerformanceChecks,
	}, cfg.Registry.ManifestPath)
}

// openRunStore opens the history store: PostgreSQL (migrated on open) when
// a database is configured, otherwise the in-memory store. The returned
// func releases the underlying pool.
func openRunStore(ctx context.Context, cfg *config.Config) (store.RunStore, func(), error) {
	if !cfg.Database.Enabled() {
		return memory.NewRunStore(), func() {}, nil
	}

	if err := postgres.RunMigrations(cfg.Database.URL()); err != nil {
		return nil, nil, err
	}

	poolCfg, err := config.ConfigurePostgresPool(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.NewPgRunStore(pool), pool.Close, nil
}

// buildRunLock returns the rollback run-lock: Redis-backed when configured,
// otherwise process-local. A configured but unreachable Redis is a hard
// error; silently degrading to a process-local lock would void the
// cross-host exclusion the configuration asked for.
func buildRunLock(cfg *config.Config) (rollback.RunLock, func(), error) {
	if !cfg.Redis.Enabled() {
		logger.GetLogger().Named("cli").Warn(
			"No Redis configured; rollback exclusion is process-local only")
		return rollback.NewProcessRunLock(), func() {}, nil
	}

	client := redis.NewClient(config.ConfigureRedisOptions(&cfg.Redis))
	if err := config.TestRedisConnection(client); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	ttl := time.Duration(cfg.Rollback.LockTTLSeconds) * time.Second
	return rollback.NewRedisRunLock(client, ttl), func() { _ = client.Close() }, nil
}
