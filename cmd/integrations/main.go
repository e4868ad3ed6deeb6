package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/pmahajan3105/releasenote-sub004/internal/adapter/cache"
	oauthadapter "github.com/pmahajan3105/releasenote-sub004/internal/adapter/oauth"
	"github.com/pmahajan3105/releasenote-sub004/internal/adapter/tracker"
	"github.com/pmahajan3105/releasenote-sub004/internal/bootstrap"
	"github.com/pmahajan3105/releasenote-sub004/internal/config"
	"github.com/pmahajan3105/releasenote-sub004/internal/credentials"
	httptransport "github.com/pmahajan3105/releasenote-sub004/internal/http"
	"github.com/pmahajan3105/releasenote-sub004/internal/http/handler"
	httpmiddleware "github.com/pmahajan3105/releasenote-sub004/internal/http/middleware"
	apimiddleware "github.com/pmahajan3105/releasenote-sub004/internal/middleware"
	"github.com/pmahajan3105/releasenote-sub004/internal/repository"
	"github.com/pmahajan3105/releasenote-sub004/internal/server"
	"github.com/pmahajan3105/releasenote-sub004/internal/service/integrations"
	"github.com/pmahajan3105/releasenote-sub004/internal/session"
	"github.com/pmahajan3105/releasenote-sub004/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newOAuthStateRepository,
			newIntegrationRepository,
			newTicketCacheRepository,
			newCredentialsCodec,
			integrations.NewCatalog,
			newStateStore,
			newTicketCache,
			newTrackerClient,
			newProviderClient,
			newIntegrationService,
			newSessionVerifier,
			newAuthMiddleware,
			newRouteLimiters,
			newIntegrationHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSchema, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

// newOAuthStateRepository picks the state backend. Redis is only dialed when
// selected, so a postgres-only deployment needs no Redis at all.
func newOAuthStateRepository(lc fx.Lifecycle, cfg config.Config, pool *pgxpool.Pool) (repository.OAuthStateRepository, error) {
	if cfg.StateBackend != "redis" {
		return repository.NewPostgresOAuthStateRepo(pool), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cacheadapter.NewRedisOAuthStateRepo(client), nil
}

func newIntegrationRepository(pool *pgxpool.Pool, node *snowflake.Node) repository.IntegrationRepository {
	return repository.NewPostgresIntegrationRepo(pool, node)
}

func newTicketCacheRepository(pool *pgxpool.Pool) repository.TicketCacheRepository {
	return repository.NewPostgresTicketCacheRepo(pool)
}

func newCredentialsCodec(cfg config.Config, logger *zap.Logger) *credentials.Codec {
	return credentials.NewCodec(cfg.CredentialsKey, logger)
}

func newStateStore(repo repository.OAuthStateRepository, cfg config.Config) *integrations.StateStore {
	return integrations.NewStateStore(repo, cfg.OAuthStateTTL)
}

func newTicketCache(repo repository.TicketCacheRepository, logger *zap.Logger) *integrations.TicketCache {
	return integrations.NewTicketCache(repo, logger)
}

func newTrackerClient(cfg config.Config) integrations.TrackerClient {
	return tracker.NewClients(nil, cfg.TrackerRequestsPerSecond)
}

func newProviderClient() oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(nil)
}

func newIntegrationService(
	catalog *integrations.Catalog,
	states *integrations.StateStore,
	codec *credentials.Codec,
	integrationRepo repository.IntegrationRepository,
	providerClient oauthadapter.ProviderClient,
	tickets *integrations.TicketCache,
	trackerClient integrations.TrackerClient,
	logger *zap.Logger,
) integrations.Service {
	return integrations.NewService(catalog, states, codec, integrationRepo, providerClient, tickets, trackerClient, logger)
}

func newSessionVerifier(cfg config.Config) *session.Verifier {
	return session.NewVerifier(cfg.SessionJWTSecret)
}

func newAuthMiddleware(verifier *session.Verifier) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Verifier: verifier}
}

func newRouteLimiters(cfg config.Config) httptransport.RouteLimiters {
	return httptransport.RouteLimiters{
		API:    apimiddleware.NewRateLimiter(cfg.RateLimitAPI.Window, cfg.RateLimitAPI.Max, nil),
		OAuth:  apimiddleware.NewRateLimiter(cfg.RateLimitAuth.Window, cfg.RateLimitAuth.Max, nil),
		Public: apimiddleware.NewRateLimiter(cfg.RateLimitPublic.Window, cfg.RateLimitPublic.Max, nil),
	}
}

func newIntegrationHandler(svc integrations.Service, cfg config.Config, logger *zap.Logger) *handler.IntegrationHandler {
	return handler.NewIntegrationHandler(svc, cfg.AppBaseURL, logger)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
