package bootstrap

import (
	"context"
	"fmt"
	"time"

	"mailsync_server/adapter/out/mongodb"
	"mailsync_server/adapter/out/persistence"
	"mailsync_server/adapter/out/provider"
	"mailsync_server/config"
	"mailsync_server/core/port/out"
	"mailsync_server/core/service/auth"
	mail "mailsync_server/core/service/email"
	"mailsync_server/pkg/logger"
	"mailsync_server/pkg/resilience"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies holds every long-lived component. It is built once per process
// and shared by the API and the worker.
type Dependencies struct {
	Config *config.Config

	Mongo *mongo.Client
	Redis *redis.Client // nil unless REDIS_URL is set

	TokenCache   *auth.TokenCache
	Transport    *provider.GraphAdapter
	EmailRepo    *mongodb.EmailAdapter
	ContactRepo  *mongodb.ContactAdapter
	EmailService *mail.SyncService
}

func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// MongoDB
	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
	if err != nil {
		return nil, nil, err
	}
	deps.Mongo = mongoClient
	cleanups = append(cleanups, func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.WithError(err).Warn("MongoDB disconnect failed")
		}
	})
	logger.Info("MongoDB connected (database %s)", cfg.MongoDBName)

	db := mongoClient.Database(cfg.MongoDBName)
	deps.EmailRepo = mongodb.NewEmailAdapter(db)
	deps.ContactRepo = mongodb.NewContactAdapter(db)
	if err := deps.EmailRepo.EnsureIndexes(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	// Redis (optional)
	var guard out.TickGuard = persistence.NewLocalTickGuard()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		deps.Redis = client
		cleanups = append(cleanups, func() { client.Close() })
		guard = persistence.NewRedisTickLock(client, cfg.UserEmail, syncLockTTL(cfg))
		logger.Info("Redis connected, sync ticks are serialized across processes")
	}

	// Token cache
	store, err := newBlobStore(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	authorizer := auth.NewOAuthDeviceAuthorizer(auth.DeviceAuthorizerConfig{
		ClientID: cfg.ClientID,
		TenantID: cfg.TenantID,
		AuthURL:  cfg.GraphAuthURL,
		Scopes:   cfg.Scopes,
	})
	deps.TokenCache = auth.NewTokenCache(store, authorizer, cfg.UserEmail)

	// Mail transport
	deps.Transport = provider.NewGraphAdapter(deps.TokenCache, provider.GraphConfig{
		APIURL:        cfg.GraphAPIURL,
		Timeout:       cfg.GraphTimeout,
		PageSize:      cfg.FetchPageSize,
		Lookback:      cfg.FetchLookback,
		AttachmentDir: cfg.AttachmentDir,
		Breaker:       resilience.DefaultBreakerConfig("graph"),
	})

	deps.EmailService = mail.NewSyncService(deps.Transport, deps.EmailRepo, deps.ContactRepo, guard, mail.SyncConfig{
		Operator:       cfg.UserEmail,
		PersistWorkers: cfg.PersistWorkers,
	})

	return deps, cleanup, nil
}

// deviceCodeLifetime is how long the identity platform keeps a device code
// open. A tick can block on token acquisition for that long.
const deviceCodeLifetime = 15 * time.Minute

// syncLockTTL outlives the slowest tick: a device-code wait, a fetch and the
// persist stage.
func syncLockTTL(cfg *config.Config) time.Duration {
	return cfg.SyncInterval + cfg.GraphTimeout + deviceCodeLifetime
}

func newBlobStore(cfg *config.Config) (out.BlobStore, error) {
	switch cfg.TokenCacheBackend {
	case "keyring":
		return persistence.NewKeyringBlobStore(persistence.KeyringConfig{
			FileDir:      cfg.KeyringDir,
			FilePassword: cfg.KeyringPassword,
		})
	default:
		return persistence.NewFileBlobStore(cfg.TokenCacheFile), nil
	}
}
