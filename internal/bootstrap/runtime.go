// Package bootstrap connects the process-wide dependencies shared by the
// server and the CLI tools.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexdfirestone/national-parks/internal/cache"
	"github.com/alexdfirestone/national-parks/internal/cms"
	"github.com/alexdfirestone/national-parks/internal/config"
	"github.com/alexdfirestone/national-parks/internal/database"
	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/repository"
	"github.com/alexdfirestone/national-parks/internal/seed"
	"github.com/alexdfirestone/national-parks/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedReference upserts the built-in parks and categories after connecting.
	SeedReference bool
	// RequireCMS fails initialization when no CMS project is configured.
	RequireCMS bool
	// SkipBlobs leaves Blobs nil for tools that never store files.
	SkipBlobs bool
}

// Runtime holds the connected dependencies.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Blobs storage.Store
	// CMS is nil when SANITY_PROJECT_ID is unset and RequireCMS is false.
	CMS *cms.Client
}

// InitRuntime connects to the database, Redis, blob storage and the CMS.
// Redis is optional: when unreachable Redis is nil and the cache is bypassed.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt := &Runtime{DB: db, Redis: cache.InitRedis(cfg.RedisURL)}

	if !opts.SkipBlobs {
		rt.Blobs, err = storage.New(ctx, cfg)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("blob storage: %w", err)
		}
	}

	switch {
	case cfg.SanityProjectID != "":
		rt.CMS, err = cms.NewClient(cms.ConfigFrom(cfg))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("cms client: %w", err)
		}
	case opts.RequireCMS:
		rt.Close()
		return nil, fmt.Errorf("SANITY_PROJECT_ID is required")
	}

	if err := ensureGuest(ctx, cfg, db); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to bootstrap guest user: %w", err)
	}

	if opts.SeedReference || cfg.SeedReferenceOnStart {
		if err := seedReference(ctx, cfg, rt); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to seed reference content: %w", err)
		}
	}

	return rt, nil
}

// Transformer returns the document mapper for the configured project.
func (rt *Runtime) Transformer(cfg *config.Config) cms.Transformer {
	if rt.CMS != nil {
		return rt.CMS.Transformer()
	}
	return cms.Transformer{ProjectID: cfg.SanityProjectID, Dataset: cfg.SanityDataset}
}

// Close releases every connection the runtime holds.
func (rt *Runtime) Close() {
	if rt.Blobs != nil {
		if err := rt.Blobs.Close(); err != nil {
			middleware.Logger.Warn("error closing blob store", slog.String("error", err.Error()))
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			middleware.Logger.Warn("error closing redis", slog.String("error", err.Error()))
		}
	}
	if sqlDB, err := rt.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			middleware.Logger.Warn("error closing sql DB", slog.String("error", err.Error()))
		}
	}
}

// ensureGuest creates the shared guest user so anonymous submissions have
// an author row before the first mutation.
func ensureGuest(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil || !cfg.AllowGuest {
		return nil
	}
	guest := middleware.IdentityConfigFrom(cfg).Guest()
	user, err := repository.NewUserRepository(db).GetOrCreate(ctx, guest)
	if err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "guest user ensured",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("provider_id", user.ProviderID))
	return nil
}

func seedReference(ctx context.Context, cfg *config.Config, rt *Runtime) error {
	fx, err := seed.LoadFixtures()
	if err != nil {
		return err
	}
	_, err = seed.NewSeeder(seed.NewRepos(rt.DB), seed.Options{}, rt.Transformer(cfg)).Seed(ctx, fx)
	return err
}
