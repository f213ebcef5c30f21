package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alexdfirestone/national-parks/internal/config"
	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/models"

	"gorm.io/gorm"
)

// Schema modes accepted by DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// conflictTargets are the unique indexes the single-statement upserts name
// in ON CONFLICT. Without them park/category sync, user creation and voting
// fail at runtime, so ApplySchema checks for them.
var conflictTargets = []struct {
	model any
	index string
}{
	{&models.Park{}, "idx_parks_cms_id"},
	{&models.Park{}, "idx_parks_slug"},
	{&models.Category{}, "idx_categories_cms_id"},
	{&models.Category{}, "idx_categories_slug"},
	{&models.User{}, "idx_users_provider_id"},
	{&models.Vote{}, "votes_user_subject_unique"},
}

// SchemaStatus reports what ApplySchema would do for the current configuration.
type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
	// Missing lists required tables and conflict indexes not present yet.
	Missing []string
}

// schemaPlan is the resolved DB_SCHEMA_MODE for an environment.
type schemaPlan struct {
	mode    string
	runSQL  bool
	runAuto bool
}

func isProdLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging", "stage":
		return true
	}
	return false
}

func normalizedSchemaMode(cfg *config.Config) string {
	mode := strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))
	if mode == "" {
		return SchemaModeHybrid
	}
	return mode
}

// planSchema resolves the mode. Hybrid runs SQL migrations everywhere and
// AutoMigrate only outside production-like environments; auto in production
// needs an explicit opt-in.
func planSchema(cfg *config.Config) (schemaPlan, error) {
	plan := schemaPlan{mode: normalizedSchemaMode(cfg)}
	prodLike := isProdLikeEnv(cfg.Env)

	switch plan.mode {
	case SchemaModeSQL:
		plan.runSQL = true
	case SchemaModeAuto:
		if prodLike && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.runAuto = true
	case SchemaModeHybrid:
		plan.runSQL = true
		plan.runAuto = !prodLike
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.mode)
	}
	return plan, nil
}

func runAutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(PersistentModels()...)
}

// missingContentSchema lists absent tables and conflict-target indexes.
func missingContentSchema(db *gorm.DB) []string {
	m := db.Migrator()
	var missing []string
	for _, model := range PersistentModels() {
		if !m.HasTable(model) {
			stmt := &gorm.Statement{DB: db}
			name := fmt.Sprintf("%T", model)
			if err := stmt.Parse(model); err == nil {
				name = stmt.Schema.Table
			}
			missing = append(missing, "table "+name)
		}
	}
	for _, target := range conflictTargets {
		if m.HasTable(target.model) && !m.HasIndex(target.model, target.index) {
			missing = append(missing, "index "+target.index)
		}
	}
	return missing
}

// ApplySchema runs SQL migrations and/or AutoMigrate as DB_SCHEMA_MODE
// dictates, then verifies the content schema is complete.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := planSchema(cfg)
	if err != nil {
		return err
	}

	if plan.runSQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}

	if plan.runAuto {
		if plan.mode == SchemaModeAuto && cfg.DBAutoMigrateAllowDestructive {
			middleware.Logger.Warn("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true set for DB_SCHEMA_MODE=auto; review schema diffs before production deployment")
		}
		middleware.Logger.Info("Running GORM AutoMigrate", slog.String("mode", plan.mode), slog.String("env", cfg.Env))
		if err := runAutoMigrate(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	if missing := missingContentSchema(db.WithContext(ctx)); len(missing) > 0 {
		return fmt.Errorf("content schema incomplete: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GetSchemaStatus reports applied and pending migrations without changing anything.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := planSchema(cfg)
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{
		Mode:               plan.mode,
		Environment:        cfg.Env,
		WillRunSQL:         plan.runSQL,
		WillRunAutoMigrate: plan.runAuto,
		Missing:            missingContentSchema(db.WithContext(ctx)),
	}

	if !plan.runSQL {
		return status, nil
	}

	applied, err := NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	registered, err := Migrations()
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = applied
	status.PendingMigrations = pendingMigrations(applied, registered)

	return status, nil
}
