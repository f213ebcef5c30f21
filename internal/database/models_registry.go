package database

import "github.com/alexdfirestone/national-parks/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Order matters for AutoMigrate: referenced tables come first.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Park{},
		&models.Category{},
		&models.User{},
		&models.Thing{},
		&models.ThingImage{},
		&models.Comment{},
		&models.Vote{},
		&models.ModerationFlag{},
	}
}
