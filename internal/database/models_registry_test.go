package database

import (
	"testing"

	"github.com/alexdfirestone/national-parks/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestPersistentModels_AutoMigrate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, runAutoMigrate(db))

	for _, table := range []string{"parks", "categories", "users", "things", "thing_images", "comments", "votes", "moderation_flags"} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
	assert.True(t, db.Migrator().HasIndex(&models.Vote{}, "votes_user_subject_unique"))
	assert.True(t, db.Migrator().HasColumn(&models.Category{}, "cms_id"))
}

func TestPersistentModels_JSONColumnsRoundTrip(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, runAutoMigrate(db))

	park := models.Park{CMSID: "park-yose", Slug: "yosemite", Name: "Yosemite", States: []string{"CA"}}
	require.NoError(t, db.Create(&park).Error)

	var loaded models.Park
	require.NoError(t, db.First(&loaded, park.ID).Error)
	assert.Equal(t, []string{"CA"}, loaded.States)
}
