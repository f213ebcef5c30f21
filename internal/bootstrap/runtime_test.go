package bootstrap

import (
	"context"
	"testing"

	"github.com/alexdfirestone/national-parks/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func mockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestEnsureGuest_CreatesConfiguredGuest(t *testing.T) {
	db, mock := mockDB(t)
	cfg := &config.Config{AllowGuest: true, GuestProviderID: "visitor", GuestName: "Visitor"}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "users" .* ON CONFLICT \("provider_id"\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	require.NoError(t, ensureGuest(context.Background(), cfg, db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureGuest_DisabledIsNoop(t *testing.T) {
	db, mock := mockDB(t)

	require.NoError(t, ensureGuest(context.Background(), &config.Config{AllowGuest: false}, db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuntime_TransformerFallsBackToConfig(t *testing.T) {
	rt := &Runtime{}
	tr := rt.Transformer(&config.Config{SanityProjectID: "abc123", SanityDataset: "staging"})
	assert.Equal(t, "abc123", tr.ProjectID)
	assert.Equal(t, "staging", tr.Dataset)
}
