package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdfirestone/national-parks/internal/models"
)

func TestCategoryRepository_Upsert_AdoptsLegacyRow(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCategoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE categories SET cms_id = $1 WHERE slug = $2 AND cms_id IS NULL`)).
		WithArgs("cat-hiking", "hiking").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (cms_id)")).
		WithArgs("cat-hiking", "cat-hiking", "hiking", "Hiking").
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted", "previous_slug"}).AddRow(3, false, "hiking"))
	mock.ExpectCommit()

	category := models.Category{CMSID: strPtr("cat-hiking"), Slug: "hiking", Name: "Hiking"}
	res, err := repo.Upsert(context.Background(), &category)
	require.NoError(t, err)
	assert.False(t, res.Inserted)
	assert.Equal(t, "hiking", res.PreviousSlug)
	assert.Equal(t, uint(3), category.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_Upsert_SlugFallback(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCategoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (slug)")).
		WithArgs("fishing", "Fishing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(9, true))
	mock.ExpectCommit()

	res, err := repo.Upsert(context.Background(), &models.Category{Slug: "fishing", Name: "Fishing"})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_DeleteMissing(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCategoryRepository(db)

	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM categories WHERE (cms_id IS NOT NULL AND cms_id NOT IN ($1)) OR (cms_id IS NULL) RETURNING slug`)).
		WithArgs("cat-1").
		WillReturnRows(sqlmock.NewRows([]string{"slug"}).AddRow("legacy").AddRow("retired"))

	slugs, err := repo.DeleteMissing(ctx, []string{"cat-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy", "retired"}, slugs)

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM categories WHERE (cms_id IS NOT NULL AND cms_id NOT IN ($1)) OR (cms_id IS NULL AND slug NOT IN ($2)) RETURNING slug`)).
		WithArgs("cat-1", "fishing").
		WillReturnRows(sqlmock.NewRows([]string{"slug"}).AddRow("retired"))

	slugs, err = repo.DeleteMissing(ctx, []string{"cat-1"}, []string{"fishing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"retired"}, slugs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_DeleteByCMSID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCategoryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM categories WHERE cms_id = $1 RETURNING slug`)).
		WithArgs("cat-x").
		WillReturnRows(sqlmock.NewRows([]string{"slug"}))

	_, err := repo.DeleteByCMSID(context.Background(), "cat-x")
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
