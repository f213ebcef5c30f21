package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/alexdfirestone/national-parks/internal/models"
)

// CategoryRepository persists the category mirror.
type CategoryRepository interface {
	Upsert(ctx context.Context, category *models.Category) (UpsertResult, error)
	DeleteByCMSID(ctx context.Context, cmsID string) ([]string, error)
	DeleteMissing(ctx context.Context, keepIDs, keepSlugs []string) ([]string, error)
	List(ctx context.Context) ([]models.Category, error)
	GetBySlug(ctx context.Context, slug string) (*models.Category, error)
	GetByID(ctx context.Context, id uint) (*models.Category, error)
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository returns a new CategoryRepository implementation.
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

const upsertCategoryByCMSID = `WITH prev AS (SELECT slug FROM categories WHERE cms_id = ?)
INSERT INTO categories (cms_id, slug, name, updated_at)
VALUES (?, ?, ?, NOW())
ON CONFLICT (cms_id) DO UPDATE SET
	slug = EXCLUDED.slug,
	name = EXCLUDED.name,
	updated_at = NOW()
RETURNING id, (xmax = 0) AS inserted, COALESCE((SELECT slug FROM prev), '') AS previous_slug`

const upsertCategoryBySlug = `INSERT INTO categories (slug, name, updated_at)
VALUES (?, ?, NOW())
ON CONFLICT (slug) DO UPDATE SET
	name = EXCLUDED.name,
	updated_at = NOW()
RETURNING id, (xmax = 0) AS inserted`

// Upsert writes category keyed on cms_id. A legacy row with the same slug
// and no cms_id is adopted first so it is updated rather than duplicated.
func (r *categoryRepository) Upsert(ctx context.Context, category *models.Category) (UpsertResult, error) {
	if category.Slug == "" {
		return UpsertResult{}, models.NewValidationError("category slug is required")
	}

	var res UpsertResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if category.CMSID == nil || *category.CMSID == "" {
			return tx.Raw(upsertCategoryBySlug, category.Slug, category.Name).Scan(&res).Error
		}
		if err := tx.Exec(`UPDATE categories SET cms_id = ? WHERE slug = ? AND cms_id IS NULL`,
			*category.CMSID, category.Slug).Error; err != nil {
			return err
		}
		return tx.Raw(upsertCategoryByCMSID, *category.CMSID, *category.CMSID, category.Slug, category.Name).Scan(&res).Error
	})
	if err != nil {
		return UpsertResult{}, classify("Category", err)
	}
	if res.ID == 0 {
		return UpsertResult{}, models.NewInternalError(errors.New("category upsert returned no row"))
	}
	category.ID = res.ID
	return res, nil
}

// DeleteByCMSID deletes the category with cmsID and returns the deleted slugs.
func (r *categoryRepository) DeleteByCMSID(ctx context.Context, cmsID string) ([]string, error) {
	var rows []slugRow
	if err := r.db.WithContext(ctx).Raw(`DELETE FROM categories WHERE cms_id = ? RETURNING slug`, cmsID).Scan(&rows).Error; err != nil {
		return nil, classify("Category", err)
	}
	if len(rows) == 0 {
		return nil, models.NewNotFoundError("Category", cmsID)
	}
	return slugsOf(rows), nil
}

// DeleteMissing deletes categories whose cms_id is not in keepIDs. Legacy
// rows that never received a cms_id survive only when their slug is in
// keepSlugs.
func (r *categoryRepository) DeleteMissing(ctx context.Context, keepIDs, keepSlugs []string) ([]string, error) {
	keyed, legacy := "cms_id IS NOT NULL", "cms_id IS NULL"
	var args []any
	if len(keepIDs) > 0 {
		keyed += " AND cms_id NOT IN ?"
		args = append(args, keepIDs)
	}
	if len(keepSlugs) > 0 {
		legacy += " AND slug NOT IN ?"
		args = append(args, keepSlugs)
	}
	query := fmt.Sprintf(`DELETE FROM categories WHERE (%s) OR (%s) RETURNING slug`, keyed, legacy)

	var rows []slugRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, classify("Category", err)
	}
	return slugsOf(rows), nil
}

func (r *categoryRepository) List(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return categories, nil
}

func (r *categoryRepository) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&category).Error; err != nil {
		return nil, notFoundOr("Category", slug, err)
	}
	return &category, nil
}

func (r *categoryRepository) GetByID(ctx context.Context, id uint) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, notFoundOr("Category", id, err)
	}
	return &category, nil
}
