// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/alexdfirestone/national-parks/internal/models"
)

// UpsertResult reports the row an upsert touched. PreviousSlug is the slug
// the row carried before the write, empty when it was inserted or matched on
// slug.
type UpsertResult struct {
	ID           uint
	Inserted     bool
	PreviousSlug string
}

// ParkRepository persists the park mirror.
type ParkRepository interface {
	Upsert(ctx context.Context, park *models.Park) (UpsertResult, error)
	DeleteByCMSID(ctx context.Context, cmsID string) ([]string, error)
	DeleteMissing(ctx context.Context, keepIDs, keepSlugs []string) ([]string, error)
	List(ctx context.Context) ([]models.Park, error)
	GetBySlug(ctx context.Context, slug string) (*models.Park, error)
	GetByID(ctx context.Context, id uint) (*models.Park, error)
}

type parkRepository struct {
	db *gorm.DB
}

// NewParkRepository returns a new ParkRepository implementation.
func NewParkRepository(db *gorm.DB) ParkRepository {
	return &parkRepository{db: db}
}

const upsertParkByCMSID = `WITH prev AS (SELECT slug FROM parks WHERE cms_id = ?)
INSERT INTO parks (cms_id, slug, name, states, summary, hero_url, lat, lng, updated_at)
VALUES (?, ?, ?, CAST(? AS jsonb), ?, ?, CAST(? AS numeric), CAST(? AS numeric), NOW())
ON CONFLICT (cms_id) DO UPDATE SET
	slug = EXCLUDED.slug,
	name = EXCLUDED.name,
	states = EXCLUDED.states,
	summary = EXCLUDED.summary,
	hero_url = EXCLUDED.hero_url,
	lat = EXCLUDED.lat,
	lng = EXCLUDED.lng,
	updated_at = NOW()
RETURNING id, (xmax = 0) AS inserted, COALESCE((SELECT slug FROM prev), '') AS previous_slug`

// Parks without a CMS identifier are keyed on slug and keep the slug as cms_id on insert.
const upsertParkBySlug = `INSERT INTO parks (cms_id, slug, name, states, summary, hero_url, lat, lng, updated_at)
VALUES (?, ?, ?, CAST(? AS jsonb), ?, ?, CAST(? AS numeric), CAST(? AS numeric), NOW())
ON CONFLICT (slug) DO UPDATE SET
	name = EXCLUDED.name,
	states = EXCLUDED.states,
	summary = EXCLUDED.summary,
	hero_url = EXCLUDED.hero_url,
	lat = EXCLUDED.lat,
	lng = EXCLUDED.lng,
	updated_at = NOW()
RETURNING id, (xmax = 0) AS inserted`

// Upsert writes park in one statement keyed on cms_id, or slug when the
// document carried no identifier. Inserted distinguishes create from update.
func (r *parkRepository) Upsert(ctx context.Context, park *models.Park) (UpsertResult, error) {
	if park.Slug == "" {
		return UpsertResult{}, models.NewValidationError("park slug is required")
	}
	states := park.States
	if states == nil {
		states = []string{}
	}
	statesJSON, err := json.Marshal(states)
	if err != nil {
		return UpsertResult{}, models.NewInternalError(err)
	}

	args := []any{park.CMSID, park.Slug, park.Name, string(statesJSON), park.Summary, park.HeroURL, park.Lat, park.Lng}
	query := upsertParkByCMSID
	if park.CMSID == "" {
		query = upsertParkBySlug
		args[0] = park.Slug
	} else {
		args = append([]any{park.CMSID}, args...)
	}

	var res UpsertResult
	err = r.db.WithContext(ctx).Raw(query, args...).Scan(&res).Error
	if err != nil {
		return UpsertResult{}, classify("Park", err)
	}
	if res.ID == 0 {
		return UpsertResult{}, models.NewInternalError(errors.New("park upsert returned no row"))
	}
	park.ID = res.ID
	return res, nil
}

type slugRow struct {
	Slug string
}

func slugsOf(rows []slugRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Slug)
	}
	return out
}

// DeleteByCMSID deletes the park with cmsID and returns the deleted slugs.
func (r *parkRepository) DeleteByCMSID(ctx context.Context, cmsID string) ([]string, error) {
	var rows []slugRow
	if err := r.db.WithContext(ctx).Raw(`DELETE FROM parks WHERE cms_id = ? RETURNING slug`, cmsID).Scan(&rows).Error; err != nil {
		return nil, classify("Park", err)
	}
	if len(rows) == 0 {
		return nil, models.NewNotFoundError("Park", cmsID)
	}
	return slugsOf(rows), nil
}

// DeleteMissing deletes every park whose cms_id is not in keepIDs and whose
// slug is not in keepSlugs.
func (r *parkRepository) DeleteMissing(ctx context.Context, keepIDs, keepSlugs []string) ([]string, error) {
	var conds []string
	var args []any
	if len(keepIDs) > 0 {
		conds = append(conds, "cms_id NOT IN ?")
		args = append(args, keepIDs)
	}
	if len(keepSlugs) > 0 {
		conds = append(conds, "slug NOT IN ?")
		args = append(args, keepSlugs)
	}
	query := `DELETE FROM parks RETURNING slug`
	if len(conds) > 0 {
		query = `DELETE FROM parks WHERE ` + strings.Join(conds, " AND ") + ` RETURNING slug`
	}

	var rows []slugRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, classify("Park", err)
	}
	return slugsOf(rows), nil
}

func (r *parkRepository) List(ctx context.Context) ([]models.Park, error) {
	var parks []models.Park
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&parks).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return parks, nil
}

func (r *parkRepository) GetBySlug(ctx context.Context, slug string) (*models.Park, error) {
	var park models.Park
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&park).Error; err != nil {
		return nil, notFoundOr("Park", slug, err)
	}
	return &park, nil
}

func (r *parkRepository) GetByID(ctx context.Context, id uint) (*models.Park, error) {
	var park models.Park
	if err := r.db.WithContext(ctx).First(&park, id).Error; err != nil {
		return nil, notFoundOr("Park", id, err)
	}
	return &park, nil
}
