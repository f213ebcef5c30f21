package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/alexdfirestone/national-parks/internal/models"
)

// DefaultFeedLimit caps the things listed for one park.
const DefaultFeedLimit = 50

// ThingRepository persists user submissions.
type ThingRepository interface {
	Create(ctx context.Context, thing *models.Thing) error
	AddImage(ctx context.Context, image *models.ThingImage) error
	GetByID(ctx context.Context, id uint) (*models.Thing, error)
	IsPublished(ctx context.Context, id uint) (bool, error)
	ListPublishedByPark(ctx context.Context, parkID uint, limit int) ([]models.Thing, error)
}

type thingRepository struct {
	db *gorm.DB
}

// NewThingRepository returns a new ThingRepository implementation.
func NewThingRepository(db *gorm.DB) ThingRepository {
	return &thingRepository{db: db}
}

func (r *thingRepository) Create(ctx context.Context, thing *models.Thing) error {
	if err := r.db.WithContext(ctx).Omit("Park", "Category", "Author", "Images").Create(thing).Error; err != nil {
		return classify("Thing", err)
	}
	return nil
}

func (r *thingRepository) AddImage(ctx context.Context, image *models.ThingImage) error {
	if err := r.db.WithContext(ctx).Create(image).Error; err != nil {
		return classify("Thing image", err)
	}
	return nil
}

// GetByID loads a non-deleted thing with its park, category, author and images.
func (r *thingRepository) GetByID(ctx context.Context, id uint) (*models.Thing, error) {
	var thing models.Thing
	if err := r.db.WithContext(ctx).
		Preload("Park").
		Preload("Category").
		Preload("Author").
		Preload("Images").
		First(&thing, id).Error; err != nil {
		return nil, notFoundOr("Thing", id, err)
	}
	return &thing, nil
}

// IsPublished reports whether a published, non-deleted thing with id exists.
func (r *thingRepository) IsPublished(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Thing{}).
		Where("id = ?", id).
		Where("status = ?", models.ThingStatusPublished).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// ListPublishedByPark returns published things for a park, newest first.
func (r *thingRepository) ListPublishedByPark(ctx context.Context, parkID uint, limit int) ([]models.Thing, error) {
	if limit <= 0 || limit > DefaultFeedLimit {
		limit = DefaultFeedLimit
	}
	var things []models.Thing
	if err := r.db.WithContext(ctx).
		Preload("Category").
		Preload("Author").
		Preload("Images").
		Where("park_id = ? AND status = ?", parkID, models.ThingStatusPublished).
		Order("created_at DESC").
		Limit(limit).
		Find(&things).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return things, nil
}

// setThingStatus updates the publication state of thing id using db, which
// may be a transaction.
func setThingStatus(db *gorm.DB, id uint, status models.ThingStatus) error {
	if !status.Valid() {
		return models.NewValidationError("invalid thing status")
	}
	res := db.Model(&models.Thing{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return classify("Thing", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Thing", id)
	}
	return nil
}
