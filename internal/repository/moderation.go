package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/alexdfirestone/national-parks/internal/models"
)

// ModerationRepository persists moderation flags.
type ModerationRepository interface {
	Create(ctx context.Context, flag *models.ModerationFlag) error
	GetByID(ctx context.Context, id uint) (*models.ModerationFlag, error)
	List(ctx context.Context, status models.FlagStatus, limit int) ([]models.ModerationFlag, error)
	Resolve(ctx context.Context, id, resolverID uint, res Resolution) (*models.ModerationFlag, error)
}

// Resolution is the change closing a flag makes to its subject. The zero
// value leaves the subject alone.
type Resolution struct {
	// ThingStatus, when set, becomes the status of a flagged thing.
	ThingStatus models.ThingStatus
	// DeleteComment soft-deletes a flagged comment.
	DeleteComment bool
}

type moderationRepository struct {
	db *gorm.DB
}

// NewModerationRepository returns a new ModerationRepository implementation.
func NewModerationRepository(db *gorm.DB) ModerationRepository {
	return &moderationRepository{db: db}
}

func (r *moderationRepository) Create(ctx context.Context, flag *models.ModerationFlag) error {
	if flag.Status == "" {
		flag.Status = models.FlagOpen
	}
	if err := r.db.WithContext(ctx).Create(flag).Error; err != nil {
		return classify("Moderation flag", err)
	}
	return nil
}

func (r *moderationRepository) GetByID(ctx context.Context, id uint) (*models.ModerationFlag, error) {
	var flag models.ModerationFlag
	if err := r.db.WithContext(ctx).First(&flag, id).Error; err != nil {
		return nil, notFoundOr("Moderation flag", id, err)
	}
	return &flag, nil
}

// List returns flags newest first. An empty status lists all flags.
func (r *moderationRepository) List(ctx context.Context, status models.FlagStatus, limit int) ([]models.ModerationFlag, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var flags []models.ModerationFlag
	if err := q.Find(&flags).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return flags, nil
}

// Resolve closes an open flag and applies res to its subject in one
// transaction, so a failed subject change leaves the flag open. Closing an
// already closed flag is a conflict.
func (r *moderationRepository) Resolve(ctx context.Context, id, resolverID uint, res Resolution) (*models.ModerationFlag, error) {
	flag, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closed := tx.Model(&models.ModerationFlag{}).
			Where("id = ? AND status = ?", id, models.FlagOpen).
			Updates(map[string]interface{}{
				"status":      models.FlagClosed,
				"resolved_by": resolverID,
				"resolved_at": now,
			})
		if closed.Error != nil {
			return classify("Moderation flag", closed.Error)
		}
		if closed.RowsAffected == 0 {
			return models.NewConflictError("Flag is already resolved", nil)
		}

		switch {
		case flag.SubjectType == models.SubjectThing && res.ThingStatus != "":
			return setThingStatus(tx, flag.SubjectID, res.ThingStatus)
		case flag.SubjectType == models.SubjectComment && res.DeleteComment:
			return deleteComment(tx, flag.SubjectID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}
