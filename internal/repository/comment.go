package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/alexdfirestone/national-parks/internal/models"
)

// DefaultCommentLimit caps the comments listed for one thing.
const DefaultCommentLimit = 100

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByThing(ctx context.Context, thingID uint, limit int) ([]models.Comment, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Omit("Author").Create(comment).Error; err != nil {
		return classify("Comment", err)
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return nil, notFoundOr("Comment", id, err)
	}
	return &comment, nil
}

// ListByThing returns non-deleted comments oldest first.
func (r *commentRepository) ListByThing(ctx context.Context, thingID uint, limit int) ([]models.Comment, error) {
	if limit <= 0 || limit > DefaultCommentLimit {
		limit = DefaultCommentLimit
	}
	var comments []models.Comment
	err := r.db.WithContext(ctx).
		Preload("Author").
		Where("thing_id = ?", thingID).
		Order("created_at ASC").
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return comments, nil
}

// deleteComment soft-deletes comment id using db, which may be a
// transaction. Its replies stay until the thing is removed.
func deleteComment(db *gorm.DB, id uint) error {
	res := db.Delete(&models.Comment{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Comment", id)
	}
	return nil
}
