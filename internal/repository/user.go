package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alexdfirestone/national-parks/internal/models"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetOrCreate(ctx context.Context, caller models.Caller) (*models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetOrCreate resolves the user row for caller, inserting it on first use.
// Concurrent first requests race on the provider_id unique index and both
// read the single surviving row.
func (r *userRepository) GetOrCreate(ctx context.Context, caller models.Caller) (*models.User, error) {
	if caller.ProviderID == "" {
		return nil, models.NewValidationError("caller provider id is required")
	}
	name := caller.DisplayName
	if name == "" {
		name = caller.ProviderID
	}
	roles := caller.Roles
	if len(roles) == 0 {
		roles = []string{models.RoleUser}
	}

	user := models.User{ProviderID: caller.ProviderID, DisplayName: name, Roles: roles}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "provider_id"}}, DoNothing: true}).
		Create(&user).Error; err != nil {
		return nil, classify("User", err)
	}
	if user.ID != 0 {
		return &user, nil
	}
	return r.GetByProviderID(ctx, caller.ProviderID)
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOr("User", id, err)
	}
	return &user, nil
}

func (r *userRepository) GetByProviderID(ctx context.Context, providerID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("provider_id = ?", providerID).First(&user).Error; err != nil {
		return nil, notFoundOr("User", providerID, err)
	}
	return &user, nil
}
