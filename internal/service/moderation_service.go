package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alexdfirestone/national-parks/internal/cache"
	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/repository"
)

// Resolution actions for a moderation flag.
const (
	ActionDismiss = "dismiss"
	ActionRemove  = "remove"
	ActionPublish = "publish"
)

// ModerationService opens and resolves moderation flags.
type ModerationService struct {
	flags    repository.ModerationRepository
	users    repository.UserRepository
	things   repository.ThingRepository
	comments repository.CommentRepository
	cache    Invalidator
	logger   *slog.Logger
}

// NewModerationService creates a new moderation service.
func NewModerationService(
	flags repository.ModerationRepository,
	users repository.UserRepository,
	things repository.ThingRepository,
	comments repository.CommentRepository,
	inv Invalidator,
) *ModerationService {
	return &ModerationService{
		flags:    flags,
		users:    users,
		things:   things,
		comments: comments,
		cache:    inv,
		logger:   middleware.Logger,
	}
}

// FlagInput reports a thing or comment.
type FlagInput struct {
	Caller      models.Caller      `json:"-"`
	SubjectType models.SubjectType `json:"subjectType" validate:"required,oneof=thing comment"`
	SubjectID   uint               `json:"subjectId" validate:"required"`
	Reason      string             `json:"reason" validate:"notblank,max=2000"`
}

// Flag opens a flag against an existing subject.
func (s *ModerationService) Flag(ctx context.Context, in FlagInput) (*models.ModerationFlag, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	switch in.SubjectType {
	case models.SubjectThing:
		ok, err := s.things.IsPublished(ctx, in.SubjectID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.NewNotFoundError("Thing", in.SubjectID)
		}
	case models.SubjectComment:
		if _, err := s.comments.GetByID(ctx, in.SubjectID); err != nil {
			return nil, err
		}
	}

	reporter, err := s.users.GetOrCreate(ctx, in.Caller)
	if err != nil {
		return nil, err
	}

	flag := &models.ModerationFlag{
		SubjectType: in.SubjectType,
		SubjectID:   in.SubjectID,
		Reason:      strings.TrimSpace(in.Reason),
		ReporterID:  &reporter.ID,
		Status:      models.FlagOpen,
	}
	if err := s.flags.Create(ctx, flag); err != nil {
		return nil, err
	}
	return flag, nil
}

// List returns flags in the given status, newest first.
func (s *ModerationService) List(ctx context.Context, caller models.Caller, status models.FlagStatus) ([]models.ModerationFlag, error) {
	if !caller.HasRole(models.RoleModerator) {
		return nil, models.NewForbiddenError("Moderator role required")
	}
	if status == "" {
		status = models.FlagOpen
	}
	if status != models.FlagOpen && status != models.FlagClosed {
		return nil, models.NewValidationError("status must be one of: open closed")
	}
	return s.flags.List(ctx, status, 0)
}

// ResolveInput closes a flag with an action.
type ResolveInput struct {
	Caller models.Caller `json:"-"`
	FlagID uint          `json:"-" validate:"required"`
	Action string        `json:"action" validate:"required,oneof=dismiss remove publish"`
}

// Resolve closes the flag and applies the action to its subject atomically.
func (s *ModerationService) Resolve(ctx context.Context, in ResolveInput) (*models.ModerationFlag, error) {
	if !in.Caller.HasRole(models.RoleModerator) {
		return nil, models.NewForbiddenError("Moderator role required")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	flag, err := s.flags.GetByID(ctx, in.FlagID)
	if err != nil {
		return nil, err
	}
	if flag.Status == models.FlagClosed {
		return nil, models.NewConflictError("Flag is already resolved", nil)
	}

	change, tags, err := s.resolution(ctx, flag, in.Action)
	if err != nil {
		return nil, err
	}
	moderator, err := s.users.GetOrCreate(ctx, in.Caller)
	if err != nil {
		return nil, err
	}

	closed, err := s.flags.Resolve(ctx, flag.ID, moderator.ID, change)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, tags)
	return closed, nil
}

// resolution works out what closing flag with action does to its subject and
// which cache tags that touches. The subject is looked up before any write.
func (s *ModerationService) resolution(ctx context.Context, flag *models.ModerationFlag, action string) (repository.Resolution, []string, error) {
	if action == ActionDismiss {
		return repository.Resolution{}, nil, nil
	}

	switch flag.SubjectType {
	case models.SubjectThing:
		thing, err := s.things.GetByID(ctx, flag.SubjectID)
		if err != nil {
			return repository.Resolution{}, nil, err
		}
		status := models.ThingStatusRemoved
		if action == ActionPublish {
			status = models.ThingStatusPublished
		}
		target := cache.Target{Type: cache.TargetThing, ID: thing.ID}
		if thing.Park != nil {
			target.Slug = thing.Park.Slug
		}
		tags, err := cache.TagsFor(target)
		if err != nil {
			return repository.Resolution{}, nil, err
		}
		return repository.Resolution{ThingStatus: status}, tags, nil
	case models.SubjectComment:
		if action == ActionPublish {
			return repository.Resolution{}, nil, models.NewValidationError("Comments can only be dismissed or removed")
		}
		comment, err := s.comments.GetByID(ctx, flag.SubjectID)
		if err != nil {
			return repository.Resolution{}, nil, err
		}
		return repository.Resolution{DeleteComment: true}, []string{cache.ThingCommentsTag(comment.ThingID)}, nil
	}
	return repository.Resolution{}, nil, nil
}

func (s *ModerationService) invalidate(ctx context.Context, tags []string) {
	if s.cache == nil || len(tags) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, tags...); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", slog.Any("tags", tags), slog.Any("error", err))
	}
}
