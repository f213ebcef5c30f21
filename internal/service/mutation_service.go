package service

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alexdfirestone/national-parks/internal/cache"
	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/repository"
	"github.com/alexdfirestone/national-parks/internal/storage"
)

const nestedReplyMessage = "Cannot reply to a reply - max 1 level of nesting"

// MutationDeps wires a MutationService.
type MutationDeps struct {
	Users      repository.UserRepository
	Parks      repository.ParkRepository
	Categories repository.CategoryRepository
	Things     repository.ThingRepository
	Comments   repository.CommentRepository
	Votes      repository.VoteRepository
	Blobs      storage.Store
	Cache      Invalidator

	// DefaultStatus is the publication policy for new things.
	DefaultStatus models.ThingStatus
	// ImagesEnabled gates image attachment on create. Nil means enabled.
	ImagesEnabled func() bool
	// MaxImageBytes caps an attached image. Zero means 5MB.
	MaxImageBytes int64
}

// MutationService performs the user-facing writes.
type MutationService struct {
	deps   MutationDeps
	logger *slog.Logger
}

// NewMutationService returns a new MutationService.
func NewMutationService(deps MutationDeps) *MutationService {
	if deps.DefaultStatus == "" {
		deps.DefaultStatus = models.ThingStatusPublished
	}
	if deps.MaxImageBytes <= 0 {
		deps.MaxImageBytes = defaultMaxImageBytes
	}
	return &MutationService{deps: deps, logger: middleware.Logger}
}

// VoteInput is a vote on a thing.
type VoteInput struct {
	Caller  models.Caller `json:"-"`
	ThingID uint          `json:"thingId" validate:"required"`
	Value   int           `json:"value" validate:"oneof=1 -1"`
}

// Vote records the caller's vote and returns the refreshed tally.
func (s *MutationService) Vote(ctx context.Context, in VoteInput) (*models.VoteTally, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := s.requireThing(ctx, in.ThingID); err != nil {
		return nil, err
	}
	user, err := s.deps.Users.GetOrCreate(ctx, in.Caller)
	if err != nil {
		return nil, err
	}

	vote := &models.Vote{
		UserID:      user.ID,
		SubjectType: models.SubjectThing,
		SubjectID:   in.ThingID,
		Value:       int16(in.Value),
	}
	if err := s.deps.Votes.Upsert(ctx, vote); err != nil {
		return nil, err
	}
	s.refresh(ctx, cache.ThingVotesTag(in.ThingID))

	tally, err := s.deps.Votes.Tally(ctx, models.SubjectThing, in.ThingID)
	if err != nil {
		return nil, err
	}
	return &tally, nil
}

// CommentInput is a comment or a reply on a thing.
type CommentInput struct {
	Caller   models.Caller `json:"-"`
	ThingID  uint          `json:"thingId" validate:"required"`
	Body     string        `json:"body" validate:"notblank,max=10000"`
	ParentID *uint         `json:"parentId"`
}

// AddComment stores a comment. Replies may only target top-level comments
// on the same thing.
func (s *MutationService) AddComment(ctx context.Context, in CommentInput) (*models.Comment, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := s.requireThing(ctx, in.ThingID); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		parent, err := s.deps.Comments.GetByID(ctx, *in.ParentID)
		if err != nil && !models.IsCode(err, models.CodeNotFound) {
			return nil, err
		}
		if parent == nil || parent.ParentID != nil || parent.ThingID != in.ThingID {
			return nil, models.NewValidationError(nestedReplyMessage)
		}
	}

	user, err := s.deps.Users.GetOrCreate(ctx, in.Caller)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ThingID:  in.ThingID,
		AuthorID: user.ID,
		ParentID: in.ParentID,
		Body:     strings.TrimSpace(in.Body),
	}
	if err := s.deps.Comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	comment.Author = user
	s.refresh(ctx, cache.ThingCommentsTag(in.ThingID))
	return comment, nil
}

// ImageUpload is an optional image attached to a new thing.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// CreateThingInput is a new user submission.
type CreateThingInput struct {
	Caller     models.Caller `json:"-"`
	ParkID     uint          `json:"parkId" validate:"required"`
	CategoryID uint          `json:"categoryId" validate:"required"`
	Title      string        `json:"title" validate:"notblank,max=200"`
	Body       string        `json:"body" validate:"notblank,max=10000"`
	Image      *ImageUpload  `json:"-"`
}

// CreateThingResult carries the new thing and where to send the client.
type CreateThingResult struct {
	Thing    *models.Thing
	ParkSlug string
	Tags     []string
}

// CreateThing stores a submission with the configured publication status.
// Image storage failures are logged and do not fail the submission.
func (s *MutationService) CreateThing(ctx context.Context, in CreateThingInput) (*CreateThingResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Image != nil && in.Image.Size > s.deps.MaxImageBytes {
		return nil, imageTooLarge(s.deps.MaxImageBytes)
	}

	park, err := s.deps.Parks.GetByID(ctx, in.ParkID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewValidationError("Unknown park")
		}
		return nil, err
	}
	if _, err := s.deps.Categories.GetByID(ctx, in.CategoryID); err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewValidationError("Unknown category")
		}
		return nil, err
	}

	user, err := s.deps.Users.GetOrCreate(ctx, in.Caller)
	if err != nil {
		return nil, err
	}

	thing := &models.Thing{
		ParkID:     park.ID,
		CategoryID: in.CategoryID,
		AuthorID:   user.ID,
		Title:      strings.TrimSpace(in.Title),
		Body:       strings.TrimSpace(in.Body),
		Status:     s.deps.DefaultStatus,
	}
	if err := s.deps.Things.Create(ctx, thing); err != nil {
		return nil, err
	}
	thing.Author = user

	if in.Image != nil && in.Image.Size > 0 {
		if img := s.attachImage(ctx, thing.ID, in.Image); img != nil {
			thing.Images = append(thing.Images, *img)
		}
	}

	tags := []string{cache.ParkThingsTag(park.Slug)}
	s.invalidate(ctx, tags...)

	return &CreateThingResult{Thing: thing, ParkSlug: park.Slug, Tags: tags}, nil
}

func (s *MutationService) attachImage(ctx context.Context, thingID uint, upload *ImageUpload) *models.ThingImage {
	log := s.logger.With(slog.Uint64("thing_id", uint64(thingID)), slog.String("filename", upload.Filename))

	if s.deps.ImagesEnabled != nil && !s.deps.ImagesEnabled() {
		log.InfoContext(ctx, "image attachment disabled, skipping")
		return nil
	}
	if s.deps.Blobs == nil {
		log.WarnContext(ctx, "no blob store configured, skipping image")
		return nil
	}
	if !strings.HasPrefix(upload.ContentType, "image/") {
		log.WarnContext(ctx, "attachment is not an image, skipping", slog.String("content_type", upload.ContentType))
		return nil
	}

	f, err := upload.Open()
	if err != nil {
		log.ErrorContext(ctx, "Image upload failed", slog.Any("error", err))
		return nil
	}
	defer f.Close()

	objectPath := "things/" + strconv.FormatUint(uint64(thingID), 10) + "/" + storage.SanitizeName(upload.Filename)
	obj, err := s.deps.Blobs.Put(ctx, objectPath, io.LimitReader(f, s.deps.MaxImageBytes+1), upload.ContentType)
	if err != nil {
		log.ErrorContext(ctx, "Image upload failed", slog.Any("error", err))
		return nil
	}
	if obj.Size > s.deps.MaxImageBytes {
		log.WarnContext(ctx, "image exceeds size limit, skipping", slog.Int64("size", obj.Size))
		return nil
	}

	alt := upload.Filename
	img := &models.ThingImage{ThingID: thingID, URL: obj.URL, Alt: &alt}
	if err := s.deps.Things.AddImage(ctx, img); err != nil {
		log.ErrorContext(ctx, "Image record failed", slog.Any("error", err))
		return nil
	}
	log.InfoContext(ctx, "Image uploaded", slog.String("url", obj.URL))
	return img
}

func (s *MutationService) requireThing(ctx context.Context, id uint) error {
	ok, err := s.deps.Things.IsPublished(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewNotFoundError("Thing", id)
	}
	return nil
}

func (s *MutationService) refresh(ctx context.Context, tags ...string) {
	if s.deps.Cache == nil {
		return
	}
	if err := s.deps.Cache.Refresh(ctx, tags...); err != nil {
		s.logger.WarnContext(ctx, "cache refresh failed", slog.Any("tags", tags), slog.Any("error", err))
	}
}

func (s *MutationService) invalidate(ctx context.Context, tags ...string) {
	if s.deps.Cache == nil {
		return
	}
	if err := s.deps.Cache.Invalidate(ctx, tags...); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", slog.Any("tags", tags), slog.Any("error", err))
	}
}
