package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var guest = models.Caller{ProviderID: "guest", DisplayName: "Guest", Roles: []string{models.RoleUser}, Guest: true}

var moderator = models.Caller{ProviderID: "mod-1", DisplayName: "Ranger", Roles: []string{models.RoleUser, models.RoleModerator}}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected *models.AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, models.CodeValidation)
}

// Stubs embed the repository interface so calls to an unset method panic.

type parkRepoStub struct {
	repository.ParkRepository
	getByIDFn   func(context.Context, uint) (*models.Park, error)
	getBySlugFn func(context.Context, string) (*models.Park, error)
	listFn      func(context.Context) ([]models.Park, error)
}

func (s *parkRepoStub) GetByID(ctx context.Context, id uint) (*models.Park, error) {
	return s.getByIDFn(ctx, id)
}
func (s *parkRepoStub) GetBySlug(ctx context.Context, slug string) (*models.Park, error) {
	return s.getBySlugFn(ctx, slug)
}
func (s *parkRepoStub) List(ctx context.Context) ([]models.Park, error) { return s.listFn(ctx) }

type categoryRepoStub struct {
	repository.CategoryRepository
	getByIDFn func(context.Context, uint) (*models.Category, error)
	listFn    func(context.Context) ([]models.Category, error)
}

func (s *categoryRepoStub) GetByID(ctx context.Context, id uint) (*models.Category, error) {
	return s.getByIDFn(ctx, id)
}
func (s *categoryRepoStub) List(ctx context.Context) ([]models.Category, error) { return s.listFn(ctx) }

type userRepoStub struct {
	repository.UserRepository
	mu    sync.Mutex
	calls []models.Caller
}

func (s *userRepoStub) GetOrCreate(_ context.Context, caller models.Caller) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, caller)
	return &models.User{ID: uint(len(s.calls)) + 100, ProviderID: caller.ProviderID, DisplayName: caller.DisplayName, Roles: caller.Roles}, nil
}

type thingRepoStub struct {
	repository.ThingRepository
	createFn    func(context.Context, *models.Thing) error
	addImageFn  func(context.Context, *models.ThingImage) error
	getByIDFn   func(context.Context, uint) (*models.Thing, error)
	publishedFn func(context.Context, uint) (bool, error)
	listFn      func(context.Context, uint, int) ([]models.Thing, error)
}

func (s *thingRepoStub) Create(ctx context.Context, thing *models.Thing) error {
	return s.createFn(ctx, thing)
}
func (s *thingRepoStub) AddImage(ctx context.Context, img *models.ThingImage) error {
	return s.addImageFn(ctx, img)
}
func (s *thingRepoStub) GetByID(ctx context.Context, id uint) (*models.Thing, error) {
	return s.getByIDFn(ctx, id)
}
func (s *thingRepoStub) IsPublished(ctx context.Context, id uint) (bool, error) {
	return s.publishedFn(ctx, id)
}
func (s *thingRepoStub) ListPublishedByPark(ctx context.Context, parkID uint, limit int) ([]models.Thing, error) {
	return s.listFn(ctx, parkID, limit)
}

func publishedThings(ids ...uint) *thingRepoStub {
	return &thingRepoStub{
		publishedFn: func(_ context.Context, id uint) (bool, error) {
			for _, known := range ids {
				if known == id {
					return true, nil
				}
			}
			return false, nil
		},
	}
}

type commentRepoStub struct {
	repository.CommentRepository
	createFn  func(context.Context, *models.Comment) error
	getByIDFn func(context.Context, uint) (*models.Comment, error)
	listFn    func(context.Context, uint, int) ([]models.Comment, error)
}

func (s *commentRepoStub) Create(ctx context.Context, c *models.Comment) error {
	return s.createFn(ctx, c)
}
func (s *commentRepoStub) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	return s.getByIDFn(ctx, id)
}
func (s *commentRepoStub) ListByThing(ctx context.Context, thingID uint, limit int) ([]models.Comment, error) {
	return s.listFn(ctx, thingID, limit)
}

type voteRepoStub struct {
	repository.VoteRepository
	upsertFn  func(context.Context, *models.Vote) error
	tallyFn   func(context.Context, models.SubjectType, uint) (models.VoteTally, error)
	talliesFn func(context.Context, models.SubjectType, []uint) (map[uint]models.VoteTally, error)
}

func (s *voteRepoStub) Upsert(ctx context.Context, v *models.Vote) error { return s.upsertFn(ctx, v) }
func (s *voteRepoStub) Tally(ctx context.Context, st models.SubjectType, id uint) (models.VoteTally, error) {
	return s.tallyFn(ctx, st, id)
}
func (s *voteRepoStub) Tallies(ctx context.Context, st models.SubjectType, ids []uint) (map[uint]models.VoteTally, error) {
	return s.talliesFn(ctx, st, ids)
}

type flagRepoStub struct {
	repository.ModerationRepository
	createFn  func(context.Context, *models.ModerationFlag) error
	getByIDFn func(context.Context, uint) (*models.ModerationFlag, error)
	listFn    func(context.Context, models.FlagStatus, int) ([]models.ModerationFlag, error)
	resolveFn func(context.Context, uint, uint, repository.Resolution) (*models.ModerationFlag, error)
}

func (s *flagRepoStub) Create(ctx context.Context, f *models.ModerationFlag) error {
	return s.createFn(ctx, f)
}
func (s *flagRepoStub) GetByID(ctx context.Context, id uint) (*models.ModerationFlag, error) {
	return s.getByIDFn(ctx, id)
}
func (s *flagRepoStub) List(ctx context.Context, status models.FlagStatus, limit int) ([]models.ModerationFlag, error) {
	return s.listFn(ctx, status, limit)
}
func (s *flagRepoStub) Resolve(ctx context.Context, id, resolverID uint, res repository.Resolution) (*models.ModerationFlag, error) {
	return s.resolveFn(ctx, id, resolverID, res)
}

// invalidatorStub records dispatched tags by mode.
type invalidatorStub struct {
	mu          sync.Mutex
	invalidated []string
	refreshed   []string
	err         error
}

func (s *invalidatorStub) Invalidate(_ context.Context, tags ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, tags...)
	return s.err
}

func (s *invalidatorStub) Refresh(_ context.Context, tags ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed = append(s.refreshed, tags...)
	return s.err
}

// passthroughCache always calls fetch and records the tags per key.
type passthroughCache struct {
	mu   sync.Mutex
	tags map[string][]string
}

func (c *passthroughCache) Tagged(ctx context.Context, key string, tags []string, _ time.Duration, _ any, fetch func(context.Context) error) error {
	c.mu.Lock()
	if c.tags == nil {
		c.tags = map[string][]string{}
	}
	c.tags[key] = tags
	c.mu.Unlock()
	return fetch(ctx)
}
