package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/alexdfirestone/national-parks/internal/cache"
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/repository"
)

// ReadCache is the tagged cache-aside store used by the read API.
type ReadCache interface {
	Tagged(ctx context.Context, key string, tags []string, ttl time.Duration, dest any, fetch func(ctx context.Context) error) error
}

// ContentService serves cached reads of parks, categories and things.
type ContentService struct {
	parks      repository.ParkRepository
	categories repository.CategoryRepository
	things     repository.ThingRepository
	comments   repository.CommentRepository
	votes      repository.VoteRepository
	cache      ReadCache
}

// NewContentService returns a ContentService reading through rc.
func NewContentService(
	parks repository.ParkRepository,
	categories repository.CategoryRepository,
	things repository.ThingRepository,
	comments repository.CommentRepository,
	votes repository.VoteRepository,
	rc ReadCache,
) *ContentService {
	return &ContentService{
		parks:      parks,
		categories: categories,
		things:     things,
		comments:   comments,
		votes:      votes,
		cache:      rc,
	}
}

func (s *ContentService) ListParks(ctx context.Context) ([]models.Park, error) {
	var parks []models.Park
	err := s.cache.Tagged(ctx, cache.ParksKey, []string{cache.TagParks, cache.TagNav}, cache.ContentTTL, &parks,
		func(ctx context.Context) (err error) {
			parks, err = s.parks.List(ctx)
			return err
		})
	return parks, err
}

func (s *ContentService) GetPark(ctx context.Context, slug string) (*models.Park, error) {
	var park *models.Park
	err := s.cache.Tagged(ctx, cache.ParkKey(slug), []string{cache.ParkTag(slug)}, cache.ContentTTL, &park,
		func(ctx context.Context) (err error) {
			park, err = s.parks.GetBySlug(ctx, slug)
			return err
		})
	return park, err
}

func (s *ContentService) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.cache.Tagged(ctx, cache.CategoriesKey, []string{cache.TagCategories, cache.TagNav}, cache.ContentTTL, &categories,
		func(ctx context.Context) (err error) {
			categories, err = s.categories.List(ctx)
			return err
		})
	return categories, err
}

// ListParkThings returns the park's published feed with vote tallies attached.
func (s *ContentService) ListParkThings(ctx context.Context, slug string) ([]models.Thing, error) {
	var things []models.Thing
	err := s.cache.Tagged(ctx, cache.ParkThingsKey(slug), []string{cache.ParkThingsTag(slug)}, cache.ActivityTTL, &things,
		func(ctx context.Context) error {
			park, err := s.parks.GetBySlug(ctx, slug)
			if err != nil {
				return err
			}
			things, err = s.things.ListPublishedByPark(ctx, park.ID, repository.DefaultFeedLimit)
			if err != nil {
				return err
			}
			return s.attachTallies(ctx, things)
		})
	return things, err
}

// attachTallies resolves every thing's tally through one batched query.
func (s *ContentService) attachTallies(ctx context.Context, things []models.Thing) error {
	if len(things) == 0 {
		return nil
	}
	loader := s.tallyLoader()

	thunks := make([]dataloader.Thunk, len(things))
	for i := range things {
		thunks[i] = loader.Load(ctx, dataloader.StringKey(strconv.FormatUint(uint64(things[i].ID), 10)))
	}
	for i, thunk := range thunks {
		data, err := thunk()
		if err != nil {
			return err
		}
		tally := data.(models.VoteTally)
		things[i].Votes = &tally
	}
	return nil
}

func (s *ContentService) tallyLoader() *dataloader.Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uint, len(keys))
		for i, key := range keys {
			id, err := strconv.ParseUint(key.String(), 10, 64)
			if err != nil {
				return failAll(len(keys), fmt.Errorf("tally key %q: %w", key.String(), err))
			}
			ids[i] = uint(id)
		}

		tallies, err := s.votes.Tallies(ctx, models.SubjectThing, ids)
		if err != nil {
			return failAll(len(keys), err)
		}

		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			results[i] = &dataloader.Result{Data: tallies[id]}
		}
		return results
	}
	return dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond))
}

func failAll(n int, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}

func (s *ContentService) GetThing(ctx context.Context, id uint) (*models.Thing, error) {
	var thing *models.Thing
	err := s.cache.Tagged(ctx, cache.ThingKey(id), []string{cache.ThingTag(id)}, cache.ContentTTL, &thing,
		func(ctx context.Context) (err error) {
			thing, err = s.things.GetByID(ctx, id)
			return err
		})
	return thing, err
}

func (s *ContentService) GetVotes(ctx context.Context, id uint) (models.VoteTally, error) {
	var tally models.VoteTally
	err := s.cache.Tagged(ctx, cache.ThingVotesKey(id), []string{cache.ThingVotesTag(id)}, cache.ActivityTTL, &tally,
		func(ctx context.Context) (err error) {
			tally, err = s.votes.Tally(ctx, models.SubjectThing, id)
			return err
		})
	return tally, err
}

// ListComments returns the thing's comments oldest first.
func (s *ContentService) ListComments(ctx context.Context, thingID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.cache.Tagged(ctx, cache.ThingCommentsKey(thingID), []string{cache.ThingCommentsTag(thingID)}, cache.ActivityTTL, &comments,
		func(ctx context.Context) (err error) {
			comments, err = s.comments.ListByThing(ctx, thingID, repository.DefaultCommentLimit)
			return err
		})
	return comments, err
}
