// Package seed loads reference content into the CMS and the content store,
// and generates demo activity for development databases.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexdfirestone/national-parks/internal/cms"
	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/repository"

	"gorm.io/gorm"
)

// Options controls database seeding.
type Options struct {
	// Users, Things and the per-thing counts size the demo activity. Zero
	// Things seeds reference content only.
	Users            int
	Things           int
	CommentsPerThing int
	VotersPerThing   int
	// RandSeed makes generated content reproducible. Zero is random.
	RandSeed int64
}

// DefaultOptions is what `parksctl seed db` uses without flags.
var DefaultOptions = Options{Users: 12, Things: 40, CommentsPerThing: 3, VotersPerThing: 6}

// Repos are the stores the seeder writes through.
type Repos struct {
	Parks      repository.ParkRepository
	Categories repository.CategoryRepository
	Users      repository.UserRepository
	Things     repository.ThingRepository
	Comments   repository.CommentRepository
	Votes      repository.VoteRepository
}

// NewRepos builds the Postgres-backed repositories.
func NewRepos(db *gorm.DB) Repos {
	return Repos{
		Parks:      repository.NewParkRepository(db),
		Categories: repository.NewCategoryRepository(db),
		Users:      repository.NewUserRepository(db),
		Things:     repository.NewThingRepository(db),
		Comments:   repository.NewCommentRepository(db),
		Votes:      repository.NewVoteRepository(db),
	}
}

// Summary counts what a run wrote.
type Summary struct {
	Parks      int
	Categories int
	Users      int
	Things     int
	Comments   int
	Votes      int
}

// Seeder writes fixtures and demo activity to the content store.
type Seeder struct {
	repos   Repos
	opts    Options
	factory *Factory
	mapper  cms.Transformer
	logger  *slog.Logger
}

// NewSeeder returns a Seeder. Fixture documents pass through the same
// document-to-row mapping the sync reconciler uses.
func NewSeeder(repos Repos, opts Options, mapper cms.Transformer) *Seeder {
	return &Seeder{
		repos:   repos,
		opts:    opts,
		factory: NewFactory(opts.RandSeed),
		mapper:  mapper,
		logger:  middleware.Logger.With(slog.String("component", "seed_db")),
	}
}

// Seed upserts the fixtures, then generates demo activity when requested.
func (s *Seeder) Seed(ctx context.Context, fx *Fixtures) (Summary, error) {
	var sum Summary

	categories := make([]*models.Category, 0, len(fx.Categories))
	for _, c := range fx.Categories {
		row, err := s.mapper.Category(c.Document())
		if err != nil {
			return sum, fmt.Errorf("category %s: %w", c.Slug, err)
		}
		if _, err := s.repos.Categories.Upsert(ctx, &row); err != nil {
			return sum, fmt.Errorf("category %s: %w", c.Slug, err)
		}
		categories = append(categories, &row)
	}
	sum.Categories = len(categories)

	parks := make([]*models.Park, 0, len(fx.Parks))
	for _, p := range fx.Parks {
		row, err := s.mapper.Park(p.Document())
		if err != nil {
			return sum, fmt.Errorf("park %s: %w", p.Slug, err)
		}
		if _, err := s.repos.Parks.Upsert(ctx, &row); err != nil {
			return sum, fmt.Errorf("park %s: %w", p.Slug, err)
		}
		parks = append(parks, &row)
	}
	sum.Parks = len(parks)
	s.logger.InfoContext(ctx, "reference content seeded",
		slog.Int("parks", sum.Parks), slog.Int("categories", sum.Categories))

	if s.opts.Things <= 0 {
		return sum, nil
	}
	if len(parks) == 0 || len(categories) == 0 {
		return sum, errors.New("demo activity needs at least one park and one category")
	}
	return s.seedActivity(ctx, parks, categories, sum)
}

func (s *Seeder) seedActivity(ctx context.Context, parks []*models.Park, categories []*models.Category, sum Summary) (Summary, error) {
	userCount := max(s.opts.Users, 1)
	users := make([]*models.User, 0, userCount)
	for range userCount {
		u, err := s.repos.Users.GetOrCreate(ctx, s.factory.Caller())
		if err != nil {
			return sum, fmt.Errorf("create user: %w", err)
		}
		users = append(users, u)
	}
	sum.Users = len(users)

	for range s.opts.Things {
		park := parks[s.factory.Pick(len(parks))]
		category := categories[s.factory.Pick(len(categories))]
		author := users[s.factory.Pick(len(users))]

		thing := s.factory.Thing(park, category, author)
		if err := s.repos.Things.Create(ctx, thing); err != nil {
			return sum, fmt.Errorf("create thing: %w", err)
		}
		sum.Things++

		n, err := s.seedComments(ctx, thing, users)
		sum.Comments += n
		if err != nil {
			return sum, err
		}

		n, err = s.seedVotes(ctx, thing, users)
		sum.Votes += n
		if err != nil {
			return sum, err
		}
	}

	s.logger.InfoContext(ctx, "demo activity seeded",
		slog.Int("users", sum.Users),
		slog.Int("things", sum.Things),
		slog.Int("comments", sum.Comments),
		slog.Int("votes", sum.Votes))
	return sum, nil
}

// seedComments writes top-level comments; each may get one reply.
func (s *Seeder) seedComments(ctx context.Context, thing *models.Thing, users []*models.User) (int, error) {
	written := 0
	for range s.opts.CommentsPerThing {
		top := s.factory.Comment(thing, users[s.factory.Pick(len(users))], nil)
		if err := s.repos.Comments.Create(ctx, top); err != nil {
			return written, fmt.Errorf("create comment: %w", err)
		}
		written++

		if !s.factory.Chance(40) {
			continue
		}
		reply := s.factory.Comment(thing, users[s.factory.Pick(len(users))], top)
		if err := s.repos.Comments.Create(ctx, reply); err != nil {
			return written, fmt.Errorf("create reply: %w", err)
		}
		written++
	}
	return written, nil
}

// seedVotes has distinct users vote once each.
func (s *Seeder) seedVotes(ctx context.Context, thing *models.Thing, users []*models.User) (int, error) {
	voters := min(s.opts.VotersPerThing, len(users))
	start := s.factory.Pick(len(users))
	for i := range voters {
		voter := users[(start+i)%len(users)]
		vote := &models.Vote{
			UserID:      voter.ID,
			SubjectType: models.SubjectThing,
			SubjectID:   thing.ID,
			Value:       s.factory.VoteValue(),
		}
		if err := s.repos.Votes.Upsert(ctx, vote); err != nil {
			return i, fmt.Errorf("create vote: %w", err)
		}
	}
	return voters, nil
}
