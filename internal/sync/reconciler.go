// Package sync mirrors CMS documents into the content store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/alexdfirestone/national-parks/internal/cache"
	"github.com/alexdfirestone/national-parks/internal/cms"
	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/observability"
	"github.com/alexdfirestone/national-parks/internal/repository"
)

// Outcome is the action a reconciliation performed.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeDeleted Outcome = "deleted"
)

// Result describes one reconciled document.
type Result struct {
	Type    string  `json:"type"`
	ID      string  `json:"id"`
	Slug    string  `json:"slug,omitempty"`
	Outcome Outcome `json:"action"`
	// Slugs lists every local row the reconciliation touched.
	Slugs []string `json:"-"`
}

// Tags returns the cache tags invalidated by r.
func (r Result) Tags() []string {
	var tags []string
	for _, slug := range r.Slugs {
		t, err := cache.TagsFor(cache.Target{Type: r.Type, Slug: slug})
		if err != nil {
			continue
		}
		tags = append(tags, t...)
	}
	slices.Sort(tags)
	return slices.Compact(tags)
}

// Counts aggregates outcomes for one document type.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

func (c *Counts) add(o Outcome) {
	switch o {
	case OutcomeCreated:
		c.Created++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeDeleted:
		c.Deleted++
	}
}

// Report summarizes a full sync.
type Report struct {
	Parks      Counts `json:"parks"`
	Categories Counts `json:"categories"`

	// Slugs of every row the sync created, updated or deleted.
	ParkSlugs     []string `json:"-"`
	CategorySlugs []string `json:"-"`
}

// Tags returns the collection tags plus the tags of every touched row.
func (rep Report) Tags() []string {
	tags := []string{cache.TagParks, cache.TagCategories, cache.TagNav}
	tags = append(tags, Result{Type: cms.TypePark, Slugs: rep.ParkSlugs}.Tags()...)
	tags = append(tags, Result{Type: cms.TypeCategory, Slugs: rep.CategorySlugs}.Tags()...)
	slices.Sort(tags)
	return slices.Compact(tags)
}

// Source reads documents from the CMS.
type Source interface {
	FetchParks(ctx context.Context) ([]cms.ParkDocument, error)
	FetchCategories(ctx context.Context) ([]cms.CategoryDocument, error)
	FetchPark(ctx context.Context, id string) (*cms.ParkDocument, error)
	FetchCategory(ctx context.Context, id string) (*cms.CategoryDocument, error)
}

// ErrNoSource is returned by operations that need the CMS when none is configured.
var ErrNoSource = errors.New("cms source is not configured")

// Reconciler upserts and deletes mirrored rows.
type Reconciler struct {
	parks      repository.ParkRepository
	categories repository.CategoryRepository
	source     Source
	transform  cms.Transformer
	logger     *slog.Logger
}

// NewReconciler creates a Reconciler. source may be nil when only
// payload-driven reconciliation is used.
func NewReconciler(parks repository.ParkRepository, categories repository.CategoryRepository, source Source, transform cms.Transformer) *Reconciler {
	return &Reconciler{
		parks:      parks,
		categories: categories,
		source:     source,
		transform:  transform,
		logger:     middleware.Logger,
	}
}

// ReconcilePark upserts doc, or deletes its row when required fields are missing.
func (r *Reconciler) ReconcilePark(ctx context.Context, doc cms.ParkDocument) (res Result, err error) {
	ctx, span := observability.StartReconcileSpan(ctx, cms.TypePark, doc.ID)
	defer span.End()
	defer func() { r.record(ctx, cms.TypePark, res, err) }()

	res, err = r.upsertPark(ctx, doc)
	if !errors.Is(err, cms.ErrMissingFields) {
		return res, err
	}
	if doc.ID == "" {
		return res, models.NewValidationError("Missing required fields for park")
	}
	slugs, err := r.parks.DeleteByCMSID(ctx, doc.ID)
	if err != nil {
		return res, err
	}
	return deleted(res, slugs), nil
}

// ReconcileCategory upserts doc, or deletes its row when required fields are missing.
func (r *Reconciler) ReconcileCategory(ctx context.Context, doc cms.CategoryDocument) (res Result, err error) {
	ctx, span := observability.StartReconcileSpan(ctx, cms.TypeCategory, doc.ID)
	defer span.End()
	defer func() { r.record(ctx, cms.TypeCategory, res, err) }()

	res, err = r.upsertCategory(ctx, doc)
	if !errors.Is(err, cms.ErrMissingFields) {
		return res, err
	}
	if doc.ID == "" {
		return res, models.NewValidationError("Missing required fields for category")
	}
	slugs, err := r.categories.DeleteByCMSID(ctx, doc.ID)
	if err != nil {
		return res, err
	}
	return deleted(res, slugs), nil
}

func (r *Reconciler) upsertPark(ctx context.Context, doc cms.ParkDocument) (Result, error) {
	res := Result{Type: cms.TypePark, ID: doc.ID}
	park, err := r.transform.Park(doc)
	if err != nil {
		return res, err
	}
	up, err := r.parks.Upsert(ctx, &park)
	if err != nil {
		return res, fmt.Errorf("upsert park %s: %w", park.Slug, err)
	}
	res.Outcome = outcomeOf(up)
	res.Slug = park.Slug
	res.Slugs = touched(park.Slug, up.PreviousSlug)
	return res, nil
}

func (r *Reconciler) upsertCategory(ctx context.Context, doc cms.CategoryDocument) (Result, error) {
	res := Result{Type: cms.TypeCategory, ID: doc.ID}
	category, err := r.transform.Category(doc)
	if err != nil {
		return res, err
	}
	up, err := r.categories.Upsert(ctx, &category)
	if err != nil {
		return res, fmt.Errorf("upsert category %s: %w", category.Slug, err)
	}
	res.Outcome = outcomeOf(up)
	res.Slug = category.Slug
	res.Slugs = touched(category.Slug, up.PreviousSlug)
	return res, nil
}

// SyncDocument re-fetches one document by id. A document the CMS no longer
// returns is deleted locally.
func (r *Reconciler) SyncDocument(ctx context.Context, docType, id string) (Result, error) {
	if r.source == nil {
		return Result{}, ErrNoSource
	}
	if id == "" {
		return Result{}, models.NewValidationError("_id is required")
	}

	switch docType {
	case cms.TypePark:
		doc, err := r.source.FetchPark(ctx, id)
		if err != nil {
			return Result{}, fmt.Errorf("fetch park %s: %w", id, err)
		}
		if doc == nil {
			doc = &cms.ParkDocument{ID: id, Type: cms.TypePark}
		}
		return r.ReconcilePark(ctx, *doc)
	case cms.TypeCategory:
		doc, err := r.source.FetchCategory(ctx, id)
		if err != nil {
			return Result{}, fmt.Errorf("fetch category %s: %w", id, err)
		}
		if doc == nil {
			doc = &cms.CategoryDocument{ID: id, Type: cms.TypeCategory}
		}
		return r.ReconcileCategory(ctx, *doc)
	default:
		return Result{}, models.NewValidationError(fmt.Sprintf("Unknown document type: %s", docType))
	}
}

// FullSync mirrors both collections. Both fetches must succeed before any
// row is written. Documents are upserted one at a time; a failing document
// is logged and counted without stopping the batch. Rows matched by neither
// a fetched cms_id nor, for documents without one, a fetched slug are
// deleted afterwards.
func (r *Reconciler) FullSync(ctx context.Context) (Report, error) {
	if r.source == nil {
		return Report{}, ErrNoSource
	}
	defer observability.TrackSync("full")()

	var (
		parkDocs     []cms.ParkDocument
		categoryDocs []cms.CategoryDocument
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := r.source.FetchParks(gctx)
		if err != nil {
			return fmt.Errorf("fetch parks: %w", err)
		}
		parkDocs = docs
		return nil
	})
	g.Go(func() error {
		docs, err := r.source.FetchCategories(gctx)
		if err != nil {
			return fmt.Errorf("fetch categories: %w", err)
		}
		categoryDocs = docs
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	var report Report

	var parkIDs, parkSlugs []string
	for _, doc := range parkDocs {
		if doc.ID != "" {
			parkIDs = append(parkIDs, doc.ID)
		}
		res, err := r.upsertPark(ctx, doc)
		recordOutcome(cms.TypePark, res, err)
		if err != nil {
			report.Parks.Failed++
			r.logger.ErrorContext(ctx, "Error syncing park", slog.String("cms_id", doc.ID), slog.String("name", doc.Name), slog.Any("error", err))
			continue
		}
		if doc.ID == "" {
			parkSlugs = append(parkSlugs, res.Slug)
		}
		report.Parks.add(res.Outcome)
		report.ParkSlugs = append(report.ParkSlugs, res.Slugs...)
	}
	removed, err := r.parks.DeleteMissing(ctx, parkIDs, parkSlugs)
	if err != nil {
		return report, fmt.Errorf("delete stale parks: %w", err)
	}
	report.Parks.Deleted += len(removed)
	report.ParkSlugs = append(report.ParkSlugs, removed...)
	for _, slug := range removed {
		r.logger.InfoContext(ctx, "Deleted park not in CMS", slog.String("slug", slug))
		observability.RecordSyncOutcome(cms.TypePark, string(OutcomeDeleted))
	}

	var categoryIDs, categorySlugs []string
	for _, doc := range categoryDocs {
		if doc.ID != "" {
			categoryIDs = append(categoryIDs, doc.ID)
		}
		res, err := r.upsertCategory(ctx, doc)
		recordOutcome(cms.TypeCategory, res, err)
		if err != nil {
			report.Categories.Failed++
			r.logger.ErrorContext(ctx, "Error syncing category", slog.String("cms_id", doc.ID), slog.String("name", doc.Name), slog.Any("error", err))
			continue
		}
		if doc.ID == "" {
			categorySlugs = append(categorySlugs, res.Slug)
		}
		report.Categories.add(res.Outcome)
		report.CategorySlugs = append(report.CategorySlugs, res.Slugs...)
	}
	removed, err = r.categories.DeleteMissing(ctx, categoryIDs, categorySlugs)
	if err != nil {
		return report, fmt.Errorf("delete stale categories: %w", err)
	}
	report.Categories.Deleted += len(removed)
	report.CategorySlugs = append(report.CategorySlugs, removed...)
	for _, slug := range removed {
		r.logger.InfoContext(ctx, "Deleted category not in CMS", slog.String("slug", slug))
		observability.RecordSyncOutcome(cms.TypeCategory, string(OutcomeDeleted))
	}

	r.logger.InfoContext(ctx, "Full sync complete",
		slog.Int("parks_created", report.Parks.Created),
		slog.Int("parks_updated", report.Parks.Updated),
		slog.Int("parks_deleted", report.Parks.Deleted),
		slog.Int("parks_failed", report.Parks.Failed),
		slog.Int("categories_created", report.Categories.Created),
		slog.Int("categories_updated", report.Categories.Updated),
		slog.Int("categories_deleted", report.Categories.Deleted),
		slog.Int("categories_failed", report.Categories.Failed),
	)
	return report, nil
}

func (r *Reconciler) record(ctx context.Context, docType string, res Result, err error) {
	if err != nil {
		observability.RecordErrorInContext(ctx, err)
	}
	recordOutcome(docType, res, err)
}

func recordOutcome(docType string, res Result, err error) {
	if err != nil {
		observability.RecordSyncOutcome(docType, "failed")
		return
	}
	observability.RecordSyncOutcome(docType, string(res.Outcome))
}

func outcomeOf(up repository.UpsertResult) Outcome {
	if up.Inserted {
		return OutcomeCreated
	}
	return OutcomeUpdated
}

// touched lists slug and, after a rename, the slug the row had before.
func touched(slug, previous string) []string {
	if previous == "" || previous == slug {
		return []string{slug}
	}
	return []string{slug, previous}
}

func deleted(res Result, slugs []string) Result {
	res.Outcome = OutcomeDeleted
	res.Slugs = slugs
	if len(slugs) > 0 {
		res.Slug = slugs[0]
	}
	return res
}
