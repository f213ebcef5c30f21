package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdfirestone/national-parks/internal/cms"
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/repository"
)

// memParks is an in-memory ParkRepository keyed on cms_id.
type memParks struct {
	rows          map[string]models.Park
	nextID        uint
	failSlug      string
	deleteMissing func(keepIDs, keepSlugs []string) ([]string, error)
}

func newMemParks() *memParks {
	return &memParks{rows: map[string]models.Park{}}
}

func (m *memParks) Upsert(_ context.Context, park *models.Park) (repository.UpsertResult, error) {
	if park.Slug == m.failSlug {
		return repository.UpsertResult{}, models.NewInternalError(errors.New("boom"))
	}
	key := park.CMSID
	if key == "" {
		key = park.Slug
	}
	if existing, ok := m.rows[key]; ok {
		park.ID = existing.ID
		m.rows[key] = *park
		res := repository.UpsertResult{ID: park.ID}
		if park.CMSID != "" {
			res.PreviousSlug = existing.Slug
		}
		return res, nil
	}
	m.nextID++
	park.ID = m.nextID
	m.rows[key] = *park
	return repository.UpsertResult{ID: park.ID, Inserted: true}, nil
}

func (m *memParks) DeleteByCMSID(_ context.Context, cmsID string) ([]string, error) {
	row, ok := m.rows[cmsID]
	if !ok {
		return nil, models.NewNotFoundError("Park", cmsID)
	}
	delete(m.rows, cmsID)
	return []string{row.Slug}, nil
}

func (m *memParks) DeleteMissing(_ context.Context, keepIDs, keepSlugs []string) ([]string, error) {
	if m.deleteMissing != nil {
		return m.deleteMissing(keepIDs, keepSlugs)
	}
	kept := map[string]bool{}
	for _, id := range keepIDs {
		kept[id] = true
	}
	for _, slug := range keepSlugs {
		kept["slug:"+slug] = true
	}
	var removed []string
	for id, row := range m.rows {
		if !kept[id] && !kept["slug:"+row.Slug] {
			removed = append(removed, row.Slug)
			delete(m.rows, id)
		}
	}
	return removed, nil
}

func (m *memParks) List(context.Context) ([]models.Park, error) { return nil, nil }

func (m *memParks) GetBySlug(context.Context, string) (*models.Park, error) { return nil, nil }

func (m *memParks) GetByID(context.Context, uint) (*models.Park, error) { return nil, nil }

type stubCategories struct {
	upsertFn        func(category *models.Category) (repository.UpsertResult, error)
	deleteByCMSIDFn func(cmsID string) ([]string, error)
	deleteMissingFn func(keepIDs, keepSlugs []string) ([]string, error)
}

func (s *stubCategories) Upsert(_ context.Context, category *models.Category) (repository.UpsertResult, error) {
	if s.upsertFn == nil {
		return repository.UpsertResult{ID: 1, Inserted: true}, nil
	}
	return s.upsertFn(category)
}

func (s *stubCategories) DeleteByCMSID(_ context.Context, cmsID string) ([]string, error) {
	if s.deleteByCMSIDFn == nil {
		return nil, models.NewNotFoundError("Category", cmsID)
	}
	return s.deleteByCMSIDFn(cmsID)
}

func (s *stubCategories) DeleteMissing(_ context.Context, keepIDs, keepSlugs []string) ([]string, error) {
	if s.deleteMissingFn == nil {
		return nil, nil
	}
	return s.deleteMissingFn(keepIDs, keepSlugs)
}

func (s *stubCategories) List(context.Context) ([]models.Category, error) { return nil, nil }

func (s *stubCategories) GetBySlug(context.Context, string) (*models.Category, error) {
	return nil, nil
}

func (s *stubCategories) GetByID(context.Context, uint) (*models.Category, error) { return nil, nil }

type stubSource struct {
	parks         []cms.ParkDocument
	categories    []cms.CategoryDocument
	parksErr      error
	categoriesErr error
	park          *cms.ParkDocument
	category      *cms.CategoryDocument
}

func (s *stubSource) FetchParks(context.Context) ([]cms.ParkDocument, error) {
	return s.parks, s.parksErr
}

func (s *stubSource) FetchCategories(context.Context) ([]cms.CategoryDocument, error) {
	return s.categories, s.categoriesErr
}

func (s *stubSource) FetchPark(context.Context, string) (*cms.ParkDocument, error) {
	return s.park, nil
}

func (s *stubSource) FetchCategory(context.Context, string) (*cms.CategoryDocument, error) {
	return s.category, nil
}

var testTransform = cms.Transformer{ProjectID: "proj1", Dataset: "production"}

func parkDoc(id, slug, name string) cms.ParkDocument {
	doc := cms.ParkDocument{ID: id, Type: cms.TypePark, Name: name}
	if slug != "" {
		doc.Slug = &cms.Slug{Current: slug}
	}
	return doc
}

func TestReconcilePark_TwiceIsUpdated(t *testing.T) {
	t.Parallel()
	parks := newMemParks()
	r := NewReconciler(parks, &stubCategories{}, nil, testTransform)
	ctx := context.Background()

	doc := parkDoc("park-zion", "zion", "Zion")
	first, err := r.ReconcilePark(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, first.Outcome)

	second, err := r.ReconcilePark(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, second.Outcome)
	assert.Len(t, parks.rows, 1)
	assert.Equal(t, "zion", second.Slug)
	assert.ElementsMatch(t, []string{"park:zion", "park:zion:things", "parks", "nav"}, second.Tags())
}

func TestReconcilePark_RenameTagsPreviousSlug(t *testing.T) {
	t.Parallel()
	parks := newMemParks()
	r := NewReconciler(parks, &stubCategories{}, nil, testTransform)
	ctx := context.Background()

	_, err := r.ReconcilePark(ctx, parkDoc("park-zion", "zion", "Zion"))
	require.NoError(t, err)

	res, err := r.ReconcilePark(ctx, parkDoc("park-zion", "zion-np", "Zion"))
	require.NoError(t, err)
	assert.Equal(t, "zion-np", res.Slug)
	assert.Subset(t, res.Tags(), []string{"park:zion", "park:zion:things", "park:zion-np"})
}

func TestReconcilePark_SummaryFlattened(t *testing.T) {
	t.Parallel()
	parks := newMemParks()
	r := NewReconciler(parks, &stubCategories{}, nil, testTransform)

	doc := parkDoc("park-zion", "zion", "Zion")
	doc.Summary = cms.PortableText{
		{Type: "block", Children: []cms.Span{{Type: "span", Text: "A"}}},
		{Type: "block", Children: []cms.Span{{Type: "span", Text: "B"}}},
	}
	_, err := r.ReconcilePark(context.Background(), doc)
	require.NoError(t, err)
	require.NotNil(t, parks.rows["park-zion"].Summary)
	assert.Equal(t, "A\n\nB", *parks.rows["park-zion"].Summary)
}

func TestReconcilePark_MissingFieldsDeletes(t *testing.T) {
	t.Parallel()
	parks := newMemParks()
	r := NewReconciler(parks, &stubCategories{}, nil, testTransform)
	ctx := context.Background()

	_, err := r.ReconcilePark(ctx, parkDoc("park-zion", "zion", "Zion"))
	require.NoError(t, err)

	res, err := r.ReconcilePark(ctx, parkDoc("park-zion", "", ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, res.Outcome)
	assert.Equal(t, "zion", res.Slug)
	assert.Empty(t, parks.rows)

	_, err = r.ReconcilePark(ctx, parkDoc("park-zion", "", "Zion"))
	assert.True(t, models.IsCode(err, models.CodeNotFound), "no row left to delete")

	_, err = r.ReconcilePark(ctx, parkDoc("", "", ""))
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestReconcileCategory(t *testing.T) {
	t.Parallel()
	var got *models.Category
	cats := &stubCategories{
		upsertFn: func(category *models.Category) (repository.UpsertResult, error) {
			got = category
			return repository.UpsertResult{ID: 4}, nil
		},
		deleteByCMSIDFn: func(cmsID string) ([]string, error) {
			return []string{"hiking"}, nil
		},
	}
	r := NewReconciler(newMemParks(), cats, nil, testTransform)
	ctx := context.Background()

	res, err := r.ReconcileCategory(ctx, cms.CategoryDocument{ID: "cat-1", Name: "Hiking", Slug: &cms.Slug{Current: "hiking"}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, res.Outcome)
	require.NotNil(t, got.CMSID)
	assert.Equal(t, "cat-1", *got.CMSID)
	assert.ElementsMatch(t, []string{"category:hiking", "categories", "nav"}, res.Tags())

	res, err = r.ReconcileCategory(ctx, cms.CategoryDocument{ID: "cat-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, res.Outcome)
}

func TestSyncDocument(t *testing.T) {
	t.Parallel()
	parks := newMemParks()
	doc := parkDoc("park-zion", "zion", "Zion")
	src := &stubSource{park: &doc}
	r := NewReconciler(parks, &stubCategories{}, src, testTransform)
	ctx := context.Background()

	res, err := r.SyncDocument(ctx, cms.TypePark, "park-zion")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)

	src.park = nil
	res, err = r.SyncDocument(ctx, cms.TypePark, "park-zion")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, res.Outcome)

	_, err = r.SyncDocument(ctx, "author", "a-1")
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = NewReconciler(parks, &stubCategories{}, nil, testTransform).SyncDocument(ctx, cms.TypePark, "x")
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestFullSync_OneInvalidOfFive(t *testing.T) {
	t.Parallel()
	parks := newMemParks()
	src := &stubSource{}
	for i := 1; i <= 4; i++ {
		src.parks = append(src.parks, parkDoc(fmt.Sprintf("park-%d", i), fmt.Sprintf("park-%d", i), fmt.Sprintf("Park %d", i)))
	}
	src.parks = append(src.parks, parkDoc("park-5", "", "Nameless slug"))

	r := NewReconciler(parks, &stubCategories{}, src, testTransform)
	report, err := r.FullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counts{Created: 4, Failed: 1}, report.Parks)
	assert.Len(t, parks.rows, 4)
}

func TestFullSync_IsolatesFailuresAndDeletesStale(t *testing.T) {
	t.Parallel()
	parks := newMemParks()
	parks.rows["park-old"] = models.Park{ID: 99, CMSID: "park-old", Slug: "old"}
	parks.rows["park-a"] = models.Park{ID: 1, CMSID: "park-a", Slug: "a"}
	parks.nextID = 100
	parks.failSlug = "broken"

	var keptCategories []string
	cats := &stubCategories{
		deleteMissingFn: func(keepIDs, _ []string) ([]string, error) {
			keptCategories = keepIDs
			return []string{"legacy"}, nil
		},
	}
	src := &stubSource{
		parks: []cms.ParkDocument{
			parkDoc("park-a", "a", "A"),
			parkDoc("park-b", "broken", "Broken"),
			parkDoc("park-c", "c", "C"),
		},
		categories: []cms.CategoryDocument{
			{ID: "cat-1", Name: "Hiking", Slug: &cms.Slug{Current: "hiking"}},
		},
	}

	r := NewReconciler(parks, cats, src, testTransform)
	report, err := r.FullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counts{Created: 1, Updated: 1, Deleted: 1, Failed: 1}, report.Parks)
	assert.Equal(t, Counts{Created: 1, Deleted: 1}, report.Categories)
	assert.Equal(t, []string{"cat-1"}, keptCategories)
	assert.NotContains(t, parks.rows, "park-old")
	assert.ElementsMatch(t, []string{
		"parks", "categories", "nav",
		"park:a", "park:a:things",
		"park:c", "park:c:things",
		"park:old", "park:old:things",
		"category:hiking", "category:legacy",
	}, report.Tags())
}

func TestFullSync_RenameInvalidatesBothSlugs(t *testing.T) {
	t.Parallel()
	parks := newMemParks()
	src := &stubSource{parks: []cms.ParkDocument{parkDoc("p1", "zion", "Zion")}}
	r := NewReconciler(parks, &stubCategories{}, src, testTransform)
	ctx := context.Background()

	_, err := r.FullSync(ctx)
	require.NoError(t, err)

	src.parks = []cms.ParkDocument{parkDoc("p1", "zion-np", "Zion National Park")}
	report, err := r.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Updated: 1}, report.Parks)
	assert.Subset(t, report.Tags(), []string{"park:zion", "park:zion:things", "park:zion-np", "park:zion-np:things"})
}

func TestFullSync_KeepsDocumentsWithoutID(t *testing.T) {
	t.Parallel()
	parks := newMemParks()
	var keptSlugs []string
	cats := &stubCategories{
		deleteMissingFn: func(_, keepSlugs []string) ([]string, error) {
			keptSlugs = keepSlugs
			return nil, nil
		},
	}
	src := &stubSource{
		parks:      []cms.ParkDocument{parkDoc("", "zion", "Zion")},
		categories: []cms.CategoryDocument{{Name: "Fishing", Slug: &cms.Slug{Current: "fishing"}}},
	}

	r := NewReconciler(parks, cats, src, testTransform)
	report, err := r.FullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counts{Created: 1}, report.Parks)
	assert.Len(t, parks.rows, 1)
	assert.Equal(t, []string{"fishing"}, keptSlugs)
}

func TestFullSync_FetchFailureAbortsBeforeDeletes(t *testing.T) {
	t.Parallel()
	parks := newMemParks()
	deleteCalled := false
	parks.deleteMissing = func(_, _ []string) ([]string, error) {
		deleteCalled = true
		return nil, nil
	}
	src := &stubSource{
		parks:         []cms.ParkDocument{parkDoc("park-a", "a", "A")},
		categoriesErr: errors.New("cms unavailable"),
	}

	r := NewReconciler(parks, &stubCategories{}, src, testTransform)
	_, err := r.FullSync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch categories")
	assert.False(t, deleteCalled)
	assert.Empty(t, parks.rows)
}
