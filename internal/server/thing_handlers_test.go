package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/repository"
	"github.com/alexdfirestone/national-parks/internal/service"
	"github.com/alexdfirestone/national-parks/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mocks embed the repository interface; only the methods a test exercises are mocked.

type MockUserRepository struct {
	repository.UserRepository
	mock.Mock
}

func (m *MockUserRepository) GetOrCreate(ctx context.Context, caller models.Caller) (*models.User, error) {
	args := m.Called(ctx, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockThingRepository struct {
	repository.ThingRepository
	mock.Mock
}

func (m *MockThingRepository) IsPublished(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockThingRepository) Create(ctx context.Context, thing *models.Thing) error {
	args := m.Called(ctx, thing)
	return args.Error(0)
}

func (m *MockThingRepository) AddImage(ctx context.Context, image *models.ThingImage) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}

type MockVoteRepository struct {
	repository.VoteRepository
	mock.Mock
}

func (m *MockVoteRepository) Upsert(ctx context.Context, vote *models.Vote) error {
	args := m.Called(ctx, vote)
	return args.Error(0)
}

func (m *MockVoteRepository) Tally(ctx context.Context, st models.SubjectType, id uint) (models.VoteTally, error) {
	args := m.Called(ctx, st, id)
	return args.Get(0).(models.VoteTally), args.Error(1)
}

type MockCommentRepository struct {
	repository.CommentRepository
	mock.Mock
}

func (m *MockCommentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *MockCommentRepository) Create(ctx context.Context, c *models.Comment) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

type MockParkRepository struct {
	repository.ParkRepository
	mock.Mock
}

func (m *MockParkRepository) GetByID(ctx context.Context, id uint) (*models.Park, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Park), args.Error(1)
}

type MockCategoryRepository struct {
	repository.CategoryRepository
	mock.Mock
}

func (m *MockCategoryRepository) GetByID(ctx context.Context, id uint) (*models.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Category), args.Error(1)
}

var guestIdentity = middleware.IdentityConfig{AllowGuest: true, GuestProviderID: "guest", GuestName: "Guest"}

func newMutationApp(deps service.MutationDeps) *fiber.App {
	s := &Server{mutations: service.NewMutationService(deps)}
	app := fiber.New()
	app.Use(middleware.Identity(guestIdentity))
	app.Post("/api/things", s.CreateThing)
	app.Post("/api/things/:id/votes", s.VoteThing)
	app.Post("/api/things/:id/comments", s.AddComment)
	return app
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestVoteThing(t *testing.T) {
	users := new(MockUserRepository)
	things := new(MockThingRepository)
	votes := new(MockVoteRepository)
	inv := &invalidatorStub{}

	things.On("IsPublished", mock.Anything, uint(7)).Return(true, nil)
	users.On("GetOrCreate", mock.Anything, mock.MatchedBy(func(c models.Caller) bool { return c.ProviderID == "guest" })).
		Return(&models.User{ID: 3, ProviderID: "guest"}, nil)
	votes.On("Upsert", mock.Anything, mock.MatchedBy(func(v *models.Vote) bool {
		return v.UserID == 3 && v.SubjectID == 7 && v.Value == 1
	})).Return(nil)
	votes.On("Tally", mock.Anything, models.SubjectThing, uint(7)).Return(models.VoteTally{Total: 1, Upvotes: 1}, nil)

	app := newMutationApp(service.MutationDeps{Users: users, Things: things, Votes: votes, Cache: inv})

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/things/7/votes", `{"value":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Votes models.VoteTally `json:"votes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Votes.Upvotes)
	assert.Equal(t, []string{"thing:7:votes"}, inv.refreshed)
	votes.AssertExpectations(t)
}

func TestVoteThing_InvalidValue(t *testing.T) {
	app := newMutationApp(service.MutationDeps{})
	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/things/7/votes", `{"value":5}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVoteThing_RequiresIdentityWithoutGuest(t *testing.T) {
	s := &Server{mutations: service.NewMutationService(service.MutationDeps{})}
	app := fiber.New()
	app.Use(middleware.Identity(middleware.IdentityConfig{AllowGuest: false, Secret: strings.Repeat("k", 32)}))
	app.Post("/api/things/:id/votes", s.VoteThing)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/things/7/votes", `{"value":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAddComment_ReplyToReplyRejected(t *testing.T) {
	things := new(MockThingRepository)
	comments := new(MockCommentRepository)
	parent := uint(1)

	things.On("IsPublished", mock.Anything, uint(3)).Return(true, nil)
	comments.On("GetByID", mock.Anything, uint(2)).Return(&models.Comment{ID: 2, ThingID: 3, ParentID: &parent}, nil)

	app := newMutationApp(service.MutationDeps{Things: things, Comments: comments, Users: new(MockUserRepository)})
	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/things/3/comments", `{"body":"me too","parentId":2}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Cannot reply to a reply - max 1 level of nesting", body.Error)
	comments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAddComment_FormParent(t *testing.T) {
	things := new(MockThingRepository)
	comments := new(MockCommentRepository)
	users := new(MockUserRepository)

	things.On("IsPublished", mock.Anything, uint(3)).Return(true, nil)
	comments.On("GetByID", mock.Anything, uint(1)).Return(&models.Comment{ID: 1, ThingID: 3}, nil)
	users.On("GetOrCreate", mock.Anything, mock.Anything).Return(&models.User{ID: 9}, nil)
	comments.On("Create", mock.Anything, mock.MatchedBy(func(c *models.Comment) bool {
		return c.ParentID != nil && *c.ParentID == 1 && c.Body == "nice"
	})).Return(nil)

	app := newMutationApp(service.MutationDeps{Things: things, Comments: comments, Users: users, Cache: &invalidatorStub{}})
	req := httptest.NewRequest(http.MethodPost, "/api/things/3/comments", strings.NewReader("body=nice&parentId=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	comments.AssertExpectations(t)
}

func createThingMocks() (*MockParkRepository, *MockCategoryRepository, *MockThingRepository, *MockUserRepository) {
	parks := new(MockParkRepository)
	categories := new(MockCategoryRepository)
	things := new(MockThingRepository)
	users := new(MockUserRepository)

	parks.On("GetByID", mock.Anything, uint(1)).Return(&models.Park{ID: 1, Slug: "yosemite"}, nil)
	categories.On("GetByID", mock.Anything, uint(2)).Return(&models.Category{ID: 2, Slug: "hikes"}, nil)
	things.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Thing).ID = 55
	}).Return(nil)
	return parks, categories, things, users
}

func TestCreateThing_RedirectsToReturnTo(t *testing.T) {
	parks, categories, things, users := createThingMocks()
	users.On("GetOrCreate", mock.Anything, mock.MatchedBy(func(c models.Caller) bool {
		return c.ProviderID == "ranger-rick" && c.DisplayName == "Rick"
	})).Return(&models.User{ID: 4}, nil)
	inv := &invalidatorStub{}

	app := newMutationApp(service.MutationDeps{Parks: parks, Categories: categories, Things: things, Users: users, Cache: inv})
	form := "parkId=1&categoryId=2&title=Tunnel+View&body=Go+at+sunset&userName=Rick&userProviderId=ranger-rick&returnTo=%2Fparks%2Fyosemite%3Ftab%3Dnew"
	req := httptest.NewRequest(http.MethodPost, "/api/things", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/parks/yosemite?tab=new", resp.Header.Get("Location"))
	assert.Equal(t, []string{"park:yosemite:things"}, inv.invalidated)
	users.AssertExpectations(t)
}

func TestCreateThing_UnsafeReturnToFallsBackToPark(t *testing.T) {
	parks, categories, things, users := createThingMocks()
	users.On("GetOrCreate", mock.Anything, mock.Anything).Return(&models.User{ID: 4}, nil)

	app := newMutationApp(service.MutationDeps{Parks: parks, Categories: categories, Things: things, Users: users})
	form := "parkId=1&categoryId=2&title=T&body=B&returnTo=https%3A%2F%2Fevil.example"
	req := httptest.NewRequest(http.MethodPost, "/api/things", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/parks/yosemite", resp.Header.Get("Location"))
}

func TestCreateThing_JSONWithImage(t *testing.T) {
	parks, categories, things, users := createThingMocks()
	users.On("GetOrCreate", mock.Anything, mock.Anything).Return(&models.User{ID: 4}, nil)
	things.On("AddImage", mock.Anything, mock.MatchedBy(func(img *models.ThingImage) bool {
		return strings.Contains(img.URL, "things/55/") && img.Alt != nil && *img.Alt == "dome.png"
	})).Return(nil)

	blobs, err := storage.NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	app := newMutationApp(service.MutationDeps{
		Parks: parks, Categories: categories, Things: things, Users: users,
		Blobs: blobs, DefaultStatus: models.ThingStatusPending,
	})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("parkId", "1"))
	require.NoError(t, w.WriteField("categoryId", "2"))
	require.NoError(t, w.WriteField("title", "Half Dome"))
	require.NoError(t, w.WriteField("body", "Permit required"))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="dome.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/things", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Thing models.Thing `json:"thing"`
		Park  string       `json:"park"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, uint(55), body.Thing.ID)
	assert.Equal(t, models.ThingStatusPending, body.Thing.Status)
	assert.Equal(t, "yosemite", body.Park)
	require.Len(t, body.Thing.Images, 1)
	things.AssertExpectations(t)
}

func TestCreateThing_MissingFields(t *testing.T) {
	app := newMutationApp(service.MutationDeps{})
	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/things", `{"parkId":1,"categoryId":2,"title":"","body":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
