package server

import (
	"io"
	"strconv"
	"strings"

	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateThingRequest is the JSON or form body of a new submission.
type CreateThingRequest struct {
	ParkID         uint   `json:"parkId" form:"parkId"`
	CategoryID     uint   `json:"categoryId" form:"categoryId"`
	Title          string `json:"title" form:"title"`
	Body           string `json:"body" form:"body"`
	UserName       string `json:"userName" form:"userName"`
	UserProviderID string `json:"userProviderId" form:"userProviderId"`
	ReturnTo       string `json:"returnTo" form:"returnTo"`
}

// CreateThing stores a user submission for a park.
// POST /api/things
// @Summary Create thing
// @Description Submit a thing for a park. Form posts are redirected back to the park page.
// @Tags things
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param request body CreateThingRequest true "Thing"
// @Param image formData file false "Optional image"
// @Success 201 {object} object{thing=models.Thing,park=string,tags=[]string}
// @Success 303
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /things [post]
func (s *Server) CreateThing(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return respondError(c, err)
	}

	var req CreateThingRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	// Form-supplied identities only apply to guest submissions.
	if caller.Guest && strings.TrimSpace(req.UserProviderID) != "" {
		caller.ProviderID = strings.TrimSpace(req.UserProviderID)
		caller.DisplayName = strings.TrimSpace(req.UserName)
		if caller.DisplayName == "" {
			caller.DisplayName = caller.ProviderID
		}
	}

	in := service.CreateThingInput{
		Caller:     caller,
		ParkID:     req.ParkID,
		CategoryID: req.CategoryID,
		Title:      req.Title,
		Body:       req.Body,
	}
	if fh, err := c.FormFile("image"); err == nil && fh.Size > 0 {
		in.Image = &service.ImageUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
			Open:        func() (io.ReadCloser, error) { return fh.Open() },
		}
	}

	res, err := s.mutations.CreateThing(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}

	if wantsJSON(c) {
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"thing": res.Thing,
			"park":  res.ParkSlug,
			"tags":  res.Tags,
		})
	}

	target := "/parks/" + res.ParkSlug
	if returnTo, ok := safeReturnTo(req.ReturnTo); ok {
		target = returnTo
	}
	return c.Redirect(target, fiber.StatusSeeOther)
}

// VoteRequest is the body of a vote.
type VoteRequest struct {
	Value int `json:"value" form:"value"`
}

// VoteThing records the caller's vote on a thing.
// POST /api/things/:id/votes
// @Summary Vote on thing
// @Tags votes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Thing ID"
// @Param request body VoteRequest true "Vote, 1 or -1"
// @Success 200 {object} object{thingId=int,votes=models.VoteTally}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /things/{id}/votes [post]
func (s *Server) VoteThing(c *fiber.Ctx) error {
	thingID, err := idParam(c, "thing")
	if err != nil {
		return respondError(c, err)
	}
	caller, err := callerOf(c)
	if err != nil {
		return respondError(c, err)
	}

	var req VoteRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	tally, err := s.mutations.Vote(c.UserContext(), service.VoteInput{Caller: caller, ThingID: thingID, Value: req.Value})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"thingId": thingID, "votes": tally})
}

// CommentRequest is the body of a comment or reply.
type CommentRequest struct {
	Body     string `json:"body" form:"body"`
	ParentID string `json:"-" form:"parentId"`
	Parent   *uint  `json:"parentId" form:"-"`
}

func (r CommentRequest) parent() (*uint, error) {
	if r.Parent != nil {
		return r.Parent, nil
	}
	if strings.TrimSpace(r.ParentID) == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(strings.TrimSpace(r.ParentID), 10, 64)
	if err != nil || id == 0 {
		return nil, models.NewValidationError("Invalid parent comment ID")
	}
	v := uint(id)
	return &v, nil
}

// AddComment stores a comment or a reply on a thing.
// POST /api/things/:id/comments
// @Summary Add comment
// @Description Comment on a thing or reply to a top-level comment
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Thing ID"
// @Param request body CommentRequest true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /things/{id}/comments [post]
func (s *Server) AddComment(c *fiber.Ctx) error {
	thingID, err := idParam(c, "thing")
	if err != nil {
		return respondError(c, err)
	}
	caller, err := callerOf(c)
	if err != nil {
		return respondError(c, err)
	}

	var req CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	parentID, err := req.parent()
	if err != nil {
		return respondError(c, err)
	}

	comment, err := s.mutations.AddComment(c.UserContext(), service.CommentInput{
		Caller:   caller,
		ThingID:  thingID,
		Body:     req.Body,
		ParentID: parentID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}
