package server

import (
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/service"

	"github.com/gofiber/fiber/v2"
)

// FlagRequest reports a thing or comment.
type FlagRequest struct {
	SubjectType models.SubjectType `json:"subjectType"`
	SubjectID   uint               `json:"subjectId"`
	Reason      string             `json:"reason"`
}

// CreateFlag opens a moderation flag.
// POST /api/flags
// @Summary Flag content
// @Tags moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body FlagRequest true "Flag"
// @Success 201 {object} models.ModerationFlag
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /flags [post]
func (s *Server) CreateFlag(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return respondError(c, err)
	}

	var req FlagRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	flag, err := s.moderation.Flag(c.UserContext(), service.FlagInput{
		Caller:      caller,
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		Reason:      req.Reason,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(flag)
}

// ListFlags lists moderation flags by status.
// GET /api/flags?status=open
// @Summary List flags
// @Tags moderation
// @Produce json
// @Security BearerAuth
// @Param status query string false "Flag status" Enums(open, closed)
// @Success 200 {array} models.ModerationFlag
// @Failure 403 {object} models.ErrorResponse
// @Router /flags [get]
func (s *Server) ListFlags(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return respondError(c, err)
	}

	flags, err := s.moderation.List(c.UserContext(), caller, models.FlagStatus(c.Query("status", string(models.FlagOpen))))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(flags)
}

// ResolveFlagRequest is the moderator's decision.
type ResolveFlagRequest struct {
	Action string `json:"action"`
}

// ResolveFlag applies a moderator action and closes the flag.
// POST /api/flags/:id/resolve
// @Summary Resolve flag
// @Description Dismiss the flag or remove its subject, then close it
// @Tags moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Flag ID"
// @Param request body ResolveFlagRequest true "Action: dismiss or remove"
// @Success 200 {object} models.ModerationFlag
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /flags/{id}/resolve [post]
func (s *Server) ResolveFlag(c *fiber.Ctx) error {
	flagID, err := idParam(c, "flag")
	if err != nil {
		return respondError(c, err)
	}
	caller, err := callerOf(c)
	if err != nil {
		return respondError(c, err)
	}

	var req ResolveFlagRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	flag, err := s.moderation.Resolve(c.UserContext(), service.ResolveInput{
		Caller: caller,
		FlagID: flagID,
		Action: req.Action,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(flag)
}
