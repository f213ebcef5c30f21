package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ListParks returns every park ordered by name.
// GET /api/parks
// @Summary List parks
// @Description List every mirrored park ordered by name
// @Tags parks
// @Produce json
// @Success 200 {array} models.Park
// @Failure 500 {object} models.ErrorResponse
// @Router /parks [get]
func (s *Server) ListParks(c *fiber.Ctx) error {
	parks, err := s.content.ListParks(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(parks)
}

// GetPark returns one park by slug.
// GET /api/parks/:slug
// @Summary Get park
// @Description Get one park by slug
// @Tags parks
// @Produce json
// @Param slug path string true "Park slug"
// @Success 200 {object} models.Park
// @Failure 404 {object} models.ErrorResponse
// @Router /parks/{slug} [get]
func (s *Server) GetPark(c *fiber.Ctx) error {
	park, err := s.content.GetPark(c.UserContext(), strings.ToLower(c.Params("slug")))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(park)
}

// ListParkThings returns the park's published feed, newest first.
// GET /api/parks/:slug/things
// @Summary List park things
// @Description List the published things of a park, newest first, with vote tallies
// @Tags things
// @Produce json
// @Param slug path string true "Park slug"
// @Success 200 {array} models.Thing
// @Failure 404 {object} models.ErrorResponse
// @Router /parks/{slug}/things [get]
func (s *Server) ListParkThings(c *fiber.Ctx) error {
	things, err := s.content.ListParkThings(c.UserContext(), strings.ToLower(c.Params("slug")))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(things)
}

// ListCategories returns every category ordered by name.
// GET /api/categories
// @Summary List categories
// @Tags categories
// @Produce json
// @Success 200 {array} models.Category
// @Router /categories [get]
func (s *Server) ListCategories(c *fiber.Ctx) error {
	categories, err := s.content.ListCategories(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(categories)
}

// GetThing returns a thing with its park, category, author and images.
// GET /api/things/:id
// @Summary Get thing
// @Description Get a thing with its park, category, author and images
// @Tags things
// @Produce json
// @Param id path int true "Thing ID"
// @Success 200 {object} models.Thing
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /things/{id} [get]
func (s *Server) GetThing(c *fiber.Ctx) error {
	id, err := idParam(c, "thing")
	if err != nil {
		return respondError(c, err)
	}
	thing, err := s.content.GetThing(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(thing)
}

// GetVotes returns the vote tally of a thing.
// GET /api/things/:id/votes
// @Summary Get vote tally
// @Tags votes
// @Produce json
// @Param id path int true "Thing ID"
// @Success 200 {object} models.VoteTally
// @Failure 404 {object} models.ErrorResponse
// @Router /things/{id}/votes [get]
func (s *Server) GetVotes(c *fiber.Ctx) error {
	id, err := idParam(c, "thing")
	if err != nil {
		return respondError(c, err)
	}
	tally, err := s.content.GetVotes(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tally)
}

// ListComments returns a thing's comments, oldest first.
// GET /api/things/:id/comments
// @Summary List comments
// @Description List a thing's comments, oldest first
// @Tags comments
// @Produce json
// @Param id path int true "Thing ID"
// @Success 200 {array} models.Comment
// @Failure 404 {object} models.ErrorResponse
// @Router /things/{id}/comments [get]
func (s *Server) ListComments(c *fiber.Ctx) error {
	id, err := idParam(c, "thing")
	if err != nil {
		return respondError(c, err)
	}
	comments, err := s.content.ListComments(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(comments)
}
