package server

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/models"

	"github.com/gofiber/fiber/v2"
)

// idParam reads the :id route param as a positive id. subject names it in
// the validation message ("Invalid thing ID").
func idParam(c *fiber.Ctx, subject string) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, models.NewValidationError("Invalid " + subject + " ID")
	}
	return uint(id), nil
}

// respondError writes err with the status its AppError code implies.
func respondError(c *fiber.Ctx, err error) error {
	status := models.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"method", c.Method(), "path", c.Path(), "error", err)
	}
	return models.RespondWithError(c, status, err)
}

// callerOf returns the request caller set by the Identity middleware.
func callerOf(c *fiber.Ctx) (models.Caller, error) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return models.Caller{}, models.NewUnauthorizedError("Caller identity required")
	}
	return caller, nil
}

// safeReturnTo accepts only same-site relative paths.
func safeReturnTo(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	return u.String(), true
}

// wantsJSON reports whether the client asked for a JSON response rather than a redirect.
func wantsJSON(c *fiber.Ctx) bool {
	return c.Is("json") || strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}
