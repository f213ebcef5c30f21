package server

import (
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Upload stores a standalone image and returns its public URL.
// POST /api/upload
// @Summary Upload image
// @Tags media
// @Accept mpfd
// @Produce json
// @Param file formData file true "Image"
// @Success 200 {object} object{url=string,size=int,contentType=string}
// @Failure 400 {object} object{error=string}
// @Failure 500 {object} object{error=string,details=string}
// @Router /upload [post]
func (s *Server) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No file provided"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to upload file",
			"details": err.Error(),
		})
	}
	defer f.Close()

	obj, err := s.uploads.Upload(c.UserContext(), service.UploadInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		if models.IsCode(err, models.CodeValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to upload file",
			"details": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"url":         obj.URL,
		"size":        fh.Size,
		"contentType": obj.ContentType,
	})
}
