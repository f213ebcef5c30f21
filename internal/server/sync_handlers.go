package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alexdfirestone/national-parks/internal/cache"
	"github.com/alexdfirestone/national-parks/internal/cms"
	"github.com/alexdfirestone/national-parks/internal/config"
	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/observability"
	cmssync "github.com/alexdfirestone/national-parks/internal/sync"
	"github.com/alexdfirestone/national-parks/internal/webhook"

	"github.com/gofiber/fiber/v2"
)

const webhookSignatureHeader = webhook.SignatureHeader

// SyncResponse is the body of a successful webhook delivery.
type SyncResponse struct {
	Synced  bool            `json:"synced"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Slug    string          `json:"slug,omitempty"`
	Action  string          `json:"action"`
	Tags    []string        `json:"tags"`
	Results *cmssync.Report `json:"results,omitempty"`
}

func webhookError(c *fiber.Ctx, status int, result, message string, err error) error {
	observability.WebhookRequests.WithLabelValues(result).Inc()
	body := fiber.Map{"message": message}
	if err != nil {
		body["error"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

// SyncWebhook handles CMS publish, update and delete deliveries.
// POST /api/sync
// @Summary CMS webhook
// @Description Verify a signed CMS delivery, mirror the document and invalidate its cache tags
// @Tags sync
// @Accept json
// @Produce json
// @Param sanity-webhook-signature header string true "t=<unix ms>,v1=<base64 HMAC-SHA256>"
// @Success 200 {object} SyncResponse
// @Failure 400 {object} object{message=string,error=string}
// @Failure 401 {object} object{message=string}
// @Failure 404 {object} object{message=string,error=string}
// @Failure 500 {object} object{message=string,error=string}
// @Router /sync [post]
func (s *Server) SyncWebhook(c *fiber.Ctx) error {
	ctx := c.UserContext()
	log := middleware.Logger

	// Copy the raw body; fasthttp reuses the buffer after the handler returns.
	body := append([]byte(nil), c.Body()...)

	header := c.Get(webhookSignatureHeader)
	if header == "" {
		return webhookError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid webhook signature", nil)
	}
	if s.verifier.Secret == "" {
		log.ErrorContext(ctx, "SANITY_WEBHOOK_SECRET not configured")
		return webhookError(c, fiber.StatusInternalServerError, "misconfigured", "Webhook secret not configured", nil)
	}
	if err := s.verifier.Verify(header, body); err != nil {
		log.WarnContext(ctx, "rejected webhook delivery", slog.String("error", err.Error()))
		return webhookError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid webhook signature", nil)
	}

	var env cms.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return webhookError(c, fiber.StatusBadRequest, "invalid", "Invalid JSON payload", err)
	}
	if env.Type == "" || env.ID == "" {
		return webhookError(c, fiber.StatusBadRequest, "invalid", "Missing _type or _id", nil)
	}
	if env.Type != cms.TypePark && env.Type != cms.TypeCategory {
		return webhookError(c, fiber.StatusBadRequest, "ignored", "Unsupported document type", errors.New(env.Type))
	}

	log.InfoContext(ctx, "webhook received",
		slog.String("type", env.Type), slog.String("id", env.ID), slog.String("mode", s.config.WebhookSyncMode))

	resp := SyncResponse{Synced: true, Type: env.Type, ID: env.ID}
	var err error
	switch s.config.WebhookSyncMode {
	case config.SyncModeFull:
		var report cmssync.Report
		report, err = s.syncer.FullSync(ctx)
		if err == nil {
			resp.Action = "full_sync"
			resp.Tags = report.Tags()
			resp.Results = &report
		}
	case config.SyncModeFetch:
		var res cmssync.Result
		res, err = s.syncer.SyncDocument(ctx, env.Type, env.ID)
		if err == nil {
			resp.fill(res)
		}
	default:
		var res cmssync.Result
		res, err = s.reconcilePayload(c, env.Type, body)
		if err == nil {
			resp.fill(res)
		}
	}
	if err != nil {
		if models.IsCode(err, models.CodeValidation) {
			return webhookError(c, fiber.StatusBadRequest, "invalid", "Invalid document", err)
		}
		if models.IsCode(err, models.CodeNotFound) {
			log.InfoContext(ctx, "delete of unsynced document", slog.String("type", env.Type), slog.String("id", env.ID))
			return webhookError(c, fiber.StatusNotFound, "not_found", "Document not found", err)
		}
		log.ErrorContext(ctx, "sync error", slog.String("type", env.Type), slog.String("id", env.ID), slog.String("error", err.Error()))
		return webhookError(c, fiber.StatusInternalServerError, "error", "Error syncing data", err)
	}

	if len(resp.Tags) > 0 {
		if err := s.dispatcher.Invalidate(ctx, resp.Tags...); err != nil {
			log.WarnContext(ctx, "cache invalidation failed", slog.Any("tags", resp.Tags), slog.String("error", err.Error()))
		}
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}

	observability.WebhookRequests.WithLabelValues("synced").Inc()
	return c.JSON(resp)
}

func (r *SyncResponse) fill(res cmssync.Result) {
	r.Slug = res.Slug
	r.Action = string(res.Outcome)
	r.Tags = res.Tags()
}

// reconcilePayload reconciles the delivered document itself.
func (s *Server) reconcilePayload(c *fiber.Ctx, docType string, body []byte) (cmssync.Result, error) {
	ctx := c.UserContext()
	switch docType {
	case cms.TypePark:
		var doc cms.ParkDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			return cmssync.Result{}, models.NewValidationError("Invalid park document: " + err.Error())
		}
		return s.syncer.ReconcilePark(ctx, doc)
	default:
		var doc cms.CategoryDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			return cmssync.Result{}, models.NewValidationError("Invalid category document: " + err.Error())
		}
		return s.syncer.ReconcileCategory(ctx, doc)
	}
}

// RevalidateRequest names the content whose cached reads should be dropped.
type RevalidateRequest struct {
	Type string `json:"_type"`
	Slug string `json:"slug"`
	ID   uint   `json:"id"`
}

// Revalidate drops cached reads for a park, category or thing.
// POST /api/revalidate
// @Summary Revalidate cache
// @Tags sync
// @Accept json
// @Produce json
// @Param request body RevalidateRequest true "Target"
// @Success 200 {object} object{revalidated=bool,now=int,tags=[]string}
// @Failure 400 {object} models.ErrorResponse
// @Router /revalidate [post]
func (s *Server) Revalidate(c *fiber.Ctx) error {
	var req RevalidateRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	tags, err := cache.TagsFor(cache.Target{Type: strings.TrimSpace(req.Type), Slug: req.Slug, ID: req.ID})
	if err != nil {
		return respondError(c, err)
	}
	if err := s.dispatcher.Invalidate(c.UserContext(), tags...); err != nil {
		return respondError(c, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"revalidated": true,
		"now":         time.Now().UnixMilli(),
		"tags":        tags,
	})
}
