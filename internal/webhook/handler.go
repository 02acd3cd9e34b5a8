package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"inbound-backend/internal/queue"
	"inbound-backend/internal/shared/metrics"
	"inbound-backend/internal/shared/server/middleware"
	"inbound-backend/internal/shared/server/respond"
	"inbound-backend/internal/shared/telemetry"
)

const (
	defaultMaxBodyBytes = 1 << 20 // 1MB

	headerSvixID        = "svix-id"
	headerSvixTimestamp = "svix-timestamp"
	headerSvixSignature = "svix-signature"

	msgVerificationFailed = "Webhook verification failed"
	msgInvalidPayload     = "Invalid webhook payload"
	msgPayloadTooLarge    = "Webhook payload too large"
	msgEnqueueFailed      = "Failed to enqueue webhook event"
	msgDeliveryInProgress = "Webhook delivery already in progress"
)

// Handler receives Resend webhooks and hands email.received events to the task queue.
type Handler struct {
	// Verifier is nil when no webhook secret is configured; every request then fails verification.
	Verifier     *Verifier
	Queue        queue.Client
	Dedup        DeliveryFilter
	MaxBodyBytes int64
	Now          func() time.Time
}

// RegisterRoutes attaches the webhook routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/resend/", h.resend)
	rg.POST("/resend", h.resend)
}

func (h *Handler) resend(c *gin.Context) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", msgPayloadTooLarge)
			return
		}
		respond.Error(c, http.StatusBadRequest, "invalid_payload", msgInvalidPayload)
		return
	}

	headers := SignatureHeaders{
		ID:        c.GetHeader(headerSvixID),
		Timestamp: c.GetHeader(headerSvixTimestamp),
		Signature: c.GetHeader(headerSvixSignature),
	}
	if err := h.verify(body, headers); err != nil {
		metrics.IncVerificationFailed()
		telemetry.Warn("webhook.verification_failed", map[string]any{
			"svix_id":    headers.ID,
			"request_id": middleware.RequestIDFromContext(c),
			"reason":     err.Error(),
		})
		respond.Error(c, http.StatusBadRequest, "verification_failed", msgVerificationFailed)
		return
	}

	evt, err := ParseEvent(body)
	if err != nil {
		metrics.IncParseFailed()
		telemetry.Warn("webhook.parse_failed", map[string]any{
			"svix_id":    headers.ID,
			"request_id": middleware.RequestIDFromContext(c),
			"body_len":   len(body),
		})
		respond.Error(c, http.StatusBadRequest, "invalid_payload", msgInvalidPayload)
		return
	}

	kind := evt.Kind()
	metrics.IncWebhookEvent(string(kind))

	switch kind {
	case EventEmailReceived:
		telemetry.Info("webhook.email_received", map[string]any{
			"svix_id":     headers.ID,
			"email_id":    evt.Data.EmailID,
			"attachments": len(evt.Data.Attachments),
			"request_id":  middleware.RequestIDFromContext(c),
		})
		if !h.enqueue(c, headers.ID, queue.TaskProcessEmailReceived, json.RawMessage(body)) {
			return
		}
	default:
		telemetry.Debug("webhook.event_ignored", map[string]any{
			"svix_id": headers.ID,
			"type":    evt.Type,
		})
	}

	respond.Success(c)
}

func (h *Handler) verify(body []byte, headers SignatureHeaders) error {
	if h.Verifier == nil {
		return ErrVerification
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return h.Verifier.Verify(body, headers, now())
}

// enqueue hands the envelope to the queue. It returns false when a response was already written.
func (h *Handler) enqueue(c *gin.Context, deliveryID, task string, envelope json.RawMessage) bool {
	ctx := c.Request.Context()
	reqID := middleware.RequestIDFromContext(c)

	claimed := false
	if h.Dedup != nil && strings.TrimSpace(deliveryID) != "" {
		state, err := h.Dedup.Claim(ctx, deliveryID)
		switch {
		case err != nil:
			telemetry.Warn("webhook.dedup_unavailable", map[string]any{
				"svix_id": deliveryID,
				"error":   err.Error(),
			})
		case state == ClaimDone:
			metrics.IncDuplicateDelivery()
			telemetry.Info("webhook.duplicate_delivery", map[string]any{
				"svix_id":    deliveryID,
				"request_id": reqID,
			})
			return true
		case state == ClaimPending:
			telemetry.Info("webhook.delivery_in_progress", map[string]any{
				"svix_id":    deliveryID,
				"request_id": reqID,
			})
			respond.Error(c, http.StatusConflict, "delivery_in_progress", msgDeliveryInProgress)
			return false
		default:
			claimed = true
		}
	}

	if h.Queue == nil {
		h.release(c, deliveryID, claimed)
		metrics.IncEnqueueFailed(task)
		telemetry.Error("webhook.enqueue_failed", map[string]any{
			"svix_id": deliveryID,
			"task":    task,
			"error":   "queue not configured",
		})
		respond.Error(c, http.StatusServiceUnavailable, "enqueue_failed", msgEnqueueFailed)
		return false
	}

	handle, err := h.Queue.Enqueue(queue.WithRequestID(ctx, reqID), task, envelope)
	if err != nil {
		h.release(c, deliveryID, claimed)
		metrics.IncEnqueueFailed(task)
		telemetry.Error("webhook.enqueue_failed", map[string]any{
			"svix_id":    deliveryID,
			"task":       task,
			"request_id": reqID,
			"error":      err.Error(),
		})
		respond.Error(c, http.StatusServiceUnavailable, "enqueue_failed", msgEnqueueFailed)
		return false
	}

	if claimed {
		if err := h.Dedup.Complete(ctx, deliveryID); err != nil {
			telemetry.Warn("webhook.dedup_complete_failed", map[string]any{
				"svix_id": deliveryID,
				"error":   err.Error(),
			})
		}
	}

	metrics.IncTaskEnqueued(task)
	telemetry.Info("webhook.task_enqueued", map[string]any{
		"svix_id":    deliveryID,
		"task":       task,
		"task_id":    handle.ID,
		"request_id": reqID,
	})
	return true
}

func (h *Handler) release(c *gin.Context, deliveryID string, claimed bool) {
	if !claimed {
		return
	}
	if err := h.Dedup.Release(c.Request.Context(), deliveryID); err != nil {
		telemetry.Warn("webhook.dedup_release_failed", map[string]any{
			"svix_id": deliveryID,
			"error":   err.Error(),
		})
	}
}
