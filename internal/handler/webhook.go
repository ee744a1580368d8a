package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kusina-pos/api/internal/paymongo"
	"github.com/kusina-pos/api/internal/service"
	"github.com/sirupsen/logrus"
)

// maxWebhookBody caps how much of a delivery is read.
const maxWebhookBody = 1 << 20

// WebhookProcessor applies provider events.
// Satisfied by *service.WebhookService; narrow interface for testability.
type WebhookProcessor interface {
	HandleEvent(ctx context.Context, ev paymongo.Event) (service.WebhookResult, error)
}

// WebhookHandler receives PayMongo webhook deliveries.
type WebhookHandler struct {
	svc    WebhookProcessor
	secret string
	log    logrus.FieldLogger
}

// NewWebhookHandler creates a new WebhookHandler. An empty secret disables
// signature verification.
func NewWebhookHandler(svc WebhookProcessor, secret string, log logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{svc: svc, secret: secret, log: log}
}

// RegisterRoutes registers the webhook endpoint on the given Chi router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/handlePayMongoWebhook", h.Receive)
}

// Receive verifies, parses and applies one delivery. Store failures answer
// 500 so the provider retries; everything else the server understood
// answers 200.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "could not read body"})
		return
	}

	if h.secret != "" {
		if err := paymongo.VerifySignature(r.Header.Get(paymongo.SignatureHeader), body, h.secret); err != nil {
			h.log.WithError(err).Warn("webhook signature rejected")
			writeJSON(w, h.log, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}
	}

	ev, err := paymongo.ParseEvent(body)
	if err != nil {
		if errors.Is(err, paymongo.ErrMalformedEvent) {
			writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeServiceError(w, h.log, err)
		return
	}

	res, err := h.svc.HandleEvent(r.Context(), ev)
	if err != nil {
		h.log.WithError(err).WithField("event_id", ev.ID).Error("webhook processing failed")
		writeJSON(w, h.log, http.StatusInternalServerError, map[string]string{"error": "webhook processing failed"})
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"received": true,
		"outcome":  res.Outcome,
	})
}
