package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shoplinkhq/shoplink/internal/tenant"
)

// Dispatcher consumes verified webhook events. Implementations own
// dedup and per-event error isolation; a dispatch error never fails
// the webhook response.
type Dispatcher interface {
	Dispatch(ctx context.Context, res tenant.Resolution, ev Event) error
}

type Handler struct {
	resolver     *tenant.Resolver
	dispatcher   Dispatcher
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewHandler(log *slog.Logger, resolver *tenant.Resolver, dispatcher Dispatcher, maxBodyBytes int64) *Handler {
	return &Handler{
		resolver:     resolver,
		dispatcher:   dispatcher,
		maxBodyBytes: maxBodyBytes,
		logger:       log.With(slog.String("handler", "webhook")),
	}
}

func (h *Handler) Register(e *echo.Echo) {
	e.POST("/webhooks/line", h.Handle)
}

// Handle verifies and dispatches one webhook delivery. The provider
// retries non-2xx responses, so processing failures after verification
// still return 200: redelivery would only replay events dedup already
// claimed.
func (h *Handler) Handle(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, h.maxBodyBytes+1))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	if int64(len(body)) > h.maxBodyBytes {
		return c.NoContent(http.StatusRequestEntityTooLarge)
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	ctx := c.Request().Context()
	res, err := h.resolver.Resolve(ctx, payload.Destination)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) || errors.Is(err, tenant.ErrInactive) {
			h.logger.Warn("webhook for unknown destination",
				slog.String("destination", payload.Destination))
			return c.NoContent(http.StatusNotFound)
		}
		h.logger.Error("tenant resolution failed", slog.Any("error", err))
		return c.NoContent(http.StatusInternalServerError)
	}

	if err := VerifySignature(res.ChannelSecret, body, c.Request().Header.Get(SignatureHeader)); err != nil {
		// A tenant without a channel secret is an operator problem, not
		// a bad request.
		if errors.Is(err, ErrMissingSecret) {
			h.logger.Error("tenant has no channel secret",
				slog.String("tenant", res.Tenant.ID))
			return c.NoContent(http.StatusInternalServerError)
		}
		h.logger.Warn("webhook signature rejected",
			slog.String("tenant", res.Tenant.ID),
			slog.Any("error", err))
		return c.NoContent(http.StatusBadRequest)
	}

	for _, ev := range payload.Events {
		if err := h.dispatcher.Dispatch(ctx, res, ev); err != nil {
			h.logger.Error("event dispatch failed",
				slog.String("tenant", res.Tenant.ID),
				slog.String("event_id", ev.WebhookID),
				slog.Any("error", err))
		}
	}
	return c.NoContent(http.StatusOK)
}
