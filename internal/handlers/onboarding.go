package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shoplinkhq/shoplink/internal/auth"
	"github.com/shoplinkhq/shoplink/internal/onboarding"
)

type OnboardingHandler struct {
	requests onboarding.RequestRepository
	logger   *slog.Logger
}

func NewOnboardingHandler(log *slog.Logger, requests onboarding.RequestRepository) *OnboardingHandler {
	return &OnboardingHandler{
		requests: requests,
		logger:   log.With(slog.String("handler", "onboarding")),
	}
}

func (h *OnboardingHandler) Register(e *echo.Echo) {
	group := e.Group("/admin/tenants/:id/onboarding")
	group.GET("", h.ListPending)
	group.POST("/:request_id/status", h.UpdateStatus)
}

func (h *OnboardingHandler) ListPending(c echo.Context) error {
	requests, err := h.requests.ListPending(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, requests)
}

type UpdateRequestStatus struct {
	Status string `json:"status"`
}

func (h *OnboardingHandler) UpdateStatus(c echo.Context) error {
	if err := auth.RequireOperator(c); err != nil {
		return err
	}
	var req UpdateRequestStatus
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch req.Status {
	case onboarding.RequestStatusApproved, onboarding.RequestStatusRejected:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be approved or rejected")
	}

	tenantID := c.Param("id")
	requestID := c.Param("request_id")
	if err := h.requests.UpdateStatus(c.Request().Context(), tenantID, requestID, req.Status); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("onboarding request reviewed",
		slog.String("tenant", tenantID),
		slog.String("request", requestID),
		slog.String("status", req.Status))
	return c.NoContent(http.StatusNoContent)
}
