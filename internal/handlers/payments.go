package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shoplinkhq/shoplink/internal/auth"
	"github.com/shoplinkhq/shoplink/internal/payments"
)

const defaultListLimit = 50

type PaymentsHandler struct {
	svc      *payments.Service
	intents  payments.IntentRepository
	payments payments.PaymentRepository
	logger   *slog.Logger
}

func NewPaymentsHandler(log *slog.Logger, svc *payments.Service, intents payments.IntentRepository, paymentsRepo payments.PaymentRepository) *PaymentsHandler {
	return &PaymentsHandler{
		svc:      svc,
		intents:  intents,
		payments: paymentsRepo,
		logger:   log.With(slog.String("handler", "payments")),
	}
}

func (h *PaymentsHandler) Register(e *echo.Echo) {
	group := e.Group("/admin/tenants/:id")
	group.GET("/payments", h.ListPayments)
	group.GET("/intents", h.ListIntents)
	group.PUT("/quote", h.DeclareQuote)
}

type DeclareQuoteRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

// DeclareQuote sets the tenant's expected transfer amount, same as an
// owner typing a bare amount in chat.
func (h *PaymentsHandler) DeclareQuote(c echo.Context) error {
	if err := auth.RequireOperator(c); err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant id is required")
	}
	var req DeclareQuoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	subject, err := auth.SubjectFromContext(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeclareQuote(c.Request().Context(), id, subject, req.Amount, req.Currency, time.Now().UTC()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PaymentsHandler) ListPayments(c echo.Context) error {
	list, err := h.payments.ListRecent(c.Request().Context(), c.Param("id"), listLimit(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *PaymentsHandler) ListIntents(c echo.Context) error {
	list, err := h.intents.RecentByTenant(c.Request().Context(), c.Param("id"), listLimit(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func listLimit(c echo.Context) int {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 200 {
		return defaultListLimit
	}
	return limit
}
