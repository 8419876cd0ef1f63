package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/shoplinkhq/shoplink/internal/auth"
	"github.com/shoplinkhq/shoplink/internal/tenant"
)

type TenantsHandler struct {
	repo     tenant.Repository
	resolver *tenant.Resolver
	logger   *slog.Logger
}

func NewTenantsHandler(log *slog.Logger, repo tenant.Repository, resolver *tenant.Resolver) *TenantsHandler {
	return &TenantsHandler{
		repo:     repo,
		resolver: resolver,
		logger:   log.With(slog.String("handler", "tenants")),
	}
}

func (h *TenantsHandler) Register(e *echo.Echo) {
	group := e.Group("/admin/tenants")
	group.PUT("/:id", h.Upsert)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
}

type UpsertTenantRequest struct {
	DisplayName     string           `json:"display_name"`
	ChannelSecret   string           `json:"channel_secret,omitempty"`
	AccessToken     string           `json:"access_token,omitempty"`
	SecretRef       string           `json:"secret_ref,omitempty"`
	TokenRef        string           `json:"token_ref,omitempty"`
	LegacyChannelID string           `json:"legacy_channel_id,omitempty"`
	Active          bool             `json:"active"`
	Channels        []tenant.Channel `json:"channels,omitempty"`
}

func (h *TenantsHandler) Upsert(c echo.Context) error {
	if err := auth.RequireOperator(c); err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant id is required")
	}
	var req UpsertTenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DisplayName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "display_name is required")
	}
	if req.ChannelSecret == "" && req.SecretRef == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "channel_secret or secret_ref is required")
	}

	t := tenant.Tenant{
		ID:              id,
		DisplayName:     req.DisplayName,
		ChannelSecret:   req.ChannelSecret,
		AccessToken:     req.AccessToken,
		SecretRef:       req.SecretRef,
		TokenRef:        req.TokenRef,
		LegacyChannelID: req.LegacyChannelID,
		Active:          req.Active,
		Channels:        req.Channels,
	}
	if err := h.repo.Upsert(c.Request().Context(), t); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// Stale cached credentials outlive the write otherwise.
	h.resolver.Invalidate(id)

	h.logger.Info("tenant upserted", slog.String("tenant", id))
	return c.JSON(http.StatusOK, t)
}

func (h *TenantsHandler) List(c echo.Context) error {
	tenants, err := h.repo.ListActive(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, tenants)
}

func (h *TenantsHandler) Get(c echo.Context) error {
	t, err := h.repo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}
