package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shoplinkhq/shoplink/internal/auth"
	"github.com/shoplinkhq/shoplink/internal/owners"
)

type LinksHandler struct {
	links  *owners.LinkService
	logger *slog.Logger
}

func NewLinksHandler(log *slog.Logger, links *owners.LinkService) *LinksHandler {
	return &LinksHandler{
		links:  links,
		logger: log.With(slog.String("handler", "links")),
	}
}

func (h *LinksHandler) Register(e *echo.Echo) {
	group := e.Group("/admin/tenants/:id/links")
	group.POST("", h.Mint)
	group.DELETE("/:token_id", h.Revoke)
}

type MintLinkRequest struct {
	Scope        string `json:"scope,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`
}

type MintLinkResponse struct {
	TokenID string `json:"token_id"`
	URL     string `json:"url"`
}

func (h *LinksHandler) Mint(c echo.Context) error {
	if err := auth.RequireOperator(c); err != nil {
		return err
	}
	var req MintLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	scope := req.Scope
	if scope == "" {
		scope = owners.ScopeBindOwner
	}

	tenantID := c.Param("id")
	link, url, err := h.links.Mint(c.Request().Context(), tenantID, scope, req.TargetUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("magic link minted",
		slog.String("tenant", tenantID),
		slog.String("token", link.TokenID),
		slog.String("scope", scope))
	return c.JSON(http.StatusCreated, MintLinkResponse{TokenID: link.TokenID, URL: url})
}

func (h *LinksHandler) Revoke(c echo.Context) error {
	if err := auth.RequireOperator(c); err != nil {
		return err
	}
	if err := h.links.Revoke(c.Request().Context(), c.Param("id"), c.Param("token_id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
