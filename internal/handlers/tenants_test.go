package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/shoplinkhq/shoplink/internal/auth"
	"github.com/shoplinkhq/shoplink/internal/config"
	"github.com/shoplinkhq/shoplink/internal/tenant"
)

func operatorContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder) echo.Context {
	c := e.NewContext(req, rec)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops", "role": auth.RoleOperator,
	})
	token.Valid = true
	c.Set("user", token)
	return c
}

func TestTenantsUpsertInvalidatesResolverCache(t *testing.T) {
	t.Parallel()
	repo := tenant.NewMemoryRepository()
	resolver := tenant.NewResolver(slog.Default(), repo, tenant.InlineSecrets{}, config.TenantConfig{})
	h := NewTenantsHandler(slog.Default(), repo, resolver)

	e := echo.New()
	body := `{"display_name":"Test Shop","channel_secret":"s1","access_token":"a1","active":true,` +
		`"channels":[{"name":"storefront","role":"consumer","routing_id":"U-dest-1","storefront":true}]}`
	req := httptest.NewRequest(http.MethodPut, "/admin/tenants/t1", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := operatorContext(e, req, rec)
	c.SetPath("/admin/tenants/:id")
	c.SetParamNames("id")
	c.SetParamValues("t1")

	require.NoError(t, h.Upsert(c))
	require.Equal(t, http.StatusOK, rec.Code)

	res, err := resolver.Resolve(context.Background(), "U-dest-1")
	require.NoError(t, err)
	require.Equal(t, "t1", res.Tenant.ID)
	require.Equal(t, "s1", res.ChannelSecret)
}

func TestTenantsUpsertRequiresOperator(t *testing.T) {
	t.Parallel()
	repo := tenant.NewMemoryRepository()
	resolver := tenant.NewResolver(slog.Default(), repo, tenant.InlineSecrets{}, config.TenantConfig{})
	h := NewTenantsHandler(slog.Default(), repo, resolver)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/admin/tenants/t1", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/admin/tenants/:id")
	c.SetParamNames("id")
	c.SetParamValues("t1")

	err := h.Upsert(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestTenantsUpsertValidatesBody(t *testing.T) {
	t.Parallel()
	repo := tenant.NewMemoryRepository()
	resolver := tenant.NewResolver(slog.Default(), repo, tenant.InlineSecrets{}, config.TenantConfig{})
	h := NewTenantsHandler(slog.Default(), repo, resolver)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/admin/tenants/t1", strings.NewReader(`{"display_name":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := operatorContext(e, req, rec)
	c.SetPath("/admin/tenants/:id")
	c.SetParamNames("id")
	c.SetParamValues("t1")

	err := h.Upsert(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestTenantsGetNotFound(t *testing.T) {
	t.Parallel()
	repo := tenant.NewMemoryRepository()
	resolver := tenant.NewResolver(slog.Default(), repo, tenant.InlineSecrets{}, config.TenantConfig{})
	h := NewTenantsHandler(slog.Default(), repo, resolver)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/nope", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/admin/tenants/:id")
	c.SetParamNames("id")
	c.SetParamValues("nope")

	err := h.Get(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, httpErr.Code)
}
