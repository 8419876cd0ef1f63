package owners

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shoplinkhq/shoplink/internal/config"
)

const (
	claimTenantID = "tenant_id"
	claimScope    = "scope"
	claimTokenID  = "jti"
)

// LinkService mints and redeems magic links. A link is a signed JWT
// whose jti is tracked server side, so signature validity alone is not
// enough: the stored record must still be unused, unrevoked, and
// unexpired at redemption time.
type LinkService struct {
	repo     LinkRepository
	secret   string
	baseURL  string
	lifetime time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewLinkService(log *slog.Logger, repo LinkRepository, cfg config.LineConfig) *LinkService {
	return &LinkService{
		repo:     repo,
		secret:   cfg.InviteSecret,
		baseURL:  strings.TrimRight(cfg.InviteBaseURL, "/"),
		lifetime: cfg.InviteLifetime,
		logger:   log.With(slog.String("service", "magiclink")),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *LinkService) SetClock(now func() time.Time) { s.now = now }

// Mint creates a link for the tenant and returns the record plus the
// URL to hand to the user.
func (s *LinkService) Mint(ctx context.Context, tenantID, scope, targetUserID string) (MagicLink, string, error) {
	if strings.TrimSpace(s.secret) == "" {
		return MagicLink{}, "", fmt.Errorf("mint link: invite secret is required")
	}
	now := s.now().UTC()
	link := MagicLink{
		TenantID:     tenantID,
		TokenID:      uuid.NewString(),
		Scope:        scope,
		TargetUserID: targetUserID,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.lifetime),
	}
	if err := s.repo.Create(ctx, link); err != nil {
		return MagicLink{}, "", fmt.Errorf("mint link: %w", err)
	}

	claims := jwt.MapClaims{
		claimTokenID:  link.TokenID,
		claimTenantID: tenantID,
		claimScope:    scope,
		"iat":         now.Unix(),
		"exp":         link.ExpiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
	if err != nil {
		return MagicLink{}, "", fmt.Errorf("sign link: %w", err)
	}
	return link, s.baseURL + "/link?token=" + signed, nil
}

// Consume validates and burns a link token. Exactly one call per link
// succeeds.
func (s *LinkService) Consume(ctx context.Context, token string) (MagicLink, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid {
		return MagicLink{}, ErrLinkInvalid
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return MagicLink{}, ErrLinkInvalid
	}
	tenantID, _ := claims[claimTenantID].(string)
	tokenID, _ := claims[claimTokenID].(string)
	if tenantID == "" || tokenID == "" {
		return MagicLink{}, ErrLinkInvalid
	}

	link, err := s.repo.ConsumeOnce(ctx, tenantID, tokenID, s.now().UTC())
	if err != nil {
		return MagicLink{}, err
	}
	s.logger.Info("magic link consumed",
		slog.String("tenant", tenantID),
		slog.String("scope", link.Scope))
	return link, nil
}

// Revoke invalidates an issued link before use.
func (s *LinkService) Revoke(ctx context.Context, tenantID, tokenID string) error {
	return s.repo.Revoke(ctx, tenantID, tokenID)
}
