package owners

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/shoplinkhq/shoplink/internal/onboarding"
)

// Service manages staff bindings and the owner-editable profile.
type Service struct {
	bindings BindingRepository
	profiles ProfileRepository
	logger   *slog.Logger
}

func NewService(log *slog.Logger, bindings BindingRepository, profiles ProfileRepository) *Service {
	return &Service{
		bindings: bindings,
		profiles: profiles,
		logger:   log.With(slog.String("service", "owners")),
	}
}

// BindFromLink binds the chat user to the tenant named by a consumed
// magic link. The first active binding per tenant becomes primary;
// re-binding the same user is a no-op.
func (s *Service) BindFromLink(ctx context.Context, link MagicLink, userID string) (Binding, error) {
	if link.Scope != ScopeBindOwner {
		return Binding{}, fmt.Errorf("bind: scope %q: %w", link.Scope, ErrLinkInvalid)
	}
	if link.TargetUserID != "" && link.TargetUserID != userID {
		return Binding{}, fmt.Errorf("bind: link minted for another user: %w", ErrLinkInvalid)
	}
	return s.bind(ctx, link.TenantID, userID)
}

// BindCandidate registers a chat user who claimed ownership on the
// storefront channel. Same idempotent semantics as BindFromLink.
func (s *Service) BindCandidate(ctx context.Context, tenantID, userID string) (Binding, error) {
	return s.bind(ctx, tenantID, userID)
}

func (s *Service) bind(ctx context.Context, tenantID, userID string) (Binding, error) {
	b := Binding{
		TenantID: tenantID,
		UserID:   userID,
		Active:   true,
		Roles:    "owner",
	}
	if err := s.bindings.Upsert(ctx, b); err != nil {
		return Binding{}, fmt.Errorf("bind: %w", err)
	}
	err := s.bindings.PromotePrimary(ctx, tenantID, userID)
	if err != nil && !errors.Is(err, ErrPrimaryExists) {
		return Binding{}, fmt.Errorf("bind: %w", err)
	}
	bound, err := s.bindings.Get(ctx, tenantID, userID)
	if err != nil {
		return Binding{}, fmt.Errorf("bind: %w", err)
	}
	s.logger.Info("owner bound",
		slog.String("tenant", tenantID),
		slog.String("user", userID),
		slog.Bool("primary", bound.IsPrimary))
	return bound, nil
}

// IsOwner reports whether the chat user holds an active binding.
func (s *Service) IsOwner(ctx context.Context, tenantID, userID string) (bool, error) {
	b, err := s.bindings.Get(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, ErrBindingNotFound) {
			return false, nil
		}
		return false, err
	}
	return b.Active, nil
}

func (s *Service) ActiveBindings(ctx context.Context, tenantID string) ([]Binding, error) {
	return s.bindings.ListActive(ctx, tenantID)
}

func (s *Service) Unbind(ctx context.Context, tenantID, userID string) error {
	return s.bindings.Deactivate(ctx, tenantID, userID)
}

func (s *Service) Profile(ctx context.Context, tenantID string) (Profile, error) {
	return s.profiles.Get(ctx, tenantID)
}

// SetBotName records the storefront bot's display name on the profile.
func (s *Service) SetBotName(ctx context.Context, tenantID, name string) error {
	profile, err := s.profiles.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	profile.TenantID = tenantID
	profile.BotName = name
	if err := s.profiles.Save(ctx, profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// ApplyProfileText interprets a free-text owner message as a profile
// update. Returns the confirmation reply and whether the text was
// consumed. Explicit prefixes win; otherwise a phone-shaped message
// updates the phone and short Thai text without digits updates the
// owner name.
func (s *Service) ApplyProfileText(ctx context.Context, tenantID, text string) (string, bool, error) {
	field, value := classifyProfileText(text)
	if field == "" {
		return "", false, nil
	}

	profile, err := s.profiles.Get(ctx, tenantID)
	if err != nil {
		return "", false, fmt.Errorf("load profile: %w", err)
	}
	profile.TenantID = tenantID

	var reply string
	switch field {
	case "business_name":
		profile.BusinessName = value
		reply = "อัปเดตชื่อร้านเป็น \"" + value + "\" แล้วค่ะ"
	case "full_name":
		profile.FullName = value
		reply = "อัปเดตชื่อผู้ติดต่อเป็น \"" + value + "\" แล้วค่ะ"
	case "bot_name":
		profile.BotName = value
		reply = "อัปเดตชื่อบอทเป็น \"" + value + "\" แล้วค่ะ"
	case "phone":
		profile.Phone = value
		reply = "อัปเดตเบอร์ติดต่อเป็น " + value + " แล้วค่ะ"
	}
	if err := s.profiles.Save(ctx, profile); err != nil {
		return "", false, fmt.Errorf("save profile: %w", err)
	}
	return reply, true, nil
}

var profilePrefixes = []struct {
	prefix string
	field  string
}{
	{"ชื่อร้าน:", "business_name"},
	{"ร้าน:", "business_name"},
	{"ชื่อบอท:", "bot_name"},
	{"ชื่อ:", "full_name"},
	{"เบอร์:", "phone"},
	{"โทร:", "phone"},
	{"shop:", "business_name"},
	{"name:", "full_name"},
	{"phone:", "phone"},
}

func classifyProfileText(text string) (field, value string) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	for _, p := range profilePrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			v := strings.TrimSpace(trimmed[len(p.prefix):])
			if v == "" {
				return "", ""
			}
			if p.field == "phone" {
				if normalized := onboarding.NormalizePhone(v); normalized != "" {
					return "phone", normalized
				}
				return "", ""
			}
			return p.field, v
		}
	}
	if normalized := onboarding.NormalizePhone(trimmed); normalized != "" && isDigitsLike(trimmed) {
		return "phone", normalized
	}
	if isShortThaiName(trimmed) {
		return "full_name", trimmed
	}
	return "", ""
}

func isDigitsLike(s string) bool {
	for _, c := range s {
		if !unicode.IsDigit(c) && c != '-' && c != ' ' && c != '+' {
			return false
		}
	}
	return s != ""
}

// isShortThaiName guesses that short Thai text without digits is the
// owner telling the bot their name.
func isShortThaiName(s string) bool {
	if s == "" || len([]rune(s)) > 40 {
		return false
	}
	hasThai := false
	for _, c := range s {
		if unicode.IsDigit(c) {
			return false
		}
		if unicode.Is(unicode.Thai, c) {
			hasThai = true
		}
	}
	return hasThai
}
