package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shoplinkhq/shoplink/internal/line"
	"github.com/shoplinkhq/shoplink/internal/owners"
	"github.com/shoplinkhq/shoplink/internal/tenant"
)

// OwnerNotifier pushes reconciliation prompts to every bound owner of
// a tenant over the messaging channel.
type OwnerNotifier struct {
	tenants   tenant.Repository
	secrets   tenant.SecretSource
	owners    *owners.Service
	messenger line.Messenger
	logger    *slog.Logger
}

func NewOwnerNotifier(
	log *slog.Logger,
	tenants tenant.Repository,
	secrets tenant.SecretSource,
	ownersSvc *owners.Service,
	messenger line.Messenger,
) *OwnerNotifier {
	return &OwnerNotifier{
		tenants:   tenants,
		secrets:   secrets,
		owners:    ownersSvc,
		messenger: messenger,
		logger:    log.With(slog.String("service", "notifier")),
	}
}

// NotifyOwners pushes text to each active owner binding. A push
// failure for one owner does not stop the others; the first error is
// reported after all pushes were attempted.
func (n *OwnerNotifier) NotifyOwners(ctx context.Context, tenantID, text string, choices ...string) error {
	t, err := n.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("notify owners: %w", err)
	}
	_, token, err := n.secrets.ResolveSecret(ctx, t)
	if err != nil {
		return fmt.Errorf("notify owners: %w", err)
	}
	bindings, err := n.owners.ActiveBindings(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("notify owners: %w", err)
	}
	if len(bindings) == 0 {
		n.logger.Warn("no bound owners to notify", slog.String("tenant", tenantID))
		return nil
	}

	msg := line.TextMessageWithChoices(text, choices...)
	var firstErr error
	for _, b := range bindings {
		if err := n.messenger.Push(ctx, token, b.UserID, msg); err != nil {
			n.logger.Warn("owner push failed",
				slog.String("tenant", tenantID),
				slog.String("owner", b.UserID),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// NotifyCustomer pushes a resolution notice to one chat user.
func (n *OwnerNotifier) NotifyCustomer(ctx context.Context, tenantID, userID, text string) error {
	t, err := n.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("notify customer: %w", err)
	}
	_, token, err := n.secrets.ResolveSecret(ctx, t)
	if err != nil {
		return fmt.Errorf("notify customer: %w", err)
	}
	if err := n.messenger.Push(ctx, token, userID, line.TextMessage(text)); err != nil {
		return fmt.Errorf("notify customer: %w", err)
	}
	return nil
}
