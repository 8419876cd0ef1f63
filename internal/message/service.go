package message

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// scanLimit bounds recency scans. Chat traffic per user is sparse; the
// newest handful of rows always covers the lookback windows in use.
const scanLimit = 50

// Service logs conversation traffic and answers the bounded recency
// queries reconciliation depends on.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(log *slog.Logger, repo Repository) *Service {
	return &Service{
		repo:   repo,
		logger: log.With(slog.String("service", "message")),
	}
}

// LogInbound records an inbound message and refreshes the customer's
// interaction timestamps.
func (s *Service) LogInbound(ctx context.Context, rec Record) error {
	rec.Direction = DirectionIn
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		return fmt.Errorf("log inbound: %w", err)
	}
	if err := s.repo.UpsertCustomer(ctx, rec.TenantID, rec.UserID, "", rec.CreatedAt); err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

// LogOutbound records a message sent to the user.
func (s *Service) LogOutbound(ctx context.Context, rec Record) error {
	rec.Direction = DirectionOut
	if err := s.repo.Append(ctx, rec); err != nil {
		return fmt.Errorf("log outbound: %w", err)
	}
	return nil
}

// TouchCustomer refreshes interaction timestamps and, when known, the
// display name.
func (s *Service) TouchCustomer(ctx context.Context, tenantID, userID, displayName string, at time.Time) error {
	return s.repo.UpsertCustomer(ctx, tenantID, userID, displayName, at)
}

func (s *Service) Customer(ctx context.Context, tenantID, userID string) (Customer, error) {
	return s.repo.GetCustomer(ctx, tenantID, userID)
}

// RecentMediaByUser returns the user's inbound media messages newer
// than since, newest first. Fetches the most recent rows and filters
// in memory instead of relying on a composite index.
func (s *Service) RecentMediaByUser(ctx context.Context, tenantID, userID string, since time.Time) ([]Record, error) {
	records, err := s.repo.RecentByUser(ctx, tenantID, userID, scanLimit)
	if err != nil {
		return nil, fmt.Errorf("recent media: %w", err)
	}
	var media []Record
	for _, rec := range records {
		if rec.Direction == DirectionIn && rec.HasMedia && rec.CreatedAt.After(since) {
			media = append(media, rec)
		}
	}
	return media, nil
}

// RecentByUser exposes the newest records for a user, newest first.
func (s *Service) RecentByUser(ctx context.Context, tenantID, userID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > scanLimit {
		limit = scanLimit
	}
	return s.repo.RecentByUser(ctx, tenantID, userID, limit)
}
