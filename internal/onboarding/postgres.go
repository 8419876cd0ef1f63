package onboarding

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

var _ SessionRepository = (*PostgresSessionRepository)(nil)

func NewPostgresSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

func (r *PostgresSessionRepository) Get(ctx context.Context, tenantID, userID string) (Session, error) {
	var s Session
	var step int
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id, user_id, step, name, phone, label, location_lat, location_lng, location_address,
		        payment_account, payment_note, payment_qr_ref, owner_prompted, updated_at
		 FROM sessions WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID).
		Scan(&s.TenantID, &s.UserID, &step, &s.Name, &s.Phone, &s.Label,
			&s.LocationLat, &s.LocationLng, &s.LocationAddress,
			&s.PaymentAccount, &s.PaymentNote, &s.PaymentQRRef, &s.OwnerPrompted, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	s.Step = Step(step)
	return s, nil
}

func (r *PostgresSessionRepository) Save(ctx context.Context, s Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (tenant_id, user_id, step, name, phone, label, location_lat, location_lng, location_address,
		                       payment_account, payment_note, payment_qr_ref, owner_prompted, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (tenant_id, user_id) DO UPDATE SET
		   step = EXCLUDED.step,
		   name = EXCLUDED.name,
		   phone = EXCLUDED.phone,
		   label = EXCLUDED.label,
		   location_lat = EXCLUDED.location_lat,
		   location_lng = EXCLUDED.location_lng,
		   location_address = EXCLUDED.location_address,
		   payment_account = EXCLUDED.payment_account,
		   payment_note = EXCLUDED.payment_note,
		   payment_qr_ref = EXCLUDED.payment_qr_ref,
		   owner_prompted = EXCLUDED.owner_prompted,
		   updated_at = EXCLUDED.updated_at`,
		s.TenantID, s.UserID, int(s.Step), s.Name, s.Phone, s.Label,
		s.LocationLat, s.LocationLng, s.LocationAddress,
		s.PaymentAccount, s.PaymentNote, s.PaymentQRRef, s.OwnerPrompted, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) Delete(ctx context.Context, tenantID, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

type PostgresRequestRepository struct {
	pool *pgxpool.Pool
}

var _ RequestRepository = (*PostgresRequestRepository)(nil)

func NewPostgresRequestRepository(pool *pgxpool.Pool) *PostgresRequestRepository {
	return &PostgresRequestRepository{pool: pool}
}

func (r *PostgresRequestRepository) CreateIfNew(ctx context.Context, req Request) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO onboarding_requests (id, tenant_id, user_id, name, phone, label, location_lat, location_lng,
		                                  location_address, payment_account, payment_note, payment_qr_ref,
		                                  fingerprint, status, created_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		 WHERE NOT EXISTS (
		   SELECT 1 FROM onboarding_requests
		   WHERE tenant_id = $2 AND user_id = $3 AND fingerprint = $13 AND status = $14
		 )`,
		req.ID, req.TenantID, req.UserID, req.Name, req.Phone, req.Label,
		req.LocationLat, req.LocationLng, req.LocationAddress,
		req.PaymentAccount, req.PaymentNote, req.PaymentQRRef,
		req.Fingerprint, req.Status, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateRequest
	}
	return nil
}

func (r *PostgresRequestRepository) UpdateStatus(ctx context.Context, tenantID, requestID, status string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE onboarding_requests SET status = $3, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, requestID, status)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return nil
}

func (r *PostgresRequestRepository) ListPending(ctx context.Context, tenantID string) ([]Request, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, user_id, name, phone, label, location_lat, location_lng, location_address,
		        payment_account, payment_note, payment_qr_ref, fingerprint, status, created_at
		 FROM onboarding_requests
		 WHERE tenant_id = $1 AND status = $2
		 ORDER BY created_at`,
		tenantID, RequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var pending []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.TenantID, &req.UserID, &req.Name, &req.Phone, &req.Label,
			&req.LocationLat, &req.LocationLng, &req.LocationAddress,
			&req.PaymentAccount, &req.PaymentNote, &req.PaymentQRRef,
			&req.Fingerprint, &req.Status, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		pending = append(pending, req)
	}
	return pending, rows.Err()
}
