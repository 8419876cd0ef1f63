package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, tenant_id, user_id, direction, body, intent, message_id, media_ref, media_type, has_media, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.TenantID, rec.UserID, string(rec.Direction), rec.Body, rec.Intent,
		rec.MessageID, rec.MediaRef, rec.MediaType, rec.HasMedia, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RecentByUser(ctx context.Context, tenantID, userID string, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, user_id, direction, body, intent, message_id, media_ref, media_type, has_media, created_at
		 FROM messages
		 WHERE tenant_id = $1 AND user_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var direction string
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.UserID, &direction, &rec.Body, &rec.Intent,
			&rec.MessageID, &rec.MediaRef, &rec.MediaType, &rec.HasMedia, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.Direction = Direction(direction)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) UpsertCustomer(ctx context.Context, tenantID, userID, displayName string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO customers (tenant_id, user_id, display_name, first_interaction_at, last_interaction_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (tenant_id, user_id) DO UPDATE SET
		   display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE customers.display_name END,
		   last_interaction_at = EXCLUDED.last_interaction_at`,
		tenantID, userID, displayName, at)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetCustomer(ctx context.Context, tenantID, userID string) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id, user_id, display_name, first_interaction_at, last_interaction_at
		 FROM customers WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID).
		Scan(&c.TenantID, &c.UserID, &c.DisplayName, &c.FirstInteractionAt, &c.LastInteractionAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}
