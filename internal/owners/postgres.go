package owners

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresBindingRepository struct {
	pool *pgxpool.Pool
}

var _ BindingRepository = (*PostgresBindingRepository)(nil)

func NewPostgresBindingRepository(pool *pgxpool.Pool) *PostgresBindingRepository {
	return &PostgresBindingRepository{pool: pool}
}

func (r *PostgresBindingRepository) Get(ctx context.Context, tenantID, userID string) (Binding, error) {
	var b Binding
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id, user_id, active, is_primary, roles, external_id, created_at, updated_at
		 FROM owner_bindings WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID).
		Scan(&b.TenantID, &b.UserID, &b.Active, &b.IsPrimary, &b.Roles, &b.ExternalID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Binding{}, ErrBindingNotFound
		}
		return Binding{}, fmt.Errorf("get binding: %w", err)
	}
	return b, nil
}

func (r *PostgresBindingRepository) Upsert(ctx context.Context, b Binding) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO owner_bindings (tenant_id, user_id, active, is_primary, roles, external_id)
		 VALUES ($1, $2, $3, false, $4, $5)
		 ON CONFLICT (tenant_id, user_id) DO UPDATE SET
		   active = EXCLUDED.active,
		   roles = EXCLUDED.roles,
		   external_id = EXCLUDED.external_id,
		   updated_at = now()`,
		b.TenantID, b.UserID, b.Active, b.Roles, b.ExternalID)
	if err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}
	return nil
}

func (r *PostgresBindingRepository) PromotePrimary(ctx context.Context, tenantID, userID string) error {
	// The partial unique index on (tenant_id) WHERE is_primary turns a
	// concurrent double-promotion into a constraint violation.
	tag, err := r.pool.Exec(ctx,
		`UPDATE owner_bindings SET is_primary = true, updated_at = now()
		 WHERE tenant_id = $1 AND user_id = $2 AND active
		   AND NOT EXISTS (
		     SELECT 1 FROM owner_bindings WHERE tenant_id = $1 AND is_primary
		   )`,
		tenantID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPrimaryExists
		}
		return fmt.Errorf("promote primary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := r.Get(ctx, tenantID, userID)
		if getErr == nil && existing.IsPrimary {
			return nil
		}
		if getErr == nil && existing.Active {
			return ErrPrimaryExists
		}
		return ErrBindingNotFound
	}
	return nil
}

func (r *PostgresBindingRepository) ListActive(ctx context.Context, tenantID string) ([]Binding, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tenant_id, user_id, active, is_primary, roles, external_id, created_at, updated_at
		 FROM owner_bindings WHERE tenant_id = $1 AND active ORDER BY created_at`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.TenantID, &b.UserID, &b.Active, &b.IsPrimary, &b.Roles, &b.ExternalID, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

func (r *PostgresBindingRepository) Deactivate(ctx context.Context, tenantID, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE owner_bindings SET active = false, is_primary = false, updated_at = now()
		 WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID)
	if err != nil {
		return fmt.Errorf("deactivate binding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBindingNotFound
	}
	return nil
}

type PostgresProfileRepository struct {
	pool *pgxpool.Pool
}

var _ ProfileRepository = (*PostgresProfileRepository)(nil)

func NewPostgresProfileRepository(pool *pgxpool.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

func (r *PostgresProfileRepository) Get(ctx context.Context, tenantID string) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id, full_name, phone, business_name, bot_name, location_lat, location_lng, location_address, updated_at
		 FROM owner_profiles WHERE tenant_id = $1`,
		tenantID).
		Scan(&p.TenantID, &p.FullName, &p.Phone, &p.BusinessName, &p.BotName,
			&p.LocationLat, &p.LocationLng, &p.LocationAddress, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{TenantID: tenantID}, nil
		}
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *PostgresProfileRepository) Save(ctx context.Context, p Profile) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO owner_profiles (tenant_id, full_name, phone, business_name, bot_name, location_lat, location_lng, location_address, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   full_name = EXCLUDED.full_name,
		   phone = EXCLUDED.phone,
		   business_name = EXCLUDED.business_name,
		   bot_name = EXCLUDED.bot_name,
		   location_lat = EXCLUDED.location_lat,
		   location_lng = EXCLUDED.location_lng,
		   location_address = EXCLUDED.location_address,
		   updated_at = now()`,
		p.TenantID, p.FullName, p.Phone, p.BusinessName, p.BotName,
		p.LocationLat, p.LocationLng, p.LocationAddress)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

type PostgresLinkRepository struct {
	pool *pgxpool.Pool
}

var _ LinkRepository = (*PostgresLinkRepository)(nil)

func NewPostgresLinkRepository(pool *pgxpool.Pool) *PostgresLinkRepository {
	return &PostgresLinkRepository{pool: pool}
}

func (r *PostgresLinkRepository) Create(ctx context.Context, link MagicLink) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO magic_links (tenant_id, token_id, scope, target_user_id, issued_at, expires_at, revoked)
		 VALUES ($1, $2, $3, $4, $5, $6, false)`,
		link.TenantID, link.TokenID, link.Scope, link.TargetUserID, link.IssuedAt, link.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create magic link: %w", err)
	}
	return nil
}

func (r *PostgresLinkRepository) ConsumeOnce(ctx context.Context, tenantID, tokenID string, now time.Time) (MagicLink, error) {
	var link MagicLink
	err := r.pool.QueryRow(ctx,
		`UPDATE magic_links SET used_at = $3
		 WHERE tenant_id = $1 AND token_id = $2
		   AND used_at IS NULL AND NOT revoked AND expires_at > $3
		 RETURNING tenant_id, token_id, scope, target_user_id, issued_at, expires_at, revoked, used_at`,
		tenantID, tokenID, now).
		Scan(&link.TenantID, &link.TokenID, &link.Scope, &link.TargetUserID,
			&link.IssuedAt, &link.ExpiresAt, &link.Revoked, &link.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MagicLink{}, ErrLinkInvalid
		}
		return MagicLink{}, fmt.Errorf("consume magic link: %w", err)
	}
	return link, nil
}

func (r *PostgresLinkRepository) Revoke(ctx context.Context, tenantID, tokenID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE magic_links SET revoked = true
		 WHERE tenant_id = $1 AND token_id = $2`,
		tenantID, tokenID)
	if err != nil {
		return fmt.Errorf("revoke magic link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkInvalid
	}
	return nil
}

func (r *PostgresLinkRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM magic_links WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge magic links: %w", err)
	}
	return tag.RowsAffected(), nil
}
