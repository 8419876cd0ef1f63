package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores tenants in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const tenantColumns = `id, display_name, channel_secret, access_token, secret_ref, token_ref, legacy_channel_id, active, created_at, updated_at`

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (Tenant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return r.scanTenant(ctx, row)
}

func (r *PostgresRepository) GetByRoutingID(ctx context.Context, routingID string) (Tenant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT t.id, t.display_name, t.channel_secret, t.access_token, t.secret_ref, t.token_ref, t.legacy_channel_id, t.active, t.created_at, t.updated_at
		 FROM tenants t
		 JOIN tenant_channels c ON c.tenant_id = t.id
		 WHERE c.routing_id = $1
		 LIMIT 1`, routingID)
	return r.scanTenant(ctx, row)
}

func (r *PostgresRepository) GetByLegacyChannelID(ctx context.Context, channelID string) (Tenant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE legacy_channel_id = $1`, channelID)
	return r.scanTenant(ctx, row)
}

func (r *PostgresRepository) Upsert(ctx context.Context, t Tenant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO tenants (id, display_name, channel_secret, access_token, secret_ref, token_ref, legacy_channel_id, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   channel_secret = EXCLUDED.channel_secret,
		   access_token = EXCLUDED.access_token,
		   secret_ref = EXCLUDED.secret_ref,
		   token_ref = EXCLUDED.token_ref,
		   legacy_channel_id = EXCLUDED.legacy_channel_id,
		   active = EXCLUDED.active,
		   updated_at = now()`,
		t.ID, t.DisplayName, t.ChannelSecret, t.AccessToken, t.SecretRef, t.TokenRef, t.LegacyChannelID, t.Active)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tenant_channels WHERE tenant_id = $1`, t.ID); err != nil {
		return fmt.Errorf("clear channels: %w", err)
	}
	for _, ch := range t.Channels {
		_, err := tx.Exec(ctx,
			`INSERT INTO tenant_channels (tenant_id, name, role, routing_id, credential, storefront)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, ch.Name, string(ch.Role), ch.RoutingID, ch.Credential, ch.Storefront)
		if err != nil {
			return fmt.Errorf("insert channel %s: %w", ch.Name, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.ChannelSecret, &t.AccessToken, &t.SecretRef, &t.TokenRef, &t.LegacyChannelID, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range tenants {
		channels, err := r.loadChannels(ctx, tenants[i].ID)
		if err != nil {
			return nil, err
		}
		tenants[i].Channels = channels
	}
	return tenants, nil
}

func (r *PostgresRepository) scanTenant(ctx context.Context, row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.DisplayName, &t.ChannelSecret, &t.AccessToken, &t.SecretRef, &t.TokenRef, &t.LegacyChannelID, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("scan tenant: %w", err)
	}
	channels, err := r.loadChannels(ctx, t.ID)
	if err != nil {
		return Tenant{}, err
	}
	t.Channels = channels
	return t, nil
}

func (r *PostgresRepository) loadChannels(ctx context.Context, tenantID string) ([]Channel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, role, routing_id, credential, storefront
		 FROM tenant_channels WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		var role string
		if err := rows.Scan(&ch.Name, &role, &ch.RoutingID, &ch.Credential, &ch.Storefront); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch.Role = ChannelRole(role)
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}
