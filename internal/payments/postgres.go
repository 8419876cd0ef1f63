package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresIntentRepository struct {
	pool *pgxpool.Pool
}

var _ IntentRepository = (*PostgresIntentRepository)(nil)

func NewPostgresIntentRepository(pool *pgxpool.Pool) *PostgresIntentRepository {
	return &PostgresIntentRepository{pool: pool}
}

const intentColumns = `id, tenant_id, customer_id, amount, currency, status, confirm_code,
	evidence_ref, evidence_message_id, ocr_amount, ocr_confidence, match_verdict, payment_id,
	created_at, updated_at`

func (r *PostgresIntentRepository) Create(ctx context.Context, it Intent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payment_intents (id, tenant_id, customer_id, amount, currency, status, confirm_code,
		                              evidence_ref, evidence_message_id, ocr_amount, ocr_confidence,
		                              match_verdict, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		it.ID, it.TenantID, it.CustomerID, it.Amount, it.Currency, string(it.Status), it.ConfirmCode,
		it.EvidenceRef, it.EvidenceMessageID, it.OCRAmount, it.OCRConfidence,
		string(it.MatchVerdict), it.CreatedAt)
	if err != nil {
		return fmt.Errorf("create intent: %w", err)
	}
	return nil
}

func (r *PostgresIntentRepository) Get(ctx context.Context, tenantID, id string) (Intent, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	return scanIntent(row)
}

func (r *PostgresIntentRepository) RecentByTenant(ctx context.Context, tenantID string, limit int) ([]Intent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+intentColumns+` FROM payment_intents
		 WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent intents: %w", err)
	}
	return collectIntents(rows)
}

func (r *PostgresIntentRepository) RecentByCustomer(ctx context.Context, tenantID, customerID string, limit int) ([]Intent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+intentColumns+` FROM payment_intents
		 WHERE tenant_id = $1 AND customer_id = $2 ORDER BY created_at DESC LIMIT $3`,
		tenantID, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent intents by customer: %w", err)
	}
	return collectIntents(rows)
}

func (r *PostgresIntentRepository) Transition(ctx context.Context, tenantID, id string, from, to IntentStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payment_intents SET status = $4, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2 AND status = $3`,
		tenantID, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("transition intent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresIntentRepository) Update(ctx context.Context, it Intent) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payment_intents SET
		   amount = $3, currency = $4, evidence_ref = $5, evidence_message_id = $6,
		   ocr_amount = $7, ocr_confidence = $8, match_verdict = $9, payment_id = $10,
		   updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		it.TenantID, it.ID, it.Amount, it.Currency, it.EvidenceRef, it.EvidenceMessageID,
		it.OCRAmount, it.OCRConfidence, string(it.MatchVerdict), nullIfEmpty(it.PaymentID))
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentNotFound
	}
	return nil
}

func (r *PostgresIntentRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payment_intents SET status = 'expired', updated_at = now()
		 WHERE status = 'pending' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire intents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanIntent(row pgx.Row) (Intent, error) {
	var it Intent
	var status, verdict string
	var paymentID *string
	err := row.Scan(&it.ID, &it.TenantID, &it.CustomerID, &it.Amount, &it.Currency, &status, &it.ConfirmCode,
		&it.EvidenceRef, &it.EvidenceMessageID, &it.OCRAmount, &it.OCRConfidence, &verdict, &paymentID,
		&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Intent{}, ErrIntentNotFound
		}
		return Intent{}, fmt.Errorf("scan intent: %w", err)
	}
	it.Status = IntentStatus(status)
	it.MatchVerdict = Verdict(verdict)
	if paymentID != nil {
		it.PaymentID = *paymentID
	}
	return it, nil
}

func collectIntents(rows pgx.Rows) ([]Intent, error) {
	defer rows.Close()
	var intents []Intent
	for rows.Next() {
		it, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, it)
	}
	return intents, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type PostgresPaymentRepository struct {
	pool *pgxpool.Pool
}

var _ PaymentRepository = (*PostgresPaymentRepository)(nil)

func NewPostgresPaymentRepository(pool *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool}
}

func (r *PostgresPaymentRepository) Create(ctx context.Context, p Payment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payments (id, tenant_id, customer_id, amount, currency, method, status,
		                       evidence_ref, evidence_message_id, intent_id, paid_at, confirmed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.TenantID, p.CustomerID, p.Amount, p.Currency, p.Method, p.Status,
		p.EvidenceRef, p.EvidenceMessageID, nullIfEmpty(p.IntentID), p.PaidAt, p.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *PostgresPaymentRepository) AttachEvidence(ctx context.Context, tenantID, paymentID, evidenceRef, messageID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payments SET evidence_ref = $3, evidence_message_id = $4
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, paymentID, evidenceRef, messageID)
	if err != nil {
		return fmt.Errorf("attach evidence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentNotFound
	}
	return nil
}

func (r *PostgresPaymentRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, customer_id, amount, currency, method, status,
		        evidence_ref, evidence_message_id, intent_id, paid_at, confirmed_at
		 FROM payments WHERE tenant_id = $1 ORDER BY paid_at DESC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		var intentID *string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.CustomerID, &p.Amount, &p.Currency, &p.Method, &p.Status,
			&p.EvidenceRef, &p.EvidenceMessageID, &intentID, &p.PaidAt, &p.ConfirmedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if intentID != nil {
			p.IntentID = *intentID
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type PostgresQuoteRepository struct {
	pool *pgxpool.Pool
}

var _ QuoteRepository = (*PostgresQuoteRepository)(nil)

func NewPostgresQuoteRepository(pool *pgxpool.Pool) *PostgresQuoteRepository {
	return &PostgresQuoteRepository{pool: pool}
}

func (r *PostgresQuoteRepository) Set(ctx context.Context, q Quote) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pending_quotes (tenant_id, amount, currency, owner_id, source_text, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   amount = EXCLUDED.amount,
		   currency = EXCLUDED.currency,
		   owner_id = EXCLUDED.owner_id,
		   source_text = EXCLUDED.source_text,
		   issued_at = EXCLUDED.issued_at,
		   expires_at = EXCLUDED.expires_at`,
		q.TenantID, q.Amount, q.Currency, q.OwnerID, q.SourceText, q.IssuedAt, q.ExpiresAt)
	if err != nil {
		return fmt.Errorf("set quote: %w", err)
	}
	return nil
}

func (r *PostgresQuoteRepository) Get(ctx context.Context, tenantID string) (Quote, error) {
	var q Quote
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id, amount, currency, owner_id, source_text, issued_at, expires_at
		 FROM pending_quotes WHERE tenant_id = $1`, tenantID).
		Scan(&q.TenantID, &q.Amount, &q.Currency, &q.OwnerID, &q.SourceText, &q.IssuedAt, &q.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrNoQuote
		}
		return Quote{}, fmt.Errorf("get quote: %w", err)
	}
	return q, nil
}

func (r *PostgresQuoteRepository) Clear(ctx context.Context, tenantID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM pending_quotes WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("clear quote: %w", err)
	}
	return nil
}

func (r *PostgresQuoteRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM pending_quotes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge quotes: %w", err)
	}
	return tag.RowsAffected(), nil
}
