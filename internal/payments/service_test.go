package payments

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shoplinkhq/shoplink/internal/config"
	"github.com/shoplinkhq/shoplink/internal/message"
	"github.com/shoplinkhq/shoplink/internal/ocr"
)

type fakeExtractor struct {
	result ocr.Result
	err    error
	calls  int
}

func (f *fakeExtractor) ExtractAmount(_ context.Context, _ []byte, _ string) (ocr.Result, error) {
	f.calls++
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return f.result, nil
}

type fakeNotifier struct {
	texts         []string
	choices       [][]string
	customerTexts []string
}

func (f *fakeNotifier) NotifyOwners(_ context.Context, _ string, text string, choices ...string) error {
	f.texts = append(f.texts, text)
	f.choices = append(f.choices, choices)
	return nil
}

func (f *fakeNotifier) NotifyCustomer(_ context.Context, _, _, text string) error {
	f.customerTexts = append(f.customerTexts, text)
	return nil
}

type serviceFixture struct {
	svc       *Service
	intents   *MemoryIntentRepository
	payments  *MemoryPaymentRepository
	quotes    *MemoryQuoteRepository
	messages  *message.Service
	extractor *fakeExtractor
	notifier  *fakeNotifier
	now       time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		intents:   NewMemoryIntentRepository(),
		payments:  NewMemoryPaymentRepository(),
		quotes:    NewMemoryQuoteRepository(),
		extractor: &fakeExtractor{result: ocr.Result{Amount: 350, Currency: "THB", Confidence: 0.95}},
		notifier:  &fakeNotifier{},
		now:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	log := slog.Default()
	f.messages = message.NewService(log, message.NewMemoryRepository())
	f.svc = NewService(log, f.intents, f.payments, f.quotes, f.messages, f.extractor, f.notifier,
		config.ReconcileConfig{
			AttachWindow:  time.Hour,
			ConfirmWindow: 2 * time.Hour,
			ClaimLookback: 10 * time.Minute,
			QuoteTTL:      30 * time.Minute,
			ScanLimit:     50,
		},
		config.OCRConfig{Tolerance: 1.0})
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func TestCustomerClaimCreatesPendingIntent(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)

	reply, handled, err := f.svc.CustomerClaim(context.Background(), "t1", "u1", "โอนแล้ว 350 บาท", f.now)
	require.NoError(t, err)
	require.True(t, handled)
	require.NotEmpty(t, reply.Text)

	recent, err := f.intents.RecentByTenant(context.Background(), "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, StatusPending, recent[0].Status)
	require.Equal(t, 350.0, recent[0].Amount)
	require.Equal(t, "THB", recent[0].Currency)
	require.Equal(t, CodeConfirm, recent[0].ConfirmCode)

	require.Len(t, f.notifier.texts, 1)
	require.Equal(t, []string{"ยืนยัน 1010", "ปฏิเสธ 0011"}, f.notifier.choices[0])
}

func TestCustomerClaimEnglishPayVerb(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)

	_, handled, err := f.svc.CustomerClaim(context.Background(), "t1", "u1", "pay 500", f.now)
	require.NoError(t, err)
	require.True(t, handled)

	recent, err := f.intents.RecentByTenant(context.Background(), "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, 500.0, recent[0].Amount)
	require.Equal(t, StatusPending, recent[0].Status)
}

func TestCustomerClaimIgnoresPlainChat(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)

	_, handled, err := f.svc.CustomerClaim(context.Background(), "t1", "u1", "สวัสดีครับ", f.now)
	require.NoError(t, err)
	require.False(t, handled)
	require.Empty(t, f.notifier.texts)
}

func TestCustomerClaimAttachesRecentSlip(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.messages.LogInbound(ctx, message.Record{
		ID:        uuid.NewString(),
		TenantID:  "t1",
		UserID:    "u1",
		MessageID: "m-slip",
		MediaRef:  "t1/evidence/ab/abcd.jpg",
		MediaType: "image/jpeg",
		HasMedia:  true,
		CreatedAt: f.now.Add(-2 * time.Minute),
	}))

	_, handled, err := f.svc.CustomerClaim(ctx, "t1", "u1", "paid 350", f.now)
	require.NoError(t, err)
	require.True(t, handled)

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "t1/evidence/ab/abcd.jpg", recent[0].EvidenceRef)
	require.Equal(t, "m-slip", recent[0].EvidenceMessageID)
}

func TestCustomerEvidenceSkipsOCRWithoutQuote(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CustomerClaim(ctx, "t1", "u1", "โอนแล้ว 350", f.now)
	require.NoError(t, err)

	reply, err := f.svc.CustomerEvidence(ctx, "t1", "u1", "ref-1", "m-1", []byte("jpeg"), "image/jpeg", f.now.Add(time.Minute))
	require.NoError(t, err)
	require.NotEmpty(t, reply.Text)

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "ref-1", recent[0].EvidenceRef)
	require.Empty(t, recent[0].MatchVerdict)
	require.Nil(t, recent[0].OCRAmount)
	require.Zero(t, f.extractor.calls)
}

func TestCustomerEvidenceMatchesQuotedAmount(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.OwnerQuote(ctx, "t1", "owner-1", "350", f.now)
	require.NoError(t, err)
	_, _, err = f.svc.CustomerClaim(ctx, "t1", "u1", "โอนแล้ว 350", f.now)
	require.NoError(t, err)

	_, err = f.svc.CustomerEvidence(ctx, "t1", "u1", "ref-1", "m-1", []byte("jpeg"), "image/jpeg", f.now.Add(time.Minute))
	require.NoError(t, err)

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, VerdictMatch, recent[0].MatchVerdict)
	require.Equal(t, "ref-1", recent[0].EvidenceRef)
	require.NotNil(t, recent[0].OCRAmount)
	require.Equal(t, 350.0, *recent[0].OCRAmount)
}

func TestCustomerEvidenceMismatchWithholdsAmount(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.extractor.result = ocr.Result{Amount: 500, Currency: "THB", Confidence: 0.9}
	ctx := context.Background()

	_, _, err := f.svc.OwnerQuote(ctx, "t1", "owner-1", "350", f.now)
	require.NoError(t, err)
	_, _, err = f.svc.CustomerClaim(ctx, "t1", "u1", "โอนแล้ว 350", f.now)
	require.NoError(t, err)

	_, err = f.svc.CustomerEvidence(ctx, "t1", "u1", "ref-1", "m-1", []byte("jpeg"), "image/jpeg", f.now.Add(time.Minute))
	require.NoError(t, err)

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Equal(t, VerdictMismatch, recent[0].MatchVerdict)
	// A mismatch never blocks the owner from confirming anyway.
	require.Equal(t, StatusPending, recent[0].Status)

	// The mismatch notice carries no amounts, so the owner reads the
	// slip without an anchor.
	last := f.notifier.texts[len(f.notifier.texts)-1]
	require.NotContains(t, last, "500")
	require.NotContains(t, last, "350")
}

func TestCustomerEvidenceUnreadableFallsBackToManual(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.extractor.err = ocr.ErrUnavailable
	ctx := context.Background()

	_, _, err := f.svc.OwnerQuote(ctx, "t1", "owner-1", "350", f.now)
	require.NoError(t, err)
	_, _, err = f.svc.CustomerClaim(ctx, "t1", "u1", "โอนแล้ว 350", f.now)
	require.NoError(t, err)

	_, err = f.svc.CustomerEvidence(ctx, "t1", "u1", "ref-1", "m-1", []byte("jpeg"), "image/jpeg", f.now.Add(time.Minute))
	require.NoError(t, err)

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Equal(t, VerdictUnreadable, recent[0].MatchVerdict)
	require.Equal(t, StatusPending, recent[0].Status)
}

func TestCustomerEvidenceConsumesQuote(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, handled, err := f.svc.OwnerQuote(ctx, "t1", "owner-1", "350 บาท", f.now)
	require.NoError(t, err)
	require.True(t, handled)

	_, err = f.svc.CustomerEvidence(ctx, "t1", "u1", "ref-1", "m-1", []byte("jpeg"), "image/jpeg", f.now.Add(5*time.Minute))
	require.NoError(t, err)

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, 350.0, recent[0].Amount)
	require.Equal(t, VerdictMatch, recent[0].MatchVerdict)

	_, err = f.quotes.Get(ctx, "t1")
	require.ErrorIs(t, err, ErrNoQuote)
}

func TestCustomerEvidenceExpiredQuoteIgnored(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.OwnerQuote(ctx, "t1", "owner-1", "350", f.now)
	require.NoError(t, err)

	_, err = f.svc.CustomerEvidence(ctx, "t1", "u1", "ref-1", "m-1", []byte("jpeg"), "image/jpeg", f.now.Add(31*time.Minute))
	require.NoError(t, err)

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	// An expired quote neither sets the amount nor triggers OCR; the
	// slip goes to the owner for manual review.
	require.Zero(t, recent[0].Amount)
	require.Nil(t, recent[0].OCRAmount)
	require.Zero(t, f.extractor.calls)
}

func TestOwnerQuoteMostRecentWins(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.OwnerQuote(ctx, "t1", "owner-1", "350", f.now)
	require.NoError(t, err)
	_, _, err = f.svc.OwnerQuote(ctx, "t1", "owner-1", "420", f.now.Add(time.Minute))
	require.NoError(t, err)

	q, err := f.quotes.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 420.0, q.Amount)
}

func TestOwnerQuoteIgnoresSentences(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)

	_, handled, err := f.svc.OwnerQuote(context.Background(), "t1", "owner-1", "พรุ่งนี้ส่งของ 350 กล่อง", f.now)
	require.NoError(t, err)
	require.False(t, handled)
}

func TestOwnerConfirmCreatesPayment(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CustomerClaim(ctx, "t1", "u1", "โอนแล้ว 350", f.now)
	require.NoError(t, err)
	_, err = f.svc.CustomerEvidence(ctx, "t1", "u1", "ref-1", "m-1", []byte("jpeg"), "image/jpeg", f.now.Add(time.Minute))
	require.NoError(t, err)

	reply, handled, err := f.svc.OwnerCode(ctx, "t1", "owner-1", "ยืนยัน 1010", f.now.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, handled)
	require.Contains(t, reply.Text, "350.00")

	paid, err := f.payments.ListRecent(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	require.Equal(t, 350.0, paid[0].Amount)
	require.Equal(t, "confirmed", paid[0].Status)
	require.Equal(t, "ref-1", paid[0].EvidenceRef)
	require.NotNil(t, paid[0].ConfirmedAt)

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, recent[0].Status)
	require.Equal(t, paid[0].ID, recent[0].PaymentID)

	require.Len(t, f.notifier.customerTexts, 1)
	require.Contains(t, f.notifier.customerTexts[0], "ยืนยัน")
}

func TestOwnerRejectClosesIntent(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CustomerClaim(ctx, "t1", "u1", "โอนแล้ว 350", f.now)
	require.NoError(t, err)

	_, handled, err := f.svc.OwnerCode(ctx, "t1", "owner-1", "0011", f.now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, handled)

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, recent[0].Status)

	paid, err := f.payments.ListRecent(ctx, "t1", 10)
	require.NoError(t, err)
	require.Empty(t, paid)

	require.Len(t, f.notifier.customerTexts, 1)
	require.Contains(t, f.notifier.customerTexts[0], "ส่งสลิปอีกครั้ง")
}

func TestOwnerCodeWithNothingPendingIsNoop(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)

	reply, handled, err := f.svc.OwnerCode(context.Background(), "t1", "owner-1", "1010", f.now)
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, "ไม่มีรายการรอตรวจสอบค่ะ", reply.Text)
}

func TestOwnerCodeDoubleConfirmIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CustomerClaim(ctx, "t1", "u1", "โอนแล้ว 350", f.now)
	require.NoError(t, err)

	_, _, err = f.svc.OwnerCode(ctx, "t1", "owner-1", "1010", f.now.Add(time.Minute))
	require.NoError(t, err)
	_, handled, err := f.svc.OwnerCode(ctx, "t1", "owner-1", "1010", f.now.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, handled)

	paid, err := f.payments.ListRecent(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, paid, 1)
}

func TestOwnerCodeIgnoresStaleIntents(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CustomerClaim(ctx, "t1", "u1", "โอนแล้ว 350", f.now)
	require.NoError(t, err)

	reply, handled, err := f.svc.OwnerCode(ctx, "t1", "owner-1", "1010", f.now.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, "ไม่มีรายการรอตรวจสอบค่ะ", reply.Text)
}

func TestEvidencePrefersPendingOverNewerConfirmed(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	pending := Intent{
		ID: uuid.NewString(), TenantID: "t1", CustomerID: "u1",
		Amount: 350, Currency: "THB", Status: StatusPending, ConfirmCode: CodeConfirm,
		CreatedAt: f.now.Add(-10 * time.Minute), UpdatedAt: f.now.Add(-10 * time.Minute),
	}
	confirmed := Intent{
		ID: uuid.NewString(), TenantID: "t1", CustomerID: "u1",
		Amount: 200, Currency: "THB", Status: StatusConfirmed, ConfirmCode: CodeConfirm,
		CreatedAt: f.now.Add(-5 * time.Minute), UpdatedAt: f.now.Add(-5 * time.Minute),
	}
	require.NoError(t, f.intents.Create(ctx, pending))
	require.NoError(t, f.intents.Create(ctx, confirmed))

	_, err := f.svc.CustomerEvidence(ctx, "t1", "u1", "ref-1", "m-1", []byte("jpeg"), "image/jpeg", f.now)
	require.NoError(t, err)

	got, err := f.intents.Get(ctx, "t1", pending.ID)
	require.NoError(t, err)
	require.Equal(t, "ref-1", got.EvidenceRef)

	untouched, err := f.intents.Get(ctx, "t1", confirmed.ID)
	require.NoError(t, err)
	require.Empty(t, untouched.EvidenceRef)
}

func TestEvidenceBackfillOntoConfirmedPayment(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CustomerClaim(ctx, "t1", "u1", "โอนแล้ว 350", f.now)
	require.NoError(t, err)
	_, _, err = f.svc.OwnerCode(ctx, "t1", "owner-1", "1010", f.now.Add(time.Minute))
	require.NoError(t, err)

	// Slip arrives after the owner already confirmed.
	reply, err := f.svc.CustomerEvidence(ctx, "t1", "u1", "ref-late", "m-late", []byte("jpeg"), "image/jpeg", f.now.Add(5*time.Minute))
	require.NoError(t, err)
	require.Contains(t, reply.Text, "ยืนยันเรียบร้อยแล้ว")

	paid, err := f.payments.ListRecent(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	require.Equal(t, "ref-late", paid[0].EvidenceRef)
	require.Equal(t, "m-late", paid[0].EvidenceMessageID)

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Equal(t, "ref-late", recent[0].EvidenceRef)
}

func TestExpireStaleClosesOldIntentsAndQuotes(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CustomerClaim(ctx, "t1", "u1", "โอนแล้ว 350", f.now.Add(-3*time.Hour))
	require.NoError(t, err)
	_, _, err = f.svc.OwnerQuote(ctx, "t1", "owner-1", "420", f.now.Add(-time.Hour))
	require.NoError(t, err)

	require.NoError(t, f.svc.ExpireStale(ctx))

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, recent[0].Status)

	_, err = f.quotes.Get(ctx, "t1")
	require.ErrorIs(t, err, ErrNoQuote)
}
