package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/shoplinkhq/shoplink/internal/config"
	"github.com/shoplinkhq/shoplink/internal/message"
	"github.com/shoplinkhq/shoplink/internal/ocr"
)

// Reply is what the reconciliation engine wants said back on the
// channel the triggering message arrived on.
type Reply struct {
	Text    string
	Choices []string
}

// Notifier pushes proactive messages outside the reply flow: review
// requests to the tenant's bound owners and resolution notices back to
// the customer. Push failures are logged and swallowed; the stored
// intent is the source of truth, not the notification.
type Notifier interface {
	NotifyOwners(ctx context.Context, tenantID, text string, choices ...string) error
	NotifyCustomer(ctx context.Context, tenantID, userID, text string) error
}

// Service is the payment reconciliation engine. It turns customer
// claims and slip photos into intents, gates automatic matching on
// OCR confidence, and resolves intents on owner decision codes.
type Service struct {
	intents   IntentRepository
	payments  PaymentRepository
	quotes    QuoteRepository
	messages  *message.Service
	extractor ocr.Extractor
	notifier  Notifier
	cfg       config.ReconcileConfig
	tolerance float64
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(
	log *slog.Logger,
	intents IntentRepository,
	paymentsRepo PaymentRepository,
	quotes QuoteRepository,
	messages *message.Service,
	extractor ocr.Extractor,
	notifier Notifier,
	rcfg config.ReconcileConfig,
	ocfg config.OCRConfig,
) *Service {
	return &Service{
		intents:   intents,
		payments:  paymentsRepo,
		quotes:    quotes,
		messages:  messages,
		extractor: extractor,
		notifier:  notifier,
		cfg:       rcfg,
		tolerance: ocfg.Tolerance,
		logger:    log.With(slog.String("service", "payments")),
		now:       time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CustomerClaim handles a customer text that reads as a payment claim.
// Returns handled=false when the text is not a claim.
func (s *Service) CustomerClaim(ctx context.Context, tenantID, userID, text string, at time.Time) (Reply, bool, error) {
	if !IsClaimText(text) {
		return Reply{}, false, nil
	}
	amount, currency, _ := ParseAmount(text)

	it := Intent{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		CustomerID:  userID,
		Amount:      amount,
		Currency:    currency,
		Status:      StatusPending,
		ConfirmCode: CodeConfirm,
		CreatedAt:   at,
		UpdatedAt:   at,
	}

	// A slip the customer sent just before the claim counts as its
	// evidence.
	media, err := s.messages.RecentMediaByUser(ctx, tenantID, userID, at.Add(-s.cfg.ClaimLookback))
	if err != nil {
		return Reply{}, false, fmt.Errorf("claim lookback: %w", err)
	}
	if len(media) > 0 {
		it.EvidenceRef = media[0].MediaRef
		it.EvidenceMessageID = media[0].MessageID
	}

	if err := s.intents.Create(ctx, it); err != nil {
		return Reply{}, false, fmt.Errorf("create intent: %w", err)
	}
	s.logger.Info("payment claim recorded",
		slog.String("tenant", tenantID),
		slog.String("intent", it.ID),
		slog.Float64("amount", amount))

	s.notifyDecision(ctx, tenantID, fmt.Sprintf(
		"ลูกค้าแจ้งโอน %s%s ตรวจสอบแล้วตอบได้เลยค่ะ",
		formatAmount(amount, currency), evidenceNote(it.EvidenceRef)))

	return Reply{Text: "รับแจ้งการโอนแล้วค่ะ กำลังให้ร้านตรวจสอบ จะแจ้งผลให้ทราบนะคะ"}, true, nil
}

// CustomerEvidence handles a slip photo from a customer. Optical
// extraction runs only while an owner quote is active; without one the
// slip is stored as-is and the owner verifies by eye. The stored
// evidence reference is recorded on whichever intent the slip belongs
// to.
func (s *Service) CustomerEvidence(ctx context.Context, tenantID, userID, evidenceRef, messageID string, image []byte, contentType string, at time.Time) (Reply, error) {
	gate, err := s.gateAgainstQuote(ctx, tenantID, image, contentType, at)
	if err != nil {
		return Reply{}, err
	}
	if gate.quoted {
		// The quote has done its job once it gated one slip; a stale
		// expectation must not keep labeling unrelated slips.
		if err := s.quotes.Clear(ctx, tenantID); err != nil {
			s.logger.Warn("clear quote failed", slog.Any("error", err))
		}
	}

	recent, err := s.intents.RecentByCustomer(ctx, tenantID, userID, s.cfg.ScanLimit)
	if err != nil {
		return Reply{}, fmt.Errorf("recent intents: %w", err)
	}
	// A pending intent always has first claim on new evidence; a
	// confirmed one is only backfilled when nothing is still pending.
	for _, it := range recent {
		if at.Sub(it.CreatedAt) > s.cfg.AttachWindow {
			break
		}
		if it.Status == StatusPending && it.EvidenceRef == "" {
			return s.attachEvidence(ctx, it, evidenceRef, messageID, gate)
		}
	}
	for _, it := range recent {
		if at.Sub(it.CreatedAt) > s.cfg.AttachWindow {
			break
		}
		if it.Status == StatusConfirmed && it.EvidenceRef == "" {
			return s.backfillConfirmed(ctx, it, evidenceRef, messageID)
		}
	}

	// No intent to attach to: open one. A gated slip carries the
	// quote's expected amount; an unsolicited one goes to the owner for
	// manual review.
	it := Intent{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		CustomerID:  userID,
		Amount:      gate.expected,
		Currency:    gate.currency,
		Status:      StatusPending,
		ConfirmCode: CodeConfirm,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if err := s.intents.Create(ctx, it); err != nil {
		return Reply{}, fmt.Errorf("create intent from slip: %w", err)
	}
	return s.attachEvidence(ctx, it, evidenceRef, messageID, gate)
}

// OwnerCode handles an owner decision message. Confirm resolves the
// newest pending intent into a payment record; reject closes it.
// With nothing pending the decision is an idempotent no-op.
func (s *Service) OwnerCode(ctx context.Context, tenantID, ownerID, text string, at time.Time) (Reply, bool, error) {
	code, ok := ParseCode(text)
	if !ok {
		return Reply{}, false, nil
	}

	it, err := s.latestPending(ctx, tenantID, at)
	if err != nil {
		if errors.Is(err, ErrIntentNotFound) {
			return Reply{Text: "ไม่มีรายการรอตรวจสอบค่ะ"}, true, nil
		}
		return Reply{}, false, err
	}

	switch code {
	case CodeConfirm:
		won, err := s.intents.Transition(ctx, tenantID, it.ID, StatusPending, StatusConfirmed)
		if err != nil {
			return Reply{}, false, fmt.Errorf("confirm intent: %w", err)
		}
		if !won {
			return Reply{Text: "รายการนี้ถูกตอบไปแล้วค่ะ"}, true, nil
		}
		confirmedAt := s.now().UTC()
		p := Payment{
			ID:                uuid.NewString(),
			TenantID:          tenantID,
			CustomerID:        it.CustomerID,
			Amount:            it.Amount,
			Currency:          it.Currency,
			Method:            "transfer",
			Status:            "confirmed",
			EvidenceRef:       it.EvidenceRef,
			EvidenceMessageID: it.EvidenceMessageID,
			IntentID:          it.ID,
			PaidAt:            it.CreatedAt,
			ConfirmedAt:       &confirmedAt,
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return Reply{}, false, fmt.Errorf("create payment: %w", err)
		}
		it.PaymentID = p.ID
		if err := s.intents.Update(ctx, it); err != nil {
			return Reply{}, false, fmt.Errorf("link payment: %w", err)
		}
		s.logger.Info("payment confirmed",
			slog.String("tenant", tenantID),
			slog.String("intent", it.ID),
			slog.String("payment", p.ID),
			slog.String("owner", ownerID))
		s.notifyCustomer(ctx, tenantID, it.CustomerID,
			"ร้านยืนยันรับยอดโอน "+formatAmount(it.Amount, it.Currency)+" แล้วค่ะ ขอบคุณค่ะ")
		return Reply{Text: "ยืนยันรับเงิน " + formatAmount(it.Amount, it.Currency) + " เรียบร้อยค่ะ"}, true, nil

	case CodeReject:
		won, err := s.intents.Transition(ctx, tenantID, it.ID, StatusPending, StatusRejected)
		if err != nil {
			return Reply{}, false, fmt.Errorf("reject intent: %w", err)
		}
		if !won {
			return Reply{Text: "รายการนี้ถูกตอบไปแล้วค่ะ"}, true, nil
		}
		s.logger.Info("payment rejected",
			slog.String("tenant", tenantID),
			slog.String("intent", it.ID),
			slog.String("owner", ownerID))
		s.notifyCustomer(ctx, tenantID, it.CustomerID,
			"ร้านตรวจไม่พบยอดโอนค่ะ รบกวนตรวจสอบและส่งสลิปอีกครั้งนะคะ")
		return Reply{Text: "ปฏิเสธรายการ " + formatAmount(it.Amount, it.Currency) + " แล้วค่ะ"}, true, nil
	}
	return Reply{}, false, nil
}

// OwnerQuote records a bare-amount owner message as the expected
// amount for the next customer slip. Most recent quote wins.
func (s *Service) OwnerQuote(ctx context.Context, tenantID, ownerID, text string, at time.Time) (Reply, bool, error) {
	if !IsBareAmount(text) {
		return Reply{}, false, nil
	}
	amount, currency, ok := ParseAmount(text)
	if !ok {
		return Reply{}, false, nil
	}
	q := Quote{
		TenantID:   tenantID,
		Amount:     amount,
		Currency:   currency,
		OwnerID:    ownerID,
		SourceText: text,
		IssuedAt:   at,
		ExpiresAt:  at.Add(s.cfg.QuoteTTL),
	}
	if err := s.quotes.Set(ctx, q); err != nil {
		return Reply{}, false, fmt.Errorf("set quote: %w", err)
	}
	return Reply{Text: "ตั้งยอดรอรับโอน " + formatAmount(amount, currency) + " แล้วค่ะ สลิปถัดไปจะเทียบกับยอดนี้"}, true, nil
}

// DeclareQuote sets the expected amount directly, bypassing text
// parsing. Used by the admin API.
func (s *Service) DeclareQuote(ctx context.Context, tenantID, ownerID string, amount float64, currency string, at time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("declare quote: amount must be positive")
	}
	if currency == "" {
		currency = "THB"
	}
	q := Quote{
		TenantID:  tenantID,
		Amount:    amount,
		Currency:  currency,
		OwnerID:   ownerID,
		IssuedAt:  at,
		ExpiresAt: at.Add(s.cfg.QuoteTTL),
	}
	if err := s.quotes.Set(ctx, q); err != nil {
		return fmt.Errorf("declare quote: %w", err)
	}
	return nil
}

// ExpireStale closes pending intents past the confirm window and
// drops expired quotes. Called by the retention sweeper.
func (s *Service) ExpireStale(ctx context.Context) error {
	now := s.now().UTC()
	expired, err := s.intents.ExpireOlderThan(ctx, now.Add(-s.cfg.ConfirmWindow))
	if err != nil {
		return fmt.Errorf("expire intents: %w", err)
	}
	dropped, err := s.quotes.PurgeExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("purge quotes: %w", err)
	}
	if expired > 0 || dropped > 0 {
		s.logger.Info("stale reconciliation state cleared",
			slog.Int64("intents_expired", expired),
			slog.Int64("quotes_dropped", dropped))
	}
	return nil
}

func (s *Service) latestPending(ctx context.Context, tenantID string, at time.Time) (Intent, error) {
	recent, err := s.intents.RecentByTenant(ctx, tenantID, s.cfg.ScanLimit)
	if err != nil {
		return Intent{}, fmt.Errorf("recent intents: %w", err)
	}
	for _, it := range recent {
		if at.Sub(it.CreatedAt) > s.cfg.ConfirmWindow {
			break
		}
		if it.Status == StatusPending {
			return it, nil
		}
	}
	return Intent{}, ErrIntentNotFound
}

// slipGate is the outcome of checking one slip against the active
// owner quote.
type slipGate struct {
	quoted   bool
	expected float64
	currency string
	verdict  Verdict
	amount   *float64
	conf     *float64
}

// gateAgainstQuote runs OCR against the active quote, if any. Without
// a live quote OCR is skipped entirely and the slip takes the manual
// path.
func (s *Service) gateAgainstQuote(ctx context.Context, tenantID string, image []byte, contentType string, at time.Time) (slipGate, error) {
	quote, err := s.quotes.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNoQuote) {
			return slipGate{currency: "THB"}, nil
		}
		return slipGate{}, fmt.Errorf("get quote: %w", err)
	}
	if !quote.ExpiresAt.After(at) {
		return slipGate{currency: "THB"}, nil
	}

	g := slipGate{quoted: true, expected: quote.Amount, currency: quote.Currency}
	ocrAmount, conf, ok := s.readSlip(ctx, image, contentType)
	if !ok {
		g.verdict = VerdictUnreadable
		return g, nil
	}
	g.amount = &ocrAmount
	g.conf = &conf
	if math.Abs(ocrAmount-quote.Amount) <= s.tolerance {
		g.verdict = VerdictMatch
	} else {
		g.verdict = VerdictMismatch
	}
	return g, nil
}

func (s *Service) attachEvidence(ctx context.Context, it Intent, evidenceRef, messageID string, gate slipGate) (Reply, error) {
	it.EvidenceRef = evidenceRef
	it.EvidenceMessageID = messageID
	it.MatchVerdict = gate.verdict
	it.OCRAmount = gate.amount
	it.OCRConfidence = gate.conf
	if it.Amount == 0 && gate.verdict == VerdictMatch {
		it.Amount = gate.expected
	}

	if err := s.intents.Update(ctx, it); err != nil {
		return Reply{}, fmt.Errorf("attach evidence: %w", err)
	}

	// The mismatch notice deliberately withholds both amounts so the
	// owner reads the slip without an anchor.
	switch gate.verdict {
	case VerdictMatch:
		s.notifyDecision(ctx, it.TenantID, fmt.Sprintf(
			"สลิปตรงกับยอด %s ค่ะ", formatAmount(gate.expected, gate.currency)))
	case VerdictMismatch:
		s.notifyDecision(ctx, it.TenantID,
			"ยอดในสลิปไม่ตรงกับยอดที่ตั้งไว้ ตรวจสอบสลิปด้วยตนเองนะคะ")
	case VerdictUnreadable:
		s.notifyDecision(ctx, it.TenantID,
			"ได้รับสลิปแต่อ่านยอดอัตโนมัติไม่ได้ ตรวจสอบด้วยตาด้วยนะคะ")
	default:
		s.notifyDecision(ctx, it.TenantID,
			"ได้รับสลิปโอนเงินจากลูกค้า ตรวจสอบแล้วตอบได้เลยค่ะ")
	}
	return Reply{Text: "ได้รับสลิปแล้วค่ะ กำลังให้ร้านตรวจสอบนะคะ"}, nil
}

func (s *Service) backfillConfirmed(ctx context.Context, it Intent, evidenceRef, messageID string) (Reply, error) {
	it.EvidenceRef = evidenceRef
	it.EvidenceMessageID = messageID
	if err := s.intents.Update(ctx, it); err != nil {
		return Reply{}, fmt.Errorf("backfill intent evidence: %w", err)
	}
	if it.PaymentID != "" {
		if err := s.payments.AttachEvidence(ctx, it.TenantID, it.PaymentID, evidenceRef, messageID); err != nil {
			return Reply{}, fmt.Errorf("backfill payment evidence: %w", err)
		}
	}
	s.logger.Info("evidence backfilled onto confirmed payment",
		slog.String("tenant", it.TenantID),
		slog.String("intent", it.ID))
	return Reply{Text: "ขอบคุณสำหรับสลิปค่ะ รายการนี้ยืนยันเรียบร้อยแล้ว"}, nil
}

// readSlip runs the OCR gate. ok=false means no trustworthy reading
// and the manual path applies.
func (s *Service) readSlip(ctx context.Context, image []byte, contentType string) (amount, confidence float64, ok bool) {
	if s.extractor == nil || len(image) == 0 {
		return 0, 0, false
	}
	result, err := s.extractor.ExtractAmount(ctx, image, contentType)
	if err != nil {
		if !errors.Is(err, ocr.ErrUnavailable) {
			s.logger.Warn("ocr extraction failed", slog.Any("error", err))
		}
		return 0, 0, false
	}
	return result.Amount, result.Confidence, true
}

func (s *Service) notifyDecision(ctx context.Context, tenantID, text string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.NotifyOwners(ctx, tenantID, text,
		"ยืนยัน "+CodeConfirm, "ปฏิเสธ "+CodeReject)
	if err != nil {
		s.logger.Warn("owner notification failed",
			slog.String("tenant", tenantID),
			slog.Any("error", err))
	}
}

func (s *Service) notifyCustomer(ctx context.Context, tenantID, userID, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyCustomer(ctx, tenantID, userID, text); err != nil {
		s.logger.Warn("customer notification failed",
			slog.String("tenant", tenantID),
			slog.String("user", userID),
			slog.Any("error", err))
	}
}

func formatAmount(amount float64, currency string) string {
	if currency == "" {
		currency = "THB"
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}

func evidenceNote(ref string) string {
	if ref == "" {
		return " (ยังไม่มีสลิป)"
	}
	return " (มีสลิปแนบ)"
}
