package onboarding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Input is one user turn fed to the state machine.
type Input struct {
	Text            string
	LocationLat     *float64
	LocationLng     *float64
	LocationAddress string
	// MediaRef points at an uploaded image, used on the payment step
	// for QR code photos.
	MediaRef string
}

// Reply is what the state machine wants said back to the user.
type Reply struct {
	Text string
	// Choices become quick-reply buttons when the channel supports them.
	Choices []string
}

// Service drives the onboarding conversation. Each user turn loads the
// session, applies the input for the current step, and saves the
// advanced session. Invalid input re-prompts without advancing.
type Service struct {
	sessions SessionRepository
	requests RequestRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(log *slog.Logger, sessions SessionRepository, requests RequestRepository) *Service {
	return &Service{
		sessions: sessions,
		requests: requests,
		logger:   log.With(slog.String("service", "onboarding")),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// HandleTurn processes one user turn and returns the reply, or an
// empty reply when the message is not part of an onboarding flow.
func (s *Service) HandleTurn(ctx context.Context, tenantID, userID string, input Input) (Reply, error) {
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return Reply{}, fmt.Errorf("load session: %w", err)
	}
	active := err == nil && sess.Step != StepNone && sess.Step != StepDone

	if IsCancelKeyword(input.Text) {
		if !active {
			return Reply{}, nil
		}
		if err := s.sessions.Delete(ctx, tenantID, userID); err != nil {
			return Reply{}, fmt.Errorf("cancel session: %w", err)
		}
		s.logger.Info("onboarding cancelled",
			slog.String("tenant", tenantID), slog.String("user", userID))
		return Reply{Text: "ยกเลิกการลงทะเบียนแล้วค่ะ พิมพ์ \"สมัคร\" เพื่อเริ่มใหม่ได้เลย"}, nil
	}

	if IsStartKeyword(input.Text) {
		sess = Session{TenantID: tenantID, UserID: userID, Step: StepName, UpdatedAt: s.now().UTC()}
		if err := s.sessions.Save(ctx, sess); err != nil {
			return Reply{}, fmt.Errorf("start session: %w", err)
		}
		return Reply{Text: "เริ่มลงทะเบียนร้านค้านะคะ กรุณาพิมพ์ชื่อ-นามสกุลของคุณ"}, nil
	}

	if !active {
		return Reply{}, nil
	}
	return s.advance(ctx, sess, input)
}

// MarkOwnerPrompted claims the one-time owner bind prompt for the
// user. Returns true on the first call, false once already prompted.
func (s *Service) MarkOwnerPrompted(ctx context.Context, tenantID, userID string) (bool, error) {
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			return false, fmt.Errorf("load session: %w", err)
		}
		sess = Session{TenantID: tenantID, UserID: userID, Step: StepNone}
	}
	if sess.OwnerPrompted {
		return false, nil
	}
	sess.OwnerPrompted = true
	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return false, fmt.Errorf("save session: %w", err)
	}
	return true, nil
}

// InFlight reports whether the user has an active onboarding session.
func (s *Service) InFlight(ctx context.Context, tenantID, userID string) bool {
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	return err == nil && sess.Step != StepNone && sess.Step != StepDone
}

func (s *Service) advance(ctx context.Context, sess Session, input Input) (Reply, error) {
	text := strings.TrimSpace(input.Text)
	var reply Reply

	switch sess.Step {
	case StepName:
		if text == "" {
			return Reply{Text: "ขอชื่อ-นามสกุลอีกครั้งค่ะ"}, nil
		}
		sess.Name = text
		sess.Step = StepPhone
		reply = Reply{Text: "ขอบคุณค่ะ ขอเบอร์โทรศัพท์ที่ติดต่อได้ด้วยค่ะ"}

	case StepPhone:
		phone := NormalizePhone(text)
		if phone == "" {
			return Reply{Text: "เบอร์โทรไม่ถูกต้องค่ะ กรุณาพิมพ์เบอร์ 9-10 หลัก เช่น 0812345678"}, nil
		}
		sess.Phone = phone
		sess.Step = StepLabel
		reply = Reply{Text: "ตั้งชื่อร้านของคุณว่าอะไรดีคะ"}

	case StepLabel:
		if text == "" {
			return Reply{Text: "ขอชื่อร้านอีกครั้งค่ะ"}, nil
		}
		sess.Label = text
		sess.Step = StepLocation
		reply = Reply{
			Text:    "ส่งตำแหน่งที่ตั้งร้าน (Location) หรือพิมพ์ที่อยู่ได้เลยค่ะ จะข้ามก็ได้นะคะ",
			Choices: []string{"ข้าม"},
		}

	case StepLocation:
		switch {
		case input.LocationLat != nil && input.LocationLng != nil:
			sess.LocationLat = input.LocationLat
			sess.LocationLng = input.LocationLng
			sess.LocationAddress = input.LocationAddress
		case IsSkipKeyword(text):
			// nothing collected
		case text != "":
			sess.LocationAddress = text
		default:
			return Reply{Text: "ส่งตำแหน่งหรือพิมพ์ที่อยู่ร้านค่ะ หรือพิมพ์ \"ข้าม\""}, nil
		}
		sess.Step = StepPaymentChannel
		reply = Reply{
			Text:    "สุดท้ายค่ะ ขอช่องทางรับเงิน เช่น เลขพร้อมเพย์ หรือเลขบัญชีธนาคาร ส่งรูป QR ก็ได้ค่ะ เสร็จแล้วพิมพ์ \"ยืนยัน\"",
			Choices: []string{"ยืนยัน", "ยกเลิก"},
		}

	case StepPaymentChannel:
		// Payment details refine in place; only the confirm keyword
		// advances out of this step.
		if IsConfirmKeyword(text) {
			return s.finalize(ctx, sess)
		}
		updated := false
		if input.MediaRef != "" {
			sess.PaymentQRRef = input.MediaRef
			updated = true
		}
		if text != "" {
			if sess.PaymentAccount == "" {
				sess.PaymentAccount = text
			} else {
				sess.PaymentNote = strings.TrimSpace(sess.PaymentNote + " " + text)
			}
			updated = true
		}
		if !updated {
			return Reply{Text: "ส่งช่องทางรับเงิน หรือพิมพ์ \"ยืนยัน\" เพื่อส่งข้อมูลค่ะ"}, nil
		}
		reply = Reply{
			Text:    "บันทึกแล้วค่ะ เพิ่มเติมได้อีก หรือพิมพ์ \"ยืนยัน\" เพื่อส่งข้อมูล",
			Choices: []string{"ยืนยัน"},
		}

	default:
		return Reply{}, nil
	}

	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return Reply{}, fmt.Errorf("save session: %w", err)
	}
	return reply, nil
}

func (s *Service) finalize(ctx context.Context, sess Session) (Reply, error) {
	if sess.PaymentAccount == "" && sess.PaymentQRRef == "" {
		return Reply{Text: "ยังไม่มีช่องทางรับเงินเลยค่ะ ส่งเลขบัญชีหรือรูป QR ก่อนยืนยันนะคะ"}, nil
	}
	req := Request{
		ID:              uuid.NewString(),
		TenantID:        sess.TenantID,
		UserID:          sess.UserID,
		Name:            sess.Name,
		Phone:           sess.Phone,
		Label:           sess.Label,
		LocationLat:     sess.LocationLat,
		LocationLng:     sess.LocationLng,
		LocationAddress: sess.LocationAddress,
		PaymentAccount:  sess.PaymentAccount,
		PaymentNote:     sess.PaymentNote,
		PaymentQRRef:    sess.PaymentQRRef,
		Status:          RequestStatusPending,
		CreatedAt:       s.now().UTC(),
	}
	req.Fingerprint = fingerprint(req)

	err := s.requests.CreateIfNew(ctx, req)
	if err != nil && !errors.Is(err, ErrDuplicateRequest) {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	if errors.Is(err, ErrDuplicateRequest) {
		s.logger.Info("duplicate onboarding submission ignored",
			slog.String("tenant", sess.TenantID), slog.String("user", sess.UserID))
	}

	sess.Step = StepDone
	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return Reply{}, fmt.Errorf("close session: %w", err)
	}
	return Reply{Text: "ส่งข้อมูลเรียบร้อยค่ะ ทีมงานจะติดต่อกลับโดยเร็วที่สุด ขอบคุณค่ะ"}, nil
}

// fingerprint hashes the submitted fields so that re-sending the same
// confirmation does not enqueue a second review.
func fingerprint(req Request) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		req.TenantID, req.UserID, req.Name, req.Phone, req.Label,
		req.PaymentAccount, req.PaymentNote, req.PaymentQRRef,
	}, "|")))
	return hex.EncodeToString(sum[:])
}
