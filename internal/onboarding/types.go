package onboarding

import (
	"context"
	"errors"
	"time"
)

// Step is the position in the onboarding conversation. Steps only move
// forward or reset to StepNone; a session can never skip ahead.
type Step int

const (
	StepNone Step = iota
	StepName
	StepPhone
	StepLabel
	StepLocation
	StepPaymentChannel
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepNone:
		return "none"
	case StepName:
		return "collect_name"
	case StepPhone:
		return "collect_phone"
	case StepLabel:
		return "collect_label"
	case StepLocation:
		return "collect_location"
	case StepPaymentChannel:
		return "collect_payment_channel"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// Session is one user's in-flight onboarding conversation.
type Session struct {
	TenantID        string    `json:"tenant_id"`
	UserID          string    `json:"user_id"`
	Step            Step      `json:"step"`
	Name            string    `json:"name,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Label           string    `json:"label,omitempty"`
	LocationLat     *float64  `json:"location_lat,omitempty"`
	LocationLng     *float64  `json:"location_lng,omitempty"`
	LocationAddress string    `json:"location_address,omitempty"`
	PaymentAccount  string    `json:"payment_account,omitempty"`
	PaymentNote     string    `json:"payment_note,omitempty"`
	PaymentQRRef    string    `json:"payment_qr_ref,omitempty"`
	OwnerPrompted   bool      `json:"owner_prompted"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Request is a finalized onboarding submission awaiting review.
type Request struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Label           string    `json:"label,omitempty"`
	LocationLat     *float64  `json:"location_lat,omitempty"`
	LocationLng     *float64  `json:"location_lng,omitempty"`
	LocationAddress string    `json:"location_address,omitempty"`
	PaymentAccount  string    `json:"payment_account,omitempty"`
	PaymentNote     string    `json:"payment_note,omitempty"`
	PaymentQRRef    string    `json:"payment_qr_ref,omitempty"`
	Fingerprint     string    `json:"fingerprint"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

var (
	// ErrSessionNotFound indicates no onboarding conversation is in
	// flight for the user.
	ErrSessionNotFound = errors.New("onboarding session not found")
	// ErrDuplicateRequest indicates an identical submission is already
	// pending review.
	ErrDuplicateRequest = errors.New("duplicate onboarding request")
)

// SessionRepository persists in-flight conversations.
type SessionRepository interface {
	Get(ctx context.Context, tenantID, userID string) (Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, tenantID, userID string) error
}

// RequestRepository persists finalized submissions.
type RequestRepository interface {
	// CreateIfNew inserts the request unless an identical fingerprint
	// is already pending for the same user. Returns
	// ErrDuplicateRequest on collision.
	CreateIfNew(ctx context.Context, req Request) error
	UpdateStatus(ctx context.Context, tenantID, requestID, status string) error
	ListPending(ctx context.Context, tenantID string) ([]Request, error)
}
