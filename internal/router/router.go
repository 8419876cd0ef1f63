package router

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shoplinkhq/shoplink/internal/config"
	"github.com/shoplinkhq/shoplink/internal/dedup"
	"github.com/shoplinkhq/shoplink/internal/line"
	"github.com/shoplinkhq/shoplink/internal/media"
	"github.com/shoplinkhq/shoplink/internal/message"
	"github.com/shoplinkhq/shoplink/internal/onboarding"
	"github.com/shoplinkhq/shoplink/internal/owners"
	"github.com/shoplinkhq/shoplink/internal/payments"
	"github.com/shoplinkhq/shoplink/internal/tenant"
	"github.com/shoplinkhq/shoplink/internal/webhook"
)

const bindPrefix = "bind "

// Router drives one webhook event end to end: dedup claim, sender
// classification, then the role-specific pipeline. Every event runs
// under its own soft time budget so one slow downstream call cannot
// stall the rest of the batch.
type Router struct {
	messenger  line.Messenger
	dedup      dedup.Store
	messages   *message.Service
	onboarding *onboarding.Service
	owners     *owners.Service
	links      *owners.LinkService
	payments   *payments.Service
	media      *media.Service
	budget     time.Duration
	logger     *slog.Logger
}

var _ webhook.Dispatcher = (*Router)(nil)

func New(
	log *slog.Logger,
	messenger line.Messenger,
	dedupStore dedup.Store,
	messages *message.Service,
	onboardingSvc *onboarding.Service,
	ownersSvc *owners.Service,
	links *owners.LinkService,
	paymentsSvc *payments.Service,
	mediaSvc *media.Service,
	cfg config.ReconcileConfig,
) *Router {
	return &Router{
		messenger:  messenger,
		dedup:      dedupStore,
		messages:   messages,
		onboarding: onboardingSvc,
		owners:     ownersSvc,
		links:      links,
		payments:   paymentsSvc,
		media:      mediaSvc,
		budget:     cfg.EventBudget,
		logger:     log.With(slog.String("service", "router")),
	}
}

// Dispatch processes a single verified webhook event.
func (r *Router) Dispatch(ctx context.Context, res tenant.Resolution, ev webhook.Event) error {
	if r.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.budget)
		defer cancel()
	}

	fresh, err := r.dedup.Claim(ctx, res.Tenant.ID, ev.WebhookID)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !fresh {
		r.logger.Debug("duplicate event skipped",
			slog.String("tenant", res.Tenant.ID),
			slog.String("event", ev.WebhookID))
		return nil
	}

	if ev.Source.Type != "user" || ev.Source.UserID == "" {
		return nil
	}

	switch ev.Type {
	case "message":
		return r.handleMessage(ctx, res, ev)
	case "follow":
		return r.handleFollow(ctx, res, ev)
	case "postback":
		return r.handlePostback(ctx, res, ev)
	default:
		r.logger.Debug("unhandled event type",
			slog.String("tenant", res.Tenant.ID),
			slog.String("type", ev.Type))
		return nil
	}
}

func (r *Router) handleMessage(ctx context.Context, res tenant.Resolution, ev webhook.Event) error {
	if ev.Message == nil {
		return nil
	}
	userID := ev.Source.UserID
	at := ev.OccurredAt()

	if err := r.messages.TouchCustomer(ctx, res.Tenant.ID, userID, "", at); err != nil {
		r.logger.Warn("customer touch failed", slog.Any("error", err))
	}

	switch ev.Message.Type {
	case "text":
		return r.handleText(ctx, res, ev, at)
	case "image":
		return r.handleImage(ctx, res, ev, at)
	case "location":
		return r.handleLocation(ctx, res, ev, at)
	default:
		return r.logInbound(ctx, res.Tenant.ID, userID, message.Record{
			MessageID: ev.Message.ID,
			Intent:    "unsupported:" + ev.Message.Type,
			CreatedAt: at,
		})
	}
}

func (r *Router) handleText(ctx context.Context, res tenant.Resolution, ev webhook.Event, at time.Time) error {
	userID := ev.Source.UserID
	text := ev.Message.Text

	if err := r.logInbound(ctx, res.Tenant.ID, userID, message.Record{
		MessageID: ev.Message.ID,
		Body:      text,
		CreatedAt: at,
	}); err != nil {
		return err
	}

	isOwner, err := r.owners.IsOwner(ctx, res.Tenant.ID, userID)
	if err != nil {
		return fmt.Errorf("classify sender: %w", err)
	}
	// A bound owner talks to the review pipeline no matter which
	// channel carried the message.
	if isOwner {
		return r.ownerText(ctx, res, ev, text, at)
	}
	if res.Context == tenant.RoleAdmin {
		return r.adminText(ctx, res, ev, text)
	}
	return r.customerText(ctx, res, ev, text, at)
}

// ownerText routes messages from bound owners, whichever channel
// carried them. Order matters: decision codes first, then bare-amount
// quotes, then profile updates.
func (r *Router) ownerText(ctx context.Context, res tenant.Resolution, ev webhook.Event, text string, at time.Time) error {
	userID := ev.Source.UserID

	reply, handled, err := r.payments.OwnerCode(ctx, res.Tenant.ID, userID, text, at)
	if err != nil {
		return fmt.Errorf("owner code: %w", err)
	}
	if handled {
		return r.send(ctx, res, ev, reply.Text, reply.Choices...)
	}

	reply, handled, err = r.payments.OwnerQuote(ctx, res.Tenant.ID, userID, text, at)
	if err != nil {
		return fmt.Errorf("owner quote: %w", err)
	}
	if handled {
		return r.send(ctx, res, ev, reply.Text, reply.Choices...)
	}

	answer, handled, err := r.owners.ApplyProfileText(ctx, res.Tenant.ID, text)
	if err != nil {
		return fmt.Errorf("profile update: %w", err)
	}
	if handled {
		return r.send(ctx, res, ev, answer)
	}
	return nil
}

// adminText drives the registration flow for admin-channel users
// without an owner binding: a pasted invite link binds them, anything
// else feeds the onboarding state machine.
func (r *Router) adminText(ctx context.Context, res tenant.Resolution, ev webhook.Event, text string) error {
	userID := ev.Source.UserID

	if token, ok := extractLinkToken(text); ok {
		link, err := r.links.Consume(ctx, token)
		if err != nil {
			r.logger.Warn("magic link rejected",
				slog.String("tenant", res.Tenant.ID),
				slog.String("user", userID),
				slog.Any("error", err))
			return r.send(ctx, res, ev, "ลิงก์ไม่ถูกต้องหรือหมดอายุแล้วค่ะ ขอลิงก์ใหม่จากทีมงานนะคะ")
		}
		if link.TenantID != res.Tenant.ID {
			return r.send(ctx, res, ev, "ลิงก์นี้ใช้กับร้านอื่นค่ะ")
		}
		if _, err := r.owners.BindFromLink(ctx, link, userID); err != nil {
			return fmt.Errorf("bind owner: %w", err)
		}
		return r.send(ctx, res, ev, "ผูกบัญชีเจ้าของร้านเรียบร้อยค่ะ ต่อไปนี้จะแจ้งเตือนการโอนเงินมาที่นี่นะคะ")
	}

	reply, err := r.onboarding.HandleTurn(ctx, res.Tenant.ID, userID, onboarding.Input{Text: text})
	if err != nil {
		return fmt.Errorf("onboarding turn: %w", err)
	}
	if reply.Text != "" {
		return r.send(ctx, res, ev, reply.Text, reply.Choices...)
	}
	return nil
}

// customerText routes storefront messages from senders without an
// owner binding. A start keyword claims ownership of the storefront;
// everything else is treated as a possible payment claim, and a sender
// whose text matched nothing gets the one-time owner prompt.
func (r *Router) customerText(ctx context.Context, res tenant.Resolution, ev webhook.Event, text string, at time.Time) error {
	userID := ev.Source.UserID

	if onboarding.IsStartKeyword(text) {
		return r.claimOwnership(ctx, res, ev, userID)
	}

	payReply, handled, err := r.payments.CustomerClaim(ctx, res.Tenant.ID, userID, text, at)
	if err != nil {
		return fmt.Errorf("customer claim: %w", err)
	}
	if handled {
		return r.send(ctx, res, ev, payReply.Text, payReply.Choices...)
	}

	first, err := r.onboarding.MarkOwnerPrompted(ctx, res.Tenant.ID, userID)
	if err != nil {
		return fmt.Errorf("owner prompt: %w", err)
	}
	if first {
		return r.send(ctx, res, ev,
			"หากคุณเป็นเจ้าของร้านนี้ พิมพ์ \"สมัคร\" เพื่อผูกบัญชีนะคะ", "สมัคร")
	}
	return nil
}

// claimOwnership binds the sender as an owner candidate and hands back
// an invite link for the web login.
func (r *Router) claimOwnership(ctx context.Context, res tenant.Resolution, ev webhook.Event, userID string) error {
	if _, err := r.owners.BindCandidate(ctx, res.Tenant.ID, userID); err != nil {
		return fmt.Errorf("bind candidate: %w", err)
	}
	_, inviteURL, err := r.links.Mint(ctx, res.Tenant.ID, owners.ScopeBindOwner, userID)
	if err != nil {
		r.logger.Warn("invite link mint failed",
			slog.String("tenant", res.Tenant.ID),
			slog.Any("error", err))
		return r.send(ctx, res, ev, "ผูกบัญชีเจ้าของร้านเรียบร้อยค่ะ")
	}
	return r.send(ctx, res, ev,
		"ผูกบัญชีเจ้าของร้านเรียบร้อยค่ะ เข้าระบบจัดการร้านได้ที่ "+inviteURL)
}

func (r *Router) handleImage(ctx context.Context, res tenant.Resolution, ev webhook.Event, at time.Time) error {
	userID := ev.Source.UserID

	// Download or blob-store failures degrade to message-id-only
	// evidence; the owner verifies the slip by eye.
	var ref string
	content, mime, err := r.messenger.GetMessageContent(ctx, res.AccessToken, ev.Message.ID)
	if err != nil {
		r.logger.Warn("message content fetch failed",
			slog.String("tenant", res.Tenant.ID),
			slog.String("message", ev.Message.ID),
			slog.Any("error", err))
		content, mime = nil, ""
	} else {
		asset, err := r.media.Ingest(ctx, media.IngestInput{
			TenantID: res.Tenant.ID,
			Mime:     mime,
			Reader:   bytes.NewReader(content),
		})
		if err != nil {
			r.logger.Warn("evidence store failed",
				slog.String("tenant", res.Tenant.ID),
				slog.String("message", ev.Message.ID),
				slog.Any("error", err))
		} else {
			ref = asset.StorageKey
		}
	}

	if err := r.logInbound(ctx, res.Tenant.ID, userID, message.Record{
		MessageID: ev.Message.ID,
		MediaRef:  ref,
		MediaType: mime,
		HasMedia:  true,
		CreatedAt: at,
	}); err != nil {
		return err
	}

	isOwner, err := r.owners.IsOwner(ctx, res.Tenant.ID, userID)
	if err != nil {
		return fmt.Errorf("classify sender: %w", err)
	}

	if res.Context == tenant.RoleAdmin {
		// During the onboarding payment step an image is a QR code, not
		// a transfer slip.
		if !isOwner && r.onboarding.InFlight(ctx, res.Tenant.ID, userID) {
			reply, err := r.onboarding.HandleTurn(ctx, res.Tenant.ID, userID, onboarding.Input{MediaRef: ref})
			if err != nil {
				return fmt.Errorf("onboarding media: %w", err)
			}
			if reply.Text != "" {
				return r.send(ctx, res, ev, reply.Text, reply.Choices...)
			}
		}
		return nil
	}
	if isOwner {
		return nil
	}

	reply, err := r.payments.CustomerEvidence(ctx, res.Tenant.ID, userID, ref, ev.Message.ID, content, mime, at)
	if err != nil {
		return fmt.Errorf("customer evidence: %w", err)
	}
	return r.send(ctx, res, ev, reply.Text, reply.Choices...)
}

func (r *Router) handleLocation(ctx context.Context, res tenant.Resolution, ev webhook.Event, at time.Time) error {
	userID := ev.Source.UserID
	msg := ev.Message

	if err := r.logInbound(ctx, res.Tenant.ID, userID, message.Record{
		MessageID: msg.ID,
		Body:      msg.Address,
		Intent:    "location",
		CreatedAt: at,
	}); err != nil {
		return err
	}

	if res.Context != tenant.RoleAdmin || !r.onboarding.InFlight(ctx, res.Tenant.ID, userID) {
		return nil
	}
	lat, lng := msg.Latitude, msg.Longitude
	reply, err := r.onboarding.HandleTurn(ctx, res.Tenant.ID, userID, onboarding.Input{
		LocationLat:     &lat,
		LocationLng:     &lng,
		LocationAddress: msg.Address,
	})
	if err != nil {
		return fmt.Errorf("onboarding location: %w", err)
	}
	if reply.Text != "" {
		return r.send(ctx, res, ev, reply.Text, reply.Choices...)
	}
	return nil
}

func (r *Router) handleFollow(ctx context.Context, res tenant.Resolution, ev webhook.Event) error {
	userID := ev.Source.UserID
	at := ev.OccurredAt()

	name := ""
	if profile, err := r.messenger.GetProfile(ctx, res.AccessToken, userID); err == nil {
		name = profile.DisplayName
	}
	if err := r.messages.TouchCustomer(ctx, res.Tenant.ID, userID, name, at); err != nil {
		r.logger.Warn("customer touch failed", slog.Any("error", err))
	}
	r.captureBotName(ctx, res)

	if res.Context == tenant.RoleAdmin {
		return r.send(ctx, res, ev,
			"สวัสดีค่ะ พิมพ์ \"สมัคร\" เพื่อลงทะเบียนเปิดร้านค้าได้เลยนะคะ",
			"สมัคร")
	}
	return r.send(ctx, res, ev,
		"สวัสดีค่ะ ยินดีต้อนรับ แจ้งโอนหรือส่งสลิปมาได้เลยนะคะ")
}

// captureBotName stores the bot's display name on the owner profile
// the first time someone follows the channel. Best effort.
func (r *Router) captureBotName(ctx context.Context, res tenant.Resolution) {
	profile, err := r.owners.Profile(ctx, res.Tenant.ID)
	if err != nil || profile.BotName != "" {
		return
	}
	info, err := r.messenger.GetBotInfo(ctx, res.AccessToken)
	if err != nil || info.DisplayName == "" {
		return
	}
	if err := r.owners.SetBotName(ctx, res.Tenant.ID, info.DisplayName); err != nil {
		r.logger.Warn("bot name capture failed",
			slog.String("tenant", res.Tenant.ID),
			slog.Any("error", err))
	}
}

// handlePostback feeds quick-reply data back through the text
// pipeline, so a tapped decision button behaves like a typed code.
func (r *Router) handlePostback(ctx context.Context, res tenant.Resolution, ev webhook.Event) error {
	if ev.Postback == nil || ev.Postback.Data == "" {
		return nil
	}
	at := ev.OccurredAt()
	userID := ev.Source.UserID

	isOwner, err := r.owners.IsOwner(ctx, res.Tenant.ID, userID)
	if err != nil {
		return fmt.Errorf("classify sender: %w", err)
	}
	if !isOwner {
		return nil
	}
	reply, handled, err := r.payments.OwnerCode(ctx, res.Tenant.ID, userID, ev.Postback.Data, at)
	if err != nil {
		return fmt.Errorf("owner code: %w", err)
	}
	if handled {
		return r.send(ctx, res, ev, reply.Text, reply.Choices...)
	}
	return nil
}

func (r *Router) logInbound(ctx context.Context, tenantID, userID string, rec message.Record) error {
	rec.ID = uuid.NewString()
	rec.TenantID = tenantID
	rec.UserID = userID
	if err := r.messages.LogInbound(ctx, rec); err != nil {
		return fmt.Errorf("log inbound: %w", err)
	}
	return nil
}

// send replies on the triggering event's reply token and logs the
// outbound message. A missing token means the event is not replyable.
func (r *Router) send(ctx context.Context, res tenant.Resolution, ev webhook.Event, text string, choices ...string) error {
	if text == "" || ev.ReplyToken == "" {
		return nil
	}
	msg := line.TextMessageWithChoices(text, choices...)
	if err := r.messenger.Reply(ctx, res.AccessToken, ev.ReplyToken, msg); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	if err := r.messages.LogOutbound(ctx, message.Record{
		ID:        uuid.NewString(),
		TenantID:  res.Tenant.ID,
		UserID:    ev.Source.UserID,
		Body:      text,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		r.logger.Warn("outbound log failed", slog.Any("error", err))
	}
	return nil
}

// extractLinkToken pulls a magic link token out of a pasted URL or a
// "bind <token>" message.
func extractLinkToken(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if u, err := url.Parse(trimmed); err == nil && u.Query().Get("token") != "" {
		return u.Query().Get("token"), true
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, bindPrefix) {
		token := strings.TrimSpace(trimmed[len(bindPrefix):])
		if token != "" {
			return token, true
		}
	}
	return "", false
}
