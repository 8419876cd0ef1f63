package router

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shoplinkhq/shoplink/internal/config"
	"github.com/shoplinkhq/shoplink/internal/dedup"
	"github.com/shoplinkhq/shoplink/internal/line"
	"github.com/shoplinkhq/shoplink/internal/media"
	memoryprovider "github.com/shoplinkhq/shoplink/internal/media/providers/memory"
	"github.com/shoplinkhq/shoplink/internal/message"
	"github.com/shoplinkhq/shoplink/internal/ocr"
	"github.com/shoplinkhq/shoplink/internal/onboarding"
	"github.com/shoplinkhq/shoplink/internal/owners"
	"github.com/shoplinkhq/shoplink/internal/payments"
	"github.com/shoplinkhq/shoplink/internal/tenant"
	"github.com/shoplinkhq/shoplink/internal/webhook"
)

type sentMessage struct {
	to       string
	messages []line.Message
}

type fakeMessenger struct {
	replies    []sentMessage
	pushes     []sentMessage
	content    []byte
	mime       string
	contentErr error
}

func (f *fakeMessenger) Reply(_ context.Context, _ string, replyToken string, messages ...line.Message) error {
	f.replies = append(f.replies, sentMessage{to: replyToken, messages: messages})
	return nil
}

func (f *fakeMessenger) Push(_ context.Context, _ string, to string, messages ...line.Message) error {
	f.pushes = append(f.pushes, sentMessage{to: to, messages: messages})
	return nil
}

func (f *fakeMessenger) GetProfile(_ context.Context, _ string, userID string) (line.Profile, error) {
	return line.Profile{UserID: userID, DisplayName: "Somchai"}, nil
}

func (f *fakeMessenger) GetBotInfo(_ context.Context, _ string) (line.BotInfo, error) {
	return line.BotInfo{UserID: "bot-1", DisplayName: "ShopBot"}, nil
}

func (f *fakeMessenger) GetMessageContent(_ context.Context, _ string, _ string) ([]byte, string, error) {
	if f.contentErr != nil {
		return nil, "", f.contentErr
	}
	return f.content, f.mime, nil
}

type fixture struct {
	router    *Router
	messenger *fakeMessenger
	bindings  *owners.MemoryBindingRepository
	profiles  *owners.MemoryProfileRepository
	links     *owners.LinkService
	intents   *payments.MemoryIntentRepository
	messages  *message.Service
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.Default()
	f := &fixture{
		messenger: &fakeMessenger{content: []byte("jpeg-bytes"), mime: "image/jpeg"},
		bindings:  owners.NewMemoryBindingRepository(),
		now:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	f.messages = message.NewService(log, message.NewMemoryRepository())
	f.profiles = owners.NewMemoryProfileRepository()
	onboardingSvc := onboarding.NewService(log, onboarding.NewMemorySessionRepository(), onboarding.NewMemoryRequestRepository())
	ownersSvc := owners.NewService(log, f.bindings, f.profiles)
	f.links = owners.NewLinkService(log, owners.NewMemoryLinkRepository(), config.LineConfig{
		InviteBaseURL:  "https://link.example.com",
		InviteSecret:   "test-invite-secret",
		InviteLifetime: 24 * time.Hour,
	})

	f.intents = payments.NewMemoryIntentRepository()
	paymentsSvc := payments.NewService(log, f.intents,
		payments.NewMemoryPaymentRepository(), payments.NewMemoryQuoteRepository(),
		f.messages,
		&staticExtractor{result: ocr.Result{Amount: 350, Currency: "THB", Confidence: 0.95}},
		&noopNotifier{},
		config.ReconcileConfig{
			AttachWindow:  time.Hour,
			ConfirmWindow: 2 * time.Hour,
			ClaimLookback: 10 * time.Minute,
			QuoteTTL:      30 * time.Minute,
			ScanLimit:     50,
		},
		config.OCRConfig{Tolerance: 1.0})

	mediaSvc := media.NewService(log, memoryprovider.New())

	f.router = New(log, f.messenger, dedup.NewMemoryStore(), f.messages,
		onboardingSvc, ownersSvc, f.links, paymentsSvc, mediaSvc,
		config.ReconcileConfig{EventBudget: 20 * time.Second, ScanLimit: 50})
	return f
}

type staticExtractor struct{ result ocr.Result }

func (s *staticExtractor) ExtractAmount(_ context.Context, _ []byte, _ string) (ocr.Result, error) {
	return s.result, nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyOwners(_ context.Context, _, _ string, _ ...string) error { return nil }
func (noopNotifier) NotifyCustomer(_ context.Context, _, _, _ string) error         { return nil }

func (f *fixture) resolution(role tenant.ChannelRole) tenant.Resolution {
	return tenant.Resolution{
		Tenant:        tenant.Tenant{ID: "t1", DisplayName: "Test Shop", Active: true},
		ChannelSecret: "secret",
		AccessToken:   "token",
		Context:       role,
	}
}

func (f *fixture) textEvent(id, userID, text string) webhook.Event {
	return webhook.Event{
		Type:       "message",
		WebhookID:  id,
		Timestamp:  f.now.UnixMilli(),
		Source:     webhook.Source{Type: "user", UserID: userID},
		ReplyToken: "reply-" + id,
		Message:    &webhook.Message{ID: "m-" + id, Type: "text", Text: text},
	}
}

func (f *fixture) bindOwner(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, f.bindings.Upsert(context.Background(), owners.Binding{
		TenantID: "t1", UserID: userID, Active: true, CreatedAt: f.now,
	}))
}

func lastReplyText(t *testing.T, f *fixture) string {
	t.Helper()
	require.NotEmpty(t, f.replies(), "expected a reply")
	msgs := f.replies()[len(f.replies())-1].messages
	require.NotEmpty(t, msgs)
	return msgs[0].Text
}

func (f *fixture) replies() []sentMessage { return f.messenger.replies }

func TestDispatchSkipsDuplicateEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ev := f.textEvent("ev-1", "u1", "โอนแล้ว 350")

	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), ev))
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), ev))

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Len(t, f.replies(), 1)
}

func TestCustomerClaimRepliesAndRecordsIntent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	ev := f.textEvent("ev-1", "u1", "โอนแล้ว 350 บาท")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), ev))

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, 350.0, recent[0].Amount)
	require.Contains(t, lastReplyText(t, f), "รับแจ้งการโอนแล้ว")
}

func TestPlainChatPromptsOwnerOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), f.textEvent("ev-1", "u1", "ของยังอยู่ไหมครับ")))
	require.Len(t, f.replies(), 1)
	require.Contains(t, lastReplyText(t, f), "เจ้าของร้าน")

	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), f.textEvent("ev-2", "u1", "สอบถามเพิ่มครับ")))
	require.Len(t, f.replies(), 1)
}

func TestStartKeywordOnStorefrontClaimsOwnership(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	ev := f.textEvent("ev-1", "u1", "สมัคร")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), ev))
	require.Contains(t, lastReplyText(t, f), "ผูกบัญชีเจ้าของร้าน")
	require.Contains(t, lastReplyText(t, f), "https://link.example.com")

	binding, err := f.bindings.Get(ctx, "t1", "u1")
	require.NoError(t, err)
	require.True(t, binding.Active)
	require.True(t, binding.IsPrimary)
}

func TestOnboardingRunsOnAdminChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// Chatter before the start keyword stays silent.
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleAdmin), f.textEvent("ev-1", "u1", "hello")))
	require.Empty(t, f.replies())

	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleAdmin), f.textEvent("ev-2", "u1", "สมัคร")))
	require.Contains(t, lastReplyText(t, f), "เริ่มลงทะเบียน")
}

func TestOwnerConfirmCodeOnAdminChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.bindOwner(t, "owner-1")

	claim := f.textEvent("ev-1", "u1", "โอนแล้ว 350")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), claim))

	code := f.textEvent("ev-2", "owner-1", "1010")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleAdmin), code))
	require.Contains(t, lastReplyText(t, f), "ยืนยันรับเงิน")

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Equal(t, payments.StatusConfirmed, recent[0].Status)
}

func TestOwnerConfirmCodeOnStorefront(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.bindOwner(t, "owner-1")

	claim := f.textEvent("ev-1", "u1", "โอนแล้ว 350")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), claim))

	// The owner chats on the storefront bot too; a bound sender's code
	// is a decision regardless of channel.
	code := f.textEvent("ev-2", "owner-1", "ยืนยัน 1010")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), code))

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Equal(t, payments.StatusConfirmed, recent[0].Status)
}

func TestCodeFromUnboundSenderIsNotADecision(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	claim := f.textEvent("ev-1", "u1", "โอนแล้ว 350")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), claim))

	code := f.textEvent("ev-2", "u2", "1010")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), code))

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Equal(t, payments.StatusPending, recent[0].Status)
}

func TestMagicLinkBindsOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, linkURL, err := f.links.Mint(ctx, "t1", owners.ScopeBindOwner, "")
	require.NoError(t, err)

	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleAdmin), f.textEvent("ev-1", "owner-1", linkURL)))
	require.Contains(t, lastReplyText(t, f), "ผูกบัญชีเจ้าของร้านเรียบร้อย")

	binding, err := f.bindings.Get(ctx, "t1", "owner-1")
	require.NoError(t, err)
	require.True(t, binding.Active)
	require.True(t, binding.IsPrimary)
}

func TestMagicLinkSecondUseRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, linkURL, err := f.links.Mint(ctx, "t1", owners.ScopeBindOwner, "")
	require.NoError(t, err)

	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleAdmin), f.textEvent("ev-1", "owner-1", linkURL)))
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleAdmin), f.textEvent("ev-2", "owner-2", linkURL)))
	require.Contains(t, lastReplyText(t, f), "ลิงก์ไม่ถูกต้องหรือหมดอายุ")

	_, err = f.bindings.Get(ctx, "t1", "owner-2")
	require.ErrorIs(t, err, owners.ErrBindingNotFound)
}

func TestImageFromCustomerBecomesEvidence(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	claim := f.textEvent("ev-1", "u1", "โอนแล้ว 350")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), claim))

	img := webhook.Event{
		Type:       "message",
		WebhookID:  "ev-2",
		Timestamp:  f.now.Add(time.Minute).UnixMilli(),
		Source:     webhook.Source{Type: "user", UserID: "u1"},
		ReplyToken: "reply-ev-2",
		Message:    &webhook.Message{ID: "m-2", Type: "image"},
	}
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), img))

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.NotEmpty(t, recent[0].EvidenceRef)
	// Without an owner quote the slip is not read automatically.
	require.Empty(t, recent[0].MatchVerdict)
}

func TestImageDownloadFailureStillRecordsEvidence(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	claim := f.textEvent("ev-1", "u1", "โอนแล้ว 350")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), claim))

	// A failed slip download degrades to message-id-only evidence; the
	// customer still gets an acknowledgement.
	f.messenger.contentErr = errors.New("download timed out")
	img := webhook.Event{
		Type:       "message",
		WebhookID:  "ev-2",
		Timestamp:  f.now.Add(time.Minute).UnixMilli(),
		Source:     webhook.Source{Type: "user", UserID: "u1"},
		ReplyToken: "reply-ev-2",
		Message:    &webhook.Message{ID: "m-2", Type: "image"},
	}
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), img))
	require.Contains(t, lastReplyText(t, f), "ได้รับสลิปแล้ว")

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Empty(t, recent[0].EvidenceRef)
	require.Equal(t, "m-2", recent[0].EvidenceMessageID)
}

func TestOwnerPhoneNumberUpdatesProfileNotQuote(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.bindOwner(t, "owner-1")

	ev := f.textEvent("ev-1", "owner-1", "0812345678")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), ev))
	require.Contains(t, lastReplyText(t, f), "อัปเดตเบอร์ติดต่อ")

	profile, err := f.profiles.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotEmpty(t, profile.Phone)
}

func TestQuoteGatesSlipOCR(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.bindOwner(t, "owner-1")

	quote := f.textEvent("ev-1", "owner-1", "350")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), quote))
	require.Contains(t, lastReplyText(t, f), "ตั้งยอดรอรับโอน")

	img := webhook.Event{
		Type:       "message",
		WebhookID:  "ev-2",
		Timestamp:  f.now.Add(time.Minute).UnixMilli(),
		Source:     webhook.Source{Type: "user", UserID: "u1"},
		ReplyToken: "reply-ev-2",
		Message:    &webhook.Message{ID: "m-2", Type: "image"},
	}
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), img))

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, payments.VerdictMatch, recent[0].MatchVerdict)
	require.Equal(t, 350.0, recent[0].Amount)
}

func TestLocationAdvancesOnboarding(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	res := f.resolution(tenant.RoleAdmin)

	steps := []string{"สมัคร", "สมชาย ใจดี", "0812345678", "ร้านป้าสมชาย"}
	for i, text := range steps {
		require.NoError(t, f.router.Dispatch(ctx, res, f.textEvent("ev-"+text, "u1", text)))
		require.Len(t, f.replies(), i+1)
	}

	loc := webhook.Event{
		Type:       "message",
		WebhookID:  "ev-loc",
		Timestamp:  f.now.UnixMilli(),
		Source:     webhook.Source{Type: "user", UserID: "u1"},
		ReplyToken: "reply-loc",
		Message: &webhook.Message{
			ID: "m-loc", Type: "location",
			Latitude: 13.7563, Longitude: 100.5018, Address: "Bangkok",
		},
	}
	require.NoError(t, f.router.Dispatch(ctx, res, loc))
	require.Contains(t, lastReplyText(t, f), "ช่องทางรับเงิน")
}

func TestFollowGreetsByChannelRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	follow := webhook.Event{
		Type:       "follow",
		WebhookID:  "ev-1",
		Timestamp:  f.now.UnixMilli(),
		Source:     webhook.Source{Type: "user", UserID: "u1"},
		ReplyToken: "reply-1",
	}
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), follow))
	require.Contains(t, lastReplyText(t, f), "ยินดีต้อนรับ")

	cust, err := f.messages.Customer(ctx, "t1", "u1")
	require.NoError(t, err)
	require.Equal(t, "Somchai", cust.DisplayName)

	profile, err := f.profiles.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "ShopBot", profile.BotName)
}

func TestPostbackActsAsOwnerDecision(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.bindOwner(t, "owner-1")

	claim := f.textEvent("ev-1", "u1", "โอนแล้ว 350")
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleConsumer), claim))

	pb := webhook.Event{
		Type:       "postback",
		WebhookID:  "ev-2",
		Timestamp:  f.now.UnixMilli(),
		Source:     webhook.Source{Type: "user", UserID: "owner-1"},
		ReplyToken: "reply-2",
		Postback:   &webhook.Postback{Data: "0011"},
	}
	require.NoError(t, f.router.Dispatch(ctx, f.resolution(tenant.RoleAdmin), pb))

	recent, err := f.intents.RecentByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Equal(t, payments.StatusRejected, recent[0].Status)
}
