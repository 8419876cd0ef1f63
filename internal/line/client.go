package line

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"

	"github.com/shoplinkhq/shoplink/internal/config"
)

// Messenger is the outbound messaging surface the rest of the system
// depends on. Credentials are passed per call because each tenant has
// its own channel access token.
type Messenger interface {
	Reply(ctx context.Context, token, replyToken string, messages ...Message) error
	Push(ctx context.Context, token, to string, messages ...Message) error
	GetProfile(ctx context.Context, token, userID string) (Profile, error)
	GetBotInfo(ctx context.Context, token string) (BotInfo, error)
	GetMessageContent(ctx context.Context, token, messageID string) ([]byte, string, error)
}

type Client struct {
	api    *resty.Client
	data   *resty.Client
	logger *slog.Logger
}

var _ Messenger = (*Client)(nil)

func NewClient(log *slog.Logger, cfg config.LineConfig) *Client {
	api := resty.New().
		SetBaseURL(cfg.APIBase).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	data := resty.New().
		SetBaseURL(cfg.DataAPIBase).
		SetTimeout(cfg.Timeout)
	return &Client{
		api:    api,
		data:   data,
		logger: log.With(slog.String("service", "line")),
	}
}

func (c *Client) Reply(ctx context.Context, token, replyToken string, messages ...Message) error {
	if replyToken == "" {
		return fmt.Errorf("reply: %w", ErrMissingReplyToken)
	}
	resp, err := c.api.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(replyRequest{ReplyToken: replyToken, Messages: messages}).
		Post("/v2/bot/message/reply")
	if err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return c.checkStatus("reply", resp)
}

func (c *Client) Push(ctx context.Context, token, to string, messages ...Message) error {
	if to == "" {
		return fmt.Errorf("push: %w", ErrMissingRecipient)
	}
	resp, err := c.api.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(pushRequest{To: to, Messages: messages}).
		Post("/v2/bot/message/push")
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return c.checkStatus("push", resp)
}

func (c *Client) GetProfile(ctx context.Context, token, userID string) (Profile, error) {
	var profile Profile
	resp, err := c.api.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&profile).
		Get("/v2/bot/profile/" + userID)
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if err := c.checkStatus("get profile", resp); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func (c *Client) GetBotInfo(ctx context.Context, token string) (BotInfo, error) {
	var info BotInfo
	resp, err := c.api.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&info).
		Get("/v2/bot/info")
	if err != nil {
		return BotInfo{}, fmt.Errorf("get bot info: %w", err)
	}
	if err := c.checkStatus("get bot info", resp); err != nil {
		return BotInfo{}, err
	}
	return info, nil
}

// GetMessageContent downloads the binary body of a media message from
// the data API host. Returns the bytes and the content type header.
func (c *Client) GetMessageContent(ctx context.Context, token, messageID string) ([]byte, string, error) {
	resp, err := c.data.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get("/v2/bot/message/" + messageID + "/content")
	if err != nil {
		return nil, "", fmt.Errorf("get message content: %w", err)
	}
	if err := c.checkStatus("get message content", resp); err != nil {
		return nil, "", err
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

func (c *Client) checkStatus(op string, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	c.logger.Warn("line api error",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode()),
		slog.String("body", string(resp.Body())))
	return fmt.Errorf("%s: %w: status %d", op, ErrAPIStatus, resp.StatusCode())
}
