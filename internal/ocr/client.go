// Package ocr extracts payment amounts from transfer slip images via
// an external OCR endpoint. The extractor is a hard gate for automatic
// reconciliation: when it is unavailable or unsure, callers fall back
// to the manual owner-confirmation path instead of guessing.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"

	"github.com/shoplinkhq/shoplink/internal/config"
)

var ErrUnavailable = errors.New("ocr unavailable")

// Result carries the extracted amount and how much to trust it.
type Result struct {
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Confidence float64 `json:"confidence"`
}

type Extractor interface {
	// ExtractAmount reads a slip image and returns the detected amount.
	// ErrUnavailable means no trustworthy reading exists; any other
	// error is transient.
	ExtractAmount(ctx context.Context, image []byte, contentType string) (Result, error)
}

type Client struct {
	http          *resty.Client
	minConfidence float64
	logger        *slog.Logger
}

var _ Extractor = (*Client)(nil)

func NewClient(log *slog.Logger, cfg config.OCRConfig) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.Endpoint).
			SetTimeout(cfg.Timeout),
		minConfidence: cfg.MinConfidence,
		logger:        log.With(slog.String("service", "ocr")),
	}
}

func (c *Client) ExtractAmount(ctx context.Context, image []byte, contentType string) (Result, error) {
	if len(image) == 0 {
		return Result{}, fmt.Errorf("extract amount: empty image: %w", ErrUnavailable)
	}
	var result Result
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(image).
		SetResult(&result).
		Post("/v1/extract")
	if err != nil {
		return Result{}, fmt.Errorf("extract amount: %w", err)
	}
	if !resp.IsSuccess() {
		c.logger.Warn("ocr request failed", slog.Int("status", resp.StatusCode()))
		return Result{}, fmt.Errorf("extract amount: status %d: %w", resp.StatusCode(), ErrUnavailable)
	}
	if result.Amount <= 0 || result.Confidence < c.minConfidence {
		c.logger.Info("ocr reading below threshold",
			slog.Float64("amount", result.Amount),
			slog.Float64("confidence", result.Confidence))
		return Result{}, ErrUnavailable
	}
	return result, nil
}
