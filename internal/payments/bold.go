package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

var boldTracer = otel.Tracer("diagnostico.internal.payments.bold")

// ErrLinkUnavailable is returned when Bold answers without a usable payment URL.
var ErrLinkUnavailable = errors.New("payments: bold response missing payment url")

const (
	defaultBoldLinkURL = "https://integrations.api.bold.co/online/link/v1"
	defaultLinkTTL     = 10 * time.Minute
)

// BoldConfig configures the payment link client.
type BoldConfig struct {
	APIKey  string
	LinkURL string
	// ImageURL is shown on the Bold checkout page.
	ImageURL   string
	LinkTTL    time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// LinkRequest describes a single-use, fixed-amount payment link.
type LinkRequest struct {
	Amount      int
	Currency    string
	Description string
	// ExpiresAt defaults to now plus the configured link TTL.
	ExpiresAt time.Time
}

// Link is a created payment link. ID is the correlation id echoed by Bold webhooks.
type Link struct {
	ID  string
	URL string
}

// BoldClient creates hosted payment links through the Bold API.
type BoldClient struct {
	apiKey     string
	linkURL    string
	imageURL   string
	linkTTL    time.Duration
	httpClient *http.Client
	logger     *logging.Logger
	now        func() time.Time
}

func NewBoldClient(cfg BoldConfig) (*BoldClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("payments: bold api key is required")
	}
	if cfg.LinkURL == "" {
		cfg.LinkURL = defaultBoldLinkURL
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = defaultLinkTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &BoldClient{
		apiKey:     cfg.APIKey,
		linkURL:    cfg.LinkURL,
		imageURL:   cfg.ImageURL,
		linkTTL:    cfg.LinkTTL,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		now:        time.Now,
	}, nil
}

type boldAmount struct {
	Currency    string `json:"currency"`
	TipAmount   int    `json:"tip_amount"`
	TotalAmount int    `json:"total_amount"`
}

type boldLinkBody struct {
	AmountType     string     `json:"amount_type"`
	Amount         boldAmount `json:"amount"`
	Description    string     `json:"description"`
	ExpirationDate int64      `json:"expiration_date"`
	ImageURL       string     `json:"image_url,omitempty"`
}

type boldLinkResponse struct {
	Payload struct {
		URL         string `json:"url"`
		PaymentLink string `json:"payment_link"`
	} `json:"payload"`
	Errors []json.RawMessage `json:"errors"`
}

// CreateLink posts a CLOSE-amount link request and returns the link with its correlation id.
func (b *BoldClient) CreateLink(ctx context.Context, req LinkRequest) (*Link, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("payments: invalid amount %d", req.Amount)
	}
	if req.Currency == "" {
		req.Currency = "COP"
	}
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = b.now().Add(b.linkTTL)
	}

	ctx, span := boldTracer.Start(ctx, "bold.create_link")
	defer span.End()
	span.SetAttributes(
		attribute.Int("bold.amount", req.Amount),
		attribute.String("bold.currency", req.Currency),
	)

	link, err := b.createLink(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create link failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("bold.payment_link", link.ID))
	return link, nil
}

func (b *BoldClient) createLink(ctx context.Context, req LinkRequest) (*Link, error) {
	payload, err := json.Marshal(boldLinkBody{
		AmountType: "CLOSE",
		Amount: boldAmount{
			Currency:    req.Currency,
			TotalAmount: req.Amount,
		},
		Description:    req.Description,
		ExpirationDate: req.ExpiresAt.UnixNano(),
		ImageURL:       b.imageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: bold payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.linkURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("payments: bold request: %w", err)
	}
	httpReq.Header.Set("Authorization", "x-api-key "+b.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payments: bold http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("payments: bold read: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("payments: bold api status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var parsed boldLinkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("payments: bold decode: %w", err)
	}
	if parsed.Payload.URL == "" {
		b.logger.Warn("bold link response incomplete", "errors", len(parsed.Errors))
		return nil, ErrLinkUnavailable
	}

	id := parsed.Payload.PaymentLink
	if id == "" {
		id = linkIDFromURL(parsed.Payload.URL)
	}
	if id == "" {
		return nil, ErrLinkUnavailable
	}
	return &Link{ID: id, URL: parsed.Payload.URL}, nil
}

// linkIDFromURL returns the last path segment of a checkout URL.
func linkIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
