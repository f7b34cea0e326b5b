package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/diagnostico-bot/internal/messaging"
	"github.com/wolfman30/diagnostico-bot/internal/observability/metrics"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

const (
	defaultGraphBase    = "https://graph.facebook.com"
	defaultAPIVersion   = "v21.0"
	defaultHTTPTimeout  = 15 * time.Second
	defaultBackoff      = 300 * time.Millisecond
	maxMediaBytes       = 16 << 20
	errorSnippetLimit   = 512
	messagingProductKey = "whatsapp"
)

var tracer = otel.Tracer("diagnostico.internal.channels.whatsapp")

// Config controls how the Cloud API client behaves.
type Config struct {
	Token         string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string
	MediaDir      string
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	HTTPClient    *http.Client
	Logger        *logging.Logger
	Metrics       *metrics.BotMetrics
}

// Client sends messages and fetches media through the WhatsApp Cloud API.
type Client struct {
	token         string
	phoneNumberID string
	apiBase       string
	mediaDir      string
	httpClient    *http.Client
	maxRetries    int
	backoff       time.Duration
	logger        *logging.Logger
	metrics       *metrics.BotMetrics
}

var _ messaging.Messenger = (*Client)(nil)

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("whatsapp: API token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp: phone number id is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultGraphBase
	}
	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		version = defaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	mediaDir := cfg.MediaDir
	if mediaDir == "" {
		mediaDir = "./temp"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		apiBase:       base + "/" + version,
		mediaDir:      mediaDir,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		backoff:       backoff,
		logger:        logger,
		metrics:       cfg.Metrics,
	}, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, "text", outboundMessage{
		To:   to,
		Type: "text",
		Text: &outboundText{Body: body},
	})
}

// SendButtons sends up to three reply buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []messaging.Button) error {
	if err := messaging.ValidateButtons(buttons); err != nil {
		return fmt.Errorf("whatsapp: %w", err)
	}
	out := make([]outboundButton, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, outboundButton{Type: "reply", Reply: ReplyItem{ID: b.ID, Title: b.Title}})
	}
	return c.send(ctx, "buttons", outboundMessage{
		To:   to,
		Type: "interactive",
		Interactive: &outboundInteractive{
			Type:   "button",
			Body:   outboundTextBlock{Text: body},
			Action: outboundAction{Buttons: out},
		},
	})
}

// SendList sends an interactive list.
func (c *Client) SendList(ctx context.Context, to string, list messaging.List) error {
	if len(list.Sections) == 0 {
		return errors.New("whatsapp: list requires at least one section")
	}
	sections := make([]outboundSection, 0, len(list.Sections))
	for _, s := range list.Sections {
		rows := make([]ReplyItem, 0, len(s.Rows))
		for _, r := range s.Rows {
			rows = append(rows, ReplyItem{ID: r.ID, Title: r.Title, Description: r.Description})
		}
		sections = append(sections, outboundSection{Title: s.Title, Rows: rows})
	}
	return c.send(ctx, "list", outboundMessage{
		To:   to,
		Type: "interactive",
		Interactive: &outboundInteractive{
			Type:   "list",
			Body:   outboundTextBlock{Text: list.Body},
			Action: outboundAction{Button: list.ButtonText, Sections: sections},
		},
	})
}

// SendTemplate sends a pre-approved template. This is the only message type
// accepted outside the 24h customer-service window.
func (c *Client) SendTemplate(ctx context.Context, to string, tmpl messaging.Template) error {
	if tmpl.Name == "" {
		return errors.New("whatsapp: template name required")
	}
	var components []templateComponent
	if len(tmpl.BodyParams) > 0 {
		params := make([]templateParameter, 0, len(tmpl.BodyParams))
		for _, p := range tmpl.BodyParams {
			params = append(params, templateParameter{Type: "text", Text: p})
		}
		components = append(components, templateComponent{Type: "body", Parameters: params})
	}
	for i, payload := range tmpl.QuickReplies {
		components = append(components, templateComponent{
			Type:       "button",
			SubType:    "quick_reply",
			Index:      strconv.Itoa(i),
			Parameters: []templateParameter{{Type: "payload", Payload: payload}},
		})
	}
	lang := tmpl.Language
	if lang == "" {
		lang = "es"
	}
	return c.send(ctx, "template", outboundMessage{
		To:   to,
		Type: "template",
		Template: &outboundTemplate{
			Name:       tmpl.Name,
			Language:   outboundLanguage{Code: lang},
			Components: components,
		},
	})
}

// SendLocation sends a map pin.
func (c *Client) SendLocation(ctx context.Context, to string, loc messaging.Location) error {
	return c.send(ctx, "location", outboundMessage{
		To:   to,
		Type: "location",
		Location: &outboundLocation{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Name:      loc.Name,
			Address:   loc.Address,
		},
	})
}

// SendContact sends a single contact card.
func (c *Client) SendContact(ctx context.Context, to string, contact messaging.Contact) error {
	card := outboundContact{
		Name: contactName{
			FormattedName: contact.FormattedName,
			FirstName:     contact.FirstName,
			LastName:      contact.LastName,
		},
	}
	if contact.Street != "" || contact.City != "" {
		card.Addresses = []contactAddress{{Street: contact.Street, City: contact.City, Type: "WORK"}}
	}
	if contact.Email != "" {
		card.Emails = []contactEmail{{Email: contact.Email, Type: "WORK"}}
	}
	if contact.Company != "" || contact.Department != "" || contact.Title != "" {
		card.Org = &contactOrg{Company: contact.Company, Department: contact.Department, Title: contact.Title}
	}
	if contact.Phone != "" {
		card.Phones = []contactPhone{{Phone: contact.Phone, WaID: contact.WaID, Type: "WORK"}}
	}
	if contact.URL != "" {
		card.URLs = []contactURL{{URL: contact.URL, Type: "WORK"}}
	}
	return c.send(ctx, "contact", outboundMessage{
		To:       to,
		Type:     "contacts",
		Contacts: []outboundContact{card},
	})
}

// MarkRead marks an inbound message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	if messageID == "" {
		return nil
	}
	body, err := json.Marshal(readReceipt{MessagingProduct: messagingProductKey, Status: "read", MessageID: messageID})
	if err != nil {
		return fmt.Errorf("whatsapp: marshal read receipt: %w", err)
	}
	_, err = c.invoke(ctx, http.MethodPost, c.messagesURL(), body)
	c.metrics.ObserveOutbound("read", err)
	return err
}

// DownloadMedia resolves a media id, downloads the bytes and writes them under
// the media directory. It returns the local file path.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) (string, error) {
	ctx, span := tracer.Start(ctx, "whatsapp.download_media")
	defer span.End()
	span.SetAttributes(attribute.String("whatsapp.media_id", mediaID))

	path, err := c.downloadMedia(ctx, mediaID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download failed")
		return "", err
	}
	return path, nil
}

func (c *Client) downloadMedia(ctx context.Context, mediaID string) (string, error) {
	if strings.TrimSpace(mediaID) == "" {
		return "", errors.New("whatsapp: media id required")
	}
	raw, err := c.invoke(ctx, http.MethodGet, c.apiBase+"/"+mediaID, nil)
	if err != nil {
		return "", fmt.Errorf("whatsapp: resolve media %s: %w", mediaID, err)
	}
	var info MediaInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return "", fmt.Errorf("whatsapp: decode media info: %w", err)
	}
	if info.URL == "" {
		return "", fmt.Errorf("whatsapp: media %s has no download url", mediaID)
	}

	data, err := c.invoke(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return "", fmt.Errorf("whatsapp: download media %s: %w", mediaID, err)
	}

	if err := os.MkdirAll(c.mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("whatsapp: create media dir: %w", err)
	}
	path := filepath.Join(c.mediaDir, uuid.NewString()+"."+extensionFor(info.MimeType))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("whatsapp: write media: %w", err)
	}
	c.logger.Debug("whatsapp media downloaded", "media_id", mediaID, "bytes", len(data), "mime_type", info.MimeType)
	return path, nil
}

func (c *Client) messagesURL() string {
	return c.apiBase + "/" + c.phoneNumberID + "/messages"
}

func (c *Client) send(ctx context.Context, kind string, msg outboundMessage) error {
	ctx, span := tracer.Start(ctx, "whatsapp.send_"+kind)
	defer span.End()
	span.SetAttributes(attribute.String("whatsapp.recipient", logging.MaskPhone(msg.To)))

	if strings.TrimSpace(msg.To) == "" {
		return errors.New("whatsapp: recipient required")
	}
	msg.MessagingProduct = messagingProductKey
	msg.RecipientType = "individual"
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal %s message: %w", kind, err)
	}

	raw, err := c.invoke(ctx, http.MethodPost, c.messagesURL(), body)
	c.metrics.ObserveOutbound(kind, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		c.logger.Error("whatsapp: failed to send message", "kind", kind, "to", logging.MaskPhone(msg.To), "error", err)
		return err
	}
	var resp SendResponse
	if err := json.Unmarshal(raw, &resp); err == nil && len(resp.Messages) > 0 {
		span.SetAttributes(attribute.String("whatsapp.message_id", resp.Messages[0].ID))
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("whatsapp: http error: %w", err)
			}
			lastErr = err
			c.logRetry(url, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("whatsapp: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(url, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("whatsapp: request failed without response")
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff * time.Duration(1<<attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(url string, attempt, status int, err error) {
	c.logger.Warn("whatsapp retry", "url", redactURL(url), "attempt", attempt+1, "status", status, "error", err)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// StatusError is returned for non-2xx Graph API responses.
type StatusError struct {
	StatusCode int
	API        *APIError
	Snippet    string
}

func (e *StatusError) Error() string {
	if e.API != nil && e.API.Message != "" {
		return fmt.Sprintf("whatsapp: API error %d (status=%d): %s", e.API.Code, e.StatusCode, e.API.Message)
	}
	return fmt.Sprintf("whatsapp: unexpected status %d: %s", e.StatusCode, e.Snippet)
}

func decodeAPIError(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > errorSnippetLimit {
		snippet = snippet[:errorSnippetLimit]
	}
	var parsed struct {
		Error *APIError `json:"error"`
	}
	_ = json.Unmarshal(body, &parsed)
	return &StatusError{StatusCode: status, API: parsed.Error, Snippet: snippet}
}

func extensionFor(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/heic":
		return "heic"
	default:
		return "bin"
	}
}

// redactURL drops the query string, which carries signed tokens on media URLs.
func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
