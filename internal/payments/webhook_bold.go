package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/diagnostico-bot/internal/observability/metrics"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

const boldProvider = "bold"

// EventProcessor applies payment events.
type EventProcessor interface {
	HandleEvent(ctx context.Context, evt PaymentEvent) error
}

type boldEvent struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Subject string        `json:"subject"`
	Data    boldEventData `json:"data"`
}

type boldEventData struct {
	ID            string `json:"id"`
	PaymentID     string `json:"payment_id"`
	PaymentLinkID string `json:"payment_link_id"`
	Metadata      struct {
		Reference string `json:"reference"`
	} `json:"metadata"`
}

// correlationIDs lists candidate link ids in the order Bold populates them.
func (e boldEvent) correlationIDs() []string {
	var ids []string
	for _, id := range []string{e.Data.Metadata.Reference, e.Data.PaymentLinkID, e.Data.ID} {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e boldEvent) eventID() string {
	if e.ID != "" {
		return e.ID
	}
	if e.Data.PaymentID != "" {
		return e.Type + ":" + e.Data.PaymentID
	}
	return ""
}

// BoldWebhookHandler receives Bold payment notifications on POST /webhook/bold.
type BoldWebhookHandler struct {
	secret    string
	processor EventProcessor
	processed ProcessedTracker
	metrics   *metrics.BotMetrics
	logger    *logging.Logger
}

// NewBoldWebhookHandler builds the handler. An empty secret skips signature checks.
func NewBoldWebhookHandler(secret string, processor EventProcessor, processed ProcessedTracker, m *metrics.BotMetrics, logger *logging.Logger) *BoldWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if processed == nil {
		processed = NewMemoryProcessedTracker()
	}
	return &BoldWebhookHandler{secret: secret, processor: processor, processed: processed, metrics: m, logger: logger}
}

// Handle processes the event before answering so Bold retries on internal failure.
func (h *BoldWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(boldProvider, time.Since(start).Seconds()) }()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if h.secret != "" && !VerifyBoldSignature(h.secret, payload, r.Header.Get("x-bold-signature")) {
		h.logger.Warn("bold webhook signature mismatch")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var evt boldEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode bold event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	eventID := evt.eventID()
	if eventID != "" {
		if done, err := h.processed.AlreadyProcessed(ctx, boldProvider, eventID); err != nil {
			h.logger.Error("processed lookup failed", "error", err, "event_id", eventID)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		} else if done {
			h.logger.Info("bold event already processed", "event_id", eventID)
			writeAck(w)
			return
		}
	}

	err = h.processor.HandleEvent(ctx, PaymentEvent{
		Type:           EventType(evt.Type),
		EventID:        eventID,
		CorrelationIDs: evt.correlationIDs(),
		PaymentID:      evt.Data.PaymentID,
	})
	switch {
	case err == nil, errors.Is(err, ErrUnresolvableCorrelation):
	default:
		h.logger.Error("bold event processing failed", "error", err, "event_id", eventID, "type", evt.Type)
		http.Error(w, "webhook error", http.StatusInternalServerError)
		return
	}

	if eventID != "" {
		if _, err := h.processed.MarkProcessed(ctx, boldProvider, eventID); err != nil {
			h.logger.Warn("failed to mark bold event processed", "error", err, "event_id", eventID)
		}
	}
	writeAck(w)
}

func writeAck(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Webhook received"))
}

// VerifyBoldSignature checks x-bold-signature: the hex HMAC-SHA256 of the
// base64-encoded raw body, keyed with the webhook secret.
func VerifyBoldSignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base64.StdEncoding.EncodeToString(body)))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
