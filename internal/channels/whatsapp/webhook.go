package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/diagnostico-bot/internal/conversation"
	"github.com/wolfman30/diagnostico-bot/internal/observability/metrics"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

const maxWebhookBody = 1 << 20

// EventHandler consumes parsed inbound events.
type EventHandler interface {
	Handle(ctx context.Context, evt conversation.Event) error
}

// WebhookHandler handles WhatsApp webhook verification and inbound messages.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	handler     EventHandler
	logger      *logging.Logger
	metrics     *metrics.BotMetrics
	inflight    sync.WaitGroup
}

// NewWebhookHandler creates a webhook handler. When appSecret is empty the
// X-Hub-Signature-256 check is skipped.
func NewWebhookHandler(verifyToken, appSecret string, handler EventHandler, logger *logging.Logger, m *metrics.BotMetrics) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		handler:     handler,
		logger:      logger,
		metrics:     m,
	}
}

// HandleVerification answers the GET subscription challenge from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && h.verifyToken != "" && q.Get("hub.verify_token") == h.verifyToken {
		h.logger.Info("whatsapp webhook verified")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, q.Get("hub.challenge"))
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound acknowledges the POST immediately and dispatches each event
// on its own goroutine, detached from request cancellation.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency("whatsapp", time.Since(start).Seconds()) }()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if h.appSecret != "" && !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("whatsapp webhook signature rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload WebhookEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Meta retries on slow or non-200 responses.
	w.WriteHeader(http.StatusOK)

	events := ParseWebhookEvent(payload)
	if len(events) == 0 || h.handler == nil {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	for _, evt := range events {
		h.inflight.Add(1)
		go h.dispatch(ctx, evt)
	}
}

// Wait blocks until every dispatched event has been handled.
func (h *WebhookHandler) Wait() {
	h.inflight.Wait()
}

func (h *WebhookHandler) dispatch(ctx context.Context, evt conversation.Event) {
	defer h.inflight.Done()
	defer func() {
		if rec := recover(); rec != nil {
			h.metrics.ObserveInbound(string(evt.Type), "panic")
			h.logger.Error("whatsapp event handler panicked", "panic", rec, "message_id", evt.MessageID)
		}
	}()
	if err := h.handler.Handle(ctx, evt); err != nil {
		h.metrics.ObserveInbound(string(evt.Type), "error")
		h.logger.Error("whatsapp event handling failed",
			"error", err,
			"type", evt.Type,
			"message_id", evt.MessageID,
			"from", logging.MaskPhone(evt.From),
		)
		return
	}
	h.metrics.ObserveInbound(string(evt.Type), "handled")
}

// ParseWebhookEvent extracts the supported inbound messages. Delivery statuses
// and unsupported message types are dropped.
func ParseWebhookEvent(payload WebhookEvent) []conversation.Event {
	var events []conversation.Event
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			for _, msg := range change.Value.Messages {
				evt, ok := toEvent(msg)
				if !ok {
					continue
				}
				evt.SenderName = senderName(change.Value.Contacts, msg.From)
				events = append(events, evt)
			}
		}
	}
	return events
}

func toEvent(msg InboundMessage) (conversation.Event, bool) {
	evt := conversation.Event{From: msg.From, MessageID: msg.ID}
	if msg.From == "" {
		return evt, false
	}
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return evt, false
		}
		evt.Type = conversation.EventText
		evt.Text = msg.Text.Body
	case "interactive":
		if msg.Interactive == nil {
			return evt, false
		}
		evt.Type = conversation.EventInteractive
		switch {
		case msg.Interactive.ButtonReply != nil:
			evt.OptionID = msg.Interactive.ButtonReply.ID
			evt.Text = msg.Interactive.ButtonReply.Title
		case msg.Interactive.ListReply != nil:
			evt.OptionID = msg.Interactive.ListReply.ID
			evt.Text = msg.Interactive.ListReply.Title
		default:
			return evt, false
		}
	case "button":
		if msg.Button == nil {
			return evt, false
		}
		evt.Type = conversation.EventButton
		evt.OptionID = msg.Button.Payload
		evt.Text = msg.Button.Text
	case "image":
		if msg.Image == nil || msg.Image.ID == "" {
			return evt, false
		}
		evt.Type = conversation.EventImage
		evt.MediaID = msg.Image.ID
	default:
		return evt, false
	}
	return evt, true
}

// senderName prefers the profile name of the matching contact and falls back to the wa_id.
func senderName(contacts []WebhookContact, from string) string {
	for _, c := range contacts {
		if c.WaID == from || len(contacts) == 1 {
			if name := strings.TrimSpace(c.Profile.Name); name != "" {
				return name
			}
			if c.WaID != "" {
				return c.WaID
			}
		}
	}
	return from
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature[len(prefix):])))
}
