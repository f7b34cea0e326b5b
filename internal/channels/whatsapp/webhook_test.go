package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/wolfman30/diagnostico-bot/internal/conversation"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []conversation.Event
	ctxErr []error
	fail   map[string]error
	panicM string
}

func (h *recordingHandler) Handle(ctx context.Context, evt conversation.Event) error {
	if evt.MessageID == h.panicM && h.panicM != "" {
		panic("boom")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, evt)
	h.ctxErr = append(h.ctxErr, ctx.Err())
	return h.fail[evt.MessageID]
}

func (h *recordingHandler) snapshot() []conversation.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]conversation.Event(nil), h.events...)
}

func parseFixture(t *testing.T, raw string) []conversation.Event {
	t.Helper()
	var payload WebhookEvent
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return ParseWebhookEvent(payload)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const inboundFixture = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "573000000000", "phone_number_id": "1055"},
        "contacts": [{"profile": {"name": "Laura"}, "wa_id": "573001112233"}],
        "messages": [
          {"from": "573001112233", "id": "wamid.1", "timestamp": "1700000000", "type": "text", "text": {"body": "Hola"}},
          {"from": "573001112233", "id": "wamid.2", "timestamp": "1700000001", "type": "interactive",
           "interactive": {"type": "list_reply", "list_reply": {"id": "diagnostico", "title": "Diagnóstico"}}},
          {"from": "573001112233", "id": "wamid.3", "timestamp": "1700000002", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "full_analysis_yes", "title": "Sí"}}},
          {"from": "573001112233", "id": "wamid.4", "timestamp": "1700000003", "type": "image",
           "image": {"id": "MEDIA_1", "mime_type": "image/jpeg"}},
          {"from": "573001112233", "id": "wamid.5", "timestamp": "1700000004", "type": "button",
           "button": {"payload": "get_full_analysis", "text": "Sí"}},
          {"from": "573001112233", "id": "wamid.6", "timestamp": "1700000005", "type": "sticker", "sticker": {"id": "S"}}
        ]
      }
    }]
  }]
}`

func TestParseWebhookEvent(t *testing.T) {
	events := parseFixture(t, inboundFixture)
	if len(events) != 5 {
		t.Fatalf("expected 5 supported events, got %d", len(events))
	}
	want := []struct {
		typ    conversation.EventType
		text   string
		option string
		media  string
	}{
		{conversation.EventText, "Hola", "", ""},
		{conversation.EventInteractive, "Diagnóstico", "diagnostico", ""},
		{conversation.EventInteractive, "Sí", "full_analysis_yes", ""},
		{conversation.EventImage, "", "", "MEDIA_1"},
		{conversation.EventButton, "Sí", "get_full_analysis", ""},
	}
	for i, w := range want {
		got := events[i]
		if got.Type != w.typ || got.Text != w.text || got.OptionID != w.option || got.MediaID != w.media {
			t.Errorf("event %d = %+v, want %+v", i, got, w)
		}
		if got.SenderName != "Laura" {
			t.Errorf("event %d sender = %q, want Laura", i, got.SenderName)
		}
		if got.From != "573001112233" {
			t.Errorf("event %d from = %q", i, got.From)
		}
	}
}

func TestParseIgnoresStatuses(t *testing.T) {
	events := parseFixture(t, `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"statuses":[{"id":"wamid.X","status":"delivered","recipient_id":"57300"}]}}]}]}`)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestSenderNameFallsBackToWaID(t *testing.T) {
	contacts := []WebhookContact{{WaID: "57300"}}
	if got := senderName(contacts, "57300"); got != "57300" {
		t.Fatalf("sender name = %q, want wa_id", got)
	}
	if got := senderName(nil, "57311"); got != "57311" {
		t.Fatalf("sender name = %q, want from", got)
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "app_secret"
	body := []byte(`{"object":"whatsapp_business_account"}`)
	valid := sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, valid, true},
		{"wrong signature", secret, body, "sha256=00", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, valid, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"tampered body", secret, []byte(`tampered`), valid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.signature); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleVerification(t *testing.T) {
	h := NewWebhookHandler("my_verify_token", "", nil, nil, nil)

	t.Run("valid challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=my_verify_token&hub.challenge=CH_1", nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)
		if w.Code != http.StatusOK || w.Body.String() != "CH_1" {
			t.Fatalf("got %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=X", nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("unconfigured token", func(t *testing.T) {
		empty := NewWebhookHandler("", "", nil, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=X", nil)
		w := httptest.NewRecorder()
		empty.HandleVerification(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})
}

func TestHandleInboundDispatchesEachEvent(t *testing.T) {
	handler := &recordingHandler{
		fail:   map[string]error{"wamid.2": errors.New("handler failed")},
		panicM: "wamid.3",
	}
	h := NewWebhookHandler("v", "", handler, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(inboundFixture)).WithContext(ctx)
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)
	cancel()
	h.Wait()

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	// A failing and a panicking event do not stop the others.
	if got := len(handler.snapshot()); got != 4 {
		t.Fatalf("expected 4 handled events, got %d", got)
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	for i, err := range handler.ctxErr {
		if err != nil {
			t.Fatalf("event %d saw cancelled context: %v", i, err)
		}
	}
}

func TestHandleInboundSignature(t *testing.T) {
	handler := &recordingHandler{}
	h := NewWebhookHandler("v", "app_secret", handler, nil, nil)
	body := []byte(inboundFixture)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("app_secret", body))
	w = httptest.NewRecorder()
	h.HandleInbound(w, req)
	h.Wait()
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(handler.snapshot()) != 5 {
		t.Fatalf("expected 5 events, got %d", len(handler.snapshot()))
	}
}

func TestHandleInboundRejectsMalformedJSON(t *testing.T) {
	h := NewWebhookHandler("v", "", &recordingHandler{}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
