package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	events []PaymentEvent
	err    error
}

func (s *stubProcessor) HandleEvent(ctx context.Context, evt PaymentEvent) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.events = append(s.events, evt)
	return s.err
}

const approvedPayload = `{
  "id": "evt-001",
  "type": "SALE_APPROVED",
  "subject": "pay-9",
  "data": {
    "payment_id": "pay-9",
    "payment_link_id": "LNK_1",
    "id": "obj-1",
    "metadata": {"reference": "REF_1"}
  }
}`

func postBold(h *BoldWebhookHandler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/bold", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	return rr
}

func signBold(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base64.StdEncoding.EncodeToString([]byte(body))))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestBoldWebhook_MapsEvent(t *testing.T) {
	proc := &stubProcessor{}
	h := NewBoldWebhookHandler("", proc, NewMemoryProcessedTracker(), nil, nil)

	rr := postBold(h, approvedPayload, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Webhook received", rr.Body.String())

	require.Len(t, proc.events, 1)
	evt := proc.events[0]
	assert.Equal(t, EventSaleApproved, evt.Type)
	assert.Equal(t, "evt-001", evt.EventID)
	assert.Equal(t, "pay-9", evt.PaymentID)
	assert.Equal(t, []string{"REF_1", "LNK_1", "obj-1"}, evt.CorrelationIDs)
}

func TestBoldWebhook_DuplicateEventIgnored(t *testing.T) {
	proc := &stubProcessor{}
	tracker := NewMemoryProcessedTracker()
	h := NewBoldWebhookHandler("", proc, tracker, nil, nil)

	assert.Equal(t, http.StatusOK, postBold(h, approvedPayload, nil).Code)
	assert.Equal(t, http.StatusOK, postBold(h, approvedPayload, nil).Code)
	assert.Len(t, proc.events, 1)
}

func TestBoldWebhook_UnresolvableIsAcknowledged(t *testing.T) {
	proc := &stubProcessor{err: ErrUnresolvableCorrelation}
	tracker := NewMemoryProcessedTracker()
	h := NewBoldWebhookHandler("", proc, tracker, nil, nil)

	assert.Equal(t, http.StatusOK, postBold(h, approvedPayload, nil).Code)
	done, err := tracker.AlreadyProcessed(context.Background(), "bold", "evt-001")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestBoldWebhook_InternalFailureAllowsRetry(t *testing.T) {
	proc := &stubProcessor{err: errors.New("store unavailable")}
	tracker := NewMemoryProcessedTracker()
	h := NewBoldWebhookHandler("", proc, tracker, nil, nil)

	assert.Equal(t, http.StatusInternalServerError, postBold(h, approvedPayload, nil).Code)
	done, err := tracker.AlreadyProcessed(context.Background(), "bold", "evt-001")
	require.NoError(t, err)
	assert.False(t, done)

	proc.err = nil
	assert.Equal(t, http.StatusOK, postBold(h, approvedPayload, nil).Code)
	assert.Len(t, proc.events, 2)
}

func TestBoldWebhook_BadJSON(t *testing.T) {
	proc := &stubProcessor{}
	h := NewBoldWebhookHandler("", proc, nil, nil, nil)

	assert.Equal(t, http.StatusBadRequest, postBold(h, "{not json", nil).Code)
	assert.Empty(t, proc.events)
}

func TestBoldWebhook_Signature(t *testing.T) {
	proc := &stubProcessor{}
	h := NewBoldWebhookHandler("whsec", proc, nil, nil, nil)

	assert.Equal(t, http.StatusUnauthorized, postBold(h, approvedPayload, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, postBold(h, approvedPayload, map[string]string{"x-bold-signature": "deadbeef"}).Code)
	assert.Empty(t, proc.events)

	rr := postBold(h, approvedPayload, map[string]string{"x-bold-signature": signBold("whsec", approvedPayload)})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, proc.events, 1)
}

func TestBoldWebhook_EventIDFallback(t *testing.T) {
	proc := &stubProcessor{}
	h := NewBoldWebhookHandler("", proc, nil, nil, nil)

	body := `{"type":"SALE_REJECTED","data":{"payment_id":"pay-7","payment_link_id":"LNK_7"}}`
	assert.Equal(t, http.StatusOK, postBold(h, body, nil).Code)
	assert.Equal(t, http.StatusOK, postBold(h, body, nil).Code)

	require.Len(t, proc.events, 1)
	assert.Equal(t, "SALE_REJECTED:pay-7", proc.events[0].EventID)
	assert.Equal(t, []string{"LNK_7"}, proc.events[0].CorrelationIDs)
}

func TestBoldWebhook_ProcessesAfterClientDisconnect(t *testing.T) {
	proc := &stubProcessor{}
	h := NewBoldWebhookHandler("", proc, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/webhook/bold", strings.NewReader(approvedPayload)).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.Handle(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, proc.events, 1)
}

func TestVerifyBoldSignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := signBold("k", string(body))
	assert.True(t, VerifyBoldSignature("k", body, sig))
	assert.True(t, VerifyBoldSignature("k", body, strings.ToUpper(sig)))
	assert.False(t, VerifyBoldSignature("other", body, sig))
	assert.False(t, VerifyBoldSignature("k", body, ""))
}
