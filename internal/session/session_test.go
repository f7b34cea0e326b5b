package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordImage_AdvancesPhoto1ThenPhoto2(t *testing.T) {
	s := NewFlow("573001112233", time.Now())

	assert.Equal(t, ImageFirstPhoto, s.RecordImage("media-1"))
	assert.Equal(t, StepAwaitingPhoto2, s.Step)
	assert.Equal(t, "media-1", s.Photo1Ref)
	assert.Empty(t, s.Photo2Ref)

	assert.Equal(t, ImageSecondPhoto, s.RecordImage("media-2"))
	assert.Equal(t, StepOfferSent, s.Step)
	assert.Equal(t, "media-2", s.Photo2Ref)
	assert.Equal(t, []string{"media-1", "media-2"}, s.Images)
}

func TestRecordImage_OutOfSequenceDoesNotAdvance(t *testing.T) {
	s := NewFlow("573001112233", time.Now())
	s.RecordImage("media-1")
	s.RecordImage("media-2")

	assert.Equal(t, ImageOutOfSequence, s.RecordImage("media-3"))
	assert.Equal(t, StepOfferSent, s.Step)
	assert.Equal(t, "media-1", s.Photo1Ref, "photo refs are never overwritten")
	assert.Equal(t, "media-2", s.Photo2Ref)
	assert.Len(t, s.Images, 3)
}

func TestStepNeverRegressesAcrossImageSequence(t *testing.T) {
	order := map[Step]int{StepAwaitingPhoto1: 1, StepAwaitingPhoto2: 2, StepOfferSent: 3}
	s := NewFlow("u", time.Now())
	prev := order[s.Step]
	for i := 0; i < 6; i++ {
		s.RecordImage("m")
		cur := order[s.Step]
		require.GreaterOrEqual(t, cur, prev)
		require.LessOrEqual(t, cur-prev, 1, "step must advance one position at a time")
		prev = cur
	}
}

func TestApplyPayment(t *testing.T) {
	s := NewFlow("u", time.Now())
	s.AttachPaymentLink("LNK_1", "https://checkout.bold.co/LNK_1")
	assert.True(t, s.FullAnalysisPending)

	trigger, err := s.ApplyPayment(OutcomePending)
	require.NoError(t, err)
	assert.False(t, trigger)
	assert.Equal(t, PaymentPending, s.PaymentStatus)

	trigger, err = s.ApplyPayment(OutcomeRejected)
	require.NoError(t, err)
	assert.False(t, trigger)
	assert.Equal(t, PaymentRejected, s.PaymentStatus)

	trigger, err = s.ApplyPayment(OutcomeApproved)
	require.NoError(t, err)
	assert.True(t, trigger)
	assert.Equal(t, PaymentVerified, s.PaymentStatus)

	s.StoreAnalysis("done")
	trigger, err = s.ApplyPayment(OutcomeApproved)
	require.NoError(t, err)
	assert.False(t, trigger, "a repeated approval after delivery must not trigger again")

	_, err = s.ApplyPayment("refunded")
	assert.Error(t, err)
}

func TestApplyPaymentKeepsVerified(t *testing.T) {
	s := NewFlow("u", time.Now())
	s.AttachPaymentLink("LNK_1", "https://checkout.bold.co/LNK_1")
	_, err := s.ApplyPayment(OutcomeApproved)
	require.NoError(t, err)
	s.StoreAnalysis("done")

	for _, outcome := range []PaymentOutcome{OutcomeRejected, OutcomePending} {
		trigger, err := s.ApplyPayment(outcome)
		assert.ErrorIs(t, err, ErrPaymentSettled, string(outcome))
		assert.False(t, trigger)
		assert.Equal(t, PaymentVerified, s.PaymentStatus)
	}
	assert.Equal(t, "done", s.StoredAnalysis)

	s.AttachPaymentLink("LNK_2", "https://checkout.bold.co/LNK_2")
	_, err = s.ApplyPayment(OutcomeRejected)
	require.NoError(t, err)
	assert.Equal(t, PaymentRejected, s.PaymentStatus, "a new link starts a new payment")
}

func TestReadyForAnalysis(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Session)
		ready bool
	}{
		{"fresh flow", func(*Session) {}, false},
		{"photos only", func(s *Session) { s.RecordImage("a"); s.RecordImage("b") }, false},
		{"verified without photos", func(s *Session) { s.PaymentStatus = PaymentVerified }, false},
		{"verified one photo", func(s *Session) { s.RecordImage("a"); s.PaymentStatus = PaymentVerified }, false},
		{"verified both photos", func(s *Session) {
			s.RecordImage("a")
			s.RecordImage("b")
			s.PaymentStatus = PaymentVerified
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFlow("u", time.Now())
			tt.setup(s)
			err := s.ReadyForAnalysis()
			if tt.ready {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrNotReady), "got %v", err)
			}
		})
	}

	var missing *Session
	assert.ErrorIs(t, missing.ReadyForAnalysis(), ErrNotReady)
}

func TestTakeStoredAnalysisClears(t *testing.T) {
	s := NewFlow("u", time.Now())
	s.StoreAnalysis("resultado")

	text, ok := s.TakeStoredAnalysis()
	assert.True(t, ok)
	assert.Equal(t, "resultado", text)

	_, ok = s.TakeStoredAnalysis()
	assert.False(t, ok)
}

func TestWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewFlow("u", now.Add(-23*time.Hour))
	assert.True(t, s.WithinWindow(now, 24*time.Hour))

	s.CreatedAt = now.Add(-25 * time.Hour)
	assert.False(t, s.WithinWindow(now, 24*time.Hour))

	s.CreatedAt = now.Add(-24 * time.Hour)
	assert.False(t, s.WithinWindow(now, 24*time.Hour), "the window is half-open")
}

func TestJSONRejectsUnknownStates(t *testing.T) {
	var s Session
	err := json.Unmarshal([]byte(`{"user_id":"u","step":"photo9","payment_status":"pending"}`), &s)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"user_id":"u","step":"awaiting_photo_2","payment_status":"stolen"}`), &s)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"user_id":"u","step":"","payment_status":""}`), &s)
	require.NoError(t, err)
	assert.Equal(t, StepNone, s.Step)
	assert.Equal(t, PaymentPending, s.PaymentStatus)
}

func TestCloneIsDeep(t *testing.T) {
	s := NewFlow("u", time.Now())
	s.RecordImage("a")
	cp := s.Clone()
	cp.Images[0] = "changed"
	assert.Equal(t, "a", s.Images[0])
}
