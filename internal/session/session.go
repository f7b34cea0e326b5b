package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no session exists for the lookup key.
	ErrNotFound = errors.New("session: not found")

	// ErrNotReady is returned by ReadyForAnalysis when payment or photos are missing.
	ErrNotReady = errors.New("session: not ready for analysis")

	// ErrPaymentSettled is returned by ApplyPayment when a pending or rejected
	// outcome arrives for a payment that is already verified.
	ErrPaymentSettled = errors.New("session: payment already verified")
)

// Step is the position in the two-photo collection flow.
type Step string

const (
	StepNone           Step = "none"
	StepAwaitingPhoto1 Step = "awaiting_photo_1"
	StepAwaitingPhoto2 Step = "awaiting_photo_2"
	StepOfferSent      Step = "offer_sent"
)

func (s Step) valid() bool {
	switch s {
	case StepNone, StepAwaitingPhoto1, StepAwaitingPhoto2, StepOfferSent:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown steps so a corrupt record cannot enter the state machine.
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		raw = string(StepNone)
	}
	step := Step(raw)
	if !step.valid() {
		return fmt.Errorf("session: unknown step %q", raw)
	}
	*s = step
	return nil
}

// PaymentStatus tracks the most recent payment attempt.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentRejected PaymentStatus = "rejected"
)

// UnmarshalJSON rejects unknown payment statuses.
func (p *PaymentStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch status := PaymentStatus(raw); status {
	case PaymentPending, PaymentVerified, PaymentRejected:
		*p = status
	case "":
		*p = PaymentPending
	default:
		return fmt.Errorf("session: unknown payment status %q", raw)
	}
	return nil
}

// PaymentOutcome is an authoritative result reported by the payment provider.
type PaymentOutcome string

const (
	OutcomeApproved PaymentOutcome = "approved"
	OutcomePending  PaymentOutcome = "pending"
	OutcomeRejected PaymentOutcome = "rejected"
)

// Session is the per-user conversation record.
type Session struct {
	UserID              string        `json:"user_id"`
	Step                Step          `json:"step"`
	Images              []string      `json:"images"`
	Photo1Ref           string        `json:"photo1_ref,omitempty"`
	Photo2Ref           string        `json:"photo2_ref,omitempty"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	PaymentLinkID       string        `json:"payment_link_id,omitempty"`
	PaymentLinkURL      string        `json:"payment_link_url,omitempty"`
	FullAnalysisPending bool          `json:"full_analysis_pending"`
	StoredAnalysis      string        `json:"stored_analysis,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// NewFlow starts a fresh photo collection flow, discarding any previous state.
func NewFlow(userID string, now time.Time) *Session {
	return &Session{
		UserID:        userID,
		Step:          StepAwaitingPhoto1,
		Images:        []string{},
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ImageResult describes what RecordImage did with an incoming image.
type ImageResult int

const (
	// ImageFirstPhoto stored the first photo; the second one is expected next.
	ImageFirstPhoto ImageResult = iota + 1
	// ImageSecondPhoto stored the second photo; the analysis offer is due.
	ImageSecondPhoto
	// ImageOutOfSequence appended the image to the log without changing state.
	ImageOutOfSequence
)

// RecordImage appends ref to the image log and advances photo1 -> photo2 -> offer.
// Photo references are written once and only a new flow clears them.
func (s *Session) RecordImage(ref string) ImageResult {
	s.Images = append(s.Images, ref)
	switch s.Step {
	case StepAwaitingPhoto1:
		s.Photo1Ref = ref
		s.Step = StepAwaitingPhoto2
		return ImageFirstPhoto
	case StepAwaitingPhoto2:
		s.Photo2Ref = ref
		s.Step = StepOfferSent
		return ImageSecondPhoto
	default:
		return ImageOutOfSequence
	}
}

// MidFlow reports whether the user is still expected to send a photo.
func (s *Session) MidFlow() bool {
	if s == nil {
		return false
	}
	return s.Step == StepAwaitingPhoto1 || s.Step == StepAwaitingPhoto2
}

// HasPhotos reports whether both required photos are present.
func (s *Session) HasPhotos() bool {
	return s != nil && s.Photo1Ref != "" && s.Photo2Ref != ""
}

// AttachPaymentLink records a new outstanding link. Any previous link stops routing here.
func (s *Session) AttachPaymentLink(linkID, url string) {
	s.PaymentLinkID = linkID
	s.PaymentLinkURL = url
	s.PaymentStatus = PaymentPending
	s.FullAnalysisPending = true
}

// ApplyPayment moves the payment status according to an authoritative outcome.
// It returns true when an approval should trigger analysis delivery. A verified
// payment only moves again when a new link is attached.
func (s *Session) ApplyPayment(outcome PaymentOutcome) (triggerAnalysis bool, err error) {
	if s.PaymentStatus == PaymentVerified && (outcome == OutcomePending || outcome == OutcomeRejected) {
		return false, ErrPaymentSettled
	}
	switch outcome {
	case OutcomeApproved:
		s.PaymentStatus = PaymentVerified
		return s.FullAnalysisPending, nil
	case OutcomePending:
		s.PaymentStatus = PaymentPending
		return false, nil
	case OutcomeRejected:
		s.PaymentStatus = PaymentRejected
		return false, nil
	default:
		return false, fmt.Errorf("session: unknown payment outcome %q", outcome)
	}
}

// ReadyForAnalysis returns ErrNotReady unless payment is verified and both photos exist.
func (s *Session) ReadyForAnalysis() error {
	if s == nil {
		return fmt.Errorf("%w: no session", ErrNotReady)
	}
	var missing []string
	if s.PaymentStatus != PaymentVerified {
		missing = append(missing, "payment "+string(s.PaymentStatus))
	}
	if s.Photo1Ref == "" {
		missing = append(missing, "photo 1")
	}
	if s.Photo2Ref == "" {
		missing = append(missing, "photo 2")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotReady, strings.Join(missing, ", "))
	}
	return nil
}

// StoreAnalysis keeps a computed analysis for on-demand delivery.
func (s *Session) StoreAnalysis(text string) {
	s.StoredAnalysis = text
	s.FullAnalysisPending = false
}

// TakeStoredAnalysis returns the stored analysis and clears it.
func (s *Session) TakeStoredAnalysis() (string, bool) {
	if s == nil || s.StoredAnalysis == "" {
		return "", false
	}
	text := s.StoredAnalysis
	s.StoredAnalysis = ""
	return text, true
}

// WithinWindow reports whether now is less than window after the flow started.
func (s *Session) WithinWindow(now time.Time, window time.Duration) bool {
	created := s.CreatedAt
	if created.IsZero() {
		created = now
	}
	return now.Sub(created) < window
}

// Expired reports whether the session was last touched more than ttl ago.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	last := s.UpdatedAt
	if last.IsZero() {
		last = s.CreatedAt
	}
	return now.Sub(last) > ttl
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Images = append([]string(nil), s.Images...)
	return &cp
}
