package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/diagnostico-bot/internal/analysis"
	"github.com/wolfman30/diagnostico-bot/internal/channels/whatsapp/whatsapptest"
	"github.com/wolfman30/diagnostico-bot/internal/messaging"
	"github.com/wolfman30/diagnostico-bot/internal/session"
)

const user = "573001112233"

type stubLinks struct {
	links    []*Link
	err      error
	requests []LinkRequest
}

func (s *stubLinks) CreateLink(_ context.Context, req LinkRequest) (*Link, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	link := s.links[0]
	if len(s.links) > 1 {
		s.links = s.links[1:]
	}
	return link, nil
}

// stubDeliverer defers the analysis like the real pipeline does outside the reply window.
type stubDeliverer struct {
	store session.Store
	calls []string
	err   error
}

func (s *stubDeliverer) Deliver(ctx context.Context, userID string) (analysis.Outcome, error) {
	s.calls = append(s.calls, userID)
	if s.err != nil {
		return analysis.OutcomeAborted, s.err
	}
	sess, err := s.store.Get(ctx, userID)
	if err != nil {
		return analysis.OutcomeAborted, err
	}
	sess.StoreAnalysis("análisis")
	return analysis.OutcomeDeferred, s.store.Save(ctx, sess)
}

type coordFixture struct {
	coord *Coordinator
	store *session.MemoryStore
	rec   *whatsapptest.Recorder
	links *stubLinks
	deliv *stubDeliverer
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()
	store := session.NewMemoryStore()
	f := &coordFixture{
		store: store,
		rec:   whatsapptest.New(""),
		links: &stubLinks{links: []*Link{
			{ID: "LNK_1", URL: "https://checkout.bold.co/payment/LNK_1"},
			{ID: "LNK_2", URL: "https://checkout.bold.co/payment/LNK_2"},
		}},
		deliv: &stubDeliverer{store: store},
	}
	coord, err := NewCoordinator(CoordinatorDeps{
		Store:     f.store,
		Messenger: f.rec,
		Links:     f.links,
		Analysis:  f.deliv,
		Price:     Price{Amount: 5000, Currency: "COP", Description: "Diagnóstico Capilar"},
	})
	require.NoError(t, err)
	f.coord = coord
	return f
}

// withPhotos stores a session that has just been offered the full analysis.
func (f *coordFixture) withPhotos(t *testing.T) {
	t.Helper()
	sess := session.NewFlow(user, time.Now())
	sess.RecordImage("MEDIA_1")
	sess.RecordImage("MEDIA_2")
	require.NoError(t, f.store.Save(context.Background(), sess))
}

func (f *coordFixture) initiated(t *testing.T) {
	t.Helper()
	f.withPhotos(t)
	require.NoError(t, f.coord.Initiate(context.Background(), user))
	f.rec.Reset()
}

func (f *coordFixture) event(typ EventType, ids ...string) error {
	return f.coord.HandleEvent(context.Background(), PaymentEvent{Type: typ, EventID: "evt-" + string(typ), CorrelationIDs: ids})
}

func TestNewCoordinatorRequiresCollaborators(t *testing.T) {
	_, err := NewCoordinator(CoordinatorDeps{})
	assert.Error(t, err)
}

func TestInitiateSendsLinkAndIndexesSession(t *testing.T) {
	f := newCoordFixture(t)
	f.withPhotos(t)

	require.NoError(t, f.coord.Initiate(context.Background(), user))

	texts := f.rec.Texts(user)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "https://checkout.bold.co/payment/LNK_1")
	assert.Equal(t, []LinkRequest{{Amount: 5000, Currency: "COP", Description: "Diagnóstico Capilar"}}, f.links.requests)

	sess, err := f.store.FindByPaymentLink(context.Background(), "LNK_1")
	require.NoError(t, err)
	assert.Equal(t, user, sess.UserID)
	assert.Equal(t, session.PaymentPending, sess.PaymentStatus)
	assert.True(t, sess.FullAnalysisPending)
}

func TestInitiateFailureLeavesSessionUntouched(t *testing.T) {
	f := newCoordFixture(t)
	f.withPhotos(t)
	f.links.err = errors.New("bold down")

	require.NoError(t, f.coord.Initiate(context.Background(), user))
	assert.Equal(t, []string{messaging.PaymentLinkFailedMessage}, f.rec.Texts(user))

	sess, err := f.store.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Empty(t, sess.PaymentLinkID)
	assert.False(t, sess.FullAnalysisPending)
}

func TestApprovedEventDeliversOnce(t *testing.T) {
	f := newCoordFixture(t)
	f.initiated(t)

	require.NoError(t, f.event(EventSaleApproved, "LNK_1"))
	assert.Equal(t, []string{messaging.PaymentApprovedMessage}, f.rec.Texts(user))
	assert.Equal(t, []string{user}, f.deliv.calls)

	sess, err := f.store.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, session.PaymentVerified, sess.PaymentStatus)

	f.rec.Reset()
	require.NoError(t, f.event(EventSaleApproved, "LNK_1"))
	assert.Empty(t, f.rec.Sent(), "repeated approval is absorbed")
	assert.Len(t, f.deliv.calls, 1)
}

func TestRejectedAndPendingEvents(t *testing.T) {
	f := newCoordFixture(t)
	f.initiated(t)

	require.NoError(t, f.event(EventSalePending, "LNK_1"))
	require.NoError(t, f.event(EventSaleRejected, "LNK_1"))

	assert.Equal(t, []string{messaging.PaymentPendingMessage, messaging.PaymentRejectedMessage}, f.rec.Texts(user))
	assert.Empty(t, f.deliv.calls)

	sess, err := f.store.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, session.PaymentRejected, sess.PaymentStatus)
}

func TestUnresolvableCorrelationSendsNothing(t *testing.T) {
	f := newCoordFixture(t)
	f.initiated(t)

	err := f.event(EventSaleApproved, "LNK_UNKNOWN")
	assert.ErrorIs(t, err, ErrUnresolvableCorrelation)
	err = f.event(EventSaleApproved)
	assert.ErrorIs(t, err, ErrUnresolvableCorrelation)

	assert.Empty(t, f.rec.Sent())
	assert.Empty(t, f.deliv.calls)
}

func TestCorrelationCandidatesAreTriedInOrder(t *testing.T) {
	f := newCoordFixture(t)
	f.initiated(t)

	require.NoError(t, f.event(EventSaleRejected, "ref-not-a-link", "", "LNK_1"))
	assert.Equal(t, []string{messaging.PaymentRejectedMessage}, f.rec.Texts(user))
}

func TestSupersededLinkStopsRouting(t *testing.T) {
	f := newCoordFixture(t)
	f.initiated(t)
	require.NoError(t, f.coord.Initiate(context.Background(), user))
	f.rec.Reset()

	err := f.event(EventSaleApproved, "LNK_1")
	assert.ErrorIs(t, err, ErrUnresolvableCorrelation)
	assert.Empty(t, f.rec.Sent())

	require.NoError(t, f.event(EventSaleApproved, "LNK_2"))
	assert.Equal(t, []string{user}, f.deliv.calls)
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	f := newCoordFixture(t)
	f.initiated(t)

	require.NoError(t, f.event(EventType("SALE_VOIDED"), "LNK_1"))
	assert.Empty(t, f.rec.Sent())
}

func TestDeliveryFailureDoesNotFailEvent(t *testing.T) {
	f := newCoordFixture(t)
	f.initiated(t)
	f.deliv.err = errors.New("gemini down")

	require.NoError(t, f.event(EventSaleApproved, "LNK_1"))
	assert.Len(t, f.deliv.calls, 1)
}

func TestConfirmSharesTransition(t *testing.T) {
	tests := []struct {
		status  string
		outcome session.PaymentOutcome
		text    string
		deliver bool
	}{
		{"success", session.OutcomeApproved, messaging.PaymentApprovedMessage, true},
		{"APPROVED", session.OutcomeApproved, messaging.PaymentApprovedMessage, true},
		{"pending", session.OutcomePending, messaging.PaymentPendingMessage, false},
		{"failure", session.OutcomeRejected, messaging.PaymentRejectedMessage, false},
		{"", session.OutcomeRejected, messaging.PaymentRejectedMessage, false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := newCoordFixture(t)
			f.initiated(t)

			outcome, err := f.coord.Confirm(context.Background(), Confirmation{Status: tt.status, PaymentID: "pay-1", UserID: user})
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, []string{tt.text}, f.rec.Texts(user))
			assert.Equal(t, tt.deliver, len(f.deliv.calls) == 1)
		})
	}
}

func TestConfirmWithoutSessionOrLink(t *testing.T) {
	f := newCoordFixture(t)

	_, err := f.coord.Confirm(context.Background(), Confirmation{Status: "success", UserID: user})
	assert.ErrorIs(t, err, session.ErrNotFound)

	f.withPhotos(t)
	_, err = f.coord.Confirm(context.Background(), Confirmation{Status: "success", UserID: user})
	assert.ErrorIs(t, err, ErrNoOutstandingPayment)

	sess, err := f.store.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, session.PaymentPending, sess.PaymentStatus, "confirmation without a link never verifies")
	assert.Empty(t, f.rec.Sent())
}

func TestEventAndConfirmationAreIdempotentTogether(t *testing.T) {
	f := newCoordFixture(t)
	f.initiated(t)

	require.NoError(t, f.event(EventSaleApproved, "LNK_1"))
	_, err := f.coord.Confirm(context.Background(), Confirmation{Status: "success", UserID: user})
	require.NoError(t, err)

	assert.Len(t, f.deliv.calls, 1)
	approvals := 0
	for _, text := range f.rec.Texts(user) {
		if strings.Contains(text, "Pago exitoso") {
			approvals++
		}
	}
	assert.Equal(t, 1, approvals)
}

func TestLateOutcomesKeepVerifiedPayment(t *testing.T) {
	f := newCoordFixture(t)
	f.initiated(t)

	require.NoError(t, f.event(EventSaleApproved, "LNK_1"))
	f.rec.Reset()

	require.NoError(t, f.event(EventSaleRejected, "LNK_1"))
	require.NoError(t, f.event(EventSalePending, "LNK_1"))
	outcome, err := f.coord.Confirm(context.Background(), Confirmation{Status: "failed", UserID: user})
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeRejected, outcome)

	assert.Empty(t, f.rec.Sent(), "a paid customer is never told the payment failed")
	sess, err := f.store.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, session.PaymentVerified, sess.PaymentStatus)
	assert.Equal(t, "análisis", sess.StoredAnalysis)
	assert.Len(t, f.deliv.calls, 1)
}

func TestConfirmRejectsOtherLink(t *testing.T) {
	f := newCoordFixture(t)
	f.initiated(t)

	_, err := f.coord.Confirm(context.Background(), Confirmation{Status: "success", LinkID: "LNK_OLD", UserID: user})
	assert.ErrorIs(t, err, ErrLinkMismatch)
	assert.Empty(t, f.rec.Sent())
	assert.Empty(t, f.deliv.calls)

	_, err = f.coord.Confirm(context.Background(), Confirmation{Status: "success", LinkID: "LNK_1", UserID: user})
	require.NoError(t, err)
	assert.Equal(t, []string{user}, f.deliv.calls)
}
