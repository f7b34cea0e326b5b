package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/diagnostico-bot/internal/analysis"
	"github.com/wolfman30/diagnostico-bot/internal/messaging"
	"github.com/wolfman30/diagnostico-bot/internal/messaging/templates"
	"github.com/wolfman30/diagnostico-bot/internal/observability/metrics"
	"github.com/wolfman30/diagnostico-bot/internal/session"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

var paymentsTracer = otel.Tracer("diagnostico.internal.payments")

var (
	// ErrUnresolvableCorrelation is returned when no session owns the payment link of an event.
	ErrUnresolvableCorrelation = errors.New("payments: no session for payment correlation")
	// ErrNoOutstandingPayment is returned when a confirmation arrives for a session without a live link.
	ErrNoOutstandingPayment = errors.New("payments: session has no outstanding payment link")
	// ErrLinkMismatch is returned when a confirmation names a link other than the session's live one.
	ErrLinkMismatch = errors.New("payments: confirmation does not match the outstanding payment link")
)

// EventType is a Bold webhook event type.
type EventType string

const (
	EventSaleApproved EventType = "SALE_APPROVED"
	EventSalePending  EventType = "SALE_PENDING"
	EventSaleRejected EventType = "SALE_REJECTED"
)

// Outcome maps the event type to a payment outcome.
func (t EventType) Outcome() (session.PaymentOutcome, bool) {
	switch t {
	case EventSaleApproved:
		return session.OutcomeApproved, true
	case EventSalePending:
		return session.OutcomePending, true
	case EventSaleRejected:
		return session.OutcomeRejected, true
	default:
		return "", false
	}
}

// PaymentEvent is an asynchronous provider notification.
type PaymentEvent struct {
	Type    EventType
	EventID string
	// CorrelationIDs are candidate payment link ids in priority order.
	CorrelationIDs []string
	PaymentID      string
}

// Confirmation is the synchronous redirect callback after checkout.
type Confirmation struct {
	Status    string
	PaymentID string
	// LinkID is the payment link the checkout redirect refers to, when Bold sends it.
	LinkID    string
	UserID    string
}

// Outcome maps the callback status: success or approved is an approval,
// pending stays pending, anything else is a rejection.
func (c Confirmation) Outcome() session.PaymentOutcome {
	switch strings.ToLower(strings.TrimSpace(c.Status)) {
	case "success", "approved":
		return session.OutcomeApproved
	case "pending":
		return session.OutcomePending
	default:
		return session.OutcomeRejected
	}
}

// LinkCreator creates payment links.
type LinkCreator interface {
	CreateLink(ctx context.Context, req LinkRequest) (*Link, error)
}

// AnalysisDeliverer runs the analysis pipeline. The caller holds the user lock.
type AnalysisDeliverer interface {
	Deliver(ctx context.Context, userID string) (analysis.Outcome, error)
}

// Price is the fixed charge for the full analysis.
type Price struct {
	Amount      int
	Currency    string
	Description string
}

// CoordinatorDeps wires the coordinator.
type CoordinatorDeps struct {
	Store     session.Store
	Locks     *session.Locker
	Messenger messaging.Messenger
	Links     LinkCreator
	Analysis  AnalysisDeliverer
	Templates *templates.Set
	Price     Price
	Metrics   *metrics.BotMetrics
	Logger    *logging.Logger
}

// Coordinator owns the payment half of the session state machine.
type Coordinator struct {
	store     session.Store
	locks     *session.Locker
	messenger messaging.Messenger
	links     LinkCreator
	analysis  AnalysisDeliverer
	tmpl      *templates.Set
	price     Price
	metrics   *metrics.BotMetrics
	logger    *logging.Logger
}

func NewCoordinator(d CoordinatorDeps) (*Coordinator, error) {
	if d.Store == nil || d.Messenger == nil || d.Links == nil || d.Analysis == nil {
		return nil, errors.New("payments: store, messenger, link creator and analysis deliverer are required")
	}
	if d.Locks == nil {
		d.Locks = session.NewLocker()
	}
	if d.Templates == nil {
		set, err := templates.NewSet(messaging.TemplateSources)
		if err != nil {
			return nil, fmt.Errorf("payments: templates: %w", err)
		}
		d.Templates = set
	}
	if d.Price.Amount <= 0 {
		d.Price.Amount = 5000
	}
	if d.Price.Currency == "" {
		d.Price.Currency = "COP"
	}
	if d.Price.Description == "" {
		d.Price.Description = "Diagnóstico Capilar"
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	return &Coordinator{
		store:     d.Store,
		locks:     d.Locks,
		messenger: d.Messenger,
		links:     d.Links,
		analysis:  d.Analysis,
		tmpl:      d.Templates,
		price:     d.Price,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}, nil
}

// Initiate creates a payment link for the user and sends it. The caller holds
// the user lock. When the link cannot be created the session is left untouched
// and the user gets an apology.
func (c *Coordinator) Initiate(ctx context.Context, userID string) error {
	ctx, span := paymentsTracer.Start(ctx, "payments.initiate")
	defer span.End()
	log := c.logger.WithUser(userID)

	sess, err := c.store.Get(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("payments: load session: %w", err)
	}

	link, err := c.links.CreateLink(ctx, LinkRequest{
		Amount:      c.price.Amount,
		Currency:    c.price.Currency,
		Description: c.price.Description,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create link failed")
		log.Error("payment link creation failed", "error", err)
		c.metrics.ObservePaymentEvent("link", "failed")
		return c.messenger.SendText(ctx, userID, messaging.PaymentLinkFailedMessage)
	}

	sess.AttachPaymentLink(link.ID, link.URL)
	if err := c.store.Save(ctx, sess); err != nil {
		span.RecordError(err)
		log.Error("payment link save failed", "error", err, "payment_link", link.ID)
		if sendErr := c.messenger.SendText(ctx, userID, messaging.PaymentLinkFailedMessage); sendErr != nil {
			return errors.Join(err, sendErr)
		}
		return fmt.Errorf("payments: save link: %w", err)
	}
	span.SetAttributes(attribute.String("payments.link_id", link.ID))
	log.Info("payment link created", "payment_link", link.ID)
	c.metrics.ObservePaymentEvent("link", "created")

	text, err := c.tmpl.Render(messaging.PaymentLinkTemplate, map[string]string{"Link": link.URL})
	if err != nil {
		return fmt.Errorf("payments: render link: %w", err)
	}
	return c.messenger.SendText(ctx, userID, text)
}

// HandleEvent applies an asynchronous provider event to the session owning its
// payment link. Events whose link is unknown or superseded return
// ErrUnresolvableCorrelation and send nothing.
func (c *Coordinator) HandleEvent(ctx context.Context, evt PaymentEvent) error {
	ctx, span := paymentsTracer.Start(ctx, "payments.handle_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("payments.event_type", string(evt.Type)),
		attribute.String("payments.event_id", evt.EventID),
	)

	outcome, ok := evt.Type.Outcome()
	if !ok {
		c.logger.Warn("payment event type not handled", "type", evt.Type, "event_id", evt.EventID)
		c.metrics.ObservePaymentEvent(string(evt.Type), "ignored")
		return nil
	}

	userID, linkID, err := c.resolve(ctx, evt.CorrelationIDs)
	if err != nil {
		if errors.Is(err, ErrUnresolvableCorrelation) {
			c.logger.Warn("payment event correlation unresolved", "candidates", evt.CorrelationIDs, "event_id", evt.EventID)
			c.metrics.ObservePaymentEvent(string(outcome), "unresolved")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolve failed")
		}
		return err
	}

	unlock := c.locks.Lock(userID)
	defer unlock()

	sess, err := c.store.Get(ctx, userID)
	if errors.Is(err, session.ErrNotFound) {
		c.metrics.ObservePaymentEvent(string(outcome), "unresolved")
		return fmt.Errorf("%w: session for link %s removed", ErrUnresolvableCorrelation, linkID)
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("payments: load session: %w", err)
	}
	if sess.PaymentLinkID != linkID {
		c.logger.WithUser(userID).Warn("payment event for superseded link", "payment_link", linkID, "current_link", sess.PaymentLinkID)
		c.metrics.ObservePaymentEvent(string(outcome), "stale")
		return fmt.Errorf("%w: link %s superseded", ErrUnresolvableCorrelation, linkID)
	}

	if err := c.apply(ctx, sess, outcome, evt.PaymentID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		return err
	}
	return nil
}

// Confirm applies the checkout redirect callback for a user and returns the
// outcome it mapped to.
func (c *Coordinator) Confirm(ctx context.Context, conf Confirmation) (session.PaymentOutcome, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.confirm")
	defer span.End()

	outcome := conf.Outcome()
	span.SetAttributes(attribute.String("payments.outcome", string(outcome)))

	unlock := c.locks.Lock(conf.UserID)
	defer unlock()

	sess, err := c.store.Get(ctx, conf.UserID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			span.RecordError(err)
		}
		return outcome, fmt.Errorf("payments: confirmation session: %w", err)
	}
	if sess.PaymentLinkID == "" {
		c.logger.WithUser(conf.UserID).Warn("payment confirmation without outstanding link", "status", conf.Status)
		c.metrics.ObservePaymentEvent(string(outcome), "no_link")
		return outcome, ErrNoOutstandingPayment
	}
	if linkID := strings.TrimSpace(conf.LinkID); linkID != "" && linkID != sess.PaymentLinkID {
		c.logger.WithUser(conf.UserID).Warn("payment confirmation for a different link",
			"link_id", linkID, "outstanding_link_id", sess.PaymentLinkID, "payment_id", conf.PaymentID)
		c.metrics.ObservePaymentEvent(string(outcome), "link_mismatch")
		return outcome, ErrLinkMismatch
	}
	if conf.LinkID == "" {
		c.logger.WithUser(conf.UserID).Debug("payment confirmation without link id",
			"outstanding_link_id", sess.PaymentLinkID, "payment_id", conf.PaymentID)
	}

	if err := c.apply(ctx, sess, outcome, conf.PaymentID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		return outcome, err
	}
	return outcome, nil
}

// resolve walks the candidates in order and returns the first one with an
// owning session.
func (c *Coordinator) resolve(ctx context.Context, candidates []string) (userID, linkID string, err error) {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		sess, err := c.store.FindByPaymentLink(ctx, candidate)
		if errors.Is(err, session.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("payments: resolve %s: %w", candidate, err)
		}
		return sess.UserID, candidate, nil
	}
	return "", "", ErrUnresolvableCorrelation
}

// apply is the single payment transition shared by webhook events and the
// confirmation callback. The caller holds the user lock.
func (c *Coordinator) apply(ctx context.Context, sess *session.Session, outcome session.PaymentOutcome, paymentID string) error {
	log := c.logger.WithUser(sess.UserID)

	if outcome == session.OutcomeApproved && sess.PaymentStatus == session.PaymentVerified && !sess.FullAnalysisPending {
		log.Info("repeated payment approval absorbed", "payment_id", paymentID)
		c.metrics.ObservePaymentEvent(string(outcome), "duplicate")
		return nil
	}

	trigger, err := sess.ApplyPayment(outcome)
	if errors.Is(err, session.ErrPaymentSettled) {
		log.Warn("payment outcome dropped for verified payment", "outcome", outcome, "payment_id", paymentID)
		c.metrics.ObservePaymentEvent(string(outcome), "settled")
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("payments: save status: %w", err)
	}
	log.Info("payment status updated", "outcome", outcome, "status", sess.PaymentStatus, "payment_id", paymentID)
	c.metrics.ObservePaymentEvent(string(outcome), "applied")

	switch outcome {
	case session.OutcomePending:
		return c.messenger.SendText(ctx, sess.UserID, messaging.PaymentPendingMessage)
	case session.OutcomeRejected:
		return c.messenger.SendText(ctx, sess.UserID, messaging.PaymentRejectedMessage)
	}

	if err := c.messenger.SendText(ctx, sess.UserID, messaging.PaymentApprovedMessage); err != nil {
		log.Warn("payment approval notice failed", "error", err)
	}
	if !trigger {
		return nil
	}
	delivered, err := c.analysis.Deliver(ctx, sess.UserID)
	if err != nil {
		log.Error("analysis delivery failed", "error", err, "outcome", delivered)
		return nil
	}
	log.Info("analysis delivery finished", "outcome", delivered)
	return nil
}
