package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/diagnostico-bot/internal/messaging"
	"github.com/wolfman30/diagnostico-bot/internal/messaging/templates"
	"github.com/wolfman30/diagnostico-bot/internal/session"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

var engineTracer = otel.Tracer("diagnostico.internal.conversation")

// ErrMissingSender is returned for events without a sender id.
var ErrMissingSender = errors.New("conversation: event sender required")

// PaymentStarter begins the payment flow for a user. The caller holds the user lock.
type PaymentStarter interface {
	Initiate(ctx context.Context, userID string) error
}

// StoredDeliverer sends an analysis kept for on-demand delivery. The caller holds the user lock.
type StoredDeliverer interface {
	DeliverStored(ctx context.Context, userID string) error
}

// Deps wires the engine's collaborators.
type Deps struct {
	Store     session.Store
	Locks     *session.Locker
	Messenger messaging.Messenger
	Payments  PaymentStarter
	Stored    StoredDeliverer
	Templates *templates.Set
	Profile   messaging.BusinessProfile
	Logger    *logging.Logger
	Now       func() time.Time
}

// Engine interprets inbound chat events against the sender's session.
type Engine struct {
	store     session.Store
	locks     *session.Locker
	messenger messaging.Messenger
	payments  PaymentStarter
	stored    StoredDeliverer
	tmpl      *templates.Set
	profile   messaging.BusinessProfile
	logger    *logging.Logger
	now       func() time.Time
}

// NewEngine builds an Engine. Store, Messenger, Payments and Stored are required.
func NewEngine(d Deps) (*Engine, error) {
	if d.Store == nil || d.Messenger == nil || d.Payments == nil || d.Stored == nil {
		return nil, errors.New("conversation: store, messenger, payments and stored deliverer are required")
	}
	if d.Locks == nil {
		d.Locks = session.NewLocker()
	}
	if d.Templates == nil {
		set, err := templates.NewSet(messaging.TemplateSources)
		if err != nil {
			return nil, fmt.Errorf("conversation: templates: %w", err)
		}
		d.Templates = set
	}
	if d.Profile == (messaging.BusinessProfile{}) {
		d.Profile = messaging.DefaultProfile()
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Engine{
		store:     d.Store,
		locks:     d.Locks,
		messenger: d.Messenger,
		payments:  d.Payments,
		stored:    d.Stored,
		tmpl:      d.Templates,
		profile:   d.Profile,
		logger:    d.Logger,
		now:       d.Now,
	}, nil
}

// Handle processes one inbound event under the sender's lock and marks the
// message read afterwards. A panic in a handler is returned as an error.
func (e *Engine) Handle(ctx context.Context, evt Event) (err error) {
	if strings.TrimSpace(evt.From) == "" {
		return ErrMissingSender
	}
	ctx, span := engineTracer.Start(ctx, "conversation.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.event_type", string(evt.Type)),
		attribute.String("conversation.message_id", evt.MessageID),
	)

	unlock := e.locks.Lock(evt.From)
	defer unlock()
	defer e.markRead(ctx, evt.MessageID)
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("conversation: panic handling %s event: %v", evt.Type, rec)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handle failed")
		}
	}()

	switch evt.Type {
	case EventText:
		return e.handleText(ctx, evt)
	case EventInteractive, EventButton:
		if evt.OptionID == "" {
			return nil
		}
		return e.handleOption(ctx, evt.From, evt.OptionID)
	case EventImage:
		return e.handleImage(ctx, evt.From, evt.MediaID)
	default:
		e.logger.Debug("conversation: unhandled event type", "type", evt.Type)
		return nil
	}
}

func (e *Engine) markRead(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	if err := e.messenger.MarkRead(ctx, messageID); err != nil {
		e.logger.Warn("conversation: mark read failed", "error", err, "message_id", messageID)
	}
}

func (e *Engine) handleText(ctx context.Context, evt Event) error {
	text := Normalize(evt.Text)

	if IsGreeting(text) {
		return e.sendWelcome(ctx, evt.From, evt.SenderName)
	}
	if option, ok := DetectKeyword(text); ok {
		return e.handleOption(ctx, evt.From, option)
	}
	sess, err := e.load(ctx, evt.From)
	if err != nil {
		return err
	}
	if sess.MidFlow() {
		return e.messenger.SendText(ctx, evt.From, messaging.SendImageSeparatelyMessage)
	}
	return e.messenger.SendText(ctx, evt.From, messaging.DefaultMessage)
}

func (e *Engine) handleOption(ctx context.Context, to, option string) error {
	log := e.logger.WithUser(to)
	log.Debug("conversation: option selected", "option", option)

	switch option {
	case messaging.OptionFullAnalysisYes:
		return e.startPayment(ctx, to)
	case messaging.OptionFullAnalysisNo:
		if err := e.messenger.SendText(ctx, to, messaging.NoThanksMessage); err != nil {
			return err
		}
		return e.messenger.SendButtons(ctx, to, messaging.MoreOptionsPrompt, messaging.MoreOptionsButtons())
	case messaging.OptionDiagnostic:
		return e.messenger.SendButtons(ctx, to, messaging.ConfirmDiagnosticMessage, messaging.ConfirmDiagnosticButtons())
	case messaging.OptionConfirmDiagnostic:
		return e.startFlow(ctx, to)
	case messaging.OptionAppointment:
		return e.sendAppointment(ctx, to)
	case messaging.OptionProducts:
		if err := e.messenger.SendText(ctx, to, messaging.ProductsMessage); err != nil {
			return err
		}
		return e.sendHelp(ctx, to)
	case messaging.OptionLocation:
		return e.sendLocation(ctx, to)
	case messaging.OptionFinish:
		return e.messenger.SendText(ctx, to, messaging.FarewellMessage)
	case messaging.OptionMenu:
		return e.messenger.SendList(ctx, to, messaging.MainMenu())
	case messaging.OptionGetFullAnalysis:
		return e.stored.DeliverStored(ctx, to)
	default:
		log.Info("conversation: invalid selection", "option", option)
		return e.messenger.SendText(ctx, to, messaging.InvalidSelectionMessage)
	}
}

// startFlow discards any previous session and asks for the first photo.
func (e *Engine) startFlow(ctx context.Context, to string) error {
	if err := e.store.Save(ctx, session.NewFlow(to, e.now())); err != nil {
		return fmt.Errorf("conversation: start flow: %w", err)
	}
	return e.messenger.SendText(ctx, to, messaging.FirstPhotoMessage)
}

func (e *Engine) startPayment(ctx context.Context, to string) error {
	sess, err := e.load(ctx, to)
	if err != nil {
		return err
	}
	if !sess.HasPhotos() {
		e.logger.WithUser(to).Info("conversation: payment requested without photos")
		return e.messenger.SendText(ctx, to, messaging.PhotosRequiredMessage)
	}
	return e.payments.Initiate(ctx, to)
}

func (e *Engine) handleImage(ctx context.Context, to, mediaID string) error {
	if err := e.recordImage(ctx, to, mediaID); err != nil {
		e.logger.WithUser(to).Error("conversation: image handling failed", "error", err, "media_id", mediaID)
		if sendErr := e.messenger.SendText(ctx, to, messaging.ImageErrorMessage); sendErr != nil {
			return errors.Join(err, sendErr)
		}
		return err
	}
	return nil
}

func (e *Engine) recordImage(ctx context.Context, to, mediaID string) error {
	if mediaID == "" {
		return errors.New("conversation: image without media id")
	}
	sess, err := e.load(ctx, to)
	if err != nil {
		return err
	}
	if sess == nil || sess.Step == session.StepNone {
		sess = session.NewFlow(to, e.now())
	}

	result := sess.RecordImage(mediaID)
	if err := e.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("conversation: save image: %w", err)
	}

	switch result {
	case session.ImageFirstPhoto:
		return e.messenger.SendText(ctx, to, messaging.SecondPhotoMessage)
	case session.ImageSecondPhoto:
		return e.messenger.SendButtons(ctx, to, messaging.OfferFullAnalysisMessage, messaging.OfferButtons())
	default:
		e.logger.WithUser(to).Info("conversation: image outside photo steps", "step", sess.Step, "images", len(sess.Images))
		return e.messenger.SendText(ctx, to, messaging.ExtraImageMessage)
	}
}

func (e *Engine) sendWelcome(ctx context.Context, to, name string) error {
	if strings.TrimSpace(name) == "" {
		name = to
	}
	text, err := e.tmpl.Render(messaging.WelcomeTemplate, map[string]string{"Name": name})
	if err != nil {
		return fmt.Errorf("conversation: render welcome: %w", err)
	}
	if err := e.messenger.SendText(ctx, to, text); err != nil {
		return err
	}
	return e.messenger.SendList(ctx, to, messaging.MainMenu())
}

func (e *Engine) sendAppointment(ctx context.Context, to string) error {
	if err := e.messenger.SendText(ctx, to, messaging.AppointmentMessage); err != nil {
		return err
	}
	if err := e.messenger.SendContact(ctx, to, e.profile.Contact); err != nil {
		return err
	}
	return e.sendHelp(ctx, to)
}

func (e *Engine) sendLocation(ctx context.Context, to string) error {
	if err := e.messenger.SendLocation(ctx, to, e.profile.Location); err != nil {
		return err
	}
	if e.profile.Hours != "" {
		if err := e.messenger.SendText(ctx, to, e.profile.Hours); err != nil {
			return err
		}
	}
	return e.sendHelp(ctx, to)
}

func (e *Engine) sendHelp(ctx context.Context, to string) error {
	return e.messenger.SendButtons(ctx, to, messaging.HelpPrompt, messaging.HelpButtons())
}

// load returns the session or nil when the user has none.
func (e *Engine) load(ctx context.Context, userID string) (*session.Session, error) {
	sess, err := e.store.Get(ctx, userID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	return sess, nil
}
