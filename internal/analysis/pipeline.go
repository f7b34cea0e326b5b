package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/diagnostico-bot/internal/messaging"
	"github.com/wolfman30/diagnostico-bot/internal/observability/metrics"
	"github.com/wolfman30/diagnostico-bot/internal/session"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

var tracer = otel.Tracer("diagnostico.internal.analysis")

// ErrPreconditionNotMet is returned when delivery is asked for a session that
// has not paid or is missing a photo.
var ErrPreconditionNotMet = errors.New("analysis: delivery preconditions not met")

// Outcome is the result of one Deliver call.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeDeferred Outcome = "deferred"
	OutcomeAborted  Outcome = "aborted"
)

const defaultWindow = 24 * time.Hour

// Downloader fetches a WhatsApp media object to a local file.
type Downloader interface {
	DownloadMedia(ctx context.Context, mediaID string) (string, error)
}

// PipelineDeps wires the delivery pipeline.
type PipelineDeps struct {
	Store      session.Store
	Messenger  messaging.Messenger
	Downloader Downloader
	Analyzer   Analyzer
	// Window is the free-form reply window measured from the flow start.
	Window      time.Duration
	Instruction string
	Metrics     *metrics.BotMetrics
	Logger      *logging.Logger
	Now         func() time.Time
}

// Pipeline downloads the photos, runs the analysis and delivers it directly
// or through the re-engagement template.
type Pipeline struct {
	store       session.Store
	messenger   messaging.Messenger
	downloader  Downloader
	analyzer    Analyzer
	window      time.Duration
	instruction string
	metrics     *metrics.BotMetrics
	logger      *logging.Logger
	now         func() time.Time
	remove      func(string) error
}

func NewPipeline(d PipelineDeps) (*Pipeline, error) {
	if d.Store == nil || d.Messenger == nil || d.Downloader == nil || d.Analyzer == nil {
		return nil, errors.New("analysis: store, messenger, downloader and analyzer are required")
	}
	if d.Window <= 0 {
		d.Window = defaultWindow
	}
	if d.Instruction == "" {
		d.Instruction = FullAnalysisInstruction
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Pipeline{
		store:       d.Store,
		messenger:   d.Messenger,
		downloader:  d.Downloader,
		analyzer:    d.Analyzer,
		window:      d.Window,
		instruction: d.Instruction,
		metrics:     d.Metrics,
		logger:      d.Logger,
		now:         d.Now,
		remove:      os.Remove,
	}, nil
}

// Deliver runs the analysis for a paid session. The caller holds the user lock.
// On abort the session is left as it was so a later approval can retry.
func (p *Pipeline) Deliver(ctx context.Context, userID string) (outcome Outcome, err error) {
	ctx, span := tracer.Start(ctx, "analysis.deliver")
	defer span.End()
	start := time.Now()
	log := p.logger.WithUser(userID)

	defer func() {
		span.SetAttributes(attribute.String("analysis.outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(outcome))
		}
		p.metrics.ObserveAnalysis(string(outcome))
		p.metrics.ObserveAnalysisLatency(time.Since(start).Seconds())
	}()

	sess, err := p.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return OutcomeAborted, fmt.Errorf("analysis: load session: %w", err)
	}
	if err != nil {
		sess = nil
	}
	if readyErr := sess.ReadyForAnalysis(); readyErr != nil {
		log.Warn("analysis skipped", "reason", readyErr)
		return OutcomeAborted, fmt.Errorf("%w: %v", ErrPreconditionNotMet, readyErr)
	}

	paths, err := p.download(ctx, sess)
	defer p.cleanup(log, paths)
	if err != nil {
		log.Error("analysis photo download failed", "error", err)
		return OutcomeAborted, p.apologise(ctx, userID, messaging.DownloadFailedMessage, err)
	}

	images := make([]Image, 0, len(paths))
	for _, path := range paths {
		images = append(images, Image{Path: path})
	}
	text, err := p.analyzer.Analyze(ctx, images, p.instruction)
	if err == nil && text == "" {
		err = errors.New("analysis: empty result")
	}
	if err != nil {
		log.Error("analysis failed", "error", err)
		return OutcomeAborted, p.apologise(ctx, userID, messaging.AnalysisFailedMessage, err)
	}

	if sess.WithinWindow(p.now(), p.window) {
		if err := p.messenger.SendText(ctx, userID, text); err != nil {
			return OutcomeAborted, fmt.Errorf("analysis: send result: %w", err)
		}
		if err := p.messenger.SendButtons(ctx, userID, messaging.MoreOptionsPrompt, messaging.MoreOptionsButtons()); err != nil {
			log.Warn("analysis follow-up buttons failed", "error", err)
		}
		if err := p.store.Delete(ctx, userID); err != nil {
			log.Warn("analysis session cleanup failed", "error", err)
		}
		log.Info("analysis delivered")
		return OutcomeSent, nil
	}

	sess.StoreAnalysis(text)
	if err := p.store.Save(ctx, sess); err != nil {
		return OutcomeAborted, fmt.Errorf("analysis: store result: %w", err)
	}
	if err := p.messenger.SendTemplate(ctx, userID, messaging.AnalysisReadyTemplate()); err != nil {
		log.Warn("analysis ready template failed", "error", err)
	}
	log.Info("analysis stored for on-demand delivery")
	return OutcomeDeferred, nil
}

// DeliverStored sends an analysis kept by a deferred delivery. The caller holds the user lock.
func (p *Pipeline) DeliverStored(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "analysis.deliver_stored")
	defer span.End()

	sess, err := p.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		span.RecordError(err)
		return fmt.Errorf("analysis: load session: %w", err)
	}
	if err != nil {
		sess = nil
	}
	text, ok := sess.TakeStoredAnalysis()
	if !ok {
		return p.messenger.SendText(ctx, userID, messaging.NoStoredAnalysisMessage)
	}
	if err := p.messenger.SendText(ctx, userID, text); err != nil {
		return fmt.Errorf("analysis: send stored result: %w", err)
	}
	if err := p.store.Save(ctx, sess); err != nil {
		p.logger.WithUser(userID).Warn("stored analysis clear failed", "error", err)
	}
	p.metrics.ObserveAnalysis("stored_sent")
	return p.messenger.SendButtons(ctx, userID, messaging.MoreOptionsPrompt, messaging.MoreOptionsButtons())
}

// download fetches both photos in parallel and returns the paths it obtained,
// including partial results on failure so they can be removed.
func (p *Pipeline) download(ctx context.Context, sess *session.Session) ([]string, error) {
	refs := []string{sess.Photo1Ref, sess.Photo2Ref}
	paths := make([]string, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			path, err := p.downloader.DownloadMedia(gctx, ref)
			if err != nil {
				return fmt.Errorf("photo %d: %w", i+1, err)
			}
			paths[i] = path
			return nil
		})
	}
	err := g.Wait()

	got := make([]string, 0, len(paths))
	for _, path := range paths {
		if path != "" {
			got = append(got, path)
		}
	}
	return got, err
}

func (p *Pipeline) cleanup(log *logging.Logger, paths []string) {
	for _, path := range paths {
		if err := p.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove analysis photo", "error", err, "path", path)
		}
	}
}

func (p *Pipeline) apologise(ctx context.Context, userID, text string, cause error) error {
	if err := p.messenger.SendText(ctx, userID, text); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
