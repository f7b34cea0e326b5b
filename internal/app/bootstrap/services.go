package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/diagnostico-bot/internal/analysis"
	appconfig "github.com/wolfman30/diagnostico-bot/internal/config"
	"github.com/wolfman30/diagnostico-bot/internal/payments"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

var (
	errAnalyzerDisabled = errors.New("bootstrap: GEMINI_API_KEY not configured")
	errPaymentsDisabled = errors.New("bootstrap: BOLD_API_KEY not configured")
)

type disabledAnalyzer struct{}

func (disabledAnalyzer) Analyze(context.Context, []analysis.Image, string) (string, error) {
	return "", errAnalyzerDisabled
}

type disabledLinks struct{}

func (disabledLinks) CreateLink(context.Context, payments.LinkRequest) (*payments.Link, error) {
	return nil, errPaymentsDisabled
}

// BuildAnalyzer returns the Gemini analyzer and a close func. Without an API
// key every analysis fails so users get the apology message instead of silence.
func BuildAnalyzer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (analysis.Analyzer, func() error, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() error { return nil }
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		logger.Warn("gemini analyzer disabled")
		return disabledAnalyzer{}, noop, nil
	}
	analyzer, err := analysis.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: gemini analyzer: %w", err)
	}
	logger.Info("gemini analyzer enabled", "model", cfg.GeminiModelID)
	return analyzer, analyzer.Close, nil
}

// BuildLinkCreator returns the Bold payment link client, or a creator that
// always fails when no API key is set.
func BuildLinkCreator(cfg *appconfig.Config, logger *logging.Logger) (payments.LinkCreator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.BoldAPIKey) == "" {
		logger.Warn("bold payment links disabled")
		return disabledLinks{}, nil
	}
	imageURL := ""
	if cfg.PublicBaseURL != "" {
		imageURL = cfg.PublicBaseURL + "/images/diagnostico.jpg"
	}
	client, err := payments.NewBoldClient(payments.BoldConfig{
		APIKey:   cfg.BoldAPIKey,
		LinkURL:  cfg.BoldAPILinkURL,
		ImageURL: imageURL,
		LinkTTL:  cfg.PaymentLinkTTL,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: bold client: %w", err)
	}
	return client, nil
}

// BuildPrice maps payment settings onto the coordinator price.
func BuildPrice(cfg *appconfig.Config) payments.Price {
	if cfg == nil {
		return payments.Price{}
	}
	return payments.Price{
		Amount:      cfg.PaymentAmount,
		Currency:    cfg.PaymentCurrency,
		Description: cfg.PaymentDescription,
	}
}
