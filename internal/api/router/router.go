package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/diagnostico-bot/internal/channels/whatsapp"
	httpmiddleware "github.com/wolfman30/diagnostico-bot/internal/http/middleware"
	"github.com/wolfman30/diagnostico-bot/internal/payments"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

const banner = "<pre>Nothing to see here.</pre>"

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	WhatsAppWebhook    *whatsapp.WebhookHandler
	BoldWebhook        *payments.BoldWebhookHandler
	Confirmation       *payments.ConfirmationHandler
	MetricsHandler     http.Handler
	StaticDir          string
	CORSAllowedOrigins []string
	WebhookLimiter     *httpmiddleware.RateLimiter
	// Ready reports backend health for /health; nil means always healthy.
	Ready func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(banner))
	})
	r.Get("/health", healthHandler(cfg.Ready))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.StaticDir != "" {
		r.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.StaticDir))))
	}

	// Provider webhooks and the checkout redirect
	r.Group(func(hooks chi.Router) {
		if cfg.WebhookLimiter != nil {
			hooks.Use(cfg.WebhookLimiter.Middleware)
		}
		if cfg.WhatsAppWebhook != nil {
			hooks.Get("/webhook", cfg.WhatsAppWebhook.HandleVerification)
			hooks.Post("/webhook", cfg.WhatsAppWebhook.HandleInbound)
		}
		if cfg.BoldWebhook != nil {
			hooks.Post("/webhook/bold", cfg.BoldWebhook.Handle)
		}
		if cfg.Confirmation != nil {
			hooks.Get("/payment/confirmation", cfg.Confirmation.Handle)
		}
	})

	return r
}

func healthHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status, code := "ok", http.StatusOK
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
