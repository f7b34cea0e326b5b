package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/diagnostico-bot/internal/session"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

// Confirmer applies checkout redirect callbacks.
type Confirmer interface {
	Confirm(ctx context.Context, conf Confirmation) (session.PaymentOutcome, error)
}

// ConfirmationHandler serves GET /payment/confirmation?status=&payment_id=&to=.
// Bold appends bold-order-id, the payment link id, to the redirect.
type ConfirmationHandler struct {
	confirmer Confirmer
	logger    *logging.Logger
}

func NewConfirmationHandler(confirmer Confirmer, logger *logging.Logger) *ConfirmationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmationHandler{confirmer: confirmer, logger: logger}
}

func (h *ConfirmationHandler) Handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conf := Confirmation{
		Status:    q.Get("status"),
		PaymentID: q.Get("payment_id"),
		LinkID:    strings.TrimSpace(q.Get("bold-order-id")),
		UserID:    strings.TrimSpace(q.Get("to")),
	}
	if conf.UserID == "" {
		http.Error(w, "Falta el parámetro 'to' (número de teléfono).", http.StatusBadRequest)
		return
	}
	h.logger.WithUser(conf.UserID).Info("payment confirmation received", "status", conf.Status, "payment_id", conf.PaymentID)

	outcome, err := h.confirmer.Confirm(context.WithoutCancel(r.Context()), conf)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, "No se encontró una sesión para este número.", http.StatusNotFound)
		return
	case errors.Is(err, ErrNoOutstandingPayment):
		http.Error(w, "No hay un pago pendiente para este número.", http.StatusConflict)
		return
	case errors.Is(err, ErrLinkMismatch):
		http.Error(w, "El pago no corresponde al enlace pendiente.", http.StatusConflict)
		return
	default:
		h.logger.WithUser(conf.UserID).Error("payment confirmation failed", "error", err)
		http.Error(w, "Error interno del servidor", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if outcome == session.OutcomeApproved {
		_, _ = w.Write([]byte("Pago confirmado correctamente."))
		return
	}
	_, _ = w.Write([]byte("Pago no exitoso."))
}
