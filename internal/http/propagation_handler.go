package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/studio-scheduler/internal/application"
	"github.com/example/studio-scheduler/internal/persistence"
	"github.com/example/studio-scheduler/internal/recurrence"
)

type propagationService interface {
	Propagate(ctx context.Context, input application.PropagationInput) (application.PropagationResult, error)
	Preview(ctx context.Context, input application.PropagationInput) (recurrence.Result, error)
}

type PropagationHandler struct {
	service   propagationService
	validate  *validator.Validate
	responder responder
	logger    *slog.Logger
}

func NewPropagationHandler(service propagationService, logger *slog.Logger) *PropagationHandler {
	base := defaultLogger(logger)
	return &PropagationHandler{service: service, validate: newValidator(), responder: newResponder(base), logger: base}
}

func (h *PropagationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "PropagationHandler", operation, attrs...)
}

func (h *PropagationHandler) decode(w http.ResponseWriter, r *http.Request, operation string) (propagationRequest, bool) {
	var req propagationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode propagation request", "error", err)
		h.responder.handleServiceError(r.Context(), w, fmt.Errorf("%w: %v", application.ErrInvalidRequest, err))
		return req, false
	}
	if err := structErrors(h.validate, req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return req, false
	}
	return req, true
}

func (h *PropagationHandler) Propagate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	req, ok := h.decode(w, r, "Propagate")
	if !ok {
		return
	}
	logger := h.log(r.Context(), "Propagate", "company", req.Company, "month", req.Month, "year", req.Year)

	result, err := h.service.Propagate(r.Context(), req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "propagation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "propagation completed", "inserted", len(result.Inserted))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, propagationResponse{
		OK:             true,
		Inserted:       len(result.Inserted),
		Skipped:        len(result.Skipped),
		Dropped:        nonNilDropped(result.Dropped),
		Events:         toEventDTOs(result.Inserted),
		CreditFailures: result.CreditFailures,
	})
}

func (h *PropagationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	req, ok := h.decode(w, r, "Preview")
	if !ok {
		return
	}
	logger := h.log(r.Context(), "Preview", "company", req.Company, "month", req.Month, "year", req.Year)

	result, err := h.service.Preview(r.Context(), req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "propagation preview failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, previewResponse{
		Events:  toEventDTOs(result.Events),
		Dropped: nonNilDropped(result.Dropped),
	})
}

type propagationRequest struct {
	Company   string                      `json:"company" validate:"required"`
	Month     int                         `json:"month" validate:"min=1,max=12"`
	Year      int                         `json:"year" validate:"gt=0"`
	Templates []persistence.ClassTemplate `json:"templates"`
}

func (r propagationRequest) toInput() application.PropagationInput {
	return application.PropagationInput{
		Company:   strings.TrimSpace(r.Company),
		Month:     r.Month,
		Year:      r.Year,
		Templates: r.Templates,
	}
}

type propagationResponse struct {
	OK             bool                         `json:"ok"`
	Inserted       int                          `json:"inserted"`
	Skipped        int                          `json:"skipped"`
	Dropped        []recurrence.DroppedTemplate `json:"dropped"`
	Events         []eventDTO                   `json:"events"`
	CreditFailures int                          `json:"credit_failures,omitempty"`
}

type previewResponse struct {
	Events  []eventDTO                   `json:"events"`
	Dropped []recurrence.DroppedTemplate `json:"dropped"`
}

func nonNilDropped(d []recurrence.DroppedTemplate) []recurrence.DroppedTemplate {
	if d == nil {
		return []recurrence.DroppedTemplate{}
	}
	return d
}
