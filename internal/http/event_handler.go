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
)

type eventService interface {
	CreateEvent(ctx context.Context, input application.EventInput) (persistence.Event, error)
	UpdateEvent(ctx context.Context, id string, input application.EventInput) (persistence.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, params application.ListEventsParams) ([]persistence.Event, error)
}

type EventHandler struct {
	service   eventService
	validate  *validator.Validate
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	base := defaultLogger(logger)
	return &EventHandler{service: service, validate: newValidator(), responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.handleServiceError(r.Context(), w, fmt.Errorf("%w: %v", application.ErrInvalidRequest, err))
		return
	}
	if err := structErrors(h.validate, req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Create", "company", req.Company)

	event, err := h.service.CreateEvent(r.Context(), req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "event creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("event_id", event.ID).InfoContext(r.Context(), "event created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "missing event id for update")
		h.responder.handleServiceError(r.Context(), w, fmt.Errorf("%w: missing event id", application.ErrInvalidRequest))
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "event_id", eventID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event update", "error", err)
		h.responder.handleServiceError(r.Context(), w, fmt.Errorf("%w: %v", application.ErrInvalidRequest, err))
		return
	}
	if err := structErrors(h.validate, req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Update", "event_id", eventID)

	event, err := h.service.UpdateEvent(r.Context(), eventID, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "event update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.log(r.Context(), "Delete", "error_kind", "bad_request").ErrorContext(r.Context(), "missing event id for delete")
		h.responder.handleServiceError(r.Context(), w, fmt.Errorf("%w: missing event id", application.ErrInvalidRequest))
		return
	}

	logger := h.log(r.Context(), "Delete", "event_id", eventID)
	if err := h.service.DeleteEvent(r.Context(), eventID); err != nil {
		logger.ErrorContext(r.Context(), "event delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	params := application.ListEventsParams{
		Company: strings.TrimSpace(q.Get("company")),
		From:    strings.TrimSpace(q.Get("from")),
		To:      strings.TrimSpace(q.Get("to")),
	}
	logger := h.log(r.Context(), "List", "company", params.Company)

	events, err := h.service.ListEvents(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "event list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(events)).InfoContext(r.Context(), "events listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

type eventRequest struct {
	Type         string   `json:"type" validate:"required,oneof=appointment class vacation"`
	Datetime     string   `json:"datetime" validate:"required"`
	Duration     int      `json:"duration" validate:"gt=0"`
	Client       []string `json:"client" validate:"dive,required"`
	Professional []string `json:"professional" validate:"dive,required"`
	Company      string   `json:"company" validate:"required"`
	Notes        string   `json:"notes"`
}

func (r eventRequest) toInput() application.EventInput {
	return application.EventInput{
		Type:         persistence.EventType(strings.TrimSpace(r.Type)),
		Datetime:     strings.TrimSpace(r.Datetime),
		Duration:     r.Duration,
		Client:       r.Client,
		Professional: r.Professional,
		Company:      strings.TrimSpace(r.Company),
		Notes:        r.Notes,
	}
}

type eventResponse struct {
	Event eventDTO `json:"event"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type eventDTO struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Datetime     string   `json:"datetime"`
	Duration     int      `json:"duration"`
	Client       []string `json:"client"`
	Professional []string `json:"professional"`
	Company      string   `json:"company"`
	Notes        string   `json:"notes,omitempty"`
	TemplateID   string   `json:"template_id,omitempty"`
}

func toEventDTO(e persistence.Event) eventDTO {
	client := e.Client
	if client == nil {
		client = []string{}
	}
	professional := e.Professional
	if professional == nil {
		professional = []string{}
	}
	return eventDTO{
		ID:           e.ID,
		Type:         string(e.Type),
		Datetime:     e.Datetime,
		Duration:     e.Duration,
		Client:       client,
		Professional: professional,
		Company:      e.Company,
		Notes:        e.Notes,
		TemplateID:   e.TemplateID,
	}
}

func toEventDTOs(events []persistence.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toEventDTO(e))
	}
	return out
}
