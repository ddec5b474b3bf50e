package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/studio-scheduler/internal/application"
	"github.com/example/studio-scheduler/internal/datemath"
	"github.com/example/studio-scheduler/internal/scheduler"
)

type slotService interface {
	FindSlots(ctx context.Context, query application.SlotQuery) ([]scheduler.Slot, error)
}

type SlotHandler struct {
	service   slotService
	validate  *validator.Validate
	responder responder
	logger    *slog.Logger
}

func NewSlotHandler(service slotService, logger *slog.Logger) *SlotHandler {
	base := defaultLogger(logger)
	return &SlotHandler{service: service, validate: newValidator(), responder: newResponder(base), logger: base}
}

func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	req, err := parseSlotQuery(r)
	if err == nil {
		err = structErrors(h.validate, req)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := handlerLogger(r.Context(), h.logger, "SlotHandler", "List", "company", req.Company)

	slots, err := h.service.FindSlots(r.Context(), application.SlotQuery{
		Company:        req.Company,
		ProfessionalID: req.ProfessionalID,
		Duration:       req.Duration,
		Limit:          req.Limit,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "slot search failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]slotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotDTO{
			Start:        datemath.Format(s.Start),
			Professional: s.Professional,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSlotsResponse{Slots: out})
}

type slotQuery struct {
	Company        string `json:"company" validate:"required"`
	ProfessionalID string `json:"professional_id"`
	Duration       int    `json:"duration" validate:"gte=0,lte=1440"`
	Limit          int    `json:"limit" validate:"gte=0"`
}

func parseSlotQuery(r *http.Request) (slotQuery, error) {
	q := r.URL.Query()
	req := slotQuery{
		Company:        strings.TrimSpace(q.Get("company")),
		ProfessionalID: strings.TrimSpace(q.Get("professional_id")),
	}

	fields := map[string]string{}
	for name, dst := range map[string]*int{"duration": &req.Duration, "limit": &req.Limit} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields[name] = name + " must be an integer"
			continue
		}
		*dst = n
	}
	if vErr := application.NewValidationError(fields); vErr != nil {
		return req, vErr
	}
	return req, nil
}

type listSlotsResponse struct {
	Slots []slotDTO `json:"slots"`
}

type slotDTO struct {
	Start        string                    `json:"start"`
	Professional scheduler.ProfessionalRef `json:"professional"`
}
