package api

import (
	"net/http"
	"time"

	service "github.com/okian/pitchboard/internal/app"
	"github.com/okian/pitchboard/internal/domain/model"
)

// EventsHandler handles event lifecycle and participation requests.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type eventResponse struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Status             model.Status       `json:"status"`
	HostUID            string             `json:"hostUid"`
	StartingAllocation float64            `json:"startingAllocation"`
	CreatedAt          time.Time          `json:"createdAt"`
	Results            model.ResultsState `json:"results"`
}

func toEventResponse(ev *model.Event) eventResponse {
	return eventResponse{
		ID:                 ev.ID,
		Name:               ev.Name,
		Status:             ev.Status,
		HostUID:            ev.HostUID,
		StartingAllocation: ev.StartingAllocation,
		CreatedAt:          ev.CreatedAt,
		Results:            ev.ResultsState(),
	}
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=setup live ended"`
}

// HandleCreate handles POST /events.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_event"
	var req service.CreateEventInput
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := h.deps.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(&ev))
}

// HandleGet handles GET /events/{id}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	ev, err := h.deps.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(&ev))
}

// HandleStatus handles POST /events/{id}/status.
func (h *EventsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_status"
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := h.deps.SetStatus(r.Context(), r.PathValue("id"), model.Status(req.Status))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(&ev))
}

// HandleUpsertStartup handles PUT /events/{id}/startups/{sid}.
func (h *EventsHandler) HandleUpsertStartup(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_startup"
	var req service.UpsertStartupInput
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	st, err := h.deps.UpsertStartup(r.Context(), r.PathValue("id"), r.PathValue("sid"), req)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":             st.ID,
		"name":           st.Name,
		"normalizedName": st.NormalizedName,
		"ownerUid":       st.OwnerUID,
	})
}

// HandleInvest handles PUT /events/{id}/investments.
func (h *EventsHandler) HandleInvest(w http.ResponseWriter, r *http.Request) {
	const op = "api.invest"
	var req service.InvestInput
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	inv, err := h.deps.Invest(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"investorId": inv.InvestorID,
		"startupId":  inv.StartupID,
		"investedPM": inv.InvestedPM,
	})
}

// HandleRate handles PUT /events/{id}/startups/{sid}/ratings/{rater}.
func (h *EventsHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	const op = "api.rate"
	var req service.RateInput
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	rt, err := h.deps.Rate(r.Context(), r.PathValue("id"), r.PathValue("sid"), r.PathValue("rater"), req)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raterId":    rt.RaterID,
		"startupId":  rt.StartupID,
		"totalScore": rt.TotalScore,
	})
}
