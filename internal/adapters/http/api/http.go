// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/pitchboard/internal/app"
	"github.com/okian/pitchboard/internal/domain/model"
	"github.com/okian/pitchboard/pkg/metrics"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers.
type Dependencies interface {
	CreateEvent(ctx context.Context, in service.CreateEventInput) (model.Event, error)
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	SetStatus(ctx context.Context, eventID string, status model.Status) (model.Event, error)
	UpsertStartup(ctx context.Context, eventID, startupID string, in service.UpsertStartupInput) (model.Startup, error)
	Invest(ctx context.Context, eventID string, in service.InvestInput) (model.Investment, error)
	Rate(ctx context.Context, eventID, startupID, raterID string, in service.RateInput) (model.Rating, error)

	Results(ctx context.Context, eventID string) (service.ResultsView, error)
	Recompute(ctx context.Context, eventID string) (service.Outcome, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	statsHandler   *StatsHandler
	eventsHandler  *EventsHandler
	resultsHandler *ResultsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		statsHandler:   NewStatsHandler(statsProvider),
		eventsHandler:  NewEventsHandler(deps),
		resultsHandler: NewResultsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(HandleHealth, "healthz"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandleCreate, "create_event"))
	mux.HandleFunc("GET /events/{id}", MetricsMiddleware(s.eventsHandler.HandleGet, "get_event"))
	mux.HandleFunc("POST /events/{id}/status", MetricsMiddleware(s.eventsHandler.HandleStatus, "set_status"))
	mux.HandleFunc("PUT /events/{id}/startups/{sid}", MetricsMiddleware(s.eventsHandler.HandleUpsertStartup, "upsert_startup"))
	mux.HandleFunc("PUT /events/{id}/investments", MetricsMiddleware(s.eventsHandler.HandleInvest, "invest"))
	mux.HandleFunc("PUT /events/{id}/startups/{sid}/ratings/{rater}", MetricsMiddleware(s.eventsHandler.HandleRate, "rate"))

	mux.HandleFunc("GET /events/{id}/results", MetricsMiddleware(s.resultsHandler.HandleGet, "results"))
	mux.HandleFunc("POST /events/{id}/results/recompute", MetricsMiddleware(s.resultsHandler.HandleRecompute, "recompute"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into v and validates its struct tags.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service sentinels to HTTP status codes.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, service.ErrBadRequest), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", Wrap(op, err))
	case errors.Is(err, service.ErrNotEnded):
		writeError(w, http.StatusConflict, "not_ended", Wrap(op, err))
	case errors.Is(err, service.ErrNotLive):
		writeError(w, http.StatusConflict, "not_live", Wrap(op, err))
	case errors.Is(err, service.ErrDuplicateName):
		writeError(w, http.StatusConflict, "duplicate_name", Wrap(op, err))
	case errors.Is(err, service.ErrOverBudget):
		writeError(w, http.StatusUnprocessableEntity, "over_budget", Wrap(op, err))
	case errors.Is(err, service.ErrCodeExhausted):
		writeError(w, http.StatusServiceUnavailable, "code_exhausted", Wrap(op, err))
	default:
		metrics.RecordErrorByComponent("api", "internal_error")
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// HandleHealth handles GET /healthz.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
