// Package httpserver exposes the tracker's cached shipments, telemetry and
// Prometheus metrics over HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/api"
	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/selector"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/telemetry"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ShipmentStore interface {
	GetState() shipments.State
	FetchShipments(ctx context.Context) error
	CreateShipment(ctx context.Context, input contracts.CreateShipmentInput) (contracts.ShipmentRecord, error)
}

type Views interface {
	FilteredShipments(state shipments.State, filter any) ([]contracts.ShipmentRecord, error)
	VisibleShipments(state shipments.State) ([]contracts.ShipmentRecord, error)
	ShipmentStats(state shipments.State) (shipments.Stats, error)
}

type ActionTelemetry interface {
	Snapshot() telemetry.Snapshot
	Reset()
}

type SelectorTelemetry interface {
	Snapshot() map[string]selector.Metric
	Reset()
}

type Handler struct {
	Store     ShipmentStore
	Views     Views
	Actions   ActionTelemetry
	Selectors SelectorTelemetry
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// Router builds the routes, traced with otelhttp.
func (h *Handler) Router() http.Handler {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Get("/healthz", h.handleHealth)
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/telemetry", func(tr chi.Router) {
		tr.Get("/actions", h.handleActions)
		tr.Get("/selectors", h.handleSelectors)
		tr.Post("/reset", h.handleTelemetryReset)
	})

	r.Route("/shipments", func(sr chi.Router) {
		sr.Get("/", h.handleListShipments)
		sr.Post("/", h.handleCreateShipment)
		sr.Get("/stats", h.handleStats)
		sr.Post("/refresh", h.handleRefresh)
	})

	return otelhttp.NewHandler(r, "tracker-http")
}

// NewServer wraps the router in an http.Server with sane timeouts.
func NewServer(addr string, h *Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := h.Store.GetState()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"storeStatus": state.Status,
		"version":     state.Version,
		"shipments":   len(state.Shipments),
	})
}

func (h *Handler) handleActions(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Actions.Snapshot())
}

func (h *Handler) handleSelectors(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Selectors.Snapshot())
}

func (h *Handler) handleTelemetryReset(w http.ResponseWriter, _ *http.Request) {
	h.Actions.Reset()
	h.Selectors.Reset()
	h.Logger.Info("telemetry reset")
	w.WriteHeader(http.StatusNoContent)
}

// handleListShipments uses ?status= when given, otherwise the stored filter.
func (h *Handler) handleListShipments(w http.ResponseWriter, r *http.Request) {
	state := h.Store.GetState()
	var (
		list []contracts.ShipmentRecord
		err  error
	)
	if r.URL.Query().Has("status") {
		list, err = h.Views.FilteredShipments(state, r.URL.Query().Get("status"))
	} else {
		list, err = h.Views.VisibleShipments(state)
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := h.Views.ShipmentStats(h.Store.GetState())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.FetchShipments(r.Context()); err != nil {
		h.writeAPIError(w, err)
		return
	}
	state := h.Store.GetState()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      state.Status,
		"shipments":   len(state.Shipments),
		"lastUpdated": state.LastUpdated,
	})
}

func (h *Handler) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	var input contracts.CreateShipmentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	rec, err := h.Store.CreateShipment(r.Context(), input)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// writeAPIError forwards the upstream status of a typed rejection.
func (h *Handler) writeAPIError(w http.ResponseWriter, err error) {
	if apiErr, ok := api.AsError(err); ok {
		status := apiErr.Code
		if apiErr.Network || status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		h.writeJSON(w, status, apiErr)
		return
	}
	if errors.Is(err, domainErr.ErrConfiguration) {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Warn("response encode failed", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
