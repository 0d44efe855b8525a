package dashboard

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
	"github.com/alerto-de-pin/dashboard-client/internal/lifecycle"
	"github.com/alerto-de-pin/dashboard-client/internal/mapview"
	"github.com/alerto-de-pin/dashboard-client/internal/realtime"
)

// stateResponse is the full snapshot the UI shell renders from.
type stateResponse struct {
	Role      string                `json:"role"`
	Connected bool                  `json:"connected"`
	Alerts    []alert.Alert         `json:"alerts"`
	Counts    map[string]int        `json:"counts"`
	Online    []realtime.OnlineUser `json:"onlineUsers"`
	Markers   []mapview.Marker      `json:"markers"`
	Stats     Stats                 `json:"stats"`
}

// createRequest is the UI payload for filing a new alert.
type createRequest struct {
	Type        alert.Type `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Notes       string     `json:"notes"`
}

// resolveRequest carries optional resolution notes.
type resolveRequest struct {
	Notes string `json:"notes"`
}

// errorResponse mirrors the backend's {message} error envelope so the UI
// handles both surfaces the same way.
type errorResponse struct {
	Message string `json:"message"`
}

// Handler returns the local HTTP surface for the UI shell.
func (d *Dashboard) Handler() http.Handler {
	router := mux.NewRouter()

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/state", d.handleState).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications", d.handleNotifications).Methods(http.MethodGet)
	apiRouter.HandleFunc("/alerts", d.handleCreateAlert).Methods(http.MethodPost)
	apiRouter.HandleFunc("/alerts/{id}/respond", d.handleRespond).Methods(http.MethodPost)
	apiRouter.HandleFunc("/alerts/{id}/arrived", d.handleArrived).Methods(http.MethodPost)
	apiRouter.HandleFunc("/alerts/{id}/resolve", d.handleResolve).Methods(http.MethodPost)
	apiRouter.HandleFunc("/alerts/{id}/cancel", d.handleCancel).Methods(http.MethodPost)

	return router
}

func (d *Dashboard) handleState(w http.ResponseWriter, r *http.Request) {
	state := stateResponse{
		Role:   d.cfg.Role,
		Alerts: d.cfg.Store.Snapshot(),
		Counts: d.cfg.Store.CountsByStatus(),
		Stats:  d.Stats(),
	}
	if d.cfg.Channel != nil {
		state.Connected = d.cfg.Channel.Connected()
		state.Online = d.cfg.Channel.OnlineUsers()
	}
	if d.cfg.Projection != nil {
		state.Markers = d.cfg.Projection.Markers()
	}

	d.writeJSON(w, http.StatusOK, state)
}

func (d *Dashboard) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notifications := []alert.Notification{}
	if d.cfg.Feed != nil {
		notifications = d.cfg.Feed.Active()
	}
	d.writeJSON(w, http.StatusOK, notifications)
}

func (d *Dashboard) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := d.cfg.Controller.Create(r.Context(), lifecycle.Draft{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Notes:       req.Notes,
	})
	if err != nil {
		d.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d.writeJSON(w, http.StatusCreated, created)
}

func (d *Dashboard) handleRespond(w http.ResponseWriter, r *http.Request) {
	d.lifecycleAction(w, r, d.cfg.Controller.Respond)
}

func (d *Dashboard) handleArrived(w http.ResponseWriter, r *http.Request) {
	d.lifecycleAction(w, r, d.cfg.Controller.MarkArrived)
}

func (d *Dashboard) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.Body != nil {
		// Notes are optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	id := mux.Vars(r)["id"]
	if err := d.cfg.Controller.Resolve(r.Context(), id, req.Notes); err != nil {
		d.writeError(w, http.StatusConflict, err.Error())
		return
	}
	d.writeUpdated(w, id)
}

func (d *Dashboard) handleCancel(w http.ResponseWriter, r *http.Request) {
	d.lifecycleAction(w, r, d.cfg.Controller.Cancel)
}

// lifecycleAction runs one id-addressed transition and returns the
// updated record.
func (d *Dashboard) lifecycleAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id string) error) {
	id := mux.Vars(r)["id"]
	if err := action(r.Context(), id); err != nil {
		d.writeError(w, http.StatusConflict, err.Error())
		return
	}
	d.writeUpdated(w, id)
}

func (d *Dashboard) writeUpdated(w http.ResponseWriter, id string) {
	if updated, ok := d.cfg.Store.Get(id); ok {
		d.writeJSON(w, http.StatusOK, updated)
		return
	}
	d.writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (d *Dashboard) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		d.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func (d *Dashboard) writeError(w http.ResponseWriter, status int, message string) {
	d.writeJSON(w, status, errorResponse{Message: message})
}
