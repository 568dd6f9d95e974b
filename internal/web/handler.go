package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/timekeep/timekeep/internal/apperr"
	"github.com/timekeep/timekeep/internal/broadcast"
	"github.com/timekeep/timekeep/internal/config"
	"github.com/timekeep/timekeep/internal/database"
	"github.com/timekeep/timekeep/internal/models"
	"github.com/timekeep/timekeep/internal/timer"

	"github.com/pkg/errors"
)

// userHeader carries the authenticated user id. Authentication itself is
// handled upstream of this subsystem.
const userHeader = "X-User-ID"

type Handler struct {
	config     *config.Config
	controller *timer.Controller
	store      *database.TimerStore
	registry   *broadcast.MemoryRegistry
}

func NewHandler(cfg *config.Config, controller *timer.Controller, store *database.TimerStore, registry *broadcast.MemoryRegistry) *Handler {
	return &Handler{
		config:     cfg,
		controller: controller,
		store:      store,
		registry:   registry,
	}
}

func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/timer/start", h.handleStart)
	mux.HandleFunc("/api/timer/stop", h.handleStop)
	mux.HandleFunc("/api/timer/discard", h.handleDiscard)
	mux.HandleFunc("/api/timer/description", h.handleDescription)
	mux.HandleFunc("/api/timer/active", h.handleActive)
	mux.HandleFunc("/api/idle/notifications", h.handleIdleNotifications)
	mux.HandleFunc("/api/idle/resolve", h.handleResolveIdle)
	mux.HandleFunc("/api/events/stream", h.handleEventStream)
	mux.HandleFunc("/api/status", h.handleStatus)

	mux.HandleFunc("/health", h.handleHealth)
}

type startRequest struct {
	TaskID          string `json:"task_id"`
	Description     string `json:"description"`
	AutoStopCurrent bool   `json:"auto_stop_current"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TaskID == "" {
		http.Error(w, "task_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.controller.Start(r.Context(), userID, req.TaskID, req.Description, req.AutoStopCurrent)
	if err != nil {
		respondError(w, err)
		return
	}

	if res.Confirmation != nil {
		respondJSON(w, map[string]interface{}{
			"status":       "confirmation_required",
			"confirmation": res.Confirmation,
		})
		return
	}
	respondJSON(w, map[string]interface{}{
		"status": "ok",
		"timer":  res.Timer,
	})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r, http.MethodPost)
	if !ok {
		return
	}

	snap, err := h.controller.Stop(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{
		"status": "ok",
		"timer":  snap,
	})
}

type discardRequest struct {
	Confirmed bool `json:"confirmed"`
}

func (h *Handler) handleDiscard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req discardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.controller.Discard(r.Context(), userID, req.Confirmed)
	if err != nil {
		respondError(w, err)
		return
	}

	if res.Confirmation != nil {
		respondJSON(w, map[string]interface{}{
			"status":       "confirmation_required",
			"confirmation": res.Confirmation,
		})
		return
	}
	respondJSON(w, map[string]interface{}{
		"status":             "ok",
		"discarded_timer_id": res.DiscardedTimerID,
	})
}

type descriptionRequest struct {
	Description string `json:"description"`
}

func (h *Handler) handleDescription(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req descriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	snap, err := h.controller.UpdateDescription(r.Context(), userID, req.Description)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{
		"status": "ok",
		"timer":  snap,
	})
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r, http.MethodGet)
	if !ok {
		return
	}

	snap, err := h.controller.GetActive(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, snap)
}

func (h *Handler) handleIdleNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r, http.MethodGet)
	if !ok {
		return
	}

	notifs, err := h.store.ListUnresolvedNotificationsForUser(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, notifs)
}

type resolveIdleRequest struct {
	NotificationID string `json:"notification_id"`
	Action         string `json:"action"`
}

func (h *Handler) handleResolveIdle(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req resolveIdleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.NotificationID == "" {
		http.Error(w, "notification_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.controller.ResolveIdle(r.Context(), req.NotificationID, userID, models.IdleAction(req.Action))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{
		"status":       "ok",
		"timer_id":     res.TimerID,
		"action":       res.Action,
		"new_duration": res.NewDurationSeconds,
	})
}

// handleEventStream streams timer lifecycle events to the client over SSE.
// Each open stream is one session in the registry, so every tab a user has
// open receives every event.
func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r, http.MethodGet)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sess := h.registry.Register(userID)
	defer h.registry.Unregister(sess)

	// Heartbeat keeps intermediaries from reaping quiet connections.
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	fmt.Fprintf(w, ": connected %s\n\n", sess.ID())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event := <-sess.Events():
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("web: failed to encode event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	running, err := h.store.ListRunning(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"running":        true,
		"running_timers": len(running),
		"sweep_interval": h.config.Sweep.Interval.String(),
		"database_path":  h.config.Database.Path,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// requireUser enforces the request method and extracts the caller's user id.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request, method string) (string, bool) {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	userID := r.Header.Get(userHeader)
	if userID == "" {
		http.Error(w, fmt.Sprintf("%s header is required", userHeader), http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

// respondError maps the error taxonomy onto HTTP statuses. Wrapped detail
// stays server-side; the client sees the kind and the message.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrTransient):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
