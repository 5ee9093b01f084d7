package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/fleetgrid/ops-api/internal/api/middleware"
	"github.com/fleetgrid/ops-api/internal/notify"
	"github.com/fleetgrid/ops-api/internal/store"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// NotificationsHandler handles notification HTTP requests, including the
// live websocket feed.
type NotificationsHandler struct {
	store    store.Store
	hub      *notify.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewNotificationsHandler creates a new notifications handler.
func NewNotificationsHandler(st store.Store, hub *notify.Hub, logger *slog.Logger) *NotificationsHandler {
	return &NotificationsHandler{
		store:  st,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth happens in middleware; the API serves non-browser
			// dashboard clients too, so origin is not restricted here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// List handles GET /v1/notifications - the authenticated user's
// notifications, newest first.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	notifications, err := h.store.Notifications().ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list notifications", "error", err, "user_id", userID)
		WriteInternalError(w, "failed to list notifications")
		return
	}

	WriteJSON(w, http.StatusOK, notifications)
}

// MarkRead handles POST /v1/notifications/{notificationID}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	notificationID := chi.URLParam(r, "notificationID")
	if notificationID == "" {
		WriteBadRequest(w, "notification ID required")
		return
	}

	if err := h.store.Notifications().MarkRead(r.Context(), notificationID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "notification not found")
			return
		}
		h.logger.Error("failed to mark notification read", "error", err, "notification_id", notificationID)
		WriteInternalError(w, "failed to mark notification read")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// Stream handles GET /v1/notifications/ws - upgrades to a websocket and
// pushes the user's notifications as they are published. Rows are already
// persisted when they arrive here; a dropped connection loses nothing.
func (h *NotificationsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.hub.Subscribe(userID)
	defer cancel()

	// Reader goroutine: the client sends nothing we act on, but reads must
	// be drained for close/ping handling to work.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
