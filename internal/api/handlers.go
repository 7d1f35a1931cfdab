package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"possync/internal/metrics"
	"possync/internal/models"
)

type createBookingRequest struct {
	CustomerName string    `json:"customer_name"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body createBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.bookings.EnqueueBooking(r.Context(), body.CustomerName, body.StartsAt, body.EndsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The booking is durable; pushing happens in the background.
	s.worker.Kick()

	writeJSON(w, http.StatusAccepted, result)
}

type roomStatusRequest struct {
	Status string `json:"status"`
}

func (s *HTTPServer) handleRoomStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("rooms")

	if r.Method != http.MethodPatch && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/rooms/"
	roomID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/status")
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || strings.Contains(roomID, "/") {
		writeError(w, http.StatusBadRequest, "room id is required")
		return
	}

	var body roomStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	outboxID, err := s.bookings.EnqueueRoomUpdate(r.Context(), roomID, body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.worker.Kick()

	writeJSON(w, http.StatusAccepted, map[string]string{"outbox_id": outboxID})
}

func (s *HTTPServer) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_status")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	queueSize, err := s.db.QueueSize(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}

	resp := map[string]any{
		"syncing":    s.engine.IsSyncing(),
		"queue_size": queueSize,
	}

	if deviceID, err := s.db.GetMeta(r.Context(), models.MetaKeyDeviceID); err == nil && deviceID != "" {
		resp["device_id"] = deviceID
	}
	if lastSync, err := s.db.GetMeta(r.Context(), models.MetaKeyLastSyncTS); err == nil && lastSync != "" {
		resp["last_sync_at"] = lastSync
	}
	if status, err := s.states.GetSyncStatus(r.Context()); err == nil && status != nil && status.LastError != "" {
		resp["last_error"] = status.LastError
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_run")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.engine.IsSyncing() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already syncing"})
		return
	}

	s.worker.Kick()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

type sessionRequest struct {
	AccessToken  string                    `json:"access_token"`
	ExpiresAt    time.Time                 `json:"expires_at"`
	RefreshToken string                    `json:"refresh_token"`
	Cookies      []string                  `json:"cookies"`
	User         *models.AuthenticatedUser `json:"user"`
}

// handleSession receives credentials from the shell's login flow (POST) and
// drops them on logout (DELETE).
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session")

	switch r.Method {
	case http.MethodPost:
		var body sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if body.AccessToken == "" {
			writeError(w, http.StatusBadRequest, "access_token is required")
			return
		}

		s.creds.SetAccessToken(body.AccessToken, body.ExpiresAt)
		s.creds.SetSessionCookies(body.Cookies)
		if body.User != nil {
			s.creds.SetAuthenticatedUser(body.User)
		}
		if body.RefreshToken != "" {
			if err := s.creds.SaveRefreshToken(body.RefreshToken); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to persist refresh token")
			}
		}

		// Fresh credentials may unblock a halted queue.
		s.worker.Kick()
		writeJSON(w, http.StatusNoContent, nil)

	case http.MethodDelete:
		s.creds.Reset()
		writeJSON(w, http.StatusNoContent, nil)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	if payload == nil {
		w.WriteHeader(statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
