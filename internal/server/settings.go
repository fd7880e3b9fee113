package server

import (
	"encoding/json"
	"net/http"

	"github.com/panhanyan804/AI-Christmas-Tree/internal/gesture"
	"github.com/panhanyan804/AI-Christmas-Tree/internal/store"
)

// SettingsHandler handles HTTP requests for the daemon settings.
type SettingsHandler struct {
	store *store.Store
}

// NewSettingsHandler creates a new SettingsHandler with the given store.
func NewSettingsHandler(s *store.Store) *SettingsHandler {
	return &SettingsHandler{store: s}
}

type settingsResponse struct {
	CameraID        int     `json:"cameraId"`
	FallbackStep    float64 `json:"fallbackStep"`
	CenterDecay     float64 `json:"centerDecay"`
	ClosedThreshold float64 `json:"closedThreshold"`
}

type updateSettingsRequest struct {
	CameraID        *int     `json:"cameraId"`
	FallbackStep    *float64 `json:"fallbackStep"`
	CenterDecay     *float64 `json:"centerDecay"`
	ClosedThreshold *float64 `json:"closedThreshold"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// ServeHTTP implements the http.Handler interface.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// get handles GET /api/settings: the stored values with tuning defaults
// filling the gaps.
func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	defaults := gesture.DefaultTuning()
	settings := h.store.Settings()

	writeJSON(w, http.StatusOK, settingsResponse{
		CameraID:        settings.GetInt(store.SettingCameraID, 0),
		FallbackStep:    settings.GetFloat(store.SettingFallbackStep, defaults.FallbackStep),
		CenterDecay:     settings.GetFloat(store.SettingCenterDecay, defaults.CenterDecay),
		ClosedThreshold: settings.GetFloat(store.SettingClosedThreshold, defaults.ClosedThreshold),
	})
}

// update handles PUT /api/settings with partial updates; omitted fields
// keep their stored values. Changes apply on the next daemon start.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	settings := h.store.Settings()

	if req.CameraID != nil {
		if *req.CameraID < 0 {
			writeError(w, http.StatusBadRequest, "cameraId must be >= 0")
			return
		}
		if err := settings.SetInt(store.SettingCameraID, *req.CameraID); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save setting")
			return
		}
	}

	for _, f := range []struct {
		key   string
		value *float64
	}{
		{store.SettingFallbackStep, req.FallbackStep},
		{store.SettingCenterDecay, req.CenterDecay},
		{store.SettingClosedThreshold, req.ClosedThreshold},
	} {
		if f.value == nil {
			continue
		}
		if *f.value <= 0 || *f.value > 1 {
			writeError(w, http.StatusBadRequest, f.key+" must be in (0, 1]")
			return
		}
		if err := settings.SetFloat(f.key, *f.value); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save setting")
			return
		}
	}

	h.get(w, r)
}
