package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kizs/smalltv-cameras/internal/coordinator"
	"github.com/kizs/smalltv-cameras/pkg/models"
)

// DeviceService is the slice of the device manager the control API drives
type DeviceService interface {
	Statuses(ctx context.Context) []models.DeviceStatus
	Status(ctx context.Context, id string) (models.DeviceStatus, bool)
	ForceRefresh(id string) error
	SetBrightness(ctx context.Context, id string, percent int) error
	SetMode(ctx context.Context, id, mode string) error
	ApplySettings(ctx context.Context, id string, update models.SettingsUpdate) error
	Reload(ctx context.Context) error
}

// ControlHandler handles HTTP requests for the device control API
type ControlHandler struct {
	service DeviceService
	logger  *zap.Logger
}

// NewControlHandler creates a new control handler
func NewControlHandler(service DeviceService, logger *zap.Logger) *ControlHandler {
	return &ControlHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the device control routes
func (h *ControlHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/devices", h.handleDevices)
	mux.HandleFunc("/devices/reload", h.handleReload)
	mux.HandleFunc("/devices/", h.handleDeviceDetails)
}

// handleHealth handles GET /health - returns service health status
func (h *ControlHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"service": "smalltv-cameras",
	})
}

// handleDevices handles GET /devices - returns the status of all devices
func (h *ControlHandler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	statuses := h.service.Statuses(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statuses); err != nil {
		h.logger.Error("Failed to encode devices response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Served device list", zap.Int("count", len(statuses)))
}

// handleReload handles POST /devices/reload - re-reads the device registry
// and restarts every coordinator
func (h *ControlHandler) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.logger.Info("Reloading device registry...")

	if err := h.service.Reload(r.Context()); err != nil {
		h.logger.Error("Failed to reload device registry", zap.Error(err))
		http.Error(w, "Failed to reload devices", http.StatusInternalServerError)
		return
	}

	count := len(h.service.Statuses(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "success",
		"message":      "Device registry reloaded successfully",
		"device_count": count,
	})

	h.logger.Info("Device registry reloaded", zap.Int("device_count", count))
}

// handleDeviceDetails handles:
// - GET /devices/{id} - returns one device's status or 404
// - POST /devices/{id}/refresh - forces a refresh cycle
// - PUT /devices/{id}/brightness - sets the display brightness
// - PUT /devices/{id}/mode - switches the display mode
// - PUT /devices/{id}/settings - applies a partial settings update
func (h *ControlHandler) handleDeviceDetails(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/devices/")
	pathParts := strings.Split(path, "/")

	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Device ID required", http.StatusBadRequest)
		return
	}

	deviceID := pathParts[0]

	if r.Method == http.MethodGet && len(pathParts) == 1 {
		h.handleDeviceStatus(w, r, deviceID)
		return
	}

	if len(pathParts) == 2 {
		switch {
		case pathParts[1] == "refresh" && r.Method == http.MethodPost:
			h.handleRefresh(w, r, deviceID)
			return
		case pathParts[1] == "brightness" && r.Method == http.MethodPut:
			h.handleBrightness(w, r, deviceID)
			return
		case pathParts[1] == "mode" && r.Method == http.MethodPut:
			h.handleMode(w, r, deviceID)
			return
		case pathParts[1] == "settings" && r.Method == http.MethodPut:
			h.handleSettings(w, r, deviceID)
			return
		}
	}

	if len(pathParts) > 1 {
		http.Error(w, "Endpoint not found", http.StatusNotFound)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleDeviceStatus handles GET /devices/{id}
func (h *ControlHandler) handleDeviceStatus(w http.ResponseWriter, r *http.Request, deviceID string) {
	status, ok := h.service.Status(r.Context(), deviceID)
	if !ok {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error("Failed to encode device response",
			zap.String("device_id", deviceID),
			zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Served device status", zap.String("device_id", deviceID))
}

// handleRefresh handles POST /devices/{id}/refresh
func (h *ControlHandler) handleRefresh(w http.ResponseWriter, r *http.Request, deviceID string) {
	if err := h.service.ForceRefresh(deviceID); err != nil {
		h.writeServiceError(w, deviceID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "accepted",
		"message": "Refresh queued",
	})

	h.logger.Info("Refresh requested", zap.String("device_id", deviceID))
}

// handleBrightness handles PUT /devices/{id}/brightness
func (h *ControlHandler) handleBrightness(w http.ResponseWriter, r *http.Request, deviceID string) {
	var request BrightnessRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if errs := validateBrightnessRequest(request); len(errs) > 0 {
		h.writeValidationErrors(w, errs)
		return
	}

	if err := h.service.SetBrightness(r.Context(), deviceID, request.Percent); err != nil {
		h.writeServiceError(w, deviceID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "success",
		"percent": request.Percent,
	})

	h.logger.Info("Brightness updated",
		zap.String("device_id", deviceID),
		zap.Int("percent", request.Percent))
}

// handleMode handles PUT /devices/{id}/mode
func (h *ControlHandler) handleMode(w http.ResponseWriter, r *http.Request, deviceID string) {
	var request ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if errs := validateModeRequest(request); len(errs) > 0 {
		h.writeValidationErrors(w, errs)
		return
	}

	if err := h.service.SetMode(r.Context(), deviceID, request.Mode); err != nil {
		h.writeServiceError(w, deviceID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
		"mode":   request.Mode,
	})

	h.logger.Info("Mode updated",
		zap.String("device_id", deviceID),
		zap.String("mode", request.Mode))
}

// handleSettings handles PUT /devices/{id}/settings
func (h *ControlHandler) handleSettings(w http.ResponseWriter, r *http.Request, deviceID string) {
	var request models.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if errs := validateSettingsRequest(request); len(errs) > 0 {
		h.writeValidationErrors(w, errs)
		return
	}

	if err := h.service.ApplySettings(r.Context(), deviceID, request); err != nil {
		h.writeServiceError(w, deviceID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
	})

	h.logger.Info("Settings updated", zap.String("device_id", deviceID))
}

// writeValidationErrors returns a 400 with the field-level validation errors
func (h *ControlHandler) writeValidationErrors(w http.ResponseWriter, errs []ValidationError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"valid":  false,
		"errors": errs,
	})
}

// writeServiceError maps manager errors onto HTTP status codes
func (h *ControlHandler) writeServiceError(w http.ResponseWriter, deviceID string, err error) {
	switch {
	case errors.Is(err, coordinator.ErrUnknownDevice):
		http.Error(w, "Device not found", http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidConfig):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("Device operation failed",
			zap.String("device_id", deviceID),
			zap.Error(err))
		http.Error(w, "Device operation failed", http.StatusBadGateway)
	}
}
