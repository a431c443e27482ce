package handlers

import (
	"fmt"

	"github.com/kizs/smalltv-cameras/pkg/models"
)

// ValidationError represents a validation error for a specific field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// BrightnessRequest is the body for PUT /devices/{id}/brightness
type BrightnessRequest struct {
	Percent int `json:"percent"`
}

// ModeRequest is the body for PUT /devices/{id}/mode
type ModeRequest struct {
	Mode string `json:"mode"`
}

// validateBrightnessRequest checks the brightness payload against the device range
func validateBrightnessRequest(req BrightnessRequest) []ValidationError {
	var errors []ValidationError

	if req.Percent < models.MinBrightness || req.Percent > models.MaxBrightness {
		errors = append(errors, ValidationError{
			Field:   "percent",
			Message: fmt.Sprintf("Brightness must be between %d and %d", models.MinBrightness, models.MaxBrightness),
			Code:    "out_of_range",
		})
	}

	return errors
}

// validateModeRequest checks the mode payload against the known display modes
func validateModeRequest(req ModeRequest) []ValidationError {
	var errors []ValidationError

	if req.Mode == "" {
		errors = append(errors, ValidationError{
			Field:   "mode",
			Message: "Field 'mode' is required",
			Code:    "required",
		})
	} else if !models.ValidMode(req.Mode) {
		errors = append(errors, ValidationError{
			Field:   "mode",
			Message: fmt.Sprintf("Unknown mode '%s'", req.Mode),
			Code:    "unknown_mode",
		})
	}

	return errors
}

// validateSettingsRequest checks the settings payload; fields left out of the
// payload are left unchanged and skip validation
func validateSettingsRequest(req models.SettingsUpdate) []ValidationError {
	var errors []ValidationError

	if req.RefreshInterval == nil && req.FrameDuration == nil {
		errors = append(errors, ValidationError{
			Field:   "",
			Message: "At least one setting must be provided",
			Code:    "empty_update",
		})
		return errors
	}

	if req.RefreshInterval != nil {
		if v := *req.RefreshInterval; v < models.MinRefreshInterval || v > models.MaxRefreshInterval {
			errors = append(errors, ValidationError{
				Field:   "refresh_interval",
				Message: fmt.Sprintf("Refresh interval must be between %d and %d seconds", models.MinRefreshInterval, models.MaxRefreshInterval),
				Code:    "out_of_range",
			})
		}
	}

	if req.FrameDuration != nil {
		if v := *req.FrameDuration; v < models.MinFrameDuration || v > models.MaxFrameDuration {
			errors = append(errors, ValidationError{
				Field:   "frame_duration",
				Message: fmt.Sprintf("Frame duration must be between %d and %d seconds", models.MinFrameDuration, models.MaxFrameDuration),
				Code:    "out_of_range",
			})
		}
	}

	return errors
}
