package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds JSON request bodies accepted by DecodeJSON.
const maxBodyBytes = 1 << 20

// APIResponse represents a standard API response.
type APIResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

// ValidationErrorItem represents a single validation error.
type ValidationErrorItem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RespondWithJSON sends a JSON response with the given status code and data.
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			GetLogger().Error("Failed to encode JSON response", err)
		}
	}
}

// RespondWithData wraps data in a successful APIResponse.
func RespondWithData(w http.ResponseWriter, statusCode int, data any) {
	RespondWithJSON(w, statusCode, APIResponse{Success: true, Data: data})
}

// RespondWithError sends an error response with the given status code and message.
func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithJSON(w, statusCode, APIResponse{
		Success: false,
		Error: map[string]string{
			"message": message,
		},
	})
}

// RespondWithAppError maps err onto its status code and standard error body.
func RespondWithAppError(w http.ResponseWriter, err error) {
	RespondWithJSON(w, StatusCode(err), APIResponse{
		Success: false,
		Error:   ErrorResponse(err),
	})
}

// RespondWithValidationError sends a validation error response.
func RespondWithValidationError(w http.ResponseWriter, err error) {
	var items []ValidationErrorItem

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for field, message := range FormatValidationErrors(validationErrs) {
			items = append(items, ValidationErrorItem{Field: field, Message: message})
		}
	} else {
		items = append(items, ValidationErrorItem{
			Field:   "general",
			Message: err.Error(),
		})
	}

	RespondWithJSON(w, http.StatusBadRequest, APIResponse{
		Success: false,
		Error: map[string]any{
			"message": "Validation failed",
			"errors":  items,
		},
	})
}

// DecodeJSON reads a JSON body into dst and validates it.
// Validation failures are returned unwrapped so callers can hand them to RespondWithValidationError.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return BadRequestError("Malformed JSON body", err)
	}
	return Validate(dst)
}

// ExtractBearerToken extracts the Bearer token from the Authorization header,
// falling back to the "token" query parameter used by WebSocket clients.
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("no token provided")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", fmt.Errorf("invalid token format")
	}

	return token, nil
}
