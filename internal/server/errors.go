package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	detectiondomain "github.com/smallbiznis/pricewatch/internal/detection/domain"
	"github.com/smallbiznis/pricewatch/internal/ingest"
	purchasingdomain "github.com/smallbiznis/pricewatch/internal/purchasing/domain"
	resolutiondomain "github.com/smallbiznis/pricewatch/internal/resolution/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type        string            `json:"type"`
	Message     string            `json:"message"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Stage       string            `json:"stage,omitempty"`
	Errors      []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var runErr *detectiondomain.RunError
	if errors.As(err, &runErr) {
		var fetchErr *ingest.FetchError
		if errors.As(err, &fetchErr) {
			return http.StatusServiceUnavailable, errorPayload{
				Type:        "record_source_unavailable",
				Message:     "record source request failed",
				Fingerprint: runErr.Fingerprint,
				Stage:       runErr.Stage,
			}
		}
		return http.StatusInternalServerError, errorPayload{
			Type:        "detection_failed",
			Message:     "detection run failed",
			Fingerprint: runErr.Fingerprint,
			Stage:       runErr.Stage,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded in request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, purchasingdomain.ErrInvalidOrganization),
		errors.Is(err, purchasingdomain.ErrInvalidFilter),
		errors.Is(err, resolutiondomain.ErrInvalidOrganization),
		errors.Is(err, resolutiondomain.ErrInvalidAlertKey),
		errors.Is(err, resolutiondomain.ErrInvalidReason),
		errors.Is(err, resolutiondomain.ErrNoteTooLong):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, purchasingdomain.ErrInvalidOrganization),
		errors.Is(err, resolutiondomain.ErrInvalidOrganization):
		return "invalid_organization"
	case errors.Is(err, purchasingdomain.ErrInvalidFilter):
		return "invalid_filter"
	case errors.Is(err, resolutiondomain.ErrInvalidAlertKey):
		return "invalid_alert_key"
	case errors.Is(err, resolutiondomain.ErrInvalidReason):
		return "invalid_reason"
	case errors.Is(err, resolutiondomain.ErrNoteTooLong):
		return "note_too_long"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if code == "note_too_long" {
		return "note"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "note_too_long":
		return "note is too long"
	default:
		return "invalid value"
	}
}
