package response

import "net/http"

const (
	// General & System
	ErrSystem         = "SYS_INTERNAL_ERROR"
	ErrBadRequest     = "SYS_BAD_REQUEST"
	ErrServiceUnavail = "SYS_SERVICE_UNAVAILABLE"
	ErrGatewayTimeout = "SYS_GATEWAY_TIMEOUT"

	// Validation
	ErrValidation    = "VAL_INVALID_INPUT"
	ErrInvalidFormat = "VAL_INVALID_FORMAT"
	ErrUnknownKind   = "VAL_UNKNOWN_EVENT_KIND"

	// Auth
	ErrMissingToken = "AUTH_MISSING_TOKEN"
	ErrInvalidToken = "AUTH_INVALID_TOKEN"
	ErrForbidden    = "AUTH_FORBIDDEN"

	// Resource / Data (Database Mapped)
	ErrNotFound        = "RES_NOT_FOUND"
	ErrAlreadyExists   = "RES_ALREADY_EXISTS"
	ErrConflict        = "RES_CONFLICT"
	ErrVersionMismatch = "RES_VERSION_MISMATCH"

	// Audit Pipeline
	ErrSinkUnavailable = "AUDIT_SINK_UNAVAILABLE"
	ErrRateLimit       = "AUDIT_RATE_LIMIT_EXCEEDED"
)

func MapStatus(code string) int {
	switch code {
	case ErrBadRequest, ErrValidation, ErrInvalidFormat, ErrUnknownKind:
		return http.StatusBadRequest

	case ErrMissingToken, ErrInvalidToken:
		return http.StatusUnauthorized

	case ErrForbidden:
		return http.StatusForbidden

	case ErrNotFound:
		return http.StatusNotFound

	case ErrAlreadyExists, ErrConflict, ErrVersionMismatch:
		return http.StatusConflict

	case ErrRateLimit:
		return http.StatusTooManyRequests

	case ErrServiceUnavail, ErrSinkUnavailable, ErrGatewayTimeout:
		return http.StatusServiceUnavailable

	case ErrSystem:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}
