package errors

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrInvalidJSON      ErrorCode = "40003"
	ErrInvalidSignature ErrorCode = "40004"

	// Authentication errors (401xx)
	ErrUnauthorized       ErrorCode = "40101"
	ErrInvalidCredentials ErrorCode = "40102"
	ErrTokenExpired       ErrorCode = "40103"

	// Authorization errors (403xx)
	ErrForbidden ErrorCode = "40301"

	// Resource errors (404xx)
	ErrNotFound        ErrorCode = "40401"
	ErrProfileNotFound ErrorCode = "40402"

	// State errors (409xx)
	ErrConflict          ErrorCode = "40901"
	ErrInvalidState      ErrorCode = "40902"
	ErrAlreadyRegistered ErrorCode = "40903"
	ErrEventFull         ErrorCode = "40904"
	ErrRequestInFlight   ErrorCode = "40905"

	// Funds errors (422xx)
	ErrInsufficientFunds ErrorCode = "42201"

	// Rate limit errors (429xx)
	ErrRateLimited ErrorCode = "42901"

	// Server errors (500xx)
	ErrInternalServer ErrorCode = "50001"
	ErrDatabaseError  ErrorCode = "50002"
	ErrBrokerError    ErrorCode = "50003"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	Timestamp  string    `json:"timestamp,omitempty"`
	Path       string    `json:"path,omitempty"`
	Method     string    `json:"method,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error         APIError `json:"error"`
	RequestID     string   `json:"request_id"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// NewErrorResponse builds the envelope written to clients
func NewErrorResponse(apiErr *APIError, requestID, correlationID, path, method string) *ErrorResponse {
	e := *apiErr
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	e.Path = path
	e.Method = method
	if e.HTTPStatus == 0 {
		e.HTTPStatus = GetHTTPStatusFromCode(e.Code)
	}
	return &ErrorResponse{
		Error:         e,
		RequestID:     requestID,
		CorrelationID: correlationID,
	}
}

// GetHTTPStatusFromCode derives the HTTP status from the code prefix
func GetHTTPStatusFromCode(code ErrorCode) int {
	if len(code) < 3 {
		return http.StatusInternalServerError
	}
	switch code[:3] {
	case "400":
		return http.StatusBadRequest
	case "401":
		return http.StatusUnauthorized
	case "403":
		return http.StatusForbidden
	case "404":
		return http.StatusNotFound
	case "409":
		return http.StatusConflict
	case "422":
		return http.StatusUnprocessableEntity
	case "429":
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Common errors
var (
	ErrUnauthorizedError = &APIError{
		Code:       ErrUnauthorized,
		Message:    "Authentication required",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidCredentialsError = &APIError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid email or password",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpiredError = &APIError{
		Code:       ErrTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbiddenError = &APIError{
		Code:       ErrForbidden,
		Message:    "Access denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrNotFoundError = &APIError{
		Code:       ErrNotFound,
		Message:    "Resource not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrProfileNotFoundError = &APIError{
		Code:       ErrProfileNotFound,
		Message:    "Profile not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrConflictError = &APIError{
		Code:       ErrConflict,
		Message:    "Resource already exists",
		HTTPStatus: http.StatusConflict,
	}

	ErrInvalidStateError = &APIError{
		Code:       ErrInvalidState,
		Message:    "Operation not allowed in the current state",
		HTTPStatus: http.StatusConflict,
	}

	ErrAlreadyRegisteredError = &APIError{
		Code:       ErrAlreadyRegistered,
		Message:    "Already registered for this event",
		HTTPStatus: http.StatusConflict,
	}

	ErrEventFullError = &APIError{
		Code:       ErrEventFull,
		Message:    "Event is full",
		HTTPStatus: http.StatusConflict,
	}

	ErrRequestInFlightError = &APIError{
		Code:       ErrRequestInFlight,
		Message:    "A request with this idempotency key is already in progress",
		HTTPStatus: http.StatusConflict,
	}

	ErrInsufficientFundsError = &APIError{
		Code:       ErrInsufficientFunds,
		Message:    "Insufficient balance",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrRateLimitedError = &APIError{
		Code:       ErrRateLimited,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInvalidSignatureError = &APIError{
		Code:       ErrInvalidSignature,
		Message:    "Invalid webhook signature",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// withMessage copies a template error and replaces its message
func withMessage(tmpl *APIError, message string) *APIError {
	e := *tmpl
	if message != "" {
		e.Message = message
	}
	return &e
}

// FromError classifies a domain error. The boolean is false when the error
// matched no known kind; callers log those and answer with a generic 500.
func FromError(err error) (*APIError, bool) {
	if err == nil {
		return nil, true
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}

	var verr *models.ValidationError
	if stderrors.As(err, &verr) {
		return NewValidationError(verr.Fields), true
	}

	switch {
	case stderrors.Is(err, models.ErrForbidden):
		return withMessage(ErrForbiddenError, err.Error()), true
	case stderrors.Is(err, models.ErrUnauthorized):
		return withMessage(ErrUnauthorizedError, err.Error()), true
	case stderrors.Is(err, models.ErrValidation):
		return NewValidationError([]models.FieldError{{Message: err.Error()}}), true
	case stderrors.Is(err, models.ErrNotFound):
		return withMessage(ErrNotFoundError, err.Error()), true
	case stderrors.Is(err, models.ErrAlreadyRegistered):
		return withMessage(ErrAlreadyRegisteredError, err.Error()), true
	case stderrors.Is(err, models.ErrFull):
		return withMessage(ErrEventFullError, err.Error()), true
	case stderrors.Is(err, models.ErrInsufficientFunds):
		return withMessage(ErrInsufficientFundsError, err.Error()), true
	case stderrors.Is(err, models.ErrInvalidState):
		return withMessage(ErrInvalidStateError, err.Error()), true
	case stderrors.Is(err, models.ErrConflict):
		return withMessage(ErrConflictError, err.Error()), true
	}
	return ErrInternalServerError, false
}
