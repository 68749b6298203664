package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
	"pgregory.net/rapid"
)

// TestProperty_ErrorResponse_StandardFormat tests that all error responses follow the standard format
// *For any* API error, the error response SHALL include code, message, timestamp, request_id, and correlation_id.
func TestProperty_ErrorResponse_StandardFormat(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		errorCodes := []ErrorCode{
			ErrInvalidRequest, ErrValidationFailed, ErrInvalidJSON, ErrInvalidSignature,
			ErrUnauthorized, ErrInvalidCredentials, ErrTokenExpired,
			ErrForbidden, ErrNotFound, ErrProfileNotFound,
			ErrConflict, ErrInvalidState, ErrAlreadyRegistered, ErrEventFull, ErrRequestInFlight,
			ErrInsufficientFunds, ErrRateLimited,
			ErrInternalServer, ErrDatabaseError, ErrBrokerError,
		}
		code := errorCodes[rapid.IntRange(0, len(errorCodes)-1).Draw(rt, "codeIdx")]
		message := rapid.StringMatching(`[a-zA-Z0-9 .,!?]{10,100}`).Draw(rt, "message")
		requestID := rapid.StringMatching(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`).Draw(rt, "requestID")
		correlationID := rapid.StringMatching(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`).Draw(rt, "correlationID")

		paths := []string{"/api/projects", "/api/events/123/registrations", "/api/users/abc/transactions"}
		methods := []string{"GET", "POST", "PUT"}
		path := paths[rapid.IntRange(0, len(paths)-1).Draw(rt, "pathIdx")]
		method := methods[rapid.IntRange(0, len(methods)-1).Draw(rt, "methodIdx")]

		apiErr := &APIError{Code: code, Message: message}
		response := NewErrorResponse(apiErr, requestID, correlationID, path, method)

		if response.Error.Code == "" {
			t.Fatal("PROPERTY VIOLATION: Error response must have error code")
		}
		if response.Error.Message == "" {
			t.Fatal("PROPERTY VIOLATION: Error response must have message")
		}
		if _, err := time.Parse(time.RFC3339, response.Error.Timestamp); err != nil {
			t.Fatalf("PROPERTY VIOLATION: Timestamp must be valid RFC3339 format: %v", err)
		}
		if response.RequestID != requestID || response.CorrelationID != correlationID {
			t.Fatal("PROPERTY VIOLATION: Error response must carry request_id and correlation_id")
		}
		if response.Error.Path != path || response.Error.Method != method {
			t.Fatalf("PROPERTY VIOLATION: Path/method mismatch: %s %s", response.Error.Method, response.Error.Path)
		}
		if response.Error.HTTPStatus != GetHTTPStatusFromCode(code) {
			t.Fatalf("PROPERTY VIOLATION: status %d does not match code %s", response.Error.HTTPStatus, code)
		}
		if apiErr.Timestamp != "" {
			t.Fatal("PROPERTY VIOLATION: NewErrorResponse must not mutate the template error")
		}
	})
}

// TestProperty_FromError_WrappedKinds tests that wrapped domain errors keep their classification
// *For any* domain error kind wrapped with extra context, FromError SHALL map it to the kind's status.
func TestProperty_FromError_WrappedKinds(t *testing.T) {
	cases := []struct {
		kind   error
		status int
	}{
		{models.ErrUnauthorized, http.StatusUnauthorized},
		{models.ErrForbidden, http.StatusForbidden},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrInvalidState, http.StatusConflict},
		{models.ErrConflict, http.StatusConflict},
		{models.ErrAlreadyRegistered, http.StatusConflict},
		{models.ErrFull, http.StatusConflict},
		{models.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{models.ErrValidation, http.StatusBadRequest},
	}

	rapid.Check(t, func(rt *rapid.T) {
		c := cases[rapid.IntRange(0, len(cases)-1).Draw(rt, "case")]
		depth := rapid.IntRange(0, 3).Draw(rt, "depth")

		err := c.kind
		for i := 0; i < depth; i++ {
			err = fmt.Errorf("layer %d: %w", i, err)
		}

		apiErr, known := FromError(err)
		if !known {
			t.Fatalf("PROPERTY VIOLATION: %v should be a known kind", err)
		}
		if apiErr.HTTPStatus != c.status {
			t.Fatalf("PROPERTY VIOLATION: %v mapped to %d, expected %d", err, apiErr.HTTPStatus, c.status)
		}
	})
}

func TestFromError_ValidationDetails(t *testing.T) {
	v := &models.ValidationError{}
	v.Add("title", "is required")
	v.Add("budget", "must be positive")

	apiErr, known := FromError(fmt.Errorf("create project: %w", v))
	if !known {
		t.Fatal("validation error should be known")
	}
	if apiErr.Code != ErrValidationFailed {
		t.Fatalf("expected code %s, got %s", ErrValidationFailed, apiErr.Code)
	}
	fields, ok := apiErr.Details.([]models.FieldError)
	if !ok || len(fields) != 2 {
		t.Fatalf("expected two field details, got %#v", apiErr.Details)
	}
}

func TestFromError_Unknown(t *testing.T) {
	apiErr, known := FromError(stderrors.New("connection reset by peer"))
	if known {
		t.Fatal("unexpected classification of an unknown error")
	}
	if apiErr.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", apiErr.HTTPStatus)
	}
	if apiErr.Message != "Internal server error" {
		t.Fatalf("internal details leaked: %q", apiErr.Message)
	}
}

func TestGetHTTPStatusFromCode(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrInvalidSignature:  http.StatusBadRequest,
		ErrTokenExpired:      http.StatusUnauthorized,
		ErrForbidden:         http.StatusForbidden,
		ErrProfileNotFound:   http.StatusNotFound,
		ErrRequestInFlight:   http.StatusConflict,
		ErrInsufficientFunds: http.StatusUnprocessableEntity,
		ErrRateLimited:       http.StatusTooManyRequests,
		ErrBrokerError:       http.StatusInternalServerError,
		ErrorCode(""):        http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := GetHTTPStatusFromCode(code); got != want {
			t.Errorf("code %q: expected %d, got %d", code, want, got)
		}
	}
}
