package auth_test

import (
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-fhir-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected auth.OutcomeKind
		status   int
	}{
		{name: "nil", err: nil, expected: auth.OutcomeOK, status: http.StatusOK},
		{name: "validation", err: auth.NewValidationError("bad"), expected: auth.OutcomeValidation, status: http.StatusBadRequest},
		{name: "not found", err: auth.NewNotFoundError("Login", "1"), expected: auth.OutcomeNotFound, status: http.StatusNotFound},
		{name: "gone", err: auth.NewGoneError("Login", "1"), expected: auth.OutcomeGone, status: http.StatusGone},
		{name: "invalid reference", err: auth.NewInvalidReferenceError("x", "malformed"), expected: auth.OutcomeInvalidReference, status: http.StatusBadRequest},
		{name: "conflict", err: auth.NewConflictError("Login", "1", "a", "b"), expected: auth.OutcomeConflict, status: http.StatusConflict},
		{name: "login revoked", err: auth.NewInvalidStateError(auth.TextCodeLoginRevoked, auth.MessageLoginRevoked), expected: auth.OutcomeInvalidState, status: http.StatusBadRequest},
		{name: "profile not found", err: auth.NewProfileNotFoundError("m1"), expected: auth.OutcomeProfileNotFound, status: http.StatusBadRequest},
		{name: "unauthorized", err: auth.NewUnauthorizedError(), expected: auth.OutcomeUnauthorized, status: http.StatusUnauthorized},
		{name: "token expired", err: auth.NewTokenExpiredError(), expected: auth.OutcomeUnauthorized, status: http.StatusUnauthorized},
		{name: "truncated", err: auth.NewTruncatedStreamError(3, 10, nil), expected: auth.OutcomeTruncated, status: http.StatusBadGateway},
		{name: "plain error", err: errors.New("boom"), expected: auth.OutcomeInternal, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.OutcomeKindOf(tt.err))
			assert.Equal(t, tt.status, auth.StatusForError(tt.err))
		})
	}
}

func TestOutcomeKindSurvivesWrapping(t *testing.T) {
	wrapped := goerrors.Wrap(auth.NewGoneError("Binary", "b1"), goerrors.CategoryOperation, "while streaming")
	assert.Equal(t, auth.OutcomeGone, auth.OutcomeKindOf(wrapped))
}

func TestConstructorsReturnFreshErrors(t *testing.T) {
	first := auth.NewNotFoundError("Login", "1")
	second := auth.NewNotFoundError("Login", "2")
	require.NotSame(t, first, second)

	first.WithMetadata(map[string]any{"extra": true})
	assert.NotContains(t, second.Metadata, "extra")
}

func TestIsRetryableOnlyForConflict(t *testing.T) {
	assert.True(t, auth.IsRetryable(auth.NewConflictError("Login", "1", "a", "b")))
	assert.False(t, auth.IsRetryable(auth.NewInvalidStateError(auth.TextCodeLoginProfileSet, auth.MessageLoginProfileSet)))
	assert.False(t, auth.IsRetryable(nil))
}

func TestNewOperationOutcome(t *testing.T) {
	t.Run("classified error keeps its message", func(t *testing.T) {
		outcome := auth.NewOperationOutcome(auth.NewInvalidStateError(auth.TextCodeLoginGranted, auth.MessageLoginGranted))
		assert.Equal(t, "OperationOutcome", outcome.ResourceType)
		require.Len(t, outcome.Issue, 1)
		assert.Equal(t, "error", outcome.Issue[0].Severity)
		assert.Equal(t, "invalid", outcome.Issue[0].Code)
		assert.Equal(t, "Login granted", outcome.Text())
	})

	t.Run("internal error hides its message", func(t *testing.T) {
		outcome := auth.NewOperationOutcome(errors.New("dsn=postgres://secret"))
		assert.Equal(t, "Internal server error", outcome.Text())
		assert.Equal(t, "exception", outcome.Issue[0].Code)
	})

	t.Run("nil is all ok", func(t *testing.T) {
		outcome := auth.NewOperationOutcome(nil)
		assert.Equal(t, "allok", outcome.ID)
		assert.Equal(t, "information", outcome.Issue[0].Severity)
	})
}

func TestAssertOK(t *testing.T) {
	assert.NotPanics(t, func() { auth.AssertOK(nil) })
	assert.Panics(t, func() { auth.AssertOK(auth.NewNotFoundError("Login", "1")) })
}
