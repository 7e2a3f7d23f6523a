package auth

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// OutcomeKind classifies the result of a repository or lifecycle operation.
type OutcomeKind string

const (
	OutcomeOK               OutcomeKind = "ok"
	OutcomeValidation       OutcomeKind = "validation_error"
	OutcomeNotFound         OutcomeKind = "not_found"
	OutcomeGone             OutcomeKind = "gone"
	OutcomeInvalidReference OutcomeKind = "invalid_reference"
	OutcomeConflict         OutcomeKind = "conflict"
	OutcomeInvalidState     OutcomeKind = "invalid_state"
	OutcomeProfileNotFound  OutcomeKind = "profile_not_found"
	OutcomeUnauthorized     OutcomeKind = "unauthorized"
	OutcomeTruncated        OutcomeKind = "truncated"
	OutcomeInternal         OutcomeKind = "internal"
)

const (
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeNotFound           = "NOT_FOUND"
	TextCodeGone               = "GONE"
	TextCodeInvalidReference   = "INVALID_REFERENCE"
	TextCodeConflict           = "CONFLICT"
	TextCodeLoginRevoked       = "LOGIN_REVOKED"
	TextCodeLoginGranted       = "LOGIN_GRANTED"
	TextCodeLoginProfileSet    = "LOGIN_PROFILE_SET"
	TextCodeLoginProfileNotSet = "LOGIN_PROFILE_NOT_SET"
	TextCodeInvalidCode        = "INVALID_CODE"
	TextCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	TextCodeUnauthorized       = "UNAUTHORIZED"
	TextCodeTruncatedStream    = "TRUNCATED_STREAM"
	TextCodeContractViolation  = "CONTRACT_VIOLATION"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
)

// Messages surfaced verbatim to callers of the profile endpoint.
const (
	MessageLoginRevoked       = "Login revoked"
	MessageLoginGranted       = "Login granted"
	MessageLoginProfileSet    = "Login profile set"
	MessageLoginProfileNotSet = "Login profile not set"
	MessageProfileNotFound    = "Profile not found"
	MessageInvalidCode        = "Invalid code"
	MessageUnauthorized       = "Unauthorized"
)

// CodeGone is not part of the go-errors status set.
const CodeGone = 410

var textCodeKinds = map[string]OutcomeKind{
	TextCodeValidation:         OutcomeValidation,
	TextCodeNotFound:           OutcomeNotFound,
	TextCodeGone:               OutcomeGone,
	TextCodeInvalidReference:   OutcomeInvalidReference,
	TextCodeConflict:           OutcomeConflict,
	TextCodeLoginRevoked:       OutcomeInvalidState,
	TextCodeLoginGranted:       OutcomeInvalidState,
	TextCodeLoginProfileSet:    OutcomeInvalidState,
	TextCodeLoginProfileNotSet: OutcomeInvalidState,
	TextCodeInvalidCode:        OutcomeInvalidState,
	TextCodeProfileNotFound:    OutcomeProfileNotFound,
	TextCodeUnauthorized:       OutcomeUnauthorized,
	TextCodeTruncatedStream:    OutcomeTruncated,
	TextCodeTokenExpired:       OutcomeUnauthorized,
	TextCodeTokenMalformed:     OutcomeUnauthorized,
}

// NewValidationError reports a structurally invalid resource or request.
func NewValidationError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation)
}

// NewNotFoundError reports that no resource exists at the given identity.
func NewNotFoundError(resourceType, id string) *goerrors.Error {
	return goerrors.New("Not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(TextCodeNotFound).
		WithMetadata(map[string]any{
			"resource_type": resourceType,
			"id":            id,
		})
}

// NewGoneError reports that the latest version of a resource is a deletion marker.
func NewGoneError(resourceType, id string) *goerrors.Error {
	return goerrors.New("Deleted", goerrors.CategoryNotFound).
		WithCode(CodeGone).
		WithTextCode(TextCodeGone).
		WithMetadata(map[string]any{
			"resource_type": resourceType,
			"id":            id,
		})
}

// NewInvalidReferenceError reports a malformed or unresolvable pointer.
func NewInvalidReferenceError(reference, reason string) *goerrors.Error {
	return goerrors.New("Invalid reference", goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeInvalidReference).
		WithMetadata(map[string]any{
			"reference": reference,
			"reason":    reason,
		})
}

// NewConflictError reports an optimistic concurrency violation.
func NewConflictError(resourceType, id, expected, actual string) *goerrors.Error {
	return goerrors.New("Version conflict", goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict).
		WithTextCode(TextCodeConflict).
		WithMetadata(map[string]any{
			"resource_type":    resourceType,
			"id":               id,
			"expected_version": expected,
			"current_version":  actual,
		})
}

// NewInvalidStateError reports a violated login lifecycle precondition.
func NewInvalidStateError(textCode, message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(textCode)
}

// NewProfileNotFoundError reports a membership that is not eligible for the user.
func NewProfileNotFoundError(membershipID string) *goerrors.Error {
	return goerrors.New(MessageProfileNotFound, goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeProfileNotFound).
		WithMetadata(map[string]any{
			"profile": membershipID,
		})
}

// NewUnauthorizedError reports a request without the required capability.
func NewUnauthorizedError() *goerrors.Error {
	return goerrors.New(MessageUnauthorized, goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUnauthorized)
}

// NewTokenExpiredError reports an access token past its expiry.
func NewTokenExpiredError() *goerrors.Error {
	return goerrors.New("token expired", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeTokenExpired)
}

// NewTokenMalformedError reports a token that failed to parse or verify.
func NewTokenMalformedError(source error) *goerrors.Error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryAuth, "malformed token")
	} else {
		err = goerrors.New("malformed token", goerrors.CategoryAuth)
	}
	return err.
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeTokenMalformed)
}

// NewTruncatedStreamError reports a content stream that ended before delivering
// the expected payload.
func NewTruncatedStreamError(written, expected int64, source error) *goerrors.Error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, "binary stream truncated")
	} else {
		err = goerrors.New("binary stream truncated", goerrors.CategoryExternal)
	}
	return err.
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeTruncatedStream).
		WithMetadata(map[string]any{
			"written":  written,
			"expected": expected,
		})
}

func newContractError(format string, args ...any) *goerrors.Error {
	return goerrors.New(fmt.Sprintf(format, args...), goerrors.CategoryInternal).
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeContractViolation)
}

// OutcomeKindOf classifies err. A nil error is OutcomeOK.
func OutcomeKindOf(err error) OutcomeKind {
	if err == nil {
		return OutcomeOK
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return OutcomeInternal
	}

	if kind, ok := textCodeKinds[richErr.TextCode]; ok {
		return kind
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return OutcomeValidation
	case goerrors.CategoryNotFound:
		return OutcomeNotFound
	case goerrors.CategoryConflict:
		return OutcomeConflict
	case goerrors.CategoryAuth:
		return OutcomeUnauthorized
	}

	return OutcomeInternal
}

// IsOutcome reports whether err is classified as kind.
func IsOutcome(err error, kind OutcomeKind) bool {
	return OutcomeKindOf(err) == kind
}

// IsRetryable reports whether err may be retried after re-reading state.
// Only optimistic concurrency conflicts qualify.
func IsRetryable(err error) bool {
	return IsOutcome(err, OutcomeConflict)
}

// TextCodeOf returns the text code carried by err, if any.
func TextCodeOf(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// AssertOK panics when err is not nil. Use it where a failure means the
// caller broke a contract, not where a business rule may reject the request.
func AssertOK(err error) {
	if err != nil {
		panic(fmt.Sprintf("fhirauth: unexpected outcome %s: %v", OutcomeKindOf(err), err))
	}
}
