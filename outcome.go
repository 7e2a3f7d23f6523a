package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// OperationOutcome is the wire representation of an operation result.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	ID           string                  `json:"id"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

// OperationOutcomeIssue describes a single issue within an outcome.
type OperationOutcomeIssue struct {
	Severity   string                   `json:"severity"`
	Code       string                   `json:"code"`
	Details    *OperationOutcomeDetails `json:"details,omitempty"`
	Expression []string                 `json:"expression,omitempty"`
}

// OperationOutcomeDetails carries the human readable text of an issue.
type OperationOutcomeDetails struct {
	Text string `json:"text"`
}

var outcomeStatus = map[OutcomeKind]int{
	OutcomeOK:               http.StatusOK,
	OutcomeValidation:       http.StatusBadRequest,
	OutcomeNotFound:         http.StatusNotFound,
	OutcomeGone:             http.StatusGone,
	OutcomeInvalidReference: http.StatusBadRequest,
	OutcomeConflict:         http.StatusConflict,
	OutcomeInvalidState:     http.StatusBadRequest,
	OutcomeProfileNotFound:  http.StatusBadRequest,
	OutcomeUnauthorized:     http.StatusUnauthorized,
	OutcomeTruncated:        http.StatusBadGateway,
	OutcomeInternal:         http.StatusInternalServerError,
}

var outcomeIssueCode = map[OutcomeKind]string{
	OutcomeOK:               "informational",
	OutcomeValidation:       "invalid",
	OutcomeNotFound:         "not-found",
	OutcomeGone:             "deleted",
	OutcomeInvalidReference: "invalid",
	OutcomeConflict:         "conflict",
	OutcomeInvalidState:     "invalid",
	OutcomeProfileNotFound:  "invalid",
	OutcomeUnauthorized:     "login",
	OutcomeTruncated:        "incomplete",
	OutcomeInternal:         "exception",
}

// StatusForOutcome maps an outcome kind to a stable HTTP status code.
func StatusForOutcome(kind OutcomeKind) int {
	if status, ok := outcomeStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusForError maps err to the HTTP status callers should receive.
func StatusForError(err error) int {
	return StatusForOutcome(OutcomeKindOf(err))
}

// NewOperationOutcome converts err into an outcome body. Internal failures
// never leak their message.
func NewOperationOutcome(err error) OperationOutcome {
	kind := OutcomeKindOf(err)
	if kind == OutcomeOK {
		return OperationOutcome{
			ResourceType: "OperationOutcome",
			ID:           "allok",
			Issue: []OperationOutcomeIssue{{
				Severity: "information",
				Code:     outcomeIssueCode[OutcomeOK],
				Details:  &OperationOutcomeDetails{Text: "All OK"},
			}},
		}
	}

	text := "Internal server error"
	var expression []string
	var richErr *goerrors.Error
	if kind != OutcomeInternal && goerrors.As(err, &richErr) {
		text = richErr.Message
		for _, fe := range richErr.ValidationErrors {
			expression = append(expression, fe.Field)
		}
	}

	return OperationOutcome{
		ResourceType: "OperationOutcome",
		ID:           string(kind),
		Issue: []OperationOutcomeIssue{{
			Severity:   "error",
			Code:       outcomeIssueCode[kind],
			Details:    &OperationOutcomeDetails{Text: text},
			Expression: expression,
		}},
	}
}

// Text returns the first issue detail text, if present.
func (o OperationOutcome) Text() string {
	if len(o.Issue) == 0 || o.Issue[0].Details == nil {
		return ""
	}
	return o.Issue[0].Details.Text
}
