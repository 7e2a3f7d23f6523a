package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// BindProfileMessage selects the membership a pending login acts as.
type BindProfileMessage struct {
	Login   string `json:"login" form:"login" example:"2d7c1a7e-1d61-4d4a-9a3c-5a0f3c2f6a11" doc:"Login id"`
	Profile string `json:"profile" form:"profile" example:"0b9b3c55-5d1e-4a8b-8f43-6c0f0f2b1e77" doc:"ProjectMembership id"`
}

func (e BindProfileMessage) Type() string { return "login.profile.bind" }

func (e BindProfileMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Login, validation.Required),
		validation.Field(&e.Profile, validation.Required),
	)
}

type BindProfileHandler struct {
	logins LoginStateMachine
	logger Logger
}

// NewBindProfileHandler creates a handler with sane defaults.
func NewBindProfileHandler(logins LoginStateMachine) *BindProfileHandler {
	return &BindProfileHandler{
		logins: logins,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *BindProfileHandler) WithLogger(logger Logger) *BindProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *BindProfileHandler) Execute(ctx context.Context, event BindProfileMessage) error {
	_, err := h.ExecuteWithResult(ctx, event)
	return err
}

// ExecuteWithResult binds the profile and returns the login id and code.
func (h *BindProfileHandler) ExecuteWithResult(ctx context.Context, event BindProfileMessage) (*BindProfileResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile selection",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *BindProfileHandler) execute(ctx context.Context, event BindProfileMessage) (*BindProfileResult, error) {
	if verr := goerrors.ValidateWithOzzo(event.Validate, "Invalid profile selection"); verr != nil {
		return nil, verr.
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	result, err := h.logins.BindProfile(ctx, event.Login, event.Profile)
	if IsRetryable(err) {
		// lost a race on the login version; the re-read decides the outcome
		h.logger.Info("profile selection conflict, retrying", "login_id", event.Login)
		result, err = h.logins.BindProfile(ctx, event.Login, event.Profile)
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}
