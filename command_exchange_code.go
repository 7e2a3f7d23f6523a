package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// ExchangeCodeMessage redeems the continuation code of a bound login.
type ExchangeCodeMessage struct {
	Code         string `json:"code" form:"code" doc:"Login continuation code"`
	CodeVerifier string `json:"code_verifier" form:"code_verifier" doc:"PKCE verifier, required when the login carries a challenge"`
	ClientID     string `json:"client_id" form:"client_id" doc:"Client application id"`
}

func (e ExchangeCodeMessage) Type() string { return "login.code.exchange" }

func (e ExchangeCodeMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Code, validation.Required),
	)
}

type ExchangeCodeHandler struct {
	repo     ResourceRepository
	logins   LoginStateMachine
	tokens   TokenService
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewExchangeCodeHandler creates a handler with sane defaults.
func NewExchangeCodeHandler(repo ResourceRepository, logins LoginStateMachine, tokens TokenService) *ExchangeCodeHandler {
	return &ExchangeCodeHandler{
		repo:     repo,
		logins:   logins,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit token events.
func (h *ExchangeCodeHandler) WithActivitySink(sink ActivitySink) *ExchangeCodeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ExchangeCodeHandler) WithLogger(logger Logger) *ExchangeCodeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ExchangeCodeHandler) Execute(ctx context.Context, event ExchangeCodeMessage) error {
	_, err := h.ExecuteWithResult(ctx, event)
	return err
}

// ExecuteWithResult grants the login behind the code and issues its token.
func (h *ExchangeCodeHandler) ExecuteWithResult(ctx context.Context, event ExchangeCodeMessage) (*IssuedToken, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during code exchange",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ExchangeCodeHandler) execute(ctx context.Context, event ExchangeCodeMessage) (*IssuedToken, error) {
	if verr := goerrors.ValidateWithOzzo(event.Validate, "Invalid token request"); verr != nil {
		return nil, verr.
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	login, err := h.findLogin(ctx, event.Code)
	if err != nil {
		return nil, err
	}

	if event.ClientID != "" && login.Client != nil && login.Client.ID() != event.ClientID {
		return nil, NewInvalidStateError(TextCodeInvalidCode, MessageInvalidCode)
	}

	if !verifyCodeChallenge(login.CodeChallenge, login.CodeChallengeMethod, event.CodeVerifier) {
		return nil, NewInvalidStateError(TextCodeInvalidCode, MessageInvalidCode).
			WithMetadata(map[string]any{"reason": "code verifier mismatch"})
	}

	granted, err := h.logins.Grant(ctx, login.ID, WithTransitionReason("code exchange"))
	if err != nil {
		return nil, err
	}

	token, err := h.tokens.Generate(granted)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, normalizeActivitySink(h.activity), h.logger, h.now, ActivityEvent{
		EventType: ActivityEventTokenIssued,
		Actor: ActorRef{
			ID:   granted.User.ID(),
			Type: "user",
		},
		LoginID:    granted.ID,
		User:       granted.User.String(),
		FromStatus: LoginStatusProfileBound,
		ToStatus:   LoginStatusGranted,
		Metadata: map[string]any{
			"project": token.Project,
			"profile": token.Profile,
		},
	})

	return token, nil
}

func (h *ExchangeCodeHandler) findLogin(ctx context.Context, code string) (*Login, error) {
	found, err := h.repo.Search(ctx, "Login", SearchParam{Name: "code", Value: code})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, NewInvalidStateError(TextCodeInvalidCode, MessageInvalidCode)
	}

	login, ok := found[0].(*Login)
	if !ok {
		return nil, newContractError("login search returned %T", found[0])
	}
	return login, nil
}

// verifyCodeChallenge checks a PKCE verifier against the stored challenge.
// Logins without a challenge accept any verifier.
func verifyCodeChallenge(challenge, method, verifier string) bool {
	if challenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}

	expected := verifier
	if strings.EqualFold(method, "S256") {
		sum := sha256.Sum256([]byte(verifier))
		expected = base64.RawURLEncoding.EncodeToString(sum[:])
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}
