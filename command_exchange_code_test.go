package auth_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exchangeFixture struct {
	*fixture
	sm       auth.LoginStateMachine
	tokens   *auth.TokenServiceImpl
	handler  *auth.ExchangeCodeHandler
	activity *recordingSink
}

func newExchangeFixture(t *testing.T, configure func(login *auth.Login)) *exchangeFixture {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t, auth.NewMemoryRepository())

	if configure != nil {
		configure(f.login)
		login, err := auth.UpdateAs(ctx, f.repo, f.login)
		require.NoError(t, err)
		f.login = login
	}

	sm := auth.NewLoginStateMachine(f.repo)
	_, err := sm.BindProfile(ctx, f.login.ID, f.membership.ID)
	require.NoError(t, err)

	tokens := auth.NewTokenService(testSigningKey, 1, "fhirauth", nil, nil)
	activity := &recordingSink{}
	handler := auth.NewExchangeCodeHandler(f.repo, sm, tokens).WithActivitySink(activity)

	return &exchangeFixture{fixture: f, sm: sm, tokens: tokens, handler: handler, activity: activity}
}

func TestExchangeCodeIssuesToken(t *testing.T) {
	f := newExchangeFixture(t, nil)
	ctx := context.Background()

	token, err := f.handler.ExecuteWithResult(ctx, auth.ExchangeCodeMessage{Code: f.login.Code})
	require.NoError(t, err)
	assert.Equal(t, auth.CreateReference(f.practitioner).Reference, token.Profile)
	assert.Equal(t, auth.CreateReference(f.project).Reference, token.Project)

	claims, err := f.tokens.Validate(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.login.ID, claims.LoginID)
	assert.Equal(t, f.practitioner.ID, claims.Subject)

	login, err := auth.ReadAs[*auth.Login](ctx, f.repo, "Login", f.login.ID)
	require.NoError(t, err)
	assert.True(t, login.Granted)

	require.Len(t, f.activity.events, 1)
	assert.Equal(t, auth.ActivityEventTokenIssued, f.activity.events[0].EventType)

	_, err = f.handler.ExecuteWithResult(ctx, auth.ExchangeCodeMessage{Code: f.login.Code})
	assert.Equal(t, auth.TextCodeLoginGranted, auth.TextCodeOf(err))
}

func TestExchangeCodeRejectsUnknownCode(t *testing.T) {
	f := newExchangeFixture(t, nil)

	_, err := f.handler.ExecuteWithResult(context.Background(), auth.ExchangeCodeMessage{Code: "nope"})
	assert.Equal(t, auth.TextCodeInvalidCode, auth.TextCodeOf(err))

	err = f.handler.Execute(context.Background(), auth.ExchangeCodeMessage{})
	assert.True(t, auth.IsOutcome(err, auth.OutcomeValidation))
}

func TestExchangeCodeRequiresBoundLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, auth.NewMemoryRepository())
	sm := auth.NewLoginStateMachine(f.repo)
	handler := auth.NewExchangeCodeHandler(f.repo, sm, auth.NewTokenService(testSigningKey, 1, "", nil, nil))

	_, err := handler.ExecuteWithResult(ctx, auth.ExchangeCodeMessage{Code: f.login.Code})
	assert.Equal(t, auth.TextCodeLoginProfileNotSet, auth.TextCodeOf(err))
}

func TestExchangeCodeChecksClient(t *testing.T) {
	f := newExchangeFixture(t, func(login *auth.Login) {
		login.Client = auth.NewReference("ClientApplication", "app1")
	})

	_, err := f.handler.ExecuteWithResult(context.Background(), auth.ExchangeCodeMessage{Code: f.login.Code, ClientID: "app2"})
	assert.Equal(t, auth.TextCodeInvalidCode, auth.TextCodeOf(err))

	_, err = f.handler.ExecuteWithResult(context.Background(), auth.ExchangeCodeMessage{Code: f.login.Code, ClientID: "app1"})
	assert.NoError(t, err)
}

func TestExchangeCodeVerifiesPKCE(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	tests := []struct {
		name     string
		method   string
		stored   string
		verifier string
		ok       bool
	}{
		{name: "S256 match", method: "S256", stored: challenge, verifier: verifier, ok: true},
		{name: "S256 mismatch", method: "S256", stored: challenge, verifier: "wrong", ok: false},
		{name: "S256 missing verifier", method: "S256", stored: challenge, verifier: "", ok: false},
		{name: "plain match", method: "plain", stored: verifier, verifier: verifier, ok: true},
		{name: "plain mismatch", method: "plain", stored: verifier, verifier: challenge, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExchangeFixture(t, func(login *auth.Login) {
				login.CodeChallenge = tt.stored
				login.CodeChallengeMethod = tt.method
			})

			_, err := f.handler.ExecuteWithResult(context.Background(), auth.ExchangeCodeMessage{
				Code:         f.login.Code,
				CodeVerifier: tt.verifier,
			})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, auth.TextCodeInvalidCode, auth.TextCodeOf(err))
		})
	}
}
