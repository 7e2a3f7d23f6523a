package auth_test

import (
	"context"
	"errors"
	"testing"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type controllerFixture struct {
	*exchangeFixture
	controller *auth.ProfileController
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	f := newExchangeFixture(t, nil)
	controller := auth.NewProfileController(
		auth.WithBindProfileHandler(auth.NewBindProfileHandler(f.sm)),
		auth.WithExchangeCodeHandler(f.handler),
	)
	return &controllerFixture{exchangeFixture: f, controller: controller}
}

func bindPayload[T any](ctx *router.MockContext, payload T) {
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(0).(*T) = payload
	}).Return(nil)
}

func TestProfilePostReturnsLoginAndCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, auth.NewMemoryRepository())
	sm := auth.NewLoginStateMachine(f.repo)
	tokens := auth.NewTokenService(testSigningKey, 1, "fhirauth", nil, nil)
	controller := auth.NewProfileController(
		auth.WithBindProfileHandler(auth.NewBindProfileHandler(sm)),
		auth.WithExchangeCodeHandler(auth.NewExchangeCodeHandler(f.repo, sm, tokens)),
	)

	rctx := router.NewMockContext()
	rctx.On("Context").Return(ctx)
	bindPayload(rctx, auth.BindProfileMessage{Login: f.login.ID, Profile: f.membership.ID})

	var result *auth.BindProfileResult
	rctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		result = args.Get(1).(*auth.BindProfileResult)
	}).Return(nil)

	require.NoError(t, controller.ProfilePost(rctx))
	require.NotNil(t, result)
	assert.Equal(t, f.login.ID, result.Login)
	assert.Equal(t, f.login.Code, result.Code)
	rctx.AssertExpectations(t)
}

func TestProfilePostRejectsMissingFields(t *testing.T) {
	f := newControllerFixture(t)

	rctx := router.NewMockContext()
	rctx.On("Context").Return(context.Background())
	bindPayload(rctx, auth.BindProfileMessage{Login: f.login.ID})

	var outcome auth.OperationOutcome
	rctx.On("JSON", router.StatusBadRequest, mock.Anything).Run(func(args mock.Arguments) {
		outcome = args.Get(1).(auth.OperationOutcome)
	}).Return(nil)

	require.NoError(t, f.controller.ProfilePost(rctx))
	require.Len(t, outcome.Issue, 1)
	assert.Equal(t, "invalid", outcome.Issue[0].Code)
	assert.Contains(t, outcome.Issue[0].Expression, "profile")
}

func TestProfilePostUnreadableBody(t *testing.T) {
	f := newControllerFixture(t)

	rctx := router.NewMockContext()
	rctx.On("Bind", mock.Anything).Return(errors.New("unexpected EOF"))
	rctx.On("JSON", router.StatusBadRequest, mock.Anything).Return(nil)

	require.NoError(t, f.controller.ProfilePost(rctx))
	rctx.AssertExpectations(t)
}

func TestProfilePostReportsStateRejection(t *testing.T) {
	f := newControllerFixture(t)
	_, err := f.sm.Revoke(context.Background(), f.login.ID)
	require.NoError(t, err)

	rctx := router.NewMockContext()
	rctx.On("Context").Return(context.Background())
	bindPayload(rctx, auth.BindProfileMessage{Login: f.login.ID, Profile: f.membership.ID})

	var outcome auth.OperationOutcome
	rctx.On("JSON", router.StatusBadRequest, mock.Anything).Run(func(args mock.Arguments) {
		outcome = args.Get(1).(auth.OperationOutcome)
	}).Return(nil)

	require.NoError(t, f.controller.ProfilePost(rctx))
	require.Len(t, outcome.Issue, 1)
	require.NotNil(t, outcome.Issue[0].Details)
	assert.Equal(t, auth.MessageLoginRevoked, outcome.Issue[0].Details.Text)
}

func TestTokenPostIssuesUncachedToken(t *testing.T) {
	f := newControllerFixture(t)

	rctx := router.NewMockContext()
	rctx.On("Context").Return(context.Background())
	bindPayload(rctx, auth.ExchangeCodeMessage{Code: f.login.Code})
	rctx.On("SetHeader", "Cache-Control", "no-store").Return(rctx)
	rctx.On("SetHeader", "Pragma", "no-cache").Return(rctx)

	var token *auth.IssuedToken
	rctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		token = args.Get(1).(*auth.IssuedToken)
	}).Return(nil)

	require.NoError(t, f.controller.TokenPost(rctx))
	require.NotNil(t, token)
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	rctx.AssertExpectations(t)
}

func TestTokenPostUnknownCode(t *testing.T) {
	f := newControllerFixture(t)

	rctx := router.NewMockContext()
	rctx.On("Context").Return(context.Background())
	bindPayload(rctx, auth.ExchangeCodeMessage{Code: "nope"})

	var outcome auth.OperationOutcome
	rctx.On("JSON", router.StatusBadRequest, mock.Anything).Run(func(args mock.Arguments) {
		outcome = args.Get(1).(auth.OperationOutcome)
	}).Return(nil)

	require.NoError(t, f.controller.TokenPost(rctx))
	require.Len(t, outcome.Issue, 1)
	assert.Equal(t, auth.MessageInvalidCode, outcome.Issue[0].Details.Text)
	rctx.AssertNotCalled(t, "SetHeader", mock.Anything, mock.Anything)
}

func TestNewProfileControllerRequiresHandlers(t *testing.T) {
	assert.Panics(t, func() { auth.NewProfileController() })
}

func TestMeGetResolvesProfile(t *testing.T) {
	f := newControllerFixture(t)
	controller := auth.NewProfileController(
		auth.WithBindProfileHandler(auth.NewBindProfileHandler(f.sm)),
		auth.WithExchangeCodeHandler(f.handler),
		auth.WithMeRoute(func(next router.HandlerFunc) router.HandlerFunc { return next }, auth.NewReferenceResolver(f.repo)),
	)

	claims := &auth.LoginClaims{
		LoginID: f.login.ID,
		Profile: auth.CreateReference(f.practitioner).Reference,
		Project: auth.CreateReference(f.project).Reference,
		Scope:   "openid",
	}

	rctx := router.NewMockContext()
	rctx.On("Context").Return(auth.WithClaimsContext(context.Background(), claims))

	var res auth.MeResponse
	rctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		res = args.Get(1).(auth.MeResponse)
	}).Return(nil)

	require.NoError(t, controller.MeGet(rctx))
	assert.Equal(t, f.login.ID, res.Login)
	assert.Equal(t, "openid", res.Scope)
	require.NotNil(t, res.Project)
	assert.Equal(t, claims.Project, res.Project.Reference)

	practitioner, ok := res.Profile.(*auth.Practitioner)
	require.True(t, ok)
	assert.Equal(t, f.practitioner.ID, practitioner.ID)
}

func TestMeGetRequiresClaims(t *testing.T) {
	f := newControllerFixture(t)
	controller := auth.NewProfileController(
		auth.WithBindProfileHandler(auth.NewBindProfileHandler(f.sm)),
		auth.WithExchangeCodeHandler(f.handler),
		auth.WithMeRoute(func(next router.HandlerFunc) router.HandlerFunc { return next }, auth.NewReferenceResolver(f.repo)),
	)

	rctx := router.NewMockContext()
	rctx.On("Context").Return(context.Background())
	rctx.On("Locals", auth.DefaultClaimsContextKey).Return(nil).Maybe()
	rctx.On("JSON", router.StatusUnauthorized, mock.Anything).Return(nil)

	require.NoError(t, controller.MeGet(rctx))
	rctx.AssertCalled(t, "JSON", router.StatusUnauthorized, mock.Anything)
}
