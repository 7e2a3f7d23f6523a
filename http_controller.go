package auth

import (
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterProfileRoutes mounts profile selection and code exchange on app.
func RegisterProfileRoutes[T any](app router.Router[T], opts ...ProfileControllerOption) *ProfileController {
	controller := NewProfileController(opts...)

	app.Post(controller.Routes.Profile, controller.ProfilePost).
		SetName("profile.post")

	app.Post(controller.Routes.Token, controller.TokenPost).
		SetName("token.post")

	if controller.MeGuard != nil {
		app.Get(controller.Routes.Me, controller.MeGet, controller.MeGuard).
			SetName("me.get")
	}

	return controller
}

type ProfileControllerRoutes struct {
	Profile string
	Token   string
	Me      string
}

type ProfileController struct {
	Debug        bool
	Logger       Logger
	Routes       *ProfileControllerRoutes
	BindProfile  *BindProfileHandler
	ExchangeCode *ExchangeCodeHandler
	Resolver     ReferenceResolver
	MeGuard      router.MiddlewareFunc
	ErrorHandler router.ErrorHandler
}

type ProfileControllerOption func(*ProfileController) *ProfileController

// WithBindProfileHandler sets the handler behind POST /auth/profile.
func WithBindProfileHandler(h *BindProfileHandler) ProfileControllerOption {
	return func(c *ProfileController) *ProfileController {
		c.BindProfile = h
		return c
	}
}

// WithExchangeCodeHandler sets the handler behind POST /auth/token.
func WithExchangeCodeHandler(h *ExchangeCodeHandler) ProfileControllerOption {
	return func(c *ProfileController) *ProfileController {
		c.ExchangeCode = h
		return c
	}
}

// WithMeRoute mounts GET /auth/me behind guard. The guard must leave the
// access token claims on the request; profiles are resolved through resolver.
func WithMeRoute(guard router.MiddlewareFunc, resolver ReferenceResolver) ProfileControllerOption {
	return func(c *ProfileController) *ProfileController {
		c.MeGuard = guard
		c.Resolver = resolver
		return c
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(logger Logger) ProfileControllerOption {
	return func(c *ProfileController) *ProfileController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug dumps request payloads to the debug log.
func WithControllerDebug(debug bool) ProfileControllerOption {
	return func(c *ProfileController) *ProfileController {
		c.Debug = debug
		return c
	}
}

func NewProfileController(opts ...ProfileControllerOption) *ProfileController {
	c := &ProfileController{
		Logger: defLogger{},
		Routes: &ProfileControllerRoutes{
			Profile: "/auth/profile",
			Token:   "/auth/token",
			Me:      "/auth/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.outcomeErrorHandler
	}

	if c.BindProfile == nil {
		panic("Missing BindProfileHandler in profile controller...")
	}

	if c.ExchangeCode == nil {
		panic("Missing ExchangeCodeHandler in profile controller...")
	}

	if c.MeGuard != nil && c.Resolver == nil {
		panic("Missing ReferenceResolver for profile controller me route...")
	}

	return c
}

// ProfilePost binds the selected membership to a pending login and hands
// back the login id and continuation code.
func (a *ProfileController) ProfilePost(ctx router.Context) error {
	payload := new(BindProfileMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, NewValidationError("Invalid request body"))
	}

	if a.Debug {
		a.Logger.Debug("profile selection request", "payload", print.MaybePrettyJSON(payload))
	}

	result, err := a.BindProfile.ExecuteWithResult(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

// TokenPost redeems a continuation code for an access token.
func (a *ProfileController) TokenPost(ctx router.Context) error {
	payload := new(ExchangeCodeMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, NewValidationError("Invalid request body"))
	}

	if a.Debug {
		a.Logger.Debug("token request", "client_id", payload.ClientID)
	}

	token, err := a.ExchangeCode.ExecuteWithResult(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	ctx.SetHeader("Cache-Control", "no-store")
	ctx.SetHeader("Pragma", "no-cache")
	return ctx.JSON(router.StatusOK, token)
}

// MeResponse describes the caller of an authenticated request.
type MeResponse struct {
	Login   string     `json:"login"`
	Project *Reference `json:"project,omitempty"`
	Profile Resource   `json:"profile"`
	Scope   string     `json:"scope,omitempty"`
}

// MeGet returns the profile the access token acts as.
func (a *ProfileController) MeGet(ctx router.Context) error {
	claims, ok := RequestClaims(ctx)
	if !ok {
		return a.ErrorHandler(ctx, NewUnauthorizedError())
	}

	profile, err := a.Resolver.Resolve(ctx.Context(), claims.ProfileReference())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	res := MeResponse{
		Login:   claims.LoginID,
		Profile: profile,
		Scope:   claims.Scope,
	}
	if claims.Project != "" {
		res.Project = &Reference{Reference: claims.Project}
	}
	return ctx.JSON(router.StatusOK, res)
}

func (a *ProfileController) outcomeErrorHandler(ctx router.Context, err error) error {
	status := StatusForError(err)
	if OutcomeKindOf(err) == OutcomeInternal {
		a.Logger.Error("request failed", "error", err)
	} else if a.Debug {
		a.Logger.Debug("request rejected", "status", status, "error", err)
	}
	return ctx.JSON(status, NewOperationOutcome(err))
}
