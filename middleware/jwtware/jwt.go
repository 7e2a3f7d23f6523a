package jwtware

import (
	"strings"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/goliatone/go-router"
)

var defaultTokenLookup = "header:" + router.HeaderAuthorization

// TokenValidator turns a raw access token into its claims.
type TokenValidator interface {
	Validate(tokenString string) (*auth.LoginClaims, error)
}

// ValidationListener is invoked after a token has been validated and before
// the scope check.
type ValidationListener func(ctx router.Context, claims *auth.LoginClaims) error

type Config struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	TokenValidator TokenValidator
	// ContextKey is the router locals key the claims are stored under.
	ContextKey  string
	TokenLookup string
	AuthScheme  string
	// RequiredScopes must all be granted by the token.
	RequiredScopes      []string
	ValidationListeners []ValidationListener
}

// New returns a middleware admitting requests that carry a valid access
// token. The claims are stored in the router locals and in the request
// context.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return hf(ctx)
			}

			raw := ExtractRawTokenFromContext(ctx, extractors)
			if raw == "" {
				return cfg.ErrorHandler(ctx, auth.NewUnauthorizedError().
					WithMetadata(map[string]any{"reason": "missing bearer token"}))
			}

			claims, err := cfg.TokenValidator.Validate(raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			for _, listener := range cfg.ValidationListeners {
				if listener == nil {
					continue
				}
				if err := listener(ctx, claims); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
			}

			for _, scope := range cfg.RequiredScopes {
				if !claims.HasScope(scope) {
					return cfg.ErrorHandler(ctx, auth.NewUnauthorizedError().
						WithMetadata(map[string]any{"reason": "insufficient scope", "scope": scope}))
				}
			}

			ctx.Locals(cfg.ContextKey, claims)
			ctx.SetContext(auth.WithClaimsContext(ctx.Context(), claims))

			if cfg.SuccessHandler != nil {
				if err := cfg.SuccessHandler(ctx); err != nil {
					return err
				}
			}
			return hf(ctx)
		}
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			status := auth.StatusForError(err)
			if status == router.StatusUnauthorized {
				return c.NoContent(status)
			}
			return c.JSON(status, auth.NewOperationOutcome(err))
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: bearer middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = auth.DefaultClaimsContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

type JWTExtractor func(c router.Context) string

func ExtractRawTokenFromContext(ctx router.Context, extractors []JWTExtractor) string {
	for _, extractor := range extractors {
		if raw := extractor(ctx); raw != "" {
			return raw
		}
	}
	return ""
}

// GetExtractors parses a lookup such as "header:Authorization,query:access_token".
func GetExtractors(tokenLookup string, authScheme string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(rootPart), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)

		switch strings.TrimSpace(source) {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

func fromHeader(header string, authScheme string) JWTExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c router.Context) string {
		value := c.Header(header)
		l := len(authScheme)
		if len(value) > l+1 && strings.EqualFold(value[:l], authScheme) && value[l] == ' ' {
			return strings.TrimSpace(value[l:])
		}
		return ""
	}
}

func fromQuery(param string) JWTExtractor {
	return func(c router.Context) string {
		return c.Query(param, "")
	}
}

func fromCookie(name string) JWTExtractor {
	return func(c router.Context) string {
		return c.Cookies(name)
	}
}
