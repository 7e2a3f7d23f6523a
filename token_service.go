package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// IssuedToken is an access token minted for a granted login.
type IssuedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"-"`
	Scope       string    `json:"scope,omitempty"`
	Project     string    `json:"project,omitempty"`
	Profile     string    `json:"profile,omitempty"`
}

// TokenService signs and validates login access tokens.
type TokenService interface {
	Generate(login *Login) (*IssuedToken, error)
	SignClaims(claims *LoginClaims) (string, error)
	Validate(tokenString string) (*LoginClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	now             func() time.Time
	logger          Logger
}

// NewTokenService creates a new TokenService instance. tokenExpiration is
// expressed in hours.
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		now:             time.Now,
		logger:          logger,
	}
}

// NewTokenServiceFromConfig builds the service from auth options.
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenServiceImpl {
	return NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenExpiration(),
		cfg.GetIssuer(),
		jwt.ClaimStrings(cfg.GetAudience()),
		logger,
	)
}

// WithClock overrides the time source used for issued and expiry claims.
func (ts *TokenServiceImpl) WithClock(now func() time.Time) *TokenServiceImpl {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Generate mints an access token for a granted login.
func (ts *TokenServiceImpl) Generate(login *Login) (*IssuedToken, error) {
	if login == nil {
		return nil, goerrors.New("login must not be nil", goerrors.CategoryInternal)
	}
	if !login.Granted || login.Profile == nil {
		return nil, NewInvalidStateError(TextCodeLoginProfileNotSet, MessageLoginProfileNotSet)
	}

	now := ts.now()
	ttl := time.Duration(ts.tokenExpiration) * time.Hour
	expiresAt := now.Add(ttl)

	claims := NewLoginClaims(login)
	claims.RegisteredClaims.Issuer = ts.issuer
	claims.RegisteredClaims.Audience = ts.audience
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.RegisteredClaims.ID = uuid.NewString()

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return nil, err
	}

	return &IssuedToken{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		ExpiresAt:   expiresAt,
		Scope:       login.Scope,
		Project:     claims.Project,
		Profile:     claims.Profile,
	}, nil
}

// SignClaims signs arbitrary login claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *LoginClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(tokenString string) (*LoginClaims, error) {
	parserOptions := []jwt.ParserOption{jwt.WithTimeFunc(ts.now)}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &LoginClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, NewTokenExpiredError()
		}
		return nil, NewTokenMalformedError(err)
	}

	if claims, ok := token.Claims.(*LoginClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, NewTokenMalformedError(nil)
}
