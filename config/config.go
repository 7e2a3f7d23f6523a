// Package config holds the application configuration loaded by go-config.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type BaseConfig struct {
	Name        string      `json:"name" koanf:"name"`
	Debug       bool        `json:"debug" koanf:"debug"`
	Server      Server      `json:"server" koanf:"server"`
	Persistence Persistence `json:"persistence" koanf:"persistence"`
	Auth        Auth        `json:"auth" koanf:"auth"`
	Storage     Storage     `json:"storage" koanf:"storage"`
	Metrics     Metrics     `json:"metrics" koanf:"metrics"`
}

type Server struct {
	Address                   string `json:"address" koanf:"address"`
	ShutdownTimeoutExpression string `json:"shutdown_timeout" koanf:"shutdown_timeout"`
}

type Persistence struct {
	Driver                string `json:"driver" koanf:"driver"`
	DSN                   string `json:"dsn" koanf:"dsn"`
	Debug                 bool   `json:"debug" koanf:"debug"`
	Seed                  bool   `json:"seed" koanf:"seed"`
	PingTimeoutExpression string `json:"ping_timeout" koanf:"ping_timeout"`
}

type Auth struct {
	SigningKey          string   `json:"signing_key" koanf:"signing_key"`
	SigningMethod       string   `json:"signing_method" koanf:"signing_method"`
	Issuer              string   `json:"issuer" koanf:"issuer"`
	Audience            []string `json:"audience" koanf:"audience"`
	TokenExpiration     int      `json:"token_expiration" koanf:"token_expiration"`
	BinaryURLExpression string   `json:"binary_url_ttl" koanf:"binary_url_ttl"`
}

type Storage struct {
	Provider        string `json:"provider" koanf:"provider"`
	BaseDir         string `json:"base_dir" koanf:"base_dir"`
	Bucket          string `json:"bucket" koanf:"bucket"`
	CredentialsFile string `json:"credentials_file" koanf:"credentials_file"`
	BaseURL         string `json:"base_url" koanf:"base_url"`
	Uploads         bool   `json:"uploads" koanf:"uploads"`
}

type Metrics struct {
	Enabled bool   `json:"enabled" koanf:"enabled"`
	Path    string `json:"path" koanf:"path"`
}

func (a BaseConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Server),
		validation.Field(&a.Persistence),
		validation.Field(&a.Auth),
		validation.Field(&a.Storage),
	)
}

func (a *BaseConfig) GetServer() *Server           { return &a.Server }
func (a *BaseConfig) GetPersistence() *Persistence { return &a.Persistence }
func (a *BaseConfig) GetAuth() *Auth               { return &a.Auth }
func (a *BaseConfig) GetStorage() *Storage         { return &a.Storage }
func (a *BaseConfig) GetMetrics() *Metrics         { return &a.Metrics }

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Address, validation.Required),
		validation.Field(&s.ShutdownTimeoutExpression, validation.By(isDuration)),
	)
}

func (s *Server) GetAddress() string { return s.Address }

// GetShutdownTimeout defaults to ten seconds.
func (s *Server) GetShutdownTimeout() time.Duration {
	return parseDuration(s.ShutdownTimeoutExpression, 10*time.Second)
}

func (p Persistence) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&p.DSN, validation.Required),
		validation.Field(&p.PingTimeoutExpression, validation.By(isDuration)),
	)
}

func (p *Persistence) GetDriver() string { return p.Driver }
func (p *Persistence) GetDSN() string    { return p.DSN }
func (p *Persistence) GetDebug() bool    { return p.Debug }
func (p *Persistence) GetSeed() bool     { return p.Seed }

func (p *Persistence) GetPingTimeout() time.Duration {
	return parseDuration(p.PingTimeoutExpression, 5*time.Second)
}

func (a Auth) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&a.SigningMethod, validation.In("HS256")),
		validation.Field(&a.TokenExpiration, validation.Min(0)),
		validation.Field(&a.BinaryURLExpression, validation.By(isDuration)),
	)
}

func (a *Auth) GetSigningKey() string { return a.SigningKey }
func (a *Auth) GetIssuer() string     { return a.Issuer }
func (a *Auth) GetAudience() []string { return a.Audience }

func (a *Auth) GetTokenExpiration() int {
	if a.TokenExpiration <= 0 {
		return 1
	}
	return a.TokenExpiration
}

func (a *Auth) GetSigningMethod() string {
	if a.SigningMethod == "" {
		return "HS256"
	}
	return a.SigningMethod
}

// GetBinaryURLTTL bounds the lifetime of signed storage URLs.
func (a *Auth) GetBinaryURLTTL() time.Duration {
	return parseDuration(a.BinaryURLExpression, time.Hour)
}

func (s Storage) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Provider, validation.Required, validation.In("fs", "gcs")),
		validation.Field(&s.BaseDir, validation.When(s.Provider == "fs", validation.Required)),
		validation.Field(&s.Bucket, validation.When(s.Provider == "gcs", validation.Required)),
	)
}

func (s *Storage) GetProvider() string        { return s.Provider }
func (s *Storage) GetBaseDir() string         { return s.BaseDir }
func (s *Storage) GetBucket() string          { return s.Bucket }
func (s *Storage) GetCredentialsFile() string { return s.CredentialsFile }
func (s *Storage) GetBaseURL() string         { return s.BaseURL }
func (s *Storage) GetUploads() bool           { return s.Uploads }

func (m *Metrics) GetEnabled() bool { return m.Enabled }
func (m *Metrics) GetPath() string {
	if m.Path == "" {
		return "/metrics"
	}
	return m.Path
}

func isDuration(value any) error {
	expr, _ := value.(string)
	if expr == "" {
		return nil
	}
	if _, err := time.ParseDuration(expr); err != nil {
		return fmt.Errorf("invalid duration %q", expr)
	}
	return nil
}

func parseDuration(expr string, def time.Duration) time.Duration {
	if expr == "" {
		return def
	}
	dur, err := time.ParseDuration(expr)
	if err != nil {
		return def
	}
	return dur
}
