package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Resource is implemented by every persisted resource type.
type Resource interface {
	ResourceType() string
	GetID() string
	SetID(id string)
	GetMeta() *Meta
	Validate() error
}

// ReferenceIndexer exposes the reference search parameters a resource
// should be findable by, keyed by parameter name.
type ReferenceIndexer interface {
	SearchReferences() map[string]*Reference
}

// TokenIndexer exposes plain token search parameters, keyed by name.
type TokenIndexer interface {
	SearchTokens() map[string]string
}

// Meta is the metadata envelope carried by every stored resource.
type Meta struct {
	VersionID   string     `json:"versionId,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Project     string     `json:"project,omitempty"`
	Author      *Reference `json:"author,omitempty"`
}

// ResourceBase holds the identity shared by all resources.
type ResourceBase struct {
	ID   string `json:"id,omitempty"`
	Meta *Meta  `json:"meta,omitempty"`
}

func (r *ResourceBase) GetID() string { return r.ID }

func (r *ResourceBase) SetID(id string) { r.ID = id }

// GetMeta returns the envelope, allocating it on first use.
func (r *ResourceBase) GetMeta() *Meta {
	if r.Meta == nil {
		r.Meta = &Meta{}
	}
	return r.Meta
}

// VersionID returns the stored version or an empty string.
func (r *ResourceBase) VersionID() string {
	if r.Meta == nil {
		return ""
	}
	return r.Meta.VersionID
}

// HumanName is a simplified person name.
type HumanName struct {
	Given  []string `json:"given,omitempty"`
	Family string   `json:"family,omitempty"`
}

// AuthMethod identifies how a login was authenticated.
type AuthMethod = string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodGoogle   AuthMethod = "google"
	AuthMethodExternal AuthMethod = "external"
	AuthMethodClient   AuthMethod = "client"
	AuthMethodExchange AuthMethod = "exchange"
)

// Login tracks one authentication session from identity verification
// through profile selection to grant.
type Login struct {
	ResourceBase
	User                *Reference `json:"user,omitempty"`
	AuthMethod          AuthMethod `json:"authMethod,omitempty"`
	Client              *Reference `json:"client,omitempty"`
	Project             *Reference `json:"project,omitempty"`
	Profile             *Reference `json:"profile,omitempty"`
	Membership          *Reference `json:"membership,omitempty"`
	AccessPolicy        *Reference `json:"accessPolicy,omitempty"`
	AuthTime            *time.Time `json:"authTime,omitempty"`
	Scope               string     `json:"scope,omitempty"`
	Nonce               string     `json:"nonce,omitempty"`
	CodeChallenge       string     `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string     `json:"codeChallengeMethod,omitempty"`
	Code                string     `json:"code,omitempty"`
	Granted             bool       `json:"granted,omitempty"`
	Revoked             bool       `json:"revoked,omitempty"`
	RemoteAddress       string     `json:"remoteAddress,omitempty"`
	UserAgent           string     `json:"userAgent,omitempty"`
}

func (*Login) ResourceType() string { return "Login" }

func (l *Login) Validate() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.User, validation.Required, validation.By(validateReference)),
		validation.Field(&l.AuthMethod, validation.In(
			AuthMethodPassword,
			AuthMethodGoogle,
			AuthMethodExternal,
			AuthMethodClient,
			AuthMethodExchange,
		)),
		validation.Field(&l.Client, validation.By(validateReference)),
		validation.Field(&l.Project, validation.By(validateReference)),
		validation.Field(&l.Profile, validation.By(validateProfileReference)),
		validation.Field(&l.Membership, validation.By(validateReference)),
		validation.Field(&l.AccessPolicy, validation.By(validateReference)),
		validation.Field(&l.Granted, validation.By(func(any) error {
			if l.Granted && l.Revoked {
				return validation.NewError("login_terminal", "granted and revoked are mutually exclusive")
			}
			if l.Granted && l.Profile == nil {
				return validation.NewError("login_unbound", "cannot be granted before a profile is bound")
			}
			return nil
		})),
	)
}

func (l *Login) SearchReferences() map[string]*Reference {
	return map[string]*Reference{
		"user":    l.User,
		"client":  l.Client,
		"project": l.Project,
		"profile": l.Profile,
	}
}

func (l *Login) SearchTokens() map[string]string {
	return map[string]string{
		"code": l.Code,
	}
}

// ProjectMembership grants a user the right to act as a profile within a project.
type ProjectMembership struct {
	ResourceBase
	Project      *Reference `json:"project,omitempty"`
	User         *Reference `json:"user,omitempty"`
	Profile      *Reference `json:"profile,omitempty"`
	AccessPolicy *Reference `json:"accessPolicy,omitempty"`
	Admin        bool       `json:"admin,omitempty"`
}

func (*ProjectMembership) ResourceType() string { return "ProjectMembership" }

func (m *ProjectMembership) Validate() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Project, validation.Required, validation.By(validateReference)),
		validation.Field(&m.User, validation.Required, validation.By(validateReference)),
		validation.Field(&m.Profile, validation.Required, validation.By(validateProfileReference)),
		validation.Field(&m.AccessPolicy, validation.By(validateReference)),
	)
}

func (m *ProjectMembership) SearchReferences() map[string]*Reference {
	return map[string]*Reference{
		"user":    m.User,
		"project": m.Project,
		"profile": m.Profile,
	}
}

// ProjectSecret is a named secret configuration entry.
type ProjectSecret struct {
	Name        string `json:"name"`
	ValueString string `json:"valueString,omitempty"`
}

// Project is the tenant boundary.
type Project struct {
	ResourceBase
	Name       string          `json:"name,omitempty"`
	Owner      *Reference      `json:"owner,omitempty"`
	StrictMode bool            `json:"strictMode,omitempty"`
	Features   []string        `json:"features,omitempty"`
	Secret     []ProjectSecret `json:"secret,omitempty"`
}

func (*Project) ResourceType() string { return "Project" }

func (p *Project) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Owner, validation.By(validateReference)),
	)
}

// HasFeature reports whether the project enables feature.
func (p *Project) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// User is the authenticated identity behind a login.
type User struct {
	ResourceBase
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	Email     string     `json:"email,omitempty"`
	Project   *Reference `json:"project,omitempty"`
}

func (*User) ResourceType() string { return "User" }

func (u *User) Validate() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Email, is.EmailFormat),
		validation.Field(&u.Project, validation.By(validateReference)),
	)
}

// AccessPolicyResource is a single resource rule inside an access policy.
type AccessPolicyResource struct {
	ResourceType string `json:"resourceType"`
	Criteria     string `json:"criteria,omitempty"`
	ReadOnly     bool   `json:"readonly,omitempty"`
}

// AccessPolicy is the permission set attached to a membership.
type AccessPolicy struct {
	ResourceBase
	Name     string                 `json:"name,omitempty"`
	Resource []AccessPolicyResource `json:"resource,omitempty"`
}

func (*AccessPolicy) ResourceType() string { return "AccessPolicy" }

func (a *AccessPolicy) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Resource, validation.Each(validation.By(func(v any) error {
			rule, _ := v.(AccessPolicyResource)
			return validation.Validate(rule.ResourceType, validation.Required)
		}))),
	)
}

// Practitioner is a profile resource for clinical staff.
type Practitioner struct {
	ResourceBase
	Name []HumanName `json:"name,omitempty"`
}

func (*Practitioner) ResourceType() string { return "Practitioner" }

func (*Practitioner) Validate() error { return nil }

// Patient is a profile resource for patients using a portal.
type Patient struct {
	ResourceBase
	Name []HumanName `json:"name,omitempty"`
}

func (*Patient) ResourceType() string { return "Patient" }

func (*Patient) Validate() error { return nil }

// RelatedPerson is a profile resource for caregivers.
type RelatedPerson struct {
	ResourceBase
	Name    []HumanName `json:"name,omitempty"`
	Patient *Reference  `json:"patient,omitempty"`
}

func (*RelatedPerson) ResourceType() string { return "RelatedPerson" }

func (r *RelatedPerson) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Patient, validation.By(validateReference)),
	)
}

// ClientApplication is a profile resource for system clients.
type ClientApplication struct {
	ResourceBase
	Name        string `json:"name,omitempty"`
	Secret      string `json:"secret,omitempty"`
	RedirectURI string `json:"redirectUri,omitempty"`
}

func (*ClientApplication) ResourceType() string { return "ClientApplication" }

func (c *ClientApplication) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RedirectURI, is.URL),
	)
}

// Bot is a profile resource for automation identities.
type Bot struct {
	ResourceBase
	Name string `json:"name,omitempty"`
}

func (*Bot) ResourceType() string { return "Bot" }

func (*Bot) Validate() error { return nil }

// Binary describes externally stored byte content.
type Binary struct {
	ResourceBase
	ContentType     string     `json:"contentType,omitempty"`
	URL             string     `json:"url,omitempty"`
	Size            int64      `json:"size,omitempty"`
	SecurityContext *Reference `json:"securityContext,omitempty"`
}

func (*Binary) ResourceType() string { return "Binary" }

func (b *Binary) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.ContentType, validation.Required),
		validation.Field(&b.Size, validation.Min(int64(0))),
		validation.Field(&b.SecurityContext, validation.By(validateReference)),
	)
}

var resourceFactories = map[string]func() Resource{
	"Login":             func() Resource { return &Login{} },
	"ProjectMembership": func() Resource { return &ProjectMembership{} },
	"Project":           func() Resource { return &Project{} },
	"User":              func() Resource { return &User{} },
	"AccessPolicy":      func() Resource { return &AccessPolicy{} },
	"Practitioner":      func() Resource { return &Practitioner{} },
	"Patient":           func() Resource { return &Patient{} },
	"RelatedPerson":     func() Resource { return &RelatedPerson{} },
	"ClientApplication": func() Resource { return &ClientApplication{} },
	"Bot":               func() Resource { return &Bot{} },
	"Binary":            func() Resource { return &Binary{} },
}

var profileResourceTypes = map[string]struct{}{
	"Practitioner":      {},
	"Patient":           {},
	"RelatedPerson":     {},
	"ClientApplication": {},
	"Bot":               {},
}

// NewResource returns an empty resource of the given type.
func NewResource(resourceType string) (Resource, bool) {
	factory, ok := resourceFactories[resourceType]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// IsRegisteredResourceType reports whether the repository knows resourceType.
func IsRegisteredResourceType(resourceType string) bool {
	_, ok := resourceFactories[resourceType]
	return ok
}

// IsProfileResourceType reports whether resourceType can act as a login profile.
func IsProfileResourceType(resourceType string) bool {
	_, ok := profileResourceTypes[resourceType]
	return ok
}

func validateReference(value any) error {
	ref, _ := value.(*Reference)
	if ref == nil {
		return nil
	}
	if _, _, err := ParseReference(ref.Reference); err != nil {
		return validation.NewError("reference_invalid", "must be a Type/id reference to a known resource type")
	}
	return nil
}

func validateProfileReference(value any) error {
	if err := validateReference(value); err != nil {
		return err
	}
	ref, _ := value.(*Reference)
	if ref == nil {
		return nil
	}
	if !IsProfileResourceType(ref.ResourceType()) {
		return validation.NewError("reference_profile", "must reference a profile resource")
	}
	return nil
}
