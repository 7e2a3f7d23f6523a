package auth

import (
	"context"
	"strings"
)

// Reference is a typed weak pointer of the form "Type/id".
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// NewReference builds a reference from its parts.
func NewReference(resourceType, id string) *Reference {
	return &Reference{Reference: resourceType + "/" + id}
}

// ResourceType returns the type segment, or an empty string when malformed.
func (r *Reference) ResourceType() string {
	if r == nil {
		return ""
	}
	resourceType, _, ok := splitReference(r.Reference)
	if !ok {
		return ""
	}
	return resourceType
}

// ID returns the id segment, or an empty string when malformed.
func (r *Reference) ID() string {
	if r == nil {
		return ""
	}
	_, id, ok := splitReference(r.Reference)
	if !ok {
		return ""
	}
	return id
}

// String implements fmt.Stringer.
func (r *Reference) String() string {
	if r == nil {
		return ""
	}
	return r.Reference
}

// Equal reports whether two references point at the same resource.
func (r *Reference) Equal(other *Reference) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Reference == other.Reference
}

// Clone returns a copy detached from r.
func (r *Reference) Clone() *Reference {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ParseReference splits a "Type/id" pointer. It fails with an invalid
// reference outcome when the pointer is malformed or names a type the
// repository does not know.
func ParseReference(reference string) (string, string, error) {
	resourceType, id, ok := splitReference(reference)
	if !ok {
		return "", "", NewInvalidReferenceError(reference, "malformed")
	}
	if !IsRegisteredResourceType(resourceType) {
		return "", "", NewInvalidReferenceError(reference, "unregistered resource type")
	}
	return resourceType, id, nil
}

func splitReference(reference string) (string, string, bool) {
	parts := strings.Split(strings.TrimSpace(reference), "/")
	if len(parts) != 2 {
		return "", "", false
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// CreateReference returns a fresh pointer to resource. The display is
// filled from the resource name when one is available.
func CreateReference(resource Resource) *Reference {
	if resource == nil {
		return nil
	}
	ref := NewReference(resource.ResourceType(), resource.GetID())
	ref.Display = displayName(resource)
	return ref
}

func displayName(resource Resource) string {
	switch r := resource.(type) {
	case *Project:
		return r.Name
	case *ClientApplication:
		return r.Name
	case *Bot:
		return r.Name
	case *AccessPolicy:
		return r.Name
	case *User:
		return strings.TrimSpace(r.FirstName + " " + r.LastName)
	case *Practitioner:
		return formatNames(r.Name)
	case *Patient:
		return formatNames(r.Name)
	case *RelatedPerson:
		return formatNames(r.Name)
	}
	return ""
}

func formatNames(names []HumanName) string {
	if len(names) == 0 {
		return ""
	}
	parts := append([]string{}, names[0].Given...)
	if names[0].Family != "" {
		parts = append(parts, names[0].Family)
	}
	return strings.Join(parts, " ")
}

// ReferenceResolver follows typed pointers through the repository.
type ReferenceResolver interface {
	Resolve(ctx context.Context, ref *Reference) (Resource, error)
}

// ReferenceResolverFunc adapts a function to ReferenceResolver.
type ReferenceResolverFunc func(ctx context.Context, ref *Reference) (Resource, error)

// Resolve implements ReferenceResolver.
func (f ReferenceResolverFunc) Resolve(ctx context.Context, ref *Reference) (Resource, error) {
	return f(ctx, ref)
}

// NewReferenceResolver returns a resolver that reads through repo.
// Failures are forwarded unchanged.
func NewReferenceResolver(repo ResourceRepository) ReferenceResolver {
	return ReferenceResolverFunc(func(ctx context.Context, ref *Reference) (Resource, error) {
		if ref == nil {
			return nil, NewInvalidReferenceError("", "missing reference")
		}
		return repo.ReadReference(ctx, ref)
	})
}

// ResolveAs resolves ref and asserts the concrete type.
func ResolveAs[T Resource](ctx context.Context, resolver ReferenceResolver, ref *Reference) (T, error) {
	var zero T
	resource, err := resolver.Resolve(ctx, ref)
	if err != nil {
		return zero, err
	}
	typed, ok := resource.(T)
	if !ok {
		return zero, newContractError("reference %s resolved to %T", ref, resource)
	}
	return typed, nil
}

// ResolveAll resolves refs in order and stops at the first failure.
func ResolveAll(ctx context.Context, resolver ReferenceResolver, refs ...*Reference) ([]Resource, error) {
	out := make([]Resource, 0, len(refs))
	for _, ref := range refs {
		resource, err := resolver.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, resource)
	}
	return out, nil
}
