package auth

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SearchParam is an equality filter on an indexed search parameter.
type SearchParam struct {
	Name  string
	Value string
}

// ResourceRepository mediates every resource read and write. Each call
// returns the stored value or a classified error; callers must check the
// error before touching the value.
type ResourceRepository interface {
	CreateResource(ctx context.Context, resource Resource) (Resource, error)
	ReadResource(ctx context.Context, resourceType, id string) (Resource, error)
	ReadVersion(ctx context.Context, resourceType, id, versionID string) (Resource, error)
	ReadReference(ctx context.Context, ref *Reference) (Resource, error)
	UpdateResource(ctx context.Context, resource Resource) (Resource, error)
	DeleteResource(ctx context.Context, resourceType, id string) error
	Search(ctx context.Context, resourceType string, param SearchParam) ([]Resource, error)
}

// ReadAs reads a resource and asserts its concrete type.
func ReadAs[T Resource](ctx context.Context, repo ResourceRepository, resourceType, id string) (T, error) {
	resource, err := repo.ReadResource(ctx, resourceType, id)
	return assertResource[T](resource, err)
}

// ReadVersionAs reads a historical version and asserts its concrete type.
func ReadVersionAs[T Resource](ctx context.Context, repo ResourceRepository, resourceType, id, versionID string) (T, error) {
	resource, err := repo.ReadVersion(ctx, resourceType, id, versionID)
	return assertResource[T](resource, err)
}

// ReadReferenceAs follows ref and asserts the concrete type.
func ReadReferenceAs[T Resource](ctx context.Context, repo ResourceRepository, ref *Reference) (T, error) {
	resource, err := repo.ReadReference(ctx, ref)
	return assertResource[T](resource, err)
}

// CreateAs creates resource and returns the stored copy with its concrete type.
func CreateAs[T Resource](ctx context.Context, repo ResourceRepository, resource T) (T, error) {
	stored, err := repo.CreateResource(ctx, resource)
	return assertResource[T](stored, err)
}

// UpdateAs updates resource and returns the stored copy with its concrete type.
func UpdateAs[T Resource](ctx context.Context, repo ResourceRepository, resource T) (T, error) {
	stored, err := repo.UpdateResource(ctx, resource)
	return assertResource[T](stored, err)
}

func assertResource[T Resource](resource Resource, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := resource.(T)
	if !ok {
		return zero, newContractError("unexpected resource type %T", resource)
	}
	return typed, nil
}

func readReference(ctx context.Context, repo ResourceRepository, ref *Reference) (Resource, error) {
	if ref == nil {
		return nil, NewInvalidReferenceError("", "missing reference")
	}
	resourceType, id, err := ParseReference(ref.Reference)
	if err != nil {
		return nil, err
	}
	return repo.ReadResource(ctx, resourceType, id)
}

func validateResource(resource Resource) error {
	if resource == nil {
		return NewValidationError("resource is required")
	}
	if !IsRegisteredResourceType(resource.ResourceType()) {
		return NewValidationError("unsupported resource type").
			WithMetadata(map[string]any{"resource_type": resource.ResourceType()})
	}
	if verr := goerrors.ValidateWithOzzo(resource.Validate, "Invalid "+resource.ResourceType()); verr != nil {
		return verr.
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidation)
	}
	return nil
}

func checkResourceType(resourceType string) error {
	if !IsRegisteredResourceType(resourceType) {
		return NewInvalidReferenceError(resourceType, "unregistered resource type")
	}
	return nil
}

// prepareForCreate fills server assigned fields a new resource needs.
func prepareForCreate(resource Resource) {
	if resource.GetID() == "" {
		resource.SetID(NewResourceID())
	}
	if login, ok := resource.(*Login); ok && login.Code == "" {
		login.Code = NewLoginCode()
	}
}

// stampVersion assigns a new version and timestamp to resource.
func stampVersion(resource Resource, now time.Time) {
	meta := resource.GetMeta()
	meta.VersionID = NewVersionID()
	ts := now.UTC()
	meta.LastUpdated = &ts
}

func encodeResource(resource Resource) (string, error) {
	data, err := json.Marshal(resource)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode resource")
	}
	return string(data), nil
}

func decodeResource(resourceType, content string) (Resource, error) {
	resource, ok := NewResource(resourceType)
	if !ok {
		return nil, NewInvalidReferenceError(resourceType, "unregistered resource type")
	}
	if err := json.Unmarshal([]byte(content), resource); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode resource").
			WithMetadata(map[string]any{"resource_type": resourceType})
	}
	return resource, nil
}

// cloneResource detaches a resource from the caller's copy.
func cloneResource(resource Resource) (Resource, error) {
	content, err := encodeResource(resource)
	if err != nil {
		return nil, err
	}
	return decodeResource(resource.ResourceType(), content)
}

type indexedReference struct {
	code  string
	value string
}

// referenceIndex lists the search parameters resource is findable by.
func referenceIndex(resource Resource) []indexedReference {
	out := []indexedReference{}
	if indexer, ok := resource.(ReferenceIndexer); ok {
		for code, ref := range indexer.SearchReferences() {
			if ref == nil || ref.Reference == "" {
				continue
			}
			out = append(out, indexedReference{code: code, value: ref.Reference})
		}
	}
	if indexer, ok := resource.(TokenIndexer); ok {
		for code, value := range indexer.SearchTokens() {
			if value == "" {
				continue
			}
			out = append(out, indexedReference{code: code, value: value})
		}
	}
	return out
}

func matchesSearch(resource Resource, param SearchParam) bool {
	for _, ref := range referenceIndex(resource) {
		if ref.code == param.Name && ref.value == param.Value {
			return true
		}
	}
	return false
}
