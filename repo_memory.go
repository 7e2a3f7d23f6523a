package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	resourceType string
	versionID    string
	content      string
	deleted      bool
	lastUpdated  time.Time
}

type memoryRepository struct {
	mu      sync.RWMutex
	current map[string]*memoryEntry
	history map[string]*memoryEntry
	now     func() time.Time
}

var _ ResourceRepository = (*memoryRepository)(nil)

// MemoryRepositoryOption customizes the in-memory repository.
type MemoryRepositoryOption func(*memoryRepository)

// WithMemoryRepositoryClock overrides the timestamp source.
func WithMemoryRepositoryClock(now func() time.Time) MemoryRepositoryOption {
	return func(r *memoryRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewMemoryRepository returns a process local ResourceRepository with the
// same outcome semantics as the bun implementation.
func NewMemoryRepository(opts ...MemoryRepositoryOption) ResourceRepository {
	r := &memoryRepository{
		current: map[string]*memoryEntry{},
		history: map[string]*memoryEntry{},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func memoryKey(resourceType, id string) string {
	return resourceType + "/" + id
}

func (r *memoryRepository) CreateResource(ctx context.Context, resource Resource) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(err, "failed to create resource")
	}
	if err := validateResource(resource); err != nil {
		return nil, err
	}

	stored, err := cloneResource(resource)
	if err != nil {
		return nil, err
	}
	prepareForCreate(stored)
	stampVersion(stored, r.now())

	entry, err := newMemoryEntry(stored, false)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := memoryKey(stored.ResourceType(), stored.GetID())
	if _, ok := r.current[key]; ok {
		return nil, NewConflictError(stored.ResourceType(), stored.GetID(), "", "existing")
	}
	r.current[key] = entry
	r.history[entry.versionID] = entry
	return stored, nil
}

func (r *memoryRepository) ReadResource(ctx context.Context, resourceType, id string) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(err, "failed to read resource")
	}
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}

	r.mu.RLock()
	entry, ok := r.current[memoryKey(resourceType, id)]
	r.mu.RUnlock()

	if !ok {
		return nil, NewNotFoundError(resourceType, id)
	}
	if entry.deleted {
		return nil, NewGoneError(resourceType, id)
	}
	return decodeResource(entry.resourceType, entry.content)
}

func (r *memoryRepository) ReadVersion(ctx context.Context, resourceType, id, versionID string) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(err, "failed to read resource version")
	}
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}

	r.mu.RLock()
	entry, ok := r.history[versionID]
	r.mu.RUnlock()

	if !ok || entry.resourceType != resourceType {
		return nil, NewNotFoundError(resourceType, id).
			WithMetadata(map[string]any{"version_id": versionID})
	}
	resource, err := decodeResource(entry.resourceType, entry.content)
	if err != nil {
		return nil, err
	}
	if resource.GetID() != id {
		return nil, NewNotFoundError(resourceType, id).
			WithMetadata(map[string]any{"version_id": versionID})
	}
	if entry.deleted {
		return nil, NewGoneError(resourceType, id)
	}
	return resource, nil
}

func (r *memoryRepository) ReadReference(ctx context.Context, ref *Reference) (Resource, error) {
	return readReference(ctx, r, ref)
}

func (r *memoryRepository) UpdateResource(ctx context.Context, resource Resource) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(err, "failed to update resource")
	}
	if err := validateResource(resource); err != nil {
		return nil, err
	}
	if resource.GetID() == "" {
		return nil, NewValidationError("resource id is required")
	}

	stored, err := cloneResource(resource)
	if err != nil {
		return nil, err
	}
	expected := stored.GetMeta().VersionID
	resourceType, id := stored.ResourceType(), stored.GetID()
	key := memoryKey(resourceType, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.current[key]
	if !ok {
		return nil, NewNotFoundError(resourceType, id)
	}
	if current.deleted {
		return nil, NewGoneError(resourceType, id)
	}
	if expected != "" && expected != current.versionID {
		return nil, NewConflictError(resourceType, id, expected, current.versionID)
	}

	if stored.GetMeta().Project == "" {
		if previous, err := decodeResource(current.resourceType, current.content); err == nil {
			stored.GetMeta().Project = previous.GetMeta().Project
		}
	}
	stampVersion(stored, r.now())

	entry, err := newMemoryEntry(stored, false)
	if err != nil {
		return nil, err
	}
	r.current[key] = entry
	r.history[entry.versionID] = entry
	return stored, nil
}

func (r *memoryRepository) DeleteResource(ctx context.Context, resourceType, id string) error {
	if err := ctx.Err(); err != nil {
		return storageError(err, "failed to delete resource")
	}
	if err := checkResourceType(resourceType); err != nil {
		return err
	}

	key := memoryKey(resourceType, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.current[key]
	if !ok {
		return NewNotFoundError(resourceType, id)
	}
	if current.deleted {
		return NewGoneError(resourceType, id)
	}

	marker, _ := NewResource(resourceType)
	marker.SetID(id)
	stampVersion(marker, r.now())

	entry, err := newMemoryEntry(marker, true)
	if err != nil {
		return err
	}
	r.current[key] = entry
	r.history[entry.versionID] = entry
	return nil
}

func (r *memoryRepository) Search(ctx context.Context, resourceType string, param SearchParam) ([]Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(err, "failed to search resources")
	}
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}

	r.mu.RLock()
	entries := make([]*memoryEntry, 0, len(r.current))
	for _, entry := range r.current {
		if entry.resourceType == resourceType && !entry.deleted {
			entries = append(entries, entry)
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].versionID < entries[j].versionID
	})

	out := []Resource{}
	for _, entry := range entries {
		resource, err := decodeResource(entry.resourceType, entry.content)
		if err != nil {
			return nil, err
		}
		if matchesSearch(resource, param) {
			out = append(out, resource)
		}
	}
	return out, nil
}

func newMemoryEntry(resource Resource, deleted bool) (*memoryEntry, error) {
	content, err := encodeResource(resource)
	if err != nil {
		return nil, err
	}
	meta := resource.GetMeta()
	entry := &memoryEntry{
		resourceType: resource.ResourceType(),
		versionID:    meta.VersionID,
		content:      content,
		deleted:      deleted,
	}
	if meta.LastUpdated != nil {
		entry.lastUpdated = *meta.LastUpdated
	}
	return entry, nil
}
