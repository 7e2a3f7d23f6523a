package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StoredResource is the current version of a resource.
type StoredResource struct {
	bun.BaseModel `bun:"table:resources,alias:res"`

	ID           string    `bun:"id,pk"`
	ResourceType string    `bun:"resource_type,notnull"`
	VersionID    string    `bun:"version_id,notnull"`
	ProjectID    string    `bun:"project_id"`
	Content      string    `bun:"content,notnull"`
	Deleted      bool      `bun:"deleted,notnull"`
	LastUpdated  time.Time `bun:"last_updated,notnull"`
}

// ResourceVersion is an append-only history row, keyed by version id.
type ResourceVersion struct {
	bun.BaseModel `bun:"table:resource_history,alias:rh"`

	ID           uuid.UUID `bun:"id,pk,type:uuid"`
	ResourceID   string    `bun:"resource_id,notnull"`
	ResourceType string    `bun:"resource_type,notnull"`
	Content      string    `bun:"content,notnull"`
	Deleted      bool      `bun:"deleted,notnull"`
	LastUpdated  time.Time `bun:"last_updated,notnull"`
}

// ResourceReference indexes a reference search parameter of a resource.
type ResourceReference struct {
	bun.BaseModel `bun:"table:resource_references,alias:rr"`

	ResourceID   string `bun:"resource_id,pk"`
	Code         string `bun:"code,pk"`
	Value        string `bun:"value,pk"`
	ResourceType string `bun:"resource_type,notnull"`
}

// NewResourceHistoryRepository returns the generic repository over history rows.
func NewResourceHistoryRepository(db *bun.DB) repository.Repository[*ResourceVersion] {
	handlers := repository.ModelHandlers[*ResourceVersion]{
		NewRecord: func() *ResourceVersion {
			return &ResourceVersion{}
		},
		GetID: func(record *ResourceVersion) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ResourceVersion, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
	}
	return repository.NewRepository(db, handlers)
}

type resourceRepository struct {
	db      *bun.DB
	history repository.Repository[*ResourceVersion]
	now     func() time.Time
	logger  Logger
}

var _ ResourceRepository = (*resourceRepository)(nil)

// ResourceRepositoryOption customizes the bun backed repository.
type ResourceRepositoryOption func(*resourceRepository)

// WithResourceRepositoryClock overrides the timestamp source.
func WithResourceRepositoryClock(now func() time.Time) ResourceRepositoryOption {
	return func(r *resourceRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithResourceRepositoryLogger sets the logger.
func WithResourceRepositoryLogger(logger Logger) ResourceRepositoryOption {
	return func(r *resourceRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResourceHistory replaces the history repository.
func WithResourceHistory(history repository.Repository[*ResourceVersion]) ResourceRepositoryOption {
	return func(r *resourceRepository) {
		if history != nil {
			r.history = history
		}
	}
}

// NewResourceRepository returns a ResourceRepository stored through bun.
func NewResourceRepository(db *bun.DB, opts ...ResourceRepositoryOption) ResourceRepository {
	r := &resourceRepository{
		db:     db,
		now:    time.Now,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.history == nil {
		r.history = NewResourceHistoryRepository(db)
	}
	return r
}

func (r *resourceRepository) CreateResource(ctx context.Context, resource Resource) (Resource, error) {
	if err := validateResource(resource); err != nil {
		return nil, err
	}

	stored, err := cloneResource(resource)
	if err != nil {
		return nil, err
	}
	prepareForCreate(stored)
	stampVersion(stored, r.now())

	row, err := newStoredResource(stored, false)
	if err != nil {
		return nil, err
	}

	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*StoredResource)(nil)).
			Where("?TableAlias.id = ?", row.ID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return NewConflictError(row.ResourceType, row.ID, "", "existing")
		}

		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return err
		}
		return r.appendHistory(ctx, tx, row, stored)
	})
	if err != nil {
		return nil, storageError(err, "failed to create resource")
	}

	r.logger.Debug("resource created", "resource_type", row.ResourceType, "id", row.ID, "version_id", row.VersionID)
	return stored, nil
}

func (r *resourceRepository) ReadResource(ctx context.Context, resourceType, id string) (Resource, error) {
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}

	row, err := selectCurrent(ctx, r.db, resourceType, id)
	if err != nil {
		return nil, storageError(err, "failed to read resource")
	}
	if row.Deleted {
		return nil, NewGoneError(resourceType, id)
	}
	return decodeResource(row.ResourceType, row.Content)
}

func (r *resourceRepository) ReadVersion(ctx context.Context, resourceType, id, versionID string) (Resource, error) {
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(versionID); err != nil {
		return nil, NewNotFoundError(resourceType, id).
			WithMetadata(map[string]any{"version_id": versionID})
	}

	record, err := r.history.GetByID(ctx, versionID)
	if err != nil {
		if isNoRows(err) {
			return nil, NewNotFoundError(resourceType, id).
				WithMetadata(map[string]any{"version_id": versionID})
		}
		return nil, storageError(err, "failed to read resource version")
	}
	if record.ResourceID != id || record.ResourceType != resourceType {
		return nil, NewNotFoundError(resourceType, id).
			WithMetadata(map[string]any{"version_id": versionID})
	}
	if record.Deleted {
		return nil, NewGoneError(resourceType, id)
	}
	return decodeResource(record.ResourceType, record.Content)
}

func (r *resourceRepository) ReadReference(ctx context.Context, ref *Reference) (Resource, error) {
	return readReference(ctx, r, ref)
}

func (r *resourceRepository) UpdateResource(ctx context.Context, resource Resource) (Resource, error) {
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

	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := selectCurrent(ctx, tx, resourceType, id)
		if err != nil {
			return err
		}
		if current.Deleted {
			return NewGoneError(resourceType, id)
		}
		if expected != "" && expected != current.VersionID {
			return NewConflictError(resourceType, id, expected, current.VersionID)
		}

		if stored.GetMeta().Project == "" {
			stored.GetMeta().Project = current.ProjectID
		}
		stampVersion(stored, r.now())

		row, err := newStoredResource(stored, false)
		if err != nil {
			return err
		}
		if err := compareAndSwap(ctx, tx, row, current.VersionID); err != nil {
			return err
		}
		return r.appendHistory(ctx, tx, row, stored)
	})
	if err != nil {
		return nil, storageError(err, "failed to update resource")
	}

	r.logger.Debug("resource updated", "resource_type", resourceType, "id", id, "version_id", stored.GetMeta().VersionID)
	return stored, nil
}

func (r *resourceRepository) DeleteResource(ctx context.Context, resourceType, id string) error {
	if err := checkResourceType(resourceType); err != nil {
		return err
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := selectCurrent(ctx, tx, resourceType, id)
		if err != nil {
			return err
		}
		if current.Deleted {
			return NewGoneError(resourceType, id)
		}

		marker, _ := NewResource(resourceType)
		marker.SetID(id)
		marker.GetMeta().Project = current.ProjectID
		stampVersion(marker, r.now())

		row, err := newStoredResource(marker, true)
		if err != nil {
			return err
		}
		if err := compareAndSwap(ctx, tx, row, current.VersionID); err != nil {
			return err
		}
		return r.appendHistory(ctx, tx, row, nil)
	})
	if err != nil {
		return storageError(err, "failed to delete resource")
	}

	r.logger.Debug("resource deleted", "resource_type", resourceType, "id", id)
	return nil
}

func (r *resourceRepository) Search(ctx context.Context, resourceType string, param SearchParam) ([]Resource, error) {
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}

	var rows []StoredResource
	err := r.db.NewSelect().
		Model(&rows).
		Join("JOIN resource_references AS rr ON rr.resource_id = res.id").
		Where("res.resource_type = ?", resourceType).
		Where("res.deleted = ?", false).
		Where("rr.code = ?", param.Name).
		Where("rr.value = ?", param.Value).
		OrderExpr("res.last_updated ASC, res.version_id ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, storageError(err, "failed to search resources")
	}

	out := make([]Resource, 0, len(rows))
	for _, row := range rows {
		resource, err := decodeResource(row.ResourceType, row.Content)
		if err != nil {
			return nil, err
		}
		out = append(out, resource)
	}
	return out, nil
}

// appendHistory records the new version and rewrites the reference index.
// A nil resource clears the index.
func (r *resourceRepository) appendHistory(ctx context.Context, tx bun.Tx, row *StoredResource, resource Resource) error {
	versionID, err := uuid.Parse(row.VersionID)
	if err != nil {
		return err
	}
	if _, err := r.history.CreateTx(ctx, tx, &ResourceVersion{
		ID:           versionID,
		ResourceID:   row.ID,
		ResourceType: row.ResourceType,
		Content:      row.Content,
		Deleted:      row.Deleted,
		LastUpdated:  row.LastUpdated,
	}); err != nil {
		return err
	}

	if _, err := tx.NewDelete().
		Model((*ResourceReference)(nil)).
		Where("resource_id = ?", row.ID).
		Exec(ctx); err != nil {
		return err
	}

	if resource == nil {
		return nil
	}
	refs := referenceIndex(resource)
	if len(refs) == 0 {
		return nil
	}
	records := make([]ResourceReference, 0, len(refs))
	for _, ref := range refs {
		records = append(records, ResourceReference{
			ResourceID:   row.ID,
			ResourceType: row.ResourceType,
			Code:         ref.code,
			Value:        ref.value,
		})
	}
	_, err = tx.NewInsert().Model(&records).Exec(ctx)
	return err
}

func selectCurrent(ctx context.Context, db bun.IDB, resourceType, id string) (*StoredResource, error) {
	row := &StoredResource{}
	err := db.NewSelect().
		Model(row).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.resource_type = ?", resourceType).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, NewNotFoundError(resourceType, id)
		}
		return nil, err
	}
	return row, nil
}

// compareAndSwap writes row only if the stored version still equals
// expected. A concurrent writer that got there first leaves zero rows
// affected.
func compareAndSwap(ctx context.Context, tx bun.Tx, row *StoredResource, expected string) error {
	res, err := tx.NewUpdate().
		Model((*StoredResource)(nil)).
		Set("version_id = ?", row.VersionID).
		Set("project_id = ?", row.ProjectID).
		Set("content = ?", row.Content).
		Set("deleted = ?", row.Deleted).
		Set("last_updated = ?", row.LastUpdated).
		Where("id = ?", row.ID).
		Where("version_id = ?", expected).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return NewConflictError(row.ResourceType, row.ID, expected, "")
	}
	return nil
}

func newStoredResource(resource Resource, deleted bool) (*StoredResource, error) {
	content, err := encodeResource(resource)
	if err != nil {
		return nil, err
	}
	meta := resource.GetMeta()
	lastUpdated := time.Now().UTC()
	if meta.LastUpdated != nil {
		lastUpdated = *meta.LastUpdated
	}
	return &StoredResource{
		ID:           resource.GetID(),
		ResourceType: resource.ResourceType(),
		VersionID:    meta.VersionID,
		ProjectID:    meta.Project,
		Content:      content,
		Deleted:      deleted,
		LastUpdated:  lastUpdated,
	}, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

// storageError passes classified outcomes through and wraps anything else
// as an internal failure.
func storageError(err error, message string) error {
	if err == nil {
		return nil
	}
	if OutcomeKindOf(err) != OutcomeInternal && TextCodeOf(err) != "" {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(goerrors.CodeInternal)
}
