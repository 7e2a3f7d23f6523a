package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Resources() ResourceRepository
	History() repository.Repository[*ResourceVersion]
}

type mngr struct {
	db        *bun.DB
	resources ResourceRepository
	history   repository.Repository[*ResourceVersion]
}

// NewRepositoryManager wires the bun backed repositories over db. The
// resource repository is instrumented when metrics are given.
func NewRepositoryManager(db *bun.DB, metrics *Metrics, opts ...ResourceRepositoryOption) RepositoryManager {
	history := NewResourceHistoryRepository(db)
	opts = append([]ResourceRepositoryOption{WithResourceHistory(history)}, opts...)

	var resources ResourceRepository = NewResourceRepository(db, opts...)
	if metrics != nil {
		resources = NewInstrumentedRepository(resources, metrics)
	}

	return &mngr{
		db:        db,
		resources: resources,
		history:   history,
	}
}

func (m mngr) Validate() error {
	if m.resources == nil {
		return errors.New("repository resources should be initialized")
	}

	if m.history == nil {
		return errors.New("repository history should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Resources() ResourceRepository {
	return m.resources
}

func (m mngr) History() repository.Repository[*ResourceVersion] {
	return m.history
}
