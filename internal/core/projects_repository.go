package core

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type ProjectsDBStorer interface {
	Create(ctx context.Context, project *Project) error
	Find(ctx context.Context, id string) (*Project, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Project, error)
	ListAll(ctx context.Context) ([]*Project, error)
	Delete(ctx context.Context, id string) error
}

type ProjectsRepository struct {
	db *sqlx.DB
}

func NewProjectsRepository(db *sqlx.DB) *ProjectsRepository {
	return &ProjectsRepository{db: db}
}

func (r *ProjectsRepository) Create(ctx context.Context, project *Project) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO projects (id, owner_id, name, storage, media_url, created_at)
		VALUES (:id, :owner_id, :name, :storage, :media_url, :created_at)`,
		project,
	)
	return err
}

func (r *ProjectsRepository) Find(ctx context.Context, id string) (*Project, error) {
	project := &Project{}

	err := r.db.GetContext(ctx, project,
		`SELECT id, owner_id, name, storage, media_url, created_at FROM projects WHERE id = $1 LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return project, nil
}

func (r *ProjectsRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Project, error) {
	projects := []*Project{}
	err := r.db.SelectContext(ctx, &projects,
		`SELECT id, owner_id, name, storage, media_url, created_at
		FROM projects WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *ProjectsRepository) ListAll(ctx context.Context) ([]*Project, error) {
	projects := []*Project{}
	err := r.db.SelectContext(ctx, &projects,
		`SELECT id, owner_id, name, storage, media_url, created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// Delete removes the project. Sessions, API keys and devices go with it
// through ON DELETE CASCADE.
func (r *ProjectsRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
