package core

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// APIKey grants programmatic access to a project. Secret is only populated
// in the response to the create call; the database keeps a crypt() hash.
type APIKey struct {
	Key       string    `json:"key" db:"key"`
	Secret    string    `json:"secret,omitempty" db:"-"`
	Comment   string    `json:"comment" db:"comment"`
	ProjectID string    `json:"project_id" db:"project_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type APIKeysDBStorer interface {
	Create(ctx context.Context, key *APIKey) error
	ListByProject(ctx context.Context, projectID string) ([]*APIKey, error)
	Delete(ctx context.Context, projectID, key string) error
}

type APIKeysRepository struct {
	db *sqlx.DB
}

func NewAPIKeysRepository(db *sqlx.DB) *APIKeysRepository {
	return &APIKeysRepository{db: db}
}

func (r *APIKeysRepository) Create(ctx context.Context, key *APIKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (key, secret_hash, comment, project_id, created_at)
		VALUES ($1, crypt($2, gen_salt('bf')), $3, $4, $5)`,
		key.Key, key.Secret, key.Comment, key.ProjectID, key.CreatedAt,
	)
	return err
}

func (r *APIKeysRepository) ListByProject(ctx context.Context, projectID string) ([]*APIKey, error) {
	keys := []*APIKey{}
	err := r.db.SelectContext(ctx, &keys,
		`SELECT key, comment, project_id, created_at FROM api_keys
		WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *APIKeysRepository) Delete(ctx context.Context, projectID, key string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE project_id = $1 AND key = $2`, projectID, key)
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
