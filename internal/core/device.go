package core

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// ProjectDevice is a hardware or SIP endpoint registered to a project.
type ProjectDevice struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	Name      string    `json:"name" db:"name"`
	Kind      string    `json:"kind" db:"kind"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type DevicesDBStorer interface {
	Create(ctx context.Context, device *ProjectDevice) error
	ListByProject(ctx context.Context, projectID string) ([]*ProjectDevice, error)
	Delete(ctx context.Context, projectID, id string) error
}

type DevicesRepository struct {
	db *sqlx.DB
}

func NewDevicesRepository(db *sqlx.DB) *DevicesRepository {
	return &DevicesRepository{db: db}
}

func (r *DevicesRepository) Create(ctx context.Context, device *ProjectDevice) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO project_devices (id, project_id, name, kind, created_at)
		VALUES (:id, :project_id, :name, :kind, :created_at)`,
		device,
	)
	return err
}

func (r *DevicesRepository) ListByProject(ctx context.Context, projectID string) ([]*ProjectDevice, error) {
	devices := []*ProjectDevice{}
	err := r.db.SelectContext(ctx, &devices,
		`SELECT id, project_id, name, kind, created_at FROM project_devices
		WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *DevicesRepository) Delete(ctx context.Context, projectID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM project_devices WHERE project_id = $1 AND id = $2`, projectID, id)
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
