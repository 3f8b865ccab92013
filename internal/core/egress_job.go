package core

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type EgressStatus string

const (
	EgressStarting EgressStatus = "starting"
	EgressActive   EgressStatus = "active"
	EgressComplete EgressStatus = "complete"
	EgressFailed   EgressStatus = "failed"
	EgressAborted  EgressStatus = "aborted"
)

func (s EgressStatus) IsTerminal() bool {
	switch s {
	case EgressComplete, EgressFailed, EgressAborted:
		return true
	}
	return false
}

// CanTransition reports whether a job may move from s to next.
// Starting -> Active -> Complete; Starting|Active -> Failed|Aborted.
func (s EgressStatus) CanTransition(next EgressStatus) bool {
	switch s {
	case EgressStarting:
		return next != EgressStarting
	case EgressActive:
		return next.IsTerminal()
	default:
		return false
	}
}

// EgressJob is a recording of one track, or of the whole room when TrackID is empty.
type EgressJob struct {
	EgressID        string       `json:"egress_id" db:"egress_id"`
	RoomName        string       `json:"room_name" db:"room_name"`
	TrackID         string       `json:"track_id,omitempty" db:"track_id"`
	Status          EgressStatus `json:"status" db:"status"`
	StartedAt       time.Time    `json:"started_at" db:"started_at"`
	EndedAt         *time.Time   `json:"ended_at,omitempty" db:"ended_at"`
	DestinationPath string       `json:"destination_path" db:"destination_path"`
	Error           string       `json:"error,omitempty" db:"error"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

func (j *EgressJob) IsRoomComposite() bool {
	return j.TrackID == ""
}

type EgressDBStorer interface {
	Create(ctx context.Context, job *EgressJob) error
	Find(ctx context.Context, egressID string) (*EgressJob, error)
	// FindActive returns the non-terminal job for (roomName, trackID) or ErrRecordNotFound.
	FindActive(ctx context.Context, roomName, trackID string) (*EgressJob, error)
	ListByRoom(ctx context.Context, roomName string) ([]*EgressJob, error)
	UpdateStatus(ctx context.Context, job *EgressJob) error
}

type EgressRepository struct {
	db *sqlx.DB
}

func NewEgressRepository(db *sqlx.DB) *EgressRepository {
	return &EgressRepository{db: db}
}

const egressColumns = `egress_id, room_name, track_id, status, started_at, ended_at,
	destination_path, error, updated_at`

func (r *EgressRepository) Create(ctx context.Context, job *EgressJob) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO egress_jobs (`+egressColumns+`)
		VALUES (:egress_id, :room_name, :track_id, :status, :started_at, :ended_at,
			:destination_path, :error, :updated_at)`,
		job,
	)
	return err
}

func (r *EgressRepository) Find(ctx context.Context, egressID string) (*EgressJob, error) {
	job := &EgressJob{}
	err := r.db.GetContext(ctx, job,
		`SELECT `+egressColumns+` FROM egress_jobs WHERE egress_id = $1 LIMIT 1`, egressID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *EgressRepository) FindActive(ctx context.Context, roomName, trackID string) (*EgressJob, error) {
	job := &EgressJob{}
	err := r.db.GetContext(ctx, job,
		`SELECT `+egressColumns+` FROM egress_jobs
		WHERE room_name = $1 AND track_id = $2 AND status IN ($3, $4)
		ORDER BY started_at DESC LIMIT 1`,
		roomName, trackID, string(EgressStarting), string(EgressActive),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *EgressRepository) ListByRoom(ctx context.Context, roomName string) ([]*EgressJob, error) {
	jobs := []*EgressJob{}
	err := r.db.SelectContext(ctx, &jobs,
		`SELECT `+egressColumns+` FROM egress_jobs WHERE room_name = $1 ORDER BY started_at`, roomName)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *EgressRepository) UpdateStatus(ctx context.Context, job *EgressJob) error {
	_, err := r.db.NamedExecContext(ctx,
		`UPDATE egress_jobs SET
			status = :status,
			ended_at = :ended_at,
			error = :error,
			updated_at = :updated_at
		WHERE egress_id = :egress_id`,
		job,
	)
	return err
}
