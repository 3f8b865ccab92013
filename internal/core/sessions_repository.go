package core

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type SessionsDBStorer interface {
	Create(ctx context.Context, session *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	FindByRoomName(ctx context.Context, roomName string) (*Session, error)
	ListByProject(ctx context.Context, projectID string) ([]*Session, error)
	// Transition moves the session from one status to another.
	// It returns false when the stored status was no longer `from`.
	Transition(ctx context.Context, id string, from, to SessionStatus, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
}

type SessionsRepository struct {
	db *sqlx.DB
}

func NewSessionsRepository(db *sqlx.DB) *SessionsRepository {
	return &SessionsRepository{
		db: db,
	}
}

const sessionColumns = `id, project_id, name, livekit_room_name, status, max_participants,
	empty_timeout, auto_recording, started_at, stopped_at, created_at`

func (r *SessionsRepository) Create(ctx context.Context, session *Session) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		VALUES (:id, :project_id, :name, :livekit_room_name, :status, :max_participants,
			:empty_timeout, :auto_recording, :started_at, :stopped_at, :created_at)`,
		session,
	)
	return err
}

func (r *SessionsRepository) Find(ctx context.Context, id string) (*Session, error) {
	session := &Session{}

	err := r.db.GetContext(ctx, session,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return session, nil
}

func (r *SessionsRepository) FindByRoomName(ctx context.Context, roomName string) (*Session, error) {
	session := &Session{}

	err := r.db.GetContext(ctx, session,
		`SELECT `+sessionColumns+` FROM sessions WHERE livekit_room_name = $1 LIMIT 1`, roomName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return session, nil
}

func (r *SessionsRepository) ListByProject(ctx context.Context, projectID string) ([]*Session, error) {
	sessions := []*Session{}

	err := r.db.SelectContext(ctx, &sessions,
		`SELECT `+sessionColumns+` FROM sessions WHERE project_id = $1 ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *SessionsRepository) Transition(ctx context.Context, id string, from, to SessionStatus, at time.Time) (bool, error) {
	query := `UPDATE sessions SET status = $1, started_at = $2 WHERE id = $3 AND status = $4`
	if to == SessionStopped {
		query = `UPDATE sessions SET status = $1, stopped_at = $2 WHERE id = $3 AND status = $4`
	}

	res, err := r.db.ExecContext(ctx, query, string(to), at, id, string(from))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *SessionsRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
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
