package db

import (
	"context"
	"time"
)

const upsertShot = `
INSERT INTO shots (
    id, rally_id, ordinal, side, time, is_serve, is_receive, is_last_shot, role,
    direction, depth, spin, stroke, quality, intent, error_placement, error_type, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(rally_id, ordinal) DO UPDATE SET
    side = excluded.side,
    time = excluded.time,
    is_serve = excluded.is_serve,
    is_receive = excluded.is_receive,
    is_last_shot = excluded.is_last_shot,
    role = excluded.role,
    updated_at = excluded.updated_at
`

type UpsertShotParams struct {
	ID             string
	RallyID        string
	Ordinal        int64
	Side           string
	Time           float64
	IsServe        bool
	IsReceive      bool
	IsLastShot     bool
	Role           string
	Direction      string
	Depth          string
	Spin           string
	Stroke         string
	Quality        string
	Intent         string
	ErrorPlacement string
	ErrorType      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (q *Queries) UpsertShot(ctx context.Context, arg UpsertShotParams) error {
	_, err := q.db.ExecContext(ctx, upsertShot,
		arg.ID,
		arg.RallyID,
		arg.Ordinal,
		arg.Side,
		arg.Time,
		arg.IsServe,
		arg.IsReceive,
		arg.IsLastShot,
		arg.Role,
		arg.Direction,
		arg.Depth,
		arg.Spin,
		arg.Stroke,
		arg.Quality,
		arg.Intent,
		arg.ErrorPlacement,
		arg.ErrorType,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updateShotAnnotation = `
UPDATE shots
SET direction = ?, depth = ?, spin = ?, stroke = ?, quality = ?, intent = ?,
    error_placement = ?, error_type = ?, updated_at = ?
WHERE rally_id = ? AND ordinal = ?
`

type UpdateShotAnnotationParams struct {
	Direction      string
	Depth          string
	Spin           string
	Stroke         string
	Quality        string
	Intent         string
	ErrorPlacement string
	ErrorType      string
	UpdatedAt      time.Time
	RallyID        string
	Ordinal        int64
}

func (q *Queries) UpdateShotAnnotation(ctx context.Context, arg UpdateShotAnnotationParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateShotAnnotation,
		arg.Direction,
		arg.Depth,
		arg.Spin,
		arg.Stroke,
		arg.Quality,
		arg.Intent,
		arg.ErrorPlacement,
		arg.ErrorType,
		arg.UpdatedAt,
		arg.RallyID,
		arg.Ordinal,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listShotsByRally = `
SELECT id, rally_id, ordinal, side, time, is_serve, is_receive, is_last_shot, role,
       direction, depth, spin, stroke, quality, intent, error_placement, error_type, created_at, updated_at
FROM shots
WHERE rally_id = ?
ORDER BY ordinal
`

func (q *Queries) ListShotsByRally(ctx context.Context, rallyID string) ([]Shot, error) {
	rows, err := q.db.QueryContext(ctx, listShotsByRally, rallyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Shot
	for rows.Next() {
		var i Shot
		if err := rows.Scan(
			&i.ID,
			&i.RallyID,
			&i.Ordinal,
			&i.Side,
			&i.Time,
			&i.IsServe,
			&i.IsReceive,
			&i.IsLastShot,
			&i.Role,
			&i.Direction,
			&i.Depth,
			&i.Spin,
			&i.Stroke,
			&i.Quality,
			&i.Intent,
			&i.ErrorPlacement,
			&i.ErrorType,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteShotsByRally = `DELETE FROM shots WHERE rally_id = ?`

func (q *Queries) DeleteShotsByRally(ctx context.Context, rallyID string) error {
	_, err := q.db.ExecContext(ctx, deleteShotsByRally, rallyID)
	return err
}

const deleteShotsBySet = `DELETE FROM shots WHERE rally_id IN (SELECT id FROM rallies WHERE set_id = ?)`

func (q *Queries) DeleteShotsBySet(ctx context.Context, setID string) error {
	_, err := q.db.ExecContext(ctx, deleteShotsBySet, setID)
	return err
}

const clearShotAnnotationsBySet = `
UPDATE shots
SET direction = '', depth = '', spin = '', stroke = '', quality = '', intent = '',
    error_placement = '', error_type = '', updated_at = ?
WHERE rally_id IN (SELECT id FROM rallies WHERE set_id = ?)
`

func (q *Queries) ClearShotAnnotationsBySet(ctx context.Context, updatedAt time.Time, setID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, clearShotAnnotationsBySet, updatedAt, setID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
