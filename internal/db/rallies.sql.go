package db

import (
	"context"
	"time"
)

const upsertRally = `
INSERT INTO rallies (
    id, set_id, ordinal, end_condition, is_error, server_side, receiver_side, winner_side,
    score_before_a, score_before_b, score_after_a, score_after_b, end_time, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    end_condition = excluded.end_condition,
    is_error = excluded.is_error,
    winner_side = excluded.winner_side,
    score_after_a = excluded.score_after_a,
    score_after_b = excluded.score_after_b,
    end_time = excluded.end_time,
    updated_at = excluded.updated_at
`

type UpsertRallyParams struct {
	ID           string
	SetID        string
	Ordinal      int64
	EndCondition string
	IsError      bool
	ServerSide   string
	ReceiverSide string
	WinnerSide   string
	ScoreBeforeA int64
	ScoreBeforeB int64
	ScoreAfterA  int64
	ScoreAfterB  int64
	EndTime      float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (q *Queries) UpsertRally(ctx context.Context, arg UpsertRallyParams) error {
	_, err := q.db.ExecContext(ctx, upsertRally,
		arg.ID,
		arg.SetID,
		arg.Ordinal,
		arg.EndCondition,
		arg.IsError,
		arg.ServerSide,
		arg.ReceiverSide,
		arg.WinnerSide,
		arg.ScoreBeforeA,
		arg.ScoreBeforeB,
		arg.ScoreAfterA,
		arg.ScoreAfterB,
		arg.EndTime,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const listRalliesBySet = `
SELECT id, set_id, ordinal, end_condition, is_error, server_side, receiver_side, winner_side,
       score_before_a, score_before_b, score_after_a, score_after_b, end_time, created_at, updated_at
FROM rallies
WHERE set_id = ?
ORDER BY ordinal
`

func (q *Queries) ListRalliesBySet(ctx context.Context, setID string) ([]Rally, error) {
	rows, err := q.db.QueryContext(ctx, listRalliesBySet, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Rally
	for rows.Next() {
		var i Rally
		if err := rows.Scan(
			&i.ID,
			&i.SetID,
			&i.Ordinal,
			&i.EndCondition,
			&i.IsError,
			&i.ServerSide,
			&i.ReceiverSide,
			&i.WinnerSide,
			&i.ScoreBeforeA,
			&i.ScoreBeforeB,
			&i.ScoreAfterA,
			&i.ScoreAfterB,
			&i.EndTime,
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

const deleteRally = `DELETE FROM rallies WHERE id = ?`

func (q *Queries) DeleteRally(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteRally, id)
	return err
}

const deleteRalliesBySet = `DELETE FROM rallies WHERE set_id = ?`

func (q *Queries) DeleteRalliesBySet(ctx context.Context, setID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteRalliesBySet, setID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
