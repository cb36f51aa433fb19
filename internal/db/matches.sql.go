package db

import (
	"context"
	"time"
)

const createMatch = `
INSERT INTO matches (id, player_a, player_b, best_of, video_url, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type CreateMatchParams struct {
	ID        string
	PlayerA   string
	PlayerB   string
	BestOf    int64
	VideoUrl  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (q *Queries) CreateMatch(ctx context.Context, arg CreateMatchParams) error {
	_, err := q.db.ExecContext(ctx, createMatch,
		arg.ID,
		arg.PlayerA,
		arg.PlayerB,
		arg.BestOf,
		arg.VideoUrl,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getMatch = `
SELECT id, player_a, player_b, best_of, sets_won_a, sets_won_b, winner_side, video_url, created_at, updated_at
FROM matches
WHERE id = ?
`

func (q *Queries) GetMatch(ctx context.Context, id string) (Match, error) {
	row := q.db.QueryRowContext(ctx, getMatch, id)
	var i Match
	err := row.Scan(
		&i.ID,
		&i.PlayerA,
		&i.PlayerB,
		&i.BestOf,
		&i.SetsWonA,
		&i.SetsWonB,
		&i.WinnerSide,
		&i.VideoUrl,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateMatchResult = `
UPDATE matches
SET sets_won_a = ?, sets_won_b = ?, winner_side = ?, updated_at = ?
WHERE id = ?
`

type UpdateMatchResultParams struct {
	SetsWonA   int64
	SetsWonB   int64
	WinnerSide string
	UpdatedAt  time.Time
	ID         string
}

func (q *Queries) UpdateMatchResult(ctx context.Context, arg UpdateMatchResultParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateMatchResult,
		arg.SetsWonA,
		arg.SetsWonB,
		arg.WinnerSide,
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
