package db

import (
	"context"
	"time"
)

const setColumns = `id, match_id, set_number, first_server, score_a, score_b, winner_side,
sets_before_a, sets_before_b, sets_after_a, sets_after_b,
phase, last_rally_index, last_shot_index, total_rallies, total_shots, created_at, updated_at`

const createSet = `
INSERT INTO sets (id, match_id, set_number, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`

type CreateSetParams struct {
	ID        string
	MatchID   string
	SetNumber int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (q *Queries) CreateSet(ctx context.Context, arg CreateSetParams) error {
	_, err := q.db.ExecContext(ctx, createSet,
		arg.ID,
		arg.MatchID,
		arg.SetNumber,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSet(row rowScanner) (Set, error) {
	var i Set
	err := row.Scan(
		&i.ID,
		&i.MatchID,
		&i.SetNumber,
		&i.FirstServer,
		&i.ScoreA,
		&i.ScoreB,
		&i.WinnerSide,
		&i.SetsBeforeA,
		&i.SetsBeforeB,
		&i.SetsAfterA,
		&i.SetsAfterB,
		&i.Phase,
		&i.LastRallyIndex,
		&i.LastShotIndex,
		&i.TotalRallies,
		&i.TotalShots,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getSet = `SELECT ` + setColumns + ` FROM sets WHERE id = ?`

func (q *Queries) GetSet(ctx context.Context, id string) (Set, error) {
	return scanSet(q.db.QueryRowContext(ctx, getSet, id))
}

const getSetByNumber = `SELECT ` + setColumns + ` FROM sets WHERE match_id = ? AND set_number = ?`

type GetSetByNumberParams struct {
	MatchID   string
	SetNumber int64
}

func (q *Queries) GetSetByNumber(ctx context.Context, arg GetSetByNumberParams) (Set, error) {
	return scanSet(q.db.QueryRowContext(ctx, getSetByNumber, arg.MatchID, arg.SetNumber))
}

const listSetsByMatch = `SELECT ` + setColumns + ` FROM sets WHERE match_id = ? ORDER BY set_number`

func (q *Queries) ListSetsByMatch(ctx context.Context, matchID string) ([]Set, error) {
	rows, err := q.db.QueryContext(ctx, listSetsByMatch, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Set
	for rows.Next() {
		i, err := scanSet(rows)
		if err != nil {
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

const updateSetProgress = `
UPDATE sets
SET phase = ?, last_rally_index = ?, last_shot_index = ?, total_rallies = ?, total_shots = ?, updated_at = ?
WHERE id = ?
`

type UpdateSetProgressParams struct {
	Phase          string
	LastRallyIndex int64
	LastShotIndex  int64
	TotalRallies   int64
	TotalShots     int64
	UpdatedAt      time.Time
	ID             string
}

func (q *Queries) UpdateSetProgress(ctx context.Context, arg UpdateSetProgressParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateSetProgress,
		arg.Phase,
		arg.LastRallyIndex,
		arg.LastShotIndex,
		arg.TotalRallies,
		arg.TotalShots,
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateSetFirstServer = `UPDATE sets SET first_server = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateSetFirstServer(ctx context.Context, firstServer string, updatedAt time.Time, id string) error {
	_, err := q.db.ExecContext(ctx, updateSetFirstServer, firstServer, updatedAt, id)
	return err
}

const updateSetResult = `
UPDATE sets
SET score_a = ?, score_b = ?, winner_side = ?, updated_at = ?
WHERE id = ?
`

type UpdateSetResultParams struct {
	ScoreA     int64
	ScoreB     int64
	WinnerSide string
	UpdatedAt  time.Time
	ID         string
}

func (q *Queries) UpdateSetResult(ctx context.Context, arg UpdateSetResultParams) error {
	_, err := q.db.ExecContext(ctx, updateSetResult,
		arg.ScoreA,
		arg.ScoreB,
		arg.WinnerSide,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const updateSetLedger = `
UPDATE sets
SET sets_before_a = ?, sets_before_b = ?, sets_after_a = ?, sets_after_b = ?, updated_at = ?
WHERE id = ?
`

type UpdateSetLedgerParams struct {
	SetsBeforeA int64
	SetsBeforeB int64
	SetsAfterA  int64
	SetsAfterB  int64
	UpdatedAt   time.Time
	ID          string
}

func (q *Queries) UpdateSetLedger(ctx context.Context, arg UpdateSetLedgerParams) error {
	_, err := q.db.ExecContext(ctx, updateSetLedger,
		arg.SetsBeforeA,
		arg.SetsBeforeB,
		arg.SetsAfterA,
		arg.SetsAfterB,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}
