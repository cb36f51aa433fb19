package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"rally-tagger/internal/constants"
	"rally-tagger/internal/db"
	"rally-tagger/internal/domain"
)

type RallyRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewRallyRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *RallyRepository {
	return &RallyRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// Save upserts the rally and all its shots in one transaction. Shots are keyed
// by (rally id, ordinal); an existing shot keeps its id and annotation.
func (r *RallyRepository) Save(ctx context.Context, rally domain.Rally) error {
	if rally.ID == "" {
		return fmt.Errorf("rally %d has no id", rally.Ordinal)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	now := time.Now().UTC()

	err = qtx.UpsertRally(ctx, db.UpsertRallyParams{
		ID:           rally.ID,
		SetID:        rally.SetID,
		Ordinal:      int64(rally.Ordinal),
		EndCondition: string(rally.EndCondition),
		IsError:      rally.IsError,
		ServerSide:   string(rally.ServerSide),
		ReceiverSide: string(rally.ReceiverSide),
		WinnerSide:   string(rally.WinnerSide),
		ScoreBeforeA: int64(rally.ScoreBefore.A),
		ScoreBeforeB: int64(rally.ScoreBefore.B),
		ScoreAfterA:  int64(rally.ScoreAfter.A),
		ScoreAfterB:  int64(rally.ScoreAfter.B),
		EndTime:      rally.EndTime,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert rally %s: %w", rally.ID, err)
	}

	for i := 0; i < len(rally.Shots); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(rally.Shots) {
			end = len(rally.Shots)
		}
		for _, shot := range rally.Shots[i:end] {
			shot.RallyID = rally.ID
			if err := upsertShot(ctx, qtx, shot, now); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (r *RallyRepository) SaveShot(ctx context.Context, shot domain.Shot) error {
	return upsertShot(ctx, r.queries, shot, time.Now().UTC())
}

func upsertShot(ctx context.Context, q *db.Queries, shot domain.Shot, now time.Time) error {
	if shot.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate shot id: %w", err)
		}
		shot.ID = id
	}
	a := shot.Annotation
	err := q.UpsertShot(ctx, db.UpsertShotParams{
		ID:             shot.ID,
		RallyID:        shot.RallyID,
		Ordinal:        int64(shot.Ordinal),
		Side:           string(shot.Side),
		Time:           shot.Time,
		IsServe:        shot.IsServe,
		IsReceive:      shot.IsReceive,
		IsLastShot:     shot.IsLastShot,
		Role:           string(shot.Role),
		Direction:      string(a.Direction),
		Depth:          string(a.Depth),
		Spin:           string(a.Spin),
		Stroke:         string(a.Stroke),
		Quality:        string(a.Quality),
		Intent:         string(a.Intent),
		ErrorPlacement: string(a.ErrorPlacement),
		ErrorType:      string(a.ErrorType),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert shot %d of rally %s: %w", shot.Ordinal, shot.RallyID, err)
	}
	return nil
}

// UpdateAnnotation replaces the full annotation field set of one shot.
func (r *RallyRepository) UpdateAnnotation(ctx context.Context, rallyID string, ordinal int, a domain.Annotation) error {
	n, err := r.queries.UpdateShotAnnotation(ctx, db.UpdateShotAnnotationParams{
		Direction:      string(a.Direction),
		Depth:          string(a.Depth),
		Spin:           string(a.Spin),
		Stroke:         string(a.Stroke),
		Quality:        string(a.Quality),
		Intent:         string(a.Intent),
		ErrorPlacement: string(a.ErrorPlacement),
		ErrorType:      string(a.ErrorType),
		UpdatedAt:      time.Now().UTC(),
		RallyID:        rallyID,
		Ordinal:        int64(ordinal),
	})
	if err != nil {
		return fmt.Errorf("failed to update shot annotation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("shot %d of rally %s: %w", ordinal, rallyID, ErrNotFound)
	}
	return nil
}

// Delete removes a rally and its shots. Deleting a missing rally is not an
// error.
func (r *RallyRepository) Delete(ctx context.Context, rallyID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	if err := qtx.DeleteShotsByRally(ctx, rallyID); err != nil {
		return fmt.Errorf("failed to delete shots of rally %s: %w", rallyID, err)
	}
	if err := qtx.DeleteRally(ctx, rallyID); err != nil {
		return fmt.Errorf("failed to delete rally %s: %w", rallyID, err)
	}
	return tx.Commit()
}

// ListBySet returns the set's rallies in ordinal order without their shots.
func (r *RallyRepository) ListBySet(ctx context.Context, setID string) ([]domain.Rally, error) {
	rows, err := r.queries.ListRalliesBySet(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rallies: %w", err)
	}
	rallies := make([]domain.Rally, len(rows))
	for i, row := range rows {
		rallies[i] = toRally(row)
	}
	return rallies, nil
}

func (r *RallyRepository) ShotsByRally(ctx context.Context, rallyID string) ([]domain.Shot, error) {
	rows, err := r.queries.ListShotsByRally(ctx, rallyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shots of rally %s: %w", rallyID, err)
	}
	shots := make([]domain.Shot, len(rows))
	for i, row := range rows {
		shots[i] = toShot(row)
	}
	return shots, nil
}

// WithShots returns the set's rallies with their shots attached.
func (r *RallyRepository) WithShots(ctx context.Context, setID string) ([]domain.Rally, error) {
	rallies, err := r.ListBySet(ctx, setID)
	if err != nil {
		return nil, err
	}
	for i := range rallies {
		shots, err := r.ShotsByRally(ctx, rallies[i].ID)
		if err != nil {
			return nil, err
		}
		rallies[i].Shots = shots
	}
	return rallies, nil
}

func toRally(row db.Rally) domain.Rally {
	return domain.Rally{
		ID:           row.ID,
		SetID:        row.SetID,
		Ordinal:      int(row.Ordinal),
		EndCondition: domain.EndCondition(row.EndCondition),
		IsError:      row.IsError,
		ServerSide:   domain.Side(row.ServerSide),
		ReceiverSide: domain.Side(row.ReceiverSide),
		WinnerSide:   domain.Side(row.WinnerSide),
		ScoreBefore:  domain.Score{A: int(row.ScoreBeforeA), B: int(row.ScoreBeforeB)},
		ScoreAfter:   domain.Score{A: int(row.ScoreAfterA), B: int(row.ScoreAfterB)},
		EndTime:      row.EndTime,
	}
}

func toShot(row db.Shot) domain.Shot {
	return domain.Shot{
		ID:         row.ID,
		RallyID:    row.RallyID,
		Ordinal:    int(row.Ordinal),
		Side:       domain.Side(row.Side),
		Time:       row.Time,
		IsServe:    row.IsServe,
		IsReceive:  row.IsReceive,
		IsLastShot: row.IsLastShot,
		Role:       domain.ShotRole(row.Role),
		Annotation: domain.Annotation{
			Direction:      domain.Direction(row.Direction),
			Depth:          domain.Depth(row.Depth),
			Spin:           domain.Spin(row.Spin),
			Stroke:         domain.Stroke(row.Stroke),
			Quality:        domain.Quality(row.Quality),
			Intent:         domain.Intent(row.Intent),
			ErrorPlacement: domain.ErrorPlacement(row.ErrorPlacement),
			ErrorType:      domain.ErrorType(row.ErrorType),
		},
	}
}
