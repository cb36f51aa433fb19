package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rally-tagger/internal/db"
	"rally-tagger/internal/domain"
)

type SetRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewSetRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *SetRepository {
	return &SetRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func (r *SetRepository) Get(ctx context.Context, setID string) (*domain.Set, error) {
	row, err := r.queries.GetSet(ctx, setID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("set %s: %w", setID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s := toSet(row)
	return &s, nil
}

func (r *SetRepository) GetByMatchAndNumber(ctx context.Context, matchID string, number int) (*domain.Set, error) {
	row, err := r.queries.GetSetByNumber(ctx, db.GetSetByNumberParams{
		MatchID:   matchID,
		SetNumber: int64(number),
	})
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("set %d of match %s: %w", number, matchID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s := toSet(row)
	return &s, nil
}

func (r *SetRepository) ListByMatch(ctx context.Context, matchID string) ([]domain.Set, error) {
	rows, err := r.queries.ListSetsByMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	sets := make([]domain.Set, len(rows))
	for i, row := range rows {
		sets[i] = toSet(row)
	}
	return sets, nil
}

func (r *SetRepository) UpdateProgress(ctx context.Context, setID string, p domain.Progress) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid progress for set %s: %w", setID, err)
	}
	n, err := r.queries.UpdateSetProgress(ctx, progressParams(setID, p))
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set %s: %w", setID, ErrNotFound)
	}
	return nil
}

func (r *SetRepository) SetFirstServer(ctx context.Context, setID string, side domain.Side) error {
	return r.queries.UpdateSetFirstServer(ctx, string(side), time.Now().UTC(), setID)
}

func (r *SetRepository) UpdateResult(ctx context.Context, setID string, score domain.Score, winner domain.Side) error {
	err := r.queries.UpdateSetResult(ctx, db.UpdateSetResultParams{
		ScoreA:     int64(score.A),
		ScoreB:     int64(score.B),
		WinnerSide: string(winner),
		UpdatedAt:  time.Now().UTC(),
		ID:         setID,
	})
	if err != nil {
		return fmt.Errorf("failed to update set result: %w", err)
	}
	return nil
}

// Ledger is the sets-won count per side before and after one set.
type Ledger struct {
	BeforeA int `json:"sets_before_a"`
	BeforeB int `json:"sets_before_b"`
	AfterA  int `json:"sets_after_a"`
	AfterB  int `json:"sets_after_b"`
}

func (r *SetRepository) UpdateLedger(ctx context.Context, setID string, l Ledger) error {
	return r.queries.UpdateSetLedger(ctx, db.UpdateSetLedgerParams{
		SetsBeforeA: int64(l.BeforeA),
		SetsBeforeB: int64(l.BeforeB),
		SetsAfterA:  int64(l.AfterA),
		SetsAfterB:  int64(l.AfterB),
		UpdatedAt:   time.Now().UTC(),
		ID:          setID,
	})
}

// DeleteTaggingData removes a set's tagging data in one transaction. ScopeAll
// drops rallies, shots, progress and the set result; ScopeAnnotate clears only
// the annotation fields and rewinds progress to the end of capture.
func (r *SetRepository) DeleteTaggingData(ctx context.Context, setID string, scope domain.DeleteScope) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	now := time.Now().UTC()

	row, err := qtx.GetSet(ctx, setID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("set %s: %w", setID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load set: %w", err)
	}

	switch scope {
	case domain.ScopeAll:
		if err := qtx.DeleteShotsBySet(ctx, setID); err != nil {
			return fmt.Errorf("failed to delete shots: %w", err)
		}
		deleted, err := qtx.DeleteRalliesBySet(ctx, setID)
		if err != nil {
			return fmt.Errorf("failed to delete rallies: %w", err)
		}
		if _, err := qtx.UpdateSetProgress(ctx, progressParams(setID, domain.Progress{})); err != nil {
			return fmt.Errorf("failed to reset progress: %w", err)
		}
		err = qtx.UpdateSetResult(ctx, db.UpdateSetResultParams{UpdatedAt: now, ID: setID})
		if err != nil {
			return fmt.Errorf("failed to reset result: %w", err)
		}
		r.logger.Info().Str("set_id", setID).Int64("rallies", deleted).Msg("tagging data deleted")

	case domain.ScopeAnnotate:
		cleared, err := qtx.ClearShotAnnotationsBySet(ctx, now, setID)
		if err != nil {
			return fmt.Errorf("failed to clear annotations: %w", err)
		}
		p := domain.Progress{
			Phase:          domain.PhaseCaptureComplete,
			LastRallyIndex: int(row.TotalRallies),
			TotalRallies:   int(row.TotalRallies),
			TotalShots:     int(row.TotalShots),
		}
		if _, err := qtx.UpdateSetProgress(ctx, progressParams(setID, p)); err != nil {
			return fmt.Errorf("failed to rewind progress: %w", err)
		}
		r.logger.Info().Str("set_id", setID).Int64("shots", cleared).Msg("annotations cleared")

	default:
		return fmt.Errorf("unknown delete scope %q", scope)
	}

	return tx.Commit()
}

func progressParams(setID string, p domain.Progress) db.UpdateSetProgressParams {
	return db.UpdateSetProgressParams{
		Phase:          string(p.Phase),
		LastRallyIndex: int64(p.LastRallyIndex),
		LastShotIndex:  int64(p.LastShotIndex),
		TotalRallies:   int64(p.TotalRallies),
		TotalShots:     int64(p.TotalShots),
		UpdatedAt:      time.Now().UTC(),
		ID:             setID,
	}
}

func toSet(row db.Set) domain.Set {
	return domain.Set{
		ID:          row.ID,
		MatchID:     row.MatchID,
		SetNumber:   int(row.SetNumber),
		FirstServer: domain.Side(row.FirstServer),
		Score:       domain.Score{A: int(row.ScoreA), B: int(row.ScoreB)},
		WinnerSide:  domain.Side(row.WinnerSide),
		SetsBeforeA: int(row.SetsBeforeA),
		SetsBeforeB: int(row.SetsBeforeB),
		SetsAfterA:  int(row.SetsAfterA),
		SetsAfterB:  int(row.SetsAfterB),
		Progress: domain.Progress{
			Phase:          domain.Phase(row.Phase),
			LastRallyIndex: int(row.LastRallyIndex),
			LastShotIndex:  int(row.LastShotIndex),
			TotalRallies:   int(row.TotalRallies),
			TotalShots:     int(row.TotalShots),
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
