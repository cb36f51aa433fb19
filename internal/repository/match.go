package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rally-tagger/internal/db"
	"rally-tagger/internal/domain"
)

var ErrNotFound = errors.New("not found")

type MatchRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// Create stores the match together with its BestOf empty sets.
func (r *MatchRepository) Create(ctx context.Context, match *domain.Match) ([]domain.Set, error) {
	if match.BestOf <= 0 {
		return nil, fmt.Errorf("best of must be positive, got %d", match.BestOf)
	}
	now := time.Now().UTC()
	if match.ID == "" {
		match.ID = uuid.NewString()
	}
	match.CreatedAt = now
	match.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	err = qtx.CreateMatch(ctx, db.CreateMatchParams{
		ID:        match.ID,
		PlayerA:   match.PlayerA,
		PlayerB:   match.PlayerB,
		BestOf:    int64(match.BestOf),
		VideoUrl:  match.VideoURL,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	sets := make([]domain.Set, match.BestOf)
	for i := range sets {
		sets[i] = domain.Set{
			ID:        uuid.NewString(),
			MatchID:   match.ID,
			SetNumber: i + 1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := qtx.CreateSet(ctx, db.CreateSetParams{
			ID:        sets[i].ID,
			MatchID:   match.ID,
			SetNumber: int64(sets[i].SetNumber),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create set %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit match: %w", err)
	}

	r.logger.Info().Str("match_id", match.ID).Int("sets", len(sets)).Msg("match created")
	return sets, nil
}

func (r *MatchRepository) Get(ctx context.Context, matchID string) (*domain.Match, error) {
	row, err := r.queries.GetMatch(ctx, matchID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	m := toMatch(row)
	return &m, nil
}

func (r *MatchRepository) UpdateResult(ctx context.Context, matchID string, setsWonA, setsWonB int, winner domain.Side) error {
	n, err := r.queries.UpdateMatchResult(ctx, db.UpdateMatchResultParams{
		SetsWonA:   int64(setsWonA),
		SetsWonB:   int64(setsWonB),
		WinnerSide: string(winner),
		UpdatedAt:  time.Now().UTC(),
		ID:         matchID,
	})
	if err != nil {
		return fmt.Errorf("failed to update match result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	return nil
}

func toMatch(row db.Match) domain.Match {
	return domain.Match{
		ID:         row.ID,
		PlayerA:    row.PlayerA,
		PlayerB:    row.PlayerB,
		BestOf:     int(row.BestOf),
		SetsWonA:   int(row.SetsWonA),
		SetsWonB:   int(row.SetsWonB),
		WinnerSide: domain.Side(row.WinnerSide),
		VideoURL:   row.VideoUrl,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}
