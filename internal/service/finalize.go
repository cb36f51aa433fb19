package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"rally-tagger/internal/domain"
	"rally-tagger/internal/repository"
)

type FinalizeService struct {
	matchRepo *repository.MatchRepository
	setRepo   *repository.SetRepository
	logger    zerolog.Logger
}

func NewFinalizeService(matchRepo *repository.MatchRepository, setRepo *repository.SetRepository, logger zerolog.Logger) *FinalizeService {
	return &FinalizeService{matchRepo: matchRepo, setRepo: setRepo, logger: logger}
}

type SetLedger struct {
	SetID     string            `json:"set_id"`
	SetNumber int               `json:"set_number"`
	Winner    domain.Side       `json:"winner,omitempty"`
	Ledger    repository.Ledger `json:"ledger"`
}

type FinalizeResult struct {
	MatchID  string      `json:"match_id"`
	SetsWonA int         `json:"sets_won_a"`
	SetsWonB int         `json:"sets_won_b"`
	Winner   domain.Side `json:"winner,omitempty"`
	Sets     []SetLedger `json:"sets"`
}

// Tally derives the sets-before/after ledger and the match winner from the
// sets' stored winners alone. Sets are ordered by number, so the input order
// does not matter.
func Tally(sets []domain.Set) FinalizeResult {
	ordered := make([]domain.Set, len(sets))
	copy(ordered, sets)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SetNumber < ordered[j].SetNumber })

	var res FinalizeResult
	for _, s := range ordered {
		l := repository.Ledger{BeforeA: res.SetsWonA, BeforeB: res.SetsWonB}
		switch s.WinnerSide {
		case domain.SideA:
			res.SetsWonA++
		case domain.SideB:
			res.SetsWonB++
		}
		l.AfterA = res.SetsWonA
		l.AfterB = res.SetsWonB
		res.Sets = append(res.Sets, SetLedger{SetID: s.ID, SetNumber: s.SetNumber, Winner: s.WinnerSide, Ledger: l})
	}

	switch {
	case res.SetsWonA > res.SetsWonB:
		res.Winner = domain.SideA
	case res.SetsWonB > res.SetsWonA:
		res.Winner = domain.SideB
	}
	return res
}

// Finalize recomputes and stores every set ledger and the match result.
// Running it twice writes the same values.
func (s *FinalizeService) Finalize(ctx context.Context, matchID string) (*FinalizeResult, error) {
	if _, err := s.matchRepo.Get(ctx, matchID); err != nil {
		return nil, err
	}
	sets, err := s.setRepo.ListByMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sets: %w", err)
	}

	res := Tally(sets)
	res.MatchID = matchID

	for _, sl := range res.Sets {
		if err := s.setRepo.UpdateLedger(ctx, sl.SetID, sl.Ledger); err != nil {
			return nil, fmt.Errorf("failed to update ledger of set %d: %w", sl.SetNumber, err)
		}
	}
	if err := s.matchRepo.UpdateResult(ctx, matchID, res.SetsWonA, res.SetsWonB, res.Winner); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("match_id", matchID).
		Int("sets_won_a", res.SetsWonA).
		Int("sets_won_b", res.SetsWonB).
		Str("winner", string(res.Winner)).
		Msg("match finalized")
	return &res, nil
}
