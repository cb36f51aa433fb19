package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rally-tagger/internal/constants"
	"rally-tagger/internal/domain"
	"rally-tagger/internal/repository"
	"rally-tagger/internal/scoring"
)

var (
	ErrNoServer       = errors.New("first server must be A or B")
	ErrAlreadyStarted = errors.New("set tagging already started")
	ErrNotStarted     = errors.New("set tagging not started")
	ErrUnknownScope   = errors.New("unknown redo scope")
)

const shotLoadConcurrency = 4

type SessionService struct {
	matchRepo *repository.MatchRepository
	setRepo   *repository.SetRepository
	rallyRepo *repository.RallyRepository
	finalize  *FinalizeService
	logger    zerolog.Logger
}

func NewSessionService(matchRepo *repository.MatchRepository, setRepo *repository.SetRepository, rallyRepo *repository.RallyRepository, finalize *FinalizeService, logger zerolog.Logger) *SessionService {
	return &SessionService{matchRepo: matchRepo, setRepo: setRepo, rallyRepo: rallyRepo, finalize: finalize, logger: logger}
}

type Resumability struct {
	SetID    string              `json:"set_id"`
	Action   domain.ResumeAction `json:"action"`
	Progress domain.Progress     `json:"progress"`
}

// Resumability tells the caller whether the set should be started, resumed or
// redone.
func (s *SessionService) Resumability(ctx context.Context, matchID string, setNumber int) (Resumability, error) {
	set, err := s.setRepo.GetByMatchAndNumber(ctx, matchID, setNumber)
	if err != nil {
		return Resumability{}, err
	}
	return Resumability{SetID: set.ID, Action: resumeAction(set.Progress), Progress: set.Progress}, nil
}

func resumeAction(p domain.Progress) domain.ResumeAction {
	switch p.Phase {
	case domain.PhaseNone:
		return domain.ActionStart
	case domain.PhaseAnnotateComplete:
		return domain.ActionRedo
	}
	return domain.ActionResume
}

// Start records the first server and opens capture for a set that has no
// tagging data yet.
func (s *SessionService) Start(ctx context.Context, setID string, firstServer domain.Side) (*domain.Set, error) {
	if !firstServer.Valid() {
		return nil, ErrNoServer
	}
	set, err := s.setRepo.Get(ctx, setID)
	if err != nil {
		return nil, err
	}
	if set.Progress.Phase != domain.PhaseNone {
		return nil, fmt.Errorf("set %d is %s: %w", set.SetNumber, set.Progress.Phase, ErrAlreadyStarted)
	}

	if err := s.setRepo.SetFirstServer(ctx, setID, firstServer); err != nil {
		return nil, fmt.Errorf("failed to store first server: %w", err)
	}
	p := domain.Progress{Phase: domain.PhaseCaptureActive}
	if err := s.setRepo.UpdateProgress(ctx, setID, p); err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}

	set.FirstServer = firstServer
	set.Progress = p
	s.logger.Info().Str("set_id", setID).Str("first_server", string(firstServer)).Msg("tagging started")
	return set, nil
}

// ResumeState is everything needed to rebuild a session from the store.
type ResumeState struct {
	Set     *domain.Set
	Rallies []domain.Rally
	// Recovered is set when the stored state was unusable and capture is
	// rebuilt from what could be read. Warning says why.
	Recovered bool
	Warning   string
	// Dropped holds stored rallies past an ordinal gap. They are not part of
	// the rebuilt capture and have to be removed from the store.
	Dropped []domain.Rally
	// Offline is set when the rallies could not be read at all. Capture starts
	// fresh and nothing it queues reaches the store until the store answers.
	Offline bool
}

func (s *SessionService) Resume(ctx context.Context, setID string) (*ResumeState, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	set, err := s.setRepo.Get(ctx, setID)
	if err != nil {
		return nil, err
	}
	if set.Progress.Phase == domain.PhaseNone {
		return nil, ErrNotStarted
	}
	if !set.FirstServer.Valid() {
		return nil, fmt.Errorf("set %s: %w", setID, ErrNoServer)
	}

	rallies, err := s.loadRallies(ctx, setID)
	if err != nil {
		s.logger.Error().Err(err).Str("set_id", setID).Msg("failed to load rallies for resume, starting capture fresh")
		set.Progress = domain.Progress{Phase: domain.PhaseCaptureActive}
		return &ResumeState{
			Set:       set,
			Recovered: true,
			Offline:   true,
			Warning:   fmt.Sprintf("saved rallies could not be loaded (%v); capture restarted from rally 1 and saving retries until the store answers", err),
		}, nil
	}

	state := &ResumeState{Set: set, Rallies: rallies}
	if n := contiguousRallies(rallies); n < len(rallies) {
		s.logger.Warn().
			Str("set_id", setID).
			Int("kept", n).
			Int("stored", len(rallies)).
			Int("gap_at", rallies[n].Ordinal).
			Msg("rally ordinals not contiguous, rebuilding capture from the leading run")
		state.Rallies = rallies[:n]
		state.Dropped = rallies[n:]
		state.Recovered = true
		state.Warning = fmt.Sprintf("saved rallies skip from %d to %d; capture rebuilt from the first %d and the rest discarded", n, rallies[n].Ordinal, n)
	} else if err := s.checkMarker(set.Progress, rallies); err != nil {
		s.logger.Warn().Err(err).Str("set_id", setID).Msg("malformed progress marker, rebuilding capture from stored rallies")
		state.Recovered = true
		state.Warning = "progress marker was unreadable; capture rebuilt from saved rallies"
	}
	if state.Recovered {
		set.Progress = domain.Progress{Phase: domain.PhaseCaptureActive, LastRallyIndex: len(state.Rallies)}
	}

	s.logger.Info().
		Str("set_id", setID).
		Str("phase", string(set.Progress.Phase)).
		Int("rallies", len(state.Rallies)).
		Bool("recovered", state.Recovered).
		Msg("session state loaded")
	return state, nil
}

// loadRallies fetches the rally headers and then each rally's shots
// concurrently.
func (s *SessionService) loadRallies(ctx context.Context, setID string) ([]domain.Rally, error) {
	rallies, err := s.rallyRepo.ListBySet(ctx, setID)
	if err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(shotLoadConcurrency)
	for i := range rallies {
		g.Go(func() error {
			shots, err := s.rallyRepo.ShotsByRally(gCtx, rallies[i].ID)
			if err != nil {
				return err
			}
			rallies[i].Shots = shots
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rallies, nil
}

// contiguousRallies counts the leading rallies numbered 1, 2, 3 and so on.
func contiguousRallies(rallies []domain.Rally) int {
	for i, r := range rallies {
		if r.Ordinal != i+1 {
			return i
		}
	}
	return len(rallies)
}

func (s *SessionService) checkMarker(p domain.Progress, rallies []domain.Rally) error {
	if err := p.Validate(); err != nil {
		return err
	}
	shots := 0
	for _, r := range rallies {
		shots += len(r.Shots)
	}
	switch p.Phase {
	case domain.PhaseCaptureActive, domain.PhaseCaptureComplete:
		if p.LastRallyIndex > len(rallies) {
			return fmt.Errorf("marker points at rally %d of %d", p.LastRallyIndex, len(rallies))
		}
	case domain.PhaseAnnotateActive, domain.PhaseAnnotateComplete:
		if p.LastShotIndex > shots {
			return fmt.Errorf("marker points at shot %d of %d", p.LastShotIndex, shots)
		}
	}
	return nil
}

// FinishCapture stores the final score of a set whose capture has ended and
// returns the recorded winner. A set ended before a side reached game point
// records the leader, a tie records no winner.
func (s *SessionService) FinishCapture(ctx context.Context, setID string, score domain.Score) (domain.Side, error) {
	winner := scoring.SetWinner(score)
	if winner == domain.NoSide {
		winner = scoring.Leader(score)
		s.logger.Warn().
			Str("set_id", setID).
			Int("score_a", score.A).
			Int("score_b", score.B).
			Msg("capture finished before the set was decided")
	}
	if err := s.setRepo.UpdateResult(ctx, setID, score, winner); err != nil {
		return domain.NoSide, err
	}
	return winner, nil
}

// Redo deletes the set's tagging data in the given scope and re-runs match
// finalization so aggregates reflect the remaining set winners.
func (s *SessionService) Redo(ctx context.Context, setID string, scope domain.DeleteScope) (*FinalizeResult, error) {
	if scope != domain.ScopeAll && scope != domain.ScopeAnnotate {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	set, err := s.setRepo.Get(ctx, setID)
	if err != nil {
		return nil, err
	}
	if err := s.setRepo.DeleteTaggingData(ctx, setID, scope); err != nil {
		return nil, fmt.Errorf("failed to delete tagging data: %w", err)
	}
	s.logger.Info().Str("set_id", setID).Str("scope", string(scope)).Msg("set reset for redo")
	return s.finalize.Finalize(ctx, set.MatchID)
}

func (s *SessionService) Set(ctx context.Context, setID string) (*domain.Set, error) {
	return s.setRepo.Get(ctx, setID)
}

func (s *SessionService) CreateMatch(ctx context.Context, m *domain.Match) ([]domain.Set, error) {
	return s.matchRepo.Create(ctx, m)
}

func (s *SessionService) Rallies(ctx context.Context, setID string) ([]domain.Rally, error) {
	return s.loadRallies(ctx, setID)
}

func (s *SessionService) Finalize(ctx context.Context, matchID string) (*FinalizeResult, error) {
	return s.finalize.Finalize(ctx, matchID)
}
