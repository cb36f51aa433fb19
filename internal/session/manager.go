package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rally-tagger/internal/domain"
	"rally-tagger/internal/persistence"
	"rally-tagger/internal/service"
)

var (
	ErrNoSession     = errors.New("no open session for this set")
	ErrSessionExists = errors.New("a session is already open for this set")
)

// Lifecycle starts and reloads sets in the store.
type Lifecycle interface {
	Start(ctx context.Context, setID string, firstServer domain.Side) (*domain.Set, error)
	Resume(ctx context.Context, setID string) (*service.ResumeState, error)
}

// Manager holds the open sessions keyed by set id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	lifecycle Lifecycle
	results   Results
	store     persistence.Store
	notifier  Notifier
	opts      Options
	logger    zerolog.Logger
}

func NewManager(lifecycle Lifecycle, results Results, store persistence.Store, notifier Notifier, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		lifecycle: lifecycle,
		results:   results,
		store:     store,
		notifier:  notifier,
		opts:      opts,
		logger:    logger.With().Str("component", "sessions").Logger(),
	}
}

// Start opens a fresh capture session. The set must not have been tagged.
func (m *Manager) Start(ctx context.Context, setID string, firstServer domain.Side) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[setID]; ok {
		return nil, ErrSessionExists
	}

	set, err := m.lifecycle.Start(ctx, setID, firstServer)
	if err != nil {
		return nil, err
	}

	s := newSession(*set, m.store, m.results, m.notifier, m.opts, m.logger)
	s.startCapture(nil)
	m.sessions[setID] = s
	m.logger.Info().Str("set_id", setID).Msg("session started")
	return s, nil
}

// Resume rebuilds a session from the store and re-enters the phase its
// progress marker names. An already open session is returned as is.
func (m *Manager) Resume(ctx context.Context, setID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[setID]; ok {
		return s, nil
	}

	state, err := m.lifecycle.Resume(ctx, setID)
	if err != nil {
		return nil, err
	}

	s := newSession(*state.Set, m.store, m.results, m.notifier, m.opts, m.logger)
	s.mu.Lock()
	switch state.Set.Progress.Phase {
	case domain.PhaseCaptureActive:
		s.startCapture(state.Rallies)
	case domain.PhaseCaptureComplete:
		s.startAnnotate(state.Rallies, 0)
	case domain.PhaseAnnotateActive, domain.PhaseAnnotateComplete:
		s.startAnnotate(state.Rallies, state.Set.Progress.LastShotIndex)
	default:
		s.mu.Unlock()
		s.Close(ctx)
		return nil, fmt.Errorf("cannot resume set in phase %q", state.Set.Progress.Phase)
	}
	if state.Recovered {
		msg := state.Warning
		if msg == "" {
			msg = "stored progress was unusable; capture rebuilt from saved rallies"
		}
		s.warn("%s", msg)
		for _, r := range state.Dropped {
			s.adapter.RetractRally(r)
		}
		// an offline session must not overwrite a marker it could not read
		if !state.Offline {
			s.adapter.AdvanceProgress(state.Set.Progress)
		}
	}
	// nothing left to annotate, but completion never ran
	if s.phase == domain.PhaseAnnotateComplete && state.Set.Progress.Phase != domain.PhaseAnnotateComplete {
		s.completeUnanswered(state.Rallies)
	}
	s.mu.Unlock()

	m.sessions[setID] = s
	m.logger.Info().Str("set_id", setID).Str("phase", string(s.phase)).Msg("session resumed")
	return s, nil
}

func (m *Manager) Get(setID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[setID]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Close flushes and drops one session. Closing an unknown set is a no-op.
func (m *Manager) Close(ctx context.Context, setID string) error {
	m.mu.Lock()
	s, ok := m.sessions[setID]
	delete(m.sessions, setID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// Shutdown flushes every open session concurrently. One failing session does
// not stop the others from flushing.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var g errgroup.Group
	for id, s := range open {
		g.Go(func() error {
			if err := s.Close(ctx); err != nil {
				m.logger.Error().Err(err).Str("set_id", id).Msg("failed to flush session on shutdown")
				return fmt.Errorf("set %s: %w", id, err)
			}
			return nil
		})
	}
	err := g.Wait()
	m.logger.Info().Int("sessions", len(open)).Msg("sessions closed")
	return err
}
