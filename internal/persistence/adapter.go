// Package persistence keeps the durable store in step with a live tagging
// session. The machines hand it rallies and shots without waiting; it journals
// each intent and applies the journal to the store in order.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"rally-tagger/internal/domain"
	"rally-tagger/internal/journal"
)

// Store is the durable record store. Writes must be idempotent: rallies are
// keyed by id, shots by (rally id, ordinal).
type Store interface {
	SaveRally(ctx context.Context, rally domain.Rally) error
	SaveShot(ctx context.Context, shot domain.Shot) error
	UpdateShot(ctx context.Context, rallyID string, ordinal int, ann domain.Annotation) error
	DeleteRally(ctx context.Context, rallyID string) error
	UpdateProgress(ctx context.Context, setID string, p domain.Progress) error
	RalliesBySet(ctx context.Context, setID string) ([]domain.Rally, error)
}

// Status backs the "saving / last saved at" indicator.
type Status struct {
	Saving      bool       `json:"saving"`
	Pending     int        `json:"pending"`
	LastSavedAt *time.Time `json:"last_saved_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

type Adapter struct {
	setID   string
	store   Store
	journal *journal.Journal
	kick    chan struct{}
	logger  zerolog.Logger

	flushMu sync.Mutex
	mu      sync.Mutex
	status  Status
}

func NewAdapter(setID string, store Store, logger zerolog.Logger) *Adapter {
	return &Adapter{
		setID:   setID,
		store:   store,
		journal: journal.New(),
		kick:    make(chan struct{}, 1),
		logger:  logger.With().Str("set_id", setID).Str("component", "persistence").Logger(),
	}
}

// CommitRally assigns ids to the rally and its shots and queues it.
func (a *Adapter) CommitRally(rally domain.Rally) domain.Rally {
	if rally.ID == "" {
		rally.ID = a.newID()
	}
	rally.SetID = a.setID
	shots := make([]domain.Shot, len(rally.Shots))
	for i, s := range rally.Shots {
		if s.ID == "" {
			s.ID = a.newID()
		}
		s.RallyID = rally.ID
		shots[i] = s
	}
	rally.Shots = shots

	a.append(journal.Entry{Op: journal.OpSaveRally, SetID: a.setID, RallyID: rally.ID, Rally: &rally})
	return rally
}

// CommitShot queues a single shot of an already committed rally.
func (a *Adapter) CommitShot(rallyID string, shot domain.Shot) string {
	if shot.ID == "" {
		shot.ID = a.newID()
	}
	shot.RallyID = rallyID
	a.append(journal.Entry{Op: journal.OpSaveShot, SetID: a.setID, RallyID: rallyID, Shot: &shot})
	return shot.ID
}

// RetractRally withdraws a rally reopened by undo. A save that never reached
// the store is cancelled; otherwise a compensating delete is queued.
func (a *Adapter) RetractRally(rally domain.Rally) {
	if rally.ID == "" {
		return
	}
	if a.journal.CancelRallySave(rally.ID) {
		a.logger.Debug().Str("rally_id", rally.ID).Msg("unsaved rally cancelled")
		a.signal()
		return
	}
	a.logger.Info().Str("rally_id", rally.ID).Int("rally", rally.Ordinal).Msg("queueing compensating delete")
	a.append(journal.Entry{Op: journal.OpDeleteRally, SetID: a.setID, RallyID: rally.ID})
}

func (a *Adapter) UpdateShot(shot domain.Shot) {
	a.append(journal.Entry{Op: journal.OpUpdateShot, SetID: a.setID, RallyID: shot.RallyID, Shot: &shot})
}

func (a *Adapter) AdvanceProgress(p domain.Progress) {
	a.append(journal.Entry{Op: journal.OpAdvanceProgress, SetID: a.setID, Progress: &p})
}

func (a *Adapter) append(e journal.Entry) {
	if _, err := a.journal.Append(e); err != nil {
		a.logger.Error().Err(err).Str("op", string(e.Op)).Msg("failed to journal write")
		a.setError(err)
		return
	}
	a.signal()
}

func (a *Adapter) signal() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Flush applies pending journal entries in order and stops at the first
// failure, leaving it pending for the next attempt.
func (a *Adapter) Flush(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	a.status.Saving = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.status.Saving = false
		a.mu.Unlock()
	}()

	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, ok := a.journal.Next()
		if !ok {
			break
		}
		err := a.apply(ctx, e)
		a.journal.Done(e.Seq, err)
		if err != nil {
			a.logger.Warn().Err(err).Str("op", string(e.Op)).Uint64("seq", e.Seq).Int("attempts", e.Attempts).Msg("journal entry failed")
			a.setError(err)
			return fmt.Errorf("failed to apply %s #%d: %w", e.Op, e.Seq, err)
		}
		applied++
	}

	if applied > 0 {
		now := time.Now()
		a.mu.Lock()
		a.status.LastSavedAt = &now
		a.status.LastError = ""
		a.mu.Unlock()
		a.journal.Compact()
		a.logger.Debug().Int("applied", applied).Msg("journal flushed")
	}
	return nil
}

func (a *Adapter) apply(ctx context.Context, e journal.Entry) error {
	switch e.Op {
	case journal.OpSaveRally:
		return a.store.SaveRally(ctx, *e.Rally)
	case journal.OpSaveShot:
		return a.store.SaveShot(ctx, *e.Shot)
	case journal.OpUpdateShot:
		return a.store.UpdateShot(ctx, e.Shot.RallyID, e.Shot.Ordinal, e.Shot.Annotation)
	case journal.OpDeleteRally:
		return a.store.DeleteRally(ctx, e.RallyID)
	case journal.OpAdvanceProgress:
		return a.store.UpdateProgress(ctx, e.SetID, *e.Progress)
	}
	return fmt.Errorf("unknown journal op %q", e.Op)
}

// Run flushes whenever a write is queued and on every tick, until ctx ends.
func (a *Adapter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.kick:
		case <-ticker.C:
		}
		if err := a.Flush(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn().Err(err).Int("pending", a.journal.Pending()).Msg("flush incomplete, will retry")
		}
	}
}

func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.status
	s.Pending = a.journal.Pending()
	return s
}

func (a *Adapter) setError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status.LastError = err.Error()
}

func (a *Adapter) newID() string {
	id, err := gonanoid.New()
	if err != nil {
		// crypto/rand failure; fall back to a time-based id so tagging continues
		a.logger.Error().Err(err).Msg("failed to generate nanoid")
		return fmt.Sprintf("t%d", time.Now().UnixNano())
	}
	return id
}
