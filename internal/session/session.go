// Package session owns one set's live tagging state: both state machines, the
// persistence adapter and the remote video. Every exported method is one user
// action and runs to completion under the session lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rally-tagger/internal/annotate"
	"rally-tagger/internal/capture"
	"rally-tagger/internal/constants"
	"rally-tagger/internal/domain"
	"rally-tagger/internal/persistence"
	"rally-tagger/internal/service"
	"rally-tagger/internal/video"
)

var (
	ErrWrongPhase = errors.New("action not available in this phase")
	ErrOpenRally  = errors.New("close or undo the open rally first")
)

// Results stores set and match outcomes.
type Results interface {
	FinishCapture(ctx context.Context, setID string, score domain.Score) (domain.Side, error)
	Finalize(ctx context.Context, matchID string) (*service.FinalizeResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, event domain.CompletionEvent) error
}

type Options struct {
	FlushInterval time.Duration
	TagSpeed      float64
	Preview       annotate.Preview
	FrameStep     float64
}

// Snapshot is the state returned after every action.
type Snapshot struct {
	SetID      string                  `json:"set_id"`
	Phase      domain.Phase            `json:"phase"`
	Score      domain.Score            `json:"score"`
	Capture    *capture.View           `json:"capture,omitempty"`
	Annotate   *annotate.View          `json:"annotate,omitempty"`
	Save       persistence.Status      `json:"save"`
	Result     *service.FinalizeResult `json:"result,omitempty"`
	Directives []video.Directive       `json:"directives"`
	Warnings   []string                `json:"warnings,omitempty"`
}

type Session struct {
	mu sync.Mutex

	set      domain.Set
	phase    domain.Phase
	opts     Options
	player   *video.Remote
	adapter  *persistence.Adapter
	capture  *capture.Machine
	annotate *annotate.Machine
	rallies  []domain.Rally
	result   *service.FinalizeResult
	warnings []string

	results  Results
	notifier Notifier
	cancel   context.CancelFunc
	done     chan struct{}
	logger   zerolog.Logger
}

func newSession(set domain.Set, store persistence.Store, results Results, notifier Notifier, opts Options, logger zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		set:      set,
		opts:     opts,
		player:   video.NewRemote(opts.FrameStep),
		adapter:  persistence.NewAdapter(set.ID, store, logger),
		results:  results,
		notifier: notifier,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   logger.With().Str("set_id", set.ID).Str("match_id", set.MatchID).Logger(),
	}
	go func() {
		defer close(s.done)
		s.adapter.Run(ctx, opts.FlushInterval)
	}()
	return s
}

// startCapture enters capture with the given rallies already committed.
func (s *Session) startCapture(rallies []domain.Rally) {
	s.phase = domain.PhaseCaptureActive
	s.capture = capture.New(s.set.ID, s.set.FirstServer, s.player, s.adapter, s.logger)
	if len(rallies) > 0 {
		s.capture.Restore(rallies)
		if h := s.capture.History(); len(h) > 0 {
			s.video(s.player.Seek(h[len(h)-1].Time))
		}
	}
	s.video(s.player.SetRate(s.opts.TagSpeed))
	s.video(s.player.Play())
}

// startAnnotate enters annotation after the given number of annotated shots.
func (s *Session) startAnnotate(rallies []domain.Rally, annotated int) {
	s.rallies = rallies
	s.capture = nil
	s.phase = domain.PhaseAnnotateActive
	s.video(s.player.Pause())
	s.video(s.player.SetRate(1))

	s.annotate = annotate.New(s.set.ID, rallies, s.player, s.adapter, s.opts.Preview, s.logger)
	s.annotate.OnComplete(s.annotationComplete)
	s.annotate.Start(annotated)
	if s.annotate.Complete() {
		s.phase = domain.PhaseAnnotateComplete
	}
}

func (s *Session) video(err error) {
	if err != nil {
		s.logger.Warn().Err(err).Msg("video directive failed")
	}
}

func (s *Session) RecordShot(t float64) (Snapshot, error) {
	return s.captureAction(func(m *capture.Machine) error {
		s.player.Observe(t)
		_, err := m.RecordShot(t)
		return err
	})
}

func (s *Session) EndRally(end domain.EndCondition, t float64) (Snapshot, error) {
	return s.captureAction(func(m *capture.Machine) error {
		s.player.Observe(t)
		_, err := m.EndRally(end, t)
		return err
	})
}

func (s *Session) Undo() (Snapshot, error) {
	return s.captureAction(func(m *capture.Machine) error {
		_, err := m.Undo()
		return err
	})
}

func (s *Session) StepBack() (Snapshot, error) {
	return s.captureAction(func(m *capture.Machine) error {
		_, err := m.StepBack()
		return err
	})
}

func (s *Session) StepForward() (Snapshot, error) {
	return s.captureAction(func(m *capture.Machine) error {
		_, err := m.StepForward()
		return err
	})
}

func (s *Session) GoLive() (Snapshot, error) {
	return s.captureAction(func(m *capture.Machine) error {
		return m.GoLive()
	})
}

func (s *Session) captureAction(fn func(m *capture.Machine) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseCaptureActive {
		return s.snapshot(), fmt.Errorf("%w: %s", ErrWrongPhase, s.phase)
	}
	err := fn(s.capture)
	return s.snapshot(), err
}

// StepFrame nudges the video one frame in either phase.
func (s *Session) StepFrame(dir video.FrameDirection, ignoreBounds bool) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.player.StepFrame(dir, ignoreBounds)
	return s.snapshot(), err
}

// FinishCapture ends Phase 1: it stores the set result, marks capture
// complete, reports the closed rallies and opens annotation.
func (s *Session) FinishCapture(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseCaptureActive {
		return s.snapshot(), fmt.Errorf("%w: %s", ErrWrongPhase, s.phase)
	}
	if s.capture.Navigating() {
		return s.snapshot(), fmt.Errorf("%w: return to live first", capture.ErrNotAllowed)
	}
	if s.capture.State() == capture.StateAfterServe {
		return s.snapshot(), ErrOpenRally
	}

	rallies := s.capture.Rallies()
	score := s.capture.Score()
	shots := 0
	for _, r := range rallies {
		shots += len(r.Shots)
	}

	p := domain.Progress{Phase: domain.PhaseCaptureComplete, TotalRallies: len(rallies), TotalShots: shots}
	if n := len(rallies); n > 0 {
		p.LastRallyIndex = rallies[n-1].Ordinal
	}
	s.adapter.AdvanceProgress(p)
	if err := s.adapter.Flush(ctx); err != nil {
		s.warn("capture saved locally only: %v", err)
	}

	winner, err := s.results.FinishCapture(ctx, s.set.ID, score)
	if err != nil {
		s.warn("set result not stored: %v", err)
	}
	s.set.Score = score
	s.set.WinnerSide = winner

	s.logger.Info().Int("rallies", len(rallies)).Int("shots", shots).Str("winner", string(winner)).Msg("capture finished")
	s.notify(domain.CompletionEvent{
		Kind:    domain.EventCaptureComplete,
		MatchID: s.set.MatchID,
		SetID:   s.set.ID,
		Score:   score,
		Winner:  winner,
		Rallies: rallies,
	})

	s.startAnnotate(rallies, 0)
	if s.phase == domain.PhaseAnnotateComplete {
		// nothing to annotate
		s.completeUnanswered(rallies)
	}
	return s.snapshot(), nil
}

// completeUnanswered records a finished annotation pass that needed no
// answers and runs completion.
func (s *Session) completeUnanswered(rallies []domain.Rally) {
	shots := s.annotate.Shots()
	p := domain.Progress{
		Phase:         domain.PhaseAnnotateComplete,
		LastShotIndex: len(shots),
		TotalRallies:  len(rallies),
		TotalShots:    len(shots),
	}
	if n := len(rallies); n > 0 {
		p.LastRallyIndex = rallies[n-1].Ordinal
	}
	s.adapter.AdvanceProgress(p)
	s.annotationComplete(shots)
}

func (s *Session) Answer(a domain.Annotation) (Snapshot, error) {
	return s.annotateAction(func(m *annotate.Machine) error {
		return m.Answer(a)
	})
}

// AnswerDirection answers the direction question from a grid button press,
// honouring the striker's rotation preference.
func (s *Session) AnswerDirection(row, col int) (Snapshot, error) {
	return s.annotateAction(func(m *annotate.Machine) error {
		v := m.View()
		if v.Shot == nil {
			return annotate.ErrComplete
		}
		d, err := annotate.DirectionForButton(row, col, v.Mirrored)
		if err != nil {
			return err
		}
		return m.Answer(domain.Annotation{Direction: d})
	})
}

func (s *Session) ReviewBack() (Snapshot, error) {
	return s.annotateAction(func(m *annotate.Machine) error {
		return m.ReviewBack()
	})
}

func (s *Session) ReviewForward() (Snapshot, error) {
	return s.annotateAction(func(m *annotate.Machine) error {
		return m.ReviewForward()
	})
}

func (s *Session) SetRotation(side domain.Side, mirrored bool) (Snapshot, error) {
	if !side.Valid() {
		return s.Snapshot(), fmt.Errorf("unknown side %q", side)
	}
	return s.annotateAction(func(m *annotate.Machine) error {
		m.SetRotation(side, mirrored)
		return nil
	})
}

func (s *Session) annotateAction(fn func(m *annotate.Machine) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.annotate == nil {
		return s.snapshot(), fmt.Errorf("%w: %s", ErrWrongPhase, s.phase)
	}
	err := fn(s.annotate)
	return s.snapshot(), err
}

// annotationComplete runs under the session lock from inside Answer.
func (s *Session) annotationComplete(shots []domain.Shot) {
	s.phase = domain.PhaseAnnotateComplete

	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	if err := s.adapter.Flush(ctx); err != nil {
		s.warn("annotations saved locally only: %v", err)
	}
	res, err := s.results.Finalize(ctx, s.set.MatchID)
	if err != nil {
		s.warn("match not finalized: %v", err)
	} else {
		s.result = res
	}

	s.logger.Info().Int("shots", len(shots)).Msg("annotation finished")
	s.notify(domain.CompletionEvent{
		Kind:    domain.EventAnnotateComplete,
		MatchID: s.set.MatchID,
		SetID:   s.set.ID,
		Score:   s.set.Score,
		Winner:  s.set.WinnerSide,
		Shots:   shots,
	})
}

// Save re-attempts everything the store does not hold yet.
func (s *Session) Save(ctx context.Context) (persistence.SaveReport, Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, err := s.adapter.BulkSave(ctx, s.currentRallies())
	return report, s.snapshot(), err
}

func (s *Session) currentRallies() []domain.Rally {
	if s.capture != nil {
		return s.capture.Rallies()
	}
	if s.annotate == nil {
		return nil
	}
	return withShots(s.rallies, s.annotate.Shots())
}

// withShots returns rallies with their shots replaced by the matching entries
// of shots, matched on rally id and ordinal.
func withShots(rallies []domain.Rally, shots []domain.Shot) []domain.Rally {
	type key struct {
		rally   string
		ordinal int
	}
	byKey := make(map[key]domain.Shot, len(shots))
	for _, sh := range shots {
		byKey[key{sh.RallyID, sh.Ordinal}] = sh
	}
	out := make([]domain.Rally, len(rallies))
	for i, r := range rallies {
		merged := make([]domain.Shot, len(r.Shots))
		for j, sh := range r.Shots {
			if updated, ok := byKey[key{r.ID, sh.Ordinal}]; ok {
				sh = updated
			}
			merged[j] = sh
		}
		r.Shots = merged
		out[i] = r
	}
	return out
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SetID:      s.set.ID,
		Phase:      s.phase,
		Score:      s.set.Score,
		Save:       s.adapter.Status(),
		Result:     s.result,
		Directives: s.player.Drain(),
		Warnings:   s.warnings,
	}
	if snap.Directives == nil {
		snap.Directives = []video.Directive{}
	}
	if s.capture != nil {
		v := s.capture.View()
		snap.Capture = &v
		snap.Score = v.Score
	}
	if s.annotate != nil {
		v := s.annotate.View()
		snap.Annotate = &v
	}
	s.warnings = nil
	return snap
}

func (s *Session) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Warn().Msg(msg)
	s.warnings = append(s.warnings, msg)
}

func (s *Session) notify(event domain.CompletionEvent) {
	if s.notifier == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.WebhookTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("kind", string(event.Kind)).Msg("completion callback failed")
		}
	}()
}

// Close stops the background flusher and writes whatever is still pending.
func (s *Session) Close(ctx context.Context) error {
	s.cancel()
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapter.Flush(ctx)
}
