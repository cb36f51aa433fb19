package capture

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rally-tagger/internal/domain"
	"rally-tagger/internal/scoring"
	"rally-tagger/internal/video"
)

var (
	ErrNotAllowed = errors.New("action not allowed")
	ErrNotLive    = errors.New("history cursor is already live")
)

type State string

const (
	StateBeforeServe State = "before_serve"
	StateAfterServe  State = "after_serve"
)

type EntryKind string

const (
	EntryShot     EntryKind = "shot"
	EntryRallyEnd EntryKind = "rally_end"
)

// Entry is one committed action in the session history.
type Entry struct {
	Kind         EntryKind `json:"kind"`
	Time         float64   `json:"time"`
	RallyOrdinal int       `json:"rally_ordinal"`
	ShotOrdinal  int       `json:"shot_ordinal,omitempty"`
}

// Recorder receives every committed rally. Calls must not block tagging; a
// failed write is the recorder's problem, not the machine's.
type Recorder interface {
	// CommitRally queues the closed rally and returns it with ids assigned.
	CommitRally(rally domain.Rally) domain.Rally
	// RetractRally withdraws a rally that was reopened by undo.
	RetractRally(rally domain.Rally)
	AdvanceProgress(p domain.Progress)
}

type Controls struct {
	RecordShot  bool                         `json:"record_shot"`
	End         map[domain.EndCondition]bool `json:"end"`
	Undo        bool                         `json:"undo"`
	StepBack    bool                         `json:"step_back"`
	StepForward bool                         `json:"step_forward"`
}

// View is a read-only render of the machine. Server and striker are resolved
// from the committed score every time.
type View struct {
	State       State           `json:"state"`
	Score       domain.Score    `json:"score"`
	Service     scoring.Service `json:"service"`
	NextStriker domain.Side     `json:"next_striker"`
	Shots       []domain.Shot   `json:"shots"`
	RallyCount  int             `json:"rally_count"`
	Cursor      int             `json:"cursor"`
	Live        bool            `json:"live"`
	Controls    Controls        `json:"controls"`
}

const live = -1

type Machine struct {
	setID       string
	firstServer domain.Side
	score       domain.Score
	rallies     []domain.Rally
	buffer      []domain.Shot
	history     []Entry
	cursor      int
	savedRate   float64

	player   video.Player
	recorder Recorder
	logger   zerolog.Logger
}

func New(setID string, firstServer domain.Side, player video.Player, recorder Recorder, logger zerolog.Logger) *Machine {
	return &Machine{
		setID:       setID,
		firstServer: firstServer,
		cursor:      live,
		player:      player,
		recorder:    recorder,
		logger:      logger.With().Str("set_id", setID).Str("phase", "capture").Logger(),
	}
}

// Restore rebuilds the machine from persisted rallies. A trailing rally
// without an end condition is reopened into the shot buffer.
func (m *Machine) Restore(rallies []domain.Rally) {
	m.rallies = nil
	m.buffer = nil
	m.history = nil
	m.cursor = live
	m.score = domain.Score{}

	for _, r := range rallies {
		for _, s := range r.Shots {
			m.history = append(m.history, Entry{Kind: EntryShot, Time: s.Time, RallyOrdinal: r.Ordinal, ShotOrdinal: s.Ordinal})
		}
		if !r.Closed() {
			m.buffer = openShots(r.Shots)
			continue
		}
		m.history = append(m.history, Entry{Kind: EntryRallyEnd, Time: r.EndTime, RallyOrdinal: r.Ordinal})
		m.rallies = append(m.rallies, r)
		m.score = r.ScoreAfter
	}

	m.logger.Info().
		Int("rallies", len(m.rallies)).
		Int("open_shots", len(m.buffer)).
		Int("score_a", m.score.A).
		Int("score_b", m.score.B).
		Msg("capture restored")
}

func (m *Machine) State() State {
	if len(m.buffer) == 0 {
		return StateBeforeServe
	}
	return StateAfterServe
}

func (m *Machine) Score() domain.Score { return m.score }

func (m *Machine) Navigating() bool { return m.cursor != live }

func (m *Machine) service() scoring.Service {
	return scoring.ResolveServer(m.firstServer, m.score.A, m.score.B)
}

func (m *Machine) nextOrdinal() int {
	return len(m.rallies) + 1
}

// RecordShot appends a shot at video time t to the in-progress rally.
func (m *Machine) RecordShot(t float64) (domain.Shot, error) {
	if g := CanRecordShot(m.Navigating()); !g.Allowed {
		return domain.Shot{}, refuse(g)
	}

	ordinal := len(m.buffer) + 1
	shot := domain.Shot{
		Ordinal:   ordinal,
		Side:      scoring.ResolveStriker(m.service().Server, ordinal),
		Time:      t,
		IsServe:   ordinal == 1,
		IsReceive: ordinal == 2,
	}
	m.buffer = append(m.buffer, shot)
	m.history = append(m.history, Entry{Kind: EntryShot, Time: t, RallyOrdinal: m.nextOrdinal(), ShotOrdinal: ordinal})

	m.logger.Debug().Int("rally", m.nextOrdinal()).Int("shot", ordinal).Float64("time", t).Msg("shot recorded")
	return shot, nil
}

// EndRally closes the in-progress rally with the given end condition.
func (m *Machine) EndRally(end domain.EndCondition, t float64) (domain.Rally, error) {
	if g := CanEndRally(EndRallyContext{Condition: end, ShotCount: len(m.buffer), Navigating: m.Navigating()}); !g.Allowed {
		return domain.Rally{}, refuse(g)
	}

	svc := m.service()
	last := m.buffer[len(m.buffer)-1]
	winner := scoring.RallyWinner(last.Side, end)

	rally := domain.Rally{
		SetID:        m.setID,
		Ordinal:      m.nextOrdinal(),
		Shots:        closeShots(m.buffer, end),
		EndCondition: end,
		IsError:      end.IsFault(),
		ServerSide:   svc.Server,
		ReceiverSide: svc.Receiver,
		WinnerSide:   winner,
		ScoreBefore:  m.score,
		ScoreAfter:   m.score.Credit(winner),
		EndTime:      t,
	}

	if m.recorder != nil {
		rally = m.recorder.CommitRally(rally)
	}

	m.rallies = append(m.rallies, rally)
	m.score = rally.ScoreAfter
	m.buffer = nil
	m.history = append(m.history, Entry{Kind: EntryRallyEnd, Time: t, RallyOrdinal: rally.Ordinal})
	m.advance()

	m.logger.Info().
		Int("rally", rally.Ordinal).
		Str("end", string(end)).
		Str("winner", string(winner)).
		Int("score_a", m.score.A).
		Int("score_b", m.score.B).
		Msg("rally closed")
	return rally, nil
}

// Undo reverts the most recent history entry.
func (m *Machine) Undo() (Entry, error) {
	if g := CanUndo(len(m.history), m.Navigating()); !g.Allowed {
		return Entry{}, refuse(g)
	}

	entry := m.history[len(m.history)-1]
	m.history = m.history[:len(m.history)-1]

	switch entry.Kind {
	case EntryRallyEnd:
		rally := m.rallies[len(m.rallies)-1]
		m.rallies = m.rallies[:len(m.rallies)-1]
		m.buffer = openShots(rally.Shots)
		m.score = rally.ScoreBefore
		if m.recorder != nil {
			m.recorder.RetractRally(rally)
		}
		m.advance()
		m.logger.Info().Int("rally", rally.Ordinal).Msg("rally reopened")
	case EntryShot:
		m.buffer = m.buffer[:len(m.buffer)-1]
		m.logger.Debug().Int("shot", entry.ShotOrdinal).Msg("shot removed")
	}

	if len(m.history) > 0 {
		if err := m.player.Seek(m.history[len(m.history)-1].Time); err != nil {
			m.logger.Warn().Err(err).Msg("seek after undo failed")
		}
	}
	return entry, nil
}

// StepBack moves the history cursor one entry back and seeks the video there.
// The first step pauses playback.
func (m *Machine) StepBack() (Entry, error) {
	if len(m.history) == 0 {
		return Entry{}, fmt.Errorf("%w: history is empty", ErrNotAllowed)
	}
	target := m.cursor - 1
	if !m.Navigating() {
		target = len(m.history) - 1
	}
	if target < 0 {
		return Entry{}, fmt.Errorf("%w: already at the first entry", ErrNotAllowed)
	}

	if !m.Navigating() {
		m.savedRate = m.player.Rate()
		if err := m.player.Pause(); err != nil {
			return Entry{}, fmt.Errorf("pause: %w", err)
		}
	}
	if err := m.player.Seek(m.history[target].Time); err != nil {
		return Entry{}, fmt.Errorf("seek: %w", err)
	}
	m.cursor = target
	return m.history[target], nil
}

// StepForward moves the cursor one entry forward. Stepping past the last entry
// returns to live playback.
func (m *Machine) StepForward() (Entry, error) {
	if !m.Navigating() {
		return Entry{}, ErrNotLive
	}
	if m.cursor == len(m.history)-1 {
		last := m.history[m.cursor]
		return last, m.GoLive()
	}
	target := m.cursor + 1
	if err := m.player.Seek(m.history[target].Time); err != nil {
		return Entry{}, fmt.Errorf("seek: %w", err)
	}
	m.cursor = target
	return m.history[target], nil
}

// GoLive leaves navigation, restores the pre-navigation playback rate and
// resumes playback.
func (m *Machine) GoLive() error {
	if !m.Navigating() {
		return ErrNotLive
	}
	m.cursor = live
	if m.savedRate > 0 {
		if err := m.player.SetRate(m.savedRate); err != nil {
			return fmt.Errorf("restore rate: %w", err)
		}
	}
	m.savedRate = 0
	if err := m.player.Play(); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// Rallies returns a copy of the closed rallies in ordinal order.
func (m *Machine) Rallies() []domain.Rally {
	out := make([]domain.Rally, len(m.rallies))
	copy(out, m.rallies)
	return out
}

func (m *Machine) History() []Entry {
	out := make([]Entry, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Machine) View() View {
	svc := m.service()
	shots := make([]domain.Shot, len(m.buffer))
	copy(shots, m.buffer)

	nav := m.Navigating()
	end := make(map[domain.EndCondition]bool)
	for _, c := range []domain.EndCondition{domain.EndWinner, domain.EndInNet, domain.EndLong, domain.EndForcedError, domain.EndLet} {
		end[c] = CanEndRally(EndRallyContext{Condition: c, ShotCount: len(m.buffer), Navigating: nav}).Allowed
	}

	return View{
		State:       m.State(),
		Score:       m.score,
		Service:     svc,
		NextStriker: scoring.ResolveStriker(svc.Server, len(m.buffer)+1),
		Shots:       shots,
		RallyCount:  len(m.rallies),
		Cursor:      m.cursor,
		Live:        !nav,
		Controls: Controls{
			RecordShot:  CanRecordShot(nav).Allowed,
			End:         end,
			Undo:        CanUndo(len(m.history), nav).Allowed,
			StepBack:    len(m.history) > 0 && m.cursor != 0,
			StepForward: nav,
		},
	}
}

func (m *Machine) advance() {
	if m.recorder == nil {
		return
	}
	p := domain.Progress{Phase: domain.PhaseCaptureActive}
	if n := len(m.rallies); n > 0 {
		p.LastRallyIndex = m.rallies[n-1].Ordinal
	}
	m.recorder.AdvanceProgress(p)
}

func refuse(g GuardResult) error {
	return fmt.Errorf("%w: %s", ErrNotAllowed, g.Reason)
}

func closeShots(buffer []domain.Shot, end domain.EndCondition) []domain.Shot {
	shots := make([]domain.Shot, len(buffer))
	copy(shots, buffer)
	last := len(shots) - 1
	for i := range shots {
		shots[i].IsLastShot = i == last
		shots[i].Role = domain.ResolveRole(shots[i], end)
	}
	return shots
}

func openShots(shots []domain.Shot) []domain.Shot {
	out := make([]domain.Shot, len(shots))
	copy(out, shots)
	for i := range out {
		out[i].ID = ""
		out[i].RallyID = ""
		out[i].IsLastShot = false
		out[i].Role = ""
		out[i].Annotation = domain.Annotation{}
	}
	return out
}
