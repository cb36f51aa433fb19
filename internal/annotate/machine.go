package annotate

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"rally-tagger/internal/domain"
	"rally-tagger/internal/video"
)

var (
	ErrComplete      = errors.New("all shots are annotated")
	ErrMissingAnswer = errors.New("answer does not cover the current question")
	ErrAtStart       = errors.New("already at the first shot")
	ErrAtFrontier    = errors.New("no answered shot ahead")
)

// Recorder receives every fully answered shot. Calls must not block.
type Recorder interface {
	// UpdateShot stores the shot's complete annotation, keyed by rally id and
	// shot ordinal.
	UpdateShot(shot domain.Shot)
	AdvanceProgress(p domain.Progress)
}

type Preview struct {
	Lead float64
	Tail float64
}

// View is a read-only render of the current question.
type View struct {
	Index     int               `json:"index"`
	Total     int               `json:"total"`
	Shot      *domain.Shot      `json:"shot,omitempty"`
	Rally     int               `json:"rally"`
	Question  Question          `json:"question,omitempty"`
	Step      int               `json:"step"`
	Steps     int               `json:"steps"`
	Draft     domain.Annotation `json:"draft"`
	Reviewing bool              `json:"reviewing"`
	Mirrored  bool              `json:"mirrored"`
	Complete  bool              `json:"complete"`
}

type Machine struct {
	setID    string
	shots    []domain.Shot
	rallyOf  []int
	nextTime []float64
	rallies  int

	index    int
	step     int
	draft    domain.Annotation
	frontier int
	// saved position at the frontier while reviewing earlier shots
	frontierStep  int
	frontierDraft domain.Annotation

	rotation   map[domain.Side]bool
	preview    Preview
	player     video.Player
	recorder   Recorder
	onComplete func(shots []domain.Shot)
	logger     zerolog.Logger
}

// New flattens the closed rallies into one shot list in rally then shot order.
func New(setID string, rallies []domain.Rally, player video.Player, recorder Recorder, preview Preview, logger zerolog.Logger) *Machine {
	m := &Machine{
		setID:    setID,
		rallies:  len(rallies),
		rotation: make(map[domain.Side]bool),
		preview:  preview,
		player:   player,
		recorder: recorder,
		logger:   logger.With().Str("set_id", setID).Str("phase", "annotate").Logger(),
	}
	for _, r := range rallies {
		for i, s := range r.Shots {
			if s.RallyID == "" {
				s.RallyID = r.ID
			}
			if s.Role == "" {
				s.Role = domain.ResolveRole(s, r.EndCondition)
			}
			next := math.NaN()
			if i+1 < len(r.Shots) {
				next = r.Shots[i+1].Time
			}
			m.shots = append(m.shots, s)
			m.rallyOf = append(m.rallyOf, r.Ordinal)
			m.nextTime = append(m.nextTime, next)
		}
	}
	return m
}

// OnComplete registers the callback fired once the last shot is answered.
func (m *Machine) OnComplete(fn func(shots []domain.Shot)) {
	m.onComplete = fn
}

// Start enters the machine at the given number of already annotated shots.
func (m *Machine) Start(annotated int) {
	if annotated < 0 {
		annotated = 0
	}
	if annotated > len(m.shots) {
		annotated = len(m.shots)
	}
	m.index = annotated
	m.frontier = annotated
	m.step = 0
	m.draft = domain.Annotation{}

	m.logger.Info().Int("shots", len(m.shots)).Int("annotated", annotated).Msg("annotation started")
	if m.Complete() {
		return
	}
	m.enterShot()
}

func (m *Machine) Complete() bool {
	return m.index >= len(m.shots)
}

func (m *Machine) Reviewing() bool {
	return m.index < m.frontier
}

func (m *Machine) Shots() []domain.Shot {
	out := make([]domain.Shot, len(m.shots))
	copy(out, m.shots)
	return out
}

// SetRotation records whether a player's direction grid is mirrored.
func (m *Machine) SetRotation(side domain.Side, mirrored bool) {
	m.rotation[side] = mirrored
}

func (m *Machine) Mirrored(side domain.Side) bool {
	return m.rotation[side]
}

// Question returns the question currently asked, or "" when complete.
func (m *Machine) Question() Question {
	if m.Complete() {
		return ""
	}
	return Sequence(m.shots[m.index].Role)[m.step]
}

// Answer applies an answer to the current question. The last answer of a
// shot's sequence merges the full field set into the shot, flushes it and
// moves to the next shot.
func (m *Machine) Answer(a domain.Annotation) error {
	if m.Complete() {
		return ErrComplete
	}
	shot := &m.shots[m.index]
	seq := Sequence(shot.Role)
	if len(seq) == 0 {
		return fmt.Errorf("shot %d of rally %d has no role", shot.Ordinal, m.rallyOf[m.index])
	}

	part, err := extract(seq[m.step], a)
	if err != nil {
		return err
	}

	if m.Reviewing() {
		// Corrections overwrite the stored fields right away.
		shot.Annotation = shot.Annotation.Merge(part)
		m.flush(*shot)
		m.step++
		if m.step == len(seq) {
			m.moveTo(m.index + 1)
		}
		return nil
	}

	m.draft = m.draft.Merge(part)
	m.step++
	if m.step < len(seq) {
		return nil
	}

	shot.Annotation = shot.Annotation.Merge(m.draft)
	m.flush(*shot)
	m.frontier++
	m.draft = domain.Annotation{}
	m.step = 0
	m.index++

	if m.recorder != nil {
		m.recorder.AdvanceProgress(m.progress())
	}
	m.logger.Debug().Int("rally", m.rallyOf[m.index-1]).Int("shot", shot.Ordinal).Str("role", string(shot.Role)).Msg("shot annotated")

	if m.Complete() {
		m.finish()
		return nil
	}
	m.enterShot()
	return nil
}

// ReviewBack steps to the previous shot without losing forward progress.
func (m *Machine) ReviewBack() error {
	if m.index == 0 {
		return ErrAtStart
	}
	m.moveTo(m.index - 1)
	return nil
}

// ReviewForward steps toward the first unanswered shot.
func (m *Machine) ReviewForward() error {
	if !m.Reviewing() {
		return ErrAtFrontier
	}
	m.moveTo(m.index + 1)
	return nil
}

func (m *Machine) View() View {
	v := View{
		Index:     m.index,
		Total:     len(m.shots),
		Reviewing: m.Reviewing(),
		Complete:  m.Complete(),
	}
	if v.Complete {
		return v
	}
	shot := m.shots[m.index]
	v.Shot = &shot
	v.Rally = m.rallyOf[m.index]
	v.Question = m.Question()
	v.Step = m.step
	v.Steps = len(Sequence(shot.Role))
	v.Mirrored = m.rotation[shot.Side]
	if v.Reviewing {
		v.Draft = shot.Annotation
	} else {
		v.Draft = m.draft
	}
	return v
}

func (m *Machine) moveTo(target int) {
	if m.index == m.frontier {
		m.frontierStep = m.step
		m.frontierDraft = m.draft
	}
	m.index = target
	m.step = 0
	if m.index == m.frontier {
		m.step = m.frontierStep
		m.draft = m.frontierDraft
	}
	if !m.Complete() {
		m.enterShot()
	}
}

// enterShot loops the video over the shot under review.
func (m *Machine) enterShot() {
	shot := m.shots[m.index]
	start := math.Max(0, shot.Time-m.preview.Lead)
	end := m.nextTime[m.index]
	if math.IsNaN(end) {
		end = shot.Time + m.preview.Tail
	}

	c := video.Constraint{Enabled: true, StartTime: start, EndTime: end, LoopOnEnd: true}
	if err := m.player.Constrain(c); err != nil {
		m.logger.Warn().Err(err).Msg("preview constraint failed")
		return
	}
	if err := m.player.Seek(start); err != nil {
		m.logger.Warn().Err(err).Msg("preview seek failed")
		return
	}
	if err := m.player.Play(); err != nil {
		m.logger.Warn().Err(err).Msg("preview play failed")
	}
}

func (m *Machine) finish() {
	if err := m.player.Constrain(video.Constraint{}); err != nil {
		m.logger.Warn().Err(err).Msg("clearing preview constraint failed")
	}
	if m.recorder != nil {
		p := m.progress()
		p.Phase = domain.PhaseAnnotateComplete
		m.recorder.AdvanceProgress(p)
	}
	m.logger.Info().Int("shots", len(m.shots)).Msg("annotation complete")
	if m.onComplete != nil {
		m.onComplete(m.Shots())
	}
}

func (m *Machine) flush(shot domain.Shot) {
	if m.recorder != nil {
		m.recorder.UpdateShot(shot)
	}
}

func (m *Machine) progress() domain.Progress {
	p := domain.Progress{
		Phase:         domain.PhaseAnnotateActive,
		LastShotIndex: m.frontier,
		TotalRallies:  m.rallies,
		TotalShots:    len(m.shots),
	}
	if m.frontier > 0 {
		p.LastRallyIndex = m.rallyOf[m.frontier-1]
	}
	return p
}
