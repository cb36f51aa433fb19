package annotate

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"rally-tagger/internal/domain"
	"rally-tagger/internal/video"
)

type fakeRecorder struct {
	updates  []domain.Shot
	progress []domain.Progress
}

func (f *fakeRecorder) UpdateShot(s domain.Shot)          { f.updates = append(f.updates, s) }
func (f *fakeRecorder) AdvanceProgress(p domain.Progress) { f.progress = append(f.progress, p) }

func shot(rallyID string, ordinal int, t float64, last bool, end domain.EndCondition) domain.Shot {
	s := domain.Shot{
		ID:         rallyID + "-" + string(rune('0'+ordinal)),
		RallyID:    rallyID,
		Ordinal:    ordinal,
		Time:       t,
		IsServe:    ordinal == 1,
		IsReceive:  ordinal == 2,
		IsLastShot: last,
	}
	s.Role = domain.ResolveRole(s, end)
	return s
}

// Two rallies: a three-shot winner and a two-shot rally whose receive went long.
func testRallies() []domain.Rally {
	return []domain.Rally{
		{
			ID: "R1", Ordinal: 1, EndCondition: domain.EndWinner,
			Shots: []domain.Shot{
				shot("R1", 1, 1.0, false, domain.EndWinner),
				shot("R1", 2, 2.0, false, domain.EndWinner),
				shot("R1", 3, 3.0, true, domain.EndWinner),
			},
		},
		{
			ID: "R2", Ordinal: 2, EndCondition: domain.EndLong,
			Shots: []domain.Shot{
				shot("R2", 1, 10.0, false, domain.EndLong),
				shot("R2", 2, 11.0, true, domain.EndLong),
			},
		},
	}
}

var (
	serveAnswers = []domain.Annotation{
		{Direction: "left_right"},
		{Depth: domain.DepthShort},
		{Spin: domain.SpinBackspin},
	}
	rallyAnswers = []domain.Annotation{
		{Stroke: domain.StrokeForehand, Quality: domain.QualityGood},
		{Direction: "middle_left"},
		{Intent: domain.IntentAggressive},
	}
	errorAnswers = []domain.Annotation{
		{Direction: "right_right"},
		{Stroke: domain.StrokeBackhand},
		{Intent: domain.IntentNeutral},
		{ErrorPlacement: domain.PlacementLong},
		{ErrorType: domain.ErrorUnforced},
	}
)

func newTestMachine() (*Machine, *video.Remote, *fakeRecorder) {
	player := video.NewRemote(0.04)
	rec := &fakeRecorder{}
	m := New("SET-1", testRallies(), player, rec, Preview{Lead: 0.5, Tail: 1.5}, zerolog.Nop())
	return m, player, rec
}

func answerAll(t *testing.T, m *Machine, answers []domain.Annotation) {
	t.Helper()
	for i, a := range answers {
		if err := m.Answer(a); err != nil {
			t.Fatalf("answer %d (%s) failed: %v", i, m.Question(), err)
		}
	}
}

func TestSequenceByRole(t *testing.T) {
	m, _, _ := newTestMachine()
	m.Start(0)

	want := []struct {
		role  domain.ShotRole
		first Question
	}{
		{domain.RoleServe, QuestionDirection},
		{domain.RoleReceive, QuestionStrokeQuality},
		{domain.RoleRegular, QuestionStrokeQuality},
		{domain.RoleServe, QuestionDirection},
		{domain.RoleError, QuestionDirection},
	}
	for i, s := range m.Shots() {
		if s.Role != want[i].role {
			t.Errorf("shot %d role = %s, want %s", i, s.Role, want[i].role)
		}
		if got := Sequence(s.Role)[0]; got != want[i].first {
			t.Errorf("shot %d first question = %s, want %s", i, got, want[i].first)
		}
	}
	if got := len(Sequence(domain.RoleError)); got != 5 {
		t.Errorf("error sequence length = %d, want 5", got)
	}
}

func TestAnswer_FlushesOnlyOnLastQuestion(t *testing.T) {
	m, _, rec := newTestMachine()
	m.Start(0)

	m.Answer(serveAnswers[0])
	m.Answer(serveAnswers[1])
	if len(rec.updates) != 0 {
		t.Fatalf("flushed before the last question: %+v", rec.updates)
	}
	m.Answer(serveAnswers[2])

	if len(rec.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(rec.updates))
	}
	got := rec.updates[0].Annotation
	want := domain.Annotation{Direction: "left_right", Depth: domain.DepthShort, Spin: domain.SpinBackspin}
	if got != want {
		t.Errorf("flushed annotation = %+v, want %+v", got, want)
	}
	if m.View().Index != 1 || m.Question() != QuestionStrokeQuality {
		t.Errorf("did not advance to the receive: %+v", m.View())
	}
	p := rec.progress[len(rec.progress)-1]
	if p.Phase != domain.PhaseAnnotateActive || p.LastShotIndex != 1 || p.LastRallyIndex != 1 || p.TotalShots != 5 {
		t.Errorf("progress = %+v", p)
	}
}

func TestAnswer_RejectsWrongField(t *testing.T) {
	m, _, rec := newTestMachine()
	m.Start(0)

	err := m.Answer(domain.Annotation{Spin: domain.SpinTopspin})
	if !errors.Is(err, ErrMissingAnswer) {
		t.Fatalf("err = %v, want ErrMissingAnswer", err)
	}
	err = m.Answer(domain.Annotation{Direction: "up_down"})
	if !errors.Is(err, ErrMissingAnswer) {
		t.Fatalf("invalid direction err = %v, want ErrMissingAnswer", err)
	}
	if m.View().Step != 0 || len(rec.updates) != 0 {
		t.Error("rejected answer must not advance")
	}
}

func TestAnswer_StrokeQualityNeedsBoth(t *testing.T) {
	m, _, _ := newTestMachine()
	m.Start(1)

	if err := m.Answer(domain.Annotation{Stroke: domain.StrokeForehand}); !errors.Is(err, ErrMissingAnswer) {
		t.Errorf("err = %v, want ErrMissingAnswer", err)
	}
}

func TestFullRunCompletes(t *testing.T) {
	m, player, rec := newTestMachine()
	var delivered []domain.Shot
	m.OnComplete(func(shots []domain.Shot) { delivered = shots })
	m.Start(0)

	answerAll(t, m, serveAnswers)
	answerAll(t, m, rallyAnswers)
	answerAll(t, m, rallyAnswers)
	answerAll(t, m, serveAnswers)
	answerAll(t, m, errorAnswers)

	if !m.Complete() {
		t.Fatal("machine should be complete")
	}
	if len(delivered) != 5 {
		t.Fatalf("completion delivered %d shots, want 5", len(delivered))
	}
	if delivered[4].Annotation.ErrorType != domain.ErrorUnforced {
		t.Errorf("error shot annotation = %+v", delivered[4].Annotation)
	}
	last := rec.progress[len(rec.progress)-1]
	if last.Phase != domain.PhaseAnnotateComplete || last.LastShotIndex != 5 || last.LastRallyIndex != 2 {
		t.Errorf("final progress = %+v", last)
	}
	if err := m.Answer(serveAnswers[0]); !errors.Is(err, ErrComplete) {
		t.Errorf("answer after completion err = %v", err)
	}

	directives := player.Drain()
	final := directives[len(directives)-1]
	if final.Kind != video.DirectiveConstrain || final.Constraint.Enabled {
		t.Errorf("last directive = %+v, want constraint cleared", final)
	}
}

func TestReview_KeepsForwardProgress(t *testing.T) {
	m, _, rec := newTestMachine()
	m.Start(0)
	answerAll(t, m, serveAnswers)
	answerAll(t, m, rallyAnswers)
	// One answer into shot 3.
	m.Answer(rallyAnswers[0])

	if err := m.ReviewBack(); err != nil {
		t.Fatalf("ReviewBack failed: %v", err)
	}
	if err := m.ReviewBack(); err != nil {
		t.Fatalf("ReviewBack failed: %v", err)
	}
	if !m.Reviewing() || m.View().Index != 0 {
		t.Fatalf("view = %+v, want reviewing shot 0", m.View())
	}
	if err := m.ReviewBack(); !errors.Is(err, ErrAtStart) {
		t.Errorf("err = %v, want ErrAtStart", err)
	}

	// Correct the serve direction; it is flushed immediately with all fields.
	before := len(rec.updates)
	if err := m.Answer(domain.Annotation{Direction: "right_left"}); err != nil {
		t.Fatalf("review answer failed: %v", err)
	}
	if len(rec.updates) != before+1 {
		t.Fatalf("review answer was not flushed")
	}
	fixed := rec.updates[len(rec.updates)-1].Annotation
	if fixed.Direction != "right_left" || fixed.Spin != domain.SpinBackspin {
		t.Errorf("corrected annotation = %+v", fixed)
	}

	m.ReviewForward()
	m.ReviewForward()
	v := m.View()
	if v.Reviewing || v.Index != 2 || v.Step != 1 {
		t.Errorf("back at frontier view = %+v, want index 2 step 1", v)
	}
	if v.Draft.Stroke != domain.StrokeForehand {
		t.Errorf("frontier draft lost: %+v", v.Draft)
	}
	if err := m.ReviewForward(); !errors.Is(err, ErrAtFrontier) {
		t.Errorf("err = %v, want ErrAtFrontier", err)
	}
}

func TestStart_ResumesAtMarker(t *testing.T) {
	m, _, _ := newTestMachine()
	m.Start(3)
	v := m.View()
	if v.Index != 3 || v.Rally != 2 || v.Question != QuestionDirection {
		t.Errorf("resumed view = %+v", v)
	}
	if err := m.ReviewBack(); err != nil {
		t.Errorf("review into earlier shots after resume failed: %v", err)
	}
}

func TestPreviewWindow(t *testing.T) {
	m, player, _ := newTestMachine()
	m.Start(2)

	var c *video.Constraint
	for _, d := range player.Drain() {
		if d.Kind == video.DirectiveConstrain {
			c = d.Constraint
		}
	}
	if c == nil {
		t.Fatal("no preview constraint issued")
	}
	// Shot 3 of rally 1 is its last shot: window runs to t + tail.
	if c.StartTime != 2.5 || c.EndTime != 4.5 || !c.LoopOnEnd {
		t.Errorf("constraint = %+v", c)
	}

	m.Start(0)
	for _, d := range player.Drain() {
		if d.Kind == video.DirectiveConstrain {
			c = d.Constraint
		}
	}
	if c.StartTime != 0.5 || c.EndTime != 2.0 {
		t.Errorf("first shot window = %+v, want 0.5..2.0", c)
	}
}

func TestDirectionForButton(t *testing.T) {
	tests := []struct {
		row, col int
		mirrored bool
		want     domain.Direction
	}{
		{0, 2, false, "left_right"},
		{0, 2, true, "right_left"},
		{1, 1, true, "middle_middle"},
		{2, 0, false, "right_left"},
	}
	for _, tt := range tests {
		got, err := DirectionForButton(tt.row, tt.col, tt.mirrored)
		if err != nil {
			t.Fatalf("DirectionForButton(%d,%d) failed: %v", tt.row, tt.col, err)
		}
		if got != tt.want {
			t.Errorf("DirectionForButton(%d,%d,%v) = %s, want %s", tt.row, tt.col, tt.mirrored, got, tt.want)
		}
	}
	if _, err := DirectionForButton(3, 0, false); err == nil {
		t.Error("out of range button should fail")
	}
}
