package domain

import "fmt"

type Phase string

const (
	PhaseNone             Phase = ""
	PhaseCaptureActive    Phase = "phase1_in_progress"
	PhaseCaptureComplete  Phase = "phase1_complete"
	PhaseAnnotateActive   Phase = "phase2_in_progress"
	PhaseAnnotateComplete Phase = "phase2_complete"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseNone, PhaseCaptureActive, PhaseCaptureComplete, PhaseAnnotateActive, PhaseAnnotateComplete:
		return true
	}
	return false
}

// Progress is the resumable tagging marker of a set. It is the only source of
// truth for resuming an interrupted session.
type Progress struct {
	Phase          Phase `json:"phase"`
	LastRallyIndex int   `json:"last_rally_index"`
	LastShotIndex  int   `json:"last_shot_index"`
	TotalRallies   int   `json:"total_rallies,omitempty"`
	TotalShots     int   `json:"total_shots,omitempty"`
}

func (p Progress) Validate() error {
	if !p.Phase.Valid() {
		return fmt.Errorf("unknown phase %q", p.Phase)
	}
	if p.LastRallyIndex < 0 || p.LastShotIndex < 0 || p.TotalRallies < 0 || p.TotalShots < 0 {
		return fmt.Errorf("negative progress index in %+v", p)
	}
	if p.TotalShots > 0 && p.LastShotIndex > p.TotalShots {
		return fmt.Errorf("last shot index %d beyond total %d", p.LastShotIndex, p.TotalShots)
	}
	return nil
}

type ResumeAction string

const (
	ActionStart  ResumeAction = "start"
	ActionResume ResumeAction = "resume"
	ActionRedo   ResumeAction = "redo"
)

// DeleteScope selects which tagging data a redo removes.
type DeleteScope string

const (
	ScopeAll      DeleteScope = "all"
	ScopeAnnotate DeleteScope = "phase2"
)
