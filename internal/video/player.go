// Package video describes the playback collaborator the tagging machines drive.
// Session logic samples the current time at the moment of a button press; it
// never consumes the video as a stream.
package video

type FrameDirection int

const (
	FrameBackward FrameDirection = -1
	FrameForward  FrameDirection = 1
)

// Constraint limits playback to a window, used by Phase 2 to preview the shot
// under review.
type Constraint struct {
	Enabled   bool    `json:"enabled"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	LoopOnEnd bool    `json:"loop_on_end"`
}

// Player is the playback surface. Seek returns once the player reports the new
// position as ready, so callers may treat it as a completed step.
type Player interface {
	Seek(t float64) error
	Play() error
	Pause() error
	StepFrame(dir FrameDirection, ignoreBounds bool) error
	CurrentTime() float64
	Rate() float64
	SetRate(rate float64) error
	Constrain(c Constraint) error
}
