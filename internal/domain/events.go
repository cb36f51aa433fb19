package domain

import "time"

type EventKind string

const (
	EventCaptureComplete  EventKind = "capture_complete"
	EventAnnotateComplete EventKind = "annotation_complete"
)

// CompletionEvent is delivered to the surrounding application when a phase
// ends: the closed rallies after capture, the annotated shots after
// annotation.
type CompletionEvent struct {
	Kind       EventKind `json:"kind"`
	MatchID    string    `json:"match_id"`
	SetID      string    `json:"set_id"`
	Score      Score     `json:"score"`
	Winner     Side      `json:"winner,omitempty"`
	Rallies    []Rally   `json:"rallies,omitempty"`
	Shots      []Shot    `json:"shots,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
