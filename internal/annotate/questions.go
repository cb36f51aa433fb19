// Package annotate is the Phase 2 tagging state machine. It walks the shots
// captured in Phase 1 in order and asks a fixed question sequence chosen by
// each shot's role.
package annotate

import (
	"fmt"

	"rally-tagger/internal/domain"
)

type Question string

const (
	QuestionDirection      Question = "direction"
	QuestionDepth          Question = "depth"
	QuestionSpin           Question = "spin"
	QuestionStroke         Question = "stroke"
	QuestionStrokeQuality  Question = "stroke_quality"
	QuestionIntent         Question = "intent"
	QuestionErrorPlacement Question = "error_placement"
	QuestionErrorType      Question = "error_type"
)

var sequences = map[domain.ShotRole][]Question{
	domain.RoleServe:   {QuestionDirection, QuestionDepth, QuestionSpin},
	domain.RoleError:   {QuestionDirection, QuestionStroke, QuestionIntent, QuestionErrorPlacement, QuestionErrorType},
	domain.RoleReceive: {QuestionStrokeQuality, QuestionDirection, QuestionIntent},
	domain.RoleRegular: {QuestionStrokeQuality, QuestionDirection, QuestionIntent},
}

// Sequence returns the questions asked for a shot of the given role.
func Sequence(role domain.ShotRole) []Question {
	return sequences[role]
}

// extract picks the fields a question answers out of a submitted answer and
// checks them.
func extract(q Question, a domain.Annotation) (domain.Annotation, error) {
	var part domain.Annotation
	switch q {
	case QuestionDirection:
		if !a.Direction.Valid() {
			return part, fmt.Errorf("%w: direction %q", ErrMissingAnswer, a.Direction)
		}
		part.Direction = a.Direction
	case QuestionDepth:
		if !a.Depth.Valid() {
			return part, fmt.Errorf("%w: depth %q", ErrMissingAnswer, a.Depth)
		}
		part.Depth = a.Depth
	case QuestionSpin:
		if !a.Spin.Valid() {
			return part, fmt.Errorf("%w: spin %q", ErrMissingAnswer, a.Spin)
		}
		part.Spin = a.Spin
	case QuestionStroke:
		if !a.Stroke.Valid() {
			return part, fmt.Errorf("%w: stroke %q", ErrMissingAnswer, a.Stroke)
		}
		part.Stroke = a.Stroke
	case QuestionStrokeQuality:
		if !a.Stroke.Valid() || !a.Quality.Valid() {
			return part, fmt.Errorf("%w: stroke %q quality %q", ErrMissingAnswer, a.Stroke, a.Quality)
		}
		part.Stroke = a.Stroke
		part.Quality = a.Quality
	case QuestionIntent:
		if !a.Intent.Valid() {
			return part, fmt.Errorf("%w: intent %q", ErrMissingAnswer, a.Intent)
		}
		part.Intent = a.Intent
	case QuestionErrorPlacement:
		if !a.ErrorPlacement.Valid() {
			return part, fmt.Errorf("%w: error placement %q", ErrMissingAnswer, a.ErrorPlacement)
		}
		part.ErrorPlacement = a.ErrorPlacement
	case QuestionErrorType:
		if !a.ErrorType.Valid() {
			return part, fmt.Errorf("%w: error type %q", ErrMissingAnswer, a.ErrorType)
		}
		part.ErrorType = a.ErrorType
	default:
		return part, fmt.Errorf("unknown question %q", q)
	}
	return part, nil
}

var zones = [3]domain.Zone{domain.ZoneLeft, domain.ZoneMiddle, domain.ZoneRight}

// DirectionForButton maps a 3x3 direction grid press (row = origin, col =
// target) to a logical direction. A mirrored layout swaps left and right on
// both axes; stored values are unaffected by the layout.
func DirectionForButton(row, col int, mirrored bool) (domain.Direction, error) {
	if row < 0 || row > 2 || col < 0 || col > 2 {
		return "", fmt.Errorf("%w: direction button (%d,%d) out of range", ErrMissingAnswer, row, col)
	}
	if mirrored {
		row, col = 2-row, 2-col
	}
	return domain.NewDirection(zones[row], zones[col]), nil
}
