package domain

import "strings"

// ShotRole is the structural role of a shot within its rally. It is resolved
// once when the rally closes and selects the Phase 2 question sequence.
type ShotRole string

const (
	RoleServe   ShotRole = "serve"
	RoleReceive ShotRole = "receive"
	RoleRegular ShotRole = "regular"
	RoleError   ShotRole = "error"
)

type Zone string

const (
	ZoneLeft   Zone = "left"
	ZoneMiddle Zone = "middle"
	ZoneRight  Zone = "right"
)

// Direction is an origin zone to target zone pair, e.g. "left_right".
type Direction string

func NewDirection(from, to Zone) Direction {
	return Direction(string(from) + "_" + string(to))
}

type Depth string

const (
	DepthShort    Depth = "short"
	DepthHalfLong Depth = "half_long"
	DepthLong     Depth = "long"
)

type Spin string

const (
	SpinTopspin  Spin = "topspin"
	SpinBackspin Spin = "backspin"
	SpinSidespin Spin = "sidespin"
	SpinNone     Spin = "no_spin"
)

type Stroke string

const (
	StrokeForehand Stroke = "forehand"
	StrokeBackhand Stroke = "backhand"
)

type Quality string

const (
	QualityGood    Quality = "good"
	QualityAverage Quality = "average"
	QualityPoor    Quality = "poor"
)

type Intent string

const (
	IntentDefensive  Intent = "defensive"
	IntentNeutral    Intent = "neutral"
	IntentAggressive Intent = "aggressive"
)

type ErrorPlacement string

const (
	PlacementNet  ErrorPlacement = "net"
	PlacementLong ErrorPlacement = "long"
)

type ErrorType string

const (
	ErrorForced   ErrorType = "forced"
	ErrorUnforced ErrorType = "unforced"
)

// Annotation holds the Phase 2 fields of a shot. Empty values are unanswered.
type Annotation struct {
	Direction      Direction      `json:"direction,omitempty"`
	Depth          Depth          `json:"depth,omitempty"`
	Spin           Spin           `json:"spin,omitempty"`
	Stroke         Stroke         `json:"stroke,omitempty"`
	Quality        Quality        `json:"quality,omitempty"`
	Intent         Intent         `json:"intent,omitempty"`
	ErrorPlacement ErrorPlacement `json:"error_placement,omitempty"`
	ErrorType      ErrorType      `json:"error_type,omitempty"`
}

// Merge overlays the non-empty fields of other onto a.
func (a Annotation) Merge(other Annotation) Annotation {
	if other.Direction != "" {
		a.Direction = other.Direction
	}
	if other.Depth != "" {
		a.Depth = other.Depth
	}
	if other.Spin != "" {
		a.Spin = other.Spin
	}
	if other.Stroke != "" {
		a.Stroke = other.Stroke
	}
	if other.Quality != "" {
		a.Quality = other.Quality
	}
	if other.Intent != "" {
		a.Intent = other.Intent
	}
	if other.ErrorPlacement != "" {
		a.ErrorPlacement = other.ErrorPlacement
	}
	if other.ErrorType != "" {
		a.ErrorType = other.ErrorType
	}
	return a
}

func (a Annotation) IsZero() bool {
	return a == Annotation{}
}

// ResolveRole returns the role of a closed shot. Serve wins over error, error
// over receive.
func ResolveRole(s Shot, end EndCondition) ShotRole {
	switch {
	case s.IsServe:
		return RoleServe
	case s.IsLastShot && end.IsFault():
		return RoleError
	case s.IsReceive:
		return RoleReceive
	}
	return RoleRegular
}

func (z Zone) Valid() bool {
	return z == ZoneLeft || z == ZoneMiddle || z == ZoneRight
}

func (d Direction) Valid() bool {
	from, to, ok := strings.Cut(string(d), "_")
	return ok && Zone(from).Valid() && Zone(to).Valid()
}

func (d Depth) Valid() bool {
	return d == DepthShort || d == DepthHalfLong || d == DepthLong
}

func (s Spin) Valid() bool {
	return s == SpinTopspin || s == SpinBackspin || s == SpinSidespin || s == SpinNone
}

func (s Stroke) Valid() bool {
	return s == StrokeForehand || s == StrokeBackhand
}

func (q Quality) Valid() bool {
	return q == QualityGood || q == QualityAverage || q == QualityPoor
}

func (i Intent) Valid() bool {
	return i == IntentDefensive || i == IntentNeutral || i == IntentAggressive
}

func (p ErrorPlacement) Valid() bool {
	return p == PlacementNet || p == PlacementLong
}

func (e ErrorType) Valid() bool {
	return e == ErrorForced || e == ErrorUnforced
}
