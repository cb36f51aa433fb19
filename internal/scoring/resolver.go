// Package scoring holds the pure table-tennis rules the tagging engine re-derives
// on every action: who serves, who struck a given shot, who won a rally.
package scoring

import "rally-tagger/internal/domain"

const (
	PointsToWin   = 11
	DeuceAt       = 10
	ServesPerTurn = 2
)

type Service struct {
	Server   domain.Side `json:"server"`
	Receiver domain.Side `json:"receiver"`
}

// ResolveServer returns the server and receiver for the rally about to be played
// at score (a, b). Service changes every two points until both players reach 10,
// then every point.
func ResolveServer(firstServer domain.Side, a, b int) Service {
	played := a + b
	var turns int
	if a >= DeuceAt && b >= DeuceAt {
		turns = played
	} else {
		turns = played / ServesPerTurn
	}

	server := firstServer
	if turns%2 == 1 {
		server = firstServer.Other()
	}
	return Service{Server: server, Receiver: server.Other()}
}

// ResolveStriker returns the side that struck the shot with the given 1-based
// ordinal. Odd ordinals belong to the server.
func ResolveStriker(server domain.Side, ordinal int) domain.Side {
	if ordinal%2 == 1 {
		return server
	}
	return server.Other()
}

// RallyWinner returns the side credited with the rally. A let has no winner.
func RallyWinner(lastStriker domain.Side, end domain.EndCondition) domain.Side {
	if !end.IsScoring() {
		return domain.NoSide
	}
	if end.IsFault() {
		return lastStriker.Other()
	}
	return lastStriker
}

// SetWinner returns the side that has won a set at score s, or NoSide if the set
// is still open.
func SetWinner(s domain.Score) domain.Side {
	switch {
	case s.A >= PointsToWin && s.A-s.B >= 2:
		return domain.SideA
	case s.B >= PointsToWin && s.B-s.A >= 2:
		return domain.SideB
	}
	return domain.NoSide
}

// Leader returns the side with more points, or NoSide on a tie. Used when
// capture is finished before the set reached a regular end.
func Leader(s domain.Score) domain.Side {
	switch {
	case s.A > s.B:
		return domain.SideA
	case s.B > s.A:
		return domain.SideB
	}
	return domain.NoSide
}
