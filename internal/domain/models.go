package domain

import (
	"time"
)

// Side identifies one of the two player slots of a match.
type Side string

const (
	NoSide Side = ""
	SideA  Side = "A"
	SideB  Side = "B"
)

func (s Side) Other() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	}
	return NoSide
}

func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

type Score struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (s Score) Of(side Side) int {
	if side == SideB {
		return s.B
	}
	return s.A
}

// Credit returns the score with one point added for side. NoSide leaves it unchanged.
func (s Score) Credit(side Side) Score {
	switch side {
	case SideA:
		s.A++
	case SideB:
		s.B++
	}
	return s
}

type EndCondition string

const (
	EndWinner      EndCondition = "winner"
	EndInNet       EndCondition = "in_net"
	EndLong        EndCondition = "long"
	EndForcedError EndCondition = "forced_error"
	EndLet         EndCondition = "let"
)

func (e EndCondition) Valid() bool {
	switch e {
	case EndWinner, EndInNet, EndLong, EndForcedError, EndLet:
		return true
	}
	return false
}

// IsFault reports whether the striker of the last shot lost the rally.
func (e EndCondition) IsFault() bool {
	return e == EndInNet || e == EndLong || e == EndForcedError
}

func (e EndCondition) IsScoring() bool {
	return e != EndLet
}

type Match struct {
	ID         string    `json:"id"`
	PlayerA    string    `json:"player_a"`
	PlayerB    string    `json:"player_b"`
	BestOf     int       `json:"best_of"`
	SetsWonA   int       `json:"sets_won_a"`
	SetsWonB   int       `json:"sets_won_b"`
	WinnerSide Side      `json:"winner_side,omitempty"`
	VideoURL   string    `json:"video_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Set struct {
	ID          string    `json:"id"`
	MatchID     string    `json:"match_id"`
	SetNumber   int       `json:"set_number"`
	FirstServer Side      `json:"first_server,omitempty"`
	Score       Score     `json:"score"`
	WinnerSide  Side      `json:"winner_side,omitempty"`
	SetsBeforeA int       `json:"sets_before_a"`
	SetsBeforeB int       `json:"sets_before_b"`
	SetsAfterA  int       `json:"sets_after_a"`
	SetsAfterB  int       `json:"sets_after_b"`
	Progress    Progress  `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Rally struct {
	ID           string       `json:"id"`
	SetID        string       `json:"set_id"`
	Ordinal      int          `json:"ordinal"`
	Shots        []Shot       `json:"shots"`
	EndCondition EndCondition `json:"end_condition,omitempty"`
	IsError      bool         `json:"is_error"`
	ServerSide   Side         `json:"server_side"`
	ReceiverSide Side         `json:"receiver_side"`
	WinnerSide   Side         `json:"winner_side,omitempty"`
	ScoreBefore  Score        `json:"score_before"`
	ScoreAfter   Score        `json:"score_after"`
	EndTime      float64      `json:"end_time"`
}

func (r *Rally) Closed() bool {
	return r.EndCondition != ""
}

func (r *Rally) LastShot() *Shot {
	if len(r.Shots) == 0 {
		return nil
	}
	return &r.Shots[len(r.Shots)-1]
}

type Shot struct {
	ID         string     `json:"id"`
	RallyID    string     `json:"rally_id"`
	Ordinal    int        `json:"ordinal"`
	Side       Side       `json:"side"`
	Time       float64    `json:"time"`
	IsServe    bool       `json:"is_serve"`
	IsReceive  bool       `json:"is_receive"`
	IsLastShot bool       `json:"is_last_shot"`
	Role       ShotRole   `json:"role,omitempty"`
	Annotation Annotation `json:"annotation"`
}
