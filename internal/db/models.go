package db

import (
	"time"
)

type Match struct {
	ID         string
	PlayerA    string
	PlayerB    string
	BestOf     int64
	SetsWonA   int64
	SetsWonB   int64
	WinnerSide string
	VideoUrl   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Set struct {
	ID             string
	MatchID        string
	SetNumber      int64
	FirstServer    string
	ScoreA         int64
	ScoreB         int64
	WinnerSide     string
	SetsBeforeA    int64
	SetsBeforeB    int64
	SetsAfterA     int64
	SetsAfterB     int64
	Phase          string
	LastRallyIndex int64
	LastShotIndex  int64
	TotalRallies   int64
	TotalShots     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Rally struct {
	ID           string
	SetID        string
	Ordinal      int64
	EndCondition string
	IsError      bool
	ServerSide   string
	ReceiverSide string
	WinnerSide   string
	ScoreBeforeA int64
	ScoreBeforeB int64
	ScoreAfterA  int64
	ScoreAfterB  int64
	EndTime      float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Shot struct {
	ID             string
	RallyID        string
	Ordinal        int64
	Side           string
	Time           float64
	IsServe        bool
	IsReceive      bool
	IsLastShot     bool
	Role           string
	Direction      string
	Depth          string
	Spin           string
	Stroke         string
	Quality        string
	Intent         string
	ErrorPlacement string
	ErrorType      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
