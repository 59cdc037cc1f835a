package game

import (
	"maps"
	"slices"
)

type PhaseKind string

const (
	PhaseWaitingForStart PhaseKind = "WaitingForStart"
	PhaseCountdown       PhaseKind = "Countdown"
	PhaseSearching       PhaseKind = "Searching"
	PhaseRoundOver       PhaseKind = "RoundOver"
	PhaseGameOver        PhaseKind = "GameOver"
)

type Settings struct {
	PointsToWin      float64 `json:"points_to_win"`
	ScorersPerTarget int     `json:"scorers_per_target"`
}

func (s Settings) Valid() bool {
	return s.PointsToWin > 0 && s.ScorersPerTarget > 0
}

type Player struct {
	Name string `json:"name"`
}

type GameObject struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	ImageB64 string `json:"image_b64"`
}

// Standing is one leaderboard row.
type Standing struct {
	Player string  `json:"player"`
	Score  float64 `json:"score"`
}

// Phase is a tagged variant: only the fields belonging to Kind are set.
type Phase struct {
	Kind PhaseKind `json:"kind"`

	// Countdown
	CountdownSecs int `json:"countdown_secs,omitempty"`

	// Searching
	Target      *GameObject        `json:"target,omitempty"`
	RoundScores map[string]float64 `json:"round_scores,omitempty"`
	Difficulty  float64            `json:"zoom_level,omitempty"`

	// GameOver
	Leaderboard []Standing `json:"leaderboard,omitempty"`
}

func (p Phase) clone() Phase {
	out := p
	if p.Target != nil {
		t := *p.Target
		out.Target = &t
	}
	if p.RoundScores != nil {
		out.RoundScores = maps.Clone(p.RoundScores)
	}
	if p.Leaderboard != nil {
		out.Leaderboard = slices.Clone(p.Leaderboard)
	}
	return out
}

// Snapshot is the full, authoritative state of a lobby as sent to clients and stores.
type Snapshot struct {
	ID          string             `json:"id"`
	Round       int                `json:"round"`
	Players     []Player           `json:"players"`
	Settings    Settings           `json:"settings"`
	Phase       Phase              `json:"phase"`
	TotalScores map[string]float64 `json:"total_scores"`
}
