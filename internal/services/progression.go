package services

import (
	"slices"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
)

// DefaultTargetScore ends a marathon when no target is configured.
const DefaultTargetScore = 1000

// Standing is one participant's state after a round has been scored.
// Standings are passed in join order; that order breaks every tie.
type Standing struct {
	ParticipantID string
	Score         int
	Eliminated    bool
	Guessed       bool
	Accuracy      int
}

type ProgressionInput struct {
	Mode         string
	CurrentRound int
	RoundCount   int
	TargetScore  *int
	Standings    []Standing
}

type Decision struct {
	Continue  bool
	Eliminate string
}

// Decide applies the mode's progression rule to a scored round.
func Decide(in ProgressionInput) Decision {
	switch in.Mode {
	case models.ModeElimination:
		return decideElimination(in.Standings)
	case models.ModeMarathon:
		target := DefaultTargetScore
		if in.TargetScore != nil && *in.TargetScore > 0 {
			target = *in.TargetScore
		}
		for _, s := range in.Standings {
			if s.Score >= target {
				return Decision{Continue: false}
			}
		}
		return Decision{Continue: true}
	default:
		return Decision{Continue: in.CurrentRound < in.RoundCount}
	}
}

func decideElimination(standings []Standing) Decision {
	var worst *Standing
	guessed := 0
	remaining := 0
	for i := range standings {
		s := &standings[i]
		if s.Eliminated {
			continue
		}
		remaining++
		if !s.Guessed {
			continue
		}
		guessed++
		if worst == nil || s.Accuracy > worst.Accuracy {
			worst = s
		}
	}

	var d Decision
	if guessed >= 2 {
		d.Eliminate = worst.ParticipantID
		remaining--
	}
	d.Continue = remaining > 1
	return d
}

type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Avatar        string `json:"avatar"`
	Score         int    `json:"score"`
	Streak        int    `json:"streak"`
	IsEliminated  bool   `json:"is_eliminated"`
}

// Leaderboard ranks participants by score, descending. Equal scores keep the
// order of the input slice, which callers keep in join order.
func Leaderboard(roster []*models.Participant) []LeaderboardEntry {
	ranked := slices.Clone(roster)
	slices.SortStableFunc(ranked, func(a, b *models.Participant) int {
		return b.Score - a.Score
	})

	entries := make([]LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		entries[i] = LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Avatar:        p.Avatar,
			Score:         p.Score,
			Streak:        p.Streak,
			IsEliminated:  p.IsEliminated,
		}
	}
	return entries
}
