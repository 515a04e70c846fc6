package services

import (
	"sort"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
)

const (
	// MaxResponseWindow is the speed bonus window in time units.
	MaxResponseWindow = 60
	// AccurateThreshold is the largest accuracy that keeps a streak going.
	AccurateThreshold = 5

	maxBasePoints  = 100
	maxSpeedBonus  = 20
	hintPenaltyPer = 5
)

type ScoreResult struct {
	Points     int `json:"points"`
	SpeedBonus int `json:"speed_bonus"`
	Accuracy   int `json:"accuracy"`
}

type ScoringService struct {
	window time.Duration
}

// NewScoringService returns a scorer whose response window is
// MaxResponseWindow multiples of unit.
func NewScoringService(unit time.Duration) *ScoringService {
	if unit <= 0 {
		unit = time.Second
	}
	return &ScoringService{window: MaxResponseWindow * unit}
}

// Score rates one guess. elapsed is measured from the round start.
func (s *ScoringService) Score(guessed, correct int, elapsed time.Duration, hintsUsed int) ScoreResult {
	accuracy := guessed - correct
	if accuracy < 0 {
		accuracy = -accuracy
	}
	base := max(0, maxBasePoints-accuracy)

	if elapsed < 0 {
		elapsed = 0
	}
	speedBonus := max(0, maxSpeedBonus-int(int64(maxSpeedBonus)*int64(elapsed)/int64(s.window)))

	points := max(0, base+speedBonus-hintPenaltyPer*hintsUsed)
	return ScoreResult{Points: points, SpeedBonus: speedBonus, Accuracy: accuracy}
}

// IsAccurate reports whether a guess with the given accuracy extends a streak.
func IsAccurate(accuracy int) bool {
	return accuracy <= AccurateThreshold
}

// ScoreRound fills the derived fields of every guess in submission order.
func (s *ScoringService) ScoreRound(round *models.Round, guesses []models.Guess) []models.Guess {
	if len(guesses) == 0 {
		return guesses
	}

	sort.SliceStable(guesses, func(a, b int) bool {
		return guesses[a].SubmittedAt.Before(guesses[b].SubmittedAt)
	})

	for i := range guesses {
		res := s.Score(guesses[i].Value, round.CorrectValue, guesses[i].SubmittedAt.Sub(round.StartedAt), guesses[i].HintsUsed)
		guesses[i].Points = res.Points
		guesses[i].SpeedBonus = res.SpeedBonus
		guesses[i].Accuracy = res.Accuracy
	}

	return guesses
}
