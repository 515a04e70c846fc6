package services

import (
	"sort"
	"sync"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
)

// GuessAggregator collects the guesses of one round and decides when every
// expected participant has answered. It is the only place that comparison is
// made.
type GuessAggregator struct {
	mu        sync.Mutex
	roundID   string
	expected  map[string]struct{}
	guesses   map[string]models.Guess
	released  bool
	signalled bool
}

func NewGuessAggregator(roundID string, expected []string) *GuessAggregator {
	a := &GuessAggregator{
		roundID:  roundID,
		expected: make(map[string]struct{}, len(expected)),
		guesses:  make(map[string]models.Guess, len(expected)),
	}
	for _, id := range expected {
		a.expected[id] = struct{}{}
	}
	return a
}

// Submit records g. shouldClose is true for exactly one submission: the one
// that completes the expected set.
func (a *GuessAggregator) Submit(g models.Guess) (shouldClose bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return false, ErrNoActiveRound
	}
	if _, ok := a.expected[g.ParticipantID]; !ok {
		return false, ErrParticipantEliminated
	}
	if _, dup := a.guesses[g.ParticipantID]; dup {
		return false, ErrDuplicateGuess
	}

	a.guesses[g.ParticipantID] = g
	return a.checkComplete(), nil
}

// Withdraw undoes a Submit whose guess could not be persisted.
func (a *GuessAggregator) Withdraw(participantID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.guesses[participantID]; !ok {
		return
	}
	delete(a.guesses, participantID)
	a.signalled = false
}

// Remove drops a departed participant from the expected set. The remaining
// participants may now all have answered.
func (a *GuessAggregator) Remove(participantID string) (shouldClose bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return false
	}
	delete(a.expected, participantID)
	return a.checkComplete()
}

func (a *GuessAggregator) checkComplete() bool {
	if a.signalled || len(a.expected) == 0 {
		return false
	}
	for id := range a.expected {
		if _, ok := a.guesses[id]; !ok {
			return false
		}
	}
	a.signalled = true
	return true
}

// Guesses returns the recorded guesses ordered by submission time.
func (a *GuessAggregator) Guesses() []models.Guess {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.Guess, 0, len(a.guesses))
	for _, g := range a.guesses {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

func (a *GuessAggregator) Has(participantID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.guesses[participantID]
	return ok
}

func (a *GuessAggregator) Answered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.guesses)
}

// Release rejects every later Submit.
func (a *GuessAggregator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.released = true
}
