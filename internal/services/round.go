package services

import (
	"context"
	"log"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
	"github.com/samber/lo"
)

type RoundPhase int

const (
	RoundPending RoundPhase = iota
	RoundActive
	RoundClosing
	RoundClosed
)

func (p RoundPhase) String() string {
	switch p {
	case RoundPending:
		return "pending"
	case RoundActive:
		return "active"
	case RoundClosing:
		return "closing"
	case RoundClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// liveRound is the in-process state of the session's current round.
type liveRound struct {
	model    *models.Round
	item     *models.Item
	phase    RoundPhase
	agg      *GuessAggregator
	hintAt   *time.Time
	failures int
	// winnerID is set when the game ends because everyone else left.
	winnerID string
}

func (e *Engine) newLiveRound(st *sessionState, round *models.Round, item *models.Item) *liveRound {
	expected := lo.Map(st.active(), func(p *models.Participant, _ int) string { return p.ID })
	return &liveRound{
		model: round,
		item:  item,
		phase: RoundPending,
		agg:   NewGuessAggregator(round.ID, expected),
	}
}

// openRound starts round st.session.CurrentRound.
func (e *Engine) openRound(ctx context.Context, st *sessionState) {
	if st.session.Status != models.SessionStatusPlaying {
		return
	}
	if st.round != nil && st.round.phase != RoundClosed {
		log.Printf("engine: session %s: round %d still %s, not opening another", st.id(), st.round.model.RoundNumber, st.round.phase)
		return
	}

	used, err := e.store.UsedItemIDs(ctx, st.id())
	if err != nil {
		e.abortRound(ctx, st, err)
		return
	}
	item, err := SelectItem(ctx, e.catalog, used)
	if err != nil {
		e.abortRound(ctx, st, err)
		return
	}

	now := time.Now()
	budget := e.units(st.session.RoundTimer)
	round := &models.Round{
		SessionID:    st.id(),
		RoundNumber:  st.session.CurrentRound,
		ItemID:       item.ID,
		CorrectValue: item.Value,
		Status:       models.RoundStatusActive,
		StartedAt:    now,
		EndsAt:       now.Add(budget),
	}
	lr := e.newLiveRound(st, round, item)
	if err := e.store.CreateRound(ctx, round); err != nil {
		e.abortRound(ctx, st, err)
		return
	}
	lr.phase = RoundActive
	st.round = lr

	roundID := round.ID
	e.schedule(st, timerDeadline, budget, func(ctx context.Context) {
		e.closeRound(ctx, st, roundID)
	})
	if st.session.HintsEnabled && item.Hint != "" {
		e.schedule(st, timerHint, budget/2, func(ctx context.Context) {
			e.dispatchHint(ctx, st, roundID)
		})
	}

	e.metrics.roundsStarted.Add(1)
	e.publish(st, RoundStarted{
		RoundNumber:  round.RoundNumber,
		Item:         itemRef(item),
		TimeBudget:   st.session.RoundTimer,
		HintsEnabled: st.session.HintsEnabled,
		EndsAt:       round.EndsAt,
	})
}

// abortRound reports a round that could not be opened. A first round puts the
// session back in the lobby; a later one ends the game with the standings so
// far.
func (e *Engine) abortRound(ctx context.Context, st *sessionState, cause error) {
	log.Printf("engine: session %s: open round %d: %v", st.id(), st.session.CurrentRound, cause)
	e.publish(st, ErrorEventFor(Wrap(CodeOf(cause), "could not start round", cause)))

	if st.session.CurrentRound > 1 {
		e.finishGame(ctx, st, "")
		return
	}

	fields := map[string]any{"status": models.SessionStatusWaiting, "current_round": 0}
	if err := e.store.UpdateSession(ctx, st.id(), fields); err != nil {
		log.Printf("engine: session %s: revert to lobby: %v", st.id(), err)
		return
	}
	st.session.Status = models.SessionStatusWaiting
	st.session.CurrentRound = 0
	e.publish(st, SessionUpdated{Settings: st.settings(), Status: st.session.Status})
}

func (e *Engine) dispatchHint(ctx context.Context, st *sessionState, roundID string) {
	lr := st.round
	if lr == nil || lr.model.ID != roundID || lr.phase != RoundActive || lr.hintAt != nil || lr.item == nil {
		return
	}
	now := time.Now()
	lr.hintAt = &now
	lr.model.HintDispatched = true
	if err := e.store.UpdateRound(ctx, roundID, map[string]any{"hint_dispatched": true}); err != nil {
		log.Printf("engine: session %s: mark hint dispatched: %v", st.id(), err)
	}
	e.publish(st, HintAvailable{RoundNumber: lr.model.RoundNumber, Hint: lr.item.Hint})
}

// closeRound is the single entry for both close triggers. Only the first call
// for a round moves it out of Active; every later call is a no-op.
func (e *Engine) closeRound(ctx context.Context, st *sessionState, roundID string) {
	lr := st.round
	if lr == nil || lr.model.ID != roundID || lr.phase != RoundActive {
		return
	}
	lr.phase = RoundClosing
	st.timers.stop(timerDeadline)
	st.timers.stop(timerHint)

	if ended := e.settleRound(ctx, st, lr, false); ended {
		e.finishGame(ctx, st, "")
	}
}

// settleRound scores a closing round and commits the result. It reports
// whether the game is over. On a store failure the round stays Closing and a
// retry is scheduled; once retries run out a round that had to end the game
// reports it over anyway.
func (e *Engine) settleRound(ctx context.Context, st *sessionState, lr *liveRound, endGame bool) bool {
	guesses := e.scoring.ScoreRound(lr.model, lr.agg.Guesses())
	byParticipant := lo.KeyBy(guesses, func(g models.Guess) string { return g.ParticipantID })

	standings := make([]Standing, 0, len(st.roster))
	updates := make([]ParticipantUpdate, 0, len(st.roster))
	for _, p := range st.roster {
		u := ParticipantUpdate{ID: p.ID, Score: p.Score, Streak: p.Streak, IsEliminated: p.IsEliminated}
		s := Standing{ParticipantID: p.ID, Eliminated: p.IsEliminated}
		if g, ok := byParticipant[p.ID]; ok {
			u.Score += g.Points
			if IsAccurate(g.Accuracy) {
				u.Streak++
			} else {
				u.Streak = 0
			}
			s.Guessed = true
			s.Accuracy = g.Accuracy
		}
		s.Score = u.Score
		standings = append(standings, s)
		updates = append(updates, u)
	}

	decision := Decide(ProgressionInput{
		Mode:         st.session.Mode,
		CurrentRound: lr.model.RoundNumber,
		RoundCount:   st.session.Rounds,
		TargetScore:  st.session.TargetScore,
		Standings:    standings,
	})
	if endGame {
		decision.Continue = false
	}
	if decision.Eliminate != "" {
		for i := range updates {
			if updates[i].ID == decision.Eliminate {
				updates[i].IsEliminated = true
			}
		}
	}

	outcome := RoundOutcome{
		SessionID:     st.id(),
		RoundID:       lr.model.ID,
		EndedAt:       time.Now(),
		Guesses:       guesses,
		Participants:  updates,
		SessionStatus: models.SessionStatusPlaying,
		CurrentRound:  lr.model.RoundNumber,
	}
	if decision.Continue {
		outcome.CurrentRound++
	} else {
		outcome.SessionStatus = models.SessionStatusFinished
	}

	if err := e.store.CompleteRound(ctx, outcome); err != nil {
		lr.failures++
		e.metrics.roundCloseFailures.Add(1)
		if lr.failures > e.opts.MaxCloseRetries {
			log.Printf("engine: session %s: round %d left closing after %d failed attempts, needs manual reconciliation: %v",
				st.id(), lr.model.RoundNumber, lr.failures, err)
			if endGame {
				log.Printf("engine: session %s: final standings exclude round %d", st.id(), lr.model.RoundNumber)
			}
			return endGame
		}
		log.Printf("engine: session %s: close round %d (attempt %d): %v", st.id(), lr.model.RoundNumber, lr.failures, err)
		e.schedule(st, timerCloseRetry, e.units(lr.failures), func(ctx context.Context) {
			if st.round != lr || lr.phase != RoundClosing {
				return
			}
			if ended := e.settleRound(ctx, st, lr, endGame); ended {
				e.finishGame(ctx, st, lr.winnerID)
			}
		})
		return false
	}

	for _, u := range updates {
		if p := st.participant(u.ID); p != nil {
			p.Score = u.Score
			p.Streak = u.Streak
			p.IsEliminated = u.IsEliminated
		}
	}
	st.session.Status = outcome.SessionStatus
	st.session.CurrentRound = outcome.CurrentRound
	lr.model.Status = models.RoundStatusCompleted
	lr.model.EndedAt = &outcome.EndedAt
	lr.phase = RoundClosed
	lr.agg.Release()
	st.round = nil
	e.metrics.roundsCompleted.Add(1)

	ended := RoundEnded{
		RoundNumber:  lr.model.RoundNumber,
		CorrectValue: lr.model.CorrectValue,
		Guesses: lo.Map(guesses, func(g models.Guess, _ int) GuessResult {
			res := GuessResult{
				ParticipantID: g.ParticipantID,
				Value:         g.Value,
				Points:        g.Points,
				SpeedBonus:    g.SpeedBonus,
				Accuracy:      g.Accuracy,
				HintsUsed:     g.HintsUsed,
			}
			if p := st.participant(g.ParticipantID); p != nil {
				res.DisplayName = p.DisplayName
			}
			return res
		}),
		Leaderboard: Leaderboard(st.roster),
		Eliminated:  decision.Eliminate,
	}
	if decision.Continue {
		pause := st.session.BetweenRoundsTimer
		ended.NextRoundCountdown = &pause
	}
	e.publish(st, ended)

	if decision.Eliminate != "" {
		if p := st.participant(decision.Eliminate); p != nil {
			e.systemMessage(ctx, st, "%s was eliminated", p.DisplayName)
		}
	}

	if !decision.Continue {
		return true
	}
	e.schedule(st, timerNextRound, e.units(st.session.BetweenRoundsTimer), func(ctx context.Context) {
		e.openRound(ctx, st)
	})
	return false
}

// finishGame ends a game and announces the final standings. winnerID names
// the winner when the game ended because everyone else left.
func (e *Engine) finishGame(ctx context.Context, st *sessionState, winnerID string) {
	st.timers.stopAll()
	e.dropRound(ctx, st)
	e.markFinished(ctx, st)

	board := Leaderboard(st.roster)
	ended := GameEnded{FinalLeaderboard: board}
	if winner, ok := pickWinner(st, board, winnerID); ok {
		ended.Winner = &winner
	}
	e.metrics.gamesFinished.Add(1)
	e.publish(st, ended)
	if ended.Winner != nil {
		e.systemMessage(ctx, st, "Game over, %s wins", ended.Winner.DisplayName)
	} else {
		e.systemMessage(ctx, st, "Game over")
	}

	e.succeedHost(ctx, st)
}

// dropRound discards the in-process round. A round that never reached
// Closing is completed in the store without scores; a Closing one is left
// for reconciliation.
func (e *Engine) dropRound(ctx context.Context, st *sessionState) {
	lr := st.round
	if lr == nil {
		return
	}
	lr.agg.Release()
	st.round = nil

	switch lr.phase {
	case RoundClosing:
		log.Printf("engine: session %s: round %d left active in store for reconciliation", st.id(), lr.model.RoundNumber)
	case RoundPending, RoundActive:
		fields := map[string]any{"status": models.RoundStatusCompleted, "ended_at": time.Now()}
		if err := e.store.UpdateRound(ctx, lr.model.ID, fields); err != nil {
			log.Printf("engine: session %s: complete abandoned round %d: %v", st.id(), lr.model.RoundNumber, err)
		}
	}
}

func (e *Engine) markFinished(ctx context.Context, st *sessionState) {
	if st.session.Status == models.SessionStatusFinished {
		return
	}
	if err := e.store.UpdateSession(ctx, st.id(), map[string]any{"status": models.SessionStatusFinished}); err != nil {
		log.Printf("engine: session %s: finish: %v", st.id(), err)
	}
	st.session.Status = models.SessionStatusFinished
}

func pickWinner(st *sessionState, board []LeaderboardEntry, winnerID string) (LeaderboardEntry, bool) {
	if winnerID == "" && st.session.Mode == models.ModeElimination {
		if survivors := st.active(); len(survivors) == 1 {
			winnerID = survivors[0].ID
		}
	}
	if winnerID != "" {
		return lo.Find(board, func(le LeaderboardEntry) bool { return le.ParticipantID == winnerID })
	}
	if len(board) == 0 {
		return LeaderboardEntry{}, false
	}
	return board[0], true
}
