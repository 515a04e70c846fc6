package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
	"github.com/ZAPHODh/ws-guess-server/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_SameIdentityReturnsSameParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{})

	first := h.join(t, sid, "ann")
	again, err := h.engine.Join(ctx, services.JoinRequest{SessionID: sid, AnonymousID: "anon-ann", DisplayName: "Ann again"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.Participant.ID)
	assert.True(t, again.IsRejoin)
	assert.Len(t, again.Session.Participants, 1)
	assert.Len(t, broadcasts[services.ParticipantJoined](h.rec, sid), 1)
	assert.Equal(t, int64(1), h.count(t, &models.Participant{}, "session_id = ?", sid))
}

func TestJoin_FirstJoinerBecomesHost(t *testing.T) {
	h := newHarness(t)
	sid := h.createSession(t, services.CreateSessionParams{})

	ann := h.join(t, sid, "ann")
	h.join(t, sid, "bob")

	assert.Equal(t, ann.ID, h.snapshot(t, sid).HostParticipantID)
	changes := broadcasts[services.HostChanged](h.rec, sid)
	require.Len(t, changes, 1)
	assert.Equal(t, ann.ID, changes[0].HostParticipantID)
}

func TestJoin_ReturnsChatHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{})

	ann := h.join(t, sid, "ann")
	_, err := h.engine.SendMessage(ctx, sid, ann.ID, "hello there")
	require.NoError(t, err)

	res, err := h.engine.Join(ctx, services.JoinRequest{SessionID: sid, AnonymousID: "anon-bob", DisplayName: "bob"})
	require.NoError(t, err)

	var bodies []string
	for _, m := range res.Messages {
		bodies = append(bodies, m.Body)
	}
	assert.Contains(t, bodies, "hello there")
	assert.Contains(t, bodies, "ann joined")
}

func TestJoin_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("identity required", func(t *testing.T) {
		sid := h.createSession(t, services.CreateSessionParams{})
		_, err := h.engine.Join(ctx, services.JoinRequest{SessionID: sid, DisplayName: "nobody"})
		assert.ErrorIs(t, err, services.ErrIdentityRequired)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := h.engine.Join(ctx, services.JoinRequest{SessionID: "missing", AnonymousID: "x", DisplayName: "x"})
		assert.ErrorIs(t, err, services.ErrSessionNotFound)
	})

	t.Run("full", func(t *testing.T) {
		sid := h.createSession(t, services.CreateSessionParams{MaxPlayers: 2})
		h.join(t, sid, "ann")
		h.join(t, sid, "bob")
		_, err := h.engine.Join(ctx, services.JoinRequest{SessionID: sid, AnonymousID: "anon-cid", DisplayName: "cid"})
		assert.ErrorIs(t, err, services.ErrSessionFull)
	})

	t.Run("in progress", func(t *testing.T) {
		sid := h.createSession(t, services.CreateSessionParams{RoundTimer: 100})
		ann := h.join(t, sid, "ann")
		h.join(t, sid, "bob")
		require.NoError(t, h.engine.Start(ctx, sid, ann.ID))

		_, err := h.engine.Join(ctx, services.JoinRequest{SessionID: sid, AnonymousID: "anon-cid", DisplayName: "cid"})
		assert.ErrorIs(t, err, services.ErrSessionInProgress)

		rejoin, err := h.engine.Join(ctx, services.JoinRequest{SessionID: sid, AnonymousID: "anon-bob", DisplayName: "bob"})
		require.NoError(t, err)
		assert.True(t, rejoin.IsRejoin)
	})

	t.Run("finished", func(t *testing.T) {
		sid := h.createSession(t, services.CreateSessionParams{})
		ann := h.join(t, sid, "ann")
		require.NoError(t, h.engine.Leave(ctx, sid, ann.ID))

		_, err := h.engine.Join(ctx, services.JoinRequest{SessionID: sid, AnonymousID: "anon-bob", DisplayName: "bob"})
		assert.ErrorIs(t, err, services.ErrSessionFinished)
	})
}

func TestStart_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{RoundTimer: 100})

	ann := h.join(t, sid, "ann")
	assert.ErrorIs(t, h.engine.Start(ctx, sid, ann.ID), services.ErrInsufficientParticipants)

	bob := h.join(t, sid, "bob")
	assert.ErrorIs(t, h.engine.Start(ctx, sid, bob.ID), services.ErrNotHost)

	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	assert.ErrorIs(t, h.engine.Start(ctx, sid, ann.ID), services.ErrSessionNotWaiting)

	started := broadcasts[services.GameStarted](h.rec, sid)
	require.Len(t, started, 1)
	assert.Equal(t, models.ModeClassic, started[0].Mode)
	assert.Equal(t, models.SessionStatusPlaying, h.snapshot(t, sid).Status)
}

func TestStart_EmptyCatalogFailsFast(t *testing.T) {
	h := newHarnessWithItems(t, nil)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{})

	ann := h.join(t, sid, "ann")
	h.join(t, sid, "bob")

	err := h.engine.Start(ctx, sid, ann.ID)
	assert.ErrorIs(t, err, services.ErrNoItemsAvailable)
	assert.Equal(t, services.CodeUnavailable, services.CodeOf(err))
	assert.Equal(t, models.SessionStatusWaiting, h.snapshot(t, sid).Status)
}

func TestClassicGame_PlaysEveryRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{Rounds: 3, RoundTimer: 100, BetweenRoundsTimer: 1})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")
	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))

	seen := map[string]bool{}
	for n := 1; n <= 3; n++ {
		started := h.waitRound(t, sid, n)
		assert.Equal(t, n, started.RoundNumber)
		seen[started.Item.ID] = true

		correct := itemValue(t, started.Item.ID)
		require.NoError(t, h.engine.SubmitGuess(ctx, sid, ann.ID, correct))
		require.NoError(t, h.engine.SubmitGuess(ctx, sid, bob.ID, correct+40))

		ended := h.waitRoundEnded(t, sid, n)
		assert.Equal(t, correct, ended.CorrectValue)
		require.Len(t, ended.Guesses, 2)
		if n < 3 {
			require.NotNil(t, ended.NextRoundCountdown)
			assert.Equal(t, 1, *ended.NextRoundCountdown)
		} else {
			assert.Nil(t, ended.NextRoundCountdown)
		}
	}
	assert.Len(t, seen, 3, "items are not repeated while unused ones remain")

	ended := h.waitGameEnded(t, sid)
	require.Len(t, ended.FinalLeaderboard, 2)
	assert.Equal(t, ann.ID, ended.FinalLeaderboard[0].ParticipantID)
	assert.GreaterOrEqual(t, ended.FinalLeaderboard[0].Score, ended.FinalLeaderboard[1].Score)
	assert.Equal(t, 3, ended.FinalLeaderboard[0].Streak)
	assert.Equal(t, 0, ended.FinalLeaderboard[1].Streak)
	require.NotNil(t, ended.Winner)
	assert.Equal(t, ann.ID, ended.Winner.ParticipantID)

	snap := h.snapshot(t, sid)
	assert.Equal(t, models.SessionStatusFinished, snap.Status)
	assert.Nil(t, snap.Round)
	assert.Equal(t, int64(3), h.count(t, &models.Round{}, "session_id = ? AND status = ?", sid, models.RoundStatusCompleted))

	board, err := h.engine.Leaderboard(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, ended.FinalLeaderboard, board)

	m := h.engine.Metrics().Snapshot()
	assert.Equal(t, int64(1), m.GamesStarted)
	assert.Equal(t, int64(1), m.GamesFinished)
	assert.Equal(t, int64(3), m.RoundsCompleted)
	assert.Equal(t, int64(6), m.GuessesAccepted)
}

func TestSubmitGuess_ConcurrentDuplicateStoresOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{RoundTimer: 300})

	ann := h.join(t, sid, "ann")
	h.join(t, sid, "bob")
	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	h.waitRound(t, sid, 1)

	round, err := h.store.ActiveRound(ctx, sid)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.engine.SubmitGuess(ctx, sid, ann.ID, 1950+i)
		}()
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case services.CodeOf(err) == services.CodeConflict:
			assert.ErrorIs(t, err, services.ErrDuplicateGuess)
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)

	guesses, err := h.store.RoundGuesses(ctx, round.ID)
	require.NoError(t, err)
	assert.Len(t, guesses, 1)
	assert.Len(t, directed[services.GuessSubmitted](h.rec, sid, ann.ID), 1)
	assert.Empty(t, broadcasts[services.RoundEnded](h.rec, sid))
}

func TestSubmitGuess_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{RoundTimer: 300})

	ann := h.join(t, sid, "ann")
	h.join(t, sid, "bob")

	assert.ErrorIs(t, h.engine.SubmitGuess(ctx, sid, ann.ID, 1950), services.ErrSessionNotPlaying)
	assert.ErrorIs(t, h.engine.SubmitGuess(ctx, sid, "ghost", 1950), services.ErrParticipantNotFound)

	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	assert.ErrorIs(t, h.engine.SubmitGuess(ctx, sid, ann.ID, 1950), services.ErrNoActiveRound, "no round before the start delay elapses")

	h.waitRound(t, sid, 1)
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, ann.ID, 1950))
	assert.ErrorIs(t, h.engine.SubmitGuess(ctx, sid, ann.ID, 1960), services.ErrDuplicateGuess)

	assert.Equal(t, int64(4), h.engine.Metrics().Snapshot().GuessesRejected)
}

func TestRound_ClosesExactlyOnceWhenDeadlineRacesLastGuess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i, delay := range []time.Duration{40 * time.Millisecond, 48 * time.Millisecond, 50 * time.Millisecond, 55 * time.Millisecond} {
		sid := h.createSession(t, services.CreateSessionParams{Rounds: 1, RoundTimer: 5})
		ann := h.join(t, sid, "ann")
		bob := h.join(t, sid, "bob")
		require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
		h.waitRound(t, sid, 1)

		time.Sleep(delay)
		var wg sync.WaitGroup
		for _, id := range []string{ann.ID, bob.ID} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Late guesses are rejected once the deadline closed the round.
				_ = h.engine.SubmitGuess(ctx, sid, id, 1950)
			}()
		}
		wg.Wait()

		h.waitGameEnded(t, sid)
		time.Sleep(10 * testUnit)
		assert.Len(t, broadcasts[services.RoundEnded](h.rec, sid), 1, "attempt %d", i)
		assert.Len(t, broadcasts[services.GameEnded](h.rec, sid), 1, "attempt %d", i)
	}
}

func TestRound_DeadlineClosesWithoutGuesses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{Rounds: 2, RoundTimer: 5, BetweenRoundsTimer: 1})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")
	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))

	ended := h.waitRoundEnded(t, sid, 1)
	assert.Empty(t, ended.Guesses)

	started := h.waitRound(t, sid, 2)
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, bob.ID, itemValue(t, started.Item.ID)))
	h.waitGameEnded(t, sid)

	snap := h.snapshot(t, sid)
	assert.Zero(t, participantByID(snap, ann.ID).Score)
	assert.Positive(t, participantByID(snap, bob.ID).Score)
}

func TestRound_HintLowersLaterGuesses(t *testing.T) {
	items := []models.Item{{ID: "item-hinted", Title: "Hinted", Value: 1955, Hint: "mid fifties"}}
	h := newHarnessWithItems(t, items)
	ctx := context.Background()

	hints := true
	sid := h.createSession(t, services.CreateSessionParams{Rounds: 1, RoundTimer: 20, HintsEnabled: &hints})
	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")
	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	h.waitRound(t, sid, 1)

	require.NoError(t, h.engine.SubmitGuess(ctx, sid, ann.ID, 1955))
	require.Eventually(t, func() bool {
		return len(broadcasts[services.HintAvailable](h.rec, sid)) == 1
	}, waitTimeout, waitTick)
	assert.Equal(t, "mid fifties", broadcasts[services.HintAvailable](h.rec, sid)[0].Hint)
	assert.Equal(t, "mid fifties", h.snapshot(t, sid).Round.Hint)

	require.NoError(t, h.engine.SubmitGuess(ctx, sid, bob.ID, 1955))
	ended := h.waitRoundEnded(t, sid, 1)

	used := map[string]int{}
	for _, g := range ended.Guesses {
		used[g.ParticipantID] = g.HintsUsed
	}
	assert.Equal(t, 0, used[ann.ID])
	assert.Equal(t, 1, used[bob.ID])
}

func TestElimination_DropsLeastAccurateUntilOneRemains(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{Mode: models.ModeElimination, RoundTimer: 100, BetweenRoundsTimer: 1})

	p1 := h.join(t, sid, "p1")
	p2 := h.join(t, sid, "p2")
	p3 := h.join(t, sid, "p3")
	require.NoError(t, h.engine.Start(ctx, sid, p1.ID))

	started := h.waitRound(t, sid, 1)
	v := itemValue(t, started.Item.ID)
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, p1.ID, v+3))
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, p2.ID, v+9))
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, p3.ID, v-9))

	first := h.waitRoundEnded(t, sid, 1)
	assert.Equal(t, p2.ID, first.Eliminated, "ties go to the earliest joined")
	require.NotNil(t, first.NextRoundCountdown)

	started = h.waitRound(t, sid, 2)
	v = itemValue(t, started.Item.ID)
	assert.ErrorIs(t, h.engine.SubmitGuess(ctx, sid, p2.ID, v), services.ErrParticipantEliminated)
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, p1.ID, v))
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, p3.ID, v+20))

	second := h.waitRoundEnded(t, sid, 2)
	assert.Equal(t, p3.ID, second.Eliminated)
	assert.Nil(t, second.NextRoundCountdown)

	ended := h.waitGameEnded(t, sid)
	require.NotNil(t, ended.Winner)
	assert.Equal(t, p1.ID, ended.Winner.ParticipantID)

	snap := h.snapshot(t, sid)
	assert.True(t, participantByID(snap, p2.ID).IsEliminated)
	assert.True(t, participantByID(snap, p3.ID).IsEliminated)
	assert.False(t, participantByID(snap, p1.ID).IsEliminated)
}

func TestMarathon_EndsWhenTargetReached(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{Mode: models.ModeMarathon, TargetScore: intPtr(150), RoundTimer: 100, BetweenRoundsTimer: 1})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")
	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))

	for n := 1; n <= 2; n++ {
		started := h.waitRound(t, sid, n)
		v := itemValue(t, started.Item.ID)
		require.NoError(t, h.engine.SubmitGuess(ctx, sid, ann.ID, v))
		require.NoError(t, h.engine.SubmitGuess(ctx, sid, bob.ID, v+200))
		h.waitRoundEnded(t, sid, n)
	}

	ended := h.waitGameEnded(t, sid)
	assert.Len(t, broadcasts[services.RoundEnded](h.rec, sid), 2)
	assert.GreaterOrEqual(t, ended.FinalLeaderboard[0].Score, 150)
	assert.Equal(t, ann.ID, ended.Winner.ParticipantID)
}

func TestRestart_ResetsFinishedSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{Rounds: 1, RoundTimer: 100})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")

	err := h.engine.Restart(ctx, sid, ann.ID)
	assert.ErrorIs(t, err, services.ErrSessionNotFinished)
	assert.Equal(t, services.CodePreconditionFailed, services.CodeOf(err))

	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	started := h.waitRound(t, sid, 1)
	v := itemValue(t, started.Item.ID)
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, ann.ID, v))
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, bob.ID, v+1))
	h.waitGameEnded(t, sid)

	assert.ErrorIs(t, h.engine.Restart(ctx, sid, bob.ID), services.ErrNotHost)
	require.NoError(t, h.engine.Restart(ctx, sid, ann.ID))

	snap := h.snapshot(t, sid)
	assert.Equal(t, models.SessionStatusWaiting, snap.Status)
	assert.Zero(t, snap.CurrentRound)
	for _, p := range snap.Participants {
		assert.Zero(t, p.Score)
		assert.Zero(t, p.Streak)
		assert.False(t, p.IsReady)
	}
	assert.Zero(t, h.count(t, &models.Round{}, "session_id = ?", sid))
	assert.Zero(t, h.count(t, &models.Guess{}, "participant_id IN ?", []string{ann.ID, bob.ID}))
	assert.Len(t, broadcasts[services.SessionRestarted](h.rec, sid), 1)

	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	assert.Equal(t, 1, h.waitRound(t, sid, 2).RoundNumber)
}

func TestLeave_HostSuccession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")
	h.join(t, sid, "cid")

	require.NoError(t, h.engine.Leave(ctx, sid, ann.ID))

	snap := h.snapshot(t, sid)
	assert.Equal(t, bob.ID, snap.HostParticipantID)
	assert.Len(t, snap.Participants, 2)

	left := broadcasts[services.ParticipantLeft](h.rec, sid)
	require.Len(t, left, 1)
	assert.Equal(t, "left", left[0].Reason)

	changes := broadcasts[services.HostChanged](h.rec, sid)
	assert.Equal(t, bob.ID, changes[len(changes)-1].HostParticipantID)
	assert.ErrorIs(t, h.engine.Leave(ctx, sid, ann.ID), services.ErrParticipantNotFound)
}

func TestLeave_LastParticipantFinishesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{})

	ann := h.join(t, sid, "ann")
	require.NoError(t, h.engine.Leave(ctx, sid, ann.ID))

	finished := broadcasts[services.SessionFinished](h.rec, sid)
	require.Len(t, finished, 1)
	assert.Equal(t, "empty", finished[0].Reason)
	assert.Equal(t, models.SessionStatusFinished, h.snapshot(t, sid).Status)
}

func TestLeave_DuringGameDeclaresRemainingPlayerWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{Rounds: 5, RoundTimer: 100})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")
	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	h.waitRound(t, sid, 1)

	require.NoError(t, h.engine.Disconnect(ctx, sid, ann.ID))

	ended := h.waitGameEnded(t, sid)
	require.NotNil(t, ended.Winner)
	assert.Equal(t, bob.ID, ended.Winner.ParticipantID)

	snap := h.snapshot(t, sid)
	assert.Equal(t, models.SessionStatusFinished, snap.Status)
	assert.Equal(t, bob.ID, snap.HostParticipantID)

	_, err := h.store.ActiveRound(ctx, sid)
	assert.ErrorIs(t, err, services.ErrRoundNotFound)

	left := broadcasts[services.ParticipantLeft](h.rec, sid)
	require.Len(t, left, 1)
	assert.Equal(t, "disconnected", left[0].Reason)
}

func TestLeave_OpenRoundClosesWhenRemainingHaveAnswered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{Rounds: 3, RoundTimer: 100})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")
	cid := h.join(t, sid, "cid")
	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	started := h.waitRound(t, sid, 1)

	v := itemValue(t, started.Item.ID)
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, ann.ID, v))
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, bob.ID, v))
	assert.Empty(t, broadcasts[services.RoundEnded](h.rec, sid))

	require.NoError(t, h.engine.Leave(ctx, sid, cid.ID))

	ended := h.waitRoundEnded(t, sid, 1)
	assert.Len(t, ended.Guesses, 2)
	assert.Empty(t, broadcasts[services.GameEnded](h.rec, sid))
}

func TestKick(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")

	assert.ErrorIs(t, h.engine.Kick(ctx, sid, bob.ID, ann.ID), services.ErrNotHost)
	assert.ErrorIs(t, h.engine.Kick(ctx, sid, ann.ID, ann.ID), services.ErrCannotKickSelf)
	assert.ErrorIs(t, h.engine.Kick(ctx, sid, ann.ID, "ghost"), services.ErrParticipantNotFound)

	require.NoError(t, h.engine.Kick(ctx, sid, ann.ID, bob.ID))

	notices := directed[services.ErrorEvent](h.rec, sid, bob.ID)
	require.Len(t, notices, 1)
	assert.Equal(t, services.CodeForbidden, notices[0].Code)
	assert.True(t, h.rec.wasDetached(bob.ID))

	left := broadcasts[services.ParticipantLeft](h.rec, sid)
	require.Len(t, left, 1)
	assert.Equal(t, bob.ID, left[0].ParticipantID)
	assert.Equal(t, "kicked", left[0].Reason)
	assert.Len(t, h.snapshot(t, sid).Participants, 1)
}

func TestTransferHost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{})

	ann := h.joinAccount(t, sid, "ann")
	guest := h.join(t, sid, "guest")
	cid := h.joinAccount(t, sid, "cid")

	assert.ErrorIs(t, h.engine.TransferHost(ctx, sid, guest.ID, cid.ID), services.ErrNotHost)
	assert.ErrorIs(t, h.engine.TransferHost(ctx, sid, ann.ID, guest.ID), services.ErrAnonymousHost)

	require.NoError(t, h.engine.TransferHost(ctx, sid, ann.ID, cid.ID))
	assert.Equal(t, cid.ID, h.snapshot(t, sid).HostParticipantID)

	changes := broadcasts[services.HostChanged](h.rec, sid)
	assert.Equal(t, cid.ID, changes[len(changes)-1].HostParticipantID)
	assert.Equal(t, "cid", changes[len(changes)-1].DisplayName)
}

func TestUpdateSettings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")

	rounds := 7
	_, err := h.engine.UpdateSettings(ctx, sid, bob.ID, services.SettingsPatch{Rounds: &rounds})
	assert.ErrorIs(t, err, services.ErrNotHost)

	settings, err := h.engine.UpdateSettings(ctx, sid, ann.ID, services.SettingsPatch{Rounds: &rounds})
	require.NoError(t, err)
	assert.Equal(t, 7, settings.Rounds)
	assert.Equal(t, services.DefaultRoundTimer, settings.RoundTimer)
	assert.Equal(t, services.DefaultMaxPlayers, settings.MaxPlayers)

	updates := broadcasts[services.SessionUpdated](h.rec, sid)
	require.Len(t, updates, 1)
	assert.Equal(t, 7, updates[0].Settings.Rounds)

	tooSmall := 1
	_, err = h.engine.UpdateSettings(ctx, sid, ann.ID, services.SettingsPatch{MaxPlayers: &tooSmall})
	assert.ErrorIs(t, err, services.ErrMaxPlayersTooSmall)

	stored, err := h.store.GetSession(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Rounds)
	assert.Equal(t, services.DefaultMaxPlayers, stored.MaxPlayers)

	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	_, err = h.engine.UpdateSettings(ctx, sid, ann.ID, services.SettingsPatch{Rounds: &rounds})
	assert.ErrorIs(t, err, services.ErrSessionInProgress)
}

func TestSetReady_EveryoneReadyStartsAfterCountdown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{RoundTimer: 100})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")

	require.NoError(t, h.engine.SetReady(ctx, sid, ann.ID, true))
	assert.Empty(t, broadcasts[services.GameStarting](h.rec, sid))

	require.NoError(t, h.engine.SetReady(ctx, sid, bob.ID, true))
	starting := broadcasts[services.GameStarting](h.rec, sid)
	require.Len(t, starting, 1)
	assert.Positive(t, starting[0].Countdown)

	require.Eventually(t, func() bool {
		return len(broadcasts[services.GameStarted](h.rec, sid)) == 1
	}, waitTimeout, waitTick)
	h.waitRound(t, sid, 1)

	assert.ErrorIs(t, h.engine.SetReady(ctx, sid, ann.ID, false), services.ErrSessionNotWaiting)
}

func TestSetReady_UnreadyCancelsCountdown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")

	require.NoError(t, h.engine.SetReady(ctx, sid, ann.ID, true))
	require.NoError(t, h.engine.SetReady(ctx, sid, bob.ID, true))
	require.NoError(t, h.engine.SetReady(ctx, sid, bob.ID, false))

	time.Sleep(15 * testUnit)
	assert.Empty(t, broadcasts[services.GameStarted](h.rec, sid))
	assert.Equal(t, models.SessionStatusWaiting, h.snapshot(t, sid).Status)

	ready := broadcasts[services.ReadyChanged](h.rec, sid)
	require.Len(t, ready, 3)
	assert.False(t, ready[2].IsReady)
}

func TestSetReady_NewJoinerCancelsCountdown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")
	require.NoError(t, h.engine.SetReady(ctx, sid, ann.ID, true))
	require.NoError(t, h.engine.SetReady(ctx, sid, bob.ID, true))
	h.join(t, sid, "cid")

	time.Sleep(15 * testUnit)
	assert.Empty(t, broadcasts[services.GameStarted](h.rec, sid))
}

func TestChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{RoundTimer: 100})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")

	msg, err := h.engine.SendMessage(ctx, sid, ann.ID, "good luck")
	require.NoError(t, err)
	assert.Equal(t, models.ChatKindChat, msg.Kind)
	assert.Equal(t, "ann", msg.DisplayName)

	_, err = h.engine.SendMessage(ctx, sid, "ghost", "hi")
	assert.ErrorIs(t, err, services.ErrParticipantNotFound)

	reaction, err := h.engine.SendReaction(ctx, sid, bob.ID, services.ReactionRequest{Emoji: "🔥"})
	require.NoError(t, err)
	assert.Nil(t, reaction.RoundID)

	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	h.waitRound(t, sid, 1)
	reaction, err = h.engine.SendReaction(ctx, sid, bob.ID, services.ReactionRequest{Emoji: "👀"})
	require.NoError(t, err)
	assert.NotNil(t, reaction.RoundID)

	assert.Len(t, broadcasts[services.ReactionAdded](h.rec, sid), 2)

	var chat []string
	for _, ev := range broadcasts[services.ChatMessagePosted](h.rec, sid) {
		if ev.Message.Kind == models.ChatKindChat {
			chat = append(chat, ev.Message.Body)
		}
	}
	assert.Equal(t, []string{"good luck"}, chat)
}

func TestResume_RebuildsActiveRoundAfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.createSession(t, services.CreateSessionParams{Rounds: 1, RoundTimer: 300})

	ann := h.join(t, sid, "ann")
	bob := h.join(t, sid, "bob")
	require.NoError(t, h.engine.Start(ctx, sid, ann.ID))
	started := h.waitRound(t, sid, 1)
	v := itemValue(t, started.Item.ID)
	require.NoError(t, h.engine.SubmitGuess(ctx, sid, ann.ID, v))
	h.engine.Shutdown()

	rec := &recorder{}
	engine := services.NewEngine(h.store, h.catalog, rec, nil, services.EngineOptions{TimeUnit: testUnit})
	t.Cleanup(engine.Shutdown)

	snap, err := engine.Snapshot(ctx, sid)
	require.NoError(t, err)
	require.NotNil(t, snap.Round)
	assert.Equal(t, 1, snap.Round.RoundNumber)
	assert.Equal(t, 1, snap.Round.Answered)

	assert.ErrorIs(t, engine.SubmitGuess(ctx, sid, ann.ID, v), services.ErrDuplicateGuess)
	require.NoError(t, engine.SubmitGuess(ctx, sid, bob.ID, v+5))

	require.Eventually(t, func() bool {
		return len(broadcasts[services.GameEnded](rec, sid)) == 1
	}, waitTimeout, waitTick)
	ended := broadcasts[services.RoundEnded](rec, sid)
	require.Len(t, ended, 1)
	assert.Len(t, ended[0].Guesses, 2)
}
