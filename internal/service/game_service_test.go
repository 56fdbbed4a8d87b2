package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameService_ChallengePairsTwoUsers(t *testing.T) {
	h := newHarness(t)
	h.connect("t1", "u1")
	h.connect("t2", "u2")

	h.send("t1", models.EventChallenge, nil)
	assert.Equal(t, 1, h.pool.Size())
	_, queued := h.transport.last("t1", models.EventMatchmakingQueued)
	assert.True(t, queued)
	assert.Equal(t, models.StatusMatchmaking, h.presence.GetStatus("u1"))

	h.send("t2", models.EventChallenge, nil)
	assert.Equal(t, 0, h.pool.Size())

	ev1, ok := h.transport.last("t1", models.EventMatchFound)
	require.True(t, ok)
	ev2, ok := h.transport.last("t2", models.EventMatchFound)
	require.True(t, ok)

	p1 := ev1.Payload.(models.MatchFoundPayload)
	p2 := ev2.Payload.(models.MatchFoundPayload)
	assert.True(t, p1.IsMaster)
	assert.False(t, p2.IsMaster)
	assert.Equal(t, "u2", p1.Opponent.UserID)
	assert.Equal(t, "u1", p2.Opponent.UserID)
	assert.Equal(t, RoomKey("u1", "u2"), p1.RoomKey)
	assert.True(t, h.transport.inRoom(p1.RoomKey, "t1"))
	assert.True(t, h.transport.inRoom(p1.RoomKey, "t2"))

	assert.Equal(t, models.StatusBusy, h.presence.GetStatus("u1"))
	assert.Equal(t, models.StatusBusy, h.presence.GetStatus("u2"))
	assert.False(t, h.sessions.HasActiveSession("u1"), "session waits for startGame")
}

func TestGameService_InviteThenDecline(t *testing.T) {
	h := newHarness(t)
	h.connect("ta", "alice")
	h.connect("tb", "bob")
	h.send("tb", models.EventUpdateStatus, models.UpdateStatusRequest{Status: models.StatusMatchmaking})

	h.send("ta", models.EventSendInvitation, models.InvitationRequest{UserID: "bob"})

	ev, ok := h.transport.last("tb", models.EventInvitationReceived)
	require.True(t, ok)
	assert.Equal(t, "alice", ev.Payload.(models.InvitationPayload).Inviter.UserID)
	assert.Equal(t, models.StatusBusy, h.presence.GetStatus("alice"))
	assert.Equal(t, models.StatusBusy, h.presence.GetStatus("bob"))

	h.send("tb", models.EventDeclineInvitation, models.InvitationRequest{UserID: "alice"})

	declined, ok := h.transport.last("ta", models.EventInvitationDeclined)
	require.True(t, ok)
	assert.Equal(t, "bob", declined.Payload.(models.InvitationDeclinedPayload).UserID)
	assert.Equal(t, models.StatusOnline, h.presence.GetStatus("alice"))
	assert.Equal(t, models.StatusOnline, h.presence.GetStatus("bob"))
	assert.Equal(t, 0, h.sessions.Count())
	assert.Equal(t, 0, h.matchmaking.PendingCount())

	_, ok = h.peers.FindInvitation("alice", "bob")
	assert.False(t, ok)
}

func TestGameService_InviteRequiresMatchmakingTarget(t *testing.T) {
	h := newHarness(t)
	h.connect("ta", "alice")
	h.connect("tb", "bob")

	h.send("ta", models.EventSendInvitation, models.InvitationRequest{UserID: "bob"})

	ev, ok := h.transport.last("ta", models.EventError)
	require.True(t, ok)
	assert.Equal(t, models.EventSendInvitation, ev.Payload.(models.ErrorPayload).Event)
	assert.Empty(t, h.transport.eventsTo("tb", models.EventInvitationReceived))
	assert.Equal(t, models.StatusOnline, h.presence.GetStatus("bob"))

	h.send("ta", models.EventCheckCanInvite, models.InvitationRequest{UserID: "bob"})
	res, ok := h.transport.last("ta", models.EventCanInviteResult)
	require.True(t, ok)
	assert.False(t, res.Payload.(models.InviteEligibility).CanInvite)
}

func TestGameService_AcceptPaths(t *testing.T) {
	t.Run("one sided accept completes immediately", func(t *testing.T) {
		h := newHarness(t)
		h.connect("ta", "alice")
		h.connect("tb", "bob")
		h.send("tb", models.EventUpdateStatus, models.UpdateStatusRequest{Status: models.StatusMatchmaking})
		h.send("ta", models.EventSendInvitation, models.InvitationRequest{UserID: "bob"})

		h.send("tb", models.EventAcceptInvitation, models.AcceptInvitationRequest{InviterID: "alice", IsInvitation: true})

		pm, ok := h.matchmaking.PendingFor("bob")
		require.True(t, ok)
		assert.Equal(t, "alice", pm.MasterID)

		ev, ok := h.transport.last("ta", models.EventInvitationAccepted)
		require.True(t, ok)
		p := ev.Payload.(models.InvitationAcceptedPayload)
		assert.True(t, p.IsMaster)
		assert.False(t, p.WaitingForOpponent)
		assert.Equal(t, RoomKey("alice", "bob"), p.RoomKey)
	})

	t.Run("mutual accept waits for both", func(t *testing.T) {
		h := newHarness(t)
		h.connect("ta", "alice")
		h.connect("tb", "bob")
		h.send("tb", models.EventUpdateStatus, models.UpdateStatusRequest{Status: models.StatusMatchmaking})
		h.send("ta", models.EventSendInvitation, models.InvitationRequest{UserID: "bob"})

		h.send("tb", models.EventAcceptInvitation, models.AcceptInvitationRequest{InviterID: "alice"})
		_, ok := h.matchmaking.PendingFor("bob")
		assert.False(t, ok)
		waiting, ok := h.transport.last("ta", models.EventInvitationAccepted)
		require.True(t, ok)
		assert.True(t, waiting.Payload.(models.InvitationAcceptedPayload).WaitingForOpponent)

		h.send("ta", models.EventAcceptInvitation, models.AcceptInvitationRequest{InviterID: "alice"})
		pm, ok := h.matchmaking.PendingFor("alice")
		require.True(t, ok)
		assert.Equal(t, "bob", pm.OpponentOf("alice"))
		_, ok = h.peers.FindInvitation("bob", "alice")
		assert.False(t, ok, "edge is cleared once the match is agreed")
	})

	t.Run("accept without invitation", func(t *testing.T) {
		h := newHarness(t)
		h.connect("tb", "bob")
		h.send("tb", models.EventAcceptInvitation, models.AcceptInvitationRequest{InviterID: "alice", IsInvitation: true})

		ev, ok := h.transport.last("tb", models.EventError)
		require.True(t, ok)
		assert.Equal(t, ErrNoInvitation.Error(), ev.Payload.(models.ErrorPayload).Reason)
	})
}

func TestGameService_StartGame(t *testing.T) {
	h := newHarness(t)
	h.connect("t1", "u1")
	h.connect("t2", "u2")
	h.send("t1", models.EventChallenge, nil)
	h.send("t2", models.EventChallenge, nil)

	h.send("t2", models.EventStartGame, models.DeckParams{Count: 2})
	ev, ok := h.transport.last("t2", models.EventError)
	require.True(t, ok)
	assert.Equal(t, ErrNotMaster.Error(), ev.Payload.(models.ErrorPayload).Reason)

	h.send("t1", models.EventStartGame, models.DeckParams{CategoryIDs: []uint{4}, UnsolvedOnly: true})

	require.Len(t, h.decks.calls, 1)
	assert.Equal(t, 10, h.decks.calls[0].Count)
	assert.ElementsMatch(t, []string{"u1", "u2"}, h.decks.calls[0].UserIDs)

	for _, tid := range []string{"t1", "t2"} {
		ev, ok := h.transport.last(tid, models.EventGameStarted)
		require.True(t, ok, tid)
		p := ev.Payload.(models.GameStartedPayload)
		assert.Len(t, p.Deck, 2)
		assert.Equal(t, tid == "t1", p.IsMaster)
	}
	assert.Equal(t, models.StatusInGame, h.presence.GetStatus("u1"))
	assert.Equal(t, models.StatusInGame, h.presence.GetStatus("u2"))
	assert.Equal(t, 0, h.matchmaking.PendingCount())
	assert.Equal(t, 1, h.sessions.Count())
}

func TestGameService_StartGameSetupFailure(t *testing.T) {
	tests := []struct {
		name string
		deck models.Deck
		err  error
	}{
		{name: "no cases", deck: nil},
		{name: "only empty cases", deck: testDeck(0, 0)},
		{name: "content provider error", err: errors.New("timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.decks.deck = tt.deck
			h.decks.err = tt.err
			h.connect("t1", "u1")
			h.connect("t2", "u2")
			h.send("t1", models.EventChallenge, nil)
			h.send("t2", models.EventChallenge, nil)

			h.send("t1", models.EventStartGame, models.DeckParams{})

			for _, tid := range []string{"t1", "t2"} {
				_, ok := h.transport.last(tid, models.EventGameSetupFailed)
				assert.True(t, ok, tid)
				assert.Empty(t, h.transport.eventsTo(tid, models.EventGameStarted))
			}
			assert.Empty(t, h.transport.eventsTo("t1", models.EventError))
			assert.Equal(t, 0, h.sessions.Count())
			assert.False(t, h.sessions.HasActiveSession("u1"))

			_, pending := h.matchmaking.PendingFor("u1")
			assert.True(t, pending, "master may retry")
		})
	}
}

func TestGameService_StartGameReachesReplacementTransport(t *testing.T) {
	t.Run("tab opened after pairing", func(t *testing.T) {
		h := newHarness(t)
		h.connect("t1", "u1")
		h.connect("t2", "u2")
		h.send("t1", models.EventChallenge, nil)
		h.send("t2", models.EventChallenge, nil)

		h.connect("t2b", "u2")
		h.disconnect("t2")
		_, pending := h.matchmaking.PendingFor("u2")
		require.True(t, pending)

		h.send("t1", models.EventStartGame, models.DeckParams{Count: 2})

		ev, ok := h.transport.last("t2b", models.EventGameStarted)
		require.True(t, ok)
		assert.False(t, ev.Payload.(models.GameStartedPayload).IsMaster)
		ms, err := h.sessions.FindSessionByUserID("u2")
		require.NoError(t, err)
		assert.True(t, h.transport.inRoom(ms.RoomKey, "t2b"))
		assert.Equal(t, models.StatusInGame, h.presence.GetStatus("u2"))
	})

	t.Run("tab open before pairing", func(t *testing.T) {
		h := newHarness(t)
		h.connect("t1", "u1")
		h.connect("t2", "u2")
		h.connect("t2b", "u2")
		h.send("t1", models.EventChallenge, nil)
		h.send("t2", models.EventChallenge, nil)
		h.disconnect("t2")

		h.send("t1", models.EventStartGame, models.DeckParams{Count: 2})

		_, ok := h.transport.last("t2b", models.EventGameStarted)
		assert.True(t, ok)
	})

	t.Run("setup failure", func(t *testing.T) {
		h := newHarness(t)
		h.decks.deck = nil
		h.connect("t1", "u1")
		h.connect("t2", "u2")
		h.send("t1", models.EventChallenge, nil)
		h.send("t2", models.EventChallenge, nil)
		h.connect("t2b", "u2")
		h.disconnect("t2")

		h.send("t1", models.EventStartGame, models.DeckParams{})

		_, ok := h.transport.last("t2b", models.EventGameSetupFailed)
		assert.True(t, ok)
		_, ok = h.transport.last("t1", models.EventGameSetupFailed)
		assert.True(t, ok)
	})
}

func TestGameService_NewInvitationWithdrawsPrevious(t *testing.T) {
	h := newHarness(t)
	h.connect("ta", "alice")
	h.connect("tb", "bob")
	h.connect("tc", "carol")
	h.send("tb", models.EventUpdateStatus, models.UpdateStatusRequest{Status: models.StatusMatchmaking})
	h.send("tc", models.EventUpdateStatus, models.UpdateStatusRequest{Status: models.StatusMatchmaking})

	h.send("ta", models.EventSendInvitation, models.InvitationRequest{UserID: "bob"})
	h.send("ta", models.EventSendInvitation, models.InvitationRequest{UserID: "carol"})
	assert.Empty(t, h.transport.eventsTo("ta", models.EventError))

	ev, ok := h.transport.last("tb", models.EventInvitationDeclined)
	require.True(t, ok)
	p := ev.Payload.(models.InvitationDeclinedPayload)
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, "cancelled", p.Reason)
	assert.Equal(t, models.StatusOnline, h.presence.GetStatus("bob"))
	assert.Equal(t, models.StatusBusy, h.presence.GetStatus("carol"))

	_, ok = h.peers.FindInvitation("bob", "alice")
	assert.False(t, ok)
	_, ok = h.peers.FindInvitation("carol", "alice")
	assert.True(t, ok)

	h.send("tb", models.EventAcceptInvitation, models.AcceptInvitationRequest{InviterID: "alice", IsInvitation: true})
	errEv, ok := h.transport.last("tb", models.EventError)
	require.True(t, ok)
	assert.Equal(t, ErrNoInvitation.Error(), errEv.Payload.(models.ErrorPayload).Reason)

	h.send("tc", models.EventAcceptInvitation, models.AcceptInvitationRequest{InviterID: "alice", IsInvitation: true})
	pm, ok := h.matchmaking.PendingFor("alice")
	require.True(t, ok)
	assert.Equal(t, RoomKey("alice", "carol"), pm.RoomKey)

	h.disconnect("ta")
	assert.Empty(t, h.transport.eventsTo("tb", models.EventOpponentLeft))
}

func TestGameService_RelayAndAdvance(t *testing.T) {
	h := newHarness(t)
	h.connect("t1", "u1")
	h.connect("t2", "u2")
	h.startMatch("t1", "t2")

	rec := models.AnswerRecord{CaseID: 1, QuestionID: 1, SelectedChoiceIndex: 0, IsCorrect: true, PointsAwarded: 10}
	h.send("t1", models.EventSubmitAnswer, models.SubmitAnswerRequest{Record: rec, Stats: models.AggregateStats{TotalPoints: 10}})

	ev, ok := h.transport.last("t2", models.EventOpponentAnswered)
	require.True(t, ok)
	assert.Equal(t, "u1", ev.Payload.(models.OpponentAnsweredPayload).UserID)
	assert.Empty(t, h.transport.eventsTo("t1", models.EventOpponentAnswered))

	// Both clients fire advance for the same question.
	h.send("t1", models.EventRequestAdvance, nil)
	h.send("t2", models.EventRequestAdvance, nil)

	for _, tid := range []string{"t1", "t2"} {
		evs := h.transport.eventsTo(tid, models.EventQuestionAdvanced)
		require.Len(t, evs, 1, tid)
		p := evs[0].Payload.(models.QuestionAdvancedPayload)
		assert.Equal(t, 2, p.QuestionNumber)
		assert.False(t, p.Finished)
		assert.NotZero(t, p.Timestamp)
	}
}

func TestGameService_OpponentResolutionSurvivesReconnect(t *testing.T) {
	h := newHarness(t)
	h.connect("ta1", "alice")
	h.connect("tb", "bob")
	ms := h.startMatch("ta1", "tb")

	h.disconnect("ta1")
	_, ok := h.transport.last("tb", models.EventOpponentDisconnected)
	assert.True(t, ok)
	state, err := h.sessions.GetConnectionState(ms.RoomKey, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.ConnDisconnected, state)
	assert.Equal(t, models.StatusOffline, h.presence.GetStatus("alice"))

	h.connect("ta2", "alice")

	restored, ok := h.transport.last("ta2", models.EventSessionRestored)
	require.True(t, ok)
	snap := restored.Payload.(models.SessionSnapshot)
	assert.Equal(t, ms.ID, snap.SessionID)
	assert.Equal(t, "bob", snap.OpponentID)
	_, ok = h.transport.last("tb", models.EventOpponentReconnected)
	assert.True(t, ok)
	assert.Equal(t, models.StatusInGame, h.presence.GetStatus("alice"))

	rec := models.AnswerRecord{CaseID: 1, QuestionID: 1, IsCorrect: true}
	h.send("tb", models.EventSubmitAnswer, models.SubmitAnswerRequest{Record: rec})

	ev, ok := h.transport.last("ta2", models.EventOpponentAnswered)
	require.True(t, ok)
	assert.Equal(t, "bob", ev.Payload.(models.OpponentAnsweredPayload).UserID)
}

func TestGameService_StaleCachedOpponentIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.connect("ta", "alice")
	h.connect("tb", "bob")
	h.startMatch("ta", "tb")

	// Bob's cached hint points at a transport that now belongs to someone else.
	h.peers.Update("tb", func(p *Peer) {
		p.RoomKey = ""
		p.OpponentTransportID = "tx"
	})
	h.transport.disconnect("ta")
	h.game.OnDisconnect("ta")
	h.connect("tx", "mallory")

	_, ok := h.relay.ResolveOpponent(Caller{TransportID: "tb", UserID: "bob"})
	assert.False(t, ok)
}

func TestGameService_FinishWithTieRecordsDraw(t *testing.T) {
	h := newHarness(t)
	h.connect("t1", "u1")
	h.connect("t2", "u2")
	ms := h.startMatch("t1", "t2")

	record := models.FinalRecord{TotalPoints: 40, CorrectAnswers: 4, WrongAnswers: 1, TimeSpentMs: 9000}
	h.send("t1", models.EventReportFinished, models.ReportFinishedRequest{SessionID: ms.ID, Record: record})
	assert.Empty(t, h.transport.eventsTo("t1", models.EventMatchResult))
	assert.True(t, h.sessions.HasActiveSession("u1"))

	h.send("t2", models.EventReportFinished, models.ReportFinishedRequest{SessionID: ms.ID, Record: record})

	rows := h.results.rowsFor(ms.ID)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Nil(t, r.HasWon, "draw leaves hasWon null for %s", r.UserID)
	}

	for _, tid := range []string{"t1", "t2"} {
		ev, ok := h.transport.last(tid, models.EventMatchResult)
		require.True(t, ok, tid)
		outcome := ev.Payload.(*models.MatchOutcome)
		assert.True(t, outcome.Draw)
		assert.Nil(t, outcome.WinnerID)
	}

	assert.False(t, h.sessions.HasActiveSession("u1"))
	assert.Equal(t, models.StatusOnline, h.presence.GetStatus("u1"))
	assert.Equal(t, models.StatusOnline, h.presence.GetStatus("u2"))
	assert.Equal(t, 40, h.results.stats["u2"].TotalPoints)
}

func TestGameService_FinishWithWinner(t *testing.T) {
	h := newHarness(t)
	h.connect("t1", "u1")
	h.connect("t2", "u2")
	ms := h.startMatch("t1", "t2")

	h.send("t1", models.EventReportFinished, models.ReportFinishedRequest{SessionID: ms.ID, Record: models.FinalRecord{TotalPoints: 30}})
	h.send("t2", models.EventReportFinished, models.ReportFinishedRequest{SessionID: ms.ID, Record: models.FinalRecord{TotalPoints: 50}})

	won := map[string]*bool{}
	for _, r := range h.results.rowsFor(ms.ID) {
		won[r.UserID] = r.HasWon
	}
	require.NotNil(t, won["u1"])
	require.NotNil(t, won["u2"])
	assert.False(t, *won["u1"])
	assert.True(t, *won["u2"])

	ev, ok := h.transport.last("t1", models.EventMatchResult)
	require.True(t, ok)
	outcome := ev.Payload.(*models.MatchOutcome)
	require.NotNil(t, outcome.WinnerID)
	assert.Equal(t, "u2", *outcome.WinnerID)
}

func TestGameService_FinishPersistenceFailureAllowsRetry(t *testing.T) {
	h := newHarness(t)
	h.connect("t1", "u1")
	h.connect("t2", "u2")
	ms := h.startMatch("t1", "t2")

	h.results.saveErr = errors.New("connection reset")
	h.send("t1", models.EventReportFinished, models.ReportFinishedRequest{SessionID: ms.ID, Record: models.FinalRecord{TotalPoints: 30}})
	_, ok := h.transport.last("t1", models.EventError)
	require.True(t, ok)

	h.results.saveErr = nil
	h.send("t1", models.EventReportFinished, models.ReportFinishedRequest{SessionID: ms.ID, Record: models.FinalRecord{TotalPoints: 30}})
	assert.Len(t, h.results.rowsFor(ms.ID), 1)
}

func TestGameService_FinishAfterSessionRemoved(t *testing.T) {
	h := newHarness(t)
	h.connect("t1", "u1")
	h.connect("t2", "u2")
	ms := h.startMatch("t1", "t2")

	h.results.afterSave = func(*models.MatchResult) {
		h.sessions.CleanupSession(ms.RoomKey)
	}
	h.send("t1", models.EventReportFinished, models.ReportFinishedRequest{SessionID: ms.ID, Record: models.FinalRecord{TotalPoints: 30}})

	assert.Empty(t, h.transport.eventsTo("t1", models.EventError))
	assert.Empty(t, h.transport.eventsTo("t1", models.EventMatchResult))
	assert.Len(t, h.results.rowsFor(ms.ID), 1)
	assert.False(t, h.sessions.HasActiveSession("u1"))
}

func TestGameService_IngameStatusIsLocked(t *testing.T) {
	h := newHarness(t)
	h.connect("t1", "u1")
	h.connect("t2", "u2")
	h.startMatch("t1", "t2")

	// A second tab of u1 tries to enter matchmaking.
	h.connect("t1b", "u1")
	h.send("t1b", models.EventUpdateStatus, models.UpdateStatusRequest{Status: models.StatusMatchmaking})

	ev, ok := h.transport.last("t1b", models.EventError)
	require.True(t, ok)
	assert.Equal(t, ErrIngameLocked.Error(), ev.Payload.(models.ErrorPayload).Reason)
	assert.Equal(t, models.StatusInGame, h.presence.GetStatus("u1"))
}

func TestGameService_AwayBackAndLeave(t *testing.T) {
	h := newHarness(t)
	h.connect("t1", "u1")
	h.connect("t2", "u2")
	ms := h.startMatch("t1", "t2")

	h.send("t1", models.EventUserAway, nil)
	_, ok := h.transport.last("t2", models.EventOpponentAway)
	assert.True(t, ok)
	state, _ := h.sessions.GetConnectionState(ms.RoomKey, "u1")
	assert.Equal(t, models.ConnAway, state)

	h.send("t1", models.EventUserBack, nil)
	_, ok = h.transport.last("t2", models.EventOpponentBack)
	assert.True(t, ok)

	h.send("t2", models.EventLeaveMatch, nil)
	left, ok := h.transport.last("t1", models.EventOpponentLeft)
	require.True(t, ok)
	assert.Equal(t, "u2", left.Payload.(models.OpponentPayload).UserID)
	assert.Equal(t, 0, h.sessions.Count())
	assert.Equal(t, models.StatusOnline, h.presence.GetStatus("u1"))
	assert.False(t, h.transport.inRoom(ms.RoomKey, "t1"))

	// Away outside a match is ignored.
	h.send("t1", models.EventUserAway, nil)
	assert.Empty(t, h.transport.eventsTo("t1", models.EventError))
}

func TestGameService_DisconnectTearsDownInvitation(t *testing.T) {
	h := newHarness(t)
	h.connect("ta", "alice")
	h.connect("tb", "bob")
	h.send("tb", models.EventUpdateStatus, models.UpdateStatusRequest{Status: models.StatusMatchmaking})
	h.send("ta", models.EventSendInvitation, models.InvitationRequest{UserID: "bob"})

	h.disconnect("ta")

	ev, ok := h.transport.last("tb", models.EventInvitationDeclined)
	require.True(t, ok)
	assert.Equal(t, "disconnected", ev.Payload.(models.InvitationDeclinedPayload).Reason)
	assert.Equal(t, models.StatusOnline, h.presence.GetStatus("bob"))
	assert.Equal(t, models.StatusOffline, h.presence.GetStatus("alice"))
}

func TestGameService_FriendStatusFanOut(t *testing.T) {
	h := newHarness(t)
	h.friends.graph["alice"] = []string{"bob"}
	h.connect("tb", "bob")

	h.connect("ta", "alice")
	h.presence.WaitNotifications()

	ev, ok := h.transport.last("tb", models.EventFriendStatusChanged)
	require.True(t, ok)
	p := ev.Payload.(models.FriendStatusPayload)
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, models.StatusOnline, p.Status)

	h.send("tb", models.EventGetFriendsStatus, models.FriendsStatusRequest{UserIDs: []string{"alice", "zed"}})
	st, ok := h.transport.last("tb", models.EventFriendsStatus)
	require.True(t, ok)
	assert.Equal(t, models.StatusOffline, st.Payload.(models.FriendsStatusPayload).Statuses["zed"])
}

func TestGameService_HandlerBoundary(t *testing.T) {
	t.Run("unknown event", func(t *testing.T) {
		h := newHarness(t)
		h.connect("t1", "u1")
		h.send("t1", "teleport", nil)

		ev, ok := h.transport.last("t1", models.EventError)
		require.True(t, ok)
		assert.Equal(t, "teleport", ev.Payload.(models.ErrorPayload).Event)
	})

	t.Run("malformed payload", func(t *testing.T) {
		h := newHarness(t)
		h.connect("t1", "u1")
		h.game.Handle(context.Background(), "t1", models.EventSendInvitation, []byte(`{"userId":`))

		_, ok := h.transport.last("t1", models.EventError)
		assert.True(t, ok)
	})

	t.Run("panic is recovered", func(t *testing.T) {
		h := newHarness(t)
		h.decks.panics = true
		h.connect("t1", "u1")
		h.connect("t2", "u2")
		h.send("t1", models.EventChallenge, nil)
		h.send("t2", models.EventChallenge, nil)

		assert.NotPanics(t, func() {
			h.send("t1", models.EventStartGame, nil)
		})
		ev, ok := h.transport.last("t1", models.EventError)
		require.True(t, ok)
		assert.Equal(t, "internal error", ev.Payload.(models.ErrorPayload).Reason)
	})

	t.Run("answer without session", func(t *testing.T) {
		h := newHarness(t)
		h.connect("t1", "u1")
		h.send("t1", models.EventSubmitAnswer, models.SubmitAnswerRequest{})

		ev, ok := h.transport.last("t1", models.EventError)
		require.True(t, ok)
		assert.Equal(t, ErrSessionNotFound.Error(), ev.Payload.(models.ErrorPayload).Reason)
	})
}

func TestGameService_SweepReleasesPlayers(t *testing.T) {
	h := newHarness(t)
	h.connect("t1", "u1")
	h.connect("t2", "u2")
	h.startMatch("t1", "t2")

	h.sessions.now = func() time.Time { return time.Now().Add(5 * time.Hour) }
	sweeper := NewSweeper(h.sessions, h.game, 4*time.Hour, time.Minute, h.game.logger)
	assert.Equal(t, 1, sweeper.SweepSessions())

	_, ok := h.transport.last("t1", models.EventOpponentLeft)
	assert.True(t, ok)
	assert.Equal(t, models.StatusOnline, h.presence.GetStatus("u2"))
	assert.Equal(t, 0, h.game.Stats().ActiveSessions)
}
