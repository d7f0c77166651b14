package session

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/conflictlab/session-backend/internal/game"
	"github.com/conflictlab/session-backend/internal/protocol"
)

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan protocol.ServerMessage, within time.Duration) protocol.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return protocol.ServerMessage{} // unreachable
	}
}

// helper: receive messages until one of the wanted type arrives
func recvType(t *testing.T, ch <-chan protocol.ServerMessage, typ string, within time.Duration) protocol.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %q", typ)
			}
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", typ)
			return protocol.ServerMessage{} // unreachable
		}
	}
}

func recvNoMsg(t *testing.T, ch <-chan protocol.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			return // closed is fine: no further messages possible
		}
		t.Fatalf("expected no message within %v, got %+v", within, msg)
	case <-time.After(within):
	}
}

func recvView(t *testing.T, s *Session, within time.Duration) View {
	t.Helper()
	reply := make(chan View, 1)
	s.Inbox() <- GetView{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func newSession(t *testing.T, grace time.Duration, onClose func(string)) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, "AB12CD", grace, onClose, zap.NewNop())
}

func join(t *testing.T, s *Session, name string) (game.Player, chan protocol.ServerMessage) {
	t.Helper()
	out := make(chan protocol.ServerMessage, 16)
	reply := make(chan JoinReply, 1)
	s.Inbox() <- Join{PlayerName: name, Outbox: out, Reply: reply}
	jr := <-reply
	if jr.Err != nil {
		t.Fatalf("join %s: %v", name, jr.Err)
	}
	return jr.Player, out
}

// both players ready; returns the per-recipient briefing phase-change messages
func advanceToBriefing(t *testing.T, s *Session, p1, p2 game.Player, out1, out2 chan protocol.ServerMessage) (protocol.ServerMessage, protocol.ServerMessage) {
	t.Helper()
	s.Inbox() <- Ready{PlayerID: p1.ID}
	s.Inbox() <- Ready{PlayerID: p2.ID}
	m1 := recvType(t, out1, protocol.TypePhaseChange, time.Second)
	m2 := recvType(t, out2, protocol.TypePhaseChange, time.Second)
	return m1, m2
}

func advanceToRoleplay(t *testing.T, s *Session, p1, p2 game.Player, out1, out2 chan protocol.ServerMessage) {
	t.Helper()
	advanceToBriefing(t, s, p1, p2, out1, out2)
	s.Inbox() <- BriefingDone{PlayerID: p1.ID}
	s.Inbox() <- BriefingDone{PlayerID: p2.ID}
	recvType(t, out1, protocol.TypePhaseChange, time.Second)
	recvType(t, out2, protocol.TypePhaseChange, time.Second)
}

func TestJoin_AssignsComplementaryRoles(t *testing.T) {
	s := newSession(t, time.Second, nil)
	p1, _ := join(t, s, "Alex")
	p2, _ := join(t, s, "Sam")

	if p1.Role == p2.Role {
		t.Fatalf("expected distinct roles, both got %q", p1.Role)
	}
	if p1.Role != game.RoleAssistant || p2.Role != game.RoleEngineer {
		t.Fatalf("role assignment not join-order-deterministic: %q / %q", p1.Role, p2.Role)
	}

	v := recvView(t, s, time.Second)
	if v.Phase != game.PhaseWaiting {
		t.Fatalf("want phase waiting after join, got %q", v.Phase)
	}
}

func TestJoin_CapacityEnforced(t *testing.T) {
	s := newSession(t, time.Second, nil)
	join(t, s, "Alex")
	join(t, s, "Sam")

	out := make(chan protocol.ServerMessage, 1)
	reply := make(chan JoinReply, 1)
	s.Inbox() <- Join{PlayerName: "Casey", Outbox: out, Reply: reply}
	if jr := <-reply; jr.Err != ErrSessionFull {
		t.Fatalf("want ErrSessionFull, got %v", jr.Err)
	}

	if v := recvView(t, s, time.Second); len(v.Players) != 2 {
		t.Fatalf("roster grew past 2: %d", len(v.Players))
	}
}

func TestJoin_DuplicateNameRejected(t *testing.T) {
	s := newSession(t, time.Second, nil)
	join(t, s, "Alex")

	out := make(chan protocol.ServerMessage, 1)
	reply := make(chan JoinReply, 1)
	s.Inbox() <- Join{PlayerName: "Alex", Outbox: out, Reply: reply}
	if jr := <-reply; jr.Err != ErrNameTaken {
		t.Fatalf("want ErrNameTaken, got %v", jr.Err)
	}
}

func TestJoin_BroadcastsPlayerJoined(t *testing.T) {
	s := newSession(t, time.Second, nil)
	_, out1 := join(t, s, "Alex")
	p2, _ := join(t, s, "Sam")

	msg := recvMsg(t, out1, time.Second)
	if msg.Type != protocol.TypePlayerJoined {
		t.Fatalf("want player-joined, got %q", msg.Type)
	}
	if msg.Player == nil || msg.Player.ID != p2.ID {
		t.Fatalf("player-joined carries wrong player: %+v", msg.Player)
	}
}

func TestReadyGate_RequiresBothPlayers(t *testing.T) {
	s := newSession(t, time.Second, nil)
	p1, out1 := join(t, s, "Alex")
	p2, out2 := join(t, s, "Sam")
	recvMsg(t, out1, time.Second) // drain player-joined

	s.Inbox() <- Ready{PlayerID: p1.ID}

	upd := recvMsg(t, out2, time.Second)
	if upd.Type != protocol.TypePlayerReadyUpdate {
		t.Fatalf("want player-ready-update, got %q", upd.Type)
	}
	recvNoMsg(t, out2, 100*time.Millisecond) // first acknowledger held pending, no phase change

	s.Inbox() <- Ready{PlayerID: p2.ID}
	m1 := recvType(t, out1, protocol.TypePhaseChange, time.Second)
	m2 := recvType(t, out2, protocol.TypePhaseChange, time.Second)

	if m1.Phase != game.PhaseBriefing || m2.Phase != game.PhaseBriefing {
		t.Fatalf("want briefing phase for both, got %q / %q", m1.Phase, m2.Phase)
	}
	if m1.Briefing == nil || m2.Briefing == nil {
		t.Fatalf("phase-change to briefing must carry a briefing")
	}
	if m1.Briefing.Situation == m2.Briefing.Situation {
		t.Fatalf("briefings must be role-partitioned, both recipients got the same one")
	}
	if m1.Scenario == nil || m2.Scenario == nil {
		t.Fatalf("phase-change to briefing must carry the scenario")
	}
}

func TestReadyGate_Commutative(t *testing.T) {
	for _, order := range [][2]int{{0, 1}, {1, 0}} {
		s := newSession(t, time.Second, nil)
		p1, out1 := join(t, s, "Alex")
		p2, out2 := join(t, s, "Sam")
		players := [2]game.Player{p1, p2}

		s.Inbox() <- Ready{PlayerID: players[order[0]].ID}
		s.Inbox() <- Ready{PlayerID: players[order[1]].ID}

		m1 := recvType(t, out1, protocol.TypePhaseChange, time.Second)
		m2 := recvType(t, out2, protocol.TypePhaseChange, time.Second)
		if m1.Phase != game.PhaseBriefing || m2.Phase != game.PhaseBriefing {
			t.Fatalf("order %v: gate did not converge to briefing", order)
		}
	}
}

func TestReady_ToggleOffHoldsGate(t *testing.T) {
	s := newSession(t, time.Second, nil)
	p1, out1 := join(t, s, "Alex")
	p2, out2 := join(t, s, "Sam")

	s.Inbox() <- Ready{PlayerID: p1.ID}
	s.Inbox() <- Ready{PlayerID: p1.ID} // un-ready again
	s.Inbox() <- Ready{PlayerID: p2.ID}

	recvNoMsgOfType(t, out2, protocol.TypePhaseChange, 100*time.Millisecond)

	s.Inbox() <- Ready{PlayerID: p1.ID}
	m := recvType(t, out1, protocol.TypePhaseChange, time.Second)
	if m.Phase != game.PhaseBriefing {
		t.Fatalf("want briefing after both ready, got %q", m.Phase)
	}
}

func recvNoMsgOfType(t *testing.T, ch <-chan protocol.ServerMessage, typ string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Type == typ {
				t.Fatalf("expected no %q within %v, got %+v", typ, within, msg)
			}
		case <-deadline:
			return
		}
	}
}

func TestBriefingGate_RequiresBothAcks(t *testing.T) {
	s := newSession(t, time.Second, nil)
	p1, out1 := join(t, s, "Alex")
	p2, out2 := join(t, s, "Sam")
	advanceToBriefing(t, s, p1, p2, out1, out2)

	s.Inbox() <- BriefingDone{PlayerID: p1.ID}
	recvNoMsgOfType(t, out1, protocol.TypePhaseChange, 100*time.Millisecond)

	s.Inbox() <- BriefingDone{PlayerID: p2.ID}
	m := recvType(t, out1, protocol.TypePhaseChange, time.Second)
	if m.Phase != game.PhaseRoleplay {
		t.Fatalf("want roleplay, got %q", m.Phase)
	}
	if m.Scenario == nil {
		t.Fatalf("roleplay phase-change must carry the scenario")
	}
}

func TestResults_PeerSignalAndAggregation(t *testing.T) {
	s := newSession(t, time.Second, nil)
	p1, out1 := join(t, s, "Alex")
	p2, out2 := join(t, s, "Sam")
	advanceToRoleplay(t, s, p1, p2, out1, out2)

	s.Inbox() <- SubmitResults{PlayerID: p1.ID, Results: game.Results{TotalScore: 5, MaxScore: 9}}

	fin := recvType(t, out2, protocol.TypePlayerFinished, time.Second)
	if fin.PlayerID != p1.ID || fin.PlayerName != "Alex" {
		t.Fatalf("player-finished names wrong player: %+v", fin)
	}
	recvNoMsgOfType(t, out1, protocol.TypePlayerFinished, 100*time.Millisecond)

	s.Inbox() <- SubmitResults{PlayerID: p2.ID, Results: game.Results{TotalScore: 7, MaxScore: 9}}

	m1 := recvType(t, out1, protocol.TypePhaseChange, time.Second)
	if m1.Phase != game.PhaseResults {
		t.Fatalf("want results phase, got %q", m1.Phase)
	}
	if len(m1.AllResults) != 2 {
		t.Fatalf("want exactly 2 aggregated results, got %d", len(m1.AllResults))
	}
	r1, ok := m1.AllResults[p1.ID]
	if !ok {
		t.Fatalf("results not keyed by player id: %+v", m1.AllResults)
	}
	if r1.PlayerName != "Alex" || r1.PlayerRole != p1.Role {
		t.Fatalf("identity fields not normalized: %+v", r1)
	}
	if len(m1.AllBriefings) != 2 {
		t.Fatalf("briefings must be revealed to both at results, got %d", len(m1.AllBriefings))
	}
}

func TestResults_ResubmissionIgnored(t *testing.T) {
	s := newSession(t, time.Second, nil)
	p1, out1 := join(t, s, "Alex")
	p2, out2 := join(t, s, "Sam")
	advanceToRoleplay(t, s, p1, p2, out1, out2)

	s.Inbox() <- SubmitResults{PlayerID: p1.ID, Results: game.Results{TotalScore: 5, MaxScore: 9}}
	s.Inbox() <- SubmitResults{PlayerID: p1.ID, Results: game.Results{TotalScore: 9, MaxScore: 9}}
	s.Inbox() <- SubmitResults{PlayerID: p2.ID, Results: game.Results{TotalScore: 7, MaxScore: 9}}

	m := recvType(t, out1, protocol.TypePhaseChange, time.Second)
	if got := m.AllResults[p1.ID].TotalScore; got != 5 {
		t.Fatalf("resubmission overwrote single-shot results: got %d, want 5", got)
	}
}

func TestLearningGate(t *testing.T) {
	s := newSession(t, time.Second, nil)
	p1, out1 := join(t, s, "Alex")
	p2, out2 := join(t, s, "Sam")
	advanceToRoleplay(t, s, p1, p2, out1, out2)

	s.Inbox() <- SubmitResults{PlayerID: p1.ID, Results: game.Results{TotalScore: 5, MaxScore: 9}}
	s.Inbox() <- SubmitResults{PlayerID: p2.ID, Results: game.Results{TotalScore: 7, MaxScore: 9}}
	recvType(t, out1, protocol.TypePhaseChange, time.Second)
	recvType(t, out2, protocol.TypePhaseChange, time.Second)

	s.Inbox() <- GoToLearning{PlayerID: p1.ID}
	recvNoMsgOfType(t, out2, protocol.TypePhaseChange, 100*time.Millisecond)

	s.Inbox() <- GoToLearning{PlayerID: p2.ID}
	m := recvType(t, out2, protocol.TypePhaseChange, time.Second)
	if m.Phase != game.PhaseLearning {
		t.Fatalf("want learning, got %q", m.Phase)
	}
	if len(m.LearningPoints) == 0 {
		t.Fatalf("learning phase-change must carry learning points")
	}
}

func TestJoin_RejectedOnceInProgress(t *testing.T) {
	s := newSession(t, time.Second, nil)
	p1, out1 := join(t, s, "Alex")
	p2, out2 := join(t, s, "Sam")
	advanceToBriefing(t, s, p1, p2, out1, out2)

	out := make(chan protocol.ServerMessage, 1)
	reply := make(chan JoinReply, 1)
	s.Inbox() <- Join{PlayerName: "Casey", Outbox: out, Reply: reply}
	if jr := <-reply; jr.Err != ErrSessionInProgress {
		t.Fatalf("want ErrSessionInProgress, got %v", jr.Err)
	}
}

func TestDetach_GraceExpiryEndsSession(t *testing.T) {
	closed := make(chan string, 1)
	s := newSession(t, 20*time.Millisecond, func(code string) { closed <- code })
	_, out1 := join(t, s, "Alex")
	p2, out2 := join(t, s, "Sam")

	s.Inbox() <- Detach{PlayerID: p2.ID, Outbox: out2}

	msg := recvType(t, out1, protocol.TypePlayerDisconnected, time.Second)
	if msg.PlayerName != "Sam" {
		t.Fatalf("player-disconnected names %q, want Sam", msg.PlayerName)
	}

	select {
	case code := <-closed:
		if code != "AB12CD" {
			t.Fatalf("onClose got %q", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("session never notified registry of its destruction")
	}
}

func TestDetach_RejoinWithinGraceKeepsSessionAlive(t *testing.T) {
	s := newSession(t, 200*time.Millisecond, nil)
	p1, out1 := join(t, s, "Alex")
	p2, out2 := join(t, s, "Sam")
	m1, _ := advanceToBriefing(t, s, p1, p2, out1, out2)
	originalBriefing := *m1.Briefing

	s.Inbox() <- Detach{PlayerID: p1.ID, Outbox: out1}

	newOut := make(chan protocol.ServerMessage, 16)
	reply := make(chan RejoinReply, 1)
	s.Inbox() <- Rejoin{PlayerName: "Alex", Outbox: newOut, Reply: reply}
	rr := <-reply
	if rr.Err != nil {
		t.Fatalf("rejoin within grace failed: %v", rr.Err)
	}

	snap := rr.Snapshot
	if snap.Type != protocol.TypeRejoinSuccess {
		t.Fatalf("want rejoin-success, got %q", snap.Type)
	}
	if snap.Phase != game.PhaseBriefing {
		t.Fatalf("snapshot phase %q, want briefing", snap.Phase)
	}
	if snap.Briefing == nil || *snap.Briefing != originalBriefing {
		t.Fatalf("snapshot must reproduce the original briefing exactly")
	}
	if len(snap.Players) != 2 || snap.Scenario == nil {
		t.Fatalf("snapshot incomplete: %+v", snap)
	}
	if snap.AllBriefings != nil {
		t.Fatalf("briefings must stay private before the results reveal")
	}

	// grace timer must not fire for the reattached player
	recvNoMsgOfType(t, out2, protocol.TypePlayerDisconnected, 300*time.Millisecond)
}

func TestRejoin_UnknownNameFails(t *testing.T) {
	s := newSession(t, time.Second, nil)
	join(t, s, "Alex")

	out := make(chan protocol.ServerMessage, 1)
	reply := make(chan RejoinReply, 1)
	s.Inbox() <- Rejoin{PlayerName: "alex", Outbox: out, Reply: reply} // case-sensitive
	if rr := <-reply; rr.Err != ErrUnknownPlayer {
		t.Fatalf("want ErrUnknownPlayer, got %v", rr.Err)
	}
}

func TestRejoin_SupersedesPreviousBinding(t *testing.T) {
	s := newSession(t, time.Second, nil)
	p1, out1 := join(t, s, "Alex")
	p2, out2 := join(t, s, "Sam")
	_ = out2

	newOut := make(chan protocol.ServerMessage, 16)
	reply := make(chan RejoinReply, 1)
	s.Inbox() <- Rejoin{PlayerName: "Alex", Outbox: newOut, Reply: reply}
	if rr := <-reply; rr.Err != nil {
		t.Fatalf("rejoin: %v", rr.Err)
	}

	// old binding is closed, new one receives broadcasts
	recvClosed(t, out1, time.Second)
	s.Inbox() <- Ready{PlayerID: p1.ID}
	if msg := recvType(t, newOut, protocol.TypePlayerReadyUpdate, time.Second); len(msg.Players) != 2 {
		t.Fatalf("superseding outbox not receiving broadcasts: %+v", msg)
	}

	// a Detach from the stale connection must not touch the new binding
	s.Inbox() <- Detach{PlayerID: p1.ID, Outbox: out1}
	s.Inbox() <- Ready{PlayerID: p2.ID} // un-gate check: still broadcasting
	recvType(t, newOut, protocol.TypePlayerReadyUpdate, time.Second)
}

func recvClosed(t *testing.T, ch <-chan protocol.ServerMessage, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("expected channel to close within %v", within)
		}
	}
}

func TestHandshake_FailsFastOnDestroyedSession(t *testing.T) {
	s := newSession(t, 0, nil) // zero grace: a detach destroys immediately
	p1, out1 := join(t, s, "Alex")

	s.Inbox() <- Detach{PlayerID: p1.ID, Outbox: out1}
	recvClosed(t, out1, time.Second)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session actor did not exit after zero-grace detach")
	}

	// a joiner who looked the session up just before it died must still get
	// an answer, never silence
	out := make(chan protocol.ServerMessage, 1)
	if jr := s.JoinSync("Sam", out); jr.Err != ErrSessionClosed {
		t.Fatalf("join on destroyed session: want ErrSessionClosed, got %v", jr.Err)
	}
	if rr := s.RejoinSync("Alex", out); rr.Err != ErrSessionClosed {
		t.Fatalf("rejoin on destroyed session: want ErrSessionClosed, got %v", rr.Err)
	}

	// fire-and-forget sends must not wedge either, even past the inbox buffer
	done := make(chan struct{})
	go func() {
		for i := 0; i < 256; i++ {
			s.Post(Ready{PlayerID: p1.ID})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("posting to a destroyed session blocked")
	}
}

func TestDetach_SoloWaitingDiesSilently(t *testing.T) {
	closed := make(chan string, 1)
	s := newSession(t, 10*time.Millisecond, func(code string) { closed <- code })
	p1, out1 := join(t, s, "Alex")

	s.Inbox() <- Detach{PlayerID: p1.ID, Outbox: out1}

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("abandoned solo session was not destroyed")
	}
}
