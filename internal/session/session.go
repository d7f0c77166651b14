// Package session implements the authoritative per-session state machine.
// One goroutine owns each session; every mutation arrives as a message on the
// inbox, so the two players' actions never interleave partial updates.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conflictlab/session-backend/internal/game"
	"github.com/conflictlab/session-backend/internal/metrics"
	"github.com/conflictlab/session-backend/internal/protocol"
)

var ErrSessionFull = errors.New("session is full")
var ErrSessionInProgress = errors.New("session already in progress")
var ErrNameTaken = errors.New("that name is already taken in this session")
var ErrUnknownPlayer = errors.New("no matching player in this session")
var ErrSessionClosed = errors.New("session closed")

type Msg interface{ isSessionMsg() }

// Join adds a player. The registry sends the creator's Join itself; the ws
// layer sends the second player's.
type Join struct {
	PlayerName string
	Outbox     chan protocol.ServerMessage
	Reply      chan JoinReply
}

type JoinReply struct {
	Player  game.Player
	Players []game.Player
	Err     error
}

// Rejoin rebinds an existing player identity to a new transport connection.
// A rejoin for a still-attached player silently supersedes the old binding.
type Rejoin struct {
	PlayerName string
	Outbox     chan protocol.ServerMessage
	Reply      chan RejoinReply
}

type RejoinReply struct {
	Snapshot protocol.ServerMessage
	Err      error
}

type Ready struct{ PlayerID string }

type BriefingDone struct{ PlayerID string }

type SubmitResults struct {
	PlayerID string
	Results  game.Results
}

type GoToLearning struct{ PlayerID string }

// Detach reports a lost transport connection. Outbox identifies the binding
// so a superseded connection cannot detach its replacement.
type Detach struct {
	PlayerID string
	Outbox   chan protocol.ServerMessage
}

type graceExpired struct {
	PlayerID string
	Gen      int
}

func (graceExpired) isSessionMsg() {}

type GetView struct {
	Reply chan View
}

type Shutdown struct{}

func (Join) isSessionMsg()          {}
func (Rejoin) isSessionMsg()        {}
func (Ready) isSessionMsg()         {}
func (BriefingDone) isSessionMsg()  {}
func (SubmitResults) isSessionMsg() {}
func (GoToLearning) isSessionMsg()  {}
func (Detach) isSessionMsg()        {}
func (GetView) isSessionMsg()       {}
func (Shutdown) isSessionMsg()      {}

// View reflects internal state without data races. Test-only.
type View struct {
	Code        string
	Phase       game.Phase
	Players     []game.Player
	NumAttached int
	NumResults  int
}

type playerState struct {
	player   game.Player
	outbox   chan protocol.ServerMessage // nil while detached
	attached bool
	gen      int // grace timer generation; stale fires are dropped
}

type Session struct {
	inbox  chan Msg
	code   string
	ctx    context.Context
	cancel context.CancelFunc

	phase     game.Phase
	players   []*playerState
	scenario  *game.Scenario
	briefings map[game.Role]game.Briefing
	results   map[string]game.Results
	learning  []game.LearningPoint

	briefingAck map[string]bool
	learningAck map[string]bool

	grace   time.Duration
	onClose func(code string)
	closed  bool
	log     *zap.Logger
}

// New starts a session actor in the lobby phase. onClose fires once when the
// session destroys itself (disconnect expiry), not on registry shutdown.
func New(parent context.Context, code string, grace time.Duration, onClose func(code string), log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:       make(chan Msg, 64),
		code:        code,
		ctx:         ctx,
		cancel:      cancel,
		phase:       game.PhaseLobby,
		results:     make(map[string]game.Results),
		briefingAck: make(map[string]bool),
		learningAck: make(map[string]bool),
		grace:       grace,
		onClose:     onClose,
		log:         log.With(zap.String("session", code)),
	}
	go s.loop()
	return s
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) Code() string { return s.code }

// Done closes when the session actor has exited. Senders select on it so a
// session that destroyed itself between lookup and delivery cannot wedge them.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Post delivers a fire-and-forget message, dropping it if the actor exited.
func (s *Session) Post(m Msg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

// JoinSync runs the join handshake. Unlike a bare inbox send it cannot hang
// against a dead actor: the caller gets ErrSessionClosed instead of silence.
func (s *Session) JoinSync(playerName string, outbox chan protocol.ServerMessage) JoinReply {
	reply := make(chan JoinReply, 1)
	select {
	case s.inbox <- Join{PlayerName: playerName, Outbox: outbox, Reply: reply}:
	case <-s.ctx.Done():
		return JoinReply{Err: ErrSessionClosed}
	}
	select {
	case r := <-reply:
		return r
	case <-s.ctx.Done():
		// the actor may have answered just before exiting
		select {
		case r := <-reply:
			return r
		default:
			return JoinReply{Err: ErrSessionClosed}
		}
	}
}

// RejoinSync mirrors JoinSync for the reconnect handshake, so even a session
// that just destroyed itself yields a user-visible rejoin failure.
func (s *Session) RejoinSync(playerName string, outbox chan protocol.ServerMessage) RejoinReply {
	reply := make(chan RejoinReply, 1)
	select {
	case s.inbox <- Rejoin{PlayerName: playerName, Outbox: outbox, Reply: reply}:
	case <-s.ctx.Done():
		return RejoinReply{Err: ErrSessionClosed}
	}
	select {
	case r := <-reply:
		return r
	case <-s.ctx.Done():
		select {
		case r := <-reply:
			return r
		default:
			return RejoinReply{Err: ErrSessionClosed}
		}
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.destroy(false)
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)
			case Rejoin:
				s.handleRejoin(msg)
			case Ready:
				s.handleReady(msg)
			case BriefingDone:
				s.handleBriefingDone(msg)
			case SubmitResults:
				s.handleSubmitResults(msg)
			case GoToLearning:
				s.handleGoToLearning(msg)
			case Detach:
				s.handleDetach(msg)
			case graceExpired:
				s.handleGraceExpired(msg)
			case GetView:
				msg.Reply <- View{
					Code:        s.code,
					Phase:       s.phase,
					Players:     s.roster(),
					NumAttached: s.numAttached(),
					NumResults:  len(s.results),
				}
			case Shutdown:
				s.destroy(false)
			}
			// A handler that destroyed the session ends the loop here, so a
			// message racing in behind the destruction is never serviced as
			// if the session were alive. Racing senders observe Done.
			if s.closed {
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join) {
	if len(s.players) >= game.MaxPlayers {
		msg.Reply <- JoinReply{Err: ErrSessionFull}
		return
	}
	if s.phase != game.PhaseLobby && s.phase != game.PhaseWaiting {
		msg.Reply <- JoinReply{Err: ErrSessionInProgress}
		return
	}
	for _, ps := range s.players {
		if ps.player.Name == msg.PlayerName {
			msg.Reply <- JoinReply{Err: ErrNameTaken}
			return
		}
	}

	p := game.Player{
		ID:   uuid.NewString(),
		Name: msg.PlayerName,
		Role: game.RoleForJoinOrder(len(s.players)),
	}
	ps := &playerState{player: p, outbox: msg.Outbox, attached: true}
	s.players = append(s.players, ps)
	s.setPhase(game.PhaseWaiting)

	// Existing member learns about the newcomer; the joiner gets the roster
	// in its ack instead.
	for _, other := range s.players {
		if other != ps {
			s.send(other, protocol.ServerMessage{Type: protocol.TypePlayerJoined, Player: &p})
		}
	}

	s.log.Info("player joined", zap.String("player", p.Name), zap.String("role", string(p.Role)))
	msg.Reply <- JoinReply{Player: p, Players: s.roster()}
}

func (s *Session) handleRejoin(msg Rejoin) {
	ps := s.findByName(msg.PlayerName)
	if ps == nil {
		metrics.RejoinAttempts.WithLabelValues("failed").Inc()
		msg.Reply <- RejoinReply{Err: ErrUnknownPlayer}
		return
	}

	if ps.outbox != nil {
		close(ps.outbox) // supersede the previous binding
	}
	ps.outbox = msg.Outbox
	ps.attached = true
	ps.gen++ // invalidate any pending grace fire

	metrics.RejoinAttempts.WithLabelValues("success").Inc()
	s.log.Info("player rejoined", zap.String("player", ps.player.Name))
	msg.Reply <- RejoinReply{Snapshot: s.snapshotFor(ps)}
}

// snapshotFor builds the full-state rejoin payload: enough to reconstruct the
// local projection from scratch, with only the recipient's own briefing until
// the results reveal.
func (s *Session) snapshotFor(ps *playerState) protocol.ServerMessage {
	p := ps.player
	snap := protocol.ServerMessage{
		Type:     protocol.TypeRejoinSuccess,
		Success:  true,
		Phase:    s.phase,
		Player:   &p,
		Players:  s.roster(),
		Scenario: s.scenario,
	}
	if s.briefings != nil {
		b := s.briefings[p.Role]
		snap.Briefing = &b
	}
	if s.phase == game.PhaseResults || s.phase == game.PhaseLearning {
		snap.AllResults = s.allResults()
		snap.AllBriefings = s.briefings
	}
	if s.phase == game.PhaseLearning {
		snap.LearningPoints = s.learning
	}
	return snap
}

func (s *Session) handleReady(msg Ready) {
	ps := s.findByID(msg.PlayerID)
	if ps == nil || s.phase != game.PhaseWaiting {
		return
	}
	ps.player.Ready = !ps.player.Ready
	s.broadcast(protocol.ServerMessage{Type: protocol.TypePlayerReadyUpdate, Players: s.roster()})

	if len(s.players) == game.MaxPlayers && s.allReady() {
		s.startBriefing()
	}
}

func (s *Session) startBriefing() {
	s.scenario = game.DefaultScenario()
	s.briefings = game.DefaultBriefings()
	s.setPhase(game.PhaseBriefing)

	// Role-partitioned fan-out: each recipient sees only its own briefing.
	for _, ps := range s.players {
		b := s.briefings[ps.player.Role]
		s.send(ps, protocol.ServerMessage{
			Type:     protocol.TypePhaseChange,
			Phase:    game.PhaseBriefing,
			Briefing: &b,
			Scenario: s.scenario,
		})
	}
}

func (s *Session) handleBriefingDone(msg BriefingDone) {
	if s.phase != game.PhaseBriefing || s.findByID(msg.PlayerID) == nil {
		return
	}
	s.briefingAck[msg.PlayerID] = true
	if len(s.briefingAck) < len(s.players) {
		return // first acknowledger is held pending, nothing broadcast
	}
	s.setPhase(game.PhaseRoleplay)
	s.broadcast(protocol.ServerMessage{
		Type:     protocol.TypePhaseChange,
		Phase:    game.PhaseRoleplay,
		Scenario: s.scenario,
	})
}

func (s *Session) handleSubmitResults(msg SubmitResults) {
	ps := s.findByID(msg.PlayerID)
	if ps == nil || s.phase != game.PhaseRoleplay {
		return
	}
	if _, dup := s.results[ps.player.ID]; dup {
		return // submission is single-shot
	}

	// Scores are trusted as submitted; identity fields are not.
	r := msg.Results
	r.PlayerID = ps.player.ID
	r.PlayerName = ps.player.Name
	r.PlayerRole = ps.player.Role
	s.results[ps.player.ID] = r

	for _, other := range s.players {
		if other != ps {
			s.send(other, protocol.ServerMessage{
				Type:       protocol.TypePlayerFinished,
				PlayerID:   ps.player.ID,
				PlayerName: ps.player.Name,
			})
		}
	}

	if len(s.results) < len(s.players) {
		return
	}
	s.setPhase(game.PhaseResults)
	s.broadcast(protocol.ServerMessage{
		Type:         protocol.TypePhaseChange,
		Phase:        game.PhaseResults,
		AllResults:   s.allResults(),
		AllBriefings: s.briefings, // briefings are revealed to both here
	})
}

func (s *Session) handleGoToLearning(msg GoToLearning) {
	if s.phase != game.PhaseResults || s.findByID(msg.PlayerID) == nil {
		return
	}
	s.learningAck[msg.PlayerID] = true
	if len(s.learningAck) < len(s.players) {
		return
	}
	s.learning = game.DefaultLearningPoints()
	s.setPhase(game.PhaseLearning)
	s.broadcast(protocol.ServerMessage{
		Type:           protocol.TypePhaseChange,
		Phase:          game.PhaseLearning,
		LearningPoints: s.learning,
	})
}

func (s *Session) handleDetach(msg Detach) {
	ps := s.findByID(msg.PlayerID)
	if ps == nil || ps.outbox != msg.Outbox {
		return // stale: this binding was already superseded
	}
	s.detach(ps)
}

// detach closes the player's outbox and arms the rejoin grace timer. With a
// zero grace window the disconnect takes effect immediately.
func (s *Session) detach(ps *playerState) {
	if ps.outbox != nil {
		close(ps.outbox)
		ps.outbox = nil
	}
	ps.attached = false
	ps.gen++
	gen := ps.gen

	if s.grace <= 0 {
		s.handleGraceExpired(graceExpired{PlayerID: ps.player.ID, Gen: gen})
		return
	}

	s.log.Info("player detached, grace timer armed",
		zap.String("player", ps.player.Name), zap.Duration("grace", s.grace))
	id := ps.player.ID
	time.AfterFunc(s.grace, func() {
		select {
		case s.inbox <- graceExpired{PlayerID: id, Gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) handleGraceExpired(msg graceExpired) {
	ps := s.findByID(msg.PlayerID)
	if ps == nil || ps.attached || ps.gen != msg.Gen {
		return // reattached in time, or a newer timer owns this player
	}

	s.log.Info("player disconnected, ending session", zap.String("player", ps.player.Name))
	for _, other := range s.players {
		if other != ps {
			s.send(other, protocol.ServerMessage{
				Type:       protocol.TypePlayerDisconnected,
				PlayerName: ps.player.Name,
			})
		}
	}
	s.destroy(true)
}

func (s *Session) destroy(notifyRegistry bool) {
	if s.closed {
		return
	}
	s.closed = true
	if notifyRegistry && s.onClose != nil {
		s.onClose(s.code)
	}
	for _, ps := range s.players {
		if ps.outbox != nil {
			close(ps.outbox)
			ps.outbox = nil
		}
		ps.attached = false
	}
	s.cancel()
}

func (s *Session) setPhase(p game.Phase) {
	if s.phase == p {
		return
	}
	s.phase = p
	metrics.PhaseTransitions.WithLabelValues(string(p)).Inc()
}

func (s *Session) findByID(id string) *playerState {
	for _, ps := range s.players {
		if ps.player.ID == id {
			return ps
		}
	}
	return nil
}

// findByName matches case-sensitively: name + code is the reconnection key.
func (s *Session) findByName(name string) *playerState {
	for _, ps := range s.players {
		if ps.player.Name == name {
			return ps
		}
	}
	return nil
}

func (s *Session) allReady() bool {
	for _, ps := range s.players {
		if !ps.player.Ready {
			return false
		}
	}
	return true
}

func (s *Session) roster() []game.Player {
	out := make([]game.Player, 0, len(s.players))
	for _, ps := range s.players {
		out = append(out, ps.player)
	}
	return out
}

func (s *Session) allResults() map[string]game.Results {
	out := make(map[string]game.Results, len(s.results))
	for id, r := range s.results {
		out[id] = r
	}
	return out
}

func (s *Session) numAttached() int {
	n := 0
	for _, ps := range s.players {
		if ps.attached {
			n++
		}
	}
	return n
}

func (s *Session) send(ps *playerState, msg protocol.ServerMessage) {
	if !ps.attached || ps.outbox == nil {
		return
	}
	select {
	case ps.outbox <- msg:
	default:
		// Consumer stopped draining: treat it like a lost connection so the
		// grace/rejoin path can recover it.
		s.log.Warn("dropping slow consumer", zap.String("player", ps.player.Name))
		s.detach(ps)
	}
}

func (s *Session) broadcast(msg protocol.ServerMessage) {
	for _, ps := range s.players {
		s.send(ps, msg)
	}
}
