// Package client holds the participant side of the synchronization protocol:
// a pure reducer folding server events into a local projection, the request
// emitters, and the reconnection controller.
package client

import (
	"github.com/conflictlab/session-backend/internal/game"
	"github.com/conflictlab/session-backend/internal/protocol"
)

// State is the local, possibly-stale projection of the shared session. It is
// only ever replaced wholesale by Apply; rendering code reads, never writes.
type State struct {
	Phase               game.Phase
	SessionCode         string
	Player              *game.Player
	Players             []game.Player
	Briefing            *game.Briefing
	Scenario            *game.Scenario
	AllResults          map[string]game.Results
	AllBriefings        map[game.Role]game.Briefing
	LearningPoints      []game.LearningPoint
	OtherPlayerFinished bool
	LastError           string
}

func Initial() State {
	return State{Phase: game.PhaseLobby}
}

// overlay is the merge rule for partial payloads: an incoming non-absent
// value wins, an absent one retains the previous value.
func overlay[T any](incoming, prev T, present bool) T {
	if present {
		return incoming
	}
	return prev
}

// Apply folds one server event into the projection. It is pure and idempotent
// under at-least-once delivery: every event fully replaces the fields it
// carries instead of accumulating into them.
func Apply(s State, msg protocol.ServerMessage) State {
	switch msg.Type {
	case protocol.TypeSessionCreated, protocol.TypeSessionJoined:
		if !msg.Success {
			s.LastError = msg.Error
			return s
		}
		s.LastError = ""
		s.Phase = game.PhaseWaiting
		if msg.Session != nil {
			s.SessionCode = msg.Session.Code
			s.Players = msg.Session.Players
		}
		s.Player = overlay(msg.Player, s.Player, msg.Player != nil)
		return s

	case protocol.TypePlayerJoined:
		if msg.Player == nil {
			return s
		}
		for _, p := range s.Players {
			if p.ID == msg.Player.ID {
				return s // duplicate delivery
			}
		}
		players := make([]game.Player, len(s.Players), len(s.Players)+1)
		copy(players, s.Players)
		s.Players = append(players, *msg.Player)
		return s

	case protocol.TypePlayerReadyUpdate:
		s.Players = overlay(msg.Players, s.Players, msg.Players != nil)
		return s

	case protocol.TypePhaseChange:
		s.Phase = msg.Phase
		s.Briefing = overlay(msg.Briefing, s.Briefing, msg.Briefing != nil)
		s.Scenario = overlay(msg.Scenario, s.Scenario, msg.Scenario != nil)
		s.AllResults = overlay(msg.AllResults, s.AllResults, msg.AllResults != nil)
		s.AllBriefings = overlay(msg.AllBriefings, s.AllBriefings, msg.AllBriefings != nil)
		s.LearningPoints = overlay(msg.LearningPoints, s.LearningPoints, msg.LearningPoints != nil)
		s.OtherPlayerFinished = false
		return s

	case protocol.TypePlayerFinished:
		if s.Player == nil || msg.PlayerID != s.Player.ID {
			s.OtherPlayerFinished = true
		}
		return s

	case protocol.TypeRejoinSuccess:
		// Full snapshot: sufficient to rebuild the view from scratch. The
		// session code is already known locally (it was the rejoin key).
		s.Phase = msg.Phase
		s.Player = overlay(msg.Player, s.Player, msg.Player != nil)
		s.Players = overlay(msg.Players, s.Players, msg.Players != nil)
		s.Briefing = overlay(msg.Briefing, s.Briefing, msg.Briefing != nil)
		s.Scenario = overlay(msg.Scenario, s.Scenario, msg.Scenario != nil)
		s.AllResults = overlay(msg.AllResults, s.AllResults, msg.AllResults != nil)
		s.AllBriefings = overlay(msg.AllBriefings, s.AllBriefings, msg.AllBriefings != nil)
		s.LearningPoints = overlay(msg.LearningPoints, s.LearningPoints, msg.LearningPoints != nil)
		s.LastError = ""
		return s

	case protocol.TypePlayerDisconnected:
		// Peer loss is fatal to the session: discard everything.
		next := Initial()
		next.LastError = msg.PlayerName + " disconnected, the session has ended"
		return next

	case protocol.TypeRejoinFailed:
		next := Initial()
		next.LastError = "could not rejoin: " + msg.Reason
		return next

	default:
		return s
	}
}
