// Package protocol defines the wire contract between the session orchestrator
// and its clients. Every inbound message maps to exactly one state-machine
// transition; every outbound message is a delta or snapshot the client-side
// reducer folds into its local projection.
package protocol

import "github.com/conflictlab/session-backend/internal/game"

// Client -> server message types.
const (
	TypeCreateSession    = "create-session"
	TypeJoinSession      = "join-session"
	TypeRejoinSession    = "rejoin-session"
	TypePlayerReady      = "player-ready"
	TypeBriefingDone     = "briefing-done"
	TypeRoleplayComplete = "roleplay-complete"
	TypeGoToLearning     = "go-to-learning"
)

// Server -> client message types.
const (
	TypeSessionCreated     = "session-created"
	TypeSessionJoined      = "session-joined"
	TypePlayerJoined       = "player-joined"
	TypePlayerReadyUpdate  = "player-ready-update"
	TypePhaseChange        = "phase-change"
	TypePlayerFinished     = "player-finished"
	TypePlayerDisconnected = "player-disconnected"
	TypeRejoinSuccess      = "rejoin-success"
	TypeRejoinFailed       = "rejoin-failed"
)

type ClientMessage struct {
	Type        string        `json:"type"`
	SessionCode string        `json:"session_code,omitempty"`
	PlayerName  string        `json:"player_name,omitempty"`
	Results     *game.Results `json:"results,omitempty"`
}

// SessionInfo is the shared (non-private) view of a session carried in acks.
type SessionInfo struct {
	Code    string        `json:"code"`
	Phase   game.Phase    `json:"phase"`
	Players []game.Player `json:"players"`
}

// ServerMessage is a flat envelope; absent fields are omitted on the wire and
// the reducer's overlay merge retains the previous value for them. Success is
// only meaningful on the session-created / session-joined acks.
type ServerMessage struct {
	Type           string                      `json:"type"`
	Success        bool                        `json:"success"`
	Error          string                      `json:"error,omitempty"`
	Session        *SessionInfo                `json:"session,omitempty"`
	Player         *game.Player                `json:"player,omitempty"`
	Players        []game.Player               `json:"players,omitempty"`
	Phase          game.Phase                  `json:"phase,omitempty"`
	Briefing       *game.Briefing              `json:"briefing,omitempty"`
	Scenario       *game.Scenario              `json:"scenario,omitempty"`
	AllResults     map[string]game.Results     `json:"all_results,omitempty"`
	AllBriefings   map[game.Role]game.Briefing `json:"all_briefings,omitempty"`
	LearningPoints []game.LearningPoint        `json:"learning_points,omitempty"`
	PlayerID       string                      `json:"player_id,omitempty"`
	PlayerName     string                      `json:"player_name,omitempty"`
	Reason         string                      `json:"reason,omitempty"`
}
