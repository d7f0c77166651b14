package game

import (
	"errors"
	"unicode/utf8"
)

var ErrNameRequired = errors.New("player name required")
var ErrNameTooLong = errors.New("player name too long")

// Phases advance strictly forward; only a client-local restart returns to lobby.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseWaiting  Phase = "waiting"
	PhaseBriefing Phase = "briefing"
	PhaseRoleplay Phase = "roleplay"
	PhaseResults  Phase = "results"
	PhaseLearning Phase = "learning"
)

type Role string

const (
	RoleAssistant Role = "assistant"
	RoleEngineer  Role = "engineer"
)

// Other returns the complementary role.
func (r Role) Other() Role {
	if r == RoleAssistant {
		return RoleEngineer
	}
	return RoleAssistant
}

// RoleForJoinOrder keeps role assignment deterministic so a rejoining player
// recovers the same role without re-negotiation.
func RoleForJoinOrder(order int) Role {
	if order == 0 {
		return RoleAssistant
	}
	return RoleEngineer
}

const MaxPlayers = 2
const MaxNameLength = 20

type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Ready bool   `json:"ready"`
}

// ValidateName enforces the display-name rules before anything hits the wire.
func ValidateName(name string) error {
	if name == "" {
		return ErrNameRequired
	}
	// counted in runes so accented and CJK names are not penalized
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// Briefing is private to its role until the results reveal.
type Briefing struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Situation string `json:"situation"`
}

type Choice struct {
	Text     string `json:"text"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
	Tip      string `json:"tip,omitempty"`
}

// Step is one decision point in a role's track. Choice order is fixed and a
// selection is single-shot.
type Step struct {
	OtherMessage string   `json:"other_message,omitempty"`
	Context      string   `json:"context,omitempty"`
	Question     string   `json:"question"`
	Choices      []Choice `json:"choices"`
}

type Scenario struct {
	Title   string          `json:"title"`
	Context string          `json:"context"`
	Steps   map[Role][]Step `json:"steps"`
}

type ChoiceRecord struct {
	Step   int    `json:"step"`
	Choice Choice `json:"choice"`
	Score  int    `json:"score"`
}

// Results are derived client-side and aggregated, not re-validated, by the
// session orchestrator.
type Results struct {
	PlayerID   string         `json:"player_id"`
	PlayerName string         `json:"player_name"`
	PlayerRole Role           `json:"player_role"`
	Choices    []ChoiceRecord `json:"choices"`
	TotalScore int            `json:"total_score"`
	MaxScore   int            `json:"max_score"`
}

type LearningPoint struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
