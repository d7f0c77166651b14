package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conflictlab/session-backend/internal/game"
)

func TestServerMessage_AbsentFieldsStayOffTheWire(t *testing.T) {
	payload, err := json.Marshal(ServerMessage{
		Type:  TypePhaseChange,
		Phase: game.PhaseRoleplay,
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	require.NotContains(t, raw, "briefing", "absent optionals must be omitted so the overlay merge retains prior values")
	require.NotContains(t, raw, "all_results")
	require.NotContains(t, raw, "players")
}

func TestClientMessage_RoundTrip(t *testing.T) {
	in := ClientMessage{
		Type:        TypeRoleplayComplete,
		SessionCode: "AB12CD",
		Results: &game.Results{
			PlayerID:   "p1",
			TotalScore: 5,
			MaxScore:   9,
		},
	}
	payload, err := json.Marshal(in)
	require.NoError(t, err)

	var out ClientMessage
	require.NoError(t, json.Unmarshal(payload, &out))
	require.Equal(t, in, out)
}
