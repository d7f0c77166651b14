package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/conflictlab/session-backend/internal/game"
	"github.com/conflictlab/session-backend/internal/protocol"
)

// User-input errors are handled locally and never reach the network.
var ErrCodeRequired = errors.New("session code required")
var ErrBadCode = errors.New("session code must be 6 characters")
var ErrNotConnected = errors.New("not connected")
var ErrNotInRoleplay = errors.New("no roleplay in progress")
var ErrNotInLearning = errors.New("debrief not reached yet")

const codeLength = 6

// Client owns the local projection and the transport. All state mutation
// happens on the read loop goroutine through the reducer; emitters only send.
type Client struct {
	url string
	log *zap.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	// Reconnection key: last known session code and display name, kept as
	// long as the session is believed alive.
	identityCode string
	identityName string

	// OnChange, when set before Run, is called with a copy of the projection
	// after every applied event. Rendering reads from it, nothing more.
	OnChange func(State)
}

func New(url string, log *zap.Logger) *Client {
	return &Client{
		url:   url,
		log:   log.Named("client"),
		state: Initial(),
	}
}

// Snapshot returns a copy of the current projection.
func (c *Client) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run dials the server and keeps the connection alive until ctx ends. The
// transport retries with exponential backoff; after every reconnect the
// controller re-establishes identity with rejoin-session before anything
// else is sent.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry until cancelled

	for {
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.NextBackOff()
			c.log.Debug("dial failed, backing off", zap.Error(err), zap.Duration("wait", wait))
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		bo.Reset()

		c.mu.Lock()
		c.conn = conn
		code, name := c.identityCode, c.identityName
		c.mu.Unlock()

		if code != "" {
			if err := c.send(ctx, protocol.ClientMessage{
				Type:        protocol.TypeRejoinSession,
				SessionCode: code,
				PlayerName:  name,
			}); err != nil {
				c.log.Debug("rejoin send failed", zap.Error(err))
			}
		}

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("bad server message", zap.Error(err))
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg protocol.ServerMessage) {
	c.mu.Lock()
	c.state = Apply(c.state, msg)

	switch msg.Type {
	case protocol.TypeSessionCreated, protocol.TypeSessionJoined:
		if msg.Success && c.state.Player != nil {
			c.identityCode = c.state.SessionCode
			c.identityName = c.state.Player.Name
		}
	case protocol.TypePlayerDisconnected, protocol.TypeRejoinFailed:
		// Unrecoverable for this session: drop the reconnection key so the
		// next transport reconnect does not retry a dead rejoin.
		c.identityCode = ""
		c.identityName = ""
	}

	snapshot := c.state
	onChange := c.OnChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
}

// CreateSession asks the server for a fresh session. Local state is updated
// only when the ack arrives and reports success.
func (c *Client) CreateSession(ctx context.Context, playerName string) error {
	if err := game.ValidateName(playerName); err != nil {
		return err
	}
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeCreateSession, PlayerName: playerName})
}

// JoinSession normalizes the code to uppercase before transmission.
func (c *Client) JoinSession(ctx context.Context, code, playerName string) error {
	if err := game.ValidateName(playerName); err != nil {
		return err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ErrCodeRequired
	}
	if len(code) != codeLength {
		return ErrBadCode
	}
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeJoinSession, SessionCode: code, PlayerName: playerName})
}

func (c *Client) Ready(ctx context.Context) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypePlayerReady})
}

func (c *Client) BriefingDone(ctx context.Context) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeBriefingDone})
}

// CompleteRoleplay derives the score record from the local scenario track and
// submits it. Scores are computed here; the orchestrator aggregates without
// re-validating.
func (c *Client) CompleteRoleplay(ctx context.Context, records []game.ChoiceRecord) error {
	c.mu.Lock()
	s := c.state
	c.mu.Unlock()

	if s.Player == nil || s.Scenario == nil || s.Phase != game.PhaseRoleplay {
		return ErrNotInRoleplay
	}
	results := game.BuildResults(*s.Player, s.Scenario.Steps[s.Player.Role], records)
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeRoleplayComplete, Results: &results})
}

func (c *Client) GoToLearning(ctx context.Context) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeGoToLearning})
}

// Restart resets the local view to the lobby once the debrief is on screen.
// Purely local: the old session is not resurrected and the server is not
// involved. It is the only backwards edge in the phase order.
func (c *Client) Restart() error {
	c.mu.Lock()
	if c.state.Phase != game.PhaseLearning {
		c.mu.Unlock()
		return ErrNotInLearning
	}
	c.state = Initial()
	c.identityCode = ""
	c.identityName = ""
	snapshot := c.state
	onChange := c.OnChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
	return nil
}

func (c *Client) send(ctx context.Context, msg protocol.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}
