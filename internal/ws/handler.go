package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/conflictlab/session-backend/internal/config"
	"github.com/conflictlab/session-backend/internal/game"
	"github.com/conflictlab/session-backend/internal/metrics"
	"github.com/conflictlab/session-backend/internal/protocol"
	"github.com/conflictlab/session-backend/internal/registry"
	"github.com/conflictlab/session-backend/internal/session"
)

// binding is the connection's identity once a create/join/rejoin succeeded.
type binding struct {
	sess     *session.Session
	playerID string
}

// Handler upgrades a connection and runs the protocol: requests are answered
// inline by the reader, session broadcasts flow through the outbox and a
// writer goroutine. The underlying library serializes concurrent writes.
func Handler(reg *registry.Registry, cfg config.Config, log *zap.Logger) http.HandlerFunc {
	log = log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.AllowedOrigins,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		metrics.ConnectionsOpen.Inc()
		defer metrics.ConnectionsOpen.Dec()

		c := &client{
			conn:   conn,
			reg:    reg,
			cfg:    cfg,
			log:    log,
			outbox: make(chan protocol.ServerMessage, 16),
		}
		c.run(r.Context())
	}
}

type client struct {
	conn   *websocket.Conn
	reg    *registry.Registry
	cfg    config.Config
	log    *zap.Logger
	outbox chan protocol.ServerMessage
	bound  *binding
}

func (c *client) run(ctx context.Context) {
	defer func() {
		if c.bound != nil {
			c.bound.sess.Post(session.Detach{PlayerID: c.bound.playerID, Outbox: c.outbox})
		}
	}()

	// Writer goroutine: drains broadcasts until the session closes the
	// outbox (detach, supersede or session end), then drops the connection
	// so the reader unblocks.
	go func() {
		for msg := range c.outbox {
			c.write(ctx, msg)
		}
		c.conn.Close(websocket.StatusGoingAway, "session closed")
	}()

	// No read deadline: a session may sit idle in waiting indefinitely.
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var cm protocol.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.write(ctx, protocol.ServerMessage{Type: "error", Error: "bad json"})
			continue
		}
		c.dispatch(ctx, cm)
	}
}

func (c *client) dispatch(ctx context.Context, cm protocol.ClientMessage) {
	switch cm.Type {
	case protocol.TypeCreateSession:
		c.handleCreate(ctx, cm)
	case protocol.TypeJoinSession:
		c.handleJoin(ctx, cm)
	case protocol.TypeRejoinSession:
		c.handleRejoin(ctx, cm)
	case protocol.TypePlayerReady:
		if c.bound != nil {
			c.bound.sess.Post(session.Ready{PlayerID: c.bound.playerID})
		}
	case protocol.TypeBriefingDone:
		if c.bound != nil {
			c.bound.sess.Post(session.BriefingDone{PlayerID: c.bound.playerID})
		}
	case protocol.TypeRoleplayComplete:
		if c.bound != nil && cm.Results != nil {
			c.bound.sess.Post(session.SubmitResults{PlayerID: c.bound.playerID, Results: *cm.Results})
		}
	case protocol.TypeGoToLearning:
		if c.bound != nil {
			c.bound.sess.Post(session.GoToLearning{PlayerID: c.bound.playerID})
		}
	default:
		c.write(ctx, protocol.ServerMessage{Type: "error", Error: "unknown type"})
	}
}

func (c *client) handleCreate(ctx context.Context, cm protocol.ClientMessage) {
	if c.bound != nil {
		c.nack(ctx, protocol.TypeSessionCreated, "already in a session")
		return
	}
	if err := game.ValidateName(cm.PlayerName); err != nil {
		c.nack(ctx, protocol.TypeSessionCreated, err.Error())
		return
	}

	reply := make(chan registry.CreateReply, 1)
	c.reg.Inbox() <- registry.CreateSession{PlayerName: cm.PlayerName, Outbox: c.outbox, Reply: reply}
	cr := <-reply
	if cr.Err != nil {
		c.nack(ctx, protocol.TypeSessionCreated, cr.Err.Error())
		return
	}

	c.bound = &binding{sess: cr.Session, playerID: cr.Player.ID}
	p := cr.Player
	c.write(ctx, protocol.ServerMessage{
		Type:    protocol.TypeSessionCreated,
		Success: true,
		Session: &protocol.SessionInfo{Code: cr.Code, Phase: game.PhaseWaiting, Players: cr.Players},
		Player:  &p,
	})
}

func (c *client) handleJoin(ctx context.Context, cm protocol.ClientMessage) {
	if c.bound != nil {
		c.nack(ctx, protocol.TypeSessionJoined, "already in a session")
		return
	}
	if err := game.ValidateName(cm.PlayerName); err != nil {
		c.nack(ctx, protocol.TypeSessionJoined, err.Error())
		return
	}

	sess := c.lookup(cm.SessionCode)
	if sess == nil {
		c.nack(ctx, protocol.TypeSessionJoined, registry.ErrSessionNotFound.Error())
		return
	}

	// JoinSync fails fast with ErrSessionClosed if the session destroyed
	// itself between lookup and delivery, so the client always gets an ack.
	jr := sess.JoinSync(cm.PlayerName, c.outbox)
	if jr.Err != nil {
		c.nack(ctx, protocol.TypeSessionJoined, jr.Err.Error())
		return
	}

	c.bound = &binding{sess: sess, playerID: jr.Player.ID}
	p := jr.Player
	c.write(ctx, protocol.ServerMessage{
		Type:    protocol.TypeSessionJoined,
		Success: true,
		Session: &protocol.SessionInfo{Code: cm.SessionCode, Phase: game.PhaseWaiting, Players: jr.Players},
		Player:  &p,
	})
}

func (c *client) handleRejoin(ctx context.Context, cm protocol.ClientMessage) {
	if c.bound != nil {
		c.write(ctx, protocol.ServerMessage{Type: protocol.TypeRejoinFailed, Reason: "already in a session"})
		return
	}

	sess := c.lookup(cm.SessionCode)
	if sess == nil {
		c.write(ctx, protocol.ServerMessage{Type: protocol.TypeRejoinFailed, Reason: registry.ErrSessionNotFound.Error()})
		return
	}

	rr := sess.RejoinSync(cm.PlayerName, c.outbox)
	if rr.Err != nil {
		c.write(ctx, protocol.ServerMessage{Type: protocol.TypeRejoinFailed, Reason: rr.Err.Error()})
		return
	}

	c.bound = &binding{sess: sess, playerID: rr.Snapshot.Player.ID}
	c.write(ctx, rr.Snapshot)
}

func (c *client) lookup(code string) *session.Session {
	reply := make(chan *session.Session, 1)
	c.reg.Inbox() <- registry.GetSession{Code: code, Reply: reply}
	return <-reply
}

func (c *client) nack(ctx context.Context, typ, errMsg string) {
	c.write(ctx, protocol.ServerMessage{Type: typ, Success: false, Error: errMsg})
}

func (c *client) write(ctx context.Context, msg protocol.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("marshal server message", zap.Error(err))
		return
	}
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, payload); err != nil {
		c.log.Debug("write failed", zap.Error(err))
	}
}
