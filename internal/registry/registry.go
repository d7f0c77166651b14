// Package registry owns the mapping from share codes to live sessions. Like
// the sessions themselves it is an actor: one goroutine, a typed inbox, no
// locks.
package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/conflictlab/session-backend/internal/game"
	"github.com/conflictlab/session-backend/internal/metrics"
	"github.com/conflictlab/session-backend/internal/protocol"
	"github.com/conflictlab/session-backend/internal/session"
)

var ErrSessionNotFound = errors.New("session not found")
var ErrNoFreeCode = errors.New("could not generate a free session code")

const codeLength = 6
const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const maxCodeAttempts = 100

type Msg interface{ isRegistryMsg() }

// CreateSession generates a fresh code, spins up the session actor and joins
// the creating player in one step.
type CreateSession struct {
	PlayerName string
	Outbox     chan protocol.ServerMessage
	Reply      chan CreateReply
}

type CreateReply struct {
	Code    string
	Session *session.Session
	Player  game.Player
	Players []game.Player
	Err     error
}

type GetSession struct {
	Code  string
	Reply chan *session.Session
}

type RemoveSession struct{ Code string }

type ShutdownRegistry struct{}

func (CreateSession) isRegistryMsg()    {}
func (GetSession) isRegistryMsg()       {}
func (RemoveSession) isRegistryMsg()    {}
func (ShutdownRegistry) isRegistryMsg() {}

type Registry struct {
	inbox    chan Msg
	sessions map[string]*session.Session
	grace    time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	log      *zap.Logger
}

func New(parent context.Context, grace time.Duration, log *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:    make(chan Msg, 64),
		sessions: make(map[string]*session.Session),
		grace:    grace,
		ctx:      ctx,
		cancel:   cancel,
		log:      log.Named("registry"),
	}
	go r.loop()
	return r
}

func (r *Registry) Inbox() chan<- Msg { return r.inbox }

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case CreateSession:
				r.handleCreate(msg)

			case GetSession:
				msg.Reply <- r.sessions[msg.Code] // may be nil

			case RemoveSession:
				if _, ok := r.sessions[msg.Code]; ok {
					delete(r.sessions, msg.Code)
					metrics.SessionsActive.Dec()
					r.log.Info("session removed", zap.String("session", msg.Code))
				}

			case ShutdownRegistry:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Registry) handleCreate(msg CreateSession) {
	code, err := r.freeCode()
	if err != nil {
		msg.Reply <- CreateReply{Err: err}
		return
	}

	sess := session.New(r.ctx, code, r.grace, func(c string) {
		// Called from the session goroutine when it destroys itself.
		select {
		case r.inbox <- RemoveSession{Code: c}:
		case <-r.ctx.Done():
		}
	}, r.log)
	r.sessions[code] = sess
	metrics.SessionsCreated.Inc()
	metrics.SessionsActive.Inc()

	// Join the creator before replying so the ack carries the roster. The
	// session actor is fresh and answers immediately.
	jr := sess.JoinSync(msg.PlayerName, msg.Outbox)
	if jr.Err != nil {
		delete(r.sessions, code)
		metrics.SessionsActive.Dec()
		sess.Post(session.Shutdown{})
		msg.Reply <- CreateReply{Err: jr.Err}
		return
	}

	r.log.Info("session created", zap.String("session", code), zap.String("player", msg.PlayerName))
	msg.Reply <- CreateReply{Code: code, Session: sess, Player: jr.Player, Players: jr.Players}
}

func (r *Registry) freeCode() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := GenerateCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.sessions[code]; !taken {
			return code, nil
		}
		r.log.Warn("collision on code, regenerating", zap.String("code", code))
	}
	return "", ErrNoFreeCode
}

func (r *Registry) shutdown() {
	for _, sess := range r.sessions {
		sess.Post(session.Shutdown{})
	}
	clear(r.sessions)
	metrics.SessionsActive.Set(0)
	r.cancel()
}

// GenerateCode returns a 6-character uppercase alphanumeric share code.
func GenerateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := 0; i < codeLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}
