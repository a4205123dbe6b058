package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/chits-backend/internal/engine"
	"github.com/DoyleJ11/chits-backend/internal/lobby"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrInvalidRoomCode = errors.New("room code must be exactly 4 digits")
var ErrRoomAlreadyExists = errors.New("room already exists")
var ErrRoomNotFound = errors.New("room not found")
var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	Code   string
	Player string
	ConnID string
	Reply  chan CreateResult
}

type CreateResult struct {
	Lobby *lobby.Lobby
	Err   error
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

// TakeLobby unmaps the code and hands the lobby to the caller.
type TakeLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

// RemoveLobby unmaps Code only if it still points at Lobby.
type RemoveLobby struct {
	Code  string
	Lobby *lobby.Lobby
}

type CountLobbies struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg()  {}
func (GetLobby) isHubMsg()     {}
func (TakeLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	log       *zap.Logger
	rules     engine.Rules
	lobbyOpts lobby.Options
}

type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.log = l }
}

func WithClock(c clockwork.Clock) Option {
	return func(h *Hub) { h.lobbyOpts.Clock = c }
}

func WithReactionTimeout(d time.Duration) Option {
	return func(h *Hub) { h.lobbyOpts.ReactionTimeout = d }
}

func WithRecorder(r lobby.Recorder) Option {
	return func(h *Hub) { h.lobbyOpts.Recorder = r }
}

func WithShuffler(s engine.Shuffler) Option {
	return func(h *Hub) { h.rules.Shuffle = s }
}

func NewHub(parent context.Context, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.lobbyOpts.Logger = h.log
	h.lobbyOpts.OnAbandon = h.release
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			// Lobbies run under h.ctx and stop on their own.
			clear(h.lobbies)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				msg.Reply <- h.create(msg)

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case TakeLobby:
				lb := h.lobbies[msg.Code]
				delete(h.lobbies, msg.Code)
				msg.Reply <- lb

			case RemoveLobby:
				if lb := h.lobbies[msg.Code]; lb != nil && lb == msg.Lobby {
					delete(h.lobbies, msg.Code)
					h.log.Info("room released", zap.String("room", msg.Code))
				}

			case CountLobbies:
				msg.Reply <- len(h.lobbies)

			case ShutdownHub:
				h.log.Info("hub shutting down", zap.Int("rooms", len(h.lobbies)))
				h.cancel()
			}
		}
	}
}

func (h *Hub) create(msg CreateLobby) CreateResult {
	if !engine.ValidRoomCode(msg.Code) {
		return CreateResult{Err: ErrInvalidRoomCode}
	}
	if msg.Player == "" {
		return CreateResult{Err: engine.ErrMissingName}
	}
	if h.lobbies[msg.Code] != nil {
		return CreateResult{Err: ErrRoomAlreadyExists}
	}

	state, err := engine.NewRoom(msg.Code, msg.Player, msg.ConnID, h.rules)
	if err != nil {
		return CreateResult{Err: err}
	}
	lb := lobby.NewLobby(h.ctx, state, h.lobbyOpts)
	h.lobbies[msg.Code] = lb
	h.log.Info("room created", zap.String("room", msg.Code), zap.String("player", msg.Player))
	return CreateResult{Lobby: lb}
}

// release runs on an abandoned lobby's goroutine, so it must not wait on the hub.
func (h *Hub) release(lb *lobby.Lobby) {
	go func() {
		select {
		case h.inbox <- RemoveLobby{Code: lb.Code(), Lobby: lb}:
		case <-h.ctx.Done():
		}
	}()
}
