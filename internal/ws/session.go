package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/chits-backend/internal/engine"
	"github.com/DoyleJ11/chits-backend/internal/hub"
	"github.com/DoyleJ11/chits-backend/internal/lobby"
	"github.com/DoyleJ11/chits-backend/internal/types"
	wire "github.com/DoyleJ11/chits-backend/pkg/types"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var errBadMessage = errors.New("bad json")
var errUnknownType = errors.New("unknown type")
var errAlreadyInRoom = errors.New("connection already in a room")

// session is one websocket connection. It sits in at most one room at a time.
type session struct {
	id   string
	hub  *hub.Hub
	conn *websocket.Conn
	opts Options
	log  *zap.Logger

	mu    sync.Mutex
	lobby *lobby.Lobby
	out   chan lobby.Notification
}

type opener func(ctx context.Context, code, player, connID string, out chan lobby.Notification) (*lobby.Lobby, error)

func (s *session) serve(ctx context.Context) {
	defer s.detach()

	// Reader loop
	for {
		readCtx, cancel := context.WithTimeout(ctx, s.opts.IdleTimeout)
		_, data, err := s.conn.Read(readCtx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				s.log.Debug("read failed", zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			s.sendError(ctx, errBadMessage)
			continue
		}
		if err := s.handle(ctx, cm); err != nil {
			s.sendError(ctx, err)
		}
	}
}

func (s *session) handle(ctx context.Context, cm types.ClientMessage) error {
	switch cm.Type {
	case wire.EventCreateRoom:
		return s.enter(ctx, cm, s.hub.Create)
	case wire.EventJoinRoom:
		return s.enter(ctx, cm, s.hub.Join)
	case wire.EventEndGame:
		_, err := s.hub.End(ctx, cm.RoomCode)
		return err
	}

	cmd, ok := toEngineCommand(cm)
	if !ok {
		return errUnknownType
	}
	return s.hub.Dispatch(ctx, cm.RoomCode, s.id, cmd)
}

func (s *session) enter(ctx context.Context, cm types.ClientMessage, open opener) error {
	s.mu.Lock()
	if s.out != nil {
		s.mu.Unlock()
		return errAlreadyInRoom
	}
	out := make(chan lobby.Notification, s.opts.OutboxSize)
	s.out = out
	s.mu.Unlock()

	lb, err := open(ctx, cm.RoomCode, cm.PlayerName, s.id, out)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.out = nil
		return err
	}
	s.lobby = lb
	go s.pump(ctx, out)
	return nil
}

// pump forwards room notifications until the lobby closes the outbox.
func (s *session) pump(ctx context.Context, out chan lobby.Notification) {
	for n := range out {
		s.write(ctx, types.ServerMessage{Type: n.Type, Payload: n.Payload})
	}
	s.mu.Lock()
	if s.out == out {
		s.out = nil
		s.lobby = nil
	}
	s.mu.Unlock()
}

func (s *session) detach() {
	s.mu.Lock()
	lb := s.lobby
	s.mu.Unlock()
	if lb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := lb.Leave(ctx, s.id); err != nil && !errors.Is(err, lobby.ErrClosed) {
		s.log.Warn("leave failed", zap.String("room", lb.Code()), zap.Error(err))
	}
}

func (s *session) write(ctx context.Context, msg types.ServerMessage) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, s.conn, msg); err != nil {
		s.log.Debug("write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (s *session) sendError(ctx context.Context, err error) {
	code := reasonFor(err)
	s.log.Debug("request rejected", zap.String("code", code), zap.Error(err))
	s.write(ctx, types.ServerMessage{
		Type:    wire.EventRoomError,
		Payload: wire.RoomError{Message: messageFor(err), Code: code},
	})
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, hub.ErrInvalidRoomCode):
		return "InvalidRoomCode"
	case errors.Is(err, hub.ErrRoomAlreadyExists):
		return "RoomAlreadyExists"
	case errors.Is(err, hub.ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, errAlreadyInRoom):
		return "AlreadyInRoom"
	case errors.Is(err, errBadMessage):
		return "BadMessage"
	case errors.Is(err, errUnknownType):
		return "UnknownType"
	}
	if code, ok := engine.Reason(err); ok {
		return code
	}
	return "Internal"
}

// messageFor keeps the wording existing clients display.
func messageFor(err error) string {
	switch {
	case errors.Is(err, hub.ErrInvalidRoomCode), errors.Is(err, engine.ErrMissingName):
		return "Player name and a 4-digit room number are required!"
	case errors.Is(err, hub.ErrRoomAlreadyExists):
		return "Room already exists!"
	case errors.Is(err, hub.ErrRoomNotFound):
		return "Room not found!"
	case errors.Is(err, engine.ErrRoomFull):
		return "Room is full!"
	case errors.Is(err, engine.ErrNameTaken):
		return "Player name already in use!"
	}
	return err.Error()
}
