package ws

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/chits-backend/internal/engine"
	"github.com/DoyleJ11/chits-backend/internal/hub"
	"github.com/DoyleJ11/chits-backend/internal/types"
	wire "github.com/DoyleJ11/chits-backend/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type Options struct {
	Logger         *zap.Logger
	OriginPatterns []string
	OutboxSize     int
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 16
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	return o
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	opts = opts.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			opts.Logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		id := uuid.NewString()
		s := &session{
			id:   id,
			hub:  h,
			conn: conn,
			opts: opts,
			log:  opts.Logger.With(zap.String("conn", id)),
		}
		s.log.Debug("connection opened")
		s.serve(r.Context())
		s.log.Debug("connection closed")
	}
}

func toEngineCommand(m types.ClientMessage) (engine.Command, bool) {
	switch m.Type {
	case wire.EventSelectChit:
		return engine.Command{Type: engine.CmdSelectChit, Player: m.PlayerName, Chit: engine.Kind(m.Chit)}, true
	case wire.EventDeclareVictory:
		return engine.Command{Type: engine.CmdDeclareVictory, Player: m.PlayerName}, true
	case wire.EventStackHand:
		return engine.Command{Type: engine.CmdStackHand, Player: m.PlayerName, ReactionTime: m.ReactionTime}, true
	case wire.EventRestartGame:
		return engine.Command{Type: engine.CmdRestart, Player: m.PlayerName}, true
	default:
		return engine.Command{}, false
	}
}
