package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/chits-backend/internal/engine"
	"github.com/DoyleJ11/chits-backend/internal/lobby"
)

func request[T any](ctx context.Context, h *Hub, msg HubMsg, rc <-chan T) (T, error) {
	var zero T
	select {
	case h.inbox <- msg:
	case <-h.done:
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-rc:
		return v, nil
	case <-h.done:
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// A lobby that stopped between lookup and delivery no longer exists.
func roomGone(err error) error {
	if errors.Is(err, lobby.ErrClosed) {
		return ErrRoomNotFound
	}
	return err
}

// Create opens a room with its creator seated and, when out is non-nil,
// attached for notifications.
func (h *Hub) Create(ctx context.Context, code, player, connID string, out chan lobby.Notification) (*lobby.Lobby, error) {
	rc := make(chan CreateResult, 1)
	res, err := request(ctx, h, CreateLobby{Code: code, Player: player, ConnID: connID, Reply: rc}, rc)
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if out != nil {
		if err := res.Lobby.Attach(ctx, connID, out); err != nil {
			return nil, roomGone(err)
		}
	}
	return res.Lobby, nil
}

func (h *Hub) Lookup(ctx context.Context, code string) (*lobby.Lobby, error) {
	rc := make(chan *lobby.Lobby, 1)
	lb, err := request(ctx, h, GetLobby{Code: code, Reply: rc}, rc)
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, ErrRoomNotFound
	}
	return lb, nil
}

func (h *Hub) Join(ctx context.Context, code, player, connID string, out chan lobby.Notification) (*lobby.Lobby, error) {
	if !engine.ValidRoomCode(code) {
		return nil, ErrInvalidRoomCode
	}
	if player == "" {
		return nil, engine.ErrMissingName
	}
	lb, err := h.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := lb.Join(ctx, player, connID, out); err != nil {
		return nil, roomGone(err)
	}
	return lb, nil
}

// Dispatch forwards one command to the room's lobby and waits for its verdict.
func (h *Hub) Dispatch(ctx context.Context, code, connID string, cmd engine.Command) error {
	lb, err := h.Lookup(ctx, code)
	if err != nil {
		return err
	}
	return roomGone(lb.Dispatch(ctx, connID, cmd))
}

// End frees the code immediately, then lets the lobby broadcast the tally and stop.
func (h *Hub) End(ctx context.Context, code string) (engine.FinalResults, error) {
	rc := make(chan *lobby.Lobby, 1)
	lb, err := request(ctx, h, TakeLobby{Code: code, Reply: rc}, rc)
	if err != nil {
		return engine.FinalResults{}, err
	}
	if lb == nil {
		return engine.FinalResults{}, ErrRoomNotFound
	}
	res, err := lb.End(ctx)
	return res, roomGone(err)
}

func (h *Hub) Leave(ctx context.Context, code, connID string) error {
	lb, err := h.Lookup(ctx, code)
	if err != nil {
		return err
	}
	return roomGone(lb.Leave(ctx, connID))
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	rc := make(chan int, 1)
	return request(ctx, h, CountLobbies{Reply: rc}, rc)
}

func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
	}
}
