package types

// Snapshot is the full room state sent with update_game.
type Snapshot struct {
	Version           int                 `json:"version"`
	RoomCode          string              `json:"room_code"`
	GameState         string              `json:"game_state"`
	TurnOrder         []string            `json:"turn_order"`
	Players           map[string][]string `json:"players"`
	CurrentPlayer     *string             `json:"current_player"`
	VictoryPlayer     *string             `json:"victory_player"`
	ReactionTimes     map[string]int64    `json:"reaction_times"`
	Forfeited         []string            `json:"forfeited,omitempty"`
	ReactionStartTime *int64              `json:"reaction_start_time"`
	RoundScored       bool                `json:"round_scored"`
	Scores            map[string]int      `json:"scores"`
	RoundNumber       int                 `json:"round_number"`
	PoolRemaining     int                 `json:"pool_remaining"`
}
