package types

// Client -> Server
//
// create_room:     player_name, room_code
// join_room:       player_name, room_code
// select_chit:     room_code, player_name, chit
// declare_victory: room_code, player_name
// stack_hand:      room_code, player_name, reaction_time (ms since epoch, client clock)
// restart_game:    room_code
// end_game:        room_code

const (
	EventCreateRoom     = "create_room"
	EventJoinRoom       = "join_room"
	EventSelectChit     = "select_chit"
	EventDeclareVictory = "declare_victory"
	EventStackHand      = "stack_hand"
	EventRestartGame    = "restart_game"
	EventEndGame        = "end_game"
)

// Server -> Client

const (
	EventRoomError    = "room_error"    // offending connection only
	EventRoomJoined   = "room_joined"   // joining connection only
	EventUpdateGame   = "update_game"   // room broadcast after every accepted mutation
	EventGameOver     = "game_over"     // room broadcast once a round is scored
	EventFinalResults = "final_results" // room broadcast before teardown
)

type RoomError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type RoomJoined struct {
	RoomCode      string              `json:"room_code"`
	PlayerName    string              `json:"player_name"`
	CurrentPlayer *string             `json:"current_player"`
	Players       map[string][]string `json:"players"`
	GameState     string              `json:"game_state"`
}

type Placement struct {
	Player    string `json:"player"`
	ElapsedMs *int64 `json:"elapsed_ms"` // nil when forfeited
	Place     int    `json:"place"`
	Points    int    `json:"points"`
	Forfeit   bool   `json:"forfeit,omitempty"`
}

type GameOver struct {
	Winner        string         `json:"winner"`
	SlowestPlayer *string        `json:"slowest_player"`
	Scores        map[string]int `json:"scores"`
	RoundNumber   int            `json:"round_number"`
	Placements    []Placement    `json:"placements"`
}

type FinalResults struct {
	Scores      map[string]int `json:"scores"`
	FinalWinner *string        `json:"final_winner"`
	FinalLoser  *string        `json:"final_loser"`
	RoundNumber int            `json:"round_number"`
}
