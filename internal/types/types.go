package types

type ClientMessage struct {
	Type         string `json:"type"`
	RoomCode     string `json:"room_code,omitempty"`
	PlayerName   string `json:"player_name,omitempty"`
	Chit         string `json:"chit,omitempty"`
	ReactionTime int64  `json:"reaction_time,omitempty"`
}

type ServerMessage struct {
	Type    string `json:"type"` // see pkg/types event names
	Payload any    `json:"payload,omitempty"`
}
