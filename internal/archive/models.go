package archive

import (
	"maps"
	"time"

	"github.com/DoyleJ11/chits-backend/internal/engine"
)

type PlacementRecord struct {
	Player    string `json:"player"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Place     int    `json:"place"`
	Points    int    `json:"points"`
	Forfeit   bool   `json:"forfeit,omitempty"`
}

type RoundRecord struct {
	ID         uint              `gorm:"primaryKey"`
	RoomCode   string            `gorm:"size:4;index"`
	Round      int               `gorm:"not null"`
	Winner     string            `gorm:"not null"`
	Slowest    string
	Placements []PlacementRecord `gorm:"type:jsonb;serializer:json"`
	Scores     map[string]int    `gorm:"type:jsonb;serializer:json"`
	CreatedAt  time.Time
}

type SeriesRecord struct {
	ID        uint           `gorm:"primaryKey"`
	RoomCode  string         `gorm:"size:4;index"`
	Winner    string
	Loser     string
	Rounds    int
	Scores    map[string]int `gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time
}

func roundRecordOf(code string, res engine.RoundResult) RoundRecord {
	rec := RoundRecord{
		RoomCode:   code,
		Round:      res.Round,
		Winner:     res.Winner,
		Slowest:    res.Slowest,
		Placements: make([]PlacementRecord, 0, len(res.Placements)),
		Scores:     maps.Clone(res.Scores),
	}
	for _, p := range res.Placements {
		elapsed := p.ElapsedMs
		if p.Forfeit {
			elapsed = -1
		}
		rec.Placements = append(rec.Placements, PlacementRecord{
			Player:    p.Player,
			ElapsedMs: elapsed,
			Place:     p.Place,
			Points:    p.Points,
			Forfeit:   p.Forfeit,
		})
	}
	return rec
}

func seriesRecordOf(code string, res engine.FinalResults) SeriesRecord {
	return SeriesRecord{
		RoomCode: code,
		Winner:   res.Winner,
		Loser:    res.Loser,
		Rounds:   res.Rounds,
		Scores:   maps.Clone(res.Scores),
	}
}
