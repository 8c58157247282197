package domain

import "time"

// SpotBlock makes one spot unavailable on one calendar day regardless of any
// booking state. Pool capacity for a day is NormalPoolSize minus the blocks
// on pool spots for that day.
type SpotBlock struct {
	ID        int       `json:"id"`
	SpotID    int       `json:"spot_id"`
	Date      string    `json:"date"`
	CreatedBy int       `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateSpotBlockDTO struct {
	SpotID int    `json:"spot_id" binding:"required"`
	Date   string `json:"date" binding:"required"`
}
