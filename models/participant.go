package models

import "time"

type Participant struct {
	GameID   string    `json:"game_id"`
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	JoinedAt time.Time `json:"joined_at"`
}
