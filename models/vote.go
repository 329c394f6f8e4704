package models

import "time"

// Vote is an append-only ballot for one matchup. Round is the zero-based
// index into Bracket.Rounds, MatchupIdx the index into that round's matches.
type Vote struct {
	GameID     string    `json:"game_id"`
	Round      int       `json:"round"`
	MatchupIdx int       `json:"matchup_idx"`
	UserID     string    `json:"user_id"`
	TrackID    string    `json:"track_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// VoteKey addresses the matchup a vote belongs to.
type VoteKey struct {
	GameID     string
	Round      int
	MatchupIdx int
}

// Ballot is the display form of a vote.
type Ballot struct {
	UserID  string `json:"user_id"`
	TrackID string `json:"track_id"`
}
