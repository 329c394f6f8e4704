package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrCorruptedState is returned when a persisted game document or its cursor
// does not describe a reachable bracket position. It is never repaired.
var ErrCorruptedState = errors.New("corrupted game state")

// GameState is the state machine position of a game.
type GameState string

const (
	GameStateVoting  GameState = "voting"
	GameStateDecided GameState = "decided"
)

// Matchup is one head-to-head comparison. TrackBID == nil marks a bye, which
// is born resolved with WinnerID == TrackAID.
type Matchup struct {
	MatchID  string  `json:"match_id"`
	TrackAID string  `json:"track_a_id"`
	TrackBID *string `json:"track_b_id"`
	WinnerID *string `json:"winner_id"`
	VotesA   int     `json:"votes_a"`
	VotesB   int     `json:"votes_b"`
}

func (m *Matchup) IsBye() bool {
	return m.TrackBID == nil
}

func (m *Matchup) IsResolved() bool {
	return m.WinnerID != nil
}

// HasContestant reports whether trackID is one of the matchup's tracks.
func (m *Matchup) HasContestant(trackID string) bool {
	if trackID == "" {
		return false
	}
	if m.TrackAID == trackID {
		return true
	}
	return m.TrackBID != nil && *m.TrackBID == trackID
}

type Round struct {
	RoundNumber int       `json:"round_number"`
	Matches     []Matchup `json:"matches"`
}

// Bracket is append-only at round granularity; the active round is the last one.
type Bracket struct {
	Rounds []Round `json:"rounds"`
}

type Game struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	HostID            string    `json:"host_id"`
	PlaylistID        string    `json:"playlist_id,omitempty"`
	TrackPool         []Track   `json:"tracks"`
	Bracket           Bracket   `json:"bracket"`
	CurrentRound      int       `json:"current_round"`
	CurrentMatchupIdx int       `json:"current_matchup_idx"`
	Winner            *Track    `json:"winner"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (g *Game) State() GameState {
	if g.Winner != nil {
		return GameStateDecided
	}
	return GameStateVoting
}

func (g *Game) IsDecided() bool {
	return g.Winner != nil
}

// TrackByID looks a track up in the pool.
func (g *Game) TrackByID(id string) (*Track, bool) {
	for i := range g.TrackPool {
		if g.TrackPool[i].ID == id {
			return &g.TrackPool[i], true
		}
	}
	return nil, false
}

// MatchupAt returns the matchup addressed by a (round index, matchup index) pair.
func (g *Game) MatchupAt(round, matchupIdx int) (*Matchup, bool) {
	if round < 0 || round >= len(g.Bracket.Rounds) {
		return nil, false
	}
	matches := g.Bracket.Rounds[round].Matches
	if matchupIdx < 0 || matchupIdx >= len(matches) {
		return nil, false
	}
	return &g.Bracket.Rounds[round].Matches[matchupIdx], true
}

// CurrentMatchup returns the matchup under the cursor. A cursor outside the
// bracket is reported as ErrCorruptedState.
func (g *Game) CurrentMatchup() (*Matchup, error) {
	m, ok := g.MatchupAt(g.CurrentRound, g.CurrentMatchupIdx)
	if !ok {
		return nil, fmt.Errorf("%w: cursor (%d, %d) outside bracket with %d rounds",
			ErrCorruptedState, g.CurrentRound, g.CurrentMatchupIdx, len(g.Bracket.Rounds))
	}
	return m, nil
}

// Validate checks a loaded game document. Every violation wraps ErrCorruptedState.
func (g *Game) Validate() error {
	if g.ID == "" || g.Code == "" {
		return fmt.Errorf("%w: missing id or code", ErrCorruptedState)
	}
	if len(g.TrackPool) == 0 {
		return fmt.Errorf("%w: game %s has an empty track pool", ErrCorruptedState, g.ID)
	}
	pool := make(map[string]struct{}, len(g.TrackPool))
	for _, t := range g.TrackPool {
		if t.ID == "" {
			return fmt.Errorf("%w: game %s has a track without id", ErrCorruptedState, g.ID)
		}
		pool[t.ID] = struct{}{}
	}
	known := func(id string) bool {
		_, ok := pool[id]
		return ok
	}

	rounds := g.Bracket.Rounds
	if len(rounds) == 0 {
		return fmt.Errorf("%w: game %s has no rounds", ErrCorruptedState, g.ID)
	}
	for ri, r := range rounds {
		if r.RoundNumber != ri+1 {
			return fmt.Errorf("%w: round at index %d has number %d", ErrCorruptedState, ri, r.RoundNumber)
		}
		if len(r.Matches) == 0 {
			return fmt.Errorf("%w: round %d has no matches", ErrCorruptedState, r.RoundNumber)
		}
		for mi := range r.Matches {
			m := &r.Matches[mi]
			if err := validateMatchup(m, known); err != nil {
				return fmt.Errorf("round %d match %d: %w", r.RoundNumber, mi, err)
			}
			if ri < len(rounds)-1 && !m.IsResolved() {
				return fmt.Errorf("%w: unresolved match %s in closed round %d", ErrCorruptedState, m.MatchID, r.RoundNumber)
			}
		}
	}

	if g.CurrentRound != len(rounds)-1 {
		return fmt.Errorf("%w: cursor round %d is not the active round %d", ErrCorruptedState, g.CurrentRound, len(rounds)-1)
	}
	active := rounds[g.CurrentRound].Matches
	if g.CurrentMatchupIdx < 0 || g.CurrentMatchupIdx >= len(active) {
		return fmt.Errorf("%w: cursor matchup %d outside round of %d", ErrCorruptedState, g.CurrentMatchupIdx, len(active))
	}
	for mi := 0; mi < g.CurrentMatchupIdx; mi++ {
		if !active[mi].IsResolved() {
			return fmt.Errorf("%w: match %s behind the cursor is unresolved", ErrCorruptedState, active[mi].MatchID)
		}
	}

	if g.Winner != nil && !known(g.Winner.ID) {
		return fmt.Errorf("%w: winner %q is not in the track pool", ErrCorruptedState, g.Winner.ID)
	}
	return nil
}

func validateMatchup(m *Matchup, known func(string) bool) error {
	if m.MatchID == "" {
		return fmt.Errorf("%w: missing match_id", ErrCorruptedState)
	}
	if !known(m.TrackAID) {
		return fmt.Errorf("%w: unknown track_a_id %q", ErrCorruptedState, m.TrackAID)
	}
	if m.VotesA < 0 || m.VotesB < 0 {
		return fmt.Errorf("%w: negative vote count", ErrCorruptedState)
	}
	if m.IsBye() {
		if m.WinnerID == nil || *m.WinnerID != m.TrackAID {
			return fmt.Errorf("%w: bye %s is not resolved to its track", ErrCorruptedState, m.MatchID)
		}
		return nil
	}
	if !known(*m.TrackBID) || *m.TrackBID == m.TrackAID {
		return fmt.Errorf("%w: invalid track_b_id %q", ErrCorruptedState, *m.TrackBID)
	}
	if m.WinnerID != nil && !m.HasContestant(*m.WinnerID) {
		return fmt.Errorf("%w: winner %q is not a contestant of %s", ErrCorruptedState, *m.WinnerID, m.MatchID)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate it without aliasing.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	c.TrackPool = make([]Track, len(g.TrackPool))
	for i, t := range g.TrackPool {
		c.TrackPool[i] = t.clone()
	}
	c.Bracket = g.Bracket.Clone()
	if g.Winner != nil {
		w := g.Winner.clone()
		c.Winner = &w
	}
	return &c
}

func (b Bracket) Clone() Bracket {
	rounds := make([]Round, len(b.Rounds))
	for i, r := range b.Rounds {
		matches := make([]Matchup, len(r.Matches))
		for j, m := range r.Matches {
			matches[j] = m
			matches[j].TrackBID = copyString(m.TrackBID)
			matches[j].WinnerID = copyString(m.WinnerID)
		}
		rounds[i] = Round{RoundNumber: r.RoundNumber, Matches: matches}
	}
	return Bracket{Rounds: rounds}
}

func (t Track) clone() Track {
	c := t
	if t.Artists != nil {
		c.Artists = append([]string(nil), t.Artists...)
	}
	if t.DurationMs != nil {
		d := *t.DurationMs
		c.DurationMs = &d
	}
	c.PreviewURL = copyString(t.PreviewURL)
	return c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
