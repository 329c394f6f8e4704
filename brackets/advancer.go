package brackets

import (
	"fmt"

	"github.com/Dosada05/track-bracket/models"
)

type Outcome string

const (
	// OutcomeNextMatchup: the cursor moved within the active round.
	OutcomeNextMatchup Outcome = "next_matchup"
	// OutcomeNextRound: a new round was appended and the cursor moved to its first matchup.
	OutcomeNextRound Outcome = "next_round"
	// OutcomeDecided: this advance produced the tournament winner.
	OutcomeDecided Outcome = "decided"
	// OutcomeAlreadyDecided: the game was terminal before the call; nothing changed.
	OutcomeAlreadyDecided Outcome = "already_decided"
)

type Advancer struct {
	rng Randomizer
}

func NewAdvancer(rng Randomizer) *Advancer {
	if rng == nil {
		rng = DefaultRandomizer()
	}
	return &Advancer{rng: rng}
}

// ResolveMatchup fills winner and vote counts of an undecided matchup from the
// tally. Strictly more votes wins; equal counts, 0-0 included, go to a coin flip.
// Resolved matchups, byes included, are left untouched.
func (a *Advancer) ResolveMatchup(m *models.Matchup, t Tally) error {
	if m.IsResolved() {
		return nil
	}
	if m.IsBye() {
		return fmt.Errorf("%w: bye %s has no winner", models.ErrCorruptedState, m.MatchID)
	}

	trackA, trackB := m.TrackAID, *m.TrackBID
	votesA, votesB := t.Count(trackA), t.Count(trackB)

	winner := trackA
	switch {
	case votesA > votesB:
	case votesB > votesA:
		winner = trackB
	default:
		if a.rng.IntN(2) == 1 {
			winner = trackB
		}
	}

	m.VotesA = votesA
	m.VotesB = votesB
	m.WinnerID = &winner
	return nil
}

// Advance resolves the matchup under the cursor using t, which must be the
// tally for exactly that matchup, then moves the game forward one step.
// The game is modified in place. On a decided game it is a no-op.
func (a *Advancer) Advance(g *models.Game, t Tally) (Outcome, error) {
	if g.IsDecided() {
		return OutcomeAlreadyDecided, nil
	}

	rounds := g.Bracket.Rounds
	if g.CurrentRound != len(rounds)-1 {
		return "", fmt.Errorf("%w: cursor round %d is not the active round", models.ErrCorruptedState, g.CurrentRound)
	}
	current, err := g.CurrentMatchup()
	if err != nil {
		return "", err
	}
	if err := a.ResolveMatchup(current, t); err != nil {
		return "", err
	}

	active := rounds[g.CurrentRound]
	if g.CurrentMatchupIdx+1 < len(active.Matches) {
		g.CurrentMatchupIdx++
		return OutcomeNextMatchup, nil
	}

	winners := make([]string, 0, len(active.Matches))
	for i := range active.Matches {
		m := &active.Matches[i]
		if !m.IsResolved() {
			return "", fmt.Errorf("%w: match %s closed without a winner", models.ErrCorruptedState, m.MatchID)
		}
		winners = append(winners, *m.WinnerID)
	}

	// Нечётный победитель переносится в следующий раунд как bye.
	var oddTrack *string
	if len(winners)%2 == 1 {
		last := winners[len(winners)-1]
		oddTrack = &last
		winners = winners[:len(winners)-1]
	}

	switch {
	case len(winners) == 0 && oddTrack != nil:
		return a.decide(g, *oddTrack)
	case len(winners) == 1 && oddTrack == nil:
		return a.decide(g, winners[0])
	case len(winners) == 0:
		return "", fmt.Errorf("%w: round %d has no winners", models.ErrCorruptedState, active.RoundNumber)
	}

	next := winners
	if oddTrack != nil {
		next = append(next, *oddTrack)
	}
	g.Bracket.Rounds = append(g.Bracket.Rounds, buildRound(active.RoundNumber+1, next))
	g.CurrentRound++
	g.CurrentMatchupIdx = 0
	return OutcomeNextRound, nil
}

func (a *Advancer) decide(g *models.Game, trackID string) (Outcome, error) {
	track, ok := g.TrackByID(trackID)
	if !ok {
		return "", fmt.Errorf("%w: winner %q is not in the track pool", models.ErrCorruptedState, trackID)
	}
	w := *track
	g.Winner = &w
	return OutcomeDecided, nil
}
