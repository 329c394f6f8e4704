package brackets

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/Dosada05/track-bracket/models"
)

var ErrEmptyPool = errors.New("cannot generate bracket from an empty track pool")

type GenerateBracketParams struct {
	Tracks []models.Track
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) (*models.Bracket, error)

	GetName() string
}

// Randomizer is the only source of randomness for the engine: the round 1
// permutation and tie-break coin flips. *rand.Rand satisfies it.
type Randomizer interface {
	Shuffle(n int, swap func(i, j int))
	IntN(n int) int
}

type globalRandomizer struct{}

func (globalRandomizer) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }
func (globalRandomizer) IntN(n int) int                     { return rand.IntN(n) }

// DefaultRandomizer uses the auto-seeded top-level generator of math/rand/v2,
// which is safe for concurrent use.
func DefaultRandomizer() Randomizer {
	return globalRandomizer{}
}

// MatchID формирует идентификатор вида "<round_number>-<position>".
func MatchID(roundNumber, position int) string {
	return fmt.Sprintf("%d-%d", roundNumber, position)
}

// buildRound pairs ids consecutively. An odd id count leaves the last id in a
// bye matchup at the end of the round.
func buildRound(roundNumber int, ids []string) models.Round {
	matches := make([]models.Matchup, 0, (len(ids)+1)/2)
	for i := 0; i < len(ids); i += 2 {
		position := len(matches) + 1
		if i+1 == len(ids) {
			matches = append(matches, newBye(MatchID(roundNumber, position), ids[i]))
			continue
		}
		b := ids[i+1]
		matches = append(matches, models.Matchup{
			MatchID:  MatchID(roundNumber, position),
			TrackAID: ids[i],
			TrackBID: &b,
		})
	}
	return models.Round{RoundNumber: roundNumber, Matches: matches}
}

func newBye(matchID, trackID string) models.Matchup {
	winner := trackID
	return models.Matchup{
		MatchID:  matchID,
		TrackAID: trackID,
		WinnerID: &winner,
	}
}
