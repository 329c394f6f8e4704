package brackets

import (
	"context"
	"fmt"

	"github.com/Dosada05/track-bracket/models"
)

// SingleEliminationGenerator builds only round 1. Later rounds are appended by
// the Advancer as the previous round resolves.
type SingleEliminationGenerator struct {
	rng Randomizer
}

func NewSingleEliminationGenerator(rng Randomizer) BracketGenerator {
	if rng == nil {
		rng = DefaultRandomizer()
	}
	return &SingleEliminationGenerator{rng: rng}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*models.Bracket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(params.Tracks)
	if n == 0 {
		return nil, ErrEmptyPool
	}

	ids := make([]string, n)
	seen := make(map[string]struct{}, n)
	for i, t := range params.Tracks {
		if t.ID == "" {
			return nil, fmt.Errorf("track at position %d has no id", i)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("duplicate track id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
		ids[i] = t.ID
	}

	g.rng.Shuffle(n, func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})

	return &models.Bracket{Rounds: []models.Round{buildRound(1, ids)}}, nil
}
