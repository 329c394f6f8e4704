package brackets_test

import (
	"math/rand/v2"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/track-bracket/brackets"
	"github.com/Dosada05/track-bracket/models"
)

// stubRand keeps input order and always flips the same coin side.
type stubRand struct {
	coin int
}

func (stubRand) Shuffle(int, func(i, j int)) {}
func (s stubRand) IntN(int) int              { return s.coin }

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func fakeTracks(n int, seed uint64) []models.Track {
	faker := gofakeit.New(seed)
	tracks := make([]models.Track, n)
	for i := range tracks {
		duration := faker.Number(60_000, 420_000)
		tracks[i] = models.Track{
			ID:            faker.UUID(),
			Name:          faker.Word(),
			Artists:       []string{faker.Name()},
			AlbumName:     faker.Word(),
			AlbumImageURL: faker.URL(),
			DurationMs:    &duration,
		}
	}
	return tracks
}

func namedTracks(ids ...string) []models.Track {
	tracks := make([]models.Track, len(ids))
	for i, id := range ids {
		tracks[i] = models.Track{ID: id, Name: "track " + id}
	}
	return tracks
}

func newGame(t *testing.T, gen brackets.BracketGenerator, tracks []models.Track) *models.Game {
	t.Helper()
	bracket, err := gen.GenerateBracket(t.Context(), brackets.GenerateBracketParams{Tracks: tracks})
	require.NoError(t, err)
	return &models.Game{
		ID:        "game-1",
		Code:      "ABC123",
		HostID:    "host",
		TrackPool: tracks,
		Bracket:   *bracket,
	}
}

func ptr(s string) *string { return &s }

func trackIDs(tracks []models.Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
