package brackets

import "github.com/Dosada05/track-bracket/models"

// Tally is the aggregate of the votes cast for one matchup.
type Tally struct {
	Counts  map[string]int  `json:"counts"`
	Ballots []models.Ballot `json:"votes"`
}

// NewTally counts every vote it is given. Votes are expected to belong to a
// single (game, round, matchup) key; storage keeps one vote per user there.
func NewTally(votes []models.Vote) Tally {
	t := Tally{
		Counts:  make(map[string]int, 2),
		Ballots: make([]models.Ballot, 0, len(votes)),
	}
	for _, v := range votes {
		t.Counts[v.TrackID]++
		t.Ballots = append(t.Ballots, models.Ballot{UserID: v.UserID, TrackID: v.TrackID})
	}
	return t
}

// TallyFromCounts wraps an already aggregated count map.
func TallyFromCounts(counts map[string]int) Tally {
	if counts == nil {
		counts = map[string]int{}
	}
	return Tally{Counts: counts, Ballots: []models.Ballot{}}
}

// Count returns the votes for trackID; a track nobody voted for has 0.
func (t Tally) Count(trackID string) int {
	return t.Counts[trackID]
}

func (t Tally) Total() int {
	total := 0
	for _, n := range t.Counts {
		total += n
	}
	return total
}
