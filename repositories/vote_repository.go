package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/track-bracket/models"
)

var errDuplicateVote = errors.New("duplicate vote")

type VoteRepository interface {
	// RecordVote appends a vote. Only the first vote of a user per matchup is
	// kept; later ones return recorded == false without an error.
	RecordVote(ctx context.Context, v *models.Vote) (recorded bool, err error)
	// TallyVotes counts votes per track for one matchup in a single query.
	VoteCounter
	ListVotes(ctx context.Context, key models.VoteKey) ([]models.Vote, error)
}

type postgresVoteRepository struct {
	db SQLExecutor
}

func NewPostgresVoteRepository(db *sql.DB) VoteRepository {
	return &postgresVoteRepository{db: db}
}

func (r *postgresVoteRepository) RecordVote(ctx context.Context, v *models.Vote) (bool, error) {
	query := `
		INSERT INTO votes (game_id, round, matchup_idx, user_id, track_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (game_id, round, matchup_idx, user_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, v.GameID, v.Round, v.MatchupIdx, v.UserID, v.TrackID)
	if err != nil {
		return false, mapStorageError(err)
	}
	if err := checkAffectedRows(result, errDuplicateVote); err != nil {
		if errors.Is(err, errDuplicateVote) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *postgresVoteRepository) TallyVotes(ctx context.Context, key models.VoteKey) (map[string]int, error) {
	query := `
		SELECT track_id, COUNT(*)
		FROM votes
		WHERE game_id = $1 AND round = $2 AND matchup_idx = $3
		GROUP BY track_id`

	rows, err := r.db.QueryContext(ctx, query, key.GameID, key.Round, key.MatchupIdx)
	if err != nil {
		return nil, mapStorageError(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			trackID string
			n       int
		)
		if err := rows.Scan(&trackID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan tally row: %w", err)
		}
		counts[trackID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageError(err)
	}
	return counts, nil
}

func (r *postgresVoteRepository) ListVotes(ctx context.Context, key models.VoteKey) ([]models.Vote, error) {
	query := `
		SELECT game_id, round, matchup_idx, user_id, track_id, created_at
		FROM votes
		WHERE game_id = $1 AND round = $2 AND matchup_idx = $3
		ORDER BY created_at, user_id`

	rows, err := r.db.QueryContext(ctx, query, key.GameID, key.Round, key.MatchupIdx)
	if err != nil {
		return nil, mapStorageError(err)
	}
	defer rows.Close()

	votes := make([]models.Vote, 0)
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.GameID, &v.Round, &v.MatchupIdx, &v.UserID, &v.TrackID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageError(err)
	}
	return votes, nil
}
