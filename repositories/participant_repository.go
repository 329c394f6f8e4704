package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/track-bracket/models"
)

type ParticipantRepository interface {
	// AddParticipant is idempotent per (game_id, user_id). created is false
	// when the user had already joined; the stored row is left unchanged.
	AddParticipant(ctx context.Context, p *models.Participant) (created bool, err error)
	ListParticipants(ctx context.Context, gameID string) ([]models.Participant, error)
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) AddParticipant(ctx context.Context, p *models.Participant) (bool, error) {
	query := `
		INSERT INTO participants (game_id, user_id, user_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (game_id, user_id) DO NOTHING
		RETURNING joined_at`

	err := r.db.QueryRowContext(ctx, query, p.GameID, p.UserID, p.UserName).Scan(&p.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, mapStorageError(err)
	}
	return true, nil
}

func (r *postgresParticipantRepository) ListParticipants(ctx context.Context, gameID string) ([]models.Participant, error) {
	query := `
		SELECT game_id, user_id, user_name, joined_at
		FROM participants
		WHERE game_id = $1
		ORDER BY joined_at, user_id`

	rows, err := r.db.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.GameID, &p.UserID, &p.UserName, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageError(err)
	}
	return participants, nil
}
