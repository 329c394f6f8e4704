package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/track-bracket/models"
)

// VoteCounter counts the votes of one matchup per track.
type VoteCounter interface {
	TallyVotes(ctx context.Context, key models.VoteKey) (map[string]int, error)
}

// GameMutator changes a locked game in place. votes reads inside the same
// transaction that holds the lock. Returning an error aborts the update and
// nothing is written.
type GameMutator func(ctx context.Context, game *models.Game, votes VoteCounter) error

type GameRepository interface {
	// CreateGame persists a new game and assigns it a unique join code.
	CreateGame(ctx context.Context, game *models.Game) error
	GetGameByID(ctx context.Context, id string) (*models.Game, error)
	GetGameByCode(ctx context.Context, code string) (*models.Game, error)
	// UpdateGameAtomic runs mutate under an exclusive lock on the game and
	// persists the result. Concurrent calls for one game are serialized.
	UpdateGameAtomic(ctx context.Context, id string, mutate GameMutator) (*models.Game, error)
	Ping(ctx context.Context) error
}

type postgresGameRepository struct {
	db          *sql.DB
	codes       CodeGenerator
	lockTimeout time.Duration
}

func NewPostgresGameRepository(db *sql.DB, codes CodeGenerator, lockTimeout time.Duration) GameRepository {
	if codes == nil {
		codes = NewCodeGenerator()
	}
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &postgresGameRepository{db: db, codes: codes, lockTimeout: lockTimeout}
}

const selectGameColumns = `
	SELECT id, code, host_id, playlist_id, track_pool, bracket,
		current_round, current_matchup_idx, winner, created_at, updated_at
	FROM games`

func (r *postgresGameRepository) CreateGame(ctx context.Context, g *models.Game) error {
	pool, err := json.Marshal(g.TrackPool)
	if err != nil {
		return fmt.Errorf("failed to encode track pool: %w", err)
	}
	bracket, err := json.Marshal(g.Bracket)
	if err != nil {
		return fmt.Errorf("failed to encode bracket: %w", err)
	}

	query := `
		INSERT INTO games (id, code, host_id, playlist_id, track_pool, bracket, current_round, current_matchup_idx)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return insertWithUniqueCode(ctx, r.codes, func(code string) error {
		err := r.db.QueryRowContext(ctx, query,
			g.ID, code, g.HostID, g.PlaylistID, string(pool), string(bracket), g.CurrentRound, g.CurrentMatchupIdx,
		).Scan(&g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return mapStorageError(err)
		}
		g.Code = code
		return nil
	})
}

func (r *postgresGameRepository) GetGameByID(ctx context.Context, id string) (*models.Game, error) {
	return scanGame(r.db.QueryRowContext(ctx, selectGameColumns+` WHERE id = $1`, id))
}

func (r *postgresGameRepository) GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrGameNotFound
	}
	return scanGame(r.db.QueryRowContext(ctx, selectGameColumns+` WHERE code = $1`, code))
}

func (r *postgresGameRepository) UpdateGameAtomic(ctx context.Context, id string, mutate GameMutator) (game *models.Game, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapStorageError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// SET LOCAL does not accept bind parameters.
	lockQuery := fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, r.lockTimeout.Milliseconds())
	if _, err = tx.ExecContext(ctx, lockQuery); err != nil {
		return nil, mapStorageError(fmt.Errorf("failed to set lock timeout: %w", err))
	}

	game, err = scanGame(tx.QueryRowContext(ctx, selectGameColumns+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	// Подсчёт голосов идёт через ту же транзакцию: второе соединение из пула
	// здесь не берём.
	if err = mutate(ctx, game, &postgresVoteRepository{db: tx}); err != nil {
		return nil, err
	}
	if err = game.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to persist game %s: %w", id, err)
	}

	if err = writeGame(ctx, tx, game); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, mapCommitError(fmt.Errorf("failed to commit game %s: %w", id, err))
	}
	return game, nil
}

func (r *postgresGameRepository) Ping(ctx context.Context) error {
	return mapStorageError(r.db.PingContext(ctx))
}

func writeGame(ctx context.Context, exec SQLExecutor, g *models.Game) error {
	bracket, err := json.Marshal(g.Bracket)
	if err != nil {
		return fmt.Errorf("failed to encode bracket: %w", err)
	}
	var winner interface{} // NULL пока победитель не определён
	if g.Winner != nil {
		encoded, err := json.Marshal(g.Winner)
		if err != nil {
			return fmt.Errorf("failed to encode winner: %w", err)
		}
		winner = string(encoded)
	}

	query := `
		UPDATE games SET
			bracket = $1,
			current_round = $2,
			current_matchup_idx = $3,
			winner = $4,
			updated_at = now()
		WHERE id = $5
		RETURNING updated_at`
	err = exec.QueryRowContext(ctx, query,
		string(bracket), g.CurrentRound, g.CurrentMatchupIdx, winner, g.ID,
	).Scan(&g.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrGameNotFound
		}
		return mapStorageError(err)
	}
	return nil
}

// scanGame decodes one games row. Documents that do not decode or validate
// are reported as models.ErrCorruptedState.
func scanGame(row *sql.Row) (*models.Game, error) {
	var (
		g                  models.Game
		pool, bracket, win []byte
	)
	err := row.Scan(
		&g.ID, &g.Code, &g.HostID, &g.PlaylistID, &pool, &bracket,
		&g.CurrentRound, &g.CurrentMatchupIdx, &win, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, mapStorageError(err)
	}

	if err := json.Unmarshal(pool, &g.TrackPool); err != nil {
		return nil, fmt.Errorf("%w: game %s track pool: %v", models.ErrCorruptedState, g.ID, err)
	}
	if err := json.Unmarshal(bracket, &g.Bracket); err != nil {
		return nil, fmt.Errorf("%w: game %s bracket: %v", models.ErrCorruptedState, g.ID, err)
	}
	if len(win) > 0 {
		g.Winner = &models.Track{}
		if err := json.Unmarshal(win, g.Winner); err != nil {
			return nil, fmt.Errorf("%w: game %s winner: %v", models.ErrCorruptedState, g.ID, err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}
