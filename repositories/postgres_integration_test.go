//go:build integration

package repositories

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Dosada05/track-bracket/db"
	"github.com/Dosada05/track-bracket/models"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("bracket"),
		postgres.WithUsername("bracket"),
		postgres.WithPassword("bracket"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.Connect(dsn, 10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.Migrate(ctx, conn))
	require.NoError(t, db.Migrate(ctx, conn), "schema bootstrap must be repeatable")
	return conn
}

func TestPostgresRepositories(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()

	games := NewPostgresGameRepository(conn, sequence("AAAAAA", "AAAAAA", "BBBBBB"), time.Second)
	votes := NewPostgresVoteRepository(conn)
	participants := NewPostgresParticipantRepository(conn)

	first := sampleGame("11111111-1111-1111-1111-111111111111")
	require.NoError(t, games.CreateGame(ctx, first))
	second := sampleGame("22222222-2222-2222-2222-222222222222")
	require.NoError(t, games.CreateGame(ctx, second))
	assert.Equal(t, "AAAAAA", first.Code)
	assert.Equal(t, "BBBBBB", second.Code, "taken code must be redrawn")

	t.Run("load by id and code", func(t *testing.T) {
		byID, err := games.GetGameByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Bracket, byID.Bracket)
		assert.Equal(t, first.TrackPool, byID.TrackPool)
		assert.Nil(t, byID.Winner)

		byCode, err := games.GetGameByCode(ctx, "aaaaaa")
		require.NoError(t, err)
		assert.Equal(t, first.ID, byCode.ID)

		_, err = games.GetGameByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrGameNotFound)
	})

	t.Run("participants are unique", func(t *testing.T) {
		created, err := participants.AddParticipant(ctx, &models.Participant{GameID: first.ID, UserID: "u1", UserName: "Ann"})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = participants.AddParticipant(ctx, &models.Participant{GameID: first.ID, UserID: "u1", UserName: "Ann"})
		require.NoError(t, err)
		assert.False(t, created)

		list, err := participants.ListParticipants(ctx, first.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = participants.AddParticipant(ctx, &models.Participant{GameID: "missing", UserID: "u1", UserName: "Ann"})
		assert.ErrorIs(t, err, ErrGameNotFound)
	})

	t.Run("votes first wins and tally", func(t *testing.T) {
		key := models.VoteKey{GameID: first.ID, Round: 0, MatchupIdx: 0}
		for _, v := range []struct {
			user, track string
			want        bool
		}{
			{"u1", "a", true}, {"u2", "b", true}, {"u1", "b", false}, {"u3", "a", true},
		} {
			recorded, err := votes.RecordVote(ctx, &models.Vote{GameID: first.ID, UserID: v.user, TrackID: v.track})
			require.NoError(t, err)
			assert.Equal(t, v.want, recorded, "user %s", v.user)
		}

		counts, err := votes.TallyVotes(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"a": 2, "b": 1}, counts)

		list, err := votes.ListVotes(ctx, key)
		require.NoError(t, err)
		assert.Len(t, list, 3)

		_, err = votes.RecordVote(ctx, &models.Vote{GameID: "missing", UserID: "u1", TrackID: "a"})
		assert.ErrorIs(t, err, ErrGameNotFound)
	})

	t.Run("atomic updates serialize", func(t *testing.T) {
		const writers = 10
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := games.UpdateGameAtomic(ctx, second.ID, func(_ context.Context, g *models.Game, _ VoteCounter) error {
					g.Bracket.Rounds[0].Matches[0].VotesA++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		g, err := games.GetGameByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, writers, g.Bracket.Rounds[0].Matches[0].VotesA)
	})

	t.Run("winner round trips", func(t *testing.T) {
		updated, err := games.UpdateGameAtomic(ctx, second.ID, func(_ context.Context, g *models.Game, _ VoteCounter) error {
			winner := "a"
			g.Bracket.Rounds[0].Matches[0].WinnerID = &winner
			g.Winner = &models.Track{ID: "a", Name: "A"}
			return nil
		})
		require.NoError(t, err)
		assert.True(t, updated.IsDecided())

		g, err := games.GetGameByID(ctx, second.ID)
		require.NoError(t, err)
		require.NotNil(t, g.Winner)
		assert.Equal(t, "a", g.Winner.ID)
	})

	t.Run("corrupted document is rejected", func(t *testing.T) {
		_, err := conn.ExecContext(ctx, `UPDATE games SET current_matchup_idx = 42 WHERE id = $1`, first.ID)
		require.NoError(t, err)

		_, err = games.GetGameByID(ctx, first.ID)
		assert.ErrorIs(t, err, models.ErrCorruptedState)

		_, err = games.UpdateGameAtomic(ctx, first.ID, func(context.Context, *models.Game, VoteCounter) error { return nil })
		assert.ErrorIs(t, err, models.ErrCorruptedState)
	})
}
