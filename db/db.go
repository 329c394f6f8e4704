package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // Import postgres driver
)

func Connect(dsn string, timeout time.Duration, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database handle after ping error", slog.Any("error", closeErr))
		}
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	return db, nil
}

// Migrate creates the schema if it does not exist yet. Safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i+1, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS games (
		id                  TEXT PRIMARY KEY,
		code                TEXT NOT NULL,
		host_id             TEXT NOT NULL,
		playlist_id         TEXT NOT NULL DEFAULT '',
		track_pool          JSONB NOT NULL,
		bracket             JSONB NOT NULL,
		current_round       INTEGER NOT NULL DEFAULT 0,
		current_matchup_idx INTEGER NOT NULL DEFAULT 0,
		winner              JSONB,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT games_code_key UNIQUE (code)
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		game_id   TEXT NOT NULL,
		user_id   TEXT NOT NULL,
		user_name TEXT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		CONSTRAINT participants_pkey PRIMARY KEY (game_id, user_id),
		CONSTRAINT participants_game_id_fkey FOREIGN KEY (game_id) REFERENCES games (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS votes (
		game_id     TEXT NOT NULL,
		round       INTEGER NOT NULL CHECK (round >= 0),
		matchup_idx INTEGER NOT NULL CHECK (matchup_idx >= 0),
		user_id     TEXT NOT NULL,
		track_id    TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		CONSTRAINT votes_pkey PRIMARY KEY (game_id, round, matchup_idx, user_id),
		CONSTRAINT votes_game_id_fkey FOREIGN KEY (game_id) REFERENCES games (id) ON DELETE CASCADE
	)`,
}
