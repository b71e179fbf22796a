package store

import (
	"context"
	"fmt"
)

// schema is idempotent; Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            SERIAL PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id            INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		name               TEXT NOT NULL,
		gender             TEXT NOT NULL CHECK (gender IN ('male', 'female')),
		crush              TEXT NOT NULL DEFAULT '',
		questions_answered BOOLEAN NOT NULL DEFAULT FALSE,
		matched            BOOLEAN NOT NULL DEFAULT FALSE,
		matched_with_id    INTEGER REFERENCES profiles(user_id),
		matched_at         TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (matched_with_id IS NULL OR matched_with_id <> user_id),
		CHECK (matched = (matched_with_id IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS profiles_unmatched_gender_idx
		ON profiles (gender, user_id) WHERE matched_with_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS answers (
		id              SERIAL PRIMARY KEY,
		user_id         INTEGER NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
		question_number INTEGER NOT NULL CHECK (question_number > 0),
		answer          TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, question_number)
	)`,
}

// Migrate creates the tables the service needs.
func (s *Postgres) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	s.logger.Info("database schema is up to date")
	return nil
}

// Truncate removes every row. Used by the seeder and integration tests.
func (s *Postgres) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE answers, profiles, users RESTART IDENTITY CASCADE`)
	return err
}
