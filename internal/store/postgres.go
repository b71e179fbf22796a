package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/models"
)

const uniqueViolation = "23505"

// Postgres is the User Store backed by PostgreSQL.
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgres wraps an open database. The schema is applied by Migrate.
func NewPostgres(db *sql.DB, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, logger: logger.Named("store")}
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// CreateAccount stores login credentials and returns the new user id.
func (s *Postgres) CreateAccount(ctx context.Context, email, passwordHash string) (int, error) {
	var id int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id`,
		strings.ToLower(email), passwordHash,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("inserting account: %w", err)
	}
	return id, nil
}

func (s *Postgres) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		strings.ToLower(email),
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return &a, nil
}

// CreateProfile registers the user as a matchmaking participant: unmatched and with
// questionsAnswered=false.
func (s *Postgres) CreateProfile(ctx context.Context, u models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, name, gender, crush)
		VALUES ($1, $2, $3, $4)
	`, u.ID, u.Name, string(u.Gender), u.Crush)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrProfileExists
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("inserting profile: %w", err)
	}
	return nil
}

const selectUser = `
	SELECT p.user_id, p.name, u.email, p.gender, p.crush, p.matched, p.matched_with_id,
	       p.matched_at, p.questions_answered, p.created_at
	FROM profiles p
	JOIN users u ON u.id = p.user_id
`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (models.User, error) {
	var (
		u         models.User
		gender    string
		matchedID sql.NullInt64
		matchedAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &gender, &u.Crush, &u.Matched, &matchedID,
		&matchedAt, &u.QuestionsAnswered, &u.CreatedAt)
	if err != nil {
		return u, err
	}
	u.Gender = models.Gender(gender)
	if matchedID.Valid {
		id := int(matchedID.Int64)
		u.MatchedWithID = &id
	}
	if matchedAt.Valid {
		t := matchedAt.Time
		u.MatchedAt = &t
	}
	return u, nil
}

// GetUser returns the user without answers.
func (s *Postgres) GetUser(ctx context.Context, id int) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE p.user_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user %d: %w", id, err)
	}
	return &u, nil
}

// GetUserWithAnswers returns the user with its answers loaded.
func (s *Postgres) GetUserWithAnswers(ctx context.Context, id int) (*models.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	users := []models.User{*u}
	if err := loadAnswers(ctx, dbAnswerFetcher(s.db), users); err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	return &users[0], nil
}

// ListUnmatchedUsersByGender returns unmatched users of the given gender ordered by id,
// each with its answers.
func (s *Postgres) ListUnmatchedUsersByGender(ctx context.Context, gender models.Gender) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		selectUser+` WHERE p.gender = $1 AND p.matched_with_id IS NULL ORDER BY p.user_id`,
		string(gender),
	)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}
	if len(users) == 0 {
		return users, nil
	}

	if err := loadAnswers(ctx, dbAnswerFetcher(s.db), users); err != nil {
		return nil, err
	}
	return users, nil
}

// SetMutualMatch pairs a and b in one transaction. Both rows are locked in ascending id
// order and must still be unmatched; otherwise ErrConflict is returned and nothing is
// written.
func (s *Postgres) SetMutualMatch(ctx context.Context, a, b int) error {
	if a == b {
		return fmt.Errorf("%w: user %d cannot be matched with themselves", ErrConflict, a)
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT user_id, gender, matched_with_id
			FROM profiles
			WHERE user_id IN ($1, $2)
			ORDER BY user_id
			FOR UPDATE
		`, a, b)
		if err != nil {
			return fmt.Errorf("locking pair: %w", err)
		}

		var (
			found   int
			genders []string
			taken   []int
		)
		for rows.Next() {
			var (
				id        int
				gender    string
				matchedID sql.NullInt64
			)
			if err := rows.Scan(&id, &gender, &matchedID); err != nil {
				rows.Close()
				return fmt.Errorf("scanning locked row: %w", err)
			}
			found++
			genders = append(genders, gender)
			if matchedID.Valid {
				taken = append(taken, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating locked rows: %w", err)
		}

		if found != 2 {
			return ErrNotFound
		}
		if len(taken) > 0 {
			s.logger.Debug("mutual match rejected, user already matched",
				zap.Int("user_a", a), zap.Int("user_b", b), zap.Ints("taken", taken))
			return fmt.Errorf("%w: users %v already matched", ErrConflict, taken)
		}
		if genders[0] == genders[1] {
			return fmt.Errorf("%w: users %d and %d share gender %s", ErrConflict, a, b, genders[0])
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET matched = TRUE,
			    matched_at = NOW(),
			    matched_with_id = CASE user_id WHEN $1::int THEN $2::int ELSE $1::int END
			WHERE user_id IN ($1::int, $2::int) AND matched_with_id IS NULL
		`, a, b)
		if err != nil {
			return fmt.Errorf("updating pair: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("counting updated rows: %w", err)
		}
		if n != 2 {
			return fmt.Errorf("%w: updated %d of 2 rows", ErrConflict, n)
		}
		return nil
	})
}
