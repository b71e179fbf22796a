// Package seed fills a store with deterministic fake students for local testing.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/promnight/prom-match/internal/models"
	"github.com/promnight/prom-match/internal/questionnaire"
)

type Store interface {
	CreateAccount(ctx context.Context, email, passwordHash string) (int, error)
	CreateProfile(ctx context.Context, u models.User) error
	SubmitAnswers(ctx context.Context, userID int, answers []models.Answer) error
}

type Options struct {
	Count      int
	Seed       int64
	Password   string  // same password for everyone (easy login)
	AnswerRate float64 // proportion of users who complete the questionnaire
}

func (o Options) Validate() error {
	if o.Count < 1 {
		return errors.New("count must be at least 1")
	}
	if o.AnswerRate < 0 || o.AnswerRate > 1 {
		return errors.New("answer rate must be in range 0..1")
	}
	if o.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// Result lists the created user ids.
type Result struct {
	UserIDs  []int
	Answered int
}

// Run creates Count users with alternating genders. The first two are fixed test
// accounts (user1@test.local, user2@test.local) who always answer the questionnaire.
func Run(ctx context.Context, s Store, o Options, logger *zap.Logger) (Result, error) {
	if err := o.Validate(); err != nil {
		return Result{}, err
	}

	r := rand.New(rand.NewSource(o.Seed))

	pwHash, err := bcrypt.GenerateFromPassword([]byte(o.Password), bcrypt.DefaultCost)
	if err != nil {
		return Result{}, fmt.Errorf("bcrypt: %w", err)
	}

	emails := make(map[string]struct{}, o.Count)
	testEmails := []string{"user1@test.local", "user2@test.local"}

	var res Result
	for i := 0; i < o.Count; i++ {
		email := ""
		if i < len(testEmails) {
			email = testEmails[i]
		} else {
			email = uniqueEmail(r, emails)
		}

		id, err := s.CreateAccount(ctx, email, string(pwHash))
		if err != nil {
			return res, fmt.Errorf("create account %d (%s): %w", i, email, err)
		}

		gender := models.Female
		if i%2 == 1 {
			gender = models.Male
		}
		err = s.CreateProfile(ctx, models.User{
			ID:     id,
			Name:   displayName(r),
			Gender: gender,
			Crush:  crush(r),
		})
		if err != nil {
			return res, fmt.Errorf("create profile %d: %w", id, err)
		}
		res.UserIDs = append(res.UserIDs, id)

		if i < len(testEmails) || r.Float64() < o.AnswerRate {
			if err := s.SubmitAnswers(ctx, id, randomAnswers(r, id)); err != nil {
				return res, fmt.Errorf("submit answers %d: %w", id, err)
			}
			res.Answered++
		}
	}

	logger.Info("seed complete", zap.Int("users", len(res.UserIDs)), zap.Int("answered", res.Answered))
	return res, nil
}

func randomAnswers(r *rand.Rand, userID int) []models.Answer {
	answers := make([]models.Answer, 0, len(questionnaire.Catalog))
	for _, q := range questionnaire.Catalog {
		answers = append(answers, models.Answer{
			UserID:         userID,
			QuestionNumber: q.Number,
			Value:          q.Options[r.Intn(len(q.Options))],
		})
	}
	return answers
}

func uniqueEmail(r *rand.Rand, used map[string]struct{}) string {
	for {
		local := randomNameSlug(r)
		domain := []string{"example.com", "mail.test", "school.local"}[r.Intn(3)]
		email := fmt.Sprintf("%s+%d@%s", local, r.Intn(1000000), domain)
		if _, ok := used[email]; !ok {
			used[email] = struct{}{}
			return email
		}
	}
}

var (
	firstNames = []string{"Alex", "Sam", "Mia", "Jordan", "Noah", "Olivia", "Leo", "Emma", "Sara", "Luca", "Ava", "Ethan", "Chloe", "Mason", "Sofia"}
	lastNames  = []string{"Smith", "Johnson", "Brown", "Garcia", "Miller", "Davis", "Lopez", "Wilson", "Moore", "Taylor"}
)

func randomNameSlug(r *rand.Rand) string {
	first := firstNames[r.Intn(len(firstNames))]
	last := lastNames[r.Intn(len(lastNames))]
	return strings.ToLower(first + "." + last)
}

func displayName(r *rand.Rand) string {
	return firstNames[r.Intn(len(firstNames))] + " " + lastNames[r.Intn(len(lastNames))]
}

// crush is empty for roughly half the users.
func crush(r *rand.Rand) string {
	if r.Intn(2) == 0 {
		return ""
	}
	return displayName(r)
}
