package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/promnight/prom-match/internal/models"
)

// Memory is an in-process User Store. All mutations are serialized by one mutex, which
// gives SetMutualMatch the same all-or-nothing semantics as the Postgres store.
type Memory struct {
	mu       sync.Mutex
	nextID   int
	accounts map[string]models.Account
	users    map[int]*models.User
	answers  map[int]map[int]string
}

// NewMemory returns an empty store. Ids start at 1.
func NewMemory() *Memory {
	return &Memory{
		nextID:   1,
		accounts: make(map[string]models.Account),
		users:    make(map[int]*models.User),
		answers:  make(map[int]map[int]string),
	}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// CreateAccount stores a lowercased email and returns the new account id.
// It returns ErrDuplicateEmail if the email is taken.
func (m *Memory) CreateAccount(_ context.Context, email, passwordHash string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(email)
	if _, ok := m.accounts[email]; ok {
		return 0, ErrDuplicateEmail
	}
	id := m.nextID
	m.nextID++
	m.accounts[email] = models.Account{ID: id, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now()}
	return id, nil
}

// GetAccountByEmail looks the account up case-insensitively.
func (m *Memory) GetAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) accountEmail(id int) (string, bool) {
	for email, a := range m.accounts {
		if a.ID == id {
			return email, true
		}
	}
	return "", false
}

// CreateProfile attaches a profile to an existing account. The email is taken
// from the account; a second profile for the same id returns ErrProfileExists.
func (m *Memory) CreateProfile(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email, ok := m.accountEmail(u.ID)
	if !ok {
		return ErrNotFound
	}
	if _, exists := m.users[u.ID]; exists {
		return ErrProfileExists
	}
	m.users[u.ID] = &models.User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     email,
		Gender:    u.Gender,
		Crush:     u.Crush,
		CreatedAt: time.Now(),
	}
	return nil
}

// copyUser returns a detached copy so callers never share state with the store.
func (m *Memory) copyUser(u *models.User, withAnswers bool) models.User {
	c := *u
	if u.MatchedWithID != nil {
		id := *u.MatchedWithID
		c.MatchedWithID = &id
	}
	if u.MatchedAt != nil {
		t := *u.MatchedAt
		c.MatchedAt = &t
	}
	c.Answers = nil
	if withAnswers {
		byQuestion := m.answers[u.ID]
		questions := make([]int, 0, len(byQuestion))
		for q := range byQuestion {
			questions = append(questions, q)
		}
		sort.Ints(questions)
		for _, q := range questions {
			c.Answers = append(c.Answers, models.Answer{UserID: u.ID, QuestionNumber: q, Value: byQuestion[q]})
		}
	}
	return c
}

// GetUser returns the profile without answers.
func (m *Memory) GetUser(_ context.Context, id int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := m.copyUser(u, false)
	return &c, nil
}

// GetUserWithAnswers returns the profile with answers ordered by question number.
func (m *Memory) GetUserWithAnswers(_ context.Context, id int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := m.copyUser(u, true)
	return &c, nil
}

// ListUnmatchedUsersByGender returns unmatched users of one gender, with answers,
// in ascending id order.
func (m *Memory) ListUnmatchedUsersByGender(_ context.Context, gender models.Gender) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var users []models.User
	for _, u := range m.users {
		if u.Gender == gender && !u.IsMatched() {
			users = append(users, m.copyUser(u, true))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// SetMutualMatch pairs a and b with a shared timestamp. It returns ErrConflict
// and changes nothing if either side is already matched or both share a gender.
func (m *Memory) SetMutualMatch(_ context.Context, a, b int) error {
	if a == b {
		return fmt.Errorf("%w: user %d cannot be matched with themselves", ErrConflict, a)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ua, okA := m.users[a]
	ub, okB := m.users[b]
	if !okA || !okB {
		return ErrNotFound
	}
	if ua.IsMatched() || ub.IsMatched() {
		return fmt.Errorf("%w: user %d or %d already matched", ErrConflict, a, b)
	}
	if ua.Gender == ub.Gender {
		return fmt.Errorf("%w: users %d and %d share gender %s", ErrConflict, a, b, ua.Gender)
	}

	now := time.Now()
	idA, idB := a, b
	ua.Matched, ua.MatchedWithID, ua.MatchedAt = true, &idB, &now
	ub.Matched, ub.MatchedWithID, ub.MatchedAt = true, &idA, &now
	return nil
}

// SaveAnswer upserts one answer.
func (m *Memory) SaveAnswer(_ context.Context, a models.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[a.UserID]; !ok {
		return ErrNotFound
	}
	m.putAnswer(a.UserID, a.QuestionNumber, a.Value)
	return nil
}

func (m *Memory) putAnswer(userID, question int, value string) {
	if m.answers[userID] == nil {
		m.answers[userID] = make(map[int]string)
	}
	m.answers[userID][question] = value
}

// MarkQuestionsAnswered sets the completion flag.
func (m *Memory) MarkQuestionsAnswered(_ context.Context, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.QuestionsAnswered = true
	return nil
}

// SubmitAnswers writes all answers and sets the completion flag in one step.
// A user who already completed the questionnaire gets ErrAlreadyAnswered.
func (m *Memory) SubmitAnswers(_ context.Context, userID int, answers []models.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if u.QuestionsAnswered {
		return ErrAlreadyAnswered
	}
	for _, a := range answers {
		m.putAnswer(userID, a.QuestionNumber, a.Value)
	}
	u.QuestionsAnswered = true
	return nil
}

// AnswerCount returns how many answer rows the user has.
func (m *Memory) AnswerCount(userID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.answers[userID])
}
