package models

import (
	"fmt"
	"time"
)

// Gender of a user. Matching always pairs opposite genders.
type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
)

// Opposite returns the gender a user of g is matched against.
func (g Gender) Opposite() Gender {
	if g == Male {
		return Female
	}
	return Male
}

func (g Gender) Valid() bool {
	return g == Male || g == Female
}

// ParseGender accepts "male" or "female".
func ParseGender(s string) (Gender, error) {
	g := Gender(s)
	if !g.Valid() {
		return "", fmt.Errorf("invalid gender %q", s)
	}
	return g, nil
}

// User is a matchmaking participant.
// MatchedWithID is symmetric: if A points at B then B points at A.
type User struct {
	ID                int        `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Gender            Gender     `json:"gender"`
	Crush             string     `json:"crush,omitempty"`
	Matched           bool       `json:"matched"`
	MatchedWithID     *int       `json:"matched_with_id,omitempty"`
	MatchedAt         *time.Time `json:"matched_at,omitempty"`
	QuestionsAnswered bool       `json:"questions_answered"`
	CreatedAt         time.Time  `json:"created_at"`
	Answers           []Answer   `json:"answers,omitempty"`
}

// IsMatched reports whether the user already has a counterpart.
func (u *User) IsMatched() bool {
	return u.MatchedWithID != nil
}

// Answer is one questionnaire response. At most one per (UserID, QuestionNumber).
type Answer struct {
	UserID         int    `json:"user_id"`
	QuestionNumber int    `json:"question_number"`
	Value          string `json:"answer"`
}

// Account holds login credentials. Its id is the user id.
type Account struct {
	ID           int
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
