package matcher

import (
	"github.com/samber/lo"

	"github.com/promnight/prom-match/internal/models"
)

// answerIndex maps question number to the requester's answer.
func answerIndex(answers []models.Answer) map[int]string {
	return lo.SliceToMap(answers, func(a models.Answer) (int, string) {
		return a.QuestionNumber, a.Value
	})
}

// Score counts the candidate answers equal to the requester's answer for the same
// question. Questions the requester left unanswered contribute 0.
func Score(requester map[int]string, candidate []models.Answer) int {
	return lo.CountBy(candidate, func(a models.Answer) bool {
		v, ok := requester[a.QuestionNumber]
		return ok && v == a.Value
	})
}

// pickBest returns the index of the highest-scoring candidate, or -1. The first candidate
// to reach a score keeps it on ties. Zero-score candidates qualify only with allowZero,
// in which case the first candidate is taken when nobody scores higher.
func pickBest(requester map[int]string, candidates []models.User, allowZero bool) (best int, score int) {
	best, score = -1, 0
	for i, c := range candidates {
		s := Score(requester, c.Answers)
		if s > score || (best == -1 && allowZero) {
			best, score = i, s
		}
	}
	return best, score
}
