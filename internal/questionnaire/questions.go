package questionnaire

import "github.com/samber/lo"

// Question is one fixed questionnaire item. Number is 1-based.
type Question struct {
	Number  int      `json:"number"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

// Catalog is the fixed prom questionnaire. Answers are matched on the exact option label.
var Catalog = []Question{
	{1, "What's your idea of a perfect day off?", []string{
		"A relaxing day at home",
		"Outdoor adventures",
		"Exploring a new city",
		"Hanging out with friends or family",
	}},
	{2, "What's a dealbreaker for you in a relationship?", []string{
		"Dishonesty",
		"Lack of communication",
		"Jealousy or possessiveness",
		"Disrespect for personal boundaries",
	}},
	{3, "If you could live anywhere in the world for a year, where would it be?", []string{
		"A beach paradise",
		"A bustling city like New York or Tokyo",
		"A quiet countryside",
		"A cozy cabin in the mountains",
	}},
	{4, "How do you feel about long-distance relationships?", []string{
		"It's a dealbreaker for me",
		"I'm open to it, but it needs strong trust",
		"I believe they can work if both are committed",
		"I prefer not to",
	}},
	{5, "What's your most treasured memory from childhood?", []string{
		"Family vacations",
		"Hanging out with friends",
		"Celebrating holidays",
		"Personal achievements (like winning a competition)",
	}},
	{6, "Do you believe in love at first sight?", []string{
		"Yes, I believe in it completely",
		"I think it's possible, but rare",
		"I'm skeptical about it",
		"I think it's more about a strong connection growing over time",
	}},
	{7, "What's your love language?", []string{
		"Words of affirmation",
		"Acts of service",
		"Gifts",
		"Quality time",
		"Physical touch",
	}},
	{8, "What's your go-to comfort food?", []string{
		"Pizza",
		"Ice cream",
		"Chocolate",
		"A home-cooked meal",
	}},
	{9, "Do you prefer spontaneous adventures or planning everything in advance?", []string{
		"Spontaneous adventures all the way",
		"I prefer to plan things carefully",
		"A mix of both, depending on the situation",
		"I like to plan just a little, but leave room for surprises",
	}},
	{10, "What movie genre do you think best describes your life?", []string{
		"Comedy",
		"Action/Adventure",
		"Drama",
		"Sci-Fi/Fantasy",
	}},
	{11, "If we were to watch a movie together, what would it be?", []string{
		"Action-packed thriller",
		"Romantic comedy",
		"Horror",
		"Documentary",
	}},
	{12, "Do you like horror movies?", []string{
		"Yes, I love horror movies",
		"Not really into horror, but I'll watch occasionally",
		"No, horror movies aren't my thing at all",
	}},
	{13, "How do you feel about public displays of affection?", []string{
		"Love them, the more the better",
		"I'm comfortable with it in private, but not in public",
		"I'm not really a fan, but I don't mind sometimes",
		"I prefer to keep it private",
	}},
}

// Lookup returns the question with the given number.
func Lookup(number int) (Question, bool) {
	if number < 1 || number > len(Catalog) {
		return Question{}, false
	}
	return Catalog[number-1], true
}

// HasOption reports whether value is one of the question's preset labels.
func (q Question) HasOption(value string) bool {
	return lo.Contains(q.Options, value)
}
