package rubric

import (
	"fmt"
	"strings"
)

// Answer is one canonical phrase and the score it maps to.
type Answer struct {
	Phrase string `yaml:"phrase"`
	Score  int    `yaml:"score"`
}

// ScoreTable maps metric keys to ordered answer phrases. A zero ScoreTable
// scores everything as 0.
type ScoreTable struct {
	answers map[string][]Answer
}

// NewScoreTable copies m into an immutable table. Phrases are lowercased and
// trimmed; every metric needs at least one answer and every score must lie
// in [0,100].
func NewScoreTable(m map[string][]Answer) (ScoreTable, error) {
	t := ScoreTable{answers: make(map[string][]Answer, len(m))}
	for key, answers := range m {
		if len(answers) == 0 {
			return ScoreTable{}, fmt.Errorf("metric %s has no answers", key)
		}
		list := make([]Answer, 0, len(answers))
		for _, a := range answers {
			phrase := strings.ToLower(strings.TrimSpace(a.Phrase))
			if phrase == "" {
				return ScoreTable{}, fmt.Errorf("metric %s has an empty answer phrase", key)
			}
			if a.Score < 0 || a.Score > 100 {
				return ScoreTable{}, fmt.Errorf("metric %s: score %d for %q out of range", key, a.Score, phrase)
			}
			list = append(list, Answer{Phrase: phrase, Score: a.Score})
		}
		t.answers[key] = list
	}
	return t, nil
}

// Score returns the score of the first phrase that prefixes the lowercased,
// trimmed answer. Unmatched answers and unknown metrics score 0.
func (t ScoreTable) Score(key, answer string) int {
	value := strings.ToLower(strings.TrimSpace(answer))
	for _, a := range t.answers[key] {
		if strings.HasPrefix(value, a.Phrase) {
			return a.Score
		}
	}
	return 0
}

// Answers returns a copy of the answers declared for key.
func (t ScoreTable) Answers(key string) []Answer {
	src := t.answers[key]
	out := make([]Answer, len(src))
	copy(out, src)
	return out
}
