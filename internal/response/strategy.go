package response

import (
	"strconv"
	"strings"

	"github.com/TobiSchelling/codedd/internal/rubric"
)

// Strategy interprets the raw answer of a scored field. It reports false
// when the answer leaves the field unset.
type Strategy interface {
	Mode() rubric.Mode
	Interpret(key, answer string) (float64, bool)
}

// StrategyFor returns the strategy for a run's scoring mode.
func StrategyFor(mode rubric.Mode, table rubric.ScoreTable) Strategy {
	if mode == rubric.ModeNumerical {
		return Numerical()
	}
	return Textual(table)
}

type textual struct {
	table rubric.ScoreTable
}

// Textual scores answers by prefix lookup in table. Unmatched answers
// score 0, so a textual answer is never unset.
func Textual(table rubric.ScoreTable) Strategy {
	return textual{table: table}
}

func (textual) Mode() rubric.Mode { return rubric.ModeTextual }

func (s textual) Interpret(key, answer string) (float64, bool) {
	return float64(s.table.Score(key, sanitizeAnswer(answer))), true
}

type numerical struct{}

// Numerical keeps only digits and dots of the answer, parses the rest as a
// decimal and clamps it to [0,100].
func Numerical() Strategy {
	return numerical{}
}

func (numerical) Mode() rubric.Mode { return rubric.ModeNumerical }

func (numerical) Interpret(_, answer string) (float64, bool) {
	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, answer)
	if digits == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return clamp(v, 0, 100), true
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
