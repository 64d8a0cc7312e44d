// Package response turns the free-text answer of a model into rubric
// fields. Parsing never fails: malformed or missing sections leave their
// fields unset.
package response

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/codedd/internal/rubric"
)

// NoneAnswer is the literal answer counted as a refusal or omission.
const NoneAnswer = "None"

// DefaultExplanation is used when a negative gate comes without an
// explanation.
const DefaultExplanation = "N/A"

var labelToken = regexp.MustCompile(`^(\d+(?:\.\d+)*\.)`)

// Result holds the fields recovered from one response. Scores only carries
// score fields that were set; Text carries gate, explanation, domain and
// list fields.
type Result struct {
	Scores    map[string]float64
	Text      map[string]string
	NoneCount int
	// Excluded is set when the model answered the gate negatively. Only
	// the gate and explanation keys are populated in that case.
	Excluded bool
}

// Explanation returns the explanation text of an excluded result.
func (r Result) Explanation(s *rubric.Schema) string {
	if e, ok := s.First(rubric.KindExplanation); ok {
		if v := r.Text[e.Key]; v != "" {
			return v
		}
	}
	return DefaultExplanation
}

// Parser extracts rubric fields from response text. A Parser holds no
// mutable state and may be shared between goroutines.
type Parser struct {
	schema   *rubric.Schema
	strategy Strategy
}

// New returns a parser for schema that interprets scores with strategy.
func New(schema *rubric.Schema, strategy Strategy) *Parser {
	return &Parser{schema: schema, strategy: strategy}
}

// Schema returns the schema the parser matches against.
func (p *Parser) Schema() *rubric.Schema { return p.schema }

// Mode returns the scoring mode of the parser's strategy.
func (p *Parser) Mode() rubric.Mode { return p.strategy.Mode() }

// Parse extracts every schema field from text.
func (p *Parser) Parse(text string) Result {
	answers := p.answers(text)

	if gate, ok := p.schema.First(rubric.KindGate); ok {
		if a, found := answers[gate.Key]; found && strings.EqualFold(sanitizeAnswer(a), "no") {
			res := Result{Text: map[string]string{gate.Key: "no"}, Excluded: true}
			if expl, ok := p.schema.First(rubric.KindExplanation); ok {
				res.Text[expl.Key] = DefaultExplanation
				if v := strings.TrimSpace(answers[expl.Key]); v != "" {
					res.Text[expl.Key] = v
				}
			}
			return res
		}
	}

	res := Result{Scores: map[string]float64{}, Text: map[string]string{}}
	for _, e := range p.schema.Entries() {
		a, found := answers[e.Key]
		if !found {
			continue
		}
		if a == NoneAnswer {
			res.NoneCount++
		}
		switch e.Kind {
		case rubric.KindScore:
			if v, ok := p.strategy.Interpret(e.Key, a); ok {
				res.Scores[e.Key] = v
			}
		case rubric.KindGate:
			if v := strings.ToLower(sanitizeAnswer(a)); v != "" {
				res.Text[e.Key] = v
			}
		case rubric.KindDomain:
			if v := SanitizeDomain(a); v != "" {
				res.Text[e.Key] = v
			}
		case rubric.KindList, rubric.KindExplanation:
			if a != "" {
				res.Text[e.Key] = a
			}
		}
	}
	return res
}

// answers maps field keys to the trimmed text after the colon of the first
// line carrying their label. Markdown emphasis around the answer is dropped. A labelled line without a colon claims the
// field but leaves it without an answer.
func (p *Parser) answers(text string) map[string]string {
	out := map[string]string{}
	claimed := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), lineDecoration)
		m := labelToken.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		e, ok := p.schema.ByLabel(m[1])
		if !ok || claimed[e.Key] {
			continue
		}
		claimed[e.Key] = true
		rest := line[len(m[1]):]
		colon := strings.IndexByte(rest, ':')
		if colon < 0 {
			continue
		}
		out[e.Key] = strings.TrimSpace(strings.Trim(strings.TrimSpace(rest[colon+1:]), "*"))
	}
	return out
}
