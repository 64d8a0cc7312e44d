// Package rubric defines the evaluation questions posed to the model, the
// section labels used to find their answers, and the phrase-to-score table
// used in textual scoring.
package rubric

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultRubricYAML []byte

// Mode selects how answers are interpreted for a whole run.
type Mode string

const (
	ModeTextual   Mode = "textual"
	ModeNumerical Mode = "numerical"
)

// ParseMode converts a config or flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeTextual, "":
		return ModeTextual, nil
	case ModeNumerical:
		return ModeNumerical, nil
	}
	return "", fmt.Errorf("unknown scoring mode %q (want textual or numerical)", s)
}

// Field is one question of the rubric.
type Field struct {
	Key      string   `yaml:"key"`
	Label    string   `yaml:"label"`
	Kind     Kind     `yaml:"kind"`
	Section  string   `yaml:"section"`
	Title    string   `yaml:"title"`
	Guidance string   `yaml:"guidance"`
	Answers  []Answer `yaml:"answers"`
}

// Rubric is a versioned, validated set of fields.
type Rubric struct {
	Version string
	Fields  []Field

	schema *Schema
	table  ScoreTable
}

type document struct {
	Version string  `yaml:"version"`
	Fields  []Field `yaml:"fields"`
}

// Default returns the embedded rubric.
func Default() *Rubric {
	r, err := Parse(DefaultRubricYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rubric is invalid: %v", err))
	}
	return r
}

// Load reads and validates a rubric YAML file.
func Load(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rubric: %w", err)
	}
	return Parse(data)
}

// Parse validates rubric YAML and derives its schema and score table.
func Parse(data []byte) (*Rubric, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rubric: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("rubric has no version")
	}
	if len(doc.Fields) == 0 {
		return nil, fmt.Errorf("rubric %s declares no fields", doc.Version)
	}

	entries := make([]Entry, 0, len(doc.Fields))
	answers := map[string][]Answer{}
	for _, f := range doc.Fields {
		entries = append(entries, Entry{Key: f.Key, Label: f.Label, Kind: f.Kind})
		switch {
		case f.Kind == KindScore:
			if len(f.Answers) == 0 {
				return nil, fmt.Errorf("score field %s has no answers", f.Key)
			}
			answers[f.Key] = f.Answers
		case len(f.Answers) > 0:
			return nil, fmt.Errorf("field %s of kind %s cannot declare answers", f.Key, f.Kind)
		}
	}

	schema, err := NewSchema(entries)
	if err != nil {
		return nil, fmt.Errorf("rubric %s: %w", doc.Version, err)
	}
	if len(schema.MetricKeys()) == 0 {
		return nil, fmt.Errorf("rubric %s declares no score fields", doc.Version)
	}
	table, err := NewScoreTable(answers)
	if err != nil {
		return nil, fmt.Errorf("rubric %s: %w", doc.Version, err)
	}

	return &Rubric{
		Version: doc.Version,
		Fields:  doc.Fields,
		schema:  schema,
		table:   table,
	}, nil
}

// Schema returns the label schema derived from the rubric.
func (r *Rubric) Schema() *Schema { return r.schema }

// ScoreTable returns the textual score table derived from the rubric.
func (r *Rubric) ScoreTable() ScoreTable { return r.table }

// MetricKeys returns the scored field keys in declaration order.
func (r *Rubric) MetricKeys() []string { return r.schema.MetricKeys() }
