package audit

import (
	"github.com/TobiSchelling/codedd/internal/record"
	"github.com/TobiSchelling/codedd/internal/response"
	"github.com/TobiSchelling/codedd/internal/rubric"
)

// DefaultDomain is recorded when the response has no usable domain.
const DefaultDomain = "N/A"

// Meta is the file metadata merged into a row.
type Meta struct {
	Filename    string
	Cycle       int
	Backend     record.Backend
	LinesOfCode int
	LinesOfDoc  int
}

// BuildRow merges a parsed response with file metadata. Every metric of
// schema gets a value: parsed scores are truncated to integers and unset
// metrics default to 0.
func BuildRow(res response.Result, schema *rubric.Schema, meta Meta) record.Row {
	row := record.Row{
		Filename:    meta.Filename,
		Cycle:       meta.Cycle,
		Domain:      DefaultDomain,
		ModelUsed:   meta.Backend,
		LinesOfCode: meta.LinesOfCode,
		LinesOfDoc:  meta.LinesOfDoc,
		Scores:      map[string]int{},
		NoneCount:   res.NoneCount,
	}
	for _, e := range schema.Entries() {
		switch e.Kind {
		case rubric.KindScore:
			row.Scores[e.Key] = int(res.Scores[e.Key])
		case rubric.KindDomain:
			if v := res.Text[e.Key]; v != "" {
				row.Domain = v
			}
		case rubric.KindList:
			if v := res.Text[e.Key]; v != "" {
				row.Dependencies = v
			}
		}
	}
	return row
}
