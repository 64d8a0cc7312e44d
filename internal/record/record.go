// Package record holds the values that flow between the parser, the
// analyzer and the storage layers.
package record

import "fmt"

// Backend identifies the completion provider that produced a row.
type Backend string

const (
	BackendAnthropic Backend = "anthropic"
	BackendOpenAI    Backend = "openai"
	BackendOllama    Backend = "ollama"
)

// Backends lists the known providers in CLI code order (1, 2, 3).
var Backends = []Backend{BackendAnthropic, BackendOpenAI, BackendOllama}

// ParseBackend accepts either a backend name or its 1-based CLI code.
func ParseBackend(s string) (Backend, error) {
	for i, b := range Backends {
		if s == string(b) || s == fmt.Sprint(i+1) {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown model %q (want 1=anthropic, 2=openai, 3=ollama)", s)
}

// Row is one evaluation of one file during one cycle. Scores holds a value
// for every metric of the rubric the row was produced with.
type Row struct {
	Filename     string
	Cycle        int
	Domain       string
	ModelUsed    Backend
	LinesOfCode  int
	LinesOfDoc   int
	Scores       map[string]int
	Dependencies string
	NoneCount    int
}

// Exclusion records a file the model declared not to be analyzable code.
type Exclusion struct {
	Filename    string
	Cycle       int
	Explanation string
}
