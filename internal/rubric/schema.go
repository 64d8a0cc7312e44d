package rubric

import (
	"fmt"
	"regexp"
)

// Kind classifies how a rubric field's answer is interpreted.
type Kind string

const (
	KindGate        Kind = "gate"        // "is this analyzable?" short-circuit
	KindExplanation Kind = "explanation" // free text accompanying a negative gate
	KindDomain      Kind = "domain"      // sanitized classification, at most two words
	KindList        Kind = "list"        // verbatim comma-separated text
	KindScore       Kind = "score"       // numeric metric in [0,100]
)

func (k Kind) valid() bool {
	switch k {
	case KindGate, KindExplanation, KindDomain, KindList, KindScore:
		return true
	}
	return false
}

// labelPattern matches section labels such as "0.", "2.1." or "4.10.".
var labelPattern = regexp.MustCompile(`^\d+(?:\.\d+)*\.$`)

// ValidLabel reports whether s is a well-formed section label.
func ValidLabel(s string) bool {
	return labelPattern.MatchString(s)
}

// Entry maps one field key to the label that locates it in a response.
type Entry struct {
	Key   string
	Label string
	Kind  Kind
}

// Schema is an ordered, immutable mapping of field keys to section labels.
// Labels are matched as whole tokens, so "4.1." and "4.10." never collide.
type Schema struct {
	entries []Entry
	byLabel map[string]int
	byKey   map[string]int
}

// NewSchema validates entries and builds a Schema. Keys and labels must be
// unique, labels well-formed, and at most one gate and one explanation may
// be declared.
func NewSchema(entries []Entry) (*Schema, error) {
	s := &Schema{
		entries: make([]Entry, 0, len(entries)),
		byLabel: make(map[string]int, len(entries)),
		byKey:   make(map[string]int, len(entries)),
	}
	kinds := map[Kind]int{}
	for _, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("entry with label %q has no key", e.Label)
		}
		if !ValidLabel(e.Label) {
			return nil, fmt.Errorf("field %s: malformed label %q", e.Key, e.Label)
		}
		if !e.Kind.valid() {
			return nil, fmt.Errorf("field %s: unknown kind %q", e.Key, e.Kind)
		}
		if _, dup := s.byKey[e.Key]; dup {
			return nil, fmt.Errorf("duplicate field key %q", e.Key)
		}
		if other, dup := s.byLabel[e.Label]; dup {
			return nil, fmt.Errorf("label %q used by both %s and %s", e.Label, s.entries[other].Key, e.Key)
		}
		kinds[e.Kind]++
		s.byKey[e.Key] = len(s.entries)
		s.byLabel[e.Label] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	if kinds[KindGate] > 1 || kinds[KindExplanation] > 1 {
		return nil, fmt.Errorf("at most one gate and one explanation field may be declared")
	}
	return s, nil
}

// Entries returns a copy of the schema entries in declaration order.
func (s *Schema) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ByLabel returns the entry registered for an exact label token.
func (s *Schema) ByLabel(label string) (Entry, bool) {
	i, ok := s.byLabel[label]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Lookup returns the entry for a field key.
func (s *Schema) Lookup(key string) (Entry, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// First returns the first entry of the given kind.
func (s *Schema) First(kind Kind) (Entry, bool) {
	for _, e := range s.entries {
		if e.Kind == kind {
			return e, true
		}
	}
	return Entry{}, false
}

// MetricKeys returns the keys of all scored fields in declaration order.
func (s *Schema) MetricKeys() []string {
	var keys []string
	for _, e := range s.entries {
		if e.Kind == KindScore {
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Len returns the number of entries.
func (s *Schema) Len() int {
	return len(s.entries)
}
