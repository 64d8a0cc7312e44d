package rubric

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const auditPrompt = `Context:
You are an expert code auditor reviewing source code for quality and functionality.
Your quality standard is production-ready source code. Never repeat the source code in your responses.

1. Filling out the form:
Complete every section below based on your review. %s
If a section is not applicable or lacks relevant data, write 'N/A'.
Write nothing besides the answers. Your answer should start with:

%s: Yes
%s: [Your Answer]

2. Responses:
Write each answer after the colon (:) and keep the number and title of the section, for example:
%s

3. Summaries:
Reference specific parts of the code when necessary, but never include the code itself.
Do not repeat information already stated in the form.

---
%s
` + "```" + `
%s
` + "```" + `
`

// Prompt renders the audit prompt for mode around the given source code.
// Labels and answer options come from the rubric itself, so the prompt and
// the response parser cannot drift apart.
func (r *Rubric) Prompt(mode Mode, code string) string {
	return fmt.Sprintf(r.promptTemplate(mode), code)
}

// promptTemplate renders everything except the code, leaving a single %s
// placeholder for it.
func (r *Rubric) promptTemplate(mode Mode) string {
	instruction := "Use only the answer options provided within each section."
	if mode == ModeNumerical {
		instruction = "For each metric, give a numerical score between 0 and 100, where 0 is the lowest and 100 the highest possible score."
	}

	gate, domain, example := "0. Is this analyzable code? (Yes / No)", "1.1. Script domain", "2.1. Readability: Highly Readable"
	if f, ok := r.firstField(KindGate); ok {
		gate = f.Label + " " + f.Title
	}
	if f, ok := r.firstField(KindDomain); ok {
		domain = f.Label + " " + f.Title
	}
	if f, ok := r.firstField(KindScore); ok {
		answer := "47"
		if mode == ModeTextual {
			answer = cases.Title(language.English).String(f.Answers[0].Phrase)
		}
		example = fmt.Sprintf("%s %s: %s", f.Label, f.Title, answer)
	}

	form := strings.ReplaceAll(r.renderForm(mode), "%", "%%")
	return fmt.Sprintf(auditPrompt,
		instruction,
		strings.ReplaceAll(gate, "%", "%%"),
		strings.ReplaceAll(domain, "%", "%%"),
		strings.ReplaceAll(example, "%", "%%"),
		form,
		"%s",
	)
}

func (r *Rubric) renderForm(mode Mode) string {
	caser := cases.Title(language.English)
	var b strings.Builder
	section := ""
	for _, f := range r.Fields {
		if f.Section != "" && f.Section != section {
			section = f.Section
			b.WriteString(section)
			b.WriteByte('\n')
		}
		b.WriteString(f.Label)
		b.WriteByte(' ')
		b.WriteString(f.Title)
		if f.Kind == KindScore && mode == ModeTextual {
			opts := make([]string, 0, len(f.Answers))
			for _, a := range f.Answers {
				opts = append(opts, caser.String(a.Phrase))
			}
			b.WriteString(" (")
			b.WriteString(strings.Join(opts, " / "))
			b.WriteByte(')')
		}
		if f.Guidance != "" {
			b.WriteString(" (")
			b.WriteString(f.Guidance)
			b.WriteByte(')')
		}
		b.WriteString(":\n")
	}
	return b.String()
}

func (r *Rubric) firstField(kind Kind) (Field, bool) {
	for _, f := range r.Fields {
		if f.Kind == kind {
			return f, true
		}
	}
	return Field{}, false
}
