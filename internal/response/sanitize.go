package response

import "strings"

var domainStripper = strings.NewReplacer("(", "", ")", "", "'", "", `"`, "", ",", "")

// SanitizeDomain strips brackets, quotes and commas and keeps at most the
// first two words. Applying it twice gives the same result as once.
func SanitizeDomain(s string) string {
	words := strings.Fields(domainStripper.Replace(s))
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, " ")
}

var answerStripper = strings.NewReplacer(`"`, "", "'", "", "[", "", "]", "", "*", "")

// sanitizeAnswer removes the decoration models like to put around a chosen
// option, e.g. `**"Highly Readable".**` or `[Moderate]`.
func sanitizeAnswer(s string) string {
	s = strings.TrimSpace(answerStripper.Replace(s))
	return strings.TrimSpace(strings.TrimRight(s, "."))
}

// lineDecoration is trimmed from the start of a line before looking for a
// section label, so markdown bullets and headings still match.
const lineDecoration = "*#>- \t"
