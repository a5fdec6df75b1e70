package solver

import (
	"regexp"
	"strings"
)

// Sentinel results. Both are non-fatal: callers embed them in the prompt
// like any other solution.
const (
	Unavailable = "Wolfram Alpha service unavailable"
	Unparsable  = "Unable to parse Wolfram Alpha response"
)

var answerLine = regexp.MustCompile(`Answer: (.+)`)

// ParseAnswer extracts the first "Answer: <value>" line from engine text
// and strips any "x = " prefix. It returns Unparsable when no such line
// exists.
func ParseAnswer(text string) string {
	m := answerLine.FindStringSubmatch(text)
	if m == nil {
		return Unparsable
	}
	return strings.ReplaceAll(strings.TrimSpace(m[1]), "x = ", "")
}

// IsSentinel reports whether s is one of the degraded results.
func IsSentinel(s string) bool {
	return s == Unavailable || s == Unparsable
}
