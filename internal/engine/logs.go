package engine

import (
	"regexp"
	"strings"
)

var (
	sphinxErrorLine = regexp.MustCompile(`(?m)^.+?:[0-9]+:\s*ERROR\s*:.+$`)
	latexErrorLine  = regexp.MustCompile(`(?m)^.+?:[0-9]+:.+$`)
)

// ErrorLines extracts error messages from a build log. Sphinx reports
// "file:line: ERROR: ..." for html and latex builds; pdflatex in file-line-error
// mode reports any "file:line: ..." line.
func ErrorLines(log, kind string) []string {
	re := sphinxErrorLine
	if kind == "pdf" {
		re = latexErrorLine
	}
	matches := re.FindAllString(log, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m))
	}
	return out
}
