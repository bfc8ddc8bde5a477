package scanner

import (
	"regexp"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"
)

var leadingStars = regexp.MustCompile(`^\*+`)

// leadingComment returns the description carried by the comments directly
// above stmt. Among a contiguous run of comments the nearest `/** */` block
// wins, otherwise the nearest comment.
func leadingComment(stmt *ts.Node, source []byte) string {
	if stmt == nil {
		return ""
	}

	var nearest string
	for prev := stmt.PrevSibling(); prev != nil && prev.Kind() == "comment"; prev = prev.PrevSibling() {
		text := prev.Utf8Text(source)
		if strings.HasPrefix(text, "/**") {
			return parseDocComment(text)
		}
		if nearest == "" {
			nearest = text
		}
	}
	if nearest == "" {
		return ""
	}
	return parseDocComment(nearest)
}

// parseDocComment strips comment markup and block tags. Remaining lines are
// joined with "\n".
func parseDocComment(comment string) string {
	comment = strings.TrimSpace(comment)

	switch {
	case strings.HasPrefix(comment, "//"):
		comment = strings.TrimPrefix(comment, "//")
	case strings.HasPrefix(comment, "/*"):
		comment = strings.TrimPrefix(comment, "/*")
		comment = strings.TrimSuffix(comment, "*/")
	}

	var lines []string
	for _, line := range strings.Split(comment, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(leadingStars.ReplaceAllString(line, ""))
		if line == "" || strings.HasPrefix(line, "@") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
