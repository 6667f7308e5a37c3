package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/subtrans/backend/internal/subtitle/translate"
)

var indexLineRe = regexp.MustCompile(`^\d+$`)

// ExtractSRTTexts pulls the text blocks out of an engine's SRT reply: an index
// line, then a timestamp line, then text lines up to a blank line, the next
// index line or another timestamp line. Blocks without text are dropped.
func ExtractSRTTexts(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var lines []string
	for _, l := range strings.Split(content, "\n") {
		// Engines sometimes wrap the reply in a markdown fence
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		lines = append(lines, l)
	}

	var texts []string
	for i := 0; i < len(lines); i++ {
		if !indexLineRe.MatchString(strings.TrimSpace(lines[i])) {
			continue
		}
		if i+1 >= len(lines) || !strings.Contains(lines[i+1], "-->") {
			continue
		}
		i += 2

		var block []string
		for ; i < len(lines); i++ {
			line := strings.TrimSpace(lines[i])
			if line == "" || indexLineRe.MatchString(line) || strings.Contains(line, "-->") {
				break
			}
			block = append(block, line)
		}
		if len(block) > 0 {
			texts = append(texts, strings.Join(block, "\n"))
		}
		// Let the outer loop see the line that ended the block
		i--
	}
	return texts
}

// SplitSegments splits a separator-joined reply into exactly n segments.
func SplitSegments(content string, n int) ([]string, error) {
	var parts []string
	switch {
	case strings.Contains(content, translate.Separator):
		parts = strings.Split(content, translate.Separator)
	case strings.Contains(content, translate.SeparatorToken):
		parts = strings.Split(content, translate.SeparatorToken)
	case n == 1:
		// A single segment carries no separator to begin with
		parts = []string{content}
	default:
		return nil, ErrSeparatorLost
	}

	if len(parts) != n {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrCountMismatch, n, len(parts))
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts, nil
}
