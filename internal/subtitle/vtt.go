package subtitle

import (
	"fmt"
	"strings"
)

// parseVTT parses WebVTT content. Cue identifiers are ignored and entries are
// numbered in order of appearance.
func parseVTT(content string) []Entry {
	var entries []Entry
	for _, block := range splitBlocks(content) {
		first := block[0]
		if strings.HasPrefix(first, "WEBVTT") && !strings.Contains(first, "-->") {
			// The header block may carry a cue directly after it without a blank line
			block = block[1:]
			for len(block) > 0 && !strings.Contains(block[0], "-->") && strings.Contains(block[0], ":") {
				block = block[1:]
			}
			if len(block) == 0 {
				continue
			}
			first = block[0]
		}
		if strings.HasPrefix(first, "NOTE") || first == "STYLE" || first == "REGION" {
			continue
		}

		ts := -1
		for i, line := range block {
			if strings.Contains(line, "-->") {
				ts = i
				break
			}
		}
		if ts < 0 || ts+1 >= len(block) {
			continue
		}
		start, end, ok := parseTimeLine(block[ts])
		if !ok {
			continue
		}

		entries = append(entries, Entry{
			Index: len(entries) + 1,
			Start: start,
			End:   end,
			Text:  strings.Join(block[ts+1:], "\n"),
		})
	}
	return entries
}

func generateVTT(entries []Entry) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")

	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d\n", i+1))
		sb.WriteString(fmt.Sprintf("%s --> %s\n", formatTimestamp(e.Start, '.'), formatTimestamp(e.End, '.')))
		sb.WriteString(e.Text)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
