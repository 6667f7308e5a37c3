package subtitle

import (
	"fmt"
	"strconv"
	"strings"
)

func parseSRT(content string) []Entry {
	var entries []Entry
	for _, block := range splitBlocks(content) {
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

		index := len(entries) + 1
		if ts > 0 {
			if n, err := strconv.Atoi(block[ts-1]); err == nil {
				index = n
			}
		}

		entries = append(entries, Entry{
			Index: index,
			Start: start,
			End:   end,
			Text:  strings.Join(block[ts+1:], "\n"),
		})
	}
	return entries
}

func generateSRT(entries []Entry) string {
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		index := e.Index
		if index <= 0 {
			index = i + 1
		}
		sb.WriteString(fmt.Sprintf("%d\n", index))
		sb.WriteString(fmt.Sprintf("%s --> %s\n", formatTimestamp(e.Start, ','), formatTimestamp(e.End, ',')))
		sb.WriteString(e.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
