package subtitle

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// smiLastCue is how long the final cue stays on screen, since SAMI only carries start times.
const smiLastCue = 3 * time.Second

var (
	syncRe  = regexp.MustCompile(`(?is)<sync\s+start\s*=\s*["']?(\d+)["']?[^>]*>`)
	pOpenRe = regexp.MustCompile(`(?is)^.*?<p[^>]*>`)
	brRe    = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	bodyRe  = regexp.MustCompile(`(?is)</body>.*$`)
)

type smiSync struct {
	start time.Duration
	text  string
}

func parseSMI(content string) []Entry {
	locs := syncRe.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		return nil
	}

	syncs := make([]smiSync, 0, len(locs))
	for i, loc := range locs {
		ms, err := strconv.Atoi(content[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		bodyEnd := len(content)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		syncs = append(syncs, smiSync{
			start: time.Duration(ms) * time.Millisecond,
			text:  smiText(content[loc[1]:bodyEnd]),
		})
	}

	var entries []Entry
	for i, s := range syncs {
		if s.text == "" {
			continue
		}
		end := s.start + smiLastCue
		if i+1 < len(syncs) {
			end = syncs[i+1].start
		}
		entries = append(entries, Entry{
			Index: len(entries) + 1,
			Start: s.start,
			End:   end,
			Text:  s.text,
		})
	}
	return entries
}

func smiText(raw string) string {
	raw = bodyRe.ReplaceAllString(raw, "")
	if pOpenRe.MatchString(raw) {
		raw = pOpenRe.ReplaceAllString(raw, "")
	}
	raw = strings.ReplaceAll(raw, "\n", " ")
	raw = brRe.ReplaceAllString(raw, "\n")
	raw = tagRe.ReplaceAllString(raw, "")
	raw = html.UnescapeString(raw)
	raw = strings.ReplaceAll(raw, "\u00a0", " ")

	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func generateSMI(entries []Entry, title string) string {
	if title == "" {
		title = "Translated Subtitle"
	}

	var sb strings.Builder
	sb.WriteString("<SAMI>\n<HEAD>\n")
	sb.WriteString(fmt.Sprintf("<TITLE>%s</TITLE>\n", html.EscapeString(title)))
	sb.WriteString("<STYLE TYPE=\"text/css\">\n<!--\nP { margin-left:8pt; margin-right:8pt; margin-bottom:2pt; margin-top:2pt;\n    text-align:center; font-size:20pt; font-family:Arial, sans-serif;\n    font-weight:normal; color:white; }\n.KRCC { Name:Korean; lang:ko-KR; SAMIType:CC; }\n-->\n</STYLE>\n")
	sb.WriteString("</HEAD>\n<BODY>\n")

	for _, e := range entries {
		text := strings.ReplaceAll(html.EscapeString(e.Text), "\n", "<br>")
		sb.WriteString(fmt.Sprintf("<SYNC Start=%d><P Class=KRCC>%s</P></SYNC>\n", e.Start.Milliseconds(), text))
		sb.WriteString(fmt.Sprintf("<SYNC Start=%d><P Class=KRCC>&nbsp;</P></SYNC>\n", e.End.Milliseconds()))
	}

	sb.WriteString("</BODY>\n</SAMI>\n")
	return sb.String()
}
