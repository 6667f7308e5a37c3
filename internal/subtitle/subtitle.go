// Package subtitle parses SRT, SMI and WebVTT files into ordered timed entries and
// serializes entries back into any of those formats.
package subtitle

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// Format identifies a subtitle file format
type Format string

const (
	FormatSRT Format = "srt"
	FormatSMI Format = "smi"
	FormatVTT Format = "vtt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported subtitle format")
	ErrMalformedFile     = errors.New("malformed subtitle file")
)

// Entry is a single timed subtitle. Index is the ordinal from the source file and
// is not guaranteed to be contiguous.
type Entry struct {
	Index int           `json:"index"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// WithText returns a copy of the entry carrying different text.
func (e Entry) WithText(text string) Entry {
	e.Text = text
	return e
}

// GenerateOptions tweaks serialization. Title is only used by SMI.
type GenerateOptions struct {
	Title string
}

// ParseError reports why a file could not be turned into entries
type ParseError struct {
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatSRT, FormatSMI, FormatVTT:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromFilename maps a file extension to a Format.
func FormatFromFilename(name string) (Format, error) {
	return ParseFormat(filepath.Ext(name))
}

// Parse decodes a subtitle file. When declared is empty the format is sniffed from
// the content.
func Parse(data []byte, declared Format) (Format, []Entry, error) {
	format := declared
	if format == "" {
		format = sniff(data)
	}

	content := normalize(data)
	var entries []Entry
	switch format {
	case FormatSRT:
		entries = parseSRT(content)
	case FormatVTT:
		entries = parseVTT(content)
	case FormatSMI:
		entries = parseSMI(content)
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if len(entries) == 0 {
		return format, nil, &ParseError{Format: format, Err: ErrMalformedFile}
	}
	return format, entries, nil
}

// Generate serializes entries into the requested format.
func Generate(entries []Entry, format Format, opts GenerateOptions) ([]byte, error) {
	switch format {
	case FormatSRT:
		return []byte(generateSRT(entries)), nil
	case FormatVTT:
		return []byte(generateVTT(entries)), nil
	case FormatSMI:
		return []byte(generateSMI(entries, opts.Title)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Stats summarizes a parsed file
type Stats struct {
	TotalEntries              int `json:"total_entries"`
	TotalDuration             int `json:"total_duration"` // seconds
	TotalCharacters           int `json:"total_characters"`
	TotalWords                int `json:"total_words"`
	AverageCharactersPerEntry int `json:"average_characters_per_entry"`
	AverageWordsPerEntry      int `json:"average_words_per_entry"`
}

func ComputeStats(entries []Entry) Stats {
	s := Stats{TotalEntries: len(entries)}
	if len(entries) == 0 {
		return s
	}
	s.TotalDuration = int(math.Round((entries[len(entries)-1].End - entries[0].Start).Seconds()))
	for _, e := range entries {
		s.TotalCharacters += utf8.RuneCountInString(e.Text)
		s.TotalWords += len(strings.Fields(e.Text))
	}
	s.AverageCharactersPerEntry = int(math.Round(float64(s.TotalCharacters) / float64(len(entries))))
	s.AverageWordsPerEntry = int(math.Round(float64(s.TotalWords) / float64(len(entries))))
	return s
}

// CharCount is the number of characters across all entry texts.
func CharCount(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += utf8.RuneCountInString(e.Text)
	}
	return n
}

func sniff(data []byte) Format {
	head := bytes.TrimPrefix(bytes.TrimSpace(data), []byte("\ufeff"))
	if bytes.HasPrefix(head, []byte("WEBVTT")) {
		return FormatVTT
	}
	upper := bytes.ToUpper(head)
	if bytes.Contains(upper, []byte("<SAMI")) || bytes.Contains(upper, []byte("<SYNC")) {
		return FormatSMI
	}
	return FormatSRT
}

func normalize(data []byte) string {
	s := strings.TrimPrefix(string(data), "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// splitBlocks groups consecutive non-blank lines.
func splitBlocks(content string) [][]string {
	var blocks [][]string
	var cur []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}
