// Package job drives one subtitle file through chunked translation and reports
// progress while it runs.
package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/subtrans/backend/internal/subtitle"
	"github.com/subtrans/backend/internal/subtitle/chunk"
)

const (
	DefaultChunkSize  = 50
	MaxChunkSize      = 1000
	DefaultChunkPause = 200 * time.Millisecond
	previewEntries    = 3
)

var (
	ErrMissingParams = errors.New("missing required parameters")
	ErrNoEntries     = errors.New("subtitle file has no entries")
)

// JobError aborts a job before any chunk is translated
type JobError struct {
	JobID string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Options configures a translation job
type Options struct {
	chunk.Options
	ChunkSize int `json:"chunk_size"`
}

// Normalize clamps every option into range.
func (o *Options) Normalize() {
	o.Options.Normalize()
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	o.ChunkSize = max(1, min(o.ChunkSize, MaxChunkSize))
}

// ChunkStat records the outcome of one chunk
type ChunkStat struct {
	Index      int            `json:"index"`
	Entries    int            `json:"entries"`
	Characters int            `json:"characters"`
	Engine     string         `json:"engine"`
	Strategy   chunk.Strategy `json:"strategy"`
	Success    bool           `json:"success"`
	Failed     int            `json:"failed_entries"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// Stats aggregates a finished job
type Stats struct {
	TotalTimeMs     int64       `json:"total_time_ms"`
	TotalCharacters int         `json:"total_characters"`
	CharsPerSecond  int         `json:"chars_per_second"`
	Chunks          []ChunkStat `json:"chunks"`
	Retranslations  int         `json:"retranslations"`
	FailedEntries   int         `json:"failed_entries"`
}

// Result is the output of Run
type Result struct {
	Entries []subtitle.Entry `json:"entries"`
	Stats   Stats            `json:"stats"`
}

// FileRequest describes a whole-file translation
type FileRequest struct {
	JobID        string
	Filename     string
	Data         []byte
	Format       subtitle.Format // declared input format, sniffed when empty
	OutputFormat subtitle.Format // defaults to the input format
	Options      Options
}

// FileResult is a translated file ready to be stored
type FileResult struct {
	JobID          string           `json:"job_id"`
	OutputName     string           `json:"output_name"`
	Output         []byte           `json:"-"`
	OriginalFormat subtitle.Format  `json:"original_format"`
	OutputFormat   subtitle.Format  `json:"output_format"`
	TotalEntries   int              `json:"total_entries"`
	Stats          subtitle.Stats   `json:"stats"`
	Translation    Stats            `json:"translation_stats"`
	Preview        []subtitle.Entry `json:"preview"`
	Options        Options          `json:"translation_options"`
}
