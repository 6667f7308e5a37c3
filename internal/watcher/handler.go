package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/job"
	"github.com/subtrans/backend/internal/subtitle"
)

// FileTranslator is the part of the job driver the watcher needs
type FileTranslator interface {
	TranslateFile(ctx context.Context, req job.FileRequest) (*job.FileResult, error)
}

// TranslateHandler returns an EventHandler that translates each file with
// opts and writes <name>_translated_<lang>_<engine>.<format> into outputDir.
// An empty outputFormat keeps the input format.
func TranslateHandler(tr FileTranslator, opts job.Options, outputDir string, outputFormat subtitle.Format, log *zap.SugaredLogger) EventHandler {
	return func(ctx context.Context, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		format, err := subtitle.FormatFromFilename(path)
		if err != nil {
			return err
		}

		jobID := uuid.New().String()
		res, err := tr.TranslateFile(ctx, job.FileRequest{
			JobID:        jobID,
			Filename:     filepath.Base(path),
			Data:         data,
			Format:       format,
			OutputFormat: outputFormat,
			Options:      opts,
		})
		if err != nil {
			return err
		}

		out := filepath.Join(outputDir, outputName(path, res))
		if err := writeFile(out, res.Output); err != nil {
			return err
		}

		log.Infow("file translated",
			"job_id", jobID, "input", path, "output", out,
			"entries", res.TotalEntries, "failed_entries", res.Translation.FailedEntries,
			"chars_per_second", res.Translation.CharsPerSecond)
		return nil
	}
}

func outputName(input string, res *job.FileResult) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	engine := strings.Replace(res.Options.Engine, "ollama-", "", 1)
	return fmt.Sprintf("%s_translated_%s_%s.%s", base, res.Options.TargetLang, engine, res.OutputFormat)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
