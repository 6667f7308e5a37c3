// Package watcher translates subtitle files dropped into a directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/storage"
)

const defaultSettle = 500 * time.Millisecond

// EventHandler processes one new file
type EventHandler func(ctx context.Context, filePath string) error

// Watcher runs handler for every subtitle file created in a directory, at most
// maxConcurrent at a time.
type Watcher struct {
	inputDir  string
	handler   EventHandler
	log       *zap.SugaredLogger
	watcher   *fsnotify.Watcher
	semaphore chan struct{}
	wg        sync.WaitGroup

	// settle is how long to wait after a create event before reading the file
	settle time.Duration
}

func New(inputDir string, handler EventHandler, log *zap.SugaredLogger, maxConcurrent int) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(inputDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}

	return &Watcher{
		inputDir:  inputDir,
		handler:   handler,
		log:       log,
		watcher:   fw,
		semaphore: make(chan struct{}, maxConcurrent),
		settle:    defaultSettle,
	}, nil
}

// Start blocks until ctx is cancelled, then waits for in-flight files.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.Infow("watching for subtitle files", "dir", w.inputDir, "max_concurrent", cap(w.semaphore))

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("waiting for in-flight translations")
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				w.wg.Wait()
				return errors.New("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !storage.IsSubtitleFile(event.Name) {
				w.log.Debugw("ignoring non-subtitle file", "path", event.Name)
				continue
			}
			w.log.Infow("new subtitle file", "path", event.Name)

			select {
			case w.semaphore <- struct{}{}:
			case <-ctx.Done():
				w.wg.Wait()
				return ctx.Err()
			}

			w.wg.Add(1)
			go func(path string) {
				defer w.wg.Done()
				defer func() { <-w.semaphore }()

				if err := sleep(ctx, w.settle); err != nil {
					return
				}
				if err := w.handler(ctx, path); err != nil {
					w.log.Errorw("failed to translate file", "path", path, "error", err)
				}
			}(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.wg.Wait()
				return errors.New("watcher errors channel closed")
			}
			w.log.Errorw("watcher error", "error", err)
		}
	}
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
