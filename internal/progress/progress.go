// Package progress tracks per-job translation progress in memory. Entries are
// created when a job starts, updated after every chunk and expire a fixed time
// after the job completes or fails.
package progress

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is how long finished jobs stay visible to pollers
const DefaultTTL = 24 * time.Hour

// Status represents the current state of a job
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Progress is a snapshot of one job
type Progress struct {
	JobID                  string    `json:"job_id"`
	Status                 Status    `json:"status"`
	Progress               int       `json:"progress"`
	TotalEntries           int       `json:"total_entries"`
	ProcessedEntries       int       `json:"processed_entries"`
	TotalCharacters        int       `json:"total_characters"`
	ProcessedCharacters    int       `json:"processed_characters"`
	StartTime              time.Time `json:"start_time"`
	CurrentChunk           int       `json:"current_chunk"`
	TotalChunks            int       `json:"total_chunks"`
	AverageCharsPerSecond  int       `json:"average_chars_per_second"`
	EstimatedTimeRemaining int       `json:"estimated_time_remaining"` // seconds
	TotalTimeMs            int64     `json:"total_time_ms,omitempty"`
	Message                string    `json:"message"`
	UpdatedAt              time.Time `json:"updated_at"`

	expiresAt time.Time
}

// Update carries the fields to change; nil fields are left alone.
type Update struct {
	ProcessedEntries    *int
	ProcessedCharacters *int
	CurrentChunk        *int
	TotalChunks         *int
	Message             string
}

// Int is a helper for building Updates.
func Int(n int) *int { return &n }

// Observer receives a snapshot after every mutation
type Observer func(Progress)

// Store holds progress for all running and recently finished jobs
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*Progress
	observers []Observer
	ttl       time.Duration
	now       func() time.Time
	log       *zap.SugaredLogger
}

func NewStore(ttl time.Duration, log *zap.SugaredLogger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		jobs: make(map[string]*Progress),
		ttl:  ttl,
		now:  time.Now,
		log:  log,
	}
}

// Subscribe registers an observer. Observers run synchronously on the
// mutating goroutine and must not call back into the store.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Initialize creates (or resets) the entry for a job.
func (s *Store) Initialize(jobID string, totalEntries, totalCharacters int) Progress {
	now := s.now()
	p := &Progress{
		JobID:           jobID,
		Status:          StatusProcessing,
		TotalEntries:    totalEntries,
		TotalCharacters: totalCharacters,
		StartTime:       now,
		Message:         "Preparing translation...",
		UpdatedAt:       now,
	}

	s.mu.Lock()
	s.jobs[jobID] = p
	snap := *p
	s.mu.Unlock()

	s.log.Infow("progress initialized", "job_id", jobID, "entries", totalEntries, "characters", totalCharacters)
	s.notify(snap)
	return snap
}

// Update merges the provided fields and recomputes the derived ones. Processed
// counters never move backwards.
func (s *Store) Update(jobID string, u Update) (Progress, bool) {
	return s.mutate(jobID, func(p *Progress, now time.Time) {
		if u.ProcessedEntries != nil {
			p.ProcessedEntries = max(p.ProcessedEntries, *u.ProcessedEntries)
		}
		if u.ProcessedCharacters != nil {
			p.ProcessedCharacters = max(p.ProcessedCharacters, *u.ProcessedCharacters)
		}
		if u.CurrentChunk != nil {
			p.CurrentChunk = *u.CurrentChunk
		}
		if u.TotalChunks != nil {
			p.TotalChunks = *u.TotalChunks
		}

		p.Progress = percent(p.ProcessedEntries, p.TotalEntries)

		elapsed := now.Sub(p.StartTime).Seconds()
		p.AverageCharsPerSecond = 0
		if elapsed > 0 {
			p.AverageCharsPerSecond = int(math.Round(float64(p.ProcessedCharacters) / elapsed))
		}
		p.EstimatedTimeRemaining = 0
		if p.AverageCharsPerSecond > 0 {
			remaining := max(0, p.TotalCharacters-p.ProcessedCharacters)
			p.EstimatedTimeRemaining = int(math.Round(float64(remaining) / float64(p.AverageCharsPerSecond)))
		}

		if u.Message != "" {
			p.Message = u.Message
		} else {
			p.Message = fmt.Sprintf("Progress: %d%% (%d/%d entries) - avg %d chars/s",
				p.Progress, p.ProcessedEntries, p.TotalEntries, p.AverageCharsPerSecond)
		}
	})
}

// SetChunk records which chunk is being translated.
func (s *Store) SetChunk(jobID string, chunkIndex, totalChunks, chunkSize, chunkChars int) {
	s.mutate(jobID, func(p *Progress, _ time.Time) {
		p.CurrentChunk = chunkIndex
		p.TotalChunks = totalChunks
		p.Message = fmt.Sprintf("Translating chunk %d/%d... (%d entries, %d chars)", chunkIndex, totalChunks, chunkSize, chunkChars)
	})
}

// Complete marks a job finished and schedules its removal.
func (s *Store) Complete(jobID string, totalTime time.Duration, finalRate int) (Progress, bool) {
	p, ok := s.mutate(jobID, func(p *Progress, now time.Time) {
		p.Status = StatusCompleted
		p.Progress = 100
		p.ProcessedEntries = p.TotalEntries
		p.ProcessedCharacters = p.TotalCharacters
		p.EstimatedTimeRemaining = 0
		p.TotalTimeMs = totalTime.Milliseconds()
		p.AverageCharsPerSecond = finalRate
		p.Message = "Translation complete"
		p.expiresAt = now.Add(s.ttl)
	})
	if ok {
		s.log.Infow("progress completed", "job_id", jobID, "total_time", totalTime, "chars_per_second", finalRate)
	}
	return p, ok
}

// SetError marks a job failed. The entry stays readable until it expires.
func (s *Store) SetError(jobID, message string) {
	if _, ok := s.mutate(jobID, func(p *Progress, now time.Time) {
		p.Status = StatusError
		p.Message = message
		p.expiresAt = now.Add(s.ttl)
	}); ok {
		s.log.Errorw("job failed", "job_id", jobID, "error", message)
	}
}

// Get returns a snapshot of a job's progress.
func (s *Store) Get(jobID string) (Progress, bool) {
	now := s.now()

	s.mu.RLock()
	p, ok := s.jobs[jobID]
	if !ok {
		s.mu.RUnlock()
		return Progress{}, false
	}
	snap := *p
	s.mu.RUnlock()

	if expired(&snap, now) {
		s.Delete(jobID)
		return Progress{}, false
	}
	return snap, true
}

// All returns snapshots of every live job, oldest first.
func (s *Store) All() []Progress {
	now := s.now()

	s.mu.RLock()
	out := make([]Progress, 0, len(s.jobs))
	for _, p := range s.jobs {
		if !expired(p, now) {
			out = append(out, *p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Delete drops a job's entry.
func (s *Store) Delete(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// Sweep removes expired entries and reports how many were dropped.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, p := range s.jobs {
		if expired(p, now) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// Run sweeps expired entries every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Infow("expired progress entries removed", "count", n)
			}
		}
	}
}

func (s *Store) mutate(jobID string, fn func(p *Progress, now time.Time)) (Progress, bool) {
	now := s.now()

	s.mu.Lock()
	p, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		s.log.Warnw("no progress entry", "job_id", jobID)
		return Progress{}, false
	}
	fn(p, now)
	p.UpdatedAt = now
	snap := *p
	s.mu.Unlock()

	s.notify(snap)
	return snap, true
}

func (s *Store) notify(snap Progress) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()

	for _, o := range observers {
		o(snap)
	}
}

func expired(p *Progress, now time.Time) bool {
	return !p.expiresAt.IsZero() && !now.Before(p.expiresAt)
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(done) / float64(total) * 100))
	return max(0, min(pct, 100))
}
