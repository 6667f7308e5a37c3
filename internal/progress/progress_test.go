package progress

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(ttl time.Duration) (*Store, *clock) {
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(ttl, zap.NewNop().Sugar())
	s.now = c.Now
	return s, c
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	s, c := newTestStore(0)
	p := s.Initialize("job-1", 10, 300)

	if p.Status != StatusProcessing {
		t.Errorf("status = %q, want processing", p.Status)
	}
	if p.Progress != 0 || p.ProcessedEntries != 0 {
		t.Errorf("fresh entry has progress %d processed %d", p.Progress, p.ProcessedEntries)
	}
	if !p.StartTime.Equal(c.Now()) {
		t.Errorf("start time = %v", p.StartTime)
	}
	if s.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want default", s.ttl)
	}
}

func TestUpdateDerivedFields(t *testing.T) {
	t.Parallel()

	s, c := newTestStore(0)
	s.Initialize("job-1", 10, 300)
	c.Advance(10 * time.Second)

	p, ok := s.Update("job-1", Update{ProcessedEntries: Int(5), ProcessedCharacters: Int(100)})
	if !ok {
		t.Fatal("update reported missing job")
	}
	if p.Progress != 50 {
		t.Errorf("progress = %d, want 50", p.Progress)
	}
	if p.AverageCharsPerSecond != 10 {
		t.Errorf("avg = %d, want 10", p.AverageCharsPerSecond)
	}
	if p.EstimatedTimeRemaining != 20 {
		t.Errorf("eta = %d, want 20", p.EstimatedTimeRemaining)
	}
	if p.Message == "" {
		t.Error("expected default message")
	}

	p, _ = s.Update("job-1", Update{Message: "custom"})
	if p.Message != "custom" {
		t.Errorf("message = %q", p.Message)
	}
}

func TestUpdateIsMonotonic(t *testing.T) {
	t.Parallel()

	s, c := newTestStore(0)
	s.Initialize("job-1", 4, 40)
	c.Advance(time.Second)

	s.Update("job-1", Update{ProcessedEntries: Int(3), ProcessedCharacters: Int(30)})
	p, _ := s.Update("job-1", Update{ProcessedEntries: Int(1), ProcessedCharacters: Int(10)})

	if p.ProcessedEntries != 3 || p.ProcessedCharacters != 30 {
		t.Errorf("counters went backwards: %d entries, %d chars", p.ProcessedEntries, p.ProcessedCharacters)
	}
	if p.Progress != 75 {
		t.Errorf("progress = %d, want 75", p.Progress)
	}
}

func TestPercentClamped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		done, total, want int
	}{
		{0, 0, 0},
		{1, 3, 33},
		{2, 3, 67},
		{5, 4, 100},
		{-1, 4, 0},
	}
	for _, tt := range tests {
		if got := percent(tt.done, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestSetChunk(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(0)
	s.Initialize("job-1", 100, 1000)
	s.SetChunk("job-1", 2, 4, 25, 260)

	p, _ := s.Get("job-1")
	if p.CurrentChunk != 2 || p.TotalChunks != 4 {
		t.Errorf("chunk = %d/%d", p.CurrentChunk, p.TotalChunks)
	}
	if want := "Translating chunk 2/4... (25 entries, 260 chars)"; p.Message != want {
		t.Errorf("message = %q, want %q", p.Message, want)
	}
}

func TestCompleteAndExpiry(t *testing.T) {
	t.Parallel()

	s, c := newTestStore(time.Hour)
	s.Initialize("job-1", 10, 300)
	s.Update("job-1", Update{ProcessedEntries: Int(4)})

	p, ok := s.Complete("job-1", 3*time.Second, 100)
	if !ok {
		t.Fatal("complete reported missing job")
	}
	if p.Status != StatusCompleted || p.Progress != 100 {
		t.Errorf("status %q progress %d", p.Status, p.Progress)
	}
	if p.ProcessedEntries != 10 || p.ProcessedCharacters != 300 {
		t.Errorf("processed = %d/%d", p.ProcessedEntries, p.ProcessedCharacters)
	}
	if p.TotalTimeMs != 3000 || p.AverageCharsPerSecond != 100 {
		t.Errorf("total time %d rate %d", p.TotalTimeMs, p.AverageCharsPerSecond)
	}

	c.Advance(59 * time.Minute)
	if _, ok := s.Get("job-1"); !ok {
		t.Fatal("entry expired early")
	}

	c.Advance(time.Minute)
	if _, ok := s.Get("job-1"); ok {
		t.Fatal("entry should have expired")
	}
	if len(s.All()) != 0 {
		t.Error("expired entry listed")
	}
}

func TestSetError(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(0)
	s.Initialize("job-1", 1, 1)
	s.SetError("job-1", "engine unavailable")

	p, ok := s.Get("job-1")
	if !ok {
		t.Fatal("errored job not readable")
	}
	if p.Status != StatusError || p.Message != "engine unavailable" {
		t.Errorf("got %q %q", p.Status, p.Message)
	}
}

func TestUnknownJob(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(0)
	if _, ok := s.Update("missing", Update{ProcessedEntries: Int(1)}); ok {
		t.Error("update on unknown job reported ok")
	}
	if _, ok := s.Complete("missing", time.Second, 1); ok {
		t.Error("complete on unknown job reported ok")
	}
	s.SetError("missing", "boom")
	if _, ok := s.Get("missing"); ok {
		t.Error("SetError created an entry")
	}
}

func TestSweepAndAll(t *testing.T) {
	t.Parallel()

	s, c := newTestStore(time.Minute)
	s.Initialize("a", 1, 1)
	c.Advance(time.Second)
	s.Initialize("b", 1, 1)
	c.Advance(time.Second)
	s.Initialize("c", 1, 1)

	s.Complete("a", time.Second, 1)
	s.SetError("b", "failed")

	all := s.All()
	if len(all) != 3 || all[0].JobID != "a" || all[2].JobID != "c" {
		t.Fatalf("All() = %+v", all)
	}

	c.Advance(2 * time.Minute)
	if n := s.Sweep(); n != 2 {
		t.Errorf("swept %d, want 2", n)
	}
	if _, ok := s.Get("c"); !ok {
		t.Error("processing job should never expire")
	}

	s.Delete("c")
	if len(s.All()) != 0 {
		t.Error("delete left entry behind")
	}
}

func TestObservers(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(0)

	var mu sync.Mutex
	var seen []Status
	s.Subscribe(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p.Status)
	})

	s.Initialize("job-1", 2, 2)
	s.Update("job-1", Update{ProcessedEntries: Int(1)})
	s.Complete("job-1", time.Second, 2)

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusProcessing, StatusProcessing, StatusCompleted}
	if len(seen) != len(want) {
		t.Fatalf("observer saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestConcurrentUpdates(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(0)
	s.Initialize("job-1", 100, 100)

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Update("job-1", Update{ProcessedEntries: Int(n)})
			s.Get("job-1")
		}(i)
	}
	wg.Wait()

	p, _ := s.Get("job-1")
	if p.ProcessedEntries != 100 || p.Progress != 100 {
		t.Errorf("final = %d entries, %d%%", p.ProcessedEntries, p.Progress)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHashFields(t *testing.T) {
	t.Parallel()

	p := Progress{JobID: "j", Status: StatusProcessing, Progress: 40, ProcessedEntries: 4, TotalEntries: 10, Message: "m"}
	payload, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}

	fields := hashFields(p, payload)
	if fields["status"] != "processing" || fields["progress"] != "40" {
		t.Errorf("fields = %v", fields)
	}

	var back Progress
	if err := json.Unmarshal([]byte(fields["snapshot"].(string)), &back); err != nil {
		t.Fatal(err)
	}
	if back.ProcessedEntries != 4 || back.JobID != "j" {
		t.Errorf("snapshot = %+v", back)
	}

	r := &RedisPublisher{prefix: "subtrans"}
	if got := r.channel("j"); got != "subtrans:job:j:progress" {
		t.Errorf("channel = %q", got)
	}
}
