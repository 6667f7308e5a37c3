package handlers

import (
	"sync"

	"github.com/subtrans/backend/internal/job"
)

// Runtime holds the job defaults requests start from. The default engine can
// change at runtime through the settings endpoint.
type Runtime struct {
	mu   sync.RWMutex
	opts job.Options
}

func NewRuntime(opts job.Options) *Runtime {
	return &Runtime{opts: opts}
}

// Defaults returns a copy of the current defaults.
func (r *Runtime) Defaults() job.Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts
}

func (r *Runtime) SetEngine(engine string) {
	if engine == "" {
		return
	}
	r.mu.Lock()
	r.opts.Engine = engine
	r.mu.Unlock()
}
