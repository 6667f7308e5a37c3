package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/db/models"
)

// Catalog is the metadata side of stored files
type Catalog interface {
	ListExpiredUploads(now time.Time) ([]models.Upload, error)
	DeleteUpload(id string) error
}

// Sweeper deletes uploads and translated outputs once they expire
type Sweeper struct {
	catalog Catalog
	store   Store
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewSweeper(catalog Catalog, store Store, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{catalog: catalog, store: store, log: log, now: time.Now}
}

// Sweep removes every expired file and its metadata row. A file that cannot
// be deleted keeps its row so the next sweep retries it.
func (s *Sweeper) Sweep(ctx context.Context) int {
	expired, err := s.catalog.ListExpiredUploads(s.now())
	if err != nil {
		s.log.Errorw("failed to list expired uploads", "error", err)
		return 0
	}

	removed := 0
	for _, u := range expired {
		if err := s.store.Delete(ctx, u.StorageKey); err != nil {
			s.log.Warnw("failed to delete expired file", "file_id", u.ID, "key", u.StorageKey, "error", err)
			continue
		}
		if err := s.catalog.DeleteUpload(u.ID); err != nil {
			s.log.Warnw("failed to delete upload row", "file_id", u.ID, "error", err)
			continue
		}
		removed++
		s.log.Debugw("expired file removed", "file_id", u.ID, "kind", u.Kind)
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				s.log.Infow("expired files removed", "count", n)
			}
		}
	}
}
