package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/userhub/internal/logging"
	"github.com/dmitrijs2005/userhub/internal/server/imagehost"
	"github.com/dmitrijs2005/userhub/internal/server/repositories/repomanager"
)

// sweepTimeout bounds a single scheduled run.
const sweepTimeout = 5 * time.Minute

// PhotoSweeper removes hosted photos that no user references. Objects
// younger than the grace period are skipped, since an upload may still be
// waiting for its commit.
type PhotoSweeper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	images      imagehost.Host
	grace       time.Duration
	logger      logging.Logger
	now         func() time.Time
}

// NewPhotoSweeper constructs a PhotoSweeper.
func NewPhotoSweeper(db *sql.DB, m repomanager.RepositoryManager, images imagehost.Host, grace time.Duration, l logging.Logger) *PhotoSweeper {
	return &PhotoSweeper{
		db:          db,
		repomanager: m,
		images:      images,
		grace:       grace,
		logger:      l.With("module", "photo_sweeper"),
		now:         time.Now,
	}
}

// Sweep runs one reconciliation pass and returns how many objects it removed.
// Failures to remove a single object are logged and skipped.
func (s *PhotoSweeper) Sweep(ctx context.Context) (int, error) {
	// Hosted objects are listed before the references are read: an upload
	// committed in between shows up as referenced.
	objects, err := s.images.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("error listing hosted photos: %w", err)
	}

	ids, err := s.repomanager.Users(s.db).ListPhotoIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("error listing referenced photos: %w", err)
	}

	referenced := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		referenced[id] = struct{}{}
	}

	cutoff := s.now().Add(-s.grace)
	removed := 0
	for _, o := range objects {
		if _, ok := referenced[o.ExternalID]; ok {
			continue
		}
		if o.LastModified.After(cutoff) {
			continue
		}
		if err := s.images.Remove(ctx, o.ExternalID); err != nil {
			s.logger.Warn(ctx, "failed to remove orphaned photo", "external_id", o.ExternalID, "error", err)
			continue
		}
		removed++
	}

	s.logger.Info(ctx, "photo sweep finished", "scanned", len(objects), "removed", removed)
	return removed, nil
}

// Run implements cron.Job.
func (s *PhotoSweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error(ctx, "photo sweep failed", "error", err)
	}
}
