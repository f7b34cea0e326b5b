package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wolfman30/diagnostico-bot/internal/observability/metrics"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

// MediaSweeper removes downloaded photos that outlived the analysis that needed them.
type MediaSweeper struct {
	dir     string
	maxAge  time.Duration
	now     func() time.Time
	metrics *metrics.BotMetrics
	logger  *logging.Logger
}

func NewMediaSweeper(dir string, maxAge time.Duration, m *metrics.BotMetrics, logger *logging.Logger) *MediaSweeper {
	if logger == nil {
		logger = logging.Default()
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &MediaSweeper{dir: dir, maxAge: maxAge, now: time.Now, metrics: m, logger: logger}
}

// Sweep deletes regular files older than maxAge and returns how many were removed.
// A missing directory is not an error.
func (m *MediaSweeper) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("housekeeping: read media dir: %w", err)
	}

	cutoff := m.now().Add(-m.maxAge)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("media sweep: remove failed", "error", err, "file", entry.Name())
			continue
		}
		removed++
	}
	m.metrics.AddSwept("media", removed)
	if removed > 0 {
		m.logger.Info("media sweep completed", "removed", removed, "dir", m.dir)
	}
	return removed, nil
}
