package scheduler

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"orderbot_backend/platform/logger"
)

const (
	defaultExportSweepInterval = time.Hour
	defaultExportRetention     = 7 * 24 * time.Hour
)

var exportPrefixes = []string{"pedido_", "borrador_"}

// ExportSweeper periodically removes old order exports from the export directory.
type ExportSweeper struct {
	dir       string
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewExportSweeper(dir string, log *logger.Logger, interval, retention time.Duration) *ExportSweeper {
	if interval <= 0 {
		interval = defaultExportSweepInterval
	}
	if retention <= 0 {
		retention = defaultExportRetention
	}

	return &ExportSweeper{
		dir:       dir,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (s *ExportSweeper) Run(ctx context.Context) {
	if s == nil || s.dir == "" {
		return
	}

	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *ExportSweeper) sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("export sweep failed", "dir", s.dir, "error", err)
		}
		return 0
	}

	cutoff := s.now().Add(-s.retention)
	deleted := 0
	for _, e := range entries {
		if e.IsDir() || !isExport(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.log.Warn("failed to remove export", "file", e.Name(), "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info("export sweep deleted old files", "deleted", deleted)
	}
	return deleted
}

func isExport(name string) bool {
	for _, p := range exportPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
