package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oldphotos/api/internal/artifact"
	"github.com/oldphotos/api/internal/store"
)

// Notifier is told about job records the sweeper purged.
type Notifier interface {
	JobRemoved(jobID string)
}

// Sweeper evicts aged artifacts and the records that pointed at them. It
// runs outside the scheduler's critical path; jobs and photos are read as
// snapshots and removed by id, and every filesystem error is tolerated
// per file.
type Sweeper struct {
	files    *artifact.Store
	photos   *store.PhotoStore
	jobs     *store.JobStore
	notifier Notifier // optional

	interval time.Duration
	maxAge   time.Duration
}

func NewSweeper(files *artifact.Store, photos *store.PhotoStore, jobs *store.JobStore, notifier Notifier, interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 2 * time.Hour
	}
	if maxAge <= 0 {
		maxAge = 2 * time.Hour
	}
	return &Sweeper{
		files:    files,
		photos:   photos,
		jobs:     jobs,
		notifier: notifier,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run sweeps on the configured interval until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.SweepOnce(now)
		}
	}
}

// SweepOnce performs one full pass: delete artifacts older than the
// retention bound, then drop photos whose file is gone and jobs whose
// result no longer resolves. Returns what was removed.
func (s *Sweeper) SweepOnce(now time.Time) (files, photos, jobs int) {
	for _, dir := range []string{s.files.UploadsDir(), s.files.ResultsDir()} {
		files += s.sweepDir(dir, now)
	}
	photos = s.purgePhotos()
	jobs = s.purgeJobs()
	if files+photos+jobs > 0 {
		log.Printf("Cleanup: removed %d file(s), %d photo(s), %d job(s)", files, photos, jobs)
	}
	return files, photos, jobs
}

func (s *Sweeper) sweepDir(dir string, now time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		// Dotfiles are directory markers (.gitkeep), not artifacts.
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed
}

func (s *Sweeper) purgePhotos() int {
	removed := 0
	for _, p := range s.photos.List() {
		if _, err := os.Stat(p.Path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if _, ok := s.photos.Delete(p.ID); ok {
			removed++
		}
	}
	return removed
}

func (s *Sweeper) purgeJobs() int {
	var purged []string
	for _, j := range s.jobs.List() {
		if j.Result == "" {
			continue
		}
		path, ok := s.files.PathFor(j.Result)
		if !ok {
			continue
		}
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		s.jobs.Delete(j.ID)
		purged = append(purged, j.ID)
	}
	if s.notifier != nil {
		for _, id := range purged {
			s.notifier.JobRemoved(id)
		}
	}
	return len(purged)
}
