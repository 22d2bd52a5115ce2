package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/oldphotos/api/internal/model"
)

const heartbeatCheckInterval = 5 * time.Second

// TouchHeartbeat records that a client is still watching the queue.
func (s *Scheduler) TouchHeartbeat() {
	s.lastHeartbeat.Store(time.Now().UnixMilli())
}

// RunHeartbeatMonitor watches for the client going away. The desktop app
// polls the job list continuously; once no poll has arrived for the
// configured timeout there is nobody left to collect results, so queued
// and running work is cancelled rather than burned through. Jobs parked
// on waiting_input are left alone; they hold no compute and their state
// is exactly what the returning user needs to see.
func (s *Scheduler) RunHeartbeatMonitor(ctx context.Context) {
	t := time.NewTicker(heartbeatCheckInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.expireStale(now)
		}
	}
}

func (s *Scheduler) expireStale(now time.Time) {
	last := time.UnixMilli(s.lastHeartbeat.Load())
	if now.Sub(last) < s.hbTimeout {
		return
	}
	var ids []string
	var changed []*model.Job
	s.jobs.Locked(func(jobs map[string]*model.Job) {
		for _, j := range jobs {
			switch j.Status {
			case model.JobStatusPending, model.JobStatusProcessing:
				s.cancelLocked(j)
				ids = append(ids, j.ID)
				changed = append(changed, j.Clone())
			}
		}
	})
	if len(ids) == 0 {
		return
	}
	log.Printf("No client heartbeat for %s, cancelled %d job(s)", s.hbTimeout, len(ids))
	for _, id := range ids {
		s.invoker.Cancel(id)
	}
	for _, j := range changed {
		s.notifyJob(j)
	}
}
