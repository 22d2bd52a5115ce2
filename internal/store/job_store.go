package store

import (
	"sort"
	"sync"

	"github.com/oldphotos/api/internal/model"
)

// JobStore is the in-memory job table and the single synchronization point
// for all scheduler state. Readers get deep copies; every mutation happens
// under the write lock, either through Update for one job or through Locked
// for decisions that must see and change several jobs atomically.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*model.Job)}
}

// Add registers a new job record. The store takes ownership of j.
func (s *JobStore) Add(j *model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

// Get returns a snapshot of one job.
func (s *JobStore) Get(id string) (*model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return j.Clone(), true
}

// List returns snapshots of every job in creation order.
func (s *JobStore) List() []*model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// Update runs fn on the live record under the write lock. fn may mutate the
// job freely; returning an error leaves whatever fn did in place, so fn must
// decide before it mutates. Returns false if the job does not exist.
func (s *JobStore) Update(id string, fn func(*model.Job) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	return true, fn(j)
}

// Locked runs fn with the live job table under the write lock. The scheduler
// uses it for multi-job critical sections: dispatch, cancel-all and
// heartbeat expiry.
func (s *JobStore) Locked(fn func(jobs map[string]*model.Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.jobs)
}

// Delete removes a job record outright (cleanup sweeper only; the scheduler
// never deletes, it transitions).
func (s *JobStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Len reports the number of job records.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
