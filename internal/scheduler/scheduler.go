package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oldphotos/api/internal/artifact"
	"github.com/oldphotos/api/internal/model"
	"github.com/oldphotos/api/internal/stage"
	"github.com/oldphotos/api/internal/store"
)

// Invoker runs one worker process per call and can terminate a run by its
// key out-of-band.
type Invoker interface {
	Invoke(ctx context.Context, key, script string, args []string) ([]byte, error)
	Cancel(key string)
}

// Notifier receives job lifecycle events for fan-out to connected clients.
type Notifier interface {
	JobUpdated(job *model.Job)
	JobRemoved(jobID string)
}

// Options wires the scheduler's collaborators.
type Options struct {
	Jobs     *store.JobStore
	Photos   *store.PhotoStore
	Stages   *stage.Registry
	Files    *artifact.Store
	Invoker  Invoker
	Notifier Notifier // optional

	// MaxConcurrentLimit is the ceiling on parallel workers; the runtime
	// value starts there and may be lowered via SetMaxConcurrent.
	MaxConcurrentLimit int
	HeartbeatTimeout   time.Duration
}

// Scheduler is the admission and dispatch engine. It decides which pending
// jobs may advance, drives each job's state machine and records results.
// Two resources are accounted: compute slots (capacity maxConcurrent,
// consumed by running workers) and the input focus (capacity one, held by
// the single job allowed to wait for human input). A job about to pause
// for input claims only the focus, never a slot.
//
// All job mutations are serialized behind the job store's lock; worker
// invocations happen outside it.
type Scheduler struct {
	jobs     *store.JobStore
	photos   *store.PhotoStore
	stages   *stage.Registry
	files    *artifact.Store
	invoker  Invoker
	notifier Notifier

	settingsMu    sync.Mutex
	maxConcurrent int
	limit         int

	lastHeartbeat atomic.Int64 // unix millis
	hbTimeout     time.Duration

	nextPriority atomic.Int64
}

func New(opts Options) *Scheduler {
	limit := opts.MaxConcurrentLimit
	if limit < 1 {
		limit = 1
	}
	hb := opts.HeartbeatTimeout
	if hb <= 0 {
		hb = 10 * time.Second
	}
	s := &Scheduler{
		jobs:          opts.Jobs,
		photos:        opts.Photos,
		stages:        opts.Stages,
		files:         opts.Files,
		invoker:       opts.Invoker,
		notifier:      opts.Notifier,
		maxConcurrent: limit,
		limit:         limit,
		hbTimeout:     hb,
	}
	s.TouchHeartbeat()
	return s
}

// CreateJobs admits one job per photo id and dispatches. Validation is
// all-or-nothing: a bad step, model, photo or mask creates no jobs.
func (s *Scheduler) CreateJobs(req *model.CreateJobsRequest) ([]*model.Job, error) {
	for _, step := range req.Steps {
		if !s.stages.Available(step) {
			return nil, &ValidationError{Message: fmt.Sprintf("unknown or unavailable step: %s", step)}
		}
	}
	for key, m := range req.Options {
		if d, ok := s.stages.Get(key); ok && len(d.Models) > 0 && !d.HasModel(m) {
			return nil, &ValidationError{Message: fmt.Sprintf("unknown model %q for step %s", m, key)}
		}
	}

	photos := make([]*model.Photo, 0, len(req.PhotoIDs))
	for _, id := range req.PhotoIDs {
		p, ok := s.photos.Get(id)
		if !ok {
			return nil, &ValidationError{Message: fmt.Sprintf("photo not found: %s", id)}
		}
		photos = append(photos, p)
	}

	maskPaths := make(map[string]string)
	for photoID, dataURL := range req.Masks {
		if dataURL == "" {
			continue
		}
		path, err := s.files.SaveMaskDataURL(dataURL)
		if err != nil {
			for _, p := range maskPaths {
				s.files.Remove(p)
			}
			return nil, &ValidationError{Message: fmt.Sprintf("invalid mask for photo %s: %v", photoID, err)}
		}
		maskPaths[photoID] = path
	}

	ids := make([]string, 0, len(photos))
	for _, p := range photos {
		j := &model.Job{
			ID:               uuid.NewString(),
			PhotoID:          p.ID,
			PhotoName:        p.Name,
			OriginalPath:     p.Path,
			CurrentInputPath: p.Path,
			Steps:            append([]string(nil), req.Steps...),
			Status:           model.JobStatusPending,
			Priority:         int(s.nextPriority.Add(1)),
			CreatedAt:        time.Now(),
			StepResults:      []model.StepResult{},
			CropRect:         req.CropRects[p.ID],
			MaskPath:         maskPaths[p.ID],
		}
		if len(req.Options) > 0 {
			j.Options = make(map[string]string, len(req.Options))
			for k, v := range req.Options {
				j.Options[k] = v
			}
		}
		s.syncDerived(j)
		s.jobs.Add(j)
		s.notifyByID(j.ID)
		ids = append(ids, j.ID)
	}

	s.Dispatch()

	created := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		if j, ok := s.jobs.Get(id); ok {
			created = append(created, j)
		}
	}
	return created, nil
}

// ListJobs returns all jobs in display order: waiting first, then running,
// then the queue by priority, then finished work newest first. Listing is
// the client's liveness signal, so it refreshes the heartbeat.
func (s *Scheduler) ListJobs() []*model.Job {
	s.TouchHeartbeat()
	jobs := s.jobs.List()
	rank := func(j *model.Job) int {
		switch j.Status {
		case model.JobStatusWaitingInput:
			return 0
		case model.JobStatusProcessing:
			return 1
		case model.JobStatusPending:
			return 2
		default:
			return 3
		}
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		ja, jb := jobs[a], jobs[b]
		ra, rb := rank(ja), rank(jb)
		if ra != rb {
			return ra < rb
		}
		switch ra {
		case 2:
			return ja.Priority < jb.Priority
		case 3:
			return ja.CreatedAt.After(jb.CreatedAt)
		default:
			return false // stable sort keeps creation order
		}
	})
	return jobs
}

func (s *Scheduler) GetJob(id string) (*model.Job, error) {
	j, ok := s.jobs.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return j, nil
}

// Dispatch re-evaluates admission for every pending job. It runs on every
// state transition. Candidates are walked by priority; a job whose next
// step is a manual stage still missing its input is parked into
// waiting_input without consuming a compute slot, and while any job waits
// for input, other jobs with remaining manual stages are held back so the
// focus cannot be claimed twice.
func (s *Scheduler) Dispatch() {
	maxConc := s.MaxConcurrent()
	var launch []string
	var changed []*model.Job
	s.jobs.Locked(func(jobs map[string]*model.Job) {
		running := 0
		hasWaiting := false
		var pending []*model.Job
		for _, j := range jobs {
			switch j.Status {
			case model.JobStatusProcessing:
				running++
			case model.JobStatusWaitingInput:
				hasWaiting = true
			case model.JobStatusPending:
				pending = append(pending, j)
			}
		}
		sort.Slice(pending, func(a, b int) bool {
			if pending[a].Priority != pending[b].Priority {
				return pending[a].Priority < pending[b].Priority
			}
			return pending[a].CreatedAt.Before(pending[b].CreatedAt)
		})
		slots := 0
		for _, j := range pending {
			if hasWaiting && s.stages.HasManualFrom(j.Steps, j.ResumeFromStep) {
				continue
			}
			if def, pause := s.nextNeedsInput(j); pause {
				s.parkLocked(j, def)
				hasWaiting = true
				changed = append(changed, j.Clone())
				continue
			}
			if running+slots >= maxConc {
				continue
			}
			s.startLocked(j)
			slots++
			launch = append(launch, j.ID)
			changed = append(changed, j.Clone())
		}
	})
	for _, j := range changed {
		s.notifyJob(j)
	}
	for _, id := range launch {
		go s.runPipeline(id)
	}
}

// nextNeedsInput reports whether the job's next step is a manual stage
// whose input is still missing.
func (s *Scheduler) nextNeedsInput(j *model.Job) (*stage.Definition, bool) {
	if j.ResumeFromStep >= len(j.Steps) {
		return nil, false
	}
	def, ok := s.stages.Get(j.Steps[j.ResumeFromStep])
	if !ok || !def.Manual {
		return nil, false
	}
	return def, def.NeedsInput(j)
}

// SubmitInput stores the human input a waiting job asked for and requeues
// it; dispatch re-admits it immediately when a slot is free.
func (s *Scheduler) SubmitInput(jobID string, req *model.SubmitInputRequest) error {
	found, err := s.jobs.Update(jobID, func(j *model.Job) error {
		if j.Status != model.JobStatusWaitingInput {
			return ErrIllegalTransition
		}
		switch {
		case j.WaitingStep == stage.KeyCrop && req.CropRect != "":
			j.CropRect = req.CropRect
		case j.WaitingStep == stage.KeyInpaint && req.Mask != "":
			path, err := s.files.SaveMaskDataURL(req.Mask)
			if err != nil {
				return &ValidationError{Message: err.Error()}
			}
			j.MaskPath = path
		default:
			return &ValidationError{Message: fmt.Sprintf("missing input for step %s", j.WaitingStep)}
		}
		s.requeueLocked(j)
		return nil
	})
	if !found {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.notifyByID(jobID)
	s.Dispatch()
	return nil
}

// SkipStep abandons the manual stage a job is waiting on and requeues from
// the following step.
func (s *Scheduler) SkipStep(jobID string) error {
	found, err := s.jobs.Update(jobID, func(j *model.Job) error {
		if j.Status != model.JobStatusWaitingInput {
			return ErrIllegalTransition
		}
		j.ResumeFromStep++
		s.requeueLocked(j)
		return nil
	})
	if !found {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.notifyByID(jobID)
	s.Dispatch()
	return nil
}

// Rewind moves a waiting job back to its closest earlier manual stage,
// discarding the outputs and consumed inputs of everything from that stage
// on. The job keeps the input focus and waits on the rewound stage.
func (s *Scheduler) Rewind(jobID string) error {
	found, err := s.jobs.Update(jobID, func(j *model.Job) error {
		if j.Status != model.JobStatusWaitingInput {
			return ErrIllegalTransition
		}
		t := s.stages.PrevManualIndex(j.Steps, j.ResumeFromStep)
		if t < 0 {
			return ErrNoPreviousManualStep
		}
		for i := t; i < len(j.Steps); i++ {
			if def, ok := s.stages.Get(j.Steps[i]); ok && def.OnComplete != nil {
				def.OnComplete(j)
			}
		}
		if len(j.StepResults) > t {
			j.StepResults = j.StepResults[:t]
		}
		if n := len(j.StepResults); n > 0 {
			if p, ok := s.files.PathFor(j.StepResults[n-1].OutputURL); ok {
				j.CurrentInputPath = p
			}
		} else {
			j.CurrentInputPath = j.OriginalPath
		}
		j.ResumeFromStep = t
		def, _ := s.stages.Get(j.Steps[t])
		s.parkLocked(j, def)
		return nil
	})
	if !found {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.notifyByID(jobID)
	s.Dispatch()
	return nil
}

// Retry requeues a failed job at the step that failed, optionally switching
// that step's model first.
func (s *Scheduler) Retry(jobID, modelKey string) error {
	found, err := s.jobs.Update(jobID, func(j *model.Job) error {
		if j.Status != model.JobStatusFailed {
			return ErrIllegalTransition
		}
		if modelKey != "" && j.FailedStep != "" {
			d, ok := s.stages.Get(j.FailedStep)
			if ok && len(d.Models) > 0 && !d.HasModel(modelKey) {
				return &ValidationError{Message: fmt.Sprintf("unknown model %q for step %s", modelKey, j.FailedStep)}
			}
			if ok {
				if j.Options == nil {
					j.Options = make(map[string]string)
				}
				j.Options[j.FailedStep] = modelKey
			}
		}
		if j.FailedStepIndex != nil {
			j.ResumeFromStep = *j.FailedStepIndex
		}
		s.clearFailureLocked(j)
		s.requeueLocked(j)
		return nil
	})
	if !found {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.notifyByID(jobID)
	s.Dispatch()
	return nil
}

// SkipFailed abandons the failed step and requeues from the next one, or
// completes the job when the failed step was the last.
func (s *Scheduler) SkipFailed(jobID string) error {
	found, err := s.jobs.Update(jobID, func(j *model.Job) error {
		if j.Status != model.JobStatusFailed {
			return ErrIllegalTransition
		}
		next := j.ResumeFromStep + 1
		if j.FailedStepIndex != nil {
			next = *j.FailedStepIndex + 1
		}
		s.clearFailureLocked(j)
		if next >= len(j.Steps) {
			s.completeLocked(j)
			return nil
		}
		j.ResumeFromStep = next
		s.requeueLocked(j)
		return nil
	})
	if !found {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.notifyByID(jobID)
	s.Dispatch()
	return nil
}

// Cancel stops one active job. A worker running for it is signalled to
// terminate; the pipeline's checkpoints discard whatever it was producing.
func (s *Scheduler) Cancel(jobID string) error {
	found, err := s.jobs.Update(jobID, func(j *model.Job) error {
		if !j.Status.IsActive() {
			return ErrIllegalTransition
		}
		s.cancelLocked(j)
		return nil
	})
	if !found {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.invoker.Cancel(jobID)
	s.notifyByID(jobID)
	s.Dispatch()
	return nil
}

// CancelAll cancels every active job and reports how many were affected.
func (s *Scheduler) CancelAll() int {
	var ids []string
	var changed []*model.Job
	s.jobs.Locked(func(jobs map[string]*model.Job) {
		for _, j := range jobs {
			if j.Status.IsActive() {
				s.cancelLocked(j)
				ids = append(ids, j.ID)
				changed = append(changed, j.Clone())
			}
		}
	})
	for _, id := range ids {
		s.invoker.Cancel(id)
	}
	for _, j := range changed {
		s.notifyJob(j)
	}
	s.Dispatch()
	return len(ids)
}

// Reorder reassigns pending priorities to match the given order. Ids that
// are unknown or no longer pending are ignored; they may have advanced
// between the client's click and this request.
func (s *Scheduler) Reorder(jobIDs []string) {
	var changed []*model.Job
	s.jobs.Locked(func(jobs map[string]*model.Job) {
		for pos, id := range jobIDs {
			j, ok := jobs[id]
			if !ok || j.Status != model.JobStatusPending {
				continue
			}
			if j.Priority != pos {
				j.Priority = pos
				changed = append(changed, j.Clone())
			}
		}
	})
	for _, j := range changed {
		s.notifyJob(j)
	}
	s.Dispatch()
}

// MaxConcurrent returns the current compute-slot capacity.
func (s *Scheduler) MaxConcurrent() int {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.maxConcurrent
}

// Settings returns the current capacity and its hard ceiling.
func (s *Scheduler) Settings() (current, limit int) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.maxConcurrent, s.limit
}

// SetMaxConcurrent changes the capacity within [1, limit]. Out-of-range
// values are ignored and leave state unchanged.
func (s *Scheduler) SetMaxConcurrent(v int) bool {
	s.settingsMu.Lock()
	ok := v >= 1 && v <= s.limit
	if ok {
		s.maxConcurrent = v
	}
	s.settingsMu.Unlock()
	if ok {
		s.Dispatch()
	}
	return ok
}

// requeueLocked sends a job back through admission. Going through pending
// keeps the slot accounting honest: a resumed job starts computing only
// when dispatch grants it a slot.
func (s *Scheduler) requeueLocked(j *model.Job) {
	j.Status = model.JobStatusPending
	j.CurrentStep = ""
	j.WaitingStep = ""
	j.WaitingImage = ""
	s.syncDerived(j)
}

func (s *Scheduler) startLocked(j *model.Job) {
	j.Status = model.JobStatusProcessing
	j.WaitingStep = ""
	j.WaitingImage = ""
	if j.ResumeFromStep < len(j.Steps) {
		j.CurrentStep = j.Steps[j.ResumeFromStep]
	}
	s.syncDerived(j)
}

// parkLocked puts a job into waiting_input on the stage at its resume
// index. Callers ensure the input focus is free.
func (s *Scheduler) parkLocked(j *model.Job, def *stage.Definition) {
	j.Status = model.JobStatusWaitingInput
	j.CurrentStep = ""
	j.WaitingStep = def.Key
	j.WaitingImage = s.files.URLFor(j.CurrentInputPath)
	if len(j.Steps) > 0 {
		j.Progress = 100 * j.ResumeFromStep / len(j.Steps)
	}
	s.syncDerived(j)
}

func (s *Scheduler) completeLocked(j *model.Job) {
	j.Status = model.JobStatusCompleted
	j.Progress = 100
	j.CurrentStep = ""
	j.WaitingStep = ""
	j.WaitingImage = ""
	if n := len(j.StepResults); n > 0 {
		j.Result = j.StepResults[n-1].OutputURL
	}
	s.syncDerived(j)
}

func (s *Scheduler) failLocked(j *model.Job, step string, index int, msg string) {
	j.Status = model.JobStatusFailed
	j.Error = &msg
	j.FailedStep = step
	idx := index
	j.FailedStepIndex = &idx
	j.CurrentStep = ""
	j.WaitingStep = ""
	j.WaitingImage = ""
	s.syncDerived(j)
}

func (s *Scheduler) clearFailureLocked(j *model.Job) {
	j.Error = nil
	j.FailedStep = ""
	j.FailedStepIndex = nil
}

func (s *Scheduler) cancelLocked(j *model.Job) {
	j.Status = model.JobStatusCancelled
	j.CurrentStep = ""
	j.WaitingStep = ""
	j.WaitingImage = ""
	s.syncDerived(j)
}

// syncDerived recomputes fields derived from the job's position.
func (s *Scheduler) syncDerived(j *model.Job) {
	j.CanGoBack = s.stages.PrevManualIndex(j.Steps, j.ResumeFromStep) >= 0
}

func (s *Scheduler) notifyJob(j *model.Job) {
	if s.notifier != nil {
		s.notifier.JobUpdated(j)
	}
}

func (s *Scheduler) notifyByID(id string) {
	if s.notifier == nil {
		return
	}
	if j, ok := s.jobs.Get(id); ok {
		s.notifier.JobUpdated(j)
	}
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}
