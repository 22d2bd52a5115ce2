package scheduler

import (
	"context"
	"log"
	"os"

	"github.com/oldphotos/api/internal/model"
)

// stepPlan is everything one worker run needs, captured under the lock so
// the invocation itself can happen outside it.
type stepPlan struct {
	index   int
	stage   string
	script  string
	args    []string
	outPath string
}

// runPipeline drives one job through its remaining steps. It is started by
// dispatch after the job claimed a compute slot and exits whenever the job
// completes, fails, pauses for input, is cancelled, or loses a focus race.
// Every exit path redispatches so released capacity is handed on.
func (s *Scheduler) runPipeline(jobID string) {
	for {
		plan := s.beginStep(jobID)
		if plan == nil {
			s.Dispatch()
			return
		}
		_, err := s.invoker.Invoke(context.Background(), jobID, plan.script, plan.args)
		if !s.finishStep(jobID, plan, err) {
			s.Dispatch()
			return
		}
		// Step boundary: a queued manual job may claim the input focus
		// while this one grinds through its automatic steps.
		s.Dispatch()
	}
}

// beginStep advances the job to its next runnable step and returns the
// invocation plan, or nil when the pipeline must stop here (done, parked,
// cancelled, failed, or requeued). It doubles as the cancellation
// checkpoint before the worker spawns.
func (s *Scheduler) beginStep(jobID string) *stepPlan {
	var plan *stepPlan
	var changed []*model.Job
	s.jobs.Locked(func(jobs map[string]*model.Job) {
		j, ok := jobs[jobID]
		if !ok || j.Status != model.JobStatusProcessing {
			return
		}
		for {
			i := j.ResumeFromStep
			if i >= len(j.Steps) {
				s.completeLocked(j)
				changed = append(changed, j.Clone())
				return
			}
			def, known := s.stages.Get(j.Steps[i])
			if !known {
				// Tolerate stage keys this build does not know; the rest
				// of the pipeline still runs.
				log.Printf("Job %s: skipping unknown step %q", shortID(j.ID), j.Steps[i])
				j.ResumeFromStep = i + 1
				continue
			}
			if _, err := os.Stat(j.CurrentInputPath); err != nil {
				s.failLocked(j, def.Key, i, "input image is missing")
				changed = append(changed, j.Clone())
				return
			}
			if def.Manual && def.NeedsInput(j) {
				if anyOtherWaiting(jobs, j.ID) {
					// The focus is taken mid-run. Release the slot and
					// rejoin the queue; dispatch parks us once it frees.
					s.requeueLocked(j)
				} else {
					s.parkLocked(j, def)
				}
				changed = append(changed, j.Clone())
				return
			}
			j.CurrentStep = def.Key
			j.Progress = 100 * i / len(j.Steps)
			selected := s.stages.SelectModel(def, j)
			outPath := s.files.StepOutputPath(j.PhotoName, def.OutputPrefix, j.ID)
			script, args := def.BuildArgs(j.CurrentInputPath, outPath, j, selected)
			plan = &stepPlan{index: i, stage: def.Key, script: script, args: args, outPath: outPath}
			changed = append(changed, j.Clone())
			return
		}
	})
	for _, j := range changed {
		s.notifyJob(j)
	}
	return plan
}

// finishStep records the outcome of one worker run. It is the cancellation
// checkpoint after the invocation: a job cancelled mid-run is left exactly
// as cancel set it and the output is discarded. Returns true when the
// pipeline should continue with the next step.
func (s *Scheduler) finishStep(jobID string, plan *stepPlan, invokeErr error) bool {
	cont := false
	var changed *model.Job
	s.jobs.Locked(func(jobs map[string]*model.Job) {
		j, ok := jobs[jobID]
		if !ok || j.Status != model.JobStatusProcessing {
			return
		}
		if invokeErr != nil {
			log.Printf("Job %s: step %s failed: %v", shortID(j.ID), plan.stage, invokeErr)
			s.failLocked(j, plan.stage, plan.index, invokeErr.Error())
			changed = j.Clone()
			return
		}
		if def, known := s.stages.Get(plan.stage); known && def.OnComplete != nil {
			def.OnComplete(j)
		}
		j.StepResults = append(j.StepResults, model.StepResult{
			Step:      plan.stage,
			OutputURL: s.files.URLFor(plan.outPath),
		})
		j.CurrentInputPath = plan.outPath
		j.ResumeFromStep = plan.index + 1
		s.syncDerived(j)
		changed = j.Clone()
		cont = true
	})
	if changed != nil {
		s.notifyJob(changed)
	}
	return cont
}

func anyOtherWaiting(jobs map[string]*model.Job, except string) bool {
	for id, j := range jobs {
		if id != except && j.Status == model.JobStatusWaitingInput {
			return true
		}
	}
	return false
}
