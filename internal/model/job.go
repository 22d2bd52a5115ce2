package model

import "time"

// Job is the unit of scheduling: one photo pushed through an ordered
// pipeline of restoration stages.
type Job struct {
	ID        string `json:"id"`
	PhotoID   string `json:"photoId"`
	PhotoName string `json:"photoName"`

	// Steps is the ordered stage pipeline, fixed at creation.
	Steps []string `json:"steps"`
	// Options maps a stage key to the selected model variant.
	Options map[string]string `json:"options,omitempty"`

	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`

	CurrentStep  string `json:"currentStep,omitempty"`
	WaitingStep  string `json:"waitingStep,omitempty"`
	WaitingImage string `json:"waitingImage,omitempty"`
	CanGoBack    bool   `json:"canGoBack"`

	// ResumeFromStep is the index into Steps at which execution (re)starts.
	ResumeFromStep int          `json:"resumeFromStep"`
	StepResults    []StepResult `json:"stepResults"`

	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`

	Result          string  `json:"result,omitempty"`
	Error           *string `json:"error,omitempty"`
	FailedStep      string  `json:"failedStep,omitempty"`
	FailedStepIndex *int    `json:"failedStepIndex,omitempty"`

	// Server-side paths, never exposed on the wire.
	OriginalPath     string `json:"-"`
	CurrentInputPath string `json:"-"`
	CropRect         string `json:"-"`
	MaskPath         string `json:"-"`
}

// StepResult records one completed stage and the artifact it produced.
type StepResult struct {
	Step      string `json:"step"`
	OutputURL string `json:"outputUrl"`
}

// Clone returns a deep copy safe to hand to readers while the scheduler
// keeps mutating the original.
func (j *Job) Clone() *Job {
	c := *j
	if j.Steps != nil {
		c.Steps = append([]string(nil), j.Steps...)
	}
	if j.Options != nil {
		c.Options = make(map[string]string, len(j.Options))
		for k, v := range j.Options {
			c.Options[k] = v
		}
	}
	if j.StepResults != nil {
		c.StepResults = append([]StepResult(nil), j.StepResults...)
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.FailedStepIndex != nil {
		i := *j.FailedStepIndex
		c.FailedStepIndex = &i
	}
	return &c
}
