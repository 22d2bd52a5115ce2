package stage

import "github.com/oldphotos/api/internal/model"

// Registry is the process-wide stage catalog.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]*Definition)}
	for _, d := range catalog() {
		r.defs[d.Key] = d
		r.order = append(r.order, d.Key)
	}
	return r
}

// Get returns the definition for a stage key.
func (r *Registry) Get(key string) (*Definition, bool) {
	d, ok := r.defs[key]
	return d, ok
}

// Available reports whether key names a stage that may be used right now.
func (r *Registry) Available(key string) bool {
	d, ok := r.defs[key]
	return ok && d.Available()
}

// PublicStage is the client-facing view of a stage; builders and hooks
// stay hidden.
type PublicStage struct {
	Name         string               `json:"name"`
	Manual       bool                 `json:"manual"`
	DefaultModel string               `json:"defaultModel,omitempty"`
	Models       map[string]ModelInfo `json:"models,omitempty"`
}

// Public returns the catalog filtered to available stages.
func (r *Registry) Public() map[string]PublicStage {
	out := make(map[string]PublicStage, len(r.defs))
	for _, key := range r.order {
		d := r.defs[key]
		if !d.Available() {
			continue
		}
		out[key] = PublicStage{
			Name:         d.HumanName,
			Manual:       d.Manual,
			DefaultModel: d.DefaultModel,
			Models:       d.Models,
		}
	}
	return out
}

// IsManual reports whether key names a manual stage. Unknown keys are not
// manual.
func (r *Registry) IsManual(key string) bool {
	d, ok := r.defs[key]
	return ok && d.Manual
}

// HasManualFrom reports whether steps contains a manual stage at index from
// or later. The scheduler gates such jobs while another job holds the
// input focus.
func (r *Registry) HasManualFrom(steps []string, from int) bool {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(steps); i++ {
		if r.IsManual(steps[i]) {
			return true
		}
	}
	return false
}

// PrevManualIndex returns the greatest index t < before with steps[t]
// manual, or -1 if there is none.
func (r *Registry) PrevManualIndex(steps []string, before int) int {
	if before > len(steps) {
		before = len(steps)
	}
	for t := before - 1; t >= 0; t-- {
		if r.IsManual(steps[t]) {
			return t
		}
	}
	return -1
}

// SelectModel resolves the model variant a job picked for a stage, falling
// back to the stage default. Empty when the stage has no variants.
func (r *Registry) SelectModel(d *Definition, j *model.Job) string {
	if m, ok := j.Options[d.Key]; ok && m != "" {
		return m
	}
	return d.DefaultModel
}
