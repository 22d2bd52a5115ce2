package store

import (
	"errors"
	"testing"
	"time"

	"github.com/oldphotos/api/internal/model"
)

func newJob(id string, createdAt time.Time) *model.Job {
	return &model.Job{
		ID:          id,
		Status:      model.JobStatusPending,
		Steps:       []string{"crop", "upscale"},
		StepResults: []model.StepResult{},
		CreatedAt:   createdAt,
	}
}

func TestJobStoreSnapshotIsolation(t *testing.T) {
	s := NewJobStore()
	s.Add(newJob("a", time.Now()))

	snap, ok := s.Get("a")
	if !ok {
		t.Fatal("job missing")
	}
	snap.Status = model.JobStatusFailed
	snap.Steps[0] = "mutated"
	snap.StepResults = append(snap.StepResults, model.StepResult{Step: "x"})

	fresh, _ := s.Get("a")
	if fresh.Status != model.JobStatusPending {
		t.Errorf("status leaked through snapshot: %s", fresh.Status)
	}
	if fresh.Steps[0] != "crop" {
		t.Errorf("steps leaked through snapshot: %v", fresh.Steps)
	}
	if len(fresh.StepResults) != 0 {
		t.Errorf("results leaked through snapshot: %v", fresh.StepResults)
	}
}

func TestJobStoreUpdate(t *testing.T) {
	s := NewJobStore()
	s.Add(newJob("a", time.Now()))

	found, err := s.Update("a", func(j *model.Job) error {
		j.Status = model.JobStatusProcessing
		j.Progress = 50
		return nil
	})
	if !found || err != nil {
		t.Fatalf("update: found=%v err=%v", found, err)
	}
	j, _ := s.Get("a")
	if j.Status != model.JobStatusProcessing || j.Progress != 50 {
		t.Errorf("mutation lost: %s/%d", j.Status, j.Progress)
	}

	wantErr := errors.New("refused")
	found, err = s.Update("a", func(j *model.Job) error { return wantErr })
	if !found || !errors.Is(err, wantErr) {
		t.Errorf("expected fn error back, got found=%v err=%v", found, err)
	}

	found, _ = s.Update("missing", func(j *model.Job) error { return nil })
	if found {
		t.Error("update of a missing job must report not found")
	}
}

func TestJobStoreLockedSeesLiveRecords(t *testing.T) {
	s := NewJobStore()
	s.Add(newJob("a", time.Now()))
	s.Add(newJob("b", time.Now()))

	s.Locked(func(jobs map[string]*model.Job) {
		if len(jobs) != 2 {
			t.Fatalf("expected 2 live records, got %d", len(jobs))
		}
		jobs["a"].Status = model.JobStatusCancelled
		jobs["b"].Status = model.JobStatusCancelled
	})
	for _, id := range []string{"a", "b"} {
		if j, _ := s.Get(id); j.Status != model.JobStatusCancelled {
			t.Errorf("job %s: expected cancelled, got %s", id, j.Status)
		}
	}
}

func TestJobStoreListOrder(t *testing.T) {
	s := NewJobStore()
	now := time.Now()
	s.Add(newJob("newer", now))
	s.Add(newJob("older", now.Add(-time.Minute)))

	list := s.List()
	if len(list) != 2 || list[0].ID != "older" || list[1].ID != "newer" {
		t.Errorf("expected creation order, got %v", []string{list[0].ID, list[1].ID})
	}
}

func TestJobStoreDelete(t *testing.T) {
	s := NewJobStore()
	s.Add(newJob("a", time.Now()))
	s.Delete("a")
	s.Delete("a") // idempotent
	if _, ok := s.Get("a"); ok {
		t.Error("job survived delete")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}
