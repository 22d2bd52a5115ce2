package store

import (
	"sort"
	"sync"

	"github.com/oldphotos/api/internal/model"
)

// PhotoStore is the in-memory photo table. Reads return copies.
type PhotoStore struct {
	mu     sync.RWMutex
	photos map[string]*model.Photo
}

func NewPhotoStore() *PhotoStore {
	return &PhotoStore{photos: make(map[string]*model.Photo)}
}

func (s *PhotoStore) Add(p *model.Photo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[p.ID] = p
}

func (s *PhotoStore) Get(id string) (*model.Photo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.photos[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// List returns copies of all photos, oldest first.
func (s *PhotoStore) List() []*model.Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Photo, 0, len(s.photos))
	for _, p := range s.photos {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// Delete removes one photo and returns it so the caller can delete the
// backing file.
func (s *PhotoStore) Delete(id string) (*model.Photo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.photos[id]
	if !ok {
		return nil, false
	}
	delete(s.photos, id)
	return p, true
}

// Clear removes every photo and returns the removed records.
func (s *PhotoStore) Clear() []*model.Photo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Photo, 0, len(s.photos))
	for id, p := range s.photos {
		out = append(out, p)
		delete(s.photos, id)
	}
	return out
}

func (s *PhotoStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.photos)
}
