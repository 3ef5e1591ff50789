package timer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/teranos/notify/errors"
)

// memStore is an in-memory Store that records every save
type memStore struct {
	mu      sync.Mutex
	timers  map[string]*Timer
	saves   []Timer
	listErr error
	getErr  error
	// saveErr, when set, is consulted before each save
	saveErr func(t *Timer, attempt int) error
}

func newMemStore(timers ...*Timer) *memStore {
	s := &memStore{timers: make(map[string]*Timer)}
	for _, t := range timers {
		s.timers[t.Name] = t.Clone()
	}
	return s
}

func (s *memStore) ListDueTimers(_ context.Context, now time.Time) ([]*Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var due []*Timer
	for _, t := range s.timers {
		if t.IsDue(now) {
			due = append(due, t.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].CallbackAt.Equal(due[j].CallbackAt) {
			return due[i].CallbackAt.Before(due[j].CallbackAt)
		}
		return due[i].Name < due[j].Name
	})
	return due, nil
}

func (s *memStore) GetTimer(_ context.Context, name string) (*Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	t, ok := s.timers[name]
	if !ok {
		return nil, errors.NewNotFoundError("timer %s", name)
	}
	return t.Clone(), nil
}

func (s *memStore) SaveTimer(_ context.Context, t *Timer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		if err := s.saveErr(t, len(s.saves)); err != nil {
			return err
		}
	}
	s.saves = append(s.saves, *t.Clone())
	s.timers[t.Name] = t.Clone()
	return nil
}

func (s *memStore) get(name string) *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[name]
	if !ok {
		return nil
	}
	return t.Clone()
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

// fixedClock returns a clock frozen at t
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func succeed(fields map[string]any) Factory {
	return func() Handler {
		return HandlerFunc(func(context.Context, *Timer) (Result, error) {
			return Result{Fields: fields}, nil
		})
	}
}
