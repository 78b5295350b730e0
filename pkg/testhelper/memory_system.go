package testhelper

import (
	"context"
	"sync"

	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
)

// SystemStore is an in-memory system.Repository.
type SystemStore struct {
	mu        sync.Mutex
	events    []*system.Event
	snapshots map[string]*system.StatusSnapshot

	AppendErr error
	UpsertErr error
	GetErr    error
	PingErr   error
}

func NewSystemStore() *SystemStore {
	return &SystemStore{snapshots: make(map[string]*system.StatusSnapshot)}
}

func (s *SystemStore) AppendEvent(ctx context.Context, event *system.Event) error {
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *SystemStore) ListEvents(ctx context.Context, eventType string, limit int) ([]*system.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*system.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if eventType != "" && e.Type != eventType {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *SystemStore) UpsertSnapshot(ctx context.Context, snapshot *system.StatusSnapshot) error {
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snapshot
	s.snapshots[snapshot.Key] = &cp
	return nil
}

func (s *SystemStore) GetSnapshot(ctx context.Context, key string) (*system.StatusSnapshot, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[key]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (s *SystemStore) Ping(ctx context.Context) error {
	return s.PingErr
}

// EventsOfType returns stored events of one type in insertion order.
func (s *SystemStore) EventsOfType(eventType string) []*system.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*system.Event
	for _, e := range s.events {
		if e.Type == eventType {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

func (s *SystemStore) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
