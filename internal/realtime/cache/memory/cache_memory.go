// Package memory is the in-process cache backend. It is the default for
// kiosks running a single process and the backend every cache test runs
// against.
package memory

import (
	"context"
	"sync"
	"time"

	"shepherd/internal/checkin/models"
	id "shepherd/pkg/domain"
	"shepherd/pkg/platform/sentinel"
)

type entry[T any] struct {
	value     T
	updatedAt time.Time
}

// apply takes the write only when the incoming timestamp is strictly newer
// than what the map already holds for the key.
func apply[K comparable, T any](entries map[K]entry[T], key K, value T, at time.Time) bool {
	if existing, ok := entries[key]; ok && !at.After(existing.updatedAt) {
		return false
	}
	entries[key] = entry[T]{value: value, updatedAt: at}
	return true
}

// Store is a thread-safe LWW snapshot cache.
type Store struct {
	mu       sync.RWMutex
	children map[id.ChildID]entry[models.Child]
	services map[id.ServiceID]entry[models.KidsService]
	records  map[id.RecordID]entry[models.CheckInRecord]
}

func New() *Store {
	return &Store{
		children: make(map[id.ChildID]entry[models.Child]),
		services: make(map[id.ServiceID]entry[models.KidsService]),
		records:  make(map[id.RecordID]entry[models.CheckInRecord]),
	}
}

func (s *Store) ApplyChild(_ context.Context, child models.Child, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return apply(s.children, child.ID, child, at), nil
}

func (s *Store) ApplyService(_ context.Context, service models.KidsService, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return apply(s.services, service.ID, service, at), nil
}

func (s *Store) ApplyRecord(_ context.Context, record models.CheckInRecord, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return apply(s.records, record.ID, record, at), nil
}

func (s *Store) Child(_ context.Context, childID id.ChildID) (models.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.children[childID]
	if !ok {
		return models.Child{}, sentinel.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Service(_ context.Context, serviceID id.ServiceID) (models.KidsService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.services[serviceID]
	if !ok {
		return models.KidsService{}, sentinel.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Record(_ context.Context, recordID id.RecordID) (models.CheckInRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[recordID]
	if !ok {
		return models.CheckInRecord{}, sentinel.ErrNotFound
	}
	return e.value, nil
}
