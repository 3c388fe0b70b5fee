// SPDX-License-Identifier: Apache-2.0

package auditstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alexchoi/bqdrift/pkg/drift"
)

// Tracker is the persistence capability bqdrift's detect/run/backfill
// commands need: append a run, and read back history for detection. Both
// *Store and *FakeStore satisfy it.
type Tracker interface {
	RecordRun(ctx context.Context, state drift.PartitionState) error
	LoadForQuery(ctx context.Context, queryName string, from, to time.Time) ([]drift.PartitionState, error)
	LoadAll(ctx context.Context) ([]drift.PartitionState, error)
	LatestRun(ctx context.Context, queryName string, partitionDate time.Time) (drift.PartitionState, error)
}

// FakeStore is an in-memory Tracker for tests: an append-only slice, just
// like the real store, so duplicate-shadowing behavior matches production.
type FakeStore struct {
	mu     sync.Mutex
	states []drift.PartitionState
}

// NewFake returns an empty in-memory store.
func NewFake() *FakeStore {
	return &FakeStore{}
}

func (f *FakeStore) RecordRun(ctx context.Context, state drift.PartitionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if state.ExecutedAt.IsZero() {
		state.ExecutedAt = time.Now().UTC()
	}
	f.states = append(f.states, state)
	return nil
}

func (f *FakeStore) LoadForQuery(ctx context.Context, queryName string, from, to time.Time) ([]drift.PartitionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []drift.PartitionState
	for _, s := range f.states {
		if s.QueryName != queryName {
			continue
		}
		if s.PartitionDate.Before(from) || s.PartitionDate.After(to) {
			continue
		}
		out = append(out, s)
	}
	sortStates(out)
	return out, nil
}

func (f *FakeStore) LoadAll(ctx context.Context) ([]drift.PartitionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]drift.PartitionState, len(f.states))
	copy(out, f.states)
	sortStates(out)
	return out, nil
}

func (f *FakeStore) LatestRun(ctx context.Context, queryName string, partitionDate time.Time) (drift.PartitionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var latest *drift.PartitionState
	for i := range f.states {
		s := &f.states[i]
		if s.QueryName != queryName || !s.PartitionDate.Equal(partitionDate) {
			continue
		}
		if latest == nil || s.ExecutedAt.After(latest.ExecutedAt) {
			latest = s
		}
	}
	if latest == nil {
		return drift.PartitionState{}, ErrNoRuns
	}
	return *latest, nil
}

func sortStates(states []drift.PartitionState) {
	sort.Slice(states, func(i, j int) bool {
		if states[i].QueryName != states[j].QueryName {
			return states[i].QueryName < states[j].QueryName
		}
		if !states[i].PartitionDate.Equal(states[j].PartitionDate) {
			return states[i].PartitionDate.Before(states[j].PartitionDate)
		}
		return states[i].ExecutedAt.Before(states[j].ExecutedAt)
	})
}
