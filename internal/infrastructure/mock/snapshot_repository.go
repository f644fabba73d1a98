// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package mock provides in-memory implementations of the roster ports for
// tests and local runs.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
)

// Operation names accepted by the error simulation helpers
const (
	OperationSaveSnapshot = "SaveSnapshot"
	OperationLoadSnapshot = "LoadSnapshot"
)

type simulatedError struct {
	err       error
	remaining int // <= 0 means every call
}

// MockSnapshotRepository keeps snapshots in memory with per-account revisions
type MockSnapshotRepository struct {
	mu        sync.Mutex
	snapshots map[string]*model.RosterSnapshot
	revisions map[string]uint64
	calls     map[string]int

	globalError     error
	operationErrors map[string]*simulatedError
}

// Ensure MockSnapshotRepository implements the SnapshotRepository interface
var _ port.SnapshotRepository = (*MockSnapshotRepository)(nil)

// NewMockSnapshotRepository creates an empty repository
func NewMockSnapshotRepository() *MockSnapshotRepository {
	return &MockSnapshotRepository{
		snapshots:       make(map[string]*model.RosterSnapshot),
		revisions:       make(map[string]uint64),
		calls:           make(map[string]int),
		operationErrors: make(map[string]*simulatedError),
	}
}

// SaveSnapshot stores a copy of snapshot
func (m *MockSnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *model.RosterSnapshot) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[OperationSaveSnapshot]++
	if err := m.simulatedError(OperationSaveSnapshot); err != nil {
		return 0, err
	}
	if snapshot == nil || snapshot.Account == "" {
		return 0, errors.NewInvalidArgument("snapshot account is required")
	}

	m.revisions[snapshot.Account]++
	m.snapshots[snapshot.Account] = cloneSnapshot(snapshot)

	slog.DebugContext(ctx, "mock snapshot saved",
		"account", snapshot.Account,
		"revision", m.revisions[snapshot.Account],
	)
	return m.revisions[snapshot.Account], nil
}

// LoadSnapshot returns a copy of the stored snapshot or NotFound
func (m *MockSnapshotRepository) LoadSnapshot(_ context.Context, account string) (*model.RosterSnapshot, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[OperationLoadSnapshot]++
	if err := m.simulatedError(OperationLoadSnapshot); err != nil {
		return nil, 0, err
	}

	snapshot, ok := m.snapshots[account]
	if !ok {
		return nil, 0, errors.NewNotFound(fmt.Sprintf("snapshot for account %s not found", account))
	}
	return cloneSnapshot(snapshot), m.revisions[account], nil
}

// SetGlobalError makes every operation fail with err
func (m *MockSnapshotRepository) SetGlobalError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalError = err
}

// SetErrorForOperation makes the named operation fail with err. A positive
// times limits the failure to that many calls.
func (m *MockSnapshotRepository) SetErrorForOperation(operation string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operationErrors[operation] = &simulatedError{err: err, remaining: times}
}

// ClearErrorSimulation removes every configured error
func (m *MockSnapshotRepository) ClearErrorSimulation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalError = nil
	m.operationErrors = make(map[string]*simulatedError)
}

// Calls returns how many times the named operation was invoked
func (m *MockSnapshotRepository) Calls(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[operation]
}

// Stored returns a copy of the snapshot saved for account, if any
func (m *MockSnapshotRepository) Stored(account string) (*model.RosterSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[account]
	if !ok {
		return nil, false
	}
	return cloneSnapshot(snapshot), true
}

// simulatedError must be called with mu held. Global errors take precedence.
func (m *MockSnapshotRepository) simulatedError(operation string) error {
	if m.globalError != nil {
		return m.globalError
	}
	sim, ok := m.operationErrors[operation]
	if !ok {
		return nil
	}
	if sim.remaining > 0 {
		sim.remaining--
		if sim.remaining == 0 {
			delete(m.operationErrors, operation)
		}
	}
	return sim.err
}

func cloneSnapshot(s *model.RosterSnapshot) *model.RosterSnapshot {
	out := *s
	out.Groups = append([]string(nil), s.Groups...)
	out.Blocked = append([]string(nil), s.Blocked...)
	out.Contacts = make([]model.ContactSnapshot, len(s.Contacts))
	for i, c := range s.Contacts {
		c.Groups = append([]string(nil), c.Groups...)
		out.Contacts[i] = c
	}
	return &out
}
