package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

type ledgerKey struct {
	unit    string
	network string
}

type lease struct {
	owner   string
	expires time.Time
}

// MemoryStore is a process-local Store used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[ledgerKey]engine.LedgerEntry
	locks   map[ledgerKey]lease
	pending map[ledgerKey]engine.PendingSubmission
	runs    map[string]*RunRecord
	results map[string][]*ResultRecord
	events  []*EventRecord
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[ledgerKey]engine.LedgerEntry),
		locks:   make(map[ledgerKey]lease),
		pending: make(map[ledgerKey]engine.PendingSubmission),
		runs:    make(map[string]*RunRecord),
		results: make(map[string][]*ResultRecord),
		now:     time.Now,
	}
}

// Seed copies entries into the store, replacing existing keys. It is used to
// preview a run against a snapshot of another ledger.
func (m *MemoryStore) Seed(entries []*engine.LedgerEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[ledgerKey{e.UnitName, e.NetworkID}] = *e
	}
}

// Get returns the ledger entry for unit on network, or nil when absent.
func (m *MemoryStore) Get(_ context.Context, unit, network string) (*engine.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[ledgerKey{unit, network}]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Put records entry, rejecting an existing key unless overwrite is set.
func (m *MemoryStore) Put(_ context.Context, entry *engine.LedgerEntry, overwrite bool) error {
	if entry == nil || entry.UnitName == "" || entry.NetworkID == "" {
		return engine.NewPermanentError("ledger entry requires unit and network", nil).
			WithCode(engine.ErrCodeInternal).
			WithOperation("put")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := ledgerKey{entry.UnitName, entry.NetworkID}
	if _, exists := m.entries[key]; exists && !overwrite {
		return engine.NewDuplicateEntryError(entry.UnitName, entry.NetworkID)
	}
	stored := *entry
	if stored.DeployedAt.IsZero() {
		stored.DeployedAt = m.now().UTC()
	}
	m.entries[key] = stored
	return nil
}

// Delete removes the entry for unit on network.
func (m *MemoryStore) Delete(_ context.Context, unit, network string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, ledgerKey{unit, network})
	return nil
}

// List returns entries for network ordered by unit name; an empty network
// lists all networks.
func (m *MemoryStore) List(_ context.Context, network string) ([]*engine.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := []*engine.LedgerEntry{}
	for key, entry := range m.entries {
		if network != "" && key.network != network {
			continue
		}
		e := entry
		entries = append(entries, &e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].NetworkID != entries[j].NetworkID {
			return entries[i].NetworkID < entries[j].NetworkID
		}
		return entries[i].UnitName < entries[j].UnitName
	})
	return entries, nil
}

// MarkSubmitted journals a sent deployment transaction.
func (m *MemoryStore) MarkSubmitted(_ context.Context, sub *engine.PendingSubmission) error {
	if sub == nil || sub.UnitName == "" || sub.NetworkID == "" || sub.TxHash == "" {
		return engine.NewPermanentError("pending submission requires unit, network and transaction", nil).
			WithCode(engine.ErrCodeInternal).
			WithOperation("journal")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *sub
	if stored.SubmittedAt.IsZero() {
		stored.SubmittedAt = m.now().UTC()
	}
	m.pending[ledgerKey{sub.UnitName, sub.NetworkID}] = stored
	return nil
}

// PendingSubmission returns the journaled transaction for unit on network.
func (m *MemoryStore) PendingSubmission(_ context.Context, unit, network string) (*engine.PendingSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.pending[ledgerKey{unit, network}]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

// ClearSubmission discards the journaled transaction for unit on network.
func (m *MemoryStore) ClearSubmission(_ context.Context, unit, network string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, ledgerKey{unit, network})
	return nil
}

// ListPending returns journaled transactions ordered by network and unit.
func (m *MemoryStore) ListPending(_ context.Context, network string) ([]*engine.PendingSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := []*engine.PendingSubmission{}
	for key, sub := range m.pending {
		if network != "" && key.network != network {
			continue
		}
		s := sub
		subs = append(subs, &s)
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].NetworkID != subs[j].NetworkID {
			return subs[i].NetworkID < subs[j].NetworkID
		}
		return subs[i].UnitName < subs[j].UnitName
	})
	return subs, nil
}

// Acquire leases the key to owner until ttl elapses.
func (m *MemoryStore) Acquire(_ context.Context, unit, network, owner string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ledgerKey{unit, network}
	now := m.now()
	if held, ok := m.locks[key]; ok && held.owner != owner && now.Before(held.expires) {
		return nil, engine.NewLockHeldError(unit, network, held.owner)
	}
	m.locks[key] = lease{owner: owner, expires: now.Add(ttl)}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if held, ok := m.locks[key]; ok && held.owner == owner {
			delete(m.locks, key)
		}
	}, nil
}

// RecordRunStarted stores a running run.
func (m *MemoryStore) RecordRunStarted(_ context.Context, report *engine.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[report.RunID]; exists {
		return fmt.Errorf("run already recorded: %s", report.RunID)
	}
	rec := runRecord(report)
	rec.Status = engine.RunStatusRunning
	m.runs[report.RunID] = rec
	return nil
}

// RecordResult appends a unit result to the run.
func (m *MemoryStore) RecordResult(_ context.Context, runID string, result *engine.DeploymentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[runID]; !exists {
		return fmt.Errorf("unknown run: %s", runID)
	}
	m.results[runID] = append(m.results[runID], resultRecord(runID, result))
	return nil
}

// RecordRunFinished stores the final status of the run.
func (m *MemoryStore) RecordRunFinished(_ context.Context, report *engine.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[report.RunID] = runRecord(report)
	return nil
}

// GetRun returns a run by ID.
func (m *MemoryStore) GetRun(_ context.Context, id string) (*RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, engine.NewPermanentError(fmt.Sprintf("run not found: %s", id), nil).
			WithCode(engine.ErrCodeNotFound)
	}
	copied := *run
	return &copied, nil
}

// ListRuns returns runs, most recent first.
func (m *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]*RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := []*RunRecord{}
	for _, run := range m.runs {
		if filter.NetworkID != "" && run.NetworkID != filter.NetworkID {
			continue
		}
		copied := *run
		runs = append(runs, &copied)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(runs) {
			return []*RunRecord{}, nil
		}
		runs = runs[filter.Offset:]
	}
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// ListResults returns the unit results of a run in execution order.
func (m *MemoryStore) ListResults(_ context.Context, runID string) ([]*ResultRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*ResultRecord, 0, len(m.results[runID]))
	for _, r := range m.results[runID] {
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}

// AppendEvent stores a timeline event.
func (m *MemoryStore) AppendEvent(_ context.Context, event telemetry.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := event.Timestamp
	if ts.IsZero() {
		ts = m.now()
	}
	m.events = append(m.events, &EventRecord{
		ID:        int64(len(m.events) + 1),
		EventID:   event.ID,
		RunID:     event.RunID,
		NetworkID: event.NetworkID,
		Unit:      event.Unit,
		Type:      event.Type,
		Level:     event.Level,
		Message:   event.Message,
		Data:      event.Data,
		Timestamp: ts.UTC(),
	})
	return nil
}

// ListEvents returns the events of a run in publication order.
func (m *MemoryStore) ListEvents(_ context.Context, runID string, limit int) ([]*EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*EventRecord{}
	for _, e := range m.events {
		if runID != "" && e.RunID != runID {
			continue
		}
		copied := *e
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// HealthCheck always succeeds.
func (m *MemoryStore) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
