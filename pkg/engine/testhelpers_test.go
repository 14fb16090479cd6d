package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

// memLedger is an in-package Ledger and SubmissionJournal; pkg/stores
// cannot be imported here. Like the SQLite store, writes fail on a cancelled
// context.
type memLedger struct {
	mu      sync.Mutex
	entries map[string]*LedgerEntry
	pending map[string]*PendingSubmission
	getErr  error
	putErr  error
	puts    int
	locks   []string
}

func newMemLedger() *memLedger {
	return &memLedger{
		entries: make(map[string]*LedgerEntry),
		pending: make(map[string]*PendingSubmission),
	}
}

func ledgerKey(unit, network string) string { return unit + "|" + network }

func (l *memLedger) Get(_ context.Context, unit, network string) (*LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.getErr != nil {
		return nil, l.getErr
	}
	e, ok := l.entries[ledgerKey(unit, network)]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (l *memLedger) Put(ctx context.Context, entry *LedgerEntry, overwrite bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.putErr != nil {
		return l.putErr
	}
	if err := ctx.Err(); err != nil {
		return NewLedgerIOError("put", err).WithUnit(entry.UnitName)
	}
	key := ledgerKey(entry.UnitName, entry.NetworkID)
	if _, exists := l.entries[key]; exists && !overwrite {
		return NewDuplicateEntryError(entry.UnitName, entry.NetworkID)
	}
	cp := *entry
	l.entries[key] = &cp
	l.puts++
	return nil
}

func (l *memLedger) Delete(_ context.Context, unit, network string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, ledgerKey(unit, network))
	return nil
}

func (l *memLedger) List(_ context.Context, network string) ([]*LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*LedgerEntry
	for _, e := range l.entries {
		if e.NetworkID == network {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitName < out[j].UnitName })
	return out, nil
}

func (l *memLedger) MarkSubmitted(_ context.Context, sub *PendingSubmission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *sub
	l.pending[ledgerKey(sub.UnitName, sub.NetworkID)] = &cp
	return nil
}

func (l *memLedger) PendingSubmission(_ context.Context, unit, network string) (*PendingSubmission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sub, ok := l.pending[ledgerKey(unit, network)]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (l *memLedger) ClearSubmission(_ context.Context, unit, network string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, ledgerKey(unit, network))
	return nil
}

func (l *memLedger) ListPending(_ context.Context, network string) ([]*PendingSubmission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*PendingSubmission
	for _, sub := range l.pending {
		if sub.NetworkID == network {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitName < out[j].UnitName })
	return out, nil
}

func (l *memLedger) pendingTx(unit, network string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sub, ok := l.pending[ledgerKey(unit, network)]; ok {
		return sub.TxHash
	}
	return ""
}

func (l *memLedger) seed(unit, network, address string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[ledgerKey(unit, network)] = &LedgerEntry{
		UnitName:   unit,
		NetworkID:  network,
		Address:    address,
		TxHash:     "0xseed" + unit,
		DeployedAt: time.Now().UTC(),
	}
}

func (l *memLedger) address(unit, network string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[ledgerKey(unit, network)]; ok {
		return e.Address
	}
	return ""
}

// lockingLedger adds KeyLocker to memLedger.
type lockingLedger struct {
	*memLedger
	held    map[string]string
	lockErr error
}

func (l *lockingLedger) Acquire(_ context.Context, unit, network, owner string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lockErr != nil {
		return nil, l.lockErr
	}
	key := ledgerKey(unit, network)
	if other, ok := l.held[key]; ok && other != owner {
		return nil, NewLockHeldError(unit, network, other)
	}
	l.held[key] = owner
	l.locks = append(l.locks, unit)
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

// mockNetwork deploys every request at a sequential fake address.
type mockNetwork struct {
	mu       sync.Mutex
	id       string
	requests []DeployRequest
	nonce    uint64
	block    uint64

	deployErr map[string]error
	waitErr   map[string]error
	reverted  map[string]bool
	noAddress  map[string]bool
	noExpected map[string]bool
	onWait    func(unit string)

	// minedDespiteCancel returns receipts even when the wait context is
	// cancelled, as when the receipt arrives together with a signal.
	minedDespiteCancel bool
}

func newMockNetwork(id string) *mockNetwork {
	return &mockNetwork{
		id:        id,
		block:     100,
		deployErr: make(map[string]error),
		waitErr:   make(map[string]error),
		reverted:  make(map[string]bool),
		noAddress:  make(map[string]bool),
		noExpected: make(map[string]bool),
	}
}

func (n *mockNetwork) ID() string { return n.id }

func (n *mockNetwork) Deploy(ctx context.Context, req DeployRequest) (*PendingTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.deployErr[req.Unit]; err != nil {
		return nil, err
	}
	n.requests = append(n.requests, req)
	nonce := n.nonce
	n.nonce++
	tx := &PendingTx{
		Unit:            req.Unit,
		TxHash:          fmt.Sprintf("0x%064x", nonce+1),
		Nonce:           nonce,
		ExpectedAddress: fmt.Sprintf("0x%040x", nonce+1),
		SubmittedAt:     time.Now(),
	}
	if n.noExpected[req.Unit] {
		tx.ExpectedAddress = ""
	}
	return tx, nil
}

func (n *mockNetwork) WaitForReceipt(ctx context.Context, tx *PendingTx, _ time.Duration) (*Receipt, error) {
	if n.onWait != nil {
		n.onWait(tx.Unit)
	}
	if err := ctx.Err(); err != nil && !n.minedDespiteCancel {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.waitErr[tx.Unit]; err != nil {
		return nil, err
	}
	n.block++
	address := tx.ExpectedAddress
	if n.noAddress[tx.Unit] {
		address = ""
	}
	return &Receipt{
		Success:     !n.reverted[tx.Unit],
		Address:     address,
		TxHash:      tx.TxHash,
		BlockNumber: n.block,
		GasUsed:     21000,
	}, nil
}

func (n *mockNetwork) submitted() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, len(n.requests))
	for i, r := range n.requests {
		names[i] = r.Unit
	}
	return names
}

func (n *mockNetwork) request(unit string) (DeployRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range n.requests {
		if r.Unit == unit {
			return r, true
		}
	}
	return DeployRequest{}, false
}

// recordingSink collects published events.
type recordingSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (s *recordingSink) Publish(event telemetry.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// recordingRecorder collects run history calls.
type recordingRecorder struct {
	mu       sync.Mutex
	started  int
	results  []string
	finished *RunReport
	ctxErrs  []error
}

func (r *recordingRecorder) RecordRunStarted(ctx context.Context, _ *RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return nil
}

func (r *recordingRecorder) RecordResult(ctx context.Context, _ string, result *DeploymentResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result.Unit)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return nil
}

func (r *recordingRecorder) RecordRunFinished(ctx context.Context, report *RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = report
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return nil
}

// accountAbstractionUnits is the four-contract registry used across tests.
func accountAbstractionUnits() []UnitSpec {
	const entryPoint = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
	return []UnitSpec{
		{Name: "WebAuthn256r1"},
		{Name: "Secp256r1Factory", Args: []ArgSpec{Literal(entryPoint), Ref("WebAuthn256r1")}},
		{Name: "Paymaster", Args: []ArgSpec{Literal(entryPoint), Literal("0x46897603e2A82755E9c416eF828Bd1515536b3D5")}},
		{Name: "SimpleAccountFactory", Args: []ArgSpec{Literal(entryPoint)}, NonCritical: true},
	}
}

func mustRegistry(units []UnitSpec) *StaticRegistry {
	r, err := NewStaticRegistry(units)
	if err != nil {
		panic(err)
	}
	return r
}

var errBoom = errors.New("boom")
