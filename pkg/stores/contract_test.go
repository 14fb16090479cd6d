package stores

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

// storeFactory returns a fresh, empty store.
type storeFactory func(t *testing.T) Store

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("GetAbsent", func(t *testing.T) {
		store := newStore(t)
		entry, err := store.Get(context.Background(), "Token", "sepolia")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if entry != nil {
			t.Fatalf("Expected nil entry, got: %+v", entry)
		}
	})

	t.Run("PutThenGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		block := uint64(42)
		deployedAt := time.UnixMilli(1700000000123).UTC()

		err := store.Put(ctx, &engine.LedgerEntry{
			UnitName:    "Token",
			NetworkID:   "sepolia",
			Address:     "0x00000000000000000000000000000000000000aa",
			TxHash:      "0x01",
			BlockNumber: &block,
			DeployedAt:  deployedAt,
			RunID:       "run-1",
		}, false)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		got, err := store.Get(ctx, "Token", "sepolia")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if got == nil {
			t.Fatal("Expected entry, got nil")
		}
		if got.Address != "0x00000000000000000000000000000000000000aa" {
			t.Fatalf("Expected stored address, got: %s", got.Address)
		}
		if got.BlockNumber == nil || *got.BlockNumber != 42 {
			t.Fatalf("Expected block 42, got: %v", got.BlockNumber)
		}
		if !got.DeployedAt.Equal(deployedAt) {
			t.Fatalf("Expected deployed_at %v, got: %v", deployedAt, got.DeployedAt)
		}
		if got.RunID != "run-1" {
			t.Fatalf("Expected run-1, got: %s", got.RunID)
		}

		other, err := store.Get(ctx, "Token", "mainnet")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if other != nil {
			t.Fatalf("Expected entries to be scoped per network, got: %+v", other)
		}
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		first := &engine.LedgerEntry{UnitName: "Token", NetworkID: "sepolia", Address: "0xaa"}
		if err := store.Put(ctx, first, false); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		err := store.Put(ctx, &engine.LedgerEntry{UnitName: "Token", NetworkID: "sepolia", Address: "0xbb"}, false)
		if !engine.IsDuplicateEntry(err) {
			t.Fatalf("Expected duplicate entry error, got: %v", err)
		}

		got, _ := store.Get(ctx, "Token", "sepolia")
		if got.Address != "0xaa" {
			t.Fatalf("Expected original address to survive, got: %s", got.Address)
		}
	})

	t.Run("OverwriteReplaces", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_ = store.Put(ctx, &engine.LedgerEntry{UnitName: "Token", NetworkID: "sepolia", Address: "0xaa"}, false)

		if err := store.Put(ctx, &engine.LedgerEntry{UnitName: "Token", NetworkID: "sepolia", Address: "0xbb"}, true); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		got, _ := store.Get(ctx, "Token", "sepolia")
		if got.Address != "0xbb" {
			t.Fatalf("Expected replaced address, got: %s", got.Address)
		}
		if got.BlockNumber != nil {
			t.Fatalf("Expected block number to be cleared, got: %v", *got.BlockNumber)
		}
	})

	t.Run("ConcurrentWritersOneWins", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.Put(ctx, &engine.LedgerEntry{UnitName: "Vault", NetworkID: "sepolia", Address: "0xcc"}, false)
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			switch {
			case err == nil:
				succeeded++
			case engine.IsDuplicateEntry(err):
			default:
				t.Fatalf("Expected nil or duplicate entry error, got: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("Expected exactly one successful write, got: %d", succeeded)
		}
	})

	t.Run("DeleteAndList", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, e := range []*engine.LedgerEntry{
			{UnitName: "Vault", NetworkID: "sepolia", Address: "0x02"},
			{UnitName: "Token", NetworkID: "sepolia", Address: "0x01"},
			{UnitName: "Token", NetworkID: "mainnet", Address: "0x03"},
		} {
			if err := store.Put(ctx, e, false); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
		}

		entries, err := store.List(ctx, "sepolia")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(entries) != 2 || entries[0].UnitName != "Token" || entries[1].UnitName != "Vault" {
			t.Fatalf("Expected [Token Vault], got: %+v", entries)
		}

		all, _ := store.List(ctx, "")
		if len(all) != 3 {
			t.Fatalf("Expected 3 entries across networks, got: %d", len(all))
		}

		if err := store.Delete(ctx, "Token", "sepolia"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if err := store.Delete(ctx, "Missing", "sepolia"); err != nil {
			t.Fatalf("Expected deleting an absent entry to succeed, got: %v", err)
		}
		got, _ := store.Get(ctx, "Token", "sepolia")
		if got != nil {
			t.Fatalf("Expected entry to be deleted, got: %+v", got)
		}
		still, _ := store.Get(ctx, "Token", "mainnet")
		if still == nil {
			t.Fatal("Expected mainnet entry to remain")
		}
	})

	t.Run("SubmissionJournal", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sub, err := store.PendingSubmission(ctx, "Token", "sepolia")
		if err != nil || sub != nil {
			t.Fatalf("Expected no pending submission, got: %v, %v", sub, err)
		}

		submittedAt := time.UnixMilli(1700000000456).UTC()
		for _, tx := range []string{"0x01", "0x02"} {
			if err := store.MarkSubmitted(ctx, &engine.PendingSubmission{
				UnitName:        "Token",
				NetworkID:       "sepolia",
				TxHash:          tx,
				Nonce:           7,
				ExpectedAddress: "0x00000000000000000000000000000000000000aa",
				RunID:           "run-1",
				SubmittedAt:     submittedAt,
			}); err != nil {
				t.Fatalf("Expected submission to be journaled, got: %v", err)
			}
		}
		if err := store.MarkSubmitted(ctx, &engine.PendingSubmission{
			UnitName: "Token", NetworkID: "arbitrumSepolia", TxHash: "0x03",
		}); err != nil {
			t.Fatalf("Expected submission to be journaled, got: %v", err)
		}

		sub, err = store.PendingSubmission(ctx, "Token", "sepolia")
		if err != nil || sub == nil {
			t.Fatalf("Expected pending submission, got: %v, %v", sub, err)
		}
		if sub.TxHash != "0x02" || sub.Nonce != 7 || !sub.SubmittedAt.Equal(submittedAt) {
			t.Fatalf("Expected the latest submission, got: %+v", sub)
		}

		pending, err := store.ListPending(ctx, "sepolia")
		if err != nil || len(pending) != 1 {
			t.Fatalf("Expected one pending submission on sepolia, got: %v, %v", pending, err)
		}
		all, err := store.ListPending(ctx, "")
		if err != nil || len(all) != 2 {
			t.Fatalf("Expected two pending submissions, got: %v, %v", all, err)
		}

		if err := store.ClearSubmission(ctx, "Token", "sepolia"); err != nil {
			t.Fatalf("Expected clear to succeed, got: %v", err)
		}
		if err := store.ClearSubmission(ctx, "Token", "sepolia"); err != nil {
			t.Fatalf("Expected clearing an absent submission to succeed, got: %v", err)
		}
		sub, _ = store.PendingSubmission(ctx, "Token", "sepolia")
		if sub != nil {
			t.Fatalf("Expected submission to be cleared, got: %+v", sub)
		}

		if err := store.MarkSubmitted(ctx, &engine.PendingSubmission{UnitName: "Token", NetworkID: "sepolia"}); err == nil {
			t.Fatal("Expected a submission without transaction to be rejected")
		}
	})

	t.Run("LockLease", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		release, err := store.Acquire(ctx, "Token", "sepolia", "run-a", time.Minute)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		_, err = store.Acquire(ctx, "Token", "sepolia", "run-b", time.Minute)
		if !engine.HasCode(err, engine.ErrCodeLockHeld) {
			t.Fatalf("Expected lock held error, got: %v", err)
		}

		again, err := store.Acquire(ctx, "Token", "sepolia", "run-a", time.Minute)
		if err != nil {
			t.Fatalf("Expected re-acquire by owner to succeed, got: %v", err)
		}
		again()
		release()

		releaseB, err := store.Acquire(ctx, "Token", "sepolia", "run-b", time.Minute)
		if err != nil {
			t.Fatalf("Expected acquire after release to succeed, got: %v", err)
		}
		releaseB()
	})

	t.Run("ExpiredLeaseTakenOver", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if _, err := store.Acquire(ctx, "Token", "sepolia", "crashed-run", -time.Second); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		release, err := store.Acquire(ctx, "Token", "sepolia", "run-b", time.Minute)
		if err != nil {
			t.Fatalf("Expected expired lease to be taken over, got: %v", err)
		}
		release()
	})

	t.Run("RunHistory", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		started := time.UnixMilli(1700000000000).UTC()
		report := &engine.RunReport{
			RunID:     "run-1",
			PlanID:    "plan-1",
			NetworkID: "sepolia",
			Status:    engine.RunStatusRunning,
			StartedAt: started,
		}
		if err := store.RecordRunStarted(ctx, report); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		block := uint64(7)
		results := []engine.DeploymentResult{
			{Unit: "Token", Outcome: engine.OutcomeDeployed, Address: "0x01", TxHash: "0xt1", BlockNumber: &block, StartedAt: started, Duration: 1500 * time.Millisecond},
			{Unit: "Vault", Outcome: engine.OutcomeFailed, Error: engine.NewRevertedError("Vault", "0xt2"), StartedAt: started},
			{Unit: "Paymaster", Outcome: engine.OutcomeSkipped, SkipReason: engine.SkipUpstreamFailure, StartedAt: started},
		}
		for i := range results {
			if err := store.RecordResult(ctx, report.RunID, &results[i]); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
		}

		report.Status = engine.RunStatusPartial
		report.CompletedAt = started.Add(time.Minute)
		report.Summary = engine.RunSummary{Total: 3, Deployed: 1, Skipped: 1, Failed: 1}
		if err := store.RecordRunFinished(ctx, report); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		run, err := store.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if run.Status != engine.RunStatusPartial {
			t.Fatalf("Expected partial, got: %s", run.Status)
		}
		if run.CompletedAt == nil || !run.CompletedAt.Equal(started.Add(time.Minute)) {
			t.Fatalf("Expected completion time, got: %v", run.CompletedAt)
		}
		if run.Deployed != 1 || run.Failed != 1 || run.Skipped != 1 {
			t.Fatalf("Expected 1/1/1 counts, got: %+v", run)
		}

		recs, err := store.ListResults(ctx, "run-1")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(recs) != 3 {
			t.Fatalf("Expected 3 results, got: %d", len(recs))
		}
		if recs[0].Unit != "Token" || recs[1].Unit != "Vault" || recs[2].Unit != "Paymaster" {
			t.Fatalf("Expected execution order, got: %s %s %s", recs[0].Unit, recs[1].Unit, recs[2].Unit)
		}
		if recs[0].Duration != 1500*time.Millisecond {
			t.Fatalf("Expected 1.5s duration, got: %v", recs[0].Duration)
		}
		if recs[1].ErrorCode != engine.ErrCodeReverted {
			t.Fatalf("Expected reverted code, got: %s", recs[1].ErrorCode)
		}
		if recs[2].SkipReason != engine.SkipUpstreamFailure {
			t.Fatalf("Expected upstream_failure, got: %s", recs[2].SkipReason)
		}

		_, err = store.GetRun(ctx, "missing")
		if !engine.HasCode(err, engine.ErrCodeNotFound) {
			t.Fatalf("Expected not found error, got: %v", err)
		}
	})

	t.Run("ListRunsNewestFirst", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.UnixMilli(1700000000000).UTC()
		for i, network := range []string{"sepolia", "mainnet", "sepolia"} {
			report := &engine.RunReport{
				RunID:     []string{"r1", "r2", "r3"}[i],
				PlanID:    "p",
				NetworkID: network,
				StartedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := store.RecordRunStarted(ctx, report); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
		}

		runs, err := store.ListRuns(ctx, RunFilter{NetworkID: "sepolia"})
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(runs) != 2 || runs[0].ID != "r3" || runs[1].ID != "r1" {
			t.Fatalf("Expected [r3 r1], got: %+v", runs)
		}

		limited, _ := store.ListRuns(ctx, RunFilter{Limit: 1})
		if len(limited) != 1 || limited[0].ID != "r3" {
			t.Fatalf("Expected newest run only, got: %+v", limited)
		}
	})

	t.Run("Events", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, ev := range []telemetry.Event{
			{ID: "e1", RunID: "run-1", Type: telemetry.EventTypeRunStarted, Level: telemetry.EventLevelInfo, Message: "started"},
			{ID: "e2", RunID: "run-2", Type: telemetry.EventTypeRunStarted, Level: telemetry.EventLevelInfo},
			{ID: "e3", RunID: "run-1", Unit: "Token", Type: telemetry.EventTypeUnitDeployed, Level: telemetry.EventLevelInfo,
				Data: map[string]interface{}{"address": "0x01"}},
		} {
			if err := store.AppendEvent(ctx, ev); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
		}

		events, err := store.ListEvents(ctx, "run-1", 0)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("Expected 2 events, got: %d", len(events))
		}
		if events[0].EventID != "e1" || events[1].EventID != "e3" {
			t.Fatalf("Expected publication order, got: %s %s", events[0].EventID, events[1].EventID)
		}
		if events[1].Data["address"] != "0x01" {
			t.Fatalf("Expected event data to round-trip, got: %v", events[1].Data)
		}

		limited, _ := store.ListEvents(ctx, "", 1)
		if len(limited) != 1 {
			t.Fatalf("Expected 1 event, got: %d", len(limited))
		}
	})
}
