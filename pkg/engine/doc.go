// Package engine is the deployment core of chaindeploy: it turns a registry
// of deployable units into a dependency-ordered plan and executes that plan
// against one network, recording every successful deployment in a durable
// ledger so that runs are idempotent and resumable.
//
// # Workflow
//
//  1. Registry - UnitSpecs in declaration order (StaticRegistry)
//  2. Resolve - Kahn's algorithm with declaration-order tie breaking (DAGBuilder)
//  3. Plan - per-unit deploy, redeploy or skip decision from the ledger (Planner)
//  4. Execute - one unit at a time, ledger written after each (Executor)
//  5. Report - one DeploymentResult per unit and a run status (RunReport)
//
// # Units and Arguments
//
// A unit names an artifact and its ordered constructor arguments. An argument
// is either a literal or a reference to another unit; references are the
// only source of dependency edges:
//
//	units := []engine.UnitSpec{
//	    {Name: "WebAuthn256r1"},
//	    {Name: "Secp256r1Factory", Args: []engine.ArgSpec{
//	        engine.Literal("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"),
//	        engine.Ref("WebAuthn256r1"),
//	    }},
//	}
//	registry, err := engine.NewStaticRegistry(units)
//
// At execution time a reference is replaced by the address the ledger holds
// for the referenced unit on the same network (ResolveArgs).
//
// # Unit State Machine
//
//	Pending -> Resolving -> Submitting -> Confirming -> Deployed
//	   |           |            |             |
//	   v           +------------+-------------+--> Failed
//	Skipped
//
// A unit already present in the ledger is Skipped (already_deployed). After a
// failure the default policy halts the run: later units are Skipped with
// reason halted, and dependents of the failed unit with upstream_failure.
// With ContinueOnFailure only the dependents are skipped. Cancellation skips
// every unit not yet started with reason cancelled.
//
// A confirmation timeout is ambiguous: the transaction may still be mined.
// Nothing is written to the ledger and nothing is resubmitted automatically;
// the operator inspects the transaction and records it with the ledger
// command if it landed.
//
// # Errors
//
// Errors are *EngineError values classified for recovery decisions (see
// ErrorClass) and carrying a stable Code. Configuration errors (invalid
// registry, cycles, unknown references, policy denials) abort before any
// submission; IsConfigError reports them.
//
// # Collaborators
//
// The engine depends only on interfaces: Registry, Ledger (optionally
// KeyLocker), Network, EventSink and RunRecorder. pkg/stores provides
// SQLite and in-memory ledgers, pkg/chain an EVM Network.
package engine
