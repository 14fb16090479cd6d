// Package stores persists the deployment ledger, key leases, run history and
// the event timeline.
//
// SQLiteStore keeps everything in one SQLite file opened through the pure-Go
// modernc driver in WAL mode, with schema managed by embedded golang-migrate
// migrations. Timestamps are stored as Unix milliseconds. MemoryStore offers
// the same surface for previews and tests.
//
// Ledger writes are atomic per (unit, network) key: a write without overwrite
// on an existing key fails with a DuplicateEntryError and storage failures
// surface as LedgerIOError, both from package engine.
package stores
