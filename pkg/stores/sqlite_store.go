package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	config Config
	now    func() time.Time
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	// Every connection to :memory: opens a distinct database.
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		config: cfg,
		now:    time.Now,
	}, nil
}

// OpenSQLite creates, initializes and migrates a store in one call.
func OpenSQLite(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// dsn builds the modernc connection string. Pragmas are applied to every
// new connection; immediate transactions take the write lock up front.
func (s *SQLiteStore) dsn() string {
	sep := "?"
	if strings.Contains(s.config.Path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		s.config.Path, sep, s.config.BusyTimeout.Milliseconds())
}

// Init initializes the database connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable and the schema is present.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_entries").Scan(&n); err != nil {
		return fmt.Errorf("ledger schema unavailable: %w", err)
	}
	return nil
}

// Get returns the ledger entry for unit on network, or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, unit, network string) (*engine.LedgerEntry, error) {
	query := `
		SELECT unit_name, network_id, address, tx_hash, block_number, deployed_at, run_id
		FROM ledger_entries
		WHERE unit_name = ? AND network_id = ?
	`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, unit, network))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, engine.NewLedgerIOError("get", err).WithUnit(unit)
	}
	return entry, nil
}

// Put records entry. Without overwrite an existing key is rejected with a
// DuplicateEntryError; with overwrite the prior entry is replaced. Both paths
// are a single statement, so a concurrent writer observes either the old or
// the new row.
func (s *SQLiteStore) Put(ctx context.Context, entry *engine.LedgerEntry, overwrite bool) error {
	if entry == nil || entry.UnitName == "" || entry.NetworkID == "" {
		return engine.NewPermanentError("ledger entry requires unit and network", nil).
			WithCode(engine.ErrCodeInternal).
			WithOperation("put")
	}
	if entry.DeployedAt.IsZero() {
		entry.DeployedAt = s.now().UTC()
	}

	conflict := "DO NOTHING"
	if overwrite {
		conflict = `DO UPDATE SET
			address = excluded.address,
			tx_hash = excluded.tx_hash,
			block_number = excluded.block_number,
			deployed_at = excluded.deployed_at,
			run_id = excluded.run_id`
	}
	query := `
		INSERT INTO ledger_entries (unit_name, network_id, address, tx_hash, block_number, deployed_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (unit_name, network_id) ` + conflict

	result, err := s.db.ExecContext(ctx, query,
		entry.UnitName,
		entry.NetworkID,
		entry.Address,
		entry.TxHash,
		nullableBlock(entry.BlockNumber),
		toMillis(entry.DeployedAt),
		entry.RunID,
	)
	if err != nil {
		return engine.NewLedgerIOError("put", err).WithUnit(entry.UnitName)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return engine.NewLedgerIOError("put", err).WithUnit(entry.UnitName)
	}
	if rows == 0 {
		return engine.NewDuplicateEntryError(entry.UnitName, entry.NetworkID)
	}
	return nil
}

// Delete removes the ledger entry for unit on network.
func (s *SQLiteStore) Delete(ctx context.Context, unit, network string) error {
	query := `DELETE FROM ledger_entries WHERE unit_name = ? AND network_id = ?`
	if _, err := s.db.ExecContext(ctx, query, unit, network); err != nil {
		return engine.NewLedgerIOError("delete", err).WithUnit(unit)
	}
	return nil
}

// List returns every entry recorded for network ordered by unit name. An
// empty network lists all networks.
func (s *SQLiteStore) List(ctx context.Context, network string) ([]*engine.LedgerEntry, error) {
	query := `
		SELECT unit_name, network_id, address, tx_hash, block_number, deployed_at, run_id
		FROM ledger_entries
		WHERE (? = '' OR network_id = ?)
		ORDER BY network_id, unit_name
	`

	rows, err := s.db.QueryContext(ctx, query, network, network)
	if err != nil {
		return nil, engine.NewLedgerIOError("list", err)
	}
	defer rows.Close()

	entries := []*engine.LedgerEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, engine.NewLedgerIOError("list", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, engine.NewLedgerIOError("list", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*engine.LedgerEntry, error) {
	entry := &engine.LedgerEntry{}
	var block sql.NullInt64
	var deployedAt int64
	if err := row.Scan(
		&entry.UnitName,
		&entry.NetworkID,
		&entry.Address,
		&entry.TxHash,
		&block,
		&deployedAt,
		&entry.RunID,
	); err != nil {
		return nil, err
	}
	entry.BlockNumber = blockFromNull(block)
	entry.DeployedAt = fromMillis(deployedAt)
	return entry, nil
}

// Acquire leases the (unit, network) key to owner. A lease held by another
// owner is honoured until it expires; the same owner may re-acquire freely.
func (s *SQLiteStore) Acquire(ctx context.Context, unit, network, owner string, ttl time.Duration) (func(), error) {
	now := s.now()
	query := `
		INSERT INTO ledger_locks (unit_name, network_id, owner, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (unit_name, network_id) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE ledger_locks.owner = excluded.owner OR ledger_locks.expires_at <= excluded.acquired_at
	`

	result, err := s.db.ExecContext(ctx, query, unit, network, owner, toMillis(now), toMillis(now.Add(ttl)))
	if err != nil {
		return nil, engine.NewLedgerIOError("lock", err).WithUnit(unit)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, engine.NewLedgerIOError("lock", err).WithUnit(unit)
	}
	if rows == 0 {
		var holder string
		err := s.db.QueryRowContext(ctx,
			`SELECT owner FROM ledger_locks WHERE unit_name = ? AND network_id = ?`,
			unit, network).Scan(&holder)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, engine.NewLedgerIOError("lock", err).WithUnit(unit)
		}
		return nil, engine.NewLockHeldError(unit, network, holder)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.BusyTimeout)
		defer cancel()
		_, _ = s.db.ExecContext(ctx,
			`DELETE FROM ledger_locks WHERE unit_name = ? AND network_id = ? AND owner = ?`,
			unit, network, owner)
	}
	return release, nil
}

// MarkSubmitted journals a sent deployment transaction, replacing an earlier
// submission of the same key.
func (s *SQLiteStore) MarkSubmitted(ctx context.Context, sub *engine.PendingSubmission) error {
	if sub == nil || sub.UnitName == "" || sub.NetworkID == "" || sub.TxHash == "" {
		return engine.NewPermanentError("pending submission requires unit, network and transaction", nil).
			WithCode(engine.ErrCodeInternal).
			WithOperation("journal")
	}
	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = s.now().UTC()
	}

	query := `
		INSERT INTO pending_submissions (unit_name, network_id, tx_hash, nonce, expected_address, run_id, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (unit_name, network_id) DO UPDATE SET
			tx_hash = excluded.tx_hash,
			nonce = excluded.nonce,
			expected_address = excluded.expected_address,
			run_id = excluded.run_id,
			submitted_at = excluded.submitted_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		sub.UnitName,
		sub.NetworkID,
		sub.TxHash,
		int64(sub.Nonce),
		sub.ExpectedAddress,
		sub.RunID,
		toMillis(submittedAt),
	); err != nil {
		return engine.NewLedgerIOError("journal", err).WithUnit(sub.UnitName)
	}
	return nil
}

// PendingSubmission returns the journaled transaction for unit on network,
// or nil when there is none.
func (s *SQLiteStore) PendingSubmission(ctx context.Context, unit, network string) (*engine.PendingSubmission, error) {
	query := `
		SELECT unit_name, network_id, tx_hash, nonce, expected_address, run_id, submitted_at
		FROM pending_submissions
		WHERE unit_name = ? AND network_id = ?
	`

	sub, err := scanSubmission(s.db.QueryRowContext(ctx, query, unit, network))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, engine.NewLedgerIOError("journal", err).WithUnit(unit)
	}
	return sub, nil
}

// ClearSubmission discards the journaled transaction for unit on network.
func (s *SQLiteStore) ClearSubmission(ctx context.Context, unit, network string) error {
	query := `DELETE FROM pending_submissions WHERE unit_name = ? AND network_id = ?`
	if _, err := s.db.ExecContext(ctx, query, unit, network); err != nil {
		return engine.NewLedgerIOError("journal", err).WithUnit(unit)
	}
	return nil
}

// ListPending returns journaled transactions ordered by network and unit. An
// empty network lists all networks.
func (s *SQLiteStore) ListPending(ctx context.Context, network string) ([]*engine.PendingSubmission, error) {
	query := `
		SELECT unit_name, network_id, tx_hash, nonce, expected_address, run_id, submitted_at
		FROM pending_submissions
		WHERE (? = '' OR network_id = ?)
		ORDER BY network_id, unit_name
	`

	rows, err := s.db.QueryContext(ctx, query, network, network)
	if err != nil {
		return nil, engine.NewLedgerIOError("journal", err)
	}
	defer rows.Close()

	subs := []*engine.PendingSubmission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, engine.NewLedgerIOError("journal", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, engine.NewLedgerIOError("journal", err)
	}
	return subs, nil
}

func scanSubmission(row rowScanner) (*engine.PendingSubmission, error) {
	sub := &engine.PendingSubmission{}
	var nonce, submittedAt int64
	if err := row.Scan(
		&sub.UnitName,
		&sub.NetworkID,
		&sub.TxHash,
		&nonce,
		&sub.ExpectedAddress,
		&sub.RunID,
		&submittedAt,
	); err != nil {
		return nil, err
	}
	sub.Nonce = uint64(nonce)
	sub.SubmittedAt = fromMillis(submittedAt)
	return sub, nil
}

// RecordRunStarted inserts the run row.
func (s *SQLiteStore) RecordRunStarted(ctx context.Context, report *engine.RunReport) error {
	query := `
		INSERT INTO runs (id, plan_id, network_id, status, started_at, total)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		report.RunID,
		report.PlanID,
		report.NetworkID,
		string(engine.RunStatusRunning),
		toMillis(report.StartedAt),
		report.Summary.Total,
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordResult appends the result of one unit to the run.
func (s *SQLiteStore) RecordResult(ctx context.Context, runID string, result *engine.DeploymentResult) error {
	rec := resultRecord(runID, result)
	query := `
		INSERT INTO run_results (
			run_id, unit_name, outcome, skip_reason, address, tx_hash, block_number,
			error_code, error_message, started_at, duration_ms, seq
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM run_results WHERE run_id = ?))
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.RunID,
		rec.Unit,
		string(rec.Outcome),
		string(rec.SkipReason),
		rec.Address,
		rec.TxHash,
		nullableBlock(rec.BlockNumber),
		rec.ErrorCode,
		rec.ErrorMessage,
		toMillis(rec.StartedAt),
		rec.Duration.Milliseconds(),
		rec.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to record result for %s: %w", rec.Unit, err)
	}
	return nil
}

// RecordRunFinished stores the final status and counts of the run.
func (s *SQLiteStore) RecordRunFinished(ctx context.Context, report *engine.RunReport) error {
	rec := runRecord(report)
	query := `
		INSERT INTO runs (id, plan_id, network_id, status, started_at, completed_at, total, deployed, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			total = excluded.total,
			deployed = excluded.deployed,
			skipped = excluded.skipped,
			failed = excluded.failed
	`

	var completed interface{}
	if rec.CompletedAt != nil {
		completed = toMillis(*rec.CompletedAt)
	}
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.PlanID,
		rec.NetworkID,
		string(rec.Status),
		toMillis(rec.StartedAt),
		completed,
		rec.Total,
		rec.Deployed,
		rec.Skipped,
		rec.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to record run completion: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `
		SELECT id, plan_id, network_id, status, started_at, completed_at, total, deployed, skipped, failed
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewPermanentError(fmt.Sprintf("run not found: %s", id), nil).
			WithCode(engine.ErrCodeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, plan_id, network_id, status, started_at, completed_at, total, deployed, skipped, failed
		FROM runs
		WHERE (? = '' OR network_id = ?)
		ORDER BY started_at DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, filter.NetworkID, filter.NetworkID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

func scanRun(row rowScanner) (*RunRecord, error) {
	run := &RunRecord{}
	var status string
	var startedAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(
		&run.ID,
		&run.PlanID,
		&run.NetworkID,
		&status,
		&startedAt,
		&completedAt,
		&run.Total,
		&run.Deployed,
		&run.Skipped,
		&run.Failed,
	); err != nil {
		return nil, err
	}
	run.Status = engine.RunStatus(status)
	run.StartedAt = fromMillis(startedAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		run.CompletedAt = &t
	}
	return run, nil
}

// ListResults retrieves the unit results of a run in execution order.
func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]*ResultRecord, error) {
	query := `
		SELECT run_id, unit_name, outcome, skip_reason, address, tx_hash, block_number,
			error_code, error_message, started_at, duration_ms
		FROM run_results
		WHERE run_id = ?
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []*ResultRecord{}
	for rows.Next() {
		rec := &ResultRecord{}
		var outcome, reason string
		var block sql.NullInt64
		var startedAt, durationMs int64
		if err := rows.Scan(
			&rec.RunID,
			&rec.Unit,
			&outcome,
			&reason,
			&rec.Address,
			&rec.TxHash,
			&block,
			&rec.ErrorCode,
			&rec.ErrorMessage,
			&startedAt,
			&durationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		rec.Outcome = engine.Outcome(outcome)
		rec.SkipReason = engine.SkipReason(reason)
		rec.BlockNumber = blockFromNull(block)
		rec.StartedAt = fromMillis(startedAt)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

// AppendEvent appends a new event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event telemetry.Event) error {
	data := []byte("{}")
	if len(event.Data) > 0 {
		var err error
		data, err = json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to encode event data: %w", err)
		}
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	query := `
		INSERT INTO events (event_id, run_id, network_id, unit_name, type, level, message, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.RunID,
		event.NetworkID,
		event.Unit,
		event.Type,
		event.Level,
		event.Message,
		string(data),
		toMillis(ts),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListEvents retrieves the events of a run in publication order. An empty
// runID returns events of every run; limit <= 0 means no limit.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, event_id, run_id, network_id, unit_name, type, level, message, data, timestamp
		FROM events
		WHERE (? = '' OR run_id = ?)
		ORDER BY id
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*EventRecord{}
	for rows.Next() {
		event := &EventRecord{}
		var data string
		var ts int64
		if err := rows.Scan(
			&event.ID,
			&event.EventID,
			&event.RunID,
			&event.NetworkID,
			&event.Unit,
			&event.Type,
			&event.Level,
			&event.Message,
			&data,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if data != "" && data != "{}" {
			if err := json.Unmarshal([]byte(data), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		event.Timestamp = fromMillis(ts)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func nullableBlock(block *uint64) interface{} {
	if block == nil {
		return nil
	}
	return int64(*block)
}

func blockFromNull(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	b := uint64(v.Int64)
	return &b
}
