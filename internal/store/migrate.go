package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"sqlbridge/internal/shared"
)

// Migration is one versioned schema change. DownSQL may be empty, which
// makes downward migration past this version impossible.
type Migration struct {
	Version     int64
	Description string
	UpSQL       string
	DownSQL     string
}

// migrationsTable is the reserved bookkeeping table recording applied
// versions inside each target database. Created lazily.
const migrationsTable = "schema_migrations"

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
	version     INTEGER PRIMARY KEY,
	description TEXT NOT NULL,
	applied_at  TEXT NOT NULL
)`

// Migrator applies registered migrations to an alias's database, up or down
// to a requested version. Every step runs as one transaction through the
// transaction manager: the step's SQL and its bookkeeping row commit
// together or not at all.
type Migrator struct {
	registry *Registry
	txm      *TxManager
	exec     *Executor
	logger   *slog.Logger

	mu         sync.Mutex
	registered map[string][]Migration // per alias, ascending by version
}

// NewMigrator creates a migrator over the given store components.
func NewMigrator(registry *Registry, txm *TxManager, exec *Executor, logger *slog.Logger) *Migrator {
	return &Migrator{
		registry:   registry,
		txm:        txm,
		exec:       exec,
		logger:     logger,
		registered: make(map[string][]Migration),
	}
}

// Register records the migration set for an alias, replacing any previous
// set. Versions must be positive and unique; they are kept sorted so
// application order is strictly increasing.
func (m *Migrator) Register(alias string, migrations []Migration) error {
	migs := make([]Migration, len(migrations))
	copy(migs, migrations)
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })

	for i, mig := range migs {
		if mig.Version < 1 {
			return fmt.Errorf("migration version %d must be positive", mig.Version)
		}
		if i > 0 && migs[i-1].Version == mig.Version {
			return fmt.Errorf("duplicate migration version %d for alias %q", mig.Version, alias)
		}
	}

	m.mu.Lock()
	m.registered[alias] = migs
	m.mu.Unlock()
	return nil
}

// Registered returns a copy of the migration set for alias.
func (m *Migrator) Registered(alias string) []Migration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Migration, len(m.registered[alias]))
	copy(out, m.registered[alias])
	return out
}

// LatestVersion returns the highest registered version for alias, 0 if none.
func (m *Migrator) LatestVersion(alias string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	migs := m.registered[alias]
	if len(migs) == 0 {
		return 0
	}
	return migs[len(migs)-1].Version
}

// AppliedVersion reads the highest applied version from the target database,
// creating the bookkeeping table if it does not exist yet.
func (m *Migrator) AppliedVersion(ctx context.Context, alias string) (int64, error) {
	target := AliasTarget(alias)
	if _, err := m.exec.Execute(ctx, target, createMigrationsTable, nil); err != nil {
		return 0, err
	}

	rows, err := m.exec.Select(ctx, target, "SELECT COALESCE(MAX(version), 0) AS version FROM "+migrationsTable, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	v, _ := rows[0].Get("version")
	return v.Int64(), nil
}

// MigrateTo brings the alias's database to exactly targetVersion. Upward it
// applies each unapplied migration in increasing order; downward it applies
// reverse SQL in decreasing order, refusing the whole operation up front if
// any step in the chain is irreversible. targetVersion must be 0 or a
// registered version. Re-running with the same target is a no-op.
func (m *Migrator) MigrateTo(ctx context.Context, alias string, targetVersion int64) error {
	migs := m.Registered(alias)

	if targetVersion != 0 && !hasVersion(migs, targetVersion) {
		return shared.Wrapf(shared.ErrUnknownMigrationVersion, "%d is not registered for %q", targetVersion, alias)
	}

	applied, err := m.AppliedVersion(ctx, alias)
	if err != nil {
		return err
	}

	switch {
	case targetVersion > applied:
		return m.applyUp(ctx, alias, migs, applied, targetVersion)
	case targetVersion < applied:
		return m.applyDown(ctx, alias, migs, applied, targetVersion)
	default:
		return nil
	}
}

func (m *Migrator) applyUp(ctx context.Context, alias string, migs []Migration, applied, target int64) error {
	for _, mig := range migs {
		if mig.Version <= applied || mig.Version > target {
			continue
		}
		if err := m.runStep(ctx, alias, mig, true); err != nil {
			return err
		}
		m.logger.Info("migration applied", "alias", alias, "version", mig.Version, "description", mig.Description)
	}
	return nil
}

func (m *Migrator) applyDown(ctx context.Context, alias string, migs []Migration, applied, target int64) error {
	// Collect the chain first: an irreversible step anywhere in it must fail
	// the whole operation before any schema change happens.
	var chain []Migration
	for i := len(migs) - 1; i >= 0; i-- {
		mig := migs[i]
		if mig.Version > applied || mig.Version <= target {
			continue
		}
		if mig.DownSQL == "" {
			return shared.Wrapf(shared.ErrIrreversibleMigration, "version %d (%s) has no reverse SQL", mig.Version, mig.Description)
		}
		chain = append(chain, mig)
	}

	for _, mig := range chain {
		if err := m.runStep(ctx, alias, mig, false); err != nil {
			return err
		}
		m.logger.Info("migration reverted", "alias", alias, "version", mig.Version, "description", mig.Description)
	}
	return nil
}

// runStep executes one migration direction as a single transaction that
// also updates the bookkeeping record. A failure rolls back this step only;
// earlier committed steps stay applied.
func (m *Migrator) runStep(ctx context.Context, alias string, mig Migration, up bool) error {
	txID, err := m.txm.Begin(ctx, alias)
	if err != nil {
		return shared.MarkKind(err, shared.KindMigration)
	}

	target := TxTarget(txID)
	err = func() error {
		if up {
			if _, err := m.exec.Execute(ctx, target, mig.UpSQL, nil); err != nil {
				return err
			}
			_, err := m.exec.Execute(ctx, target,
				"INSERT INTO "+migrationsTable+" (version, description, applied_at) VALUES (?, ?, ?)",
				[]Value{Integer(mig.Version), Text(mig.Description), Text(time.Now().UTC().Format(time.RFC3339))})
			return err
		}
		if _, err := m.exec.Execute(ctx, target, mig.DownSQL, nil); err != nil {
			return err
		}
		_, err := m.exec.Execute(ctx, target,
			"DELETE FROM "+migrationsTable+" WHERE version = ?",
			[]Value{Integer(mig.Version)})
		return err
	}()
	if err != nil {
		if rbErr := m.txm.Rollback(ctx, txID); rbErr != nil {
			m.logger.Error("rolling back migration step", "alias", alias, "version", mig.Version, "error", rbErr)
		}
		return shared.Wrapf(shared.MarkKind(err, shared.KindMigration), "version %d", mig.Version)
	}

	if err := m.txm.Commit(ctx, txID); err != nil {
		if rbErr := m.txm.Rollback(ctx, txID); rbErr != nil {
			m.logger.Error("rolling back migration step", "alias", alias, "version", mig.Version, "error", rbErr)
		}
		return shared.Wrapf(shared.MarkKind(err, shared.KindMigration), "version %d", mig.Version)
	}
	return nil
}

func hasVersion(migs []Migration, version int64) bool {
	for _, m := range migs {
		if m.Version == version {
			return true
		}
	}
	return false
}
