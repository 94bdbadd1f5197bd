// Package migrate applies versioned SQL files and records them in
// bookkeeping tables. Every file runs in its own transaction together with
// its history row, serialised across processes by a Postgres advisory lock.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"tiergate.dev/internal/obs"
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"

	// DefaultLockKey is the advisory lock id shared by every tiergate process.
	DefaultLockKey int64 = 0x7469657267617465
)

// ErrNothingApplied is returned by Down when the history is empty.
var ErrNothingApplied = errors.New("migrate: no migrations applied")

// Manager runs migration and seed files read from an fs.FS, normally the
// embedded ops/migrations tree.
type Manager struct {
	db      *sql.DB
	fsys    fs.FS
	dirs    map[kind]string
	tables  map[kind]string
	lockKey int64
	now     func() time.Time
}

type kind int

const (
	migrations kind = iota
	seeds
)

type Option func(*Manager)

// WithMigrationsTable overrides the migrations history table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.tables[migrations] = name
		}
	}
}

// WithSeedsTable overrides the seeds history table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.tables[seeds] = name
		}
	}
}

// WithLockKey changes the advisory lock id, for databases shared by
// unrelated schemas.
func WithLockKey(key int64) Option {
	return func(m *Manager) { m.lockKey = key }
}

func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

func NewManager(db *sql.DB, fsys fs.FS, migrationsDir, seedsDir string, opts ...Option) *Manager {
	m := &Manager{
		db:      db,
		fsys:    fsys,
		dirs:    map[kind]string{migrations: migrationsDir, seeds: seedsDir},
		tables:  map[kind]string{migrations: defaultMigrationsTable, seeds: defaultSeedsTable},
		lockKey: DefaultLockKey,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every migration missing from the history.
func (m *Manager) Up(ctx context.Context) error {
	return m.applyAll(ctx, migrations, ".up.sql")
}

// Seed applies every seed file missing from the seed history.
func (m *Manager) Seed(ctx context.Context) error {
	return m.applyAll(ctx, seeds, ".sql")
}

// Down reverts the most recently applied migration.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.prepare(ctx); err != nil {
		return err
	}
	table := m.tables[migrations]
	var last string
	err := m.locked(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, fmt.Sprintf(
			`select name from %s order by applied_at desc, name desc limit 1`, table))
		if err := row.Scan(&last); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNothingApplied
			}
			return err
		}
		down := path.Join(m.dirs[migrations], strings.TrimSuffix(last, ".up.sql")+".down.sql")
		stmts, err := m.statements(down)
		if err != nil {
			return fmt.Errorf("down migration for %s: %w", last, err)
		}
		if err := execAll(ctx, tx, stmts); err != nil {
			return fmt.Errorf("rollback migration %s: %w", last, err)
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, table), last)
		return err
	})
	if err != nil {
		return err
	}
	log := obs.Logger()
	log.Info().Str("migration", last).Msg("migration rolled back")
	return nil
}

// Status lists applied migrations, oldest first.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.prepare(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(
		`select name from %s order by applied_at asc, name asc`, m.tables[migrations]))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (m *Manager) applyAll(ctx context.Context, k kind, suffix string) error {
	if err := m.prepare(ctx); err != nil {
		return err
	}
	files, err := m.collect(m.dirs[k], suffix)
	if err != nil {
		return err
	}
	for _, f := range files {
		applied, err := m.applyOnce(ctx, m.tables[k], f)
		if err != nil {
			return fmt.Errorf("apply %s: %w", path.Base(f), err)
		}
		if applied {
			log := obs.Logger()
			log.Info().Str("file", path.Base(f)).Str("table", m.tables[k]).Msg("sql file applied")
		}
	}
	return nil
}

// applyOnce runs file and records it in table unless another process got
// there first. The history check happens under the lock.
func (m *Manager) applyOnce(ctx context.Context, table, file string) (bool, error) {
	name := path.Base(file)
	var applied bool
	err := m.locked(ctx, func(tx *sql.Tx) error {
		var done bool
		if err := tx.QueryRowContext(ctx, fmt.Sprintf(
			`select exists(select 1 from %s where name = $1)`, table), name).Scan(&done); err != nil {
			return err
		}
		if done {
			return nil
		}
		stmts, err := m.statements(file)
		if err != nil {
			return err
		}
		if err := execAll(ctx, tx, stmts); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`insert into %s (name, applied_at) values ($1, $2)`, table), name, m.now().UTC()); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// prepare creates the history tables.
func (m *Manager) prepare(ctx context.Context) error {
	return m.locked(ctx, func(tx *sql.Tx) error {
		for _, k := range []kind{migrations, seeds} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(
				`create table if not exists %s (name text primary key, applied_at timestamptz not null default now())`,
				m.tables[k])); err != nil {
				return err
			}
		}
		return nil
	})
}

// locked runs fn in a transaction holding the advisory lock. The lock is
// released on commit or rollback.
func (m *Manager) locked(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock($1)`, m.lockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) statements(file string) ([]string, error) {
	raw, err := fs.ReadFile(m.fsys, file)
	if err != nil {
		return nil, err
	}
	return splitStatements(string(raw)), nil
}

func execAll(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// collect returns the files in dir ending in suffix, sorted by name. A
// missing directory yields nothing.
func (m *Manager) collect(dir, suffix string) ([]string, error) {
	if m.fsys == nil || dir == "" {
		return nil, nil
	}
	entries, err := fs.ReadDir(m.fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
