package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	gomigrate "github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"ecowatch.org/internal/obs"
	"ecowatch.org/internal/store/pg"
)

const defaultSeedsTable = "schema_seeds"

//go:embed seeds/*.sql
var seedFiles embed.FS

// Manager applies the embedded schema through golang-migrate and runs seed
// files once each, bookkept in their own table.
type Manager struct {
	db         *sql.DB
	schema     fs.FS
	seeds      fs.FS
	seedsTable string
}

// Option configures Manager.
type Option func(*Manager)

// WithSeedsTable overrides the default seeds bookkeeping table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// WithSeeds replaces the embedded seed files; the FS root must hold *.sql.
func WithSeeds(seeds fs.FS) Option {
	return func(m *Manager) { m.seeds = seeds }
}

// NewManager constructs a Manager over the store's embedded migrations.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	seeds, _ := fs.Sub(seedFiles, "seeds")
	m := &Manager{
		db:         db,
		schema:     pg.Migrations,
		seeds:      seeds,
		seedsTable: defaultSeedsTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) migrator() (*gomigrate.Migrate, error) {
	src, err := iofs.New(m.schema, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	drv, err := migratepgx.WithInstance(m.db, &migratepgx.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	mg, err := gomigrate.NewWithInstance("iofs", src, "pgx5", drv)
	if err != nil {
		return nil, err
	}
	mg.Log = migrateLogger{}
	return mg, nil
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	mg, err := m.migrator()
	if err != nil {
		return err
	}
	if err := runCancellable(ctx, mg, mg.Up); err != nil && !errors.Is(err, gomigrate.ErrNoChange) {
		return err
	}
	return nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	mg, err := m.migrator()
	if err != nil {
		return err
	}
	err = runCancellable(ctx, mg, func() error { return mg.Steps(-1) })
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, gomigrate.ErrNilVersion) || errors.Is(err, gomigrate.ErrNoChange) {
		return errors.New("no migrations applied")
	}
	return err
}

// Status reports the applied schema version and whether it is dirty.
func (m *Manager) Status(ctx context.Context) (string, error) {
	mg, err := m.migrator()
	if err != nil {
		return "", err
	}
	version, dirty, err := mg.Version()
	if errors.Is(err, gomigrate.ErrNilVersion) {
		return "no migrations applied", nil
	}
	if err != nil {
		return "", err
	}
	status := fmt.Sprintf("version %d", version)
	if dirty {
		status += " (dirty)"
	}
	return status, nil
}

func runCancellable(ctx context.Context, mg *gomigrate.Migrate, fn func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case mg.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()
	return fn()
}

// Seed applies seed files idempotently.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureSeedsTable(ctx); err != nil {
		return err
	}
	executed, err := m.listExecuted(ctx)
	if err != nil {
		return err
	}
	files, err := collectSQL(m.seeds)
	if err != nil {
		return err
	}
	for _, name := range files {
		if executed[name] {
			continue
		}
		body, err := fs.ReadFile(m.seeds, name)
		if err != nil {
			return err
		}
		if err := m.exec(ctx, name, string(body)); err != nil {
			return fmt.Errorf("apply seed %s: %w", name, err)
		}
		obs.Logger().InfoContext(ctx, "seed applied", "name", name)
	}
	return nil
}

func (m *Manager) ensureSeedsTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, m.seedsTable)
	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

// exec runs the statements of one seed file and records it in a single
// transaction.
func (m *Manager) exec(ctx context.Context, name, body string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(body) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.seedsTable),
		name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) listExecuted(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, m.seedsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result[name] = true
	}
	return result, rows.Err()
}

func collectSQL(fsys fs.FS) ([]string, error) {
	if fsys == nil {
		return nil, nil
	}
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == ".sql" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements splits SQL on semicolons outside single-quoted strings.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	var inString bool
	for _, r := range sql {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	obs.Logger().Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (migrateLogger) Verbose() bool { return false }
