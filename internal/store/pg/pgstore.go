package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/monitor"
)

// Migrations holds the schema applied by cmd/migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the Postgres implementation of monitor.Store.
type Store struct {
	db *sql.DB
}

var _ monitor.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.db.PingContext(ctx))
}

// Snapshot runs fn inside a REPEATABLE READ, READ ONLY transaction so every
// read sees the same committed state.
func (s *Store) Snapshot(ctx context.Context, fn func(monitor.Reader) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(view{q: tx}); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

// --- reads outside a snapshot ---

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	return view{q: s.db}.GetUser(ctx, id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return view{q: s.db}.FindUserByEmail(ctx, email)
}

func (s *Store) FindUserByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	return view{q: s.db}.FindUserByExternalID(ctx, externalID)
}

func (s *Store) GetZone(ctx context.Context, id string) (domain.Zone, error) {
	return view{q: s.db}.GetZone(ctx, id)
}

func (s *Store) GetSensor(ctx context.Context, id string) (domain.Sensor, error) {
	return view{q: s.db}.GetSensor(ctx, id)
}

func (s *Store) SensorsInZone(ctx context.Context, zoneID string, activeOnly bool) ([]domain.Sensor, error) {
	return view{q: s.db}.SensorsInZone(ctx, zoneID, activeOnly)
}

func (s *Store) GetAction(ctx context.Context, id string) (domain.Action, error) {
	return view{q: s.db}.GetAction(ctx, id)
}

func (s *Store) CountActions(ctx context.Context, f monitor.ActionFilter) (map[domain.ActionStatus]int, error) {
	return view{q: s.db}.CountActions(ctx, f)
}

// Lists count and fetch inside one snapshot so total matches the page.

func (s *Store) ListUsers(ctx context.Context, f monitor.UserFilter, p monitor.Page) (items []domain.User, total int, err error) {
	err = s.Snapshot(ctx, func(r monitor.Reader) error {
		items, total, err = r.ListUsers(ctx, f, p)
		return err
	})
	return items, total, err
}

func (s *Store) ListZones(ctx context.Context, f monitor.ZoneFilter, p monitor.Page) (items []domain.Zone, total int, err error) {
	err = s.Snapshot(ctx, func(r monitor.Reader) error {
		items, total, err = r.ListZones(ctx, f, p)
		return err
	})
	return items, total, err
}

func (s *Store) ListSensors(ctx context.Context, f monitor.SensorFilter, p monitor.Page) (items []domain.Sensor, total int, err error) {
	err = s.Snapshot(ctx, func(r monitor.Reader) error {
		items, total, err = r.ListSensors(ctx, f, p)
		return err
	})
	return items, total, err
}

func (s *Store) ListActions(ctx context.Context, f monitor.ActionFilter, p monitor.Page) (items []domain.Action, total int, err error) {
	err = s.Snapshot(ctx, func(r monitor.Reader) error {
		items, total, err = r.ListActions(ctx, f, p)
		return err
	})
	return items, total, err
}

// --- writes ---

func (s *Store) InsertUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, name, role, organization, external_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.Name, string(u.Role), u.Organization, nullIfEmpty(u.ExternalID), u.CreatedAt, u.UpdatedAt)
	return mapError(err)
}

func (s *Store) UpdateUser(ctx context.Context, id string, fn func(*domain.User) error) (domain.User, error) {
	var out domain.User
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanUser(tx.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1 for update`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("user", id)
		}
		if err != nil {
			return err
		}
		if err := fn(&cur); err != nil {
			return err
		}
		cur.ID = id
		if _, err := tx.ExecContext(ctx, `
			update users set name = $2, role = $3, organization = $4, external_id = $5, updated_at = $6
			where id = $1
		`, id, cur.Name, string(cur.Role), cur.Organization, nullIfEmpty(cur.ExternalID), cur.UpdatedAt); err != nil {
			return err
		}
		out = cur
		return nil
	})
	return out, err
}

func (s *Store) InsertZone(ctx context.Context, z domain.Zone) error {
	meta, err := encodeJSON(z.Metadata, "{}")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into zones (id, name, description, latitude, longitude, focus_point, metadata, created_by, created_at, updated_at, archived_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, z.ID, z.Name, z.Description, z.Location.Latitude, z.Location.Longitude, z.FocusPoint, meta,
		z.CreatedBy, z.CreatedAt, z.UpdatedAt, nullTime(z.ArchivedAt))
	return mapError(err)
}

func (s *Store) UpdateZone(ctx context.Context, id string, fn func(*domain.Zone) error) (domain.Zone, error) {
	var out domain.Zone
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanZone(tx.QueryRowContext(ctx, `select `+zoneColumns+` from zones where id = $1 for update`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("zone", id)
		}
		if err != nil {
			return err
		}
		if err := fn(&cur); err != nil {
			return err
		}
		cur.ID = id
		meta, err := encodeJSON(cur.Metadata, "{}")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update zones set name = $2, description = $3, latitude = $4, longitude = $5, focus_point = $6,
				metadata = $7, updated_at = $8, archived_at = $9
			where id = $1
		`, id, cur.Name, cur.Description, cur.Location.Latitude, cur.Location.Longitude, cur.FocusPoint,
			meta, cur.UpdatedAt, nullTime(cur.ArchivedAt)); err != nil {
			return err
		}
		out = cur
		return nil
	})
	return out, err
}

func (s *Store) InsertSensor(ctx context.Context, sn domain.Sensor) error {
	cfg, err := encodeJSON(sn.Configuration, "{}")
	if err != nil {
		return err
	}
	last, err := encodeReading(sn.LastReading)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into sensors (id, zone_id, name, type, configuration, latitude, longitude, is_active, last_reading, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sn.ID, sn.ZoneID, sn.Name, string(sn.Type), cfg, sn.Location.Latitude, sn.Location.Longitude,
		sn.IsActive, last, sn.CreatedAt, sn.UpdatedAt)
	return mapError(err)
}

func (s *Store) UpdateSensor(ctx context.Context, id string, fn func(*domain.Sensor) error) (domain.Sensor, error) {
	var out domain.Sensor
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanSensor(tx.QueryRowContext(ctx, `select `+sensorColumns+` from sensors where id = $1 for update`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("sensor", id)
		}
		if err != nil {
			return err
		}
		if err := fn(&cur); err != nil {
			return err
		}
		cur.ID = id
		cfg, err := encodeJSON(cur.Configuration, "{}")
		if err != nil {
			return err
		}
		last, err := encodeReading(cur.LastReading)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update sensors set name = $2, configuration = $3, latitude = $4, longitude = $5, is_active = $6,
				last_reading = $7, updated_at = $8
			where id = $1
		`, id, cur.Name, cfg, cur.Location.Latitude, cur.Location.Longitude, cur.IsActive, last, cur.UpdatedAt); err != nil {
			return err
		}
		out = cur
		return nil
	})
	return out, err
}

func (s *Store) InsertAction(ctx context.Context, a domain.Action) error {
	impact, err := encodeJSON(a.ImpactMetrics, "{}")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into actions (id, zone_id, title, description, status, impact_metrics, assigned_to, created_by, start_date, end_date, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.ZoneID, a.Title, a.Description, string(a.Status), impact, nullIfEmpty(a.AssignedTo), a.CreatedBy,
		nullTime(a.StartDate), nullTime(a.EndDate), a.CreatedAt, a.UpdatedAt)
	return mapError(err)
}

func (s *Store) UpdateAction(ctx context.Context, id string, fn func(*domain.Action) error) (domain.Action, error) {
	var out domain.Action
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanAction(tx.QueryRowContext(ctx, `select `+actionColumns+` from actions where id = $1 for update`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("action", id)
		}
		if err != nil {
			return err
		}
		if err := fn(&cur); err != nil {
			return err
		}
		cur.ID = id
		impact, err := encodeJSON(cur.ImpactMetrics, "{}")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update actions set title = $2, description = $3, status = $4, impact_metrics = $5, assigned_to = $6,
				start_date = $7, end_date = $8, updated_at = $9
			where id = $1
		`, id, cur.Title, cur.Description, string(cur.Status), impact, nullIfEmpty(cur.AssignedTo),
			nullTime(cur.StartDate), nullTime(cur.EndDate), cur.UpdatedAt); err != nil {
			return err
		}
		out = cur
		return nil
	})
	return out, err
}

// inTx runs fn in a read-committed transaction. Errors coming from fn are
// returned as-is; driver errors are mapped to domain errors.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func encodeReading(r *domain.Reading) (any, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := encodeJSON(r, "null")
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func wrapDecode(what string, err error) error {
	return fmt.Errorf("decode %s: %w", what, err)
}
