package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/monitor"
)

const (
	userColumns   = `id, email, name, role, organization, coalesce(external_id, ''), created_at, updated_at`
	zoneColumns   = `id, name, description, latitude, longitude, focus_point, metadata, created_by, created_at, updated_at, archived_at`
	sensorColumns = `id, zone_id, name, type, configuration, latitude, longitude, is_active, last_reading, created_at, updated_at`
	actionColumns = `id, zone_id, title, description, status, impact_metrics, coalesce(assigned_to, ''), created_by, start_date, end_date, created_at, updated_at`
)

// view implements monitor.Reader over a connection or transaction.
type view struct {
	q queryer
}

var _ monitor.Reader = view{}

type rowScanner interface {
	Scan(dest ...any) error
}

func (v view) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(v.q.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.NotFound("user", id)
	}
	return u, mapError(err)
}

func (v view) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(v.q.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.NotFound("user", "")
	}
	return u, mapError(err)
}

func (v view) FindUserByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	if externalID == "" {
		return domain.User{}, domain.NotFound("user", "")
	}
	u, err := scanUser(v.q.QueryRowContext(ctx, `select `+userColumns+` from users where external_id = $1`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.NotFound("user", "")
	}
	return u, mapError(err)
}

func (v view) ListUsers(ctx context.Context, f monitor.UserFilter, p monitor.Page) ([]domain.User, int, error) {
	var w where
	if f.Role != "" {
		w.add("role = " + w.arg(string(f.Role)))
	}
	if f.Email != "" {
		w.add("lower(email) = lower(" + w.arg(strings.TrimSpace(f.Email)) + ")")
	}
	total, err := v.count(ctx, "users", w)
	if err != nil {
		return nil, 0, err
	}
	q := `select ` + userColumns + ` from users` + w.clause()
	q += pageClause(&w, p)
	rows, err := v.q.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()
	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, mapError(err)
		}
		out = append(out, u)
	}
	return out, total, mapError(rows.Err())
}

func (v view) GetZone(ctx context.Context, id string) (domain.Zone, error) {
	z, err := scanZone(v.q.QueryRowContext(ctx, `select `+zoneColumns+` from zones where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Zone{}, domain.NotFound("zone", id)
	}
	return z, mapError(err)
}

func (v view) ListZones(ctx context.Context, f monitor.ZoneFilter, p monitor.Page) ([]domain.Zone, int, error) {
	var w where
	if !f.IncludeArchived {
		w.add("archived_at is null")
	}
	if needle := strings.TrimSpace(f.NameContains); needle != "" {
		w.add("position(lower(" + w.arg(needle) + ") in lower(name)) > 0")
	}
	if b := f.BBox; b != nil {
		w.add("latitude between " + w.arg(b.MinLat) + " and " + w.arg(b.MaxLat))
		w.add("longitude between " + w.arg(b.MinLon) + " and " + w.arg(b.MaxLon))
	}
	total, err := v.count(ctx, "zones", w)
	if err != nil {
		return nil, 0, err
	}
	q := `select ` + zoneColumns + ` from zones` + w.clause()
	q += pageClause(&w, p)
	rows, err := v.q.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()
	var out []domain.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, 0, mapError(err)
		}
		out = append(out, z)
	}
	return out, total, mapError(rows.Err())
}

func (v view) GetSensor(ctx context.Context, id string) (domain.Sensor, error) {
	s, err := scanSensor(v.q.QueryRowContext(ctx, `select `+sensorColumns+` from sensors where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sensor{}, domain.NotFound("sensor", id)
	}
	return s, mapError(err)
}

func (v view) ListSensors(ctx context.Context, f monitor.SensorFilter, p monitor.Page) ([]domain.Sensor, int, error) {
	var w where
	if f.ZoneID != "" {
		w.add("zone_id = " + w.arg(f.ZoneID))
	}
	if f.Type != "" {
		w.add("type = " + w.arg(string(f.Type)))
	}
	if f.IsActive != nil {
		w.add("is_active = " + w.arg(*f.IsActive))
	}
	total, err := v.count(ctx, "sensors", w)
	if err != nil {
		return nil, 0, err
	}
	q := `select ` + sensorColumns + ` from sensors` + w.clause()
	q += pageClause(&w, p)
	rows, err := v.q.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	return collectSensors(rows, total)
}

func (v view) SensorsInZone(ctx context.Context, zoneID string, activeOnly bool) ([]domain.Sensor, error) {
	q := `select ` + sensorColumns + ` from sensors where zone_id = $1`
	if activeOnly {
		q += ` and is_active`
	}
	rows, err := v.q.QueryContext(ctx, q+` order by id`, zoneID)
	if err != nil {
		return nil, mapError(err)
	}
	out, _, err := collectSensors(rows, 0)
	return out, err
}

func collectSensors(rows *sql.Rows, total int) ([]domain.Sensor, int, error) {
	defer rows.Close()
	var out []domain.Sensor
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, 0, mapError(err)
		}
		out = append(out, s)
	}
	return out, total, mapError(rows.Err())
}

func (v view) GetAction(ctx context.Context, id string) (domain.Action, error) {
	a, err := scanAction(v.q.QueryRowContext(ctx, `select `+actionColumns+` from actions where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Action{}, domain.NotFound("action", id)
	}
	return a, mapError(err)
}

func actionWhere(f monitor.ActionFilter) where {
	var w where
	if f.ZoneID != "" {
		w.add("zone_id = " + w.arg(f.ZoneID))
	}
	if f.Status != "" {
		w.add("status = " + w.arg(string(f.Status)))
	}
	if f.AssignedTo != "" {
		w.add("assigned_to = " + w.arg(f.AssignedTo))
	}
	return w
}

func (v view) ListActions(ctx context.Context, f monitor.ActionFilter, p monitor.Page) ([]domain.Action, int, error) {
	w := actionWhere(f)
	total, err := v.count(ctx, "actions", w)
	if err != nil {
		return nil, 0, err
	}
	q := `select ` + actionColumns + ` from actions` + w.clause()
	q += pageClause(&w, p)
	rows, err := v.q.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()
	var out []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, 0, mapError(err)
		}
		out = append(out, a)
	}
	return out, total, mapError(rows.Err())
}

func (v view) CountActions(ctx context.Context, f monitor.ActionFilter) (map[domain.ActionStatus]int, error) {
	w := actionWhere(f)
	rows, err := v.q.QueryContext(ctx, `select status, count(*) from actions`+w.clause()+` group by status`, w.args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	counts := make(map[domain.ActionStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, mapError(err)
		}
		counts[domain.ActionStatus(status)] = n
	}
	return counts, mapError(rows.Err())
}

func (v view) count(ctx context.Context, table string, w where) (int, error) {
	var n int
	err := v.q.QueryRowContext(ctx, `select count(*) from `+table+w.clause(), w.args...).Scan(&n)
	return n, mapError(err)
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) add(cond string) { w.conds = append(w.conds, cond) }

func (w where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " where " + strings.Join(w.conds, " and ")
}

func pageClause(w *where, p monitor.Page) string {
	return " order by created_at, id limit " + w.arg(p.PageSize) + " offset " + w.arg(p.Offset())
}

// --- scanning ---

func scanUser(r rowScanner) (domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := r.Scan(&u.ID, &u.Email, &u.Name, &role, &u.Organization, &u.ExternalID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()
	return u, nil
}

func scanZone(r rowScanner) (domain.Zone, error) {
	var (
		z        domain.Zone
		meta     []byte
		archived sql.NullTime
	)
	if err := r.Scan(&z.ID, &z.Name, &z.Description, &z.Location.Latitude, &z.Location.Longitude, &z.FocusPoint,
		&meta, &z.CreatedBy, &z.CreatedAt, &z.UpdatedAt, &archived); err != nil {
		return domain.Zone{}, err
	}
	if err := decodeJSON(meta, &z.Metadata); err != nil {
		return domain.Zone{}, wrapDecode("zone metadata", err)
	}
	z.CreatedAt, z.UpdatedAt = z.CreatedAt.UTC(), z.UpdatedAt.UTC()
	z.ArchivedAt = timeOrNil(archived)
	return z, nil
}

func scanSensor(r rowScanner) (domain.Sensor, error) {
	var (
		s        domain.Sensor
		typ      string
		cfg, raw []byte
	)
	if err := r.Scan(&s.ID, &s.ZoneID, &s.Name, &typ, &cfg, &s.Location.Latitude, &s.Location.Longitude,
		&s.IsActive, &raw, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.Sensor{}, err
	}
	s.Type = domain.SensorType(typ)
	if err := decodeJSON(cfg, &s.Configuration); err != nil {
		return domain.Sensor{}, wrapDecode("sensor configuration", err)
	}
	if len(raw) > 0 && string(raw) != "null" {
		var last domain.Reading
		if err := json.Unmarshal(raw, &last); err != nil {
			return domain.Sensor{}, wrapDecode("last reading", err)
		}
		last.Timestamp = last.Timestamp.UTC()
		s.LastReading = &last
	}
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	return s, nil
}

func scanAction(r rowScanner) (domain.Action, error) {
	var (
		a          domain.Action
		status     string
		impact     []byte
		start, end sql.NullTime
	)
	if err := r.Scan(&a.ID, &a.ZoneID, &a.Title, &a.Description, &status, &impact, &a.AssignedTo, &a.CreatedBy,
		&start, &end, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.Action{}, err
	}
	a.Status = domain.ActionStatus(status)
	if err := decodeJSON(impact, &a.ImpactMetrics); err != nil {
		return domain.Action{}, wrapDecode("impact metrics", err)
	}
	a.StartDate, a.EndDate = timeOrNil(start), timeOrNil(end)
	a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()
	return a, nil
}

func timeOrNil(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func encodeJSON(v any, empty string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return []byte(empty), nil
	}
	return raw, nil
}
