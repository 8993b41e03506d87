package monitor

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ecowatch.org/internal/domain"
)

// InMemory implements Store with in-process concurrency safety. Readers see
// copies; a Snapshot holds the read lock for its whole callback.
type InMemory struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	zones   map[string]domain.Zone
	sensors map[string]domain.Sensor
	actions map[string]domain.Action
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:   make(map[string]domain.User),
		zones:   make(map[string]domain.Zone),
		sensors: make(map[string]domain.Sensor),
		actions: make(map[string]domain.Action),
	}
}

func (s *InMemory) Snapshot(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(memView{s})
}

func (s *InMemory) read(ctx context.Context, fn func(memView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(memView{s})
}

func (s *InMemory) GetUser(ctx context.Context, id string) (u domain.User, err error) {
	err = s.read(ctx, func(v memView) error { u, err = v.GetUser(ctx, id); return err })
	return u, err
}

func (s *InMemory) FindUserByEmail(ctx context.Context, email string) (u domain.User, err error) {
	err = s.read(ctx, func(v memView) error { u, err = v.FindUserByEmail(ctx, email); return err })
	return u, err
}

func (s *InMemory) FindUserByExternalID(ctx context.Context, externalID string) (u domain.User, err error) {
	err = s.read(ctx, func(v memView) error { u, err = v.FindUserByExternalID(ctx, externalID); return err })
	return u, err
}

func (s *InMemory) ListUsers(ctx context.Context, f UserFilter, p Page) (items []domain.User, total int, err error) {
	err = s.read(ctx, func(v memView) error { items, total, err = v.ListUsers(ctx, f, p); return err })
	return items, total, err
}

func (s *InMemory) GetZone(ctx context.Context, id string) (z domain.Zone, err error) {
	err = s.read(ctx, func(v memView) error { z, err = v.GetZone(ctx, id); return err })
	return z, err
}

func (s *InMemory) ListZones(ctx context.Context, f ZoneFilter, p Page) (items []domain.Zone, total int, err error) {
	err = s.read(ctx, func(v memView) error { items, total, err = v.ListZones(ctx, f, p); return err })
	return items, total, err
}

func (s *InMemory) GetSensor(ctx context.Context, id string) (sn domain.Sensor, err error) {
	err = s.read(ctx, func(v memView) error { sn, err = v.GetSensor(ctx, id); return err })
	return sn, err
}

func (s *InMemory) ListSensors(ctx context.Context, f SensorFilter, p Page) (items []domain.Sensor, total int, err error) {
	err = s.read(ctx, func(v memView) error { items, total, err = v.ListSensors(ctx, f, p); return err })
	return items, total, err
}

func (s *InMemory) SensorsInZone(ctx context.Context, zoneID string, activeOnly bool) (items []domain.Sensor, err error) {
	err = s.read(ctx, func(v memView) error { items, err = v.SensorsInZone(ctx, zoneID, activeOnly); return err })
	return items, err
}

func (s *InMemory) GetAction(ctx context.Context, id string) (a domain.Action, err error) {
	err = s.read(ctx, func(v memView) error { a, err = v.GetAction(ctx, id); return err })
	return a, err
}

func (s *InMemory) ListActions(ctx context.Context, f ActionFilter, p Page) (items []domain.Action, total int, err error) {
	err = s.read(ctx, func(v memView) error { items, total, err = v.ListActions(ctx, f, p); return err })
	return items, total, err
}

func (s *InMemory) CountActions(ctx context.Context, f ActionFilter) (counts map[domain.ActionStatus]int, err error) {
	err = s.read(ctx, func(v memView) error { counts, err = v.CountActions(ctx, f); return err })
	return counts, err
}

// --- writes ---

func (s *InMemory) InsertUser(ctx context.Context, u domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return domain.ErrConflict
	}
	if err := s.checkUserUnique(u); err != nil {
		return err
	}
	s.users[u.ID] = u
	return nil
}

func (s *InMemory) UpdateUser(ctx context.Context, id string, fn func(*domain.User) error) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.NotFound("user", id)
	}
	next := cur
	if err := fn(&next); err != nil {
		return domain.User{}, err
	}
	next.ID = id
	if err := s.checkUserUnique(next); err != nil {
		return domain.User{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	s.users[id] = next
	return next, nil
}

func (s *InMemory) InsertZone(ctx context.Context, z domain.Zone) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[z.ID]; ok {
		return domain.ErrConflict
	}
	if _, ok := s.users[z.CreatedBy]; !ok {
		return domain.NotFound("user", z.CreatedBy)
	}
	s.zones[z.ID] = domain.CloneZone(z)
	return nil
}

func (s *InMemory) UpdateZone(ctx context.Context, id string, fn func(*domain.Zone) error) (domain.Zone, error) {
	if err := ctx.Err(); err != nil {
		return domain.Zone{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.zones[id]
	if !ok {
		return domain.Zone{}, domain.NotFound("zone", id)
	}
	next := domain.CloneZone(cur)
	if err := fn(&next); err != nil {
		return domain.Zone{}, err
	}
	next.ID = id
	if err := ctx.Err(); err != nil {
		return domain.Zone{}, err
	}
	s.zones[id] = domain.CloneZone(next)
	return next, nil
}

func (s *InMemory) InsertSensor(ctx context.Context, sn domain.Sensor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[sn.ID]; ok {
		return domain.ErrConflict
	}
	if _, ok := s.zones[sn.ZoneID]; !ok {
		return domain.NotFound("zone", sn.ZoneID)
	}
	s.sensors[sn.ID] = domain.CloneSensor(sn)
	return nil
}

func (s *InMemory) UpdateSensor(ctx context.Context, id string, fn func(*domain.Sensor) error) (domain.Sensor, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sensor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sensors[id]
	if !ok {
		return domain.Sensor{}, domain.NotFound("sensor", id)
	}
	next := domain.CloneSensor(cur)
	if err := fn(&next); err != nil {
		return domain.Sensor{}, err
	}
	next.ID = id
	if _, ok := s.zones[next.ZoneID]; !ok {
		return domain.Sensor{}, domain.NotFound("zone", next.ZoneID)
	}
	if err := ctx.Err(); err != nil {
		return domain.Sensor{}, err
	}
	s.sensors[id] = domain.CloneSensor(next)
	return next, nil
}

func (s *InMemory) InsertAction(ctx context.Context, a domain.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[a.ID]; ok {
		return domain.ErrConflict
	}
	if err := s.checkActionRefs(a); err != nil {
		return err
	}
	s.actions[a.ID] = domain.CloneAction(a)
	return nil
}

func (s *InMemory) UpdateAction(ctx context.Context, id string, fn func(*domain.Action) error) (domain.Action, error) {
	if err := ctx.Err(); err != nil {
		return domain.Action{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.actions[id]
	if !ok {
		return domain.Action{}, domain.NotFound("action", id)
	}
	next := domain.CloneAction(cur)
	if err := fn(&next); err != nil {
		return domain.Action{}, err
	}
	next.ID = id
	if err := s.checkActionRefs(next); err != nil {
		return domain.Action{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Action{}, err
	}
	s.actions[id] = domain.CloneAction(next)
	return next, nil
}

func (s *InMemory) checkUserUnique(u domain.User) error {
	email := strings.ToLower(u.Email)
	for id, other := range s.users {
		if id == u.ID {
			continue
		}
		if strings.ToLower(other.Email) == email {
			return domain.ErrConflict
		}
		if u.ExternalID != "" && other.ExternalID == u.ExternalID {
			return domain.ErrConflict
		}
	}
	return nil
}

func (s *InMemory) checkActionRefs(a domain.Action) error {
	if _, ok := s.zones[a.ZoneID]; !ok {
		return domain.NotFound("zone", a.ZoneID)
	}
	if _, ok := s.users[a.CreatedBy]; !ok {
		return domain.NotFound("user", a.CreatedBy)
	}
	if a.AssignedTo != "" {
		if _, ok := s.users[a.AssignedTo]; !ok {
			return domain.NotFound("user", a.AssignedTo)
		}
	}
	return nil
}

// memView reads the maps without locking; callers hold s.mu.
type memView struct{ s *InMemory }

func (v memView) GetUser(_ context.Context, id string) (domain.User, error) {
	u, ok := v.s.users[id]
	if !ok {
		return domain.User{}, domain.NotFound("user", id)
	}
	return u, nil
}

func (v memView) FindUserByEmail(_ context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range v.s.users {
		if strings.ToLower(u.Email) == email {
			return u, nil
		}
	}
	return domain.User{}, domain.NotFound("user", "")
}

func (v memView) FindUserByExternalID(_ context.Context, externalID string) (domain.User, error) {
	if externalID != "" {
		for _, u := range v.s.users {
			if u.ExternalID == externalID {
				return u, nil
			}
		}
	}
	return domain.User{}, domain.NotFound("user", "")
}

func (v memView) ListUsers(_ context.Context, f UserFilter, p Page) ([]domain.User, int, error) {
	email := strings.ToLower(strings.TrimSpace(f.Email))
	var matched []domain.User
	for _, u := range v.s.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if email != "" && strings.ToLower(u.Email) != email {
			continue
		}
		matched = append(matched, u)
	}
	sortByCreation(matched, func(u domain.User) (time.Time, string) { return u.CreatedAt, u.ID })
	lo, hi := p.Window(len(matched))
	return append([]domain.User{}, matched[lo:hi]...), len(matched), nil
}

func (v memView) GetZone(_ context.Context, id string) (domain.Zone, error) {
	z, ok := v.s.zones[id]
	if !ok {
		return domain.Zone{}, domain.NotFound("zone", id)
	}
	return domain.CloneZone(z), nil
}

func (v memView) ListZones(_ context.Context, f ZoneFilter, p Page) ([]domain.Zone, int, error) {
	needle := strings.ToLower(strings.TrimSpace(f.NameContains))
	var matched []domain.Zone
	for _, z := range v.s.zones {
		if !f.IncludeArchived && z.Archived() {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(z.Name), needle) {
			continue
		}
		if f.BBox != nil && !f.BBox.Contains(z.Location) {
			continue
		}
		matched = append(matched, z)
	}
	sortByCreation(matched, func(z domain.Zone) (time.Time, string) { return z.CreatedAt, z.ID })
	lo, hi := p.Window(len(matched))
	out := make([]domain.Zone, 0, hi-lo)
	for _, z := range matched[lo:hi] {
		out = append(out, domain.CloneZone(z))
	}
	return out, len(matched), nil
}

func (v memView) GetSensor(_ context.Context, id string) (domain.Sensor, error) {
	sn, ok := v.s.sensors[id]
	if !ok {
		return domain.Sensor{}, domain.NotFound("sensor", id)
	}
	return domain.CloneSensor(sn), nil
}

func (v memView) ListSensors(_ context.Context, f SensorFilter, p Page) ([]domain.Sensor, int, error) {
	var matched []domain.Sensor
	for _, sn := range v.s.sensors {
		if f.ZoneID != "" && sn.ZoneID != f.ZoneID {
			continue
		}
		if f.Type != "" && sn.Type != f.Type {
			continue
		}
		if f.IsActive != nil && sn.IsActive != *f.IsActive {
			continue
		}
		matched = append(matched, sn)
	}
	sortByCreation(matched, func(sn domain.Sensor) (time.Time, string) { return sn.CreatedAt, sn.ID })
	lo, hi := p.Window(len(matched))
	out := make([]domain.Sensor, 0, hi-lo)
	for _, sn := range matched[lo:hi] {
		out = append(out, domain.CloneSensor(sn))
	}
	return out, len(matched), nil
}

func (v memView) SensorsInZone(_ context.Context, zoneID string, activeOnly bool) ([]domain.Sensor, error) {
	var out []domain.Sensor
	for _, sn := range v.s.sensors {
		if sn.ZoneID != zoneID || (activeOnly && !sn.IsActive) {
			continue
		}
		out = append(out, domain.CloneSensor(sn))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v memView) GetAction(_ context.Context, id string) (domain.Action, error) {
	a, ok := v.s.actions[id]
	if !ok {
		return domain.Action{}, domain.NotFound("action", id)
	}
	return domain.CloneAction(a), nil
}

func (v memView) ListActions(_ context.Context, f ActionFilter, p Page) ([]domain.Action, int, error) {
	var matched []domain.Action
	for _, a := range v.s.actions {
		if actionMatches(a, f) {
			matched = append(matched, a)
		}
	}
	sortByCreation(matched, func(a domain.Action) (time.Time, string) { return a.CreatedAt, a.ID })
	lo, hi := p.Window(len(matched))
	out := make([]domain.Action, 0, hi-lo)
	for _, a := range matched[lo:hi] {
		out = append(out, domain.CloneAction(a))
	}
	return out, len(matched), nil
}

func (v memView) CountActions(_ context.Context, f ActionFilter) (map[domain.ActionStatus]int, error) {
	counts := make(map[domain.ActionStatus]int)
	for _, a := range v.s.actions {
		if actionMatches(a, f) {
			counts[a.Status]++
		}
	}
	return counts, nil
}

func actionMatches(a domain.Action, f ActionFilter) bool {
	if f.ZoneID != "" && a.ZoneID != f.ZoneID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.AssignedTo != "" && a.AssignedTo != f.AssignedTo {
		return false
	}
	return true
}

func sortByCreation[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return idi < idj
	})
}
