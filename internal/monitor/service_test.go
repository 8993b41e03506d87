package monitor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecowatch.org/internal/access"
	"ecowatch.org/internal/domain"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	svc    *Service
	store  *InMemory
	clock  *stepClock
	admin  access.Actor
	gov    access.Actor
	fac    access.Actor
	public access.Actor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	store := NewInMemory()
	f := &fixture{store: store, clock: clock}
	f.svc = NewService(store, append([]Option{WithClock(clock.Now)}, opts...)...)

	ctx := context.Background()
	seed := func(email string, role domain.Role) access.Actor {
		u := domain.User{ID: "u-" + string(role), Email: email, Name: string(role), Role: role, CreatedAt: clock.Now()}
		u.UpdatedAt = u.CreatedAt
		require.NoError(t, store.InsertUser(ctx, u))
		return access.Actor{UserID: u.ID, Role: role}
	}
	f.admin = seed("admin@example.org", domain.RoleAdmin)
	f.gov = seed("gov@example.org", domain.RoleGovernment)
	f.fac = seed("factory@example.org", domain.RoleFactory)
	f.public = seed("public@example.org", domain.RolePublic)
	return f
}

func (f *fixture) zone(t *testing.T, name string, lat, lon float64) domain.Zone {
	t.Helper()
	z, err := f.svc.CreateZone(context.Background(), f.gov, domain.ZoneDraft{
		Name:     name,
		Location: domain.Location{Latitude: lat, Longitude: lon},
	})
	require.NoError(t, err)
	return z
}

func (f *fixture) sensor(t *testing.T, zoneID string, typ domain.SensorType) domain.Sensor {
	t.Helper()
	s, err := f.svc.CreateSensor(context.Background(), f.admin, domain.SensorDraft{
		ZoneID: zoneID,
		Name:   "probe",
		Type:   typ,
		Configuration: domain.SensorConfig{
			Unit:         "celsius",
			SamplingRate: 60,
		},
	})
	require.NoError(t, err)
	return s
}

func TestCreateZoneThenGetReturnsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := domain.ZoneDraft{
		Name:        "Delta wetlands",
		Description: "Estuary monitoring",
		Location:    domain.Location{Latitude: 10, Longitude: 20},
		FocusPoint:  "water",
		Metadata:    domain.Metadata{"area_km2": domain.Number(12.5), "protected": domain.Bool(true)},
	}
	created, err := f.svc.CreateZone(ctx, f.gov, draft)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	got, err := f.svc.GetZone(ctx, f.public, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, draft.Name, got.Name)
	assert.Equal(t, draft.Location, got.Location)
	assert.Equal(t, draft.Metadata, got.Metadata)
	assert.Equal(t, f.gov.UserID, got.CreatedBy)
}

func TestCreateZoneRejectsOutOfRangeLatitude(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateZone(ctx, f.gov, domain.ZoneDraft{Name: "pole", Location: domain.Location{Latitude: 90}})
	require.NoError(t, err)

	_, err = f.svc.CreateZone(ctx, f.gov, domain.ZoneDraft{Name: "beyond", Location: domain.Location{Latitude: 91}})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "location.latitude", ve.Violations[0].Field)
}

func TestPublicNeverWritesAndMissingTargetsStayHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	z := f.zone(t, "Z", 1, 1)

	_, err := f.svc.CreateZone(ctx, f.public, domain.ZoneDraft{Name: "x"})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.CreateSensor(ctx, f.public, domain.SensorDraft{ZoneID: z.ID})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.CreateAction(ctx, f.public, domain.ActionDraft{ZoneID: z.ID, Title: "t"})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.CreateUser(ctx, f.public, domain.UserDraft{Email: "x@example.org", Name: "x"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	name := "renamed"
	_, err = f.svc.UpdateZone(ctx, f.public, "no-such-zone", domain.ZonePatch{Name: &name})
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestGovernmentWritesZonesButNotSensors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	z := f.zone(t, "Z", 1, 1)

	_, err := f.svc.CreateSensor(ctx, f.gov, domain.SensorDraft{ZoneID: z.ID, Name: "s", Type: domain.SensorTemperature})
	require.ErrorIs(t, err, domain.ErrForbidden)

	other, err := f.svc.CreateZone(ctx, f.admin, domain.ZoneDraft{Name: "admin zone"})
	require.NoError(t, err)
	desc := "updated by government"
	updated, err := f.svc.UpdateZone(ctx, f.gov, other.ID, domain.ZonePatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.True(t, updated.UpdatedAt.After(other.UpdatedAt))
}

func TestFactoryWriteScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	z := f.zone(t, "Z", 1, 1)

	assigned, err := f.svc.CreateAction(ctx, f.gov, domain.ActionDraft{ZoneID: z.ID, Title: "fix outflow", AssignedTo: f.fac.UserID})
	require.NoError(t, err)
	foreign, err := f.svc.CreateAction(ctx, f.gov, domain.ActionDraft{ZoneID: z.ID, Title: "not yours"})
	require.NoError(t, err)
	own, err := f.svc.CreateAction(ctx, f.fac, domain.ActionDraft{ZoneID: z.ID, Title: "self-reported"})
	require.NoError(t, err)
	assert.Equal(t, f.fac.UserID, own.CreatedBy)

	start := domain.StatusInProgress
	_, err = f.svc.UpdateAction(ctx, f.fac, assigned.ID, domain.ActionPatch{Status: &start})
	require.NoError(t, err)
	_, err = f.svc.UpdateAction(ctx, f.fac, own.ID, domain.ActionPatch{Status: &start})
	require.NoError(t, err)

	_, err = f.svc.UpdateAction(ctx, f.fac, foreign.ID, domain.ActionPatch{Status: &start})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.UpdateAction(ctx, f.fac, "missing", domain.ActionPatch{Status: &start})
	require.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.svc.GetAction(ctx, f.public, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	_, err = f.svc.UpdateAction(ctx, f.gov, "missing", domain.ActionPatch{Status: &start})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestActionTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	z := f.zone(t, "Z", 1, 1)
	a, err := f.svc.CreateAction(ctx, f.gov, domain.ActionDraft{ZoneID: z.ID, Title: "clean up"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, a.Status)

	completed := domain.StatusCompleted
	_, err = f.svc.UpdateAction(ctx, f.gov, a.ID, domain.ActionPatch{Status: &completed})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	var te *domain.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.StatusPending, te.From)
	assert.Equal(t, domain.StatusCompleted, te.To)

	inProgress := domain.StatusInProgress
	a, err = f.svc.UpdateAction(ctx, f.gov, a.ID, domain.ActionPatch{Status: &inProgress})
	require.NoError(t, err)
	a, err = f.svc.UpdateAction(ctx, f.gov, a.ID, domain.ActionPatch{
		Status:      &completed,
		ImpactAfter: map[string]float64{"turbidity": 3.1},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, a.Status)
	assert.Equal(t, 3.1, a.ImpactMetrics.After["turbidity"])

	cancelled := domain.StatusCancelled
	_, err = f.svc.UpdateAction(ctx, f.gov, a.ID, domain.ActionPatch{Status: &cancelled})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	title := "same status is not a transition"
	a, err = f.svc.UpdateAction(ctx, f.gov, a.ID, domain.ActionPatch{Status: &completed, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, a.Title)
}

func TestImpactAfterRequiresCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	z := f.zone(t, "Z", 1, 1)

	_, err := f.svc.CreateAction(ctx, f.gov, domain.ActionDraft{
		ZoneID:        z.ID,
		Title:         "premature",
		ImpactMetrics: domain.ImpactMetrics{After: map[string]float64{"x": 1}},
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFailedUpdateLeavesRowUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	z := f.zone(t, "Z", 1, 1)
	a, err := f.svc.CreateAction(ctx, f.gov, domain.ActionDraft{ZoneID: z.ID, Title: "keep"})
	require.NoError(t, err)

	start := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	title := "changed"
	_, err = f.svc.UpdateAction(ctx, f.gov, a.ID, domain.ActionPatch{Title: &title, StartDate: &start, EndDate: &end})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	got, err := f.svc.GetAction(ctx, f.gov, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestConcurrentTransitionsSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	z := f.zone(t, "Z", 1, 1)
	a, err := f.svc.CreateAction(ctx, f.gov, domain.ActionDraft{ZoneID: z.ID, Title: "race"})
	require.NoError(t, err)
	inProgress := domain.StatusInProgress
	_, err = f.svc.UpdateAction(ctx, f.gov, a.ID, domain.ActionPatch{Status: &inProgress})
	require.NoError(t, err)

	targets := []domain.ActionStatus{domain.StatusCompleted, domain.StatusCancelled}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		finals   = map[domain.ActionStatus]int{}
		failures int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(to domain.ActionStatus) {
			defer wg.Done()
			got, err := f.svc.UpdateAction(ctx, f.gov, a.ID, domain.ActionPatch{Status: &to})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, domain.ErrInvalidTransition) {
					t.Errorf("unexpected error: %v", err)
				}
				failures++
				return
			}
			finals[got.Status]++
		}(targets[i%2])
	}
	wg.Wait()

	require.Len(t, finals, 1, "only one terminal status may win")
	assert.Equal(t, 20, failures)
	got, err := f.svc.GetAction(ctx, f.gov, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.ListZones(ctx, f.public, ZoneFilter{NameContains: "nothing"}, Page{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.NotNil(t, empty.Items)
	assert.Len(t, empty.Items, 0)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.zone(t, "river", 1, 1).ID)
	}
	first, err := f.svc.ListZones(ctx, f.public, ZoneFilter{}, Page{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, first.Total)
	require.Len(t, first.Items, 2)
	assert.Equal(t, ids[0], first.Items[0].ID)

	last, err := f.svc.ListZones(ctx, f.public, ZoneFilter{}, Page{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, ids[4], last.Items[0].ID)

	beyond, err := f.svc.ListZones(ctx, f.public, ZoneFilter{}, Page{Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, beyond.Total)
	assert.Empty(t, beyond.Items)

	for _, p := range []Page{{Page: 0, PageSize: 10}, {Page: 1, PageSize: 0}, {Page: 1, PageSize: 101}} {
		_, err := f.svc.ListZones(ctx, f.public, ZoneFilter{}, p)
		require.ErrorIs(t, err, domain.ErrInvalidInput, "page %+v", p)
	}
	_, err = f.svc.ListZones(ctx, f.public, ZoneFilter{}, Page{Page: 1, PageSize: 100})
	require.NoError(t, err)
}

func TestListHugePageIsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.zone(t, "river", 1, 1)

	for _, p := range []Page{
		{Page: math.MaxInt/50 + 1, PageSize: 100},
		{Page: math.MaxInt, PageSize: 2},
	} {
		zones, err := f.svc.ListZones(ctx, f.public, ZoneFilter{}, p)
		require.NoError(t, err, "page %+v", p)
		assert.Equal(t, 1, zones.Total)
		assert.Empty(t, zones.Items)

		users, err := f.svc.ListUsers(ctx, f.admin, UserFilter{}, p)
		require.NoError(t, err)
		assert.Equal(t, 4, users.Total)
		assert.Empty(t, users.Items)
	}
	assert.Equal(t, math.MaxInt, Page{Page: math.MaxInt, PageSize: 100}.Offset())
}

func TestListZonesRejectsNonFiniteBBox(t *testing.T) {
	f := newFixture(t)
	for _, box := range []BoundingBox{
		{MinLat: math.NaN(), MaxLat: 1, MaxLon: 1},
		{MaxLat: 1, MaxLon: math.Inf(1)},
	} {
		_, err := f.svc.ListZones(context.Background(), f.public, ZoneFilter{BBox: &box}, Page{Page: 1, PageSize: 10})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "bbox", ve.Violations[0].Field)
	}
}

func TestListZonesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.zone(t, "North Lake", 60, 10)
	f.zone(t, "South Bay", -30, 10)
	archived := f.zone(t, "North Quarry", 61, 11)
	_, err := f.svc.ArchiveZone(ctx, f.gov, archived.ID)
	require.NoError(t, err)

	byName, err := f.svc.ListZones(ctx, f.public, ZoneFilter{NameContains: "north"}, Page{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 1, byName.Total)
	assert.Equal(t, north.ID, byName.Items[0].ID)

	withArchived, err := f.svc.ListZones(ctx, f.public, ZoneFilter{NameContains: "north", IncludeArchived: true}, Page{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, withArchived.Total)

	box := &BoundingBox{MinLat: 50, MinLon: 0, MaxLat: 70, MaxLon: 20}
	inBox, err := f.svc.ListZones(ctx, f.public, ZoneFilter{BBox: box}, Page{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 1, inBox.Total)
	assert.Equal(t, north.ID, inBox.Items[0].ID)

	_, err = f.svc.ListZones(ctx, f.public, ZoneFilter{BBox: &BoundingBox{MinLat: 10, MaxLat: 0}}, Page{Page: 1, PageSize: 10})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestArchivedZoneIsReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	z := f.zone(t, "Z", 1, 1)

	archived, err := f.svc.ArchiveZone(ctx, f.gov, z.ID)
	require.NoError(t, err)
	require.NotNil(t, archived.ArchivedAt)

	again, err := f.svc.ArchiveZone(ctx, f.admin, z.ID)
	require.NoError(t, err)
	assert.Equal(t, archived.ArchivedAt, again.ArchivedAt)

	name := "late rename"
	_, err = f.svc.UpdateZone(ctx, f.gov, z.ID, domain.ZonePatch{Name: &name})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.CreateSensor(ctx, f.admin, domain.SensorDraft{ZoneID: z.ID, Name: "s", Type: domain.SensorTemperature})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.CreateAction(ctx, f.gov, domain.ActionDraft{ZoneID: z.ID, Title: "t"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateSensorInMissingZone(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateSensor(context.Background(), f.admin, domain.SensorDraft{ZoneID: "nope", Name: "s", Type: domain.SensorAirQuality})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "zone", nf.Entity)
}

type fakeArchive struct {
	mu       sync.Mutex
	readings []domain.Reading
	err      error
}

func (a *fakeArchive) AppendReading(_ context.Context, _ domain.Sensor, r domain.Reading) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readings = append(a.readings, r)
	return a.err
}

type fakePublisher struct {
	mu     sync.Mutex
	values []float64
}

func (p *fakePublisher) PublishReading(_ domain.Sensor, r domain.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, r.Value)
}

type fakeImages struct {
	keys []string
}

func (i *fakeImages) PutImage(_ context.Context, sensorID string, ts time.Time, data []byte, _ string) (string, error) {
	key := "images/" + sensorID + "/" + ts.Format(time.RFC3339Nano) + ".jpg"
	i.keys = append(i.keys, key)
	return key, nil
}

func TestRecordReadingKeepsNewest(t *testing.T) {
	arch := &fakeArchive{err: errors.New("influx down")}
	pub := &fakePublisher{}
	f := newFixture(t, WithReadingArchive(arch), WithPublisher(pub))
	ctx := context.Background()
	z := f.zone(t, "Z1", 10, 20)
	s := f.sensor(t, z.ID, domain.SensorTemperature)

	t1 := s.CreatedAt.Add(time.Minute)
	t2 := t1.Add(time.Minute)
	got, err := f.svc.RecordReading(ctx, f.admin, s.ID, ReadingInput{Value: 23.0, Timestamp: t2})
	require.NoError(t, err)
	require.NotNil(t, got.LastReading)
	assert.Equal(t, 23.0, got.LastReading.Value)

	got, err = f.svc.RecordReading(ctx, f.admin, s.ID, ReadingInput{Value: 22.5, Timestamp: t1})
	require.NoError(t, err)
	assert.Equal(t, 23.0, got.LastReading.Value)
	assert.True(t, got.LastReading.Timestamp.Equal(t2))

	assert.Len(t, arch.readings, 2)
	assert.Equal(t, []float64{23.0, 22.5}, pub.values)
}

func TestRecordReadingRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	z := f.zone(t, "Z", 1, 1)
	s := f.sensor(t, z.ID, domain.SensorWasteLevel)

	_, err := f.svc.RecordReading(ctx, f.gov, s.ID, ReadingInput{Value: 1})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.RecordReading(ctx, f.admin, s.ID, ReadingInput{Value: 1, Timestamp: s.CreatedAt.Add(-time.Hour)})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.RecordReading(ctx, f.admin, s.ID, ReadingInput{Value: 1, Image: []byte{0xff}})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	off := false
	_, err = f.svc.UpdateSensor(ctx, f.admin, s.ID, domain.SensorPatch{IsActive: &off})
	require.NoError(t, err)
	_, err = f.svc.RecordReading(ctx, f.admin, s.ID, ReadingInput{Value: 1})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.RecordReading(ctx, f.admin, "missing", ReadingInput{Value: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordImageReadingStoresKey(t *testing.T) {
	imgs := &fakeImages{}
	f := newFixture(t, WithImageStore(imgs))
	z := f.zone(t, "Z", 1, 1)
	s := f.sensor(t, z.ID, domain.SensorImage)

	got, err := f.svc.RecordReading(context.Background(), f.admin, s.ID, ReadingInput{Value: 1, Image: []byte{0xff, 0xd8}, ContentType: "image/jpeg"})
	require.NoError(t, err)
	require.Len(t, imgs.keys, 1)
	key, ok := got.LastReading.Metadata[ImageKeyMetadata].Str()
	require.True(t, ok)
	assert.Equal(t, imgs.keys[0], key)
}

func TestRejectedImageReadingUploadsNothing(t *testing.T) {
	imgs := &fakeImages{}
	f := newFixture(t, WithImageStore(imgs))
	ctx := context.Background()
	z := f.zone(t, "Z", 1, 1)
	s := f.sensor(t, z.ID, domain.SensorImage)
	img := []byte{0xff, 0xd8}

	_, err := f.svc.RecordReading(ctx, f.admin, s.ID, ReadingInput{Value: 1, Timestamp: s.CreatedAt.Add(-time.Hour), Image: img})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.RecordReading(ctx, f.admin, s.ID, ReadingInput{Value: math.NaN(), Image: img})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.RecordReading(ctx, f.admin, s.ID, ReadingInput{Value: 1, Image: img, Metadata: domain.Metadata{"": domain.String("x")}})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.RecordReading(ctx, f.gov, s.ID, ReadingInput{Value: 1, Image: img})
	require.ErrorIs(t, err, domain.ErrForbidden)

	assert.Empty(t, imgs.keys)
	got, err := f.svc.GetSensor(ctx, f.public, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastReading)
}

func TestUserManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateUser(ctx, f.admin, domain.UserDraft{Email: " Analyst@Example.org ", Name: "Analyst"})
	require.NoError(t, err)
	assert.Equal(t, "analyst@example.org", u.Email)
	assert.Equal(t, domain.RolePublic, u.Role)

	_, err = f.svc.CreateUser(ctx, f.admin, domain.UserDraft{Email: "ANALYST@example.org", Name: "Dup"})
	require.ErrorIs(t, err, domain.ErrConflict)

	gov := domain.RoleGovernment
	_, err = f.svc.UpdateUser(ctx, f.gov, u.ID, domain.UserPatch{Role: &gov})
	require.ErrorIs(t, err, domain.ErrForbidden)
	u, err = f.svc.UpdateUser(ctx, f.admin, u.ID, domain.UserPatch{Role: &gov})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleGovernment, u.Role)

	list, err := f.svc.ListUsers(ctx, f.public, UserFilter{Role: domain.RoleGovernment}, Page{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)

	_, err = f.svc.ListUsers(ctx, f.public, UserFilter{Role: "root"}, Page{Page: 1, PageSize: 10})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProvisionUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.ProvisionUser(ctx, Identity{ExternalID: "idp|1", Email: "New@Example.org", Name: "Newcomer"})
	require.NoError(t, err)
	assert.Equal(t, domain.RolePublic, first.Role)
	assert.Equal(t, "new@example.org", first.Email)

	again, err := f.svc.ProvisionUser(ctx, Identity{ExternalID: "idp|1", Email: "new@example.org"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	linked, err := f.svc.ProvisionUser(ctx, Identity{ExternalID: "idp|gov", Email: "gov@example.org"})
	require.NoError(t, err)
	assert.Equal(t, f.gov.UserID, linked.ID)
	assert.Equal(t, domain.RoleGovernment, linked.Role)
	assert.Equal(t, "idp|gov", linked.ExternalID)

	_, err = f.svc.ProvisionUser(ctx, Identity{ExternalID: "idp|other", Email: "gov@example.org"})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.ProvisionUser(ctx, Identity{Email: "x@example.org"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestInvalidActorIsForbidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListZones(context.Background(), access.Actor{}, ZoneFilter{}, Page{Page: 1, PageSize: 10})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCancelledContextAbortsWrite(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.CreateZone(ctx, f.gov, domain.ZoneDraft{Name: "never"})
	require.ErrorIs(t, err, context.Canceled)

	list, err := f.svc.ListZones(context.Background(), f.public, ZoneFilter{}, Page{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)
}
