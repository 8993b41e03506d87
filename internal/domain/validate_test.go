package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validZone() Zone {
	return Zone{
		Name:       "Delta wetlands",
		Location:   Location{Latitude: 10, Longitude: 20},
		FocusPoint: "salinity",
		CreatedBy:  "u1",
	}
}

func fields(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Field
	}
	return out
}

func TestValidateZoneCoordinateBounds(t *testing.T) {
	cases := []struct {
		name  string
		loc   Location
		field string
	}{
		{name: "north pole accepted", loc: Location{Latitude: 90, Longitude: 0}},
		{name: "south pole accepted", loc: Location{Latitude: -90, Longitude: 0}},
		{name: "antimeridian accepted", loc: Location{Latitude: 0, Longitude: 180}},
		{name: "latitude 91 rejected", loc: Location{Latitude: 91}, field: "location.latitude"},
		{name: "latitude -90.5 rejected", loc: Location{Latitude: -90.5}, field: "location.latitude"},
		{name: "longitude 180.1 rejected", loc: Location{Longitude: 180.1}, field: "location.longitude"},
		{name: "NaN rejected", loc: Location{Latitude: math.NaN()}, field: "location.latitude"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			z := validZone()
			z.Location = tc.loc
			vs := ValidateZone(z)
			if tc.field == "" {
				assert.Empty(t, vs)
				return
			}
			assert.Contains(t, fields(vs), tc.field)
		})
	}
}

func TestValidateZoneRequiresNameAndCreator(t *testing.T) {
	vs := ValidateZone(Zone{})
	assert.ElementsMatch(t, []string{"name", "created_by"}, fields(vs))
}

func TestValidateUserRoleAndEmail(t *testing.T) {
	u := User{Email: "not-an-email", Name: "Ada", Role: Role("root")}
	vs := ValidateUser(u)
	assert.ElementsMatch(t, []string{"email", "role"}, fields(vs))

	u.Email = "ada@example.org"
	u.Role = RoleFactory
	assert.Empty(t, ValidateUser(u))
}

func TestValidateActionDatesAndImpact(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	a := Action{
		ZoneID:    "z1",
		Title:     "Clear drainage",
		Status:    StatusInProgress,
		CreatedBy: "u1",
		StartDate: &start,
		EndDate:   &end,
		ImpactMetrics: ImpactMetrics{
			After: map[string]float64{"turbidity": 3},
		},
	}
	vs := ValidateAction(a)
	assert.ElementsMatch(t, []string{"end_date", "impact_metrics.after"}, fields(vs))

	same := start
	a.EndDate = &same
	a.Status = StatusCompleted
	assert.Empty(t, ValidateAction(a))
}

func TestValidateSensorReadingNotBeforeCreation(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Sensor{
		ZoneID:    "z1",
		Name:      "probe",
		Type:      SensorTemperature,
		CreatedAt: created,
		LastReading: &Reading{
			Value:     21,
			Timestamp: created.Add(-time.Second),
		},
	}
	assert.Equal(t, []string{"last_reading.timestamp"}, fields(ValidateSensor(s)))

	s.LastReading.Timestamp = created
	assert.Empty(t, ValidateSensor(s))

	s.Type = SensorType("humidity")
	assert.Equal(t, []string{"type"}, fields(ValidateSensor(s)))
}

func TestTransitions(t *testing.T) {
	allowed := map[[2]ActionStatus]bool{
		{StatusPending, StatusInProgress}:   true,
		{StatusPending, StatusCancelled}:    true,
		{StatusInProgress, StatusCompleted}: true,
		{StatusInProgress, StatusCancelled}: true,
	}
	all := []ActionStatus{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			err := Transition(from, to)
			if allowed[[2]ActionStatus{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			var te *InvalidTransitionError
			require.ErrorAs(t, err, &te, "%s -> %s", from, to)
			assert.Equal(t, from, te.From)
			assert.Equal(t, to, te.To)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
		}
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestActionPatchPendingToCompletedRejected(t *testing.T) {
	a := Action{Status: StatusPending}
	completed := StatusCompleted
	err := ActionPatch{Status: &completed}.Apply(&a)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusPending, a.Status)

	same := StatusPending
	require.NoError(t, ActionPatch{Status: &same}.Apply(&a))
}

func TestUserPatchExternalIDImmutable(t *testing.T) {
	u := User{ExternalID: "idp|1"}
	other := "idp|2"
	err := UserPatch{ExternalID: &other}.Apply(&u)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "idp|1", u.ExternalID)
}

func TestMetadataJSONShape(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"basin":"north","depth":4.5,"tidal":true}`), &m))
	assert.Equal(t, String("north"), m["basin"])
	assert.Equal(t, Number(4.5), m["depth"])
	assert.Equal(t, Bool(true), m["tidal"])

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"basin":"north","depth":4.5,"tidal":true}`, string(out))

	for _, bad := range []string{`{"x":null}`, `{"x":[1]}`, `{"x":{"y":1}}`} {
		var m Metadata
		assert.Error(t, json.Unmarshal([]byte(bad), &m), bad)
	}
}

func TestValidateZoneRejectsInvalidMetadataValue(t *testing.T) {
	z := validZone()
	z.Metadata = Metadata{"ok": String("x"), "bad": {}, "inf": Number(math.Inf(1))}
	assert.ElementsMatch(t, []string{"metadata.bad", "metadata.inf"}, fields(ValidateZone(z)))
}

func TestValidationErrorMessage(t *testing.T) {
	err := Check([]Violation{{Field: "name", Message: "is required"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "name: is required")
	assert.NoError(t, Check(nil))
}
