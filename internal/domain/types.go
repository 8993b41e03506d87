package domain

import (
	"strings"
	"time"
)

// Role is the coarse permission class carried by every user.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleGovernment Role = "government"
	RoleFactory    Role = "factory"
	RolePublic     Role = "public"
)

var roles = []Role{RoleAdmin, RoleGovernment, RoleFactory, RolePublic}

func (r Role) Valid() bool {
	for _, known := range roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole normalises user input ("Admin ", "GOVERNMENT") into a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// SensorType enumerates the kinds of monitoring devices.
type SensorType string

const (
	SensorTemperature  SensorType = "temperature"
	SensorWaterQuality SensorType = "water_quality"
	SensorAirQuality   SensorType = "air_quality"
	SensorImage        SensorType = "image"
	SensorWasteLevel   SensorType = "waste_level"
)

var sensorTypes = []SensorType{SensorTemperature, SensorWaterQuality, SensorAirQuality, SensorImage, SensorWasteLevel}

func (t SensorType) Valid() bool {
	for _, known := range sensorTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// User is an identity known to the platform.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email" validate:"required,email,max=320"`
	Name         string    `json:"name" validate:"required,max=200"`
	Role         Role      `json:"role" validate:"oneof=admin government factory public"`
	Organization string    `json:"organization,omitempty" validate:"max=200"`
	ExternalID   string    `json:"external_id,omitempty" validate:"max=256"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Zone is a monitored geographic area. Zones are archived, never deleted.
type Zone struct {
	ID          string     `json:"id"`
	Name        string     `json:"name" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=4000"`
	Location    Location   `json:"location"`
	FocusPoint  string     `json:"focus_point" validate:"max=500"`
	Metadata    Metadata   `json:"metadata,omitempty"`
	CreatedBy   string     `json:"created_by" validate:"required"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

func (z Zone) Archived() bool { return z.ArchivedAt != nil }

// SensorConfig describes how a sensor samples and when it alarms.
type SensorConfig struct {
	Unit         string   `json:"unit" validate:"max=32"`
	SamplingRate float64  `json:"sampling_rate" validate:"min=0"`
	Threshold    float64  `json:"threshold"`
	Metadata     Metadata `json:"metadata,omitempty"`
}

// Reading is a single measurement reported by a sensor.
type Reading struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// Sensor is a device attached to exactly one zone.
type Sensor struct {
	ID            string       `json:"id"`
	ZoneID        string       `json:"zone_id" validate:"required"`
	Name          string       `json:"name" validate:"required,max=200"`
	Type          SensorType   `json:"type" validate:"oneof=temperature water_quality air_quality image waste_level"`
	Configuration SensorConfig `json:"configuration"`
	Location      Location     `json:"location"`
	IsActive      bool         `json:"is_active"`
	LastReading   *Reading     `json:"last_reading,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ImpactMetrics holds numeric snapshots taken before and after an action.
type ImpactMetrics struct {
	Before map[string]float64 `json:"before,omitempty"`
	After  map[string]float64 `json:"after,omitempty"`
}

// Action is a remediation task scoped to a zone.
type Action struct {
	ID            string        `json:"id"`
	ZoneID        string        `json:"zone_id" validate:"required"`
	Title         string        `json:"title" validate:"required,max=200"`
	Description   string        `json:"description" validate:"max=4000"`
	Status        ActionStatus  `json:"status" validate:"oneof=pending in_progress completed cancelled"`
	ImpactMetrics ImpactMetrics `json:"impact_metrics"`
	AssignedTo    string        `json:"assigned_to,omitempty"`
	CreatedBy     string        `json:"created_by" validate:"required"`
	StartDate     *time.Time    `json:"start_date,omitempty"`
	EndDate       *time.Time    `json:"end_date,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Open reports whether the action still needs work.
func (a Action) Open() bool {
	return a.Status == StatusPending || a.Status == StatusInProgress
}
