package monitor

import (
	"context"
	"fmt"
	"math"

	"ecowatch.org/internal/domain"
)

const (
	MaxPageSize     = 100
	DefaultPageSize = 20
)

// Page selects a 1-based window of a result set.
type Page struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (p Page) Validate() error {
	var vs []domain.Violation
	if p.Page < 1 {
		vs = append(vs, domain.Violation{Field: "page", Message: "must be >= 1"})
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		vs = append(vs, domain.Violation{Field: "page_size", Message: fmt.Sprintf("must be between 1 and %d", MaxPageSize)})
	}
	return domain.Check(vs)
}

// Offset is the number of rows before p, saturating at math.MaxInt.
func (p Page) Offset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// Window returns the [lo, hi) slice bounds of p within total rows.
func (p Page) Window(total int) (int, int) {
	lo := p.Offset()
	if lo < 0 {
		lo = 0
	}
	if lo > total {
		lo = total
	}
	hi := total
	if p.PageSize < total-lo {
		hi = lo + p.PageSize
	}
	return lo, hi
}

type UserFilter struct {
	Role  domain.Role
	Email string
}

// BoundingBox is an inclusive latitude/longitude rectangle. Boxes crossing
// the antimeridian are not supported.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

func (b BoundingBox) Validate() error {
	var vs []domain.Violation
	for _, f := range []float64{b.MinLat, b.MinLon, b.MaxLat, b.MaxLon} {
		if !domain.Finite(f) {
			return domain.Invalid("bbox", "coordinates must be finite numbers")
		}
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLat > b.MaxLat {
		vs = append(vs, domain.Violation{Field: "bbox.lat", Message: "must satisfy -90 <= min_lat <= max_lat <= 90"})
	}
	if b.MinLon < -180 || b.MaxLon > 180 || b.MinLon > b.MaxLon {
		vs = append(vs, domain.Violation{Field: "bbox.lon", Message: "must satisfy -180 <= min_lon <= max_lon <= 180"})
	}
	return domain.Check(vs)
}

func (b BoundingBox) Contains(l domain.Location) bool {
	return l.Latitude >= b.MinLat && l.Latitude <= b.MaxLat &&
		l.Longitude >= b.MinLon && l.Longitude <= b.MaxLon
}

type ZoneFilter struct {
	NameContains    string
	BBox            *BoundingBox
	IncludeArchived bool
}

type SensorFilter struct {
	ZoneID   string
	Type     domain.SensorType
	IsActive *bool
}

type ActionFilter struct {
	ZoneID     string
	Status     domain.ActionStatus
	AssignedTo string
}

// Reader is the read side of a Store. Lists are ordered by creation time,
// then id, and return the page together with the total number of matches.
type Reader interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	FindUserByExternalID(ctx context.Context, externalID string) (domain.User, error)
	ListUsers(ctx context.Context, f UserFilter, p Page) ([]domain.User, int, error)

	GetZone(ctx context.Context, id string) (domain.Zone, error)
	ListZones(ctx context.Context, f ZoneFilter, p Page) ([]domain.Zone, int, error)

	GetSensor(ctx context.Context, id string) (domain.Sensor, error)
	ListSensors(ctx context.Context, f SensorFilter, p Page) ([]domain.Sensor, int, error)
	// SensorsInZone returns every sensor of the zone without paging.
	SensorsInZone(ctx context.Context, zoneID string, activeOnly bool) ([]domain.Sensor, error)

	GetAction(ctx context.Context, id string) (domain.Action, error)
	ListActions(ctx context.Context, f ActionFilter, p Page) ([]domain.Action, int, error)
	// CountActions counts matching actions per status.
	CountActions(ctx context.Context, f ActionFilter) (map[domain.ActionStatus]int, error)
}

// Store persists the four entity families.
//
// Insert methods check foreign references and return a NotFoundError naming
// the missing entity. Update methods load the row, hand it to fn under a row
// lock and persist whatever fn leaves behind; if fn fails nothing is written.
// Snapshot runs fn against a single consistent read view.
type Store interface {
	Reader

	Snapshot(ctx context.Context, fn func(Reader) error) error

	InsertUser(ctx context.Context, u domain.User) error
	UpdateUser(ctx context.Context, id string, fn func(*domain.User) error) (domain.User, error)

	InsertZone(ctx context.Context, z domain.Zone) error
	UpdateZone(ctx context.Context, id string, fn func(*domain.Zone) error) (domain.Zone, error)

	InsertSensor(ctx context.Context, s domain.Sensor) error
	UpdateSensor(ctx context.Context, id string, fn func(*domain.Sensor) error) (domain.Sensor, error)

	InsertAction(ctx context.Context, a domain.Action) error
	UpdateAction(ctx context.Context, id string, fn func(*domain.Action) error) (domain.Action, error)
}
