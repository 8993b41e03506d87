// Package dashboard derives read-only aggregates over zones, sensors and
// actions for the monitoring dashboards.
package dashboard

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ecowatch.org/internal/access"
	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/monitor"
	"ecowatch.org/internal/obs"
)

// ActionMetrics counts actions by status.
type ActionMetrics struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
	Cancelled  int `json:"cancelled"`
}

// ZoneSnapshot is the current state of one zone: the newest reading per
// sensor type across its active sensors and the number of open actions.
type ZoneSnapshot struct {
	Zone                 domain.Zone                          `json:"zone"`
	LatestReadingsByType map[domain.SensorType]domain.Reading `json:"latest_readings_by_type"`
	OpenActionCount      int                                  `json:"open_action_count"`
}

type Service struct {
	store  monitor.Store
	tracer trace.Tracer
}

func New(store monitor.Store) *Service {
	return &Service{store: store, tracer: obs.Tracer()}
}

// ActionMetrics summarizes the actions matching f.
func (s *Service) ActionMetrics(ctx context.Context, actor access.Actor, f monitor.ActionFilter) (_ ActionMetrics, err error) {
	ctx, span := s.start(ctx, "ActionMetrics", actor)
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntityAction); err != nil {
		return ActionMetrics{}, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return ActionMetrics{}, domain.Invalid("status", "unknown action status")
	}
	var out ActionMetrics
	err = s.store.Snapshot(ctx, func(r monitor.Reader) error {
		counts, err := r.CountActions(ctx, f)
		if err != nil {
			return err
		}
		out = metricsFrom(counts)
		return nil
	})
	return out, err
}

// ZoneSnapshot reports the current state of a single zone.
func (s *Service) ZoneSnapshot(ctx context.Context, actor access.Actor, zoneID string) (_ ZoneSnapshot, err error) {
	ctx, span := s.start(ctx, "ZoneSnapshot", actor)
	span.SetAttributes(attribute.String("zone.id", zoneID))
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntityZone); err != nil {
		return ZoneSnapshot{}, err
	}
	var out ZoneSnapshot
	err = s.store.Snapshot(ctx, func(r monitor.Reader) error {
		z, err := r.GetZone(ctx, zoneID)
		if err != nil {
			return err
		}
		out, err = snapshotOf(ctx, r, z)
		return err
	})
	return out, err
}

// ZoneMetrics reports a snapshot for every zone that is not archived, in
// zone creation order.
func (s *Service) ZoneMetrics(ctx context.Context, actor access.Actor) (_ []ZoneSnapshot, err error) {
	ctx, span := s.start(ctx, "ZoneMetrics", actor)
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntityZone); err != nil {
		return nil, err
	}
	out := []ZoneSnapshot{}
	err = s.store.Snapshot(ctx, func(r monitor.Reader) error {
		zones, err := allZones(ctx, r)
		if err != nil {
			return err
		}
		for _, z := range zones {
			snap, err := snapshotOf(ctx, r, z)
			if err != nil {
				return err
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("zones", len(out)))
	return out, nil
}

func allZones(ctx context.Context, r monitor.Reader) ([]domain.Zone, error) {
	var zones []domain.Zone
	for page := 1; ; page++ {
		items, total, err := r.ListZones(ctx, monitor.ZoneFilter{}, monitor.Page{Page: page, PageSize: monitor.MaxPageSize})
		if err != nil {
			return nil, err
		}
		zones = append(zones, items...)
		if len(items) == 0 || len(zones) >= total {
			return zones, nil
		}
	}
}

func snapshotOf(ctx context.Context, r monitor.Reader, z domain.Zone) (ZoneSnapshot, error) {
	sensors, err := r.SensorsInZone(ctx, z.ID, true)
	if err != nil {
		return ZoneSnapshot{}, err
	}
	counts, err := r.CountActions(ctx, monitor.ActionFilter{ZoneID: z.ID})
	if err != nil {
		return ZoneSnapshot{}, err
	}
	return ZoneSnapshot{
		Zone:                 z,
		LatestReadingsByType: LatestByType(sensors),
		OpenActionCount:      counts[domain.StatusPending] + counts[domain.StatusInProgress],
	}, nil
}

// LatestByType picks, per sensor type, the last reading with the greatest
// timestamp. Inactive sensors and sensors without readings are skipped.
// Equal timestamps resolve to the sensor with the lower id.
func LatestByType(sensors []domain.Sensor) map[domain.SensorType]domain.Reading {
	type pick struct {
		sensorID string
		reading  domain.Reading
	}
	best := make(map[domain.SensorType]pick)
	for _, s := range sensors {
		if !s.IsActive || s.LastReading == nil {
			continue
		}
		cur, ok := best[s.Type]
		rd := *s.LastReading
		switch {
		case !ok,
			rd.Timestamp.After(cur.reading.Timestamp),
			rd.Timestamp.Equal(cur.reading.Timestamp) && s.ID < cur.sensorID:
			best[s.Type] = pick{sensorID: s.ID, reading: rd}
		}
	}
	out := make(map[domain.SensorType]domain.Reading, len(best))
	for t, p := range best {
		out[t] = p.reading
	}
	return out
}

func metricsFrom(counts map[domain.ActionStatus]int) ActionMetrics {
	m := ActionMetrics{
		Completed:  counts[domain.StatusCompleted],
		InProgress: counts[domain.StatusInProgress],
		Pending:    counts[domain.StatusPending],
		Cancelled:  counts[domain.StatusCancelled],
	}
	for _, n := range counts {
		m.Total += n
	}
	return m
}

func canRead(actor access.Actor, entity access.Entity) error {
	if !access.Authorize(actor, access.OpRead, access.Target{Entity: entity}) {
		obs.AccessDenials.WithLabelValues(string(entity), string(access.OpRead)).Inc()
		return fmt.Errorf("%w: read %s", domain.ErrForbidden, entity)
	}
	return nil
}

func (s *Service) start(ctx context.Context, op string, actor access.Actor) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "dashboard."+op, trace.WithAttributes(
		attribute.String("actor.id", actor.UserID),
		attribute.String("actor.role", string(actor.Role)),
	))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
