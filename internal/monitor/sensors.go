package monitor

import (
	"context"
	"strings"
	"time"

	"ecowatch.org/internal/access"
	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/ids"
	"ecowatch.org/internal/obs"
)

// ImageKeyMetadata is the reading metadata key holding the stored image.
const ImageKeyMetadata = "image_key"

func (s *Service) CreateSensor(ctx context.Context, actor access.Actor, d domain.SensorDraft) (sn domain.Sensor, err error) {
	ctx, span := s.start(ctx, "CreateSensor", actor)
	defer func() { finish(span, err) }()

	if err := precheckWrite(actor, access.OpCreate, access.EntitySensor); err != nil {
		return domain.Sensor{}, err
	}
	if err := authorize(actor, access.OpCreate, access.Target{Entity: access.EntitySensor, CreatorID: actor.UserID}); err != nil {
		return domain.Sensor{}, err
	}
	active := true
	if d.IsActive != nil {
		active = *d.IsActive
	}
	now := s.timestamp()
	cfg := d.Configuration
	cfg.Metadata = cfg.Metadata.Clone()
	sn = domain.Sensor{
		ID:            ids.New(),
		ZoneID:        strings.TrimSpace(d.ZoneID),
		Name:          strings.TrimSpace(d.Name),
		Type:          d.Type,
		Configuration: cfg,
		Location:      d.Location,
		IsActive:      active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := domain.Check(domain.ValidateSensor(sn)); err != nil {
		return domain.Sensor{}, err
	}
	if err := s.liveZone(ctx, sn.ZoneID); err != nil {
		return domain.Sensor{}, err
	}
	if err := s.store.InsertSensor(ctx, sn); err != nil {
		return domain.Sensor{}, err
	}
	return sn, nil
}

func (s *Service) GetSensor(ctx context.Context, actor access.Actor, id string) (sn domain.Sensor, err error) {
	ctx, span := s.start(ctx, "GetSensor", actor)
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntitySensor); err != nil {
		return domain.Sensor{}, err
	}
	return s.store.GetSensor(ctx, id)
}

func (s *Service) ListSensors(ctx context.Context, actor access.Actor, f SensorFilter, p Page) (out Paged[domain.Sensor], err error) {
	ctx, span := s.start(ctx, "ListSensors", actor)
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntitySensor); err != nil {
		return out, err
	}
	vs := violationsOf(p.Validate())
	if f.Type != "" && !f.Type.Valid() {
		vs = append(vs, domain.Violation{Field: "type", Message: "unknown sensor type"})
	}
	if err := domain.Check(vs); err != nil {
		return out, err
	}
	items, total, err := s.store.ListSensors(ctx, f, p)
	if err != nil {
		return out, err
	}
	return paged(items, total, p), nil
}

// UpdateSensor applies p, including deactivation via IsActive.
func (s *Service) UpdateSensor(ctx context.Context, actor access.Actor, id string, p domain.SensorPatch) (sn domain.Sensor, err error) {
	ctx, span := s.start(ctx, "UpdateSensor", actor)
	defer func() { finish(span, err) }()

	if err := precheckWrite(actor, access.OpUpdate, access.EntitySensor); err != nil {
		return domain.Sensor{}, err
	}
	return s.store.UpdateSensor(ctx, id, func(cur *domain.Sensor) error {
		if err := authorize(actor, access.OpUpdate, access.Target{Entity: access.EntitySensor}); err != nil {
			return err
		}
		p.Apply(cur)
		cur.Name = strings.TrimSpace(cur.Name)
		if err := domain.Check(domain.ValidateSensor(*cur)); err != nil {
			return err
		}
		cur.UpdatedAt = s.timestamp()
		return nil
	})
}

// ReadingInput is one measurement reported by a device. Image carries the
// raw payload of an image sensor.
type ReadingInput struct {
	Value       float64         `json:"value"`
	Timestamp   time.Time       `json:"timestamp"`
	Metadata    domain.Metadata `json:"metadata,omitempty"`
	Image       []byte          `json:"image,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
}

// RecordReading accepts a reading for an active sensor. The reading becomes
// the sensor's last reading unless a newer one is already stored; either
// way it is appended to the archive and published to live subscribers.
func (s *Service) RecordReading(ctx context.Context, actor access.Actor, sensorID string, in ReadingInput) (sn domain.Sensor, err error) {
	ctx, span := s.start(ctx, "RecordReading", actor)
	defer func() { finish(span, err) }()

	if err := precheckWrite(actor, access.OpUpdate, access.EntitySensor); err != nil {
		return domain.Sensor{}, err
	}
	r := domain.Reading{
		Value:     in.Value,
		Timestamp: in.Timestamp,
		Metadata:  in.Metadata.Clone(),
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.timestamp()
	}
	r.Timestamp = r.Timestamp.UTC().Truncate(time.Microsecond)

	if len(in.Image) > 0 {
		key, err := s.storeImage(ctx, actor, sensorID, r, in)
		if err != nil {
			return domain.Sensor{}, err
		}
		if r.Metadata == nil {
			r.Metadata = domain.Metadata{}
		}
		r.Metadata[ImageKeyMetadata] = domain.String(key)
	}

	sn, err = s.store.UpdateSensor(ctx, sensorID, func(cur *domain.Sensor) error {
		if err := authorize(actor, access.OpUpdate, access.Target{Entity: access.EntitySensor}); err != nil {
			return err
		}
		if !cur.IsActive {
			return domain.Invalid("is_active", "sensor is inactive")
		}
		if err := domain.Check(domain.ValidateReading(*cur, r)); err != nil {
			return err
		}
		if cur.LastReading != nil && r.Timestamp.Before(cur.LastReading.Timestamp) {
			return nil
		}
		latest := r
		latest.Metadata = r.Metadata.Clone()
		cur.LastReading = &latest
		cur.UpdatedAt = s.timestamp()
		return nil
	})
	if err != nil {
		return domain.Sensor{}, err
	}

	obs.ReadingsIngested.WithLabelValues(string(sn.Type)).Inc()
	if s.archive != nil {
		if err := s.archive.AppendReading(ctx, sn, r); err != nil {
			obs.ReadingSinkFailures.WithLabelValues("archive").Inc()
			obs.Logger().WarnContext(ctx, "reading archive append failed", "sensor_id", sn.ID, "error", err)
		}
	}
	if s.publisher != nil {
		s.publisher.PublishReading(sn, r)
	}
	return sn, nil
}

// storeImage uploads the payload only once the reading would be accepted, so
// a rejected reading leaves nothing behind in the bucket.
func (s *Service) storeImage(ctx context.Context, actor access.Actor, sensorID string, r domain.Reading, in ReadingInput) (string, error) {
	cur, err := s.store.GetSensor(ctx, sensorID)
	if err != nil {
		return "", err
	}
	if err := authorize(actor, access.OpUpdate, access.Target{Entity: access.EntitySensor}); err != nil {
		return "", err
	}
	if cur.Type != domain.SensorImage {
		return "", domain.Invalid("image", "only image sensors accept image payloads")
	}
	if !cur.IsActive {
		return "", domain.Invalid("is_active", "sensor is inactive")
	}
	if err := domain.Check(domain.ValidateReading(cur, r)); err != nil {
		return "", err
	}
	if s.images == nil {
		return "", domain.Invalid("image", "image storage is not configured")
	}
	return s.images.PutImage(ctx, sensorID, r.Timestamp, in.Image, in.ContentType)
}
