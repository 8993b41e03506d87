package monitor

import (
	"context"
	"strings"

	"ecowatch.org/internal/access"
	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/ids"
)

func (s *Service) CreateZone(ctx context.Context, actor access.Actor, d domain.ZoneDraft) (z domain.Zone, err error) {
	ctx, span := s.start(ctx, "CreateZone", actor)
	defer func() { finish(span, err) }()

	if err := precheckWrite(actor, access.OpCreate, access.EntityZone); err != nil {
		return domain.Zone{}, err
	}
	if err := authorize(actor, access.OpCreate, access.Target{Entity: access.EntityZone, CreatorID: actor.UserID}); err != nil {
		return domain.Zone{}, err
	}
	now := s.timestamp()
	z = domain.Zone{
		ID:          ids.New(),
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Location:    d.Location,
		FocusPoint:  d.FocusPoint,
		Metadata:    d.Metadata.Clone(),
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := domain.Check(domain.ValidateZone(z)); err != nil {
		return domain.Zone{}, err
	}
	if err := s.store.InsertZone(ctx, z); err != nil {
		return domain.Zone{}, err
	}
	return z, nil
}

func (s *Service) GetZone(ctx context.Context, actor access.Actor, id string) (z domain.Zone, err error) {
	ctx, span := s.start(ctx, "GetZone", actor)
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntityZone); err != nil {
		return domain.Zone{}, err
	}
	return s.store.GetZone(ctx, id)
}

func (s *Service) ListZones(ctx context.Context, actor access.Actor, f ZoneFilter, p Page) (out Paged[domain.Zone], err error) {
	ctx, span := s.start(ctx, "ListZones", actor)
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntityZone); err != nil {
		return out, err
	}
	vs := violationsOf(p.Validate())
	if f.BBox != nil {
		vs = append(vs, violationsOf(f.BBox.Validate())...)
	}
	if err := domain.Check(vs); err != nil {
		return out, err
	}
	items, total, err := s.store.ListZones(ctx, f, p)
	if err != nil {
		return out, err
	}
	return paged(items, total, p), nil
}

// UpdateZone applies p to a live zone. Archived zones are read-only.
func (s *Service) UpdateZone(ctx context.Context, actor access.Actor, id string, p domain.ZonePatch) (z domain.Zone, err error) {
	ctx, span := s.start(ctx, "UpdateZone", actor)
	defer func() { finish(span, err) }()

	if err := precheckWrite(actor, access.OpUpdate, access.EntityZone); err != nil {
		return domain.Zone{}, err
	}
	return s.store.UpdateZone(ctx, id, func(cur *domain.Zone) error {
		if err := authorize(actor, access.OpUpdate, access.Target{Entity: access.EntityZone, CreatorID: cur.CreatedBy}); err != nil {
			return err
		}
		if cur.Archived() {
			return domain.Invalid("archived_at", "zone is archived")
		}
		p.Apply(cur)
		cur.Name = strings.TrimSpace(cur.Name)
		if err := domain.Check(domain.ValidateZone(*cur)); err != nil {
			return err
		}
		cur.UpdatedAt = s.timestamp()
		return nil
	})
}

// ArchiveZone soft-archives a zone. Archiving twice keeps the first
// archival time.
func (s *Service) ArchiveZone(ctx context.Context, actor access.Actor, id string) (z domain.Zone, err error) {
	ctx, span := s.start(ctx, "ArchiveZone", actor)
	defer func() { finish(span, err) }()

	if err := precheckWrite(actor, access.OpUpdate, access.EntityZone); err != nil {
		return domain.Zone{}, err
	}
	archived := false
	z, err = s.store.UpdateZone(ctx, id, func(cur *domain.Zone) error {
		if err := authorize(actor, access.OpUpdate, access.Target{Entity: access.EntityZone, CreatorID: cur.CreatedBy}); err != nil {
			return err
		}
		if cur.Archived() {
			return nil
		}
		now := s.timestamp()
		cur.ArchivedAt = &now
		cur.UpdatedAt = now
		archived = true
		return nil
	})
	if err != nil {
		return domain.Zone{}, err
	}
	if archived {
		auditEvent(ctx, "zone.archived", map[string]any{"zone_id": z.ID, "by": actor.UserID})
	}
	return z, nil
}

// liveZone loads the zone a new sensor or action will reference.
func (s *Service) liveZone(ctx context.Context, zoneID string) error {
	if strings.TrimSpace(zoneID) == "" {
		return domain.Invalid("zone_id", "is required")
	}
	z, err := s.store.GetZone(ctx, zoneID)
	if err != nil {
		return err
	}
	if z.Archived() {
		return domain.Invalid("zone_id", "zone is archived")
	}
	return nil
}
