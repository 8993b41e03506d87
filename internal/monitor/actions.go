package monitor

import (
	"context"
	"strings"

	"ecowatch.org/internal/access"
	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/ids"
	"ecowatch.org/internal/obs"
)

// CreateAction records a new pending action in a live zone. Factories may
// only create actions; the creator is always the caller.
func (s *Service) CreateAction(ctx context.Context, actor access.Actor, d domain.ActionDraft) (a domain.Action, err error) {
	ctx, span := s.start(ctx, "CreateAction", actor)
	defer func() { finish(span, err) }()

	if err := precheckWrite(actor, access.OpCreate, access.EntityAction); err != nil {
		return domain.Action{}, err
	}
	target := access.Target{Entity: access.EntityAction, OwnerID: d.AssignedTo, CreatorID: actor.UserID}
	if err := authorize(actor, access.OpCreate, target); err != nil {
		return domain.Action{}, err
	}
	now := s.timestamp()
	a = domain.CloneAction(domain.Action{
		ID:            ids.New(),
		ZoneID:        strings.TrimSpace(d.ZoneID),
		Title:         strings.TrimSpace(d.Title),
		Description:   d.Description,
		Status:        domain.StatusPending,
		ImpactMetrics: d.ImpactMetrics,
		AssignedTo:    strings.TrimSpace(d.AssignedTo),
		CreatedBy:     actor.UserID,
		StartDate:     d.StartDate,
		EndDate:       d.EndDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err := domain.Check(domain.ValidateAction(a)); err != nil {
		return domain.Action{}, err
	}
	if err := s.liveZone(ctx, a.ZoneID); err != nil {
		return domain.Action{}, err
	}
	if err := s.store.InsertAction(ctx, a); err != nil {
		return domain.Action{}, err
	}
	return a, nil
}

func (s *Service) GetAction(ctx context.Context, actor access.Actor, id string) (a domain.Action, err error) {
	ctx, span := s.start(ctx, "GetAction", actor)
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntityAction); err != nil {
		return domain.Action{}, err
	}
	return s.store.GetAction(ctx, id)
}

func (s *Service) ListActions(ctx context.Context, actor access.Actor, f ActionFilter, p Page) (out Paged[domain.Action], err error) {
	ctx, span := s.start(ctx, "ListActions", actor)
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntityAction); err != nil {
		return out, err
	}
	vs := violationsOf(p.Validate())
	if f.Status != "" && !f.Status.Valid() {
		vs = append(vs, domain.Violation{Field: "status", Message: "unknown action status"})
	}
	if err := domain.Check(vs); err != nil {
		return out, err
	}
	items, total, err := s.store.ListActions(ctx, f, p)
	if err != nil {
		return out, err
	}
	return paged(items, total, p), nil
}

// UpdateAction applies p under the row lock. The ownership check, the
// status transition and validation all see the locked row, so concurrent
// transitions from the same state cannot both succeed.
func (s *Service) UpdateAction(ctx context.Context, actor access.Actor, id string, p domain.ActionPatch) (a domain.Action, err error) {
	ctx, span := s.start(ctx, "UpdateAction", actor)
	defer func() { finish(span, err) }()

	if err := precheckWrite(actor, access.OpUpdate, access.EntityAction); err != nil {
		return domain.Action{}, err
	}
	var from domain.ActionStatus
	a, err = s.store.UpdateAction(ctx, id, func(cur *domain.Action) error {
		target := access.Target{Entity: access.EntityAction, OwnerID: cur.AssignedTo, CreatorID: cur.CreatedBy}
		if err := authorize(actor, access.OpUpdate, target); err != nil {
			return err
		}
		from = cur.Status
		if err := p.Apply(cur); err != nil {
			return err
		}
		cur.Title = strings.TrimSpace(cur.Title)
		cur.AssignedTo = strings.TrimSpace(cur.AssignedTo)
		if err := domain.Check(domain.ValidateAction(*cur)); err != nil {
			return err
		}
		cur.UpdatedAt = s.timestamp()
		return nil
	})
	if err != nil {
		return domain.Action{}, hideMissing(actor, access.OpUpdate, access.EntityAction, err)
	}
	if from != a.Status {
		obs.ActionTransitions.WithLabelValues(string(from), string(a.Status)).Inc()
		auditEvent(ctx, "action.status_changed", map[string]any{
			"action_id": a.ID,
			"from":      string(from),
			"to":        string(a.Status),
			"by":        actor.UserID,
		})
	}
	return a, nil
}
