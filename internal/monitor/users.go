package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ecowatch.org/internal/access"
	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/ids"
)

// Identity is what an external identity provider vouches for on login.
type Identity struct {
	ExternalID   string `json:"external_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) CreateUser(ctx context.Context, actor access.Actor, d domain.UserDraft) (u domain.User, err error) {
	ctx, span := s.start(ctx, "CreateUser", actor)
	defer func() { finish(span, err) }()

	if err := precheckWrite(actor, access.OpCreate, access.EntityUser); err != nil {
		return domain.User{}, err
	}
	if d.Role == "" {
		d.Role = domain.RolePublic
	}
	now := s.timestamp()
	u = domain.User{
		ID:           ids.New(),
		Email:        normalizeEmail(d.Email),
		Name:         strings.TrimSpace(d.Name),
		Role:         d.Role,
		Organization: strings.TrimSpace(d.Organization),
		ExternalID:   strings.TrimSpace(d.ExternalID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := domain.Check(domain.ValidateUser(u)); err != nil {
		return domain.User{}, err
	}
	if err := s.store.InsertUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.User{}, fmt.Errorf("%w: email or external id already registered", domain.ErrConflict)
		}
		return domain.User{}, err
	}
	auditEvent(ctx, "user.created", map[string]any{"user_id": u.ID, "role": string(u.Role), "by": actor.UserID})
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, actor access.Actor, id string) (u domain.User, err error) {
	ctx, span := s.start(ctx, "GetUser", actor)
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntityUser); err != nil {
		return domain.User{}, err
	}
	return s.store.GetUser(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, actor access.Actor, f UserFilter, p Page) (out Paged[domain.User], err error) {
	ctx, span := s.start(ctx, "ListUsers", actor)
	defer func() { finish(span, err) }()

	if err := canRead(actor, access.EntityUser); err != nil {
		return out, err
	}
	var vs []domain.Violation
	if err := p.Validate(); err != nil {
		vs = append(vs, violationsOf(err)...)
	}
	if f.Role != "" && !f.Role.Valid() {
		vs = append(vs, domain.Violation{Field: "role", Message: "must be one of admin government factory public"})
	}
	if err := domain.Check(vs); err != nil {
		return out, err
	}
	f.Email = normalizeEmail(f.Email)
	items, total, err := s.store.ListUsers(ctx, f, p)
	if err != nil {
		return out, err
	}
	return paged(items, total, p), nil
}

// UpdateUser applies p to the user. Only admins may change users, which
// includes their role.
func (s *Service) UpdateUser(ctx context.Context, actor access.Actor, id string, p domain.UserPatch) (u domain.User, err error) {
	ctx, span := s.start(ctx, "UpdateUser", actor)
	defer func() { finish(span, err) }()

	if err := precheckWrite(actor, access.OpUpdate, access.EntityUser); err != nil {
		return domain.User{}, err
	}
	var prevRole domain.Role
	u, err = s.store.UpdateUser(ctx, id, func(cur *domain.User) error {
		if err := authorize(actor, access.OpUpdate, access.Target{Entity: access.EntityUser, OwnerID: cur.ID}); err != nil {
			return err
		}
		prevRole = cur.Role
		if err := p.Apply(cur); err != nil {
			return err
		}
		cur.Name = strings.TrimSpace(cur.Name)
		if err := domain.Check(domain.ValidateUser(*cur)); err != nil {
			return err
		}
		cur.UpdatedAt = s.timestamp()
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.User{}, fmt.Errorf("%w: external id already linked to another user", domain.ErrConflict)
		}
		return domain.User{}, err
	}
	if prevRole != u.Role {
		auditEvent(ctx, "user.role_changed", map[string]any{"user_id": u.ID, "from": string(prevRole), "to": string(u.Role), "by": actor.UserID})
	}
	return u, nil
}

// ProvisionUser resolves the platform user for an externally authenticated
// identity: by external id, then by email (linking the external id), else a
// new user with the public role. It runs on behalf of the system, not a caller.
func (s *Service) ProvisionUser(ctx context.Context, id Identity) (u domain.User, err error) {
	ctx, span := s.start(ctx, "ProvisionUser", access.Actor{})
	defer func() { finish(span, err) }()

	id.ExternalID = strings.TrimSpace(id.ExternalID)
	id.Email = normalizeEmail(id.Email)
	if id.ExternalID == "" {
		return domain.User{}, domain.Invalid("external_id", "is required")
	}

	u, err = s.resolveIdentity(ctx, id)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return u, err
	}

	now := s.timestamp()
	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = id.Email
	}
	u = domain.User{
		ID:           ids.New(),
		Email:        id.Email,
		Name:         name,
		Role:         domain.RolePublic,
		Organization: strings.TrimSpace(id.Organization),
		ExternalID:   id.ExternalID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := domain.Check(domain.ValidateUser(u)); err != nil {
		return domain.User{}, err
	}
	if err := s.store.InsertUser(ctx, u); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return domain.User{}, err
		}
		// A concurrent login won the insert; use its row.
		return s.resolveIdentity(ctx, id)
	}
	auditEvent(ctx, "user.provisioned", map[string]any{"user_id": u.ID, "external_id": u.ExternalID})
	return u, nil
}

func (s *Service) resolveIdentity(ctx context.Context, id Identity) (domain.User, error) {
	u, err := s.store.FindUserByExternalID(ctx, id.ExternalID)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return u, err
	}
	if id.Email == "" {
		return domain.User{}, err
	}
	byEmail, err := s.store.FindUserByEmail(ctx, id.Email)
	if err != nil {
		return domain.User{}, err
	}
	if byEmail.ExternalID != "" {
		return domain.User{}, fmt.Errorf("%w: email is linked to another identity", domain.ErrConflict)
	}
	return s.store.UpdateUser(ctx, byEmail.ID, func(cur *domain.User) error {
		if cur.ExternalID != "" && cur.ExternalID != id.ExternalID {
			return fmt.Errorf("%w: email is linked to another identity", domain.ErrConflict)
		}
		cur.ExternalID = id.ExternalID
		cur.UpdatedAt = s.timestamp()
		return nil
	})
}

func violationsOf(err error) []domain.Violation {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Violations
	}
	return nil
}
