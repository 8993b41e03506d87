package domain

import "time"

// Drafts carry caller-supplied fields for creation; ids, ownership and
// timestamps are assigned by the repository layer. Patches use nil to mean
// "leave unchanged".

type UserDraft struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	Organization string `json:"organization,omitempty"`
	ExternalID   string `json:"external_id,omitempty"`
}

type UserPatch struct {
	Name         *string `json:"name,omitempty"`
	Role         *Role   `json:"role,omitempty"`
	Organization *string `json:"organization,omitempty"`
	ExternalID   *string `json:"external_id,omitempty"`
}

// Apply writes p onto u. ExternalID may be linked once but never changed.
func (p UserPatch) Apply(u *User) error {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Organization != nil {
		u.Organization = *p.Organization
	}
	if p.ExternalID != nil && *p.ExternalID != u.ExternalID {
		if u.ExternalID != "" {
			return Invalid("external_id", "is immutable once linked")
		}
		u.ExternalID = *p.ExternalID
	}
	return nil
}

type ZoneDraft struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Location    Location `json:"location"`
	FocusPoint  string   `json:"focus_point"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

type ZonePatch struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Location    *Location `json:"location,omitempty"`
	FocusPoint  *string   `json:"focus_point,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
}

func (p ZonePatch) Apply(z *Zone) {
	if p.Name != nil {
		z.Name = *p.Name
	}
	if p.Description != nil {
		z.Description = *p.Description
	}
	if p.Location != nil {
		z.Location = *p.Location
	}
	if p.FocusPoint != nil {
		z.FocusPoint = *p.FocusPoint
	}
	if p.Metadata != nil {
		z.Metadata = p.Metadata.Clone()
	}
}

type SensorDraft struct {
	ZoneID        string       `json:"zone_id"`
	Name          string       `json:"name"`
	Type          SensorType   `json:"type"`
	Configuration SensorConfig `json:"configuration"`
	Location      Location     `json:"location"`
	IsActive      *bool        `json:"is_active,omitempty"`
}

type SensorPatch struct {
	Name          *string       `json:"name,omitempty"`
	Configuration *SensorConfig `json:"configuration,omitempty"`
	Location      *Location     `json:"location,omitempty"`
	IsActive      *bool         `json:"is_active,omitempty"`
}

func (p SensorPatch) Apply(s *Sensor) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Configuration != nil {
		cfg := *p.Configuration
		cfg.Metadata = cfg.Metadata.Clone()
		s.Configuration = cfg
	}
	if p.Location != nil {
		s.Location = *p.Location
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
}

type ActionDraft struct {
	ZoneID        string        `json:"zone_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	ImpactMetrics ImpactMetrics `json:"impact_metrics"`
	AssignedTo    string        `json:"assigned_to,omitempty"`
	StartDate     *time.Time    `json:"start_date,omitempty"`
	EndDate       *time.Time    `json:"end_date,omitempty"`
}

type ActionPatch struct {
	Title        *string            `json:"title,omitempty"`
	Description  *string            `json:"description,omitempty"`
	Status       *ActionStatus      `json:"status,omitempty"`
	ImpactBefore map[string]float64 `json:"impact_before,omitempty"`
	ImpactAfter  map[string]float64 `json:"impact_after,omitempty"`
	AssignedTo   *string            `json:"assigned_to,omitempty"`
	StartDate    *time.Time         `json:"start_date,omitempty"`
	EndDate      *time.Time         `json:"end_date,omitempty"`
}

// Apply writes p onto a, enforcing the status state machine. A patch that
// repeats the current status is not a transition.
func (p ActionPatch) Apply(a *Action) error {
	if p.Status != nil && *p.Status != a.Status {
		if err := Transition(a.Status, *p.Status); err != nil {
			return err
		}
		a.Status = *p.Status
	}
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.ImpactBefore != nil {
		a.ImpactMetrics.Before = cloneFloats(p.ImpactBefore)
	}
	if p.ImpactAfter != nil {
		a.ImpactMetrics.After = cloneFloats(p.ImpactAfter)
	}
	if p.AssignedTo != nil {
		a.AssignedTo = *p.AssignedTo
	}
	if p.StartDate != nil {
		a.StartDate = timePtr(*p.StartDate)
	}
	if p.EndDate != nil {
		a.EndDate = timePtr(*p.EndDate)
	}
	return nil
}

func cloneFloats(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}

// CloneAction deep-copies the maps and pointers held by a.
func CloneAction(a Action) Action {
	a.ImpactMetrics.Before = cloneFloats(a.ImpactMetrics.Before)
	a.ImpactMetrics.After = cloneFloats(a.ImpactMetrics.After)
	if a.StartDate != nil {
		a.StartDate = timePtr(*a.StartDate)
	}
	if a.EndDate != nil {
		a.EndDate = timePtr(*a.EndDate)
	}
	return a
}

// CloneSensor deep-copies the maps and pointers held by s.
func CloneSensor(s Sensor) Sensor {
	s.Configuration.Metadata = s.Configuration.Metadata.Clone()
	if s.LastReading != nil {
		r := *s.LastReading
		r.Metadata = r.Metadata.Clone()
		s.LastReading = &r
	}
	return s
}

// CloneZone deep-copies the maps and pointers held by z.
func CloneZone(z Zone) Zone {
	z.Metadata = z.Metadata.Clone()
	if z.ArchivedAt != nil {
		z.ArchivedAt = timePtr(*z.ArchivedAt)
	}
	return z
}
