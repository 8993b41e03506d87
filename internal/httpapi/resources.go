package httpapi

import (
	"net/http"
	"strings"

	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/monitor"
)

// --- users ---

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := monitor.UserFilter{Role: domain.Role(q.Get("role")), Email: q.Get("email")}
	out, err := a.monitor.ListUsers(r.Context(), actorOf(r), f, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var d domain.UserDraft
	if !decodeBody(w, r, &d) {
		return
	}
	u, err := a.monitor.CreateUser(r.Context(), actorOf(r), d)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.monitor.GetUser(r.Context(), actorOf(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var p domain.UserPatch
	if !decodeBody(w, r, &p) {
		return
	}
	u, err := a.monitor.UpdateUser(r.Context(), actorOf(r), r.PathValue("id"), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- zones ---

func (a *API) listZones(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	f, err := zoneFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out, err := a.monitor.ListZones(r.Context(), actorOf(r), f, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// zoneFilter reads name, include_archived and bbox=min_lat,min_lon,max_lat,max_lon.
func zoneFilter(r *http.Request) (monitor.ZoneFilter, error) {
	q := r.URL.Query()
	f := monitor.ZoneFilter{NameContains: q.Get("name")}
	archived, err := boolParam(q.Get("include_archived"), "include_archived")
	if err != nil {
		return f, err
	}
	f.IncludeArchived = archived != nil && *archived
	if raw := strings.TrimSpace(q.Get("bbox")); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) != 4 {
			return f, domain.Invalid("bbox", "must be min_lat,min_lon,max_lat,max_lon")
		}
		var vals [4]float64
		for i, part := range parts {
			if vals[i], err = floatParam(part, "bbox"); err != nil {
				return f, err
			}
		}
		f.BBox = &monitor.BoundingBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	}
	return f, nil
}

func (a *API) createZone(w http.ResponseWriter, r *http.Request) {
	var d domain.ZoneDraft
	if !decodeBody(w, r, &d) {
		return
	}
	z, err := a.monitor.CreateZone(r.Context(), actorOf(r), d)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/zones/"+z.ID)
	writeJSON(w, http.StatusCreated, z)
}

func (a *API) getZone(w http.ResponseWriter, r *http.Request) {
	z, err := a.monitor.GetZone(r.Context(), actorOf(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (a *API) updateZone(w http.ResponseWriter, r *http.Request) {
	var p domain.ZonePatch
	if !decodeBody(w, r, &p) {
		return
	}
	z, err := a.monitor.UpdateZone(r.Context(), actorOf(r), r.PathValue("id"), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (a *API) archiveZone(w http.ResponseWriter, r *http.Request) {
	z, err := a.monitor.ArchiveZone(r.Context(), actorOf(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

// --- sensors ---

func (a *API) listSensors(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := monitor.SensorFilter{ZoneID: q.Get("zone_id"), Type: domain.SensorType(q.Get("type"))}
	if f.IsActive, err = boolParam(q.Get("is_active"), "is_active"); err != nil {
		writeServiceError(w, r, err)
		return
	}
	out, err := a.monitor.ListSensors(r.Context(), actorOf(r), f, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createSensor(w http.ResponseWriter, r *http.Request) {
	var d domain.SensorDraft
	if !decodeBody(w, r, &d) {
		return
	}
	s, err := a.monitor.CreateSensor(r.Context(), actorOf(r), d)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sensors/"+s.ID)
	writeJSON(w, http.StatusCreated, s)
}

func (a *API) getSensor(w http.ResponseWriter, r *http.Request) {
	s, err := a.monitor.GetSensor(r.Context(), actorOf(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) updateSensor(w http.ResponseWriter, r *http.Request) {
	var p domain.SensorPatch
	if !decodeBody(w, r, &p) {
		return
	}
	s, err := a.monitor.UpdateSensor(r.Context(), actorOf(r), r.PathValue("id"), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) recordReading(w http.ResponseWriter, r *http.Request) {
	var in monitor.ReadingInput
	if !decodeBody(w, r, &in) {
		return
	}
	s, err := a.monitor.RecordReading(r.Context(), actorOf(r), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s)
}

// --- actions ---

func (a *API) listActions(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out, err := a.monitor.ListActions(r.Context(), actorOf(r), actionFilter(r), page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func actionFilter(r *http.Request) monitor.ActionFilter {
	q := r.URL.Query()
	return monitor.ActionFilter{
		ZoneID:     q.Get("zone_id"),
		Status:     domain.ActionStatus(q.Get("status")),
		AssignedTo: q.Get("assigned_to"),
	}
}

func (a *API) createAction(w http.ResponseWriter, r *http.Request) {
	var d domain.ActionDraft
	if !decodeBody(w, r, &d) {
		return
	}
	act, err := a.monitor.CreateAction(r.Context(), actorOf(r), d)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/actions/"+act.ID)
	writeJSON(w, http.StatusCreated, act)
}

func (a *API) getAction(w http.ResponseWriter, r *http.Request) {
	act, err := a.monitor.GetAction(r.Context(), actorOf(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (a *API) updateAction(w http.ResponseWriter, r *http.Request) {
	var p domain.ActionPatch
	if !decodeBody(w, r, &p) {
		return
	}
	act, err := a.monitor.UpdateAction(r.Context(), actorOf(r), r.PathValue("id"), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

// --- dashboards ---

func (a *API) actionMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := a.dashboard.ActionMetrics(r.Context(), actorOf(r), actionFilter(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) zoneSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.dashboard.ZoneSnapshot(r.Context(), actorOf(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) zoneMetrics(w http.ResponseWriter, r *http.Request) {
	snaps, err := a.dashboard.ZoneMetrics(r.Context(), actorOf(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": snaps})
}
