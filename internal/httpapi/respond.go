package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"ecowatch.org/internal/access"
	"ecowatch.org/internal/auth"
	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/monitor"
	"ecowatch.org/internal/obs"
)

// retryAfterSeconds is advertised when the store is unavailable.
const retryAfterSeconds = "5"

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorBody(w, r, code, map[string]any{"error": msg})
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, code int, payload map[string]any) {
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *domain.ValidationError
		nf   *domain.NotFoundError
		te   *domain.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		writeErrorBody(w, r, http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"violations": verr.Violations,
		})
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.As(err, &nf):
		writeError(w, r, http.StatusNotFound, nf.Error())
	case errors.As(err, &te):
		writeErrorBody(w, r, http.StatusConflict, map[string]any{
			"error": te.Error(),
			"from":  te.From,
			"to":    te.To,
		})
	case errors.Is(err, domain.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict")
	case errors.Is(err, domain.ErrStoreUnavailable):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, r, http.StatusServiceUnavailable, "store unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, "request cancelled")
	default:
		obs.Logger().ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeBody decodes the request body or answers 400 and reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func actorOf(r *http.Request) access.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}

// parsePage reads page and page_size. Range checks are left to the
// service so they surface as validation violations.
func parsePage(r *http.Request) (monitor.Page, error) {
	q := r.URL.Query()
	p := monitor.Page{Page: 1, PageSize: monitor.DefaultPageSize}
	var err error
	if p.Page, err = intParam(q.Get("page"), p.Page); err != nil {
		return p, domain.Invalid("page", "must be an integer")
	}
	if p.PageSize, err = intParam(q.Get("page_size"), p.PageSize); err != nil {
		return p, domain.Invalid("page_size", "must be an integer")
	}
	return p, nil
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func floatParam(raw, field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, domain.Invalid(field, "must be a number")
	}
	return v, nil
}

func boolParam(raw, field string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, domain.Invalid(field, "must be true or false")
	}
	return &v, nil
}
