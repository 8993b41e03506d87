package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ecowatch.org/internal/access"
	"ecowatch.org/internal/audit"
	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/obs"
)

// ReadingArchive keeps the full history of sensor readings.
type ReadingArchive interface {
	AppendReading(ctx context.Context, sensor domain.Sensor, r domain.Reading) error
}

// ImageStore persists image payloads and returns the object key.
type ImageStore interface {
	PutImage(ctx context.Context, sensorID string, ts time.Time, data []byte, contentType string) (string, error)
}

// ReadingPublisher fans accepted readings out to live subscribers.
type ReadingPublisher interface {
	PublishReading(sensor domain.Sensor, r domain.Reading)
}

// Service is the role-aware repository over users, zones, sensors and
// actions. Every write is authorized, validated and persisted as one unit.
type Service struct {
	store     Store
	now       func() time.Time
	archive   ReadingArchive
	images    ImageStore
	publisher ReadingPublisher
	tracer    trace.Tracer
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithReadingArchive(a ReadingArchive) Option {
	return func(s *Service) { s.archive = a }
}

func WithImageStore(i ImageStore) Option {
	return func(s *Service) { s.images = i }
}

func WithPublisher(p ReadingPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = obs.Tracer()
	}
	return s
}

// Store exposes the underlying store for read-only collaborators.
func (s *Service) Store() Store { return s.store }

// timestamp returns the service clock in UTC at the precision the
// Postgres store keeps.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) start(ctx context.Context, op string, actor access.Actor) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "monitor."+op, trace.WithAttributes(
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

func forbidden(actor access.Actor, op access.Operation, entity access.Entity) error {
	obs.AccessDenials.WithLabelValues(string(entity), string(op)).Inc()
	return fmt.Errorf("%w: %s may not %s %s", domain.ErrForbidden, roleOf(actor), op, entity)
}

func roleOf(a access.Actor) string {
	if a.Role == "" {
		return "anonymous"
	}
	return string(a.Role)
}

func authorize(actor access.Actor, op access.Operation, target access.Target) error {
	if !access.Authorize(actor, op, target) {
		return forbidden(actor, op, target.Entity)
	}
	return nil
}

// precheckWrite refuses callers whose role can never write entity, before
// any lookup, so a refusal does not reveal whether the target exists.
func precheckWrite(actor access.Actor, op access.Operation, entity access.Entity) error {
	if !actor.Valid() || !access.CanEverWrite(actor.Role, entity) {
		return forbidden(actor, op, entity)
	}
	return nil
}

func canRead(actor access.Actor, entity access.Entity) error {
	return authorize(actor, access.OpRead, access.Target{Entity: entity})
}

// hideMissing turns a missing target row into Forbidden for roles whose
// write access depends on the row.
func hideMissing(actor access.Actor, op access.Operation, entity access.Entity, err error) error {
	var nf *domain.NotFoundError
	if access.Conditional(actor.Role, entity) && errors.As(err, &nf) && nf.Entity == string(entity) {
		return forbidden(actor, op, entity)
	}
	return err
}

func auditEvent(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Logger().WarnContext(ctx, "audit log failed", "event", event, "error", err)
	}
}

// Paged is one page of a list together with the total number of matches.
type Paged[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func paged[T any](items []T, total int, p Page) Paged[T] {
	if items == nil {
		items = []T{}
	}
	return Paged[T]{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize}
}
