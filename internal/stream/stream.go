// Package stream fans accepted sensor readings out to live subscribers.
package stream

import (
	"context"
	"sync"
	"time"

	"ecowatch.org/internal/domain"
)

// ReadingEvent is one accepted reading as seen by live dashboards.
type ReadingEvent struct {
	SensorID   string            `json:"sensor_id"`
	ZoneID     string            `json:"zone_id"`
	SensorType domain.SensorType `json:"sensor_type"`
	Value      float64           `json:"value"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   domain.Metadata   `json:"metadata,omitempty"`
}

// Stream fans reading events out to all active subscribers (SSE clients).
type Stream struct {
	mu     sync.RWMutex
	subs   map[int]subscriber
	next   int
	buffer int
}

type subscriber struct {
	ch     chan ReadingEvent
	zoneID string
}

// New returns an empty stream whose subscribers buffer up to 16 events.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber), buffer: 16}
}

// Subscribe registers a subscriber and returns a channel that receives
// events for zoneID, or for every zone when zoneID is empty. The channel is
// closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, zoneID string) <-chan ReadingEvent {
	ch := make(chan ReadingEvent, s.buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, zoneID: zoneID}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Subscribers reports how many subscribers are attached.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish fans evt out to matching subscribers.
func (s *Stream) Publish(evt ReadingEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.zoneID != "" && sub.zoneID != evt.ZoneID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// slow subscriber; drop
		}
	}
}

// PublishReading adapts the stream to the reading publisher port.
func (s *Stream) PublishReading(sensor domain.Sensor, r domain.Reading) {
	s.Publish(ReadingEvent{
		SensorID:   sensor.ID,
		ZoneID:     sensor.ZoneID,
		SensorType: sensor.Type,
		Value:      r.Value,
		Timestamp:  r.Timestamp,
		Metadata:   r.Metadata,
	})
}
