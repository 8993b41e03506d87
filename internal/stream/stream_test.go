package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecowatch.org/internal/domain"
)

func receive(t *testing.T, ch <-chan ReadingEvent) ReadingEvent {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return ReadingEvent{}
	}
}

func TestPublishReadingReachesSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	all := s.Subscribe(ctx, "")
	z1 := s.Subscribe(ctx, "z1")
	z2 := s.Subscribe(ctx, "z2")

	ts := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	s.PublishReading(domain.Sensor{ID: "s1", ZoneID: "z1", Type: domain.SensorTemperature}, domain.Reading{Value: 23, Timestamp: ts})

	evt := receive(t, all)
	assert.Equal(t, ReadingEvent{SensorID: "s1", ZoneID: "z1", SensorType: domain.SensorTemperature, Value: 23, Timestamp: ts}, evt)
	assert.Equal(t, "s1", receive(t, z1).SensorID)
	select {
	case evt := <-z2:
		t.Fatalf("unexpected event for other zone: %+v", evt)
	default:
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, "")
	require.Equal(t, 1, s.Subscribers())
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.Eventually(t, func() bool { return s.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx, "")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(ReadingEvent{SensorID: "s1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
