package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecowatch.org/internal/domain"
)

var sensor = domain.Sensor{ID: "s1", ZoneID: "z1", Type: domain.SensorTemperature}

func TestInfluxAppendReadingWritesLineProtocol(t *testing.T) {
	var body, query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body, query = string(b), r.URL.RawQuery
		assert.Equal(t, "/api/v2/write", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewInflux(srv.URL, "token", "eco", "readings")
	defer a.Close()

	ts := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	err := a.AppendReading(context.Background(), sensor, domain.Reading{
		Value:     22.5,
		Timestamp: ts,
		Metadata:  domain.Metadata{"image_key": domain.String("images/s1/x.jpg")},
	})
	require.NoError(t, err)
	assert.Contains(t, query, "org=eco")
	assert.Contains(t, query, "bucket=readings")
	assert.True(t, strings.HasPrefix(body, "sensor_reading,sensor_id=s1,type=temperature,zone_id=z1 "), body)
	assert.Contains(t, body, "value=22.5")
	assert.Contains(t, body, `image_key="images/s1/x.jpg"`)
}

func TestInfluxAppendReadingFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid","message":"bad point"}`))
	}))
	defer srv.Close()

	a := NewInflux(srv.URL, "token", "eco", "readings")
	defer a.Close()

	err := a.AppendReading(context.Background(), sensor, domain.Reading{Value: 1, Timestamp: time.Now()})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
