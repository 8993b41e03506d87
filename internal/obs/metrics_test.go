package obs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/metrics":                   "/metrics",
		"/v1/zones/abc":              "/v1/zones/:id",
		"/v1/zones/abc/snapshot":     "/v1/zones/:id/snapshot",
		"/v1/zones/abc/archive":      "/v1/zones/:id/archive",
		"/v1/zones/metrics":          "/v1/zones/metrics",
		"/v1/sensors/s1/readings":    "/v1/sensors/:id/readings",
		"/v1/sensors/s1/extra":       "/v1/sensors/s1/extra",
		"/v1/actions?status=pending": "/v1/actions",
		"/v1/actions/metrics":        "/v1/actions/metrics",
		"/v1/users/u1":               "/v1/users/:id",
		"/v1/stream/readings":        "/v1/stream/readings",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentExposesCanonicalLabels(t *testing.T) {
	Init()
	Init()
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/zones/z1", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `http_requests_total{method="GET",path="/v1/zones/:id",status="418"}`
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("metrics output missing %s", want)
	}
}
