package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"ecowatch.org/internal/auth"
	"ecowatch.org/internal/dashboard"
	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/monitor"
)

// bootstrapAdminID is the admin inserted by the bootstrap seed.
const bootstrapAdminID = "01J0000000000000000000ADMN"

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) call(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	base := os.Getenv("ECOWATCH_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	adminID := os.Getenv("ECOWATCH_SMOKE_ADMIN_ID")
	if adminID == "" {
		adminID = bootstrapAdminID
	}
	token, err := auth.GenerateToken(adminID, domain.RoleAdmin, time.Minute)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	c := &client{base: base, token: token, http: &http.Client{Timeout: 5 * time.Second}}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var zone domain.Zone
	if err := c.call(ctx, http.MethodPost, "/v1/zones", domain.ZoneDraft{
		Name:     fmt.Sprintf("smoke-%d", time.Now().UnixNano()),
		Location: domain.Location{Latitude: 10, Longitude: 20},
	}, &zone); err != nil {
		log.Fatalf("create zone: %v", err)
	}

	var sensor domain.Sensor
	if err := c.call(ctx, http.MethodPost, "/v1/sensors", domain.SensorDraft{
		ZoneID: zone.ID, Name: "smoke probe", Type: domain.SensorTemperature,
	}, &sensor); err != nil {
		log.Fatalf("create sensor: %v", err)
	}

	t1 := time.Now().UTC().Add(time.Second)
	for i, v := range []float64{22.5, 23.0} {
		in := monitor.ReadingInput{Value: v, Timestamp: t1.Add(time.Duration(i) * time.Second)}
		if err := c.call(ctx, http.MethodPost, "/v1/sensors/"+sensor.ID+"/readings", in, nil); err != nil {
			log.Fatalf("record reading: %v", err)
		}
	}

	var action domain.Action
	if err := c.call(ctx, http.MethodPost, "/v1/actions", domain.ActionDraft{ZoneID: zone.ID, Title: "smoke cleanup"}, &action); err != nil {
		log.Fatalf("create action: %v", err)
	}
	inProgress := domain.StatusInProgress
	if err := c.call(ctx, http.MethodPatch, "/v1/actions/"+action.ID, domain.ActionPatch{Status: &inProgress}, &action); err != nil {
		log.Fatalf("start action: %v", err)
	}

	var snap dashboard.ZoneSnapshot
	if err := c.call(ctx, http.MethodGet, "/v1/zones/"+zone.ID+"/snapshot", nil, &snap); err != nil {
		log.Fatalf("snapshot: %v", err)
	}
	if got := snap.LatestReadingsByType[domain.SensorTemperature].Value; got != 23.0 {
		log.Fatalf("latest temperature = %v, want 23", got)
	}
	if snap.OpenActionCount != 1 {
		log.Fatalf("open actions = %d, want 1", snap.OpenActionCount)
	}

	if err := c.call(ctx, http.MethodPost, "/v1/zones/"+zone.ID+"/archive", nil, nil); err != nil {
		log.Fatalf("archive: %v", err)
	}

	fmt.Printf("smoke test passed: zone=%s sensor=%s action=%s\n", zone.ID, sensor.ID, action.ID)
}
