// internal/sensor/sampler_test.go
package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/serverroom-monitor/internal/models"
)

func TestSampler_ReadOnce(t *testing.T) {
	mock := &MockDHTSensor{temperature: 22.54, humidity: 45.06}
	sampler := NewSampler(mock, 30*time.Second, zerolog.Nop())

	if _, ok := sampler.Latest(); ok {
		t.Fatal("Latest() before any read should report no reading")
	}

	reading, err := sampler.ReadOnce()
	if err != nil {
		t.Fatalf("ReadOnce() failed: %v", err)
	}
	if reading.Temperature != 22.5 {
		t.Errorf("Temperature = %v, want 22.5", reading.Temperature)
	}
	if reading.Humidity != 45.1 {
		t.Errorf("Humidity = %v, want 45.1", reading.Humidity)
	}
	if reading.At.IsZero() {
		t.Error("At should not be zero")
	}

	latest, ok := sampler.Latest()
	if !ok || latest != reading {
		t.Errorf("Latest() = %+v, %v; want %+v, true", latest, ok, reading)
	}
}

func TestSampler_ReadErrorKeepsLatest(t *testing.T) {
	mock := &MockDHTSensor{temperature: 21, humidity: 50}
	sampler := NewSampler(mock, time.Second, zerolog.Nop())

	if _, err := sampler.ReadOnce(); err != nil {
		t.Fatalf("ReadOnce() failed: %v", err)
	}

	mock.mu.Lock()
	mock.err = errors.New("checksum mismatch")
	mock.mu.Unlock()

	if _, err := sampler.ReadOnce(); err == nil {
		t.Fatal("expected read error")
	}
	if sampler.LastError() == nil {
		t.Error("LastError() should report the failed read")
	}
	if latest, ok := sampler.Latest(); !ok || latest.Temperature != 21 {
		t.Errorf("Latest() = %+v, %v; want previous reading", latest, ok)
	}
}

func TestSampler_Start(t *testing.T) {
	mock := &MockDHTSensor{temperature: 22.5, humidity: 45.0}
	sampler := NewSampler(mock, 50*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := sampler.Start(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start() error = %v, want context.DeadlineExceeded", err)
	}

	// One immediate read plus ~5 ticks
	if mock.reads() < 3 {
		t.Errorf("Mock read count = %d, expected at least 3", mock.reads())
	}
	if _, ok := sampler.Latest(); !ok {
		t.Error("expected a latest reading after Start")
	}
}

func TestDraft(t *testing.T) {
	now := time.Date(2024, 5, 17, 8, 5, 0, 0, time.UTC)

	draft := Draft(now, nil)
	if draft.Date != "2024-05-17" || draft.Time != "08:05" {
		t.Errorf("draft date/time = %s %s, want 2024-05-17 08:05", draft.Date, draft.Time)
	}
	if draft.ACStatus != models.ACNormal || draft.UPSStatus != models.UPSNormal {
		t.Errorf("draft statuses = %s/%s, want normal/normal", draft.ACStatus, draft.UPSStatus)
	}
	if draft.FireExtinguisher != models.FireExtinguisherReady {
		t.Errorf("FireExtinguisher = %s, want ready", draft.FireExtinguisher)
	}
	if draft.Temperature != 0 || draft.ID != "" {
		t.Errorf("draft without reading = %+v", draft)
	}
}

func TestSampler_Draft(t *testing.T) {
	mock := &MockDHTSensor{temperature: 23.4, humidity: 52.0}
	sampler := NewSampler(mock, time.Second, zerolog.Nop())
	now := time.Date(2024, 5, 17, 8, 5, 0, 0, time.UTC)

	if d := sampler.Draft(now); d.Temperature != 0 {
		t.Errorf("Draft before read Temperature = %v, want 0", d.Temperature)
	}

	sampler.ReadOnce()
	d := sampler.Draft(now)
	if d.Temperature != 23.4 || d.Humidity != 52.0 {
		t.Errorf("Draft = %.1f/%.1f, want 23.4/52.0", d.Temperature, d.Humidity)
	}

	var nilSampler *Sampler
	if d := nilSampler.Draft(now); d.Date != "2024-05-17" {
		t.Errorf("nil sampler Draft date = %q", d.Date)
	}
}

func TestSampler_Close(t *testing.T) {
	mock := &MockDHTSensor{}
	sampler := NewSampler(mock, time.Second, zerolog.Nop())
	if err := sampler.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if !mock.closed {
		t.Error("sensor was not closed")
	}
}
