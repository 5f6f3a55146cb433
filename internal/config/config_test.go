package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PIN_SECRET", "test-secret")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if !cfg.RequirePassengerToStart {
		t.Error("expected require-passenger-to-start to default to true")
	}
	if cfg.OutboxInterval != 2*time.Second {
		t.Errorf("expected outbox interval 2s, got %s", cfg.OutboxInterval)
	}

	p, err := cfg.Policy()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.GeofenceRadius != 100 {
		t.Errorf("expected geofence radius 100, got %v", p.GeofenceRadius)
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{
		"--pin-secret", "s",
		"--geofence-radius", "50",
		"--no-require-passenger-to-start",
		"--kafka-brokers", "a:9092,b:9092",
		"--log-level", "debug",
		"--time-zone", "America/Chicago",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RequirePassengerToStart {
		t.Error("expected require-passenger-to-start to be disabled")
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("expected 2 kafka brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.Level())
	}

	p, err := cfg.Policy()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.GeofenceRadius != 50 {
		t.Errorf("expected geofence radius 50, got %v", p.GeofenceRadius)
	}
	if p.Location.String() != "America/Chicago" {
		t.Errorf("expected America/Chicago, got %s", p.Location)
	}
}

func TestPolicyRejectsBadRadius(t *testing.T) {
	cfg := Config{TimeZone: "UTC", GeofenceRadius: 0}
	if _, err := cfg.Policy(); err == nil {
		t.Error("expected error for zero radius")
	}
}
