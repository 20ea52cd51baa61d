package config

import "testing"

func lookup(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookup(nil))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if cfg.StoreBackend != BackendMemory || cfg.HTTPAddr != ":8080" || cfg.RoomCollection != "rooms" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SessionTTLSec != 6*3600 {
		t.Fatalf("unexpected session ttl: %d", cfg.SessionTTLSec)
	}
}

func TestRedisRequiresURL(t *testing.T) {
	if _, err := FromLookup(lookup(map[string]string{"STORE_BACKEND": "redis"})); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
	cfg, err := FromLookup(lookup(map[string]string{"STORE_BACKEND": " Redis ", "REDIS_URL": "redis://localhost:6379/0"}))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if cfg.StoreBackend != BackendRedis {
		t.Fatalf("backend = %q", cfg.StoreBackend)
	}
}

func TestRESTRequiresIdentifiers(t *testing.T) {
	env := map[string]string{
		"STORE_BACKEND": "rest",
		"REST_ENDPOINT": "https://cloud.example/v1",
		"REST_PROJECT":  "proj",
	}
	if _, err := FromLookup(lookup(env)); err == nil {
		t.Fatalf("expected error without database/collection ids")
	}
	env["REST_DATABASE_ID"] = "db"
	env["REST_COLLECTION_ID"] = "rooms"
	if _, err := FromLookup(lookup(env)); err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
}

func TestUnknownBackend(t *testing.T) {
	if _, err := FromLookup(lookup(map[string]string{"STORE_BACKEND": "firestore"})); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestAllowedOriginsAndTTL(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{
		"ALLOWED_ORIGINS": " https://a.example , ,https://b.example",
		"SESSION_TTL_SEC": "60",
	}))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.SessionTTLSec != 60 {
		t.Fatalf("ttl = %d", cfg.SessionTTLSec)
	}
}
