package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendREST   = "rest"
)

type AppConfig struct {
	HTTPAddr string

	StoreBackend   string
	RoomCollection string
	RoomOrigin     string

	RedisURL string

	RESTEndpoint     string
	RESTProject      string
	RESTAPIKey       string
	RESTDatabaseID   string
	RESTCollectionID string

	SessionTTLSec int

	DatabaseURL string
	MsgcatDir   string

	AllowedOrigins []string
}

// Load reads the process environment. A .env file in the working directory, when
// present, is applied first without overriding variables that are already set.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.Getenv)
}

// FromLookup builds the config from an arbitrary getenv-like func.
func FromLookup(getenv func(string) string) (*AppConfig, error) {
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	cfg := &AppConfig{
		HTTPAddr:       ":8080",
		StoreBackend:   BackendMemory,
		RoomCollection: "rooms",
		SessionTTLSec:  6 * 3600,
	}

	if v := get("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.ToLower(get("STORE_BACKEND")); v != "" {
		cfg.StoreBackend = v
	}
	if v := get("ROOM_COLLECTION"); v != "" {
		cfg.RoomCollection = v
	}
	cfg.RoomOrigin = get("ROOM_ORIGIN")

	cfg.RedisURL = get("REDIS_URL")

	cfg.RESTEndpoint = get("REST_ENDPOINT")
	cfg.RESTProject = get("REST_PROJECT")
	cfg.RESTAPIKey = get("REST_API_KEY")
	cfg.RESTDatabaseID = get("REST_DATABASE_ID")
	cfg.RESTCollectionID = get("REST_COLLECTION_ID")

	if v := get("SESSION_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLSec = n
		}
	}

	cfg.DatabaseURL = get("DATABASE_URL")
	cfg.MsgcatDir = get("MSGCAT_DIR")

	if v := get("ALLOWED_ORIGINS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for the redis backend")
		}
	case BackendREST:
		if cfg.RESTEndpoint == "" {
			return nil, errors.New("REST_ENDPOINT is required for the rest backend")
		}
		if cfg.RESTProject == "" {
			return nil, errors.New("REST_PROJECT is required for the rest backend")
		}
		if cfg.RESTDatabaseID == "" || cfg.RESTCollectionID == "" {
			return nil, errors.New("REST_DATABASE_ID and REST_COLLECTION_ID are required for the rest backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}
