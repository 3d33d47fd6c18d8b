package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Store backend: "memory", "mongo" or "firestore"
	StoreType string

	MongoURI        string
	MongoDB         string
	MongoCollection string

	FirestoreProjectID  string
	FirestoreCollection string

	// Identity service; when empty the service runs in local mode and the
	// bearer token is used as the party id directly.
	IdentityURL string

	// Webhook receiving all negotiation events; optional.
	NotifyWebhookURL string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		StoreType:           getEnv("STORE_TYPE", "memory"),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:             getEnv("MONGO_DB", "rubbereco"),
		MongoCollection:     getEnv("MONGO_COLLECTION_NEGOTIATIONS", "negotiations"),
		FirestoreProjectID:  strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID")),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION_NEGOTIATIONS", "negotiations"),
		IdentityURL:         strings.TrimRight(strings.TrimSpace(os.Getenv("IDENTITY_URL")), "/"),
		NotifyWebhookURL:    strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_URL")),
		ReadTimeout:         10 * time.Second,
		WriteTimeout:        20 * time.Second,
		IdleTimeout:         60 * time.Second,
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
