// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Config is the configuration shared by every service binary.
type Config struct {
	// UniquePodID distinguishes this process's consumer groups from those
	// of sibling pods, so each pod sees every message.
	UniquePodID string

	KafkaBrokers  []string
	MongoURL      string
	MongoDatabase string

	// PublicKeysPEM holds every acceptance key for token verification.
	PublicKeysPEM []string

	// PrivateKeyPEM is the signing key. Only the auth service requires it;
	// see RequireSigningKey.
	PrivateKeyPEM string

	HTTPPort string
}

// Load reads configuration from the environment. Every variable except
// PRIVATE_KEY_PEM and HTTP_PORT is required.
func Load() (Config, error) {
	cfg := Config{
		UniquePodID:   os.Getenv("UNIQUE_POD_ID"),
		MongoURL:      os.Getenv("MONGO_URL"),
		MongoDatabase: os.Getenv("MONGO_DATABASE"),
		PrivateKeyPEM: decodePEM(os.Getenv("PRIVATE_KEY_PEM")),
		HTTPPort:      getEnvOrDefault("HTTP_PORT", "8000"),
	}

	required := []struct {
		name  string
		value string
	}{
		{"UNIQUE_POD_ID", cfg.UniquePodID},
		{"KAFKA_URL", os.Getenv("KAFKA_URL")},
		{"MONGO_URL", cfg.MongoURL},
		{"MONGO_DATABASE", cfg.MongoDatabase},
		{"PUBLIC_KEYS_PEM", os.Getenv("PUBLIC_KEYS_PEM")},
	}
	for _, v := range required {
		if v.value == "" {
			return Config{}, fmt.Errorf("%s env var not set", v.name)
		}
	}

	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_URL"))
	for _, pem := range splitList(os.Getenv("PUBLIC_KEYS_PEM")) {
		cfg.PublicKeysPEM = append(cfg.PublicKeysPEM, decodePEM(pem))
	}

	return cfg, nil
}

// RequireSigningKey fails when PRIVATE_KEY_PEM was not provided.
func (c Config) RequireSigningKey() error {
	if c.PrivateKeyPEM == "" {
		return fmt.Errorf("PRIVATE_KEY_PEM env var not set")
	}
	return nil
}

// splitList splits a comma-separated variable, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// decodePEM restores the newlines that env files escape as "\n".
func decodePEM(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
