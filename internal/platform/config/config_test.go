package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "stocktide-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Events.ProjectID != "stocktide-dev" {
		t.Errorf("expected events project to default to firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Analytics.DebounceInterval != defaultAnalyticsDebounce {
		t.Errorf("unexpected default debounce: %s", cfg.Analytics.DebounceInterval)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadOverridesFromEnvMap(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_FIRESTORE_PROJECT_ID":      "stocktide-prod",
		"API_EVENTS_PROJECT_ID":         "stocktide-events",
		"API_EVENTS_TOPIC":              "mutations",
		"API_ANALYTICS_DEBOUNCE":        "500ms",
		"API_RATELIMIT_DEFAULT_PER_MIN": "60",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Events.ProjectID != "stocktide-events" || cfg.Events.Topic != "mutations" {
		t.Errorf("unexpected events config: %+v", cfg.Events)
	}
	if cfg.Analytics.DebounceInterval != 500*time.Millisecond {
		t.Errorf("unexpected debounce: %s", cfg.Analytics.DebounceInterval)
	}
	if cfg.RateLimits.DefaultPerMinute != 60 {
		t.Errorf("unexpected rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	contents := "API_FIRESTORE_PROJECT_ID=stocktide-local\nexport API_SERVER_PORT=\"7070\"\n# comment\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.ProjectID != "stocktide-local" {
		t.Errorf("expected project from .env, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from .env, got %s", cfg.Server.Port)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":   "stocktide-dev",
		"API_SECURITY_ADMIN_API_KEY": "sm://projects/p/secrets/admin-key/versions/latest",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/p/secrets/admin-key/versions/latest" {
			t.Fatalf("unexpected secret ref %q", ref)
		}
		return "resolved-key", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Security.AdminAPIKey != "resolved-key" {
		t.Errorf("expected resolved admin key, got %q", cfg.Security.AdminAPIKey)
	}
}

func TestLoadFailsWhenSecretResolverMissing(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":   "stocktide-dev",
		"API_SECURITY_ADMIN_API_KEY": "secret://projects/p/secrets/admin-key/versions/latest",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
}

func TestLoadRequiresFirestoreProject(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := validationErr.Fields()
	found := false
	for _, field := range fields {
		if field == "Firestore.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firestore.ProjectID in %v", fields)
	}
}

func TestLoadReportsMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "stocktide-dev",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("Security.AdminAPIKey"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing secrets error, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Security.AdminAPIKey" {
		t.Fatalf("unexpected missing secret names %v", names)
	}
}
