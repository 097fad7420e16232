package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SecretStore resolves secrets by name.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, def string) string
}

// EnvironmentSecretStore reads secrets from environment variables. A variable named
// KEY_FILE takes precedence over KEY and names a file holding the secret, the way
// container orchestrators mount them.
type EnvironmentSecretStore struct{}

func NewEnvironmentSecretStore() *EnvironmentSecretStore { return &EnvironmentSecretStore{} }

func (EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	if path := os.Getenv(key + "_FILE"); path != "" {
		b, err := os.ReadFile(path) // #nosec G304 - operator supplied secret path
		if err != nil {
			return "", fmt.Errorf("failed to read secret %s from %s: %w", key, path, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("secret %s not set", key)
	}
	return v, nil
}

func (s EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return def
	}
	return v
}

// LoadSecretsFromEnv fills credentials from the environment secret store.
// Values already present in the config are kept when no secret is provided.
func (c *Config) LoadSecretsFromEnv(ctx context.Context) error {
	return c.LoadSecrets(ctx, NewEnvironmentSecretStore())
}

// LoadSecrets fills credentials from store.
func (c *Config) LoadSecrets(ctx context.Context, store SecretStore) error {
	c.Storage.Redis.Password = store.GetWithDefault(ctx, "LEADERBOARDKIT_REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Storage.SQL.DSN = store.GetWithDefault(ctx, "LEADERBOARDKIT_SQL_DSN", c.Storage.SQL.DSN)

	if keys := store.GetWithDefault(ctx, "LEADERBOARDKIT_SECURITY_API_KEYS", ""); keys != "" {
		c.Security.APIKeys = nil
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Security.APIKeys = append(c.Security.APIKeys, k)
			}
		}
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration after loading secrets: %w", err)
	}
	return nil
}
