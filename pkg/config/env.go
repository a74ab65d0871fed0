package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles are the dotenv files tried by LoadDotEnv when none are given.
var DefaultEnvFiles = []string{".env"}

// LoadDotEnv loads variables from the first existing dotenv file into the
// process environment. Variables that are already set win. Missing files are
// skipped; a malformed file is an error.
func LoadDotEnv(paths ...string) (string, error) {
	if len(paths) == 0 {
		paths = DefaultEnvFiles
	}
	for _, p := range paths {
		err := godotenv.Load(p)
		if err == nil {
			return p, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return "", err
	}
	return "", nil
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides file settings with the environment variables the service
// has always been configured through.
func ApplyEnv(c *Config, lookup LookupFunc) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Identity.ClientID, "CLIENT_ID")
	set(&c.Identity.TenantID, "TENANT_ID")
	set(&c.Identity.ClientSecret, "CLIENT_SECRET")
	set(&c.Graph.UserEmail, "USER_EMAIL")
	set(&c.Server.APIKey, "API_KEY")
	set(&c.Mail.Backend, "DOCMAIL_MAIL_BACKEND")
	set(&c.Server.ListenAddress, "DOCMAIL_LISTEN_ADDRESS")
	set(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}
