package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Mail backends.
const (
	// BackendGraph reads and sends through Microsoft Graph.
	BackendGraph = "graph"
	// BackendSMTP reads through Microsoft Graph and sends over SMTP.
	BackendSMTP = "smtp"
	// BackendIMAP reads over IMAP and sends over SMTP.
	BackendIMAP = "imap"
)

// DefaultConfigPath is used when neither an explicit path nor
// DOCMAIL_CONFIG_PATH is given.
const DefaultConfigPath = "./config.yaml"

// ConfigPathEnv overrides the config file location.
const ConfigPathEnv = "DOCMAIL_CONFIG_PATH"

type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRs to trust for X-Forwarded-For
	// APIKey is compared with the X-API-Key header. Empty disables the check.
	APIKey string `yaml:"apiKey"`

	Timeouts        *ServerTimeouts `yaml:"timeouts"`
	ShutdownTimeout string          `yaml:"shutdownTimeout"`
}

// Identity is the confidential client used to obtain mail API tokens.
type Identity struct {
	ClientID     string `yaml:"clientID"`
	TenantID     string `yaml:"tenantID"`
	ClientSecret string `yaml:"clientSecret"`
	// Authority defaults to https://login.microsoftonline.com/<tenantID>.
	Authority string `yaml:"authority"`
	TokenURL  string `yaml:"tokenURL"`
	// Discovery resolves the token endpoint through OIDC discovery.
	Discovery bool     `yaml:"discovery"`
	Scopes    []string `yaml:"scopes"`
	// TokenWindow is how long an issued token is reused (e.g. "5m").
	TokenWindow string `yaml:"tokenWindow"`
	// KeyringService, when set, names the OS keyring entry holding the client
	// secret. The keyring is only consulted when ClientSecret is empty.
	KeyringService string `yaml:"keyringService"`
}

type Graph struct {
	BaseURL   string `yaml:"baseURL"`
	UserEmail string `yaml:"userEmail"`
	PageSize  int    `yaml:"pageSize"`
	// MaxAttempts, BaseDelay and AttemptTimeout tune the retry policy.
	MaxAttempts    int    `yaml:"maxAttempts"`
	BaseDelay      string `yaml:"baseDelay"`
	AttemptTimeout string `yaml:"attemptTimeout"`
}

type SMTP struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"` // DO NOT USE IN PRODUCTION
	SenderAddress      string `yaml:"senderAddress"`
	SenderName         string `yaml:"senderName"`
	RetryCount         int    `yaml:"retryCount"`
	RetryBackoffMs     int    `yaml:"retryBackoffMs"`
}

type IMAP struct {
	// Address is host:port of the IMAP server.
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// StartTLS upgrades a plain connection instead of dialing implicit TLS.
	StartTLS           bool   `yaml:"startTLS"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"` // DO NOT USE IN PRODUCTION
	Mailbox            string `yaml:"mailbox"`
	PageSize           int    `yaml:"pageSize"`
}

type Mail struct {
	// Backend is one of graph, smtp or imap.
	Backend string `yaml:"backend"`
	// TemplatePath replaces the built-in document template.
	TemplatePath string `yaml:"templatePath"`
	// FontSize of the monospace block wrapping outgoing notices.
	FontSize int  `yaml:"fontSize"`
	SMTP     SMTP `yaml:"smtp"`
	IMAP     IMAP `yaml:"imap"`
}

type RateLimit struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Telemetry configures OpenTelemetry trace export.
type Telemetry struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is "otlp" (default), "stdout" or "none".
	Exporter string `yaml:"exporter"`
	// Endpoint is the OTLP gRPC collector address, e.g. "otel-collector:4317".
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	// SamplingRate is nil when the key is absent; an explicit 0 disables sampling.
	SamplingRate *float64 `yaml:"samplingRate"`
}

// Sampling returns the configured trace ratio, 1.0 when unset.
func (t Telemetry) Sampling() float64 {
	if t.SamplingRate == nil {
		return 1.0
	}
	return *t.SamplingRate
}

type Config struct {
	Server    Server    `yaml:"server"`
	Identity  Identity  `yaml:"identity"`
	Graph     Graph     `yaml:"graph"`
	Mail      Mail      `yaml:"mail"`
	RateLimit RateLimit `yaml:"rateLimit"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Load reads the docmail configuration, applies environment overrides and
// fills defaults. If configPath is empty, DOCMAIL_CONFIG_PATH and then
// "./config.yaml" are tried. A missing default file is not an error so the
// service can be configured from the environment alone.
func Load(configPath ...string) (Config, error) {
	var config Config

	path, explicit := resolvePath(configPath...)
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &config); err != nil {
			return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return config, fmt.Errorf("trying to open docmail config file %s: %w", path, err)
	}

	ApplyEnv(&config, os.LookupEnv)
	config.Defaults()
	return config, nil
}

func resolvePath(configPath ...string) (string, bool) {
	if len(configPath) > 0 && configPath[0] != "" {
		return configPath[0], true
	}
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p, true
	}
	return DefaultConfigPath, false
}

// Defaults fills every unset tunable.
func (c *Config) Defaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8000"
	}
	if c.Identity.TokenWindow == "" {
		c.Identity.TokenWindow = "5m"
	}
	if len(c.Identity.Scopes) == 0 {
		c.Identity.Scopes = []string{"https://graph.microsoft.com/.default"}
	}
	if c.Graph.BaseURL == "" {
		c.Graph.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if c.Graph.PageSize <= 0 {
		c.Graph.PageSize = 50
	}
	if c.Graph.MaxAttempts <= 0 {
		c.Graph.MaxAttempts = 3
	}
	if c.Graph.BaseDelay == "" {
		c.Graph.BaseDelay = "1s"
	}
	if c.Graph.AttemptTimeout == "" {
		c.Graph.AttemptTimeout = "30s"
	}
	if c.Mail.Backend == "" {
		c.Mail.Backend = BackendGraph
	}
	c.Mail.Backend = strings.ToLower(c.Mail.Backend)
	if c.Mail.FontSize <= 0 {
		c.Mail.FontSize = 14
	}
	if c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.Mail.SMTP.RetryCount <= 0 {
		c.Mail.SMTP.RetryCount = 3
	}
	if c.Mail.SMTP.RetryBackoffMs <= 0 {
		c.Mail.SMTP.RetryBackoffMs = 100
	}
	if c.Mail.SMTP.SenderAddress == "" {
		c.Mail.SMTP.SenderAddress = c.Graph.UserEmail
	}
	if c.Mail.IMAP.Mailbox == "" {
		c.Mail.IMAP.Mailbox = "INBOX"
	}
	if c.Mail.IMAP.PageSize <= 0 {
		c.Mail.IMAP.PageSize = c.Graph.PageSize
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = "otlp"
	}
	if c.Telemetry.SamplingRate == nil {
		rate := 1.0
		c.Telemetry.SamplingRate = &rate
	}
}

// UsesGraph reports whether the configured backend talks to Microsoft Graph.
func (c Config) UsesGraph() bool {
	return c.Mail.Backend == BackendGraph || c.Mail.Backend == BackendSMTP
}

// UsesSMTP reports whether outgoing mail is sent over SMTP.
func (c Config) UsesSMTP() bool {
	return c.Mail.Backend == BackendSMTP || c.Mail.Backend == BackendIMAP
}

// Validate checks that the settings required by the selected backend are
// present and that durations parse.
func (c Config) Validate() error {
	var errs []error
	switch c.Mail.Backend {
	case BackendGraph, BackendSMTP, BackendIMAP:
	default:
		errs = append(errs, fmt.Errorf("mail.backend %q is not one of graph, smtp, imap", c.Mail.Backend))
	}

	if c.UsesGraph() {
		if c.Identity.ClientID == "" {
			errs = append(errs, errors.New("identity.clientID (CLIENT_ID) is required"))
		}
		if c.Identity.ClientSecret == "" {
			errs = append(errs, errors.New("identity.clientSecret (CLIENT_SECRET) is required"))
		}
		if c.Identity.TenantID == "" && c.Identity.Authority == "" {
			errs = append(errs, errors.New("identity.tenantID (TENANT_ID) or identity.authority is required"))
		}
		if c.Graph.UserEmail == "" {
			errs = append(errs, errors.New("graph.userEmail (USER_EMAIL) is required"))
		}
	}
	if c.UsesSMTP() && c.Mail.SMTP.Host == "" {
		errs = append(errs, errors.New("mail.smtp.host is required for the smtp and imap backends"))
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "otlp":
			if c.Telemetry.Endpoint == "" {
				errs = append(errs, errors.New("telemetry.endpoint (OTEL_EXPORTER_OTLP_ENDPOINT) is required for the otlp exporter"))
			}
		case "stdout", "none":
		default:
			errs = append(errs, fmt.Errorf("telemetry.exporter %q is not one of otlp, stdout, none", c.Telemetry.Exporter))
		}
	}
	if c.Mail.Backend == BackendIMAP {
		if c.Mail.IMAP.Address == "" {
			errs = append(errs, errors.New("mail.imap.address is required for the imap backend"))
		}
		if c.Mail.IMAP.User == "" {
			errs = append(errs, errors.New("mail.imap.user is required for the imap backend"))
		}
	}

	for name, v := range map[string]string{
		"identity.tokenWindow": c.Identity.TokenWindow,
		"graph.baseDelay":      c.Graph.BaseDelay,
		"graph.attemptTimeout": c.Graph.AttemptTimeout,
	} {
		if _, err := parseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// TokenWindowDuration returns the parsed identity.tokenWindow.
func (c Config) TokenWindowDuration() time.Duration {
	d, _ := parseDuration(c.Identity.TokenWindow)
	return d
}

// BaseDelayDuration returns the parsed graph.baseDelay.
func (c Config) BaseDelayDuration() time.Duration {
	d, _ := parseDuration(c.Graph.BaseDelay)
	return d
}

// AttemptTimeoutDuration returns the parsed graph.attemptTimeout.
func (c Config) AttemptTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.Graph.AttemptTimeout)
	return d
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", v)
	}
	return d, nil
}
