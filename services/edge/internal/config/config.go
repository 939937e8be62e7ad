package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/anvit-dd/pi-drive/pkg/config"
)

// DefaultAccessSecret is the development placeholder shared with the auth service.
const DefaultAccessSecret = "change-this-access-secret"

// Config holds all configuration for the edge gate.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"EDGE_HTTP_PORT" envDefault:"8080"`

	// The edge only verifies access tokens; it never sees the refresh secret.
	JWTAccessSecret string `env:"JWT_ACCESS_SECRET" envDefault:"change-this-access-secret"`

	// Backend service URLs
	AuthServiceURL string `env:"AUTH_SERVICE_URL" envDefault:"http://localhost:8001"`
	AppServiceURL  string `env:"APP_SERVICE_URL" envDefault:"http://localhost:8000"`

	// Routing
	ProtectedPrefixes []string `env:"PROTECTED_PREFIXES" envDefault:"/home,/settings" envSeparator:","`
	RefreshCookiePath string   `env:"REFRESH_COOKIE_PATH" envDefault:"/api"`

	// Silent refresh calls to the auth service
	RefreshTimeout      time.Duration `env:"REFRESH_TIMEOUT" envDefault:"5s"`
	RefreshBreakerOpen  time.Duration `env:"REFRESH_BREAKER_OPEN" envDefault:"15s"`
	RefreshBreakerRatio float64       `env:"REFRESH_BREAKER_RATIO" envDefault:"0.5"`
	RefreshGrace        time.Duration `env:"REFRESH_GRACE" envDefault:"10s"`

	// Rate limiting on /api/auth
	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// Proxy transport
	ProxyDialTimeout     time.Duration `env:"PROXY_DIAL_TIMEOUT" envDefault:"5s"`
	ProxyResponseTimeout time.Duration `env:"PROXY_RESPONSE_TIMEOUT" envDefault:"30s"`
	ProxyIdleTimeout     time.Duration `env:"PROXY_IDLE_TIMEOUT" envDefault:"90s"`
	ProxyMaxIdleConns    int           `env:"PROXY_MAX_IDLE_CONNS" envDefault:"100"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// /metrics is served only to these networks.
	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load edge config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if err := pkgconfig.RequireSecret(c.Environment, "JWT_ACCESS_SECRET", c.JWTAccessSecret, DefaultAccessSecret, 32); err != nil {
		return err
	}
	for name, raw := range map[string]string{
		"AUTH_SERVICE_URL": c.AuthServiceURL,
		"APP_SERVICE_URL":  c.AppServiceURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}
