package app

import (
	"time"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/cache"
	"github.com/godamri/helix-audit/database"
	"github.com/godamri/helix-audit/log"
	"github.com/godamri/helix-audit/server"
	"github.com/godamri/helix-audit/server/middleware"
	"github.com/godamri/helix-audit/sink"
	"github.com/godamri/helix-audit/syncer"
)

// Config is the full service configuration, one section per
// subsystem. Sections keep their own envconfig tags, so flat env vars
// and the nested YAML file describe the same tree.
type Config struct {
	Service string `envconfig:"SERVICE_NAME" default:"audit-syncd" yaml:"service"`

	Log     log.Config      `yaml:"log"`
	DB      database.Config `yaml:"db"`
	Sink    sink.Config     `yaml:"sink"`
	Sync    syncer.Config   `yaml:"sync"`
	Capture audit.Config    `yaml:"capture"`
	Server  server.Config   `yaml:"server"`
	Redis   cache.Config    `yaml:"redis"`
	Auth    AuthConfig      `yaml:"auth"`
}

// AuthConfig selects how the browse API authenticates callers.
type AuthConfig struct {
	Mode string `envconfig:"AUTH_MODE" default:"none" validate:"oneof=none api_key jwt trusted_header" yaml:"mode"`

	// api_key mode. Keys carry bcrypt hashes, so they are YAML-only.
	APIKeys []middleware.APIKey `ignored:"true" yaml:"api_keys"`

	// jwt mode
	JWKSURL     string        `envconfig:"AUTH_JWKS_URL" yaml:"jwks_url"`
	JWTIssuer   string        `envconfig:"AUTH_JWT_ISSUER" yaml:"jwt_issuer"`
	JWKSRefresh time.Duration `envconfig:"AUTH_JWKS_REFRESH" default:"15m" yaml:"jwks_refresh"`

	// trusted_header mode
	TrustedProxies []string `envconfig:"AUTH_TRUSTED_PROXIES" yaml:"trusted_proxies"`

	// Rate limiting (needs Redis)
	RateLimitEnabled bool `envconfig:"AUTH_RATE_LIMIT_ENABLED" default:"false" yaml:"rate_limit_enabled"`
	RateLimitRPS     int  `envconfig:"AUTH_RATE_LIMIT_RPS" default:"50" validate:"min=1" yaml:"rate_limit_rps"`
	RateLimitBurst   int  `envconfig:"AUTH_RATE_LIMIT_BURST" default:"100" validate:"min=1" yaml:"rate_limit_burst"`
}
