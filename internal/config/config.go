package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	PublicURL string

	LogLevel  string
	LogFormat string // json|console

	// DBDriver selects the platform registry store: sqlite|postgres, or ""
	// to use only the platform configured below.
	DBDriver string
	DBDSN    string

	AdminUser     string
	AdminPassHash string // bcrypt; empty disables /admin

	CORSOrigins []string

	LTI LTI
}

// LTI is the tool's registration with its default platform plus the
// protocol tunables.
type LTI struct {
	PrivateKey     string // PEM; literal "\n" sequences are accepted
	PrivateKeyFile string
	KeyID          string

	ClientID      string
	Issuer        string
	DeploymentID  string
	TokenEndpoint string
	AuthEndpoint  string
	JWKSURL       string
	// JWKSURLTemplate builds a JWKS URL from an issuer when none is
	// registered; "{issuer}" is replaced.
	JWKSURLTemplate string

	JWKSTTL            time.Duration
	HTTPTimeout        time.Duration
	ClockSkew          time.Duration
	TokenSkew          time.Duration
	RequireLTIClaims   bool
	LoginStateTTL      time.Duration
	MinKeySetRefresh   time.Duration
	LaunchRedirectPath string
}

func FromEnv() Config {
	pub := strings.TrimSuffix(os.Getenv("PUBLIC_URL"), "/")
	return Config{
		HTTPAddr:      envOr("HTTP_ADDR", ":8080"),
		PublicURL:     pub,
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogFormat:     envOr("LOG_FORMAT", "json"),
		DBDriver:      os.Getenv("DB_DRIVER"),
		DBDSN:         os.Getenv("DB_DSN"),
		AdminUser:     envOr("ADMIN_USER", "admin"),
		AdminPassHash: os.Getenv("ADMIN_PASS_HASH"),
		CORSOrigins:   csvOr("CORS_ORIGINS", "http://localhost:3000"),
		LTI: LTI{
			PrivateKey:         os.Getenv("LTI_PRIVATE_KEY"),
			PrivateKeyFile:     os.Getenv("LTI_PRIVATE_KEY_FILE"),
			KeyID:              envOr("LTI_KEY_ID", "lti-service-key"),
			ClientID:           os.Getenv("LTI_CLIENT_ID"),
			Issuer:             os.Getenv("LTI_ISSUER"),
			DeploymentID:       os.Getenv("LTI_DEPLOYMENT_ID"),
			TokenEndpoint:      os.Getenv("LTI_TOKEN_ENDPOINT"),
			AuthEndpoint:       os.Getenv("LTI_AUTH_ENDPOINT"),
			JWKSURL:            os.Getenv("LTI_JWKS_URL"),
			JWKSURLTemplate:    envOr("LTI_JWKS_URL_TEMPLATE", "{issuer}/mod/lti/certs.php"),
			JWKSTTL:            envDuration("LTI_JWKS_TTL", 10*time.Minute),
			HTTPTimeout:        envDuration("LTI_HTTP_TIMEOUT", 15*time.Second),
			ClockSkew:          envDuration("LTI_CLOCK_SKEW", 0),
			TokenSkew:          envDuration("LTI_TOKEN_SKEW", 30*time.Second),
			RequireLTIClaims:   envBool("LTI_REQUIRE_LTI_CLAIMS", false),
			LoginStateTTL:      envDuration("LTI_LOGIN_STATE_TTL", 10*time.Minute),
			MinKeySetRefresh:   envDuration("LTI_JWKS_MIN_REFRESH", time.Minute),
			LaunchRedirectPath: envOr("LTI_LAUNCH_PATH", "/lti/launch"),
		},
	}
}

// RedirectURI is the absolute launch URL sent in OIDC login redirects.
func (c Config) RedirectURI() string {
	return c.PublicURL + c.LTI.LaunchRedirectPath
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d < 0 {
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
