package config

import (
	"os"
	"strings"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string
	SiteID   string // tags event_log rows

	AuthHMACSecret  string
	EnableLocalAuth bool // dev logins: username == password

	AdminUser     string
	AdminPassHash string // bcrypt

	LogLevel  string // debug|info|warn|error
	LogFormat string // json|console

	CORSOrigins    []string
	RBACPolicyFile string
	EnableMetrics  bool
}

func FromEnv() Config {
	return Config{
		HTTPAddr:        envOr("HTTP_ADDR", ":8080"),
		DBDriver:        envOr("DB_DRIVER", "sqlite"),
		DBDSN:           envOr("DB_DSN", ""),
		SiteID:          envOr("SITE_ID", "local"),
		AuthHMACSecret:  envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		EnableLocalAuth: envBool("ENABLE_LOCAL_AUTH", true),
		AdminUser:       envOr("ADMIN_USER", "admin"),
		AdminPassHash:   envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "json"),
		CORSOrigins:     csvOr("CORS_ORIGINS", "http://localhost:3000"),
		RBACPolicyFile:  os.Getenv("RBAC_POLICY_FILE"),
		EnableMetrics:   envBool("ENABLE_METRICS", true),
	}
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
