package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("VROOM_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("VROOM_LOG_LEVEL", "info"),
		LogFormat: EnvString("VROOM_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("VROOM_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("VROOM_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("VROOM_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("VROOM_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("VROOM_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("VROOM_DATABASE_URL", ""),
		DBSchema:    EnvString("VROOM_DB_SCHEMA", "vroom"),
		DBMaxConns:  EnvInt32("VROOM_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("VROOM_DB_MIN_CONNS", 0),

		CORSAllowedOrigins:   EnvCSV("VROOM_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("VROOM_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("VROOM_CORS_MAX_AGE_SECONDS", 600),

		ReadinessRequireDB: EnvBool("VROOM_READINESS_REQUIRE_DB", false),
	}
}
