package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=60s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT,default=60s"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestSize        int64         `env:"MAX_REQUEST_SIZE,default=26214400"`

	// DigiDocService settings
	DDSURL            string        `env:"DDS_URL,required=true"`
	DDSTimeout        time.Duration `env:"DDS_TIMEOUT,default=30s"`
	DDSSigningProfile string        `env:"DDS_SIGNING_PROFILE,default=LT_TM"`

	// hashcode container settings
	UploadDir           string `env:"UPLOAD_DIR,required=true"`
	BDOCDigestAlgorithm string `env:"BDOC_DIGEST_ALGORITHM,default=sha256"`

	// signing session settings
	SessionStore         string        `env:"SESSION_STORE,default=memory"`
	SessionMaxAge        time.Duration `env:"SESSION_MAX_AGE,default=30m"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL,default=5m"`

	// database settings (SESSION_STORE=postgres)
	DatabaseURL         string        `env:"DATABASE_URL"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`

	// redis settings (SESSION_STORE=redis)
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	// optional local signing token (PKCS#12 keystore)
	TokenPKCS12Path     string `env:"TOKEN_PKCS12_PATH"`
	TokenPKCS12Password string `env:"TOKEN_PKCS12_PASSWORD"`
	// PEM file with CA certificates of the token signer, for keystores that hold only the key and signer certificate
	TokenChainPath string `env:"TOKEN_CHAIN_PATH"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

var validSessionStores = map[string]bool{
	"memory":   true,
	"postgres": true,
	"redis":    true,
}

var validBDOCDigestAlgorithms = map[string]bool{
	"sha256": true,
	"sha512": true,
}

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values.
// A .env file in the working directory is loaded first if present (values already set in the environment take precedence)
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_ = godotenv.Load()

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil

}

// validateConfig checks ranges and settings that depend on each other
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}
	if cfg.MaxRequestSize < 1 {
		return fmt.Errorf("MAX_REQUEST_SIZE must be at least 1")
	}

	ddsURL, err := url.Parse(cfg.DDSURL)
	if err != nil || (ddsURL.Scheme != "http" && ddsURL.Scheme != "https") || ddsURL.Host == "" {
		return fmt.Errorf("DDS_URL must be an absolute http(s) URL, got %q", cfg.DDSURL)
	}
	if cfg.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}

	if !validBDOCDigestAlgorithms[cfg.BDOCDigestAlgorithm] {
		return fmt.Errorf("invalid BDOC_DIGEST_ALGORITHM: %s (use sha256 or sha512)", cfg.BDOCDigestAlgorithm)
	}

	if !validSessionStores[cfg.SessionStore] {
		return fmt.Errorf("invalid SESSION_STORE: %s (use memory, postgres or redis)", cfg.SessionStore)
	}
	if cfg.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be greater than 0")
	}
	if cfg.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be greater than 0")
	}

	switch cfg.SessionStore {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SESSION_STORE=postgres")
		}
		// Validate database pool configuration
		if cfg.DBMaxConnections < 1 {
			return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
		}
		if cfg.DBMinConnections < 0 {
			return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
		}
		if cfg.DBMinConnections > cfg.DBMaxConnections {
			return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
				cfg.DBMinConnections, cfg.DBMaxConnections)
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when SESSION_STORE=redis")
		}
	}

	if cfg.TokenPKCS12Password != "" && cfg.TokenPKCS12Path == "" {
		return fmt.Errorf("TOKEN_PKCS12_PASSWORD is set but TOKEN_PKCS12_PATH is empty")
	}
	if cfg.TokenChainPath != "" && cfg.TokenPKCS12Path == "" {
		return fmt.Errorf("TOKEN_CHAIN_PATH is set but TOKEN_PKCS12_PATH is empty")
	}

	return nil
}
