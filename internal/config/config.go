package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

type Config struct {
	Environment     string
	Debug           bool
	LogLevel        string
	HTTP            HTTPConfig
	Store           StoreConfig
	Auth            AuthConfig
	Backend         BackendConfig
	TokenStorageKey string
	AuditLogFile    string
	FrontendDistDir string

	// Warnings lists light validation problems. They are logged at startup
	// and never fail Load.
	Warnings []string
}

type HTTPConfig struct {
	Addr               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	AllowedOrigins     []string
	MaxBodyBytes       int64
	LoginRatePerMinute int
	LoginRateBurst     int
	TrustProxy         bool
}

type StoreConfig struct {
	Backend     string
	DataDir     string
	DatabaseURL string
	MongoURI    string
	MongoDBName string
}

type AuthConfig struct {
	JWTSecret         string
	TokenIssuer       string
	SessionTTL        time.Duration
	CleanupInterval   time.Duration
	CookieName        string
	BcryptCost        int
	BootstrapEmail    string
	BootstrapPassword string
	BootstrapName     string
}

type BackendConfig struct {
	APIURL       string
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// EffectiveLogLevel is LogLevel, or debug when DEBUG is set.
func (c Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// loader collects warnings while reading variables.
type loader struct {
	warnings []string
}

func (l *loader) warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func Load() (Config, error) {
	l := &loader{}
	store, err := l.loadStore()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Debug:       l.getEnvBool("DEBUG", false),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		HTTP: HTTPConfig{
			Addr:               getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:        l.getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:       l.getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout:    l.getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 20*time.Second),
			AllowedOrigins:     getEnvList("HTTP_ALLOWED_ORIGINS"),
			MaxBodyBytes:       int64(l.getEnvInt("HTTP_MAX_BODY_BYTES", 1<<20)),
			LoginRatePerMinute: l.getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
			LoginRateBurst:     l.getEnvInt("LOGIN_RATE_BURST", 5),
			TrustProxy:         l.getEnvBool("HTTP_TRUST_PROXY", false),
		},
		Store: store,
		Auth: AuthConfig{
			JWTSecret:         getEnvSecret("AUTH_JWT_SECRET"),
			TokenIssuer:       getEnv("AUTH_TOKEN_ISSUER", "maritime-site"),
			SessionTTL:        l.getEnvDuration("SESSION_TIMEOUT", 24*time.Hour),
			CleanupInterval:   l.getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
			CookieName:        getEnv("AUTH_COOKIE_NAME", "auth-token"),
			BcryptCost:        l.getEnvInt("AUTH_BCRYPT_COST", 10),
			BootstrapEmail:    getEnv("AUTH_BOOTSTRAP_EMAIL", ""),
			BootstrapPassword: getEnv("AUTH_BOOTSTRAP_PASSWORD", ""),
			BootstrapName:     getEnv("AUTH_BOOTSTRAP_NAME", ""),
		},
		Backend: BackendConfig{
			APIURL:       strings.TrimSpace(getEnv("BACKEND_API_URL", "")),
			Timeout:      l.getEnvDuration("API_TIMEOUT", 10*time.Second),
			MaxAttempts:  l.getEnvInt("BACKEND_MAX_ATTEMPTS", 3),
			RetryBackoff: l.getEnvDuration("BACKEND_RETRY_BACKOFF", 200*time.Millisecond),
		},
		TokenStorageKey: getEnv("TOKEN_STORAGE_KEY", "maritime_admin_token"),
		AuditLogFile:    getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
		FrontendDistDir: getEnv("FRONTEND_DIST_DIR", "./web/dist"),
	}

	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("HTTP_MAX_BODY_BYTES must be > 0")
	}
	if cfg.HTTP.LoginRatePerMinute <= 0 || cfg.HTTP.LoginRateBurst <= 0 {
		return Config{}, fmt.Errorf("LOGIN_RATE_PER_MINUTE and LOGIN_RATE_BURST must be > 0")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("AUTH_JWT_SECRET must be set")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		l.warnf("AUTH_JWT_SECRET is shorter than 32 bytes")
	}
	if cfg.Auth.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("SESSION_TIMEOUT must be > 0")
	}
	if cfg.Auth.CleanupInterval < 0 {
		return Config{}, fmt.Errorf("SESSION_CLEANUP_INTERVAL must be >= 0")
	}
	if cfg.Auth.CookieName == "" {
		return Config{}, fmt.Errorf("AUTH_COOKIE_NAME must not be empty")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return Config{}, fmt.Errorf("AUTH_BCRYPT_COST must be between 4 and 31")
	}
	if cfg.Auth.BcryptCost < 10 {
		l.warnf("AUTH_BCRYPT_COST %d is below the recommended minimum of 10", cfg.Auth.BcryptCost)
	}
	if (cfg.Auth.BootstrapEmail == "") != (cfg.Auth.BootstrapPassword == "") {
		l.warnf("AUTH_BOOTSTRAP_EMAIL and AUTH_BOOTSTRAP_PASSWORD must both be set; bootstrap admin disabled")
	}
	if cfg.Backend.APIURL == "" {
		return Config{}, fmt.Errorf("BACKEND_API_URL must be set")
	}
	if u, err := url.Parse(cfg.Backend.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		l.warnf("BACKEND_API_URL %q is not a well-formed http(s) URL", cfg.Backend.APIURL)
	}
	if cfg.Backend.Timeout <= 0 {
		return Config{}, fmt.Errorf("API_TIMEOUT must be > 0")
	}
	if cfg.Backend.Timeout < time.Second {
		l.warnf("API_TIMEOUT %s is below 1s", cfg.Backend.Timeout)
	}
	if cfg.Backend.MaxAttempts < 1 {
		l.warnf("BACKEND_MAX_ATTEMPTS %d raised to 1", cfg.Backend.MaxAttempts)
		cfg.Backend.MaxAttempts = 1
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		l.warnf("LOG_LEVEL %q is unknown, using info", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	if cfg.Production() && len(cfg.HTTP.AllowedOrigins) == 0 {
		l.warnf("HTTP_ALLOWED_ORIGINS is empty in production; cross-origin requests will be refused")
	}

	cfg.Warnings = l.warnings
	return cfg, nil
}

// LoadStore reads only the storage variables.
func LoadStore() (StoreConfig, error) {
	return (&loader{}).loadStore()
}

func (l *loader) loadStore() (StoreConfig, error) {
	cfg := StoreConfig{
		DataDir:     getEnv("DATA_DIR", "./data"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoURI:    getEnv("MONGO_URI", ""),
		MongoDBName: getEnv("MONGO_DB_NAME", "maritime"),
	}
	def := StoreFile
	if cfg.DatabaseURL != "" {
		def = StorePostgres
	}
	cfg.Backend = strings.ToLower(getEnv("STORE_BACKEND", def))

	switch cfg.Backend {
	case StoreFile:
		if cfg.DataDir == "" {
			return StoreConfig{}, fmt.Errorf("DATA_DIR must not be empty")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return StoreConfig{}, fmt.Errorf("DATABASE_URL is required for STORE_BACKEND=postgres")
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			return StoreConfig{}, fmt.Errorf("MONGO_URI is required for STORE_BACKEND=mongo")
		}
		if cfg.MongoDBName == "" {
			return StoreConfig{}, fmt.Errorf("MONGO_DB_NAME must not be empty")
		}
	case StoreMemory:
		l.warnf("STORE_BACKEND=memory keeps no data across restarts")
	default:
		return StoreConfig{}, fmt.Errorf("STORE_BACKEND %q is not one of file, postgres, mongo, memory", cfg.Backend)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

// getEnvSecret prefers the file named by KEY_FILE over KEY itself.
func getEnvSecret(key string) string {
	if file := os.Getenv(key + "_FILE"); file != "" {
		if data, err := os.ReadFile(file); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return strings.TrimSpace(os.Getenv(key))
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (l *loader) getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		l.warnf("%s=%q is not an integer, using %d", key, val, fallback)
		return fallback
	}
	return n
}

func (l *loader) getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		l.warnf("%s=%q is not a boolean, using %t", key, val, fallback)
		return fallback
	}
	return b
}

// getEnvDuration accepts a Go duration ("10s") or a bare integer taken as
// milliseconds.
func (l *loader) getEnvDuration(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	val = strings.TrimSpace(val)
	if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		l.warnf("%s=%q is not a duration, using %s", key, val, fallback)
		return fallback
	}
	return d
}
