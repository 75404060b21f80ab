// Package config provides environment-driven configuration loading and
// validation for erpcache, following the same EnvConfig/Validator pattern
// used throughout the wider eve ecosystem.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"erpcache.eve.dev/common"
	"erpcache.eve.dev/security"
)

// EnvConfig loads configuration values from environment variables under an
// optional prefix.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates a new environment configuration loader.
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// GetString retrieves a string value from environment with optional default.
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	return common.GetEnv(ec.buildKey(key), defaultValue)
}

// MustGetString retrieves a required string value from environment or panics.
func (ec *EnvConfig) MustGetString(key string) string {
	fullKey := ec.buildKey(key)
	value := os.Getenv(fullKey)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	return value
}

// GetInt retrieves an integer value from environment with optional default.
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	return common.GetEnvInt(ec.buildKey(key), defaultValue)
}

// GetBool retrieves a boolean value from environment with optional default.
// Accepts true/1/yes/on and false/0/no/off; anything else, including an
// unset variable, returns defaultValue.
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	return common.GetEnvBool(ec.buildKey(key), defaultValue)
}

// GetDuration retrieves a duration value from environment with optional default.
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetStringSlice retrieves a comma-separated string slice from environment.
func (ec *EnvConfig) GetStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(ec.buildKey(key))
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ServiceConfig contains service identity and logging configuration.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
	LogFormat   string
}

// LoadServiceConfig loads service configuration from environment.
func LoadServiceConfig(prefix string) ServiceConfig {
	env := NewEnvConfig(prefix)
	return ServiceConfig{
		Name:        env.GetString("NAME", "erpcache"),
		Version:     env.GetString("VERSION", "0.0.1"),
		Environment: env.GetString("ENVIRONMENT", "development"),
		LogLevel:    env.GetString("LOG_LEVEL", "info"),
		LogFormat:   env.GetString("LOG_FORMAT", "text"),
	}
}

// ServerConfig contains the HTTP server configuration.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	BodyLimit       string
	AllowedOrigins  []string
	RateLimit       float64 // requests/sec, 0 = unlimited
	Debug           bool
}

// LoadServerConfig loads server configuration from environment.
func LoadServerConfig(prefix string) ServerConfig {
	env := NewEnvConfig(prefix)
	return ServerConfig{
		Port:            env.GetInt("PORT", 8080),
		Host:            env.GetString("HOST", "0.0.0.0"),
		ReadTimeout:     env.GetDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    env.GetDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		BodyLimit:       env.GetString("BODY_LIMIT", "10M"),
		AllowedOrigins:  env.GetStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		RateLimit:       0,
		Debug:           env.GetBool("DEBUG", false),
	}
}

// KVConfig holds the Redis connection settings for the KV store adapter (C2).
type KVConfig struct {
	URL     string
	Timeout time.Duration
}

// LoadKVConfig loads KV store configuration from environment.
func LoadKVConfig(prefix string) KVConfig {
	env := NewEnvConfig(prefix)
	return KVConfig{
		URL:     env.GetString("URL", "redis://localhost:6379/0"),
		Timeout: env.GetDuration("TIMEOUT", 5*time.Second),
	}
}

// ERPConfig holds the upstream ERP connection settings for the fetcher (C6).
type ERPConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// LoadERPConfig loads ERP fetcher configuration from environment.
func LoadERPConfig(prefix string) ERPConfig {
	env := NewEnvConfig(prefix)
	return ERPConfig{
		BaseURL:   env.GetString("BASE_URL", ""),
		APIKey:    env.GetString("API_KEY", ""),
		APISecret: env.GetString("API_SECRET", ""),
		Timeout:   env.GetDuration("TIMEOUT", 10*time.Second),
	}
}

// CacheConfig holds per-family cache TTLs (design notes open question 2:
// the selection is per-family, 0 meaning persistent).
type CacheConfig struct {
	TTL map[string]time.Duration
}

// LoadCacheConfig loads per-family TTL configuration from environment.
// Families default to persistent (0); set e.g. ERPCACHE_CACHE_TTL_STOCK=1h
// to override a single family.
func LoadCacheConfig(prefix string) CacheConfig {
	env := NewEnvConfig(prefix)
	families := []string{"product", "price", "stock", "hero", "bundle", "home", "message"}
	ttl := make(map[string]time.Duration, len(families))
	for _, f := range families {
		ttl[f] = env.GetDuration("TTL_"+strings.ToUpper(f), 0)
	}
	return CacheConfig{TTL: ttl}
}

// SchedulerConfig holds the weekly full-refresh slot configuration (C10).
type SchedulerConfig struct {
	Enabled   bool
	Weekday   time.Weekday
	Hour      int
	Minute    int
	BatchSize int
}

// LoadSchedulerConfig loads scheduler configuration from environment.
func LoadSchedulerConfig(prefix string) SchedulerConfig {
	env := NewEnvConfig(prefix)
	return SchedulerConfig{
		Enabled:   env.GetBool("ENABLED", true),
		Weekday:   time.Weekday(env.GetInt("WEEKDAY", int(time.Sunday))),
		Hour:      env.GetInt("HOUR", 3),
		Minute:    env.GetInt("MINUTE", 0),
		BatchSize: env.GetInt("BATCH_SIZE", 10),
	}
}

// AuthConfig holds the JWT validation secret and password hashing settings
// for the user/message routes.
type AuthConfig struct {
	JWTSecret  string
	BcryptCost int
}

// LoadAuthConfig loads authentication configuration from environment.
// BcryptCost defaults to security.DefaultBcryptCost; operators raise it
// (e.g. ERPCACHE_AUTH_BCRYPT_COST=12) on hardware fast enough to absorb the
// extra hashing time without slowing down registration/login.
func LoadAuthConfig(prefix string) AuthConfig {
	env := NewEnvConfig(prefix)
	return AuthConfig{
		JWTSecret:  env.GetString("JWT_SECRET", ""),
		BcryptCost: env.GetInt("BCRYPT_COST", security.DefaultBcryptCost),
	}
}

// Validator accumulates configuration validation errors.
type Validator struct {
	errors []string
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]string, 0)}
}

// RequireString validates that a string field is not empty.
func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

// RequirePositiveInt validates that an integer field is positive.
func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// RequireURL validates that a string looks like an http(s) URL.
func (v *Validator) RequireURL(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		v.errors = append(v.errors, fmt.Sprintf("%s must be a valid URL (http:// or https://)", field))
	}
}

// RequireOneOf validates that a value is one of the allowed options.
func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	for _, option := range allowed {
		if value == option {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// IsValid returns true if there are no validation errors.
func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

// ErrorString returns all validation errors as a single string.
func (v *Validator) ErrorString() string {
	return strings.Join(v.errors, "; ")
}

// Validate returns an error describing every accumulated validation failure.
func (v *Validator) Validate() error {
	if !v.IsValid() {
		return fmt.Errorf("configuration validation failed: %s", v.ErrorString())
	}
	return nil
}

// AllConfig aggregates every loaded configuration section.
type AllConfig struct {
	Service   ServiceConfig
	Server    ServerConfig
	KV        KVConfig
	ERP       ERPConfig
	Cache     CacheConfig
	Scheduler SchedulerConfig
	Auth      AuthConfig
}

// Load loads and validates the complete erpcache configuration from
// environment variables under the ERPCACHE prefix (and component-specific
// sub-prefixes, e.g. ERPCACHE_ERP_BASE_URL).
func Load() (*AllConfig, error) {
	const prefix = "ERPCACHE"

	cfg := &AllConfig{
		Service:   LoadServiceConfig(prefix),
		Server:    LoadServerConfig(prefix),
		KV:        LoadKVConfig(prefix + "_KV"),
		ERP:       LoadERPConfig(prefix + "_ERP"),
		Cache:     LoadCacheConfig(prefix + "_CACHE"),
		Scheduler: LoadSchedulerConfig(prefix + "_SCHEDULER"),
		Auth:      LoadAuthConfig(prefix + "_AUTH"),
	}

	validator := NewValidator()
	validator.RequireOneOf("Service.Environment", cfg.Service.Environment,
		[]string{"development", "staging", "production"})
	validator.RequireOneOf("Service.LogLevel", cfg.Service.LogLevel,
		[]string{"debug", "info", "warn", "error"})
	validator.RequirePositiveInt("Server.Port", cfg.Server.Port)
	validator.RequireString("KV.URL", cfg.KV.URL)

	if err := validator.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
