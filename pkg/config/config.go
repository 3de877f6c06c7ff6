package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Database    DatabaseConfig
	Geolocation GeolocationConfig
	Maps        MapsConfig
	Discovery   DiscoveryConfig
	Session     SessionConfig
	OTEL        OTELConfig
	Log         LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// DatabaseConfig points at an optional PostgreSQL store table. When
// enabled the catalog is read from it once at startup.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	Table    string
}

// GeolocationConfig configures how a visitor's position is acquired
type GeolocationConfig struct {
	// Provider is one of "browser", "ipapi" or "mock".
	Provider    string
	Timeout     time.Duration
	MaxAge      time.Duration
	DefaultLat  float64
	DefaultLng  float64
	IPLookupURL string
}

// MapsConfig selects and configures the map rendering backend
type MapsConfig struct {
	// Backend is one of "leaflet", "google" or "mock".
	Backend        string
	APIKey         string
	LibraryURL     string
	TileURL        string
	StaticMapURL   string
	FallbackToMock bool
	InitAttempts   int
	Width          int
	Height         int
}

// DiscoveryConfig holds defaults for the discovery pipeline
type DiscoveryConfig struct {
	// CatalogPath points at a JSON store list; empty uses the embedded seed
	CatalogPath     string
	DefaultRadiusKm float64
	Debounce        time.Duration
	PageSize        int
}

// SessionConfig holds shell session settings
type SessionConfig struct {
	TTL time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// LogConfig holds logger configuration
type LogConfig struct {
	Env   string
	Level string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables
// take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("CATALOG_DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "storelocator"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Table:    getEnv("CATALOG_DB_TABLE", "stores"),
		},
		Geolocation: GeolocationConfig{
			Provider:    getEnv("GEOLOCATION_PROVIDER", "browser"),
			Timeout:     getEnvAsDuration("GEOLOCATION_TIMEOUT", 10*time.Second),
			MaxAge:      getEnvAsDuration("GEOLOCATION_MAX_AGE", 5*time.Minute),
			DefaultLat:  getEnvAsFloat("GEOLOCATION_DEFAULT_LAT", 22.6273),
			DefaultLng:  getEnvAsFloat("GEOLOCATION_DEFAULT_LNG", 120.3014),
			IPLookupURL: getEnv("GEOLOCATION_IP_LOOKUP_URL", "http://ip-api.com/json"),
		},
		Maps: MapsConfig{
			Backend:        getEnv("MAPS_BACKEND", "mock"),
			APIKey:         getEnv("MAPS_API_KEY", ""),
			LibraryURL:     getEnv("MAPS_LIBRARY_URL", "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"),
			TileURL:        getEnv("MAPS_TILE_URL", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"),
			StaticMapURL:   getEnv("MAPS_STATIC_URL", "https://maps.googleapis.com/maps/api/staticmap"),
			FallbackToMock: getEnvAsBool("MAPS_FALLBACK_TO_MOCK", false),
			InitAttempts:   getEnvAsInt("MAPS_INIT_ATTEMPTS", 3),
			Width:          getEnvAsInt("MAPS_WIDTH", 640),
			Height:         getEnvAsInt("MAPS_HEIGHT", 400),
		},
		Discovery: DiscoveryConfig{
			CatalogPath:     getEnv("CATALOG_PATH", ""),
			DefaultRadiusKm: getEnvAsFloat("DISCOVERY_DEFAULT_RADIUS_KM", 10),
			Debounce:        getEnvAsDuration("DISCOVERY_DEBOUNCE", 300*time.Millisecond),
			PageSize:        getEnvAsInt("DISCOVERY_PAGE_SIZE", 0),
		},
		Session: SessionConfig{
			TTL: getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "store-locator"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Log: LogConfig{
			Env:   getEnv("APP_ENV", "development"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that would otherwise surface as runtime
// misbehaviour far from their source.
func (c *Config) Validate() error {
	switch c.Geolocation.Provider {
	case "browser", "ipapi", "mock":
	default:
		return fmt.Errorf("unknown GEOLOCATION_PROVIDER %q", c.Geolocation.Provider)
	}
	switch c.Maps.Backend {
	case "leaflet", "google", "mock":
	default:
		return fmt.Errorf("unknown MAPS_BACKEND %q", c.Maps.Backend)
	}
	if c.Geolocation.DefaultLat < -90 || c.Geolocation.DefaultLat > 90 ||
		c.Geolocation.DefaultLng < -180 || c.Geolocation.DefaultLng > 180 {
		return fmt.Errorf("default coordinate out of range: %f,%f", c.Geolocation.DefaultLat, c.Geolocation.DefaultLng)
	}
	if c.Discovery.DefaultRadiusKm <= 0 {
		return fmt.Errorf("DISCOVERY_DEFAULT_RADIUS_KM must be positive")
	}
	if c.Database.Enabled && c.Discovery.CatalogPath != "" {
		return fmt.Errorf("CATALOG_PATH and CATALOG_DB_ENABLED are mutually exclusive")
	}
	if c.Maps.InitAttempts < 1 {
		c.Maps.InitAttempts = 1
	}
	return nil
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseDSN returns the lib/pq connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Addr returns the HTTP listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("750ms", "10s") and bare
// integers, which are read as milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
