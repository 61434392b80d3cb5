package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Profiling ProfilingConfig
	Auth      AuthConfig
	CRM       CRMConfig
	Custodian CustodianConfig
}

// AuthConfig configures how callers are identified. Access tokens are issued
// by the practice app's identity service and validated here with a shared secret.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	// AllowHeaderIdentity accepts X-Tenant-ID / X-User-ID headers when no
	// bearer token is sent. Development only.
	AllowHeaderIdentity bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	// RequestTimeout bounds each API call, including the CRM round trips
	RequestTimeout time.Duration
	// RateLimit is the number of requests per tenant per RateWindow; 0 disables it
	RateLimit  int
	RateWindow time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	ExportLogs        bool // Bridge zap records to the collector
	DBTracing         bool // Emit a span per SQL statement
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	ProfileTypes      []string
	// SpanProfiles links CPU samples to trace spans
	SpanProfiles bool
}

// CRMConfig selects and configures the active CRM provider
type CRMConfig struct {
	// Provider is compared case-insensitively; empty means salesforce
	Provider   string
	Salesforce SalesforceConfig
	// TokenTTL bounds how long a provider access token is cached
	TokenTTL time.Duration
	// KeepRawPayloads attaches the provider record to canonical records
	KeepRawPayloads bool
	Local           LocalCRMConfig
}

// LocalCRMConfig configures the database-backed provider
type LocalCRMConfig struct {
	// RecordBaseURL prefixes the links returned for created records
	RecordBaseURL string
}

// SalesforceConfig holds Salesforce connected-app settings
type SalesforceConfig struct {
	InstanceURL    string
	LoginURL       string
	APIVersion     string
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	TimeoutSeconds int
	// HouseholdRecordTypeID is set on created household accounts when the org
	// uses a household record type
	HouseholdRecordTypeID string
	// AdvisorNameField is a custom text field on Account receiving the advisor name
	AdvisorNameField string
}

// CustodianConfig configures the custodial positions feed stored in S3.
// The data source is disabled when Bucket is empty.
type CustodianConfig struct {
	Bucket          string
	Key             string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// MaxFeedBytes rejects larger feeds
	MaxFeedBytes int64
}

// Enabled reports whether a custodial feed is configured
func (c CustodianConfig) Enabled() bool {
	return c.Bucket != ""
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ADVISOR_ prefix (e.g., ADVISOR_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
//
// The CRM provider may also be set with the unprefixed CRM_PROVIDER variable.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("ADVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("crm.provider", "ADVISOR_CRM_PROVIDER", "CRM_PROVIDER"); err != nil {
		return nil, fmt.Errorf("error binding crm.provider: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			RequestTimeout:   v.GetDuration("http.request_timeout"),
			RateLimit:        v.GetInt("http.rate_limit"),
			RateWindow:       v.GetDuration("http.rate_window"),
		},
		Auth: AuthConfig{
			JWTSecret:           v.GetString("auth.jwt_secret"),
			Issuer:              v.GetString("auth.issuer"),
			AllowHeaderIdentity: v.GetBool("auth.allow_header_identity"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			ExportLogs:        v.GetBool("telemetry.export_logs"),
			DBTracing:         v.GetBool("telemetry.db_tracing"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			ProfileTypes:      v.GetStringSlice("profiling.profile_types"),
			SpanProfiles:      v.GetBool("profiling.span_profiles"),
		},
		CRM: CRMConfig{
			Provider:        v.GetString("crm.provider"),
			TokenTTL:        v.GetDuration("crm.token_ttl"),
			KeepRawPayloads: v.GetBool("crm.keep_raw_payloads"),
			Local: LocalCRMConfig{
				RecordBaseURL: v.GetString("crm.local.record_base_url"),
			},
			Salesforce: SalesforceConfig{
				InstanceURL:    v.GetString("crm.salesforce.instance_url"),
				LoginURL:       v.GetString("crm.salesforce.login_url"),
				APIVersion:     v.GetString("crm.salesforce.api_version"),
				ClientID:       v.GetString("crm.salesforce.client_id"),
				ClientSecret:   v.GetString("crm.salesforce.client_secret"),
				RefreshToken:   v.GetString("crm.salesforce.refresh_token"),
				TimeoutSeconds: v.GetInt("crm.salesforce.timeout_seconds"),

				HouseholdRecordTypeID: v.GetString("crm.salesforce.household_record_type_id"),
				AdvisorNameField:      v.GetString("crm.salesforce.advisor_name_field"),
			},
		},
		Custodian: CustodianConfig{
			Bucket:          v.GetString("custodian.bucket"),
			Key:             v.GetString("custodian.key"),
			Region:          v.GetString("custodian.region"),
			Endpoint:        v.GetString("custodian.endpoint"),
			AccessKeyID:     v.GetString("custodian.access_key_id"),
			SecretAccessKey: v.GetString("custodian.secret_access_key"),
			UsePathStyle:    v.GetBool("custodian.use_path_style"),
			MaxFeedBytes:    v.GetInt64("custodian.max_feed_bytes"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "advisor-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "advisor"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "advisor.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 2 << 20 // 2MB
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 60 * time.Second
	}
	if cfg.HTTP.RateWindow == 0 {
		cfg.HTTP.RateWindow = time.Minute
	}
	// An empty origin list means no cross-origin requests until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID", "X-User-ID"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "advisor-backend"
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}
	// The provider name is left as configured; the registry resolves the default
	// so that an unknown value is reported verbatim.
	if cfg.CRM.TokenTTL == 0 {
		cfg.CRM.TokenTTL = 90 * time.Minute
	}
	if cfg.CRM.Salesforce.LoginURL == "" {
		cfg.CRM.Salesforce.LoginURL = "https://login.salesforce.com"
	}
	if cfg.CRM.Salesforce.APIVersion == "" {
		cfg.CRM.Salesforce.APIVersion = "v59.0"
	}
	if cfg.CRM.Salesforce.TimeoutSeconds == 0 {
		cfg.CRM.Salesforce.TimeoutSeconds = 30
	}
	if cfg.CRM.Local.RecordBaseURL == "" {
		cfg.CRM.Local.RecordBaseURL = "/api/v1"
	}
	if cfg.Custodian.MaxFeedBytes == 0 {
		cfg.Custodian.MaxFeedBytes = 64 << 20 // 64MB
	}
	if cfg.Custodian.Key == "" {
		cfg.Custodian.Key = "positions/latest.csv"
	}
	if cfg.Custodian.Region == "" {
		cfg.Custodian.Region = "us-east-1"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required in production")
		}
		if c.Auth.AllowHeaderIdentity {
			return fmt.Errorf("auth.allow_header_identity cannot be enabled in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Auth.JWTSecret == "" && !c.Auth.AllowHeaderIdentity {
		return fmt.Errorf("auth.jwt_secret is required unless auth.allow_header_identity is enabled")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit cannot be negative")
	}
	if c.Custodian.MaxFeedBytes < 0 {
		return fmt.Errorf("custodian.max_feed_bytes cannot be negative")
	}
	if c.Custodian.Enabled() && c.Custodian.Key == "" {
		return fmt.Errorf("custodian.key is required when custodian.bucket is set")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
