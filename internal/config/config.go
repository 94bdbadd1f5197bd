package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
	// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string
}

type GRPCConfig struct {
	Addr string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	// AutoMigrate applies pending migrations on startup.
	AutoMigrate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SecurityConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// SpentJTI turns on single-use enforcement for refresh token ids.
	SpentJTI bool
}

type CookieConfig struct {
	Secure bool
	Domain string
}

type RateLimitConfig struct {
	LoginLimit    int
	LoginWindow   time.Duration
	RefreshLimit  int
	RefreshWindow time.Duration
}

type AuditConfig struct {
	Buffer int
}

type JobsConfig struct {
	PurgeSpec        string
	PendingGaugeSpec string
}

type TierRequestConfig struct {
	// MinRejectionReason is the shortest rejection reason admins may submit.
	MinRejectionReason int
}

type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
	// DemoVendorPassword, when set, creates the demo vendor logins in the
	// in-memory stores. Ignored with postgres, which uses the seed files.
	DemoVendorPassword string
}

type AppConfig struct {
	Environment  string
	HTTP         HTTPConfig
	GRPC         GRPCConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Security     SecurityConfig
	Cookies      CookieConfig
	RateLimit    RateLimitConfig
	Audit        AuditConfig
	Jobs         JobsConfig
	TierRequests TierRequestConfig
	Bootstrap    BootstrapConfig
}

// Load reads .env (if present), config.yaml (if present) and TIERGATE_* env vars.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("TIERGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Security.AccessSecret) == "" || strings.TrimSpace(c.Security.RefreshSecret) == "" {
		return errors.New("config: security.accesssecret and security.refreshsecret are required")
	}
	if c.Security.AccessSecret == c.Security.RefreshSecret {
		return errors.New("config: access and refresh secrets must differ")
	}
	if c.Security.AccessTTL <= 0 || c.Security.RefreshTTL <= 0 {
		return errors.New("config: token ttls must be positive")
	}
	if c.RateLimit.LoginLimit <= 0 || c.RateLimit.RefreshLimit <= 0 {
		return errors.New("config: rate limits must be positive")
	}
	return nil
}

// Production reports whether the service runs with production defaults.
func (c *AppConfig) Production() bool {
	return c.Environment == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readtimeout", "15s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxbodybytes", 1<<20)
	v.SetDefault("http.trustedproxies", []string{})

	v.SetDefault("grpc.addr", "")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 20)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.automigrate", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.accesssecret", "")
	v.SetDefault("security.refreshsecret", "")
	v.SetDefault("security.accessttl", "1h")
	v.SetDefault("security.refreshttl", "168h") // 7 days
	v.SetDefault("security.spentjti", false)

	v.SetDefault("cookies.secure", true)
	v.SetDefault("cookies.domain", "")

	v.SetDefault("ratelimit.loginlimit", 5)
	v.SetDefault("ratelimit.loginwindow", "15m")
	v.SetDefault("ratelimit.refreshlimit", 10)
	v.SetDefault("ratelimit.refreshwindow", "1m")

	v.SetDefault("audit.buffer", 256)

	v.SetDefault("jobs.purgespec", "0 */5 * * * *")
	v.SetDefault("jobs.pendinggaugespec", "30 * * * * *")

	v.SetDefault("tierrequests.minrejectionreason", 10)

	v.SetDefault("bootstrap.adminemail", "")
	v.SetDefault("bootstrap.adminpassword", "")
	v.SetDefault("bootstrap.demovendorpassword", "")
}
