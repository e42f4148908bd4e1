package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Tracing   TracingConfig  `mapstructure:"tracing"`
	Mail      MailConfig     `mapstructure:"mail"`
	Payment   PaymentConfig  `mapstructure:"payment"`
	Reminder  ReminderConfig `mapstructure:"reminder"`
	CORS      CORSConfig     `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port        string
	Mode        string
	FrontendURL string `mapstructure:"frontend_url"`
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type MailConfig struct {
	APIURL      string        `mapstructure:"api_url"`
	APIKey      string        `mapstructure:"api_key"`
	SenderName  string        `mapstructure:"sender_name"`
	SenderEmail string        `mapstructure:"sender_email"`
	Timeout     time.Duration `mapstructure:"timeout_seconds"`
}

type PaymentConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout_seconds"`
}

type ReminderConfig struct {
	// CronSpec 提醒扫描节奏，默认每小时整点
	CronSpec string `mapstructure:"cron_spec"`
	// CleanupSpec 幂等记录清理节奏，默认每天
	CleanupSpec      string        `mapstructure:"cleanup_spec"`
	ToleranceMinutes int           `mapstructure:"tolerance_minutes"`
	RetentionDays    int           `mapstructure:"retention_days"`
	Workers          int           `mapstructure:"workers"`
	LeaseTTL         time.Duration `mapstructure:"lease_ttl_minutes"`
	RunOnStartup     bool          `mapstructure:"run_on_startup"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("CODEQUEST")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")
	viper.BindEnv("server.frontend_url", "FRONTEND_URL")

	// Mail
	viper.BindEnv("mail.api_url", "MAIL_API_URL")
	viper.BindEnv("mail.api_key", "MAIL_API_KEY")
	viper.BindEnv("mail.sender_email", "MAIL_SENDER_EMAIL")
	viper.BindEnv("mail.sender_name", "MAIL_SENDER_NAME")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Mail.Timeout = cfg.Mail.Timeout * time.Second
	cfg.Payment.Timeout = cfg.Payment.Timeout * time.Second
	cfg.Reminder.LeaseTTL = cfg.Reminder.LeaseTTL * time.Minute
	ApplyReminderDefaults(&cfg.Reminder)

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}

// ApplyReminderDefaults 兜底提醒调度参数，脚本直接读 yaml 时也要调用
func ApplyReminderDefaults(rc *ReminderConfig) {
	if rc.CronSpec == "" {
		rc.CronSpec = "0 * * * *"
	}
	if rc.CleanupSpec == "" {
		rc.CleanupSpec = "30 3 * * *"
	}
	if rc.ToleranceMinutes <= 0 {
		rc.ToleranceMinutes = 30
	}
	if rc.RetentionDays <= 0 {
		rc.RetentionDays = 7
	}
	if rc.Workers <= 0 {
		rc.Workers = 8
	}
	if rc.LeaseTTL <= 0 {
		rc.LeaseTTL = 5 * time.Minute
	}
}
