package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Roles         RolesConfig
	Notifications NotificationsConfig
	RateLimit     RateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Maintenance   MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Roles.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STUDIO_APP_ENV" required:"true"`
	Port         string `envconfig:"STUDIO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STUDIO_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STUDIO_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STUDIO_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"STUDIO_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STUDIO_DB_DSN"`
	Driver string `envconfig:"STUDIO_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STUDIO_DB_HOST"`
	Port     int    `envconfig:"STUDIO_DB_PORT" default:"5432"`
	User     string `envconfig:"STUDIO_DB_USER"`
	Password string `envconfig:"STUDIO_DB_PASSWORD"`
	Name     string `envconfig:"STUDIO_DB_NAME"`
	SSLMode  string `envconfig:"STUDIO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STUDIO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STUDIO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STUDIO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STUDIO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STUDIO_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STUDIO_REDIS_URL"`
	Address      string        `envconfig:"STUDIO_REDIS_ADDR"`
	Password     string        `envconfig:"STUDIO_REDIS_PASSWORD"`
	DB           int           `envconfig:"STUDIO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STUDIO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STUDIO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STUDIO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STUDIO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STUDIO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"STUDIO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STUDIO_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STUDIO_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	TempPasswordLength int `envconfig:"STUDIO_TEMP_PASSWORD_LENGTH" default:"16"`
	ArgonMemoryKB      int `envconfig:"STUDIO_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime          int `envconfig:"STUDIO_ARGON_TIME" default:"3"`
	ArgonParallelism   int `envconfig:"STUDIO_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen       int `envconfig:"STUDIO_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen        int `envconfig:"STUDIO_ARGON_KEY_LEN" default:"32"`
}

// RolesConfig maps studio roles onto the identity store's opaque role identifiers.
type RolesConfig struct {
	MemberRoleID  string `envconfig:"STUDIO_ROLE_MEMBER_ID" default:"studio-member"`
	InviteeRoleID string `envconfig:"STUDIO_ROLE_INVITEE_ID" default:"studio-invitee"`
	AdminRoleID   string `envconfig:"STUDIO_ROLE_ADMIN_ID" default:"studio-admin"`
}

func (r RolesConfig) validate() error {
	seen := map[string]string{}
	for name, id := range map[string]string{
		EnvRoleMemberID:  r.MemberRoleID,
		EnvRoleInviteeID: r.InviteeRoleID,
		EnvRoleAdminID:   r.AdminRoleID,
	} {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
		if other, ok := seen[trimmed]; ok {
			return fmt.Errorf("%s and %s share role id %q", other, name, trimmed)
		}
		seen[trimmed] = name
	}
	return nil
}

// NotificationsConfig holds transactional template ids and well-known recipients.
type NotificationsConfig struct {
	ApprovalTemplateID       string        `envconfig:"STUDIO_NOTIFY_APPROVAL_TEMPLATE" default:"membership-approved"`
	RejectionTemplateID      string        `envconfig:"STUDIO_NOTIFY_REJECTION_TEMPLATE" default:"membership-rejected"`
	PasswordSetupTemplateID  string        `envconfig:"STUDIO_NOTIFY_PASSWORD_SETUP_TEMPLATE" default:"set-password"`
	NewApplicationTemplateID string        `envconfig:"STUDIO_NOTIFY_NEW_APPLICATION_TEMPLATE" default:"new-membership-application"`
	ReviewReminderTemplateID string        `envconfig:"STUDIO_NOTIFY_REVIEW_REMINDER_TEMPLATE" default:"membership-review-reminder"`
	AdminContactID           string        `envconfig:"STUDIO_ADMIN_CONTACT_ID"`
	SendTimeout              time.Duration `envconfig:"STUDIO_NOTIFY_SEND_TIMEOUT" default:"10s"`
}

type RateLimitConfig struct {
	IntakeWindow  time.Duration `envconfig:"STUDIO_RATE_LIMIT_INTAKE_WINDOW" default:"10m"`
	IntakeIPLimit int           `envconfig:"STUDIO_RATE_LIMIT_INTAKE_IP_LIMIT" default:"5"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"STUDIO_AUTO_MIGRATE" default:"false"`
	PubSubNotifier bool `envconfig:"STUDIO_PUBSUB_NOTIFIER" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STUDIO_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"STUDIO_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"STUDIO_PUBSUB_NOTIFICATION_TOPIC" default:"studio-notifications"`
	DomainTopic       string `envconfig:"STUDIO_PUBSUB_DOMAIN_TOPIC" default:"studio-domain-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STUDIO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STUDIO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STUDIO_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// MaintenanceConfig drives the cron worker.
type MaintenanceConfig struct {
	Interval            time.Duration `envconfig:"STUDIO_MAINTENANCE_INTERVAL" default:"24h"`
	OutboxRetentionDays int           `envconfig:"STUDIO_OUTBOX_RETENTION_DAYS" default:"30"`
	ReviewReminderAfter time.Duration `envconfig:"STUDIO_REVIEW_REMINDER_AFTER" default:"168h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
