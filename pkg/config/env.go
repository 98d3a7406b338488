package config

const EnvPrefix = "STUDIO"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv        = "STUDIO_APP_ENV"
	EnvPort          = "STUDIO_APP_PORT"
	EnvDBDSN         = "STUDIO_DB_DSN"
	EnvDBHost        = "STUDIO_DB_HOST"
	EnvDBUser        = "STUDIO_DB_USER"
	EnvDBPassword    = "STUDIO_DB_PASSWORD"
	EnvDBName        = "STUDIO_DB_NAME"
	EnvRedisURL      = "STUDIO_REDIS_URL"
	EnvJWTSecret     = "STUDIO_JWT_SECRET"
	EnvJWTIssuer     = "STUDIO_JWT_ISSUER"
	EnvRoleMemberID  = "STUDIO_ROLE_MEMBER_ID"
	EnvRoleInviteeID = "STUDIO_ROLE_INVITEE_ID"
	EnvRoleAdminID   = "STUDIO_ROLE_ADMIN_ID"
	EnvAdminContact  = "STUDIO_ADMIN_CONTACT_ID"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
