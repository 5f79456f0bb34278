package config

import (
	"net/url"
	"slices"
)

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log. Keys, passwords
// and tokens are replaced by "***"; a Postgres DSN keeps its host and
// database but loses its credentials.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)

	for _, s := range []*string{
		&out.Operator.PrivateKey,
		&out.Operator.KeyPassword,
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Server.APIKey,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *s != "" {
			*s = redacted
		}
	}
	out.Postgres.DSN = redactDSN(cfg.Postgres.DSN)
	return out
}

// redactDSN masks the password of a URL-style DSN. Keyword/value DSNs are
// masked whole since the password may sit anywhere in them.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return redacted
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	return u.String()
}
