package config

import "slices"

const redacted = "***"

// RedactedConfig returns a copy of cfg with credentials replaced by "***",
// safe to log.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Chain.RPCURL) // provider URLs often embed an API key
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Slices are shared by the shallow copy.
	out.Contracts.FPMMFactories = slices.Clone(cfg.Contracts.FPMMFactories)
	out.Contracts.ScalarAdapters = slices.Clone(cfg.Contracts.ScalarAdapters)
	out.Contracts.Stablecoins = slices.Clone(cfg.Contracts.Stablecoins)
	out.NATS.Subjects = slices.Clone(cfg.NATS.Subjects)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
