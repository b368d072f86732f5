package config

import "maps"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging the active
// configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Server.APIKey)
	redact(&out.Intent.SigningSecret)

	// Copy slices and maps so the redacted copy cannot mutate the original.
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Decision.HealthExemptChains = append([]string(nil), cfg.Decision.HealthExemptChains...)
	out.Decision.AssetCapsUSD = maps.Clone(cfg.Decision.AssetCapsUSD)
	out.Detector.Confidence = maps.Clone(cfg.Detector.Confidence)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
