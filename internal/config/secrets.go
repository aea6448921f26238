package config

import "maps"

const redacted = "***"

// RedactedConfig returns a copy of cfg with secrets masked, for logging
// and the status endpoint.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Redis.URL)
	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Dispatch.SenderKey)
	redact(&out.Dispatch.SenderKeyPassword)
	redact(&out.Server.APIKey)
	redact(&out.Server.APIKeyHash)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Fresh slices and maps so the copy cannot alias the original.
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Risk.BlockedTokens = append([]string(nil), cfg.Risk.BlockedTokens...)
	out.Risk.BlockedVenues = append([]string(nil), cfg.Risk.BlockedVenues...)
	out.Detector.VenueFees = maps.Clone(cfg.Detector.VenueFees)
	out.Risk.MaxPositionEth = maps.Clone(cfg.Risk.MaxPositionEth)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
