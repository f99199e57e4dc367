// Package config loads Atrium configuration from ATRIUM_* environment
// variables with sensible defaults and a Validate pass.
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatalf("config: %v", err)
//	}
//
// Postgres is the only hard requirement; redis, OTel, billing, the audit
// file mirror and the S3 archive are all optional and enabled by presence
// of their settings.
package config
