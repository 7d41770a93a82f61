// Package config loads runtime configuration for the caresync engine.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via -c/-config or
//     $CARESYNC_CONFIG.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "30m" or
// integer nanoseconds:
//
//	{
//	  "local_dsn": "file:caresync.db",
//	  "remote_dsn": "postgres://localhost:5432/caresync",
//	  "sync_interval": "30m",
//	  "retention_days": 30,
//	  "log_level": "debug"
//	}
package config
