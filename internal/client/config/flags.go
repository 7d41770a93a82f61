package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/caresync/internal/flagx"
)

var allowedFlags = flagx.Allowed{
	"-l": true, "-r": true, "-i": true, "-d": true,
	"-p": true, "-m": true, "-b": true, "-n": true, "-v": true,
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-l string   local SQLite DSN
//	-r string   remote Postgres DSN
//	-i int      sync interval (in seconds)
//	-d int      tombstone retention (in days)
//	-p int      pull page size
//	-m int      pull page cap
//	-b int      push batch size
//	-n int      max retries per pass
//	-v string   log level
//
// Unknown arguments are dropped by flagx.FilterArgs so the cmd layer can own
// its mode switches.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("caresync", flag.ContinueOnError)

	fs.StringVar(&cfg.LocalDSN, "l", cfg.LocalDSN, "local SQLite DSN")
	fs.StringVar(&cfg.RemoteDSN, "r", cfg.RemoteDSN, "remote Postgres DSN")
	interval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")
	fs.IntVar(&cfg.RetentionDays, "d", cfg.RetentionDays, "tombstone retention (in days)")
	fs.IntVar(&cfg.PageSize, "p", cfg.PageSize, "pull page size")
	fs.IntVar(&cfg.MaxPages, "m", cfg.MaxPages, "pull page cap")
	fs.IntVar(&cfg.PushBatchSize, "b", cfg.PushBatchSize, "push batch size")
	fs.IntVar(&cfg.MaxRetries, "n", cfg.MaxRetries, "max retries per pass")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, allowedFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	cfg.SyncInterval = time.Duration(*interval) * time.Second
	return nil
}
