package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/caresync/internal/flagx"
	"github.com/dmitrijs2005/caresync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent keys
// leave the corresponding Config field untouched.
type JsonConfig struct {
	LocalDSN      *string         `json:"local_dsn"`
	RemoteDSN     *string         `json:"remote_dsn"`
	SyncInterval  *timex.Duration `json:"sync_interval"`
	RetentionDays *int            `json:"retention_days"`
	PageSize      *int            `json:"page_size"`
	MaxPages      *int            `json:"max_pages"`
	PushBatchSize *int            `json:"push_batch_size"`
	MaxRetries    *int            `json:"max_retries"`
	RetryBackoff  *timex.Duration `json:"retry_backoff"`
	LogLevel      *string         `json:"log_level"`
}

// parseJson overlays cfg with values loaded from the JSON file named by
// -c/-config (or $CARESYNC_CONFIG). No path means no changes.
func parseJson(cfg *Config, args []string) error {
	path := flagx.JsonConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	setIf(&cfg.LocalDSN, jc.LocalDSN)
	setIf(&cfg.RemoteDSN, jc.RemoteDSN)
	setIf(&cfg.RetentionDays, jc.RetentionDays)
	setIf(&cfg.PageSize, jc.PageSize)
	setIf(&cfg.MaxPages, jc.MaxPages)
	setIf(&cfg.PushBatchSize, jc.PushBatchSize)
	setIf(&cfg.MaxRetries, jc.MaxRetries)
	setIf(&cfg.LogLevel, jc.LogLevel)
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.RetryBackoff != nil {
		cfg.RetryBackoff = jc.RetryBackoff.Duration
	}
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
