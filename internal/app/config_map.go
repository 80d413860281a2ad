package app

import (
	"fmt"
	"strings"
	"time"

	"vrcinvited/internal/config"
	"vrcinvited/internal/notify"
	"vrcinvited/internal/schedule"
	"vrcinvited/internal/storage"
	logx "vrcinvited/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "INFO", Console: true}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleOrDefault(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Mirror: logx.MirrorConfig{
			Enabled:    cfg.Logging.Mirror.Enabled,
			MinLevel:   cfg.Logging.Mirror.MinLevel,
			RatePerSec: cfg.Logging.Mirror.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	if cfg == nil || cfg.Notify == nil {
		return notify.Config{}, nil
	}
	nc := cfg.Notify
	window, err := config.ParseDurationOrDefault("notify.dedup_window", nc.DedupWindow, 0)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Enabled:     nc.Enabled,
		Token:       nc.Token,
		ChatID:      nc.ChatID,
		RatePerSec:  nc.RatePerSec,
		DedupWindow: window,
	}, nil
}

func mapScheduleConfig(cfg *config.Config) schedule.Config {
	if cfg == nil || cfg.Schedule == nil {
		return schedule.Config{}
	}
	return schedule.Config{
		Enabled:  cfg.Schedule.Enabled,
		Spec:     cfg.Schedule.Spec,
		Timezone: cfg.Schedule.Timezone,
	}
}
