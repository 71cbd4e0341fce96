package app

import (
	"modbot/internal/config"
	"modbot/internal/digest"
	"modbot/internal/storage"
	logx "modbot/pkg/logx"
)

func mapStorageConfig(st *config.Settings) storage.Config {
	return storage.Config{
		Driver:      st.StorageDriver,
		Path:        st.StoragePath,
		BusyTimeout: st.BusyTimeout,
	}
}

func mapLogConfig(cfg *config.Config, st *config.Settings) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			Target:     st.LogChat,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapDigestConfig(st *config.Settings) digest.Config {
	return digest.Config{
		Enabled:  st.DigestEnabled,
		Schedule: st.DigestSchedule,
		Location: st.DigestLocation,
	}
}
