package config

// Config is the on-disk configuration. Values that are also accepted from the
// environment (see applyEnv) may be left empty in the file.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Moderation ModerationConfig `json:"moderation"`
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Digest     DigestConfig     `json:"digest,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ModChat and PublicChat accept "@handle", a numeric id ("-100...") or a
	// t.me URL. Invite links are rejected.
	ModChat     string `json:"mod_chat"`
	PublicChat  string `json:"public_chat"`
	MainAdminID int64  `json:"main_admin_id"`

	// Go duration strings (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	// SendRatePerSec paces outbound Bot API calls. 0 means default (25).
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
}

// ModerationConfig tunes the queue.
//
// Defaults:
//   - cooldown: "60s"
type ModerationConfig struct {
	Cooldown string `json:"cooldown,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	Chat       string `json:"chat"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the state backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DigestConfig controls the periodic pending-queue digest sent to moderators.
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron or interval, default "0 9 * * *"
	Timezone string `json:"timezone,omitempty"`
}
