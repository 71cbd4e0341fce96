package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"modbot/internal/digest"
	"modbot/internal/transport"
)

const (
	DefaultCooldown       = 60 * time.Second
	DefaultPollTimeout    = 10 * time.Second
	DefaultSendTimeout    = 15 * time.Second
	DefaultSendRatePerSec = 25
	DefaultStatePath      = "./data.json"
	DefaultDigestSchedule = "0 9 * * *"
)

// Environment variables that override the file. They mirror the deployment
// contract of a plain .env based setup.
const (
	EnvToken       = "BOT_TOKEN"
	EnvModChat     = "MOD_CHAT_ID"
	EnvPublicChat  = "PUBLIC_CHAT_ID"
	EnvMainAdminID = "MAIN_ADMIN_ID"
)

// Settings is the validated, typed view of Config used to wire the app.
type Settings struct {
	Token       string
	ModChat     transport.ChatTarget
	PublicChat  transport.ChatTarget
	MainAdminID int64

	PollTimeout    time.Duration
	SendTimeout    time.Duration
	SendRatePerSec int

	Cooldown time.Duration

	StorageDriver string
	StoragePath   string
	BusyTimeout   time.Duration

	LogChat transport.ChatTarget

	DigestEnabled  bool
	DigestSchedule string
	DigestLocation *time.Location
}

// Resolve validates cfg and returns typed settings. All problems are reported
// together in a single *Error.
func (c *Config) Resolve() (*Settings, error) {
	if c == nil {
		c = &Config{}
	}
	problems := &Error{}
	s := &Settings{
		Token:       strings.TrimSpace(c.Telegram.Token),
		MainAdminID: c.Telegram.MainAdminID,
	}

	var missing []string
	if s.Token == "" {
		missing = append(missing, EnvToken)
	}
	if strings.TrimSpace(c.Telegram.ModChat) == "" {
		missing = append(missing, EnvModChat)
	}
	if strings.TrimSpace(c.Telegram.PublicChat) == "" {
		missing = append(missing, EnvPublicChat)
	}
	if s.MainAdminID == 0 {
		missing = append(missing, EnvMainAdminID)
	}
	if len(missing) > 0 {
		problems.add("missing required settings: " + strings.Join(missing, ", "))
	}
	if s.MainAdminID < 0 {
		problems.add(EnvMainAdminID + " must be a positive user id")
	}

	if strings.TrimSpace(c.Telegram.ModChat) != "" {
		t, err := ParseChatTarget("telegram.mod_chat", c.Telegram.ModChat)
		if err != nil {
			problems.add(err.Error())
		}
		s.ModChat = t
	}
	if strings.TrimSpace(c.Telegram.PublicChat) != "" {
		t, err := ParseChatTarget("telegram.public_chat", c.Telegram.PublicChat)
		if err != nil {
			problems.add(err.Error())
		}
		s.PublicChat = t
	}

	var err error
	if s.PollTimeout, err = ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout); err != nil {
		problems.add(err.Error())
	}
	if s.SendTimeout, err = ParseDurationOrDefault("telegram.send_timeout", c.Telegram.SendTimeout, DefaultSendTimeout); err != nil {
		problems.add(err.Error())
	}
	s.SendRatePerSec = c.Telegram.SendRatePerSec
	if s.SendRatePerSec < 0 {
		problems.add("telegram.send_rate_per_sec must be >= 0")
	} else if s.SendRatePerSec == 0 {
		s.SendRatePerSec = DefaultSendRatePerSec
	}

	if s.Cooldown, err = ParseDurationOrDefault("moderation.cooldown", c.Moderation.Cooldown, DefaultCooldown); err != nil {
		problems.add(err.Error())
	} else if s.Cooldown < time.Second {
		problems.add("moderation.cooldown must be at least 1s")
	}

	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch driver {
	case "", "file":
		s.StorageDriver = "file"
		s.StoragePath = strings.TrimSpace(c.Storage.Path)
		if s.StoragePath == "" {
			s.StoragePath = DefaultStatePath
		}
	case "sqlite", "sqlite3":
		s.StorageDriver = "sqlite"
		s.StoragePath = strings.TrimSpace(c.Storage.Path)
		if s.StoragePath == "" {
			problems.add("storage.path is required when storage.driver=sqlite")
		}
		if s.BusyTimeout, err = ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, time.Second); err != nil {
			problems.add(err.Error())
		}
	default:
		problems.add("unknown storage.driver: " + c.Storage.Driver)
	}

	if c.Logging.Telegram.Enabled {
		t, err := ParseChatTarget("logging.telegram.chat", c.Logging.Telegram.Chat)
		if err != nil {
			problems.add(err.Error())
		}
		s.LogChat = t
	}

	s.DigestEnabled = c.Digest.Enabled
	s.DigestSchedule = strings.TrimSpace(c.Digest.Schedule)
	if s.DigestSchedule == "" {
		s.DigestSchedule = DefaultDigestSchedule
	}
	s.DigestLocation = time.Local
	if tz := strings.TrimSpace(c.Digest.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			problems.add(fmt.Sprintf("digest.timezone: invalid %q: %v", tz, err))
		} else {
			s.DigestLocation = loc
		}
	}
	if c.Digest.Enabled {
		if _, err := digest.ParseSchedule(s.DigestSchedule); err != nil {
			problems.add("digest.schedule: " + err.Error())
		}
	}

	if err := problems.orNil(); err != nil {
		return nil, err
	}
	return s, nil
}

// applyEnv overlays the environment on top of the file values.
func applyEnv(c *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvToken)); v != "" {
		c.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvModChat)); v != "" {
		c.Telegram.ModChat = v
	}
	if v := strings.TrimSpace(getenv(EnvPublicChat)); v != "" {
		c.Telegram.PublicChat = v
	}
	if v := strings.TrimSpace(getenv(EnvMainAdminID)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &Error{Problems: []string{fmt.Sprintf("%s must be a number, got %q", EnvMainAdminID, v)}}
		}
		c.Telegram.MainAdminID = id
	}
	return nil
}
