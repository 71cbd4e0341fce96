package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/transport"
)

func noEnv(string) string { return "" }

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const fullYAML = `
telegram:
  token: "123:abc"
  mod_chat: "-1001"
  public_chat: "@news"
  main_admin_id: 42
  poll_timeout: 5s
moderation:
  cooldown: 30s
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./state.db
digest:
  enabled: true
  schedule: "30 8 * * 1-5"
  timezone: UTC
`

func TestLoadYAML(t *testing.T) {
	m := NewConfigManager(writeConfig(t, "config.yaml", fullYAML), WithEnv(noEnv))
	cfg, st, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	assert.Equal(t, "123:abc", st.Token)
	assert.Equal(t, transport.ChatTarget{ChatID: -1001}, st.ModChat)
	assert.Equal(t, transport.ChatTarget{Username: "@news"}, st.PublicChat)
	assert.Equal(t, int64(42), st.MainAdminID)
	assert.Equal(t, 5*time.Second, st.PollTimeout)
	assert.Equal(t, DefaultSendTimeout, st.SendTimeout)
	assert.Equal(t, DefaultSendRatePerSec, st.SendRatePerSec)
	assert.Equal(t, 30*time.Second, st.Cooldown)
	assert.Equal(t, "sqlite", st.StorageDriver)
	assert.Equal(t, time.Second, st.BusyTimeout)
	assert.True(t, st.DigestEnabled)
	assert.Equal(t, time.UTC, st.DigestLocation)
	assert.Same(t, st, m.Settings())
}

func TestEnvOnlyDeployment(t *testing.T) {
	env := map[string]string{
		EnvToken:       "t",
		EnvModChat:     "https://t.me/mods",
		EnvPublicChat:  "-1002",
		EnvMainAdminID: "7",
	}
	m := NewConfigManager(filepath.Join(t.TempDir(), "missing.yaml"), WithEnv(func(k string) string { return env[k] }))
	_, st, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, transport.ChatTarget{Username: "@mods"}, st.ModChat)
	assert.Equal(t, int64(7), st.MainAdminID)
	assert.Equal(t, DefaultCooldown, st.Cooldown)
	assert.Equal(t, "file", st.StorageDriver)
	assert.Equal(t, DefaultStatePath, st.StoragePath)
}

func TestMissingSettingsReportedTogether(t *testing.T) {
	m := NewConfigManager(writeConfig(t, "config.json", `{"moderation":{"cooldown":"bogus"}}`), WithEnv(noEnv))
	_, _, err := m.Load()
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Problems, 2)
	assert.Contains(t, cerr.Problems[0], "BOT_TOKEN, MOD_CHAT_ID, PUBLIC_CHAT_ID, MAIN_ADMIN_ID")
	assert.Contains(t, cerr.Problems[1], "moderation.cooldown")
}

func TestRejectsUnknownFieldsAndBadEnv(t *testing.T) {
	m := NewConfigManager(writeConfig(t, "config.json", `{"telegram":{"tokn":"x"}}`), WithEnv(noEnv))
	_, _, err := m.Load()
	assert.Error(t, err)

	m = NewConfigManager(filepath.Join(t.TempDir(), "none.json"), WithEnv(func(k string) string {
		if k == EnvMainAdminID {
			return "abc"
		}
		return ""
	}))
	_, _, err = m.Load()
	assert.ErrorContains(t, err, "MAIN_ADMIN_ID must be a number")
}

func TestNegativeMainAdminIsConfigError(t *testing.T) {
	env := map[string]string{
		EnvToken:       "1:abc",
		EnvModChat:     "-1001",
		EnvPublicChat:  "-1002",
		EnvMainAdminID: "-5",
	}
	m := NewConfigManager(filepath.Join(t.TempDir(), "none.json"), WithEnv(func(k string) string { return env[k] }))
	_, _, err := m.Load()
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.ErrorContains(t, err, "MAIN_ADMIN_ID must be a positive user id")
	assert.NotContains(t, err.Error(), "missing required settings")
}

func TestParseChatTarget(t *testing.T) {
	cases := []struct {
		raw  string
		want transport.ChatTarget
		err  bool
	}{
		{raw: "@mods", want: transport.ChatTarget{Username: "@mods"}},
		{raw: "mods", want: transport.ChatTarget{Username: "@mods"}},
		{raw: "-100123", want: transport.ChatTarget{ChatID: -100123}},
		{raw: "https://t.me/mods", want: transport.ChatTarget{Username: "@mods"}},
		{raw: "https://t.me/+AbCdEf", err: true},
		{raw: "https://t.me/joinchat/AbCdEf", err: true},
		{raw: "@", err: true},
		{raw: " ", err: true},
	}
	for _, tc := range cases {
		got, err := ParseChatTarget("f", tc.raw)
		if tc.err {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestReloadPublishesChangedSections(t *testing.T) {
	path := writeConfig(t, "config.yaml", fullYAML)
	m := NewConfigManager(path, WithEnv(noEnv))
	_, _, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	changed, err := m.Reload()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(path, []byte(fullYAML+"\n"), 0o600))
	changed, err = m.Reload()
	require.NoError(t, err)
	assert.False(t, changed, "whitespace only")

	edited := fullYAML[:len(fullYAML)-len("  timezone: UTC\n")] + "  timezone: Local\n"
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o600))
	changed, err = m.Reload()
	require.NoError(t, err)
	require.True(t, changed)

	u := <-sub
	assert.Equal(t, []string{"digest"}, u.Changed)
	assert.Equal(t, "Local", u.Config.Digest.Timezone)
}

func TestReloadKeepsPreviousOnInvalid(t *testing.T) {
	path := writeConfig(t, "config.yaml", fullYAML)
	m := NewConfigManager(path, WithEnv(noEnv))
	_, st, err := m.Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("moderation:\n  cooldown: 10ms\n"), 0o600))
	changed, err := m.Reload()
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Same(t, st, m.Settings())
}
