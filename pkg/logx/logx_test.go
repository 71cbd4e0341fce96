package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/transport"
	"modbot/internal/transport/transporttest"
)

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	l.Info("dropped", String("k", "v"))
	assert.False(t, l.With(String("comp", "x")).IsZero())
	assert.False(t, Nop().IsZero())
}

func TestWithAddsFieldsWithoutSharing(t *testing.T) {
	var buf bytes.Buffer
	base := FromZerolog(zerolog.New(&buf))
	a := base.With(String("comp", "a"))
	b := a.With(Int("n", 1))

	a.Info("first")
	b.Warn("second", Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "a", first["comp"])
	assert.NotContains(t, first, "n")
	assert.Equal(t, float64(1), second["n"])
	assert.Equal(t, "boom", second["err"])
	assert.Equal(t, "warn", second["level"])
}

func TestServiceFileSinkAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, nil)
	defer svc.Close()

	log.Debug("hidden")
	log.Info("queued", Int64("user_id", 5))

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("now visible")

	require.NoError(t, svc.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"user_id":5`)
	assert.Contains(t, out, "now visible")
}

func TestTelegramSinkForwardsAboveMinLevel(t *testing.T) {
	tg := transporttest.New()
	svc, log := New(Config{
		Level: "debug",
		Telegram: TelegramConfig{
			Enabled:    true,
			Target:     transport.ChatTarget{ChatID: -42},
			MinLevel:   "warn",
			RatePerSec: 10,
		},
		File: FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "bot.log")},
	}, tg)
	defer svc.Close()

	log.Info("not forwarded")
	log.Error("save failed", String("op", "decide"))

	require.Eventually(t, func() bool { return len(tg.Filter("text", -42)) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := tg.Filter("text", -42)[0].Text
	assert.True(t, strings.HasPrefix(got, "[ERROR] save failed"), got)
	assert.Contains(t, got, "- op=decide")
}

func TestFormatTelegramLine(t *testing.T) {
	line := `{"level":"warn","time":"x","message":"send failed","chat_id":7,"err":"timeout"}`
	assert.Equal(t, "[WARN] send failed\n- chat_id=7\n- err=timeout", formatTelegramLine([]byte(line)))
	assert.Equal(t, "plain text", formatTelegramLine([]byte(" plain text \n")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
}
