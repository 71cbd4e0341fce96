package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/transport"
)

func TestDataRoundTrip(t *testing.T) {
	s, err := Data("mod", "approve", "0b6c2f0e-8f1d-4a51-9c1e-4f4e1b2d7a10")
	require.NoError(t, err)
	scope, action, payload, ok := ParseData(s)
	require.True(t, ok)
	assert.Equal(t, "mod", scope)
	assert.Equal(t, "approve", action)
	assert.Equal(t, "0b6c2f0e-8f1d-4a51-9c1e-4f4e1b2d7a10", payload)

	_, _, payload, ok = ParseData("mod:x:a:b")
	require.True(t, ok)
	assert.Equal(t, "a:b", payload)

	for _, bad := range []string{"", "mod", ":x", "mod:"} {
		_, _, _, ok := ParseData(bad)
		assert.False(t, ok, bad)
	}

	_, err = Data("mod", "approve", strings.Repeat("x", MaxCallbackDataLen))
	assert.ErrorIs(t, err, ErrCallbackDataTooLong)
}

func TestTruncRunes(t *testing.T) {
	assert.Equal(t, "привет", TruncRunes("привет", 6))
	assert.Equal(t, "при…", TruncRunes("привет", 4))
	assert.Equal(t, "", TruncRunes("привет", 0))
}

func TestHTMLHelpers(t *testing.T) {
	assert.Equal(t, H("a &lt;b&gt; &amp; c"), Esc("a <b> & c"))
	assert.Equal(t, H("<b>x&lt;</b>"), B("x<"))
	assert.Equal(t, H(`<a href="tg://user?id=5">Ann &amp; Bob</a>`), Mention("Ann & Bob", 5))
	assert.Equal(t, H("a\nc"), JoinH("\n", "a", " ", "c"))
}

func TestKeyboard(t *testing.T) {
	assert.Nil(t, Keyboard(nil))
	rm := Keyboard([][]transport.Button{
		{{Text: "yes", Data: "mod:approve:1"}},
		{{Text: "no", Data: "mod:reject:1"}},
	})
	require.NotNil(t, rm)
	require.Len(t, rm.InlineKeyboard, 2)
	assert.Equal(t, "mod:reject:1", rm.InlineKeyboard[1][0].Data)
}
