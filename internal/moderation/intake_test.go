package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/transport"
)

func TestStripAnonMarker(t *testing.T) {
	cases := []struct {
		in   string
		out  string
		anon bool
	}{
		{"/anon hello", "hello", true},
		{"  /anon   spaced  ", "spaced", true},
		{"/anon", "", true},
		{"/anon\nmultiline", "multiline", true},
		{"/anonymous note", "/anonymous note", false},
		{"plain", "plain", false},
		{"say /anon later", "say /anon later", false},
	}
	for _, tc := range cases {
		out, anon := StripAnonMarker(tc.in)
		assert.Equal(t, tc.out, out, tc.in)
		assert.Equal(t, tc.anon, anon, tc.in)
	}
}

func TestParseSubmission(t *testing.T) {
	from := transport.User{ID: 5, FirstName: "A"}

	sub, err := ParseSubmission(&transport.Message{From: from, Text: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, Submission{Kind: KindText, From: from, Text: "hello"}, sub)

	_, err = ParseSubmission(&transport.Message{From: from, Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyText)

	sub, err = ParseSubmission(&transport.Message{From: from, Photo: &transport.Media{Kind: transport.MediaPhoto, FileID: "p1"}})
	require.NoError(t, err)
	assert.Equal(t, KindPhoto, sub.Kind)
	assert.Equal(t, "", sub.Text)

	sub, err = ParseSubmission(&transport.Message{
		From:    from,
		Caption: "/anon secret",
		Photo:   &transport.Media{Kind: transport.MediaPhoto, FileID: "p1"},
		Video:   &transport.Media{Kind: transport.MediaVideo, FileID: "v1"},
	})
	require.NoError(t, err)
	assert.Equal(t, KindVideo, sub.Kind)
	assert.Equal(t, "v1", sub.MediaID)
	assert.Equal(t, "secret", sub.Text)
	assert.True(t, sub.ForceAnon)

	_, err = ParseSubmission(&transport.Message{From: from, Video: &transport.Media{Kind: transport.MediaVideo}})
	assert.ErrorIs(t, err, ErrMissingMedia)
}

func TestSubmitQueuesAndPersists(t *testing.T) {
	h := newHarness(t, nil)
	events, unsub := h.bus.Subscribe(EventQueued, 4)
	defer unsub()

	req, err := h.svc.Submit(context.Background(), Submission{
		Kind: KindText, From: transport.User{ID: 5, Username: "u"}, Text: " hi ",
	}, h.now)
	require.NoError(t, err)

	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, "hi", req.Text)
	assert.Equal(t, 1, h.svc.PendingCount())
	snap := h.store.saved()
	require.Contains(t, snap.Pending, "req-1")
	assert.Equal(t, "text", snap.Pending["req-1"].Type)
	assert.Equal(t, h.now.Unix(), snap.LastSent["5"])
	assert.Equal(t, EventQueued, (<-events).Type)
	// Submit itself does not contact moderators.
	assert.Empty(t, h.tg.Sent())
}

func TestSubmitCooldown(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	from := transport.User{ID: 5}

	_, err := h.svc.Submit(ctx, Submission{Kind: KindText, From: from, Text: "one"}, h.now)
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, Submission{Kind: KindText, From: from, Text: "two"}, h.now.Add(20*time.Second))
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, int64(40), cd.RetryAfter)
	assert.Equal(t, 1, h.svc.PendingCount())
	assert.Equal(t, h.now.Unix(), h.store.saved().LastSent["5"])

	// Other submitters are unaffected.
	_, err = h.svc.Submit(ctx, Submission{Kind: KindText, From: transport.User{ID: 6}, Text: "other"}, h.now.Add(20*time.Second))
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, Submission{Kind: KindText, From: from, Text: "three"}, h.now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, h.svc.PendingCount())
}

func TestSubmitLiveCooldownChange(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	from := transport.User{ID: 5}
	_, err := h.svc.Submit(ctx, Submission{Kind: KindText, From: from, Text: "one"}, h.now)
	require.NoError(t, err)

	h.svc.SetCooldown(0)
	_, err = h.svc.Submit(ctx, Submission{Kind: KindText, From: from, Text: "two"}, h.now.Add(time.Second))
	require.NoError(t, err)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, Submission{Kind: KindText, From: transport.User{ID: 1}, Text: "  "}, h.now)
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = h.svc.Submit(ctx, Submission{Kind: "audio", From: transport.User{ID: 1}}, h.now)
	assert.ErrorIs(t, err, ErrBadKind)
	_, err = h.svc.Submit(ctx, Submission{Kind: KindPhoto, From: transport.User{ID: 1}}, h.now)
	assert.ErrorIs(t, err, ErrMissingMedia)

	assert.Zero(t, h.svc.PendingCount())
}

func TestSubmitPersistFailureReverts(t *testing.T) {
	h := newHarness(t, nil)
	h.store.failSave.Store(true)

	_, err := h.svc.Submit(context.Background(), Submission{Kind: KindText, From: transport.User{ID: 5}, Text: "x"}, h.now)
	var pe *PersistError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, errDisk)
	assert.Zero(t, h.svc.PendingCount())

	// The failed attempt must not start a cooldown.
	h.store.failSave.Store(false)
	_, err = h.svc.Submit(context.Background(), Submission{Kind: KindText, From: transport.User{ID: 5}, Text: "x"}, h.now)
	require.NoError(t, err)
}
