package bot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/moderation"
	"modbot/internal/storage"
	"modbot/internal/transport"
	"modbot/internal/transport/telegram/router"
	"modbot/internal/transport/transporttest"
	logx "modbot/pkg/logx"
)

const (
	mainAdmin = int64(100)
	modChat   = int64(-1001)
	public    = int64(-1002)
)

type env struct {
	t     *testing.T
	tg    *transporttest.Adapter
	svc   *moderation.Service
	bot   *Bot
	store storage.Store
	now   time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "data.json")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := &env{t: t, tg: transporttest.New(), store: st, now: time.Unix(1_700_000_000, 0)}
	e.svc, err = moderation.New(context.Background(), moderation.Options{
		Store:       st,
		Adapter:     e.tg,
		ModChat:     transport.ChatTarget{ChatID: modChat},
		PublicChat:  transport.ChatTarget{ChatID: public},
		MainAdminID: mainAdmin,
		Cooldown:    time.Minute,
	})
	require.NoError(t, err)
	e.bot = New(e.svc, logx.Nop())
	e.bot.now = func() time.Time { return e.now }
	return e
}

// deliver routes updates one after another and waits until they are handled.
func (e *env) deliver(ups ...transport.Update) {
	e.t.Helper()
	for _, up := range ups {
		opts := RouterOptions(logx.Nop(), e.tg, e.svc)
		opts.Workers = 1
		m := router.New(opts)
		e.bot.Register(context.Background(), m)
		ch := make(chan transport.Update, 1)
		ch <- up
		close(ch)
		require.NoError(e.t, m.DispatchLoop(context.Background(), ch))
	}
}

func text(from int64, s string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ChatID: from, From: transport.User{ID: from, FirstName: "User", Username: "user"}, Text: s,
	}}
}

func press(from, chat int64, card transporttest.Sent, data string) transport.Update {
	return transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{
		ID: "cb-" + data, From: transport.User{ID: from}, ChatID: chat, MessageID: card.Ref.MessageID,
		Data: data, HasCaption: card.Op != "text", MessageText: card.Text,
	}}
}

// lastTo returns the text of the last message sent to chatID.
func (e *env) lastTo(chatID int64) string {
	msgs := e.tg.Filter("text", chatID)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

// card returns the review card sent for the newest request, with its ref.
func (e *env) card(op string) (transporttest.Sent, string) {
	e.t.Helper()
	sent := e.tg.Filter(op, modChat)
	require.NotEmpty(e.t, sent)
	c := sent[len(sent)-1]
	require.NotNil(e.t, c.Opt)
	require.Len(e.t, c.Opt.Keyboard, 2)
	_, id, err := moderation.DecodeAction(c.Opt.Keyboard[0][0].Data)
	require.NoError(e.t, err)
	return c, id
}

func TestTextApproveFlow(t *testing.T) {
	e := newEnv(t)

	e.deliver(text(5, "hello <world>"))
	assert.Equal(t, replyQueued, e.lastTo(5))
	card, id := e.card("text")
	assert.Contains(t, card.Text, "Новое сообщение #"+id)
	assert.Contains(t, card.Text, "hello &lt;world&gt;")
	assert.Equal(t, 1, e.svc.PendingCount())

	data, err := moderation.EncodeAction(moderation.ActionApprove, id)
	require.NoError(t, err)
	e.deliver(press(mainAdmin, modChat, card, data))

	assert.Equal(t, "hello <world>", e.lastTo(public))
	assert.Equal(t, "Ваше сообщение опубликовано. Спасибо!", e.lastTo(5))
	assert.Zero(t, e.svc.PendingCount())

	edits := e.tg.Filter("edit_text", modChat)
	require.Len(t, edits, 1)
	assert.True(t, strings.HasSuffix(edits[0].Text, "\n\nСтатус: одобрено модератором 100"))

	answers := e.tg.Filter("answer", 0)
	require.Len(t, answers, 1)
	assert.Equal(t, "", answers[0].Text)

	// A second press finds nothing to do.
	e.deliver(press(mainAdmin, modChat, card, data))
	answers = e.tg.Filter("answer", 0)
	require.Len(t, answers, 2)
	assert.Equal(t, replyHandled, answers[1].Text)
	assert.True(t, answers[1].Alert)
	assert.Len(t, e.tg.Filter("text", public), 1)
	assert.Len(t, e.tg.Filter("clear_kb", modChat), 1)
}

func TestAnonymousPhotoRejectFlow(t *testing.T) {
	e := newEnv(t)
	e.deliver(transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ChatID: 6, From: transport.User{ID: 6, FirstName: "Ann"}, Caption: "/anon look",
		Photo: &transport.Media{Kind: transport.MediaPhoto, FileID: "photo-1"},
	}})
	assert.Equal(t, replyQueued, e.lastTo(6))

	card, id := e.card("photo")
	assert.Equal(t, "photo-1", card.FileID)
	assert.Contains(t, card.Text, "Анонимность запрошена: да")
	assert.Contains(t, card.Text, "look")
	assert.NotContains(t, card.Text, "/anon")

	data, err := moderation.EncodeAction(moderation.ActionReject, id)
	require.NoError(t, err)
	// Pressed by someone outside the admin set, but inside the moderation chat.
	e.deliver(press(777, modChat, card, data))

	assert.Empty(t, e.tg.Filter("photo", public))
	assert.Equal(t, "Сообщение отклонено модератором.", e.lastTo(6))
	caps := e.tg.Filter("edit_caption", modChat)
	require.Len(t, caps, 1)
	assert.True(t, strings.HasSuffix(caps[0].Text, "Статус: отклонено модератором 777"))
}

func TestAnonymousCaptionlessPhotoRejectFlow(t *testing.T) {
	e := newEnv(t)
	e.deliver(transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ChatID: 6, From: transport.User{ID: 6, FirstName: "Ann"}, Caption: "/anon",
		Photo: &transport.Media{Kind: transport.MediaPhoto, FileID: "photo-2"},
	}})
	assert.Equal(t, replyQueued, e.lastTo(6))

	card, id := e.card("photo")
	req, ok := e.svc.Pending(id)
	require.True(t, ok)
	assert.Equal(t, moderation.KindPhoto, req.Kind)
	assert.Equal(t, "", req.Text)
	assert.True(t, req.ForceAnon)
	assert.Equal(t, "photo-2", req.MediaID)
	assert.Equal(t, int64(6), req.UserID)
	assert.Contains(t, card.Text, "Анонимность запрошена: да")

	data, err := moderation.EncodeAction(moderation.ActionReject, id)
	require.NoError(t, err)
	e.deliver(press(mainAdmin, modChat, card, data))

	assert.Empty(t, e.tg.Filter("photo", public))
	assert.Empty(t, e.tg.Filter("text", public))
	assert.Equal(t, "Сообщение отклонено модератором.", e.lastTo(6))
	assert.Zero(t, e.svc.PendingCount())
	assert.Equal(t, []int64{mainAdmin}, e.svc.Admins())

	snap, err := e.store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Pending)
	assert.Equal(t, []int64{mainAdmin}, snap.Admins)
}

func TestPressOutsideModChatForbidden(t *testing.T) {
	e := newEnv(t)
	e.deliver(text(5, "x"))
	card, id := e.card("text")
	data, _ := moderation.EncodeAction(moderation.ActionApprove, id)

	e.deliver(press(777, 777, card, data))

	answers := e.tg.Filter("answer", 0)
	require.Len(t, answers, 1)
	assert.Equal(t, replyForbiddenAlert, answers[0].Text)
	assert.True(t, answers[0].Alert)
	assert.Equal(t, 1, e.svc.PendingCount())
}

func TestCooldownAndEmptyText(t *testing.T) {
	e := newEnv(t)

	e.deliver(text(5, "first"))
	e.now = e.now.Add(15 * time.Second)
	e.deliver(text(5, "second"))
	assert.Equal(t, replyCooldown(45), e.lastTo(5))
	assert.Equal(t, 1, e.svc.PendingCount())

	e.deliver(text(8, "   "))
	assert.Equal(t, replyEmpty, e.lastTo(8))

	e.deliver(text(9, "/anon"))
	assert.Equal(t, replyAnonUsage, e.lastTo(9))

	e.deliver(text(9, "/anon tell them"))
	assert.Equal(t, replyQueued, e.lastTo(9))
	card, _ := e.card("text")
	assert.Contains(t, card.Text, "Анонимность запрошена: да")
	assert.Contains(t, card.Text, "tell them")
}

func TestModChatChatterIsNotASubmission(t *testing.T) {
	e := newEnv(t)
	e.deliver(transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ChatID: modChat, From: transport.User{ID: mainAdmin}, Text: "discussing", IsGroup: true,
	}})
	assert.Zero(t, e.svc.PendingCount())
	assert.Empty(t, e.tg.Sent())
}

func TestAdminCommands(t *testing.T) {
	e := newEnv(t)

	e.deliver(text(7, "/add_admin 8"))
	assert.Equal(t, replyNotMainAdmin, e.lastTo(7))

	e.deliver(text(mainAdmin, "/add_admin"))
	assert.Equal(t, "Использование: /add_admin <id>", e.lastTo(mainAdmin))
	e.deliver(text(mainAdmin, "/add_admin abc"))
	assert.Equal(t, replyBadID, e.lastTo(mainAdmin))
	e.deliver(text(mainAdmin, "/add_admin 7"))
	assert.Equal(t, "Администратор 7 добавлен.", e.lastTo(mainAdmin))

	e.deliver(text(7, "/admins"))
	assert.Equal(t, "Текущие администраторы: 7, 100", e.lastTo(7))
	e.deliver(text(7, "/pending"))
	assert.Equal(t, "Заявок в очереди: 0", e.lastTo(7))
	e.deliver(text(9, "/pending"))
	assert.Equal(t, replyForbidden, e.lastTo(9))

	e.deliver(text(mainAdmin, "/remove_admin 100"))
	assert.Equal(t, replyRemoveMain, e.lastTo(mainAdmin))
	e.deliver(text(mainAdmin, "/remove_admin 7"))
	assert.Equal(t, "Администратор 7 удален.", e.lastTo(mainAdmin))
	assert.False(t, e.svc.IsModerator(7))
}

func TestStartAndUnknown(t *testing.T) {
	e := newEnv(t)
	e.deliver(text(5, "/start"))
	assert.Equal(t, replyStart, e.lastTo(5))
	e.deliver(text(5, "/nope"))
	assert.Equal(t, replyUnknownCommand, e.lastTo(5))
	assert.Zero(t, e.svc.PendingCount())
}
