package router

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "modbot/internal/transport"
	"modbot/internal/transport/transporttest"
)

type staticAuth struct {
	mods map[int64]bool
	main int64
}

func (a staticAuth) IsModerator(id int64) bool { return a.mods[id] }
func (a staticAuth) IsMainAdmin(id int64) bool { return id == a.main }

type recorder struct {
	mu   sync.Mutex
	reqs []*Request
}

func (r *recorder) handle(ctx context.Context, req *Request) error {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	return nil
}

func runUpdates(t *testing.T, m *Manager, ups ...kit.Update) {
	t.Helper()
	ch := make(chan kit.Update, len(ups))
	for _, u := range ups {
		ch <- u
	}
	close(ch)
	require.NoError(t, m.DispatchLoop(context.Background(), ch))
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: from, From: kit.User{ID: from}, Text: text}}
}

func newTestManager(tg *transporttest.Adapter) *Manager {
	return New(Options{
		Adapter: tg,
		Auth:    staticAuth{mods: map[int64]bool{1: true, 2: true}, main: 1},
		Workers: 2,
		Denied:  map[Access]string{AccessModerator: "no rights", AccessMainAdmin: "main only"},
	})
}

func TestCommandRoutingAndAccess(t *testing.T) {
	tg := transporttest.New()
	m := newTestManager(tg)
	var pending, add, fallback recorder
	m.SetRegistry(context.Background(), []Command{
		{Name: "pending", Access: AccessModerator, Handle: pending.handle},
		{Name: "add_admin", Access: AccessMainAdmin, Handle: add.handle},
	}, nil, fallback.handle)

	runUpdates(t, m,
		msg(2, "/pending"),
		msg(9, "/pending"),
		msg(2, "/add_admin 5"),
		msg(1, "/add_admin@modbot  5  "),
		msg(9, "/unknown"),
		msg(9, "hello"),
	)

	assert.Len(t, pending.reqs, 1)
	require.Len(t, add.reqs, 1)
	assert.Equal(t, []string{"5"}, add.reqs[0].Args)
	assert.Equal(t, "5", add.reqs[0].ArgText)
	require.Len(t, fallback.reqs, 1)
	assert.Equal(t, "hello", fallback.reqs[0].Update.Message.Text)

	replies := map[string]int{}
	for _, s := range tg.Filter("text", 0) {
		replies[s.Text]++
	}
	assert.Equal(t, map[string]int{"no rights": 1, "main only": 1}, replies)
}

func TestMediaWithCommandCaptionGoesToFallback(t *testing.T) {
	tg := transporttest.New()
	m := newTestManager(tg)
	var anon, fallback recorder
	m.SetRegistry(context.Background(), []Command{{Name: "anon", Handle: anon.handle}}, nil, fallback.handle)

	up := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: 9, From: kit.User{ID: 9}, Caption: "/anon hi",
		Photo: &kit.Media{Kind: kit.MediaPhoto, FileID: "p"},
	}}
	runUpdates(t, m, up, msg(9, "/anon\nmulti line"))

	require.Len(t, fallback.reqs, 1)
	require.Len(t, anon.reqs, 1)
	assert.Equal(t, "multi line", anon.reqs[0].ArgText)
}

func TestCallbackAnsweredOnce(t *testing.T) {
	tg := transporttest.New()
	m := newTestManager(tg)
	m.SetRegistry(context.Background(), nil, []CallbackRoute{
		{Scope: "mod", Action: "approve", Handle: func(ctx context.Context, req *Request, payload string) error {
			assert.Equal(t, "abc", payload)
			return req.Answer(ctx, "done", true)
		}},
		{Scope: "mod", Action: "reject", Handle: func(ctx context.Context, req *Request, payload string) error {
			return nil
		}},
	}, nil)

	cb := func(id, data string) kit.Update {
		return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: id, From: kit.User{ID: 9}, Data: data}}
	}
	runUpdates(t, m, cb("c1", "mod:approve:abc"), cb("c2", "mod:reject:abc"), cb("c3", "other:x"), cb("c4", "garbage"))

	answers := map[string]transporttest.Sent{}
	for _, s := range tg.Filter("answer", 0) {
		_, dup := answers[s.Callback]
		assert.False(t, dup, "callback %s answered twice", s.Callback)
		answers[s.Callback] = s
	}
	require.Len(t, answers, 4)
	assert.Equal(t, "done", answers["c1"].Text)
	assert.True(t, answers["c1"].Alert)
	assert.Equal(t, "", answers["c2"].Text)
}

func TestQueuedJobsSurviveShutdown(t *testing.T) {
	tg := transporttest.New()
	opts := Options{Adapter: tg, Workers: 1}
	m := New(opts)

	release := make(chan struct{})
	var mu sync.Mutex
	var errs []error
	slow := func(ctx context.Context, req *Request) error {
		if req.ArgText == "first" {
			<-release
		}
		mu.Lock()
		errs = append(errs, ctx.Err())
		mu.Unlock()
		return nil
	}
	m.SetRegistry(context.Background(), []Command{{Name: "slow", Handle: slow}}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan kit.Update)
	done := make(chan error, 1)
	go func() { done <- m.DispatchLoop(ctx, ch) }()

	ch <- msg(5, "/slow first")
	ch <- msg(5, "/slow second")
	// Receiving this one means the second job was queued.
	ch <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "x", Data: "garbage"}}

	cancel()
	close(release)
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []error{nil, nil}, errs)
}

func TestHelpListsVisibleCommands(t *testing.T) {
	tg := transporttest.New()
	m := newTestManager(tg)
	noop := func(ctx context.Context, req *Request) error { return nil }
	m.SetRegistry(context.Background(), []Command{
		{Name: "start", Description: "intro", Handle: noop},
		{Name: "pending", Description: "queue size", Access: AccessModerator, Handle: noop},
		{Name: "secret", Hidden: true, Handle: noop},
	}, nil, nil)

	public := m.helpText(9)
	assert.Contains(t, public, "/start")
	assert.Contains(t, public, "/help")
	assert.NotContains(t, public, "/pending")
	assert.NotContains(t, public, "secret")

	assert.Contains(t, m.helpText(2), "/pending")
}

func TestSplitCommand(t *testing.T) {
	cases := map[string][2]string{
		"/start":             {"start", ""},
		"/Anon@Bot hi there": {"anon", "hi there"},
		"/anon\ntext":        {"anon", "text"},
		"plain":              {"", ""},
	}
	for in, want := range cases {
		w, r := splitCommand(in)
		assert.Equal(t, want, [2]string{w, r}, in)
	}
}

func TestBuildMenu(t *testing.T) {
	menu := buildMenu([]Command{
		{Name: "pending", Description: "queue", Access: AccessModerator},
		{Name: "start", Description: "intro"},
		{Name: "Add-Admin", Description: ""},
	})
	names := make([]string, 0, len(menu))
	for _, c := range menu {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{"add_admin", "start", "pending"}, names)
	assert.Equal(t, "add_admin", menu[0].Description)
}
