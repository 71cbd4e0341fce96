package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"modbot/internal/runtime/supervisor"
	kit "modbot/internal/transport"
	logx "modbot/pkg/logx"
	"modbot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessModerator
	AccessMainAdmin
)

// Authorizer answers access questions for commands.
type Authorizer interface {
	IsModerator(userID int64) bool
	IsMainAdmin(userID int64) bool
}

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Hidden commands work but are left out of /help and the menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles inline-button data of the form "scope:action:payload".
type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	From    kit.User
	Command string
	Args    []string
	// ArgText is the untouched text after the command word.
	ArgText string
	Payload string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger

	answered atomic.Bool
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

// Answer answers the callback query behind this request. Only the first call
// reaches the transport; the router answers with an empty text afterwards if
// the handler never did.
func (r *Request) Answer(ctx context.Context, text string, alert bool) error {
	if r.Update.Callback == nil || !r.answered.CompareAndSwap(false, true) {
		return nil
	}
	return r.Adapter.AnswerCallback(ctx, r.Update.Callback.ID, text, alert)
}

type Options struct {
	Log     logx.Logger
	Adapter kit.Adapter
	Auth    Authorizer
	Workers int
	Queue   int
	// Denied maps an access level to the reply sent to callers lacking it.
	Denied map[Access]string
	// Unknown is sent for unregistered commands; empty ignores them.
	Unknown string
	Busy    string
}

type Manager struct {
	mu        sync.RWMutex
	cmds      map[string]*Command
	callbacks map[string]map[string]CallbackRoute // scope -> action -> route
	fallback  HandlerFunc

	log     logx.Logger
	adapter kit.Adapter
	auth    Authorizer
	opt     Options

	jobs chan func()
}

func New(opt Options) *Manager {
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	if opt.Queue <= 0 {
		opt.Queue = 256
	}
	if opt.Busy == "" {
		opt.Busy = "busy, try again"
	}
	return &Manager{
		cmds:      map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		log:       opt.Log.With(logx.String("comp", "telegram.router")),
		adapter:   opt.Adapter,
		auth:      opt.Auth,
		opt:       opt,
		jobs:      make(chan func(), opt.Queue),
	}
}

// SetRegistry replaces the command and callback tables. A /help command is
// always added. fallback receives every non-command message (may be nil).
func (m *Manager) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute, fallback HandlerFunc) {
	cmds = append(cmds, Command{
		Name:        "help",
		Description: "список команд",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.From.ID), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		},
	})

	table := map[string]*Command{}
	visible := make([]Command, 0, len(cmds))
	for i := range cmds {
		c := cmds[i]
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		table[name] = &c
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				if _, taken := table[a]; !taken {
					table[a] = &c
				}
			}
		}
		if !c.Hidden {
			visible = append(visible, c)
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		s, a := strings.TrimSpace(r.Scope), strings.TrimSpace(r.Action)
		if s == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[s] == nil {
			cb[s] = map[string]CallbackRoute{}
		}
		cb[s][a] = r
	}

	m.mu.Lock()
	m.cmds = table
	m.callbacks = cb
	m.fallback = fallback
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenu(visible)
		go func() {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

func (m *Manager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop routes updates onto a bounded worker pool until ctx ends or
// updates is closed. Queued jobs are drained before it returns; they do not
// observe the cancellation of ctx.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := m.opt.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 2)
	}
	sup := supervisor.New(context.WithoutCancel(ctx), supervisor.WithLogger(m.log))
	m.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("queue", cap(m.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for job := range m.jobs {
				m.runJob(idx, job)
			}
			return nil
		}, 200*time.Millisecond, 5*time.Second)
	}

	defer func() {
		close(m.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sup.Wait(wctx); err != nil {
			m.log.Warn("workers did not drain", logx.Err(err))
		}
		cancel()
		sup.Cancel()
		m.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *Manager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (m *Manager) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func (m *Manager) allowed(a Access, userID int64) bool {
	switch a {
	case AccessEveryone:
		return true
	case AccessModerator:
		return m.auth != nil && m.auth.IsModerator(userID)
	case AccessMainAdmin:
		return m.auth != nil && m.auth.IsMainAdmin(userID)
	}
	return false
}

// splitCommand returns the command word (without "/" and "@bot") and the rest.
func splitCommand(text string) (word, rest string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	word, rest, _ = strings.Cut(text[1:], " ")
	if i := strings.IndexAny(word, "\n\t"); i >= 0 {
		rest = word[i+1:] + " " + rest
		word = word[:i]
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word), strings.TrimSpace(rest)
}

func (m *Manager) newRequest(up kit.Update, chat kit.ChatTarget, from kit.User, cmd string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		From:    from,
		Command: cmd,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from.ID),
			logx.String("cmd", cmd),
		),
	}
}

func (m *Manager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID}

	// Media always goes to intake; a caption is never a command.
	if msg.Photo == nil && msg.Video == nil {
		if word, rest := splitCommand(msg.Text); word != "" {
			m.routeCommand(ctx, up, word, rest)
			return
		}
	}

	m.mu.RLock()
	fb := m.fallback
	m.mu.RUnlock()
	if fb == nil {
		return
	}
	req := m.newRequest(up, chat, msg.From, "message")
	m.enqueue(ctx, req, fb, 0)
}

func (m *Manager) routeCommand(ctx context.Context, up kit.Update, word, rest string) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID}

	m.mu.RLock()
	cmd := m.cmds[word]
	m.mu.RUnlock()
	if cmd == nil {
		if m.opt.Unknown != "" {
			m.sendBestEffort(ctx, chat, m.opt.Unknown)
		}
		return
	}
	if !m.allowed(cmd.Access, msg.From.ID) {
		m.sendBestEffort(ctx, chat, m.denied(cmd.Access))
		return
	}

	req := m.newRequest(up, chat, msg.From, cmd.Name)
	req.ArgText = rest
	req.Args = strings.Fields(rest)
	m.enqueue(ctx, req, cmd.Handle, cmd.Timeout)
}

func (m *Manager) denied(a Access) string {
	if s := m.opt.Denied[a]; s != "" {
		return s
	}
	return "unauthorized"
}

func (m *Manager) enqueue(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration) {
	final := Chain(h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	// Accepted jobs outlive shutdown so their state changes still persist.
	jctx := context.WithoutCancel(ctx)
	if !m.tryEnqueue(func() { _ = final(jctx, req) }) {
		m.sendBestEffort(ctx, req.Chat, m.opt.Busy)
	}
}

func (m *Manager) sendBestEffort(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := m.adapter.SendText(ctx, to, text, nil); err != nil {
		m.log.Debug("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func (m *Manager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "", false)
		return
	}

	m.mu.RLock()
	route, found := m.callbacks[scope][action]
	m.mu.RUnlock()
	if !found {
		m.log.Debug("unrouted callback", logx.String("data", cb.Data))
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "", false)
		return
	}
	if !m.allowed(route.Access, cb.From.ID) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, m.denied(route.Access), true)
		return
	}

	req := m.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID}, cb.From, "cb:"+scope+":"+action)
	req.Payload = payload

	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(route.Timeout),
	)
	jctx := context.WithoutCancel(ctx)
	if !m.tryEnqueue(func() {
		_ = final(jctx, req)
		// stop the client's loading indicator
		_ = req.Answer(jctx, "", false)
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, m.opt.Busy, false)
	}
}
