package adapter

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "modbot/internal/runtime/supervisor"
	kit "modbot/internal/transport"
	logx "modbot/pkg/logx"
	"modbot/pkg/tgui"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendRatePerSec paces outbound API calls; <=0 disables pacing.
	SendRatePerSec float64
}

// Adapter is the telebot-backed kit.Adapter.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// droppedUpdates counts updates lost because the router was behind.
	droppedUpdates atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram.adapter")), bot: b}
	if cfg.SendRatePerSec > 0 {
		burst := max(int(cfg.SendRatePerSec), 1)
		a.limiter = rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), burst)
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func userFrom(u *tele.User) kit.User {
	if u == nil {
		return kit.User{}
	}
	return kit.User{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

func messageFrom(m *tele.Message) *kit.Message {
	msg := &kit.Message{
		ID:      m.ID,
		ChatID:  m.Chat.ID,
		From:    userFrom(m.Sender),
		Text:    m.Text,
		Caption: m.Caption,
		IsGroup: m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
	}
	if m.Photo != nil && m.Photo.FileID != "" {
		msg.Photo = &kit.Media{Kind: kit.MediaPhoto, FileID: m.Photo.FileID}
	}
	if m.Video != nil && m.Video.FileID != "" {
		msg.Video = &kit.Media{Kind: kit.MediaVideo, FileID: m.Video.FileID}
	}
	return msg
}

func (a *Adapter) registerHandlers() {
	onMessage := func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: messageFrom(m)})
		return nil
	}
	a.bot.Handle(tele.OnText, onMessage)
	a.bot.Handle(tele.OnPhoto, onMessage)
	a.bot.Handle(tele.OnVideo, onMessage)

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		kc := &kit.Callback{ID: cb.ID, From: userFrom(cb.Sender), Data: cb.Data}
		if m := cb.Message; m != nil && m.Chat != nil {
			kc.ChatID = m.Chat.ID
			kc.MessageID = m.ID
			kc.HasCaption = m.Photo != nil || m.Video != nil || m.Caption != ""
			kc.MessageText = m.Text
			if kc.HasCaption {
				kc.MessageText = m.Caption
			}
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateCallback, Callback: kc})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := a.droppedUpdates.Swap(0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start blocks until Stop; an early return while the context is
	// alive is treated as a failure and restarted.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, 500*time.Millisecond, 10*time.Second)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()

	// Long-poll may still be waiting; keep shutdown snappy.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && sup.Context().Err() == nil {
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

// wait blocks for the outbound pacing limiter.
func (a *Adapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return ctx.Err()
	}
	return a.limiter.Wait(ctx)
}

func sendOptions(opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{}
	if opt == nil {
		return so
	}
	so.ParseMode = tele.ParseMode(opt.ParseMode)
	so.DisableWebPagePreview = opt.DisablePreview
	if kb := tgui.Keyboard(opt.Keyboard); kb != nil {
		so.ReplyMarkup = kb
	}
	return so
}

func refOf(to kit.ChatTarget, m *tele.Message) kit.MessageRef {
	ref := kit.MessageRef{ChatID: to.ChatID}
	if m != nil {
		ref.MessageID = m.ID
		if m.Chat != nil {
			ref.ChatID = m.Chat.ID
		}
	}
	return ref
}

const telegramTextLimit = tgui.MaxTextRunes

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	chunks := splitTelegramText(text, telegramTextLimit, parseMode(opt))
	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := a.wait(ctx); err != nil {
			return first, err
		}
		so := sendOptions(opt)
		// Controls go on the first part only.
		if i > 0 {
			so.ReplyMarkup = nil
		}
		m, err := a.bot.Send(to, chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = refOf(to, m)
		}
	}
	return first, nil
}

func parseMode(opt *kit.SendOptions) string {
	if opt == nil {
		return ""
	}
	return opt.ParseMode
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, fileID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := a.wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	m, err := a.bot.Send(to, &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}, sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return refOf(to, m), nil
}

func (a *Adapter) SendVideo(ctx context.Context, to kit.ChatTarget, fileID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := a.wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	m, err := a.bot.Send(to, &tele.Video{File: tele.File{FileID: fileID}, Caption: caption}, sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return refOf(to, m), nil
}

func editable(ref kit.MessageRef) *tele.Message {
	return &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
}

// EditText replaces the text of a message. Text beyond one message is cut;
// edits never spill into new messages.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Edit(editable(ref), tgui.TruncRunes(text, telegramTextLimit), sendOptions(opt))
	return err
}

func (a *Adapter) EditCaption(ctx context.Context, ref kit.MessageRef, caption string, opt *kit.SendOptions) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.EditCaption(editable(ref), tgui.TruncRunes(caption, tgui.MaxCaptionRunes), sendOptions(opt))
	return err
}

func (a *Adapter) ClearKeyboard(ctx context.Context, ref kit.MessageRef) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.EditReplyMarkup(editable(ref), nil)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text, ShowAlert: alert})
}

// ResolveChat looks up the numeric id of an @handle target.
func (a *Adapter) ResolveChat(ctx context.Context, to kit.ChatTarget) (kit.ChatTarget, error) {
	if to.Username == "" {
		return to, nil
	}
	if err := a.wait(ctx); err != nil {
		return to, err
	}
	chat, err := a.bot.ChatByUsername(to.Username)
	if err != nil {
		return to, fmt.Errorf("resolve %s: %w", to.Username, err)
	}
	return kit.ChatTarget{ChatID: chat.ID}, nil
}

// UpdateMenuCommands sets the bot command menu. It only calls Telegram when
// the list changed since the last successful update.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
		list = append(list, tele.Command{Text: c.Command, Description: c.Description})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	if err := a.bot.SetCommands(list); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.ChatResolver       = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)
