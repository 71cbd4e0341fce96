package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"modbot/internal/bot"
	"modbot/internal/config"
	"modbot/internal/digest"
	"modbot/internal/eventbus"
	"modbot/internal/moderation"
	"modbot/internal/runtime/supervisor"
	"modbot/internal/storage"
	kit "modbot/internal/transport"
	telegram "modbot/internal/transport/telegram/adapter"
	"modbot/internal/transport/telegram/router"
	logx "modbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	svc    *moderation.Service
	bot    *bot.Bot
	router *router.Manager
	digest *digest.Service

	updates chan kit.Update
}

// NewApp loads the config, connects to Telegram and opens the state store.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, st, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO")
	ad, err := telegram.New(telegram.Config{
		Token:          st.Token,
		PollTimeout:    st.PollTimeout,
		SendRatePerSec: float64(st.SendRatePerSec),
	}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return assemble(ctx, cfgm, cfg, st, ad)
}

// assemble wires every component around an already created adapter.
func assemble(ctx context.Context, cfgm *config.ConfigManager, cfg *config.Config, st *config.Settings, ad kit.Adapter) (*App, error) {
	logSvc, log := logx.New(mapLogConfig(cfg, st), ad)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(mapStorageConfig(st), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", st.StorageDriver), logx.String("path", st.StoragePath))

	bus := eventbus.New()
	svc, err := moderation.New(ctx, moderation.Options{
		Store:       store,
		Adapter:     ad,
		Log:         log,
		Bus:         bus,
		ModChat:     st.ModChat,
		PublicChat:  st.PublicChat,
		MainAdminID: st.MainAdminID,
		Cooldown:    st.Cooldown,
		SendTimeout: st.SendTimeout,
	})
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	return &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		svc:     svc,
		bot:     bot.New(svc, log),
		router:  router.New(bot.RouterOptions(log, ad, svc)),
		digest:  digest.New(mapDigestConfig(st), svc, ad, log),
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	// Callback presses carry numeric chat ids, so a @handle moderation chat
	// must be resolved before the first card goes out.
	if mc := a.svc.ModChat(); mc.ChatID == 0 && mc.Username != "" {
		r, ok := a.adapter.(kit.ChatResolver)
		if !ok {
			return errors.New("moderation chat is a handle but the adapter cannot resolve it")
		}
		resolved, err := r.ResolveChat(ctx, mc)
		if err != nil {
			return fmt.Errorf("moderation chat: %w", err)
		}
		a.svc.SetModChat(resolved)
		a.log.Info("moderation chat resolved", logx.String("handle", mc.Username), logx.Int64("chat_id", resolved.ChatID))
	}

	a.bot.Register(run, a.router)

	events, unsub := a.bus.Subscribe("", 128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	if err := a.digest.Start(run); err != nil {
		a.log.Warn("digest not started", logx.Err(err))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case u, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, u)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.startWatchdog()
	notifySystemd(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.Int64("main_admin", a.svc.MainAdminID()),
		logx.Int("pending", a.svc.PendingCount()),
	)
	return nil
}

// logEvent mirrors bus traffic at debug level; components log the details.
func (a *App) logEvent(e eventbus.Event) {
	fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
	switch d := e.Data.(type) {
	case moderation.Request:
		fields = append(fields, logx.String("request_id", d.ID))
	case moderation.Outcome:
		fields = append(fields, logx.String("request_id", d.Request.ID), logx.String("action", string(d.Action)))
	case moderation.AdminChange:
		fields = append(fields, logx.Int64("target_id", d.TargetID), logx.Bool("added", d.Added))
	}
	a.log.Debug("event", fields...)
}

// applyConfig applies the live-reloadable parts of a new config. Everything
// else only takes effect after a restart.
func (a *App) applyConfig(ctx context.Context, u config.Update) {
	if u.Config == nil || u.Settings == nil {
		return
	}
	a.logs.Apply(mapLogConfig(u.Config, u.Settings))
	a.svc.SetCooldown(u.Settings.Cooldown)
	if err := a.digest.Apply(ctx, mapDigestConfig(u.Settings)); err != nil {
		a.log.Warn("digest config rejected", logx.Err(err))
	}

	var restart []string
	for _, s := range u.Changed {
		if slices.Contains(restartSections, s) {
			restart = append(restart, s)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	a.log.Info("config applied", logx.String("changed", strings.Join(u.Changed, ",")))
}

func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func notifySystemd(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify", logx.String("state", state))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifySystemd(a.log, daemon.SdNotifyStopping)

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Stop intake first, then let the router drain what it already accepted.
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("digest", time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	a.sup.Cancel()
	step("supervisor", 6*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	if n := a.bus.Dropped(); n > 0 {
		a.log.Debug("events dropped during run", logx.Uint64("count", n))
	}
	a.log.Info("stopped", logx.Int("pending", a.svc.PendingCount()))
	_ = a.logs.Close()
	return nil
}

// restartSections lists the config sections that are only read at startup.
var restartSections = []string{"telegram", "storage"}
