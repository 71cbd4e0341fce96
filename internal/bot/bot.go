// Package bot binds the Telegram command surface to the moderation service.
package bot

import (
	"context"
	"errors"
	"strconv"
	"time"

	"modbot/internal/moderation"
	"modbot/internal/transport"
	"modbot/internal/transport/telegram/router"
	logx "modbot/pkg/logx"
)

// Bot holds the handlers. It has no state of its own.
type Bot struct {
	svc *moderation.Service
	log logx.Logger
	now func() time.Time
}

func New(svc *moderation.Service, log logx.Logger) *Bot {
	return &Bot{svc: svc, log: log.With(logx.String("comp", "bot")), now: time.Now}
}

// RouterOptions returns router options carrying the bot's denial texts.
func RouterOptions(log logx.Logger, adapter transport.Adapter, auth router.Authorizer) router.Options {
	return router.Options{
		Log:     log,
		Adapter: adapter,
		Auth:    auth,
		Denied: map[router.Access]string{
			router.AccessModerator: replyForbidden,
			router.AccessMainAdmin: replyNotMainAdmin,
		},
		Unknown: replyUnknownCommand,
		Busy:    replyBusy,
	}
}

// Register installs commands, moderation callbacks and the intake fallback.
func (b *Bot) Register(ctx context.Context, m *router.Manager) {
	m.SetRegistry(ctx, b.Commands(), b.Callbacks(), b.handleIntake)
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "как отправить сообщение",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, replyStart, nil)
			},
		},
		{
			Name:        "anon",
			Description: "отправить анонимно",
			Usage:       "/anon <текст>",
			Handle:      b.handleAnon,
		},
		{
			Name:        "admins",
			Description: "список администраторов",
			Access:      router.AccessModerator,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, replyAdmins(b.svc.Admins()), nil)
			},
		},
		{
			Name:        "pending",
			Description: "размер очереди",
			Access:      router.AccessModerator,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, replyPending(b.svc.PendingCount()), nil)
			},
		},
		{
			Name:        "add_admin",
			Description: "добавить администратора",
			Usage:       "/add_admin <id>",
			Access:      router.AccessMainAdmin,
			Handle:      b.adminCommand("add_admin", b.svc.AddAdmin, replyAdminAdded),
		},
		{
			Name:        "remove_admin",
			Description: "удалить администратора",
			Usage:       "/remove_admin <id>",
			Access:      router.AccessMainAdmin,
			Handle:      b.adminCommand("remove_admin", b.svc.RemoveAdmin, replyAdminRemoved),
		},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Scope: "mod", Action: string(moderation.ActionApprove), Handle: b.handleDecision},
		{Scope: "mod", Action: string(moderation.ActionReject), Handle: b.handleDecision},
	}
}

func (b *Bot) adminCommand(name string, op func(ctx context.Context, actor, target int64) error, done func(int64) string) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if len(req.Args) == 0 {
			return req.Reply(ctx, replyUsage(name), nil)
		}
		target, err := strconv.ParseInt(req.Args[0], 10, 64)
		if err != nil {
			return req.Reply(ctx, replyBadID, nil)
		}
		if err := op(ctx, req.From.ID, target); err != nil {
			_ = req.Reply(ctx, replyFor(err), nil)
			return err
		}
		return req.Reply(ctx, done(target), nil)
	}
}

func (b *Bot) handleAnon(ctx context.Context, req *router.Request) error {
	sub, err := moderation.NewTextSubmission(req.From, req.ArgText, true)
	if errors.Is(err, moderation.ErrEmptyText) {
		return req.Reply(ctx, replyAnonUsage, nil)
	}
	if err != nil {
		return err
	}
	return b.intake(ctx, req, sub)
}

// handleIntake receives every non-command message. Messages posted in the
// moderation or public chat are not submissions.
func (b *Bot) handleIntake(ctx context.Context, req *router.Request) error {
	msg := req.Update.Message
	if msg == nil {
		return nil
	}
	if b.svc.ModChat().Matches(msg.ChatID) || b.svc.PublicChat().Matches(msg.ChatID) {
		return nil
	}
	sub, err := moderation.ParseSubmission(msg)
	if err != nil {
		return req.Reply(ctx, replyFor(err), nil)
	}
	return b.intake(ctx, req, sub)
}

func (b *Bot) intake(ctx context.Context, req *router.Request, sub moderation.Submission) error {
	r, err := b.svc.Submit(ctx, sub, b.now())
	if err != nil {
		_ = req.Reply(ctx, replyFor(err), nil)
		var cd *moderation.CooldownError
		if errors.As(err, &cd) {
			return nil
		}
		return err
	}
	if err := req.Reply(ctx, replyQueued, nil); err != nil {
		req.Logger.Warn("ack not delivered", logx.String("request_id", r.ID), logx.Err(err))
	}
	b.svc.Dispatch(ctx, r)
	return nil
}

func (b *Bot) handleDecision(ctx context.Context, req *router.Request, payload string) error {
	cb := req.Update.Callback
	action, id, err := moderation.DecodeAction(cb.Data)
	if err != nil {
		return req.Answer(ctx, replyBadAction, false)
	}
	d := moderation.Decision{
		Action:    action,
		RequestID: id,
		ActorID:   req.From.ID,
		ChatID:    cb.ChatID,
	}
	if cb.MessageID != 0 {
		d.Card = &moderation.Card{
			Ref:        transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID},
			Text:       cb.MessageText,
			HasCaption: cb.HasCaption,
		}
	}

	_, err = b.svc.Decide(ctx, d)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, moderation.ErrAlreadyHandled), errors.Is(err, moderation.ErrForbidden):
		_ = req.Answer(ctx, replyFor(err), true)
		return nil
	default:
		_ = req.Answer(ctx, replyFor(err), true)
		return err
	}
}
