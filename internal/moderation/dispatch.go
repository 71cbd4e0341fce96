package moderation

import (
	"context"

	"modbot/internal/transport"
	logx "modbot/pkg/logx"
)

const (
	msgPublished = "Ваше сообщение опубликовано. Спасибо!"
	msgRejected  = "Сообщение отклонено модератором."
)

// Dispatch sends the review card with approve/reject controls to the
// moderation chat. Transport failures are logged and swallowed: the request
// stays pending either way.
func (s *Service) Dispatch(ctx context.Context, req Request) {
	log := s.log.With(logx.String("request_id", req.ID))
	kb, err := ReviewKeyboard(req.ID)
	if err != nil {
		log.Error("build review keyboard", logx.Err(err))
		return
	}
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true, Keyboard: kb}
	card := RenderReview(req)
	to := s.ModChat()

	ctx, cancel := s.sendCtx(ctx)
	defer cancel()
	switch req.Kind {
	case KindPhoto:
		_, err = s.adapter.SendPhoto(ctx, to, req.MediaID, card, opt)
	case KindVideo:
		_, err = s.adapter.SendVideo(ctx, to, req.MediaID, card, opt)
	default:
		_, err = s.adapter.SendText(ctx, to, card, opt)
	}
	if err != nil {
		log.Warn("review card not delivered", logx.String("chat", to.Recipient()), logx.Err(err))
		return
	}
	log.Debug("review card sent", logx.String("chat", to.Recipient()))
}

// publish forwards the body to the public chat without submitter identity,
// then thanks the submitter. Both steps are best-effort.
func (s *Service) publish(ctx context.Context, req Request) {
	log := s.log.With(logx.String("request_id", req.ID))
	sctx, cancel := s.sendCtx(ctx)
	var err error
	switch req.Kind {
	case KindPhoto:
		_, err = s.adapter.SendPhoto(sctx, s.publicChat, req.MediaID, req.Text, nil)
	case KindVideo:
		_, err = s.adapter.SendVideo(sctx, s.publicChat, req.MediaID, req.Text, nil)
	default:
		body := req.Text
		if body == "" {
			body = "-"
		}
		_, err = s.adapter.SendText(sctx, s.publicChat, body, &transport.SendOptions{DisablePreview: true})
	}
	cancel()
	if err != nil {
		log.Warn("publish failed", logx.String("chat", s.publicChat.Recipient()), logx.Err(err))
	}
	s.notifySubmitter(ctx, req, msgPublished)
}

func (s *Service) rejectNotify(ctx context.Context, req Request) {
	s.notifySubmitter(ctx, req, msgRejected)
}

func (s *Service) notifySubmitter(ctx context.Context, req Request, text string) {
	ctx, cancel := s.sendCtx(ctx)
	defer cancel()
	if _, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: req.UserID}, text, nil); err != nil {
		s.log.Warn("submitter not notified",
			logx.String("request_id", req.ID),
			logx.Int64("user_id", req.UserID),
			logx.Err(err),
		)
	}
}
