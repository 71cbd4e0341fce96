package moderation

import (
	"context"
	"unicode/utf8"

	"modbot/internal/storage"
	logx "modbot/pkg/logx"
	"modbot/pkg/tgui"
)

// Decide applies an approve/reject decision. The request is popped from the
// pending set and the removal persisted before any side effect runs, so
// concurrent decisions on one id produce at most one publish or reject
// notice. A request that is no longer pending yields ErrAlreadyHandled.
//
// When d.Card is set the moderator card gets a status line and loses its
// controls; on ErrAlreadyHandled only the controls are removed.
func (s *Service) Decide(ctx context.Context, d Decision) (Outcome, error) {
	if !d.Action.Valid() {
		return Outcome{}, ErrBadAction
	}
	log := s.log.With(
		logx.String("request_id", d.RequestID),
		logx.String("action", string(d.Action)),
		logx.Int64("actor_id", d.ActorID),
	)

	s.mu.Lock()
	if _, ok := s.st.admins[d.ActorID]; !ok && !s.modChat.Matches(d.ChatID) {
		s.mu.Unlock()
		log.Warn("decision forbidden", logx.Int64("chat_id", d.ChatID))
		return Outcome{}, ErrForbidden
	}
	req, ok := s.st.pending[d.RequestID]
	if !ok {
		s.mu.Unlock()
		log.Info("decision on handled request")
		s.clearCard(ctx, d.Card)
		return Outcome{}, ErrAlreadyHandled
	}
	delete(s.st.pending, d.RequestID)
	if err := s.saveLocked(ctx); err != nil {
		s.st.pending[d.RequestID] = req
		s.mu.Unlock()
		log.Error("decision not persisted", logx.Err(err))
		s.audit(ctx, storage.AuditEntry{ActorID: d.ActorID, Action: string(d.Action), RequestID: d.RequestID, Error: err.Error()})
		return Outcome{}, &PersistError{Op: "decide", Err: err}
	}
	pending := len(s.st.pending)
	s.mu.Unlock()

	log.Info("request decided", logx.Int64("user_id", req.UserID), logx.Int("pending", pending))
	s.audit(ctx, storage.AuditEntry{ActorID: d.ActorID, Action: string(d.Action), RequestID: d.RequestID, TargetID: req.UserID})

	switch d.Action {
	case ActionApprove:
		s.publish(ctx, req)
	case ActionReject:
		s.rejectNotify(ctx, req)
	}
	s.markCard(ctx, d.Card, d.Action, d.ActorID)

	out := Outcome{Request: req, Action: d.Action, ActorID: d.ActorID}
	s.emit(EventDecided, out)
	return out, nil
}

// markCard appends the status line and drops the controls. If the edit is
// refused it falls back to removing the controls only.
func (s *Service) markCard(ctx context.Context, c *Card, a Action, actorID int64) {
	if c == nil {
		return
	}
	status := StatusLine(a, actorID)
	body := c.Text
	var err error
	ctx, cancel := s.sendCtx(ctx)
	defer cancel()
	if c.HasCaption {
		body = tgui.TruncRunes(body, tgui.MaxCaptionRunes-utf8.RuneCountInString(status)-2)
		err = s.adapter.EditCaption(ctx, c.Ref, body+"\n\n"+status, nil)
	} else {
		body = tgui.TruncRunes(body, tgui.MaxTextRunes-utf8.RuneCountInString(status)-2)
		err = s.adapter.EditText(ctx, c.Ref, body+"\n\n"+status, nil)
	}
	if err == nil {
		return
	}
	s.log.Warn("card edit failed, clearing controls", logx.Int("message_id", c.Ref.MessageID), logx.Err(err))
	if err := s.adapter.ClearKeyboard(ctx, c.Ref); err != nil {
		s.log.Warn("clear controls failed", logx.Int("message_id", c.Ref.MessageID), logx.Err(err))
	}
}

func (s *Service) clearCard(ctx context.Context, c *Card) {
	if c == nil {
		return
	}
	ctx, cancel := s.sendCtx(ctx)
	defer cancel()
	if err := s.adapter.ClearKeyboard(ctx, c.Ref); err != nil {
		s.log.Debug("clear controls failed", logx.Int("message_id", c.Ref.MessageID), logx.Err(err))
	}
}
