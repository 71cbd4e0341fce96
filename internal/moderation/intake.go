package moderation

import (
	"context"
	"strings"
	"time"
	"unicode"

	"modbot/internal/transport"
	logx "modbot/pkg/logx"
)

// AnonMarker at the start of a text or caption requests anonymous publication.
const AnonMarker = "/anon"

// StripAnonMarker removes a leading AnonMarker token. The marker must be a
// whole word: "/anonymous" is not a marker.
func StripAnonMarker(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, AnonMarker) {
		return s, false
	}
	rest := s[len(AnonMarker):]
	if rest != "" && !unicode.IsSpace(rune(rest[0])) {
		return s, false
	}
	return strings.TrimSpace(rest), true
}

// NewTextSubmission builds a text submission. Empty text is rejected.
func NewTextSubmission(from transport.User, text string, forceAnon bool) (Submission, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Submission{}, ErrEmptyText
	}
	return Submission{Kind: KindText, From: from, Text: text, ForceAnon: forceAnon}, nil
}

// ParseSubmission normalizes an inbound non-command message. Video wins over
// photo; a caption-less photo/video is valid, an empty text is not.
func ParseSubmission(m *transport.Message) (Submission, error) {
	if m == nil {
		return Submission{}, ErrEmptyText
	}
	var media *transport.Media
	kind := KindText
	switch {
	case m.Video != nil:
		media, kind = m.Video, KindVideo
	case m.Photo != nil:
		media, kind = m.Photo, KindPhoto
	}
	if kind == KindText {
		return NewTextSubmission(m.From, m.Text, false)
	}
	if strings.TrimSpace(media.FileID) == "" {
		return Submission{}, ErrMissingMedia
	}
	caption, anon := StripAnonMarker(m.Caption)
	return Submission{
		Kind:      kind,
		From:      m.From,
		Text:      caption,
		ForceAnon: anon,
		MediaID:   media.FileID,
	}, nil
}

// Submit admits a submission into the pending queue. The cooldown check, the
// last-sent update and the insert happen in one locked transition that is
// persisted before Submit returns. Moderators are not notified here; callers
// acknowledge the submitter first and then call Dispatch.
func (s *Service) Submit(ctx context.Context, sub Submission, now time.Time) (Request, error) {
	if !sub.Kind.Valid() {
		return Request{}, ErrBadKind
	}
	sub.Text = strings.TrimSpace(sub.Text)
	if sub.Kind == KindText && sub.Text == "" {
		return Request{}, ErrEmptyText
	}
	if sub.Kind != KindText && sub.MediaID == "" {
		return Request{}, ErrMissingMedia
	}

	req := Request{
		ID:        s.newID(),
		Kind:      sub.Kind,
		UserID:    sub.From.ID,
		Username:  sub.From.Username,
		FirstName: sub.From.FirstName,
		LastName:  sub.From.LastName,
		Text:      sub.Text,
		ForceAnon: sub.ForceAnon,
		MediaID:   sub.MediaID,
		CreatedAt: time.Unix(now.Unix(), 0),
	}

	s.mu.Lock()
	if wait := s.cooldown.Check(s.st.lastSent, req.UserID, now); wait > 0 {
		s.mu.Unlock()
		return Request{}, &CooldownError{RetryAfter: wait}
	}
	prev, hadPrev := s.st.lastSent[req.UserID]
	s.st.lastSent[req.UserID] = now.Unix()
	s.st.pending[req.ID] = req
	if err := s.saveLocked(ctx); err != nil {
		delete(s.st.pending, req.ID)
		if hadPrev {
			s.st.lastSent[req.UserID] = prev
		} else {
			delete(s.st.lastSent, req.UserID)
		}
		s.mu.Unlock()
		s.log.Error("enqueue not persisted", logx.String("request_id", req.ID), logx.Int64("user_id", req.UserID), logx.Err(err))
		return Request{}, &PersistError{Op: "enqueue", Err: err}
	}
	pending := len(s.st.pending)
	s.mu.Unlock()

	s.log.Info("request queued",
		logx.String("request_id", req.ID),
		logx.String("kind", string(req.Kind)),
		logx.Int64("user_id", req.UserID),
		logx.Bool("force_anon", req.ForceAnon),
		logx.Int("pending", pending),
	)
	s.emit(EventQueued, req)
	return req, nil
}
