package moderation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"modbot/internal/transport"
	"modbot/pkg/tgui"
)

// callbackScope prefixes every moderation control token.
const callbackScope = "mod"

const (
	labelApprove = "Опубликовать"
	labelReject  = "Отклонить"
)

// EncodeAction builds the callback token carried by a moderator control.
func EncodeAction(a Action, requestID string) (string, error) {
	return tgui.Data(callbackScope, string(a), requestID)
}

// DecodeAction parses a token built by EncodeAction.
func DecodeAction(token string) (Action, string, error) {
	scope, action, id, ok := tgui.ParseData(token)
	if !ok || scope != callbackScope || id == "" {
		return "", "", ErrBadAction
	}
	a := Action(action)
	if !a.Valid() {
		return "", "", ErrBadAction
	}
	return a, id, nil
}

// ReviewKeyboard returns the approve/reject controls for a request.
func ReviewKeyboard(requestID string) ([][]transport.Button, error) {
	approve, err := EncodeAction(ActionApprove, requestID)
	if err != nil {
		return nil, err
	}
	reject, err := EncodeAction(ActionReject, requestID)
	if err != nil {
		return nil, err
	}
	return [][]transport.Button{
		{{Text: labelApprove, Data: approve}},
		{{Text: labelReject, Data: reject}},
	}, nil
}

// displayName is "First Last" or a generic placeholder.
func displayName(req Request) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{req.FirstName, req.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "пользователь"
	}
	return strings.Join(parts, " ")
}

func headerFields(req Request) (username, anon string) {
	username = "без username"
	if req.Username != "" {
		username = "@" + req.Username
	}
	anon = "нет"
	if req.ForceAnon {
		anon = "да"
	}
	return username, anon
}

func reviewHeader(req Request) tgui.H {
	username, anon := headerFields(req)
	return tgui.JoinH("\n",
		tgui.Esc("Новое сообщение #"+req.ID),
		tgui.H(fmt.Sprintf("От: %s (%s, id=%d)", tgui.Mention(displayName(req), req.UserID), tgui.Esc(username), req.UserID)),
		tgui.Esc("Анонимность запрошена: "+anon),
	)
}

// headerRunes is the visible length of the header once Telegram strips tags.
func headerRunes(req Request) int {
	username, anon := headerFields(req)
	plain := fmt.Sprintf("Новое сообщение #%s\nОт: %s (%s, id=%d)\nАнонимность запрошена: %s",
		req.ID, displayName(req), username, req.UserID, anon)
	return utf8.RuneCountInString(plain)
}

// RenderReview renders the moderator card as Telegram HTML. The submission
// body is escaped. Media cards are cut to the caption limit.
func RenderReview(req Request) string {
	header := reviewHeader(req)
	body := req.Text
	if req.Kind != KindText && body != "" {
		body = tgui.TruncRunes(body, tgui.MaxCaptionRunes-headerRunes(req)-2)
	}
	if body == "" {
		return header.String()
	}
	return header.String() + "\n\n" + tgui.Esc(body).String()
}

// StatusLine is appended to a card once a decision was taken.
func StatusLine(a Action, actorID int64) string {
	verb := "одобрено"
	if a == ActionReject {
		verb = "отклонено"
	}
	return fmt.Sprintf("Статус: %s модератором %d", verb, actorID)
}
