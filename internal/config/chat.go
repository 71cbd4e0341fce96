package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"modbot/internal/transport"
)

// ParseChatTarget parses a destination given as "@handle", a numeric id, a bare
// handle or a t.me URL. Invite links ("+token" or /joinchat/) cannot be used by
// a bot to address a chat and are rejected.
func ParseChatTarget(field, raw string) (transport.ChatTarget, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return transport.ChatTarget{}, fmt.Errorf("%s is empty", field)
	}
	if strings.HasPrefix(strings.ToLower(value), "http") {
		u, err := url.Parse(value)
		if err != nil {
			return transport.ChatTarget{}, fmt.Errorf("%s: invalid url %q: %w", field, value, err)
		}
		segs := strings.Split(strings.Trim(u.Path, "/"), "/")
		tail := segs[len(segs)-1]
		if strings.HasPrefix(tail, "+") || (len(segs) > 1 && strings.EqualFold(segs[0], "joinchat")) {
			return transport.ChatTarget{}, fmt.Errorf("%s must be @username or a numeric id (-100...), not an invite link", field)
		}
		if tail == "" {
			return transport.ChatTarget{}, fmt.Errorf("%s: url %q does not name a chat", field, value)
		}
		value = tail
	}
	if strings.HasPrefix(value, "@") {
		if len(value) == 1 {
			return transport.ChatTarget{}, fmt.Errorf("%s: empty handle", field)
		}
		return transport.ChatTarget{Username: value}, nil
	}
	if isNumericID(value) {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return transport.ChatTarget{}, fmt.Errorf("%s: invalid chat id %q: %w", field, value, err)
		}
		return transport.ChatTarget{ChatID: id}, nil
	}
	return transport.ChatTarget{Username: "@" + value}, nil
}

func isNumericID(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
