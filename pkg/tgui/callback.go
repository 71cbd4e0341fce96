package tgui

import "strings"

// Data formats inline callback data as "scope:action:payload".
// The payload is kept as-is and must not need escaping.
func Data(scope, action, payload string) (string, error) {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	s := scope + ":" + action
	if payload != "" {
		s += ":" + payload
	}
	if len(s) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return s, nil
}

// ParseData splits callback data produced by Data. ok is false when the data
// has no action part.
func ParseData(data string) (scope, action, payload string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload, true
}
