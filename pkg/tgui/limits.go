package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// It applies to the full "scope:action:payload" string.
const MaxCallbackDataLen = 64

// MaxCaptionRunes is Telegram's media caption limit.
const MaxCaptionRunes = 1024

// MaxTextRunes is the message text size used for sends and edits. Telegram
// allows 4096; the rest is headroom for entities.
const MaxTextRunes = 4000

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
