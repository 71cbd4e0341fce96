package tgui

import (
	tele "gopkg.in/telebot.v4"

	"modbot/internal/transport"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row of buttons.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// Keyboard converts transport buttons into telebot markup. It returns nil for
// an empty keyboard.
func Keyboard(rows [][]transport.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := NewInline()
	for _, r := range rows {
		btns := make([]tele.Btn, 0, len(r))
		for _, b := range r {
			btns = append(btns, Btn(b.Text, b.Data))
		}
		kb.Row(btns...)
	}
	return kb.Markup()
}
