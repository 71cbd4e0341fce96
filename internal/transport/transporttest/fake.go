// Package transporttest provides an in-memory transport.Adapter that records
// every outbound call.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"modbot/internal/transport"
)

var ErrInjected = errors.New("injected transport failure")

// Sent is one recorded outbound call.
type Sent struct {
	Op string // text | photo | video | edit_text | edit_caption | clear_kb | answer
	To transport.ChatTarget
	// Ref is the edited message, or the message a send created.
	Ref      transport.MessageRef
	FileID   string
	Text     string
	Opt      *transport.SendOptions
	Alert    bool
	Callback string
}

type Adapter struct {
	mu     sync.Mutex
	sent   []Sent
	nextID int
	// Fail makes matching operations return ErrInjected.
	Fail map[string]bool

	Out chan<- transport.Update
}

func New() *Adapter { return &Adapter{Fail: map[string]bool{}} }

func (a *Adapter) record(s Sent) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Fail[s.Op] {
		return transport.MessageRef{}, ErrInjected
	}
	a.nextID++
	if s.Ref == (transport.MessageRef{}) {
		s.Ref = transport.MessageRef{ChatID: s.To.ChatID, MessageID: a.nextID}
	}
	a.sent = append(a.sent, s)
	return s.Ref, nil
}

// FailOn toggles injected failures for an operation.
func (a *Adapter) FailOn(op string, fail bool) {
	a.mu.Lock()
	a.Fail[op] = fail
	a.mu.Unlock()
}

// Sent returns a copy of all recorded calls.
func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.sent...)
}

// Filter returns recorded calls of op addressed to chatID (0 matches any).
func (a *Adapter) Filter(op string, chatID int64) []Sent {
	var out []Sent
	for _, s := range a.Sent() {
		if s.Op != op {
			continue
		}
		if chatID != 0 && s.To.ChatID != chatID && s.Ref.ChatID != chatID {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (a *Adapter) Reset() {
	a.mu.Lock()
	a.sent = nil
	a.mu.Unlock()
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.mu.Lock()
	a.Out = out
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error { return nil }

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return a.record(Sent{Op: "text", To: to, Text: text, Opt: opt})
}

func (a *Adapter) SendPhoto(ctx context.Context, to transport.ChatTarget, fileID, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return a.record(Sent{Op: "photo", To: to, FileID: fileID, Text: caption, Opt: opt})
}

func (a *Adapter) SendVideo(ctx context.Context, to transport.ChatTarget, fileID, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return a.record(Sent{Op: "video", To: to, FileID: fileID, Text: caption, Opt: opt})
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	_, err := a.record(Sent{Op: "edit_text", Ref: ref, Text: text, Opt: opt})
	return err
}

func (a *Adapter) EditCaption(ctx context.Context, ref transport.MessageRef, caption string, opt *transport.SendOptions) error {
	_, err := a.record(Sent{Op: "edit_caption", Ref: ref, Text: caption, Opt: opt})
	return err
}

func (a *Adapter) ClearKeyboard(ctx context.Context, ref transport.MessageRef) error {
	_, err := a.record(Sent{Op: "clear_kb", Ref: ref})
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error {
	_, err := a.record(Sent{Op: "answer", Callback: callbackID, Text: text, Alert: alert})
	return err
}

var _ transport.Adapter = (*Adapter)(nil)
