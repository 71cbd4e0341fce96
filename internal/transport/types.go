package transport

import (
	"context"
	"strconv"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// User is the sender of an inbound update.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

type MediaKind string

const (
	MediaNone  MediaKind = ""
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// Media is an inbound photo/video. FileID is the transport-level reference that
// can be re-sent without downloading the payload.
type Media struct {
	Kind   MediaKind
	FileID string
}

type Message struct {
	ID      int
	ChatID  int64
	From    User
	Text    string
	Caption string
	// Photo and Video are nil for plain text messages.
	Photo   *Media
	Video   *Media
	IsGroup bool
}

type Callback struct {
	ID        string
	From      User
	ChatID    int64
	MessageID int
	Data      string

	// HasCaption reports whether the message carrying the control is a media
	// message (its text lives in the caption).
	HasCaption bool
	// MessageText is the current text or caption of that message.
	MessageText string
}

// ChatTarget addresses a chat either by numeric id or by public @handle.
type ChatTarget struct {
	ChatID   int64
	Username string
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 && t.Username == "" }

// Recipient renders the target the way the Bot API expects chat_id.
func (t ChatTarget) Recipient() string {
	if t.Username != "" {
		return t.Username
	}
	return strconv.FormatInt(t.ChatID, 10)
}

// Matches reports whether a numeric chat id refers to this target. Handle
// targets never match numeric ids; the adapter resolves them first.
func (t ChatTarget) Matches(chatID int64) bool {
	return t.ChatID != 0 && t.ChatID == chatID
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Keyboard is rendered as an inline keyboard, one row per slice.
	Keyboard [][]Button
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, fileID, caption string, opt *SendOptions) (MessageRef, error)
	SendVideo(ctx context.Context, to ChatTarget, fileID, caption string, opt *SendOptions) (MessageRef, error)

	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	EditCaption(ctx context.Context, ref MessageRef, caption string, opt *SendOptions) error
	// ClearKeyboard removes the inline keyboard from a message.
	ClearKeyboard(ctx context.Context, ref MessageRef) error

	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// ChatResolver is implemented by adapters able to turn an @handle target into a
// numeric chat id.
type ChatResolver interface {
	ResolveChat(ctx context.Context, to ChatTarget) (ChatTarget, error)
}
