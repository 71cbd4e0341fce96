package moderation

import (
	"time"

	"modbot/internal/transport"
)

// Kind is the media kind of a submission.
type Kind string

const (
	KindText  Kind = "text"
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindPhoto, KindVideo:
		return true
	}
	return false
}

// Request is a submission awaiting a decision. It is created by Submit and
// removed exactly once by Decide; it is never mutated in between.
type Request struct {
	ID        string
	Kind      Kind
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	Text      string
	ForceAnon bool
	// MediaID is the transport file id of the photo/video; empty for text.
	MediaID   string
	CreatedAt time.Time
}

// Submission is a validated inbound event before it is admitted.
type Submission struct {
	Kind      Kind
	From      transport.User
	Text      string
	ForceAnon bool
	MediaID   string
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func (a Action) Valid() bool { return a == ActionApprove || a == ActionReject }

// Card is the moderator-facing message a decision was taken on.
type Card struct {
	Ref        transport.MessageRef
	Text       string // current text or caption
	HasCaption bool
}

// Decision is an approve/reject activation by an actor.
type Decision struct {
	Action    Action
	RequestID string
	ActorID   int64
	// ChatID is the chat the control was pressed in; the moderation chat
	// itself is trusted even for actors outside the admin set.
	ChatID int64
	Card   *Card
}

// Outcome describes a committed decision.
type Outcome struct {
	Request Request
	Action  Action
	ActorID int64
}

// QueueStats is a read-only view of the pending queue.
type QueueStats struct {
	Pending int
	Oldest  time.Time // zero when the queue is empty
}
