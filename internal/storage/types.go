package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
type Config struct {
	Driver      string // "file" | "sqlite"
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Snapshot is the persisted document.
type Snapshot struct {
	Admins   []int64                  `json:"admins"`
	Pending  map[string]PendingRecord `json:"pending"`
	LastSent map[string]int64         `json:"last_sent"`
}

// PendingRecord is one request awaiting a decision, keyed by request id.
type PendingRecord struct {
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Text      string `json:"text"`
	ForceAnon bool   `json:"force_anon"`
	PhotoID   string `json:"photo_id,omitempty"`
	VideoID   string `json:"video_id,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// AuditEntry records a moderation or admin action. Keep it compact and
// schema-stable.
type AuditEntry struct {
	At        time.Time `json:"at"`
	ActorID   int64     `json:"actor_id"`
	Action    string    `json:"action"` // approve | reject | add_admin | remove_admin
	RequestID string    `json:"request_id,omitempty"`
	TargetID  int64     `json:"target_id,omitempty"`
	Error     string    `json:"err,omitempty"`
}

// Store is the persistence API used by the moderation service.
type Store interface {
	// Load returns the stored snapshot, or (nil, nil) if nothing was saved yet.
	Load(ctx context.Context) (*Snapshot, error)
	// Save atomically replaces the stored snapshot.
	Save(ctx context.Context, s *Snapshot) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}
