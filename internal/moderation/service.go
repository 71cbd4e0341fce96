package moderation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"modbot/internal/eventbus"
	"modbot/internal/storage"
	"modbot/internal/transport"
	logx "modbot/pkg/logx"
)

// Event types published on the bus.
const (
	EventQueued       = "request.queued"
	EventDecided      = "request.decided"
	EventAdminChanged = "admin.changed"
)

// AdminChange is the payload of EventAdminChanged.
type AdminChange struct {
	ActorID  int64
	TargetID int64
	Added    bool
}

const defaultSendTimeout = 15 * time.Second

type Options struct {
	Store       storage.Store
	Adapter     transport.Adapter
	Log         logx.Logger
	Bus         eventbus.Bus // optional
	ModChat     transport.ChatTarget
	PublicChat  transport.ChatTarget
	MainAdminID int64
	Cooldown    time.Duration
	SendTimeout time.Duration

	// Test hooks.
	NewID func() string
	Now   func() time.Time
}

// Service owns the moderation state. Every mutation runs under mu and is
// persisted before mu is released; outbound sends happen after release.
type Service struct {
	mu       sync.Mutex
	st       *state
	cooldown Cooldown
	modChat  transport.ChatTarget

	store       storage.Store
	adapter     transport.Adapter
	log         logx.Logger
	bus         eventbus.Bus
	publicChat  transport.ChatTarget
	mainAdminID int64
	sendTimeout time.Duration
	newID       func() string
	now         func() time.Time
}

// New loads the persisted state and returns a ready service. The main
// administrator is always part of the admin set afterwards.
func New(ctx context.Context, opt Options) (*Service, error) {
	if opt.Store == nil {
		return nil, errors.New("moderation: nil store")
	}
	if opt.Adapter == nil {
		return nil, errors.New("moderation: nil adapter")
	}
	if opt.MainAdminID <= 0 {
		return nil, ErrBadAdminID
	}
	snap, err := opt.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	st, err := loadState(snap, opt.MainAdminID)
	if err != nil {
		return nil, err
	}

	s := &Service{
		st:          st,
		cooldown:    Cooldown{Window: opt.Cooldown},
		modChat:     opt.ModChat,
		store:       opt.Store,
		adapter:     opt.Adapter,
		log:         opt.Log.With(logx.String("comp", "moderation")),
		bus:         opt.Bus,
		publicChat:  opt.PublicChat,
		mainAdminID: opt.MainAdminID,
		sendTimeout: opt.SendTimeout,
		newID:       opt.NewID,
		now:         opt.Now,
	}
	if s.sendTimeout <= 0 {
		s.sendTimeout = defaultSendTimeout
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.log.Info("state loaded",
		logx.Int("admins", len(st.admins)),
		logx.Int("pending", len(st.pending)),
		logx.Bool("fresh", snap == nil),
	)
	// Persist right away so a fresh deployment has the main admin on disk.
	if snap == nil {
		s.mu.Lock()
		err = s.saveLocked(ctx)
		s.mu.Unlock()
		if err != nil {
			return nil, &PersistError{Op: "init", Err: err}
		}
	}
	return s, nil
}

// saveLocked writes the whole state. Callers hold s.mu.
func (s *Service) saveLocked(ctx context.Context) error {
	return s.store.Save(ctx, s.st.snapshot())
}

func (s *Service) emit(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}

func (s *Service) audit(ctx context.Context, e storage.AuditEntry) {
	if e.At.IsZero() {
		e.At = s.now()
	}
	if err := s.store.AppendAudit(ctx, e); err != nil {
		s.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

// sendCtx detaches outbound sends from the caller's cancellation and bounds
// them by the send timeout.
func (s *Service) sendCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.sendTimeout)
}

// SetCooldown changes the rate-limit window. It applies to the next intake.
func (s *Service) SetCooldown(d time.Duration) {
	s.mu.Lock()
	s.cooldown.Window = d
	s.mu.Unlock()
}

// SetModChat replaces the moderation destination, e.g. once an @handle has
// been resolved to its numeric id.
func (s *Service) SetModChat(t transport.ChatTarget) {
	s.mu.Lock()
	s.modChat = t
	s.mu.Unlock()
}

func (s *Service) ModChat() transport.ChatTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modChat
}

func (s *Service) PublicChat() transport.ChatTarget { return s.publicChat }

func (s *Service) MainAdminID() int64 { return s.mainAdminID }

// Stats reports the pending queue size and the oldest request time.
func (s *Service) Stats() QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs := QueueStats{Pending: len(s.st.pending)}
	for _, req := range s.st.pending {
		if req.CreatedAt.IsZero() {
			continue
		}
		if qs.Oldest.IsZero() || req.CreatedAt.Before(qs.Oldest) {
			qs.Oldest = req.CreatedAt
		}
	}
	return qs
}

// Pending returns a copy of one pending request.
func (s *Service) Pending(id string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.st.pending[id]
	return req, ok
}
