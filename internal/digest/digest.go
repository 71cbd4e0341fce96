// Package digest periodically reminds moderators about requests still waiting
// in the queue.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"modbot/internal/moderation"
	"modbot/internal/transport"
	logx "modbot/pkg/logx"
)

// Source is the read-only view of the queue the digest needs.
type Source interface {
	Stats() moderation.QueueStats
	ModChat() transport.ChatTarget
}

type Config struct {
	Enabled  bool
	Schedule string // see ParseSchedule
	Location *time.Location
}

type Service struct {
	src    Source
	sender transport.Adapter
	log    logx.Logger

	mu    sync.Mutex
	cfg   Config
	c     *cron.Cron
	entry cron.EntryID

	sendTimeout time.Duration
	now         func() time.Time
}

func New(cfg Config, src Source, sender transport.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		src:         src,
		sender:      sender,
		log:         log.With(logx.String("comp", "digest")),
		cfg:         cfg,
		sendTimeout: 15 * time.Second,
		now:         time.Now,
	}
}

// Start schedules the job. It is a no-op when the digest is disabled or
// already running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	sched, err := ParseSchedule(s.cfg.Schedule)
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	loc := s.cfg.Location
	if loc == nil {
		loc = time.Local
	}
	base := context.WithoutCancel(ctx)
	c := cron.New(cron.WithParser(cronParser), cron.WithLocation(loc))
	s.entry = c.Schedule(sched, cron.FuncJob(func() {
		if _, err := s.RunOnce(base); err != nil {
			s.log.Warn("digest not delivered", logx.Err(err))
		}
	}))
	c.Start()
	s.c = c
	s.log.Info("digest scheduled",
		logx.String("schedule", s.cfg.Schedule),
		logx.String("tz", loc.String()),
		logx.Time("next", c.Entry(s.entry).Next),
	)
	return nil
}

// Stop halts the scheduler and waits for a running job up to ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply swaps the configuration and reschedules when it changed.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Enabled == s.cfg.Enabled && cfg.Schedule == s.cfg.Schedule && sameLocation(cfg.Location, s.cfg.Location) {
		return nil
	}
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	s.cfg = cfg
	if !cfg.Enabled {
		s.log.Info("digest disabled")
		return nil
	}
	return s.startLocked(ctx)
}

// NextRun reports when the job fires next; zero when not scheduled.
func (s *Service) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

// RunOnce posts the digest when the queue is not empty. It reports whether a
// message was sent.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	st := s.src.Stats()
	if st.Pending == 0 {
		return false, nil
	}
	to := s.src.ModChat()
	if to.IsZero() {
		return false, errors.New("moderation chat is not set")
	}
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	if _, err := s.sender.SendText(ctx, to, Render(st, s.now()), &transport.SendOptions{DisablePreview: true}); err != nil {
		return false, err
	}
	s.log.Debug("digest sent", logx.Int("pending", st.Pending))
	return true, nil
}

// Render formats the digest text.
func Render(st moderation.QueueStats, now time.Time) string {
	out := fmt.Sprintf("Заявок в очереди: %d", st.Pending)
	if !st.Oldest.IsZero() {
		out += "\nСамая старая ждет: " + formatAge(now.Sub(st.Oldest))
	}
	return out
}

func formatAge(d time.Duration) string {
	if d < time.Minute {
		return "меньше минуты"
	}
	d = d.Truncate(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d д", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d ч", hours))
	}
	if mins > 0 && days == 0 {
		parts = append(parts, fmt.Sprintf("%d мин", mins))
	}
	return strings.Join(parts, " ")
}

func sameLocation(a, b *time.Location) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}
