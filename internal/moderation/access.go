package moderation

import (
	"context"

	"modbot/internal/storage"
	logx "modbot/pkg/logx"
)

func (s *Service) IsModerator(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.st.admins[id]
	return ok
}

func (s *Service) IsMainAdmin(id int64) bool { return id == s.mainAdminID }

// Admins returns the admin set in ascending order.
func (s *Service) Admins() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.sortedAdmins()
}

func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.pending)
}

// AddAdmin grants moderator rights. Only the main administrator may call it.
// Adding an existing admin is a no-op that still succeeds.
func (s *Service) AddAdmin(ctx context.Context, actorID, targetID int64) error {
	if actorID != s.mainAdminID {
		return ErrNotMainAdmin
	}
	if targetID <= 0 {
		return ErrBadAdminID
	}
	s.mu.Lock()
	if _, ok := s.st.admins[targetID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.st.admins[targetID] = struct{}{}
	if err := s.saveLocked(ctx); err != nil {
		delete(s.st.admins, targetID)
		s.mu.Unlock()
		s.log.Error("add admin not persisted", logx.Int64("target_id", targetID), logx.Err(err))
		return &PersistError{Op: "add_admin", Err: err}
	}
	s.mu.Unlock()

	s.log.Info("admin added", logx.Int64("actor_id", actorID), logx.Int64("target_id", targetID))
	s.audit(ctx, storage.AuditEntry{ActorID: actorID, Action: "add_admin", TargetID: targetID})
	s.emit(EventAdminChanged, AdminChange{ActorID: actorID, TargetID: targetID, Added: true})
	return nil
}

// RemoveAdmin revokes moderator rights. The main administrator cannot be
// removed. Removing a non-member succeeds without change.
func (s *Service) RemoveAdmin(ctx context.Context, actorID, targetID int64) error {
	if actorID != s.mainAdminID {
		return ErrNotMainAdmin
	}
	if targetID == s.mainAdminID {
		return ErrRemoveMainAdmin
	}
	if targetID <= 0 {
		return ErrBadAdminID
	}
	s.mu.Lock()
	if _, ok := s.st.admins[targetID]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.st.admins, targetID)
	if err := s.saveLocked(ctx); err != nil {
		s.st.admins[targetID] = struct{}{}
		s.mu.Unlock()
		s.log.Error("remove admin not persisted", logx.Int64("target_id", targetID), logx.Err(err))
		return &PersistError{Op: "remove_admin", Err: err}
	}
	s.mu.Unlock()

	s.log.Info("admin removed", logx.Int64("actor_id", actorID), logx.Int64("target_id", targetID))
	s.audit(ctx, storage.AuditEntry{ActorID: actorID, Action: "remove_admin", TargetID: targetID})
	s.emit(EventAdminChanged, AdminChange{ActorID: actorID, TargetID: targetID})
	return nil
}
