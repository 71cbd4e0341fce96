package moderation

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"modbot/internal/storage"
)

// state is the aggregate root. It is only touched with Service.mu held.
type state struct {
	admins   map[int64]struct{}
	pending  map[string]Request
	lastSent map[int64]int64 // unix seconds of the last admitted submission
}

// loadState builds the state from a stored snapshot (nil means first start).
// The main administrator is always a member afterwards.
func loadState(snap *storage.Snapshot, mainAdminID int64) (*state, error) {
	st := &state{
		admins:   map[int64]struct{}{mainAdminID: {}},
		pending:  map[string]Request{},
		lastSent: map[int64]int64{},
	}
	if snap == nil {
		return st, nil
	}
	for _, id := range snap.Admins {
		st.admins[id] = struct{}{}
	}
	for id, rec := range snap.Pending {
		req, err := requestFromRecord(id, rec)
		if err != nil {
			return nil, err
		}
		st.pending[id] = req
	}
	for k, ts := range snap.LastSent {
		uid, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("last_sent: bad user id %q: %w", k, err)
		}
		st.lastSent[uid] = ts
	}
	return st, nil
}

func (st *state) snapshot() *storage.Snapshot {
	snap := &storage.Snapshot{
		Admins:   st.sortedAdmins(),
		Pending:  make(map[string]storage.PendingRecord, len(st.pending)),
		LastSent: make(map[string]int64, len(st.lastSent)),
	}
	for id, req := range st.pending {
		snap.Pending[id] = recordFromRequest(req)
	}
	for uid, ts := range st.lastSent {
		snap.LastSent[strconv.FormatInt(uid, 10)] = ts
	}
	return snap
}

func (st *state) sortedAdmins() []int64 {
	out := make([]int64, 0, len(st.admins))
	for id := range st.admins {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func requestFromRecord(id string, rec storage.PendingRecord) (Request, error) {
	req := Request{
		ID:        id,
		Kind:      Kind(rec.Type),
		UserID:    rec.UserID,
		Username:  rec.Username,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Text:      rec.Text,
		ForceAnon: rec.ForceAnon,
	}
	if req.Kind == "" {
		req.Kind = KindText
	}
	if !req.Kind.Valid() {
		return Request{}, fmt.Errorf("pending %s: unknown type %q", id, rec.Type)
	}
	switch req.Kind {
	case KindPhoto:
		req.MediaID = rec.PhotoID
	case KindVideo:
		req.MediaID = rec.VideoID
	}
	if rec.CreatedAt > 0 {
		req.CreatedAt = time.Unix(rec.CreatedAt, 0)
	}
	return req, nil
}

func recordFromRequest(req Request) storage.PendingRecord {
	rec := storage.PendingRecord{
		Type:      string(req.Kind),
		UserID:    req.UserID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Text:      req.Text,
		ForceAnon: req.ForceAnon,
	}
	switch req.Kind {
	case KindPhoto:
		rec.PhotoID = req.MediaID
	case KindVideo:
		rec.VideoID = req.MediaID
	}
	if !req.CreatedAt.IsZero() {
		rec.CreatedAt = req.CreatedAt.Unix()
	}
	return rec
}
