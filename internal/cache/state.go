// Package cache keeps the in-memory mirror of stored sessions together with
// the ephemeral selection state of the chat UI.
package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/models"
)

// ErrOutOfOrder is returned when an appended message does not carry the next
// sequence number of its cached session.
var ErrOutOfOrder = errors.New("message out of sequence")

// State mirrors the store. Callers mutate it only after the matching store
// write succeeded.
type State struct {
	mu       sync.RWMutex
	sessions map[int64]*domain.SessionRecord

	current       int64
	hasCurrent    bool
	selectedModel string
	newChat       bool
	draftTitle    string
}

// New returns an empty state with the default model selected.
func New() *State {
	return &State{
		sessions:      make(map[int64]*domain.SessionRecord),
		selectedModel: models.Default(),
	}
}

// Load replaces the cached sessions with records.
func (s *State) Load(records []domain.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[int64]*domain.SessionRecord, len(records))
	for _, r := range records {
		rec := r.Clone()
		s.sessions[rec.ID] = &rec
	}
	if s.hasCurrent {
		if _, ok := s.sessions[s.current]; !ok {
			s.hasCurrent = false
			s.current = 0
		}
	}
}

// Get returns a copy of the cached session.
func (s *State) Get(id int64) (domain.SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return domain.SessionRecord{}, false
	}
	return rec.Clone(), true
}

// Upsert inserts or replaces a session.
func (s *State) Upsert(record domain.SessionRecord) {
	rec := record.Clone()
	s.mu.Lock()
	s.sessions[rec.ID] = &rec
	s.mu.Unlock()
}

// Remove drops a session. If it was current, no session is current anymore.
func (s *State) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	if s.hasCurrent && s.current == id {
		s.hasCurrent = false
		s.current = 0
	}
}

// AppendMessage adds msg to its cached session. msg.Seq must be the next
// local sequence number.
func (s *State) AppendMessage(id int64, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %d not cached", domain.ErrNotFound, id)
	}
	if want := rec.NextSeq(); msg.Seq != want {
		return fmt.Errorf("%w: session %d expected seq %d, got %d", ErrOutOfOrder, id, want, msg.Seq)
	}
	rec.Messages = append(rec.Messages, msg)
	return nil
}

// SetCurrent makes id the current session.
func (s *State) SetCurrent(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: session %d", domain.ErrNotFound, id)
	}
	s.current = id
	s.hasCurrent = true
	return nil
}

// ClearCurrent leaves no session selected.
func (s *State) ClearCurrent() {
	s.mu.Lock()
	s.current = 0
	s.hasCurrent = false
	s.mu.Unlock()
}

// Current returns the current session id.
func (s *State) Current() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.hasCurrent
}

// Newest returns the highest cached session id.
func (s *State) Newest() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest int64
	found := false
	for id := range s.sessions {
		if !found || id > newest {
			newest = id
			found = true
		}
	}
	return newest, found
}

// List returns the cached sessions without messages, newest id first.
func (s *State) List() []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *State) listLocked() []domain.Session {
	out := make([]domain.Session, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec.Session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// BeginNewChat enters the new-chat form with an empty draft title.
func (s *State) BeginNewChat() {
	s.mu.Lock()
	s.newChat = true
	s.draftTitle = ""
	s.mu.Unlock()
}

// SetDraftTitle records the title typed so far.
func (s *State) SetDraftTitle(title string) {
	s.mu.Lock()
	s.draftTitle = title
	s.mu.Unlock()
}

// EndNewChat closes the new-chat form and discards the draft.
func (s *State) EndNewChat() {
	s.mu.Lock()
	s.newChat = false
	s.draftTitle = ""
	s.mu.Unlock()
}

// SelectedModel returns the model used for the next turn.
func (s *State) SelectedModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedModel
}

// SelectModel sets the model used for the next turn. Blank ids select the
// default model.
func (s *State) SelectModel(id string) {
	s.mu.Lock()
	s.selectedModel = models.Resolve(id)
	s.mu.Unlock()
}

// Snapshot returns a view of the state that later mutations do not affect.
func (s *State) Snapshot() domain.StateResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.StateResponse{
		Sessions:      s.listLocked(),
		SelectedModel: s.selectedModel,
		NewChatMode:   s.newChat,
		DraftTitle:    s.draftTitle,
	}
	if s.hasCurrent {
		id := s.current
		snap.CurrentID = &id
	}
	return snap
}
