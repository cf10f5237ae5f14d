package session

import (
	"sync"
	"time"
)

// Principal is the identity captured into a session at login. Roles are cached
// here for the session's lifetime and are not refreshed from the credential store.
type Principal struct {
	UserID   int64
	Email    string
	FullName string
	Roles    []string
}

type authState struct {
	Principal
	CSRFToken    string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Record is the server-held state behind one session cookie. Auth is nil for an
// anonymous session that only carries values such as a flash message.
type Record struct {
	ID        string
	Auth      *authState
	Values    map[string]string
	UpdatedAt time.Time
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	cp := &Record{ID: r.ID, UpdatedAt: r.UpdatedAt}
	if r.Auth != nil {
		a := *r.Auth
		a.Roles = append([]string(nil), r.Auth.Roles...)
		cp.Auth = &a
	}
	if len(r.Values) > 0 {
		cp.Values = make(map[string]string, len(r.Values))
		for k, v := range r.Values {
			cp.Values[k] = v
		}
	}
	return cp
}

type Store interface {
	Get(id string) (*Record, bool)
	Save(rec *Record)
	// Update overwrites an existing record and reports false when its id is gone.
	Update(rec *Record) bool
	Delete(id string)
	// DeleteIf removes every record for which fn returns true and reports how many went.
	DeleteIf(fn func(*Record) bool) int
	Len() int
}

// MemoryStore keeps sessions in process memory. Records are copied on the way
// in and out so handles never share state.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Record)}
}

func (s *MemoryStore) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

func (s *MemoryStore) Save(rec *Record) {
	if rec == nil || rec.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = rec.clone()
}

func (s *MemoryStore) Update(rec *Record) bool {
	if rec == nil || rec.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[rec.ID]; !ok {
		return false
	}
	s.sessions[rec.ID] = rec.clone()
	return true
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *MemoryStore) DeleteIf(fn func(*Record) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.sessions {
		if fn(rec) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
