package server

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/vainilla/vm"
)

// Session is a step-debugging session: one VM, owned by its own worker,
// plus everything the program has printed so far.
type Session struct {
	ID      string
	Name    string
	Created time.Time

	worker   *VMWorker
	out      *bytes.Buffer // written only on the worker goroutine
	lastUsed atomic.Int64  // unix nanos
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed reports when the session was last looked up.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Do runs fn on the session's VM goroutine. fn also receives the output
// buffer so it can report what the program printed.
func (s *Session) Do(fn func(v *vm.VM, out *bytes.Buffer) any) (any, error) {
	return s.worker.Do(func(v *vm.VM) any { return fn(v, s.out) })
}

// SessionStore manages debug sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nextID   atomic.Uint64
}

// NewSessionStore creates a new session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Create starts a session for prog. READ consumes lines from input.
func (s *SessionStore) Create(name string, prog []vm.Instruction, input string) *Session {
	id := fmt.Sprintf("s-%d", s.nextID.Add(1))

	out := &bytes.Buffer{}
	machine := vm.New(prog,
		vm.WithInput(strings.NewReader(input)),
		vm.WithOutput(out),
		vm.WithPrompt(""),
	)
	session := &Session{
		ID:      id,
		Name:    name,
		Created: time.Now(),
		worker:  NewVMWorker(machine),
		out:     out,
	}
	session.touch()

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	log.Debugf("session %s created (%d instructions)", id, len(prog))
	return session
}

// Get retrieves a session by ID and marks it as used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if ok {
		session.touch()
	}
	return session, ok
}

// Destroy removes a session and stops its worker. It reports whether the
// session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		session.worker.Stop()
		log.Debugf("session %s destroyed", id)
	}
	return ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// DestroyAll stops every session.
func (s *SessionStore) DestroyAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range all {
		session.worker.Stop()
	}
}

// Sweep removes sessions that haven't been accessed within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl).UnixNano()

	s.mu.Lock()
	var expired []*Session
	for id, session := range s.sessions {
		if session.lastUsed.Load() < cutoff {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		session.worker.Stop()
	}
	if len(expired) > 0 {
		log.Infof("swept %d idle sessions", len(expired))
	}
	return len(expired)
}

// StartSweeper runs periodic TTL sweeps in the background and returns a
// stop function. A non-positive ttl disables sweeping; a non-positive
// interval sweeps once per ttl.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	if ttl <= 0 {
		return func() {}
	}
	if interval <= 0 {
		interval = ttl
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
