package session

import (
	"slices"
	"sync"
)

// Registry maps session ids to live sessions.
type Registry struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(cfg Config, deps Deps) *Registry {
	return &Registry{cfg: cfg, deps: deps, sessions: map[string]*Session{}}
}

// Create starts a session under id. A session already registered under the
// same id is stopped first, and its consumer has exited by the time the new
// session exists.
func (r *Registry) Create(id string, sink Sink) *Session {
	r.mu.Lock()
	old := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if old != nil {
		old.log.Info("superseded by new connection")
		old.Close()
	}

	s := newSession(id, sink, r.cfg, r.deps)

	r.mu.Lock()
	raced := r.sessions[id]
	r.sessions[id] = s
	r.mu.Unlock()

	if raced != nil {
		raced.Close()
	}
	go r.forget(s)
	return s
}

// forget unregisters s once its consumer exits, so a session that ended on
// its own stops accepting fragments under its id.
func (r *Registry) forget(s *Session) {
	<-s.Done()
	r.mu.Lock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Enqueue(id string, data []byte) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.Enqueue(data)
	return nil
}

// Stop removes id from the registry before waiting for its session to drain,
// so a reconnect under the same id never reaches the old session.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

// Release stops s, unregistering it only if it is still the session under
// its id. Connection handlers use it so a closing socket cannot stop the
// session of a newer connection that reused the id.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()

	s.Close()
}

// StopAll drains every session concurrently.
func (r *Registry) StopAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}

// Active returns the registered ids in sorted order.
func (r *Registry) Active() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
