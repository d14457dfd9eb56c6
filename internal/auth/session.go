package auth

import "sync"

// Session is the client's process-wide authenticated session. It is set on
// login, cleared on logout and read by every outgoing request.
type Session struct {
	mu      sync.RWMutex
	token   string
	userID  string
	watches []chan struct{}
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Set(token, userID string) {
	s.mu.Lock()
	s.token, s.userID = token, userID
	s.mu.Unlock()
	s.notify()
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.token, s.userID = "", ""
	s.mu.Unlock()
	s.notify()
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Changes returns a channel that receives after every Set or Clear, and a
// func that stops the notifications. Notifications are coalesced when the
// reader falls behind.
func (s *Session) Changes() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watches = append(s.watches, ch)
	s.mu.Unlock()

	return ch, func() { s.unwatch(ch) }
}

func (s *Session) unwatch(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.watches {
		if w == ch {
			s.watches = append(s.watches[:i], s.watches[i+1:]...)
			return
		}
	}
}

func (s *Session) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watches {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
