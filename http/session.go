package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"pavecheck/ml"
)

const sessionCookie = "pavecheck_session"

// Session is the per-browser state: the loaded pipeline artifact and the
// dropdown choices from the optional spreadsheet. Sessions never outlive the
// store's TTL and hold nothing persistent.
type Session struct {
	ID string

	mu       sync.Mutex
	pipeline *ml.Pipeline
	choices  map[string][]string
}

func (s *Session) SetPipeline(p *ml.Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipeline = p
}

func (s *Session) Pipeline() *ml.Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline
}

func (s *Session) SetChoices(c map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.choices = c
}

func (s *Session) Choices() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.choices
}

// SessionStore hands out cookie-identified sessions from a bounded,
// expiring cache so abandoned sessions age out on their own.
type SessionStore struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, *Session]
}

func NewSessionStore(capacity int, ttl time.Duration) *SessionStore {
	if capacity <= 0 {
		capacity = 128
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SessionStore{
		lru: expirable.NewLRU[string, *Session](capacity, nil, ttl),
	}
}

// Get returns the request's session, creating one and setting the cookie
// when none exists.
func (st *SessionStore) Get(w http.ResponseWriter, r *http.Request) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if c, err := r.Cookie(sessionCookie); err == nil {
		if sess, ok := st.lru.Get(c.Value); ok {
			return sess
		}
	}

	sess := &Session{ID: uuid.NewString()}
	st.lru.Add(sess.ID, sess)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}
