package auth

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/layover/internal/backend"
	"go.uber.org/zap"
)

var _ backend.Auth = (*Session)(nil)

// Session is a backend.Auth driven by explicit sign-in and sign-out.
type Session struct {
	secret []byte
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	user      *backend.User
	expires   time.Time
	listeners map[int]func(*backend.User)
	next      int
}

// NewSession creates a signed-out session verifying tokens with secret.
func NewSession(secret []byte, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		secret:    secret,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]func(*backend.User)),
	}
}

// SignIn verifies token and makes its subject the current user.
func (s *Session) SignIn(token string) (*backend.User, error) {
	u, exp, err := Verify(s.secret, token)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user, s.expires = u, exp
	s.mu.Unlock()
	s.logger.Info("signed in", zap.String("user_id", u.ID))
	s.notify(u)
	return copyUser(u), nil
}

// SignOut clears the current user. Signing out twice notifies once.
func (s *Session) SignOut() {
	s.mu.Lock()
	was := s.user
	s.user, s.expires = nil, time.Time{}
	s.mu.Unlock()
	if was == nil {
		return
	}
	s.logger.Info("signed out", zap.String("user_id", was.ID))
	s.notify(nil)
}

// CurrentUser returns the signed-in user, or nil once the token expired.
func (s *Session) CurrentUser(context.Context) (*backend.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil, nil
	}
	if !s.expires.IsZero() && !s.now().Before(s.expires) {
		return nil, nil
	}
	return copyUser(s.user), nil
}

// OnAuthStateChange registers fn for sign-in and sign-out.
func (s *Session) OnAuthStateChange(fn func(*backend.User)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) notify(u *backend.User) {
	s.mu.Lock()
	fns := make([]func(*backend.User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(copyUser(u))
	}
}

func copyUser(u *backend.User) *backend.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
