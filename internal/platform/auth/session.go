package auth

import (
	"errors"
	"sync"
)

// State is the lifecycle state of a principal's session. The transition
// table below is the only way to move between states, which keeps illegal
// combinations (e.g. an active session for a rejected account) out of the
// type entirely.
type State int

const (
	Anonymous State = iota
	Authenticating
	PendingApproval
	Active
	Rejected
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case PendingApproval:
		return "pending-approval"
	case Active:
		return "active"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Session is the authenticated principal attached to the current caller.
type Session struct {
	UserID         string
	Role           string
	ApprovalStatus string
}

// ErrInvalidTransition is returned when a session state change is not in the
// transition table.
var ErrInvalidTransition = errors.New("auth: invalid session transition")

var transitions = map[State][]State{
	Anonymous:       {Authenticating},
	Authenticating:  {Active, PendingApproval, Rejected, Anonymous},
	PendingApproval: {Active, Anonymous},
	Active:          {Anonymous},
	Rejected:        {Anonymous},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Store holds the session for exactly one caller, the way a client keeps
// its own login state. It is never shared across principals: the server
// authenticates each request from its bearer token alone. It replaces
// ad-hoc token/user flags with one explicitly initialized object that is
// safe for concurrent use and testable without any HTTP framework.
type Store struct {
	mu      sync.RWMutex
	state   State
	session *Session
	token   string
}

func NewStore() *Store {
	return &Store{state: Anonymous}
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CurrentSession returns the session, or nil while not authenticated.
func (s *Store) CurrentSession() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Active && s.state != PendingApproval {
		return nil
	}
	sess := *s.session
	return &sess
}

// Token returns the bearer token for the current session, if any.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Begin marks the start of an authentication attempt.
func (s *Store) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, Authenticating) {
		return ErrInvalidTransition
	}
	s.state = Authenticating
	return nil
}

// Complete finishes an authentication attempt. An approved principal becomes
// Active; a pending doctor/hospital account lands in PendingApproval and has
// no role capability until an admin approves it; a rejected account reaches
// Rejected and keeps no session data.
func (s *Store) Complete(sess Session, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target State
	switch sess.ApprovalStatus {
	case "approved":
		target = Active
	case "pending":
		target = PendingApproval
	case "rejected":
		target = Rejected
	default:
		return ErrInvalidTransition
	}
	if !canTransition(s.state, target) {
		return ErrInvalidTransition
	}

	s.state = target
	if target == Rejected {
		s.session = nil
		s.token = ""
		return nil
	}
	s.session = &sess
	s.token = token
	return nil
}

// Fail aborts an in-flight authentication attempt.
func (s *Store) Fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, Anonymous) {
		return ErrInvalidTransition
	}
	s.state = Anonymous
	s.session = nil
	s.token = ""
	return nil
}

// Promote moves a PendingApproval session to Active after admin approval,
// without re-authentication.
func (s *Store) Promote() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != PendingApproval {
		return ErrInvalidTransition
	}
	s.state = Active
	s.session.ApprovalStatus = "approved"
	return nil
}

// Invalidate drops the session unconditionally. Called on logout and on any
// 401 from the backend; no partial session state survives.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Anonymous
	s.session = nil
	s.token = ""
}

// HasRole reports whether the active session carries the given role.
func (s *Store) HasRole(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Active && s.session != nil && s.session.Role == role
}

// HasAnyRole reports whether the active session carries one of the roles.
func (s *Store) HasAnyRole(roles ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Active || s.session == nil {
		return false
	}
	for _, r := range roles {
		if s.session.Role == r {
			return true
		}
	}
	return false
}
