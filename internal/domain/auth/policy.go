package auth

import (
	"errors"
	"time"
)

// Defaults applied when configuration leaves a field unset.
const (
	DefaultSessionDuration = 7 * 24 * time.Hour
	DefaultIdleTimeout     = 1440 * time.Minute
)

// Validation outcomes. All of them mean "unauthorized" to a caller; the
// distinction only drives store cleanup and metrics.
var (
	ErrNoSession       = errors.New("no session token")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionIdle     = errors.New("session idle timeout")
)

// Login and gate outcomes.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccessDenied       = errors.New("access denied")
	ErrAdminNotFound      = errors.New("admin account not found")
)

// IsTerminal reports whether err means the session record must be removed.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrSessionIdle)
}

// IsUnauthorized reports whether err is a normal validation failure as
// opposed to an infrastructure error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNoSession) ||
		errors.Is(err, ErrSessionNotFound) ||
		IsTerminal(err)
}

// Policy holds the session lifetime rules. It is built once at startup and
// shared by value.
type Policy struct {
	SessionDuration time.Duration
	IdleTimeout     time.Duration
}

// DefaultPolicy returns the 7 day / 1440 minute policy.
func DefaultPolicy() Policy {
	return Policy{SessionDuration: DefaultSessionDuration, IdleTimeout: DefaultIdleTimeout}
}

// NewPolicy builds a Policy from whole days and minutes; non-positive
// values fall back to the defaults.
func NewPolicy(durationDays, idleMinutes int) Policy {
	p := DefaultPolicy()
	if durationDays > 0 {
		p.SessionDuration = time.Duration(durationDays) * 24 * time.Hour
	}
	if idleMinutes > 0 {
		p.IdleTimeout = time.Duration(idleMinutes) * time.Minute
	}
	return p
}

// NewSession builds a fresh session for admin with the given token.
func (p Policy) NewSession(token string, admin AdminUser, now time.Time) Session {
	return Session{
		Token:          token,
		AdminID:        admin.ID,
		Email:          admin.Email,
		Name:           admin.Name,
		Role:           admin.Role,
		CreatedAt:      now,
		ExpiresAt:      now.Add(p.SessionDuration),
		LastActivityAt: now,
	}
}

// Check returns nil if s is valid at now, else ErrSessionExpired or
// ErrSessionIdle. Expiry is checked first.
func (p Policy) Check(s Session, now time.Time) error {
	if !now.Before(s.ExpiresAt) {
		return ErrSessionExpired
	}
	if now.Sub(s.LastActivityAt) >= p.IdleTimeout {
		return ErrSessionIdle
	}
	return nil
}

// Touch validates s at now and records the access.
func (p Policy) Touch(s *Session, now time.Time) error {
	if err := p.Check(*s, now); err != nil {
		return err
	}
	s.LastActivityAt = now
	return nil
}

// Renew validates s at now and slides its expiry to now+SessionDuration.
// CreatedAt is left untouched.
func (p Policy) Renew(s *Session, now time.Time) error {
	if err := p.Check(*s, now); err != nil {
		return err
	}
	s.ExpiresAt = now.Add(p.SessionDuration)
	s.LastActivityAt = now
	return nil
}

// Stale reports whether s should be swept at now.
func (p Policy) Stale(s Session, now time.Time) bool {
	return p.Check(s, now) != nil
}

// IdleCutoff is the last-activity instant before which sessions are idle.
func (p Policy) IdleCutoff(now time.Time) time.Time {
	return now.Add(-p.IdleTimeout)
}
