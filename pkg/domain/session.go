package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SessionKey identifies a session by its (application, user, session) triple.
type SessionKey struct {
	AppName   string `json:"app_name" yaml:"app_name"`
	UserID    string `json:"user_id" yaml:"user_id"`
	SessionID string `json:"session_id" yaml:"session_id"`
}

// NewSessionKey is a shorthand constructor.
func NewSessionKey(app, user, session string) SessionKey {
	return SessionKey{AppName: app, UserID: user, SessionID: session}
}

// Validate ensures every part of the triple is set.
func (k SessionKey) Validate() error {
	switch {
	case strings.TrimSpace(k.AppName) == "":
		return fmt.Errorf("%w: app name is required", ErrInvalidSessionKey)
	case strings.TrimSpace(k.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidSessionKey)
	case strings.TrimSpace(k.SessionID) == "":
		return fmt.Errorf("%w: session id is required", ErrInvalidSessionKey)
	}
	return nil
}

// Encode returns a stable single-string form "app/user/session" with each
// part path-escaped, suitable for store keys.
func (k SessionKey) Encode() string {
	return url.PathEscape(k.AppName) + "/" + url.PathEscape(k.UserID) + "/" + url.PathEscape(k.SessionID)
}

func (k SessionKey) String() string {
	return k.Encode()
}

// ParseSessionKey reverses Encode.
func ParseSessionKey(s string) (SessionKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return SessionKey{}, fmt.Errorf("%w: %q", ErrInvalidSessionKey, s)
	}
	var decoded [3]string
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			return SessionKey{}, fmt.Errorf("%w: %v", ErrInvalidSessionKey, err)
		}
		decoded[i] = v
	}
	key := SessionKey{AppName: decoded[0], UserID: decoded[1], SessionID: decoded[2]}
	return key, key.Validate()
}

// Session owns the State and the ordered event log of one conversation.
type Session struct {
	Key       SessionKey `json:"key" yaml:"key"`
	State     State      `json:"state" yaml:"state"`
	Events    []Event    `json:"events" yaml:"events"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
}

// NewSession creates an empty session seeded with initial state.
func NewSession(key SessionKey, initial map[string]any) *Session {
	now := time.Now().UTC()
	return &Session{
		Key:       key,
		State:     NewState(initial),
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append records an event in the session log.
func (s *Session) Append(ev *Event) {
	s.Events = append(s.Events, ev.clone())
	s.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy so stores never share memory with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.State = s.State.Clone()
	if out.State == nil {
		out.State = State{}
	}
	out.Events = make([]Event, len(s.Events))
	for i := range s.Events {
		out.Events[i] = s.Events[i].clone()
	}
	return &out
}
