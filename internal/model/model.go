// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// User is a locally stored credential. Email is unique case-insensitively.
type User struct {
	ID           string
	Email        string // lowercased
	PasswordHash string // bcrypt, or OAuthPasswordHash for federated accounts
	CreatedAt    time.Time
}

// Principal returns the public identity of the user.
func (u User) Principal() Principal { return Principal{ID: u.ID, Email: u.Email} }

// Session is a local login. Only the digest of the opaque token is stored.
type Session struct {
	TokenHash []byte
	UserID    string
	ExpiresAt time.Time
}

// SessionKind tells which cookie a grant must be written to.
type SessionKind int

const (
	// SessionLocal is a session issued and validated by this service.
	SessionLocal SessionKind = iota
	// SessionPlatform is a session issued by the hosted users platform.
	SessionPlatform
)

// SessionGrant is the result of a successful login, registration or code exchange.
type SessionGrant struct {
	Kind      SessionKind
	Token     string // plaintext, only ever handed to the cookie writer
	ExpiresAt time.Time
	Principal Principal // zero for platform grants
}

// Role of a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// Thread is an owned, ordered conversation container.
type Thread struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is an immutable entry of a thread.
type Message struct {
	ID        int64     `json:"id"`
	ThreadID  uuid.UUID `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one provider-ready transcript entry ("user" or "model").
type Turn struct {
	Role string
	Text string
}

// Provider role vocabulary.
const (
	TurnUser  = "user"
	TurnModel = "model"
)

// Image is a generated image record with the payload embedded as a data URI.
type Image struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Prompt      string    `json:"prompt"`
	ImageURL    string    `json:"image_url"`
	AspectRatio string    `json:"aspect_ratio"`
	CreatedAt   time.Time `json:"created_at"`
}

// ImagePayload is a raw inline image returned by the provider.
type ImagePayload struct {
	MIMEType string
	Data     []byte
}

// StreamEvent is one event of a relayed response. Exactly one field is set.
type StreamEvent struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool { return e.Done || e.Error != "" }
