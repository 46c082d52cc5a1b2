package auth

// Package auth contains domain-level types for client sessions and credentials.
// It is pure and free of transport/storage concerns.

import (
	"fmt"
	"strings"
)

// Storage keys for the persisted credential pair.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// Role is the audience a user signs in as.
// Keep string form; it is sent verbatim in the login body.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleOfficer Role = "officer"
)

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleCitizen, RoleOfficer:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role: %q (valid options: citizen, officer)", s)
	}
}

// TokenPair is the credential pair issued by the server on login or refresh.
// RefreshToken may be empty when the server only rotates the access token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Profile is the subset of the user profile the session cares about.
type Profile struct {
	IsOfficer bool `json:"is_officer"`
}

// State is the session validity state.
type State string

const (
	// StateUnauthenticated means no access token is held.
	StateUnauthenticated State = "unauthenticated"
	// StateAuthenticated means an access token is held and was not rejected.
	StateAuthenticated State = "authenticated"
	// StateExpired means the server rejected the access token while a refresh token is still held.
	StateExpired State = "expired"
)

// Snapshot is the observable session state handed to subscribers.
type Snapshot struct {
	State      State
	Session    string
	HasSession bool
	IsOfficer  bool
	// Loading is true until stored credentials have been read.
	Loading bool
}

// Authenticated reports whether a session is held, regardless of expiry.
func (s Snapshot) Authenticated() bool { return s.HasSession }
