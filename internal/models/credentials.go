package models

import (
	"time"
)

// Credentials issued by the commerce API on login, registration or refresh
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (c Credentials) IsZero() bool {
	return c.Access == "" && c.Refresh == ""
}

// Claims the session cares about, decoded from an access token
type AccessClaims struct {
	Subject   string
	Username  string
	ExpiresAt time.Time
}

type Profile struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	IsEmailVerified bool   `json:"is_email_verified"`
}

// Identity is the in-memory view of who the session belongs to
type Identity struct {
	Authenticated bool
	Subject       string
	Username      string
	Profile       *Profile
}
