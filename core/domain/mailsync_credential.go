package domain

import "time"

// Credential is an OAuth access credential for the mailbox account.
type Credential struct {
	Account      string    `json:"account"`
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// expiryDelta matches the early-expiry window used by golang.org/x/oauth2.
const expiryDelta = 10 * time.Second

// Valid reports whether the credential carries an access token that has not expired.
// A zero expiry never expires.
func (c *Credential) Valid() bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(expiryDelta).Before(c.Expiry)
}

// Clone returns an independent copy.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
