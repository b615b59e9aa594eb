package domain

import "time"

// Session holds OAuth state between the authorize redirect and the
// provider callback. Short-lived; expired sessions are rejected.
type Session struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	UserID    string    `json:"user_id"`
	Provider  Provider  `json:"provider"`
	Shop      string    `json:"shop"`
	Scopes    []string  `json:"scopes"`
	ReturnURL string    `json:"return_url"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
