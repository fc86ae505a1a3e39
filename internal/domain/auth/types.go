package auth

import "time"

// Config drives authentication behavior.
type Config struct {
	Secret   string
	TokenTTL time.Duration
	Clients  []Client
}

// Client is an API consumer allowed to request access tokens.
type Client struct {
	ID         string
	SecretHash string
}

// TokenRequest captures the client credentials grant.
type TokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// TokenResponse returns the signed token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claims are extracted from the JWT token.
type Claims struct {
	ClientID  string
	TokenType string
	ExpiresAt time.Time
}
