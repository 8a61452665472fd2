package domain

import (
	"strings"
	"time"
)

// TokenKind differentiates server-issued tokens from client-synthesized demo tokens.
type TokenKind string

const (
	TokenKindReal TokenKind = "real"
	TokenKindDemo TokenKind = "demo"
)

// DemoTokenPrefix marks tokens minted by the client demo fallback.
// Such tokens carry no signature and are never sent to the API.
const DemoTokenPrefix = "demo-"

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	UserID    string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// KindOf classifies a token string without verifying it.
func KindOf(token string) TokenKind {
	if strings.HasPrefix(token, DemoTokenPrefix) {
		return TokenKindDemo
	}
	return TokenKindReal
}
