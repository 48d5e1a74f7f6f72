package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleManager UserRole = "MANAGER"
	RoleWorker  UserRole = "WORKER"
)

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleWorker
}

// CanBypassTransitions reports whether the role may override the transition graph.
func (r UserRole) CanBypassTransitions() bool {
	return r == RoleAdmin || r == RoleManager
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor identifies who performs a mutation.
type Actor struct {
	UserID string
	Name   string
	Role   UserRole
}

// ActorFromClaims converts token claims into an Actor.
func ActorFromClaims(c *JWTClaims) Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{UserID: c.UserID, Name: c.Name, Role: c.Role}
}
