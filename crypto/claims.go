package crypto

import "github.com/golang-jwt/jwt/v5"

type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// ActorID is the stable principal identifier carried into audit events.
func (c *Claims) ActorID() string {
	return c.Subject
}

// ActorName prefers the display name, falling back to email.
func (c *Claims) ActorName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

func (c *Claims) GetRoles() []string {
	if c.Roles == nil {
		return []string{}
	}
	return c.Roles
}
