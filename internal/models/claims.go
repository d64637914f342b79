package models

import "github.com/golang-jwt/jwt/v5"

// StudentClaims is the bearer token payload. The subject is the student ID.
type StudentClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// StudentID returns the token subject.
func (c *StudentClaims) StudentID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
