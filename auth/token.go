package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidShape is returned when a session token fails the structural
// checks below. The engine never mints or signs tokens itself — it only
// consumes a session token handed to it by the host's auth system — so
// validation here is a shape check, not a signature check.
var ErrInvalidShape = errors.New("invalid token shape")

// ValidateShape checks a session token against the minimum structural
// bar: non-empty, at least 50 characters, exactly two '.' separators,
// and parseable as a JWT (header.payload.signature, each a decodable
// base64 segment). It does not verify a signature.
func ValidateShape(token string) error {
	if token == "" {
		return ErrInvalidShape
	}
	if len(token) < 50 {
		return ErrInvalidShape
	}
	if strings.Count(token, ".") != 2 {
		return ErrInvalidShape
	}

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, jwt.MapClaims{}); err != nil {
		return ErrInvalidShape
	}
	return nil
}
