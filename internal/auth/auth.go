package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/teleforge/smppgw/internal/config"
)

// Store holds the credential set the local SMPP server authenticates
// binds against. The set is small and immutable after startup, so a
// linear scan is fine.
type Store struct {
	creds []config.Credential
}

// NewStore builds a credential store from config.
func NewStore(creds []config.Credential) *Store {
	return &Store{creds: creds}
}

// Verify checks a bind's system_id and password against the configured
// set. Configured passwords starting with a bcrypt prefix are treated as
// hashes; anything else is compared constant-time as plaintext.
func (s *Store) Verify(systemID, password string) bool {
	for _, c := range s.creds {
		if c.SystemID != systemID {
			continue
		}
		if isBcryptHash(c.Password) {
			return bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(password)) == nil
		}
		return subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
	}
	return false
}

// HashPassword generates a bcrypt hash suitable for the auth config.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
