package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential is returned for any credential that does not verify.
var ErrInvalidCredential = errors.New("invalid credential")

// Resolver maps opaque bearer credentials to stable pseudonymous participant
// identifiers. Accounts live in an external service; this is the only view
// of them the messaging core gets.
type Resolver interface {
	// Verify returns the participant ID a credential belongs to.
	Verify(credential string) (string, error)
	// Exists reports whether a participant ID resolves to a known user.
	Exists(participantID string) (bool, error)
}

// DirectoryFunc answers participant-existence probes, typically backed by the
// account service.
type DirectoryFunc func(participantID string) (bool, error)

// JWTResolver verifies HMAC-signed bearer tokens whose subject claim carries
// the participant ID.
type JWTResolver struct {
	secret    []byte
	directory DirectoryFunc
}

// NewJWTResolver builds a resolver for tokens signed with secret. directory
// may be nil, in which case every well-formed participant ID is assumed to
// exist.
func NewJWTResolver(secret []byte, directory DirectoryFunc) *JWTResolver {
	return &JWTResolver{secret: secret, directory: directory}
}

func (r *JWTResolver) Verify(credential string) (string, error) {
	token, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredential
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidCredential
	}
	return sub, nil
}

func (r *JWTResolver) Exists(participantID string) (bool, error) {
	if r.directory == nil {
		return participantID != "", nil
	}
	return r.directory(participantID)
}

// Static resolves from a fixed credential table. Used in tests and local
// setups without an account service.
type Static struct {
	// Tokens maps credential -> participant ID.
	Tokens map[string]string
}

func (s Static) Verify(credential string) (string, error) {
	id, ok := s.Tokens[credential]
	if !ok {
		return "", ErrInvalidCredential
	}
	return id, nil
}

func (s Static) Exists(participantID string) (bool, error) {
	for _, id := range s.Tokens {
		if id == participantID {
			return true, nil
		}
	}
	return false, nil
}
