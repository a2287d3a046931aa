package sec

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"

	"connectrpc.com/authn"

	"github.com/stolasapp/permits/internal/config"
)

// Principal identifies an authenticated caller.
type Principal struct {
	Username string
}

// Gate checks basic auth credentials against the single configured API
// account. Credentials are compared in constant time, and the username and
// password comparisons are both evaluated on every attempt.
type Gate struct {
	username [sha256.Size]byte
	password [sha256.Size]byte
	// hash, if set, is a bcrypt hash checked instead of password.
	hash []byte
}

// NewGate creates a gate for the configured account. A bcrypt hash takes
// precedence over a plain-text password.
func NewGate(cfg config.API) (*Gate, error) {
	if cfg.Username == "" {
		return nil, errors.New("api username is required")
	}
	gate := &Gate{username: sha256.Sum256([]byte(cfg.Username))}
	switch {
	case cfg.PasswordHash != "":
		hash, err := ParsePasswordHash(cfg.PasswordHash)
		if err != nil {
			return nil, err
		}
		gate.hash = hash
	case cfg.Password != "":
		gate.password = sha256.Sum256([]byte(cfg.Password))
	default:
		return nil, errors.New("api password or password hash is required")
	}
	return gate, nil
}

// Check reports whether username and password match the configured account.
// Both inputs are reduced to fixed-length digests before comparison so
// neither their contents nor their lengths affect timing.
func (g *Gate) Check(username, password string) bool {
	user := sha256.Sum256([]byte(username))
	userOK := subtle.ConstantTimeCompare(user[:], g.username[:])

	var passOK int
	if g.hash != nil {
		if ComparePassword(password, g.hash) == nil {
			passOK = 1
		}
	} else {
		pass := sha256.Sum256([]byte(password))
		passOK = subtle.ConstantTimeCompare(pass[:], g.password[:])
	}
	return userOK&passOK == 1
}

// Authenticate resolves the caller from req. If the credentials are missing,
// malformed or wrong, a ConnectRPC unauthenticated error is returned.
func (g *Gate) Authenticate(_ context.Context, req *http.Request) (Principal, error) {
	username, password, ok := req.BasicAuth()
	if !ok {
		return Principal{}, authn.Errorf("invalid authorization header")
	}
	if !g.Check(username, password) {
		return Principal{}, authn.Errorf("invalid username or password")
	}
	return Principal{Username: username}, nil
}

// GetPrincipal returns the authenticated caller. Returns a zero-value
// Principal if the context has no authenticated caller.
func GetPrincipal(ctx context.Context) Principal {
	if p, ok := authn.GetInfo(ctx).(Principal); ok {
		return p
	}
	return Principal{}
}

// SetPrincipal attaches the authenticated caller to ctx.
func SetPrincipal(ctx context.Context, p Principal) context.Context {
	return authn.SetInfo(ctx, p)
}
