package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcdev12/quizarena/go/internal/session"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify a player. Subject carries the stable user id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 tokens issued elsewhere. With no secret it
// runs in development mode and trusts a userId query parameter.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Identify resolves the caller. A request without credentials gets an empty
// identity and joins as a spectator.
func (a *Authenticator) Identify(r *http.Request) (session.Identity, error) {
	if len(a.secret) == 0 {
		q := r.URL.Query()
		return session.Identity{UserID: q.Get("userId"), Name: q.Get("name")}, nil
	}

	tok := tokenFromRequest(r)
	if tok == "" {
		return session.Identity{}, nil
	}
	claims, err := a.parse(tok)
	if err != nil {
		return session.Identity{}, err
	}
	return session.Identity{UserID: claims.Subject, Name: claims.Name}, nil
}

func (a *Authenticator) parse(tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// SignToken issues a token for userID. Used by tests and local tooling.
func (a *Authenticator) SignToken(userID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Browsers cannot set headers on a websocket upgrade, so the token may also
// arrive as a query parameter.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
