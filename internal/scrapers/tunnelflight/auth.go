package tunnelflight

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMode selects how a session proves itself to the portal. Only one mode
// is used per client.
type AuthMode string

const (
	// AuthCookie relies on the session cookie kept in the client's cookie jar.
	AuthCookie AuthMode = "cookie"
	// AuthToken sends the token returned by login as a bearer token.
	AuthToken AuthMode = "token"
)

const (
	tokenLifetime      = 24 * time.Hour
	tokenRefreshMargin = 5 * time.Minute
)

// loginAck is what a successful login response told us.
type loginAck struct {
	Token   string
	Message string
}

// authStrategy is the flavor specific half of a session. Implementations are
// not synchronized, Session guards every call.
type authStrategy interface {
	authenticated(now time.Time) bool
	establish(ack loginAck, now time.Time) error
	invalidate()
	apply(req *resty.Request)
}

func newAuthStrategy(mode AuthMode) (authStrategy, error) {
	switch mode {
	case AuthCookie, "":
		return &cookieStrategy{}, nil
	case AuthToken:
		return &tokenStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

type cookieStrategy struct {
	loggedIn bool
}

func (s *cookieStrategy) authenticated(time.Time) bool {
	return s.loggedIn
}

func (s *cookieStrategy) establish(loginAck, time.Time) error {
	s.loggedIn = true
	return nil
}

func (s *cookieStrategy) invalidate() {
	s.loggedIn = false
}

// the cookie jar attaches the session by itself
func (s *cookieStrategy) apply(*resty.Request) {}

type tokenStrategy struct {
	token  string
	expiry time.Time
}

func (s *tokenStrategy) authenticated(now time.Time) bool {
	return s.token != "" && now.Add(tokenRefreshMargin).Before(s.expiry)
}

func (s *tokenStrategy) establish(ack loginAck, now time.Time) error {
	if ack.Token == "" {
		return fmt.Errorf("login response carried no token")
	}
	s.token = ack.Token
	s.expiry = tokenExpiry(ack.Token, now)
	return nil
}

func (s *tokenStrategy) invalidate() {
	s.token = ""
	s.expiry = time.Time{}
}

func (s *tokenStrategy) apply(req *resty.Request) {
	if s.token != "" {
		req.SetAuthToken(s.token)
	}
}

// tokenExpiry uses the exp claim when the token happens to be a JWT, the
// signature is not checked since only the portal can verify it.
func tokenExpiry(token string, now time.Time) time.Time {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return now.Add(tokenLifetime)
}
