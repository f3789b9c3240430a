package tunnelflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
	"tunnelflight/internal/components/chrono"
	"tunnelflight/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

const (
	report_session_login      = "session.login"
	report_session_clear      = "session.clear"
	report_session_invalidate = "session.invalidate"
)

type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

type sessionOptions struct {
	http        *resty.Client
	creds       Credentials
	strategy    authStrategy
	headers     headers
	clock       chrono.API
	tel         telemetry.API
	settleDelay time.Duration
}

// Session owns the credentials of one account and the authentication state
// derived from them. Logins are coalesced, at most one login request is in
// flight per session at any time.
type Session struct {
	http        *resty.Client
	creds       Credentials
	headers     headers
	clock       chrono.API
	tel         telemetry.API
	settleDelay time.Duration

	group singleflight.Group

	mutex          sync.RWMutex
	strategy       authStrategy
	authenticating bool
}

func newSession(opts sessionOptions) *Session {
	return &Session{
		http:        opts.http,
		creds:       opts.creds,
		headers:     opts.headers,
		clock:       opts.clock,
		tel:         opts.tel,
		settleDelay: opts.settleDelay,
		strategy:    opts.strategy,
	}
}

func (s *Session) IsAuthenticated() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.strategy.authenticated(s.clock.Now())
}

func (s *Session) State() SessionState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.authenticating {
		return StateAuthenticating
	}
	if s.strategy.authenticated(s.clock.Now()) {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// Invalidate forgets the current session, the next request logs in again.
func (s *Session) Invalidate() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.strategy.invalidate()
}

// apply attaches whatever the active auth flavor needs to req.
func (s *Session) apply(req *resty.Request) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	s.strategy.apply(req)
}

// ensure logs in unless the session is already authenticated.
func (s *Session) ensure(ctx context.Context) error {
	if s.IsAuthenticated() {
		return nil
	}
	return s.await(ctx, true)
}

// Login authenticates against the portal. Callers that arrive while a login
// is in flight wait for that login instead of starting another one.
//
// The login itself is detached from ctx so that a caller giving up cannot
// leave the session half established, ctx only bounds how long the caller
// waits for the outcome.
func (s *Session) Login(ctx context.Context) error {
	return s.await(ctx, false)
}

// await joins or starts the shared login. With ifNeeded the login is skipped
// when another one finished between the caller's check and this call.
func (s *Session) await(ctx context.Context, ifNeeded bool) error {
	result := s.group.DoChan("login", func() (any, error) {
		return nil, s.loginOnce(context.WithoutCancel(ctx), ifNeeded)
	})
	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setAuthenticating(value bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.authenticating = value
}

func (s *Session) loginOnce(ctx context.Context, ifNeeded bool) error {
	if ifNeeded && s.IsAuthenticated() {
		return nil
	}
	return s.login(ctx)
}

func (s *Session) login(ctx context.Context) error {
	s.setAuthenticating(true)
	defer s.setAuthenticating(false)

	s.tel.ReportDebug("logging in", s.creds)

	ack, err := s.attempt(ctx)
	var conflict ConflictError
	if errors.As(err, &conflict) {
		s.tel.ReportWarning(report_session_login, "conflict, clearing stale session", s.creds.Username())
		s.clear(ctx)
		ack, err = s.attempt(ctx)
		if errors.As(err, &conflict) {
			err = &AuthError{Reason: "conflict persisted after clearing session", Err: err}
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err != nil {
		s.strategy.invalidate()
		s.tel.ReportWarning(report_session_login, err, s.creds.Username())
		return err
	}
	err = s.strategy.establish(ack, s.clock.Now())
	if err != nil {
		s.strategy.invalidate()
		err = &AuthError{Reason: "login response rejected", Err: err}
		s.tel.ReportWarning(report_session_login, err, s.creds.Username())
		return err
	}
	s.tel.ReportDebug("logged in", s.creds.Username())
	return nil
}

type loginResponse struct {
	Token   flexString `json:"token"`
	Message flexString `json:"message"`
}

// attempt performs a single login request, a 409 is returned as ConflictError.
func (s *Session) attempt(ctx context.Context) (loginAck, error) {
	_, err := s.http.R().
		SetContext(ctx).
		SetHeaders(s.headers.browser).
		Get(endpointLanding)
	if err != nil {
		return loginAck{}, &AuthError{Reason: "fetch landing page", Err: err}
	}

	res, err := s.http.R().
		SetContext(ctx).
		SetHeaders(s.headers.ajax).
		SetBody(s.creds.loginRequest()).
		Post(endpointLogin)
	if err != nil {
		return loginAck{}, &AuthError{Reason: "send login request", Err: err}
	}

	switch res.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	case http.StatusConflict:
		return loginAck{}, ConflictError{}
	default:
		return loginAck{}, &AuthError{Reason: fmt.Sprintf("unexpected status %d", res.StatusCode())}
	}

	var body loginResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		if containsSuccess(res.Body()) {
			s.tel.ReportDebug("login accepted through text fallback")
			return loginAck{Message: "success"}, nil
		}
		return loginAck{}, &AuthError{Reason: "unreadable login response", Err: err}
	}

	switch {
	case body.Token != "":
		return loginAck{Token: string(body.Token), Message: string(body.Message)}, nil
	case containsSuccess([]byte(body.Message)):
		return loginAck{Message: string(body.Message)}, nil
	}
	message := string(body.Message)
	if message == "" {
		message = "login rejected"
	}
	return loginAck{}, &AuthError{Reason: message}
}

// clear logs out and reloads the landing page so the portal drops a stale
// session, then waits for the portal to settle. Failures are only reported,
// the retried login decides the outcome.
func (s *Session) clear(ctx context.Context) {
	for _, endpoint := range []string{endpointLogout, endpointLanding} {
		_, err := s.http.R().
			SetContext(ctx).
			SetHeaders(s.headers.browser).
			Get(endpoint)
		if err != nil {
			s.tel.ReportWarning(report_session_clear, err, endpoint)
		}
	}

	s.mutex.Lock()
	s.strategy.invalidate()
	s.mutex.Unlock()

	timer := time.NewTimer(s.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
