package tunnelflight

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"tunnelflight/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

// fakePortal is a scriptable stand-in for the portal, routes are keyed by
// "METHOD /path" and every request is counted.
type fakePortal struct {
	server *httptest.Server

	mutex  sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]int
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{
		routes: make(map[string]http.HandlerFunc),
		hits:   make(map[string]int),
	}
	p.handle("GET /", textResponse(http.StatusOK, "<html><body>tunnelflight</body></html>"))
	p.handle("GET /logout", textResponse(http.StatusOK, "<html><body>bye</body></html>"))
	p.handle("POST /login", jsonResponse(http.StatusOK, `{"message":"Login successful"}`))

	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	p.mutex.Lock()
	p.hits[key]++
	handler, ok := p.routes[key]
	p.mutex.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

func (p *fakePortal) handle(key string, handler http.HandlerFunc) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.routes[key] = handler
}

func (p *fakePortal) count(key string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.hits[key]
}

func jsonResponse(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func textResponse(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func decodeBody(r *http.Request, out any) {
	json.NewDecoder(r.Body).Decode(out)
}

// withETag answers 304 when the client already has etag.
func withETag(etag string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		next(w, r)
	}
}

// sequence serves the nth request with the nth handler, the last handler
// serves every request after that.
func sequence(handlers ...http.HandlerFunc) http.HandlerFunc {
	var mutex sync.Mutex
	var n int
	return func(w http.ResponseWriter, r *http.Request) {
		mutex.Lock()
		i := n
		n++
		mutex.Unlock()
		if i >= len(handlers) {
			i = len(handlers) - 1
		}
		handlers[i](w, r)
	}
}

type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *fakeClock) Location() *time.Location {
	return time.UTC
}

func (c *fakeClock) advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

type testClient struct {
	*Client
	portal *fakePortal
	tel    *telemetry.Recorder
	clock  *fakeClock
}

func newTestClient(t *testing.T, portal *fakePortal, configure ...func(*ClientOptions)) testClient {
	tel := telemetry.NewRecorder()
	clock := newFakeClock()
	opts := ClientOptions{
		BaseUrl:           portal.server.URL,
		Credentials:       NewCredentials("alice", "hunter2"),
		SettleDelay:       time.Millisecond,
		RequestsPerSecond: -1,
		Timeout:           5 * time.Second,
		Clock:             clock,
		Telemetry:         tel,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	client, err := NewClient(opts)
	require.NoError(t, err)
	return testClient{Client: client, portal: portal, tel: tel, clock: clock}
}

func tokenMode(opts *ClientOptions) {
	opts.AuthMode = AuthToken
}
