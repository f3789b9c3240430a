// Package tunnelflight is a client for the IBA tunnelflight member portal.
// The portal has no documented API, everything here mirrors what its own
// web frontend does: cookie or bearer sessions, AJAX json endpoints and a
// json blob embedded in the dashboard html.
package tunnelflight

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"tunnelflight/internal/components/assert"
	"tunnelflight/internal/components/chrono"
	"tunnelflight/internal/components/telemetry"
	"tunnelflight/pkg/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("scrapers/tunnelflight")

const DefaultBaseUrl = "https://www.tunnelflight.com"

const (
	endpointLanding      = "/"
	endpointLogin        = "/login"
	endpointLogout       = "/logout"
	endpointFlyerCard    = "/user/module-type/flyer-card/"
	endpointFlyerCharts  = "/user/module-type/flyer-charts/"
	endpointDashboard    = "/account/dashboard"
	endpointSkillsLevels = "/account/dashboard/flyer-skills-levels/%d"
	endpointLogbook      = "/account/logbook/member/skills/open-suspended/%d"
	endpointTunnels      = "/account/logbook/tunnels/"
	endpointLogTime      = "/account/logbook/member/time/"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

const (
	defaultTimeout           = 30 * time.Second
	defaultRequestsPerSecond = 2
	defaultSettleDelay       = 2 * time.Second
)

type ClientOptions struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl     string
	Credentials Credentials
	// AuthMode defaults to AuthCookie.
	AuthMode AuthMode

	// Transport replaces the default http transport, this is where a host
	// environment plugs in its own http stack.
	Transport        http.RoundTripper
	CloudflareBypass bool
	Timeout          time.Duration
	// RequestsPerSecond limits outbound requests, a negative value disables
	// the limit and zero means the default of 2.
	RequestsPerSecond float64
	// SettleDelay is how long to wait after clearing a stale session before
	// logging in again, zero means the default of 2 seconds.
	SettleDelay time.Duration
	// TunnelCacheTTL expires the tunnel list, zero keeps it until RefreshTunnels.
	TunnelCacheTTL time.Duration
	Breaker        BreakerOptions
	// HttpDump receives every http exchange with credentials redacted.
	HttpDump restyutil.Output

	Clock     chrono.API
	Telemetry telemetry.API
}

// Client is one logged in account on the portal. It is safe for concurrent use.
type Client struct {
	creds    Credentials
	baseUrl  *url.URL
	http     *resty.Client
	session  *Session
	fetcher  *fetcher
	tunnels  *tunnelCache
	clock    chrono.API
	tel      telemetry.API
	validate *validator.Validate
}

func NewClient(opts ClientOptions) (*Client, error) {
	assert.NotEmptyStr(opts.Credentials.username)

	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.NewSlogAPI(nil)
	}
	tel = telemetry.NewScopedAPI("tunnelflight", tel)

	clock := opts.Clock
	if clock == nil {
		clock = chrono.StandardImpl{}
	}

	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	baseUrl = strings.TrimSuffix(baseUrl, "/")
	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}

	strategy, err := newAuthStrategy(opts.AuthMode)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(baseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.Transport != nil {
		httpClient.SetTransport(opts.Transport)
	}
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient.SetTimeout(timeout)
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))

	limit := rate.Limit(opts.RequestsPerSecond)
	switch {
	case opts.RequestsPerSecond == 0:
		limit = defaultRequestsPerSecond
	case opts.RequestsPerSecond < 0:
		limit = rate.Inf
	}
	// max burst >= 2 just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(limit, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	if opts.HttpDump != nil {
		restyutil.Dump(httpClient, opts.HttpDump)
	}

	settle := opts.SettleDelay
	if settle <= 0 {
		settle = defaultSettleDelay
	}

	h := newHeaders(baseUrl)
	session := newSession(sessionOptions{
		http:        httpClient,
		creds:       opts.Credentials,
		strategy:    strategy,
		headers:     h,
		clock:       clock,
		tel:         tel,
		settleDelay: settle,
	})

	c := &Client{
		creds:    opts.Credentials,
		baseUrl:  parsedBaseUrl,
		http:     httpClient,
		session:  session,
		fetcher:  newFetcher(httpClient, session, h, newBreaker(opts.Breaker, tel), tel),
		tunnels:  newTunnelCache(opts.TunnelCacheTTL),
		clock:    clock,
		tel:      tel,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	tel.ReportDebug("created client", opts.Credentials)
	return c, nil
}

// Username is the lowercase username this client logs in as.
func (c *Client) Username() string {
	return c.creds.Username()
}

// Login authenticates with the portal, concurrent calls share a single attempt.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	err := c.session.Login(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
	}
	return err
}

func (c *Client) IsAuthenticated() bool {
	return c.session.IsAuthenticated()
}

func (c *Client) State() SessionState {
	return c.session.State()
}

// Close drops the session state and cached data, the client may still be
// used afterwards, it will simply log in again.
func (c *Client) Close() {
	c.session.Invalidate()
	c.fetcher.etags.clear()
	c.tunnels.purge()
}

type headers struct {
	browser map[string]string
	ajax    map[string]string
}

func newHeaders(baseUrl string) headers {
	return headers{
		browser: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
			"Accept-Language":           "en-US,en;q=0.9",
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Site":            "same-origin",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-User":            "?1",
			"Sec-Fetch-Dest":            "document",
			"Cache-Control":             "no-cache",
			"Pragma":                    "no-cache",
		},
		ajax: map[string]string{
			"Accept":           "application/json, text/javascript, */*; q=0.01",
			"Accept-Language":  "en-US,en;q=0.9",
			"Content-Type":     "application/json",
			"X-Requested-With": "XMLHttpRequest",
			"Origin":           baseUrl,
			"Referer":          baseUrl + "/",
			"Sec-Fetch-Site":   "same-origin",
			"Sec-Fetch-Mode":   "cors",
			"Sec-Fetch-Dest":   "empty",
		},
	}
}
