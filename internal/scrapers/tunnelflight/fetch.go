package tunnelflight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"tunnelflight/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	report_fetcher_auth   = "fetcher.auth"
	report_fetcher_status = "fetcher.status"
	report_fetcher_parse  = "fetcher.parse"
)

var (
	readMarkers  = []string{"success"}
	writeMarkers = []string{"success", "ok"}
)

// syntheticSuccess stands in for a body that was not json but said it succeeded.
var syntheticSuccess = json.RawMessage(`{"success":true}`)

type request struct {
	method   string
	endpoint string
	body     any
	// page requests use browser headers and return the body untouched,
	// everything else is an AJAX call expected to answer with json.
	page        bool
	conditional bool
	markers     []string
}

// fetcher runs requests against the portal on behalf of a session: it logs
// in when needed, retries once through a re-login on 401/403, serves 304s
// from the etag cache and classifies every other outcome into an error.
type fetcher struct {
	http    *resty.Client
	session *Session
	headers headers
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	etags   *etagCache
	tel     telemetry.API
}

func newFetcher(
	http *resty.Client,
	session *Session,
	headers headers,
	breaker *gobreaker.CircuitBreaker[*resty.Response],
	tel telemetry.API,
) *fetcher {
	return &fetcher{
		http:    http,
		session: session,
		headers: headers,
		breaker: breaker,
		etags:   newEtagCache(),
		tel:     tel,
	}
}

// getJSON fetches a json endpoint, conditionally when an etag is known.
func (f *fetcher) getJSON(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return f.do(ctx, request{
		method:      http.MethodGet,
		endpoint:    endpoint,
		conditional: true,
		markers:     readMarkers,
	})
}

// getPage fetches an html page.
func (f *fetcher) getPage(ctx context.Context, endpoint string) ([]byte, error) {
	return f.do(ctx, request{
		method:      http.MethodGet,
		endpoint:    endpoint,
		page:        true,
		conditional: true,
	})
}

// postJSON submits payload, writes are never conditional.
func (f *fetcher) postJSON(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	return f.do(ctx, request{
		method:   http.MethodPost,
		endpoint: endpoint,
		body:     payload,
		markers:  writeMarkers,
	})
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func (f *fetcher) do(ctx context.Context, req request) ([]byte, error) {
	err := f.session.ensure(ctx)
	if err != nil {
		return nil, err
	}

	res, err := f.execute(ctx, req, req.conditional)
	if err != nil {
		return nil, err
	}
	if isAuthFailure(res.StatusCode()) {
		f.tel.ReportWarning(report_fetcher_auth, req.endpoint, res.StatusCode(), "logging in again")
		f.session.Invalidate()
		err = f.session.Login(ctx)
		if err != nil {
			return nil, err
		}
		res, err = f.execute(ctx, req, req.conditional)
		if err != nil {
			return nil, err
		}
	}

	if res.StatusCode() == http.StatusNotModified {
		entry, ok := f.etags.get(req.endpoint)
		if ok {
			f.tel.ReportDebug("not modified, serving cached body", req.endpoint)
			return entry.body, nil
		}
		// nothing to reuse, ask once more without the condition
		res, err = f.execute(ctx, req, false)
		if err != nil {
			return nil, err
		}
	}

	return f.accept(req, res)
}

// accept turns a final response into a body or an error.
func (f *fetcher) accept(req request, res *resty.Response) ([]byte, error) {
	status := res.StatusCode()
	switch {
	case status == http.StatusOK, status == http.StatusCreated, status == http.StatusAccepted:
	case isAuthFailure(status):
		f.session.Invalidate()
		err := &AuthError{Reason: fmt.Sprintf("%s answered %d after logging in again", req.endpoint, status)}
		f.tel.ReportWarning(report_fetcher_auth, err)
		return nil, err
	default:
		err := &HttpError{Endpoint: req.endpoint, Status: status}
		f.tel.ReportWarning(report_fetcher_status, err)
		return nil, err
	}

	body := res.Body()
	if !req.page {
		var err error
		body, err = decodeJSON(req.endpoint, body, req.markers)
		if err != nil {
			f.tel.ReportWarning(report_fetcher_parse, err)
			return nil, err
		}
	}

	etag := res.Header().Get("ETag")
	if req.conditional && etag != "" {
		f.etags.put(req.endpoint, etag, body)
	}
	return body, nil
}

// execute sends a single request through the circuit breaker.
func (f *fetcher) execute(ctx context.Context, req request, conditional bool) (*resty.Response, error) {
	res, err := f.breaker.Execute(func() (*resty.Response, error) {
		r := f.http.R().SetContext(ctx)
		if req.page {
			r.SetHeaders(f.headers.browser)
		} else {
			r.SetHeaders(f.headers.ajax)
		}
		f.session.apply(r)
		if conditional {
			entry, ok := f.etags.get(req.endpoint)
			if ok {
				r.SetHeader("If-None-Match", entry.etag)
			}
		}
		if req.body != nil {
			r.SetBody(req.body)
		}

		res, err := r.Execute(req.method, req.endpoint)
		if err != nil {
			return res, err
		}
		if res.StatusCode() >= http.StatusInternalServerError {
			return res, serverError{status: res.StatusCode()}
		}
		return res, nil
	})

	var serverErr serverError
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrUnavailable
	case errors.As(err, &serverErr):
		httpErr := &HttpError{Endpoint: req.endpoint, Status: serverErr.status}
		f.tel.ReportWarning(report_fetcher_status, httpErr)
		return nil, httpErr
	}
	return nil, fmt.Errorf("%s: %w", req.endpoint, err)
}

// decodeJSON checks that body is json. A body that is not json but carries
// one of markers is read as a bare success acknowledgement.
func decodeJSON(endpoint string, body []byte, markers []string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := json.Unmarshal(body, &raw)
	if err == nil {
		return raw, nil
	}
	for _, marker := range markers {
		if bytes.Contains(bytes.ToLower(body), []byte(marker)) {
			return syntheticSuccess, nil
		}
	}
	return nil, &ParseError{Endpoint: endpoint, Err: err}
}

func containsSuccess(text []byte) bool {
	return bytes.Contains(bytes.ToLower(text), []byte("success"))
}
