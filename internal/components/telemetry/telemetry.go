package telemetry

import (
	"fmt"
)

// API is what the client, coordinator and CLI report through. Tests swap in
// a Recorder to assert on what was reported.
//
// Ids name a component and method, `<type>.<method>` in lowercase with dashes
// inside a method name (`session.login`, `coordinator.refresh-stale`). They
// locate the failure, the endpoint or account goes into params.
type API interface {
	// ReportBroken reports something that needs fixing, a portal response
	// that no longer decodes for example.
	ReportBroken(id string, params ...any)
	// ReportWarning reports an expected failure, a rejected login or a
	// refresh that left a stale profile.
	ReportWarning(id string, params ...any)
	ReportDebug(msg string, params ...any)
	// ReportCount reports a point in time count, counts are not summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, `ns: id`.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scope(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scope(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scope(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scope(id), count)
}

func (s ScopedAPI) scope(id string) string {
	return fmt.Sprintf("%s: %s", s.namespace, id)
}
