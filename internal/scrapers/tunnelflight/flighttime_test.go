package tunnelflight

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type capturedPayload struct {
	mutex    sync.Mutex
	payloads []map[string]any
}

func (c *capturedPayload) handler(response http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		decodeBody(r, &payload)
		c.mutex.Lock()
		c.payloads = append(c.payloads, payload)
		c.mutex.Unlock()
		response(w, r)
	}
}

func (c *capturedPayload) all() []map[string]any {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.payloads
}

func TestLogFlightTimeWithFallbackName(t *testing.T) {
	portal := newFakePortal(t)
	captured := &capturedPayload{}
	portal.handle("POST /account/logbook/member/time/", captured.handler(jsonResponse(http.StatusOK, `{"message":"Ok"}`)))
	client := newTestClient(t, portal)

	result, err := client.LogFlightTime(context.Background(), FlightLog{
		TunnelID: 225,
		Minutes:  45,
		Comment:  "good session",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "Ok", result.Message)
	require.Equal(t, "Milton Keynes iFLY", result.TunnelName)

	now := client.clock.Now().Unix()
	require.Equal(t, now, result.EntryDate)
	require.Equal(t, []map[string]any{{
		"entry_id":    "",
		"status":      "open",
		"entry_date":  float64(now),
		"tunnel":      "225",
		"tunnel_name": "Milton Keynes iFLY",
		"comment":     "good session",
		"time":        "45",
	}}, captured.all())
}

func TestLogFlightTimeUsesTunnelList(t *testing.T) {
	portal := newFakePortal(t)
	portal.handle("GET /account/logbook/tunnels/", jsonResponse(http.StatusOK, `[{"entry_id": 225, "title": "iFLY Milton Keynes"}]`))
	captured := &capturedPayload{}
	portal.handle("POST /account/logbook/member/time/", captured.handler(jsonResponse(http.StatusCreated, `{"message":"Entry saved successfully"}`)))
	client := newTestClient(t, portal)

	entryDate := time.Date(2024, time.May, 4, 10, 0, 0, 0, time.UTC)
	result, err := client.LogFlightTime(context.Background(), FlightLog{
		TunnelID:  225,
		Minutes:   120,
		EntryDate: entryDate,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "iFLY Milton Keynes", result.TunnelName)
	require.Equal(t, entryDate.Unix(), result.EntryDate)
	require.Equal(t, "120", captured.all()[0]["time"])
}

func TestLogFlightTimeUnknownTunnel(t *testing.T) {
	portal := newFakePortal(t)
	captured := &capturedPayload{}
	portal.handle("POST /account/logbook/member/time/", captured.handler(jsonResponse(http.StatusOK, `{"success": true}`)))
	client := newTestClient(t, portal)

	result, err := client.LogFlightTime(context.Background(), FlightLog{TunnelID: 9001, Minutes: 2})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "Tunnel ID 9001", captured.all()[0]["tunnel_name"])
}

func TestLogFlightTimeOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		ok      bool
		message string
	}{
		{name: "ok", handler: jsonResponse(http.StatusOK, `{"message":"Ok"}`), ok: true, message: "Ok"},
		{name: "success text", handler: textResponse(http.StatusOK, `Saved OK`), ok: true},
		{name: "rejected", handler: jsonResponse(http.StatusOK, `{"message":"Entry date is in the future"}`), message: "Entry date is in the future"},
		{name: "lowercase ok is not Ok", handler: jsonResponse(http.StatusOK, `{"message":"ok"}`), message: "ok"},
		{name: "no message", handler: jsonResponse(http.StatusOK, `{}`)},
		{name: "not an object", handler: jsonResponse(http.StatusOK, `[]`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			portal := newFakePortal(t)
			portal.handle("POST /account/logbook/member/time/", tc.handler)
			client := newTestClient(t, portal)

			result, err := client.LogFlightTime(context.Background(), FlightLog{TunnelID: 225, Minutes: 30})
			require.Equal(t, tc.message, result.Message)
			if tc.ok {
				require.NoError(t, err)
				require.True(t, result.Success)
				return
			}
			var submissionErr *SubmissionError
			require.ErrorAs(t, err, &submissionErr)
			require.Equal(t, tc.message, submissionErr.Message)
			require.False(t, result.Success)
		})
	}
}

func TestLogFlightTimeHttpFailure(t *testing.T) {
	portal := newFakePortal(t)
	portal.handle("POST /account/logbook/member/time/", jsonResponse(http.StatusBadRequest, `{"message":"bad"}`))
	client := newTestClient(t, portal)

	result, err := client.LogFlightTime(context.Background(), FlightLog{TunnelID: 225, Minutes: 30})
	var httpErr *HttpError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Status)
	require.False(t, result.Success)
}

func TestLogFlightTimeValidation(t *testing.T) {
	portal := newFakePortal(t)
	client := newTestClient(t, portal)

	for _, entry := range []FlightLog{
		{TunnelID: 225, Minutes: 0},
		{TunnelID: 225, Minutes: 121},
		{TunnelID: 0, Minutes: 30},
		{TunnelID: -1, Minutes: 30},
	} {
		_, err := client.LogFlightTime(context.Background(), entry)
		var validationErrs validator.ValidationErrors
		require.ErrorAs(t, err, &validationErrs, "%+v", entry)
	}
	require.Equal(t, 0, portal.count("POST /account/logbook/member/time/"))
	require.Equal(t, 0, portal.count("POST /login"))
}
