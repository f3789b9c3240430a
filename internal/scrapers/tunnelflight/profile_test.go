package tunnelflight

import (
	"context"
	"net/http"
	"testing"
	"tunnelflight/internal/components/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const dashboardPage = `<!DOCTYPE html>
<html>
<head><title>Dashboard</title></head>
<body>
<div id="app"></div>
<script id="userInfoObj" type="application/json">
{
	"email": "dashboard@example.com",
	"role_name": "Flyer",
	"tunnel_name": "Milton Keynes iFLY",
	"tunnel_country": "United Kingdom",
	"total_flight_time": "3:34",
	"last_flight": "2024-11-20T14:50:10.000Z",
	"currency_flyer": 1,
	"currency_renewal_date_flyer": 1719705600,
	"join_date": "1609459200",
	"paymentData": {"paymentStatus": "Active", "nextDate": 1735689600}
}
</script>
<script>window.app = {};</script>
</body>
</html>`

func handleProfile(portal *fakePortal) {
	portal.handle("GET /user/module-type/flyer-card/", jsonResponse(http.StatusOK, `{
		"member_id": 123,
		"screen_name": "alice",
		"email": null,
		"currency_instructor": "0"
	}`))
	portal.handle("GET /user/module-type/flyer-charts/", jsonResponse(http.StatusOK, `{
		"screen_name": "somebody else",
		"email": "charts@example.com",
		"currency_coach": 0
	}`))
	portal.handle("GET /account/dashboard", textResponse(http.StatusOK, dashboardPage))
	portal.handle("GET /account/dashboard/flyer-skills-levels/123", jsonResponse(http.StatusOK, `{
		"level1": "Yes",
		"static": "Yes",
		"dynamic": "No",
		"formation": "Level 2",
		"level1Pending": false,
		"staticPending": false,
		"dynamicPending": true,
		"formationPending": false
	}`))
	portal.handle("GET /account/logbook/member/skills/open-suspended/123", jsonResponse(http.StatusOK, `[
		{"id": 1, "cat_name": "Static", "skill_name": "Belly", "status": "Approved", "entry_date": 1700000000, "approval_date": 1700086400, "instructor_name": "Bob"},
		{"id": "2", "cat_name": "Dynamic", "skill_name": "Carving", "status": "Open", "entry_date": 1700001000, "instructor_name": "Bob"},
		{"id": 3, "cat_name": "Static", "skill_name": "Back", "status": "Open", "entry_date": 1700002000, "approval_date": null}
	]`))
}

func TestUserProfileHappyPath(t *testing.T) {
	portal := newFakePortal(t)
	portal.handle("POST /login", jsonResponse(http.StatusOK, `{"token":"abc"}`))
	portal.handle("GET /user/module-type/flyer-card/", jsonResponse(http.StatusOK, `{"member_id": 123, "screen_name":"alice"}`))
	portal.handle("GET /account/dashboard/flyer-skills-levels/123", jsonResponse(http.StatusOK,
		`{"static":"Yes","dynamic":"No","formation":"Level 2","level1":"Yes"}`))
	client := newTestClient(t, portal, tokenMode)

	profile, err := client.UserProfile(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(123), profile.MemberID)
	require.Equal(t, "alice", profile.ScreenName)

	require.Equal(t, 1, profile.Skills.Static.Level)
	require.Equal(t, 1, profile.Skills.Dynamic.Level)
	require.Equal(t, 2, profile.Skills.Formation.Level)
	for _, skill := range profile.Skills.All() {
		require.Equal(t, SkillPassed, skill.Status, skill.Name)
	}

	// the other endpoints 404 in this portal and are simply left out
	require.Nil(t, profile.SkillsByCategory)
	require.Empty(t, profile.PaymentStatus)
	require.Empty(t, client.tel.Find(telemetry.LevelWarning, report_profile_identity))
}

func TestUserProfileMerge(t *testing.T) {
	portal := newFakePortal(t)
	handleProfile(portal)
	client := newTestClient(t, portal)

	profile, err := client.UserProfile(context.Background())
	require.NoError(t, err)

	hours, minutes := 3, 34
	lastFlight := int64(1732114210)
	joined := int64(1609459200)
	approval := int64(1700086400)
	belly := LogbookEntry{ID: 1, Category: "Static", Skill: "Belly", Status: "Approved", EntryDate: 1700000000, ApprovalDate: &approval, Instructor: "Bob"}
	carving := LogbookEntry{ID: 2, Category: "Dynamic", Skill: "Carving", Status: "Open", EntryDate: 1700001000, Instructor: "Bob"}
	back := LogbookEntry{ID: 3, Category: "Static", Skill: "Back", Status: "Open", EntryDate: 1700002000}

	expected := Profile{
		MemberID:   123,
		ScreenName: "alice",
		// flyer card had a null email, so the charts value fills it
		Email:      "charts@example.com",
		Role:       "Flyer",
		HomeTunnel: "Milton Keynes iFLY",
		Country:    "United Kingdom",

		CurrencyFlyer:       1,
		FlyerCurrencyStatus: CurrencyCurrent,

		PaymentStatus:       "active",
		PaymentExpiryDate:   "2025-01-01",
		CurrencyRenewalDate: "2024-06-30",

		TotalFlightTime:        "3:34",
		TotalFlightTimeHours:   &hours,
		TotalFlightTimeMinutes: &minutes,
		LastFlight:             &lastFlight,
		JoinDate:               &joined,

		Skills: Skills{
			Level1:    true,
			Static:    Skill{Name: "static", Raw: "Yes", Level: 1, Status: SkillPassed},
			Dynamic:   Skill{Name: "dynamic", Raw: "No", Pending: true, Level: 1, Status: SkillPending},
			Formation: Skill{Name: "formation", Raw: "Level 2", Level: 2, Status: SkillPassed},
		},
		LogbookEntries: []LogbookEntry{belly, carving, back},
		SkillsByCategory: map[string][]LogbookEntry{
			"Static":  {belly, back},
			"Dynamic": {carving},
		},
	}

	diff := cmp.Diff(expected, profile, cmp.FilterPath(func(p cmp.Path) bool {
		return p.String() == "Raw"
	}, cmp.Ignore()))
	require.Empty(t, diff)

	require.Equal(t, "alice", profile.Raw["screen_name"])
	require.Equal(t, "charts@example.com", profile.Raw["email"])
}

func TestUserProfileIsIdempotent(t *testing.T) {
	portal := newFakePortal(t)
	handleProfile(portal)
	// serve the flyer card with an etag so the second build is answered by a 304
	portal.handle("GET /user/module-type/flyer-card/", withETag(`"v1"`, jsonResponse(http.StatusOK, `{"member_id": 123, "screen_name": "alice"}`)))
	client := newTestClient(t, portal)
	ctx := context.Background()

	first, err := client.UserProfile(ctx)
	require.NoError(t, err)
	second, err := client.UserProfile(ctx)
	require.NoError(t, err)

	require.Empty(t, cmp.Diff(first, second))
	require.Equal(t, 2, portal.count("GET /user/module-type/flyer-card/"))
}

func TestUserProfileRequiresFlyerCard(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name:    "server error",
			handler: jsonResponse(http.StatusInternalServerError, `{}`),
			check: func(t *testing.T, err error) {
				var httpErr *HttpError
				require.ErrorAs(t, err, &httpErr)
			},
		},
		{
			name:    "no member id",
			handler: jsonResponse(http.StatusOK, `{"screen_name": "alice"}`),
			check: func(t *testing.T, err error) {
				var parseErr *ParseError
				require.ErrorAs(t, err, &parseErr)
			},
		},
		{
			name:    "not an object",
			handler: jsonResponse(http.StatusOK, `[1, 2, 3]`),
			check: func(t *testing.T, err error) {
				var parseErr *ParseError
				require.ErrorAs(t, err, &parseErr)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			portal := newFakePortal(t)
			handleProfile(portal)
			portal.handle("GET /user/module-type/flyer-card/", tc.handler)
			client := newTestClient(t, portal)

			_, err := client.UserProfile(context.Background())
			tc.check(t, err)
			require.Equal(t, 0, portal.count("GET /account/dashboard/flyer-skills-levels/123"))
		})
	}
}

func TestUserProfileToleratesSupplementFailures(t *testing.T) {
	portal := newFakePortal(t)
	handleProfile(portal)
	portal.handle("GET /user/module-type/flyer-charts/", textResponse(http.StatusOK, "<p>broken</p>"))
	portal.handle("GET /account/dashboard", textResponse(http.StatusOK, "<html><body>no data</body></html>"))
	portal.handle("GET /account/dashboard/flyer-skills-levels/123", jsonResponse(http.StatusForbidden, `{}`))
	portal.handle("GET /account/logbook/member/skills/open-suspended/123", jsonResponse(http.StatusOK, `{"unexpected": true}`))
	client := newTestClient(t, portal)

	profile, err := client.UserProfile(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(123), profile.MemberID)
	require.Equal(t, defaultSkills(), profile.Skills)
	for _, skill := range profile.Skills.All() {
		require.Equal(t, "No", skill.Raw)
		require.Equal(t, 0, skill.Level)
		require.Equal(t, SkillNotPassed, skill.Status)
	}
	require.Nil(t, profile.SkillsByCategory)
	require.Empty(t, profile.Email)
	require.Len(t, client.tel.Find(telemetry.LevelWarning, report_profile_supplement), 4)
}

func TestUserProfileMalformedDerivedFields(t *testing.T) {
	portal := newFakePortal(t)
	portal.handle("GET /user/module-type/flyer-card/", jsonResponse(http.StatusOK, `{
		"member_id": "123",
		"screen_name": "alice",
		"total_flight_time": "lots",
		"last_flight": "yesterday-ish T",
		"currency_flyer": 7,
		"currency_renewal_date_flyer": -5,
		"paymentData": "none"
	}`))
	client := newTestClient(t, portal)

	profile, err := client.UserProfile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "lots", profile.TotalFlightTime)
	require.Nil(t, profile.TotalFlightTimeHours)
	require.Nil(t, profile.TotalFlightTimeMinutes)
	require.Nil(t, profile.LastFlight)
	require.Empty(t, profile.CurrencyRenewalDate)
	require.Empty(t, profile.PaymentStatus)
	require.Equal(t, CurrencyUnknown, profile.FlyerCurrencyStatus)
	require.Len(t, client.tel.Find(telemetry.LevelWarning, report_profile_derive), 3)
}

func TestUserProfileIdentityCheck(t *testing.T) {
	cases := []struct {
		screenName string
		warns      bool
	}{
		{screenName: "alice", warns: false},
		{screenName: "Alice Smith", warns: false},
		{screenName: "Ali", warns: false},
		{screenName: "Bob Jones", warns: true},
	}

	for _, tc := range cases {
		t.Run(tc.screenName, func(t *testing.T) {
			portal := newFakePortal(t)
			portal.handle("GET /user/module-type/flyer-card/", jsonResponse(http.StatusOK,
				`{"member_id": 123, "screen_name": "`+tc.screenName+`"}`))
			client := newTestClient(t, portal)

			profile, err := client.UserProfile(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.screenName, profile.ScreenName)
			warnings := client.tel.Find(telemetry.LevelWarning, report_profile_identity)
			if tc.warns {
				require.Len(t, warnings, 1)
			} else {
				require.Empty(t, warnings)
			}
		})
	}
}
