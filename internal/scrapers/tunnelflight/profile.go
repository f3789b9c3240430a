package tunnelflight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"tunnelflight/pkg/htmlutil"
	"tunnelflight/pkg/textutil"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_profile_supplement = "profile.supplement"
	report_profile_derive     = "profile.derive"
	report_profile_identity   = "profile.identity"
)

const dashboardSelector = `script#userInfoObj[type="application/json"]`

// identityPrefixLength is how many leading characters two normalized names
// need to share to be considered the same person.
const identityPrefixLength = 3

// Profile is the canonical view of one member, built from every profile
// endpoint the portal has. A Profile is never modified after it is built.
type Profile struct {
	MemberID   int64  `json:"member_id"`
	ScreenName string `json:"screen_name"`
	RealName   string `json:"real_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role_name,omitempty"`
	HomeTunnel string `json:"tunnel_name,omitempty"`
	Country    string `json:"country,omitempty"`

	CurrencyFlyer       int64          `json:"currency_flyer"`
	CurrencyInstructor  int64          `json:"currency_instructor"`
	CurrencyCoach       int64          `json:"currency_coach"`
	FlyerCurrencyStatus CurrencyStatus `json:"flyer_currency_status"`

	PaymentStatus       string `json:"payment_status,omitempty"`
	PaymentExpiryDate   string `json:"payment_expiry_date,omitempty"`
	CurrencyRenewalDate string `json:"currency_renewal_date,omitempty"`

	TotalFlightTime        string `json:"total_flight_time,omitempty"`
	TotalFlightTimeHours   *int   `json:"total_flight_time_hours,omitempty"`
	TotalFlightTimeMinutes *int   `json:"total_flight_time_minutes,omitempty"`
	LastFlight             *int64 `json:"last_flight,omitempty"`
	JoinDate               *int64 `json:"join_date,omitempty"`

	Skills           Skills                    `json:"skills"`
	LogbookEntries   []LogbookEntry            `json:"logbook_entries,omitempty"`
	SkillsByCategory map[string][]LogbookEntry `json:"skills_by_category,omitempty"`

	// Raw is the merged record of the profile endpoints as the portal sent it.
	Raw map[string]any `json:"raw"`
}

// UserProfile fetches and merges every profile endpoint. Only the flyer card
// is required, the other endpoints fill in what they can.
func (c *Client) UserProfile(ctx context.Context) (Profile, error) {
	ctx, span := tracer.Start(ctx, "client:UserProfile")
	defer span.End()

	profile, err := c.userProfile(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build profile")
		return Profile{}, err
	}
	span.SetAttributes(attribute.Int64("member_id", profile.MemberID))
	return profile, nil
}

func (c *Client) userProfile(ctx context.Context) (Profile, error) {
	card, err := c.fetcher.getJSON(ctx, endpointFlyerCard)
	if err != nil {
		return Profile{}, fmt.Errorf("flyer card: %w", err)
	}
	record, err := decodeRecord(card)
	if err != nil {
		return Profile{}, &ParseError{Endpoint: endpointFlyerCard, Err: err}
	}
	base, err := record.profile()
	if err != nil {
		return Profile{}, &ParseError{Endpoint: endpointFlyerCard, Err: err}
	}
	memberId := intOf(base.MemberId)
	if memberId <= 0 {
		return Profile{}, &ParseError{
			Endpoint: endpointFlyerCard,
			Err:      errors.New("response has no member_id"),
		}
	}

	charts, err := c.fetchRecord(ctx, endpointFlyerCharts)
	if err != nil {
		c.tel.ReportWarning(report_profile_supplement, endpointFlyerCharts, err)
	} else {
		record.fillMissing(charts)
	}

	dashboard, err := c.fetchDashboardRecord(ctx)
	if err != nil {
		c.tel.ReportWarning(report_profile_supplement, endpointDashboard, err)
	} else {
		record.fillMissing(dashboard)
	}

	raw, err := record.profile()
	if err != nil {
		return Profile{}, &ParseError{Endpoint: endpointFlyerCard, Err: err}
	}

	profile := c.deriveProfile(raw, record)
	profile.MemberID = memberId

	profile.Skills = defaultSkills()
	skillsEndpoint := fmt.Sprintf(endpointSkillsLevels, memberId)
	skillsBody, err := c.fetcher.getJSON(ctx, skillsEndpoint)
	if err == nil {
		profile.Skills, err = parseSkills(skillsBody)
		if err != nil {
			profile.Skills = defaultSkills()
			err = &ParseError{Endpoint: skillsEndpoint, Err: err}
		}
	}
	if err != nil {
		c.tel.ReportWarning(report_profile_supplement, skillsEndpoint, err)
	}

	logbookEndpoint := fmt.Sprintf(endpointLogbook, memberId)
	logbookBody, err := c.fetcher.getJSON(ctx, logbookEndpoint)
	if err == nil {
		var entries []LogbookEntry
		entries, err = parseLogbook(logbookBody)
		if err == nil && len(entries) > 0 {
			profile.LogbookEntries = entries
			profile.SkillsByCategory = groupByCategory(entries)
		}
	}
	if err != nil {
		c.tel.ReportWarning(report_profile_supplement, logbookEndpoint, err)
	}

	c.checkIdentity(profile)
	return profile, nil
}

func (c *Client) fetchRecord(ctx context.Context, endpoint string) (rawRecord, error) {
	body, err := c.fetcher.getJSON(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	record, err := decodeRecord(body)
	if err != nil {
		return nil, &ParseError{Endpoint: endpoint, Err: err}
	}
	return record, nil
}

// fetchDashboardRecord reads the user info json the dashboard page embeds
// for its own scripts.
func (c *Client) fetchDashboardRecord(ctx context.Context) (rawRecord, error) {
	page, err := c.fetcher.getPage(ctx, endpointDashboard)
	if err != nil {
		return nil, err
	}
	text, err := htmlutil.ScriptText(page, dashboardSelector)
	if err != nil {
		return nil, &ParseError{Endpoint: endpointDashboard, Err: err}
	}
	record, err := decodeRecord([]byte(text))
	if err != nil {
		return nil, &ParseError{Endpoint: endpointDashboard, Err: err}
	}
	return record, nil
}

// deriveProfile computes the typed fields, a field that cannot be derived is
// left out and reported.
func (c *Client) deriveProfile(raw rawProfile, record rawRecord) Profile {
	loc := c.clock.Location()

	profile := Profile{
		ScreenName:         strOf(raw.ScreenName),
		RealName:           firstNonEmpty(strOf(raw.RealName), strOf(raw.UserRealName)),
		Email:              strOf(raw.Email),
		Role:               strOf(raw.RoleName),
		HomeTunnel:         strOf(raw.TunnelName),
		Country:            firstNonEmpty(strOf(raw.TunnelCountry), strOf(raw.Country)),
		CurrencyFlyer:      intOf(raw.CurrencyFlyer),
		CurrencyInstructor: intOf(raw.CurrencyInstructor),
		CurrencyCoach:      intOf(raw.CurrencyCoach),
		TotalFlightTime:    strOf(raw.TotalFlightTime),
		Raw:                record,
	}
	profile.FlyerCurrencyStatus = currencyStatus(raw.CurrencyFlyer)

	if raw.PaymentData != nil {
		profile.PaymentStatus = strings.ToLower(strOf(raw.PaymentData.PaymentStatus))
		if raw.PaymentData.NextDate != nil {
			date, err := formatEpochDate(intOf(raw.PaymentData.NextDate), loc)
			if err != nil {
				c.tel.ReportWarning(report_profile_derive, "payment_expiry_date", err)
			}
			profile.PaymentExpiryDate = date
		}
	}

	if raw.CurrencyRenewalDateFlyer != nil {
		date, err := formatEpochDate(intOf(raw.CurrencyRenewalDateFlyer), loc)
		if err != nil {
			c.tel.ReportWarning(report_profile_derive, "currency_renewal_date", err)
		}
		profile.CurrencyRenewalDate = date
	}

	if profile.TotalFlightTime != "" {
		hours, minutes, err := splitFlightTime(profile.TotalFlightTime)
		if err != nil {
			c.tel.ReportWarning(report_profile_derive, "total_flight_time", err)
		} else {
			profile.TotalFlightTimeHours = &hours
			profile.TotalFlightTimeMinutes = &minutes
		}
	}

	if len(raw.LastFlight) > 0 && string(raw.LastFlight) != "null" {
		epoch, err := parseLastFlight(raw.LastFlight, loc)
		if err != nil {
			c.tel.ReportWarning(report_profile_derive, "last_flight", err)
		} else {
			profile.LastFlight = &epoch
		}
	}

	if joined := intOf(raw.JoinDate); joined > 0 {
		profile.JoinDate = &joined
	}

	return profile
}

// checkIdentity warns when the profile does not look like it belongs to the
// configured account. The portal's name fields are too unreliable to reject
// the profile over it.
func (c *Client) checkIdentity(profile Profile) {
	fetched := firstNonEmpty(profile.ScreenName, profile.RealName)
	if fetched == "" {
		return
	}
	if !textutil.LoosePrefixMatch(
		textutil.NormalizeName(fetched),
		textutil.NormalizeName(c.creds.Username()),
		identityPrefixLength,
	) {
		c.tel.ReportWarning(report_profile_identity, "profile name does not match username", fetched, c.creds.Username())
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
