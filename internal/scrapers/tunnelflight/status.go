package tunnelflight

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// CurrencyStatus says whether a flyer's proficiency is still valid. It has
// nothing to do with money, see PaymentStatus for that.
type CurrencyStatus string

const (
	CurrencyCurrent    CurrencyStatus = "current"
	CurrencyNotCurrent CurrencyStatus = "not_current"
	CurrencyUnknown    CurrencyStatus = "unknown"
)

func currencyStatus(flag *flexInt) CurrencyStatus {
	if flag == nil {
		return CurrencyUnknown
	}
	switch *flag {
	case 1:
		return CurrencyCurrent
	case 0:
		return CurrencyNotCurrent
	}
	return CurrencyUnknown
}

func (p Profile) FlyerCurrent() bool {
	return p.FlyerCurrencyStatus == CurrencyCurrent
}

func (p Profile) PaymentActive() bool {
	return p.PaymentStatus == "active"
}

// CurrencyDaysRemaining is the number of days from now until the flyer
// currency has to be renewed, false if the renewal date is unknown.
func (p Profile) CurrencyDaysRemaining(now time.Time) (int, bool) {
	return daysUntil(p.CurrencyRenewalDate, now)
}

// PaymentDaysRemaining is the number of days from now until the membership
// payment expires, false if the expiry date is unknown.
func (p Profile) PaymentDaysRemaining(now time.Time) (int, bool) {
	return daysUntil(p.PaymentExpiryDate, now)
}

func daysUntil(date string, now time.Time) (int, bool) {
	if date == "" {
		return 0, false
	}
	target, err := time.ParseInLocation(dateLayout, date, now.Location())
	if err != nil {
		return 0, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return int(math.Round(target.Sub(today).Hours() / 24)), true
}

// TotalFlightMinutes is the total flight time in minutes, false if the
// portal's flight time string could not be read.
func (p Profile) TotalFlightMinutes() (int, bool) {
	if p.TotalFlightTimeHours == nil || p.TotalFlightTimeMinutes == nil {
		return 0, false
	}
	return *p.TotalFlightTimeHours*60 + *p.TotalFlightTimeMinutes, true
}

func formatFlightTime(minutes int) string {
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// FlightTimeDisplay renders the total flight time as H:MM.
func (p Profile) FlightTimeDisplay() string {
	minutes, ok := p.TotalFlightMinutes()
	if !ok {
		return p.TotalFlightTime
	}
	return formatFlightTime(minutes)
}

// WithFlightLogged returns a copy of p that accounts for a flight that was
// just logged, so callers can show it before the portal reflects it.
func (p Profile) WithFlightLogged(minutes int, entryDate int64) Profile {
	current, ok := p.TotalFlightMinutes()
	if !ok {
		current = 0
	}
	total := current + minutes
	hours, rest := total/60, total%60

	out := p
	out.TotalFlightTime = formatFlightTime(total)
	out.TotalFlightTimeHours = &hours
	out.TotalFlightTimeMinutes = &rest
	if out.LastFlight == nil || *out.LastFlight < entryDate {
		out.LastFlight = &entryDate
	}
	return out
}

type CategorySummary struct {
	Category string         `json:"category"`
	Count    int            `json:"count"`
	Statuses map[string]int `json:"statuses"`
	Skills   []string       `json:"skills"`
}

// CategorySummaries condenses the logbook into one summary per category,
// sorted by category name.
func (p Profile) CategorySummaries() []CategorySummary {
	out := make([]CategorySummary, 0, len(p.SkillsByCategory))
	for category, entries := range p.SkillsByCategory {
		summary := CategorySummary{
			Category: category,
			Count:    len(entries),
			Statuses: make(map[string]int),
		}
		for _, entry := range entries {
			status := strings.ToLower(entry.Status)
			if status == "" {
				status = "unknown"
			}
			summary.Statuses[status]++
			if entry.Skill != "" {
				summary.Skills = append(summary.Skills, entry.Skill)
			}
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Category < out[j].Category
	})
	return out
}
