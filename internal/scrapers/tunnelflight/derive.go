package tunnelflight

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// formatEpochDate renders a unix timestamp as YYYY-MM-DD in loc.
func formatEpochDate(epoch int64, loc *time.Location) (string, error) {
	if epoch <= 0 {
		return "", fmt.Errorf("invalid timestamp %d", epoch)
	}
	t := time.Unix(epoch, 0).In(loc)
	if t.Year() > 9999 {
		return "", fmt.Errorf("timestamp %d out of range", epoch)
	}
	return t.Format(dateLayout), nil
}

// splitFlightTime splits "H:MM" into hours and minutes.
func splitFlightTime(text string) (hours int, minutes int, err error) {
	hourText, minuteText, ok := strings.Cut(strings.TrimSpace(text), ":")
	if !ok {
		return 0, 0, fmt.Errorf("flight time %q is not H:MM", text)
	}
	hours, err = strconv.Atoi(hourText)
	if err != nil || hours < 0 {
		return 0, 0, fmt.Errorf("flight time %q has invalid hours", text)
	}
	minutes, err = strconv.Atoi(minuteText)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, 0, fmt.Errorf("flight time %q has invalid minutes", text)
	}
	return hours, minutes, nil
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// parseLastFlight accepts an ISO-8601 timestamp or a unix epoch, as a
// number or a string, and returns the epoch. An ISO timestamp without a zone
// is read in loc.
func parseLastFlight(raw json.RawMessage, loc *time.Location) (int64, error) {
	var value any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	err := decoder.Decode(&value)
	if err != nil {
		return 0, err
	}

	var text string
	switch v := value.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return 0, fmt.Errorf("last flight has unexpected type %T", value)
	}

	if strings.Contains(text, "T") {
		for _, layout := range isoLayouts {
			t, err := time.ParseInLocation(layout, text, loc)
			if err == nil {
				return t.Unix(), nil
			}
		}
		return 0, fmt.Errorf("last flight %q is not ISO-8601", text)
	}

	epoch := numberToInt(text)
	if epoch <= 0 {
		return 0, fmt.Errorf("last flight %q is not a timestamp", text)
	}
	return epoch, nil
}
