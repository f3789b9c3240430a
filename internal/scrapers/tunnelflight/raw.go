package tunnelflight

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The portal encodes the same field as a number on one endpoint and as a
// string on another. The flex types below accept either and never fail, a
// value that cannot be read leaves the zero value behind.

type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	*f = 0
	var value any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if decoder.Decode(&value) != nil {
		return nil
	}
	switch v := value.(type) {
	case json.Number:
		*f = flexInt(numberToInt(string(v)))
	case string:
		*f = flexInt(numberToInt(strings.ReplaceAll(strings.TrimSpace(v), ",", "")))
	case bool:
		if v {
			*f = 1
		}
	}
	return nil
}

func numberToInt(text string) int64 {
	n, err := strconv.ParseInt(text, 10, 64)
	if err == nil {
		return n
	}
	fl, err := strconv.ParseFloat(text, 64)
	if err == nil {
		return int64(fl)
	}
	return 0
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	*f = ""
	var value any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if decoder.Decode(&value) != nil {
		return nil
	}
	switch v := value.(type) {
	case string:
		*f = flexString(v)
	case json.Number:
		*f = flexString(v.String())
	case bool:
		*f = flexString(strconv.FormatBool(v))
	}
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	*f = false
	var value any
	if json.Unmarshal(data, &value) != nil {
		return nil
	}
	switch v := value.(type) {
	case bool:
		*f = flexBool(v)
	case float64:
		*f = v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			*f = true
		}
	}
	return nil
}

// rawPayment is the nested paymentData object.
type rawPayment struct {
	PaymentStatus *flexString `json:"paymentStatus"`
	NextDate      *flexInt    `json:"nextDate"`
}

// UnmarshalJSON drops a paymentData value that is not an object.
func (p *rawPayment) UnmarshalJSON(data []byte) error {
	type plain rawPayment
	var out plain
	if json.Unmarshal(data, &out) == nil {
		*p = rawPayment(out)
	}
	return nil
}

// rawProfile is the merged flyer-card, flyer-charts and dashboard record.
// Every field is optional, absent and null both decode to nil.
type rawProfile struct {
	MemberId      *flexInt    `json:"member_id"`
	ScreenName    *flexString `json:"screen_name"`
	RealName      *flexString `json:"real_name"`
	UserRealName  *flexString `json:"user_real_name"`
	Email         *flexString `json:"email"`
	RoleName      *flexString `json:"role_name"`
	TunnelName    *flexString `json:"tunnel_name"`
	TunnelCountry *flexString `json:"tunnel_country"`
	Country       *flexString `json:"country"`

	CurrencyFlyer      *flexInt `json:"currency_flyer"`
	CurrencyInstructor *flexInt `json:"currency_instructor"`
	CurrencyCoach      *flexInt `json:"currency_coach"`

	CurrencyRenewalDateFlyer *flexInt    `json:"currency_renewal_date_flyer"`
	PaymentData              *rawPayment `json:"paymentData"`

	TotalFlightTime *flexString     `json:"total_flight_time"`
	LastFlight      json.RawMessage `json:"last_flight"`
	JoinDate        *flexInt        `json:"join_date"`
}

type rawRecord map[string]any

// decodeRecord reads a json object keeping numbers exact.
func decodeRecord(data []byte) (rawRecord, error) {
	var record rawRecord
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	err := decoder.Decode(&record)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("expected a json object")
	}
	return record, nil
}

// fillMissing copies every key of from whose key is absent or null in r.
// Existing values are never overwritten.
func (r rawRecord) fillMissing(from rawRecord) {
	for key, value := range from {
		existing, ok := r[key]
		if !ok || existing == nil {
			r[key] = value
		}
	}
}

func (r rawRecord) profile() (rawProfile, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return rawProfile{}, err
	}
	var out rawProfile
	err = json.Unmarshal(data, &out)
	return out, err
}

func strOf(s *flexString) string {
	if s == nil {
		return ""
	}
	return string(*s)
}

func intOf(i *flexInt) int64 {
	if i == nil {
		return 0
	}
	return int64(*i)
}
