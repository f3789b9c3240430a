package tunnelflight

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const report_flighttime_submit = "flighttime.submit"

// FlightLog is a flight time entry to add to the member's logbook.
type FlightLog struct {
	TunnelID int    `validate:"gte=1"`
	Minutes  int    `validate:"gte=1,lte=120"`
	Comment  string `validate:"max=1000"`
	// EntryDate defaults to now.
	EntryDate time.Time
}

type FlightLogResult struct {
	Success    bool
	Message    string
	TunnelName string
	EntryDate  int64
}

type flightTimePayload struct {
	EntryId    string `json:"entry_id"`
	Status     string `json:"status"`
	EntryDate  int64  `json:"entry_date"`
	Tunnel     string `json:"tunnel"`
	TunnelName string `json:"tunnel_name"`
	Comment    string `json:"comment"`
	Time       string `json:"time"`
}

type flightTimeAck struct {
	Message flexString `json:"message"`
	Success *flexBool  `json:"success"`
}

// LogFlightTime adds flight time to the logbook. A tunnel whose name cannot
// be resolved is still submitted under a placeholder name.
func (c *Client) LogFlightTime(ctx context.Context, entry FlightLog) (FlightLogResult, error) {
	ctx, span := tracer.Start(ctx, "client:LogFlightTime")
	defer span.End()
	span.SetAttributes(
		attribute.Int("tunnel_id", entry.TunnelID),
		attribute.Int("minutes", entry.Minutes),
	)

	result, err := c.logFlightTime(ctx, entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "log flight time")
		c.tel.ReportWarning(report_flighttime_submit, err)
	}
	return result, err
}

func (c *Client) logFlightTime(ctx context.Context, entry FlightLog) (FlightLogResult, error) {
	err := c.validate.Struct(entry)
	if err != nil {
		return FlightLogResult{}, fmt.Errorf("invalid flight log: %w", err)
	}

	entryDate := entry.EntryDate
	if entryDate.IsZero() {
		entryDate = c.clock.Now()
	}

	result := FlightLogResult{
		TunnelName: c.TunnelName(ctx, entry.TunnelID),
		EntryDate:  entryDate.Unix(),
	}

	body, err := c.fetcher.postJSON(ctx, endpointLogTime, flightTimePayload{
		EntryId:    "",
		Status:     "open",
		EntryDate:  result.EntryDate,
		Tunnel:     strconv.Itoa(entry.TunnelID),
		TunnelName: result.TunnelName,
		Comment:    entry.Comment,
		Time:       strconv.Itoa(entry.Minutes),
	})
	if err != nil {
		return result, err
	}

	var ack flightTimeAck
	// a body that is json but not an object carries no acknowledgement
	_ = json.Unmarshal(body, &ack)
	result.Message = string(ack.Message)

	accepted := result.Message == "Ok" ||
		strings.Contains(strings.ToLower(result.Message), "success") ||
		(ack.Success != nil && bool(*ack.Success))
	if !accepted {
		return result, &SubmissionError{Message: result.Message}
	}

	result.Success = true
	c.tel.ReportDebug("logged flight time", entry.Minutes, result.TunnelName)
	return result, nil
}
