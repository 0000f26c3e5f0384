package parse

import (
	"fmt"
	"time"

	"cleaning-schedule-backend/internal/model"
)

// NormalizedEvent is a trip extracted from a source document, independent of
// the document format.
type NormalizedEvent struct {
	VehicleNumber string
	// TripDate is midnight of the trip day in the schedule location.
	TripDate           time.Time
	TripTime           string // HH:mm
	ScheduledDeparture time.Time
	BusinessKey        string

	Class             string
	Company           string
	ServiceNumber     string
	Driver            string
	ClientObservation string
}

// Day returns the operational date key of the event.
func (e NormalizedEvent) Day() string {
	return e.TripDate.Format(model.DayLayout)
}

// Result is the outcome of normalizing one document. Errors are per-record and
// never abort the batch; Warnings flag lines the grammar could not classify.
type Result struct {
	Events   []NormalizedEvent
	Errors   []string
	Warnings []string
}

// Grammar carries the document conventions shared by both normalizers.
type Grammar struct {
	Location      *time.Location
	Carriers      []string
	AlertKeywords []string
}

// BusinessKey builds the cross-version identity of a trip:
// vehicle-ddMMyyyy-HHmm.
func BusinessKey(vehicle string, day, month, year, hour, minute int) string {
	return fmt.Sprintf("%s-%02d%02d%04d-%02d%02d", vehicle, day, month, year, hour, minute)
}

// newEvent validates the date and time parts and builds the event in loc.
func newEvent(loc *time.Location, vehicle string, day, month, year, hour, minute int) (NormalizedEvent, error) {
	if loc == nil {
		loc = time.UTC
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if date.Day() != day || int(date.Month()) != month || date.Year() != year {
		return NormalizedEvent{}, fmt.Errorf("invalid date %02d/%02d/%04d", day, month, year)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return NormalizedEvent{}, fmt.Errorf("invalid time %02d:%02d", hour, minute)
	}

	return NormalizedEvent{
		VehicleNumber:      vehicle,
		TripDate:           date,
		TripTime:           fmt.Sprintf("%02d:%02d", hour, minute),
		ScheduledDeparture: time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc),
		BusinessKey:        BusinessKey(vehicle, day, month, year, hour, minute),
	}, nil
}
