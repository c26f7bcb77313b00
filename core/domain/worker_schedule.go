package domain

import (
	"fmt"
	"time"
)

// ScheduleStatus of a booking. The pipeline only ever moves it to cancelled.
type ScheduleStatus string

const (
	ScheduleStatusProposed  ScheduleStatus = "proposed"
	ScheduleStatusConfirmed ScheduleStatus = "confirmed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// Schedule is a booked call. It is the system of record for the booking;
// Lead.Appointments is a denormalized copy.
type Schedule struct {
	ID                         string
	ContactID                  string
	LeadID                     string
	Date                       string
	Time                       string
	Status                     ScheduleStatus
	Purpose                    string
	Channel                    string
	ConfirmationEmailMessageID string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// IsCancelled reports whether the booking is already cancelled.
func (s *Schedule) IsCancelled() bool {
	return s.Status == ScheduleStatusCancelled
}

// ScheduleDetail is a schedule with its lead and contact resolved.
type ScheduleDetail struct {
	Schedule *Schedule
	Lead     *Lead    // nil when unlinked or missing
	Contact  *Contact // nil when unlinked or missing
}

// CancellationResult is returned by one observer run.
type CancellationResult struct {
	Processed int `json:"processed"`
	Cancelled int `json:"cancelled"`
}

// Counters flattens the result for metrics and events.
func (r CancellationResult) Counters() map[string]int {
	return map[string]int{
		"processed": r.Processed,
		"cancelled": r.Cancelled,
	}
}

// CancellationNote is the audit line appended to the lead's notes.
func CancellationNote(date, tm string) string {
	return fmt.Sprintf("Meeting cancelled via email reply on %s at %s", date, tm)
}

// NextActionMeetingCancelled is written to the lead after a cancellation.
const NextActionMeetingCancelled = "Meeting cancelled per customer request"
