package domain

import "time"

// Appointment is the lead's denormalized view of a booking.
type Appointment struct {
	Date      string
	Time      string
	Confirmed bool
	Channel   string
	Purpose   string
}

// Matches compares by (date, time), the only key the copy has.
func (a Appointment) Matches(date, tm string) bool {
	return a.Date == date && a.Time == tm
}

// LeadMemory holds free-form notes gathered about the lead.
type LeadMemory struct {
	Notes []string
}

// Lead is the conversational lead record.
type Lead struct {
	ID           string
	Name         string
	Email        string
	Appointments []Appointment
	Memory       LeadMemory
	NextAction   string
	UpdatedAt    time.Time
}

// LeadCancellation describes the lead-side bookkeeping for a cancelled booking.
type LeadCancellation struct {
	Date       string
	Time       string
	Note       string
	NextAction string
}

// ApplyCancellation removes the matching appointment, appends the note and
// sets the next action. It mirrors what the store applies atomically.
func (l *Lead) ApplyCancellation(c LeadCancellation) {
	kept := l.Appointments[:0:0]
	for _, a := range l.Appointments {
		if !a.Matches(c.Date, c.Time) {
			kept = append(kept, a)
		}
	}
	l.Appointments = kept
	if c.Note != "" {
		l.Memory.Notes = append(l.Memory.Notes, c.Note)
	}
	if c.NextAction != "" {
		l.NextAction = c.NextAction
	}
}
