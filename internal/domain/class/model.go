package class

import (
	"fmt"
	"strings"
	"time"

	"gymdesk/internal/domain/apperr"
)

// Day of week constants
const (
	Monday    = "monday"
	Tuesday   = "tuesday"
	Wednesday = "wednesday"
	Thursday  = "thursday"
	Friday    = "friday"
	Saturday  = "saturday"
	Sunday    = "sunday"
)

// ValidDays contains all valid day values.
var ValidDays = []string{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// MaxCapacity bounds the number of confirmed bookings a class can hold.
const MaxCapacity = 500

// Class is a scheduled session members can book.
type Class struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	TrainerID   string    `json:"trainerId,omitempty"`
	ProgramID   string    `json:"programId,omitempty"`
	Day         string    `json:"day,omitempty"`       // monday, tuesday, etc.
	StartTime   string    `json:"startTime,omitempty"` // HH:MM format
	EndTime     string    `json:"endTime,omitempty"`   // HH:MM format
	StartsAt    time.Time `json:"startsAt,omitzero"`
	Capacity    int       `json:"capacity"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// Validate checks if the Class has valid data.
// PRE: Class struct is populated
// POST: Returns a ValidationError naming the first bad field, nil otherwise
func (c Class) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return apperr.Validation("title", "class title cannot be empty")
	}
	if c.Capacity < 1 || c.Capacity > MaxCapacity {
		return apperr.Validation("capacity", fmt.Sprintf("capacity must be between 1 and %d", MaxCapacity))
	}
	if c.Day != "" && !isValidDay(c.Day) {
		return apperr.Validation("day", "day must be a valid day of the week")
	}
	if (c.StartTime == "") != (c.EndTime == "") {
		return apperr.Validation("endTime", "start and end time must be set together")
	}
	if c.StartTime != "" {
		if _, err := c.DurationHours(); err != nil {
			return apperr.Validation("startTime", err.Error())
		}
	}
	return nil
}

// RecordID returns the class id.
func (c Class) RecordID() string { return c.ID }

// WithID returns a copy carrying id.
func (c Class) WithID(id string) Class {
	c.ID = id
	return c
}

// DurationHours returns the session duration in hours.
// PRE: StartTime and EndTime are in HH:MM format
// POST: Returns duration as float64 hours, or error if times can't be parsed
func (c Class) DurationHours() (float64, error) {
	start, err := time.Parse("15:04", c.StartTime)
	if err != nil {
		return 0, fmt.Errorf("invalid start time %q: %w", c.StartTime, err)
	}
	end, err := time.Parse("15:04", c.EndTime)
	if err != nil {
		return 0, fmt.Errorf("invalid end time %q: %w", c.EndTime, err)
	}
	dur := end.Sub(start)
	if dur <= 0 {
		dur += 24 * time.Hour // overnight
	}
	return dur.Hours(), nil
}

// HasRoom reports whether another confirmed booking fits.
func (c Class) HasRoom(confirmed int) bool {
	return confirmed < c.Capacity
}

func isValidDay(day string) bool {
	for _, d := range ValidDays {
		if d == day {
			return true
		}
	}
	return false
}
