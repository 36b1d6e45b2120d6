package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Booking site recorded on reservations entered by hand.
const ManualBookingSite = "manual"

const manualNumberPrefix = "MANUAL_"

// ValidationError reports a manual booking field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Field)
}

// Validate checks that every field is present and both dates parse with
// check-out on or after check-in.
func (m ManualBooking) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"room", m.Room},
		{"guestName", m.GuestName},
		{"checkIn", m.CheckIn},
		{"checkOut", m.CheckOut},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Reason: "required field is empty"}
		}
	}

	in, ok := ParseStayDate(m.CheckIn)
	if !ok {
		return &ValidationError{Field: "checkIn", Reason: "invalid date"}
	}
	out, ok := ParseStayDate(m.CheckOut)
	if !ok {
		return &ValidationError{Field: "checkOut", Reason: "invalid date"}
	}
	if out.Before(in) {
		return &ValidationError{Field: "checkOut", Reason: "invalid date range"}
	}
	return nil
}

// NewManualReservation synthesizes the reservation for a validated manual
// booking. Dates are rewritten in the export's Y/M/D form.
func NewManualReservation(m ManualBooking, now time.Time) (Reservation, error) {
	if err := m.Validate(); err != nil {
		return Reservation{}, err
	}
	in, _ := ParseStayDate(m.CheckIn)
	out, _ := ParseStayDate(m.CheckOut)

	return Reservation{
		Number:      manualNumberPrefix + strconv.FormatInt(now.UnixMilli(), 10),
		RoomType:    strings.TrimSpace(m.Room),
		GuestName:   strings.TrimSpace(m.GuestName),
		CheckIn:     in.Format(ExportDateLayout),
		CheckOut:    out.Format(ExportDateLayout),
		BookingSite: ManualBookingSite,
		Status:      StatusNew,
	}, nil
}

// AddManual appends a manual booking to the full record history and
// reclassifies. The input slice is not modified.
func AddManual(records []Reservation, m ManualBooking, now, today time.Time) ([]Reservation, Buckets, error) {
	r, err := NewManualReservation(m, now)
	if err != nil {
		return nil, Buckets{}, err
	}
	next := make([]Reservation, 0, len(records)+1)
	next = append(next, records...)
	next = append(next, r)
	return next, Classify(next, today), nil
}
