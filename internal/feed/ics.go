// Package feed publishes the reservation set as an iCalendar feed, one
// all-day event per stay, so front-desk calendars can subscribe to it.
package feed

import (
	"strings"
	"time"

	"github.com/JonMunkholm/staygrid/internal/core"
	ical "github.com/arran4/golang-ical"
)

// ProductID identifies the feed generator.
const ProductID = "-//staygrid//reservation calendar//JA"

// Calendar builds the feed from snap. Active reservations become confirmed
// events; upcoming cancellations are included with STATUS:CANCELLED so
// subscribed clients drop them. Reservations without both dates are skipped.
func Calendar(snap core.Snapshot, name string, loc *time.Location) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	if loc != nil {
		cal.SetXWRTimezone(loc.String())
	}

	stamp := snap.GeneratedAt.UTC()
	for _, r := range snap.ActiveReservations {
		addStay(cal, r, stamp, ical.ObjectStatusConfirmed)
	}
	for _, r := range snap.CancelledReservations {
		addStay(cal, r, stamp, ical.ObjectStatusCancelled)
	}
	return cal
}

func addStay(cal *ical.Calendar, r core.Reservation, stamp time.Time, status ical.ObjectStatus) {
	in, okIn := r.CheckInDate()
	out, okOut := r.CheckOutDate()
	if !okIn || !okOut {
		return
	}
	// DTEND is exclusive; the check-out day is the first free night.
	if !out.After(in) {
		out = in.AddDate(0, 0, 1)
	}

	ev := cal.AddEvent(EventID(r))
	ev.SetDtStampTime(stamp)
	ev.SetAllDayStartAt(in)
	ev.SetAllDayEndAt(out)
	ev.SetSummary(r.RoomType + " / " + r.GuestName)
	ev.SetLocation(r.RoomType)
	ev.SetStatus(status)
	if desc := description(r); desc != "" {
		ev.SetDescription(desc)
	}
}

// EventID derives a stable UID from the reservation's dedup key.
func EventID(r core.Reservation) string {
	key := strings.Map(func(c rune) rune {
		switch c {
		case ' ', '\t', '\r', '\n', '@':
			return '_'
		}
		return c
	}, core.DedupKey(r))
	return key + "@staygrid"
}

func description(r core.Reservation) string {
	var parts []string
	if r.Number != "" {
		parts = append(parts, "予約番号: "+r.Number)
	}
	if r.BookingSite != "" {
		parts = append(parts, "予約サイト: "+r.BookingSite)
	}
	parts = append(parts, "予約区分: "+r.Status.Label())
	if r.Remarks != "" {
		parts = append(parts, "備考: "+r.Remarks)
	}
	return strings.Join(parts, "\n")
}
