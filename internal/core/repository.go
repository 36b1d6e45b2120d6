package core

import (
	"sort"
	"time"
)

// FromRow maps one raw row to a Reservation.
func FromRow(row RawRow) Reservation {
	remarks := row[ColRemarks1]
	if remarks == "" {
		remarks = row[ColRemarks2]
	}
	return Reservation{
		Number:      row[ColNumber],
		RoomType:    row[ColRoomType],
		GuestName:   row[ColGuestName],
		CheckIn:     row[ColCheckIn],
		CheckOut:    row[ColCheckOut],
		BookingSite: row[ColBookingSite],
		Status:      ParseStatus(row[ColStatus]),
		Remarks:     remarks,
	}
}

// FromRows maps raw rows to reservations, preserving order.
func FromRows(rows []RawRow) []Reservation {
	out := make([]Reservation, len(rows))
	for i, row := range rows {
		out[i] = FromRow(row)
	}
	return out
}

// DedupKey identifies a booking line across exports. A reservation number
// is unique per room line; without one the guest, raw check-in and room are
// used instead.
func DedupKey(r Reservation) string {
	if r.Number != "" {
		return r.Number + "_" + r.RoomType
	}
	return r.GuestName + "-" + r.CheckIn + "-" + r.RoomType
}

// Dedup folds records by DedupKey. A later record replaces an earlier one
// with the same key but keeps the key's first-seen position.
func Dedup(records []Reservation) []Reservation {
	index := make(map[string]int, len(records))
	out := make([]Reservation, 0, len(records))
	for _, r := range records {
		key := DedupKey(r)
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}

// Classify deduplicates records and splits them into buckets.
//
// today must be a calendar day as returned by StartOfDay; cancelled and
// changed bookings are kept only when they check in on or after it.
// Classify is pure: the same records and today always give the same Buckets.
func Classify(records []Reservation, today time.Time) Buckets {
	all := Dedup(records)

	b := Buckets{
		All:       all,
		Active:    make([]Reservation, 0, len(all)),
		Cancelled: []Reservation{},
		Changed:   []Reservation{},
	}

	var cancelled, changed []Reservation
	for _, r := range all {
		if r.Status != StatusCancelled {
			b.Active = append(b.Active, r)
		}
		switch r.Status {
		case StatusCancelled:
			if upcoming(r, today) {
				cancelled = append(cancelled, r)
			}
		case StatusChanged:
			if upcoming(r, today) {
				changed = append(changed, r)
			}
		}
	}

	b.Cancelled = append(b.Cancelled, sortByCheckIn(Dedup(cancelled))...)
	b.Changed = append(b.Changed, sortByCheckIn(Dedup(changed))...)
	b.Rooms = RoomsOf(all)
	return b
}

// RoomsOf returns the distinct non-empty room types of records, sorted.
func RoomsOf(records []Reservation) []string {
	seen := make(map[string]struct{})
	rooms := []string{}
	for _, r := range records {
		if r.RoomType == "" {
			continue
		}
		if _, ok := seen[r.RoomType]; ok {
			continue
		}
		seen[r.RoomType] = struct{}{}
		rooms = append(rooms, r.RoomType)
	}
	sort.Strings(rooms)
	return rooms
}

// upcoming reports whether r checks in on or after today. Records without a
// parseable check-in are never upcoming.
func upcoming(r Reservation, today time.Time) bool {
	in, ok := r.CheckInDate()
	if !ok {
		return false
	}
	return !in.Before(today)
}

// sortByCheckIn sorts records ascending by parsed check-in, keeping input
// order for equal days.
func sortByCheckIn(records []Reservation) []Reservation {
	sort.SliceStable(records, func(i, j int) bool {
		a, _ := records[i].CheckInDate()
		b, _ := records[j].CheckInDate()
		return a.Before(b)
	})
	return records
}

// SnapshotOf builds the rendering snapshot from classified buckets.
func SnapshotOf(b Buckets, generatedAt time.Time) Snapshot {
	return Snapshot{
		ActiveReservations:    b.Active,
		CancelledReservations: b.Cancelled,
		ModifiedReservations:  b.Changed,
		Rooms:                 b.Rooms,
		GeneratedAt:           generatedAt,
	}
}
