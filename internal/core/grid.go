package core

import (
	"time"
)

// MaxStayDays bounds the walk from check-in. A reservation contributes at
// most MaxStayDays+1 cells; longer or corrupt spans are truncated.
const MaxStayDays = 365

// CellKind classifies a grid cell. A missing cell means the room is empty.
type CellKind string

const (
	CellStart    CellKind = "start"
	CellEnd      CellKind = "end"
	CellStay     CellKind = "stay"
	CellTurnover CellKind = "turnover"
)

// DayCell is the occupancy of one room on one day.
// Guest is set for start, end and stay cells; OutgoingGuest and
// IncomingGuest are set for turnover cells.
type DayCell struct {
	Kind          CellKind `json:"kind"`
	Guest         string   `json:"guest,omitempty"`
	OutgoingGuest string   `json:"outgoingGuest,omitempty"`
	IncomingGuest string   `json:"incomingGuest,omitempty"`
}

// Grid maps room → ISO date → cell.
type Grid map[string]map[string]DayCell

// BuildStats summarizes one BuildGrid call.
type BuildStats struct {
	Reservations   int `json:"reservations"`
	Cells          int `json:"cells"`
	SkippedInvalid int `json:"skippedInvalid"`
	Turnovers      int `json:"turnovers"`
	// Collisions counts overlaps that could not merge into a turnover and
	// were resolved by keeping the later reservation's cell.
	Collisions int `json:"collisions"`
	Truncated  int `json:"truncated"`
}

// BuildGrid expands active reservations into a per-room, per-day grid.
//
// Every room in rooms gets an entry even with no bookings; rooms that only
// appear on reservations are added as well. Reservations whose check-in or
// check-out does not parse are skipped and counted. The returned grid is
// newly allocated on every call.
func BuildGrid(active []Reservation, rooms []string) (Grid, BuildStats) {
	grid := make(Grid, len(rooms))
	for _, room := range rooms {
		grid[room] = make(map[string]DayCell)
	}

	var stats BuildStats
	for _, r := range active {
		in, okIn := r.CheckInDate()
		out, okOut := r.CheckOutDate()
		if !okIn || !okOut {
			stats.SkippedInvalid++
			continue
		}
		stats.Reservations++

		cells, ok := grid[r.RoomType]
		if !ok {
			cells = make(map[string]DayCell)
			grid[r.RoomType] = cells
		}

		last := in.AddDate(0, 0, MaxStayDays)
		if out.After(last) {
			stats.Truncated++
		}

		for d := in; !d.After(out) && !d.After(last); d = d.AddDate(0, 0, 1) {
			incoming := DayCell{Kind: dayKind(d, in, out), Guest: r.GuestName}
			key := FormatISODate(d)

			existing, taken := cells[key]
			if !taken {
				stats.Cells++
				cells[key] = incoming
				continue
			}

			merged, isTurnover := mergeCells(existing, incoming)
			if isTurnover {
				stats.Turnovers++
			} else {
				stats.Collisions++
			}
			cells[key] = merged
		}
	}
	return grid, stats
}

// dayKind classifies d within [in, out]. Check-in is tested first, so a
// same-day stay is a start.
func dayKind(d, in, out time.Time) CellKind {
	switch {
	case d.Equal(in):
		return CellStart
	case d.Equal(out):
		return CellEnd
	default:
		return CellStay
	}
}

// mergeCells resolves two reservations on the same room and day. An end
// meeting a start becomes a turnover in either order; anything else keeps
// incoming.
func mergeCells(existing, incoming DayCell) (DayCell, bool) {
	switch {
	case existing.Kind == CellEnd && incoming.Kind == CellStart:
		return DayCell{
			Kind:          CellTurnover,
			OutgoingGuest: existing.Guest,
			IncomingGuest: incoming.Guest,
		}, true
	case existing.Kind == CellStart && incoming.Kind == CellEnd:
		return DayCell{
			Kind:          CellTurnover,
			OutgoingGuest: incoming.Guest,
			IncomingGuest: existing.Guest,
		}, true
	default:
		return incoming, false
	}
}

// Window returns a copy of g holding only cells dated within [from, to].
// A zero from or to leaves that side open.
func (g Grid) Window(from, to time.Time) Grid {
	out := make(Grid, len(g))
	for room, cells := range g {
		kept := make(map[string]DayCell)
		for key, cell := range cells {
			d, err := time.Parse(ISODateLayout, key)
			if err != nil {
				continue
			}
			if !from.IsZero() && d.Before(from) {
				continue
			}
			if !to.IsZero() && d.After(to) {
				continue
			}
			kept[key] = cell
		}
		out[room] = kept
	}
	return out
}
