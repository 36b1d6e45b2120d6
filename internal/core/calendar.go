package core

import (
	"fmt"
	"sort"
	"time"
)

// CalendarPadDays is how far the month view extends past each month edge.
const CalendarPadDays = 7

const monthLayout = "2006-01"

var weekdayLabels = [...]string{"日", "月", "火", "水", "木", "金", "土"}

// CalendarDay is one column of the month view.
type CalendarDay struct {
	Date    string `json:"date"`
	Day     int    `json:"day"`
	Weekday string `json:"weekday"`
	Weekend bool   `json:"weekend"`
	Today   bool   `json:"today"`
	InMonth bool   `json:"inMonth"`
}

// CalendarRow is one room across the month view.
type CalendarRow struct {
	Room  string             `json:"room"`
	Cells map[string]DayCell `json:"cells"`
}

// MonthView is the month calendar handed to the renderer.
type MonthView struct {
	Month string        `json:"month"`
	From  string        `json:"from"`
	To    string        `json:"to"`
	Days  []CalendarDay `json:"days"`
	Rows  []CalendarRow `json:"rows"`
}

// ParseMonth parses a YYYY-MM month. An empty string yields today's month.
func ParseMonth(s string, today time.Time) (time.Time, error) {
	if s == "" {
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	m, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date: month %q: %w", s, err)
	}
	return m, nil
}

// MonthDays returns the days from seven days before the first of month to
// seven days after its last day, flagged for rendering.
func MonthDays(month, today time.Time) []CalendarDay {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	from := start.AddDate(0, 0, -CalendarPadDays)
	to := end.AddDate(0, 0, CalendarPadDays)

	days := make([]CalendarDay, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		wd := d.Weekday()
		days = append(days, CalendarDay{
			Date:    FormatISODate(d),
			Day:     d.Day(),
			Weekday: weekdayLabels[wd],
			Weekend: wd == time.Saturday || wd == time.Sunday,
			Today:   d.Equal(today),
			InMonth: d.Month() == start.Month() && d.Year() == start.Year(),
		})
	}
	return days
}

// BuildMonthView lays the grid out for month, one row per room in rooms
// order followed by any grid-only rooms.
func BuildMonthView(g Grid, rooms []string, month, today time.Time) MonthView {
	days := MonthDays(month, today)
	from, _ := time.Parse(ISODateLayout, days[0].Date)
	to, _ := time.Parse(ISODateLayout, days[len(days)-1].Date)
	window := g.Window(from, to)

	view := MonthView{
		Month: month.Format(monthLayout),
		From:  days[0].Date,
		To:    days[len(days)-1].Date,
		Days:  days,
		Rows:  make([]CalendarRow, 0, len(window)),
	}

	seen := make(map[string]bool, len(rooms))
	for _, room := range rooms {
		seen[room] = true
		view.Rows = append(view.Rows, CalendarRow{Room: room, Cells: cellsOrEmpty(window[room])})
	}
	for _, room := range RoomsOfGrid(window) {
		if !seen[room] {
			view.Rows = append(view.Rows, CalendarRow{Room: room, Cells: cellsOrEmpty(window[room])})
		}
	}
	return view
}

// RoomsOfGrid returns the grid's rooms in sorted order.
func RoomsOfGrid(g Grid) []string {
	rooms := make([]string, 0, len(g))
	for room := range g {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func cellsOrEmpty(cells map[string]DayCell) map[string]DayCell {
	if cells == nil {
		return map[string]DayCell{}
	}
	return cells
}
