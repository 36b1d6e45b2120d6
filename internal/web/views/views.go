// Package views renders the HTML pages: the upload form, the month calendar
// and the standalone export document.
//
// Components live in the .templ files; the _templ.go files are produced from
// them by `templ generate`.
package views

import (
	"strconv"

	"github.com/JonMunkholm/staygrid/internal/core"
	"github.com/a-h/templ"
)

// DataScriptID is the id of the script element holding the embedded snapshot.
const DataScriptID = "calendar-data"

const pageStyle = `
body{font-family:sans-serif;margin:1.5rem;color:#1f2937;background:#f3f4f6}
h1{font-size:1.4rem}h2{font-size:1.1rem;margin-top:2rem}
table{border-collapse:collapse;background:#fff}
th,td{border:1px solid #d1d5db;padding:2px 4px;font-size:.8rem;min-width:3.5rem;text-align:center}
th.room{text-align:left;min-width:8rem;position:sticky;left:0;background:#fff}
th.weekend{background:#fff7ed;color:#9a3412}th.out{background:#e5e7eb;color:#6b7280}
th.today{background:#eff6ff;border-bottom:2px solid #3b82f6}
td.start{background:#dcfce7}td.stay{background:#dbeafe}td.end{background:#fee2e2}
td.turnover{background:linear-gradient(135deg,#fecaca 50%,#bbf7d0 50%)}
.alert{border:1px solid #f87171;background:#fef2f2;padding:.75rem;margin:1rem 0}
.list td{text-align:left}
.scroll{overflow-x:auto}
`

const styleTag = "<style>" + pageStyle + "</style>"

func monthURL(month string) templ.SafeURL {
	return templ.URL("/?month=" + month)
}

func exportURL(month string) templ.SafeURL {
	return templ.URL("/export?month=" + month)
}

func dayClass(d core.CalendarDay) string {
	switch {
	case d.Today:
		return "today"
	case !d.InMonth:
		return "out"
	case d.Weekend:
		return "weekend"
	default:
		return ""
	}
}

func dayLabel(d core.CalendarDay) string {
	return strconv.Itoa(d.Day)
}

func cellLabel(c core.DayCell) string {
	switch c.Kind {
	case core.CellTurnover:
		return c.OutgoingGuest + " → " + c.IncomingGuest
	case core.CellStart:
		return "IN " + c.Guest
	case core.CellEnd:
		return "OUT " + c.Guest
	default:
		return c.Guest
	}
}

func cellTitle(c core.DayCell) string {
	if c.Kind == core.CellTurnover {
		return "入替: " + c.OutgoingGuest + " / " + c.IncomingGuest
	}
	return string(c.Kind) + ": " + c.Guest
}

func countLabel(title string, n int) string {
	return title + " (" + strconv.Itoa(n) + ")"
}

func generatedLabel(snap core.Snapshot) string {
	return "作成日時: " + snap.GeneratedAt.Format("2006/01/02 15:04")
}
