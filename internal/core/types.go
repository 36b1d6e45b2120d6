package core

import (
	"context"
	"time"
)

// Column names of the reservation export. These must match the CSV header
// exactly, including script.
const (
	ColStatus      = "予約区分"
	ColCheckIn     = "チェックイン日"
	ColCheckOut    = "チェックアウト日"
	ColRoomType    = "部屋タイプ名称"
	ColGuestName   = "宿泊者氏名"
	ColBookingSite = "予約サイト名称"
	ColNumber      = "予約番号"
	ColRemarks1    = "備考1"
	ColRemarks2    = "備考2"
)

// Status values as they appear in the 予約区分 column.
const (
	rawStatusNew       = "予約"
	rawStatusChanged   = "変更"
	rawStatusCancelled = "キャンセル"
)

// RawRow maps header column names to cell values for one data line.
type RawRow map[string]string

// Status is the booking state of a reservation.
type Status string

const (
	StatusNew       Status = "new"
	StatusChanged   Status = "changed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus maps a 予約区分 cell to a Status.
// Unrecognized values are treated as New, so only an explicit
// cancellation removes a booking from the active set.
func ParseStatus(raw string) Status {
	switch raw {
	case rawStatusCancelled:
		return StatusCancelled
	case rawStatusChanged:
		return StatusChanged
	default:
		return StatusNew
	}
}

// Label returns the status as written in the export.
func (s Status) Label() string {
	switch s {
	case StatusCancelled:
		return rawStatusCancelled
	case StatusChanged:
		return rawStatusChanged
	default:
		return rawStatusNew
	}
}

// Reservation is the canonical form of one booking line.
// CheckIn and CheckOut keep the exported text; use CheckInDate and
// CheckOutDate for the parsed calendar day.
type Reservation struct {
	Number      string `json:"reservationNumber,omitempty"`
	RoomType    string `json:"roomType"`
	GuestName   string `json:"guestName"`
	CheckIn     string `json:"checkIn"`
	CheckOut    string `json:"checkOut"`
	BookingSite string `json:"bookingSite"`
	Status      Status `json:"status"`
	Remarks     string `json:"remarks,omitempty"`
}

// CheckInDate parses CheckIn. ok is false when the text is not a date.
func (r Reservation) CheckInDate() (time.Time, bool) {
	return ParseStayDate(r.CheckIn)
}

// CheckOutDate parses CheckOut. ok is false when the text is not a date.
func (r Reservation) CheckOutDate() (time.Time, bool) {
	return ParseStayDate(r.CheckOut)
}

// Buckets is the classified view of a deduplicated reservation set.
type Buckets struct {
	// All is every deduplicated reservation, in first-seen key order.
	All       []Reservation
	Active    []Reservation
	Cancelled []Reservation
	Changed   []Reservation
	Rooms     []string
}

// Snapshot is the derived state handed to rendering and export.
type Snapshot struct {
	ActiveReservations    []Reservation `json:"activeReservations"`
	CancelledReservations []Reservation `json:"cancelledReservations"`
	ModifiedReservations  []Reservation `json:"modifiedReservations"`
	Rooms                 []string      `json:"rooms"`
	GeneratedAt           time.Time     `json:"generatedAt"`
}

// Document is the shared-store representation of the reservation set.
type Document struct {
	Reservations []Reservation `json:"reservations"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Store is the shared mutable document the service mirrors its state to.
// Save overwrites the whole document. Watch blocks until ctx is done and
// calls onChange for every change observed, including ones made by this
// process.
type Store interface {
	Load(ctx context.Context) (Document, bool, error)
	Save(ctx context.Context, doc Document) error
	Watch(ctx context.Context, onChange func(Document)) error
}

// FileInput is one selected file awaiting decode.
type FileInput struct {
	Name string
	Open func() ([]byte, error)
}

// FileStats describes the outcome of decoding one file.
type FileStats struct {
	FileName  string `json:"fileName"`
	Encoding  string `json:"encoding"`
	Rows      int    `json:"rows"`
	ValidRows int    `json:"validRows"`
}

// IngestResult is returned by a successful ingestion.
type IngestResult struct {
	BatchID  string        `json:"batchId"`
	Files    []FileStats   `json:"files"`
	Rows     int           `json:"rows"`
	Snapshot Snapshot      `json:"snapshot"`
	Duration time.Duration `json:"duration"`
}

// ManualBooking is the input of the manual-add form.
type ManualBooking struct {
	Room      string `json:"room"`
	GuestName string `json:"guestName"`
	CheckIn   string `json:"checkIn"`
	CheckOut  string `json:"checkOut"`
}
