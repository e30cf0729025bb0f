package slot

import (
	"github.com/consult/consult/pkg/kst"
)

// StatusOpen is the only status under which a slot accepts bookings.
const StatusOpen = "OPEN"

// FullSuffix marks a full slot in display labels.
const FullSuffix = " (마감)"

// Slot is a counselor's bookable time window as served by the upstream API.
// EndAt is derived by the server and only ever displayed.
type Slot struct {
	ID          string `json:"id"`
	CounselorID string `json:"counselorId"`
	StartAt     string `json:"startAt"`
	EndAt       string `json:"endAt"`
	Capacity    int    `json:"capacity"`
	BookedCount int    `json:"bookedCount"`
	Status      string `json:"status"`
}

// IsFull reports whether no seat is left.
func (s Slot) IsFull() bool {
	return s.BookedCount >= s.Capacity
}

// Remaining returns the number of free seats, never negative.
func (s Slot) Remaining() int {
	if n := s.Capacity - s.BookedCount; n > 0 {
		return n
	}
	return 0
}

// Actionable reports whether the slot can be offered for booking. Unknown
// statuses are not actionable.
func (s Slot) Actionable() bool {
	return s.Status == StatusOpen && !s.IsFull()
}

// Date returns the calendar date of the slot start.
func (s Slot) Date() string {
	return kst.Date(s.StartAt)
}

// Availability is the per-slot view shared by the admin roster and the
// public slot picker.
type Availability struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Label       string `json:"label"`
	Capacity    int    `json:"capacity"`
	BookedCount int    `json:"bookedCount"`
	Remaining   int    `json:"remaining"`
	Status      string `json:"status"`
	Full        bool   `json:"full"`
	Actionable  bool   `json:"actionable"`
}

// FilterByDate returns the slots whose decoded start date equals date, in
// their original order.
func FilterByDate(slots []Slot, date string) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if kst.Date(s.StartAt) == date {
			out = append(out, s)
		}
	}
	return out
}

// Annotate builds the availability view of each slot.
func Annotate(slots []Slot) []Availability {
	out := make([]Availability, 0, len(slots))
	for _, s := range slots {
		date, start := kst.Decode(s.StartAt)
		a := Availability{
			ID:          s.ID,
			Date:        date,
			Start:       start,
			End:         kst.Clock(s.EndAt),
			Label:       kst.Window(s.StartAt, s.EndAt),
			Capacity:    s.Capacity,
			BookedCount: s.BookedCount,
			Remaining:   s.Remaining(),
			Status:      s.Status,
			Full:        s.IsFull(),
			Actionable:  s.Actionable(),
		}
		if a.Full {
			a.Label += FullSuffix
		}
		out = append(out, a)
	}
	return out
}

// Find returns the slot with id.
func Find(slots []Slot, id string) (Slot, bool) {
	for _, s := range slots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// Patch is a partial slot update. Nil fields are left unchanged upstream.
type Patch struct {
	StartAt *string `json:"startAt,omitempty"`
	Status  *string `json:"status,omitempty"`
}

// Form is the admin slot editor form.
type Form struct {
	Date      string `json:"date" validate:"required,ymd"`
	StartTime string `json:"startTime" validate:"required,hhmm"`
}

func (Form) ValidationMessages() map[string]string {
	return map[string]string{
		"date":               "YYYY-MM-DD 형식",
		"startTime.required": "시작 시간을 입력하세요",
		"startTime.hhmm":     "HH:MM 형식",
	}
}

// StartAt encodes the form into a +09:00 timestamp.
func (f Form) StartAt() string {
	return kst.Encode(f.Date, f.StartTime)
}
