package domain

// Slot is a fixed time-of-day seating window with a maximum total
// party-size capacity. The calendar is compiled in and immutable for the
// process lifetime.
type Slot struct {
	Time        string `json:"time"`
	MaxCapacity int    `json:"max_capacity"`
}

// SlotCalendar lists the bookable slots in display order.
var SlotCalendar = []Slot{
	{Time: "5:00 PM", MaxCapacity: 6},
	{Time: "5:30 PM", MaxCapacity: 4},
	{Time: "6:00 PM", MaxCapacity: 8},
	{Time: "6:30 PM", MaxCapacity: 6},
	{Time: "7:00 PM", MaxCapacity: 8},
	{Time: "7:30 PM", MaxCapacity: 8},
	{Time: "8:00 PM", MaxCapacity: 6},
	{Time: "8:30 PM", MaxCapacity: 6},
	{Time: "9:00 PM", MaxCapacity: 4},
	{Time: "9:30 PM", MaxCapacity: 4},
}

// SlotByTime returns the slot with the given label, or false when the label
// is not part of the calendar.
func SlotByTime(label string) (Slot, bool) {
	for _, s := range SlotCalendar {
		if s.Time == label {
			return s, true
		}
	}
	return Slot{}, false
}
