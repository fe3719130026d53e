package reservation

import "time"

// GridSlot is one cell of the 48-slot day view.
type GridSlot struct {
	Label        string // "15:04" canonical time-of-day label
	Start        time.Time
	Reservations []Reservation
}

// ProjectGrid derives the fixed 48-slot display grid from the approved
// records in set. Matching is by time of day only: an approved record on any
// calendar date lands in the slot sharing its label. Pure and deterministic;
// identical input yields identical output regardless of snapshot order.
func ProjectGrid(set []Reservation, dayStart time.Time) []GridSlot {
	dayStart = Quantize(dayStart)

	slots := make([]GridSlot, SlotsPerDay)
	index := make(map[string]int, SlotsPerDay)
	for i := range slots {
		start := dayStart.Add(time.Duration(i) * SlotStep)
		label := start.Format("15:04")
		slots[i] = GridSlot{Label: label, Start: start}
		index[label] = i
	}

	for _, r := range set {
		if r.Status != StatusApproved {
			continue
		}
		i, ok := index[r.SlotTime.UTC().Format("15:04")]
		if !ok {
			continue
		}
		slots[i].Reservations = append(slots[i].Reservations, r)
	}

	for i := range slots {
		sortReservations(slots[i].Reservations)
	}
	return slots
}
