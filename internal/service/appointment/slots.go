package appointment

import (
	"iter"
	"time"

	"github.com/jwalitptl/hospital-api/internal/model"
)

// Slots yields size-long slots tiled from window.Start that fit inside
// window and overlap none of busy. Ranging over the result again restarts
// from the first slot.
func Slots(window model.TimeSlot, size time.Duration, busy []model.TimeSlot) iter.Seq[model.TimeSlot] {
	busy = append([]model.TimeSlot(nil), busy...)

	return func(yield func(model.TimeSlot) bool) {
		if size <= 0 {
			return
		}
		for start := window.Start; !start.Add(size).After(window.End); start = start.Add(size) {
			slot := model.TimeSlot{Start: start, End: start.Add(size)}
			if overlapsAny(slot, busy) {
				continue
			}
			if !yield(slot) {
				return
			}
		}
	}
}

func overlapsAny(slot model.TimeSlot, busy []model.TimeSlot) bool {
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}

// busyIntervals keeps the intervals of appointments that still hold their
// slot.
func busyIntervals(appointments []*model.Appointment) []model.TimeSlot {
	busy := make([]model.TimeSlot, 0, len(appointments))
	for _, apt := range appointments {
		if apt.Status.Active() {
			busy = append(busy, apt.Slot())
		}
	}
	return busy
}
