package availability

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// GenerateInput is everything slot generation depends on. Generation does no
// I/O; the same input always yields the same slots.
type GenerateInput struct {
	DoctorID uuid.UUID
	Date     Date
	Type     ConsultationType
	// Duration overrides every window's slot length when positive.
	Duration int
	// DefaultDuration applies to exception windows with no duration when the
	// template has no entry for that weekday and type.
	DefaultDuration int
	Template        []TemplateEntry
	Exception       *Exception
	Now             time.Time
	Location        *time.Location
}

type span struct {
	start, end TimeOfDay
}

// GenerateSlots turns a weekly template and an optional exception for the
// date into bookable slots, ordered by start time.
func GenerateSlots(in GenerateInput) []TimeSlot {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	today := DateOf(in.Now.In(loc))
	if in.Date.Before(today) {
		return nil
	}
	if in.Exception != nil && in.Exception.Kind == Blocked {
		return nil
	}

	var base []TemplateEntry
	for _, e := range in.Template {
		if e.DayOfWeek == in.Date.Weekday() && e.ConsultationType == in.Type {
			base = append(base, e)
		}
	}
	sort.Slice(base, func(i, j int) bool { return base[i].Start < base[j].Start })

	inherited := in.DefaultDuration
	if len(base) > 0 {
		inherited = base[0].SlotMinutes
	}

	// Windows claim time in order: template entries first, then exception
	// windows. A later window only keeps the part no earlier window covers, so
	// windows with different slot lengths never yield overlapping slots.
	groups := make(map[int][]span)
	var claimed []span
	add := func(start, end TimeOfDay, minutes int) {
		if in.Duration > 0 {
			minutes = in.Duration
		}
		if minutes <= 0 || start >= end {
			return
		}
		groups[minutes] = append(groups[minutes], uncovered(span{start, end}, claimed)...)
		claimed = mergeSpans(append(claimed, span{start, end}))
	}

	if in.Exception == nil || in.Exception.Kind != ModifiedHours {
		for _, e := range base {
			add(e.Start, e.End, e.SlotMinutes)
		}
	}
	if in.Exception != nil && (in.Exception.Kind == ModifiedHours || in.Exception.Kind == AddedHours) {
		windows := make([]Window, 0, len(in.Exception.Windows))
		for _, w := range in.Exception.Windows {
			if w.ConsultationType == in.Type {
				windows = append(windows, w)
			}
		}
		sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
		for _, w := range windows {
			minutes := w.SlotMinutes
			if minutes <= 0 {
				minutes = inherited
			}
			add(w.Start, w.End, minutes)
		}
	}

	var slots []TimeSlot
	for minutes, spans := range groups {
		for _, w := range mergeSpans(spans) {
			for s := w.start; s.Add(minutes) <= w.end; s = s.Add(minutes) {
				if in.Date == today && !in.Date.At(s, loc).After(in.Now) {
					continue
				}
				slots = append(slots, TimeSlot{
					DoctorID:         in.DoctorID,
					Date:             in.Date,
					Start:            s,
					End:              s.Add(minutes),
					ConsultationType: in.Type,
				})
			}
		}
	}
	return sortUnique(slots)
}

// uncovered returns the parts of s outside claimed, which must be sorted and
// disjoint.
func uncovered(s span, claimed []span) []span {
	var out []span
	cur := s.start
	for _, c := range claimed {
		if c.end <= cur {
			continue
		}
		if c.start >= s.end {
			break
		}
		if c.start > cur {
			out = append(out, span{cur, c.start})
		}
		cur = c.end
		if cur >= s.end {
			return out
		}
	}
	return append(out, span{cur, s.end})
}

// mergeSpans unions overlapping or touching spans.
func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	merged := []span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func sortUnique(slots []TimeSlot) []TimeSlot {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Start != slots[j].Start {
			return slots[i].Start < slots[j].Start
		}
		return slots[i].End < slots[j].End
	})
	out := slots[:0]
	for _, s := range slots {
		if len(out) > 0 && s == out[len(out)-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SubtractBooked drops slots that intersect any booked interval, whatever the
// interval's consultation type.
func SubtractBooked(slots []TimeSlot, booked []BookedInterval) []TimeSlot {
	out := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		free := true
		for _, b := range booked {
			if Overlaps(s.Start, s.End, b.Start, b.End) {
				free = false
				break
			}
		}
		if free {
			out = append(out, s)
		}
	}
	return out
}
