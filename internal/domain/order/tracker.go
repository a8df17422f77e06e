package order

import (
	"math"
	"slices"
)

var ordinals = map[Status]int{
	StatusPending:        0,
	StatusConfirmed:      1,
	StatusShipped:        2,
	StatusOutForDelivery: 3,
	StatusDelivered:      4,
	StatusReturned:       5,
}

// Ordinal returns the canonical position of s in the order lifecycle.
// CANCELLED and unknown statuses have no position and return math.MaxInt.
func Ordinal(s Status) int {
	if n, ok := ordinals[s]; ok {
		return n
	}
	return math.MaxInt
}

// Timeline derives the displayable progress steps of an order from its
// milestone events: CANCELLED events are dropped, the rest are ordered by
// canonical ordinal (stable for ties) and collapsed to one step per status.
// Completion is taken from the events as recorded, never inferred.
func Timeline(steps []Milestone) []Milestone {
	out := make([]Milestone, 0, len(steps))
	seen := make(map[Status]int, len(steps))
	for _, m := range steps {
		if m.Status == StatusCancelled {
			continue
		}
		i, dup := seen[m.Status]
		if !dup {
			seen[m.Status] = len(out)
			out = append(out, m)
			continue
		}
		if prefer(m, out[i]) {
			out[i] = m
		}
	}
	slices.SortStableFunc(out, func(a, b Milestone) int {
		oa, ob := Ordinal(a.Status), Ordinal(b.Status)
		switch {
		case oa < ob:
			return -1
		case oa > ob:
			return 1
		}
		return 0
	})
	return out
}

// prefer reports whether m should replace cur as the step for their shared
// status: a completed event wins over an incomplete one, otherwise the later
// event wins.
func prefer(m, cur Milestone) bool {
	if m.Completed != cur.Completed {
		return m.Completed
	}
	return m.At.After(cur.At)
}

// Actions gates what a shopper may do with an order.
type Actions struct {
	Cancel          bool
	Track           bool
	DownloadReceipt bool
	Return          bool
	// Badge is set to CANCELLED for cancelled orders. Cancellation is shown
	// only as a badge, never as a timeline step.
	Badge Status
}

// ActionsFor derives the action gates of o.
func ActionsFor(o *Order) Actions {
	a := Actions{
		Cancel:          o.Status == StatusConfirmed,
		Track:           o.AWB != "",
		DownloadReceipt: o.Status != StatusPending && o.Status != StatusCancelled,
		Return:          o.Status == StatusDelivered,
	}
	if o.Status == StatusCancelled {
		a.Badge = StatusCancelled
	}
	return a
}
