// Package sequence computes the position updates that keep an ordered
// collection dense: siblings under one parent always occupy positions
// 0..n-1 with no gaps and no duplicates. The same functions drive the
// server-side mutation services and the client-side optimistic state, so
// both ends agree on the resulting order for identical inputs.
package sequence

// Item is the minimal view of a positioned sibling.
type Item struct {
	ID       string
	Position int
}

// Shift is a relative position change for one sibling. The moved item
// itself never appears in a shift list; it is assigned its target
// position directly.
type Shift struct {
	ID    string
	Delta int
}

// InsertPosition returns the position for a newly created item. Callers
// pass the current maximum position among siblings, or -1 when the
// collection is empty, so new items always append.
func InsertPosition(currentMax int) int {
	return currentMax + 1
}

// InRange reports whether newPos is a valid target position for a
// collection of the given size. Position == size means append.
// Violating this precondition on the functions below is a caller bug,
// not a runtime condition they defend against.
func InRange(newPos, size int) bool {
	return newPos >= 0 && newPos <= size
}

// Clamp confines newPos to [0, size].
func Clamp(newPos, size int) int {
	if newPos < 0 {
		return 0
	}
	if newPos > size {
		return size
	}
	return newPos
}

// Reorder computes the shifts for moving one item within its own parent
// from oldPos to newPos. Siblings between the two positions slide one
// step toward the vacated slot; everything else stays put. A no-op move
// returns no shifts.
func Reorder(siblings []Item, itemID string, oldPos, newPos int) []Shift {
	if newPos == oldPos {
		return nil
	}

	shifts := make([]Shift, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID == itemID {
			continue
		}
		if newPos > oldPos {
			if sibling.Position > oldPos && sibling.Position <= newPos {
				shifts = append(shifts, Shift{ID: sibling.ID, Delta: -1})
			}
			continue
		}
		if sibling.Position >= newPos && sibling.Position < oldPos {
			shifts = append(shifts, Shift{ID: sibling.ID, Delta: 1})
		}
	}
	return shifts
}

// CrossParentMove computes the shifts for moving an item from one parent
// to another: the source collection closes the gap at oldPos, the
// destination opens a slot at newPos. The moved item must not be present
// in either slice; it is assigned newPos in the destination by the
// caller.
func CrossParentMove(source, dest []Item, oldPos, newPos int) (sourceShifts, destShifts []Shift) {
	for _, sibling := range source {
		if sibling.Position > oldPos {
			sourceShifts = append(sourceShifts, Shift{ID: sibling.ID, Delta: -1})
		}
	}
	for _, sibling := range dest {
		if sibling.Position >= newPos {
			destShifts = append(destShifts, Shift{ID: sibling.ID, Delta: 1})
		}
	}
	return sourceShifts, destShifts
}

// DeleteShift computes the shifts that close the gap left by deleting
// the item at deletedPos.
func DeleteShift(siblings []Item, deletedPos int) []Shift {
	var shifts []Shift
	for _, sibling := range siblings {
		if sibling.Position > deletedPos {
			shifts = append(shifts, Shift{ID: sibling.ID, Delta: -1})
		}
	}
	return shifts
}

// Apply returns a copy of items with the given shifts applied and, when
// movedID is non-empty, the moved item pinned to movedPos. It is the
// in-memory counterpart of the store's bulk position update, used by the
// client reconciliation layer and by tests.
func Apply(items []Item, shifts []Shift, movedID string, movedPos int) []Item {
	deltas := make(map[string]int, len(shifts))
	for _, shift := range shifts {
		deltas[shift.ID] += shift.Delta
	}

	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = item
		if item.ID == movedID && movedID != "" {
			out[i].Position = movedPos
			continue
		}
		out[i].Position += deltas[item.ID]
	}
	return out
}
