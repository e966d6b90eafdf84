package sequence

import (
	"sort"
	"testing"
)

func items(ids ...string) []Item {
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i] = Item{ID: id, Position: i}
	}
	return out
}

// assertDense fails unless positions are exactly {0..n-1}.
func assertDense(t *testing.T, collection []Item) {
	t.Helper()
	positions := make([]int, len(collection))
	for i, item := range collection {
		positions[i] = item.Position
	}
	sort.Ints(positions)
	for i, p := range positions {
		if p != i {
			t.Fatalf("positions not dense: %v", positions)
		}
	}
}

func positionOf(t *testing.T, collection []Item, id string) int {
	t.Helper()
	for _, item := range collection {
		if item.ID == id {
			return item.Position
		}
	}
	t.Fatalf("item %s not found", id)
	return -1
}

func TestInsertPosition(t *testing.T) {
	if got := InsertPosition(-1); got != 0 {
		t.Fatalf("empty collection: expected 0, got %d", got)
	}
	if got := InsertPosition(2); got != 3 {
		t.Fatalf("expected append at 3, got %d", got)
	}
}

func TestInsertPositionSequence(t *testing.T) {
	max := -1
	for i := 0; i < 5; i++ {
		pos := InsertPosition(max)
		if pos != i {
			t.Fatalf("create %d: expected position %d, got %d", i, i, pos)
		}
		max = pos
	}
}

func TestReorderNoop(t *testing.T) {
	if shifts := Reorder(items("a", "b", "c"), "b", 1, 1); len(shifts) != 0 {
		t.Fatalf("no-op move produced shifts: %v", shifts)
	}
}

func TestReorderForward(t *testing.T) {
	// T1(0), T2(1), T3(2); move T1 to 2 => T2=0, T3=1, T1=2.
	collection := items("t1", "t2", "t3")
	shifts := Reorder(collection, "t1", 0, 2)
	result := Apply(collection, shifts, "t1", 2)

	assertDense(t, result)
	if positionOf(t, result, "t2") != 0 || positionOf(t, result, "t3") != 1 || positionOf(t, result, "t1") != 2 {
		t.Fatalf("unexpected order: %v", result)
	}
}

func TestReorderBackward(t *testing.T) {
	collection := items("a", "b", "c", "d")
	shifts := Reorder(collection, "d", 3, 1)
	result := Apply(collection, shifts, "d", 1)

	assertDense(t, result)
	if positionOf(t, result, "a") != 0 || positionOf(t, result, "d") != 1 ||
		positionOf(t, result, "b") != 2 || positionOf(t, result, "c") != 3 {
		t.Fatalf("unexpected order: %v", result)
	}
}

func TestReorderOnlyTouchesRange(t *testing.T) {
	collection := items("a", "b", "c", "d", "e")
	shifts := Reorder(collection, "b", 1, 3)
	for _, shift := range shifts {
		if shift.ID == "a" || shift.ID == "e" {
			t.Fatalf("shifted sibling outside the moved range: %v", shifts)
		}
	}
	if len(shifts) != 2 {
		t.Fatalf("expected 2 shifts, got %v", shifts)
	}
}

func TestReorderRoundTrip(t *testing.T) {
	original := items("a", "b", "c", "d", "e")

	there := Apply(original, Reorder(original, "b", 1, 4), "b", 4)
	back := Apply(there, Reorder(there, "b", 4, 1), "b", 1)

	assertDense(t, back)
	for _, item := range original {
		if positionOf(t, back, item.ID) != item.Position {
			t.Fatalf("round trip did not restore order: %v vs %v", original, back)
		}
	}
}

func TestReorderToEnd(t *testing.T) {
	// newPos == len-1 is append within the same parent.
	collection := items("a", "b", "c")
	result := Apply(collection, Reorder(collection, "a", 0, 2), "a", 2)
	assertDense(t, result)
	if positionOf(t, result, "a") != 2 {
		t.Fatalf("expected a at tail, got %v", result)
	}
}

func TestCrossParentMove(t *testing.T) {
	// A=[T1(0), T2(1)], B=[T3(0)]; move T1 to B at 0 => A=[T2(0)], B=[T1(0), T3(1)].
	source := items("t1", "t2")
	dest := items("t3")

	var remaining []Item
	for _, item := range source {
		if item.ID != "t1" {
			remaining = append(remaining, item)
		}
	}

	sourceShifts, destShifts := CrossParentMove(remaining, dest, 0, 0)
	newSource := Apply(remaining, sourceShifts, "", 0)
	newDest := Apply(dest, destShifts, "", 0)
	newDest = append(newDest, Item{ID: "t1", Position: 0})

	assertDense(t, newSource)
	assertDense(t, newDest)
	if positionOf(t, newSource, "t2") != 0 {
		t.Fatalf("source gap not closed: %v", newSource)
	}
	if positionOf(t, newDest, "t1") != 0 || positionOf(t, newDest, "t3") != 1 {
		t.Fatalf("destination slot not opened: %v", newDest)
	}
}

func TestCrossParentConservation(t *testing.T) {
	source := items("a", "b", "c", "d") // size 4
	dest := items("x", "y", "z")        // size 3
	const moved, oldPos, newPos = "b", 1, 2

	var remaining []Item
	for _, item := range source {
		if item.ID != moved {
			remaining = append(remaining, item)
		}
	}

	sourceShifts, destShifts := CrossParentMove(remaining, dest, oldPos, newPos)
	newSource := Apply(remaining, sourceShifts, "", 0)
	newDest := append(Apply(dest, destShifts, "", 0), Item{ID: moved, Position: newPos})

	if len(newSource) != 3 || len(newDest) != 4 {
		t.Fatalf("sizes not conserved: %d source, %d dest", len(newSource), len(newDest))
	}
	assertDense(t, newSource)
	assertDense(t, newDest)
	if positionOf(t, newDest, moved) != newPos {
		t.Fatalf("moved item at %d, expected %d", positionOf(t, newDest, moved), newPos)
	}
}

func TestCrossParentMoveToEmptyParent(t *testing.T) {
	sourceShifts, destShifts := CrossParentMove(nil, nil, 0, 0)
	if len(sourceShifts) != 0 || len(destShifts) != 0 {
		t.Fatalf("empty parents produced shifts: %v %v", sourceShifts, destShifts)
	}
}

func TestDeleteShift(t *testing.T) {
	// L1(0), L2(1), L3(2); delete L2 => L1=0, L3=1.
	remaining := []Item{{ID: "l1", Position: 0}, {ID: "l3", Position: 2}}
	result := Apply(remaining, DeleteShift(remaining, 1), "", 0)

	assertDense(t, result)
	if positionOf(t, result, "l1") != 0 || positionOf(t, result, "l3") != 1 {
		t.Fatalf("unexpected renumbering: %v", result)
	}
}

func TestDeleteShiftTail(t *testing.T) {
	remaining := items("a", "b")
	if shifts := DeleteShift(remaining, 2); len(shifts) != 0 {
		t.Fatalf("deleting the tail should shift nothing: %v", shifts)
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ in, size, want int }{
		{-3, 5, 0},
		{0, 5, 0},
		{5, 5, 5},
		{9, 5, 5},
	}
	for _, tc := range cases {
		if got := Clamp(tc.in, tc.size); got != tc.want {
			t.Errorf("Clamp(%d, %d) = %d, want %d", tc.in, tc.size, got, tc.want)
		}
	}
}

func TestInRange(t *testing.T) {
	if !InRange(0, 0) {
		t.Error("append into empty collection should be in range")
	}
	if !InRange(3, 3) {
		t.Error("position == size is append, should be in range")
	}
	if InRange(4, 3) || InRange(-1, 3) {
		t.Error("out-of-bounds positions accepted")
	}
}
