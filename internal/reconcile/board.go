// Package reconcile maintains a client-side mirror of one board. A UI
// applies its own mutations optimistically, keeps a snapshot to roll
// back to if the server rejects them, and merges the event stream so
// that replays and echoes of its own actions converge instead of
// corrupting the order.
package reconcile

import (
	"sort"

	"taskboard/api/internal/sequence"
)

// List is a column in the mirrored board.
type List struct {
	ID       string
	Title    string
	Position int
}

// Task is a card in the mirrored board.
type Task struct {
	ID          string
	Title       string
	Description string
	ListID      string
	Position    int
}

// Board is the mirrored state. All methods are idempotent with respect
// to the event stream: applying the same event twice leaves the board
// unchanged.
type Board struct {
	lists map[string]*List
	tasks map[string]*Task
}

func NewBoard() *Board {
	return &Board{
		lists: make(map[string]*List),
		tasks: make(map[string]*Task),
	}
}

// Replace swaps in an authoritative snapshot, discarding local state.
func (b *Board) Replace(lists []List, tasks []Task) {
	b.lists = make(map[string]*List, len(lists))
	b.tasks = make(map[string]*Task, len(tasks))
	for _, l := range lists {
		copied := l
		b.lists[l.ID] = &copied
	}
	for _, t := range tasks {
		copied := t
		b.tasks[t.ID] = &copied
	}
}

// Snapshot deep-copies the board so an optimistic mutation can be
// rolled back.
func (b *Board) Snapshot() *Board {
	snap := NewBoard()
	for id, l := range b.lists {
		copied := *l
		snap.lists[id] = &copied
	}
	for id, t := range b.tasks {
		copied := *t
		snap.tasks[id] = &copied
	}
	return snap
}

// Restore discards the current state in favor of a snapshot.
func (b *Board) Restore(snap *Board) {
	b.lists = snap.lists
	b.tasks = snap.tasks
}

// Lists returns the columns in position order.
func (b *Board) Lists() []List {
	out := make([]List, 0, len(b.lists))
	for _, l := range b.lists {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Tasks returns the cards of one list in position order.
func (b *Board) Tasks(listID string) []Task {
	var out []Task
	for _, t := range b.tasks {
		if t.ListID == listID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (b *Board) listSiblings() []sequence.Item {
	items := make([]sequence.Item, 0, len(b.lists))
	for _, l := range b.lists {
		items = append(items, sequence.Item{ID: l.ID, Position: l.Position})
	}
	return items
}

func (b *Board) taskSiblings(listID string) []sequence.Item {
	var items []sequence.Item
	for _, t := range b.tasks {
		if t.ListID == listID {
			items = append(items, sequence.Item{ID: t.ID, Position: t.Position})
		}
	}
	return items
}

func (b *Board) shiftLists(shifts []sequence.Shift) {
	for _, s := range shifts {
		if l, ok := b.lists[s.ID]; ok {
			l.Position += s.Delta
		}
	}
}

func (b *Board) shiftTasks(shifts []sequence.Shift) {
	for _, s := range shifts {
		if t, ok := b.tasks[s.ID]; ok {
			t.Position += s.Delta
		}
	}
}

// ApplyListCreated inserts a new list. A replayed create for a known
// ID is dropped.
func (b *Board) ApplyListCreated(l List) {
	if _, ok := b.lists[l.ID]; ok {
		return
	}
	copied := l
	b.lists[l.ID] = &copied
}

// ApplyListRenamed updates a list title. Unknown lists are ignored.
func (b *Board) ApplyListRenamed(id, title string) {
	if l, ok := b.lists[id]; ok {
		l.Title = title
	}
}

// ApplyListMoved reorders a list among its siblings, shifting the
// displaced range the same way the server does.
func (b *Board) ApplyListMoved(id string, newPos int) {
	l, ok := b.lists[id]
	if !ok || l.Position == newPos {
		return
	}
	newPos = sequence.Clamp(newPos, len(b.lists)-1)
	shifts := sequence.Reorder(b.listSiblings(), id, l.Position, newPos)
	b.shiftLists(shifts)
	l.Position = newPos
}

// ApplyListDeleted removes a list and its tasks and closes the gap.
func (b *Board) ApplyListDeleted(id string) {
	l, ok := b.lists[id]
	if !ok {
		return
	}
	delete(b.lists, id)
	for tid, t := range b.tasks {
		if t.ListID == id {
			delete(b.tasks, tid)
		}
	}
	b.shiftLists(sequence.DeleteShift(b.listSiblings(), l.Position))
}

// ApplyTaskCreated inserts a new task. A replayed create is dropped.
func (b *Board) ApplyTaskCreated(t Task) {
	if _, ok := b.tasks[t.ID]; ok {
		return
	}
	copied := t
	b.tasks[t.ID] = &copied
}

// ApplyTaskUpdated replaces a task's content fields. Unknown tasks are
// ignored.
func (b *Board) ApplyTaskUpdated(id, title, description string) {
	if t, ok := b.tasks[id]; ok {
		t.Title = title
		t.Description = description
	}
}

// ApplyTaskMoved relocates a task, deriving the sibling shifts from
// the task's current location in the mirror. When the task is already
// where the event says, the event is an echo and nothing changes.
func (b *Board) ApplyTaskMoved(id, destListID string, newPos int) {
	t, ok := b.tasks[id]
	if !ok {
		return
	}
	if t.ListID == destListID && t.Position == newPos {
		return
	}

	if t.ListID == destListID {
		newPos = sequence.Clamp(newPos, len(b.taskSiblings(destListID))-1)
		shifts := sequence.Reorder(b.taskSiblings(destListID), id, t.Position, newPos)
		b.shiftTasks(shifts)
		t.Position = newPos
		return
	}

	source := b.taskSiblings(t.ListID)
	dest := b.taskSiblings(destListID)
	newPos = sequence.Clamp(newPos, len(dest))
	sourceShifts, destShifts := sequence.CrossParentMove(source, dest, t.Position, newPos)
	b.shiftTasks(sourceShifts)
	b.shiftTasks(destShifts)
	t.ListID = destListID
	t.Position = newPos
}

// ApplyTaskDeleted removes a task and closes the gap in its list.
func (b *Board) ApplyTaskDeleted(id string) {
	t, ok := b.tasks[id]
	if !ok {
		return
	}
	listID, pos := t.ListID, t.Position
	delete(b.tasks, id)
	b.shiftTasks(sequence.DeleteShift(b.taskSiblings(listID), pos))
}
