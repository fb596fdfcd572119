package engine

import (
	"sync"

	"github.com/kiln/kiln/pkg/types"
)

// BuildTask is the mutable unit a worker executes: one item plus the lane
// it was claimed on. The lane is a reporting correlator for interleaved
// progress lines, never part of the item's identity.
type BuildTask struct {
	Item types.ContentItem
	Lane int
}

// workList is the shared claim queue the scheduler seeds from the project.
// Items are handed out in seeding order; claim is the only cross-worker
// synchronization point during item execution.
type workList struct {
	mu    sync.Mutex
	items []types.ContentItem
	next  int
}

func newWorkList(items []types.ContentItem) *workList {
	return &workList{items: items}
}

// claim atomically pops the next unclaimed item
func (w *workList) claim(lane int) (*BuildTask, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.next >= len(w.items) {
		return nil, false
	}
	task := &BuildTask{Item: w.items[w.next], Lane: lane}
	w.next++
	return task, true
}

// remaining returns the number of unclaimed items
func (w *workList) remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items) - w.next
}
