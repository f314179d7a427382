package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// TitleBlock is how long a title stays blocked after an investigation with
// that title is accepted, to stop near-duplicate investigations (same
// correlated alert re-enqueued by a second poll cycle) from piling up.
const TitleBlock = 10 * time.Minute

// Item is one investigation waiting for a worker.
type Item struct {
	Investigation models.Investigation
	EnqueuedAt    time.Time
}

// priority is the queue's comparison key: lower number sorts first.
var priorityRank = map[models.Severity]int{
	models.SeverityCritical: 0,
	models.SeverityHigh:     1,
	models.SeverityMedium:   2,
	models.SeverityLow:      3,
}

// heapEntry is the container/heap element. Ties in priority preserve FIFO
// order by enqueue time.
type heapEntry struct {
	item     Item
	priority int
}

type itemHeap []heapEntry

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].item.EnqueuedAt.Before(h[j].item.EnqueuedAt)
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)   { *h = append(*h, x.(heapEntry)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Stats is a point-in-time snapshot for observability endpoints.
type Stats struct {
	Size            int            `json:"size"`
	BySeverity      map[string]int `json:"by_severity"`
	TitleBlockCount int            `json:"title_block_count"`
}

// PriorityQueue is a severity-ordered blocking queue of investigations,
// deduplicated by investigation id and, within a 10-minute window, by title.
// A single mutex guards both the heap and the dedup maps, matching the
// process-local, single-mutex discipline the rest of the engine's shared
// structures follow.
type PriorityQueue struct {
	mu      sync.Mutex
	notify  chan struct{}
	heap    itemHeap
	seenIDs map[string]bool
	blocked map[string]time.Time // title -> blocked until
	maxSize int
}

// NewPriorityQueue returns an empty queue. maxSize <= 0 means unbounded.
func NewPriorityQueue(maxSize int) *PriorityQueue {
	return &PriorityQueue{
		notify:  make(chan struct{}, 1),
		seenIDs: make(map[string]bool),
		blocked: make(map[string]time.Time),
		maxSize: maxSize,
	}
}

// Add enqueues inv, rejecting it if its id was already seen, the queue is at
// capacity, or its title is currently time-blocked. On acceptance the title
// is blocked for TitleBlock and a waiting consumer (if any) is woken.
func (q *PriorityQueue) Add(inv models.Investigation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(inv, time.Now())
}

func (q *PriorityQueue) addLocked(inv models.Investigation, now time.Time) bool {
	id := inv.ID.String()
	if q.seenIDs[id] {
		return false
	}
	if q.maxSize > 0 && len(q.heap) >= q.maxSize {
		return false
	}
	if until, ok := q.blocked[inv.Title]; ok && until.After(now) {
		return false
	}

	q.seenIDs[id] = true
	q.blocked[inv.Title] = now.Add(TitleBlock)
	heap.Push(&q.heap, heapEntry{
		item:     Item{Investigation: inv, EnqueuedAt: now},
		priority: priorityRank[inv.MaxSeverity],
	})

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// AddBatch enqueues every investigation in invs and returns how many were
// accepted.
func (q *PriorityQueue) AddBatch(invs []models.Investigation) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	accepted := 0
	for _, inv := range invs {
		if q.addLocked(inv, now) {
			accepted++
		}
	}
	return accepted
}

// Get blocks until an item is available or timeout elapses, then pops the
// highest-priority item. timeout <= 0 means block until an item arrives.
func (q *PriorityQueue) Get(timeout time.Duration) (Item, bool) {
	var deadlineC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadlineC = timer.C
	}

	for {
		if item, ok := q.tryPop(); ok {
			return item, true
		}
		select {
		case <-q.notify:
		case <-deadlineC:
			return Item{}, false
		}
	}
}

func (q *PriorityQueue) tryPop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return Item{}, false
	}
	e := heap.Pop(&q.heap).(heapEntry)
	return e.item, true
}

// MarkCompleted records that the investigation with the given id and title
// has finished processing. The title block is purely time-based, so this
// exists only to give callers (and /queue/stats) a completion signal to log
// or export — it does not clear any state.
func (q *PriorityQueue) MarkCompleted(id, title string) {}

// Peek returns the highest-priority item without removing it.
func (q *PriorityQueue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return Item{}, false
	}
	return q.heap[0].item, true
}

// Size returns the number of queued items.
func (q *PriorityQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// IsEmpty reports whether the queue currently holds no items.
func (q *PriorityQueue) IsEmpty() bool {
	return q.Size() == 0
}

// Clear empties the heap and the dedup/title-block maps.
func (q *PriorityQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heap = nil
	q.seenIDs = make(map[string]bool)
	q.blocked = make(map[string]time.Time)
}

// StatsSnapshot returns a point-in-time view of queue occupancy.
func (q *PriorityQueue) StatsSnapshot() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	bySeverity := map[string]int{}
	for _, e := range q.heap {
		bySeverity[string(e.item.Investigation.MaxSeverity)]++
	}

	now := time.Now()
	blockedCount := 0
	for _, until := range q.blocked {
		if until.After(now) {
			blockedCount++
		}
	}

	return Stats{
		Size:            len(q.heap),
		BySeverity:      bySeverity,
		TitleBlockCount: blockedCount,
	}
}
