package submitter

import "container/heap"

// priorityQueue orders PendingOperations by (NextAttemptAfter ASC with
// the zero value first, SortKey ASC as a tie-break), per §4.I. It
// implements container/heap.Interface directly; callers use its
// push/popReady methods instead of the heap package so the
// ordering invariant lives in one place.
type priorityQueue struct {
	items []PendingOperation
}

func newPriorityQueue() *priorityQueue {
	pq := &priorityQueue{}
	heap.Init(pq)
	return pq
}

func (pq *priorityQueue) Len() int { return len(pq.items) }

func (pq *priorityQueue) Less(i, j int) bool {
	a, b := pq.items[i], pq.items[j]
	ta, tb := a.NextAttemptAfter(), b.NextAttemptAfter()
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a.SortKey() < b.SortKey()
}

func (pq *priorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

func (pq *priorityQueue) Push(x any) {
	pq.items = append(pq.items, x.(PendingOperation))
}

func (pq *priorityQueue) Pop() any {
	n := len(pq.items)
	item := pq.items[n-1]
	pq.items[n-1] = nil
	pq.items = pq.items[:n-1]
	return item
}

// push inserts op, preserving heap order.
func (pq *priorityQueue) push(op PendingOperation) {
	heap.Push(pq, op)
}

// popReady removes and returns the operation with the earliest
// NextAttemptAfter, or ok=false if the queue is empty.
func (pq *priorityQueue) popReady() (PendingOperation, bool) {
	if pq.Len() == 0 {
		return nil, false
	}
	return heap.Pop(pq).(PendingOperation), true
}
