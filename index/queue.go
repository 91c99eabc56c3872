package index

import "container/heap"

// Compile time checks to ensure both queues satisfy the heap interface.
var _ heap.Interface = (*resultQueue)(nil)
var _ heap.Interface = (*traversalQueue)(nil)

// resultItem is a scored candidate kept during top-k selection.
type resultItem struct {
	id       uint32
	distance float32
}

// resultQueue is a max-heap of result items ordered by distance, so the
// current worst candidate sits on top and can be evicted cheaply.
type resultQueue []resultItem

func (q resultQueue) Len() int           { return len(q) }
func (q resultQueue) Less(i, j int) bool { return q[i].distance > q[j].distance }
func (q resultQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *resultQueue) Push(x any)        { *q = append(*q, x.(resultItem)) }
func (q resultQueue) Top() resultItem    { return q[0] }

func (q *resultQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// traversalItem is a pending tree node during forest traversal, prioritized
// by the smallest margin seen on the path from its root.
type traversalItem struct {
	node     *treeNode
	priority float32
}

// traversalQueue is a max-heap by priority: the most promising subtree is
// expanded first.
type traversalQueue []traversalItem

func (q traversalQueue) Len() int           { return len(q) }
func (q traversalQueue) Less(i, j int) bool { return q[i].priority > q[j].priority }
func (q traversalQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *traversalQueue) Push(x any)        { *q = append(*q, x.(traversalItem)) }

func (q *traversalQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
