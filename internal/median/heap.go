package median

import "container/heap"

// maxHeap holds the lower half of seen prices, largest on top.
type maxHeap []float64

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i] > h[j] }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)         { *h = append(*h, x.(float64)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// minHeap holds the upper half of seen prices, smallest on top.
type minHeap []float64

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)         { *h = append(*h, x.(float64)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// runningMedian maintains the median of a price stream via two heaps:
// a max-heap of the lower half and a min-heap of the upper half,
// rebalanced so their sizes differ by at most one.
type runningMedian struct {
	lower maxHeap // |lower| >= |upper|
	upper minHeap
}

func (rm *runningMedian) insert(x float64) {
	if len(rm.lower) == 0 || x <= rm.lower[0] {
		heap.Push(&rm.lower, x)
	} else {
		heap.Push(&rm.upper, x)
	}

	if len(rm.lower) > len(rm.upper)+1 {
		moved := heap.Pop(&rm.lower).(float64)
		heap.Push(&rm.upper, moved)
	} else if len(rm.upper) > len(rm.lower) {
		moved := heap.Pop(&rm.upper).(float64)
		heap.Push(&rm.lower, moved)
	}
}

func (rm *runningMedian) median() float64 {
	if len(rm.lower) > len(rm.upper) {
		return rm.lower[0]
	}
	return (rm.lower[0] + rm.upper[0]) / 2
}
