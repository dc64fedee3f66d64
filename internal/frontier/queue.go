package frontier

import "github.com/uridolan77/WebScraping-sub002/internal/crawler"

type item struct {
	target crawler.CrawlTarget
	seq    uint64
	maxIdx int
	minIdx int
}

// pollHeap orders by priority desc, then discovery order asc.
type pollHeap []*item

func (h pollHeap) Len() int { return len(h) }

func (h pollHeap) Less(i, j int) bool {
	if h[i].target.Priority != h[j].target.Priority {
		return h[i].target.Priority > h[j].target.Priority
	}
	return h[i].seq < h[j].seq
}

func (h pollHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].maxIdx = i
	h[j].maxIdx = j
}

func (h *pollHeap) Push(x any) {
	it := x.(*item)
	it.maxIdx = len(*h)
	*h = append(*h, it)
}

func (h *pollHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.maxIdx = -1
	*h = old[:n-1]
	return it
}

// evictHeap orders by priority asc, then discovery order desc, so the newest
// of the lowest-priority entries is evicted first.
type evictHeap []*item

func (h evictHeap) Len() int { return len(h) }

func (h evictHeap) Less(i, j int) bool {
	if h[i].target.Priority != h[j].target.Priority {
		return h[i].target.Priority < h[j].target.Priority
	}
	return h[i].seq > h[j].seq
}

func (h evictHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].minIdx = i
	h[j].minIdx = j
}

func (h *evictHeap) Push(x any) {
	it := x.(*item)
	it.minIdx = len(*h)
	*h = append(*h, it)
}

func (h *evictHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.minIdx = -1
	*h = old[:n-1]
	return it
}
