package crawl

import "net/url"

// frontierItem is one discovered-but-not-yet-visited page. Every child
// inherits the seed's site identity and target depth from its parent.
type frontierItem struct {
	url    *url.URL
	site   string
	depth  int
	target int
}

// frontier is an explicit FIFO queue with a visited set keyed by normalized
// URL. The seen set is marked at enqueue time, so cyclic and self-referential
// link graphs terminate naturally and each page is queued at most once per
// job.
type frontier struct {
	queue []frontierItem
	seen  map[string]struct{}
}

func newFrontier() *frontier {
	return &frontier{seen: make(map[string]struct{})}
}

// push enqueues the item unless its normalized URL was already seen. It
// reports whether the item was accepted.
func (f *frontier) push(item frontierItem) bool {
	norm, err := NormalizeURL(item.url.String())
	if err != nil {
		return false
	}
	if _, ok := f.seen[norm]; ok {
		return false
	}
	f.seen[norm] = struct{}{}
	f.queue = append(f.queue, item)
	return true
}

// pop dequeues the next item in breadth-first order.
func (f *frontier) pop() (frontierItem, bool) {
	if len(f.queue) == 0 {
		return frontierItem{}, false
	}
	item := f.queue[0]
	f.queue = f.queue[1:]
	return item, true
}

func (f *frontier) empty() bool {
	return len(f.queue) == 0
}
