package lockfreelist

import (
	"fmt"
	"strings"
)

// LockFreeList is a sorted linked-list set using logical-then-physical
// deletion via compare-and-swap, with hazard-pointer-based reclamation of
// unlinked nodes. Every pointer dereferenced during traversal is published
// to a hazard slot and revalidated first, so a node is never freed while an
// operation still references it.
type LockFreeList[K comparable] struct {
	less    Less[K]
	head    *Node[K]
	tail    *Node[K]
	reg     *hpRegistry[K]
	metrics *Metrics
}

var _ Set[int] = (*LockFreeList[int])(nil)

// NewLockFreeList returns an empty list ordered by less. Each list owns its
// hazard-pointer registry; opts tune the registry's table size and retire
// threshold.
func NewLockFreeList[K comparable](less Less[K], opts ...Option) *LockFreeList[K] {
	head, tail := newSentinels[K]()
	rng := newRNG()
	return &LockFreeList[K]{
		less:    less,
		head:    head,
		tail:    tail,
		reg:     newRegistry[K](NewConfig(opts...)),
		metrics: newMetrics(rng),
	}
}

// search returns the adjacent pair (left, right) for key: left is the last
// unmarked node ordering before key, right the first unmarked node at or
// after it (possibly tail), with left.next == right as observed by the
// returned snapshot. Marked runs found on the way are spliced out with one
// CAS; any validation failure restarts the walk from head.
//
// Every node is published to a hazard slot before its fields are trusted:
// slot 0 holds the current node, slot 1 its successor, slot 2 the lookahead
// successor, slot 3 the committed left node. After publishing, the source
// link is reloaded and both ends are checked against the retired flag; a
// mismatch means the reclaimer may already own the node.
func (l *LockFreeList[K]) search(rec *hpRecord[K], key K) (left, right *Node[K]) {
retry:
	for {
		var leftNode, leftNodeNext *Node[K]

		t := l.head
		rec.protect(hpSlotCurr, t)
		tNext := l.head.next.Load()
		rec.protect(hpSlotNext, tNext)
		if searchValidateHook != nil {
			searchValidateHook(t, tNext)
		}
		if l.head.next.Load() != tNext || t.retired.Load() || tNext.retired.Load() {
			continue retry
		}

		for {
			if !t.marked.Load() {
				leftNode = t
				rec.protect(hpSlotLeft, leftNode)
				if leftNode.retired.Load() {
					continue retry
				}
				leftNodeNext = tNext
			}

			t = tNext
			if t == l.tail {
				break
			}
			tNextNew := t.next.Load()
			if tNextNew == nil {
				// Poisoned successor: t was reclaimed under us.
				continue retry
			}
			rec.protect(hpSlotAhead, tNextNew)
			if searchValidateHook != nil {
				searchValidateHook(t, tNextNew)
			}
			// The successor can be physically unlinked and reclaimed
			// between the load and the protect.
			if t.next.Load() != tNextNew || t.retired.Load() || tNextNew.retired.Load() {
				continue retry
			}
			tNext = tNextNew

			// Rotate the hazard slots so t and tNext stay protected
			// after slot 2 is overwritten on the next step.
			rec.protect(hpSlotCurr, t)
			rec.protect(hpSlotNext, tNext)

			if !t.marked.Load() && !l.less(t.key, key) {
				break
			}
		}
		right = t

		if leftNodeNext == right {
			if right != l.tail && right.marked.Load() {
				continue
			}
			return leftNode, right
		}

		// Splice out the marked run between left and right.
		if leftNode.next.CompareAndSwap(leftNodeNext, right) {
			if right != l.tail && right.marked.Load() {
				continue
			}
			return leftNode, right
		}
		l.metrics.IncSearchCASRetry()
	}
}

// Insert adds key to the set. It returns false if the key is already
// present. The successful link CAS is the linearization point.
func (l *LockFreeList[K]) Insert(key K) bool {
	rec := l.reg.acquire()
	defer l.reg.release(rec)

	n := newNode(key)
	for {
		left, right := l.search(rec, key)
		if right != l.tail && right.key == key {
			return false
		}

		n.next.Store(right)
		// The slots still protect left and right through the CAS. On
		// success they are not cleared here; the node is reachable and
		// later operations re-protect it themselves.
		if left.next.CompareAndSwap(right, n) {
			if left.marked.Load() {
				// The predecessor was logically deleted around the
				// link CAS, so the new node may hang off a spliced-out
				// run. Re-search: it either relinks the node while
				// cleaning the run or proves the key absent.
				_, r2 := l.search(rec, key)
				if r2 != n {
					if r2 != l.tail && r2.key == key {
						return false
					}
					l.metrics.IncInsertCASRetry()
					n = newNode(key)
					continue
				}
			}
			l.metrics.IncInsertCASSuccess()
			l.metrics.AddLen(1)
			return true
		}
		l.metrics.IncInsertCASRetry()
	}
}

// Remove deletes key from the set. It returns false if the key is absent.
// The successful CAS on the marked flag is the linearization point; the
// physical unlink may be finished by a later search, so Remove reports true
// even when its own unlink CAS loses.
func (l *LockFreeList[K]) Remove(key K) bool {
	rec := l.reg.acquire()
	defer l.reg.release(rec)

	for {
		left, right := l.search(rec, key)
		if right == l.tail || right.key != key {
			return false
		}

		rightNext := right.next.Load()
		rec.protect(hpSlotSucc, rightNext)
		if right.next.Load() != rightNext || right.retired.Load() {
			continue
		}

		if !right.marked.CompareAndSwap(false, true) {
			// Lost to a concurrent remove of the same key; search
			// again to see whether another live node exists.
			continue
		}
		l.metrics.AddLen(-1)

		// Retire only when the predecessor is known live: if left was
		// itself marked, the unlink may have happened off the live
		// chain, leaving right reachable elsewhere. Such nodes are
		// cleaned by later searches instead of being reclaimed.
		if left.next.CompareAndSwap(right, rightNext) && !left.marked.Load() {
			l.reg.retire(rec, right)
		}
		return true
	}
}

// Find reports whether key is present. search only returns an unmarked
// right node, so the mark load inside it is the linearization point: a
// concurrently marked node reads as absent.
func (l *LockFreeList[K]) Find(key K) bool {
	rec := l.reg.acquire()
	defer l.reg.release(rec)

	_, right := l.search(rec, key)
	return right != l.tail && right.key == key
}

// Len returns the number of live keys.
func (l *LockFreeList[K]) Len() int {
	return int(l.metrics.Len())
}

// InsertCASStats reports the total number of CAS retries and successful
// insertions at the list's link point. The counters enable contention
// analysis in benchmarks.
func (l *LockFreeList[K]) InsertCASStats() (retries, successes int64) {
	return l.metrics.InsertCASStats()
}

// ReclaimStats reports how many unlinked nodes the registry has freed and
// how many were still hazard-held at the last scan.
func (l *LockFreeList[K]) ReclaimStats() (reclaimed, deferred int64) {
	return l.reg.stats()
}

// Head returns the head sentinel.
func (l *LockFreeList[K]) Head() *Node[K] {
	if l == nil || l.head == nil {
		panic(ErrMalformedList)
	}
	return l.head
}

// Front returns the first node after the head sentinel. Diagnostic; not
// safe against concurrent mutation.
func (l *LockFreeList[K]) Front() *Node[K] { return l.Head().next.Load() }

// Tail returns the tail sentinel.
func (l *LockFreeList[K]) Tail() *Node[K] { return l.tail }

// Next returns n's successor. Diagnostic; not safe against concurrent
// mutation.
func (l *LockFreeList[K]) Next(n *Node[K]) *Node[K] { return n.next.Load() }

// Range calls fn on each live key in ascending order until fn returns
// false. Requires a quiescent list.
func (l *LockFreeList[K]) Range(fn func(key K) bool) {
	for curr := l.Front(); curr != nil && curr != l.tail; curr = curr.next.Load() {
		if curr.marked.Load() {
			continue
		}
		if !fn(curr.key) {
			return
		}
	}
}

// String renders the live chain as "k1 -> k2 -> NULL". Diagnostic only.
func (l *LockFreeList[K]) String() string {
	var sb strings.Builder
	l.Range(func(key K) bool {
		fmt.Fprintf(&sb, "%v -> ", key)
		return true
	})
	sb.WriteString("NULL")
	return sb.String()
}

// PrintList dumps the live chain to stdout in ascending key order. Not
// thread-safe.
func (l *LockFreeList[K]) PrintList() {
	fmt.Println(l.String())
}

// Close retires every node of the chain, sentinels included, then drains
// the registry so nothing outlives the list but hazard-held nodes. The list
// must be quiescent; it is unusable afterwards.
func (l *LockFreeList[K]) Close() {
	rec := l.reg.acquire()
	curr := l.head
	for curr != nil {
		next := curr.next.Load()
		l.reg.retire(rec, curr)
		curr = next
	}
	l.reg.release(rec)
	l.reg.drain()
}
