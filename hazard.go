package lockfreelist

import "sync/atomic"

// Hazard slot roles used by the lock-free traversal. Slot assignments follow
// the search algorithm: the current node, its successor, a lookahead
// successor, the committed left node, and the remove target's successor.
const (
	hpSlotCurr = iota
	hpSlotNext
	hpSlotAhead
	hpSlotLeft
	hpSlotSucc

	hpSlotCount
)

// hpRecord is one participant's entry in the registry table. The owner word
// is claimed by CAS; while claimed, the slot array and retired buffer are
// written only by the claimant. Other participants read the slots during
// reclaim scans.
type hpRecord[K comparable] struct {
	owner   atomic.Int32
	slots   []atomic.Pointer[Node[K]]
	retired []*Node[K]
	// Pad to a cache line multiple to prevent false sharing between
	// records.
	_ [72]byte
}

func (r *hpRecord[K]) protect(slot int, n *Node[K]) {
	r.slots[slot].Store(n)
}

func (r *hpRecord[K]) clear(slot int) {
	r.slots[slot].Store(nil)
}

// hpRegistry gates reclamation of nodes unlinked from a LockFreeList. Each
// list instance owns one registry so reclaim scopes never bleed between
// lists.
type hpRegistry[K comparable] struct {
	records   []hpRecord[K]
	threshold int

	reclaimed atomic.Int64
	deferred  atomic.Int64
}

func newRegistry[K comparable](cfg Config) *hpRegistry[K] {
	reg := &hpRegistry[K]{
		records:   make([]hpRecord[K], cfg.maxParticipants),
		threshold: cfg.retireThreshold,
	}
	for i := range reg.records {
		reg.records[i].slots = make([]atomic.Pointer[Node[K]], cfg.slotsPerParticipant)
	}
	return reg
}

// acquire claims a free record for the calling operation. It panics with
// ErrTooManyParticipants when every record is taken: that is a fatal
// configuration error, not contention.
func (g *hpRegistry[K]) acquire() *hpRecord[K] {
	for i := range g.records {
		rec := &g.records[i]
		if rec.owner.CompareAndSwap(0, 1) {
			return rec
		}
	}
	panic(ErrTooManyParticipants)
}

// release returns a record to the table. Slots are cleared so nodes
// protected by the finished operation become reclaimable; the retired
// buffer stays with the record and is drained by later owners.
func (g *hpRegistry[K]) release(rec *hpRecord[K]) {
	for i := range rec.slots {
		rec.slots[i].Store(nil)
	}
	rec.owner.Store(0)
}

// isProtected reports whether any occupied record currently publishes n.
// A linear O(records*slots) read of atomics; it runs only during reclaim
// scans, so the cost amortizes over the retire threshold.
func (g *hpRegistry[K]) isProtected(n *Node[K]) bool {
	for i := range g.records {
		rec := &g.records[i]
		if rec.owner.Load() == 0 {
			continue
		}
		for j := range rec.slots {
			if rec.slots[j].Load() == n {
				return true
			}
		}
	}
	return false
}

// retire appends n to the record's retired buffer and, once the buffer
// crosses the threshold, scans it, reclaiming every entry no hazard slot
// references.
func (g *hpRegistry[K]) retire(rec *hpRecord[K], n *Node[K]) {
	rec.retired = append(rec.retired, n)
	if len(rec.retired) >= g.threshold {
		g.scan(rec)
	}
}

// scan reclaims the unprotected entries of rec's retired buffer and keeps
// the rest for a later pass.
func (g *hpRegistry[K]) scan(rec *hpRecord[K]) {
	kept := rec.retired[:0]
	for _, n := range rec.retired {
		if g.isProtected(n) {
			kept = append(kept, n)
			continue
		}
		g.reclaim(n)
	}
	for i := len(kept); i < len(rec.retired); i++ {
		rec.retired[i] = nil
	}
	rec.retired = kept
	g.deferred.Store(int64(len(kept)))
}

// reclaim frees a node. The retired flag is set before the successor link
// is poisoned so a racing traversal fails its revalidation instead of
// walking through freed memory.
func (g *hpRegistry[K]) reclaim(n *Node[K]) {
	n.retired.Store(true)
	n.next.Store(nil)
	g.reclaimed.Add(1)
	if reclaimHook != nil {
		reclaimHook(n)
	}
}

// drain scans every record's retired buffer, claimed or not. Only valid on
// a quiescent registry; used at list shutdown.
func (g *hpRegistry[K]) drain() {
	for i := range g.records {
		g.scan(&g.records[i])
	}
}

// stats returns the number of nodes reclaimed so far and the number still
// deferred by hazard protection at the last scan.
func (g *hpRegistry[K]) stats() (reclaimed, deferred int64) {
	return g.reclaimed.Load(), g.deferred.Load()
}
