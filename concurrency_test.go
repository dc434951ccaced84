package lockfreelist

import (
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"testing"
	"time"
)

// lfChain is the raw-chain surface shared by the two lock-free variants.
type lfChain interface {
	Head() *Node[int]
	Tail() *Node[int]
	Next(*Node[int]) *Node[int]
}

// checkChainInvariants walks the physical chain of a quiescent lock-free
// list: strictly ascending keys between the sentinels, no marked and no
// reclaimed nodes.
func checkChainInvariants(t *testing.T, list lfChain) {
	t.Helper()
	var prev *Node[int]
	for curr := list.Next(list.Head()); curr != list.Tail(); curr = list.Next(curr) {
		if curr == nil {
			t.Fatalf("chain broken: nil successor before tail")
		}
		if curr.Marked() {
			t.Fatalf("marked node with key %d still linked after quiesce", curr.Key())
		}
		if curr.retired.Load() {
			t.Fatalf("reclaimed node with key %d reachable from head", curr.Key())
		}
		if prev != nil && !intLess(prev.Key(), curr.Key()) {
			t.Fatalf("chain out of order: %d before %d", prev.Key(), curr.Key())
		}
		prev = curr
	}
}

// sweep runs a Find over [0, bound] so every marked run left behind by a
// lost unlink CAS gets physically spliced out before invariants are checked.
// The inclusive bound cleans a trailing run below the tail sentinel.
func sweep(list Set[int], bound int) {
	for k := 0; k <= bound; k++ {
		list.Find(k)
	}
}

func TestConcurrentMixedOperationsStorm(t *testing.T) {
	t.Cleanup(func() {
		if t.Failed() {
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	})

	seed := time.Now().UnixNano()
	t.Logf("test seed=%d", seed)

	for _, v := range variants() {
		t.Run(v.name, func(t *testing.T) {
			list := v.make()

			const keySpace = 128
			goroutines := max(2*runtime.GOMAXPROCS(0), 4)
			const operationsPerGoroutine = 2000

			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				goroutineSeed := seed + int64(g)
				go func(s int64) {
					defer wg.Done()
					r := rand.New(rand.NewSource(s))
					for i := 0; i < operationsPerGoroutine; i++ {
						key := r.Intn(keySpace)
						switch r.Intn(3) {
						case 0:
							list.Insert(key)
						case 1:
							list.Remove(key)
						case 2:
							list.Find(key)
						}
					}
				}(goroutineSeed)
			}
			wg.Wait()

			sweep(list, keySpace)

			// Quiescent validation: ordered, unique, consistent. Keys are
			// collected before Find is called: CoarseGrainList.Range holds
			// its mutex while the callback runs.
			var prevKey *int
			count := 0
			for _, k := range collect(list) {
				if prevKey != nil && !intLess(*prevKey, k) {
					t.Fatalf("range out of order: previous=%d current=%d", *prevKey, k)
				}
				if !list.Find(k) {
					t.Fatalf("range returned key %d, but Find reports missing", k)
				}
				prevKey = new(int)
				*prevKey = k
				count++
			}
			if got := list.Len(); got < 0 {
				t.Fatalf("Len should never be negative, got %d", got)
			} else if _, coarse := list.(*CoarseGrainList[int]); coarse && got != count {
				t.Fatalf("Len reports %d but range saw %d keys", got, count)
			}

			if chain, ok := list.(lfChain); ok {
				checkChainInvariants(t, chain)
			}
		})
	}
}

func TestPartitionedConcurrentInsert(t *testing.T) {
	const (
		workers  = 8
		perRange = 100
	)

	for _, v := range variants() {
		t.Run(v.name, func(t *testing.T) {
			list := v.make()

			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for k := id * perRange; k < (id+1)*perRange; k++ {
						if !list.Insert(k) {
							t.Errorf("insert of partitioned key %d failed", k)
							return
						}
					}
				}(w)
			}
			wg.Wait()

			for k := 0; k < workers*perRange; k++ {
				if !list.Find(k) {
					t.Fatalf("key %d missing after partitioned insert", k)
				}
			}
			if got := list.Len(); got != workers*perRange {
				t.Fatalf("expected %d keys, Len reports %d", workers*perRange, got)
			}

			prev := -1
			list.Range(func(k int) bool {
				if k != prev+1 {
					t.Fatalf("expected contiguous keys, got %d after %d", k, prev)
				}
				prev = k
				return true
			})

			if chain, ok := list.(lfChain); ok {
				checkChainInvariants(t, chain)
			}
		})
	}
}

// Each worker inserts even offsets in its own range and removes the key it
// inserted one step earlier, backing off exponentially if a remove fails.
// The list must drain completely.
func TestFullConcurrentChurn(t *testing.T) {
	const (
		workers       = 8
		numOperations = 100
	)

	for _, v := range variants() {
		t.Run(v.name, func(t *testing.T) {
			list := v.make()

			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					base := id * numOperations
					for i := 0; i < numOperations; i++ {
						if i%2 == 0 {
							list.Insert(base + i)
							continue
						}
						for attempt := 0; attempt < 3; attempt++ {
							if list.Remove(base + i - 1) {
								break
							}
							time.Sleep(time.Duration(1<<attempt) * time.Millisecond)
						}
					}
				}(w)
			}
			wg.Wait()

			sweep(list, workers*numOperations)

			if got := list.Len(); got != 0 {
				t.Fatalf("expected empty list after churn, Len reports %d", got)
			}
			switch l := list.(type) {
			case *LockFreeList[int]:
				if l.Front() != l.Tail() {
					t.Fatalf("expected front == tail after churn")
				}
			case *LockFreeListNoReclaim[int]:
				if l.Front() != l.Tail() {
					t.Fatalf("expected front == tail after churn")
				}
			case *CoarseGrainList[int]:
				if l.Front() != l.Tail() {
					t.Fatalf("expected front == tail after churn")
				}
			}
		})
	}
}

// Workers insert even keys in their own range and attempt removes of odd
// keys that were never inserted. Failed removes must leave no trace.
func TestInsertRemoveAbsentMix(t *testing.T) {
	const (
		workers       = 8
		numOperations = 100
	)

	for _, v := range variants() {
		t.Run(v.name, func(t *testing.T) {
			list := v.make()

			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for i := 0; i < numOperations; i++ {
						if i%2 == 0 {
							list.Insert(i + id*numOperations)
						} else {
							list.Remove(i)
						}
					}
				}(w)
			}
			wg.Wait()

			expected := make(map[int]bool)
			for id := 0; id < workers; id++ {
				for i := 0; i < numOperations; i += 2 {
					expected[i+id*numOperations] = true
				}
			}

			count := 0
			prev := -1
			list.Range(func(k int) bool {
				if !expected[k] {
					t.Fatalf("unexpected key %d in list", k)
				}
				if prev >= k {
					t.Fatalf("range out of order: %d after %d", k, prev)
				}
				prev = k
				count++
				return true
			})
			if count != len(expected) {
				t.Fatalf("expected %d keys, range saw %d", len(expected), count)
			}
		})
	}
}

func TestConcurrentDuplicateInsertSingleWinner(t *testing.T) {
	const contenders = 16

	for _, v := range variants() {
		t.Run(v.name, func(t *testing.T) {
			list := v.make()

			var wg sync.WaitGroup
			results := make([]bool, contenders)
			start := make(chan struct{})
			for i := 0; i < contenders; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					results[i] = list.Insert(99)
				}(i)
			}
			close(start)
			wg.Wait()

			wins := 0
			for _, ok := range results {
				if ok {
					wins++
				}
			}
			if wins != 1 {
				t.Fatalf("expected exactly one winning insert, got %d", wins)
			}
			if got := list.Len(); got != 1 {
				t.Fatalf("expected a single key, Len reports %d", got)
			}
		})
	}
}

func TestConcurrentRemoveSingleWinner(t *testing.T) {
	const contenders = 16

	for _, v := range variants() {
		t.Run(v.name, func(t *testing.T) {
			list := v.make()
			if !list.Insert(7) {
				t.Fatal("setup insert failed")
			}

			var wg sync.WaitGroup
			results := make([]bool, contenders)
			start := make(chan struct{})
			for i := 0; i < contenders; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					results[i] = list.Remove(7)
				}(i)
			}
			close(start)
			wg.Wait()

			wins := 0
			for _, ok := range results {
				if ok {
					wins++
				}
			}
			if wins != 1 {
				t.Fatalf("expected exactly one winning remove, got %d", wins)
			}
			if list.Find(7) {
				t.Fatal("key still present after removal")
			}
			if list.Remove(7) {
				t.Fatal("subsequent remove should fail")
			}
		})
	}
}

// Churn with an aggressive retire threshold so reclamation runs constantly
// while traversals are in flight. No reclaimed node may ever be reachable,
// and the structure must survive intact.
func TestHazardReclamationUnderChurn(t *testing.T) {
	t.Cleanup(func() {
		if t.Failed() {
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	})

	seed := time.Now().UnixNano()
	t.Logf("test seed=%d", seed)

	list := NewLockFreeList[int](intLess, WithRetireThreshold(8))

	const keySpace = 64
	goroutines := max(2*runtime.GOMAXPROCS(0), 8)
	const operationsPerGoroutine = 5000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(s int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(s))
			for i := 0; i < operationsPerGoroutine; i++ {
				key := r.Intn(keySpace)
				switch r.Intn(3) {
				case 0:
					list.Insert(key)
				case 1:
					list.Remove(key)
				case 2:
					list.Find(key)
				}
			}
		}(seed + int64(g))
	}
	wg.Wait()

	sweep(list, keySpace)
	checkChainInvariants(t, list)

	reclaimed, deferred := list.ReclaimStats()
	t.Logf("reclaimed=%d deferred=%d", reclaimed, deferred)
	if reclaimed == 0 {
		t.Fatal("expected the registry to reclaim nodes during churn")
	}
}
