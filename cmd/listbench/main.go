// Command listbench sweeps the three list variants across power-of-two
// worker counts for insert-only and mixed insert/remove workloads, and
// writes one CSV row per run to benchmark_results.txt, which it recreates
// on every invocation.
package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/metailurini/lockfreelist"
)

const (
	numOperations = 150
	maxThreads    = 128

	resultPath = "benchmark_results.txt"
)

func intLess(a, b int) bool { return a < b }

func logResult(f *os.File, testType string, threads int, elapsed time.Duration) {
	fmt.Fprintf(f, "%s,%d,%d\n", testType, threads, elapsed.Milliseconds())
}

// insertWorker inserts the keys [start, numOperations). Later workers cover
// a shorter suffix of that range, so the ranges overlap and contend on the
// same keys.
func insertWorker(list lockfreelist.Set[int], start int) {
	for i := start; i < numOperations; i++ {
		list.Insert(i)
	}
}

// mixedWorker alternates inserts of even offsets with removes of the key
// this worker inserted on the previous step. A failed remove backs off
// exponentially for a bounded number of attempts.
func mixedWorker(list lockfreelist.Set[int], threadID, removeAttempts int) {
	base := threadID * numOperations
	for i := 0; i < numOperations; i++ {
		if i%2 == 0 {
			list.Insert(base + i)
			continue
		}
		for attempt := 0; attempt < removeAttempts; attempt++ {
			if list.Remove(base + i - 1) {
				break
			}
			time.Sleep(time.Duration(1<<attempt) * time.Millisecond)
		}
	}
}

func runSweep(f *os.File, variant, workload string, removeAttempts int, newList func() lockfreelist.Set[int]) {
	for threads := 1; threads <= maxThreads; threads *= 2 {
		list := newList()

		start := time.Now()
		var wg sync.WaitGroup
		for i := 0; i < threads; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				if workload == "insert" {
					insertWorker(list, id)
				} else {
					mixedWorker(list, id, removeAttempts)
				}
			}(i)
		}
		wg.Wait()
		elapsed := time.Since(start)

		fmt.Printf("Threads: %d | Time: %d ms\n", threads, elapsed.Milliseconds())
		logResult(f, variant+"_"+workload, threads, elapsed)
	}
}

func benchmarkVariant(f *os.File, variant string, removeAttempts int, newList func() lockfreelist.Set[int]) {
	fmt.Printf("Benchmarking %s insert only\n", variant)
	runSweep(f, variant, "insert", removeAttempts, newList)

	fmt.Printf("Benchmarking %s mixed\n", variant)
	runSweep(f, variant, "mixed", removeAttempts, newList)
}

func main() {
	f, err := os.Create(resultPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listbench: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	benchmarkVariant(f, "LockFreeList", 3, func() lockfreelist.Set[int] {
		return lockfreelist.NewLockFreeList[int](intLess)
	})
	benchmarkVariant(f, "CoarseGrainList", 5, func() lockfreelist.Set[int] {
		return lockfreelist.NewCoarseGrainList[int](intLess)
	})
	benchmarkVariant(f, "LockFreeListNoReclaim", 3, func() lockfreelist.Set[int] {
		return lockfreelist.NewLockFreeListNoReclaim[int](intLess)
	})
}
