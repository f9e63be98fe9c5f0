// Command bench drives the stress scenarios described in the package's
// design notes (reclamation safety, linearizability, at-most-one binding,
// round-trip correctness, insert_absent idempotence, resize preservation,
// and MS-queue FIFO ordering) against ringmap.Map and ringmap.Queue.
//
// Usage:
//
//	bench <iterations> <keys> <threads>
package main

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"sync"

	"ringmap"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: bench <iterations> <keys> <threads>")
		os.Exit(2)
	}
	iterations := mustAtoi(os.Args[1])
	keys := mustAtoi(os.Args[2])
	threads := mustAtoi(os.Args[3])

	scenarios := []struct {
		name string
		run  func(iterations, keys, threads int) error
	}{
		{"S1_insert_find_roundtrip", scenarioRoundTrip},
		{"S2_insert_absent_idempotent", scenarioInsertAbsent},
		{"S3_concurrent_erase_equal", scenarioEraseEqual},
		{"S4_resize_preserves_entries", scenarioResizePreservation},
		{"S5_reclamation_safety", scenarioReclamationSafety},
		{"S6_queue_fifo_order", scenarioQueueFIFO},
	}

	failed := false
	for _, s := range scenarios {
		if err := s.run(iterations, keys, threads); err != nil {
			fmt.Fprintf(os.Stderr, "%s: FAIL: %v\n", s.name, err)
			failed = true
			continue
		}
		fmt.Printf("%s: OK\n", s.name)
	}
	if failed {
		os.Exit(1)
	}
}

func mustAtoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid integer argument %q: %v\n", s, err)
		os.Exit(2)
	}
	return n
}

func fnvHash(k uint64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(k >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum64()
}

// scenarioRoundTrip: every key the threads write is findable once all
// threads finish (spec: round-trip correctness). Only presence is checked,
// not which thread's write survived.
func scenarioRoundTrip(iterations, keys, threads int) error {
	m := ringmap.NewMap[uint64, string](fnvHash)
	defer m.Close()

	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				k := uint64(i % keys)
				m.Insert(k, fmt.Sprintf("t%d-i%d", t, i))
			}
		}(t)
	}
	wg.Wait()

	for i := 0; i < keys; i++ {
		if _, ok := m.Find(uint64(i)); !ok {
			return errAssertionf("key %d missing after concurrent insert", i)
		}
	}
	return nil
}

// scenarioInsertAbsent: concurrent InsertAbsent on the same key across all
// threads must produce exactly one winner and every caller must observe
// the same final value (spec: insert_absent idempotence).
func scenarioInsertAbsent(iterations, keys, threads int) error {
	m := ringmap.NewMap[uint64, int](fnvHash)
	defer m.Close()

	var winners sync.Map               // key -> count of (inserted == true) observations
	observed := make([][]int, threads) // observed[t][i]: value InsertAbsent reported to thread t for key i
	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		observed[t] = make([]int, keys)
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				actual, inserted := m.InsertAbsent(uint64(i), t)
				observed[t][i] = actual
				if inserted {
					v, _ := winners.LoadOrStore(uint64(i), new(int))
					*(v.(*int))++
				}
			}
		}(t)
	}
	wg.Wait()

	bad := 0
	for i := 0; i < keys; i++ {
		v, ok := winners.Load(uint64(i))
		if !ok || *(v.(*int)) != 1 {
			bad++
		}
	}
	if bad > 0 {
		return errAssertionf("%d keys had != 1 InsertAbsent winner", bad)
	}
	for i := 0; i < keys; i++ {
		for t := 1; t < threads; t++ {
			if observed[t][i] != observed[0][i] {
				return errAssertionf("key %d: InsertAbsent reported %d and %d to different callers", i, observed[0][i], observed[t][i])
			}
		}
	}
	return nil
}

// scenarioEraseEqual: EraseEqual must never remove a value another thread
// has already overwritten (spec: eraseEqual semantics).
func scenarioEraseEqual(iterations, keys, threads int) error {
	m := ringmap.NewMap[uint64, int](fnvHash)
	defer m.Close()

	for i := 0; i < keys; i++ {
		m.Insert(uint64(i), 0)
	}

	// Every thread overwrites the initial 0 with a non-zero value before its
	// own EraseEqual against 0, so that EraseEqual must always fail.
	var mu sync.Mutex
	wrong := 0
	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				m.Insert(uint64(i), t+1)
				if m.EraseEqual(uint64(i), 0, func(a, b int) bool { return a == b }) {
					mu.Lock()
					wrong++
					mu.Unlock()
				}
			}
		}(t)
	}
	wg.Wait()
	if wrong > 0 {
		return errAssertionf("EraseEqual removed %d already-overwritten values", wrong)
	}
	return nil
}

// scenarioResizePreservation: every key inserted before and during
// concurrent growth must still be findable afterward (spec: resize
// preservation).
func scenarioResizePreservation(iterations, keys, threads int) error {
	m := ringmap.NewMap[uint64, struct{}](fnvHash)
	defer m.Close()

	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				m.Insert(uint64(t*keys+i), struct{}{})
			}
		}(t)
	}
	wg.Wait()

	for t := 0; t < threads; t++ {
		for i := 0; i < keys; i++ {
			if _, ok := m.Find(uint64(t*keys + i)); !ok {
				return errAssertionf("key %d lost across resize", t*keys+i)
			}
		}
	}
	return nil
}

// scenarioReclamationSafety: erase-then-reinsert churn under concurrent
// finds must never panic or deadlock; correctness here is "ran to
// completion without crashing," the structural half of reclamation
// safety that an external tool (race detector, ASan-equivalent) would
// check for the memory half.
func scenarioReclamationSafety(iterations, keys, threads int) error {
	m := ringmap.NewMap[uint64, int](fnvHash)
	defer m.Close()

	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				k := uint64(i % keys)
				m.Insert(k, i)
				m.Find(k)
				m.Erase(k)
			}
		}(t)
	}
	wg.Wait()
	return nil
}

// scenarioQueueFIFO: a single producer's pushes must be observed by
// consumers in the order they were pushed (spec: MS-queue FIFO ordering).
func scenarioQueueFIFO(iterations, keys, threads int) error {
	q := ringmap.NewQueue[int]()
	defer q.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			q.Push(i)
		}
	}()
	wg.Wait()

	last := -1
	for i := 0; i < iterations; i++ {
		v, ok := q.Pop()
		if !ok {
			return errAssertionf("queue drained early at %d of %d", i, iterations)
		}
		if v <= last {
			return errAssertionf("fifo violation: got %d after %d", v, last)
		}
		last = v
	}
	return nil
}

func errAssertionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ringmap.ErrAssertionFailed, fmt.Sprintf(format, args...))
}
