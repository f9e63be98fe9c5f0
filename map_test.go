package ringmap

import (
	"fmt"
	"sync"
	"testing"
)

func identityHash(k uint64) uint64 { return k }

func TestMapInsertFindRoundTrip(t *testing.T) {
	m := NewMap[uint64, string](identityHash)
	defer m.Close()

	for i := uint64(0); i < 1000; i++ {
		if _, existed := m.Insert(i, fmt.Sprintf("v%d", i)); existed {
			t.Fatalf("key %d reported existing on first insert", i)
		}
	}
	for i := uint64(0); i < 1000; i++ {
		v, ok := m.Find(i)
		if !ok || v != fmt.Sprintf("v%d", i) {
			t.Fatalf("Find(%d) = %q, %v; want v%d, true", i, v, ok, i)
		}
	}
	if got := m.Len(); got != 1000 {
		t.Fatalf("Len() = %d, want 1000", got)
	}
}

func TestMapInsertAbsentIdempotent(t *testing.T) {
	m := NewMap[uint64, int](identityHash)
	defer m.Close()

	v1, inserted1 := m.InsertAbsent(1, 10)
	if !inserted1 || v1 != 10 {
		t.Fatalf("first InsertAbsent = %d, %v; want 10, true", v1, inserted1)
	}
	v2, inserted2 := m.InsertAbsent(1, 20)
	if inserted2 || v2 != 10 {
		t.Fatalf("second InsertAbsent = %d, %v; want 10, false", v2, inserted2)
	}
}

func TestMapEraseAndEraseEqual(t *testing.T) {
	m := NewMap[uint64, int](identityHash)
	defer m.Close()

	m.Insert(1, 100)
	if ok := m.EraseEqual(1, 200, func(a, b int) bool { return a == b }); ok {
		t.Fatal("EraseEqual removed an entry whose value did not match")
	}
	if _, ok := m.Find(1); !ok {
		t.Fatal("entry removed despite value mismatch")
	}
	if ok := m.EraseEqual(1, 100, func(a, b int) bool { return a == b }); !ok {
		t.Fatal("EraseEqual failed to remove an entry whose value matched")
	}
	if _, ok := m.Find(1); ok {
		t.Fatal("entry still present after matching EraseEqual")
	}

	m.Insert(2, 5)
	v, ok := m.Erase(2)
	if !ok || v != 5 {
		t.Fatalf("Erase(2) = %d, %v; want 5, true", v, ok)
	}
	if _, ok := m.Erase(2); ok {
		t.Fatal("Erase on an absent key reported success")
	}
}

func TestMapConcurrentInsertFind(t *testing.T) {
	m := NewMap[uint64, uint64](identityHash)
	defer m.Close()

	const threads = 16
	const perThread = 2000

	var wg sync.WaitGroup
	for tIdx := 0; tIdx < threads; tIdx++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for i := uint64(0); i < perThread; i++ {
				k := base*perThread + i
				m.Insert(k, k*2)
			}
		}(uint64(tIdx))
	}
	wg.Wait()

	for tIdx := 0; tIdx < threads; tIdx++ {
		for i := uint64(0); i < perThread; i++ {
			k := uint64(tIdx)*perThread + i
			v, ok := m.Find(k)
			if !ok || v != k*2 {
				t.Fatalf("Find(%d) = %d, %v; want %d, true", k, v, ok, k*2)
			}
		}
	}
	if got, want := m.Len(), int64(threads*perThread); got != int(want) {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

func TestMapTreeifiesUnderHashCollisions(t *testing.T) {
	collidingHash := func(uint64) uint64 { return 0 }
	m := NewMap[uint64, int](collidingHash)
	defer m.Close()

	for i := uint64(0); i < 20; i++ {
		m.Insert(i, int(i))
	}
	for i := uint64(0); i < 20; i++ {
		v, ok := m.Find(i)
		if !ok || v != int(i) {
			t.Fatalf("Find(%d) = %d, %v; want %d, true", i, v, ok, i)
		}
	}
	if head := m.core.table.Load().loadBin(0); head == nil || head.hash != hashTreeBin {
		t.Fatal("bin holding the colliding keys was not treeified")
	}
}

func TestMapIteratorVisitsEveryEntry(t *testing.T) {
	m := NewMap[uint64, int](identityHash)
	defer m.Close()

	const n = 500
	for i := uint64(0); i < n; i++ {
		m.Insert(i, int(i))
	}

	seen := make(map[uint64]bool, n)
	it := m.NewIterator()
	for it.Next() {
		seen[it.Key()] = true
	}
	it.Close()

	if len(seen) != n {
		t.Fatalf("iterator visited %d entries, want %d", len(seen), n)
	}
}

func TestMapFindReference(t *testing.T) {
	m := NewMap[uint64, string](identityHash)
	defer m.Close()

	m.Insert(1, "a")

	ref, ok := m.FindReference(1)
	if !ok {
		t.Fatal("FindReference(1) reported absent")
	}
	if got := ref.Value(); got != "a" {
		t.Fatalf("ref.Value() = %q, want %q", got, "a")
	}
	ref.Close()

	if _, ok := m.FindReference(999); ok {
		t.Fatal("FindReference on an absent key reported present")
	}
}

// TestMapFindReferenceSurvivesConcurrentErase is spec §8 Testable Property 1:
// "for every (K, V) retired during a Pin held by thread A, thread A may
// continue to dereference the returned reference until the Pin drops; no
// use-after-free occurs." Run under -race, this would catch a reclaimer that
// frees a node while a ScopedRef obtained before the erase is still open.
func TestMapFindReferenceSurvivesConcurrentErase(t *testing.T) {
	const keys = 200
	const rounds = 500

	m := NewMap[uint64, string](identityHash)
	defer m.Close()

	for i := uint64(0); i < keys; i++ {
		m.Insert(i, fmt.Sprintf("v%d", i))
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for r := 0; r < rounds; r++ {
			k := uint64(r) % keys
			if ref, ok := m.FindReference(k); ok {
				_ = ref.Value() // must not crash/read freed memory even if erased concurrently below
				ref.Close()
			}
		}
	}()

	go func() {
		defer wg.Done()
		for r := 0; r < rounds; r++ {
			k := uint64(r) % keys
			if v, ok := m.Erase(k); ok {
				m.Insert(k, v) // put it back so the finder keeps finding live entries too
			}
		}
	}()

	wg.Wait()
}

func TestMapResizePreservesEntries(t *testing.T) {
	m := NewMap[uint64, uint64](identityHash)
	defer m.Close()

	const n = 5000
	var wg sync.WaitGroup
	for i := uint64(0); i < n; i++ {
		wg.Add(1)
		go func(k uint64) {
			defer wg.Done()
			m.Insert(k, k)
		}(i)
	}
	wg.Wait()

	for i := uint64(0); i < n; i++ {
		if v, ok := m.Find(i); !ok || v != i {
			t.Fatalf("Find(%d) = %d, %v; want %d, true", i, v, ok, i)
		}
	}
}
