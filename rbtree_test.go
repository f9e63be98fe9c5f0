package ringmap

import (
	"math/rand"
	"testing"
)

func intEq(a, b any) bool { return a.(int) == b.(int) }

func TestRBTreeInsertFindInvariants(t *testing.T) {
	tb := newTreeBin()
	var seq uint64
	keys := rand.New(rand.NewSource(1)).Perm(500)

	for _, k := range keys {
		n := &node{hash: int64(k), key: k, seq: seq}
		seq++
		rbInsert(tb, n)
		if !checkInvariants(tb.root) {
			t.Fatalf("red-black invariant violated after inserting %d", k)
		}
	}

	for _, k := range keys {
		n := rbFind(tb.root, int64(k), k, intEq)
		if n == nil {
			t.Fatalf("key %d not found after insert", k)
		}
	}
}

func TestRBTreeDeleteInvariants(t *testing.T) {
	tb := newTreeBin()
	var seq uint64
	keys := rand.New(rand.NewSource(2)).Perm(300)
	nodes := make(map[int]*node, len(keys))

	for _, k := range keys {
		n := &node{hash: int64(k), key: k, seq: seq}
		seq++
		rbInsert(tb, n)
		nodes[k] = n
	}

	order := rand.New(rand.NewSource(3)).Perm(len(keys))
	for _, idx := range order {
		k := keys[idx]
		rbDelete(tb, nodes[k])
		if !checkInvariants(tb.root) {
			t.Fatalf("red-black invariant violated after deleting %d", k)
		}
		if rbFind(tb.root, int64(k), k, intEq) != nil {
			t.Fatalf("key %d still found after delete", k)
		}
	}
	if tb.root != nil {
		t.Fatal("tree root should be nil after deleting every key")
	}
	if tb.first != nil || tb.last != nil {
		t.Fatal("insertion-ordered list should be empty after deleting every key")
	}
}

func TestRBTreeHashCollisionBothKeysFindable(t *testing.T) {
	tb := newTreeBin()
	a := &node{hash: 7, key: "a", seq: 0}
	b := &node{hash: 7, key: "b", seq: 1}
	rbInsert(tb, a)
	rbInsert(tb, b)

	eq := func(x, y any) bool { return x.(string) == y.(string) }
	if n := rbFind(tb.root, 7, "a", eq); n == nil || n.key != "a" {
		t.Fatal("collided key a not found")
	}
	if n := rbFind(tb.root, 7, "b", eq); n == nil || n.key != "b" {
		t.Fatal("collided key b not found")
	}
	if !checkInvariants(tb.root) {
		t.Fatal("red-black invariant violated with a hash collision")
	}
}
