package ringmap

import "testing"

func TestGroupCloseReclaimsEverything(t *testing.T) {
	g := NewGroup(GroupOptions{})

	ref := g.Bind()
	freedA, freedB := false, false

	p := ref.Pin()
	p.Retire(retireBlocker(func() { freedA = true }), 1)
	p.Unpin()

	ref.Close() // moves the handle onto the "already left" chain

	ref2 := g.Bind()
	p2 := ref2.Pin()
	p2.Retire(retireBlocker(func() { freedB = true }), 1)
	p2.Unpin()
	ref2.Close()

	g.Close()

	if !freedA || !freedB {
		t.Fatalf("Group.Close left records unreclaimed: freedA=%v freedB=%v", freedA, freedB)
	}
}

func TestGroupBindAfterCloseRejected(t *testing.T) {
	g := NewGroup(GroupOptions{})
	g.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("Bind after Close should panic")
		}
	}()
	g.Bind()
}
