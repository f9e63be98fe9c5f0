package ringmap

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks every test in the package for leaked goroutines, since
// almost every test here starts handles, background GC goroutines, or
// queue producers/consumers that must be fully torn down by the time the
// test returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
