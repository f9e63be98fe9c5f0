package ringmap

import (
	"errors"
	"fmt"
)

// Sentinel errors for callers to match with errors.Is, following the
// teacher pack's convention of plain errors.New
// sentinels wrapped with fmt.Errorf at the call site rather than a custom
// error type hierarchy.
var (
	// ErrGroupClosed is wrapped into a panic, not returned, because using a
	// Group after Close is a contract violation rather than an expected
	// runtime condition (SPEC_FULL.md ambient-stack decision: contract
	// violations panic, ordinary failures return errors).
	ErrGroupClosed = errors.New("ringmap: group is closed")

	// ErrAssertionFailed is returned by cmd/bench's scenario runners when a
	// stress scenario observes a property violation.
	ErrAssertionFailed = errors.New("ringmap: assertion failed")
)

func errAssertion(scenario string, detail string) error {
	return fmt.Errorf("%s: %w: %s", scenario, ErrAssertionFailed, detail)
}
