// File: transport/policy.go
// Author: momentics <momentics@gmail.com>
//
// Receive policies: how many bytes make the next unit handed to the application.

package transport

import "fmt"

// PolicyKind selects the receive rule.
type PolicyKind uint8

const (
	PolicyExactly PolicyKind = iota
	PolicyAtMost
	PolicyAtLeast
)

// ReceivePolicy configures the next read.
type ReceivePolicy struct {
	Kind PolicyKind
	Size int
}

// Exactly delivers units of exactly n bytes.
func Exactly(n int) ReceivePolicy { return ReceivePolicy{Kind: PolicyExactly, Size: n} }

// AtMost delivers whatever is available, up to n bytes.
func AtMost(n int) ReceivePolicy { return ReceivePolicy{Kind: PolicyAtMost, Size: n} }

// AtLeast delivers units of n bytes or more.
func AtLeast(n int) ReceivePolicy { return ReceivePolicy{Kind: PolicyAtLeast, Size: n} }

// BufferSize is the read buffer size the policy needs.
func (p ReceivePolicy) BufferSize() int {
	if p.Kind == PolicyAtLeast {
		return p.Size + max(100, p.Size/10)
	}
	return p.Size
}

// Threshold is the number of bytes that completes a unit.
func (p ReceivePolicy) Threshold() int {
	if p.Kind == PolicyAtMost {
		return 1
	}
	return p.Size
}

func (p ReceivePolicy) String() string {
	switch p.Kind {
	case PolicyExactly:
		return fmt.Sprintf("exactly(%d)", p.Size)
	case PolicyAtMost:
		return fmt.Sprintf("at_most(%d)", p.Size)
	default:
		return fmt.Sprintf("at_least(%d)", p.Size)
	}
}
