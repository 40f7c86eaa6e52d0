// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives backing the host scheduler of a node: a bounded MPMC
// queue, the task executor that runs deserialization workers, and a timer
// scheduler that delivers protocol timeouts. PinCurrentThread binds an event
// loop thread to one CPU.
package concurrency
