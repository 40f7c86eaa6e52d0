// Author: momentics <momentics@gmail.com>

// Package actor provides the minimal actor system the protocol engine runs
// in: registries, channel-free mailboxes and proxies for remote actors.
package actor
