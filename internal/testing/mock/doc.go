// Package mock provides test doubles for steward's packages.
//
// Dialer records every command sent to a host and answers from scripted
// responses keyed by command prefix, so orchestration tests can assert on the
// exact docker and shell invocations without a real server. Prober reports a
// fixed set of busy ports to the port allocator. MockClock replaces the wall
// clock for scheduler and expiry tests.
package mock
