// Package saw implements a single-threaded, cooperative async I/O runtime
// built around a promise-pipeline abstraction called a conveyor: user code
// composes lazy chains of nodes that an event loop drives to completion,
// fed by OS readiness (epoll/signalfd/eventfd), timers, and user-supplied
// feeders.
//
// # Architecture
//
// A [Loop] owns an intrusive event queue with three priority insertion
// points (next/later/last) and, optionally, an [EventPort] that
// multiplexes file descriptor readiness, signal delivery and cross-thread
// wakeups into that same queue. Conveyor chains are built from small node
// kinds (immediate, adapt, one-time, buffer, convert, attach, sink, merge)
// connected by buffered storage edges; a [Conveyor] is the type-safe,
// user-facing handle over one such chain, pairing the chain's topmost
// node with the nearest storage edge below it.
//
// # Platform support
//
// The reactor is fully implemented for Linux, using epoll, signalfd and
// eventfd. Other targets fall back to a portable port (see
// reactor_portable.go) that provides Wake and signal delivery but cannot
// watch file descriptors: subscribing one fails with a critical error.
//
// # Concurrency
//
// Everything except [EventPort.Wake] and the calls built on it
// ([Loop.PostFromAnyGoroutine], and Feed/Fail on a [ThreadsafeFeeder]) is
// expected to run on the goroutine that entered the loop via
// [NewWaitScope]. Cross-goroutine producers must route through those.
package saw
