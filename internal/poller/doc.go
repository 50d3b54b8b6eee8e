// Package poller drives the periodic refresh of GonoPBX snapshots.
//
// This package is internal to pbxbridge. Each configured backend connection
// gets one [Coordinator], which owns the connection's current snapshot and
// runs one refresh cycle at a time. A [Scheduler] ticks all coordinators at a
// fixed interval with bounded concurrency.
//
// The main components are:
//
//   - [Coordinator]: refresh state machine, snapshot owner and listener fan-out
//   - [Scheduler]: ticker loop with a worker pool across coordinators
//   - [Assemble]: pure merge of backend records into a [snapshot.Snapshot]
//   - [RefreshOutcome]: result of one cycle delivered to listeners
//
// Users of the pbxbridge library should not need to interact with this
// package directly. Configuration is done through the main pbxbridge package.
package poller
