// Package core defines the data model shared by every layer of WanderPlan:
// conversation messages, the per-run mutable RunState, tool invocation and
// citation records, node-execution events, the streaming Event union and the
// run-level error taxonomy.
//
// A RunState is owned by exactly one run goroutine for its whole lifetime, so
// none of its mutators take locks. Once Finalize succeeds the state is treated
// as immutable; Snapshot produces the durable copy handed to persistence.
package core
