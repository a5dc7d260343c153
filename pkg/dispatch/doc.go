// Package dispatch runs scheduled jobs on a fixed-period tick loop.
//
// # Overview
//
// A Dispatcher polls on a coarse tick (1s by default). On every tick it
// evaluates registered jobs in registration order against the tick-observed
// instant and fires the ones whose schedule reports due. A job is either
// Idle or Running; a job that is still Running when its schedule comes due
// again is skipped for that tick, never queued. When a fire completes, the
// job's last-fired time is set to the instant of the tick that dispatched
// it, so the next cadence window anchors to the tick, not to however long
// the callable took.
//
// Callables run without a timeout and are never cancelled by Stop: stopping
// the dispatcher only halts ticking, and any in-flight fires finish on
// their own. Failures (error returns and panics) are contained per job; a
// failing job stays registered and keeps its cadence.
//
// Execution is either inline on the tick loop (ModeInline) or handed to a
// worker-pool Executor (ModePool). Inline mode stalls the loop for the
// duration of each callable and is only suitable for fast jobs or tests.
package dispatch
