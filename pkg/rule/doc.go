// Package rule models recurrence rules for scheduled jobs.
//
// # Overview
//
// A Rule couples a recurrence interval ("every N units") with optional
// calendar constraints ("only when the hour-of-day lies in 8..10"). It
// answers a single question: given the current instant and the instant a
// job last fired, is the job due now?
//
// Dueness is the conjunction of two independent checks:
//
//   - cadence: enough time has passed since the last fire. The next cadence
//     instant is computed with calendar-aware addition for day/week/month
//     units (AddDate) and fixed durations for second/minute/hour. A job
//     that has never fired is immediately cadence-due.
//   - eligibility: every constrained calendar field of the current instant
//     (read in that instant's location) lies inside its inclusive range.
//
// An ineligible instant never consumes the cadence timer: the job fires at
// the first eligible instant at or after the cadence boundary.
//
// Rules are immutable values. Construct them with the fluent Builder:
//
//	r, err := rule.Every(5).Minutes().HourBetween(8, 10).Build()
//
// or parse them from the compact string form used in config files:
//
//	s, err := rule.Parse("every:5m hour:8-10")
//
// Cron expressions are supported as a second schedule flavor behind the
// same Schedule contract:
//
//	s, err := rule.Parse("cron:*/5 8-10 * * *")
package rule
