// Package lifecycle names the reasons a daemon run ends, so shutdown
// paths can log and branch on them uniformly.
package lifecycle

type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)
