package rule

import "fmt"

// InvalidIntervalError reports an interval rejected at construction.
type InvalidIntervalError struct {
	Unit   Unit
	Count  int
	Reason string
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("rule: invalid interval %d %s: %s", e.Count, e.Unit, e.Reason)
}

// InvalidConstraintError reports a calendar constraint rejected at
// construction. Lo/Hi carry the offending bounds as given.
type InvalidConstraintError struct {
	Field  Field
	Lo     int
	Hi     int
	Reason string
}

func (e *InvalidConstraintError) Error() string {
	return fmt.Sprintf("rule: invalid %s constraint %d..%d: %s", e.Field, e.Lo, e.Hi, e.Reason)
}
