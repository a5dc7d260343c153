package config

import (
	"errors"
	"fmt"
	"strings"

	"cronner/pkg/rule"

	"github.com/go-playground/validator/v10"
)

// validate carries the custom rules for schedule and duration strings on
// top of the standard tag set. Built once; *validator.Validate is safe
// for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Tag handlers never see empty strings here: all uses pair with
	// omitempty, and required fields are checked by their own tag first.
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := ParseDurationField("", fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("schedule", func(fl validator.FieldLevel) bool {
		_, err := rule.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks structural rules (tags) plus the cross-field ones the
// tag grammar cannot express. It is called on every Parse, so a config
// that loads is a config that can run.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", describeFieldErrors(verrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]int, len(c.Jobs))
	for i, j := range c.Jobs {
		name := strings.TrimSpace(j.Name)
		if name != j.Name || name == "" {
			return fmt.Errorf("invalid config: jobs[%d].name %q must be non-empty without surrounding spaces", i, j.Name)
		}
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("invalid config: duplicate job name %q (jobs[%d] and jobs[%d])", name, prev, i)
		}
		seen[name] = i
	}
	return nil
}

// describeFieldErrors flattens validator output into one line per failed
// field, readable enough to paste into a bug report.
func describeFieldErrors(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "schedule":
			parts = append(parts, fmt.Sprintf("%s: unparseable schedule %q", ns, fe.Value()))
		case "duration":
			parts = append(parts, fmt.Sprintf("%s: invalid duration %q", ns, fe.Value()))
		case "timezone":
			parts = append(parts, fmt.Sprintf("%s: unknown timezone %q", ns, fe.Value()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s: must be one of [%s], got %q", ns, fe.Param(), fe.Value()))
		case "required":
			parts = append(parts, fmt.Sprintf("%s: required", ns))
		default:
			parts = append(parts, fmt.Sprintf("%s: fails %q", ns, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
