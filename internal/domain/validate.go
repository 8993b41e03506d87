package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

// ValidateUser returns every violated field of u; none means well-formed.
func ValidateUser(u User) []Violation {
	return structViolations(u)
}

// ValidateZone returns every violated field of z; none means well-formed.
func ValidateZone(z Zone) []Violation {
	out := structViolations(z)
	out = append(out, metadataViolations("metadata", z.Metadata)...)
	return out
}

// ValidateSensor returns every violated field of s; none means well-formed.
func ValidateSensor(s Sensor) []Violation {
	out := structViolations(s)
	out = append(out, metadataViolations("configuration.metadata", s.Configuration.Metadata)...)
	if !Finite(s.Configuration.Threshold) {
		out = append(out, Violation{Field: "configuration.threshold", Message: "must be a finite number"})
	}
	if r := s.LastReading; r != nil {
		out = append(out, readingViolations("last_reading", *r, s)...)
	}
	return out
}

// ValidateReading checks a reading against the sensor it is reported for.
func ValidateReading(s Sensor, r Reading) []Violation {
	return readingViolations("reading", r, s)
}

// ValidateAction returns every violated field of a; none means well-formed.
func ValidateAction(a Action) []Violation {
	out := structViolations(a)
	if a.StartDate != nil && a.EndDate != nil && a.EndDate.Before(*a.StartDate) {
		out = append(out, Violation{Field: "end_date", Message: "must not be before start_date"})
	}
	if len(a.ImpactMetrics.After) > 0 && a.Status != StatusCompleted {
		out = append(out, Violation{Field: "impact_metrics.after", Message: "may only be set once the action is completed"})
	}
	out = append(out, impactViolations("impact_metrics.before", a.ImpactMetrics.Before)...)
	out = append(out, impactViolations("impact_metrics.after", a.ImpactMetrics.After)...)
	return out
}

func readingViolations(field string, r Reading, s Sensor) []Violation {
	var out []Violation
	if !Finite(r.Value) {
		out = append(out, Violation{Field: field + ".value", Message: "must be a finite number"})
	}
	if r.Timestamp.IsZero() {
		out = append(out, Violation{Field: field + ".timestamp", Message: "is required"})
	} else if !s.CreatedAt.IsZero() && r.Timestamp.Before(s.CreatedAt) {
		out = append(out, Violation{Field: field + ".timestamp", Message: "must not precede sensor creation"})
	}
	out = append(out, metadataViolations(field+".metadata", r.Metadata)...)
	return out
}

func structViolations(s any) []Violation {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []Violation{{Field: "", Message: err.Error()}}
	}
	out := make([]Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, Violation{Field: fieldPath(fe.Namespace()), Message: describe(fe)})
	}
	return out
}

// fieldPath drops the struct type prefix validator puts on namespaces.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be <= " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be >= " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}

func metadataViolations(field string, m Metadata) []Violation {
	var out []Violation
	for _, k := range sortedKeys(m) {
		if strings.TrimSpace(k) == "" {
			out = append(out, Violation{Field: field, Message: "keys must not be empty"})
			continue
		}
		if !m[k].Valid() {
			out = append(out, Violation{Field: field + "." + k, Message: "must be a string, finite number or boolean"})
		}
	}
	return out
}

func impactViolations(field string, m map[string]float64) []Violation {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []Violation
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			out = append(out, Violation{Field: field, Message: "keys must not be empty"})
			continue
		}
		if !Finite(m[k]) {
			out = append(out, Violation{Field: field + "." + k, Message: "must be a finite number"})
		}
	}
	return out
}

func sortedKeys(m Metadata) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Finite reports whether f is neither NaN nor infinite.
func Finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
