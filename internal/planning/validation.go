package planning

import "fmt"

// ValidationError is a request that binds but breaks a business rule.
// The fields mirror the binding errors so handlers can report both alike.
type ValidationError struct {
	Field   string
	Rule    string
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func endBeforeStart() *ValidationError {
	return &ValidationError{
		Field:   "endDate",
		Rule:    "gtefield",
		Param:   "startDate",
		Message: "must not be before startDate",
	}
}

func missingRef(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Rule:    "exists",
		Message: "does not reference an existing record",
	}
}
