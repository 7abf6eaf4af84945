package pipeline

import "fmt"

// UnknownStageError is returned when a caller names a stage that is not in the definition.
// It signals a configuration bug rather than a runtime condition.
type UnknownStageError struct {
	Name string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %q", e.Name)
}
