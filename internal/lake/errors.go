package lake

import "fmt"

// ValidationError reports a malformed DesiredState. It is always raised
// before any provider call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// DeploymentError wraps a permanent or retry-exhausted provider failure
// for one resource kind.
type DeploymentError struct {
	Kind     ResourceKind
	Attempts int
	Err      error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deploy %s failed after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *DeploymentError) Unwrap() error { return e.Err }
